package guard

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	authmodels "stayguard/internal/auth/models"
	authstore "stayguard/internal/auth/store"
	"stayguard/internal/guard/config"
	"stayguard/internal/guard/inputscan"
	"stayguard/internal/guard/lockout"
	"stayguard/internal/guard/models"
	"stayguard/internal/guard/ratelimit"
	"stayguard/internal/guard/sessionmon"
	"stayguard/internal/guard/store"
	"stayguard/pkg/requestcontext"
	"stayguard/pkg/sentinel"
)

const testUA = "Mozilla/5.0 (X11; Linux x86_64) Chrome/120.0.0.0"

type GuardSuite struct {
	suite.Suite
	guard    *Guard
	lockout  *lockout.Service
	sessions *authstore.InMemorySessionStore
	cfg      *config.Config
	now      time.Time
}

func TestGuardSuite(t *testing.T) {
	suite.Run(t, new(GuardSuite))
}

func (s *GuardSuite) SetupTest() {
	s.now = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st := store.NewMemoryStore().WithClock(clock)
	s.sessions = authstore.NewSessionStore()
	s.cfg = config.Default()

	var err error
	s.lockout, err = lockout.New(st,
		lockout.WithLogger(logger),
		lockout.WithConfig(&s.cfg.Lockout),
		lockout.WithClock(clock),
	)
	s.Require().NoError(err)

	limiter, err := ratelimit.New(st, ratelimit.WithLogger(logger), ratelimit.WithConfig(s.cfg))
	s.Require().NoError(err)

	monitor, err := sessionmon.New(s.sessions,
		sessionmon.WithLogger(logger),
		sessionmon.WithConfig(&s.cfg.Session),
		sessionmon.WithClock(clock),
	)
	s.Require().NoError(err)

	s.guard, err = New(Deps{
		Scanner:  inputscan.New(inputscan.WithLogger(logger)),
		Lockout:  s.lockout,
		Limiter:  limiter,
		Monitor:  monitor,
		Sessions: s.sessions,
	},
		WithLogger(logger),
		WithConfig(s.cfg),
		WithClock(clock),
	)
	s.Require().NoError(err)
}

// handler wires the guard for an endpoint class behind a stand-in for the
// metadata middleware, echoing 200 on pass-through.
func (s *GuardSuite) handler(class models.EndpointClass) http.Handler {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	protected := s.guard.Protect(class)(ok)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, _ := strings.Cut(r.RemoteAddr, ":")
		ctx := requestcontext.WithClientMetadata(r.Context(), ip, r.UserAgent())
		ctx = requestcontext.WithPath(ctx, r.URL.Path)
		protected.ServeHTTP(w, r.WithContext(ctx))
	})
}

type reqOpt func(*http.Request)

func withCookie(value string) reqOpt {
	return func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: value})
	}
}

func withUA(ua string) reqOpt {
	return func(r *http.Request) {
		r.Header.Set("User-Agent", ua)
	}
}

func (s *GuardSuite) get(h http.Handler, clientIP, target string, opts ...reqOpt) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = clientIP + ":54321"
	req.Header.Set("User-Agent", testUA)
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func (s *GuardSuite) postForm(h http.Handler, clientIP, target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.RemoteAddr = clientIP + ":54321"
	req.Header.Set("User-Agent", testUA)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// A burst through the search limit throttles only the client that burst.
func (s *GuardSuite) TestSearchBurstThrottlesOnlyTheBurster() {
	h := s.handler(models.ClassSearch)

	for i := 1; i <= 60; i++ {
		rec := s.get(h, "203.0.113.7", "/search?location=york")
		s.Require().Equal(http.StatusOK, rec.Code, "request %d of 60", i)
	}

	rec := s.get(h, "203.0.113.7", "/search?location=york")
	s.Equal(http.StatusTooManyRequests, rec.Code)
	s.NotEmpty(rec.Header().Get("Retry-After"))
	s.Equal("60", rec.Header().Get("X-RateLimit-Limit"))
	s.Equal("0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = s.get(h, "198.51.100.9", "/search?location=york")
	s.Equal(http.StatusOK, rec.Code, "other clients are unaffected")

	s.now = s.now.Add(time.Minute)
	rec = s.get(h, "203.0.113.7", "/search?location=york")
	s.Equal(http.StatusOK, rec.Code, "a fresh window admits the burster again")
}

// Five reported failures lock the client out of auth endpoints entirely;
// the block lapses after its duration.
func (s *GuardSuite) TestLockoutBlocksAuthEndpoints() {
	h := s.handler(models.ClassAuth)
	ctx := context.Background()

	for range 5 {
		s.Require().NoError(s.lockout.RecordFailure(ctx, "203.0.113.7"))
	}

	rec := s.postForm(h, "203.0.113.7", "/accounts/login", url.Values{
		"email": {"guest@example.com"}, "password": {"the right one"},
	})
	s.Equal(http.StatusTooManyRequests, rec.Code,
		"a locked client is refused before credentials are looked at")
	s.NotEmpty(rec.Header().Get("Retry-After"))

	rec = s.get(s.handler(models.ClassSearch), "203.0.113.7", "/search?location=york")
	s.Equal(http.StatusOK, rec.Code, "the lockout applies to auth endpoints only")

	s.now = s.now.Add(15*time.Minute + time.Second)
	rec = s.postForm(h, "203.0.113.7", "/accounts/login", url.Values{
		"email": {"guest@example.com"}, "password": {"the right one"},
	})
	s.Equal(http.StatusOK, rec.Code, "the block lapses after its duration")
}

// An injection probe is denied fail-closed, and a clean follow-up from the
// same client passes: scanner matches do not poison the client's standing.
func (s *GuardSuite) TestInjectionProbeDeniedCleanRequestPasses() {
	h := s.handler(models.ClassSearch)

	rec := s.get(h, "203.0.113.7", "/search?location="+url.QueryEscape("' OR 1=1 --"))
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.get(h, "203.0.113.7", "/search?location=sheffield")
	s.Equal(http.StatusOK, rec.Code)
}

func (s *GuardSuite) TestFormBodyIsScanned() {
	h := s.handler(models.ClassAuth)

	rec := s.postForm(h, "203.0.113.7", "/accounts/login", url.Values{
		"email": {"x@example.com' OR 1=1 --"}, "password": {"whatever"},
	})
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *GuardSuite) TestScannerUserAgentIsRejected() {
	rec := s.get(s.handler(models.ClassSearch), "203.0.113.7",
		"/search?location=york", withUA("sqlmap/1.7-dev"))
	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *GuardSuite) TestOversizedURLIsRejected() {
	long := "/search?location=" + strings.Repeat("a", 3000)
	rec := s.get(s.handler(models.ClassSearch), "203.0.113.7", long)
	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *GuardSuite) seedSession(id string) *authmodels.Session {
	sess := &authmodels.Session{
		ID:            id,
		UserID:        "u1",
		Email:         "guest@example.com",
		BoundIP:       "203.0.113.7",
		BoundUAHash:   authmodels.HashUserAgent(testUA),
		CreatedAt:     s.now,
		LastRotatedAt: s.now,
		ExpiresAt:     s.now.Add(24 * time.Hour),
	}
	s.Require().NoError(s.sessions.Create(context.Background(), sess))
	return sess
}

func (s *GuardSuite) TestValidSessionPassesAndMissingSessionClearsCookie() {
	h := s.handler(models.ClassDefault)
	s.seedSession("sess-1")

	rec := s.get(h, "203.0.113.7", "/account", withCookie("sess-1"))
	s.Equal(http.StatusOK, rec.Code)

	rec = s.get(h, "203.0.113.7", "/account", withCookie("ghost"))
	s.Equal(http.StatusOK, rec.Code, "an unknown session means logged out, not denied")
	s.cookieCleared(rec)
}

func (s *GuardSuite) TestEnforcedIPMismatchInvalidatesSession() {
	s.cfg.Session.InvalidateOnIPChange = true
	h := s.handler(models.ClassDefault)
	s.seedSession("sess-1")

	rec := s.get(h, "198.51.100.9", "/account", withCookie("sess-1"))
	s.Equal(http.StatusForbidden, rec.Code)
	s.cookieCleared(rec)

	// The session is gone; retrying from the original IP is logged out too.
	rec = s.get(h, "203.0.113.7", "/account", withCookie("sess-1"))
	s.Equal(http.StatusOK, rec.Code)
	s.cookieCleared(rec)
}

func (s *GuardSuite) TestUnenforcedMismatchPassesThrough() {
	h := s.handler(models.ClassDefault)
	s.seedSession("sess-1")

	rec := s.get(h, "198.51.100.9", "/account", withCookie("sess-1"))
	s.Equal(http.StatusOK, rec.Code)
}

func (s *GuardSuite) TestSessionRotationSetsFreshCookie() {
	h := s.handler(models.ClassDefault)
	s.seedSession("sess-1")

	s.now = s.now.Add(31 * time.Minute)
	rec := s.get(h, "203.0.113.7", "/account", withCookie("sess-1"))
	s.Equal(http.StatusOK, rec.Code)

	cookie := s.sessionCookie(rec)
	s.Require().NotNil(cookie, "rotation must set a replacement cookie")
	s.NotEqual("sess-1", cookie.Value)
	s.NotEmpty(cookie.Value)

	_, err := s.sessions.FindByID(context.Background(), "sess-1")
	s.Error(err, "the old ID is retired")
}

func (s *GuardSuite) TestExpiredSessionMeansLoggedOut() {
	h := s.handler(models.ClassDefault)
	s.seedSession("sess-1")

	s.now = s.now.Add(25 * time.Hour)
	rec := s.get(h, "203.0.113.7", "/account", withCookie("sess-1"))
	s.Equal(http.StatusOK, rec.Code)
	s.cookieCleared(rec)
}

type downStore struct{ store.Store }

func (downStore) IncrementAndGet(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, fmt.Errorf("increment: %w: connection refused", sentinel.ErrUnavailable)
}
func (downStore) GetBlock(context.Context, string) (*models.BlockEntry, error) {
	return nil, fmt.Errorf("get block: %w: connection refused", sentinel.ErrUnavailable)
}

// With the counter store down, traffic flows: availability beats brief
// under-enforcement.
func (s *GuardSuite) TestStoreOutageFailsOpen() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	lk, err := lockout.New(downStore{}, lockout.WithLogger(logger))
	s.Require().NoError(err)
	limiter, err := ratelimit.New(downStore{}, ratelimit.WithLogger(logger))
	s.Require().NoError(err)

	s.guard, err = New(Deps{
		Scanner: inputscan.New(),
		Lockout: lk,
		Limiter: limiter,
	}, WithLogger(logger))
	s.Require().NoError(err)

	rec := s.get(s.handler(models.ClassSearch), "203.0.113.7", "/search?location=york")
	s.Equal(http.StatusOK, rec.Code)

	rec = s.get(s.handler(models.ClassAuth), "203.0.113.7", "/accounts/login")
	s.Equal(http.StatusOK, rec.Code)
}

func (s *GuardSuite) sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName {
			return c
		}
	}
	return nil
}

func (s *GuardSuite) cookieCleared(rec *httptest.ResponseRecorder) {
	cookie := s.sessionCookie(rec)
	s.Require().NotNil(cookie, "expected a cookie-clearing Set-Cookie")
	s.Empty(cookie.Value)
	s.Negative(cookie.MaxAge)
}
