// Package guard assembles the adaptive request guard: an ordered pipeline of
// request-shape checks, suspicious-input scanning, brute-force lockout, rate
// limiting, and session integrity verification, mounted as chi middleware in
// front of the booking site's handlers.
//
// Ordering is deliberate. Cheap shape checks run first, then the fail-closed
// input scanner, then the lockout and rate-limit counters, and finally
// session work; the first denial short-circuits the rest. Counter-store
// failures fail open: on a transient store outage the guard logs, counts the
// event, and lets traffic through rather than taking the whole site down.
package guard

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	authmodels "stayguard/internal/auth/models"
	authstore "stayguard/internal/auth/store"
	"stayguard/internal/guard/config"
	"stayguard/internal/guard/inputscan"
	"stayguard/internal/guard/lockout"
	"stayguard/internal/guard/metrics"
	"stayguard/internal/guard/models"
	"stayguard/internal/guard/observability"
	"stayguard/internal/guard/ratelimit"
	"stayguard/internal/guard/sessionmon"
	"stayguard/internal/transport/httputil"
	"stayguard/pkg/requestcontext"
	"stayguard/pkg/sentinel"
)

// SessionCookieName is the browser cookie carrying the session identifier.
const SessionCookieName = "stay_session"

type sessionCtxKey struct{}

// SessionFromContext returns the verified session attached by the guard, or
// nil for unauthenticated requests.
func SessionFromContext(ctx context.Context) *authmodels.Session {
	session, _ := ctx.Value(sessionCtxKey{}).(*authmodels.Session)
	return session
}

// Deps are the collaborating services the guard orchestrates. All fields are
// required except Sessions, which may be nil when the deployment has no
// login surface.
type Deps struct {
	Scanner  *inputscan.Scanner
	Lockout  *lockout.Service
	Limiter  *ratelimit.Service
	Monitor  *sessionmon.Monitor
	Sessions authstore.SessionStore
}

// Guard runs the request pipeline. Safe for concurrent use.
type Guard struct {
	deps    Deps
	config  *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Guard instance.
type Option func(*Guard)

// WithLogger sets the structured logger for audit logging.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

// WithConfig overrides the default guard configuration.
func WithConfig(cfg *config.Config) Option {
	return func(g *Guard) {
		g.config = cfg
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) {
		g.metrics = m
	}
}

// WithClock replaces the time source in tests.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		g.now = now
	}
}

// New creates the guard. Scanner, lockout, and limiter are required.
func New(deps Deps, opts ...Option) (*Guard, error) {
	if deps.Scanner == nil || deps.Lockout == nil || deps.Limiter == nil {
		return nil, errors.New("scanner, lockout, and limiter are required")
	}
	if deps.Sessions != nil && deps.Monitor == nil {
		return nil, errors.New("session monitor is required when a session store is wired")
	}

	g := &Guard{
		deps:   deps,
		config: config.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Protect returns the guard middleware for routes of the given endpoint
// class. Every route on the site mounts it; the class picks the rate-limit
// policy and, for the auth class, arms the lockout check.
func (g *Guard) Protect(class models.EndpointClass) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := g.now()
			defer func() {
				g.metrics.ObserveCheckDuration(time.Since(start).Seconds())
			}()

			ctx := r.Context()
			identity := requestcontext.ClientIP(ctx)

			if verdict := g.checkShape(ctx, r, identity); !verdict.Allowed {
				g.deny(w, verdict)
				return
			}
			if verdict := g.scanInput(ctx, r, identity); !verdict.Allowed {
				g.deny(w, verdict)
				return
			}
			if class == models.ClassAuth {
				if verdict := g.checkLockout(ctx, identity); !verdict.Allowed {
					g.deny(w, verdict)
					return
				}
			}
			if verdict := g.checkRateLimit(ctx, w, identity, class); !verdict.Allowed {
				g.deny(w, verdict)
				return
			}

			r2, verdict := g.checkSession(w, r)
			if !verdict.Allowed {
				g.deny(w, verdict)
				return
			}

			g.metrics.RecordAllowed()
			next.ServeHTTP(w, r2)
		})
	}
}

// checkShape rejects structurally abusive requests before any counter is
// touched: oversized URLs, scanner user-agents, oversized declared bodies.
func (g *Guard) checkShape(ctx context.Context, r *http.Request, identity string) models.Verdict {
	if len(r.URL.RequestURI()) > g.config.Request.MaxURLLength {
		observability.LogAudit(ctx, g.logger, "request_shape_rejected",
			"identifier", identity,
			"violation", "url_too_long",
			"length", len(r.URL.RequestURI()),
		)
		return models.Deny(models.ReasonMalformedRequest)
	}

	ua := strings.ToLower(requestcontext.UserAgent(ctx))
	for _, blocked := range g.config.Request.BlockedUserAgents {
		if strings.Contains(ua, blocked) {
			observability.LogAudit(ctx, g.logger, "request_shape_rejected",
				"identifier", identity,
				"violation", "blocked_user_agent",
				"agent", blocked,
			)
			return models.Deny(models.ReasonMalformedRequest)
		}
	}

	if r.ContentLength > g.config.Request.MaxBodyBytes {
		observability.LogAudit(ctx, g.logger, "request_shape_rejected",
			"identifier", identity,
			"violation", "body_too_large",
			"declared_bytes", r.ContentLength,
		)
		return models.Deny(models.ReasonMalformedRequest)
	}

	return models.Allow()
}

// scanInput runs the fail-closed signature scanner over the query string and,
// for form submissions, the parsed body.
func (g *Guard) scanInput(ctx context.Context, r *http.Request, identity string) models.Verdict {
	params := r.URL.Query()

	if formRequest(r) {
		if err := r.ParseForm(); err != nil {
			observability.LogAudit(ctx, g.logger, "request_shape_rejected",
				"identifier", identity,
				"violation", "unparseable_form",
			)
			return models.Deny(models.ReasonMalformedRequest)
		}
		params = r.Form
	}

	return g.deps.Scanner.Scan(ctx, identity, r.URL.Path, params)
}

func formRequest(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return false
	}
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(ct, "multipart/form-data")
}

func (g *Guard) checkLockout(ctx context.Context, identity string) models.Verdict {
	entry, err := g.deps.Lockout.Check(ctx, identity)
	if err != nil {
		g.failOpen(ctx, "lockout", err)
		return models.Allow()
	}
	if entry == nil {
		return models.Allow()
	}
	return models.DenyFor(models.ReasonLocked, entry.Remaining(g.now()))
}

func (g *Guard) checkRateLimit(ctx context.Context, w http.ResponseWriter, identity string, class models.EndpointClass) models.Verdict {
	result, err := g.deps.Limiter.Check(ctx, identity, class)
	if err != nil {
		g.failOpen(ctx, "rate_limit", err)
		return models.Allow()
	}

	if result.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	}
	return result.Verdict()
}

// checkSession loads, verifies, and maybe rotates the caller's session. A
// missing, expired, or unknown session never denies: the request simply
// proceeds unauthenticated and route-level auth decides what that means.
func (g *Guard) checkSession(w http.ResponseWriter, r *http.Request) (*http.Request, models.Verdict) {
	if g.deps.Sessions == nil {
		return r, models.Allow()
	}

	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return r, models.Allow()
	}

	ctx := r.Context()
	session, err := g.deps.Sessions.FindByID(ctx, cookie.Value)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			g.failOpen(ctx, "session", err)
		}
		g.clearSessionCookie(w)
		return r, models.Allow()
	}

	if session.Expired(g.now()) {
		// Expiry is not an anomaly; treat the caller as logged out.
		_ = g.deps.Sessions.Delete(ctx, session.ID)
		g.clearSessionCookie(w)
		return r, models.Allow()
	}

	clientIP := requestcontext.ClientIP(ctx)
	rawUA := requestcontext.UserAgent(ctx)

	verdict, err := g.deps.Monitor.Verify(ctx, session, clientIP, rawUA)
	if err != nil {
		g.failOpen(ctx, "session", err)
		return r, models.Allow()
	}
	if !verdict.Allowed {
		g.clearSessionCookie(w)
		return r, verdict
	}

	session, rotated, err := g.deps.Monitor.MaybeRotate(ctx, session, clientIP, rawUA)
	if err != nil {
		// Rotation failure keeps the old ID live; continue with it.
		g.failOpen(ctx, "session", err)
	} else if rotated {
		g.setSessionCookie(w, session)
	}

	return r.WithContext(context.WithValue(ctx, sessionCtxKey{}, session)), models.Allow()
}

func (g *Guard) deny(w http.ResponseWriter, verdict models.Verdict) {
	g.metrics.RecordDenial(string(verdict.Reason))
	httputil.WriteVerdict(w, verdict)
}

func (g *Guard) failOpen(ctx context.Context, check string, err error) {
	g.metrics.RecordStoreFailOpen(check)
	if g.logger != nil {
		g.logger.WarnContext(ctx, "guard check failed open",
			"check", check,
			"store_unreachable", errors.Is(err, sentinel.ErrUnavailable),
			"error", err,
		)
	}
}

// SetSessionCookie installs the session cookie after login. Exposed for the
// auth handlers so cookie attributes stay in one place.
func (g *Guard) SetSessionCookie(w http.ResponseWriter, session *authmodels.Session) {
	g.setSessionCookie(w, session)
}

// ClearSessionCookie expires the session cookie on logout.
func (g *Guard) ClearSessionCookie(w http.ResponseWriter) {
	g.clearSessionCookie(w)
}

func (g *Guard) setSessionCookie(w http.ResponseWriter, session *authmodels.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (g *Guard) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}
