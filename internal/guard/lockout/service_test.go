package lockout

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"stayguard/internal/guard/config"
	"stayguard/internal/guard/models"
	"stayguard/internal/guard/store"
	"stayguard/pkg/requestcontext"
)

type LockoutServiceSuite struct {
	suite.Suite
	store   *store.MemoryStore
	service *Service
	now     time.Time
}

func TestLockoutServiceSuite(t *testing.T) {
	suite.Run(t, new(LockoutServiceSuite))
}

func (s *LockoutServiceSuite) SetupTest() {
	s.now = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	s.store = store.NewMemoryStore().WithClock(func() time.Time { return s.now })

	cfg := config.Default().Lockout
	var err error
	s.service, err = New(
		s.store,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithConfig(&cfg),
		WithClock(func() time.Time { return s.now }),
	)
	s.Require().NoError(err)
}

func (s *LockoutServiceSuite) TestRequiresStore() {
	_, err := New(nil)
	s.Error(err)
}

func (s *LockoutServiceSuite) TestFreshClientIsNotLocked() {
	entry, err := s.service.Check(context.Background(), "1.2.3.4")
	s.Require().NoError(err)
	s.Nil(entry)
}

// Five failures within the observation window trigger a 15 minute block;
// four do not.
func (s *LockoutServiceSuite) TestThresholdTriggersBlock() {
	ctx := context.Background()

	for i := range 4 {
		s.Require().NoError(s.service.RecordFailure(ctx, "1.2.3.4"))
		entry, err := s.service.Check(ctx, "1.2.3.4")
		s.Require().NoError(err)
		s.Nil(entry, "failure %d of 4 must not lock", i+1)
	}

	s.Require().NoError(s.service.RecordFailure(ctx, "1.2.3.4"))

	entry, err := s.service.Check(ctx, "1.2.3.4")
	s.Require().NoError(err)
	s.Require().NotNil(entry)
	s.Equal(models.ReasonLocked, entry.Reason)
	s.LessOrEqual(entry.Remaining(s.now), 15*time.Minute)
}

func (s *LockoutServiceSuite) TestBlockExpiresAfterDuration() {
	ctx := context.Background()

	for range 5 {
		s.Require().NoError(s.service.RecordFailure(ctx, "1.2.3.4"))
	}

	s.now = s.now.Add(15*time.Minute + time.Second)
	entry, err := s.service.Check(ctx, "1.2.3.4")
	s.Require().NoError(err)
	s.Nil(entry, "lazy expiry: a lapsed block reads as absent")
}

func (s *LockoutServiceSuite) TestWindowElapseForgetsFailures() {
	ctx := context.Background()

	for range 4 {
		s.Require().NoError(s.service.RecordFailure(ctx, "1.2.3.4"))
	}

	// Past the observation window the counter restarts, so one more failure
	// is failure #1, not #5.
	s.now = s.now.Add(5*time.Minute + time.Second)
	s.Require().NoError(s.service.RecordFailure(ctx, "1.2.3.4"))

	entry, err := s.service.Check(ctx, "1.2.3.4")
	s.Require().NoError(err)
	s.Nil(entry)
}

// Check is idempotent: calling it repeatedly must not move the failure
// counter.
func (s *LockoutServiceSuite) TestCheckDoesNotMutateCounters() {
	ctx := context.Background()

	s.Require().NoError(s.service.RecordFailure(ctx, "1.2.3.4"))
	for range 10 {
		_, err := s.service.Check(ctx, "1.2.3.4")
		s.Require().NoError(err)
	}

	count, err := s.store.Peek(ctx, models.NewFailureKey("1.2.3.4").String())
	s.Require().NoError(err)
	s.Equal(int64(1), count)
}

func (s *LockoutServiceSuite) TestClearResetsFailuresAndBlock() {
	ctx := context.Background()

	for range 5 {
		s.Require().NoError(s.service.RecordFailure(ctx, "1.2.3.4"))
	}
	s.Require().NoError(s.service.Clear(ctx, "1.2.3.4"))

	entry, err := s.service.Check(ctx, "1.2.3.4")
	s.Require().NoError(err)
	s.Nil(entry)

	count, err := s.store.Peek(ctx, models.NewFailureKey("1.2.3.4").String())
	s.Require().NoError(err)
	s.Zero(count)
}

// Lockout audit events name the full identity, the endpoint class, and the
// request path, so staff can feed the identity straight into the block
// inspection tooling.
func (s *LockoutServiceSuite) TestAuditEventsCarryIdentityClassAndPath() {
	var buf bytes.Buffer
	cfg := config.Default().Lockout
	svc, err := New(
		s.store,
		WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))),
		WithConfig(&cfg),
		WithClock(func() time.Time { return s.now }),
	)
	s.Require().NoError(err)

	ctx := requestcontext.WithPath(context.Background(), "/accounts/login")
	for range 5 {
		s.Require().NoError(svc.RecordFailure(ctx, "203.0.113.45"))
	}

	triggered := buf.String()
	s.Contains(triggered, `"msg":"lockout_triggered"`)
	s.Contains(triggered, `"identifier":"203.0.113.45"`)
	s.Contains(triggered, `"endpoint_class":"auth"`)
	s.Contains(triggered, `"reason":"locked"`)
	s.Contains(triggered, `"path":"/accounts/login"`)

	buf.Reset()
	entry, err := svc.Check(ctx, "203.0.113.45")
	s.Require().NoError(err)
	s.Require().NotNil(entry)

	enforced := buf.String()
	s.Contains(enforced, `"msg":"lockout_enforced"`)
	s.Contains(enforced, `"endpoint_class":"auth"`)
	s.Contains(enforced, `"path":"/accounts/login"`)
}

func (s *LockoutServiceSuite) TestIdentitiesArePartitioned() {
	ctx := context.Background()

	for range 5 {
		s.Require().NoError(s.service.RecordFailure(ctx, "1.2.3.4"))
	}

	entry, err := s.service.Check(ctx, "5.6.7.8")
	s.Require().NoError(err)
	s.Nil(entry, "a lockout must never spill over to another identity")
}
