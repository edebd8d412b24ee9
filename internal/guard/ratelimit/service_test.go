package ratelimit

import (
	"bytes"
	"context"
	"errors"
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

type RateLimitServiceSuite struct {
	suite.Suite
	store   *store.MemoryStore
	service *Service
	now     time.Time
}

func TestRateLimitServiceSuite(t *testing.T) {
	suite.Run(t, new(RateLimitServiceSuite))
}

func (s *RateLimitServiceSuite) SetupTest() {
	s.now = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	s.store = store.NewMemoryStore().WithClock(func() time.Time { return s.now })

	var err error
	s.service, err = New(
		s.store,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithConfig(config.Default()),
	)
	s.Require().NoError(err)
}

func (s *RateLimitServiceSuite) TestRequiresStore() {
	_, err := New(nil)
	s.Error(err)
}

// The N-th request within the window is allowed; the (N+1)-th is denied with
// a retry hint close to the remaining window.
func (s *RateLimitServiceSuite) TestLimitBoundary() {
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		result, err := s.service.Check(ctx, "1.2.3.4", models.ClassCheckout)
		s.Require().NoError(err)
		s.True(result.Allowed, "request %d of 10 must be allowed", i)
		s.Equal(10-i, result.Remaining)
	}

	result, err := s.service.Check(ctx, "1.2.3.4", models.ClassCheckout)
	s.Require().NoError(err)
	s.False(result.Allowed)
	s.Equal(models.ReasonRateLimited, result.Verdict().Reason)
	s.Equal(60, result.RetryAfter, "retry hint is the remaining window")
}

func (s *RateLimitServiceSuite) TestWindowElapseAdmitsAgain() {
	ctx := context.Background()

	for range 11 {
		_, err := s.service.Check(ctx, "1.2.3.4", models.ClassCheckout)
		s.Require().NoError(err)
	}

	s.now = s.now.Add(time.Minute)
	result, err := s.service.Check(ctx, "1.2.3.4", models.ClassCheckout)
	s.Require().NoError(err)
	s.True(result.Allowed, "a fresh window admits the client again")
}

func (s *RateLimitServiceSuite) TestClientsAndClassesArePartitioned() {
	ctx := context.Background()

	for range 6 {
		_, err := s.service.Check(ctx, "1.2.3.4", models.ClassAuth)
		s.Require().NoError(err)
	}

	// Same class, other client: unaffected.
	result, err := s.service.Check(ctx, "5.6.7.8", models.ClassAuth)
	s.Require().NoError(err)
	s.True(result.Allowed)

	// Same client, other class: unaffected.
	result, err = s.service.Check(ctx, "1.2.3.4", models.ClassSearch)
	s.Require().NoError(err)
	s.True(result.Allowed)
}

func (s *RateLimitServiceSuite) TestUnclassifiedIsUnrestricted() {
	ctx := context.Background()

	for range 200 {
		result, err := s.service.Check(ctx, "1.2.3.4", models.ClassDefault)
		s.Require().NoError(err)
		s.True(result.Allowed)
	}

	count, err := s.store.Peek(ctx, models.NewRateKey("1.2.3.4", models.ClassDefault).String())
	s.Require().NoError(err)
	s.Zero(count, "unrestricted classes must not touch the store")
}

// The exceeded event names the full identity, the class, the reason, and the
// request path it happened on.
func (s *RateLimitServiceSuite) TestExceededAuditEventCarriesIdentityAndPath() {
	var buf bytes.Buffer
	svc, err := New(
		s.store,
		WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))),
		WithConfig(config.Default()),
	)
	s.Require().NoError(err)

	ctx := requestcontext.WithPath(context.Background(), "/checkout/session")
	for range 11 {
		_, err := svc.Check(ctx, "203.0.113.45", models.ClassCheckout)
		s.Require().NoError(err)
	}

	event := buf.String()
	s.Contains(event, `"msg":"rate_limit_exceeded"`)
	s.Contains(event, `"identifier":"203.0.113.45"`)
	s.Contains(event, `"endpoint_class":"checkout"`)
	s.Contains(event, `"reason":"rate_limited"`)
	s.Contains(event, `"path":"/checkout/session"`)
}

type failingCounterStore struct{}

func (failingCounterStore) IncrementAndGet(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("connection refused")
}
func (failingCounterStore) Peek(context.Context, string) (int64, error) {
	return 0, errors.New("connection refused")
}
func (failingCounterStore) Clear(context.Context, string) error {
	return errors.New("connection refused")
}

func (s *RateLimitServiceSuite) TestStoreErrorSurfacesToCaller() {
	svc, err := New(failingCounterStore{}, WithConfig(config.Default()))
	s.Require().NoError(err)

	_, err = svc.Check(context.Background(), "1.2.3.4", models.ClassAuth)
	s.Error(err, "the orchestrator decides fail-open, not the service")
}
