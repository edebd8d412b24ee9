// Package ratelimit enforces per-client fixed-window request limits.
//
// Each endpoint class has a configured (max_requests, window) pair; the check
// increments the client's counter for that class and denies once the count
// exceeds the limit. Window boundaries are abrupt: a burst at window end
// followed by a burst at window start is accepted. That trade-off buys a
// single-round-trip counter and is intentional.
//
// Usage:
//
//	svc, _ := ratelimit.New(counterStore, ratelimit.WithConfig(cfg))
//	result, err := svc.Check(ctx, clientIP, models.ClassCheckout)
//	if err != nil {
//	    // counter store unavailable: callers fail open
//	}
//	if !result.Allowed {
//	    // 429 with Retry-After
//	}
package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"stayguard/internal/guard/config"
	"stayguard/internal/guard/metrics"
	"stayguard/internal/guard/models"
	"stayguard/internal/guard/observability"
	"stayguard/internal/guard/store"
)

// Service checks fixed-window rate limits. Thread-safe for concurrent use by
// HTTP middleware; all shared state lives in the counter store.
type Service struct {
	counters store.CounterStore
	config   *config.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Service instance.
type Option func(*Service)

// WithLogger sets the structured logger for audit logging.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithConfig overrides the default guard configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		s.config = cfg
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New creates the rate limiting service. The counter store is required.
func New(counters store.CounterStore, opts ...Option) (*Service, error) {
	if counters == nil {
		return nil, errors.New("counter store is required")
	}

	svc := &Service{
		counters: counters,
		config:   config.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Check increments the client's counter for the endpoint class and reports
// whether the request is within the configured limit. Classes without a
// configured limit are unrestricted and return an allowing result without
// touching the store.
//
// A store error is returned as-is; the orchestrator fails open on it (denying
// all traffic on a transient store blip would be a worse outage than briefly
// under-enforcing).
func (s *Service) Check(ctx context.Context, identity string, class models.EndpointClass) (*models.RateLimitResult, error) {
	limit, ok := s.config.LimitFor(class)
	if !ok {
		return &models.RateLimitResult{Allowed: true}, nil
	}

	key := models.NewRateKey(identity, class)
	count, ttlRemaining, err := s.counters.IncrementAndGet(ctx, key.String(), limit.Window)
	if err != nil {
		return nil, err
	}

	result := &models.RateLimitResult{
		Allowed:   count <= int64(limit.MaxRequests),
		Limit:     limit.MaxRequests,
		Remaining: remaining(limit.MaxRequests, count),
		ResetAt:   time.Now().Add(ttlRemaining),
	}
	if !result.Allowed {
		result.RetryAfter = retryAfterSeconds(ttlRemaining)
		observability.LogAudit(ctx, s.logger, "rate_limit_exceeded",
			"identifier", identity,
			"endpoint_class", class,
			"reason", models.ReasonRateLimited,
			"limit", limit.MaxRequests,
			"window_seconds", int(limit.Window.Seconds()),
			"retry_after", result.RetryAfter,
		)
	}

	return result, nil
}

func remaining(limit int, count int64) int {
	if r := int64(limit) - count; r > 0 {
		return int(r)
	}
	return 0
}

// retryAfterSeconds rounds the window remainder up so clients never retry a
// second early.
func retryAfterSeconds(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	secs := int((ttl + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
