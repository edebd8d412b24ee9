// Package lockout implements brute-force protection for authentication
// endpoints: a failure counter per client identity plus a block list.
//
// Check runs before credentials are evaluated, so a locked-out client costs
// no password hashing and leaks no timing. RecordFailure is called by the
// business-logic callback only after a confirmed authentication failure;
// crossing the threshold creates a fixed-duration block.
package lockout

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

// Service enforces the failure threshold and block duration. Thread-safe;
// all shared state lives in the store.
type Service struct {
	store   store.Store
	config  *config.LockoutConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Service instance.
type Option func(*Service)

// WithLogger sets the structured logger for audit logging.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithConfig overrides the default lockout configuration.
func WithConfig(cfg *config.LockoutConfig) Option {
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

// WithClock replaces the time source in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates the lockout service. The store is required.
func New(st store.Store, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, errors.New("lockout store is required")
	}

	defaultCfg := config.Default().Lockout
	svc := &Service{
		store:  st,
		config: &defaultCfg,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Check returns the live block entry for the client, or nil when the client
// is not locked out. Read-only: it never mutates counters.
func (s *Service) Check(ctx context.Context, identity string) (*models.BlockEntry, error) {
	entry, err := s.store.GetBlock(ctx, models.NewBlockKey(identity).String())
	if err != nil {
		return nil, err
	}
	if !entry.Active(s.now()) {
		return nil, nil
	}

	observability.LogAudit(ctx, s.logger, "lockout_enforced",
		"identifier", identity,
		"endpoint_class", models.ClassAuth,
		"reason", models.ReasonLocked,
		"blocked_until", entry.BlockedUntil,
	)
	return entry, nil
}

// RecordFailure registers a confirmed authentication failure for the client
// identity. Crossing the configured threshold within the observation window
// creates a block and resets the failure counter.
func (s *Service) RecordFailure(ctx context.Context, identity string) error {
	s.metrics.RecordAuthFailure()

	failKey := models.NewFailureKey(identity).String()
	count, _, err := s.store.IncrementAndGet(ctx, failKey, s.config.ObservationWindow)
	if err != nil {
		return err
	}

	observability.LogAudit(ctx, s.logger, "auth_failure_recorded",
		"identifier", identity,
		"endpoint_class", models.ClassAuth,
		"failure_count", count,
		"threshold", s.config.Threshold,
	)

	if count < int64(s.config.Threshold) {
		return nil
	}

	blockKey := models.NewBlockKey(identity).String()
	if err := s.store.SetBlock(ctx, blockKey, s.config.BlockDuration, models.ReasonLocked); err != nil {
		return err
	}
	// The counter expires on its own; clearing it just keeps a client from
	// re-triggering the block the instant the current one lapses.
	if err := s.store.Clear(ctx, failKey); err != nil {
		return err
	}

	s.metrics.RecordLockout()
	observability.LogAudit(ctx, s.logger, "lockout_triggered",
		"identifier", identity,
		"endpoint_class", models.ClassAuth,
		"block_seconds", int(s.config.BlockDuration.Seconds()),
		"reason", models.ReasonLocked,
	)
	return nil
}

// Clear wipes the failure counter and any block for the client identity.
// Called on successful authentication and by staff tooling. Clearing is an
// optimization, not a correctness requirement: both keys expire naturally.
func (s *Service) Clear(ctx context.Context, identity string) error {
	if err := s.store.Clear(ctx, models.NewFailureKey(identity).String()); err != nil {
		return err
	}
	if err := s.store.ClearBlock(ctx, models.NewBlockKey(identity).String()); err != nil {
		return err
	}

	observability.LogAudit(ctx, s.logger, "lockout_cleared",
		"identifier", identity,
	)
	return nil
}
