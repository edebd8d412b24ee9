// Package sessionmon watches authenticated sessions for fingerprint drift
// and rotates session identifiers on a fixed cadence.
//
// A fingerprint mismatch (client IP or user-agent differing from the values
// bound at login) is always logged and counted. Whether it also invalidates
// the session is configuration: shared proxies and mobile carriers re-assign
// IPs legitimately, so enforcement defaults off and operators opt in per
// attribute.
package sessionmon

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	authmodels "stayguard/internal/auth/models"
	authstore "stayguard/internal/auth/store"
	"stayguard/internal/guard/config"
	"stayguard/internal/guard/metrics"
	"stayguard/internal/guard/models"
	"stayguard/internal/guard/observability"
)

// Mismatch attribute labels for metrics and audit events.
const (
	AttributeIP = "ip"
	AttributeUA = "user_agent"
)

// Monitor verifies session fingerprints and drives ID rotation. Stateless
// apart from the session store; safe for concurrent use.
type Monitor struct {
	sessions authstore.SessionStore
	config   *config.SessionConfig
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option configures a Monitor instance.
type Option func(*Monitor)

// WithLogger sets the structured logger for audit logging.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// WithConfig overrides the default session integrity configuration.
func WithConfig(cfg *config.SessionConfig) Option {
	return func(m *Monitor) {
		m.config = cfg
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Monitor) {
		m.metrics = mx
	}
}

// WithClock replaces the time source in tests.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// New creates the session integrity monitor. The session store is required.
func New(sessions authstore.SessionStore, opts ...Option) (*Monitor, error) {
	if sessions == nil {
		return nil, errors.New("session store is required")
	}

	defaultCfg := config.Default().Session
	mon := &Monitor{
		sessions: sessions,
		config:   &defaultCfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(mon)
	}
	return mon, nil
}

// Verify compares the request's client fingerprint against the values bound
// to the session at login. Mismatches are always logged and counted; the
// session is invalidated only for attributes whose enforcement toggle is on.
func (m *Monitor) Verify(ctx context.Context, session *authmodels.Session, clientIP, rawUA string) (models.Verdict, error) {
	ipMatches := session.BoundIP == clientIP
	uaMatches := authmodels.FingerprintsMatch(session.BoundUAHash, authmodels.HashUserAgent(rawUA))

	if !ipMatches {
		m.metrics.RecordSessionMismatch(AttributeIP)
		observability.LogAudit(ctx, m.logger, "session_fingerprint_mismatch",
			"attribute", AttributeIP,
			"bound", session.BoundIP,
			"observed", clientIP,
			"enforced", m.config.InvalidateOnIPChange,
		)
	}
	if !uaMatches {
		m.metrics.RecordSessionMismatch(AttributeUA)
		observability.LogAudit(ctx, m.logger, "session_fingerprint_mismatch",
			"attribute", AttributeUA,
			"device", session.DeviceName,
			"enforced", m.config.InvalidateOnUAChange,
		)
	}

	enforce := (!ipMatches && m.config.InvalidateOnIPChange) ||
		(!uaMatches && m.config.InvalidateOnUAChange)
	if !enforce {
		return models.Allow(), nil
	}

	// A fingerprint that fails an enforced check means the cookie may be in
	// someone else's hands, and a hijacker who has one of the user's cookies
	// may hold others. Retire every session the user has.
	if err := m.sessions.DeleteByUser(ctx, session.UserID); err != nil {
		return models.Allow(), err
	}
	observability.LogAudit(ctx, m.logger, "session_invalidated",
		"user_id", session.UserID,
		"scope", "all_user_sessions",
		"reason", models.ReasonSessionAnomaly,
	)
	return models.Deny(models.ReasonSessionAnomaly), nil
}

// MaybeRotate replaces the session identifier once it has outlived the
// rotation interval, re-binding the fingerprint to the current client. The
// session's authenticated state and absolute expiry carry over unchanged;
// only the ID a stolen cookie would capture is retired.
//
// Returns the session to continue with and whether rotation happened.
func (m *Monitor) MaybeRotate(ctx context.Context, session *authmodels.Session, clientIP, rawUA string) (*authmodels.Session, bool, error) {
	now := m.now()
	if !session.DueForRotation(now, m.config.RotationInterval) {
		return session, false, nil
	}

	rotated := *session
	rotated.ID = uuid.New().String()
	rotated.BoundIP = clientIP
	rotated.BoundUAHash = authmodels.HashUserAgent(rawUA)
	rotated.DeviceName = authmodels.DeviceDisplayName(rawUA)
	rotated.LastRotatedAt = now

	if err := m.sessions.Replace(ctx, session.ID, &rotated); err != nil {
		return session, false, err
	}

	m.metrics.RecordSessionRotation()
	observability.LogAudit(ctx, m.logger, "session_rotated",
		"user_id", session.UserID,
		"interval_seconds", int(m.config.RotationInterval.Seconds()),
	)
	return &rotated, true, nil
}
