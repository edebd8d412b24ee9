// Package service implements guest signup, login, and logout.
//
// The service is the guard's business-logic callback for authentication
// outcomes: every confirmed credential failure is reported to the
// FailureReporter keyed by client IP, and every success clears the client's
// failure history. The guard itself never sees passwords.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	authmodels "stayguard/internal/auth/models"
	"stayguard/internal/auth/store"
	guardconfig "stayguard/internal/guard/config"
	"stayguard/internal/guard/observability"
	domainerrors "stayguard/pkg/domain-errors"
	"stayguard/pkg/requestcontext"
	"stayguard/pkg/sentinel"
)

const minPasswordLength = 8

// dummyHash is a bcrypt hash of an unguessable value, compared against when
// the account does not exist so unknown-email and wrong-password attempts
// take the same time.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// FailureReporter receives authentication outcomes keyed by client identity.
// Satisfied by the brute-force lockout service.
type FailureReporter interface {
	RecordFailure(ctx context.Context, identity string) error
	Clear(ctx context.Context, identity string) error
}

// Service owns account and session lifecycles.
type Service struct {
	users    store.UserStore
	sessions store.SessionStore
	reporter FailureReporter
	session  guardconfig.SessionConfig
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Service instance.
type Option func(*Service)

// WithLogger sets the structured logger for audit logging.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithFailureReporter wires authentication outcomes into the lockout service.
func WithFailureReporter(r FailureReporter) Option {
	return func(s *Service) {
		s.reporter = r
	}
}

// WithSessionConfig overrides the default session lifetime parameters.
func WithSessionConfig(cfg guardconfig.SessionConfig) Option {
	return func(s *Service) {
		s.session = cfg
	}
}

// WithClock replaces the time source in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates the auth service. Both stores are required.
func New(users store.UserStore, sessions store.SessionStore, opts ...Option) (*Service, error) {
	if users == nil || sessions == nil {
		return nil, errors.New("user and session stores are required")
	}

	svc := &Service{
		users:    users,
		sessions: sessions,
		session:  guardconfig.Default().Session,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Signup registers a guest account. The password is bcrypt-hashed before it
// touches the store.
func (s *Service) Signup(ctx context.Context, email, name, password string) (*authmodels.User, error) {
	if email == "" || name == "" {
		return nil, domainerrors.New(domainerrors.CodeInvalidInput, "email and name are required")
	}
	if len(password) < minPasswordLength {
		return nil, domainerrors.New(domainerrors.CodeInvalidInput, "password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "hash password")
	}

	user := &authmodels.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return nil, domainerrors.Wrap(err, domainerrors.CodeConflict, "email already registered")
		}
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "create user")
	}

	observability.LogAudit(ctx, s.logger, "guest_signed_up", "user_id", user.ID)
	return user, nil
}

// Login verifies credentials and opens a session bound to the caller's
// client fingerprint. Failures are reported to the lockout service before
// the error returns; successes clear the failure history.
func (s *Service) Login(ctx context.Context, email, password string) (*authmodels.Session, error) {
	identity := requestcontext.ClientIP(ctx)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			// Burn a bcrypt comparison anyway so response timing does not
			// reveal which emails have accounts.
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			s.reportFailure(ctx, identity)
			return nil, domainerrors.New(domainerrors.CodeUnauthorized, "invalid email or password")
		}
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "look up user")
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		s.reportFailure(ctx, identity)
		return nil, domainerrors.New(domainerrors.CodeUnauthorized, "invalid email or password")
	}

	if s.reporter != nil {
		if err := s.reporter.Clear(ctx, identity); err != nil {
			// Non-fatal: the failure counter expires on its own.
			s.logWarn(ctx, "clear failure history", err)
		}
	}

	session, err := s.openSession(ctx, user)
	if err != nil {
		return nil, err
	}

	observability.LogAudit(ctx, s.logger, "guest_logged_in",
		"user_id", user.ID,
		"session_device", session.DeviceName,
		"client_ip", session.BoundIP,
	)
	return session, nil
}

// Logout deletes the session. Deleting an already-absent session is a no-op,
// so logout is idempotent.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return domainerrors.Wrap(err, domainerrors.CodeInternal, "delete session")
	}
	observability.LogAudit(ctx, s.logger, "guest_logged_out")
	return nil
}

func (s *Service) openSession(ctx context.Context, user *authmodels.User) (*authmodels.Session, error) {
	now := s.now()
	rawUA := requestcontext.UserAgent(ctx)

	session := &authmodels.Session{
		ID:            uuid.New().String(),
		UserID:        user.ID,
		Email:         user.Email,
		IsStaff:       user.IsStaff,
		BoundIP:       requestcontext.ClientIP(ctx),
		BoundUAHash:   authmodels.HashUserAgent(rawUA),
		DeviceName:    authmodels.DeviceDisplayName(rawUA),
		CreatedAt:     now,
		LastRotatedAt: now,
		ExpiresAt:     now.Add(s.session.TTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "create session")
	}
	return session, nil
}

func (s *Service) reportFailure(ctx context.Context, identity string) {
	if s.reporter == nil {
		return
	}
	if err := s.reporter.RecordFailure(ctx, identity); err != nil {
		s.logWarn(ctx, "record auth failure", err)
	}
}

func (s *Service) logWarn(ctx context.Context, msg string, err error) {
	if s.logger != nil {
		s.logger.WarnContext(ctx, msg, "error", err)
	}
}
