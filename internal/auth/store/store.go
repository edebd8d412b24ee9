// Package store persists guest accounts and login sessions.
//
// Error contract, shared by every implementation:
//   - sentinel.ErrNotFound (wrapped) when the entity does not exist
//   - sentinel.ErrInvalidState (wrapped) on uniqueness violations
//   - wrapped infrastructure errors otherwise
package store

import (
	"context"

	"stayguard/internal/auth/models"
)

// UserStore persists guest accounts.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, userID string) (*models.User, error)
}

// SessionStore persists login sessions keyed by session ID.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, sessionID string) (*models.Session, error)

	// Replace atomically installs a session under its new ID and removes the
	// old one. Used by rotation so a crash never leaves both IDs live.
	Replace(ctx context.Context, oldID string, session *models.Session) error

	Delete(ctx context.Context, sessionID string) error
	DeleteByUser(ctx context.Context, userID string) error
}
