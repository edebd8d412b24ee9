package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"stayguard/internal/auth/models"
	"stayguard/pkg/sentinel"
)

const (
	sessionKeyPrefix = "session:"

	// fallback when a stored session somehow carries no usable expiry
	defaultSessionTTL = 24 * time.Hour
)

// sessionJSON is the wire form of a Session. Explicit tags and Unix-nano
// timestamps keep the format stable across releases.
type sessionJSON struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	IsStaff       bool   `json:"is_staff,omitempty"`
	BoundIP       string `json:"bound_ip"`
	BoundUAHash   string `json:"bound_ua_hash"`
	DeviceName    string `json:"device_name"`
	CreatedAt     int64  `json:"created_at"`      // Unix nano
	LastRotatedAt int64  `json:"last_rotated_at"` // Unix nano
	ExpiresAt     int64  `json:"expires_at"`      // Unix nano
}

func sessionToJSON(s *models.Session) *sessionJSON {
	return &sessionJSON{
		ID:            s.ID,
		UserID:        s.UserID,
		Email:         s.Email,
		IsStaff:       s.IsStaff,
		BoundIP:       s.BoundIP,
		BoundUAHash:   s.BoundUAHash,
		DeviceName:    s.DeviceName,
		CreatedAt:     s.CreatedAt.UnixNano(),
		LastRotatedAt: s.LastRotatedAt.UnixNano(),
		ExpiresAt:     s.ExpiresAt.UnixNano(),
	}
}

func sessionFromJSON(j *sessionJSON) *models.Session {
	return &models.Session{
		ID:            j.ID,
		UserID:        j.UserID,
		Email:         j.Email,
		IsStaff:       j.IsStaff,
		BoundIP:       j.BoundIP,
		BoundUAHash:   j.BoundUAHash,
		DeviceName:    j.DeviceName,
		CreatedAt:     time.Unix(0, j.CreatedAt),
		LastRotatedAt: time.Unix(0, j.LastRotatedAt),
		ExpiresAt:     time.Unix(0, j.ExpiresAt),
	}
}

// RedisSessionStore persists sessions in Redis, the recommended backend when
// more than one instance serves traffic. Expiry rides on the key TTL, so
// Redis garbage-collects dead sessions on its own.
type RedisSessionStore struct {
	client redis.Cmdable
}

func NewRedisSessionStore(client redis.Cmdable) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

func sessionTTL(session *models.Session, now time.Time) time.Duration {
	if ttl := session.ExpiresAt.Sub(now); ttl > 0 {
		return ttl
	}
	return defaultSessionTTL
}

func (s *RedisSessionStore) Create(ctx context.Context, session *models.Session) error {
	payload, err := json.Marshal(sessionToJSON(session))
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(session.ID), payload, sessionTTL(session, time.Now())).Err(); err != nil {
		return fmt.Errorf("store session: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *RedisSessionStore) FindByID(ctx context.Context, sessionID string) (*models.Session, error) {
	payload, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w: %w", sentinel.ErrUnavailable, err)
	}

	var j sessionJSON
	if err := json.Unmarshal(payload, &j); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return sessionFromJSON(&j), nil
}

func (s *RedisSessionStore) Replace(ctx context.Context, oldID string, session *models.Session) error {
	payload, err := json.Marshal(sessionToJSON(session))
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	// Write-then-delete in one pipeline: if the delete is lost the old ID
	// still expires on its TTL, whereas delete-then-write could drop the
	// session entirely.
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKey(session.ID), payload, sessionTTL(session, time.Now()))
	pipe.Del(ctx, sessionKey(oldID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replace session: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete session: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

// DeleteByUser scans the session keyspace for the user's sessions. SCAN with
// a prefix match keeps Redis responsive; session counts per deployment are
// small enough that the extra round trips do not matter.
func (s *RedisSessionStore) DeleteByUser(ctx context.Context, userID string) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, sessionKeyPrefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("scan sessions: %w: %w", sentinel.ErrUnavailable, err)
		}

		for _, key := range keys {
			payload, err := s.client.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return fmt.Errorf("load session: %w: %w", sentinel.ErrUnavailable, err)
			}
			var j sessionJSON
			if err := json.Unmarshal(payload, &j); err != nil {
				continue
			}
			if j.UserID == userID {
				if err := s.client.Del(ctx, key).Err(); err != nil {
					return fmt.Errorf("delete session: %w: %w", sentinel.ErrUnavailable, err)
				}
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
