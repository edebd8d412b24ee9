// Package models holds the guest-account and session types shared by the
// auth service, the session stores, and the session integrity monitor.
package models

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"

	"github.com/mssola/useragent"
)

// User is a guest account. PasswordHash is a bcrypt hash; the clear-text
// password never leaves the auth service.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash []byte
	IsStaff      bool
	CreatedAt    time.Time
}

// Session is a server-side login session. BoundIP and BoundUAHash pin the
// session to the client fingerprint captured at creation; the integrity
// monitor compares every later request against them.
type Session struct {
	ID            string
	UserID        string
	Email         string
	IsStaff       bool
	BoundIP       string
	BoundUAHash   string
	DeviceName    string
	CreatedAt     time.Time
	LastRotatedAt time.Time
	ExpiresAt     time.Time
}

// Expired reports whether the session has passed its absolute lifetime.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// DueForRotation reports whether the session identifier has outlived the
// rotation interval.
func (s *Session) DueForRotation(now time.Time, interval time.Duration) bool {
	if interval <= 0 {
		return false
	}
	return now.Sub(s.LastRotatedAt) >= interval
}

// HashUserAgent derives the stored user-agent fingerprint. Hashing keeps the
// raw header out of the session store; comparison still works because the
// same input always produces the same digest.
func HashUserAgent(rawUA string) string {
	sum := sha256.Sum256([]byte(rawUA))
	return hex.EncodeToString(sum[:])
}

// FingerprintsMatch compares a stored fingerprint against a freshly computed
// one in constant time.
func FingerprintsMatch(stored, current string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(current)) == 1
}

// DeviceDisplayName renders a human-readable "Browser on OS" label for the
// account security page, e.g. "Chrome on macOS".
func DeviceDisplayName(rawUA string) string {
	if rawUA == "" {
		return "Unknown Device"
	}

	ua := useragent.New(rawUA)
	browser, _ := ua.Browser()
	os := ua.OS()

	if ua.Mobile() {
		if platform := ua.Platform(); platform != "" {
			return strings.TrimSpace(browser + " on " + platform)
		}
	}

	if browser == "" {
		browser = "Unknown Browser"
	}
	if os == "" {
		os = "Unknown OS"
	}
	return strings.TrimSpace(browser + " on " + os)
}
