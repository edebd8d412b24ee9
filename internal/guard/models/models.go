package models

import (
	"time"
)

// EndpointClass names a category of routes sharing one rate-limit policy.
// The class-to-route mapping is configuration: route registration picks the
// class, limits come from guard config.
type EndpointClass string

const (
	// ClassAuth: authentication-adjacent endpoints (login, admin login, signup).
	// The only class subject to brute-force lockout.
	ClassAuth EndpointClass = "auth"
	// ClassCheckout: checkout-session creation against the payment provider.
	ClassCheckout EndpointClass = "checkout"
	// ClassSearch: property search and listing reads.
	ClassSearch EndpointClass = "search"
	// ClassDefault: unclassified routes, unrestricted by the rate limiter.
	ClassDefault EndpointClass = "default"
)

func (c EndpointClass) IsValid() bool {
	switch c {
	case ClassAuth, ClassCheckout, ClassSearch, ClassDefault:
		return true
	}
	return false
}

// DenyReason is the guard's client-facing error taxonomy. All values are
// expected conditions surfaced as verdicts, never fatal errors.
type DenyReason string

const (
	ReasonRateLimited      DenyReason = "rate_limited"
	ReasonLocked           DenyReason = "locked"
	ReasonSuspiciousInput  DenyReason = "suspicious_input"
	ReasonSessionAnomaly   DenyReason = "session_anomaly"
	ReasonMalformedRequest DenyReason = "malformed_request"
)

// Verdict is the guard's per-request output. Computed fresh per request,
// never persisted.
type Verdict struct {
	Allowed    bool
	Reason     DenyReason
	RetryAfter time.Duration // only meaningful for rate_limited and locked
}

// Allow returns the permissive verdict.
func Allow() Verdict {
	return Verdict{Allowed: true}
}

// Deny returns a terminal verdict with the given reason.
func Deny(reason DenyReason) Verdict {
	return Verdict{Allowed: false, Reason: reason}
}

// DenyFor returns a terminal verdict carrying a retry hint.
func DenyFor(reason DenyReason, retryAfter time.Duration) Verdict {
	if retryAfter < 0 {
		retryAfter = 0
	}
	return Verdict{Allowed: false, Reason: reason, RetryAfter: retryAfter}
}

// RateLimitResult reports the outcome of a fixed-window counter check,
// including the header values the HTTP layer surfaces.
type RateLimitResult struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}

// Verdict converts the result into the guard's verdict type.
func (r *RateLimitResult) Verdict() Verdict {
	if r.Allowed {
		return Allow()
	}
	return DenyFor(ReasonRateLimited, time.Duration(r.RetryAfter)*time.Second)
}

// BlockEntry records an active brute-force block for a client identity.
// Expiry is lazy: a stale entry is treated as absent, no explicit deletion
// is required.
type BlockEntry struct {
	Key          string     `json:"key"`
	Reason       DenyReason `json:"reason"`
	BlockedUntil time.Time  `json:"blocked_until"`
}

// Active reports whether the block still applies at the given instant.
func (b *BlockEntry) Active(now time.Time) bool {
	return b != nil && now.Before(b.BlockedUntil)
}

// Remaining returns the time left on the block, floored at zero.
func (b *BlockEntry) Remaining(now time.Time) time.Duration {
	if b == nil {
		return 0
	}
	if d := b.BlockedUntil.Sub(now); d > 0 {
		return d
	}
	return 0
}
