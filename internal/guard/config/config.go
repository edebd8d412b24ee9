package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"stayguard/internal/guard/models"
)

// Limit defines fixed-window rate limit parameters for an endpoint class.
type Limit struct {
	MaxRequests int
	Window      time.Duration
}

// LockoutConfig defines brute-force lockout parameters for auth-adjacent
// endpoints.
type LockoutConfig struct {
	Threshold         int           // failures within the observation window that trigger a block
	ObservationWindow time.Duration // failure counter window
	BlockDuration     time.Duration // fixed block length once triggered
}

// SessionConfig defines session integrity parameters.
type SessionConfig struct {
	// InvalidateOnIPChange and InvalidateOnUAChange toggle enforcement.
	// Mismatches are always logged; when a toggle is off the request
	// proceeds, because IP instability behind shared proxies and mobile
	// networks produces legitimate false positives.
	InvalidateOnIPChange bool
	InvalidateOnUAChange bool
	RotationInterval     time.Duration
	TTL                  time.Duration
}

// RequestConfig defines request-shape limits checked before any other guard
// stage.
type RequestConfig struct {
	MaxURLLength      int
	MaxBodyBytes      int64
	BlockedUserAgents []string // matched as lowercase substrings
}

// Config holds the complete guard configuration.
type Config struct {
	Limits  map[models.EndpointClass]Limit
	Lockout LockoutConfig
	Session SessionConfig
	Request RequestConfig
}

// Default returns the guard defaults: login 5 req/5 min, checkout 10 req/min,
// search 60 req/min, unclassified unrestricted; 5 failures in 5 min lock for
// 15 min; sessions rotate every 30 min.
func Default() *Config {
	return &Config{
		Limits: map[models.EndpointClass]Limit{
			models.ClassAuth:     {MaxRequests: 5, Window: 5 * time.Minute},
			models.ClassCheckout: {MaxRequests: 10, Window: time.Minute},
			models.ClassSearch:   {MaxRequests: 60, Window: time.Minute},
		},
		Lockout: LockoutConfig{
			Threshold:         5,
			ObservationWindow: 5 * time.Minute,
			BlockDuration:     15 * time.Minute,
		},
		Session: SessionConfig{
			InvalidateOnIPChange: false,
			InvalidateOnUAChange: false,
			RotationInterval:     30 * time.Minute,
			TTL:                  24 * time.Hour,
		},
		Request: RequestConfig{
			MaxURLLength: 2048,
			MaxBodyBytes: 10 << 20, // 10 MiB
			BlockedUserAgents: []string{
				"sqlmap", "nikto", "nessus", "openvas",
				"w3af", "nmap", "masscan", "zgrab",
			},
		},
	}
}

// FromEnv returns Default overridden by environment variables.
//
// Recognized options:
//
//	GUARD_LIMIT_AUTH / _CHECKOUT / _SEARCH / _DEFAULT  "count/window", e.g. "5/5m"
//	GUARD_LOCKOUT_THRESHOLD, GUARD_LOCKOUT_WINDOW, GUARD_LOCKOUT_BLOCK_DURATION
//	SESSION_INVALIDATE_ON_IP_CHANGE, SESSION_INVALIDATE_ON_UA_CHANGE  "true"/"false"
//	GUARD_SESSION_ROTATION_INTERVAL, GUARD_SESSION_TTL
//	GUARD_MAX_URL_LENGTH, GUARD_MAX_BODY_BYTES
//	GUARD_BLOCKED_USER_AGENTS  comma-separated substrings
func FromEnv() *Config {
	cfg := Default()

	for class, env := range map[models.EndpointClass]string{
		models.ClassAuth:     "GUARD_LIMIT_AUTH",
		models.ClassCheckout: "GUARD_LIMIT_CHECKOUT",
		models.ClassSearch:   "GUARD_LIMIT_SEARCH",
		models.ClassDefault:  "GUARD_LIMIT_DEFAULT",
	} {
		if raw := os.Getenv(env); raw != "" {
			if limit, err := ParseLimit(raw); err == nil {
				cfg.Limits[class] = limit
			}
		}
	}

	if n, ok := envInt("GUARD_LOCKOUT_THRESHOLD"); ok && n > 0 {
		cfg.Lockout.Threshold = n
	}
	if d, ok := envDuration("GUARD_LOCKOUT_WINDOW"); ok {
		cfg.Lockout.ObservationWindow = d
	}
	if d, ok := envDuration("GUARD_LOCKOUT_BLOCK_DURATION"); ok {
		cfg.Lockout.BlockDuration = d
	}

	cfg.Session.InvalidateOnIPChange = envBool("SESSION_INVALIDATE_ON_IP_CHANGE", cfg.Session.InvalidateOnIPChange)
	cfg.Session.InvalidateOnUAChange = envBool("SESSION_INVALIDATE_ON_UA_CHANGE", cfg.Session.InvalidateOnUAChange)
	if d, ok := envDuration("GUARD_SESSION_ROTATION_INTERVAL"); ok {
		cfg.Session.RotationInterval = d
	}
	if d, ok := envDuration("GUARD_SESSION_TTL"); ok {
		cfg.Session.TTL = d
	}

	if n, ok := envInt("GUARD_MAX_URL_LENGTH"); ok && n > 0 {
		cfg.Request.MaxURLLength = n
	}
	if n, ok := envInt("GUARD_MAX_BODY_BYTES"); ok && n > 0 {
		cfg.Request.MaxBodyBytes = int64(n)
	}
	if raw := os.Getenv("GUARD_BLOCKED_USER_AGENTS"); raw != "" {
		var agents []string
		for _, a := range strings.Split(raw, ",") {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
				agents = append(agents, a)
			}
		}
		cfg.Request.BlockedUserAgents = agents
	}

	return cfg
}

// LimitFor returns the rate limit for an endpoint class. The second return
// value is false when the class is unrestricted by the guard; throttling for
// unclassified routes, if any, belongs to coarser infrastructure upstream.
func (c *Config) LimitFor(class models.EndpointClass) (Limit, bool) {
	limit, ok := c.Limits[class]
	if !ok || limit.MaxRequests <= 0 {
		return Limit{}, false
	}
	return limit, true
}

// ParseLimit parses the "count/window" form, e.g. "10/1m".
func ParseLimit(raw string) (Limit, error) {
	count, window, ok := strings.Cut(raw, "/")
	if !ok {
		return Limit{}, fmt.Errorf("limit %q: want count/window", raw)
	}
	n, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil {
		return Limit{}, fmt.Errorf("limit %q: %w", raw, err)
	}
	d, err := time.ParseDuration(strings.TrimSpace(window))
	if err != nil {
		return Limit{}, fmt.Errorf("limit %q: %w", raw, err)
	}
	if n < 0 || d <= 0 {
		return Limit{}, fmt.Errorf("limit %q: out of range", raw)
	}
	return Limit{MaxRequests: n, Window: d}, nil
}

func envInt(name string) (int, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envDuration(name string) (time.Duration, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

func envBool(name string, fallback bool) bool {
	switch strings.ToLower(os.Getenv(name)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return fallback
}
