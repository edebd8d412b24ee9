package config

import (
	"os"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	AdminToken      string
	RedisURL        string
	TrustedProxies  []string
	ShutdownTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("STAYGUARD_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	adminToken := os.Getenv("STAYGUARD_ADMIN_TOKEN")

	var proxies []string
	if raw := os.Getenv("STAYGUARD_TRUSTED_PROXIES"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				proxies = append(proxies, p)
			}
		}
	}

	shutdown := 10 * time.Second
	if raw := os.Getenv("STAYGUARD_SHUTDOWN_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			shutdown = d
		}
	}

	return Server{
		Addr:            addr,
		AdminToken:      adminToken,
		RedisURL:        os.Getenv("STAYGUARD_REDIS_URL"),
		TrustedProxies:  proxies,
		ShutdownTimeout: shutdown,
	}
}

// RedisConfig holds connection tuning for the shared counter/session backend.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisConfig returns pool settings suitable for a per-request
// read-modify-write workload.
func DefaultRedisConfig(url string) RedisConfig {
	return RedisConfig{
		URL:          url,
		PoolSize:     20,
		MinIdleConns: 2,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	}
}
