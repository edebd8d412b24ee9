// main wires the booking site: stores, guard services, HTTP router, and the
// server lifecycle. Business logic lives in the internal packages.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	authservice "stayguard/internal/auth/service"
	authstore "stayguard/internal/auth/store"
	"stayguard/internal/guard"
	guardconfig "stayguard/internal/guard/config"
	"stayguard/internal/guard/inputscan"
	"stayguard/internal/guard/lockout"
	guardmetrics "stayguard/internal/guard/metrics"
	"stayguard/internal/guard/ratelimit"
	"stayguard/internal/guard/sessionmon"
	guardstore "stayguard/internal/guard/store"
	platformconfig "stayguard/internal/platform/config"
	"stayguard/internal/platform/logger"
	"stayguard/internal/platform/middleware"
	platformredis "stayguard/internal/platform/redis"
	"stayguard/internal/site"
	"stayguard/internal/site/catalog"
)

func main() {
	serverCfg := platformconfig.FromEnv()
	guardCfg := guardconfig.FromEnv()
	log := logger.New()

	log.Info("initializing stayguard",
		"addr", serverCfg.Addr,
		"redis_configured", serverCfg.RedisURL != "",
	)

	redisClient, err := platformredis.New(platformconfig.DefaultRedisConfig(serverCfg.RedisURL))
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}

	var (
		st       guardstore.Store
		sessions authstore.SessionStore
		health   func(context.Context) error
	)
	if redisClient != nil {
		st = guardstore.NewRedisStore(redisClient.Client)
		sessions = authstore.NewRedisSessionStore(redisClient.Client)
		health = redisClient.Health
		defer redisClient.Close()

		go recordPoolStats(redisClient)
	} else {
		// Single-process fallback: counters and sessions are invisible to
		// other instances, so abuse spread across replicas goes unnoticed.
		log.Warn("STAYGUARD_REDIS_URL not set, using in-memory stores; " +
			"do not run more than one instance in this mode")
		st = guardstore.NewMemoryStore()
		sessions = authstore.NewSessionStore()
	}

	metrics := guardmetrics.New()

	scanner := inputscan.New(
		inputscan.WithLogger(log),
		inputscan.WithMetrics(metrics),
	)
	lk, err := lockout.New(st,
		lockout.WithLogger(log),
		lockout.WithConfig(&guardCfg.Lockout),
		lockout.WithMetrics(metrics),
	)
	if err != nil {
		log.Error("init lockout", "error", err)
		os.Exit(1)
	}
	limiter, err := ratelimit.New(st,
		ratelimit.WithLogger(log),
		ratelimit.WithConfig(guardCfg),
		ratelimit.WithMetrics(metrics),
	)
	if err != nil {
		log.Error("init rate limiter", "error", err)
		os.Exit(1)
	}
	monitor, err := sessionmon.New(sessions,
		sessionmon.WithLogger(log),
		sessionmon.WithConfig(&guardCfg.Session),
		sessionmon.WithMetrics(metrics),
	)
	if err != nil {
		log.Error("init session monitor", "error", err)
		os.Exit(1)
	}

	g, err := guard.New(guard.Deps{
		Scanner:  scanner,
		Lockout:  lk,
		Limiter:  limiter,
		Monitor:  monitor,
		Sessions: sessions,
	},
		guard.WithLogger(log),
		guard.WithConfig(guardCfg),
		guard.WithMetrics(metrics),
	)
	if err != nil {
		log.Error("init guard", "error", err)
		os.Exit(1)
	}

	auth, err := authservice.New(authstore.NewUserStore(), sessions,
		authservice.WithLogger(log),
		authservice.WithFailureReporter(lk),
		authservice.WithSessionConfig(guardCfg.Session),
	)
	if err != nil {
		log.Error("init auth service", "error", err)
		os.Exit(1)
	}

	handler := site.NewHandler(site.HandlerDeps{
		Catalog:  catalog.New(catalog.Seed()),
		Auth:     auth,
		Guard:    g,
		Lockout:  lk,
		Counters: st,
		Health:   health,
		Logger:   log,
	})
	router := site.NewRouter(handler, site.RouterConfig{
		AdminToken:     serverCfg.AdminToken,
		TrustedProxies: middleware.ParseTrustedProxies(serverCfg.TrustedProxies),
		MaxBodyBytes:   guardCfg.Request.MaxBodyBytes,
	}, log)

	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	log.Info("starting http server", "addr", serverCfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

func recordPoolStats(client *platformredis.Client) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		client.RecordPoolStats()
	}
}
