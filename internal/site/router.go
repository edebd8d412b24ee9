package site

import (
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stayguard/internal/guard/models"
	"stayguard/internal/platform/middleware"
)

// RouterConfig carries the transport-level settings the router needs beyond
// the handler itself.
type RouterConfig struct {
	AdminToken     string
	TrustedProxies []netip.Prefix
	MaxBodyBytes   int64
}

// NewRouter wires every route behind the platform middleware stack and the
// guard middleware for its endpoint class.
//
// Route-to-class mapping: login and signup are auth (lockout-armed),
// checkout-session creation is checkout, property search is search, and
// everything else is the unrestricted default class. The guard still runs on
// default-class routes for input scanning and session integrity.
func NewRouter(h *Handler, cfg RouterConfig, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	metadata := middleware.NewMetadata(&middleware.MetadataConfig{
		TrustedProxies: cfg.TrustedProxies,
	})

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(metadata.Handler)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.BodyLimit(cfg.MaxBodyBytes))

	r.Get("/health", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(h.guard.Protect(models.ClassSearch))
		r.Get("/search", h.handleSearch)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.guard.Protect(models.ClassAuth))
		r.Post("/accounts/signup", h.handleSignup)
		r.Post("/accounts/login", h.handleLogin)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.guard.Protect(models.ClassCheckout))
		r.Post("/checkout/session", h.handleCheckoutSession)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.guard.Protect(models.ClassDefault))
		r.Get("/properties/{propertyID}", h.handleProperty)
		r.Get("/account", h.handleAccount)
		r.Post("/accounts/logout", h.handleLogout)
	})

	r.Route("/staff", func(r chi.Router) {
		r.Use(middleware.RequireAdminToken(cfg.AdminToken, logger))
		r.Use(h.guard.Protect(models.ClassDefault))
		r.Get("/guard/blocks/{identity}", h.handleStaffGetBlock)
		r.Delete("/guard/blocks/{identity}", h.handleStaffClearBlock)
	})

	return r
}
