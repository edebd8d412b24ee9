// Package site is the booking site's HTTP surface: property search and
// detail, guest accounts, checkout sessions, and staff tooling, all mounted
// behind the request guard.
package site

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	authservice "stayguard/internal/auth/service"
	"stayguard/internal/guard"
	"stayguard/internal/guard/lockout"
	"stayguard/internal/guard/models"
	guardstore "stayguard/internal/guard/store"
	"stayguard/internal/site/catalog"
	"stayguard/internal/transport/httputil"
	domainerrors "stayguard/pkg/domain-errors"
	"stayguard/pkg/sentinel"
	"stayguard/pkg/strutil"
	"stayguard/pkg/validation"
)

const dateLayout = "2006-01-02"

// Handler is the thin HTTP layer. It delegates to domain services without
// embedding business logic so transport concerns remain isolated.
type Handler struct {
	catalog  *catalog.Catalog
	auth     *authservice.Service
	guard    *guard.Guard
	lockout  *lockout.Service
	counters guardstore.CounterStore
	health   func(context.Context) error
	logger   *slog.Logger
}

// HandlerDeps collects the handler's collaborators. Health may be nil when
// no external backend needs probing.
type HandlerDeps struct {
	Catalog  *catalog.Catalog
	Auth     *authservice.Service
	Guard    *guard.Guard
	Lockout  *lockout.Service
	Counters guardstore.CounterStore
	Health   func(context.Context) error
	Logger   *slog.Logger
}

func NewHandler(deps HandlerDeps) *Handler {
	return &Handler{
		catalog:  deps.Catalog,
		auth:     deps.Auth,
		guard:    deps.Guard,
		lockout:  deps.Lockout,
		counters: deps.Counters,
		health:   deps.Health,
		logger:   deps.Logger,
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"store":  "unreachable",
			})
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	results := h.catalog.Search(r.Context(), r.URL.Query().Get("location"))
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"properties": results,
		"count":      len(results),
	})
}

func (h *Handler) handleProperty(w http.ResponseWriter, r *http.Request) {
	property, err := h.catalog.FindByID(r.Context(), chi.URLParam(r, "propertyID"))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			httputil.WriteError(w, domainerrors.Wrap(err, domainerrors.CodeNotFound, "property not found"))
			return
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, property)
}

type signupRequest struct {
	Email    string `validate:"required,email"`
	Name     string `validate:"required,notblank"`
	Password string `validate:"required,min=8"`
}

type loginRequest struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

type checkoutRequest struct {
	PropertyID string `validate:"required,notblank"`
	CheckIn    string `validate:"required,datetime=2006-01-02"`
	CheckOut   string `validate:"required,datetime=2006-01-02"`
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	req := signupRequest{
		Email:    r.PostFormValue("email"),
		Name:     r.PostFormValue("name"),
		Password: r.PostFormValue("password"),
	}
	strutil.TrimStrings(&req.Email, &req.Name)
	if err := validation.Validate(req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	user, err := h.auth.Signup(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{
		"user_id": user.ID,
		"email":   user.Email,
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	req := loginRequest{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	strutil.TrimStrings(&req.Email)
	if err := validation.Validate(req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	session, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.guard.SetSessionCookie(w, session)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"email":  session.Email,
		"device": session.DeviceName,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(guard.SessionCookieName); err == nil {
		if err := h.auth.Logout(r.Context(), cookie.Value); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	h.guard.ClearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAccount(w http.ResponseWriter, r *http.Request) {
	session := guard.SessionFromContext(r.Context())
	if session == nil {
		httputil.WriteError(w, domainerrors.New(domainerrors.CodeUnauthorized, "login required"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"email":      session.Email,
		"device":     session.DeviceName,
		"created_at": session.CreatedAt,
		"expires_at": session.ExpiresAt,
	})
}

// handleCheckoutSession opens a payment checkout session for a stay. The
// payment provider integration lives behind this endpoint; here we validate
// the stay and mint the session reference the frontend redirects with.
func (h *Handler) handleCheckoutSession(w http.ResponseWriter, r *http.Request) {
	session := guard.SessionFromContext(r.Context())
	if session == nil {
		httputil.WriteError(w, domainerrors.New(domainerrors.CodeUnauthorized, "login required to book"))
		return
	}

	req := checkoutRequest{
		PropertyID: r.PostFormValue("property_id"),
		CheckIn:    r.PostFormValue("check_in"),
		CheckOut:   r.PostFormValue("check_out"),
	}
	if err := validation.Validate(req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	property, err := h.catalog.FindByID(r.Context(), req.PropertyID)
	if err != nil {
		httputil.WriteError(w, domainerrors.Wrap(err, domainerrors.CodeNotFound, "property not found"))
		return
	}

	// Validated against the layout above, parse cannot fail.
	checkIn, _ := time.Parse(dateLayout, req.CheckIn)
	checkOut, _ := time.Parse(dateLayout, req.CheckOut)

	nights := int(checkOut.Sub(checkIn).Hours() / 24)
	if nights <= 0 {
		httputil.WriteError(w, domainerrors.New(domainerrors.CodeInvalidInput, "check_out must be after check_in"))
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, map[string]any{
		"checkout_session_id": uuid.New().String(),
		"property_id":         property.ID,
		"nights":              nights,
		"amount_pence":        nights * property.PencePerNight,
		"currency":            "GBP",
	})
}

// handleStaffGetBlock reports a client identity's guard standing: live block
// (if any) and the current failure count.
func (h *Handler) handleStaffGetBlock(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")

	entry, err := h.lockout.Check(r.Context(), identity)
	if err != nil {
		httputil.WriteError(w, domainerrors.Wrap(err, domainerrors.CodeInternal, "inspect block"))
		return
	}

	failures, err := h.counters.Peek(r.Context(), models.NewFailureKey(identity).String())
	if err != nil {
		httputil.WriteError(w, domainerrors.Wrap(err, domainerrors.CodeInternal, "inspect failures"))
		return
	}

	response := map[string]any{
		"identity": identity,
		"blocked":  entry != nil,
		"failures": failures,
	}
	if entry != nil {
		response["reason"] = entry.Reason
		response["blocked_until"] = entry.BlockedUntil
	}
	httputil.WriteJSON(w, http.StatusOK, response)
}

// handleStaffClearBlock lifts a block and wipes the failure history, used
// when support confirms a guest locked themselves out.
func (h *Handler) handleStaffClearBlock(w http.ResponseWriter, r *http.Request) {
	if err := h.lockout.Clear(r.Context(), chi.URLParam(r, "identity")); err != nil {
		httputil.WriteError(w, domainerrors.Wrap(err, domainerrors.CodeInternal, "clear block"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
