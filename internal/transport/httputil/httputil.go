// Package httputil centralizes JSON response writing and domain-error
// translation for the HTTP layer.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"stayguard/internal/guard/models"
	dErrors "stayguard/pkg/domain-errors"
)

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		// best-effort fallback; don't override status for the caller
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

// WriteError translates transport-agnostic domain errors into HTTP status
// codes and JSON error responses.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		response := map[string]string{
			"error": string(domainErr.Code),
		}
		if domainErr.Message != "" {
			response["error_description"] = domainErr.Message
		}
		WriteJSON(w, DomainCodeToHTTPStatus(domainErr.Code), response)
		return
	}

	// Fallback for unexpected errors
	WriteJSON(w, http.StatusInternalServerError, map[string]string{
		"error": string(dErrors.CodeInternal),
	})
}

// WriteVerdict renders a guard denial. Throttling denials carry Retry-After
// so well-behaved clients back off precisely.
func WriteVerdict(w http.ResponseWriter, verdict models.Verdict) {
	if verdict.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(verdict.RetryAfter)))
	}
	WriteJSON(w, DenyReasonToHTTPStatus(verdict.Reason), map[string]string{
		"error": string(verdict.Reason),
	})
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidInput, dErrors.CodeInvariantViolation:
		return http.StatusBadRequest
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeRateLimited, dErrors.CodeLocked:
		return http.StatusTooManyRequests
	case dErrors.CodeSuspiciousInput:
		return http.StatusBadRequest
	case dErrors.CodeSessionAnomaly, dErrors.CodeMalformedRequest:
		return http.StatusForbidden
	case dErrors.CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// DenyReasonToHTTPStatus translates guard denial reasons to HTTP status
// codes. Throttling maps to 429, detected attacks to 400, and policy denials
// to 403.
func DenyReasonToHTTPStatus(reason models.DenyReason) int {
	switch reason {
	case models.ReasonRateLimited, models.ReasonLocked:
		return http.StatusTooManyRequests
	case models.ReasonSuspiciousInput:
		return http.StatusBadRequest
	case models.ReasonSessionAnomaly, models.ReasonMalformedRequest:
		return http.StatusForbidden
	default:
		return http.StatusForbidden
	}
}

func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
