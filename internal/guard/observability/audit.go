// Package observability provides audit logging helpers for the guard.
// The structured log sink is the observability collaborator: every Deny
// verdict and every recorded auth failure produces exactly one event here.
package observability

import (
	"context"
	"log/slog"

	"stayguard/pkg/requestcontext"
)

// LogAudit is the shared helper for audit events across guard services.
// Events carry the request ID and request path for traceability plus
// log_type=audit so the sink can route them separately from request logs.
func LogAudit(ctx context.Context, logger *slog.Logger, event string, attrs ...any) {
	if logger == nil {
		return
	}

	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attrs = append(attrs, "request_id", requestID)
	}
	if path := requestcontext.Path(ctx); path != "" {
		attrs = append(attrs, "path", path)
	}
	args := append(attrs, "event", event, "log_type", "audit")

	logger.InfoContext(ctx, event, args...)
}
