// Package audit emits structured audit events for security-relevant
// actions: account changes, token issuance, checkouts. Events go to the
// shared JSON logger with a fixed "audit" type so downstream pipelines
// can filter them.
package audit

import (
	"context"
	"errors"
	"strings"

	"biovault.org/internal/auth"
	"biovault.org/internal/obs"
)

type ctxKey struct{}

// WithRequestID attaches the request identifier to the context for audit
// logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxKey{}).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes one audit entry enriched with the request id and acting
// account taken from the context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	attrs := []any{"type", "audit", "event", event}
	if rid := requestIDFromContext(ctx); rid != "" {
		attrs = append(attrs, "request_id", rid)
	}
	if actor, ok := auth.ActorFromContext(ctx); ok && actor != nil {
		attrs = append(attrs, "actor_id", actor.ID)
	}
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}
	obs.Logger().Info("audit", attrs...)
	return nil
}
