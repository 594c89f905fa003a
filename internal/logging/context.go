package logging

import (
	"context"
	"log/slog"

	"quire/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldCallRef is the standardized key for the per-call correlation reference.
	FieldCallRef = "call_ref"
	// FieldClient is the standardized key for the diagnostic client tag.
	FieldClient = "client"
	// FieldMethod is the standardized key for the RPC method name.
	FieldMethod = "method"
	// FieldState is the standardized key for orchestration state names.
	FieldState = "state"
	// FieldEventType classifies a log line for filtering (e.g. "spool_expired").
	FieldEventType = "event_type"
	// FieldErrorHint carries an operator-facing next step for warnings and errors.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if ref, ok := services.CallRefFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCallRef, ref))
	}
	if tag, ok := services.ClientTagFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldClient, tag))
	}
	if method, ok := services.MethodFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldMethod, method))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
