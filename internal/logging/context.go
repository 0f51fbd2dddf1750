package logging

import (
	"context"
	"log/slog"

	"roundtable/internal/services"
)

// Structured field keys shared by every component.
const (
	FieldComponent      = "component"
	FieldSessionID      = "session_id"
	FieldFileName       = "file_name"
	FieldStage          = "stage"
	FieldCorrelationID  = "correlation_id"
	FieldEventType      = "event_type"
	FieldErrorHint      = "error_hint"
	FieldErrorKind      = "error_kind"
	FieldErrorOperation = "error_operation"
	FieldImpact         = "impact"
	// FieldAlert flags anomalies that should stand out when scanning logs.
	FieldAlert = "alert"
)

// ContextFields extracts standardized attributes from ctx.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.SessionIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldSessionID, id))
	}
	if name, ok := services.FileNameFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldFileName, name))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns logger augmented with the fields carried by ctx.
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
