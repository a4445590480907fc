package logging

import (
	"context"
	"log/slog"

	"murmur/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldJobID is the standardized structured logging key for job identifiers.
	FieldJobID = "job_id"
	// FieldStage is the standardized structured logging key for pipeline state names.
	FieldStage = "stage"
	// FieldWorker identifies the workflow worker lane handling a job.
	FieldWorker = "worker"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies a log line for downstream filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the operator's next step.
	FieldErrorHint = "error_hint"
	// FieldErrorKind carries the error taxonomy class (validation, synthesis, execution, storage).
	FieldErrorKind = "error_kind"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := services.JobIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldJobID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
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
