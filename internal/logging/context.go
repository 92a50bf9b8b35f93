package logging

import (
	"context"
	"log/slog"

	"technotaggr/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType names the event a warning or error describes.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldSessionID identifies the analysis session.
	FieldSessionID = "session_id"
	// FieldAudioFile is the audio file being processed.
	FieldAudioFile = "audio_file"
	// FieldClassifier is the classification head name.
	FieldClassifier = "classifier"
	// FieldBackbone is the feature extractor name.
	FieldBackbone = "backbone"
	// FieldWorker is the batch worker index.
	FieldWorker = "worker"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 6)
	if id, ok := services.SessionIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldSessionID, id))
	}
	if worker, ok := services.WorkerFromContext(ctx); ok {
		fields = append(fields, slog.Int(FieldWorker, worker))
	}
	if file, ok := services.AudioFileFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldAudioFile, file))
	}
	if name, ok := services.BackboneFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldBackbone, name))
	}
	if name, ok := services.ClassifierFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldClassifier, name))
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
	return slog.New(logger.Handler().WithAttrs(fields))
}
