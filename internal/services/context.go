package services

import "context"

type contextKey string

const (
	sessionIDKey  contextKey = "session_id"
	audioFileKey  contextKey = "audio_file"
	classifierKey contextKey = "classifier"
	backboneKey   contextKey = "backbone"
	workerKey     contextKey = "worker"
	requestIDKey  contextKey = "request_id"
)

// WithSessionID annotates context with the analysis session identifier.
func WithSessionID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext returns the session identifier if present.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, sessionIDKey)
}

// WithAudioFile annotates context with the audio file being processed.
func WithAudioFile(ctx context.Context, path string) context.Context {
	if path == "" {
		return ctx
	}
	return context.WithValue(ctx, audioFileKey, path)
}

// AudioFileFromContext returns the audio file path if present.
func AudioFileFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, audioFileKey)
}

// WithClassifier annotates context with a classifier name.
func WithClassifier(ctx context.Context, name string) context.Context {
	if name == "" {
		return ctx
	}
	return context.WithValue(ctx, classifierKey, name)
}

// ClassifierFromContext returns the classifier name if present.
func ClassifierFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, classifierKey)
}

// WithBackbone annotates context with a backbone (feature extractor) name.
func WithBackbone(ctx context.Context, name string) context.Context {
	if name == "" {
		return ctx
	}
	return context.WithValue(ctx, backboneKey, name)
}

// BackboneFromContext returns the backbone name if present.
func BackboneFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, backboneKey)
}

// WithWorker annotates context with the batch worker index.
func WithWorker(ctx context.Context, worker int) context.Context {
	return context.WithValue(ctx, workerKey, worker)
}

// WorkerFromContext returns the worker index if present.
func WorkerFromContext(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(workerKey).(int)
	return v, ok
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, requestIDKey)
}

func stringValue(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
