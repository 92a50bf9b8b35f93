package logging

import (
	"context"
	"log/slog"
	"time"
)

type Attr = slog.Attr

func Bool(key string, value bool) Attr { return slog.Bool(key, value) }

func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

func Float64(key string, value float64) Attr { return slog.Float64(key, value) }

func Int(key string, value int) Attr { return slog.Int(key, value) }

func String(key string, value string) Attr { return slog.String(key, value) }

func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// Hint is the next step an operator should take after a warning or error.
func Hint(text string) Attr { return slog.String(FieldErrorHint, text) }

// Impact is what the user loses because of a warning.
func Impact(text string) Attr { return slog.String(FieldImpact, text) }

func Classifier(name string) Attr { return slog.String(FieldClassifier, name) }

func Backbone(name string) Attr { return slog.String(FieldBackbone, name) }

func AudioFile(path string) Attr { return slog.String(FieldAudioFile, path) }

const defaultHint = "check logs for details"

// WarnWithContext logs a warning that always carries event_type, error_hint
// and impact. Missing fields get generic values; caller-supplied ones win.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	attrs = withDefaults(attrs,
		String(FieldEventType, eventType),
		Hint(defaultHint),
		Impact("operation completed with warnings"),
	)
	logAttrs(logger, slog.LevelWarn, msg, attrs)
}

// ErrorWithContext logs an error that always carries event_type and error_hint.
func ErrorWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	attrs = withDefaults(attrs, String(FieldEventType, eventType), Hint(defaultHint))
	logAttrs(logger, slog.LevelError, msg, attrs)
}

func withDefaults(attrs []Attr, defaults ...Attr) []Attr {
	for _, def := range defaults {
		present := false
		for _, a := range attrs {
			if a.Key == def.Key {
				present = true
				break
			}
		}
		if !present {
			attrs = append(attrs, def)
		}
	}
	return attrs
}

func logAttrs(logger *slog.Logger, level slog.Level, msg string, attrs []Attr) {
	if logger == nil {
		return
	}
	logger.LogAttrs(context.Background(), level, msg, attrs...)
}
