package services

import (
	"errors"
	"fmt"
	"strings"
)

// Failure markers. Pipeline code tags every error with exactly one of these so
// callers can isolate failures to the classifier, backbone, or file that
// caused them.
var (
	ErrConfig      = errors.New("config error")
	ErrDecode      = errors.New("decode error")
	ErrBackbone    = errors.New("backbone error")
	ErrClassifier  = errors.New("classifier error")
	ErrAggregation = errors.New("aggregation error")

	ErrExternalTool = errors.New("external tool error")
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
)

// Failure kinds written to the session document.
const (
	KindConfig      = "config"
	KindDecode      = "decode"
	KindBackbone    = "backbone"
	KindClassifier  = "classifier"
	KindAggregation = "aggregation"
	KindNotFound    = "not_found"
	KindInternal    = "internal"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf maps an error to the failure kind recorded in session documents.
// Backbone and decode markers win over classifier markers because a backbone
// failure is reported against every classifier that depends on it.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDecode):
		return KindDecode
	case errors.Is(err, ErrBackbone):
		return KindBackbone
	case errors.Is(err, ErrClassifier):
		return KindClassifier
	case errors.Is(err, ErrAggregation):
		return KindAggregation
	case errors.Is(err, ErrConfig), errors.Is(err, ErrValidation):
		return KindConfig
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
