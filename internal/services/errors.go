package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error markers. Every failure that leaves a pipeline boundary matches exactly
// one of the first four via errors.Is.
var (
	ErrValidation    = errors.New("validation error")
	ErrSynthesis     = errors.New("synthesis error")
	ErrExecution     = errors.New("execution error")
	ErrStorage       = errors.New("storage error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
)

// Kind is the stable, persisted name of an error class.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindSynthesis     Kind = "synthesis"
	KindExecution     Kind = "execution"
	KindStorage       Kind = "storage"
	KindConfiguration Kind = "configuration"
	KindNotFound      Kind = "not_found"
	KindCanceled      Kind = "canceled"
	KindUnknown       Kind = "unknown"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrExecution
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf classifies err into one of the taxonomy kinds. Validation wins over
// the other markers so caller mistakes are never reported as upstream failures.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrSynthesis):
		return KindSynthesis
	case errors.Is(err, ErrExecution):
		return KindExecution
	case errors.Is(err, ErrStorage):
		return KindStorage
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrTimeout):
		return KindExecution
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindUnknown
	}
}

// IsCallerError reports whether err stems from invalid input rather than a
// failing dependency.
func IsCallerError(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindNotFound:
		return true
	default:
		return false
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
