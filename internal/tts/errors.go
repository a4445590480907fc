package tts

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"murmur/internal/services"
)

// ProviderError describes a failed provider call.
type ProviderError struct {
	Provider   string
	StatusCode int
	Code       string
	Detail     string
	transport  bool
}

func (e *ProviderError) Error() string {
	switch {
	case e.StatusCode > 0 && e.Code != "":
		return fmt.Sprintf("%s provider returned %d: %s (code: %s)", e.Provider, e.StatusCode, e.Detail, e.Code)
	case e.StatusCode > 0:
		return fmt.Sprintf("%s provider returned %d: %s", e.Provider, e.StatusCode, e.Detail)
	default:
		return fmt.Sprintf("%s provider: %s", e.Provider, e.Detail)
	}
}

// Retryable reports whether another attempt could succeed.
func (e *ProviderError) Retryable() bool {
	return e.transport || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// SynthesisError reports which fragment failed to synthesize.
type SynthesisError struct {
	Index      int
	Text       string
	StatusCode int
	Code       string
	Err        error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesize fragment %d (%q): %v", e.Index, preview(e.Text), e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// Is matches services.ErrSynthesis.
func (e *SynthesisError) Is(target error) bool {
	return target == services.ErrSynthesis
}

func newSynthesisError(index int, text string, err error) *SynthesisError {
	synthErr := &SynthesisError{Index: index, Text: text, Err: err}
	var perr *ProviderError
	if errors.As(err, &perr) {
		synthErr.StatusCode = perr.StatusCode
		synthErr.Code = perr.Code
	}
	return synthErr
}

func retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Retryable()
	}
	return false
}

func preview(text string) string {
	const limit = 40
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
