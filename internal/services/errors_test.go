package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"murmur/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExecution, "mixing", "ffmpeg", "failed", base)
	if !errors.Is(err, services.ErrExecution) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"mixing", "ffmpeg", "failed", "boom"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapWithoutDetail(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrExecution) {
		t.Fatalf("expected default marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want services.Kind
	}{
		{nil, ""},
		{services.Wrap(services.ErrValidation, "validating", "", "volume out of range", nil), services.KindValidation},
		{services.Wrap(services.ErrSynthesis, "synthesizing", "tts", "503", nil), services.KindSynthesis},
		{fmt.Errorf("stage: %w", services.Wrap(services.ErrExecution, "tempo", "", "", nil)), services.KindExecution},
		{services.Wrap(services.ErrStorage, "workspace", "open", "", nil), services.KindStorage},
		{services.ErrTimeout, services.KindExecution},
		{context.Canceled, services.KindCanceled},
		{errors.New("mystery"), services.KindUnknown},
	}
	for _, tc := range cases {
		if got := services.KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestIsCallerError(t *testing.T) {
	if !services.IsCallerError(services.Wrap(services.ErrValidation, "", "", "bad", nil)) {
		t.Fatal("expected validation error to be a caller error")
	}
	if services.IsCallerError(services.Wrap(services.ErrSynthesis, "", "", "down", nil)) {
		t.Fatal("expected synthesis error to be an upstream failure")
	}
}
