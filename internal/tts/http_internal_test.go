package tts

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPProviderRejectsOversizedAudio(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(bytes.Repeat([]byte{0x52}, 17))
	}))
	defer server.Close()

	provider := NewHTTPProvider(server.URL, "", "", time.Second)
	provider.maxAudioBytes = 16
	_, err := provider.Synthesize(context.Background(), Request{Text: "hi"})
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if !strings.Contains(perr.Detail, "exceeds 16 bytes") || perr.Retryable() {
		t.Fatalf("expected non-retryable size error, got %v", perr)
	}

	provider.maxAudioBytes = 17
	audio, err := provider.Synthesize(context.Background(), Request{Text: "hi"})
	if err != nil {
		t.Fatalf("payload at the limit: %v", err)
	}
	if len(audio) != 17 {
		t.Fatalf("expected 17 bytes, got %d", len(audio))
	}
}
