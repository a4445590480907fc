package tts_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"murmur/internal/tts"
)

func TestHTTPProviderSendsRequest(t *testing.T) {
	var got tts.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte("RIFFdata"))
	}))
	defer server.Close()

	provider := tts.NewHTTPProvider(server.URL, "", "secret", time.Second)
	audio, err := provider.Synthesize(context.Background(), tts.BuildRequest("I am calm", tts.VoiceParams{VoiceID: "aria", Language: "en-US", Pitch: 2, Speed: 1.25}))
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "RIFFdata" {
		t.Fatalf("unexpected audio %q", audio)
	}
	if got.Text != "I am calm" || got.VoiceID != "aria" || got.Language != "en-US" || got.Pitch != 12 || got.SpeakingRate != 1.25 {
		t.Fatalf("unexpected request body: %#v", got)
	}
}

func TestHTTPProviderDecodesJSONAudio(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(map[string]string{"audio_content": base64.StdEncoding.EncodeToString([]byte("pcm"))})
	}))
	defer server.Close()

	audio, err := tts.NewHTTPProvider(server.URL, "", "", time.Second).Synthesize(context.Background(), tts.Request{Text: "hi"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "pcm" {
		t.Fatalf("unexpected audio %q", audio)
	}
}

func TestHTTPProviderErrors(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		body      string
		code      string
		retryable bool
	}{
		{"structured", http.StatusBadRequest, `{"detail":"voice not found","error_code":"voice_missing"}`, "voice_missing", false},
		{"raw", http.StatusBadGateway, "upstream exploded", "", true},
		{"rate limited", http.StatusTooManyRequests, "", "", true},
		{"empty audio", http.StatusOK, "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "audio/wav")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			_, err := tts.NewHTTPProvider(server.URL, "", "", time.Second).Synthesize(context.Background(), tts.Request{Text: "hi"})
			var perr *tts.ProviderError
			if !errors.As(err, &perr) {
				t.Fatalf("expected ProviderError, got %v", err)
			}
			if perr.Code != tc.code {
				t.Fatalf("expected code %q, got %q", tc.code, perr.Code)
			}
			if perr.Retryable() != tc.retryable {
				t.Fatalf("expected retryable=%v for %v", tc.retryable, perr)
			}
		})
	}
}

func TestHTTPProviderTransportErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := tts.NewHTTPProvider(url, "", "", time.Second).Synthesize(context.Background(), tts.Request{Text: "hi"})
	var perr *tts.ProviderError
	if !errors.As(err, &perr) || !perr.Retryable() {
		t.Fatalf("expected retryable transport error, got %v", err)
	}
}

func TestHTTPProviderHealthCheck(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer healthy.Close()

	if err := tts.NewHTTPProvider(healthy.URL+"/v1/tts", healthy.URL+"/health", "", time.Second).HealthCheck(context.Background()); err != nil {
		t.Fatalf("expected healthy, got %v", err)
	}
	if err := tts.NewHTTPProvider(healthy.URL+"/v1/tts", "", "", time.Second).HealthCheck(context.Background()); err != nil {
		t.Fatalf("expected endpoint reachable, got %v", err)
	}
	if err := tts.NewHTTPProvider("", "", "", time.Second).HealthCheck(context.Background()); err == nil {
		t.Fatal("expected error without endpoint")
	}
}
