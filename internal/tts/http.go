package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

const (
	headerContentType   = "Content-Type"
	headerAccept        = "Accept"
	headerAuthorization = "Authorization"
	contentTypeJSON     = "application/json"
	acceptAudio         = "audio/*"

	maxAudioBytes = 64 << 20
	maxErrorBytes = 16 << 10
)

// HTTPProvider calls a JSON-over-HTTP speech service.
type HTTPProvider struct {
	client    *http.Client
	endpoint  string
	healthURL string
	apiKey    string

	maxAudioBytes int64
}

type errorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

type audioResponse struct {
	AudioContent string `json:"audio_content"`
}

// NewHTTPProvider constructs a provider posting to endpoint. The timeout
// applies to each request.
func NewHTTPProvider(endpoint, healthURL, apiKey string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		client:    &http.Client{Timeout: timeout},
		endpoint:  strings.TrimSpace(endpoint),
		healthURL: strings.TrimSpace(healthURL),
		apiKey:    strings.TrimSpace(apiKey),

		maxAudioBytes: maxAudioBytes,
	}
}

// Name implements Provider.
func (p *HTTPProvider) Name() string { return "http" }

// Synthesize posts the request and returns the audio payload.
func (p *HTTPProvider) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, &ProviderError{Provider: p.Name(), Detail: "text cannot be empty"}
	}
	if p.endpoint == "" {
		return nil, &ProviderError{Provider: p.Name(), Detail: "tts.endpoint is not configured"}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create tts request: %w", err)
	}
	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, acceptAudio)
	if p.apiKey != "" {
		httpReq.Header.Set(headerAuthorization, "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &ProviderError{Provider: p.Name(), Detail: fmt.Sprintf("send request to %s: %v", p.endpoint, err), transport: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, p.parseErrorResponse(resp)
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, p.maxAudioBytes+1))
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Detail: fmt.Sprintf("read audio: %v", err), transport: true}
	}
	if int64(len(audio)) > p.maxAudioBytes {
		return nil, &ProviderError{Provider: p.Name(), StatusCode: resp.StatusCode, Detail: fmt.Sprintf("audio payload exceeds %d bytes", p.maxAudioBytes)}
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get(headerContentType))
	if mediaType == contentTypeJSON {
		var payload audioResponse
		if err := json.Unmarshal(audio, &payload); err != nil {
			return nil, &ProviderError{Provider: p.Name(), StatusCode: resp.StatusCode, Detail: fmt.Sprintf("decode json audio response: %v", err)}
		}
		audio, err = base64.StdEncoding.DecodeString(payload.AudioContent)
		if err != nil {
			return nil, &ProviderError{Provider: p.Name(), StatusCode: resp.StatusCode, Detail: fmt.Sprintf("decode audio_content: %v", err)}
		}
	}
	if len(audio) == 0 {
		return nil, &ProviderError{Provider: p.Name(), StatusCode: resp.StatusCode, Detail: "received empty audio data"}
	}
	return audio, nil
}

// HealthCheck probes the health URL, or the endpoint itself when no health
// URL is configured. Any response below 500 from the endpoint counts as
// reachable.
func (p *HTTPProvider) HealthCheck(ctx context.Context) error {
	target := p.healthURL
	if target == "" {
		target = p.endpoint
	}
	if target == "" {
		return errors.New("tts.endpoint is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return fmt.Errorf("create health check request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed for %s: %w", target, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBytes))

	if p.healthURL != "" && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status: %s", resp.Status)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("endpoint unhealthy: %s", resp.Status)
	}
	return nil
}

func (p *HTTPProvider) parseErrorResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
	perr := &ProviderError{Provider: p.Name(), StatusCode: resp.StatusCode}

	var parsed errorResponse
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Detail != "" {
		perr.Detail = parsed.Detail
		perr.Code = parsed.ErrorCode
		return perr
	}
	perr.Detail = strings.TrimSpace(string(raw))
	if perr.Detail == "" {
		perr.Detail = http.StatusText(resp.StatusCode)
	}
	return perr
}
