package tts

import (
	"context"
	"fmt"
	"math"
	"time"

	"murmur/internal/command"
	"murmur/internal/config"
	"murmur/internal/services"
)

// Provider converts one piece of text into encoded audio.
type Provider interface {
	Name() string
	Synthesize(ctx context.Context, req Request) ([]byte, error)
	HealthCheck(ctx context.Context) error
}

// Request is a provider call expressed in provider units.
type Request struct {
	Text         string  `json:"text"`
	VoiceID      string  `json:"voice_id"`
	Language     string  `json:"language"`
	Pitch        float64 `json:"pitch"`
	SpeakingRate float64 `json:"speaking_rate"`
}

// VoiceParams are the caller-facing voice settings. Pitch and Speed are
// scalars where 1.0 (or zero) is neutral.
type VoiceParams struct {
	VoiceID  string
	Language string
	Pitch    float64
	Speed    float64
}

const (
	minSemitones    = -20.0
	maxSemitones    = 20.0
	minSpeakingRate = 0.25
	maxSpeakingRate = 4.0
)

// MapVoiceParams converts a pitch scalar to semitones and a speed scalar to
// a speaking rate, clamping both to the ranges providers accept.
func MapVoiceParams(pitch, speed float64) (semitones, rate float64) {
	if pitch > 0 {
		semitones = 12 * math.Log2(pitch)
	}
	semitones = math.Max(minSemitones, math.Min(maxSemitones, semitones))
	// Avoid reporting -0 for neutral pitch.
	if semitones == 0 {
		semitones = 0
	}

	rate = speed
	if rate <= 0 {
		rate = 1
	}
	rate = math.Max(minSpeakingRate, math.Min(maxSpeakingRate, rate))
	return semitones, rate
}

// BuildRequest maps text and voice parameters to a provider request.
func BuildRequest(text string, params VoiceParams) Request {
	semitones, rate := MapVoiceParams(params.Pitch, params.Speed)
	return Request{
		Text:         text,
		VoiceID:      params.VoiceID,
		Language:     params.Language,
		Pitch:        semitones,
		SpeakingRate: rate,
	}
}

// NewProvider builds the provider selected by configuration.
func NewProvider(cfg *config.Config, exec command.Executor) (Provider, error) {
	timeout := cfg.TTSRequestTimeout()
	switch cfg.TTS.Provider {
	case config.ProviderHTTP:
		return NewHTTPProvider(cfg.TTS.Endpoint, cfg.TTS.HealthURL, cfg.TTS.APIKey, timeout), nil
	case config.ProviderCommand:
		return NewCommandProvider(cfg.TTS.Command, exec, timeout)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "tts", "select provider", fmt.Sprintf("unsupported provider %q", cfg.TTS.Provider), nil)
	}
}

func backoffDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base << (attempt - 1)
	if delay > 30*time.Second || delay <= 0 {
		delay = 30 * time.Second
	}
	return delay
}
