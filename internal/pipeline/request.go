package pipeline

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/language"

	"murmur/internal/catalog"
	"murmur/internal/services"
)

// SynthesisRequest is the caller's input for one job.
type SynthesisRequest struct {
	Affirmations []string `json:"affirmations"`
	VoiceID      string   `json:"voice_id"`
	Language     string   `json:"language,omitempty"`
	Pitch        float64  `json:"pitch,omitempty"`
	Speed        float64  `json:"speed,omitempty"`
	Volume       float64  `json:"volume"`
	TrackID      string   `json:"track_id"`
}

// Limits bounds request size. Zero values disable a limit.
type Limits struct {
	MaxAffirmations     int
	MaxAffirmationChars int
}

// Voice and pitch/speed ranges accepted from callers. 1.0 is neutral.
const (
	MinPitch = 0.5
	MaxPitch = 2.0
	MinSpeed = 0.25
	MaxSpeed = 4.0
)

// ValidationError reports a request field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is matches services.ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == services.ErrValidation
}

// VoiceLookup resolves voices and tracks without touching audio files.
type VoiceLookup interface {
	Voice(id string) (catalog.Voice, error)
	HasTrack(id string) bool
}

// Validate checks req against the catalog and limits and returns a
// normalized copy: affirmations trimmed, language canonicalized (defaulting
// to the voice language), neutral pitch and speed filled in.
func Validate(req SynthesisRequest, lookup VoiceLookup, limits Limits) (SynthesisRequest, error) {
	out := req
	out.Affirmations = make([]string, 0, len(req.Affirmations))

	if len(req.Affirmations) == 0 {
		return SynthesisRequest{}, &ValidationError{Field: "affirmations", Reason: "at least one affirmation is required"}
	}
	if limits.MaxAffirmations > 0 && len(req.Affirmations) > limits.MaxAffirmations {
		return SynthesisRequest{}, &ValidationError{
			Field:  "affirmations",
			Reason: fmt.Sprintf("%d affirmations exceeds the limit of %d", len(req.Affirmations), limits.MaxAffirmations),
		}
	}
	for i, text := range req.Affirmations {
		text = strings.TrimSpace(text)
		field := fmt.Sprintf("affirmations[%d]", i)
		if text == "" {
			return SynthesisRequest{}, &ValidationError{Field: field, Reason: "must not be blank"}
		}
		if limits.MaxAffirmationChars > 0 && utf8.RuneCountInString(text) > limits.MaxAffirmationChars {
			return SynthesisRequest{}, &ValidationError{
				Field:  field,
				Reason: fmt.Sprintf("longer than %d characters", limits.MaxAffirmationChars),
			}
		}
		out.Affirmations = append(out.Affirmations, text)
	}

	if math.IsNaN(req.Volume) || req.Volume < 0 || req.Volume > 1 {
		return SynthesisRequest{}, &ValidationError{Field: "volume", Reason: "must be between 0 and 1"}
	}

	if out.Pitch == 0 {
		out.Pitch = 1
	}
	if math.IsNaN(out.Pitch) || out.Pitch < MinPitch || out.Pitch > MaxPitch {
		return SynthesisRequest{}, &ValidationError{Field: "pitch", Reason: fmt.Sprintf("must be between %g and %g", MinPitch, MaxPitch)}
	}
	if out.Speed == 0 {
		out.Speed = 1
	}
	if math.IsNaN(out.Speed) || out.Speed < MinSpeed || out.Speed > MaxSpeed {
		return SynthesisRequest{}, &ValidationError{Field: "speed", Reason: fmt.Sprintf("must be between %g and %g", MinSpeed, MaxSpeed)}
	}

	out.VoiceID = strings.TrimSpace(req.VoiceID)
	if out.VoiceID == "" {
		return SynthesisRequest{}, &ValidationError{Field: "voice_id", Reason: "is required"}
	}
	if lookup == nil {
		return SynthesisRequest{}, &ValidationError{Field: "voice_id", Reason: "no voice catalog available"}
	}
	voice, err := lookup.Voice(out.VoiceID)
	if err != nil {
		return SynthesisRequest{}, &ValidationError{Field: "voice_id", Reason: fmt.Sprintf("unknown voice %q", out.VoiceID)}
	}

	lang, err := resolveLanguage(req.Language, voice)
	if err != nil {
		return SynthesisRequest{}, err
	}
	out.Language = lang

	out.TrackID = strings.TrimSpace(req.TrackID)
	if out.TrackID == "" {
		return SynthesisRequest{}, &ValidationError{Field: "track_id", Reason: "is required"}
	}
	if !lookup.HasTrack(out.TrackID) {
		return SynthesisRequest{}, &ValidationError{Field: "track_id", Reason: fmt.Sprintf("unknown track %q", out.TrackID)}
	}
	return out, nil
}

func resolveLanguage(requested string, voice catalog.Voice) (string, error) {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		if voice.Language == "" {
			return "", &ValidationError{Field: "language", Reason: "is required for this voice"}
		}
		return voice.Language, nil
	}
	tag, err := language.Parse(requested)
	if err != nil {
		return "", &ValidationError{Field: "language", Reason: fmt.Sprintf("%q is not a valid language tag", requested)}
	}
	if voice.Language != "" {
		voiceTag, err := language.Parse(voice.Language)
		if err == nil {
			reqBase, _ := tag.Base()
			voiceBase, _ := voiceTag.Base()
			if reqBase != voiceBase {
				return "", &ValidationError{
					Field:  "language",
					Reason: fmt.Sprintf("%s is not supported by voice %q (%s)", tag, voice.ID, voice.Language),
				}
			}
		}
	}
	return tag.String(), nil
}
