package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"murmur/internal/command"
	"murmur/internal/services"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index      int    `json:"index"`
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	Duration   string `json:"duration"`
	BitRate    string `json:"bit_rate"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
	FormatName string `json:"format_name"`
}

// Prober runs ffprobe through a command.Executor.
type Prober struct {
	exec    command.Executor
	binary  string
	timeout time.Duration
}

// NewProber constructs a Prober. An empty binary defaults to "ffprobe".
func NewProber(exec command.Executor, binary string, timeout time.Duration) *Prober {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	return &Prober{exec: exec, binary: binary, timeout: timeout}
}

// Inspect executes ffprobe against the provided path and decodes the JSON response.
func (p *Prober) Inspect(ctx context.Context, path string) (Result, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}

	res, err := p.exec.Run(ctx, command.Invocation{
		Program: p.binary,
		Args:    []string{"-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path},
		Timeout: p.timeout,
	})
	if err != nil {
		return Result{}, fmt.Errorf("ffprobe inspect: %w", err)
	}

	var result Result
	if err := json.Unmarshal(res.Stdout, &result); err != nil {
		return Result{}, services.Wrap(services.ErrExecution, "ffprobe", "parse", path, err)
	}
	return result, nil
}

// Duration probes path and returns its container duration in seconds.
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	result, err := p.Inspect(ctx, path)
	if err != nil {
		return 0, err
	}
	duration := result.DurationSeconds()
	if math.IsNaN(duration) || duration <= 0 {
		return 0, services.Wrap(services.ErrExecution, "ffprobe", "duration", fmt.Sprintf("%s: no usable duration %q", path, result.Format.Duration), nil)
	}
	return duration, nil
}

// AudioStreamCount returns the number of audio streams discovered.
func (r Result) AudioStreamCount() int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "audio") {
			count++
		}
	}
	return count
}

// DurationSeconds returns the container duration in seconds. When the
// container has none it falls back to the first audio stream. The result is
// 0 when both are absent, or NaN when ffprobe reported something unparsable.
func (r Result) DurationSeconds() float64 {
	if strings.TrimSpace(r.Format.Duration) != "" {
		return parseFloat(r.Format.Duration)
	}
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "audio") {
			return parseFloat(stream.Duration)
		}
	}
	return 0
}

// SizeBytes returns the reported container size in bytes, or 0 when unavailable.
func (r Result) SizeBytes() int64 {
	size := parseFloat(r.Format.Size)
	if math.IsNaN(size) || size < 0 {
		return 0
	}
	return int64(size)
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
