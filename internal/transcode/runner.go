package transcode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"murmur/internal/command"
	"murmur/internal/config"
	"murmur/internal/logging"
)

// Sub-stage names reported in errors and logs.
const (
	StageConcat = "concatenate"
	StageTempo  = "tempo"
	StageVolume = "volume"
	StageLoop   = "loop"
	StageMix    = "mix"
)

// Runner executes the transcode chain through a command.Executor.
type Runner struct {
	exec     command.Executor
	binary   string
	timeout  time.Duration
	encoding Encoding
	logger   *slog.Logger
}

// NewRunner constructs a Runner. An empty binary defaults to "ffmpeg".
func NewRunner(exec command.Executor, binary string, timeout time.Duration, encoding Encoding, logger *slog.Logger) *Runner {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{exec: exec, binary: binary, timeout: timeout, encoding: encoding, logger: logger}
}

// NewRunnerFromConfig builds a Runner from the [ffmpeg] section.
func NewRunnerFromConfig(cfg *config.Config, exec command.Executor, logger *slog.Logger) *Runner {
	return NewRunner(exec, cfg.FFmpeg.FFmpegBinary, cfg.CommandTimeout(), Encoding{
		Format:     cfg.FFmpeg.OutputFormat,
		Bitrate:    cfg.FFmpeg.OutputBitrate,
		SampleRate: cfg.FFmpeg.SampleRate,
	}, logger)
}

// Encoding returns the final artifact settings.
func (r *Runner) Encoding() Encoding { return r.encoding }

// Concat joins inputs in order into output. The demuxer list is written
// next to output.
func (r *Runner) Concat(ctx context.Context, inputs []string, output string) error {
	if len(inputs) == 0 {
		return &TranscodeError{Stage: StageConcat, Err: errors.New("at least one input is required")}
	}
	abs := make([]string, len(inputs))
	for i, in := range inputs {
		path, err := filepath.Abs(in)
		if err != nil {
			return &TranscodeError{Stage: StageConcat, Err: fmt.Errorf("resolve %q: %w", in, err)}
		}
		abs[i] = path
	}

	listPath := strings.TrimSuffix(output, filepath.Ext(output)) + "_list.txt"
	if err := os.WriteFile(listPath, []byte(ConcatList(abs)), 0o644); err != nil {
		return &TranscodeError{Stage: StageConcat, Err: fmt.Errorf("write concat list: %w", err)}
	}
	return r.run(ctx, StageConcat, ConcatArgs(listPath, output, r.encoding.SampleRate))
}

// Tempo changes playback speed by multiplier.
func (r *Runner) Tempo(ctx context.Context, input, output string, multiplier float64) error {
	args, err := TempoArgs(input, output, multiplier, r.encoding.SampleRate)
	if err != nil {
		return &TranscodeError{Stage: StageTempo, Err: err}
	}
	return r.run(ctx, StageTempo, args)
}

// Volume scales input by gain.
func (r *Runner) Volume(ctx context.Context, input, output string, gain float64) error {
	args, err := VolumeArgs(input, output, gain, r.encoding.SampleRate)
	if err != nil {
		return &TranscodeError{Stage: StageVolume, Err: err}
	}
	return r.run(ctx, StageVolume, args)
}

// Loop repeats input until it is seconds long.
func (r *Runner) Loop(ctx context.Context, input, output string, seconds float64) error {
	args, err := LoopArgs(input, output, seconds, r.encoding.SampleRate)
	if err != nil {
		return &TranscodeError{Stage: StageLoop, Err: err}
	}
	return r.run(ctx, StageLoop, args)
}

// Mix combines speech and music into the final encoded artifact.
func (r *Runner) Mix(ctx context.Context, speech, music, output string) error {
	return r.run(ctx, StageMix, MixArgs(speech, music, output, r.encoding))
}

func (r *Runner) run(ctx context.Context, stage string, args []string) error {
	started := time.Now()
	_, err := r.exec.Run(ctx, command.Invocation{
		Program: r.binary,
		Args:    args,
		Timeout: r.timeout,
	})
	if err != nil {
		transErr := &TranscodeError{Stage: stage, Err: err}
		if execErr, ok := command.AsExecutionError(err); ok {
			transErr.StderrTail = execErr.StderrTail
		}
		return transErr
	}
	r.logger.Debug("transcode stage finished",
		logging.String("transcode_stage", stage),
		logging.String("output", args[len(args)-1]),
		logging.Duration("elapsed", time.Since(started)),
	)
	return nil
}
