package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"murmur/internal/artifacts"
	"murmur/internal/catalog"
	"murmur/internal/command"
	"murmur/internal/config"
	"murmur/internal/logging"
	"murmur/internal/media/ffprobe"
	"murmur/internal/pipeline"
	"murmur/internal/publish"
	"murmur/internal/telemetry"
	"murmur/internal/transcode"
	"murmur/internal/tts"
)

// Options supplies collaborators that differ between the daemon, the CLI and
// tests.
type Options struct {
	// Executor runs ffmpeg, ffprobe and command TTS providers. Defaults to
	// the OS executor.
	Executor command.Executor
	// DurationCache persists music track probe results, usually the queue
	// store.
	DurationCache catalog.DurationCache
	// Provider overrides the configured TTS provider.
	Provider tts.Provider
	// Publisher overrides the configured publish target.
	Publisher publish.Publisher
	// TraceOutput receives spans when telemetry trace export is enabled.
	TraceOutput io.Writer
}

// Engine is the fully wired synthesis pipeline.
type Engine struct {
	Orchestrator *pipeline.Orchestrator
	Catalog      *catalog.Catalog
	Artifacts    *artifacts.Store
	Provider     tts.Provider
	Publisher    publish.Publisher
	Telemetry    *telemetry.Telemetry
	Executor     command.Executor
}

// Build assembles the pipeline from configuration.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	exec := opts.Executor
	if exec == nil {
		exec = command.NewExecutor(logger)
	}

	catalogOpts := []catalog.Option{
		catalog.WithProber(ffprobe.NewProber(exec, cfg.FFmpeg.FFprobeBinary, cfg.CommandTimeout())),
		catalog.WithLogger(logger),
	}
	if opts.DurationCache != nil {
		catalogOpts = append(catalogOpts, catalog.WithDurationCache(opts.DurationCache))
	}
	cat, err := catalog.Load(cfg.Paths.CatalogFile, catalogOpts...)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	provider := opts.Provider
	if provider == nil {
		provider, err = tts.NewProvider(cfg, exec)
		if err != nil {
			return nil, err
		}
	}

	publisher := opts.Publisher
	if publisher == nil {
		publisher, err = publish.New(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	traceOut := opts.TraceOutput
	if traceOut == nil {
		traceOut = os.Stdout
	}
	tel, err := telemetry.FromConfig(ctx, cfg, traceOut, logger)
	if err != nil {
		_ = publisher.Close()
		return nil, err
	}

	store := artifacts.NewStore(cfg.Paths.StagingDir,
		artifacts.WithPolicy(cfg.Pipeline.CleanupPolicy),
		artifacts.WithMinFreeMB(cfg.Paths.MinFreeMB),
		artifacts.WithLogger(logger),
	)
	stage := tts.NewStage(provider,
		tts.WithConcurrency(cfg.TTS.Concurrency),
		tts.WithRetry(cfg.TTS.MaxAttempts, cfg.TTSRetryBackoff()),
		tts.WithLogger(logging.NewComponentLogger(logger, "tts")),
	)
	runner := transcode.NewRunnerFromConfig(cfg, exec, logging.NewComponentLogger(logger, "transcode"))

	var observer pipeline.Observer
	if tel != nil {
		observer = tel
	}
	orch, err := pipeline.New(pipeline.Dependencies{
		Catalog:     cat,
		Artifacts:   store,
		Synthesizer: stage,
		Transcoder:  runner,
		Publisher:   publisher,
	}, pipeline.Options{
		TempoMultiplier: cfg.Pipeline.TempoMultiplier,
		Limits: pipeline.Limits{
			MaxAffirmations:     cfg.Pipeline.MaxAffirmations,
			MaxAffirmationChars: cfg.Pipeline.MaxAffirmationChars,
		},
		FragmentFormat: cfg.TTS.AudioFormat,
		JobTimeout:     cfg.JobTimeout(),
		Observer:       observer,
		Logger:         logger,
	})
	if err != nil {
		_ = publisher.Close()
		_ = tel.Shutdown(ctx)
		return nil, err
	}

	return &Engine{
		Orchestrator: orch,
		Catalog:      cat,
		Artifacts:    store,
		Provider:     provider,
		Publisher:    publisher,
		Telemetry:    tel,
		Executor:     exec,
	}, nil
}

// Close releases the publisher connection and flushes telemetry.
func (e *Engine) Close(ctx context.Context) error {
	if e == nil {
		return nil
	}
	var errs []error
	if e.Publisher != nil {
		errs = append(errs, e.Publisher.Close())
	}
	errs = append(errs, e.Telemetry.Shutdown(ctx))
	return errors.Join(errs...)
}
