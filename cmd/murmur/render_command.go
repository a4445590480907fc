package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"murmur/internal/engine"
	"murmur/internal/logging"
	"murmur/internal/pipeline"
	"murmur/internal/queue"
)

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var flags requestFlags
	var output string
	var logLevel string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Run a synthesis job in this process",
		Long:  "Run the full pipeline synchronously without the daemon and publish the result to the configured target.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			req, err := flags.request(cmd.InOrStdin())
			if err != nil {
				return err
			}

			level := cfg.Logging.Level
			if strings.TrimSpace(logLevel) != "" {
				level = logLevel
			}
			handler, err := logging.NewWriterHandler(cmd.ErrOrStderr(), logging.Options{Level: level, Format: cfg.Logging.Format})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			logger := slog.New(handler)

			opts := ctx.engineOptions
			if opts.DurationCache == nil {
				if store, err := queue.Open(cfg); err == nil {
					defer store.Close()
					opts.DurationCache = store
				} else {
					logger.Warn("track duration cache unavailable", logging.Error(err))
				}
			}
			if opts.TraceOutput == nil {
				opts.TraceOutput = cmd.ErrOrStderr()
			}
			eng, err := engine.Build(cmd.Context(), cfg, logger, opts)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = eng.Close(closeCtx)
			}()

			if _, err := eng.Orchestrator.Validate(req); err != nil {
				return describeValidation(err)
			}

			jobID := uuid.NewString()
			progress := pipeline.ObserverFunc(func(_ context.Context, _ string, t pipeline.Transition) {
				if jsonOut || t.To == pipeline.StateFailed {
					return
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", formatPercent(t.To.Progress()), t.To.Label())
			})
			result, err := eng.Orchestrator.Run(cmd.Context(), jobID, req, progress)
			if err != nil {
				return err
			}

			if dest := strings.TrimSpace(output); dest != "" {
				written, err := fetchResult(cmd.Context(), cfg, result.FinalPath, dest)
				if err != nil {
					return err
				}
				if !jsonOut {
					fmt.Fprintf(cmd.ErrOrStderr(), "Copied %s to %s\n", humanize.Bytes(uint64(written)), dest)
				}
			}

			if jsonOut {
				return writeJSON(cmd, result)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Job %s completed\n", result.JobID)
			fmt.Fprintf(out, "Result: %s\n", result.FinalPath)
			fmt.Fprintf(out, "Duration: %s\n", formatSeconds(result.DurationSeconds))
			fmt.Fprintf(out, "Fragments: %d\n", result.FragmentCount)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Also copy the published result to this path")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for this run")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the job result as JSON")
	return cmd
}
