package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"murmur/internal/logs"
	"murmur/internal/workflow"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var followLogs bool
	var jobID string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show daemon logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := cfg.CurrentLogPath()
			if jobID != "" {
				// Workers also write each job to its own file.
				jobLog := workflow.NewJobLogger(cfg).Path(jobID)
				if _, err := os.Stat(jobLog); jobLog != "" && err == nil {
					path = jobLog
				}
			}
			out := cmd.OutOrStdout()

			result, err := logs.Tail(cmd.Context(), path, logs.TailOptions{Offset: -1, Limit: lines, JobID: jobID})
			if err != nil {
				return err
			}
			for _, line := range result.Lines {
				fmt.Fprintln(out, line)
			}
			if !followLogs {
				if len(result.Lines) == 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "No log lines in %s\n", path)
				}
				return nil
			}

			offset := result.Offset
			for {
				next, err := logs.Tail(cmd.Context(), path, logs.TailOptions{Offset: offset, Follow: true, Wait: 30 * time.Second, JobID: jobID})
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				}
				for _, line := range next.Lines {
					fmt.Fprintln(out, line)
				}
				offset = next.Offset
			}
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().BoolVarP(&followLogs, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().StringVar(&jobID, "job", "", "Only lines mentioning this job id")
	return cmd
}
