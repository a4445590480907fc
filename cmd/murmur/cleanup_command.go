package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"murmur/internal/artifacts"
	"murmur/internal/queue"
	"murmur/internal/queueaccess"
)

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	var listOnly bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove leftover job workspaces",
		Long:  "List or remove job workspaces under paths.staging_dir that were kept by the cleanup policy or left behind by a crash. Workspaces of jobs that are still processing are never removed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store := artifacts.NewStore(cfg.Paths.StagingDir, artifacts.WithPolicy(cfg.Pipeline.CleanupPolicy))

			err = ctx.withSession(cmd, func(session queueaccess.Session) error {
				processing, err := session.Access.List(cmd.Context(), []string{string(queue.StatusProcessing)})
				if err != nil {
					return err
				}
				for _, job := range processing {
					store.Protect(job.JobID)
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("look up processing jobs: %w", err)
			}

			out := cmd.OutOrStdout()
			if listOnly {
				dirs, err := store.List()
				if err != nil {
					return err
				}
				if len(dirs) == 0 {
					fmt.Fprintln(out, "No workspaces")
					return nil
				}
				rows := make([][]string, 0, len(dirs))
				var total int64
				for _, dir := range dirs {
					total += dir.Size
					rows = append(rows, []string{dir.JobID, humanize.Bytes(uint64(dir.Size)), humanize.Time(dir.ModTime), yesNo(dir.Active)})
				}
				fmt.Fprintln(out, renderTable([]string{"Job", "Size", "Modified", "Active"}, rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft}))
				fmt.Fprintf(out, "%d workspaces, %s\n", len(dirs), humanize.Bytes(uint64(total)))
				return nil
			}

			maxAge := olderThan
			if maxAge <= 0 {
				maxAge = cfg.WorkspaceRetention()
			}
			result := store.CleanStale(cmd.Context(), maxAge)
			for _, failure := range result.Errors {
				fmt.Fprintf(cmd.ErrOrStderr(), "warn: %s: %v\n", failure.Path, failure.Error)
			}
			fmt.Fprintf(out, "Removed %d workspaces older than %s\n", len(result.Removed), maxAge)
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d workspaces could not be removed", len(result.Errors))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Minimum workspace age (defaults to paths.workspace_retention_hours)")
	cmd.Flags().BoolVar(&listOnly, "list", false, "List workspaces without removing anything")
	return cmd
}
