package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"murmur/internal/api"
	"murmur/internal/queue"
	"murmur/internal/queueaccess"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:     "jobs",
		Aliases: []string{"queue"},
		Short:   "Inspect and manage synthesis jobs",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsRetryCommand(ctx))
	jobsCmd.AddCommand(newJobsClearCommand(ctx))
	jobsCmd.AddCommand(newJobsFetchCommand(ctx))

	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(session queueaccess.Session) error {
				jobs, err := session.Access.List(cmd.Context(), statuses)
				if err != nil {
					return err
				}
				if jsonOut {
					if jobs == nil {
						jobs = []api.Job{}
					}
					return writeJSON(cmd, jobs)
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Job", "Status", "State", "Progress", "Created", "Result"},
					buildJobRows(jobs),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func buildJobRows(jobs []api.Job) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		result := "-"
		switch {
		case job.Result != nil:
			result = job.Result.Location
		case job.Error != nil:
			result = fmt.Sprintf("%s: %s", job.Error.Kind, job.Error.Message)
		}
		rows = append(rows, []string{
			job.JobID,
			job.Status,
			job.Progress.State,
			fmt.Sprintf("%.0f%%", job.Progress.Percent),
			formatAge(job.CreatedAt),
			result,
		})
	}
	return rows
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(session queueaccess.Session) error {
				job, err := session.Access.Describe(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if job == nil {
					return fmt.Errorf("job %s not found", args[0])
				}
				if jsonOut {
					return writeJSON(cmd, job)
				}
				renderJob(cmd, job)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func renderJob(cmd *cobra.Command, job *api.Job) {
	out := cmd.OutOrStdout()
	line := func(label, value string) {
		if strings.TrimSpace(value) == "" {
			value = "-"
		}
		fmt.Fprintf(out, "%-12s %s\n", label+":", value)
	}
	line("Job", job.JobID)
	line("Status", job.Status)
	line("State", job.Progress.State)
	line("Progress", fmt.Sprintf("%.0f%% %s", job.Progress.Percent, job.Progress.Message))
	line("Attempts", strconv.Itoa(job.Attempts))
	line("Created", job.CreatedAt)
	line("Started", job.StartedAt)
	line("Finished", job.FinishedAt)
	if job.ElapsedMS > 0 {
		line("Elapsed", formatSeconds(float64(job.ElapsedMS)/1000))
	}
	if req := job.Request; req != nil {
		line("Voice", req.VoiceID)
		line("Language", req.Language)
		line("Track", req.TrackID)
		line("Volume", strconv.FormatFloat(req.Volume, 'g', -1, 64))
		line("Lines", humanize.Comma(int64(len(req.Affirmations))))
	}
	if job.Result != nil {
		line("Result", job.Result.Location)
		line("Duration", formatSeconds(job.Result.DurationSeconds))
		line("Fragments", strconv.Itoa(job.Result.FragmentCount))
	}
	if job.Error != nil {
		line("Error kind", job.Error.Kind)
		line("Failed at", job.Error.Stage)
		line("Error", job.Error.Message)
	}
}

func newJobsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>...",
		Short: "Requeue failed jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(session queueaccess.Session) error {
				out := cmd.OutOrStdout()
				var errs []error
				for _, id := range args {
					job, err := session.Access.Retry(cmd.Context(), id)
					if err != nil {
						errs = append(errs, fmt.Errorf("retry %s: %w", id, describeValidation(err)))
						continue
					}
					fmt.Fprintf(out, "Job %s requeued (%s)\n", job.JobID, job.Status)
				}
				return errors.Join(errs...)
			})
		},
	}
}

func newJobsClearCommand(ctx *commandContext) *cobra.Command {
	var clearCompleted bool
	var clearFailed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove finished jobs",
		Long:  "Remove completed and failed jobs from the queue. Pending and processing jobs are never removed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearCompleted && clearFailed {
				return errors.New("specify only one of --completed or --failed")
			}
			return ctx.withSession(cmd, func(session queueaccess.Session) error {
				var (
					removed int64
					err     error
					label   = "finished"
				)
				switch {
				case clearCompleted:
					label = string(queue.StatusCompleted)
					removed, err = session.Access.ClearCompleted(cmd.Context())
				case clearFailed:
					label = string(queue.StatusFailed)
					removed, err = session.Access.ClearFailed(cmd.Context())
				default:
					removed, err = session.Access.ClearAll(cmd.Context())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d %s jobs\n", removed, label)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "Remove only completed jobs")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove only failed jobs")
	return cmd
}

func newJobsFetchCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "fetch <job-id>",
		Short: "Copy a completed job's audio to a local file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.withSession(cmd, func(session queueaccess.Session) error {
				job, err := session.Access.Describe(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if job == nil {
					return fmt.Errorf("job %s not found", args[0])
				}
				if job.Result == nil || job.Status != string(queue.StatusCompleted) {
					return fmt.Errorf("job %s is %s; only completed jobs have audio", job.JobID, job.Status)
				}
				dest := strings.TrimSpace(output)
				if dest == "" {
					dest = filepath.Base(job.Result.Location)
				}
				written, err := fetchResult(cmd.Context(), cfg, job.Result.Location, dest)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s)\n", dest, humanize.Bytes(uint64(written)))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file (defaults to the result name in the current directory)")
	return cmd
}
