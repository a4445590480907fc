package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"murmur/internal/api"
	"murmur/internal/daemonctl"
	"murmur/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			status, err := daemonctl.BuildStatusSnapshot(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, status)
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(stdout, line)
			}
			if status.Running {
				fmt.Fprintln(stdout, renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Workers", statusInfo, workerSummary(status.Workflow), colorize))
				if last := strings.TrimSpace(status.Workflow.LastError); last != "" {
					fmt.Fprintln(stdout, renderStatusLine("Last error", statusWarn, last, colorize))
				}
			} else {
				fmt.Fprintln(stdout, renderStatusLine("Daemon", statusWarn, "Not running", colorize))
			}
			fmt.Fprintln(stdout, renderStatusLine("Queue database", statusInfo, status.QueueDBPath, colorize))
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Checks", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, check := range status.Checks {
				fmt.Fprintln(stdout, renderStatusLine(check.Name, checkKind(check.Passed, check.Required), check.Detail, colorize))
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Dependencies", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, dep := range status.Dependencies {
				detail := dep.Command
				if !dep.Available && dep.Detail != "" {
					detail = dep.Detail
				}
				fmt.Fprintln(stdout, renderStatusLine(dep.Name, checkKind(dep.Available, !dep.Optional), detail, colorize))
			}
			fmt.Fprintln(stdout)

			if len(status.Workflow.Active) > 0 {
				for _, line := range renderSectionHeader("Active Jobs", colorize) {
					fmt.Fprintln(stdout, line)
				}
				rows := make([][]string, 0, len(status.Workflow.Active))
				for _, active := range status.Workflow.Active {
					rows = append(rows, []string{strconv.Itoa(active.Worker), active.JobID, active.State, formatAge(active.Started)})
				}
				fmt.Fprintln(stdout, renderTable([]string{"Worker", "Job", "State", "Started"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft}))
				fmt.Fprintln(stdout)
			}

			for _, line := range renderSectionHeader("Queue Status", colorize) {
				fmt.Fprintln(stdout, line)
			}
			rows := buildQueueStatusRows(status.Workflow.QueueStats)
			if len(rows) == 0 {
				fmt.Fprintln(stdout, "Queue is empty")
				return nil
			}
			fmt.Fprintln(stdout, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func workerSummary(wf api.WorkflowStatus) string {
	busy := len(wf.Active)
	return fmt.Sprintf("%d of %d busy", busy, wf.Workers)
}

// buildQueueStatusRows lists non-empty statuses in lifecycle order.
func buildQueueStatusRows(stats map[string]int) [][]string {
	var rows [][]string
	for _, status := range queue.AllStatuses() {
		count := stats[string(status)]
		if count == 0 {
			continue
		}
		rows = append(rows, []string{string(status), strconv.Itoa(count)})
	}
	return rows
}

func checkKind(passed, required bool) statusKind {
	switch {
	case passed:
		return statusOK
	case required:
		return statusError
	default:
		return statusWarn
	}
}
