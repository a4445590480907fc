package main

import (
	"github.com/spf13/cobra"

	"murmur/internal/daemonrun"
)

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var opts daemonrun.Options
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the murmur daemon in the foreground",
		Long:  "Run the job API and worker pool in the foreground until SIGINT or SIGTERM. Use `murmur start` to launch it in the background.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override logging.level for this run")
	cmd.Flags().BoolVar(&opts.Development, "dev", false, "Include source locations in log output")
	return cmd
}
