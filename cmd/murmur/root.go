package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	return newRootCommandWithContext(newCommandContext())
}

func newRootCommandWithContext(ctx *commandContext) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "murmur",
		Short:         "Subliminal audio synthesis",
		Long:          "murmur turns affirmations into subliminal audio: speech is synthesized, sped up, attenuated, looped to a music track and mixed.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path")

	for _, cmd := range newDaemonCommands(ctx) {
		rootCmd.AddCommand(cmd)
	}

	rootCmd.AddCommand(newDaemonRunCommand(ctx))
	rootCmd.AddCommand(newSubmitCommand(ctx))
	rootCmd.AddCommand(newRenderCommand(ctx))
	rootCmd.AddCommand(newJobsCommand(ctx))
	rootCmd.AddCommand(newCatalogCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newLogsCommand(ctx))
	rootCmd.AddCommand(newCleanupCommand(ctx))
	rootCmd.AddCommand(newTestNotifyCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
