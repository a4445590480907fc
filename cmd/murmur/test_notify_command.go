package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"murmur/internal/daemonctl"
	"murmur/internal/notifications"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if client, _, err := daemonctl.Dial(cmd.Context(), cfg); err == nil {
				resp, err := client.TestNotification(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(out, resp.Message)
				return nil
			}

			if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
				fmt.Fprintln(out, "ntfy topic not configured")
				return nil
			}
			if err := notifications.NewService(cfg).Publish(cmd.Context(), notifications.EventTest, nil); err != nil {
				return fmt.Errorf("send test notification: %w", err)
			}
			fmt.Fprintln(out, "test notification sent")
			return nil
		},
	}
}
