package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"murmur/internal/daemonctl"
)

const (
	daemonStartTimeout = 15 * time.Second
	daemonStopGrace    = 10 * time.Second
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var logLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the murmur daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.EnsureStarted(cmd.Context(), cfg, exe, daemonctl.LaunchOptions{
				ConfigPath: ctx.configPath,
				LogLevel:   logLevel,
			}, daemonStartTimeout)
			if err != nil {
				return err
			}
			switch result.State {
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(stdout, "Daemon already running (pid %d)\n", result.PID)
			default:
				fmt.Fprintf(stdout, "Daemon started (pid %d)\n", result.PID)
			}
			return nil
		},
	}
	startCmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for the daemon")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the murmur daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(cmd.Context(), cfg, daemonStopGrace)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(stdout, "Daemon did not exit in time; killed pid %d\n", result.PID)
				return nil
			}
			fmt.Fprintf(stdout, "Daemon stopped (pid %d)\n", result.PID)
			return nil
		},
	}

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the murmur daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			if _, err := daemonctl.StopAndTerminate(cmd.Context(), cfg, daemonStopGrace); err != nil && !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				return err
			}
			result, err := daemonctl.EnsureStarted(cmd.Context(), cfg, exe, daemonctl.LaunchOptions{ConfigPath: ctx.configPath}, daemonStartTimeout)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Daemon restarted (pid %d)\n", result.PID)
			return nil
		},
	}

	return []*cobra.Command{startCmd, stopCmd, restartCmd}
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return exe, nil
}
