package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"murmur/internal/api"
	"murmur/internal/config"
	"murmur/internal/preflight"
	"murmur/internal/queue"
)

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State    StartState
	Launched bool
	PID      int
}

// ErrDaemonNotRunning indicates the daemon API is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// pingTimeout bounds a single reachability probe.
const pingTimeout = 2 * time.Second

// Dial returns a client for the configured daemon API after confirming it
// answers a status request.
func Dial(ctx context.Context, cfg *config.Config) (*api.Client, *api.DaemonStatus, error) {
	if cfg == nil {
		return nil, nil, errors.New("configuration not available")
	}
	client, err := api.NewClient(cfg.API.Bind, cfg.API.Token, 0)
	if err != nil {
		return nil, nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	status, err := client.Status(pingCtx)
	if err != nil {
		return nil, nil, err
	}
	return client, status, nil
}

// Launch starts a detached murmur daemon process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"daemon"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForStatus polls the daemon API until it reports running.
func WaitForStatus(ctx context.Context, cfg *config.Config, timeout time.Duration) (*api.DaemonStatus, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		_, status, err := Dial(ctx, cfg)
		if err == nil && status.Running {
			return status, nil
		}
		if err == nil {
			err = errors.New("daemon reports not running")
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for daemon")
	}
	return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted launches the daemon unless one already answers.
func EnsureStarted(ctx context.Context, cfg *config.Config, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	if _, status, err := Dial(ctx, cfg); err == nil && status.Running {
		return StartResult{State: StartStateAlreadyRunning, PID: status.PID}, nil
	}
	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	status, err := WaitForStatus(ctx, cfg, waitTimeout)
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{State: StartStateStarted, Launched: true, PID: status.PID}, nil
}

// WaitForShutdown waits for the daemon API to stop answering.
func WaitForShutdown(ctx context.Context, cfg *config.Config, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, _, err := Dial(ctx, cfg); err != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	return fmt.Errorf("daemon did not stop within %s", timeout)
}

// ReadPID returns the pid recorded by a running daemon, or 0 when none is recorded.
func ReadPID(pidPath string) int {
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}

// ForceKillProcess sends SIGKILL to daemon process and cleans pid/lock files.
func ForceKillProcess(pidPath, lockPath string, fallbackPID int) (int, error) {
	pid := ReadPID(pidPath)
	if pid == 0 {
		pid = fallbackPID
	}
	if pid <= 0 {
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	}
	if pid == os.Getpid() {
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Kill(); err != nil {
		return 0, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	if lockPath != "" {
		_ = os.Remove(lockPath)
	}
	return pid, nil
}

// StopAndTerminate sends SIGTERM to the daemon and force-kills it if it is
// still answering after gracePeriod.
func StopAndTerminate(ctx context.Context, cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	_, status, err := Dial(ctx, cfg)
	if err != nil {
		if errors.Is(err, api.ErrDaemonUnavailable) {
			return StopResult{}, ErrDaemonNotRunning
		}
		return StopResult{}, err
	}
	pid := status.PID
	if pid <= 0 {
		pid = ReadPID(cfg.PIDPath())
	}
	if pid <= 0 {
		return StopResult{}, fmt.Errorf("unable to determine daemon pid")
	}
	if pid == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return StopResult{}, fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return StopResult{}, fmt.Errorf("signal daemon process %d: %w", pid, err)
	}

	result := StopResult{PID: pid}
	if err := WaitForShutdown(ctx, cfg, gracePeriod); err == nil {
		return result, nil
	}
	killedPID, killErr := ForceKillProcess(cfg.PIDPath(), cfg.LockPath(), pid)
	if killErr != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", killErr)
	}
	result.ForcedKill = true
	result.PID = killedPID
	return result, nil
}

// BuildStatusSnapshot collects daemon status and applies offline fallbacks
// for queue stats, dependencies and checks when no daemon answers.
func BuildStatusSnapshot(ctx context.Context, cfg *config.Config) (*api.DaemonStatus, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	if _, status, err := Dial(ctx, cfg); err == nil {
		return status, nil
	}

	status := &api.DaemonStatus{
		QueueDBPath:  cfg.QueueDBPath(),
		LockFilePath: cfg.LockPath(),
		Dependencies: api.FromDependencies(preflight.CheckSystemDeps(cfg)),
		Checks:       api.FromChecks(preflight.RunAll(ctx, cfg, nil)),
	}

	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	store, err := queue.Open(cfg)
	if err != nil {
		return status, nil
	}
	defer store.Close()
	status.Checks = append(status.Checks, api.FromChecks([]preflight.Result{preflight.CheckQueueDatabase(queryCtx, store)})...)
	if stats, err := store.Stats(queryCtx); err == nil {
		status.Workflow.QueueStats = api.MergeQueueStats(stats)
	}
	return status, nil
}
