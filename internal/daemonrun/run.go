package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"murmur/internal/config"
	"murmur/internal/daemon"
	"murmur/internal/engine"
	"murmur/internal/logging"
	"murmur/internal/notifications"
	"murmur/internal/preflight"
	"murmur/internal/queue"
	"murmur/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the murmur daemon and blocks until the context is canceled or
// the process receives SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("murmur-%s.log", runID))
	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update murmur.log link: %v\n", err)
	}
	logDependencySnapshot(logger, cfg)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	defer store.Close()

	eng, err := engine.Build(signalCtx, cfg, logger, engine.Options{DurationCache: store})
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if err := eng.Close(closeCtx); err != nil {
			logger.Warn("pipeline shutdown incomplete", logging.Error(err))
		}
	}()

	if retention := cfg.WorkspaceRetention(); retention > 0 {
		swept := eng.Artifacts.CleanStale(signalCtx, retention)
		if len(swept.Removed) > 0 || len(swept.Errors) > 0 {
			logger.Info("stale workspaces swept",
				logging.Int("removed", len(swept.Removed)),
				logging.Int("errors", len(swept.Errors)),
				logging.String(logging.FieldEventType, "workspace_sweep"),
			)
		}
	}

	if eng.Telemetry != nil {
		if err := eng.Telemetry.ObserveQueue(func(ctx context.Context) (map[string]int, error) {
			stats, err := store.Stats(ctx)
			if err != nil {
				return nil, err
			}
			out := make(map[string]int, len(stats))
			for status, count := range stats {
				out[string(status)] = count
			}
			return out, nil
		}); err != nil {
			logger.Warn("queue gauge unavailable", logging.Error(err))
		}
	}

	notifier := notifications.NewService(cfg)
	manager := workflow.NewManager(cfg, store, eng.Orchestrator, logger, workflow.WithNotifier(notifier))

	daemonOpts := []daemon.Option{
		daemon.WithNotifier(notifier),
		daemon.WithPreflight(func(ctx context.Context) []preflight.Result {
			return preflight.RunAll(ctx, cfg, eng.Provider)
		}),
	}
	if eng.Telemetry != nil {
		daemonOpts = append(daemonOpts, daemon.WithMetricsHandler(eng.Telemetry.Handler()))
	}
	d, err := daemon.New(cfg, store, manager, eng.Orchestrator, logger, daemonOpts...)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run `murmur status` or check configuration and binaries"),
			logging.String(logging.FieldImpact, "no jobs will be processed"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("murmur daemon shutting down")
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "murmur.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("tts_provider", cfg.TTS.Provider),
		logging.String("publish_target", cfg.Publish.Target),
		logging.Bool("tts_key_present", strings.TrimSpace(cfg.TTS.APIKey) != ""),
		logging.Bool("api_token_present", strings.TrimSpace(cfg.API.Token) != ""),
	}
	for _, dep := range preflight.CheckSystemDeps(cfg) {
		key := strings.ToLower(strings.ReplaceAll(dep.Name, " ", "_"))
		attrs = append(attrs,
			logging.Bool(key+"_available", dep.Available),
			logging.String(key+"_binary", dep.Command),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
