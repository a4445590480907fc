package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"murmur/internal/config"
	"murmur/internal/deps"
	"murmur/internal/logging"
	"murmur/internal/notifications"
	"murmur/internal/pipeline"
	"murmur/internal/preflight"
	"murmur/internal/queue"
	"murmur/internal/services"
	"murmur/internal/workflow"
)

// Validator normalizes and checks a request before it is queued.
type Validator interface {
	Validate(req pipeline.SynthesisRequest) (pipeline.SynthesisRequest, error)
}

// PreflightFunc runs the startup checks.
type PreflightFunc func(ctx context.Context) []preflight.Result

// Daemon coordinates the background processing services and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *queue.Store
	workflow  *workflow.Manager
	validator Validator
	notifier  notifications.Service
	preflight PreflightFunc
	metrics   http.Handler

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	mu      sync.Mutex
	checks  []preflight.Result
	running atomic.Bool
	cancel  context.CancelFunc
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithPreflight replaces the startup checks.
func WithPreflight(fn PreflightFunc) Option {
	return func(d *Daemon) {
		if fn != nil {
			d.preflight = fn
		}
	}
}

// WithMetricsHandler exposes h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(d *Daemon) { d.metrics = h }
}

// WithNotifier sets the service used for test notifications.
func WithNotifier(n notifications.Service) Option {
	return func(d *Daemon) {
		if n != nil {
			d.notifier = n
		}
	}
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	QueueDBPath  string
	LockFilePath string
	Dependencies []deps.Status
	Checks       []preflight.Result
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, wf *workflow.Manager, validator Validator, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil || validator == nil {
		return nil, errors.New("daemon requires config, store, workflow manager, and validator")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     store,
		workflow:  wf,
		validator: validator,
		notifier:  notifications.NewService(cfg),
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}
	d.preflight = func(ctx context.Context) []preflight.Result {
		return preflight.RunAll(ctx, cfg, nil)
	}
	for _, opt := range opts {
		opt(d)
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, runs preflight checks, recovers jobs left
// processing by a previous crash, and launches the workers and API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another murmur daemon instance is already running")
	}

	checks := append(d.preflight(ctx), preflight.CheckQueueDatabase(ctx, d.store))
	d.mu.Lock()
	d.checks = checks
	d.mu.Unlock()
	for _, check := range checks {
		if check.Passed {
			continue
		}
		d.logger.Warn("preflight check failed",
			logging.String("check", check.Name),
			logging.Bool("required", check.Required),
			logging.String("detail", check.Detail),
			logging.String(logging.FieldEventType, "preflight_failed"),
		)
	}
	if err := preflight.RequiredFailures(checks); err != nil {
		_ = d.lock.Unlock()
		return services.Wrap(services.ErrConfiguration, "daemon", "preflight", "required checks failed", err)
	}

	if reset, err := d.store.ResetStuckProcessing(ctx); err != nil {
		d.logger.Warn("failed to reset interrupted jobs", logging.Error(err))
	} else if reset > 0 {
		d.logger.Info("requeued interrupted jobs",
			logging.Int64("count", reset),
			logging.String(logging.FieldEventType, "jobs_requeued"),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if d.api != nil {
		if err := d.api.start(runCtx); err != nil {
			d.workflow.Stop()
			cancel()
			_ = d.lock.Unlock()
			return err
		}
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("murmur daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.APIAddress()),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	d.workflow.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("murmur daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon. The store is owned by the caller.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// APIAddress returns the address the job API listens on, or "" when disabled.
func (d *Daemon) APIAddress() string {
	if d.api == nil {
		return ""
	}
	return d.api.address()
}

// Submit validates req and queues it under a new job id.
func (d *Daemon) Submit(ctx context.Context, req pipeline.SynthesisRequest) (*queue.Item, error) {
	normalized, err := d.validator.Validate(req)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	item, err := d.store.Enqueue(ctx, uuid.NewString(), payload)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "daemon", "enqueue", "failed to queue job", err)
	}
	d.logger.Info("job queued",
		logging.String(logging.FieldJobID, item.JobID),
		logging.Int("affirmations", len(normalized.Affirmations)),
		logging.String("voice", normalized.VoiceID),
		logging.String("track", normalized.TrackID),
		logging.String(logging.FieldEventType, "job_queued"),
	)
	return item, nil
}

// Get returns one job or services.ErrNotFound.
func (d *Daemon) Get(ctx context.Context, jobID string) (*queue.Item, error) {
	item, err := d.store.GetByJobID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("%w: job %s", services.ErrNotFound, strings.TrimSpace(jobID))
	}
	return item, nil
}

// ListQueue returns queue items filtered by optional statuses.
func (d *Daemon) ListQueue(ctx context.Context, statuses []queue.Status) ([]*queue.Item, error) {
	return d.store.List(ctx, statuses...)
}

// Retry resubmits a failed job.
func (d *Daemon) Retry(ctx context.Context, jobID string) (*queue.Item, error) {
	item, err := d.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if item.Status != queue.StatusFailed {
		return nil, &pipeline.ValidationError{Field: "status", Reason: fmt.Sprintf("job is %s; only failed jobs can be retried", item.Status)}
	}
	if _, err := d.store.RetryFailed(ctx, item.JobID); err != nil {
		return nil, services.Wrap(services.ErrStorage, "daemon", "retry", "failed to requeue job", err)
	}
	d.logger.Info("job requeued",
		logging.String(logging.FieldJobID, item.JobID),
		logging.String(logging.FieldEventType, "job_retried"),
	)
	return d.Get(ctx, item.JobID)
}

// ClearQueue removes all queue items.
func (d *Daemon) ClearQueue(ctx context.Context) (int64, error) {
	return d.store.Clear(ctx)
}

// ClearCompleted removes only completed queue items.
func (d *Daemon) ClearCompleted(ctx context.Context) (int64, error) {
	return d.store.ClearCompleted(ctx)
}

// ClearFailed removes only failed queue items.
func (d *Daemon) ClearFailed(ctx context.Context) (int64, error) {
	return d.store.ClearFailed(ctx)
}

// TestNotification sends a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	d.mu.Lock()
	checks := append([]preflight.Result(nil), d.checks...)
	d.mu.Unlock()
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.workflow.Status(ctx),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		Dependencies: preflight.CheckSystemDeps(d.cfg),
		Checks:       checks,
	}
}
