package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"murmur/internal/config"
	"murmur/internal/logging"
	"murmur/internal/notifications"
	"murmur/internal/pipeline"
	"murmur/internal/queue"
)

// Runner executes one job through the synthesis pipeline.
type Runner interface {
	Run(ctx context.Context, jobID string, req pipeline.SynthesisRequest, observers ...pipeline.Observer) (pipeline.JobResult, error)
}

// Manager drains the queue with a fixed pool of workers.
type Manager struct {
	cfg      *config.Config
	store    *queue.Store
	runner   Runner
	logger   *slog.Logger
	notifier notifications.Service

	workers            int
	pollInterval       time.Duration
	errorRetryInterval time.Duration

	heartbeat *HeartbeatMonitor
	jobLogs   *JobLogger

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastErr  error
	lastItem *queue.Item
	active   map[int]ActiveJob

	queueActive bool
	queueStart  time.Time
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithNotifier replaces the notifier built from configuration.
func WithNotifier(notifier notifications.Service) ManagerOption {
	return func(m *Manager) {
		if notifier != nil {
			m.notifier = notifier
		}
	}
}

// WithWorkers overrides workflow.workers.
func WithWorkers(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.workers = n
		}
	}
}

// NewManager constructs a workflow manager around runner.
func NewManager(cfg *config.Config, store *queue.Store, runner Runner, logger *slog.Logger, opts ...ManagerOption) *Manager {
	logger = logging.NewComponentLogger(logger, "workflow")
	m := &Manager{
		cfg:                cfg,
		store:              store,
		runner:             runner,
		logger:             logger,
		notifier:           notifications.NewService(cfg),
		workers:            cfg.Workflow.Workers,
		pollInterval:       cfg.QueuePollInterval(),
		errorRetryInterval: cfg.ErrorRetryInterval(),
		heartbeat:          NewHeartbeatMonitor(store, logger, cfg.HeartbeatInterval(), cfg.HeartbeatTimeout()),
		jobLogs:            NewJobLogger(cfg),
		active:             make(map[int]ActiveJob),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.workers <= 0 {
		m.workers = 1
	}
	if m.pollInterval <= 0 {
		m.pollInterval = time.Second
	}
	if m.errorRetryInterval <= 0 {
		m.errorRetryInterval = m.pollInterval
	}
	return m
}
