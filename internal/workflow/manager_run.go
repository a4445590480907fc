package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"murmur/internal/logging"
)

// Start launches the worker pool. It returns once the workers are running.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.runner == nil {
		m.mu.Unlock()
		return errors.New("workflow runner not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(m.workers)
	m.mu.Unlock()

	for worker := 1; worker <= m.workers; worker++ {
		go m.runWorker(runCtx, worker)
	}
	m.logger.Info("workflow started",
		logging.Int("workers", m.workers),
		logging.Duration("poll_interval", m.pollInterval),
		logging.String(logging.FieldEventType, "workflow_started"),
	)
	return nil
}

// Stop cancels in-flight jobs and waits for every worker to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow stopped", logging.String(logging.FieldEventType, "workflow_stopped"))
}

func (m *Manager) runWorker(ctx context.Context, worker int) {
	defer m.wg.Done()
	logger := m.logger.With(logging.Int(logging.FieldWorker, worker))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := m.heartbeat.ReclaimStaleItems(ctx, logger); err != nil && ctx.Err() == nil {
			logger.Warn("reclaim stale jobs failed; stuck jobs may remain",
				logging.Error(err),
				logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
		}

		item, err := m.store.ClaimNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.handleNextItemError(ctx, logger, err)
			continue
		}
		if item == nil {
			m.waitForItemOrShutdown(ctx)
			continue
		}

		m.processJob(ctx, worker, logger, item)
	}
}

func (m *Manager) handleNextItemError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	logger.Error("failed to claim next job",
		logging.Error(err),
		logging.String(logging.FieldEventType, "queue_claim_failed"),
		logging.String(logging.FieldErrorHint, "check queue database access"),
	)
	select {
	case <-ctx.Done():
	case <-time.After(m.errorRetryInterval):
	}
}

func (m *Manager) waitForItemOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(m.pollInterval):
	}
}
