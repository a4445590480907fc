package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"murmur/internal/logging"
	"murmur/internal/notifications"
	"murmur/internal/queue"
)

func (m *Manager) publish(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not send notification", logging.String("event", string(event)))
		} else {
			logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
		}
	}
}

func (m *Manager) onJobStarted(ctx context.Context) {
	if m.notifier == nil {
		return
	}
	m.mu.Lock()
	if m.queueActive {
		m.mu.Unlock()
		return
	}
	m.queueActive = true
	m.queueStart = time.Now()
	m.mu.Unlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logging.WarnWithContext(m.logger, "queue stats unavailable for start notification; notification skipped", "queue_stats_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"),
				logging.String(logging.FieldImpact, "start notification will not be sent"),
			)
		}
		return
	}
	m.publish(ctx, m.logger, notifications.EventQueueStarted, notifications.Payload{"count": countActiveItems(stats)})
}

func (m *Manager) checkQueueCompletion(ctx context.Context) {
	if m.notifier == nil {
		return
	}
	stats, err := m.store.Stats(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logging.WarnWithContext(m.logger, "queue stats unavailable for completion notification; notification skipped", "queue_stats_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"),
				logging.String(logging.FieldImpact, "completion notification will not be sent"),
			)
		}
		return
	}
	if countActiveItems(stats) > 0 {
		return
	}

	m.mu.Lock()
	if !m.queueActive {
		m.mu.Unlock()
		return
	}
	start := m.queueStart
	m.queueActive = false
	m.queueStart = time.Time{}
	m.mu.Unlock()

	m.publish(ctx, m.logger, notifications.EventQueueCompleted, notifications.Payload{
		"processed": stats[queue.StatusCompleted],
		"failed":    stats[queue.StatusFailed],
		"duration":  time.Since(start),
	})
}

func countActiveItems(stats map[queue.Status]int) int {
	return stats[queue.StatusPending] + stats[queue.StatusProcessing]
}
