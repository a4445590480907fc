package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"murmur/internal/logging"
	"murmur/internal/queue"
)

// HeartbeatMonitor manages job heartbeats and stale job reclamation.
type HeartbeatMonitor struct {
	store             *queue.Store
	logger            *slog.Logger
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store *queue.Store, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &HeartbeatMonitor{
		store:             store,
		logger:            logger,
		heartbeatInterval: interval,
		heartbeatTimeout:  timeout,
	}
}

// ReclaimStaleItems returns processing jobs whose heartbeat expired to pending.
func (h *HeartbeatMonitor) ReclaimStaleItems(ctx context.Context, logger *slog.Logger) error {
	if h.heartbeatTimeout <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-h.heartbeatTimeout)
	reclaimed, err := h.store.ReclaimStaleProcessing(ctx, cutoff)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		logger.Info("reclaimed stale jobs",
			logging.Int64("count", reclaimed),
			logging.String(logging.FieldEventType, "heartbeat_reclaimed"),
		)
	}
	return nil
}

// StartLoop refreshes the heartbeat for itemID until ctx is canceled.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, itemID int64) {
	defer wg.Done()
	if h.heartbeatInterval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, logging.NewComponentLogger(h.logger, "workflow-heartbeat"))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateHeartbeat(ctx, itemID); err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Debug("heartbeat update cancelled")
				} else {
					logger.Warn("heartbeat update failed", logging.Error(err))
				}
			}
		}
	}
}
