package workflow

import (
	"context"
	"sort"

	"murmur/internal/logging"
	"murmur/internal/queue"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running    bool
	Workers    int
	Active     []ActiveJob
	LastError  string
	LastItem   *queue.Item
	QueueStats map[queue.Status]int
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{Running: m.running, Workers: m.workers}
	for _, job := range m.active {
		summary.Active = append(summary.Active, job)
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastItem != nil {
		copy := *m.lastItem
		summary.LastItem = &copy
	}
	m.mu.RUnlock()

	sort.Slice(summary.Active, func(i, j int) bool { return summary.Active[i].Worker < summary.Active[j].Worker })

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}
	summary.QueueStats = stats
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastItem(item *queue.Item) {
	m.mu.Lock()
	if item != nil {
		copy := *item
		m.lastItem = &copy
	} else {
		m.lastItem = nil
	}
	m.mu.Unlock()
}
