package queue

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ResetStuckProcessing returns every processing job to pending. The daemon
// calls it at startup, before any worker has claimed work.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, pipeline_state = NULL, progress_percent = 0,
             progress_message = 'Reset from stuck processing', last_heartbeat = NULL, updated_at = ?
         WHERE status = ?`,
		StatusPending,
		nowString(),
		StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck items: %w", err)
	}
	return res.RowsAffected()
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight item.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := nowString()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		now,
		now,
		id,
		StatusProcessing,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleProcessing returns processing jobs whose heartbeat expired
// before cutoff to pending.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, pipeline_state = NULL, progress_percent = 0,
             progress_message = 'Reclaimed from stale processing', last_heartbeat = NULL, updated_at = ?
         WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StatusPending,
		nowString(),
		StatusProcessing,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale items: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed jobs back to pending. With no identifiers every
// failed job is retried.
func (s *Store) RetryFailed(ctx context.Context, jobIDs ...string) (int64, error) {
	const reset = `UPDATE jobs
        SET status = ?, pipeline_state = NULL, progress_percent = 0, progress_message = 'Retry requested',
            error_kind = NULL, failed_stage = NULL, error_message = NULL, finished_at = NULL, updated_at = ?
        WHERE status = ?`

	args := []any{StatusPending, nowString(), StatusFailed}
	query := reset
	if len(jobIDs) > 0 {
		for _, id := range jobIDs {
			args = append(args, strings.TrimSpace(id))
		}
		query += ` AND job_id IN (` + makePlaceholders(len(jobIDs)) + `)`
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry failed items: %w", err)
	}
	return res.RowsAffected()
}

// FailProcessing marks every processing job failed with reason. It is used
// when the daemon shuts down with jobs in flight.
func (s *Store) FailProcessing(ctx context.Context, kind, reason string) (int64, error) {
	now := nowString()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, error_kind = ?, failed_stage = pipeline_state, error_message = ?,
             progress_message = 'Failed', finished_at = ?, last_heartbeat = NULL, updated_at = ?
         WHERE status = ?`,
		StatusFailed,
		nullableString(kind),
		reason,
		now,
		now,
		StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("fail processing items: %w", err)
	}
	return res.RowsAffected()
}
