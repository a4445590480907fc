package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrDuplicateJob indicates a job with the same identifier is already queued.
var ErrDuplicateJob = errors.New("job already queued")

// claimAttempts bounds how often ClaimNext retries after losing a race.
const claimAttempts = 5

// Enqueue inserts a pending job carrying the serialized request.
func (s *Store) Enqueue(ctx context.Context, jobID string, request []byte) (*Item, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, errors.New("job id is required")
	}
	if len(request) == 0 {
		return nil, errors.New("request payload is required")
	}
	timestamp := nowString()

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (
            job_id, status, request_json, progress_percent, progress_message,
            attempts, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		jobID,
		StatusPending,
		string(request),
		0.0,
		"Queued",
		0,
		timestamp,
		timestamp,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateJob, jobID)
		}
		return nil, fmt.Errorf("insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a queue item by row identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM jobs WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// GetByJobID fetches a queue item by job identifier. A unique prefix of at
// least eight characters also matches.
func (s *Store) GetByJobID(ctx context.Context, jobID string) (*Item, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM jobs WHERE job_id = ?`, jobID)
	item, err := scanItem(row)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if len(jobID) < 8 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM jobs WHERE job_id LIKE ? ORDER BY id LIMIT 2`, jobID+"%")
	if err != nil {
		return nil, fmt.Errorf("get job by prefix: %w", err)
	}
	items, err := collectItems(rows)
	if err != nil {
		return nil, err
	}
	if len(items) != 1 {
		return nil, nil
	}
	return items[0], nil
}

// Update persists changes to an existing queue item.
func (s *Store) Update(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("item is nil")
	}
	item.UpdatedAt = time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, pipeline_state = ?, progress_percent = ?, progress_message = ?,
             error_kind = ?, failed_stage = ?, error_message = ?, final_path = ?,
             duration_seconds = ?, fragment_count = ?, attempts = ?, updated_at = ?,
             started_at = ?, finished_at = ?, last_heartbeat = ?
         WHERE id = ?`,
		item.Status,
		nullableString(item.PipelineState),
		item.ProgressPercent,
		nullableString(item.ProgressMessage),
		nullableString(item.ErrorKind),
		nullableString(item.FailedStage),
		nullableString(item.ErrorMessage),
		nullableString(item.FinalPath),
		nullableFloat(item.DurationSeconds),
		nullableInt(item.FragmentCount),
		item.Attempts,
		item.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(item.StartedAt),
		nullableTime(item.FinishedAt),
		nullableTime(item.LastHeartbeat),
		item.ID,
	); err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// UpdateProgress records the pipeline state of an in-flight job without
// touching its terminal fields.
func (s *Store) UpdateProgress(ctx context.Context, id int64, state, message string, percent float64) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs SET pipeline_state = ?, progress_message = ?, progress_percent = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		nullableString(state),
		nullableString(message),
		percent,
		nowString(),
		id,
		StatusProcessing,
	); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// List returns queue items filtered by status set (or all items when no status is provided).
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + itemColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at, id`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	return collectItems(rows)
}

func collectItems(rows *sql.Rows) ([]*Item, error) {
	defer rows.Close()
	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ClaimNext moves the oldest pending job to processing and returns it. It
// returns nil when nothing is pending. Concurrent callers never receive the
// same job.
func (s *Store) ClaimNext(ctx context.Context) (*Item, error) {
	for attempt := 0; attempt < claimAttempts; attempt++ {
		row := s.db.QueryRowContext(ctx,
			`SELECT id FROM jobs WHERE status = ? ORDER BY created_at, id LIMIT 1`,
			StatusPending,
		)
		var id int64
		if err := row.Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("select pending job: %w", err)
		}

		now := nowString()
		res, err := s.execWithRetry(
			ctx,
			`UPDATE jobs
             SET status = ?, attempts = attempts + 1, started_at = ?, last_heartbeat = ?,
                 updated_at = ?, finished_at = NULL, pipeline_state = NULL,
                 progress_percent = 0, progress_message = 'Claimed'
             WHERE id = ? AND status = ?`,
			StatusProcessing,
			now,
			now,
			now,
			id,
			StatusPending,
		)
		if err != nil {
			return nil, fmt.Errorf("claim job: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("rows affected: %w", err)
		}
		if affected == 1 {
			return s.GetByID(ctx, id)
		}
	}
	return nil, nil
}

// Remove deletes an item by identifier.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearCompleted removes only completed items from the queue.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE status = ?`, StatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes every item that is not currently being processed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE status != ?`, StatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailed removes only failed items from the queue.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE status = ?`, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear failed: %w", err)
	}
	return res.RowsAffected()
}
