package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LookupDuration returns a cached probe result for path. The entry only
// matches when the file size and modification time are unchanged.
func (s *Store) LookupDuration(ctx context.Context, path string, size int64, modTime time.Time) (float64, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT duration_seconds FROM track_durations WHERE path = ? AND size_bytes = ? AND mod_time = ?`,
		path,
		size,
		modTime.UTC().Format(time.RFC3339Nano),
	)
	var seconds float64
	if err := row.Scan(&seconds); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("lookup track duration: %w", err)
	}
	return seconds, true, nil
}

// StoreDuration records a probe result for path, replacing any stale entry.
func (s *Store) StoreDuration(ctx context.Context, path string, size int64, modTime time.Time, seconds float64) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO track_durations (path, size_bytes, mod_time, duration_seconds, probed_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(path) DO UPDATE SET
             size_bytes = excluded.size_bytes,
             mod_time = excluded.mod_time,
             duration_seconds = excluded.duration_seconds,
             probed_at = excluded.probed_at`,
		path,
		size,
		modTime.UTC().Format(time.RFC3339Nano),
		seconds,
		nowString(),
	); err != nil {
		return fmt.Errorf("store track duration: %w", err)
	}
	return nil
}
