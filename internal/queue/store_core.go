package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"murmur/internal/config"
)

// Store persists jobs and probed track durations in SQLite. The daemon and
// CLI may hold the same database open concurrently; WAL mode plus busy
// retries keep their writes from failing on lock contention.
type Store struct {
	db   *sql.DB
	path string
}

// pragmas are applied to every pooled connection through the DSN.
var pragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"foreign_keys(1)",
}

const (
	busyAttempts   = 5
	busyBackoff    = 10 * time.Millisecond
	busyBackoffMax = 200 * time.Millisecond
)

// Open connects to the queue database under cfg's log directory, creating
// the schema on first use.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	path := cfg.QueueDBPath()
	query := url.Values{}
	for _, pragma := range pragmas {
		query.Add("_pragma", pragma)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?"+query.Encode())
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func isBusy(err error) bool {
	var coder interface{ Code() int }
	if errors.As(err, &coder) {
		// SQLITE_BUSY, including extended codes.
		return coder.Code()&0xff == 5
	}
	return err != nil && (strings.Contains(err.Error(), "SQLITE_BUSY") || strings.Contains(err.Error(), "database is locked"))
}

// withBusyRetry runs op until it succeeds, fails with a non-busy error, or
// runs out of attempts.
func withBusyRetry[T any](ctx context.Context, op func(context.Context) (T, error)) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	delay := busyBackoff
	for attempt := 1; ; attempt++ {
		result, err := op(ctx)
		if err == nil || !isBusy(err) || attempt == busyAttempts {
			return result, err
		}
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, busyBackoffMax)
	}
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return withBusyRetry(ctx, func(ctx context.Context) (sql.Result, error) {
		return s.db.ExecContext(ctx, query, args...)
	})
}

func (s *Store) execWithoutResultRetry(ctx context.Context, query string, args ...any) error {
	_, err := s.execWithRetry(ctx, query, args...)
	return err
}
