package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"
)

// Stats returns a count of items grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// CheckHealth inspects the database file, schema and integrity. The returned
// report is filled as far as the checks got when an error is returned.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}
	info, err := os.Stat(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return health, nil
	case err != nil:
		return health, fmt.Errorf("stat queue database: %w", err)
	case info.IsDir():
		return health, fmt.Errorf("queue database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	fail := func(step string, err error) (DatabaseHealth, error) {
		health.Error = err.Error()
		return health, fmt.Errorf("%s: %w", step, err)
	}

	if health.SchemaVersion, err = s.userVersion(ctx); err != nil {
		return fail("read schema version", err)
	}
	health.DatabaseReadable = true

	rows, err := s.db.QueryContext(ctx, "SELECT name FROM pragma_table_info('jobs')")
	if err != nil {
		return fail("table info", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fail("scan table info", err)
		}
		health.ColumnsPresent = append(health.ColumnsPresent, name)
	}
	if err := rows.Err(); err != nil {
		return fail("table info", err)
	}
	health.TableExists = len(health.ColumnsPresent) > 0
	for _, column := range expectedColumns {
		if !slices.Contains(health.ColumnsPresent, column) {
			health.MissingColumns = append(health.MissingColumns, column)
		}
	}

	if health.TableExists {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs").Scan(&health.TotalItems); err != nil {
			return fail("count jobs", err)
		}
	}

	var integrity string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		return fail("integrity check", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrity, "ok")
	return health, nil
}

// Problem summarizes what is wrong with the database, or returns "" when it
// is usable.
func (h DatabaseHealth) Problem() string {
	switch {
	case h.Error != "":
		return h.Error
	case !h.DatabaseExists:
		return "database file missing"
	case h.SchemaVersion != schemaVersion:
		return fmt.Sprintf("schema version %d, expected %d", h.SchemaVersion, schemaVersion)
	case len(h.MissingColumns) > 0:
		return "missing columns: " + strings.Join(h.MissingColumns, ", ")
	case !h.IntegrityCheck:
		return "integrity check failed"
	}
	return ""
}
