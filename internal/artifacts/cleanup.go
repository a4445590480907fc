package artifacts

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"murmur/internal/logging"
)

// CleanStaleResult contains the outcome of a stale workspace sweep.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes job workspaces older than maxAge. Workspaces opened by
// this store and not yet released are skipped, as are directories whose name
// is not a job id.
func (s *Store) CleanStale(ctx context.Context, maxAge time.Duration) CleanStaleResult {
	result := CleanStaleResult{}
	logger := logging.WithContext(ctx, s.logger)

	entries, err := os.ReadDir(s.root)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: s.root, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if !entry.IsDir() {
			continue
		}
		if _, err := uuid.Parse(entry.Name()); err != nil {
			continue
		}
		if s.isActive(entry.Name()) {
			continue
		}

		dirPath := filepath.Join(s.root, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		if err := os.RemoveAll(dirPath); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			logger.Warn("failed to remove stale workspace",
				logging.String("path", dirPath),
				logging.Error(err),
				logging.String(logging.FieldEventType, "workspace_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, dirPath)
		logger.Info("removed stale workspace",
			logging.String("path", dirPath),
			logging.Duration("age", time.Since(info.ModTime())),
			logging.String(logging.FieldEventType, "workspace_cleanup"),
		)
	}

	return result
}

// DirInfo contains metadata about a job workspace.
type DirInfo struct {
	JobID   string
	Path    string
	ModTime time.Time
	Size    int64
	Active  bool
}

// List returns every job workspace under the root, oldest first.
func (s *Store) List() ([]DirInfo, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var dirs []DirInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := uuid.Parse(entry.Name()); err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		dirPath := filepath.Join(s.root, entry.Name())
		size, _ := dirSize(dirPath)
		dirs = append(dirs, DirInfo{
			JobID:   entry.Name(),
			Path:    dirPath,
			ModTime: info.ModTime(),
			Size:    size,
			Active:  s.isActive(entry.Name()),
		})
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].ModTime.Before(dirs[j].ModTime) })
	return dirs, nil
}

func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
