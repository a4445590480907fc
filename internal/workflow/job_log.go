package workflow

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"murmur/internal/config"
	"murmur/internal/logging"
	"murmur/internal/queue"
)

// JobLogger writes a dedicated log file per job under <log_dir>/jobs.
type JobLogger struct {
	baseDir string
	level   string
	format  string
}

// NewJobLogger creates a job logger. Without a log directory it is disabled.
func NewJobLogger(cfg *config.Config) *JobLogger {
	j := &JobLogger{level: "info", format: "json"}
	if cfg == nil {
		return j
	}
	if cfg.Paths.LogDir != "" {
		j.baseDir = filepath.Join(cfg.Paths.LogDir, "jobs")
	}
	if strings.TrimSpace(cfg.Logging.Level) != "" {
		j.level = cfg.Logging.Level
	}
	return j
}

// Path returns the log file for jobID, or "" when disabled.
func (j *JobLogger) Path(jobID string) string {
	if j == nil || j.baseDir == "" || strings.TrimSpace(jobID) == "" {
		return ""
	}
	return filepath.Join(j.baseDir, jobID+".log")
}

// Attach returns base teed into the job's log file. The returned func closes
// the file and must always be called.
func (j *JobLogger) Attach(base *slog.Logger, item *queue.Item) (*slog.Logger, func()) {
	logger := base.With(logging.String(logging.FieldJobID, item.JobID))
	path := j.Path(item.JobID)
	if path == "" {
		return logger, func() {}
	}
	file, err := j.open(path)
	if err != nil {
		logger.Warn("job log unavailable", logging.Error(err), logging.String("path", path))
		return logger, func() {}
	}
	handler, err := logging.NewWriterHandler(file, logging.Options{Level: j.level, Format: j.format})
	if err != nil {
		_ = file.Close()
		logger.Warn("failed to create job log writer", logging.Error(err))
		return logger, func() {}
	}
	teed := logging.TeeLogger(base, handler).With(logging.String(logging.FieldJobID, item.JobID))
	return teed, func() { _ = file.Close() }
}

func (j *JobLogger) open(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure job log directory: %w", err)
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
