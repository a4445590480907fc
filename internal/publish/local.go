package publish

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"murmur/internal/fileutil"
	"murmur/internal/logging"
	"murmur/internal/services"
)

// Local moves results into an output directory as <job id>.<ext>.
type Local struct {
	dir    string
	logger *slog.Logger
}

// NewLocal returns a publisher writing into dir.
func NewLocal(dir string, logger *slog.Logger) *Local {
	return &Local{dir: dir, logger: logging.NewComponentLogger(logger, "publish")}
}

// Dir returns the output directory.
func (l *Local) Dir() string { return l.dir }

// Publish moves path into the output directory. An existing file for the
// same job is replaced.
func (l *Local) Publish(ctx context.Context, jobID, path string) (string, error) {
	if strings.TrimSpace(l.dir) == "" {
		return "", services.Wrap(services.ErrConfiguration, "publish", "local", "output directory is not configured", nil)
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrStorage, "publish", "create output dir", l.dir, err)
	}
	target := filepath.Join(l.dir, jobID+strings.ToLower(filepath.Ext(path)))
	if err := fileutil.MoveFile(path, target); err != nil {
		return "", services.Wrap(services.ErrStorage, "publish", "move result", fmt.Sprintf("%s -> %s", path, target), err)
	}
	logging.WithContext(ctx, l.logger).Info("result published",
		logging.String(logging.FieldEventType, "result_published"),
		logging.String("location", target),
	)
	return target, nil
}

// Close implements Publisher.
func (l *Local) Close() error { return nil }
