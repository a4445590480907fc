package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"murmur/internal/logging"
	"murmur/internal/services"
)

// Outcome tells Release how the job ended.
type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeFailed
)

func (o Outcome) String() string {
	if o == OutcomeFailed {
		return "failed"
	}
	return "succeeded"
}

// Workspace is one job's private directory. Every intermediate file of the
// job lives inside it.
type Workspace struct {
	store *Store
	jobID string
	dir   string

	mu       sync.Mutex
	released bool
	kept     bool
}

// JobID returns the owning job identifier.
func (w *Workspace) JobID() string { return w.jobID }

// Dir returns the absolute workspace directory.
func (w *Workspace) Dir() string { return w.dir }

// PathFor returns the path for a named stage artifact. The base name is
// reduced to letters, digits, dash and underscore; the extension is kept.
func (w *Workspace) PathFor(name string) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(filepath.Base(name), ext)
	clean := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, base)
	if clean == "" {
		clean = "artifact"
	}
	return filepath.Join(w.dir, clean+strings.ToLower(ext))
}

// FragmentPath returns the path of the index-th speech fragment.
func (w *Workspace) FragmentPath(index int, ext string) string {
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		ext = "wav"
	}
	return filepath.Join(w.dir, fmt.Sprintf("fragment_%04d.%s", index, ext))
}

// Kept reports whether Release left the directory on disk.
func (w *Workspace) Kept() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.kept
}

// Release applies the store's cleanup policy. It is safe to call more than
// once; only the first call acts.
func (w *Workspace) Release(ctx context.Context, outcome Outcome) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.released {
		return nil
	}
	w.released = true
	defer w.store.forget(w.jobID)

	logger := logging.WithContext(ctx, w.store.logger).With(logging.String(logging.FieldJobID, w.jobID))

	keep := false
	switch w.store.policy {
	case PolicyNever:
		keep = true
	case PolicyKeepFailed:
		keep = outcome == OutcomeFailed
	}
	if keep {
		w.kept = true
		logging.WarnWithContext(logger, "workspace retained",
			"workspace_retained",
			logging.String("path", w.dir),
			logging.String("outcome", outcome.String()),
			logging.String("policy", w.store.policy),
			logging.String(logging.FieldErrorHint, "run murmur cleanup or wait for the stale sweep"),
			logging.String(logging.FieldImpact, "disk space held until retention expires"),
		)
		return nil
	}

	if err := os.RemoveAll(w.dir); err != nil {
		return services.Wrap(services.ErrStorage, "workspace", "release", w.dir, err)
	}
	logger.Debug("workspace released", logging.String("outcome", outcome.String()))
	return nil
}
