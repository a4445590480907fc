package artifacts

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"murmur/internal/logging"
	"murmur/internal/services"
)

// Cleanup policies applied by Workspace.Release.
const (
	PolicyAlways     = "always"
	PolicyKeepFailed = "keep_failed"
	PolicyNever      = "never"
)

// Store hands out one isolated directory per job under a shared root.
type Store struct {
	root      string
	policy    string
	minFreeMB int
	logger    *slog.Logger

	mu     sync.Mutex
	active map[string]struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithPolicy sets the cleanup policy (always, keep_failed, never).
func WithPolicy(policy string) Option {
	return func(s *Store) {
		if policy = strings.TrimSpace(policy); policy != "" {
			s.policy = policy
		}
	}
}

// WithMinFreeMB refuses new workspaces when the root filesystem has less free space.
func WithMinFreeMB(mb int) Option {
	return func(s *Store) {
		s.minFreeMB = mb
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore constructs a Store rooted at root.
func NewStore(root string, opts ...Option) *Store {
	s := &Store{
		root:   filepath.Clean(root),
		policy: PolicyAlways,
		active: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "artifacts")
	return s
}

// Root returns the directory that holds every job workspace.
func (s *Store) Root() string {
	return s.root
}

// Policy returns the configured cleanup policy.
func (s *Store) Policy() string {
	return s.policy
}

// Open creates the workspace directory for jobID. A directory left by an
// earlier attempt of the same job, kept by policy or by a crash, is removed
// first. Opening a workspace that is active in this store fails.
func (s *Store) Open(jobID string) (*Workspace, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, services.Wrap(services.ErrStorage, "workspace", "open", fmt.Sprintf("invalid job id %q", jobID), err)
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return nil, services.Wrap(services.ErrStorage, "workspace", "create root", s.root, err)
	}
	if err := s.checkFreeSpace(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if _, busy := s.active[jobID]; busy {
		s.mu.Unlock()
		return nil, services.Wrap(services.ErrStorage, "workspace", "open", "workspace already in use", fs.ErrExist)
	}
	s.active[jobID] = struct{}{}
	s.mu.Unlock()

	dir := filepath.Join(s.root, jobID)
	if err := s.reclaim(jobID, dir); err != nil {
		s.forget(jobID)
		return nil, err
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		s.forget(jobID)
		return nil, services.Wrap(services.ErrStorage, "workspace", "open", dir, err)
	}

	s.logger.Debug("workspace opened",
		logging.String(logging.FieldJobID, jobID),
		logging.String("path", dir),
	)
	return &Workspace{store: s, jobID: jobID, dir: dir}, nil
}

// reclaim removes a leftover workspace from a previous attempt of jobID.
func (s *Store) reclaim(jobID, dir string) error {
	info, err := os.Lstat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return services.Wrap(services.ErrStorage, "workspace", "stat", dir, err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return services.Wrap(services.ErrStorage, "workspace", "reclaim", dir, err)
	}
	s.logger.Info("previous workspace reclaimed",
		logging.String(logging.FieldJobID, jobID),
		logging.String("path", dir),
		logging.String("modified", info.ModTime().Format(time.RFC3339)),
		logging.String(logging.FieldEventType, "workspace_reclaimed"),
	)
	return nil
}

// Cleanup removes the workspace for jobID regardless of policy.
func (s *Store) Cleanup(jobID string) error {
	if _, err := uuid.Parse(jobID); err != nil {
		return services.Wrap(services.ErrStorage, "workspace", "cleanup", fmt.Sprintf("invalid job id %q", jobID), err)
	}
	if err := os.RemoveAll(filepath.Join(s.root, jobID)); err != nil {
		return services.Wrap(services.ErrStorage, "workspace", "cleanup", jobID, err)
	}
	s.forget(jobID)
	return nil
}

// Protect marks workspaces owned by another process, such as jobs a running
// daemon is processing, so CleanStale and List treat them as active.
func (s *Store) Protect(jobIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range jobIDs {
		if id = strings.TrimSpace(id); id != "" {
			s.active[id] = struct{}{}
		}
	}
}

func (s *Store) forget(jobID string) {
	s.mu.Lock()
	delete(s.active, jobID)
	s.mu.Unlock()
}

func (s *Store) isActive(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[name]
	return ok
}

func (s *Store) checkFreeSpace() error {
	if s.minFreeMB <= 0 {
		return nil
	}
	var stat unix.Statfs_t
	if err := unix.Statfs(s.root, &stat); err != nil {
		return services.Wrap(services.ErrStorage, "workspace", "statfs", s.root, err)
	}
	free := stat.Bavail * uint64(stat.Bsize)
	required := uint64(s.minFreeMB) * 1024 * 1024
	if free < required {
		return services.Wrap(services.ErrStorage, "workspace", "free space",
			fmt.Sprintf("%d MiB available, %d MiB required", free/(1024*1024), s.minFreeMB), nil)
	}
	return nil
}
