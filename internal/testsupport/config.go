package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"murmur/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.CatalogFile = filepath.Join(base, "catalog.yaml")
	cfgVal.Paths.MinFreeMB = 0
	cfgVal.TTS.Endpoint = "http://127.0.0.1:0/v1/tts"
	cfgVal.API.Bind = "127.0.0.1:0"
	cfgVal.Workflow.QueuePollInterval = 1
	cfgVal.Workflow.ErrorRetryInterval = 1
	cfgVal.Workflow.HeartbeatInterval = 1
	cfgVal.Workflow.HeartbeatTimeout = 5
	cfgVal.Telemetry.Enabled = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithTTSEndpoint points the HTTP provider at the given URL.
func WithTTSEndpoint(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.TTS.Endpoint = url
	}
}

// WithCleanupPolicy overrides the workspace cleanup policy.
func WithCleanupPolicy(policy string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.CleanupPolicy = policy
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg and ffprobe are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
