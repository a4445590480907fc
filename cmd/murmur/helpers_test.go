package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"murmur/internal/config"
	"murmur/internal/engine"
)

// runCLI executes the root command with args and returns captured output.
func runCLI(t *testing.T, opts engine.Options, args ...string) (string, string, error) {
	t.Helper()
	ctx := newCommandContext()
	ctx.engineOptions = opts
	cmd := newRootCommandWithContext(ctx)

	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// writeTestConfig persists cfg next to its staging directory and returns the path.
func writeTestConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	t.Setenv("MURMUR_CATALOG", "")
	t.Setenv("MURMUR_API_TOKEN", "")
	t.Setenv("NTFY_TOPIC", "")
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(filepath.Dir(cfg.Paths.StagingDir), "config.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func requireContains(t *testing.T, output string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(output, want) {
			t.Fatalf("expected output to contain %q, got:\n%s", want, output)
		}
	}
}
