package deps

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"murmur/internal/command"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: "  ", Optional: true},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Path != present {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected blank detail: %q", results[2].Detail)
	}

	missing := Missing(results)
	if len(missing) != 1 || missing[0].Name != "Missing" {
		t.Fatalf("expected only the required missing binary, got %#v", missing)
	}
}

type versionExecutor struct {
	stdout string
	err    error
}

func (v versionExecutor) Run(_ context.Context, inv command.Invocation) (command.Result, error) {
	return command.Result{Stdout: []byte(v.stdout)}, v.err
}

func TestVersionReturnsFirstLine(t *testing.T) {
	exec := versionExecutor{stdout: "ffmpeg version 6.1.1 Copyright (c)\nbuilt with gcc\n"}
	if got := Version(context.Background(), exec, "ffmpeg"); got != "ffmpeg version 6.1.1 Copyright (c)" {
		t.Fatalf("unexpected version %q", got)
	}
	if got := Version(context.Background(), exec, ""); got != "" {
		t.Fatalf("expected empty version for blank binary, got %q", got)
	}
	failing := versionExecutor{err: &command.ExecutionError{Program: "ffmpeg", ExitCode: 1}}
	if got := Version(context.Background(), failing, "ffmpeg"); got != "" {
		t.Fatalf("expected empty version on failure, got %q", got)
	}
}
