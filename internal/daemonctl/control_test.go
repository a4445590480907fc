package daemonctl

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"murmur/internal/testsupport"
)

func TestReadPID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "murmur.pid")
	if pid := ReadPID(path); pid != 0 {
		t.Fatalf("expected 0 for missing pid file, got %d", pid)
	}
	if err := os.WriteFile(path, []byte("4242\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if pid := ReadPID(path); pid != 4242 {
		t.Fatalf("expected 4242, got %d", pid)
	}
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if pid := ReadPID(path); pid != 0 {
		t.Fatalf("expected 0 for unparsable pid, got %d", pid)
	}
}

func TestForceKillProcessRefusesCurrentProcess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "murmur.pid")
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if _, err := ForceKillProcess(path, "", 0); err == nil {
		t.Fatal("expected refusal to kill current process")
	}
	if _, err := ForceKillProcess(filepath.Join(dir, "missing.pid"), "", 0); err == nil {
		t.Fatal("expected error without any pid")
	}
}

func TestStopReportsNotRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.API.Bind = "127.0.0.1:1"

	_, err := StopAndTerminate(context.Background(), cfg, 0)
	if !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestBuildStatusSnapshotOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.API.Bind = "127.0.0.1:1"
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.MustEnqueue(t, store, `{}`)
	testsupport.MustEnqueue(t, store, `{}`)

	status, err := BuildStatusSnapshot(context.Background(), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if status.Running {
		t.Fatal("expected offline snapshot")
	}
	if status.Workflow.QueueStats["pending"] != 2 {
		t.Fatalf("expected 2 pending jobs, got %#v", status.Workflow.QueueStats)
	}
	if len(status.Checks) == 0 {
		t.Fatal("expected local preflight checks")
	}
	if status.QueueDBPath != cfg.QueueDBPath() {
		t.Fatalf("unexpected queue path %q", status.QueueDBPath)
	}
}
