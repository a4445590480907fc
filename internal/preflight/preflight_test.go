package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	natstest "github.com/nats-io/nats-server/v2/test"

	"murmur/internal/config"
	"murmur/internal/testsupport"
	"murmur/internal/tts"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckFreeSpace("space", dir, 0); !result.Passed {
		t.Fatalf("expected pass without minimum, got %s", result.Detail)
	}
	result := CheckFreeSpace("space", dir, 1<<30)
	if result.Passed {
		t.Fatal("expected failure for an absurd minimum")
	}
	if !strings.Contains(result.Detail, "below") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	tracks := testsupport.WriteCatalog(t, path, map[string]float64{"rain": 30, "waves": 40})

	result := CheckCatalog(path)
	if !result.Passed || result.Detail != "2 voices, 2 tracks" {
		t.Fatalf("unexpected result %+v", result)
	}

	if err := os.Remove(tracks["waves"]); err != nil {
		t.Fatal(err)
	}
	result = CheckCatalog(path)
	if result.Passed || !strings.Contains(result.Detail, "waves") {
		t.Fatalf("expected missing track failure, got %+v", result)
	}

	if result := CheckCatalog(filepath.Join(t.TempDir(), "missing.yaml")); result.Passed {
		t.Fatal("expected failure for missing catalog")
	}
}

type healthProvider struct {
	*testsupport.FakeProvider
	err error
}

func (h healthProvider) HealthCheck(context.Context) error { return h.err }

func TestCheckTTS(t *testing.T) {
	ok := CheckTTS(context.Background(), testsupport.NewFakeProvider())
	if !ok.Passed || ok.Name != "TTS (fake)" {
		t.Fatalf("unexpected result %+v", ok)
	}
	var provider tts.Provider = healthProvider{FakeProvider: testsupport.NewFakeProvider(), err: context.DeadlineExceeded}
	failed := CheckTTS(context.Background(), provider)
	if failed.Passed || failed.Detail != "health check timed out" {
		t.Fatalf("unexpected result %+v", failed)
	}
	failed = CheckTTS(context.Background(), healthProvider{FakeProvider: testsupport.NewFakeProvider(), err: errors.New("connection refused")})
	if failed.Passed || failed.Detail != "connection refused" {
		t.Fatalf("unexpected result %+v", failed)
	}
}

func TestCheckSystemDepsIncludesTTSCommand(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("ffmpeg", "ffprobe", "piper"))
	cfg.TTS.Provider = config.ProviderCommand
	cfg.TTS.Command = "piper --model '{voice}' --output_file {output}"

	statuses := CheckSystemDeps(cfg)
	if len(statuses) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(statuses))
	}
	for _, status := range statuses {
		if !status.Available {
			t.Fatalf("expected %s available, got %+v", status.Name, status)
		}
	}
	if statuses[2].Command != "piper" {
		t.Fatalf("expected piper command, got %q", statuses[2].Command)
	}
}

func TestRunAllReportsRequiredFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	testsupport.WriteCatalog(t, cfg.Paths.CatalogFile, map[string]float64{"rain": 30})
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := RunAll(context.Background(), cfg, testsupport.NewFakeProvider())
	if err := RequiredFailures(results); err != nil {
		t.Fatalf("expected all checks to pass: %v", err)
	}

	cfg.FFmpeg.FFmpegBinary = "clearly-not-ffmpeg"
	results = RunAll(context.Background(), cfg, nil)
	err := RequiredFailures(results)
	if err == nil || !strings.Contains(err.Error(), "FFmpeg") {
		t.Fatalf("expected FFmpeg failure, got %v", err)
	}
}

func TestCheckNATS(t *testing.T) {
	opts := natstest.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	srv := natstest.RunServer(&opts)
	defer srv.Shutdown()

	result := CheckNATS(context.Background(), srv.ClientURL(), 2*time.Second)
	if !result.Passed {
		t.Fatalf("expected pass, got %s", result.Detail)
	}

	result = CheckNATS(context.Background(), "nats://127.0.0.1:1", 200*time.Millisecond)
	if result.Passed {
		t.Fatal("expected failure for unreachable server")
	}
}

func TestCheckQueueDatabase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.MustEnqueue(t, store, `{}`)

	result := CheckQueueDatabase(context.Background(), store)
	if !result.Passed || !result.Required {
		t.Fatalf("expected passing required check, got %#v", result)
	}
	if !strings.Contains(result.Detail, "1 jobs") {
		t.Fatalf("expected job count in detail, got %q", result.Detail)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	result = CheckQueueDatabase(context.Background(), store)
	if result.Passed {
		t.Fatal("expected closed database to fail the check")
	}
}
