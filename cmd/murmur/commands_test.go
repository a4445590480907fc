package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"murmur/internal/api"
	"murmur/internal/catalog"
	"murmur/internal/daemon"
	"murmur/internal/engine"
	"murmur/internal/pipeline"
	"murmur/internal/preflight"
	"murmur/internal/testsupport"
	"murmur/internal/workflow"
)

func TestCatalogVoicesFiltersByLanguage(t *testing.T) {
	_, path := offlineConfig(t)

	stdout, _, err := runCLI(t, engine.Options{}, "--config", path, "catalog", "voices", "--language", "de", "--json")
	if err != nil {
		t.Fatalf("catalog voices: %v", err)
	}
	var voices []catalog.Voice
	if err := json.Unmarshal([]byte(stdout), &voices); err != nil {
		t.Fatalf("decode voices: %v", err)
	}
	if len(voices) != 1 || voices[0].ID != "klaus" {
		t.Fatalf("expected only klaus, got %+v", voices)
	}

	stdout, _, err = runCLI(t, engine.Options{}, "--config", path, "catalog", "voices")
	if err != nil {
		t.Fatalf("catalog voices: %v", err)
	}
	requireContains(t, stdout, "aria", "klaus", "en-US-AriaNeural")
}

func TestCatalogTracksProbesUndeclaredDurations(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.API.Bind = "127.0.0.1:1"
	tracks := testsupport.WriteCatalog(t, cfg.Paths.CatalogFile, map[string]float64{"rain": 0, "waves": 45})
	path := writeTestConfig(t, cfg)

	exec := testsupport.NewFakeExecutor()
	exec.SetDuration(tracks["rain"], 90)

	stdout, _, err := runCLI(t, engine.Options{Executor: exec}, "--config", path, "catalog", "tracks", "--probe", "--json")
	if err != nil {
		t.Fatalf("catalog tracks: %v", err)
	}
	var listed []catalog.MusicTrack
	if err := json.Unmarshal([]byte(stdout), &listed); err != nil {
		t.Fatalf("decode tracks: %v", err)
	}
	got := map[string]float64{}
	for _, track := range listed {
		got[track.ID] = track.DurationSeconds
	}
	if got["rain"] != 90 || got["waves"] != 45 {
		t.Fatalf("unexpected durations %v", got)
	}
	if len(exec.CallsFor("ffprobe")) != 1 {
		t.Fatalf("expected one ffprobe call, got %d", len(exec.CallsFor("ffprobe")))
	}

	stdout, _, err = runCLI(t, engine.Options{}, "--config", path, "catalog", "tracks")
	if err != nil {
		t.Fatalf("catalog tracks: %v", err)
	}
	requireContains(t, stdout, "RAIN", "WAVES", "45s", "256 B")
}

func TestStatusOffline(t *testing.T) {
	cfg, path := offlineConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.MustEnqueue(t, store, `{}`)

	stdout, _, err := runCLI(t, engine.Options{}, "--config", path, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, stdout, "== Daemon ==", "Not running", "== Queue Status ==", "pending")
}

func TestCleanupRemovesStaleWorkspaces(t *testing.T) {
	cfg, path := offlineConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	old := time.Now().Add(-72 * time.Hour)
	stale := filepath.Join(cfg.Paths.StagingDir, uuid.NewString())
	fresh := filepath.Join(cfg.Paths.StagingDir, uuid.NewString())
	for _, dir := range []string{stale, fresh} {
		testsupport.WriteFile(t, filepath.Join(dir, "speech.mp3"), 512)
	}
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	stdout, _, err := runCLI(t, engine.Options{}, "--config", path, "cleanup", "--list")
	if err != nil {
		t.Fatalf("cleanup --list: %v", err)
	}
	requireContains(t, stdout, filepath.Base(stale), filepath.Base(fresh), "2 workspaces")

	stdout, _, err = runCLI(t, engine.Options{}, "--config", path, "cleanup", "--older-than", "24h")
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	requireContains(t, stdout, "Removed 1 workspaces")
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("expected stale workspace removed, stat err %v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("expected fresh workspace kept: %v", err)
	}
}

func TestTestNotifyWithoutDaemon(t *testing.T) {
	_, path := offlineConfig(t)
	stdout, _, err := runCLI(t, engine.Options{}, "--config", path, "test-notify")
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, stdout, "ntfy topic not configured")

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t)
	cfg.API.Bind = "127.0.0.1:1"
	cfg.Notifications.NtfyTopic = srv.URL + "/murmur"
	path = writeTestConfig(t, cfg)
	stdout, _, err = runCLI(t, engine.Options{}, "--config", path, "test-notify")
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, stdout, "test notification sent")
	if hits.Load() != 1 {
		t.Fatalf("expected one ntfy request, got %d", hits.Load())
	}
}

func TestRenderRunsPipelineInProcess(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.API.Bind = "127.0.0.1:1"
	tracks := testsupport.WriteCatalog(t, cfg.Paths.CatalogFile, map[string]float64{"rain": 60})
	path := writeTestConfig(t, cfg)

	exec := testsupport.NewFakeExecutor()
	exec.SetDuration(tracks["rain"], 60)
	provider := testsupport.NewFakeProvider()

	stdout, stderr, err := runCLI(t, engine.Options{Executor: exec, Provider: provider}, "--config", path,
		"render", "-a", "I am calm", "-a", "I am focused", "--voice", "aria", "--track", "rain", "--json")
	if err != nil {
		t.Fatalf("render: %v\n%s", err, stderr)
	}
	var result pipeline.JobResult
	if err := json.Unmarshal([]byte(stdout), &result); err != nil {
		t.Fatalf("decode result: %v\n%s", err, stdout)
	}
	if result.FragmentCount != 2 || result.DurationSeconds != 60 {
		t.Fatalf("unexpected result %+v", result)
	}
	if filepath.Dir(result.FinalPath) != cfg.Paths.OutputDir {
		t.Fatalf("expected result in output dir, got %s", result.FinalPath)
	}
	if len(provider.Requests()) != 2 {
		t.Fatalf("expected two synthesis requests, got %d", len(provider.Requests()))
	}

	if _, _, err := runCLI(t, engine.Options{Executor: exec, Provider: provider}, "--config", path,
		"render", "-a", "I am calm", "--voice", "nobody", "--track", "rain"); err == nil {
		t.Fatal("expected unknown voice to be rejected")
	}
}

func TestSubmitWaitsOnRunningDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	tracks := testsupport.WriteCatalog(t, cfg.Paths.CatalogFile, map[string]float64{"rain": 60})
	exec := testsupport.NewFakeExecutor()
	exec.SetDuration(tracks["rain"], 60)

	eng, err := engine.Build(context.Background(), cfg, nil, engine.Options{
		Executor:      exec,
		DurationCache: store,
		Provider:      testsupport.NewFakeProvider(),
	})
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close(context.Background()) })

	mgr := workflow.NewManager(cfg, store, eng.Orchestrator, nil)
	d, err := daemon.New(cfg, store, mgr, eng.Orchestrator, nil, daemon.WithPreflight(func(context.Context) []preflight.Result {
		return []preflight.Result{{Name: "Staging directory", Passed: true, Required: true}}
	}))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	cfg.API.Bind = d.APIAddress()
	path := writeTestConfig(t, cfg)

	stdout, stderr, err := runCLI(t, engine.Options{}, "--config", path, "submit",
		"-a", "I am calm", "--voice", "aria", "--track", "rain", "--wait", "--timeout", "20s", "--json")
	if err != nil {
		t.Fatalf("submit --wait: %v\n%s", err, stderr)
	}
	var job api.Job
	if err := json.Unmarshal([]byte(stdout), &job); err != nil {
		t.Fatalf("decode job: %v\n%s", err, stdout)
	}
	if job.Status != "completed" || job.Result == nil || job.Result.FragmentCount != 1 {
		t.Fatalf("unexpected finished job %+v", job)
	}

	stdout, _, err = runCLI(t, engine.Options{}, "--config", path, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, stdout, "Running (pid", "completed")
}

func TestLogsFiltersByJob(t *testing.T) {
	cfg, path := offlineConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	content := `{"msg":"job started","job_id":"abc"}` + "\n" +
		`{"msg":"job started","job_id":"def"}` + "\n" +
		`{"msg":"job completed","job_id":"abc"}` + "\n"
	if err := os.WriteFile(cfg.CurrentLogPath(), []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	stdout, _, err := runCLI(t, engine.Options{}, "--config", path, "logs", "--job", "abc", "-n", "1")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if stdout != `{"msg":"job completed","job_id":"abc"}`+"\n" {
		t.Fatalf("unexpected output %q", stdout)
	}
}
