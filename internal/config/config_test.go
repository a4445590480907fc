package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"murmur/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("MURMUR_TTS_API_KEY", "")
	t.Setenv("NTFY_TOPIC", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantStaging := filepath.Join(tempHome, ".local", "share", "murmur", "staging")
	if cfg.Paths.StagingDir != wantStaging {
		t.Fatalf("unexpected staging dir: got %q want %q", cfg.Paths.StagingDir, wantStaging)
	}
	if cfg.Paths.CatalogFile != filepath.Join(tempHome, ".config", "murmur", "catalog.yaml") {
		t.Fatalf("unexpected catalog file: %q", cfg.Paths.CatalogFile)
	}
	if cfg.API.Bind != "127.0.0.1:7488" {
		t.Fatalf("unexpected api bind: %q", cfg.API.Bind)
	}
	if cfg.Pipeline.TempoMultiplier != 1.5 {
		t.Fatalf("expected tempo multiplier 1.5, got %v", cfg.Pipeline.TempoMultiplier)
	}
	if cfg.Pipeline.CleanupPolicy != config.CleanupAlways {
		t.Fatalf("expected cleanup policy always, got %q", cfg.Pipeline.CleanupPolicy)
	}
	if cfg.TTS.Concurrency != 4 {
		t.Fatalf("expected tts concurrency 4, got %d", cfg.TTS.Concurrency)
	}
	if cfg.TTS.MaxAttempts != 1 {
		t.Fatalf("expected single tts attempt by default, got %d", cfg.TTS.MaxAttempts)
	}
	if cfg.Publish.Target != config.PublishLocal {
		t.Fatalf("expected local publish target, got %q", cfg.Publish.Target)
	}
	if cfg.QueueDBPath() != filepath.Join(cfg.Paths.LogDir, "queue.db") {
		t.Fatalf("unexpected queue path %q", cfg.QueueDBPath())
	}
	if cfg.CommandTimeout() != 300*time.Second {
		t.Fatalf("unexpected command timeout %s", cfg.CommandTimeout())
	}
	if cfg.JobTimeout() != 0 {
		t.Fatalf("expected job timeout disabled, got %s", cfg.JobTimeout())
	}
}

func TestLoadCustomPath(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "murmur.toml")

	type payload struct {
		TTS struct {
			Provider string `toml:"provider"`
			Command  string `toml:"command"`
		} `toml:"tts"`
		Pipeline struct {
			TempoMultiplier float64 `toml:"tempo_multiplier"`
			CleanupPolicy   string  `toml:"cleanup_policy"`
		} `toml:"pipeline"`
		Workflow struct {
			HeartbeatInterval int `toml:"heartbeat_interval"`
			HeartbeatTimeout  int `toml:"heartbeat_timeout"`
		} `toml:"workflow"`
	}
	custom := payload{}
	custom.TTS.Provider = "Command"
	custom.TTS.Command = "piper --output_file {output}"
	custom.Pipeline.TempoMultiplier = 1.25
	custom.Pipeline.CleanupPolicy = "KEEP_FAILED"
	custom.Workflow.HeartbeatInterval = 20
	custom.Workflow.HeartbeatTimeout = 200
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.TTS.Provider != config.ProviderCommand {
		t.Fatalf("expected provider normalized to command, got %q", cfg.TTS.Provider)
	}
	if cfg.Pipeline.TempoMultiplier != 1.25 {
		t.Fatalf("expected tempo 1.25, got %v", cfg.Pipeline.TempoMultiplier)
	}
	if cfg.Pipeline.CleanupPolicy != config.CleanupKeepFailed {
		t.Fatalf("expected keep_failed, got %q", cfg.Pipeline.CleanupPolicy)
	}
	if cfg.Workflow.HeartbeatInterval != 20 {
		t.Fatalf("expected heartbeat interval 20, got %d", cfg.Workflow.HeartbeatInterval)
	}
	if cfg.Workflow.HeartbeatTimeout != 200 {
		t.Fatalf("expected heartbeat timeout 200, got %d", cfg.Workflow.HeartbeatTimeout)
	}
}

func TestEnvVarOverridesConfigFileForSecrets(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	configPath := filepath.Join(t.TempDir(), "murmur.toml")

	type payload struct {
		TTS struct {
			APIKey string `toml:"api_key"`
		} `toml:"tts"`
		API struct {
			Token string `toml:"token"`
		} `toml:"api"`
		Notifications struct {
			NtfyTopic string `toml:"ntfy_topic"`
		} `toml:"notifications"`
	}
	custom := payload{}
	custom.TTS.APIKey = "file-tts"
	custom.API.Token = "file-token"
	custom.Notifications.NtfyTopic = "https://ntfy.sh/file"

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	t.Setenv("MURMUR_TTS_API_KEY", "env-tts")
	t.Setenv("MURMUR_API_TOKEN", "env-token")
	t.Setenv("NTFY_TOPIC", "https://ntfy.sh/env")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.TTS.APIKey != "env-tts" {
		t.Errorf("expected TTS key from env, got %q", cfg.TTS.APIKey)
	}
	if cfg.API.Token != "env-token" {
		t.Errorf("expected API token from env, got %q", cfg.API.Token)
	}
	if cfg.Notifications.NtfyTopic != "https://ntfy.sh/env" {
		t.Errorf("expected ntfy topic from env, got %q", cfg.Notifications.NtfyTopic)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "your_tts_api_key_here") {
		t.Fatalf("sample config missing placeholder TTS key: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.StagingDir, "murmur") {
		t.Fatalf("expected staging dir to contain murmur, got %q", cfg.Paths.StagingDir)
	}
	if cfg.Publish.NATS.Bucket != "murmur-audio" {
		t.Fatalf("expected nested nats section to decode, got %q", cfg.Publish.NATS.Bucket)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"heartbeat interval", func(c *config.Config) { c.Workflow.HeartbeatInterval = 0 }},
		{"timeout <= interval", func(c *config.Config) { c.Workflow.HeartbeatTimeout = c.Workflow.HeartbeatInterval }},
		{"workers", func(c *config.Config) { c.Workflow.Workers = 0 }},
		{"provider", func(c *config.Config) { c.TTS.Provider = "grpc" }},
		{"command provider without command", func(c *config.Config) { c.TTS.Provider = config.ProviderCommand }},
		{"tempo", func(c *config.Config) { c.Pipeline.TempoMultiplier = 8 }},
		{"cleanup policy", func(c *config.Config) { c.Pipeline.CleanupPolicy = "sometimes" }},
		{"publish target", func(c *config.Config) { c.Publish.Target = "s3" }},
		{"output format", func(c *config.Config) { c.FFmpeg.OutputFormat = "aiff" }},
		{"sample rate", func(c *config.Config) { c.FFmpeg.SampleRate = 100 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for %s", tc.name)
			}
		})
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}
