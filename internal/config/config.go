package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StagingDir              string `toml:"staging_dir"`
	OutputDir               string `toml:"output_dir"`
	LogDir                  string `toml:"log_dir"`
	CatalogFile             string `toml:"catalog_file"`
	MinFreeMB               int    `toml:"min_free_mb"`
	WorkspaceRetentionHours int    `toml:"workspace_retention_hours"`
}

// TTS contains configuration for the text-to-speech provider.
type TTS struct {
	Provider       string `toml:"provider"`
	Endpoint       string `toml:"endpoint"`
	HealthURL      string `toml:"health_url"`
	APIKey         string `toml:"api_key"`
	Command        string `toml:"command"`
	AudioFormat    string `toml:"audio_format"`
	RequestTimeout int    `toml:"request_timeout"`
	Concurrency    int    `toml:"concurrency"`
	MaxAttempts    int    `toml:"max_attempts"`
	RetryBackoffMS int    `toml:"retry_backoff_ms"`
}

// FFmpeg contains configuration for the media-transcoding binaries.
type FFmpeg struct {
	FFmpegBinary   string `toml:"ffmpeg_binary"`
	FFprobeBinary  string `toml:"ffprobe_binary"`
	CommandTimeout int    `toml:"command_timeout"`
	OutputFormat   string `toml:"output_format"`
	OutputBitrate  string `toml:"output_bitrate"`
	SampleRate     int    `toml:"sample_rate"`
}

// Pipeline contains synthesis pipeline policy.
type Pipeline struct {
	TempoMultiplier     float64 `toml:"tempo_multiplier"`
	CleanupPolicy       string  `toml:"cleanup_policy"`
	MaxAffirmations     int     `toml:"max_affirmations"`
	MaxAffirmationChars int     `toml:"max_affirmation_chars"`
	JobTimeout          int     `toml:"job_timeout"`
}

// Workflow contains configuration for daemon timing and intervals.
type Workflow struct {
	Workers            int `toml:"workers"`
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
}

// API contains configuration for the job submission HTTP API.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// NATS contains connection settings for the JetStream object store publisher.
type NATS struct {
	URL            string `toml:"url"`
	Bucket         string `toml:"bucket"`
	Subject        string `toml:"subject"`
	ConnectTimeout int    `toml:"connect_timeout"`
}

// Publish selects where finished audio is delivered.
type Publish struct {
	Target string `toml:"target"`
	NATS   NATS   `toml:"nats"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	JobCompleted   bool   `toml:"job_completed"`
	JobFailed      bool   `toml:"job_failed"`
}

// Telemetry contains OpenTelemetry settings.
type Telemetry struct {
	Enabled     bool   `toml:"enabled"`
	ServiceName string `toml:"service_name"`
	TraceStdout bool   `toml:"trace_stdout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for murmur.
//
// Configuration sections by subsystem:
//   - Paths: workspaces, published output, logs and the catalog file
//   - TTS: speech provider transport and concurrency
//   - FFmpeg: transcoding binaries and output encoding
//   - Pipeline: tempo multiplier, cleanup policy and request limits
//   - Workflow: worker count, polling intervals and heartbeats
//   - API: job submission endpoint
//   - Publish: local directory or NATS object store delivery
//   - Notifications: ntfy push notification settings
//   - Telemetry: metrics and stage spans
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	TTS           TTS           `toml:"tts"`
	FFmpeg        FFmpeg        `toml:"ffmpeg"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Workflow      Workflow      `toml:"workflow"`
	API           API           `toml:"api"`
	Publish       Publish       `toml:"publish"`
	Notifications Notifications `toml:"notifications"`
	Telemetry     Telemetry     `toml:"telemetry"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/murmur/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("murmur.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Publish.Target == PublishLocal && strings.TrimSpace(c.Paths.OutputDir) != "" {
		if err := os.MkdirAll(c.Paths.OutputDir, 0o755); err != nil {
			return fmt.Errorf("create output directory %q: %w", c.Paths.OutputDir, err)
		}
	}
	return nil
}

// QueueDBPath returns the location of the job queue database.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.LogDir, "queue.db")
}

// LockPath returns the location of the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "murmurd.lock")
}

// CurrentLogPath returns the link that always points at the newest daemon log.
func (c *Config) CurrentLogPath() string {
	return filepath.Join(c.Paths.LogDir, "murmur.log")
}

// PIDPath returns the file holding the running daemon's process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.LogDir, "murmur.pid")
}

// TTSRequestTimeout returns the per-request TTS timeout.
func (c *Config) TTSRequestTimeout() time.Duration {
	return time.Duration(c.TTS.RequestTimeout) * time.Second
}

// TTSRetryBackoff returns the base delay between TTS retry attempts.
func (c *Config) TTSRetryBackoff() time.Duration {
	return time.Duration(c.TTS.RetryBackoffMS) * time.Millisecond
}

// CommandTimeout returns the per-invocation ffmpeg/ffprobe timeout.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.FFmpeg.CommandTimeout) * time.Second
}

// JobTimeout returns the overall deadline for a single job, or zero when unbounded.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.Pipeline.JobTimeout) * time.Second
}

// NATSConnectTimeout returns the dial timeout for the NATS publisher.
func (c *Config) NATSConnectTimeout() time.Duration {
	return time.Duration(c.Publish.NATS.ConnectTimeout) * time.Second
}

// QueuePollInterval returns how often idle workers look for pending jobs.
func (c *Config) QueuePollInterval() time.Duration {
	return time.Duration(c.Workflow.QueuePollInterval) * time.Second
}

// ErrorRetryInterval returns the pause after a queue error.
func (c *Config) ErrorRetryInterval() time.Duration {
	return time.Duration(c.Workflow.ErrorRetryInterval) * time.Second
}

// HeartbeatInterval returns how often a running job refreshes its heartbeat.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Workflow.HeartbeatInterval) * time.Second
}

// HeartbeatTimeout returns the heartbeat age after which a job is reclaimed.
func (c *Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.Workflow.HeartbeatTimeout) * time.Second
}

// WorkspaceRetention returns how long abandoned job workspaces are kept.
func (c *Config) WorkspaceRetention() time.Duration {
	return time.Duration(c.Paths.WorkspaceRetentionHours) * time.Hour
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
