package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTTS()
	c.normalizeFFmpeg()
	c.normalizePipeline()
	c.normalizeAPI()
	c.normalizePublish()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaultStagingDir
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if value, ok := os.LookupEnv("MURMUR_CATALOG"); ok && strings.TrimSpace(value) != "" {
		c.Paths.CatalogFile = value
	}
	if strings.TrimSpace(c.Paths.CatalogFile) == "" {
		c.Paths.CatalogFile = defaultCatalogFile
	}
	if c.Paths.CatalogFile, err = expandPath(c.Paths.CatalogFile); err != nil {
		return fmt.Errorf("paths.catalog_file: %w", err)
	}
	if c.Paths.WorkspaceRetentionHours <= 0 {
		c.Paths.WorkspaceRetentionHours = defaultWorkspaceRetentionHours
	}
	return nil
}

func (c *Config) normalizeTTS() {
	c.TTS.Provider = strings.ToLower(strings.TrimSpace(c.TTS.Provider))
	if c.TTS.Provider == "" {
		c.TTS.Provider = defaultTTSProvider
	}
	c.TTS.Endpoint = strings.TrimSpace(c.TTS.Endpoint)
	c.TTS.HealthURL = strings.TrimSpace(c.TTS.HealthURL)
	c.TTS.Command = strings.TrimSpace(c.TTS.Command)
	if value, ok := os.LookupEnv("MURMUR_TTS_API_KEY"); ok && strings.TrimSpace(value) != "" {
		c.TTS.APIKey = value
	}
	c.TTS.APIKey = strings.TrimSpace(c.TTS.APIKey)
	c.TTS.AudioFormat = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.TTS.AudioFormat), "."))
	if c.TTS.AudioFormat == "" {
		c.TTS.AudioFormat = defaultTTSAudioFormat
	}
	if c.TTS.RequestTimeout <= 0 {
		c.TTS.RequestTimeout = defaultTTSRequestTimeout
	}
	if c.TTS.Concurrency <= 0 {
		c.TTS.Concurrency = defaultTTSConcurrency
	}
	if c.TTS.MaxAttempts <= 0 {
		c.TTS.MaxAttempts = defaultTTSMaxAttempts
	}
	if c.TTS.RetryBackoffMS < 0 {
		c.TTS.RetryBackoffMS = 0
	}
}

func (c *Config) normalizeFFmpeg() {
	c.FFmpeg.FFmpegBinary = strings.TrimSpace(c.FFmpeg.FFmpegBinary)
	if c.FFmpeg.FFmpegBinary == "" {
		c.FFmpeg.FFmpegBinary = defaultFFmpegBinary
	}
	c.FFmpeg.FFprobeBinary = strings.TrimSpace(c.FFmpeg.FFprobeBinary)
	if c.FFmpeg.FFprobeBinary == "" {
		c.FFmpeg.FFprobeBinary = defaultFFprobeBinary
	}
	if c.FFmpeg.CommandTimeout <= 0 {
		c.FFmpeg.CommandTimeout = defaultCommandTimeout
	}
	c.FFmpeg.OutputFormat = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.FFmpeg.OutputFormat), "."))
	if c.FFmpeg.OutputFormat == "" {
		c.FFmpeg.OutputFormat = defaultOutputFormat
	}
	c.FFmpeg.OutputBitrate = strings.TrimSpace(c.FFmpeg.OutputBitrate)
	if c.FFmpeg.OutputBitrate == "" {
		c.FFmpeg.OutputBitrate = defaultOutputBitrate
	}
	if c.FFmpeg.SampleRate <= 0 {
		c.FFmpeg.SampleRate = defaultSampleRate
	}
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.TempoMultiplier == 0 {
		c.Pipeline.TempoMultiplier = defaultTempoMultiplier
	}
	c.Pipeline.CleanupPolicy = strings.ToLower(strings.TrimSpace(c.Pipeline.CleanupPolicy))
	if c.Pipeline.CleanupPolicy == "" {
		c.Pipeline.CleanupPolicy = defaultCleanupPolicy
	}
	if c.Pipeline.MaxAffirmations <= 0 {
		c.Pipeline.MaxAffirmations = defaultMaxAffirmations
	}
	if c.Pipeline.MaxAffirmationChars <= 0 {
		c.Pipeline.MaxAffirmationChars = defaultMaxAffirmationChars
	}
	if c.Pipeline.JobTimeout < 0 {
		c.Pipeline.JobTimeout = 0
	}
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if value, ok := os.LookupEnv("MURMUR_API_TOKEN"); ok && strings.TrimSpace(value) != "" {
		c.API.Token = value
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
}

func (c *Config) normalizePublish() {
	c.Publish.Target = strings.ToLower(strings.TrimSpace(c.Publish.Target))
	if c.Publish.Target == "" {
		c.Publish.Target = defaultPublishTarget
	}
	if value, ok := os.LookupEnv("NATS_URL"); ok && strings.TrimSpace(value) != "" {
		c.Publish.NATS.URL = value
	}
	c.Publish.NATS.URL = strings.TrimSpace(c.Publish.NATS.URL)
	if c.Publish.NATS.URL == "" {
		c.Publish.NATS.URL = defaultNATSURL
	}
	c.Publish.NATS.Bucket = strings.TrimSpace(c.Publish.NATS.Bucket)
	if c.Publish.NATS.Bucket == "" {
		c.Publish.NATS.Bucket = defaultNATSBucket
	}
	c.Publish.NATS.Subject = strings.TrimSpace(c.Publish.NATS.Subject)
	if c.Publish.NATS.ConnectTimeout <= 0 {
		c.Publish.NATS.ConnectTimeout = defaultNATSConnectTimeout
	}
}

func (c *Config) normalizeNotifications() {
	if value, ok := os.LookupEnv("NTFY_TOPIC"); ok && strings.TrimSpace(value) != "" {
		c.Notifications.NtfyTopic = value
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
