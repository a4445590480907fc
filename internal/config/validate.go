package config

import (
	"errors"
	"fmt"
	"strings"
)

var supportedAudioFormats = map[string]struct{}{
	"wav":  {},
	"mp3":  {},
	"ogg":  {},
	"flac": {},
	"m4a":  {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTTS(); err != nil {
		return err
	}
	if err := c.validateFFmpeg(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validatePublish(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateTTS() error {
	switch c.TTS.Provider {
	case ProviderHTTP:
		// Endpoint may be empty until the first job; preflight reports it.
	case ProviderCommand:
		if c.TTS.Command == "" {
			return errors.New("tts.command must be set when tts.provider is \"command\"")
		}
	default:
		return fmt.Errorf("tts.provider: unsupported value %q (expected http or command)", c.TTS.Provider)
	}
	if _, ok := supportedAudioFormats[c.TTS.AudioFormat]; !ok {
		return fmt.Errorf("tts.audio_format: unsupported value %q", c.TTS.AudioFormat)
	}
	if c.TTS.Concurrency > 32 {
		return errors.New("tts.concurrency must be between 1 and 32")
	}
	if c.TTS.MaxAttempts > 10 {
		return errors.New("tts.max_attempts must be between 1 and 10")
	}
	return nil
}

func (c *Config) validateFFmpeg() error {
	if _, ok := supportedAudioFormats[c.FFmpeg.OutputFormat]; !ok {
		return fmt.Errorf("ffmpeg.output_format: unsupported value %q", c.FFmpeg.OutputFormat)
	}
	if c.FFmpeg.SampleRate < 8000 || c.FFmpeg.SampleRate > 192000 {
		return errors.New("ffmpeg.sample_rate must be between 8000 and 192000")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.TempoMultiplier < 0.25 || c.Pipeline.TempoMultiplier > 4 {
		return errors.New("pipeline.tempo_multiplier must be between 0.25 and 4")
	}
	switch c.Pipeline.CleanupPolicy {
	case CleanupAlways, CleanupKeepFailed, CleanupNever:
	default:
		return fmt.Errorf("pipeline.cleanup_policy: unsupported value %q (expected always, keep_failed or never)", c.Pipeline.CleanupPolicy)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.workers":              c.Workflow.Workers,
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validatePublish() error {
	switch c.Publish.Target {
	case PublishLocal:
		if strings.TrimSpace(c.Paths.OutputDir) == "" {
			return errors.New("paths.output_dir must be set when publish.target is \"local\"")
		}
	case PublishNATS:
		if c.Publish.NATS.URL == "" {
			return errors.New("publish.nats.url must be set when publish.target is \"nats\"")
		}
	default:
		return fmt.Errorf("publish.target: unsupported value %q (expected local or nats)", c.Publish.Target)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
