package config

// Recognized values for enumerated settings.
const (
	ProviderHTTP    = "http"
	ProviderCommand = "command"

	PublishLocal = "local"
	PublishNATS  = "nats"

	CleanupAlways     = "always"
	CleanupKeepFailed = "keep_failed"
	CleanupNever      = "never"
)

const (
	defaultStagingDir              = "~/.local/share/murmur/staging"
	defaultOutputDir               = "~/.local/share/murmur/output"
	defaultLogDir                  = "~/.local/share/murmur/logs"
	defaultCatalogFile             = "~/.config/murmur/catalog.yaml"
	defaultMinFreeMB               = 512
	defaultWorkspaceRetentionHours = 24
	defaultTTSProvider             = ProviderHTTP
	defaultTTSAudioFormat          = "wav"
	defaultTTSRequestTimeout       = 30
	defaultTTSConcurrency          = 4
	defaultTTSMaxAttempts          = 1
	defaultTTSRetryBackoffMS       = 500
	defaultFFmpegBinary            = "ffmpeg"
	defaultFFprobeBinary           = "ffprobe"
	defaultCommandTimeout          = 300
	defaultOutputFormat            = "mp3"
	defaultOutputBitrate           = "192k"
	defaultSampleRate              = 44100
	defaultTempoMultiplier         = 1.5
	defaultCleanupPolicy           = CleanupAlways
	defaultMaxAffirmations         = 200
	defaultMaxAffirmationChars     = 500
	defaultWorkflowWorkers         = 2
	defaultQueuePollInterval       = 2
	defaultErrorRetryInterval      = 10
	defaultHeartbeatInterval       = 15
	defaultHeartbeatTimeout        = 120
	defaultAPIBind                 = "127.0.0.1:7488"
	defaultPublishTarget           = PublishLocal
	defaultNATSURL                 = "nats://127.0.0.1:4222"
	defaultNATSBucket              = "murmur-audio"
	defaultNATSSubject             = "murmur.jobs.completed"
	defaultNATSConnectTimeout      = 5
	defaultNotifyRequestTimeout    = 10
	defaultTelemetryServiceName    = "murmur"
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir:              defaultStagingDir,
			OutputDir:               defaultOutputDir,
			LogDir:                  defaultLogDir,
			CatalogFile:             defaultCatalogFile,
			MinFreeMB:               defaultMinFreeMB,
			WorkspaceRetentionHours: defaultWorkspaceRetentionHours,
		},
		TTS: TTS{
			Provider:       defaultTTSProvider,
			AudioFormat:    defaultTTSAudioFormat,
			RequestTimeout: defaultTTSRequestTimeout,
			Concurrency:    defaultTTSConcurrency,
			MaxAttempts:    defaultTTSMaxAttempts,
			RetryBackoffMS: defaultTTSRetryBackoffMS,
		},
		FFmpeg: FFmpeg{
			FFmpegBinary:   defaultFFmpegBinary,
			FFprobeBinary:  defaultFFprobeBinary,
			CommandTimeout: defaultCommandTimeout,
			OutputFormat:   defaultOutputFormat,
			OutputBitrate:  defaultOutputBitrate,
			SampleRate:     defaultSampleRate,
		},
		Pipeline: Pipeline{
			TempoMultiplier:     defaultTempoMultiplier,
			CleanupPolicy:       defaultCleanupPolicy,
			MaxAffirmations:     defaultMaxAffirmations,
			MaxAffirmationChars: defaultMaxAffirmationChars,
		},
		Workflow: Workflow{
			Workers:            defaultWorkflowWorkers,
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Publish: Publish{
			Target: defaultPublishTarget,
			NATS: NATS{
				URL:            defaultNATSURL,
				Bucket:         defaultNATSBucket,
				Subject:        defaultNATSSubject,
				ConnectTimeout: defaultNATSConnectTimeout,
			},
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			JobCompleted:   true,
			JobFailed:      true,
		},
		Telemetry: Telemetry{
			Enabled:     true,
			ServiceName: defaultTelemetryServiceName,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
