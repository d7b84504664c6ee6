package config

const (
	defaultWorkDir  = "~/.local/share/reel/jobs"
	defaultCacheDir = "~/.cache/reel"
	defaultLogDir   = "~/.local/share/reel/logs"

	defaultLogFormat = "console"
	defaultLogLevel  = "info"

	defaultFFprobeBinary = "ffprobe"
	defaultFFmpegBinary  = "ffmpeg"

	defaultLightStageTimeout = 300
	defaultHeavyStageTimeout = 7200
	defaultRetryAttempts     = 3
	defaultRetryBackoff      = 2
	defaultCancelGrace       = 10
	defaultMaxConcurrentJobs = 2
	defaultHeartbeatInterval = 15
	defaultHeartbeatTimeout  = 120

	defaultFingerprintTTLDays = 365
	defaultRecognitionTTLDays = 90
	defaultTranslationTTLDays = 90
	defaultGlossaryTTLDays    = 365
	defaultMinReuseQuality    = 0.70
	defaultSupersedeMargin    = 0.05
	defaultCacheMaxGiB        = 50
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:  defaultWorkDir,
			CacheDir: defaultCacheDir,
			LogDir:   defaultLogDir,
		},
		Workflow: Workflow{
			LightStageTimeout: defaultLightStageTimeout,
			HeavyStageTimeout: defaultHeavyStageTimeout,
			RetryAttempts:     defaultRetryAttempts,
			RetryBackoff:      defaultRetryBackoff,
			CancelGrace:       defaultCancelGrace,
			MaxConcurrentJobs: defaultMaxConcurrentJobs,
			HeartbeatInterval: defaultHeartbeatInterval,
			HeartbeatTimeout:  defaultHeartbeatTimeout,
		},
		Cache: Cache{
			Enabled:            true,
			FingerprintTTLDays: defaultFingerprintTTLDays,
			RecognitionTTLDays: defaultRecognitionTTLDays,
			TranslationTTLDays: defaultTranslationTTLDays,
			GlossaryTTLDays:    defaultGlossaryTTLDays,
			MinReuseQuality:    defaultMinReuseQuality,
			SupersedeMargin:    defaultSupersedeMargin,
			MaxGiB:             defaultCacheMaxGiB,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Tools: Tools{
			FFprobe: defaultFFprobeBinary,
			FFmpeg:  defaultFFmpegBinary,
		},
		Stages: map[string]Stage{},
	}
}
