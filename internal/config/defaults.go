package config

// Default values for configuration options. Chosen to be safe, reasonable
// starting points that work without any config file beyond account
// identity.
const (
	defaultInitialInterval = "8s" // spec.md §4.7
	defaultMinInterval     = "2s"
	defaultMaxInterval     = "30s"
	defaultBackoffFactor   = 1.5

	defaultCheckpointMinInterval = "30s" // spec.md §9 throttle
	defaultCheckpointMinChanges  = 1

	defaultLogLevel  = "info"
	defaultLogFormat = "auto"
)

// DefaultConfig returns a Config populated with all default values. Used
// as the starting point for TOML decoding, so unset fields retain
// defaults. A missing config file is not replaced by these defaults:
// LoadPath reports it as ErrConfigNotFound.
func DefaultConfig() *Config {
	return &Config{
		PollConfig:    defaultPollConfig(),
		SyncConfig:    defaultSyncConfig(),
		LoggingConfig: defaultLoggingConfig(),
	}
}

func defaultPollConfig() PollConfig {
	return PollConfig{
		InitialInterval: defaultInitialInterval,
		MinInterval:     defaultMinInterval,
		MaxInterval:     defaultMaxInterval,
		BackoffFactor:   defaultBackoffFactor,
	}
}

func defaultSyncConfig() SyncConfig {
	return SyncConfig{
		CheckpointMinInterval: defaultCheckpointMinInterval,
		CheckpointMinChanges:  defaultCheckpointMinChanges,
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  defaultLogLevel,
		Format: defaultLogFormat,
	}
}
