// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for drivesync.
package config

import "time"

// Config is the top-level configuration structure for one bound account.
// drivesync is explicitly single-account (spec Non-goal: multiple
// simultaneous accounts), so unlike a multi-drive client there is no
// per-drive section — every field applies to the one configured account.
type Config struct {
	AccountConfig AccountConfig `toml:"account"`
	PollConfig    PollConfig    `toml:"poll"`
	SyncConfig    SyncConfig    `toml:"sync"`
	LoggingConfig LoggingConfig `toml:"logging"`
}

// AccountConfig identifies the bound account and the two sync endpoints.
type AccountConfig struct {
	AccountID         string `toml:"account_id"`
	RemoteRootID      string `toml:"remote_root_id"`
	LocalRoot         string `toml:"local_root"`
	CheckpointPath    string `toml:"checkpoint_path"`
	PermanentlyDelete bool   `toml:"permanently_delete"`
}

// PollConfig controls the Remote Change Poller's adaptive interval
// (spec.md §4.7).
type PollConfig struct {
	InitialInterval string  `toml:"initial_interval"`
	MinInterval     string  `toml:"min_interval"`
	MaxInterval     string  `toml:"max_interval"`
	BackoffFactor   float64 `toml:"backoff_factor"`
}

// SyncConfig controls checkpoint throttling (spec.md §9, "Checkpointing
// granularity": a time-and-change-count threshold gates checkpoint writes).
type SyncConfig struct {
	CheckpointMinInterval string `toml:"checkpoint_min_interval"`
	CheckpointMinChanges  int    `toml:"checkpoint_min_changes"`
}

// LoggingConfig controls the ambient slog logger.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "auto", "text" or "json"
}

// Resolved is the fully-parsed, duration-typed form of Config, ready to
// hand to syncengine.Controller.
type Resolved struct {
	AccountID         string
	RemoteRootID      string
	LocalRoot         string
	CheckpointPath    string
	PermanentlyDelete bool

	PollInitial time.Duration
	PollMin     time.Duration
	PollMax     time.Duration
	PollBackoff float64

	CheckpointMinInterval time.Duration
	CheckpointMinChanges  int

	LogLevel  string
	LogFormat string
}
