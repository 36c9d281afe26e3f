package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resolved configuration ready for use by syncengine.Controller.
func Load(path string, logger *slog.Logger) (*Resolved, error) {
	logger.Debug("loading config file", "path", path)

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	resolved, err := Resolve(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: resolving %s: %w", path, err)
	}

	logger.Debug("config file parsed successfully",
		"path", path,
		"account_id", resolved.AccountID,
	)

	return resolved, nil
}

// ErrConfigNotFound is returned by LoadPath when no file exists at the
// given path, so the CLI can print a friendly first-run message instead of
// a parse error.
var ErrConfigNotFound = errors.New("config: no config file found")

// LoadPath reads the config file at path, translating a missing file into
// ErrConfigNotFound.
func LoadPath(path string, logger *slog.Logger) (*Resolved, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, ErrConfigNotFound
	}

	return Load(path, logger)
}

// Resolve converts the TOML-decoded Config into a Resolved value with
// parsed durations and an expanded, absolute local root.
func Resolve(cfg *Config) (*Resolved, error) {
	localRoot, err := expandPath(cfg.AccountConfig.LocalRoot)
	if err != nil {
		return nil, fmt.Errorf("local_root: %w", err)
	}

	checkpointPath, err := expandPath(cfg.AccountConfig.CheckpointPath)
	if err != nil {
		return nil, fmt.Errorf("checkpoint_path: %w", err)
	}

	pollInitial, err := time.ParseDuration(cfg.PollConfig.InitialInterval)
	if err != nil {
		return nil, fmt.Errorf("poll.initial_interval: %w", err)
	}

	pollMin, err := time.ParseDuration(cfg.PollConfig.MinInterval)
	if err != nil {
		return nil, fmt.Errorf("poll.min_interval: %w", err)
	}

	pollMax, err := time.ParseDuration(cfg.PollConfig.MaxInterval)
	if err != nil {
		return nil, fmt.Errorf("poll.max_interval: %w", err)
	}

	checkpointMinInterval, err := time.ParseDuration(cfg.SyncConfig.CheckpointMinInterval)
	if err != nil {
		return nil, fmt.Errorf("sync.checkpoint_min_interval: %w", err)
	}

	return &Resolved{
		AccountID:             cfg.AccountConfig.AccountID,
		RemoteRootID:          cfg.AccountConfig.RemoteRootID,
		LocalRoot:             localRoot,
		CheckpointPath:        checkpointPath,
		PermanentlyDelete:     cfg.AccountConfig.PermanentlyDelete,
		PollInitial:           pollInitial,
		PollMin:               pollMin,
		PollMax:               pollMax,
		PollBackoff:           cfg.PollConfig.BackoffFactor,
		CheckpointMinInterval: checkpointMinInterval,
		CheckpointMinChanges:  cfg.SyncConfig.CheckpointMinChanges,
		LogLevel:              cfg.LoggingConfig.Level,
		LogFormat:             cfg.LoggingConfig.Format,
	}, nil
}

// expandPath expands a leading "~" to the user's home directory and makes
// the result absolute.
func expandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}

	if p == "~" || len(p) >= 2 && p[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}

		if p == "~" {
			p = home
		} else {
			p = filepath.Join(home, p[2:])
		}
	}

	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("making %q absolute: %w", p, err)
	}

	return abs, nil
}
