package config

import (
	"errors"
	"fmt"
	"time"
)

// Validation range constants.
const (
	minPollInterval  = 1 * time.Second
	minBackoffFactor = 1.0
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateAccount(&cfg.AccountConfig)...)
	errs = append(errs, validatePoll(&cfg.PollConfig)...)
	errs = append(errs, validateSync(&cfg.SyncConfig)...)
	errs = append(errs, validateLogging(&cfg.LoggingConfig)...)

	return errors.Join(errs...)
}

func validateAccount(a *AccountConfig) []error {
	var errs []error

	if a.AccountID == "" {
		errs = append(errs, errors.New("account.account_id: must not be empty"))
	}

	if a.RemoteRootID == "" {
		errs = append(errs, errors.New("account.remote_root_id: must not be empty"))
	}

	if a.LocalRoot == "" {
		errs = append(errs, errors.New("account.local_root: must not be empty"))
	}

	if a.CheckpointPath == "" {
		errs = append(errs, errors.New("account.checkpoint_path: must not be empty"))
	}

	return errs
}

func validatePoll(p *PollConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("poll.initial_interval", p.InitialInterval, minPollInterval)...)
	errs = append(errs, validateDurationMin("poll.min_interval", p.MinInterval, minPollInterval)...)
	errs = append(errs, validateDurationMin("poll.max_interval", p.MaxInterval, minPollInterval)...)

	if p.BackoffFactor < minBackoffFactor {
		errs = append(errs, fmt.Errorf("poll.backoff_factor: must be >= %.1f, got %.2f", minBackoffFactor, p.BackoffFactor))
	}

	minD, minErr := time.ParseDuration(p.MinInterval)
	maxD, maxErr := time.ParseDuration(p.MaxInterval)

	if minErr == nil && maxErr == nil && minD > maxD {
		errs = append(errs, fmt.Errorf("poll.min_interval (%s) must not exceed poll.max_interval (%s)", p.MinInterval, p.MaxInterval))
	}

	return errs
}

func validateSync(s *SyncConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("sync.checkpoint_min_interval", s.CheckpointMinInterval, 0)...)

	if s.CheckpointMinChanges < 0 {
		errs = append(errs, fmt.Errorf("sync.checkpoint_min_changes: must be >= 0, got %d", s.CheckpointMinChanges))
	}

	return errs
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}

	return nil
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.Level] {
		errs = append(errs, fmt.Errorf("logging.level: must be one of debug, info, warn, error; got %q", l.Level))
	}

	if !validLogFormats[l.Format] {
		errs = append(errs, fmt.Errorf("logging.format: must be one of auto, text, json; got %q", l.Format))
	}

	return errs
}
