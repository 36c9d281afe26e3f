package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/drivesync/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[account]
account_id = "acct-1"
remote_root_id = "root-1"
local_root = "/tmp/drivesync-root"
checkpoint_path = "/tmp/drivesync.db"
`)

	resolved, err := config.Load(path, discardLogger())
	require.NoError(t, err)

	assert.Equal(t, "acct-1", resolved.AccountID)
	assert.Equal(t, "root-1", resolved.RemoteRootID)
	assert.Equal(t, time.Duration(8*secondUnit), resolved.PollInitial/secondUnit*secondUnit)
	assert.Equal(t, 1.5, resolved.PollBackoff)
	assert.False(t, resolved.PermanentlyDelete)
}

func TestLoadRejectsMissingAccountID(t *testing.T) {
	path := writeConfig(t, `
[account]
remote_root_id = "root-1"
local_root = "/tmp/drivesync-root"
checkpoint_path = "/tmp/drivesync.db"
`)

	_, err := config.Load(path, discardLogger())
	require.Error(t, err)
}

func TestLoadRejectsInvertedPollBounds(t *testing.T) {
	path := writeConfig(t, `
[account]
account_id = "acct-1"
remote_root_id = "root-1"
local_root = "/tmp/drivesync-root"
checkpoint_path = "/tmp/drivesync.db"

[poll]
initial_interval = "8s"
min_interval = "30s"
max_interval = "2s"
backoff_factor = 1.5
`)

	_, err := config.Load(path, discardLogger())
	require.Error(t, err)
}

func TestLoadPathMissingFile(t *testing.T) {
	_, err := config.LoadPath(filepath.Join(t.TempDir(), "missing.toml"), discardLogger())
	require.ErrorIs(t, err, config.ErrConfigNotFound)
}

func TestExpandPathTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	path := writeConfig(t, `
[account]
account_id = "acct-1"
remote_root_id = "root-1"
local_root = "~/drivesync-root"
checkpoint_path = "~/drivesync.db"
`)

	resolved, err := config.Load(path, discardLogger())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "drivesync-root"), resolved.LocalRoot)
	assert.Equal(t, filepath.Join(home, "drivesync.db"), resolved.CheckpointPath)
}

const secondUnit = 1_000_000_000
