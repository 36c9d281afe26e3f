package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/drivesync/internal/checkpoint"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the configured account and its checkpoint state",
		Long: `Display the configured account, local root, and remote root, along
with the last persisted checkpoint: whether the initial sync has completed,
the current change token, and how much state is cached.

Reads the checkpoint database directly — does not contact the remote drive
or start the sync engine.`,
		RunE: runStatus,
	}
}

// statusOutput is the JSON/text output schema for the status command.
type statusOutput struct {
	AccountID        string `json:"account_id"`
	LocalRoot        string `json:"local_root"`
	RemoteRootID     string `json:"remote_root_id"`
	CheckpointPath   string `json:"checkpoint_path"`
	HasCheckpoint    bool   `json:"has_checkpoint"`
	Synced           bool   `json:"synced"`
	ChangeToken      string `json:"change_token,omitempty"`
	CachedRecords    int    `json:"cached_records"`
	PendingChanges   int    `json:"pending_changes"`
	MaterializedKeys int    `json:"materialized_keys"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	out := statusOutput{
		AccountID:      cc.Cfg.AccountID,
		LocalRoot:      cc.Cfg.LocalRoot,
		RemoteRootID:   cc.Cfg.RemoteRootID,
		CheckpointPath: cc.Cfg.CheckpointPath,
	}

	store, err := checkpoint.Open(cc.Cfg.CheckpointPath, cc.Logger)
	if err != nil {
		return fmt.Errorf("drivesync: opening checkpoint store: %w", err)
	}
	defer store.Close()

	record, err := store.Load(cmd.Context(), cc.Cfg.AccountID)
	switch {
	case err == nil:
		out.HasCheckpoint = true
		out.Synced = record.Synced
		out.ChangeToken = record.ChangeToken
		out.CachedRecords = len(record.FileInfo)
		out.PendingChanges = len(record.ChangesToExecute)
		out.MaterializedKeys = len(record.OnLocalDrive)
	case errors.Is(err, checkpoint.ErrNoCheckpoint):
		out.HasCheckpoint = false
	default:
		return fmt.Errorf("drivesync: loading checkpoint: %w", err)
	}

	if cc.Flags.JSON {
		return printStatusJSON(out)
	}

	printStatusText(out)

	return nil
}

func printStatusJSON(out statusOutput) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

func printStatusText(out statusOutput) {
	fmt.Printf("Account:        %s\n", out.AccountID)
	fmt.Printf("Local root:     %s\n", out.LocalRoot)
	fmt.Printf("Remote root:    %s\n", out.RemoteRootID)
	fmt.Printf("Checkpoint:     %s\n", out.CheckpointPath)

	if !out.HasCheckpoint {
		fmt.Println("Status:         no checkpoint yet — run 'drivesync start' to begin")
		return
	}

	state := "not yet synced"
	if out.Synced {
		state = "synced"
	}

	fmt.Printf("Status:         %s\n", state)
	fmt.Printf("Change token:   %s\n", out.ChangeToken)
	fmt.Printf("Cached records: %d\n", out.CachedRecords)
	fmt.Printf("Pending:        %d\n", out.PendingChanges)
	fmt.Printf("Materialized:   %d\n", out.MaterializedKeys)
}
