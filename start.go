package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/drivesync/internal/checkpoint"
	"github.com/tonimelisma/drivesync/internal/syncengine"
)

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the sync engine for the configured account",
		Long: `Run the initial bulk sync (if not already synced) and then keep the
local directory and the remote drive synchronized until interrupted.`,
		RunE: runStart,
	}
}

func runStart(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	ctrl, store, err := buildController(cmd.Context(), cc)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notify := func(msg string) { printStartEvent(cc, "status", msg) }

	if err := ctrl.Start(ctx, notify); err != nil {
		return fmt.Errorf("drivesync: starting sync engine: %w", err)
	}

	cc.Logger.Info("sync engine started", slog.String("local_root", cc.Cfg.LocalRoot))

	runEventLoop(ctx, cc, ctrl)

	return ctrl.Close()
}

// runEventLoop ranges over the Controller's event channels until ctx is
// canceled, per spec.md §6's syncing(bool)/filesChanged(summary) events.
func runEventLoop(ctx context.Context, cc *CLIContext, ctrl *syncengine.Controller) {
	for {
		select {
		case <-ctx.Done():
			return
		case syncing, ok := <-ctrl.Syncing():
			if !ok {
				return
			}

			if syncing {
				printStartEvent(cc, "syncing", "sync in progress")
			} else {
				printStartEvent(cc, "syncing", "up to date")
			}
		case summary, ok := <-ctrl.FilesChanged():
			if !ok {
				return
			}

			if !summary.Empty() {
				printFilesChanged(cc, summary)
			}
		case err, ok := <-ctrl.Errors():
			if !ok {
				return
			}

			cc.Logger.Error("sync engine error", slog.Any("err", err))
		}
	}
}

func printStartEvent(cc *CLIContext, kind, message string) {
	if cc.Flags.JSON {
		_ = json.NewEncoder(os.Stdout).Encode(map[string]string{"event": kind, "message": message})
		return
	}

	cc.Statusf("%s\n", message)
}

func printFilesChanged(cc *CLIContext, summary syncengine.ChangeSummary) {
	if cc.Flags.JSON {
		_ = json.NewEncoder(os.Stdout).Encode(struct {
			Event      string `json:"event"`
			Added      int    `json:"added"`
			Removed    int    `json:"removed"`
			Updated    int    `json:"updated"`
			MovedTrash int    `json:"moved_trash"`
		}{"files_changed", summary.Added, summary.Removed, summary.Updated, summary.MovedTrash})

		return
	}

	cc.Statusf("changes applied: %d added, %d removed, %d updated, %d trashed\n",
		summary.Added, summary.Removed, summary.Updated, summary.MovedTrash)
}

// buildController wires a syncengine.Controller from resolved config,
// opening its Checkpoint Store and Remote Client. Callers must Close the
// returned Store once done with the Controller.
func buildController(ctx context.Context, cc *CLIContext) (*syncengine.Controller, *checkpoint.Store, error) {
	client, err := newRemoteClient(ctx, cc.Logger)
	if err != nil {
		return nil, nil, err
	}

	store, err := checkpoint.Open(cc.Cfg.CheckpointPath, cc.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("drivesync: opening checkpoint store: %w", err)
	}

	params := syncengine.Params{
		AccountID:         cc.Cfg.AccountID,
		RootID:            cc.Cfg.RemoteRootID,
		RootPath:          cc.Cfg.LocalRoot,
		PermanentlyDelete: cc.Cfg.PermanentlyDelete,
		Poll: syncengine.PollParams{
			Initial: cc.Cfg.PollInitial,
			Min:     cc.Cfg.PollMin,
			Max:     cc.Cfg.PollMax,
			Backoff: cc.Cfg.PollBackoff,
		},
		CheckpointMinInterval: cc.Cfg.CheckpointMinInterval,
		CheckpointMinChanges:  cc.Cfg.CheckpointMinChanges,
	}

	ctrl := syncengine.NewController(params, client, store, cc.Logger)

	return ctrl, store, nil
}
