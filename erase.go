package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/drivesync/internal/checkpoint"
)

func newEraseCmd() *cobra.Command {
	var flagYes bool

	cmd := &cobra.Command{
		Use:   "erase",
		Short: "Erase the persisted checkpoint for the configured account",
		Long: `Delete the checkpoint record (change token, cached metadata, and
materialized set) for the configured account. The next 'drivesync start'
will perform a full initial sync from scratch.

Does not touch files on the local root or the remote drive.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runErase(cmd, flagYes)
		},
	}

	cmd.Flags().BoolVar(&flagYes, "yes", false, "confirm the erase (required; without it the command refuses)")

	return cmd
}

func runErase(cmd *cobra.Command, yes bool) error {
	cc := mustCLIContext(cmd.Context())

	if !yes {
		return fmt.Errorf("drivesync: refusing to erase checkpoint for %q without --yes", cc.Cfg.AccountID)
	}

	store, err := checkpoint.Open(cc.Cfg.CheckpointPath, cc.Logger)
	if err != nil {
		return fmt.Errorf("drivesync: opening checkpoint store: %w", err)
	}
	defer store.Close()

	if err := store.Erase(cmd.Context(), cc.Cfg.AccountID); err != nil {
		return fmt.Errorf("drivesync: erasing checkpoint: %w", err)
	}

	cc.Statusf("checkpoint erased for account %q\n", cc.Cfg.AccountID)

	return nil
}
