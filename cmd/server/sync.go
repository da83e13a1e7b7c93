package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/denapp-control/backend/internal/agenda"
	"github.com/denapp-control/backend/internal/storage/models"
)

func newSyncCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one agenda sync, persist the snapshot and print the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.db.Close()

			result, syncErr := a.service.Sync(ctx, models.SyncTriggerManual)
			if result != nil {
				if err := printJSON(cmd, result); err != nil {
					return err
				}
			}
			return syncErr
		},
	}
}

func newCheckSheetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-sheet",
		Short: "Check that the agenda sheet is reachable and has the expected header",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			store, err := remoteStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if store == nil {
				return agenda.ErrUnconfigured
			}

			info, err := store.TestConnection(cmd.Context())
			if err != nil {
				return fmt.Errorf("check sheet: %w", err)
			}
			if err := printJSON(cmd, info); err != nil {
				return err
			}
			for _, w := range agenda.CheckHeader(info.Header) {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
			}
			return nil
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
