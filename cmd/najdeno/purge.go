package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/erazemk/najdeno/internal/api"
	"github.com/erazemk/najdeno/internal/store"
)

func newPurgeCommand(ctx *commandContext) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete concluded items no longer referenced by a match and expired logouts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 0 {
				return fmt.Errorf("--older-than-days must not be negative")
			}
			logger, cleanup, err := ctx.logger()
			if err != nil {
				return err
			}
			defer cleanup()

			database, err := ctx.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer database.Close()

			now := time.Now()
			ids, err := store.PurgeConcludedItems(cmd.Context(), database, now.AddDate(0, 0, -days))
			if err != nil {
				return err
			}
			if err := store.SetSetting(cmd.Context(), database, api.LastPurgeSetting, now.UTC().Format(time.RFC3339)); err != nil {
				return err
			}
			tokens, err := store.PruneRevokedTokens(cmd.Context(), database, now)
			if err != nil {
				return err
			}

			logger.Info("purged concluded items",
				zap.Int("count", len(ids)),
				zap.Int("older_than_days", days),
				zap.Int64("expired_revocations", tokens),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %d item(s).\n", len(ids))
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "older-than-days", 90, "Only purge items concluded at least this many days ago")
	return cmd
}
