package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/erazemk/najdeno/internal/store"
)

func newMatchesCommand(ctx *commandContext) *cobra.Command {
	var (
		status string
		item   string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "matches",
		Short: "List recorded matches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := ctx.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer database.Close()

			matches, err := store.ListMatches(cmd.Context(), database, store.MatchFilter{
				ItemID: item,
				Status: status,
				Limit:  limit,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(matches) == 0 {
				fmt.Fprintln(out, "No matches.")
				return nil
			}

			rows := make([][]string, 0, len(matches))
			for _, m := range matches {
				rows = append(rows, []string{
					m.ID,
					m.LostItemName,
					m.FoundItemName,
					m.Campus,
					fmt.Sprintf("%.2f", m.Score),
					m.Status,
					humanize.Time(m.CreatedAt),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Lost", "Found", "Campus", "Score", "Status", "Created"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only show matches with this status (pending, confirmed, rejected)")
	cmd.Flags().StringVar(&item, "item", "", "Only show matches involving this item")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of matches")
	return cmd
}
