package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/erazemk/najdeno/internal/model"
)

func newMatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "match <lost|found> <item-id>",
		Short: "Run matching for one item and print the outcome",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
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

			matcher, _, notifier, err := newMatcher(cmd.Context(), cfg, database, logger)
			if err != nil {
				return err
			}
			defer notifier.Wait()

			runCtx, cancel := context.WithTimeout(cmd.Context(), cfg.MatchTimeout())
			defer cancel()

			res, err := matcher.Run(runCtx, model.ItemKind(args[0]), args[1])
			if err != nil && !(errors.Is(err, context.DeadlineExceeded) && res != nil) {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprint(out, renderTable(
				[]string{"Candidates", "Evaluated", "Skipped", "Failures", "Matches"},
				[][]string{{
					strconv.Itoa(res.Candidates),
					strconv.Itoa(res.Evaluated),
					strconv.Itoa(res.Skipped),
					strconv.Itoa(res.Failures),
					strconv.Itoa(res.MatchesFound),
				}},
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight},
			))
			fmt.Fprintln(out)
			if res.Capped {
				fmt.Fprintf(out, "Candidate cap of %d reached, older reports were not considered.\n", cfg.Matching.MaxCandidates)
			}
			if err != nil {
				fmt.Fprintf(out, "Timed out after %s, result is partial.\n", cfg.MatchTimeout())
			}
			return nil
		},
	}
}
