package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/erazemk/najdeno/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	sample := &cobra.Command{
		Use:         "sample",
		Short:       "Print a sample configuration file",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(cmd.OutOrStdout(), config.SampleConfig())
			return nil
		},
	}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Load the configuration and report problems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Configuration is valid.")
			fmt.Fprintf(out, "  Database:   %s\n", cfg.Database.Path)
			fmt.Fprintf(out, "  Listen:     %s\n", cfg.Server.Addr)
			fmt.Fprintf(out, "  Classifier: %s\n", cfg.Classifier.Provider)
			fmt.Fprintf(out, "  Photos:     %s\n", cfg.Photos.Backend)
			return nil
		},
	}

	cmd.AddCommand(sample, validate)
	return cmd
}
