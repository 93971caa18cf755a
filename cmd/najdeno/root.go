package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/erazemk/najdeno/internal/classifier"
	"github.com/erazemk/najdeno/internal/config"
	"github.com/erazemk/najdeno/internal/db"
	"github.com/erazemk/najdeno/internal/logging"
	"github.com/erazemk/najdeno/internal/matching"
	"github.com/erazemk/najdeno/internal/notify"
)

// commandContext holds the global flags and lazily loaded configuration.
type commandContext struct {
	configFlag   string
	dbFlag       string
	addrFlag     string
	logFlag      string
	logLevelFlag string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "najdeno",
		Short:         "Campus lost-and-found service with automatic matching",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path")
	flags.StringVarP(&ctx.dbFlag, "db", "d", "", "SQLite database path (overrides config)")
	flags.StringVarP(&ctx.addrFlag, "addr", "a", "", "Listen address (overrides config)")
	flags.StringVarP(&ctx.logFlag, "log", "l", "", "Log file path (overrides config)")
	flags.StringVar(&ctx.logLevelFlag, "log-level", "", "Log level: debug, info, warn, error (overrides config)")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newInitCommand(ctx))
	rootCmd.AddCommand(newMatchCommand(ctx))
	rootCmd.AddCommand(newMatchesCommand(ctx))
	rootCmd.AddCommand(newPurgeCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load(strings.TrimSpace(c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		if c.dbFlag != "" {
			cfg.Database.Path = c.dbFlag
		}
		if c.addrFlag != "" {
			cfg.Server.Addr = c.addrFlag
		}
		if c.logFlag != "" {
			cfg.Logging.File = c.logFlag
		}
		if c.logLevelFlag != "" {
			cfg.Logging.Level = c.logLevelFlag
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// logger builds the configured logger and installs it as the zap global.
func (c *commandContext) logger() (*zap.Logger, func(), error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, cleanup, err := logging.New(logging.Options{Level: cfg.Logging.Level, File: cfg.Logging.File})
	if err != nil {
		return nil, nil, err
	}
	restore := zap.ReplaceGlobals(logger)
	return logger, func() {
		restore()
		cleanup()
	}, nil
}

// openDB opens the configured database and applies pending migrations.
func (c *commandContext) openDB(ctx context.Context) (*sql.DB, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, database); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return database, nil
}

// newMatcher wires the classifier, mail notifications and matcher from config.
// Callers wait on the returned notifier before exiting so queued mail is sent.
func newMatcher(ctx context.Context, cfg *config.Config, database *sql.DB, logger *zap.Logger) (*matching.Matcher, classifier.Classifier, *notify.Service, error) {
	cls, err := classifier.New(ctx, cfg.Classifier)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating classifier: %w", err)
	}

	notifier := notify.NewService(database, notify.NewMailer(cfg.Mail), cfg.Mail.BaseURL, logger.Named("notify"))
	matcher := matching.NewMatcher(database, cls, notifier, logger.Named("matching"), matching.Options{
		MaxCandidates:     cfg.Matching.MaxCandidates,
		Concurrency:       cfg.Matching.Concurrency,
		ClassifierTimeout: cfg.ClassifierTimeout(),
	})
	return matcher, cls, notifier, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
