package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/erazemk/najdeno/internal/api"
	"github.com/erazemk/najdeno/internal/imaging"
	"github.com/erazemk/najdeno/internal/matching"
	"github.com/erazemk/najdeno/internal/photos"
	"github.com/erazemk/najdeno/internal/store"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var adminUser string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the matching workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, ctx, adminUser)
		},
	}
	cmd.Flags().StringVarP(&adminUser, "user", "u", "admin", "Admin username when the database is created")
	return cmd
}

func runServe(cmd *cobra.Command, ctx *commandContext, adminUser string) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}

	logger, cleanup, err := ctx.logger()
	if err != nil {
		return err
	}
	defer cleanup()

	// Only one server may run matching against a database file.
	lock := flock.New(cfg.Database.Path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another najdeno server is using %s", cfg.Database.Path)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release database lock", zap.Error(err))
		}
	}()

	// Check if DB exists, auto-init if not.
	if _, err := os.Stat(cfg.Database.Path); errors.Is(err, os.ErrNotExist) {
		password, err := initDatabase(cmd.Context(), cfg.Database.Path, adminUser)
		if err != nil {
			return fmt.Errorf("initializing database: %w", err)
		}
		printInitResult(cmd.OutOrStdout(), cfg.Database.Path, adminUser, password)
		fmt.Fprintln(cmd.OutOrStdout())
	}

	database, err := ctx.openDB(cmd.Context())
	if err != nil {
		return err
	}
	defer database.Close()

	logger.Info("database ready", zap.String("path", cfg.Database.Path))

	jwtSecret, err := store.GetJWTSecret(cmd.Context(), database)
	if err != nil {
		return fmt.Errorf("loading jwt secret: %w", err)
	}

	matcher, cls, notifier, err := newMatcher(cmd.Context(), cfg, database, logger)
	if err != nil {
		return err
	}
	defer notifier.Wait()
	trigger := matching.NewTrigger(matcher, cfg.MatchTimeout(), logger.Named("trigger"))
	defer trigger.Close()

	photoStore, err := photos.New(cmd.Context(), database, cfg.Photos)
	if err != nil {
		return fmt.Errorf("creating photo store: %w", err)
	}

	router := api.NewRouter(api.Deps{
		DB:                database,
		JWTSecret:         jwtSecret,
		TokenTTL:          cfg.TokenTTL(),
		AllowRegistration: cfg.Server.AllowRegistration,
		Trigger:           trigger,
		Classifier:        cls,
		Photos:            photoStore,
		Imaging: imaging.Options{
			MaxDimension:   cfg.Photos.MaxDimension,
			ThumbDimension: cfg.Photos.ThumbDimension,
			MaxBytes:       int64(cfg.Photos.MaxUploadMB) << 20,
		},
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.LoggingMiddleware(router),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	sigCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server started",
			zap.String("addr", cfg.Server.Addr),
			zap.String("classifier", cfg.Classifier.Provider),
			zap.String("photos", cfg.Photos.Backend),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-sigCtx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped, waiting for matching runs")
	return nil
}
