package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chain HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.requireConfig(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

// serve hosts the API until ctx is cancelled or a shutdown is requested over
// the API, then drains in-flight requests for at most the configured timeout.
func (a *app) serve(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	if err := ensureDBDir(cfg.Store.DatabasePath); err != nil {
		return err
	}
	db, err := initDB(cfg.Store.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		logger.Info("Closing database connection.")
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	}()

	actionChan := make(chan string, 1)
	server, err := NewServer(cfg, logger, db, actionChan)
	if err != nil {
		return fmt.Errorf("failed to create server object: %w", err)
	}
	defer server.Close()

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting markovd API server", "address", httpServer.Addr, "version", Version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("OS signal received, initiating shutdown.")
	case action := <-actionChan:
		logger.Info("Stopping server for " + action + "...")
	case err = <-errChan:
		return fmt.Errorf("api server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err = httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Api server shutdown failed", "error", err)
	}
	logger.Info("HTTP server stopped.")
	return nil
}

// ensureDBDir creates the directory of a SQLite data source so the first run
// on a fresh machine does not fail. In-memory sources are left alone.
func ensureDBDir(dataSource string) error {
	path, _, _ := strings.Cut(strings.TrimPrefix(dataSource, "file:"), "?")
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("could not create database directory %s: %w", dir, err)
	}
	return nil
}
