package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/cartloom/bulkimport/internal/catalog"
	"github.com/cartloom/bulkimport/internal/history"
	"github.com/cartloom/bulkimport/internal/pipeline"
	"github.com/cartloom/bulkimport/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bulk import API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"backend", cfg.Backend.URL,
		"history_enabled", cfg.History.Enabled(),
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	client := catalog.New(cfg.Backend.URL,
		catalog.WithToken(cfg.Backend.Token),
		catalog.WithTimeout(cfg.Backend.Timeout),
	)

	ctx := context.Background()

	// History is optional; the workflow runs fine without it.
	var store *history.Store
	if cfg.History.Enabled() {
		poolConfig, err := pgxpool.ParseConfig(cfg.History.DatabaseURL)
		if err != nil {
			return err
		}
		poolConfig.MaxConns = int32(cfg.History.MaxConns)

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			return err
		}

		store = history.NewStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		slog.Info("import run history enabled")
	}

	opts := pipeline.Options{
		MaxFileSize:     cfg.Upload.MaxFileSize,
		MaxRows:         cfg.Upload.MaxRows,
		SessionTTL:      cfg.Session.TTL,
		CleanupInterval: cfg.Session.CleanupInterval,
	}
	if store != nil {
		opts.Recorder = store
	}
	service := pipeline.NewService(client, opts)

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()
	go service.StartCleanup(jobCtx)

	server := web.NewServer(service, client, store, cfg)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("server stopped")
	return nil
}
