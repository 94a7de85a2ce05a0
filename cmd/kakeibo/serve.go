package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/ponpaku/ai-kakeibo-2/internal/api"
	"github.com/ponpaku/ai-kakeibo-2/internal/codex"
	"github.com/ponpaku/ai-kakeibo-2/internal/config"
	"github.com/ponpaku/ai-kakeibo-2/internal/imagestore"
	"github.com/ponpaku/ai-kakeibo-2/internal/pipeline"
	"github.com/ponpaku/ai-kakeibo-2/internal/queue"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and background workers",
		Long:  `Start the HTTP API together with the receipt processing workers.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	store, cfg, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	images, err := imagestore.New(cfg.UploadDir)
	if err != nil {
		return fmt.Errorf("failed to prepare upload directory: %w", err)
	}

	engine := codex.NewClient(codex.Config{
		BinPath:         cfg.CodexBin,
		OCRTimeout:      cfg.OCRTimeout,
		ClassifyTimeout: cfg.ClassifyTimeout,
	})

	logger := slog.Default()
	p := pipeline.New(store, engine, logger)

	scheduler, err := buildQueue(cfg, p.HandleTask, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := scheduler.Close(); closeErr != nil {
			logger.Error("Failed to close task queue", "error", closeErr)
		}
	}()
	p.SetScheduler(scheduler)

	server := api.NewServer(store, p, images, logger)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting API server", "addr", cfg.ListenAddr, "queue", cfg.QueueBackend)
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()

	select {
	case err = <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

func buildQueue(cfg *config.Config, handler queue.Handler, logger *slog.Logger) (queue.Scheduler, error) {
	switch cfg.QueueBackend {
	case config.QueueRedis:
		q, err := queue.NewRedisQueue(cfg.RedisAddr, cfg.Workers, handler, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return q, nil
	case config.QueueMemory:
		return queue.NewMemoryQueue(cfg.Workers, handler, logger), nil
	default:
		return nil, fmt.Errorf("unknown queue backend: %s", cfg.QueueBackend)
	}
}
