// Command apiserver runs the pipeline's HTTP ingress: guide upload,
// status, PDF redirect, and results endpoints from spec.md §6. Grounded
// on the teacher's cmd/semspec main.go structure (cobra root command,
// signal-driven context, config load before anything else starts) and on
// original_source/backend/app/main.py's uvicorn server bring-up.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/levelforge/guideforge/apiserver"
	"github.com/levelforge/guideforge/config"
	"github.com/levelforge/guideforge/objectstore"
	"github.com/levelforge/guideforge/orchestrator"
	"github.com/levelforge/guideforge/pgstore"
	"github.com/levelforge/guideforge/taskrunner"
)

const shutdownGrace = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	rootCmd := &cobra.Command{
		Use:   "apiserver",
		Short: "Run the guideforge HTTP ingress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

func runServer(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}))

	pool, err := pgstore.Open(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	if err := pgstore.Migrate(cfg.Database.URL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	srv, err := buildServer(ctx, cfg, pool, logger)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: srv.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("apiserver starting", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		logger.Info("apiserver shutting down")
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func buildServer(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) (*apiserver.Server, error) {
	guides := pgstore.NewGuideRepo(pool)
	companies := pgstore.NewCompanyRepo(pool)
	matrix := pgstore.NewMatrixRepo(pool)
	generations := pgstore.NewGenerationRepo(pool)

	objects := objectstore.New(objectstore.Config{
		Endpoint:        cfg.Storage.URL + "/storage/v1/s3",
		Region:          cfg.Storage.Region,
		Bucket:          cfg.Storage.Bucket,
		AccessKeyID:     cfg.Storage.ServiceRoleKey,
		SecretAccessKey: cfg.Storage.ServiceRoleKey,
	})

	runner, err := taskrunner.NewNATSRunner(ctx, taskrunner.NATSConfig{
		URL:        cfg.TaskQueue.NATSURL,
		StreamName: "GUIDEFORGE_TASKS",
		Subject:    "guideforge.tasks.>",
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect task runner: %w", err)
	}

	orch := &orchestrator.Orchestrator{
		Runner: runner,
		Guides: guides,
		Logger: logger,
	}

	return &apiserver.Server{
		Guides:         guides,
		Companies:      companies,
		Matrix:         matrix,
		Generations:    generations,
		Objects:        objects,
		Orchestrator:   orch,
		PromptName:     "generate_examples_batch",
		PromptVersion:  "v1",
		Logger:         logger,
		MaxUploadBytes: cfg.PDFMaxBytes,
	}, nil
}

// parseLogLevel maps LOG_LEVEL's recognized values to a slog.Level,
// falling back to Info for anything else.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
