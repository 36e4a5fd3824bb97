// Command worker runs the pipeline's background task consumers: extract,
// parse, kickoff, generate, and finalize, wired through the orchestrator
// onto a JetStream-backed task runner. Grounded on the teacher's
// cmd/semspec main.go structure (cobra root command, signal-driven
// context, config load + validate before anything else starts).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/levelforge/guideforge/config"
	"github.com/levelforge/guideforge/executor"
	"github.com/levelforge/guideforge/llm"
	_ "github.com/levelforge/guideforge/llm/providers"
	"github.com/levelforge/guideforge/objectstore"
	"github.com/levelforge/guideforge/orchestrator"
	"github.com/levelforge/guideforge/pgstore"
	"github.com/levelforge/guideforge/taskrunner"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	rootCmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the guideforge pipeline task consumers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context())
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

func runWorker(ctx context.Context) error {
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

	orch, err := buildOrchestrator(ctx, cfg, pool, logger)
	if err != nil {
		return err
	}

	if err := orch.RegisterHandlers(); err != nil {
		return fmt.Errorf("register task handlers: %w", err)
	}

	logger.Info("worker starting")
	return orch.Runner.Run(ctx)
}

func buildOrchestrator(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) (*orchestrator.Orchestrator, error) {
	guides := pgstore.NewGuideRepo(pool)
	matrix := pgstore.NewMatrixRepo(pool)
	generations := pgstore.NewGenerationRepo(pool)

	objects := objectstore.New(objectstore.Config{
		Endpoint:        cfg.Storage.URL + "/storage/v1/s3",
		Region:          cfg.Storage.Region,
		Bucket:          cfg.Storage.Bucket,
		AccessKeyID:     cfg.Storage.ServiceRoleKey,
		SecretAccessKey: cfg.Storage.ServiceRoleKey,
	})

	gateway := llm.NewGateway(llm.Config{
		Provider:        cfg.LLM.Provider,
		Model:           cfg.LLM.Model,
		Temperature:     cfg.LLM.Temperature,
		MaxOutputTokens: cfg.LLM.MaxOutputTokens,
		TimeoutSeconds:  cfg.LLM.TimeoutSeconds,
		MaxRetries:      cfg.LLM.MaxRetries,
	}, llm.WithLogger(logger))

	runner, err := taskrunner.NewNATSRunner(ctx, taskrunner.NATSConfig{
		URL:        cfg.TaskQueue.NATSURL,
		StreamName: "GUIDEFORGE_TASKS",
		Subject:    "guideforge.tasks.>",
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect task runner: %w", err)
	}

	orch := &orchestrator.Orchestrator{
		Runner:  runner,
		Extract: &executor.ExtractPhase{Guides: guides, Objects: objects},
		Parse:   &executor.ParseMatrixPhase{Guides: guides, Matrix: matrix, Objects: objects, LLM: gateway},
		Kickoff: &executor.KickoffGenerationPhase{Guides: guides, Matrix: matrix},
		Generate: &executor.GenerateChunkPhase{
			Guides:      guides,
			Matrix:      matrix,
			Generations: generations,
			LLM:         gateway,
		},
		Finalize:            &executor.FinalizePhase{Guides: guides, Generations: generations},
		Guides:              guides,
		Logger:              logger,
		GenerateConcurrency: cfg.GenerateConcurrency,
	}
	return orch, nil
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
