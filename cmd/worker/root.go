package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aiakap/travel-planner-v1/internal/bootstrap"
	"github.com/aiakap/travel-planner-v1/internal/imagequeue"
	"github.com/aiakap/travel-planner-v1/internal/infra"
	"github.com/aiakap/travel-planner-v1/internal/providers/image"
	"github.com/aiakap/travel-planner-v1/internal/storage"
	"github.com/aiakap/travel-planner-v1/internal/worker"
)

var (
	concurrency int
	maxJobs     int
)

var rootCmd = &cobra.Command{
	Use:          "worker",
	Short:        "Generate queued trip, segment and reservation images",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(runCmd, onceCmd, recoverCmd, jobsCmd, statsCmd)

	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 0, "Parallel jobs (overrides WORKER_CONCURRENCY)")
	rootCmd.PersistentFlags().IntVar(&maxJobs, "max-jobs", -1, "Jobs per pass, 0 for unlimited (overrides WORKER_MAX_JOBS)")
}

// env is what every subcommand shares.
type env struct {
	cfg     *infra.Config
	logger  infra.Logger
	backend *bootstrap.Backend
	queue   *imagequeue.Queue
}

func (e *env) Close() { e.backend.Close() }

func setup(ctx context.Context) (*env, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, err
	}
	if concurrency > 0 {
		cfg.WorkerConcurrency = concurrency
	}
	if maxJobs >= 0 {
		cfg.WorkerMaxJobs = maxJobs
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	backend, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	queue, err := bootstrap.Queue(cfg, backend, logger)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, backend: backend, queue: queue}, nil
}

func (e *env) worker(ctx context.Context) (*worker.Worker, error) {
	key := bootstrap.GeminiAPIKey(ctx, e.cfg, e.backend, e.logger)
	generator, err := image.NewFromOptions(ctx, image.FactoryOptions{
		Provider: e.cfg.ImageProvider,
		APIKey:   key,
		Model:    e.cfg.GeminiImageModel,
		AppEnv:   e.cfg.AppEnv,
		Logger:   e.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("configure image generator: %w", err)
	}
	uploader, err := storage.NewFromConfig(e.cfg)
	if err != nil {
		return nil, fmt.Errorf("configure storage: %w", err)
	}
	return worker.New(e.queue, generator, uploader, worker.Config{
		ID:              e.cfg.WorkerID,
		Concurrency:     e.cfg.WorkerConcurrency,
		PollInterval:    e.cfg.WorkerPollInterval,
		GenerateTimeout: e.cfg.WorkerGenerateTimeout,
		UploadTimeout:   e.cfg.WorkerUploadTimeout,
		MaxJobsPerRun:   e.cfg.WorkerMaxJobs,
		AspectRatio:     e.cfg.ImageAspectRatio,
	}, e.logger)
}
