package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/aiakap/travel-planner-v1/internal/bootstrap"
	"github.com/aiakap/travel-planner-v1/internal/http/handlers"
	httpapi "github.com/aiakap/travel-planner-v1/internal/http/httpapi"
	"github.com/aiakap/travel-planner-v1/internal/infra"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to open database")
	}
	defer backend.Close()

	queue, err := bootstrap.Queue(cfg, backend, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: invalid queue policy")
	}

	app := &handlers.App{
		Planner: bootstrap.Planner(backend, queue, infra.Component(logger, "planner")),
		Jobs:    queue,
		Prompts: backend.Prompts,
		Ping:    backend.Ping,
		Logger:  infra.Component(logger, "http"),
	}

	opts := httpapi.Options{Logger: infra.Component(logger, "access"), RateLimitPerMin: cfg.RateLimitPerMin}
	if cfg.StorageDriver == "filesystem" {
		if dir, err := filepath.Abs(cfg.StoragePath); err == nil {
			opts.StaticDir = dir
		}
	}

	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app, opts))
	logger.Info().Str("addr", server.Addr()).Str("backend", string(backend.Kind)).Msg("api: listening")
	if err := server.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("api: server failed")
	}
	logger.Info().Msg("api: stopped")
}
