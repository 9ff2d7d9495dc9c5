package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/aiakap/travel-planner-v1/internal/bootstrap"
	"github.com/aiakap/travel-planner-v1/internal/domain"
	"github.com/aiakap/travel-planner-v1/internal/imageprompt"
	"github.com/aiakap/travel-planner-v1/internal/infra"
)

func main() {
	var file string
	flag.StringVar(&file, "file", "", "YAML catalog to load instead of the embedded default")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel).With().Str("cmd", "seedprompts").Logger()

	templates, err := loadTemplates(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load catalog: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	backend, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer backend.Close()

	n, err := imageprompt.Seed(ctx, backend.Prompts, templates, time.Now().UTC())
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed prompts: %v\n", err)
		os.Exit(1)
	}
	logger.Info().Int("templates", n).Msg("prompt catalog seeded")
	fmt.Printf("%d prompt templates upserted\n", n)
}

func loadTemplates(path string) ([]domain.ImagePromptTemplate, error) {
	if path == "" {
		return imageprompt.DefaultCatalog()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return imageprompt.LoadCatalog(f)
}
