package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/aiakap/travel-planner-v1/internal/infra"
	"github.com/aiakap/travel-planner-v1/internal/infra/credentials"
)

func main() {
	var (
		keyFlag string
		remove  bool
	)
	flag.StringVar(&keyFlag, "key", "", "Gemini API key (falls back to GEMINI_API_KEY)")
	flag.BoolVar(&remove, "delete", false, "Remove the stored key instead of setting it")
	flag.Parse()

	_ = godotenv.Load()

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	backend, _, err := infra.ParseDatabaseURL(dbURL)
	if err != nil || backend != infra.BackendPostgres {
		fmt.Fprintln(os.Stderr, "DATABASE_URL must point at PostgreSQL; SQLite deployments read GEMINI_API_KEY from the environment")
		os.Exit(1)
	}

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	}
	if key == "" && !remove {
		fmt.Fprintln(os.Stderr, "Gemini API key is required via -key or GEMINI_API_KEY")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli", "").With().Str("cmd", "geminikey").Logger()
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))

	if remove {
		if err := store.DeleteToken(ctx, credentials.ProviderGemini); err != nil {
			fmt.Fprintf(os.Stderr, "failed to delete gemini api key: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Gemini API key removed")
		return
	}
	if err := store.SetGeminiAPIKey(ctx, key, map[string]any{"set_at": time.Now().UTC()}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to persist gemini api key: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Gemini API key stored successfully")
}
