package image

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Provider names accepted by IMAGE_PROVIDER. An empty value picks Gemini when
// a key is configured.
const (
	ProviderAuto      = ""
	ProviderGemini    = "gemini"
	ProviderSynthetic = "synthetic"
)

// FactoryOptions selects and configures a generator.
type FactoryOptions struct {
	Provider string
	APIKey   string
	Model    string
	AppEnv   string
	Logger   zerolog.Logger
}

// NewFromOptions builds the configured generator. Placeholder images are only
// served without a key in development, or when explicitly requested.
func NewFromOptions(ctx context.Context, opts FactoryOptions) (Generator, error) {
	provider := strings.ToLower(strings.TrimSpace(opts.Provider))
	hasKey := strings.TrimSpace(opts.APIKey) != ""

	switch provider {
	case ProviderSynthetic:
		opts.Logger.Info().Msg("IMAGE_PROVIDER=synthetic; generating placeholder images")
		return NewSyntheticGenerator(opts.Logger), nil
	case ProviderGemini:
		if !hasKey {
			return nil, fmt.Errorf("IMAGE_PROVIDER=gemini requires a Gemini API key")
		}
	case ProviderAuto:
		if !hasKey {
			if !isDevelopment(opts.AppEnv) {
				return nil, fmt.Errorf("no Gemini API key configured for APP_ENV %q; set IMAGE_PROVIDER=synthetic to allow placeholder images", opts.AppEnv)
			}
			opts.Logger.Warn().Msg("no Gemini API key configured; using synthetic placeholder images")
			return NewSyntheticGenerator(opts.Logger), nil
		}
	default:
		return nil, fmt.Errorf("unsupported IMAGE_PROVIDER %q", opts.Provider)
	}
	return NewGeminiGenerator(ctx, GeminiOptions{APIKey: opts.APIKey, Model: opts.Model, Logger: opts.Logger})
}

func isDevelopment(appEnv string) bool {
	switch strings.ToLower(strings.TrimSpace(appEnv)) {
	case "", "development", "dev", "local", "test":
		return true
	}
	return false
}
