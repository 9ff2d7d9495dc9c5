package image

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	stdimage "image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/aiakap/travel-planner-v1/internal/domain"
)

const defaultImageModel = "imagen-3.0-generate-002"

// GeminiOptions controls how the Imagen generator is configured.
type GeminiOptions struct {
	APIKey string
	Model  string
	Logger zerolog.Logger
}

// GeminiGenerator calls the Imagen models through the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
	logger zerolog.Logger
}

func NewGeminiGenerator(ctx context.Context, opts GeminiOptions) (*GeminiGenerator, error) {
	key := strings.TrimSpace(opts.APIKey)
	if key == "" {
		return nil, errors.New("gemini: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultImageModel
	}
	return &GeminiGenerator{
		client: client,
		model:  model,
		logger: opts.Logger.With().Str("component", "gemini").Str("model", model).Logger(),
	}, nil
}

func (g *GeminiGenerator) Name() string { return "gemini:" + g.model }

func (g *GeminiGenerator) Generate(ctx context.Context, req GenerateRequest) (*Image, error) {
	resp, err := g.client.Models.GenerateImages(ctx, g.model, req.Prompt, &genai.GenerateImagesConfig{
		NumberOfImages:   1,
		AspectRatio:      req.AspectRatio,
		OutputMIMEType:   "image/png",
		IncludeRAIReason: true,
	})
	if err != nil {
		return nil, classifyError(err)
	}

	img, err := firstImage(resp)
	if err != nil {
		return nil, err
	}
	g.logger.Debug().
		Str("request_id", req.RequestID).
		Int("bytes", len(img.Data)).
		Msg("gemini: image generated")
	return img, nil
}

func firstImage(resp *genai.GenerateImagesResponse) (*Image, error) {
	if resp == nil || len(resp.GeneratedImages) == 0 {
		return nil, fmt.Errorf("%w: model returned no images", domain.ErrGenerationRejected)
	}
	generated := resp.GeneratedImages[0]
	if generated == nil || generated.Image == nil || len(generated.Image.ImageBytes) == 0 {
		reason := "empty image"
		if generated != nil && generated.RAIFilteredReason != "" {
			reason = generated.RAIFilteredReason
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrGenerationRejected, reason)
	}

	img := &Image{Data: generated.Image.ImageBytes, MIMEType: generated.Image.MIMEType}
	if img.MIMEType == "" {
		img.MIMEType = http.DetectContentType(img.Data)
	}
	if cfg, _, err := stdimage.DecodeConfig(bytes.NewReader(img.Data)); err == nil {
		img.Width, img.Height = cfg.Width, cfg.Height
	}
	return img, nil
}

// classifyError maps client-side API errors to rejections. Server errors
// and transport failures stay as they are so the job is retried.
func classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests {
		return fmt.Errorf("%w: %d %s", domain.ErrGenerationRejected, apiErr.Code, strings.TrimSpace(apiErr.Message))
	}
	return fmt.Errorf("gemini: generate images: %w", err)
}

var _ Generator = (*GeminiGenerator)(nil)
