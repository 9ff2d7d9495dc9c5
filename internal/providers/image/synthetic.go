package image

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	stdimage "image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"

	"github.com/rs/zerolog"
)

// SyntheticGenerator renders deterministic striped placeholders. It keeps
// the worker pipeline exercised in development and CI when no API key is
// configured.
type SyntheticGenerator struct {
	logger zerolog.Logger
}

func NewSyntheticGenerator(logger zerolog.Logger) *SyntheticGenerator {
	return &SyntheticGenerator{logger: logger.With().Str("component", "synthetic").Logger()}
}

func (s *SyntheticGenerator) Name() string { return "synthetic" }

func (s *SyntheticGenerator) Generate(ctx context.Context, req GenerateRequest) (*Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	width, height := normalizeAspect(req.AspectRatio)
	seed := deterministicSeed(req.Prompt, req.AspectRatio)
	data, err := renderSyntheticImage(width, height, seed)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("request_id", req.RequestID).
		Str("seed", seed).
		Msg("synthetic: generated placeholder image")

	return &Image{Data: data, MIMEType: "image/png", Width: width, Height: height}, nil
}

func renderSyntheticImage(width, height int, seed string) ([]byte, error) {
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, width, height))
	base := colorFromSeed(seed, 0)
	accent := colorFromSeed(seed, 1)
	draw.Draw(img, img.Bounds(), &stdimage.Uniform{base}, stdimage.Point{}, draw.Src)

	stripeHeight := max(32, height/12)
	for y := 0; y < height; y += stripeHeight * 2 {
		stripe := stdimage.Rect(0, y, width, min(height, y+stripeHeight))
		draw.Draw(img, stripe, &stdimage.Uniform{accent}, stdimage.Point{}, draw.Over)
	}

	diagonal := colorFromSeed(seed, 2)
	for x := 0; x < max(width, height); x += max(16, width/32) {
		for y := 0; y < height && x+y < width; y++ {
			img.Set(x+y, y, diagonal)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("synthetic: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func colorFromSeed(seed string, shift int) color.RGBA {
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{R: hexByte(segment[0:2]), G: hexByte(segment[2:4]), B: hexByte(segment[4:6]), A: 255}
}

func hexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func deterministicSeed(parts ...string) string {
	hasher := sha256.New()
	for _, part := range parts {
		hasher.Write([]byte(part))
		hasher.Write([]byte{'|'})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

var _ Generator = (*SyntheticGenerator)(nil)
