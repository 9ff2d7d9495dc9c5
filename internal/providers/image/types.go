package image

import (
	"context"
	"strconv"
	"strings"
)

// GenerateRequest describes one image to produce.
type GenerateRequest struct {
	Prompt      string
	AspectRatio string
	RequestID   string
}

// Image is a generated picture, not yet stored anywhere.
type Image struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
}

// Ext is the file extension matching the image's MIME type.
func (i *Image) Ext() string {
	switch strings.ToLower(i.MIMEType) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	default:
		return "png"
	}
}

// Generator is the contract implemented by all image providers. Content
// policy refusals are reported as domain.ErrGenerationRejected.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Image, error)
	Name() string
}

// normalizeAspect maps an aspect ratio like "16:9" to pixel dimensions.
func normalizeAspect(aspect string) (int, int) {
	switch strings.TrimSpace(strings.ToLower(aspect)) {
	case "16:9":
		return 1920, 1080
	case "9:16":
		return 1080, 1920
	case "4:3":
		return 1440, 1080
	case "3:4":
		return 1080, 1440
	case "1:1", "square", "":
		return 1024, 1024
	default:
		parts := strings.Split(aspect, ":")
		if len(parts) == 2 {
			if a, errA := strconv.Atoi(strings.TrimSpace(parts[0])); errA == nil {
				if b, errB := strconv.Atoi(strings.TrimSpace(parts[1])); errB == nil && a > 0 && b > 0 {
					width := 1024
					height := int(float64(width) * float64(b) / float64(a))
					return width, height
				}
			}
		}
		return 1024, 1024
	}
}
