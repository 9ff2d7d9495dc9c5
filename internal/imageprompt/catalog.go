package imageprompt

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/aiakap/travel-planner-v1/internal/domain"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type catalogFile struct {
	Prompts []domain.ImagePromptTemplate `yaml:"prompts"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// DefaultCatalog returns the embedded template catalog.
func DefaultCatalog() ([]domain.ImagePromptTemplate, error) {
	return LoadCatalog(bytes.NewReader(defaultCatalog))
}

// LoadCatalog decodes a YAML catalog and validates every entry. Names must be
// unique because upserts key on them.
func LoadCatalog(r io.Reader) ([]domain.ImagePromptTemplate, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file catalogFile
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: catalog is empty", domain.ErrInvalidInput)
		}
		return nil, fmt.Errorf("%w: decode catalog: %v", domain.ErrInvalidInput, err)
	}
	if len(file.Prompts) == 0 {
		return nil, fmt.Errorf("%w: catalog has no prompts", domain.ErrInvalidInput)
	}

	seen := make(map[string]int, len(file.Prompts))
	for i := range file.Prompts {
		tpl := &file.Prompts[i]
		tpl.Name = strings.TrimSpace(tpl.Name)
		tpl.Prompt = strings.TrimSpace(tpl.Prompt)
		if err := validate.Struct(tpl); err != nil {
			return nil, fmt.Errorf("%w: catalog entry %d (%q): %v", domain.ErrInvalidInput, i, tpl.Name, err)
		}
		key := strings.ToLower(tpl.Name)
		if prev, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: catalog entries %d and %d share name %q", domain.ErrInvalidInput, prev, i, tpl.Name)
		}
		seen[key] = i
	}
	return file.Prompts, nil
}

// Seed upserts every template by name and returns how many were written.
func Seed(ctx context.Context, repo domain.PromptTemplateRepository, templates []domain.ImagePromptTemplate, now time.Time) (int, error) {
	for i := range templates {
		tpl := templates[i]
		tpl.UpdatedAt = now
		if err := repo.Upsert(ctx, &tpl); err != nil {
			return i, fmt.Errorf("seed %q: %w", tpl.Name, err)
		}
	}
	return len(templates), nil
}
