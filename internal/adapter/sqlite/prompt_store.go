package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/aiakap/travel-planner-v1/internal/domain"
)

const promptColumns = `id, name, category, prompt, style, lightness, created_at, updated_at`

// PromptStore implements domain.PromptTemplateRepository.
type PromptStore struct {
	db *sql.DB
}

func NewPromptStore(db *sql.DB) *PromptStore {
	return &PromptStore{db: db}
}

func (s *PromptStore) ListByCategory(ctx context.Context, category domain.EntityType) ([]domain.ImagePromptTemplate, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+promptColumns+" FROM image_prompts WHERE category = ? ORDER BY name", string(category))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list prompts: %w", err)
	}
	defer rows.Close()

	var out []domain.ImagePromptTemplate
	for rows.Next() {
		tpl, err := scanPrompt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tpl)
	}
	return out, rows.Err()
}

func (s *PromptStore) GetByID(ctx context.Context, id string) (*domain.ImagePromptTemplate, error) {
	tpl, err := scanPrompt(s.db.QueryRowContext(ctx, "SELECT "+promptColumns+" FROM image_prompts WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: select prompt: %w", err)
	}
	return tpl, nil
}

// Upsert inserts or replaces the template with the same name, keeping its id.
func (s *PromptStore) Upsert(ctx context.Context, tpl *domain.ImagePromptTemplate) error {
	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}
	now := millis(nowOr(tpl.UpdatedAt))
	var created, updated int64
	err := s.db.QueryRowContext(ctx, `
INSERT INTO image_prompts (id, name, category, prompt, style, lightness, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (name) DO UPDATE SET
    category = excluded.category,
    prompt = excluded.prompt,
    style = excluded.style,
    lightness = excluded.lightness,
    updated_at = excluded.updated_at
RETURNING id, created_at, updated_at`,
		tpl.ID, tpl.Name, string(tpl.Category), tpl.Prompt, tpl.Style, tpl.Lightness, now, now,
	).Scan(&tpl.ID, &created, &updated)
	if err != nil {
		return fmt.Errorf("sqlite: upsert prompt %q: %w", tpl.Name, err)
	}
	tpl.CreatedAt = fromMillis(created)
	tpl.UpdatedAt = fromMillis(updated)
	return nil
}

func scanPrompt(row rowScanner) (*domain.ImagePromptTemplate, error) {
	var (
		tpl              domain.ImagePromptTemplate
		category         string
		created, updated int64
	)
	if err := row.Scan(&tpl.ID, &tpl.Name, &category, &tpl.Prompt, &tpl.Style, &tpl.Lightness, &created, &updated); err != nil {
		return nil, err
	}
	tpl.Category = domain.EntityType(category)
	tpl.CreatedAt = fromMillis(created)
	tpl.UpdatedAt = fromMillis(updated)
	return &tpl, nil
}

var _ domain.PromptTemplateRepository = (*PromptStore)(nil)
