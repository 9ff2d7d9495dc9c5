package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/aiakap/travel-planner-v1/internal/domain"
	"github.com/aiakap/travel-planner-v1/internal/infra"
	"github.com/aiakap/travel-planner-v1/internal/sqlinline"
)

// PromptRepositoryPG implements domain.PromptTemplateRepository.
type PromptRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewPromptRepository(sql infra.SQLExecutor) *PromptRepositoryPG {
	return &PromptRepositoryPG{sql: sql}
}

func (r *PromptRepositoryPG) ListByCategory(ctx context.Context, category domain.EntityType) ([]domain.ImagePromptTemplate, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListImagePromptsByCategory, string(category))
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
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

func (r *PromptRepositoryPG) GetByID(ctx context.Context, id string) (*domain.ImagePromptTemplate, error) {
	tpl, err := scanPrompt(r.sql.QueryRow(ctx, sqlinline.QSelectImagePrompt, id))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return tpl, nil
}

// Upsert inserts or updates by unique name; tpl.ID is set to the stored id.
func (r *PromptRepositoryPG) Upsert(ctx context.Context, tpl *domain.ImagePromptTemplate) error {
	id := tpl.ID
	if id == "" {
		id = uuid.NewString()
	}
	err := r.sql.QueryRow(ctx, sqlinline.QUpsertImagePrompt,
		id,
		tpl.Name,
		string(tpl.Category),
		tpl.Prompt,
		tpl.Style,
		tpl.Lightness,
	).Scan(&tpl.ID, &tpl.CreatedAt, &tpl.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert prompt %q: %w", tpl.Name, err)
	}
	return nil
}

func scanPrompt(row rowScanner) (*domain.ImagePromptTemplate, error) {
	var (
		tpl      domain.ImagePromptTemplate
		category string
	)
	if err := row.Scan(&tpl.ID, &tpl.Name, &category, &tpl.Prompt, &tpl.Style, &tpl.Lightness, &tpl.CreatedAt, &tpl.UpdatedAt); err != nil {
		return nil, err
	}
	tpl.Category = domain.EntityType(category)
	return &tpl, nil
}

var _ domain.PromptTemplateRepository = (*PromptRepositoryPG)(nil)
