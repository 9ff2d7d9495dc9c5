package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/aiakap/travel-planner-v1/internal/sqlinline"
)

type stubExecutor struct {
	token string
	err   error
	exec  struct {
		query string
		args  []any
	}
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.exec.query = query
	s.exec.args = args
	return pgconn.CommandTag{}, s.err
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	return stubRow{token: s.token, err: s.err}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type stubRow struct {
	token string
	err   error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) == 0 {
		return errors.New("no dest")
	}
	ptr, ok := dest[0].(*string)
	if !ok {
		return errors.New("invalid dest")
	}
	*ptr = r.token
	return nil
}

func TestGeminiAPIKey(t *testing.T) {
	store := NewStore(&stubExecutor{token: " abc123 "})
	key, err := store.GeminiAPIKey(context.Background())
	if err != nil {
		t.Fatalf("GeminiAPIKey error: %v", err)
	}
	if key != "abc123" {
		t.Fatalf("expected abc123, got %q", key)
	}
}

func TestGeminiAPIKey_NoRows(t *testing.T) {
	store := NewStore(&stubExecutor{err: pgx.ErrNoRows})
	key, err := store.GeminiAPIKey(context.Background())
	if err != nil {
		t.Fatalf("GeminiAPIKey error: %v", err)
	}
	if key != "" {
		t.Fatalf("expected empty key, got %q", key)
	}
}

func TestGeminiAPIKey_Error(t *testing.T) {
	store := NewStore(&stubExecutor{err: errors.New("connection reset")})
	if _, err := store.GeminiAPIKey(context.Background()); err == nil {
		t.Fatal("expected error to propagate")
	}
}

func TestSetGeminiAPIKey(t *testing.T) {
	exec := &stubExecutor{}
	store := NewStore(exec)
	if err := store.SetGeminiAPIKey(context.Background(), " secret ", map[string]any{"model": "imagen"}); err != nil {
		t.Fatalf("SetGeminiAPIKey error: %v", err)
	}
	if exec.exec.query != sqlinline.QUpsertIntegrationToken {
		t.Fatalf("unexpected query %q", exec.exec.query)
	}
	if len(exec.exec.args) != 4 {
		t.Fatalf("expected 4 args, got %d", len(exec.exec.args))
	}
	if v, ok := exec.exec.args[1].(string); !ok || v != ProviderGemini {
		t.Fatalf("expected provider argument, got %T %v", exec.exec.args[1], exec.exec.args[1])
	}
	if v, ok := exec.exec.args[2].(string); !ok || v != "secret" {
		t.Fatalf("expected secret argument, got %T %v", exec.exec.args[2], exec.exec.args[2])
	}
	var props map[string]any
	if err := json.Unmarshal(exec.exec.args[3].([]byte), &props); err != nil || props["model"] != "imagen" {
		t.Fatalf("unexpected properties %s (%v)", exec.exec.args[3], err)
	}
}

func TestSetGeminiAPIKeyEmpty(t *testing.T) {
	store := NewStore(&stubExecutor{})
	if err := store.SetGeminiAPIKey(context.Background(), " ", nil); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestDeleteToken(t *testing.T) {
	exec := &stubExecutor{}
	store := NewStore(exec)
	if err := store.DeleteToken(context.Background(), ProviderGemini); err != nil {
		t.Fatalf("DeleteToken error: %v", err)
	}
	if exec.exec.query != sqlinline.QDeleteIntegrationToken || exec.exec.args[0] != ProviderGemini {
		t.Fatalf("unexpected exec %q %v", exec.exec.query, exec.exec.args)
	}
}
