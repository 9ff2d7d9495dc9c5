package repo

import (
	"context"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// scriptedRow assigns values positionally into Scan destinations. A nil value
// leaves the destination at its zero value.
type scriptedRow struct {
	values []any
	err    error
}

func (r scriptedRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(r.values))
	}
	for i, d := range dest {
		target := reflect.ValueOf(d).Elem()
		if r.values[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		v := reflect.ValueOf(r.values[i])
		if !v.Type().AssignableTo(target.Type()) {
			return fmt.Errorf("scan: column %d: cannot assign %s to %s", i, v.Type(), target.Type())
		}
		target.Set(v)
	}
	return nil
}

type scriptedRows struct {
	rows []scriptedRow
	idx  int
	err  error
}

func (r *scriptedRows) Close()                                       {}
func (r *scriptedRows) Err() error                                   { return r.err }
func (r *scriptedRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *scriptedRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *scriptedRows) Values() ([]any, error)                       { return nil, fmt.Errorf("values not supported") }
func (r *scriptedRows) RawValues() [][]byte                          { return nil }
func (r *scriptedRows) Conn() *pgx.Conn                              { return nil }

func (r *scriptedRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *scriptedRows) Scan(dest ...any) error {
	return r.rows[r.idx-1].Scan(dest...)
}

type call struct {
	query string
	args  []any
}

// scriptedExecutor answers each statement with the next scripted result for
// that exact query text.
type scriptedExecutor struct {
	rows  map[string][]scriptedRow
	sets  map[string][][]scriptedRow
	tags  map[string]pgconn.CommandTag
	errs  map[string]error
	calls []call
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{
		rows: map[string][]scriptedRow{},
		sets: map[string][][]scriptedRow{},
		tags: map[string]pgconn.CommandTag{},
		errs: map[string]error{},
	}
}

func (s *scriptedExecutor) onRow(query string, row scriptedRow) *scriptedExecutor {
	s.rows[query] = append(s.rows[query], row)
	return s
}

func (s *scriptedExecutor) onRows(query string, rows ...scriptedRow) *scriptedExecutor {
	s.sets[query] = append(s.sets[query], rows)
	return s
}

func (s *scriptedExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.calls = append(s.calls, call{query: query, args: args})
	if err := s.errs[query]; err != nil {
		return pgconn.CommandTag{}, err
	}
	if tag, ok := s.tags[query]; ok {
		return tag, nil
	}
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (s *scriptedExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.calls = append(s.calls, call{query: query, args: args})
	queue := s.rows[query]
	if len(queue) == 0 {
		return scriptedRow{err: pgx.ErrNoRows}
	}
	s.rows[query] = queue[1:]
	return queue[0]
}

func (s *scriptedExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	s.calls = append(s.calls, call{query: query, args: args})
	if err := s.errs[query]; err != nil {
		return nil, err
	}
	queue := s.sets[query]
	if len(queue) == 0 {
		return &scriptedRows{}, nil
	}
	s.sets[query] = queue[1:]
	return &scriptedRows{rows: queue[0]}, nil
}
