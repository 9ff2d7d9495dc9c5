package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aiakap/travel-planner-v1/internal/domain"
)

const jobColumns = `id, entity_type, entity_id, prompt_id, full_prompt, status, attempts,
    image_url, notes, run_after, claimed_by, claimed_at, created_at, updated_at`

// JobStore implements domain.ImageJobRepository.
type JobStore struct {
	db *sql.DB
}

func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db}
}

func (s *JobStore) Insert(ctx context.Context, job *domain.ImageJob) error {
	table, err := entityTable(job.EntityType)
	if err != nil {
		return err
	}
	created := millis(job.CreatedAt)
	err = inTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO image_jobs (id, entity_type, entity_id, prompt_id, full_prompt, status, attempts, run_after, created_at, updated_at)
SELECT ?, ?, ?, ?, ?, 'pending', 0, ?, ?, ?
WHERE NOT EXISTS (
    SELECT 1 FROM image_jobs
    WHERE entity_type = ? AND entity_id = ? AND status = 'in_progress'
)`,
			job.ID, string(job.EntityType), job.EntityID, job.PromptID, job.FullPrompt,
			created, created, created,
			string(job.EntityType), job.EntityID,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrDuplicateInFlight
		}
		_, err = tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %s SET image_pending = 1, updated_at = ? WHERE id = ? AND image_is_custom = 0`, table),
			created, job.EntityID)
		return err
	})
	if errors.Is(err, domain.ErrDuplicateInFlight) {
		return err
	}
	if err != nil {
		return fmt.Errorf("sqlite: insert image job: %w", err)
	}
	job.Status = domain.JobStatusPending
	job.Attempts = 0
	job.RunAfter = job.CreatedAt
	job.UpdatedAt = job.CreatedAt
	return nil
}

func (s *JobStore) ClaimNext(ctx context.Context, workerID string, now time.Time) (*domain.ImageJob, error) {
	var claimed *domain.ImageJob
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRowContext(ctx, `
SELECT j.id FROM image_jobs j
WHERE j.status = 'pending'
  AND j.run_after <= ?
  AND NOT EXISTS (
      SELECT 1 FROM image_jobs r
      WHERE r.entity_type = j.entity_type AND r.entity_id = j.entity_id AND r.status = 'in_progress'
  )
ORDER BY j.created_at ASC, j.rowid ASC
LIMIT 1`, millis(now)).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
UPDATE image_jobs
SET status = 'in_progress', attempts = attempts + 1, claimed_by = ?, claimed_at = ?, updated_at = ?
WHERE id = ? AND status = 'pending'`, workerID, millis(now), millis(now), id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		claimed, err = getJob(ctx, tx, id)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateInFlight
		}
		return nil, fmt.Errorf("sqlite: claim image job: %w", err)
	}
	return claimed, nil
}

func (s *JobStore) Complete(ctx context.Context, jobID string, attempt int, imageURL string, now time.Time) (*domain.ImageJob, bool, error) {
	var (
		job     *domain.ImageJob
		updated bool
	)
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE image_jobs
SET status = 'completed', image_url = ?, updated_at = ?
WHERE id = ? AND status = 'in_progress' AND attempts = ?`, imageURL, millis(now), jobID, attempt)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return explainMissedTransition(ctx, tx, jobID)
		}
		if job, err = getJob(ctx, tx, jobID); err != nil {
			return err
		}

		table, err := entityTable(job.EntityType)
		if err != nil {
			return err
		}
		res, err = tx.ExecContext(ctx, fmt.Sprintf(`
UPDATE %s
SET image_url = ?,
    image_prompt_id = (SELECT p.id FROM image_prompts p WHERE p.id = ?),
    image_pending = %s,
    updated_at = ?
WHERE id = ? AND image_is_custom = 0`, table, otherActiveJobs), imageURL, job.PromptID, string(job.EntityType), job.EntityID, job.ID, millis(now), job.EntityID)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		updated = n > 0
		return nil
	})
	if err != nil {
		return nil, false, wrapTransitionErr("complete", err)
	}
	return job, updated, nil
}

func (s *JobStore) Fail(ctx context.Context, p domain.FailParams) (*domain.ImageJob, error) {
	var job *domain.ImageJob
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE image_jobs
SET status = CASE WHEN attempts < ? THEN 'pending' ELSE 'failed' END,
    run_after = CASE WHEN attempts < ? THEN ? ELSE run_after END,
    notes = ?,
    updated_at = ?
WHERE id = ? AND status = 'in_progress' AND attempts = ?`,
			p.MaxAttempts, p.MaxAttempts, millis(p.RetryAt), p.Notes, millis(p.Now), p.JobID, p.ExpectedAttempts)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return explainMissedTransition(ctx, tx, p.JobID)
		}
		if job, err = getJob(ctx, tx, p.JobID); err != nil {
			return err
		}
		if job.Status == domain.JobStatusFailed {
			return clearPending(ctx, tx, job, p.Now)
		}
		return nil
	})
	if err != nil {
		return nil, wrapTransitionErr("fail", err)
	}
	return job, nil
}

func (s *JobStore) RequeueStale(ctx context.Context, claimedBefore time.Time, maxAttempts int, now time.Time) ([]domain.ImageJob, error) {
	var recovered []domain.ImageJob
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
SELECT id FROM image_jobs
WHERE status = 'in_progress' AND claimed_at < ?
ORDER BY created_at ASC, rowid ASC`, millis(claimedBefore))
		if err != nil {
			return err
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range ids {
			_, err := tx.ExecContext(ctx, `
UPDATE image_jobs
SET status = CASE WHEN attempts < ? THEN 'pending' ELSE 'failed' END,
    notes = 'claim by ' || COALESCE(claimed_by, 'unknown') || ' went stale'
        || CASE WHEN notes IS NULL THEN '' ELSE char(10) || notes END,
    run_after = ?,
    updated_at = ?
WHERE id = ? AND status = 'in_progress'`, maxAttempts, millis(now), millis(now), id)
			if err != nil {
				return err
			}
			job, err := getJob(ctx, tx, id)
			if err != nil {
				return err
			}
			if job.Status == domain.JobStatusFailed {
				if err := clearPending(ctx, tx, job, now); err != nil {
					return err
				}
			}
			recovered = append(recovered, *job)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: requeue stale image jobs: %w", err)
	}
	return recovered, nil
}

func (s *JobStore) GetByID(ctx context.Context, jobID string) (*domain.ImageJob, error) {
	return getJob(ctx, s.db, jobID)
}

func (s *JobStore) List(ctx context.Context, filter domain.JobFilter) ([]domain.ImageJob, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.EntityType != "" {
		where = append(where, "entity_type = ?")
		args = append(args, string(filter.EntityType))
	}
	if filter.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, filter.EntityID)
	}
	query := "SELECT " + jobColumns + " FROM image_jobs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, clampLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list image jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]domain.ImageJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func (s *JobStore) CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM image_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: count image jobs: %w", err)
	}
	defer rows.Close()

	counts := map[domain.JobStatus]int{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.JobStatus(status)] = n
	}
	return counts, rows.Err()
}

func getJob(ctx context.Context, q querier, id string) (*domain.ImageJob, error) {
	job, err := scanJob(q.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM image_jobs WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return job, err
}

func scanJob(row rowScanner) (*domain.ImageJob, error) {
	var (
		job                        domain.ImageJob
		entityType, status         string
		imageURL, notes, claimedBy sql.NullString
		runAfter, created, updated int64
		claimedAt                  sql.NullInt64
	)
	if err := row.Scan(
		&job.ID, &entityType, &job.EntityID, &job.PromptID, &job.FullPrompt, &status, &job.Attempts,
		&imageURL, &notes, &runAfter, &claimedBy, &claimedAt, &created, &updated,
	); err != nil {
		return nil, err
	}
	job.EntityType = domain.EntityType(entityType)
	job.Status = domain.JobStatus(status)
	job.ImageURL = stringFromNull(imageURL)
	job.Notes = stringFromNull(notes)
	job.RunAfter = fromMillis(runAfter)
	job.ClaimedBy = stringFromNull(claimedBy)
	job.ClaimedAt = timeFromNull(claimedAt)
	job.CreatedAt = fromMillis(created)
	job.UpdatedAt = fromMillis(updated)
	return &job, nil
}

func explainMissedTransition(ctx context.Context, q querier, jobID string) error {
	job, err := getJob(ctx, q, jobID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: job %s is %s (attempt %d)", domain.ErrJobNotInFlight, job.ID, job.Status, job.Attempts)
}

// otherActiveJobs keeps image_pending set while a sibling job is still
// queued or running. Its placeholders are entity type, entity id, job id.
const otherActiveJobs = `EXISTS (
    SELECT 1 FROM image_jobs o
    WHERE o.entity_type = ? AND o.entity_id = ? AND o.id <> ? AND o.status IN ('pending', 'in_progress'))`

func clearPending(ctx context.Context, q querier, job *domain.ImageJob, now time.Time) error {
	table, err := entityTable(job.EntityType)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET image_pending = %s, updated_at = ? WHERE id = ?`, table, otherActiveJobs),
		string(job.EntityType), job.EntityID, job.ID, millis(now), job.EntityID)
	return err
}

func wrapTransitionErr(op string, err error) error {
	if errors.Is(err, domain.ErrJobNotInFlight) || errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return fmt.Errorf("sqlite: %s image job: %w", op, err)
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 500:
		return 500
	}
	return limit
}

var _ domain.ImageJobRepository = (*JobStore)(nil)
