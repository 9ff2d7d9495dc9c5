package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/aiakap/travel-planner-v1/internal/domain"
	"github.com/aiakap/travel-planner-v1/internal/infra"
	"github.com/aiakap/travel-planner-v1/internal/sqlinline"
)

const (
	inFlightIndex    = "image_jobs_one_in_flight"
	defaultListLimit = 50
	maxListLimit     = 500
)

// JobRepositoryPG implements domain.ImageJobRepository on PostgreSQL.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a new image job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Insert stores a pending job. The statement inserts nothing when the entity
// already has an in_progress job.
func (r *JobRepositoryPG) Insert(ctx context.Context, job *domain.ImageJob) error {
	var id string
	err := r.sql.QueryRow(ctx, sqlinline.QInsertImageJob,
		job.ID,
		string(job.EntityType),
		job.EntityID,
		job.PromptID,
		job.FullPrompt,
		job.CreatedAt,
	).Scan(&id)
	if err != nil {
		if infra.IsNoRows(err) {
			return domain.ErrDuplicateInFlight
		}
		return fmt.Errorf("insert image job: %w", err)
	}
	job.Status = domain.JobStatusPending
	job.Attempts = 0
	job.RunAfter = job.CreatedAt
	job.UpdatedAt = job.CreatedAt
	return nil
}

// ClaimNext claims the oldest eligible pending job with skip-locked semantics.
func (r *JobRepositoryPG) ClaimNext(ctx context.Context, workerID string, now time.Time) (*domain.ImageJob, error) {
	job, err := scanImageJob(r.sql.QueryRow(ctx, sqlinline.QClaimNextImageJob, workerID, now))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, nil
		}
		// Two workers picked different pending jobs of the same entity.
		if infra.IsUniqueViolation(err, inFlightIndex) {
			return nil, domain.ErrDuplicateInFlight
		}
		return nil, fmt.Errorf("claim image job: %w", err)
	}
	return job, nil
}

func (r *JobRepositoryPG) Complete(ctx context.Context, jobID string, attempt int, imageURL string, now time.Time) (*domain.ImageJob, bool, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QCompleteImageJob, jobID, attempt, imageURL, now)
	var entityUpdated bool
	job, err := scanImageJob(row, &entityUpdated)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, false, r.explainMissedTransition(ctx, jobID)
		}
		return nil, false, fmt.Errorf("complete image job: %w", err)
	}
	return job, entityUpdated, nil
}

func (r *JobRepositoryPG) Fail(ctx context.Context, p domain.FailParams) (*domain.ImageJob, error) {
	job, err := scanImageJob(r.sql.QueryRow(ctx, sqlinline.QFailImageJob,
		p.JobID,
		p.ExpectedAttempts,
		p.MaxAttempts,
		p.RetryAt,
		p.Notes,
		p.Now,
	))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, r.explainMissedTransition(ctx, p.JobID)
		}
		return nil, fmt.Errorf("fail image job: %w", err)
	}
	return job, nil
}

func (r *JobRepositoryPG) RequeueStale(ctx context.Context, claimedBefore time.Time, maxAttempts int, now time.Time) ([]domain.ImageJob, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QRequeueStaleImageJobs, claimedBefore, maxAttempts, now)
	if err != nil {
		return nil, fmt.Errorf("requeue stale image jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.ImageJob
	for rows.Next() {
		job, err := scanImageJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.ImageJob, error) {
	job, err := scanImageJob(r.sql.QueryRow(ctx, sqlinline.QSelectImageJob, jobID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

func (r *JobRepositoryPG) List(ctx context.Context, filter domain.JobFilter) ([]domain.ImageJob, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListImageJobs,
		string(filter.Status),
		string(filter.EntityType),
		filter.EntityID,
		clampLimit(filter.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list image jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]domain.ImageJob, 0)
	for rows.Next() {
		job, err := scanImageJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func (r *JobRepositoryPG) CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QCountImageJobsByStatus)
	if err != nil {
		return nil, fmt.Errorf("count image jobs: %w", err)
	}
	defer rows.Close()

	counts := map[domain.JobStatus]int{}
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.JobStatus(status)] = int(n)
	}
	return counts, rows.Err()
}

// explainMissedTransition distinguishes an unknown job from one that lost
// the compare-and-set.
func (r *JobRepositoryPG) explainMissedTransition(ctx context.Context, jobID string) error {
	job, err := r.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: job %s is %s (attempt %d)", domain.ErrJobNotInFlight, job.ID, job.Status, job.Attempts)
}

func scanImageJob(row rowScanner, extra ...any) (*domain.ImageJob, error) {
	var (
		job        domain.ImageJob
		entityType string
		status     string
	)
	dest := []any{
		&job.ID,
		&entityType,
		&job.EntityID,
		&job.PromptID,
		&job.FullPrompt,
		&status,
		&job.Attempts,
		&job.ImageURL,
		&job.Notes,
		&job.RunAfter,
		&job.ClaimedBy,
		&job.ClaimedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	job.EntityType = domain.EntityType(entityType)
	job.Status = domain.JobStatus(status)
	return &job, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	}
	return limit
}

var _ domain.ImageJobRepository = (*JobRepositoryPG)(nil)
