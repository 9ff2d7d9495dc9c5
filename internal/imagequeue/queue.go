// Package imagequeue is the durable queue of image generation jobs. Every
// transition is a conditional update in the store, so any number of workers
// may share one queue.
package imagequeue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aiakap/travel-planner-v1/internal/domain"
	"github.com/aiakap/travel-planner-v1/internal/metrics"
)

const (
	maxNotesBytes = 2000
	claimRetries  = 3
)

// EnqueueParams names the entity to illustrate and the composed prompt.
// Callers check the entity's custom-image flag before enqueueing.
type EnqueueParams struct {
	EntityType domain.EntityType
	EntityID   string
	PromptID   string
	FullPrompt string
}

type Queue struct {
	repo   domain.ImageJobRepository
	policy Policy
	now    func() time.Time
	logger zerolog.Logger
}

type Option func(*Queue)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(q *Queue) { q.logger = logger }
}

func New(repo domain.ImageJobRepository, policy Policy, opts ...Option) (*Queue, error) {
	if repo == nil {
		return nil, errors.New("imagequeue: repository is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("imagequeue: %w", err)
	}
	q := &Queue{
		repo:   repo,
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = q.logger.With().Str("component", "imagequeue").Logger()
	return q, nil
}

func (q *Queue) Policy() Policy { return q.policy }

// Enqueue stores a pending job. It fails with domain.ErrDuplicateInFlight
// while the entity has a job in progress.
func (q *Queue) Enqueue(ctx context.Context, p EnqueueParams) (*domain.ImageJob, error) {
	kind, err := domain.ParseEntityType(string(p.EntityType))
	if err != nil {
		return nil, err
	}
	p.EntityID = strings.TrimSpace(p.EntityID)
	p.PromptID = strings.TrimSpace(p.PromptID)
	p.FullPrompt = strings.TrimSpace(p.FullPrompt)
	switch {
	case p.EntityID == "":
		return nil, fmt.Errorf("%w: entity id is required", domain.ErrInvalidInput)
	case p.PromptID == "":
		return nil, fmt.Errorf("%w: prompt id is required", domain.ErrInvalidInput)
	case p.FullPrompt == "":
		return nil, fmt.Errorf("%w: prompt text is required", domain.ErrInvalidInput)
	}

	job := &domain.ImageJob{
		ID:         uuid.NewString(),
		EntityType: kind,
		EntityID:   p.EntityID,
		PromptID:   p.PromptID,
		FullPrompt: p.FullPrompt,
		CreatedAt:  q.now(),
	}
	if err := q.repo.Insert(ctx, job); err != nil {
		return nil, err
	}
	metrics.IncreaseEnqueued(string(kind))
	q.logger.Info().
		Str("job_id", job.ID).
		Str("entity_type", string(kind)).
		Str("entity_id", job.EntityID).
		Str("prompt_id", job.PromptID).
		Msg("image job enqueued")
	return job, nil
}

// ClaimNext moves the oldest due pending job to in_progress on behalf of
// workerID. It returns nil, nil when nothing is claimable.
func (q *Queue) ClaimNext(ctx context.Context, workerID string) (*domain.ImageJob, error) {
	if strings.TrimSpace(workerID) == "" {
		return nil, fmt.Errorf("%w: worker id is required", domain.ErrInvalidInput)
	}
	var lastErr error
	for i := 0; i < claimRetries; i++ {
		job, err := q.repo.ClaimNext(ctx, workerID, q.now())
		if errors.Is(err, domain.ErrDuplicateInFlight) {
			// Another worker claimed a sibling first.
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}
		if job != nil {
			metrics.IncreaseClaimed()
			q.logger.Debug().
				Str("job_id", job.ID).
				Str("worker_id", workerID).
				Int("attempts", job.Attempts).
				Msg("image job claimed")
		}
		return job, nil
	}
	q.logger.Warn().Err(lastErr).Str("worker_id", workerID).Msg("claim kept losing races, giving up for now")
	return nil, nil
}

// Complete marks an in-progress job completed with imageURL, whatever claim
// it is on. Workers use CompleteClaim.
func (q *Queue) Complete(ctx context.Context, jobID, imageURL string) (*domain.ImageJob, error) {
	job, err := q.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return q.CompleteClaim(ctx, job, imageURL)
}

// CompleteClaim completes the job only while claim is still the current
// attempt. The owning entity receives the URL unless its image is custom.
// A job that is no longer in progress yields domain.ErrJobNotInFlight and
// keeps its stored URL.
func (q *Queue) CompleteClaim(ctx context.Context, claim *domain.ImageJob, imageURL string) (*domain.ImageJob, error) {
	if strings.TrimSpace(imageURL) == "" {
		return nil, fmt.Errorf("%w: image url is required", domain.ErrInvalidInput)
	}
	job, entityUpdated, err := q.repo.Complete(ctx, claim.ID, claim.Attempts, imageURL, q.now())
	if err != nil {
		return nil, err
	}
	metrics.IncreaseCompleted(string(job.EntityType))

	ev := q.logger.Info()
	if !entityUpdated {
		ev = q.logger.Warn().AnErr("skipped", domain.ErrCustomImage)
	}
	ev.Str("job_id", job.ID).
		Str("entity_type", string(job.EntityType)).
		Str("entity_id", job.EntityID).
		Int("attempts", job.Attempts).
		Bool("entity_updated", entityUpdated).
		Msg("image job completed")
	return job, nil
}

// Fail records reason against an in-progress job, whatever claim it is on.
// Workers use FailClaim.
func (q *Queue) Fail(ctx context.Context, jobID, reason string) (*domain.ImageJob, error) {
	job, err := q.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return q.FailClaim(ctx, job, reason)
}

// FailClaim returns the job to pending with a backoff while attempts remain,
// otherwise marks it failed. The returned job's status tells which.
func (q *Queue) FailClaim(ctx context.Context, claim *domain.ImageJob, reason string) (*domain.ImageJob, error) {
	now := q.now()
	terminal := claim.Attempts >= q.policy.MaxAttempts
	notes := strings.TrimSpace(reason)
	if notes == "" {
		notes = "unknown error"
	}
	if terminal {
		notes = fmt.Sprintf("%s: %s", domain.ErrMaxAttemptsExceeded, notes)
	}

	job, err := q.repo.Fail(ctx, domain.FailParams{
		JobID:            claim.ID,
		ExpectedAttempts: claim.Attempts,
		MaxAttempts:      q.policy.MaxAttempts,
		RetryAt:          now.Add(q.policy.Backoff(claim.Attempts)),
		Notes:            truncateNotes(notes),
		Now:              now,
	})
	if err != nil {
		return nil, err
	}

	ev := q.logger.Warn()
	outcome := metrics.OutcomeRetry
	if job.Status == domain.JobStatusFailed {
		ev = q.logger.Error()
		outcome = metrics.OutcomeTerminal
	}
	metrics.IncreaseFailed(outcome)
	ev.Str("job_id", job.ID).
		Str("entity_type", string(job.EntityType)).
		Str("entity_id", job.EntityID).
		Int("attempts", job.Attempts).
		Str("status", string(job.Status)).
		Time("run_after", job.RunAfter).
		Str("reason", reason).
		Msg("image job attempt failed")
	return job, nil
}

// RecoverStale requeues in-progress jobs whose claim is older than the
// policy's stale timeout; jobs out of attempts are failed instead.
func (q *Queue) RecoverStale(ctx context.Context) ([]domain.ImageJob, error) {
	now := q.now()
	jobs, err := q.repo.RequeueStale(ctx, now.Add(-q.policy.StaleAfter), q.policy.MaxAttempts, now)
	if err != nil {
		return nil, err
	}
	metrics.AddStaleRecovered(len(jobs))
	for _, job := range jobs {
		q.logger.Warn().
			Str("job_id", job.ID).
			Str("entity_type", string(job.EntityType)).
			Str("entity_id", job.EntityID).
			Int("attempts", job.Attempts).
			Str("status", string(job.Status)).
			Msg("stale image job recovered")
	}
	return jobs, nil
}

func (q *Queue) Get(ctx context.Context, jobID string) (*domain.ImageJob, error) {
	return q.repo.GetByID(ctx, jobID)
}

func (q *Queue) List(ctx context.Context, filter domain.JobFilter) ([]domain.ImageJob, error) {
	return q.repo.List(ctx, filter)
}

// Stats counts jobs per status, zero-filled, and refreshes the status gauge.
func (q *Queue) Stats(ctx context.Context) (map[domain.JobStatus]int, error) {
	counts, err := q.repo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[domain.JobStatus]int, 4)
	for _, s := range []domain.JobStatus{
		domain.JobStatusPending, domain.JobStatusInProgress, domain.JobStatusCompleted, domain.JobStatusFailed,
	} {
		out[s] = counts[s]
		metrics.UpdateJobsByStatus(string(s), counts[s])
	}
	return out, nil
}

func truncateNotes(s string) string {
	if len(s) <= maxNotesBytes {
		return s
	}
	cut := maxNotesBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
