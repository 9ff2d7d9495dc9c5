// Package worker drains the image queue: claim, generate, upload, report.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lthibault/jitterbug/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aiakap/travel-planner-v1/internal/domain"
	"github.com/aiakap/travel-planner-v1/internal/metrics"
	"github.com/aiakap/travel-planner-v1/internal/providers/image"
	"github.com/aiakap/travel-planner-v1/internal/storage"
)

// bookkeepingTimeout bounds the queue update after an attempt, which runs
// even when the worker is shutting down.
const bookkeepingTimeout = 10 * time.Second

// Queue is the part of imagequeue.Queue the worker drives.
type Queue interface {
	ClaimNext(ctx context.Context, workerID string) (*domain.ImageJob, error)
	CompleteClaim(ctx context.Context, claim *domain.ImageJob, imageURL string) (*domain.ImageJob, error)
	FailClaim(ctx context.Context, claim *domain.ImageJob, reason string) (*domain.ImageJob, error)
	RecoverStale(ctx context.Context) ([]domain.ImageJob, error)
}

type Config struct {
	ID              string
	Concurrency     int
	PollInterval    time.Duration
	GenerateTimeout time.Duration
	UploadTimeout   time.Duration
	// MaxJobsPerRun caps claims per Drain; zero means no cap.
	MaxJobsPerRun int
	AspectRatio   string
}

// Stats summarises one Drain.
type Stats struct {
	Claimed   int `json:"claimed"`
	Completed int `json:"completed"`
	Retried   int `json:"retried"`
	Failed    int `json:"failed"`
	Lost      int `json:"lost"`
	Abandoned int `json:"abandoned"`
}

func (s Stats) add(o Stats) Stats {
	return Stats{
		Claimed:   s.Claimed + o.Claimed,
		Completed: s.Completed + o.Completed,
		Retried:   s.Retried + o.Retried,
		Failed:    s.Failed + o.Failed,
		Lost:      s.Lost + o.Lost,
		Abandoned: s.Abandoned + o.Abandoned,
	}
}

// Outcome is what happened to one claimed job.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeRetried   Outcome = "retried"
	OutcomeFailed    Outcome = "failed"
	// OutcomeLost means the claim was recovered as stale before this worker
	// reported back, so its result was discarded.
	OutcomeLost Outcome = "lost"
	// OutcomeAbandoned means shutdown interrupted the attempt. The claim is
	// left in progress for stale recovery and no attempt is charged as failed.
	OutcomeAbandoned Outcome = "abandoned"
)

type Worker struct {
	queue     Queue
	generator image.Generator
	uploader  storage.Uploader
	cfg       Config
	logger    zerolog.Logger
}

func New(queue Queue, generator image.Generator, uploader storage.Uploader, cfg Config, logger zerolog.Logger) (*Worker, error) {
	switch {
	case queue == nil:
		return nil, errors.New("worker: queue is required")
	case generator == nil:
		return nil, errors.New("worker: generator is required")
	case uploader == nil:
		return nil, errors.New("worker: uploader is required")
	case strings.TrimSpace(cfg.ID) == "":
		return nil, errors.New("worker: id is required")
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = 90 * time.Second
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 30 * time.Second
	}
	return &Worker{
		queue:     queue,
		generator: generator,
		uploader:  uploader,
		cfg:       cfg,
		logger: logger.With().
			Str("component", "worker").
			Str("worker_id", cfg.ID).
			Str("generator", generator.Name()).
			Str("uploader", uploader.Name()).
			Logger(),
	}, nil
}

// Run recovers stale claims and drains the queue immediately, then again on
// every jittered tick until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := jitterbug.New(w.cfg.PollInterval, &jitterbug.Norm{Stdev: w.cfg.PollInterval / 10, Mean: 0})
	defer ticker.Stop()

	w.logger.Info().Dur("poll_interval", w.cfg.PollInterval).Int("concurrency", w.cfg.Concurrency).Msg("worker started")
	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("worker pass failed")
		}
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce is a single scheduled invocation: recover stale claims, then drain.
func (w *Worker) RunOnce(ctx context.Context) (Stats, error) {
	if _, err := w.queue.RecoverStale(ctx); err != nil {
		return Stats{}, fmt.Errorf("recover stale jobs: %w", err)
	}
	stats, err := w.Drain(ctx)
	if stats.Claimed > 0 {
		w.logger.Info().
			Int("claimed", stats.Claimed).
			Int("completed", stats.Completed).
			Int("retried", stats.Retried).
			Int("failed", stats.Failed).
			Int("lost", stats.Lost).
			Int("abandoned", stats.Abandoned).
			Msg("worker pass finished")
	}
	return stats, err
}

// Drain processes jobs with Concurrency goroutines until nothing is
// claimable, MaxJobsPerRun is reached, or ctx is cancelled.
func (w *Worker) Drain(ctx context.Context) (Stats, error) {
	var (
		budget   atomic.Int64
		outcomes = make([]Stats, w.cfg.Concurrency)
	)
	budget.Store(int64(w.cfg.MaxJobsPerRun))

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Concurrency; i++ {
		slot := &outcomes[i]
		g.Go(func() error {
			for gctx.Err() == nil {
				if w.cfg.MaxJobsPerRun > 0 && budget.Add(-1) < 0 {
					return nil
				}
				job, err := w.queue.ClaimNext(gctx, w.cfg.ID)
				if err != nil {
					if gctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("claim: %w", err)
				}
				if job == nil {
					return nil
				}
				slot.Claimed++

				outcome, err := w.Process(gctx, job)
				if err != nil {
					return err
				}
				switch outcome {
				case OutcomeCompleted:
					slot.Completed++
				case OutcomeRetried:
					slot.Retried++
				case OutcomeFailed:
					slot.Failed++
				case OutcomeLost:
					slot.Lost++
				case OutcomeAbandoned:
					slot.Abandoned++
				}
			}
			return nil
		})
	}
	err := g.Wait()

	var total Stats
	for _, s := range outcomes {
		total = total.add(s)
	}
	return total, err
}

// Process generates and uploads the image for one claimed job and reports
// the result to the queue. Generation and upload errors become the job's
// failure notes; the returned error is only for queue bookkeeping failures.
func (w *Worker) Process(ctx context.Context, job *domain.ImageJob) (Outcome, error) {
	log := w.logger.With().
		Str("job_id", job.ID).
		Str("entity_type", string(job.EntityType)).
		Str("entity_id", job.EntityID).
		Int("attempts", job.Attempts).
		Logger()
	log.Debug().Msg("processing image job")

	url, attemptErr := w.attempt(ctx, job)

	bookCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()

	if attemptErr != nil && ctx.Err() != nil {
		log.Info().Err(attemptErr).Msg("shutdown interrupted image job; leaving claim for stale recovery")
		return OutcomeAbandoned, nil
	}
	if attemptErr != nil {
		log.Warn().Err(attemptErr).Msg("image attempt failed")
		updated, err := w.queue.FailClaim(bookCtx, job, attemptErr.Error())
		if errors.Is(err, domain.ErrJobNotInFlight) {
			return OutcomeLost, nil
		}
		if err != nil {
			return "", fmt.Errorf("record failure for job %s: %w", job.ID, err)
		}
		if updated.Status == domain.JobStatusFailed {
			return OutcomeFailed, nil
		}
		return OutcomeRetried, nil
	}

	if _, err := w.queue.CompleteClaim(bookCtx, job, url); err != nil {
		if errors.Is(err, domain.ErrJobNotInFlight) {
			log.Warn().Str("image_url", url).Msg("claim went stale before completion; result discarded")
			return OutcomeLost, nil
		}
		return "", fmt.Errorf("complete job %s: %w", job.ID, err)
	}
	return OutcomeCompleted, nil
}

func (w *Worker) attempt(ctx context.Context, job *domain.ImageJob) (string, error) {
	genCtx, cancelGen := context.WithTimeout(ctx, w.cfg.GenerateTimeout)
	start := time.Now()
	img, err := w.generator.Generate(genCtx, image.GenerateRequest{
		Prompt:      job.FullPrompt,
		AspectRatio: w.cfg.AspectRatio,
		RequestID:   job.ID,
	})
	genErr := genCtx.Err()
	cancelGen()
	metrics.ObserveGeneration(time.Since(start))

	switch {
	case err == nil && (img == nil || len(img.Data) == 0):
		return "", fmt.Errorf("%w: generator returned no image data", domain.ErrGenerationRejected)
	case err != nil && errors.Is(genErr, context.DeadlineExceeded):
		return "", fmt.Errorf("%w after %s: %v", domain.ErrGenerationTimeout, w.cfg.GenerateTimeout, err)
	case err != nil && errors.Is(err, domain.ErrGenerationRejected):
		return "", err
	case err != nil:
		return "", fmt.Errorf("generation failed: %w", err)
	}

	upCtx, cancelUp := context.WithTimeout(ctx, w.cfg.UploadTimeout)
	defer cancelUp()
	url, err := w.uploader.Upload(upCtx, ObjectKey(job, img.Ext()), img.Data, img.MIMEType)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUploadFailed, err)
	}
	return url, nil
}

// ObjectKey is where a job's image is stored. Including the job id keeps
// every attempt's output distinct.
func ObjectKey(job *domain.ImageJob, ext string) string {
	return fmt.Sprintf("generated/%s/%s/%s.%s", job.EntityType, job.EntityID, job.ID, ext)
}
