package repo

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/aiakap/travel-planner-v1/internal/domain"
	"github.com/aiakap/travel-planner-v1/internal/sqlinline"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func jobRow(status domain.JobStatus, attempts int, imageURL *string, extra ...any) scriptedRow {
	claimedAt := t0
	values := []any{
		"job-1", "trip", "trip-1", "prompt-1", "A beach. Trip \"Bali\".",
		string(status), attempts, imageURL, nil, t0, strPtr("w1"), &claimedAt, t0, t0,
	}
	return scriptedRow{values: append(values, extra...)}
}

func TestInsertReportsDuplicateInFlight(t *testing.T) {
	exec := newScriptedExecutor()
	repo := NewJobRepository(exec)

	err := repo.Insert(context.Background(), &domain.ImageJob{ID: "job-1", EntityType: domain.EntityTrip, EntityID: "trip-1", CreatedAt: t0})
	if !errors.Is(err, domain.ErrDuplicateInFlight) {
		t.Fatalf("expected ErrDuplicateInFlight, got %v", err)
	}
}

func TestInsertFillsPendingDefaults(t *testing.T) {
	exec := newScriptedExecutor().onRow(sqlinline.QInsertImageJob, scriptedRow{values: []any{"job-1"}})
	repo := NewJobRepository(exec)

	job := &domain.ImageJob{ID: "job-1", EntityType: domain.EntityTrip, EntityID: "trip-1", PromptID: "p", FullPrompt: "x", CreatedAt: t0}
	if err := repo.Insert(context.Background(), job); err != nil {
		t.Fatalf("Insert error: %v", err)
	}
	if job.Status != domain.JobStatusPending || job.Attempts != 0 || !job.RunAfter.Equal(t0) {
		t.Fatalf("unexpected job after insert: %+v", job)
	}
	if got := exec.calls[0].args[1]; got != "trip" {
		t.Fatalf("entity type argument = %v", got)
	}
}

func TestClaimNextEmptyQueue(t *testing.T) {
	repo := NewJobRepository(newScriptedExecutor())

	job, err := repo.ClaimNext(context.Background(), "w1", t0)
	if err != nil || job != nil {
		t.Fatalf("expected nil, nil; got %v, %v", job, err)
	}
}

func TestClaimNextLostRaceOnInFlightIndex(t *testing.T) {
	exec := newScriptedExecutor().onRow(sqlinline.QClaimNextImageJob, scriptedRow{
		err: &pgconn.PgError{Code: "23505", ConstraintName: "image_jobs_one_in_flight"},
	})
	repo := NewJobRepository(exec)

	_, err := repo.ClaimNext(context.Background(), "w1", t0)
	if !errors.Is(err, domain.ErrDuplicateInFlight) {
		t.Fatalf("expected ErrDuplicateInFlight, got %v", err)
	}
}

func TestClaimNextScansJob(t *testing.T) {
	exec := newScriptedExecutor().onRow(sqlinline.QClaimNextImageJob, jobRow(domain.JobStatusInProgress, 1, nil))
	repo := NewJobRepository(exec)

	job, err := repo.ClaimNext(context.Background(), "w1", t0)
	if err != nil {
		t.Fatalf("ClaimNext error: %v", err)
	}
	if job.Status != domain.JobStatusInProgress || job.Attempts != 1 || job.EntityType != domain.EntityTrip {
		t.Fatalf("unexpected job: %+v", job)
	}
	if job.ClaimedBy == nil || *job.ClaimedBy != "w1" {
		t.Fatalf("expected claimed_by w1, got %v", job.ClaimedBy)
	}
}

func TestCompleteReportsEntityWriteBack(t *testing.T) {
	url := "https://cdn.example.com/generated/trip/trip-1/job-1.png"
	exec := newScriptedExecutor().onRow(sqlinline.QCompleteImageJob, jobRow(domain.JobStatusCompleted, 1, &url, false))
	repo := NewJobRepository(exec)

	job, updated, err := repo.Complete(context.Background(), "job-1", 1, url, t0)
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if updated {
		t.Fatal("expected custom entity to be skipped")
	}
	if job.ImageURL == nil || *job.ImageURL != url {
		t.Fatalf("unexpected image url %v", job.ImageURL)
	}
}

func TestCompleteLostCASReportsNotInFlight(t *testing.T) {
	url := "https://cdn.example.com/first.png"
	exec := newScriptedExecutor().onRow(sqlinline.QSelectImageJob, jobRow(domain.JobStatusCompleted, 1, &url))
	repo := NewJobRepository(exec)

	_, _, err := repo.Complete(context.Background(), "job-1", 1, "https://cdn.example.com/second.png", t0)
	if !errors.Is(err, domain.ErrJobNotInFlight) {
		t.Fatalf("expected ErrJobNotInFlight, got %v", err)
	}
}

func TestFailUnknownJob(t *testing.T) {
	repo := NewJobRepository(newScriptedExecutor())

	_, err := repo.Fail(context.Background(), domain.FailParams{JobID: "missing", ExpectedAttempts: 1, MaxAttempts: 3, Now: t0})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCountByStatus(t *testing.T) {
	exec := newScriptedExecutor().onRows(sqlinline.QCountImageJobsByStatus,
		scriptedRow{values: []any{"pending", int64(2)}},
		scriptedRow{values: []any{"failed", int64(1)}},
	)
	repo := NewJobRepository(exec)

	counts, err := repo.CountByStatus(context.Background())
	if err != nil {
		t.Fatalf("CountByStatus error: %v", err)
	}
	if counts[domain.JobStatusPending] != 2 || counts[domain.JobStatusFailed] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func TestListClampsLimit(t *testing.T) {
	exec := newScriptedExecutor()
	repo := NewJobRepository(exec)

	if _, err := repo.List(context.Background(), domain.JobFilter{Limit: 10_000}); err != nil {
		t.Fatalf("List error: %v", err)
	}
	if got := exec.calls[0].args[3]; got != maxListLimit {
		t.Fatalf("limit argument = %v, want %d", got, maxListLimit)
	}
}

func TestCustomImageStatements(t *testing.T) {
	exec := newScriptedExecutor()
	exec.tags[sqlinline.QSetSegmentCustomImage] = pgconn.NewCommandTag("UPDATE 0")
	repo := NewEntityRepository(exec)

	if err := repo.SetCustomImage(context.Background(), domain.EntityTrip, "trip-1", "https://example.com/a.jpg"); err != nil {
		t.Fatalf("SetCustomImage error: %v", err)
	}
	if exec.calls[0].query != sqlinline.QSetTripCustomImage || exec.calls[0].args[1] != "https://example.com/a.jpg" {
		t.Fatalf("unexpected call: %+v", exec.calls[0])
	}
	if err := repo.SetCustomImage(context.Background(), domain.EntitySegment, "missing", "/a.png"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.ClearCustomImage(context.Background(), domain.EntityReservation, "res-1"); err != nil {
		t.Fatalf("ClearCustomImage error: %v", err)
	}
	if exec.calls[2].query != sqlinline.QClearReservationCustomImage {
		t.Fatal("expected reservation clear statement")
	}
	if err := repo.ClearCustomImage(context.Background(), "hotel", "x"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestUpdateTripDoesNotWriteImageColumns(t *testing.T) {
	exec := newScriptedExecutor()
	repo := NewEntityRepository(exec)
	url := "https://cdn.example.com/stale.png"
	trip := &domain.Trip{ID: "trip-1", Title: "Bali", UpdatedAt: t0, ImageState: domain.ImageState{ImageURL: &url, ImagePending: true}}

	if err := repo.UpdateTrip(context.Background(), trip); err != nil {
		t.Fatalf("UpdateTrip error: %v", err)
	}
	for _, arg := range exec.calls[0].args {
		if arg == trip.ImageURL || arg == url {
			t.Fatalf("image url passed to update: %+v", exec.calls[0].args)
		}
	}
	if strings.Contains(sqlinline.QUpdateTrip, "image_") {
		t.Fatal("trip update statement touches image columns")
	}
}
