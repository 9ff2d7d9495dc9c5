package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiakap/travel-planner-v1/internal/domain"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenMigrated(context.Background(), filepath.Join(t.TempDir(), "planner.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedTrip(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	require.NoError(t, NewEntityStore(db).CreateTrip(context.Background(), &domain.Trip{
		ID: id, Title: "Bali", Description: "Beaches and temples", CreatedAt: t0,
	}))
}

func seedPrompt(t *testing.T, db *sql.DB) string {
	t.Helper()
	tpl := &domain.ImagePromptTemplate{
		Name: "Tropical Paradise", Category: domain.EntityTrip,
		Prompt: "A tropical island with palm trees", UpdatedAt: t0,
	}
	require.NoError(t, NewPromptStore(db).Upsert(context.Background(), tpl))
	return tpl.ID
}

func insertJob(t *testing.T, store *JobStore, id, entityID string, created time.Time) {
	t.Helper()
	require.NoError(t, store.Insert(context.Background(), &domain.ImageJob{
		ID: id, EntityType: domain.EntityTrip, EntityID: entityID,
		PromptID: "prompt-1", FullPrompt: "a prompt", CreatedAt: created,
	}))
}

func TestClaimNextIsFIFOAndSkipsInFlightEntities(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(openTestDB(t))

	insertJob(t, store, "a1", "trip-a", t0)
	insertJob(t, store, "a2", "trip-a", t0.Add(time.Second))
	insertJob(t, store, "b1", "trip-b", t0.Add(2*time.Second))

	first, err := store.ClaimNext(ctx, "w1", t0.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, "a1", first.ID)
	assert.Equal(t, 1, first.Attempts)
	assert.Equal(t, domain.JobStatusInProgress, first.Status)

	// a2 belongs to an entity already in flight.
	second, err := store.ClaimNext(ctx, "w2", t0.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, "b1", second.ID)

	none, err := store.ClaimNext(ctx, "w3", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestInsertRejectsWhileEntityInFlight(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(openTestDB(t))

	insertJob(t, store, "a1", "trip-a", t0)
	_, err := store.ClaimNext(ctx, "w1", t0)
	require.NoError(t, err)

	err = store.Insert(ctx, &domain.ImageJob{ID: "a2", EntityType: domain.EntityTrip, EntityID: "trip-a", CreatedAt: t0})
	assert.ErrorIs(t, err, domain.ErrDuplicateInFlight)
}

func TestClaimHonoursRunAfter(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(openTestDB(t))

	insertJob(t, store, "a1", "trip-a", t0)
	job, err := store.ClaimNext(ctx, "w1", t0)
	require.NoError(t, err)

	failed, err := store.Fail(ctx, domain.FailParams{
		JobID: job.ID, ExpectedAttempts: 1, MaxAttempts: 3,
		RetryAt: t0.Add(time.Minute), Notes: "boom", Now: t0,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, failed.Status)

	early, err := store.ClaimNext(ctx, "w1", t0.Add(30*time.Second))
	require.NoError(t, err)
	assert.Nil(t, early)

	later, err := store.ClaimNext(ctx, "w1", t0.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, later)
	assert.Equal(t, 2, later.Attempts)
}

func TestCompleteWritesBackToEntity(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedTrip(t, db, "trip-a")
	promptID := seedPrompt(t, db)
	store := NewJobStore(db)

	require.NoError(t, store.Insert(ctx, &domain.ImageJob{
		ID: "a1", EntityType: domain.EntityTrip, EntityID: "trip-a", PromptID: promptID, FullPrompt: "p", CreatedAt: t0,
	}))
	job, err := store.ClaimNext(ctx, "w1", t0)
	require.NoError(t, err)

	done, updated, err := store.Complete(ctx, job.ID, job.Attempts, "https://cdn.example.com/a1.png", t0.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, domain.JobStatusCompleted, done.Status)

	trip, err := NewEntityStore(db).GetTrip(ctx, "trip-a")
	require.NoError(t, err)
	require.NotNil(t, trip.ImageURL)
	assert.Equal(t, "https://cdn.example.com/a1.png", *trip.ImageURL)
	require.NotNil(t, trip.ImagePromptID)
	assert.Equal(t, promptID, *trip.ImagePromptID)
	assert.False(t, trip.ImagePending)

	_, _, err = store.Complete(ctx, job.ID, job.Attempts, "https://cdn.example.com/again.png", t0)
	assert.ErrorIs(t, err, domain.ErrJobNotInFlight)
}

func TestCompleteSkipsCustomImage(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	custom := "https://example.com/mine.jpg"
	entities := NewEntityStore(db)
	require.NoError(t, entities.CreateTrip(ctx, &domain.Trip{
		ID: "trip-a", Title: "Bali", CreatedAt: t0,
		ImageState: domain.ImageState{ImageURL: &custom, ImageIsCustom: true},
	}))
	store := NewJobStore(db)
	insertJob(t, store, "a1", "trip-a", t0)
	job, err := store.ClaimNext(ctx, "w1", t0)
	require.NoError(t, err)

	_, updated, err := store.Complete(ctx, job.ID, job.Attempts, "https://cdn.example.com/a1.png", t0)
	require.NoError(t, err)
	assert.False(t, updated)

	trip, err := entities.GetTrip(ctx, "trip-a")
	require.NoError(t, err)
	assert.Equal(t, custom, *trip.ImageURL)
}

func TestCompleteRejectsStaleAttempt(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(openTestDB(t))
	insertJob(t, store, "a1", "trip-a", t0)

	first, err := store.ClaimNext(ctx, "slow", t0)
	require.NoError(t, err)
	_, err = store.RequeueStale(ctx, t0.Add(time.Minute), 3, t0.Add(time.Minute))
	require.NoError(t, err)
	second, err := store.ClaimNext(ctx, "fast", t0.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, 2, second.Attempts)

	_, _, err = store.Complete(ctx, first.ID, first.Attempts, "https://cdn.example.com/late.png", t0.Add(2*time.Minute))
	assert.ErrorIs(t, err, domain.ErrJobNotInFlight)
}

func TestFailTerminalClearsPending(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	entities := NewEntityStore(db)
	require.NoError(t, entities.CreateTrip(ctx, &domain.Trip{
		ID: "trip-a", Title: "Bali", CreatedAt: t0, ImageState: domain.ImageState{ImagePending: true},
	}))
	store := NewJobStore(db)
	insertJob(t, store, "a1", "trip-a", t0)
	job, err := store.ClaimNext(ctx, "w1", t0)
	require.NoError(t, err)

	failed, err := store.Fail(ctx, domain.FailParams{
		JobID: job.ID, ExpectedAttempts: 1, MaxAttempts: 1, RetryAt: t0, Notes: "rejected", Now: t0,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, failed.Status)
	require.NotNil(t, failed.Notes)
	assert.Equal(t, "rejected", *failed.Notes)

	trip, err := entities.GetTrip(ctx, "trip-a")
	require.NoError(t, err)
	assert.False(t, trip.ImagePending)

	_, err = store.Fail(ctx, domain.FailParams{JobID: "missing", ExpectedAttempts: 1, MaxAttempts: 1, Now: t0})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRequeueStale(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(openTestDB(t))
	insertJob(t, store, "a1", "trip-a", t0)
	insertJob(t, store, "b1", "trip-b", t0)

	_, err := store.ClaimNext(ctx, "w1", t0)
	require.NoError(t, err)
	_, err = store.ClaimNext(ctx, "w2", t0.Add(5*time.Minute))
	require.NoError(t, err)

	recovered, err := store.RequeueStale(ctx, t0.Add(time.Minute), 3, t0.Add(6*time.Minute))
	require.NoError(t, err)
	require.Len(t, recovered, 1)
	assert.Equal(t, "a1", recovered[0].ID)
	assert.Equal(t, domain.JobStatusPending, recovered[0].Status)
	require.NotNil(t, recovered[0].Notes)
	assert.Contains(t, *recovered[0].Notes, "claim by w1 went stale")

	counts, err := store.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.JobStatusPending])
	assert.Equal(t, 1, counts[domain.JobStatusInProgress])
}

func TestRequeueStaleFailsExhaustedJob(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(openTestDB(t))
	insertJob(t, store, "a1", "trip-a", t0)
	_, err := store.ClaimNext(ctx, "w1", t0)
	require.NoError(t, err)

	recovered, err := store.RequeueStale(ctx, t0.Add(time.Minute), 1, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, recovered, 1)
	assert.Equal(t, domain.JobStatusFailed, recovered[0].Status)
}

func TestListFiltersNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(openTestDB(t))
	insertJob(t, store, "a1", "trip-a", t0)
	insertJob(t, store, "a2", "trip-a", t0.Add(time.Second))
	insertJob(t, store, "b1", "trip-b", t0.Add(2*time.Second))

	jobs, err := store.List(ctx, domain.JobFilter{EntityID: "trip-a"})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "a2", jobs[0].ID)

	all, err := store.List(ctx, domain.JobFilter{Status: domain.JobStatusPending, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestEntityHierarchy(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	entities := NewEntityStore(db)
	seedTrip(t, db, "trip-a")

	seg := &domain.Segment{ID: "seg-1", TripID: "trip-a", Name: "Flight to Denpasar", SegmentType: "Flight", CreatedAt: t0}
	require.NoError(t, entities.CreateSegment(ctx, seg))
	assert.Equal(t, 1, seg.Order)

	start := t0.Add(48 * time.Hour)
	res := &domain.Reservation{ID: "res-1", SegmentID: "seg-1", Name: "Ubud Villa", Category: "Hotel", StartTime: &start, CreatedAt: t0}
	require.NoError(t, entities.CreateReservation(ctx, res))

	got, err := entities.GetReservation(ctx, "res-1")
	require.NoError(t, err)
	assert.Equal(t, "Flight to Denpasar", got.SegmentName)
	assert.Equal(t, "Bali", got.TripTitle)
	require.NotNil(t, got.StartTime)
	assert.True(t, got.StartTime.Equal(start))

	orphan := &domain.Segment{ID: "seg-2", TripID: "missing", Name: "Nowhere", CreatedAt: t0}
	assert.ErrorIs(t, entities.CreateSegment(ctx, orphan), domain.ErrNotFound)

	require.NoError(t, entities.SetCustomImage(ctx, domain.EntitySegment, "seg-1", "https://example.com/plane.jpg"))
	gotSeg, err := entities.GetSegment(ctx, "seg-1")
	require.NoError(t, err)
	assert.True(t, gotSeg.ImageIsCustom)
	assert.Equal(t, "https://example.com/plane.jpg", *gotSeg.ImageURL)
	assert.Equal(t, "Bali", gotSeg.TripTitle)

	require.NoError(t, entities.ClearCustomImage(ctx, domain.EntitySegment, "seg-1"))
	gotSeg, err = entities.GetSegment(ctx, "seg-1")
	require.NoError(t, err)
	assert.False(t, gotSeg.ImageIsCustom)
	assert.Equal(t, "https://example.com/plane.jpg", *gotSeg.ImageURL)

	assert.ErrorIs(t, entities.SetCustomImage(ctx, domain.EntityTrip, "missing", "/x.png"), domain.ErrNotFound)
	assert.ErrorIs(t, entities.ClearCustomImage(ctx, domain.EntityType("hotel"), "x"), domain.ErrInvalidInput)
}

func TestInsertMarksEntityPending(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	entities := NewEntityStore(db)
	seedTrip(t, db, "trip-a")
	custom := "https://example.com/mine.jpg"
	require.NoError(t, entities.CreateTrip(ctx, &domain.Trip{
		ID: "trip-c", Title: "Mine", CreatedAt: t0,
		ImageState: domain.ImageState{ImageURL: &custom, ImageIsCustom: true},
	}))
	store := NewJobStore(db)
	insertJob(t, store, "a1", "trip-a", t0)
	insertJob(t, store, "c1", "trip-c", t0)

	trip, err := entities.GetTrip(ctx, "trip-a")
	require.NoError(t, err)
	assert.True(t, trip.ImagePending)
	mine, err := entities.GetTrip(ctx, "trip-c")
	require.NoError(t, err)
	assert.False(t, mine.ImagePending)

	// A terminal failure clears the flag and a rejected insert does not set it.
	_, err = store.ClaimNext(ctx, "w1", t0)
	require.NoError(t, err)
	_, err = store.Fail(ctx, domain.FailParams{JobID: "a1", ExpectedAttempts: 1, MaxAttempts: 1, Now: t0})
	require.NoError(t, err)
	insertJob(t, store, "a2", "trip-a", t0.Add(time.Second))
	_, err = store.ClaimNext(ctx, "w1", t0.Add(time.Second))
	require.NoError(t, err)
	_, err = store.Fail(ctx, domain.FailParams{JobID: "a2", ExpectedAttempts: 1, MaxAttempts: 1, Now: t0})
	require.NoError(t, err)
	trip, err = entities.GetTrip(ctx, "trip-a")
	require.NoError(t, err)
	assert.False(t, trip.ImagePending)

	insertJob(t, store, "a3", "trip-a", t0.Add(2*time.Second))
	_, err = store.ClaimNext(ctx, "w1", t0.Add(2*time.Second))
	require.NoError(t, err)
	require.NoError(t, entities.SetCustomImage(ctx, domain.EntityTrip, "trip-a", "/uploads/a.png"))
	err = store.Insert(ctx, &domain.ImageJob{ID: "a4", EntityType: domain.EntityTrip, EntityID: "trip-a", CreatedAt: t0})
	assert.ErrorIs(t, err, domain.ErrDuplicateInFlight)
	trip, err = entities.GetTrip(ctx, "trip-a")
	require.NoError(t, err)
	assert.False(t, trip.ImagePending)
}

func TestCompleteKeepsPendingWhileSiblingQueued(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	entities := NewEntityStore(db)
	seedTrip(t, db, "trip-a")
	store := NewJobStore(db)
	insertJob(t, store, "a1", "trip-a", t0)
	insertJob(t, store, "a2", "trip-a", t0.Add(time.Second))

	first, err := store.ClaimNext(ctx, "w1", t0.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, "a1", first.ID)
	_, _, err = store.Complete(ctx, first.ID, first.Attempts, "https://cdn.example.com/a1.png", t0.Add(time.Minute))
	require.NoError(t, err)

	trip, err := entities.GetTrip(ctx, "trip-a")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a1.png", *trip.ImageURL)
	assert.True(t, trip.ImagePending)

	second, err := store.ClaimNext(ctx, "w1", t0.Add(2*time.Minute))
	require.NoError(t, err)
	_, _, err = store.Complete(ctx, second.ID, second.Attempts, "https://cdn.example.com/a2.png", t0.Add(2*time.Minute))
	require.NoError(t, err)

	trip, err = entities.GetTrip(ctx, "trip-a")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a2.png", *trip.ImageURL)
	assert.False(t, trip.ImagePending)
}

func TestUpdateLeavesImageColumns(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	entities := NewEntityStore(db)
	seedTrip(t, db, "trip-a")
	store := NewJobStore(db)
	insertJob(t, store, "a1", "trip-a", t0)

	stale, err := entities.GetTrip(ctx, "trip-a")
	require.NoError(t, err)

	job, err := store.ClaimNext(ctx, "w1", t0)
	require.NoError(t, err)
	_, _, err = store.Complete(ctx, job.ID, job.Attempts, "https://cdn.example.com/a1.png", t0)
	require.NoError(t, err)

	stale.Description = "Rice terraces"
	stale.UpdatedAt = t0.Add(time.Minute)
	require.NoError(t, entities.UpdateTrip(ctx, stale))

	trip, err := entities.GetTrip(ctx, "trip-a")
	require.NoError(t, err)
	assert.Equal(t, "Rice terraces", trip.Description)
	require.NotNil(t, trip.ImageURL)
	assert.Equal(t, "https://cdn.example.com/a1.png", *trip.ImageURL)
	assert.False(t, trip.ImagePending)
}

func TestPromptUpsertKeepsIDByName(t *testing.T) {
	ctx := context.Background()
	prompts := NewPromptStore(openTestDB(t))

	first := &domain.ImagePromptTemplate{Name: "Road Trip", Category: domain.EntitySegment, Prompt: "An open highway at dusk", UpdatedAt: t0}
	require.NoError(t, prompts.Upsert(ctx, first))

	again := &domain.ImagePromptTemplate{Name: "Road Trip", Category: domain.EntitySegment, Prompt: "A winding coastal road", UpdatedAt: t0.Add(time.Hour)}
	require.NoError(t, prompts.Upsert(ctx, again))
	assert.Equal(t, first.ID, again.ID)

	list, err := prompts.ListByCategory(ctx, domain.EntitySegment)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "A winding coastal road", list[0].Prompt)

	_, err = prompts.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConstraintErrorsUseDriverCodes(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	_, err := db.ExecContext(ctx, `CREATE TABLE kv_parent (id TEXT PRIMARY KEY, name TEXT NOT NULL UNIQUE)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `CREATE TABLE kv_child (id TEXT PRIMARY KEY, parent_id TEXT NOT NULL REFERENCES kv_parent(id))`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO kv_parent (id, name) VALUES ('p1', 'one')`)
	require.NoError(t, err)

	_, dupName := db.ExecContext(ctx, `INSERT INTO kv_parent (id, name) VALUES ('p2', 'one')`)
	require.Error(t, dupName)
	assert.True(t, isUniqueViolation(fmt.Errorf("wrapped: %w", dupName)))
	assert.False(t, isForeignKeyViolation(dupName))

	_, dupID := db.ExecContext(ctx, `INSERT INTO kv_parent (id, name) VALUES ('p1', 'two')`)
	require.Error(t, dupID)
	assert.True(t, isUniqueViolation(dupID))

	_, orphan := db.ExecContext(ctx, `INSERT INTO kv_child (id, parent_id) VALUES ('c1', 'missing')`)
	require.Error(t, orphan)
	assert.True(t, isForeignKeyViolation(orphan))
	assert.False(t, isUniqueViolation(orphan))

	// Message text alone is not trusted.
	assert.False(t, isUniqueViolation(errors.New("UNIQUE constraint failed: kv_parent.name")))
	assert.False(t, isForeignKeyViolation(errors.New("FOREIGN KEY constraint failed")))
	assert.False(t, isUniqueViolation(nil))
}
