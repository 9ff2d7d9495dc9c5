package worker

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiakap/travel-planner-v1/internal/adapter/sqlite"
	"github.com/aiakap/travel-planner-v1/internal/domain"
	"github.com/aiakap/travel-planner-v1/internal/imagequeue"
	"github.com/aiakap/travel-planner-v1/internal/providers/image"
)

type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, req image.GenerateRequest) (*image.Image, error)
}

func (g *fakeGenerator) Name() string { return "fake" }

func (g *fakeGenerator) Generate(ctx context.Context, req image.GenerateRequest) (*image.Image, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.fn != nil {
		return g.fn(ctx, req)
	}
	return &image.Image{Data: []byte("png"), MIMEType: "image/png"}, nil
}

type fakeUploader struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (u *fakeUploader) Name() string { return "fake" }

func (u *fakeUploader) Upload(_ context.Context, key string, _ []byte, _ string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return "", u.err
	}
	u.keys = append(u.keys, key)
	return "https://cdn.test/" + key, nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type harness struct {
	clock    *fakeClock
	queue    *imagequeue.Queue
	entities *sqlite.EntityStore
	gen      *fakeGenerator
	up       *fakeUploader
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.OpenMigrated(ctx, filepath.Join(t.TempDir(), "worker.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	q, err := imagequeue.New(sqlite.NewJobStore(db), imagequeue.Policy{
		MaxAttempts: 2,
		BaseBackoff: time.Minute,
		MaxBackoff:  time.Minute,
		StaleAfter:  time.Hour,
	}, imagequeue.WithClock(clock.Now))
	require.NoError(t, err)
	return &harness{clock: clock, queue: q, entities: sqlite.NewEntityStore(db), gen: &fakeGenerator{}, up: &fakeUploader{}}
}

func (h *harness) worker(t *testing.T, cfg Config) *Worker {
	t.Helper()
	if cfg.ID == "" {
		cfg.ID = "w-test"
	}
	w, err := New(h.queue, h.gen, h.up, cfg, zerolog.Nop())
	require.NoError(t, err)
	return w
}

func (h *harness) tripWithJob(t *testing.T, id string) *domain.ImageJob {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.entities.CreateTrip(ctx, &domain.Trip{ID: id, Title: "Trip " + id, CreatedAt: h.clock.Now()}))
	job, err := h.queue.Enqueue(ctx, imagequeue.EnqueueParams{
		EntityType: domain.EntityTrip, EntityID: id, PromptID: "p1", FullPrompt: "A lighthouse at dawn",
	})
	require.NoError(t, err)
	h.clock.Advance(time.Millisecond)
	return job
}

func TestNewRequiresCollaborators(t *testing.T) {
	h := newHarness(t)
	_, err := New(nil, h.gen, h.up, Config{ID: "w"}, zerolog.Nop())
	assert.Error(t, err)
	_, err = New(h.queue, nil, h.up, Config{ID: "w"}, zerolog.Nop())
	assert.Error(t, err)
	_, err = New(h.queue, h.gen, nil, Config{ID: "w"}, zerolog.Nop())
	assert.Error(t, err)
	_, err = New(h.queue, h.gen, h.up, Config{ID: " "}, zerolog.Nop())
	assert.Error(t, err)
}

func TestRunOnceCompletesAndWritesBack(t *testing.T) {
	h := newHarness(t)
	job := h.tripWithJob(t, "t1")

	stats, err := h.worker(t, Config{}).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Claimed: 1, Completed: 1}, stats)

	require.Len(t, h.up.keys, 1)
	assert.Equal(t, "generated/trip/t1/"+job.ID+".png", h.up.keys[0])

	got, err := h.queue.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)

	trip, err := h.entities.GetTrip(context.Background(), "t1")
	require.NoError(t, err)
	require.NotNil(t, trip.ImageURL)
	assert.Equal(t, "https://cdn.test/"+h.up.keys[0], *trip.ImageURL)
	assert.False(t, trip.ImagePending)
}

func TestDrainRespectsMaxJobs(t *testing.T) {
	h := newHarness(t)
	for _, id := range []string{"a", "b", "c"} {
		h.tripWithJob(t, id)
	}

	stats, err := h.worker(t, Config{Concurrency: 2, MaxJobsPerRun: 2}).Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Claimed)
	assert.Equal(t, 2, stats.Completed)

	counts, err := h.queue.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.JobStatusPending])
}

func TestDrainConcurrentProcessesEachJobOnce(t *testing.T) {
	h := newHarness(t)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		h.tripWithJob(t, id)
	}

	stats, err := h.worker(t, Config{Concurrency: 3}).Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Completed)
	assert.Equal(t, 5, h.gen.calls)
	assert.ElementsMatch(t, uniq(h.up.keys), h.up.keys)
}

func TestGenerationErrorRetriesThenFails(t *testing.T) {
	h := newHarness(t)
	job := h.tripWithJob(t, "t1")
	h.gen.fn = func(context.Context, image.GenerateRequest) (*image.Image, error) {
		return nil, errors.New("upstream 503")
	}
	w := h.worker(t, Config{})

	stats, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Retried)

	// The retry waits out its backoff.
	stats, err = w.Drain(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Claimed)

	h.clock.Advance(time.Minute)
	stats, err = w.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)

	got, err := h.queue.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	require.NotNil(t, got.Notes)
	assert.Contains(t, *got.Notes, domain.ErrMaxAttemptsExceeded.Error())
	assert.Contains(t, *got.Notes, "upstream 503")

	trip, err := h.entities.GetTrip(context.Background(), "t1")
	require.NoError(t, err)
	assert.False(t, trip.ImagePending)
	assert.Nil(t, trip.ImageURL)
}

func TestGenerationTimeoutIsRecorded(t *testing.T) {
	h := newHarness(t)
	job := h.tripWithJob(t, "t1")
	h.gen.fn = func(ctx context.Context, _ image.GenerateRequest) (*image.Image, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	stats, err := h.worker(t, Config{GenerateTimeout: 20 * time.Millisecond}).Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Retried)

	got, err := h.queue.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, got.Status)
	require.NotNil(t, got.Notes)
	assert.Contains(t, *got.Notes, domain.ErrGenerationTimeout.Error())
}

func TestUploadFailureIsRecorded(t *testing.T) {
	h := newHarness(t)
	job := h.tripWithJob(t, "t1")
	h.up.err = errors.New("bucket unavailable")

	_, err := h.worker(t, Config{}).Drain(context.Background())
	require.NoError(t, err)

	got, err := h.queue.Get(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Notes)
	assert.Contains(t, *got.Notes, domain.ErrUploadFailed.Error())
	assert.Contains(t, *got.Notes, "bucket unavailable")
}

func TestEmptyImageIsRejected(t *testing.T) {
	h := newHarness(t)
	job := h.tripWithJob(t, "t1")
	h.gen.fn = func(context.Context, image.GenerateRequest) (*image.Image, error) {
		return &image.Image{}, nil
	}

	_, err := h.worker(t, Config{}).Drain(context.Background())
	require.NoError(t, err)
	assert.Empty(t, h.up.keys)

	got, err := h.queue.Get(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Notes)
	assert.Contains(t, *got.Notes, domain.ErrGenerationRejected.Error())
}

func TestProcessLostClaimDiscardsResult(t *testing.T) {
	h := newHarness(t)
	h.tripWithJob(t, "t1")
	ctx := context.Background()

	claim, err := h.queue.ClaimNext(ctx, "w-test")
	require.NoError(t, err)
	require.NotNil(t, claim)

	// Another process recovers and re-claims the job before this worker reports.
	_, err = h.queue.Fail(ctx, claim.ID, "claim went stale")
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	reclaimed, err := h.queue.ClaimNext(ctx, "w-other")
	require.NoError(t, err)
	require.NotNil(t, reclaimed)

	outcome, err := h.worker(t, Config{}).Process(ctx, claim)
	require.NoError(t, err)
	assert.Equal(t, OutcomeLost, outcome)

	got, err := h.queue.Get(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusInProgress, got.Status)
	require.NotNil(t, got.ClaimedBy)
	assert.Equal(t, "w-other", *got.ClaimedBy)
}

func TestShutdownMidGenerationLeavesClaim(t *testing.T) {
	h := newHarness(t)
	job := h.tripWithJob(t, "t1")

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	h.gen.fn = func(genCtx context.Context, _ image.GenerateRequest) (*image.Image, error) {
		close(started)
		<-genCtx.Done()
		return nil, genCtx.Err()
	}
	go func() {
		<-started
		cancel()
	}()

	stats, err := h.worker(t, Config{GenerateTimeout: time.Minute}).Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Claimed)
	assert.Equal(t, 1, stats.Abandoned)
	assert.Zero(t, stats.Retried+stats.Failed)

	got, err := h.queue.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusInProgress, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Nil(t, got.Notes)

	// Stale recovery hands it back to the queue with its attempt budget intact.
	h.clock.Advance(2 * time.Hour)
	recovered, err := h.queue.RecoverStale(context.Background())
	require.NoError(t, err)
	require.Len(t, recovered, 1)
	assert.Equal(t, domain.JobStatusPending, recovered[0].Status)
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	h.tripWithJob(t, "t1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.worker(t, Config{PollInterval: 10 * time.Millisecond}).Run(ctx) }()

	require.Eventually(t, func() bool {
		counts, err := h.queue.Stats(context.Background())
		return err == nil && counts[domain.JobStatusCompleted] == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestObjectKey(t *testing.T) {
	job := &domain.ImageJob{ID: "j1", EntityType: domain.EntityReservation, EntityID: "r9"}
	assert.Equal(t, "generated/reservation/r9/j1.jpg", ObjectKey(job, "jpg"))
}

func uniq(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
