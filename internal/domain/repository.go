package domain

import (
	"context"
	"time"
)

// ImageJobRepository persists image jobs. Every state change is a
// compare-and-set on the current status so concurrent workers cannot both win.
type ImageJobRepository interface {
	// Insert stores a pending job and, in the same transaction, marks the
	// owning entity image_pending unless its image is custom. It fails with
	// ErrDuplicateInFlight when the entity already has an in_progress job.
	Insert(ctx context.Context, job *ImageJob) error
	// ClaimNext moves the oldest claimable pending job to in_progress. It
	// returns nil, nil when nothing is claimable.
	ClaimNext(ctx context.Context, workerID string, now time.Time) (*ImageJob, error)
	// Complete marks an in_progress job completed and writes the URL back to
	// the owning entity unless its image is custom. attempt fences the claim:
	// a worker whose claim was requeued and re-claimed cannot complete it. The
	// bool reports whether the entity was updated.
	Complete(ctx context.Context, jobID string, attempt int, imageURL string, now time.Time) (*ImageJob, bool, error)
	Fail(ctx context.Context, p FailParams) (*ImageJob, error)
	// RequeueStale recovers in_progress jobs claimed before the cutoff.
	RequeueStale(ctx context.Context, claimedBefore time.Time, maxAttempts int, now time.Time) ([]ImageJob, error)
	GetByID(ctx context.Context, jobID string) (*ImageJob, error)
	List(ctx context.Context, filter JobFilter) ([]ImageJob, error)
	CountByStatus(ctx context.Context) (map[JobStatus]int, error)
}

// PromptTemplateRepository is the read-mostly template catalog.
type PromptTemplateRepository interface {
	ListByCategory(ctx context.Context, category EntityType) ([]ImagePromptTemplate, error)
	GetByID(ctx context.Context, id string) (*ImagePromptTemplate, error)
	Upsert(ctx context.Context, tpl *ImagePromptTemplate) error
}

// EntityRepository persists trips and their children. The Update methods
// write the descriptive fields only; image columns change through
// SetCustomImage, ClearCustomImage and the job transitions.
type EntityRepository interface {
	CreateTrip(ctx context.Context, trip *Trip) error
	GetTrip(ctx context.Context, id string) (*Trip, error)
	UpdateTrip(ctx context.Context, trip *Trip) error

	CreateSegment(ctx context.Context, seg *Segment) error
	GetSegment(ctx context.Context, id string) (*Segment, error)
	UpdateSegment(ctx context.Context, seg *Segment) error

	CreateReservation(ctx context.Context, res *Reservation) error
	GetReservation(ctx context.Context, id string) (*Reservation, error)
	UpdateReservation(ctx context.Context, res *Reservation) error

	// SetCustomImage stores a user supplied image: image_is_custom is set,
	// the prompt id and pending flag are cleared.
	SetCustomImage(ctx context.Context, kind EntityType, id, imageURL string) error
	// ClearCustomImage drops the custom flag and keeps the current URL until a
	// generated image replaces it.
	ClearCustomImage(ctx context.Context, kind EntityType, id string) error
}
