package domain

import (
	"fmt"
	"time"
)

// JobStatus enumerates image job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// ParseJobStatus validates a status string coming from an API or CLI filter.
func ParseJobStatus(s string) (JobStatus, error) {
	switch JobStatus(s) {
	case JobStatusPending, JobStatusInProgress, JobStatusCompleted, JobStatusFailed:
		return JobStatus(s), nil
	}
	return "", fmt.Errorf("%w: unknown job status %q", ErrInvalidInput, s)
}

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ImageJob is one request to produce an image for one entity. Jobs are
// append-only history: a regeneration creates a new row.
type ImageJob struct {
	ID         string     `json:"id"`
	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	PromptID   string     `json:"prompt_id"`
	FullPrompt string     `json:"full_prompt"`
	Status     JobStatus  `json:"status"`
	Attempts   int        `json:"attempts"`
	ImageURL   *string    `json:"image_url,omitempty"`
	Notes      *string    `json:"notes,omitempty"`
	RunAfter   time.Time  `json:"run_after"`
	ClaimedBy  *string    `json:"claimed_by,omitempty"`
	ClaimedAt  *time.Time `json:"claimed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// FailParams describes a CAS transition out of in_progress after a failed attempt.
// The store moves the job to pending with RunAfter = RetryAt while
// ExpectedAttempts < MaxAttempts, otherwise to failed.
type FailParams struct {
	JobID            string
	ExpectedAttempts int
	MaxAttempts      int
	RetryAt          time.Time
	Notes            string
	Now              time.Time
}

// JobFilter narrows operator listings.
type JobFilter struct {
	Status     JobStatus
	EntityType EntityType
	EntityID   string
	Limit      int
}
