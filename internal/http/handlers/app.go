package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aiakap/travel-planner-v1/internal/domain"
	"github.com/aiakap/travel-planner-v1/internal/middleware"
	"github.com/aiakap/travel-planner-v1/internal/planner"
)

const maxBodyBytes = 1 << 20

// Planner is the caller-side service behind the entity routes.
type Planner interface {
	CreateTrip(ctx context.Context, in planner.TripInput) (*domain.Trip, error)
	UpdateTrip(ctx context.Context, id string, in planner.TripInput) (*domain.Trip, error)
	GetTrip(ctx context.Context, id string) (*domain.Trip, error)
	CreateSegment(ctx context.Context, tripID string, in planner.SegmentInput) (*domain.Segment, error)
	UpdateSegment(ctx context.Context, id string, in planner.SegmentInput) (*domain.Segment, error)
	GetSegment(ctx context.Context, id string) (*domain.Segment, error)
	CreateReservation(ctx context.Context, segmentID string, in planner.ReservationInput) (*domain.Reservation, error)
	UpdateReservation(ctx context.Context, id string, in planner.ReservationInput) (*domain.Reservation, error)
	GetReservation(ctx context.Context, id string) (*domain.Reservation, error)
	RegenerateImage(ctx context.Context, kind domain.EntityType, id, promptID string) (*domain.ImageJob, error)
	ResetImage(ctx context.Context, kind domain.EntityType, id string) (*domain.ImageJob, error)
}

// JobReader is the operator view of the image queue.
type JobReader interface {
	Get(ctx context.Context, jobID string) (*domain.ImageJob, error)
	List(ctx context.Context, filter domain.JobFilter) ([]domain.ImageJob, error)
	Stats(ctx context.Context) (map[domain.JobStatus]int, error)
}

type App struct {
	Planner Planner
	Jobs    JobReader
	Prompts domain.PromptTemplateRepository
	// Ping reports database reachability for the health check; nil skips it.
	Ping   func(ctx context.Context) error
	Logger zerolog.Logger
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, r *http.Request, code int, errCode, msg string) {
	a.json(w, code, errorBody{Error: errorDetail{
		Code:      errCode,
		Message:   msg,
		RequestID: middleware.RequestIDFromContext(r.Context()),
	}})
}

// fail maps domain errors to HTTP statuses. Anything unrecognised is logged
// and reported as a bare 500.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		a.error(w, r, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, r, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrCustomImage):
		a.error(w, r, http.StatusConflict, "custom_image", err.Error())
	case errors.Is(err, domain.ErrDuplicateInFlight):
		a.error(w, r, http.StatusConflict, "in_flight", err.Error())
	case errors.Is(err, domain.ErrNoPromptAvailable):
		a.error(w, r, http.StatusUnprocessableEntity, "no_prompt", err.Error())
	default:
		a.Logger.Error().Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		a.error(w, r, http.StatusInternalServerError, "internal", "internal error")
	}
}

// decode reads a JSON body into v, rejecting unknown fields.
func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := decodeStrict(io.LimitReader(r.Body, maxBodyBytes), v); err != nil {
		a.error(w, r, http.StatusBadRequest, "bad_request", "invalid payload: "+err.Error())
		return false
	}
	return true
}

func decodeStrict(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
