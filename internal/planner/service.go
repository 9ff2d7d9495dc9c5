// Package planner holds the caller-side actions on trips, segments and
// reservations, including when their illustrations are queued.
package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aiakap/travel-planner-v1/internal/domain"
	"github.com/aiakap/travel-planner-v1/internal/imageprompt"
	"github.com/aiakap/travel-planner-v1/internal/imagequeue"
)

// PromptSelector picks the template used to illustrate an entity.
type PromptSelector interface {
	Select(ctx context.Context, entity domain.Entity, explicitID string) (*domain.ImagePromptTemplate, error)
}

// Enqueuer is the producer side of the image queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, p imagequeue.EnqueueParams) (*domain.ImageJob, error)
}

type Service struct {
	entities domain.EntityRepository
	selector PromptSelector
	queue    Enqueuer
	validate *validator.Validate
	now      func() time.Time
	logger   zerolog.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(entities domain.EntityRepository, selector PromptSelector, queue Enqueuer, opts ...Option) *Service {
	s := &Service{
		entities: entities,
		selector: selector,
		queue:    queue,
		validate: newValidator(),
		now:      time.Now,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "planner").Logger()
	return s
}

// CreateTrip stores a trip. A supplied image URL marks the image custom;
// otherwise an illustration is queued.
func (s *Service) CreateTrip(ctx context.Context, in TripInput) (*domain.Trip, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	trip := &domain.Trip{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		ImageState:  customState(in.ImageURL),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.entities.CreateTrip(ctx, trip); err != nil {
		return nil, err
	}
	if !trip.ImageIsCustom {
		s.queueImage(ctx, domain.EntityTrip, trip.ID, "")
	}
	return s.entities.GetTrip(ctx, trip.ID)
}

// UpdateTrip replaces a trip's fields. A new image URL makes the image
// custom; a changed title or description requeues a generated image.
func (s *Service) UpdateTrip(ctx context.Context, id string, in TripInput) (*domain.Trip, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	trip, err := s.entities.GetTrip(ctx, id)
	if err != nil {
		return nil, err
	}
	title, desc := strings.TrimSpace(in.Title), strings.TrimSpace(in.Description)
	textChanged := title != trip.Title || desc != trip.Description

	trip.Title, trip.Description = title, desc
	trip.StartDate, trip.EndDate = in.StartDate, in.EndDate
	trip.UpdatedAt = s.now().UTC()
	if err := s.entities.UpdateTrip(ctx, trip); err != nil {
		return nil, err
	}
	customNow, err := s.applyImageURL(ctx, trip, in.ImageURL)
	if err != nil {
		return nil, err
	}
	if textChanged && !customNow && !trip.ImageIsCustom {
		s.queueImage(ctx, domain.EntityTrip, trip.ID, "")
	}
	return s.entities.GetTrip(ctx, trip.ID)
}

func (s *Service) GetTrip(ctx context.Context, id string) (*domain.Trip, error) {
	return s.entities.GetTrip(ctx, id)
}

func (s *Service) CreateSegment(ctx context.Context, tripID string, in SegmentInput) (*domain.Segment, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	seg := &domain.Segment{
		ID:          uuid.NewString(),
		TripID:      tripID,
		Name:        strings.TrimSpace(in.Name),
		SegmentType: in.SegmentType,
		StartTitle:  strings.TrimSpace(in.StartTitle),
		EndTitle:    strings.TrimSpace(in.EndTitle),
		Notes:       strings.TrimSpace(in.Notes),
		StartTime:   in.StartTime,
		EndTime:     in.EndTime,
		Order:       in.Order,
		ImageState:  customState(in.ImageURL),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.entities.CreateSegment(ctx, seg); err != nil {
		return nil, err
	}
	if !seg.ImageIsCustom {
		s.queueImage(ctx, domain.EntitySegment, seg.ID, "")
	}
	return s.entities.GetSegment(ctx, seg.ID)
}

func (s *Service) UpdateSegment(ctx context.Context, id string, in SegmentInput) (*domain.Segment, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	seg, err := s.entities.GetSegment(ctx, id)
	if err != nil {
		return nil, err
	}
	name, notes := strings.TrimSpace(in.Name), strings.TrimSpace(in.Notes)
	textChanged := name != seg.Name || notes != seg.Notes || in.SegmentType != seg.SegmentType

	seg.Name, seg.Notes, seg.SegmentType = name, notes, in.SegmentType
	seg.StartTitle, seg.EndTitle = strings.TrimSpace(in.StartTitle), strings.TrimSpace(in.EndTitle)
	seg.StartTime, seg.EndTime = in.StartTime, in.EndTime
	if in.Order > 0 {
		seg.Order = in.Order
	}
	seg.UpdatedAt = s.now().UTC()
	if err := s.entities.UpdateSegment(ctx, seg); err != nil {
		return nil, err
	}
	customNow, err := s.applyImageURL(ctx, seg, in.ImageURL)
	if err != nil {
		return nil, err
	}
	if textChanged && !customNow && !seg.ImageIsCustom {
		s.queueImage(ctx, domain.EntitySegment, seg.ID, "")
	}
	return s.entities.GetSegment(ctx, seg.ID)
}

func (s *Service) GetSegment(ctx context.Context, id string) (*domain.Segment, error) {
	return s.entities.GetSegment(ctx, id)
}

func (s *Service) CreateReservation(ctx context.Context, segmentID string, in ReservationInput) (*domain.Reservation, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	res := &domain.Reservation{
		ID:              uuid.NewString(),
		SegmentID:       segmentID,
		Name:            strings.TrimSpace(in.Name),
		Category:        in.Category,
		ReservationType: strings.TrimSpace(in.ReservationType),
		Location:        strings.TrimSpace(in.Location),
		Notes:           strings.TrimSpace(in.Notes),
		StartTime:       in.StartTime,
		EndTime:         in.EndTime,
		ImageState:      customState(in.ImageURL),
		CreatedAt:       s.now().UTC(),
	}
	if err := s.entities.CreateReservation(ctx, res); err != nil {
		return nil, err
	}
	if !res.ImageIsCustom {
		s.queueImage(ctx, domain.EntityReservation, res.ID, "")
	}
	return s.entities.GetReservation(ctx, res.ID)
}

func (s *Service) UpdateReservation(ctx context.Context, id string, in ReservationInput) (*domain.Reservation, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	res, err := s.entities.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	name, notes := strings.TrimSpace(in.Name), strings.TrimSpace(in.Notes)
	resType, location := strings.TrimSpace(in.ReservationType), strings.TrimSpace(in.Location)
	textChanged := name != res.Name || notes != res.Notes || in.Category != res.Category ||
		resType != res.ReservationType || location != res.Location

	res.Name, res.Notes, res.Category = name, notes, in.Category
	res.ReservationType, res.Location = resType, location
	res.StartTime, res.EndTime = in.StartTime, in.EndTime
	res.UpdatedAt = s.now().UTC()
	if err := s.entities.UpdateReservation(ctx, res); err != nil {
		return nil, err
	}
	customNow, err := s.applyImageURL(ctx, res, in.ImageURL)
	if err != nil {
		return nil, err
	}
	if textChanged && !customNow && !res.ImageIsCustom {
		s.queueImage(ctx, domain.EntityReservation, res.ID, "")
	}
	return s.entities.GetReservation(ctx, res.ID)
}

func (s *Service) GetReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	return s.entities.GetReservation(ctx, id)
}

// RegenerateImage queues a fresh illustration, optionally with an explicit
// prompt. Unlike create and update it reports queueing errors, and refuses
// entities whose image is user supplied.
func (s *Service) RegenerateImage(ctx context.Context, kind domain.EntityType, id, promptID string) (*domain.ImageJob, error) {
	entity, err := s.load(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if entity.Image().ImageIsCustom {
		return nil, fmt.Errorf("%s %s: %w", kind, id, domain.ErrCustomImage)
	}
	return s.enqueue(ctx, entity, strings.TrimSpace(promptID))
}

// ResetImage drops a user supplied image and queues a generated one.
func (s *Service) ResetImage(ctx context.Context, kind domain.EntityType, id string) (*domain.ImageJob, error) {
	entity, err := s.load(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if entity.Image().ImageIsCustom {
		if err := s.clearCustom(ctx, entity); err != nil {
			return nil, err
		}
		if entity, err = s.load(ctx, kind, id); err != nil {
			return nil, err
		}
	}
	return s.enqueue(ctx, entity, "")
}

// queueImage is the fire-and-forget variant used by create and update:
// the entity is saved whatever happens to its illustration.
func (s *Service) queueImage(ctx context.Context, kind domain.EntityType, id, promptID string) {
	entity, err := s.load(ctx, kind, id)
	if err == nil {
		_, err = s.enqueue(ctx, entity, promptID)
	}
	if err == nil {
		return
	}
	ev := s.logger.Error()
	if errors.Is(err, domain.ErrDuplicateInFlight) || errors.Is(err, domain.ErrNoPromptAvailable) {
		ev = s.logger.Warn()
	}
	ev.Err(err).Str("entity_type", string(kind)).Str("entity_id", id).Msg("image not queued")
}

func (s *Service) enqueue(ctx context.Context, entity domain.Entity, promptID string) (*domain.ImageJob, error) {
	// Checked again here because queueImage reloads the entity.
	if entity.Image().ImageIsCustom {
		return nil, domain.ErrCustomImage
	}
	tpl, err := s.selector.Select(ctx, entity, promptID)
	if err != nil {
		return nil, err
	}
	job, err := s.queue.Enqueue(ctx, imagequeue.EnqueueParams{
		EntityType: entity.Kind(),
		EntityID:   entity.EntityID(),
		PromptID:   tpl.ID,
		FullPrompt: imageprompt.Compose(*tpl, entity),
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Service) load(ctx context.Context, kind domain.EntityType, id string) (domain.Entity, error) {
	switch kind {
	case domain.EntityTrip:
		return s.entities.GetTrip(ctx, id)
	case domain.EntitySegment:
		return s.entities.GetSegment(ctx, id)
	case domain.EntityReservation:
		return s.entities.GetReservation(ctx, id)
	}
	return nil, fmt.Errorf("%w: unknown entity type %q", domain.ErrInvalidInput, kind)
}

func (s *Service) clearCustom(ctx context.Context, entity domain.Entity) error {
	return s.entities.ClearCustomImage(ctx, entity.Kind(), entity.EntityID())
}

func customState(imageURL *string) domain.ImageState {
	if url := trimmed(imageURL); url != nil {
		return domain.ImageState{ImageURL: url, ImageIsCustom: true}
	}
	return domain.ImageState{}
}

// applyImageURL stores a user supplied URL that differs from the stored one
// and reports whether the image became custom. Only the image columns are
// written so a concurrent worker write-back is never replaced.
func (s *Service) applyImageURL(ctx context.Context, entity domain.Entity, imageURL *string) (bool, error) {
	url := trimmed(imageURL)
	current := entity.Image().ImageURL
	if url == nil || (current != nil && *current == *url) {
		return false, nil
	}
	if err := s.entities.SetCustomImage(ctx, entity.Kind(), entity.EntityID(), *url); err != nil {
		return false, err
	}
	return true, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
