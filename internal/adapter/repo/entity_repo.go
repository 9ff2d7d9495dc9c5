package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/aiakap/travel-planner-v1/internal/domain"
	"github.com/aiakap/travel-planner-v1/internal/infra"
	"github.com/aiakap/travel-planner-v1/internal/sqlinline"
)

// EntityRepositoryPG implements domain.EntityRepository for trips, segments
// and reservations.
type EntityRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewEntityRepository(sql infra.SQLExecutor) *EntityRepositoryPG {
	return &EntityRepositoryPG{sql: sql}
}

func (r *EntityRepositoryPG) CreateTrip(ctx context.Context, t *domain.Trip) error {
	_, err := r.sql.Exec(ctx, sqlinline.QInsertTrip,
		t.ID, t.Title, t.Description, nullTime(t.StartDate), nullTime(t.EndDate),
		t.ImageURL, t.ImageIsCustom, t.ImagePromptID, t.ImagePending, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert trip: %w", err)
	}
	t.UpdatedAt = t.CreatedAt
	return nil
}

func (r *EntityRepositoryPG) GetTrip(ctx context.Context, id string) (*domain.Trip, error) {
	var (
		t          domain.Trip
		start, end *time.Time
	)
	err := r.sql.QueryRow(ctx, sqlinline.QSelectTrip, id).Scan(
		&t.ID, &t.Title, &t.Description, &start, &end,
		&t.ImageURL, &t.ImageIsCustom, &t.ImagePromptID, &t.ImagePending,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if start != nil {
		t.StartDate = *start
	}
	if end != nil {
		t.EndDate = *end
	}
	return &t, nil
}

func (r *EntityRepositoryPG) UpdateTrip(ctx context.Context, t *domain.Trip) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QUpdateTrip,
		t.ID, t.Title, t.Description, nullTime(t.StartDate), nullTime(t.EndDate), t.UpdatedAt,
	)
	return affectedOne(tag, err, "update trip")
}

func (r *EntityRepositoryPG) CreateSegment(ctx context.Context, s *domain.Segment) error {
	var order *int
	if s.Order > 0 {
		order = &s.Order
	}
	err := r.sql.QueryRow(ctx, sqlinline.QInsertSegment,
		s.ID, s.TripID, s.Name, s.SegmentType, s.StartTitle, s.EndTitle, s.Notes, s.StartTime, s.EndTime, order,
		s.ImageURL, s.ImageIsCustom, s.ImagePromptID, s.ImagePending, s.CreatedAt,
	).Scan(&s.Order)
	if err != nil {
		if infra.IsForeignKeyViolation(err) {
			return fmt.Errorf("trip %s: %w", s.TripID, domain.ErrNotFound)
		}
		return fmt.Errorf("insert segment: %w", err)
	}
	s.UpdatedAt = s.CreatedAt
	return nil
}

func (r *EntityRepositoryPG) GetSegment(ctx context.Context, id string) (*domain.Segment, error) {
	var s domain.Segment
	err := r.sql.QueryRow(ctx, sqlinline.QSelectSegment, id).Scan(
		&s.ID, &s.TripID, &s.Name, &s.SegmentType, &s.StartTitle, &s.EndTitle, &s.Notes,
		&s.StartTime, &s.EndTime, &s.Order,
		&s.ImageURL, &s.ImageIsCustom, &s.ImagePromptID, &s.ImagePending,
		&s.CreatedAt, &s.UpdatedAt,
		&s.TripTitle,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *EntityRepositoryPG) UpdateSegment(ctx context.Context, s *domain.Segment) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QUpdateSegment,
		s.ID, s.Name, s.SegmentType, s.StartTitle, s.EndTitle, s.Notes, s.StartTime, s.EndTime, s.Order, s.UpdatedAt,
	)
	return affectedOne(tag, err, "update segment")
}

func (r *EntityRepositoryPG) CreateReservation(ctx context.Context, res *domain.Reservation) error {
	_, err := r.sql.Exec(ctx, sqlinline.QInsertReservation,
		res.ID, res.SegmentID, res.Name, res.Category, res.ReservationType, res.Location, res.Notes,
		res.StartTime, res.EndTime,
		res.ImageURL, res.ImageIsCustom, res.ImagePromptID, res.ImagePending, res.CreatedAt,
	)
	if err != nil {
		if infra.IsForeignKeyViolation(err) {
			return fmt.Errorf("segment %s: %w", res.SegmentID, domain.ErrNotFound)
		}
		return fmt.Errorf("insert reservation: %w", err)
	}
	res.UpdatedAt = res.CreatedAt
	return nil
}

func (r *EntityRepositoryPG) GetReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	var res domain.Reservation
	err := r.sql.QueryRow(ctx, sqlinline.QSelectReservation, id).Scan(
		&res.ID, &res.SegmentID, &res.Name, &res.Category, &res.ReservationType, &res.Location, &res.Notes,
		&res.StartTime, &res.EndTime,
		&res.ImageURL, &res.ImageIsCustom, &res.ImagePromptID, &res.ImagePending,
		&res.CreatedAt, &res.UpdatedAt,
		&res.SegmentName, &res.TripTitle,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &res, nil
}

func (r *EntityRepositoryPG) UpdateReservation(ctx context.Context, res *domain.Reservation) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QUpdateReservation,
		res.ID, res.Name, res.Category, res.ReservationType, res.Location, res.Notes,
		res.StartTime, res.EndTime, res.UpdatedAt,
	)
	return affectedOne(tag, err, "update reservation")
}

func (r *EntityRepositoryPG) SetCustomImage(ctx context.Context, kind domain.EntityType, id, imageURL string) error {
	query, err := pickByKind(kind, sqlinline.QSetTripCustomImage, sqlinline.QSetSegmentCustomImage, sqlinline.QSetReservationCustomImage)
	if err != nil {
		return err
	}
	tag, err := r.sql.Exec(ctx, query, id, imageURL, time.Now().UTC())
	return affectedOne(tag, err, "set custom image")
}

func (r *EntityRepositoryPG) ClearCustomImage(ctx context.Context, kind domain.EntityType, id string) error {
	query, err := pickByKind(kind, sqlinline.QClearTripCustomImage, sqlinline.QClearSegmentCustomImage, sqlinline.QClearReservationCustomImage)
	if err != nil {
		return err
	}
	tag, err := r.sql.Exec(ctx, query, id, time.Now().UTC())
	return affectedOne(tag, err, "clear custom image")
}

func pickByKind(kind domain.EntityType, trip, segment, reservation string) (string, error) {
	switch kind {
	case domain.EntityTrip:
		return trip, nil
	case domain.EntitySegment:
		return segment, nil
	case domain.EntityReservation:
		return reservation, nil
	}
	return "", fmt.Errorf("%w: entity type %q", domain.ErrInvalidInput, kind)
}

func affectedOne(tag pgconn.CommandTag, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

var _ domain.EntityRepository = (*EntityRepositoryPG)(nil)
