package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aiakap/travel-planner-v1/internal/domain"
)

// EntityStore implements domain.EntityRepository.
type EntityStore struct {
	db *sql.DB
}

func NewEntityStore(db *sql.DB) *EntityStore {
	return &EntityStore{db: db}
}

func (s *EntityStore) CreateTrip(ctx context.Context, t *domain.Trip) error {
	t.CreatedAt = nowOr(t.CreatedAt)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO trips (id, title, description, start_date, end_date,
    image_url, image_is_custom, image_prompt_id, image_pending, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, nullMillis(&t.StartDate), nullMillis(&t.EndDate),
		nullString(t.ImageURL), t.ImageIsCustom, nullString(t.ImagePromptID), t.ImagePending,
		millis(t.CreatedAt), millis(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert trip: %w", err)
	}
	t.UpdatedAt = t.CreatedAt
	return nil
}

func (s *EntityStore) GetTrip(ctx context.Context, id string) (*domain.Trip, error) {
	var (
		t                  domain.Trip
		start, end         sql.NullInt64
		imageURL, promptID sql.NullString
		created, updated   int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT id, title, description, start_date, end_date,
    image_url, image_is_custom, image_prompt_id, image_pending, created_at, updated_at
FROM trips WHERE id = ?`, id).Scan(
		&t.ID, &t.Title, &t.Description, &start, &end,
		&imageURL, &t.ImageIsCustom, &promptID, &t.ImagePending, &created, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: select trip: %w", err)
	}
	if v := timeFromNull(start); v != nil {
		t.StartDate = *v
	}
	if v := timeFromNull(end); v != nil {
		t.EndDate = *v
	}
	t.ImageURL = stringFromNull(imageURL)
	t.ImagePromptID = stringFromNull(promptID)
	t.CreatedAt = fromMillis(created)
	t.UpdatedAt = fromMillis(updated)
	return &t, nil
}

func (s *EntityStore) UpdateTrip(ctx context.Context, t *domain.Trip) error {
	t.UpdatedAt = nowOr(t.UpdatedAt)
	res, err := s.db.ExecContext(ctx, `
UPDATE trips
SET title = ?, description = ?, start_date = ?, end_date = ?, updated_at = ?
WHERE id = ?`,
		t.Title, t.Description, nullMillis(&t.StartDate), nullMillis(&t.EndDate), millis(t.UpdatedAt),
		t.ID,
	)
	return affectedOne(res, err, "update trip")
}

func (s *EntityStore) CreateSegment(ctx context.Context, seg *domain.Segment) error {
	seg.CreatedAt = nowOr(seg.CreatedAt)
	err := s.db.QueryRowContext(ctx, `
INSERT INTO segments (id, trip_id, name, segment_type, start_title, end_title, notes,
    start_time, end_time, sort_order,
    image_url, image_is_custom, image_prompt_id, image_pending, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?,
    CASE WHEN ? > 0 THEN ? ELSE (SELECT COUNT(*) + 1 FROM segments WHERE trip_id = ?) END,
    ?, ?, ?, ?, ?, ?)
RETURNING sort_order`,
		seg.ID, seg.TripID, seg.Name, seg.SegmentType, seg.StartTitle, seg.EndTitle, seg.Notes,
		nullMillis(seg.StartTime), nullMillis(seg.EndTime),
		seg.Order, seg.Order, seg.TripID,
		nullString(seg.ImageURL), seg.ImageIsCustom, nullString(seg.ImagePromptID), seg.ImagePending,
		millis(seg.CreatedAt), millis(seg.CreatedAt),
	).Scan(&seg.Order)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("trip %s: %w", seg.TripID, domain.ErrNotFound)
		}
		return fmt.Errorf("sqlite: insert segment: %w", err)
	}
	seg.UpdatedAt = seg.CreatedAt
	return nil
}

func (s *EntityStore) GetSegment(ctx context.Context, id string) (*domain.Segment, error) {
	var (
		seg                domain.Segment
		start, end         sql.NullInt64
		imageURL, promptID sql.NullString
		created, updated   int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT s.id, s.trip_id, s.name, s.segment_type, s.start_title, s.end_title, s.notes,
    s.start_time, s.end_time, s.sort_order,
    s.image_url, s.image_is_custom, s.image_prompt_id, s.image_pending, s.created_at, s.updated_at,
    t.title
FROM segments s
JOIN trips t ON t.id = s.trip_id
WHERE s.id = ?`, id).Scan(
		&seg.ID, &seg.TripID, &seg.Name, &seg.SegmentType, &seg.StartTitle, &seg.EndTitle, &seg.Notes,
		&start, &end, &seg.Order,
		&imageURL, &seg.ImageIsCustom, &promptID, &seg.ImagePending, &created, &updated,
		&seg.TripTitle,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: select segment: %w", err)
	}
	seg.StartTime = timeFromNull(start)
	seg.EndTime = timeFromNull(end)
	seg.ImageURL = stringFromNull(imageURL)
	seg.ImagePromptID = stringFromNull(promptID)
	seg.CreatedAt = fromMillis(created)
	seg.UpdatedAt = fromMillis(updated)
	return &seg, nil
}

func (s *EntityStore) UpdateSegment(ctx context.Context, seg *domain.Segment) error {
	seg.UpdatedAt = nowOr(seg.UpdatedAt)
	res, err := s.db.ExecContext(ctx, `
UPDATE segments
SET name = ?, segment_type = ?, start_title = ?, end_title = ?, notes = ?,
    start_time = ?, end_time = ?, sort_order = ?, updated_at = ?
WHERE id = ?`,
		seg.Name, seg.SegmentType, seg.StartTitle, seg.EndTitle, seg.Notes,
		nullMillis(seg.StartTime), nullMillis(seg.EndTime), seg.Order, millis(seg.UpdatedAt),
		seg.ID,
	)
	return affectedOne(res, err, "update segment")
}

func (s *EntityStore) CreateReservation(ctx context.Context, r *domain.Reservation) error {
	r.CreatedAt = nowOr(r.CreatedAt)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO reservations (id, segment_id, name, category, reservation_type, location, notes,
    start_time, end_time,
    image_url, image_is_custom, image_prompt_id, image_pending, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SegmentID, r.Name, r.Category, r.ReservationType, r.Location, r.Notes,
		nullMillis(r.StartTime), nullMillis(r.EndTime),
		nullString(r.ImageURL), r.ImageIsCustom, nullString(r.ImagePromptID), r.ImagePending,
		millis(r.CreatedAt), millis(r.CreatedAt),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("segment %s: %w", r.SegmentID, domain.ErrNotFound)
		}
		return fmt.Errorf("sqlite: insert reservation: %w", err)
	}
	r.UpdatedAt = r.CreatedAt
	return nil
}

func (s *EntityStore) GetReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	var (
		r                  domain.Reservation
		start, end         sql.NullInt64
		imageURL, promptID sql.NullString
		created, updated   int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT r.id, r.segment_id, r.name, r.category, r.reservation_type, r.location, r.notes,
    r.start_time, r.end_time,
    r.image_url, r.image_is_custom, r.image_prompt_id, r.image_pending, r.created_at, r.updated_at,
    s.name, t.title
FROM reservations r
JOIN segments s ON s.id = r.segment_id
JOIN trips t ON t.id = s.trip_id
WHERE r.id = ?`, id).Scan(
		&r.ID, &r.SegmentID, &r.Name, &r.Category, &r.ReservationType, &r.Location, &r.Notes,
		&start, &end,
		&imageURL, &r.ImageIsCustom, &promptID, &r.ImagePending, &created, &updated,
		&r.SegmentName, &r.TripTitle,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: select reservation: %w", err)
	}
	r.StartTime = timeFromNull(start)
	r.EndTime = timeFromNull(end)
	r.ImageURL = stringFromNull(imageURL)
	r.ImagePromptID = stringFromNull(promptID)
	r.CreatedAt = fromMillis(created)
	r.UpdatedAt = fromMillis(updated)
	return &r, nil
}

func (s *EntityStore) UpdateReservation(ctx context.Context, r *domain.Reservation) error {
	r.UpdatedAt = nowOr(r.UpdatedAt)
	res, err := s.db.ExecContext(ctx, `
UPDATE reservations
SET name = ?, category = ?, reservation_type = ?, location = ?, notes = ?,
    start_time = ?, end_time = ?, updated_at = ?
WHERE id = ?`,
		r.Name, r.Category, r.ReservationType, r.Location, r.Notes,
		nullMillis(r.StartTime), nullMillis(r.EndTime), millis(r.UpdatedAt),
		r.ID,
	)
	return affectedOne(res, err, "update reservation")
}

func (s *EntityStore) SetCustomImage(ctx context.Context, kind domain.EntityType, id, imageURL string) error {
	table, err := entityTable(kind)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
UPDATE %s
SET image_url = ?, image_is_custom = 1, image_prompt_id = NULL, image_pending = 0, updated_at = ?
WHERE id = ?`, table), imageURL, millis(time.Now()), id)
	return affectedOne(res, err, "set custom image")
}

func (s *EntityStore) ClearCustomImage(ctx context.Context, kind domain.EntityType, id string) error {
	table, err := entityTable(kind)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET image_is_custom = 0, updated_at = ? WHERE id = ?`, table),
		millis(time.Now()), id)
	return affectedOne(res, err, "clear custom image")
}

func affectedOne(res sql.Result, err error, op string) error {
	if err != nil {
		return fmt.Errorf("sqlite: %s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var _ domain.EntityRepository = (*EntityStore)(nil)
