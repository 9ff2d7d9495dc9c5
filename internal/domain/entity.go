package domain

import (
	"fmt"
	"strings"
	"time"
)

// EntityType is both the kind of an illustrated entity and the category of
// the prompt templates that may illustrate it.
type EntityType string

const (
	EntityTrip        EntityType = "trip"
	EntitySegment     EntityType = "segment"
	EntityReservation EntityType = "reservation"
)

// EntityTypes lists every illustrated kind in display order.
var EntityTypes = []EntityType{EntityTrip, EntitySegment, EntityReservation}

func ParseEntityType(s string) (EntityType, error) {
	switch EntityType(strings.ToLower(strings.TrimSpace(s))) {
	case EntityTrip:
		return EntityTrip, nil
	case EntitySegment:
		return EntitySegment, nil
	case EntityReservation:
		return EntityReservation, nil
	}
	return "", fmt.Errorf("%w: unknown entity type %q", ErrInvalidInput, s)
}

// Description is the text surface an entity exposes to prompt selection and
// composition. Empty fields are simply absent.
type Description struct {
	Title     string
	Summary   string
	Subtype   string
	Locations []string
	Parent    string
	StartsAt  *time.Time
	EndsAt    *time.Time
}

// Describable is implemented by everything that can be illustrated.
type Describable interface {
	Describe() Description
}

// ImageState is the illustration bookkeeping shared by every entity.
type ImageState struct {
	ImageURL      *string `json:"image_url,omitempty"`
	ImageIsCustom bool    `json:"image_is_custom"`
	ImagePromptID *string `json:"image_prompt_id,omitempty"`
	ImagePending  bool    `json:"image_pending"`
}

// Entity is the closed set {*Trip, *Segment, *Reservation}.
type Entity interface {
	Describable
	Kind() EntityType
	EntityID() string
	Image() ImageState
	isEntity()
}

type Trip struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	ImageState
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *Trip) Kind() EntityType { return EntityTrip }
func (t *Trip) EntityID() string { return t.ID }
func (t *Trip) Image() ImageState { return t.ImageState }
func (t *Trip) isEntity() {}

func (t *Trip) Describe() Description {
	return Description{
		Title:    t.Title,
		Summary:  t.Description,
		StartsAt: timePtr(t.StartDate),
		EndsAt:   timePtr(t.EndDate),
	}
}

// Segment is one leg of a trip's itinerary.
type Segment struct {
	ID          string     `json:"id"`
	TripID      string     `json:"trip_id"`
	Name        string     `json:"name"`
	SegmentType string     `json:"segment_type"`
	StartTitle  string     `json:"start_title"`
	EndTitle    string     `json:"end_title"`
	Notes       string     `json:"notes"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Order       int        `json:"order"`
	ImageState
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Read model only.
	TripTitle string `json:"trip_title,omitempty"`
}

func (s *Segment) Kind() EntityType { return EntitySegment }
func (s *Segment) EntityID() string { return s.ID }
func (s *Segment) Image() ImageState { return s.ImageState }
func (s *Segment) isEntity() {}

func (s *Segment) Describe() Description {
	return Description{
		Title:     s.Name,
		Summary:   s.Notes,
		Subtype:   s.SegmentType,
		Locations: nonEmpty(s.StartTitle, s.EndTitle),
		Parent:    s.TripTitle,
		StartsAt:  s.StartTime,
		EndsAt:    s.EndTime,
	}
}

// Reservation is a booking attached to a segment.
type Reservation struct {
	ID              string     `json:"id"`
	SegmentID       string     `json:"segment_id"`
	Name            string     `json:"name"`
	Category        string     `json:"category"`
	ReservationType string     `json:"reservation_type"`
	Location        string     `json:"location"`
	Notes           string     `json:"notes"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	ImageState
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Read model only.
	SegmentName string `json:"segment_name,omitempty"`
	TripTitle   string `json:"trip_title,omitempty"`
}

func (r *Reservation) Kind() EntityType { return EntityReservation }
func (r *Reservation) EntityID() string { return r.ID }
func (r *Reservation) Image() ImageState { return r.ImageState }
func (r *Reservation) isEntity() {}

func (r *Reservation) Describe() Description {
	subtype := strings.TrimSpace(strings.Join(nonEmpty(r.Category, r.ReservationType), " "))
	return Description{
		Title:     r.Name,
		Summary:   r.Notes,
		Subtype:   subtype,
		Locations: nonEmpty(r.Location),
		Parent:    strings.Join(nonEmpty(r.SegmentName, r.TripTitle), ", "),
		StartsAt:  r.StartTime,
		EndsAt:    r.EndTime,
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
