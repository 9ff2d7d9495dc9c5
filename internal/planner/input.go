package planner

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/aiakap/travel-planner-v1/internal/domain"
)

type TripInput struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"max=4000"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date" validate:"omitempty,gtefield=StartDate"`
	ImageURL    *string   `json:"image_url" validate:"omitempty,imageurl"`
}

type SegmentInput struct {
	Name        string     `json:"name" validate:"required,max=200"`
	SegmentType string     `json:"segment_type" validate:"omitempty,oneof=Flight Drive Train Ferry Walk Other"`
	StartTitle  string     `json:"start_title" validate:"max=300"`
	EndTitle    string     `json:"end_title" validate:"max=300"`
	Notes       string     `json:"notes" validate:"max=4000"`
	StartTime   *time.Time `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
	Order       int        `json:"order" validate:"gte=0"`
	ImageURL    *string    `json:"image_url" validate:"omitempty,imageurl"`
}

type ReservationInput struct {
	Name            string     `json:"name" validate:"required,max=200"`
	Category        string     `json:"category" validate:"omitempty,oneof=Travel Stay Activity Dining"`
	ReservationType string     `json:"reservation_type" validate:"max=100"`
	Location        string     `json:"location" validate:"max=300"`
	Notes           string     `json:"notes" validate:"max=4000"`
	StartTime       *time.Time `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
	ImageURL        *string    `json:"image_url" validate:"omitempty,imageurl"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// An empty string clears nothing and is treated as absent.
	_ = v.RegisterValidation("imageurl", func(fl validator.FieldLevel) bool {
		s := strings.TrimSpace(fl.Field().String())
		return s == "" || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "/")
	})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		in := sl.Current().Interface().(SegmentInput)
		checkTimeRange(sl, in.StartTime, in.EndTime)
	}, SegmentInput{})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		in := sl.Current().Interface().(ReservationInput)
		checkTimeRange(sl, in.StartTime, in.EndTime)
	}, ReservationInput{})
	return v
}

func checkTimeRange(sl validator.StructLevel, start, end *time.Time) {
	if start != nil && end != nil && end.Before(*start) {
		sl.ReportError(end, "EndTime", "EndTime", "gtefield", "StartTime")
	}
}

// check validates in and reports the first failing field as ErrInvalidInput.
func (s *Service) check(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%w: %s failed %q", domain.ErrInvalidInput, strings.ToLower(fe.Field()), fe.Tag())
	}
	return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
}
