package domain

import "time"

// ImagePromptTemplate is a reusable style instruction for one entity category.
type ImagePromptTemplate struct {
	ID        string     `json:"id" yaml:"id"`
	Name      string     `json:"name" yaml:"name" validate:"required,min=3,max=120"`
	Category  EntityType `json:"category" yaml:"category" validate:"required,oneof=trip segment reservation"`
	Prompt    string     `json:"prompt" yaml:"prompt" validate:"required,min=10"`
	Style     string     `json:"style,omitempty" yaml:"style" validate:"max=60"`
	Lightness string     `json:"lightness,omitempty" yaml:"lightness" validate:"omitempty,oneof=light dark balanced"`
	CreatedAt time.Time  `json:"created_at" yaml:"-"`
	UpdatedAt time.Time  `json:"updated_at" yaml:"-"`
}
