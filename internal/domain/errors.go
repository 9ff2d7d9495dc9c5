package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")

	// Selection.
	ErrNoPromptAvailable = errors.New("no prompt available for category")

	// Queue state transitions.
	ErrDuplicateInFlight   = errors.New("image job already in flight for entity")
	ErrJobNotInFlight      = errors.New("image job is not in progress")
	ErrMaxAttemptsExceeded = errors.New("image job exceeded max attempts")
	ErrCustomImage         = errors.New("entity image is user supplied")

	// Worker outcomes, recorded in job notes.
	ErrGenerationTimeout  = errors.New("image generation timed out")
	ErrGenerationRejected = errors.New("image generation rejected")
	ErrUploadFailed       = errors.New("image upload failed")
)
