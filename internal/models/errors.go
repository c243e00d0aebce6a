package models

import "errors"

var (
	// ErrValidation marks bad client input such as an unsupported file type.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned for unknown video ids.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState is returned when a state precondition does not hold,
	// e.g. requesting transcription while one is already running.
	ErrInvalidState = errors.New("invalid state")
)
