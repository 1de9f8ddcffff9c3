package domain

import "errors"

var (
	// ErrNotFound is returned by repositories when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation wraps malformed input; surfaced to the caller, never retried.
	ErrValidation = errors.New("validation failed")
	// ErrVisitCompleted is returned when an edit targets a completed visit.
	ErrVisitCompleted = errors.New("visit already completed")
)
