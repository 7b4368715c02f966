package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound         = errors.New("entity not found")
	ErrAlreadyExists    = errors.New("entity already exists")
	ErrUnsupportedURL   = errors.New("unsupported platform or malformed url")
	ErrRateLimited      = errors.New("hourly video limit reached")
	ErrJobActive        = errors.New("owner already has a job in flight")
	ErrQueueFull        = errors.New("processing queue is saturated")
	ErrSessionExpired   = errors.New("session expired or does not match")
	ErrSelectionOrder   = errors.New("selection received out of order")
	ErrInvalidSelection = errors.New("selection value not in the allowed set")
	ErrFileCollision    = errors.New("knowledge entry file already exists")
)

// StageFailure wraps the error that terminated a pipeline stage. Every
// collaborator error is converted into one of these at the stage boundary, so
// third-party error types never drive supervisor control flow.
type StageFailure struct {
	Stage string
	Err   error
}

func (f *StageFailure) Error() string { return fmt.Sprintf("stage %s: %v", f.Stage, f.Err) }
func (f *StageFailure) Unwrap() error { return f.Err }

// InputRejected reports whether err is one of the immediate submission
// rejections that are never retried.
func InputRejected(err error) bool {
	return errors.Is(err, ErrUnsupportedURL) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrJobActive) ||
		errors.Is(err, ErrQueueFull)
}
