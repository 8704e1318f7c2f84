package job

import "errors"

var (
	// ErrNotFound is returned when the requested backend is not registered.
	ErrNotFound = errors.New("backend not found")

	// ErrInvalidArgument is returned when a job operation gets an unusable value.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidOperation is returned when caching is requested from a backend
	// that does not support it.
	ErrInvalidOperation = errors.New("invalid operation")
)
