package model

import "errors"

var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a resource already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned when a resource is not valid.
	ErrNotValid = errors.New("not valid")
	// ErrStale is returned when a pipeline signal refers to a stage that is no
	// longer the order's current stage. Callers treat it as a harmless no-op.
	ErrStale = errors.New("stale signal")
)
