package model

import "errors"

var (
	// ErrNotFound is returned when a user or event id does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyRegistered is returned when the user already holds a confirmed
	// registration for the event.
	ErrAlreadyRegistered = errors.New("user already registered for this event")

	// ErrEventFull is returned when an event has no remaining capacity.
	ErrEventFull = errors.New("event is fully booked")

	// ErrTransientConflict is returned when lock wait or retry budget ran out.
	// Callers may retry the request.
	ErrTransientConflict = errors.New("registration contention, retry later")

	// ErrStorageFailure wraps any persistence error that is not a domain outcome.
	ErrStorageFailure = errors.New("storage failure")

	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")
)
