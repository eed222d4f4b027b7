package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a job cannot be found
	ErrJobNotFound = errors.New("job not found")

	// ErrJobFinished is returned when a state change targets a terminal job
	ErrJobFinished = errors.New("job already finished")

	// ErrDestinationNotFound is returned when a tenant has no destination credentials
	ErrDestinationNotFound = errors.New("destination not configured")

	// ErrResultNotFound is returned when the ledger has no row for an item
	ErrResultNotFound = errors.New("result not found")

	// ErrCacheMiss is returned when no cache entry exists for a URL
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidSource is returned for an unknown source platform
	ErrInvalidSource = errors.New("invalid source")

	// ErrInvalidRequest is returned when an enqueue request is malformed
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNoItems is returned when an enqueue request resolves to zero items
	ErrNoItems = errors.New("no items to enqueue")

	// ErrInvalidPayload is returned when a queue message cannot be decoded
	ErrInvalidPayload = errors.New("invalid message payload")

	// ErrLockNotAcquired is returned when another runner holds the source lock
	ErrLockNotAcquired = errors.New("lock held by another runner")
)

// Reason is the classified cause of an item failure
type Reason string

const (
	ReasonMissingFields      Reason = "missing_fields"
	ReasonMissingConfig      Reason = "missing_config"
	ReasonFetchFailed        Reason = "fetch_failed"
	ReasonException          Reason = "exception"
	ReasonInvalidSKU         Reason = "invalid_sku"
	ReasonInvalidSlug        Reason = "invalid_slug"
	ReasonMaxRetriesExceeded Reason = "max_retries_exceeded"
	ReasonCanceled           Reason = "canceled"
	ReasonStaleStopped       Reason = "stale_stopped"
)

// Class decides what the runner does with a failed message
type Class int

const (
	// ClassTransient failures re-arm the visibility timeout
	ClassTransient Class = iota
	// ClassDrop failures delete the message without a result
	ClassDrop
	// ClassStructural failures dead-letter immediately
	ClassStructural
	// ClassUnrecoverable failures dead-letter and purge the rest of the request
	ClassUnrecoverable
	// ClassSilent failures delete the message and never count as errors
	ClassSilent
)

// Class returns the handling class of the reason
func (r Reason) Class() Class {
	switch r {
	case ReasonMissingFields:
		return ClassDrop
	case ReasonMissingConfig:
		return ClassUnrecoverable
	case ReasonInvalidSKU, ReasonInvalidSlug, ReasonMaxRetriesExceeded:
		return ClassStructural
	case ReasonCanceled, ReasonStaleStopped:
		return ClassSilent
	default:
		return ClassTransient
	}
}

// ProcessError attaches a Reason to an item failure
type ProcessError struct {
	Reason Reason
	Err    error
}

func (e *ProcessError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// NewProcessError creates a classified item failure
func NewProcessError(reason Reason, err error) error {
	return &ProcessError{Reason: reason, Err: err}
}

// ReasonOf extracts the failure reason, treating unclassified errors as exceptions
func ReasonOf(err error) Reason {
	var pe *ProcessError
	if errors.As(err, &pe) {
		return pe.Reason
	}
	if errors.Is(err, ErrDestinationNotFound) {
		return ReasonMissingConfig
	}
	if errors.Is(err, ErrInvalidPayload) {
		return ReasonMissingFields
	}
	return ReasonException
}
