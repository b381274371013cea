package service

import "errors"

var (
	// ErrConflict is returned when the commit-time re-check finds another
	// non-cancelled import with the same business key: someone else
	// imported this document between analysis and confirmation. Distinct
	// from a plain duplicate so callers can explain the race.
	ErrConflict = errors.New("another import with the same business key was committed concurrently")

	// ErrAlreadyCancelled is returned when cancelling a cancelled import.
	ErrAlreadyCancelled = errors.New("invoice is already cancelled")

	// ErrInvalidState is returned when an operation is not allowed in the
	// invoice's current lifecycle state.
	ErrInvalidState = errors.New("operation not allowed in current invoice state")

	// ErrReasonRequired is returned when a cancellation carries no reason.
	ErrReasonRequired = errors.New("cancellation requires a reason")
)
