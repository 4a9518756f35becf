package errors

import "errors"

// Caller-facing outcomes of the reservation engine.
var (
	ErrInvalidTimeWindow   = errors.New("invalid time window")
	ErrSpotUnavailable     = errors.New("no spot available for the requested window")
	ErrContended           = errors.New("all candidate spots were claimed concurrently")
	ErrPaymentFailed       = errors.New("payment failed")
	ErrConfirmationExpired = errors.New("confirmation deadline passed")
	ErrAlreadyTerminal     = errors.New("reservation already in a terminal state")
	ErrTooLateToCancel     = errors.New("reservation window already started")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrInvalidTransition   = errors.New("reservation cannot move to the requested state")
	ErrLocationNotFound    = errors.New("parking location not found")
	ErrSpotNotFound        = errors.New("parking spot not found")
)

// Internal outcomes, never returned to callers of the engine.
var (
	// ErrConflict means an interval claim lost against an overlapping claim on the same spot.
	ErrConflict = errors.New("interval conflict")
	// ErrStaleStatus means a status compare-and-swap found a different current status.
	ErrStaleStatus = errors.New("reservation status changed concurrently")
)
