// Sentinel errors shared across services and repositories. Handlers
// translate them into HTTP status codes: ErrNotFound into 404,
// ErrValidation into 400, ErrConflict and ErrSeatUnavailable into 409.
package domain

import "errors"

var ErrNotFound = errors.New("not found")

var ErrValidation = errors.New("validation failed")

// ErrConflict signals that an operation cannot proceed because of the
// current state, such as cancelling a transaction whose payment has
// already reached a terminal status.
var ErrConflict = errors.New("conflict")

// ErrSeatUnavailable is returned when any seat in a requested batch is not
// AVAILABLE. Seat claims are all-or-nothing, so one bad seat fails the
// whole batch.
var ErrSeatUnavailable = errors.New("seat is not available")
