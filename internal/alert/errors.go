package alert

import "errors"

// Domain errors for the alert package.
var (
	// ErrInvalidName is returned for an empty alert name.
	ErrInvalidName = errors.New("alert: invalid name")

	// ErrNilHandler is returned when subscribing a nil handler.
	ErrNilHandler = errors.New("alert: nil handler")

	// ErrSubscriptionNotFound is returned when unsubscribing an unknown ID.
	ErrSubscriptionNotFound = errors.New("alert: subscription not found")

	// ErrHandlerPanic wraps a recovered handler panic.
	ErrHandlerPanic = errors.New("alert: handler panicked")
)
