package backend

import "errors"

// Domain errors for the backend package.
var (
	// ErrNotConnected is returned by Send when the transport is down.
	ErrNotConnected = errors.New("backend: transport not connected")

	// ErrInvalidRequest is returned when a request has no kind.
	ErrInvalidRequest = errors.New("backend: invalid request")

	// ErrSendFailed is returned when publishing a request fails.
	ErrSendFailed = errors.New("backend: send failed")
)
