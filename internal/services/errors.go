package services

import "errors"

// Domain errors for the services facade.
//
// Remote operations wrap one of these; branch with errors.Is:
//
//	if errors.Is(err, services.ErrTimeout) {
//	    // middleman did not answer in time
//	}
var (
	// ErrTimeout is returned when no reply arrived within the operation timeout.
	// An empty result and a timeout cannot be told apart by the middleman
	// protocol, so a timed-out query never returns partial rows.
	ErrTimeout = errors.New("services: timed out")

	// ErrRejected is returned when the middleman answered with success=false.
	ErrRejected = errors.New("services: rejected by middleman")

	// ErrNotReady is returned when an operation is attempted before Init.
	ErrNotReady = errors.New("services: not initialised")

	// ErrInvalidArgument is returned for missing or malformed arguments.
	ErrInvalidArgument = errors.New("services: invalid argument")

	// ErrRateLimited is returned when SendLog exceeds the configured rate.
	ErrRateLimited = errors.New("services: log rate exceeded")
)
