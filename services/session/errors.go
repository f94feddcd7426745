package session

import "errors"

var (
	// ErrConcurrentRunRejected is returned when a session already has an active run
	ErrConcurrentRunRejected = errors.New("session is already being processed")

	// ErrInvalidTransition is returned for lifecycle moves the state machine forbids
	ErrInvalidTransition = errors.New("invalid session status transition")

	// ErrSessionNotFound is returned for unknown session ids
	ErrSessionNotFound = errors.New("session not found")

	// ErrNoActiveRun is returned when recording against a session that is not running here
	ErrNoActiveRun = errors.New("session has no active run")
)
