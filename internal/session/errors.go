package session

import "errors"

var (
	// ErrAlreadyRunning is returned when an owner who already has a
	// live session asks for another one.
	ErrAlreadyRunning = errors.New("session already running for owner")

	// ErrNotFound is returned when no session exists for an owner.
	ErrNotFound = errors.New("session not found")

	// ErrNotRunning is returned for input or resize on a session that
	// has stopped.
	ErrNotRunning = errors.New("session not running")

	// ErrMaxSessions is returned when the registry is at capacity.
	ErrMaxSessions = errors.New("max sessions reached")
)
