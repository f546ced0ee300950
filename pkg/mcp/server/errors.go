package server

import "errors"

var (
	// ErrSessionNotFound is returned for an unknown session id
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidSessionID is returned when a session id is missing or malformed
	ErrInvalidSessionID = errors.New("invalid session id")
	// ErrSessionClosed is returned when pushing to a session that has ended
	ErrSessionClosed = errors.New("session closed")
)
