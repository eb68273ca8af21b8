package repository

import "errors"

var (
	// ErrNotFound is returned when no row matches the lookup.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists is returned by Create when the token already has a session.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrFrozen is returned when a write targets a session already stored as terminal.
	ErrFrozen = errors.New("session is frozen")
)
