package service

import (
	"errors"

	"github.com/stemsi/exstem-assessment/internal/judge"
	"github.com/stemsi/exstem-assessment/internal/model"
)

// Domain Errors
var (
	ErrNotFound                  = errors.New("assessment session not found")
	ErrAlreadyStarted            = errors.New("assessment session already started")
	ErrSessionClosed             = errors.New("assessment session is closed")
	ErrSessionExpired            = errors.New("assessment session expired")
	ErrInvitationExpired         = errors.New("invitation is no longer valid")
	ErrInvalidQuestionDefinition = errors.New("invalid question definition")
	ErrInvalidTestDefinition     = errors.New("invalid test definition")
	ErrValidation                = errors.New("validation error")

	ErrExecutionTimeout     = judge.ErrExecutionTimeout
	ErrExecutionUnavailable = judge.ErrExecutionUnavailable
)

// SessionError is returned for failures on an existing session. It carries
// the latest snapshot so the client can reconcile its UI.
type SessionError struct {
	Err      error
	Snapshot *model.SessionSnapshot
}

func (e *SessionError) Error() string { return e.Err.Error() }

func (e *SessionError) Unwrap() error { return e.Err }

// SnapshotOf extracts the snapshot attached to err, if any.
func SnapshotOf(err error) *model.SessionSnapshot {
	var se *SessionError
	if errors.As(err, &se) {
		return se.Snapshot
	}
	return nil
}
