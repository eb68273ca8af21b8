package model

import (
	"time"
)

// SessionState enumerates assessment session states.
type SessionState string

const (
	SessionStateCreated       SessionState = "CREATED"
	SessionStateInProgress    SessionState = "IN_PROGRESS"
	SessionStateCompleted     SessionState = "COMPLETED"
	SessionStateAutoSubmitted SessionState = "AUTO_SUBMITTED"
	SessionStateTerminated    SessionState = "TERMINATED"
)

// Terminal reports whether no further mutation is accepted in this state.
func (s SessionState) Terminal() bool {
	switch s {
	case SessionStateCompleted, SessionStateAutoSubmitted, SessionStateTerminated:
		return true
	case SessionStateCreated, SessionStateInProgress:
		return false
	}
	return false
}

// AssessmentSession is one candidate attempt at a test, keyed by its access token.
type AssessmentSession struct {
	Token           string
	InvitationID    *string
	TestID          string
	State           SessionState
	StartedAt       time.Time
	DurationSeconds int64
	ExpiresAt       time.Time
	LastActivityAt  time.Time

	// Exactly one of these is set once State is terminal, matching the state.
	CompletedAt     *time.Time
	AutoSubmittedAt *time.Time
	TerminatedAt    *time.Time

	TabSwitchCount  int
	CurrentSection  string
	CurrentQuestion string
	CursorSeq       int64

	Answers         map[string]AnswerValue
	Codes           map[string]string
	CodeSubmissions map[string][]CodeSubmission
	Notes           string
}

// NewSession builds an in-progress session. expiresAt is supplied by the caller
// (the deadline authority) and never recomputed afterwards.
func NewSession(token, testID string, invitationID *string, startedAt, expiresAt time.Time, durationSeconds int64) *AssessmentSession {
	return &AssessmentSession{
		Token:           token,
		InvitationID:    invitationID,
		TestID:          testID,
		State:           SessionStateInProgress,
		StartedAt:       startedAt,
		DurationSeconds: durationSeconds,
		ExpiresAt:       expiresAt,
		LastActivityAt:  startedAt,
		Answers:         map[string]AnswerValue{},
		Codes:           map[string]string{},
		CodeSubmissions: map[string][]CodeSubmission{},
	}
}

// IsTerminal reports whether the session is frozen.
func (s *AssessmentSession) IsTerminal() bool {
	return s.State.Terminal()
}

// MarkCompleted moves the session to COMPLETED.
func (s *AssessmentSession) MarkCompleted(now time.Time) {
	s.State = SessionStateCompleted
	s.CompletedAt = &now
}

// MarkAutoSubmitted moves the session to AUTO_SUBMITTED.
func (s *AssessmentSession) MarkAutoSubmitted(now time.Time) {
	s.State = SessionStateAutoSubmitted
	s.AutoSubmittedAt = &now
}

// MarkTerminated moves the session to TERMINATED.
func (s *AssessmentSession) MarkTerminated(now time.Time) {
	s.State = SessionStateTerminated
	s.TerminatedAt = &now
}

// Clone returns a deep copy, submission outcomes included.
func (s *AssessmentSession) Clone() *AssessmentSession {
	if s == nil {
		return nil
	}
	c := *s
	c.InvitationID = cloneString(s.InvitationID)
	c.CompletedAt = cloneTime(s.CompletedAt)
	c.AutoSubmittedAt = cloneTime(s.AutoSubmittedAt)
	c.TerminatedAt = cloneTime(s.TerminatedAt)

	c.Answers = make(map[string]AnswerValue, len(s.Answers))
	for k, v := range s.Answers {
		c.Answers[k] = v.Clone()
	}
	c.Codes = make(map[string]string, len(s.Codes))
	for k, v := range s.Codes {
		c.Codes[k] = v
	}
	c.CodeSubmissions = make(map[string][]CodeSubmission, len(s.CodeSubmissions))
	for k, subs := range s.CodeSubmissions {
		copied := make([]CodeSubmission, len(subs))
		for i, sub := range subs {
			copied[i] = sub.Clone()
		}
		c.CodeSubmissions[k] = copied
	}
	return &c
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
