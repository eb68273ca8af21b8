package model

import "time"

// SessionSnapshot is the client-facing view of a session. RemainingSeconds is
// computed by the server and is the only clock the client should trust.
type SessionSnapshot struct {
	Token            string                 `json:"token"`
	TestID           string                 `json:"test_id"`
	State            SessionState           `json:"state"`
	StartedAt        *time.Time             `json:"started_at,omitempty"`
	ExpiresAt        *time.Time             `json:"expires_at,omitempty"`
	RemainingSeconds int64                  `json:"remaining_seconds"`
	DurationSeconds  int64                  `json:"duration_seconds"`
	TabSwitchCount   int                    `json:"tab_switch_count"`
	CurrentSection   string                 `json:"current_section"`
	CurrentQuestion  string                 `json:"current_question"`
	CompletedAt      *time.Time             `json:"completed_at,omitempty"`
	AutoSubmittedAt  *time.Time             `json:"auto_submitted_at,omitempty"`
	TerminatedAt     *time.Time             `json:"terminated_at,omitempty"`
	Answers          map[string]AnswerValue `json:"answers"`
	Codes            map[string]string      `json:"codes"`
	Notes            string                 `json:"notes"`
	SubmissionCounts map[string]int         `json:"submission_counts"`
}

// ViolationResult is returned for each reported violation.
type ViolationResult struct {
	TabSwitchCount int  `json:"tab_switch_count"`
	Threshold      int  `json:"threshold"`
	Remaining      int  `json:"remaining_before_termination"`
	Terminated     bool `json:"terminated"`
}

// ViolationEvent is the audit record pushed to the persistence queue.
type ViolationEvent struct {
	Token          string `json:"token"`
	TestID         string `json:"test_id"`
	CandidateID    string `json:"candidate_id,omitempty"`
	Kind           string `json:"kind"`
	Detail         string `json:"detail,omitempty"`
	TabSwitchCount int    `json:"tab_switch_count"`
	Terminated     bool   `json:"terminated"`
	RecordedAtMs   int64  `json:"recorded_at_ms"`
}
