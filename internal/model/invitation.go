package model

import "time"

// Invitation is the issuer's record behind an assessment token. Only the
// fields the engine validates against are loaded.
type Invitation struct {
	ID         string     `json:"id"`
	Token      string     `json:"token"`
	TestID     string     `json:"test_id"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
	Revoked    bool       `json:"revoked"`
}

// Actor identifies who drives a request. It is resolved by the HTTP layer
// and handed to every engine operation explicitly.
type Actor struct {
	CandidateID string
	RequestID   string
}
