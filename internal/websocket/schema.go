package websocket

import "github.com/stemsi/exstem-assessment/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionProgress  Action = "progress"
	ActionViolation Action = "violation"
	ActionComplete  Action = "complete"
	ActionPing      Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ProgressMessage carries a partial update; fields as in PATCH /progress.
type ProgressMessage struct {
	Action Action `json:"action"`
	model.ProgressRequest
}

// ViolationMessage reports one integrity event.
type ViolationMessage struct {
	Action Action `json:"action"`
	model.ViolationRequest
}

// CompleteMessage finishes the attempt with optional final payloads.
type CompleteMessage struct {
	Action Action `json:"action"`
	model.CompleteRequest
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState     Event = "state"
	EventViolation Event = "violation"
	EventCompleted Event = "completed"
	EventError     Event = "error"
	EventPong      Event = "pong"
)

// StateResponse is pushed on connect and after every accepted update.
type StateResponse struct {
	Event   Event                  `json:"event"`
	Session *model.SessionSnapshot `json:"session"`
}

type ViolationResponse struct {
	Event     Event                  `json:"event"`
	Violation *model.ViolationResult `json:"violation"`
}

// ErrorResponse mirrors the HTTP error envelope. Session is set when the
// failure concerns an existing session, so the client can reconcile.
type ErrorResponse struct {
	Event   Event                  `json:"event"`
	Code    string                 `json:"code"`
	Error   string                 `json:"error"`
	Session *model.SessionSnapshot `json:"session,omitempty"`
}

type PongResponse struct {
	Event      Event `json:"event"`
	ServerTime int64 `json:"server_time"`
}
