package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/middleware"
	"github.com/stemsi/exstem-assessment/internal/model"
	ws "github.com/stemsi/exstem-assessment/internal/websocket"
)

type streamEvent struct {
	Event     ws.Event               `json:"event"`
	Code      string                 `json:"code"`
	Session   *model.SessionSnapshot `json:"session"`
	Violation *model.ViolationResult `json:"violation"`
}

func dialStream(t *testing.T, ts *testServer, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	h := NewWSHandler(ts.svc, zerolog.Nop(), nil)
	r := gin.New()
	r.GET("/ws/v1/assessments/:token/stream", middleware.RequireCandidateJWT(ts.auth), h.AssessmentStream)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/assessments/" + token + "/stream?access_token=" + ts.jwt
	return websocket.DefaultDialer.Dial(url, nil)
}

func roundTrip(t *testing.T, conn *websocket.Conn, msg any) streamEvent {
	t.Helper()
	if msg != nil {
		if err := conn.WriteJSON(msg); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev streamEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	return ev
}

func TestAssessmentStream(t *testing.T) {
	ts := newTestServer(t)
	if code, _ := ts.do(t, http.MethodPost, "/start", nil); code != http.StatusCreated {
		t.Fatalf("start: %d", code)
	}

	conn, _, err := dialStream(t, ts, "tok")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	ev := roundTrip(t, conn, nil)
	if ev.Event != ws.EventState || ev.Session == nil || ev.Session.State != model.SessionStateInProgress {
		t.Fatalf("expected initial in-progress state, got %+v", ev)
	}

	ev = roundTrip(t, conn, map[string]any{"action": "progress", "answers": map[string]any{"q1": "A"}})
	if ev.Event != ws.EventState || !ev.Session.Answers["q1"].Equal(model.TextAnswer("A")) {
		t.Fatalf("progress not applied: %+v", ev)
	}

	ev = roundTrip(t, conn, map[string]any{"action": "progress", "cursor_seq": 0, "section": "s1"})
	if ev.Event != ws.EventError || ev.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected validation error, got %+v", ev)
	}

	ev = roundTrip(t, conn, map[string]any{"action": "violation", "kind": "blur"})
	if ev.Event != ws.EventViolation || ev.Violation.TabSwitchCount != 1 || ev.Violation.Terminated {
		t.Fatalf("unexpected violation event %+v", ev)
	}

	ev = roundTrip(t, conn, map[string]any{"action": "teleport"})
	if ev.Event != ws.EventError || ev.Code != "INVALID_PAYLOAD" {
		t.Fatalf("expected invalid payload, got %+v", ev)
	}

	ev = roundTrip(t, conn, map[string]any{"action": "ping"})
	if ev.Event != ws.EventPong {
		t.Fatalf("expected pong, got %+v", ev)
	}

	ev = roundTrip(t, conn, map[string]any{"action": "complete"})
	if ev.Event != ws.EventCompleted || ev.Session.State != model.SessionStateCompleted {
		t.Fatalf("expected completion, got %+v", ev)
	}

	ev = roundTrip(t, conn, map[string]any{"action": "progress", "notes": "late"})
	if ev.Event != ws.EventError || ev.Code != "SESSION_CLOSED" || ev.Session == nil {
		t.Fatalf("expected closed error with snapshot, got %+v", ev)
	}
	if ev.Session.Notes != "" {
		t.Fatalf("terminal record changed: notes=%q", ev.Session.Notes)
	}
}

func TestAssessmentStreamRejectsUnknownTokenBeforeUpgrade(t *testing.T) {
	ts := newTestServer(t)
	_, resp, err := dialStream(t, ts, "nope")
	if !errors.Is(err, websocket.ErrBadHandshake) {
		t.Fatalf("expected bad handshake, got %v", err)
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 before upgrade, got %+v", resp)
	}
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name   string
		db     Pinger
		status int
		want   string
	}{
		{"no dependencies", nil, http.StatusOK, `"status":"ok"`},
		{"postgres up", stubPinger{}, http.StatusOK, `"postgres":"ok"`},
		{"postgres down", stubPinger{err: errors.New("refused")}, http.StatusServiceUnavailable, `"status":"degraded"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewSystemHandler(tc.db, nil, zerolog.Nop())
			r := gin.New()
			r.GET("/health", h.Health)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			if w.Code != tc.status || !strings.Contains(w.Body.String(), tc.want) {
				t.Fatalf("got %d %s", w.Code, w.Body.String())
			}
		})
	}
}
