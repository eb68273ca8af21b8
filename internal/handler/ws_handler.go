package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/middleware"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
	"github.com/stemsi/exstem-assessment/internal/validator"
	ws "github.com/stemsi/exstem-assessment/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams one assessment session over a WebSocket. Every action
// goes through the same SessionService guards as the HTTP endpoints.
type WSHandler struct {
	sessionService *service.SessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.SessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// AssessmentStream godoc
// WS /ws/v1/assessments/:token/stream
// Accepts progress, violation, complete and ping actions.
func (h *WSHandler) AssessmentStream(c *gin.Context) {
	token := c.Param("token")
	actor := middleware.GetActor(c)
	ctx := c.Request.Context()

	// Reject unknown invitations before upgrading so the client gets a
	// normal HTTP error.
	snap, err := h.sessionService.GetState(ctx, token)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("token", token).
		Str("candidate_id", actor.CandidateID).
		Logger()
	wsLog.Info().Msg("Candidate connected")

	if err := ws.WriteTyped(conn, ws.StateResponse{Event: ws.EventState, Session: snap}); err != nil {
		return
	}

	for {
		data, err := ws.ReadMessage(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			ws.WriteError(conn, string(response.ErrInvalidPayload), "malformed message")
			continue
		}

		if err := h.dispatch(ctx, conn, actor, token, env.Action, data); err != nil {
			wsLog.Debug().Err(err).Msg("Write failed, closing")
			return
		}
	}
}

// dispatch handles one client message. It returns only write errors; action
// failures are reported to the client as error events.
func (h *WSHandler) dispatch(ctx context.Context, conn *websocket.Conn, actor model.Actor, token string, action ws.Action, data []byte) error {
	switch action {
	case ws.ActionPing:
		return ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong, ServerTime: time.Now().Unix()})

	case ws.ActionProgress:
		var msg ws.ProgressMessage
		if err := decodeMessage(data, &msg); err != nil {
			return h.writeFailure(conn, err)
		}
		snap, err := h.sessionService.ReportProgress(ctx, actor, token, msg.ProgressRequest)
		if err != nil {
			return h.writeFailure(conn, err)
		}
		return ws.WriteTyped(conn, ws.StateResponse{Event: ws.EventState, Session: snap})

	case ws.ActionViolation:
		var msg ws.ViolationMessage
		if err := decodeMessage(data, &msg); err != nil {
			return h.writeFailure(conn, err)
		}
		res, err := h.sessionService.ReportViolation(ctx, actor, token, msg.ViolationRequest)
		if err != nil {
			return h.writeFailure(conn, err)
		}
		return ws.WriteTyped(conn, ws.ViolationResponse{Event: ws.EventViolation, Violation: res})

	case ws.ActionComplete:
		var msg ws.CompleteMessage
		if err := decodeMessage(data, &msg); err != nil {
			return h.writeFailure(conn, err)
		}
		snap, err := h.sessionService.Complete(ctx, actor, token, msg.CompleteRequest)
		if err != nil {
			return h.writeFailure(conn, err)
		}
		return ws.WriteTyped(conn, ws.StateResponse{Event: ws.EventCompleted, Session: snap})

	default:
		return ws.WriteError(conn, string(response.ErrInvalidPayload), "unknown action: "+string(action))
	}
}

// decodeMessage parses and validates a typed message with the same rules as
// the HTTP binding.
func decodeMessage(data []byte, dst interface{}) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", service.ErrValidation, err)
	}
	if fields := validator.Validate(dst); fields != nil {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		msgs := make([]string, 0, len(keys))
		for _, k := range keys {
			msgs = append(msgs, k+": "+fields[k])
		}
		return fmt.Errorf("%w: %s", service.ErrValidation, strings.Join(msgs, "; "))
	}
	return nil
}

func (h *WSHandler) writeFailure(conn *websocket.Conn, err error) error {
	_, code := errorStatus(err)
	if code == response.ErrInternal {
		h.log.Error().Err(err).Msg("WebSocket action failed")
	}
	return ws.WriteTyped(conn, ws.ErrorResponse{
		Event:   ws.EventError,
		Code:    string(code),
		Error:   response.GetMessage(code),
		Session: service.SnapshotOf(err),
	})
}
