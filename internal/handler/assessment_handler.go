package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/middleware"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
	"github.com/stemsi/exstem-assessment/internal/validator"
)

// AssessmentHandler handles candidate-facing assessment endpoints.
type AssessmentHandler struct {
	sessionService *service.SessionService
	log            zerolog.Logger
}

// NewAssessmentHandler creates a new AssessmentHandler.
func NewAssessmentHandler(sessionService *service.SessionService, log zerolog.Logger) *AssessmentHandler {
	return &AssessmentHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "assessment_handler").Logger(),
	}
}

// Start godoc
// POST /api/v1/assessments/:token/start
// Opens the attempt and fixes its deadline.
func (h *AssessmentHandler) Start(c *gin.Context) {
	snap, err := h.sessionService.Start(c.Request.Context(), middleware.GetActor(c), c.Param("token"))
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"session": snap})
}

// GetState godoc
// GET /api/v1/assessments/:token/state
// Read-only snapshot with server-computed remaining time.
func (h *AssessmentHandler) GetState(c *gin.Context) {
	snap, err := h.sessionService.GetState(c.Request.Context(), c.Param("token"))
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": snap})
}

// ReportProgress godoc
// PATCH /api/v1/assessments/:token/progress
// Merges a partial update (cursor, answers, codes, notes).
func (h *AssessmentHandler) ReportProgress(c *gin.Context) {
	var req model.ProgressRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	snap, err := h.sessionService.ReportProgress(c.Request.Context(), middleware.GetActor(c), c.Param("token"), req)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": snap})
}

// ReportViolation godoc
// POST /api/v1/assessments/:token/violations
// Records exactly one integrity violation. The body is optional.
func (h *AssessmentHandler) ReportViolation(c *gin.Context) {
	var req model.ViolationRequest
	if c.Request.ContentLength != 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	res, err := h.sessionService.ReportViolation(c.Request.Context(), middleware.GetActor(c), c.Param("token"), req)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"violation": res})
}

// SubmitCode godoc
// POST /api/v1/assessments/:token/submissions
// Judges code against the question's hidden test cases.
func (h *AssessmentHandler) SubmitCode(c *gin.Context) {
	var req model.SubmitCodeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.sessionService.SubmitCode(c.Request.Context(), middleware.GetActor(c), c.Param("token"), req)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"submission": res})
}

// Complete godoc
// POST /api/v1/assessments/:token/complete
// Merges final payloads and closes the session. Idempotent.
func (h *AssessmentHandler) Complete(c *gin.Context) {
	var req model.CompleteRequest
	if c.Request.ContentLength != 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	snap, err := h.sessionService.Complete(c.Request.Context(), middleware.GetActor(c), c.Param("token"), req)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": snap})
}
