package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
)

// errorStatus maps a service error to its HTTP status and error code.
func errorStatus(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, response.ErrNotFound
	case errors.Is(err, service.ErrAlreadyStarted):
		return http.StatusConflict, response.ErrAlreadyStarted
	case errors.Is(err, service.ErrSessionClosed):
		return http.StatusConflict, response.ErrSessionClosed
	case errors.Is(err, service.ErrSessionExpired):
		return http.StatusGone, response.ErrSessionExpired
	case errors.Is(err, service.ErrInvitationExpired):
		return http.StatusGone, response.ErrInvitationExpired
	case errors.Is(err, service.ErrExecutionTimeout):
		return http.StatusGatewayTimeout, response.ErrExecutionTimeout
	case errors.Is(err, service.ErrExecutionUnavailable):
		return http.StatusServiceUnavailable, response.ErrExecutionUnavailable
	case errors.Is(err, service.ErrInvalidQuestionDefinition):
		return http.StatusInternalServerError, response.ErrInvalidQuestionDefinition
	case errors.Is(err, service.ErrInvalidTestDefinition):
		return http.StatusInternalServerError, response.ErrInvalidTestDefinition
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, response.ErrValidation
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// failWith writes the error envelope for err. Errors on an existing session
// carry its latest snapshot in data.
func failWith(c *gin.Context, log zerolog.Logger, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).
			Str("path", c.FullPath()).
			Str("token", c.Param("token")).
			Msg("Request failed")
	}

	if snap := service.SnapshotOf(err); snap != nil {
		response.FailWithData(c, status, code, snap)
		return
	}
	if code == response.ErrValidation {
		response.FailWithFields(c, status, code, map[string]string{"detail": err.Error()})
		return
	}
	response.Fail(c, status, code)
}
