// Package handlers holds the gin handlers of the HTTP API.
package handlers

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/BioRx-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BioRx-Intelligence/pkg/errors"
)

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// writeAppError maps an error to its HTTP status. Server-side failures
// without a domain code are masked.
func writeAppError(c *gin.Context, logger logging.Logger, err error) {
	code := errors.GetCode(err)
	status := errors.HTTPStatusForCode(code)
	resp := ErrorResponse{
		Code:      string(code),
		Message:   err.Error(),
		RequestID: logging.RequestIDFromContext(c.Request.Context()),
	}

	var ae *errors.AppError
	if stderrors.As(err, &ae) {
		resp.Message = ae.Message
		resp.Detail = ae.Detail
	} else {
		code = errors.ErrCodeInternal
		status = http.StatusInternalServerError
		resp.Code = string(code)
		resp.Message = "internal server error"
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			logging.String(logging.FieldErrorCode, string(code)),
			logging.String(logging.FieldRequestID, resp.RequestID),
			logging.Err(err),
		)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, resp)
}

// badRequest writes a 400 for malformed request bodies.
func badRequest(c *gin.Context, logger logging.Logger, msg string, cause error) {
	e := errors.InvalidParam(msg)
	if cause != nil {
		e = e.WithDetail(cause.Error())
	}
	writeAppError(c, logger, e)
}
