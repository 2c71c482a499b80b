// Package core writes the uniform HTTP response envelope.
package core

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loomhq/loom/pkg/errorx"
	"github.com/loomhq/loom/pkg/logger"
)

// ErrResponse is the user-visible body for all error responses.
type ErrResponse struct {
	Error ErrDetail `json:"error"`
}

// ErrDetail carries the message and an OpenAI-style error type.
type ErrDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// WriteResponse writes data on success, or a typed error envelope derived
// from the error's registered code.
func WriteResponse(c *gin.Context, err error, data any) {
	if err != nil {
		coder := errorx.ParseCoder(err)
		logger.Debug("[Core] request failed: code=%d status=%d: %v", coder.Code(), coder.HTTPStatus(), err)
		c.JSON(coder.HTTPStatus(), ErrResponse{Error: ErrDetail{
			Message: err.Error(),
			Type:    TypeForStatus(coder.HTTPStatus()),
		}})
		return
	}
	c.JSON(http.StatusOK, data)
}

// WriteCreated writes data with a 201 status.
func WriteCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, data)
}

// TypeForStatus maps an HTTP status to the OpenAI-style error type string.
func TypeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request_error"
	case http.StatusUnauthorized:
		return "authentication_error"
	case http.StatusForbidden:
		return "permission_error"
	case http.StatusNotFound:
		return "not_found_error"
	case http.StatusConflict:
		return "conflict_error"
	case http.StatusBadGateway:
		return "upstream_error"
	default:
		return "server_error"
	}
}
