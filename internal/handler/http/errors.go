package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"quiz-arena/internal/service"
)

// statusOf maps a service error kind to its HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrAuthenticationFailed):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrTransient):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func HandleServiceError(c *gin.Context, err error) {
	code := statusOf(err)
	logCtx := logrus.WithError(err).WithFields(logrus.Fields{
		"path":        c.FullPath(),
		"status_code": code,
	})
	switch {
	case code == http.StatusInternalServerError:
		logCtx.Error("Unhandled internal server error")
		ErrorResponse(c, code, "An unexpected error occurred")
		return
	case code == http.StatusServiceUnavailable:
		logCtx.Warn("Storage unavailable")
		ErrorResponse(c, code, "Service temporarily unavailable, retry shortly")
		return
	}
	logCtx.Debug("Request rejected")
	ErrorResponse(c, code, err.Error())
}
