package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/tubechat/internal/domain"
	"github.com/timmy/tubechat/internal/logger"
)

// errorStatus maps a pipeline error to an HTTP status. Only malformed
// requests are the client's fault; everything else is reported as 500.
func errorStatus(err error) int {
	if errors.Is(err, domain.ErrInvalidRequest) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// publicMessage is the error text a client sees. Request errors keep their
// detail; anything else is reduced to its taxonomy entry so upstream
// response bodies and internal paths stay in the server log.
func publicMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrInvalidURL):
		return err.Error()
	case errors.Is(err, domain.ErrTranscriptUnavailable):
		return domain.ErrTranscriptUnavailable.Error()
	case errors.Is(err, domain.ErrEmbeddingFormat):
		return domain.ErrEmbeddingFormat.Error()
	case errors.Is(err, domain.ErrConfiguration):
		return domain.ErrConfiguration.Error()
	case errors.Is(err, domain.ErrUpstream):
		return domain.ErrUpstream.Error()
	default:
		return "internal error"
	}
}

// respondError logs err and writes the {"error": ...} body.
func respondError(c *gin.Context, status int, err error) {
	ctx := c.Request.Context()
	entry := logger.With(logger.Fields{
		logger.FieldStatus:    status,
		logger.FieldErrorKind: domain.ErrorKind(err),
	})
	if status >= http.StatusInternalServerError {
		entry.Error(ctx, "Request failed: %v", err)
	} else {
		entry.Warn(ctx, "Request rejected: %v", err)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": publicMessage(err)})
}
