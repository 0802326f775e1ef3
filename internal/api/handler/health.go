package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	vectorBackend string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(vectorBackend string) *HealthHandler {
	return &HealthHandler{vectorBackend: vectorBackend}
}

// Health returns the health status of the service
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"vector_store": h.vectorBackend,
	})
}
