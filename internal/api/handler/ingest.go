package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/tubechat/internal/domain"
	"github.com/timmy/tubechat/internal/service"
	"gorm.io/gorm"
)

const (
	defaultJobListLimit = 20
	maxJobListLimit     = 200
)

// JobLister reads the ingest job audit trail.
type JobLister interface {
	ListRecent(ctx context.Context, limit int) ([]domain.IngestJob, error)
	ListByVideo(ctx context.Context, videoID string) ([]domain.IngestJob, error)
	GetByID(ctx context.Context, id string) (*domain.IngestJob, error)
}

// IngestHandler exposes the ingest pipeline and its job history.
type IngestHandler struct {
	ingest service.Ingester
	jobs   JobLister
}

// NewIngestHandler creates a new ingest handler.
// Parameters:
//   - ingest: ingest service instance.
//   - jobs: job repository used for the history endpoints.
//
// Returns:
//   - *IngestHandler: initialized handler.
func NewIngestHandler(ingest service.Ingester, jobs JobLister) *IngestHandler {
	return &IngestHandler{
		ingest: ingest,
		jobs:   jobs,
	}
}

// IngestRequest represents the ingest API request.
type IngestRequest struct {
	VideoURL string `json:"video_url" binding:"required"`
}

// IngestResponse represents the ingest API response.
type IngestResponse struct {
	VideoID string            `json:"video_id"`
	Batch   string            `json:"batch"`
	Chunks  int               `json:"chunks"`
	Job     *domain.IngestJob `json:"job,omitempty"`
}

// Ingest handles POST /api/v1/ingest. The pipeline runs synchronously.
// Parameters:
//   - c: Gin request context.
//
// Returns: none (writes JSON response).
func (h *IngestHandler) Ingest(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err))
		return
	}

	result, err := h.ingest.Ingest(c.Request.Context(), req.VideoURL)
	if err != nil {
		status := errorStatus(err)
		if errors.Is(err, domain.ErrInvalidURL) {
			status = http.StatusBadRequest
		}
		respondError(c, status, err)
		return
	}

	c.JSON(http.StatusOK, IngestResponse{
		VideoID: result.VideoID,
		Batch:   result.Batch,
		Chunks:  result.Chunks,
		Job:     result.Job,
	})
}

// ListJobs handles GET /api/v1/ingest/jobs.
// Parameters:
//   - c: Gin request context; optional queries "limit" and "video_id".
//
// Returns: none (writes JSON response).
func (h *IngestHandler) ListJobs(c *gin.Context) {
	limit := defaultJobListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(c, http.StatusBadRequest, fmt.Errorf("%w: limit must be a positive integer", domain.ErrInvalidRequest))
			return
		}
		limit = min(n, maxJobListLimit)
	}

	var (
		jobs []domain.IngestJob
		err  error
	)
	if videoID := c.Query("video_id"); videoID != "" {
		jobs, err = h.jobs.ListByVideo(c.Request.Context(), videoID)
		if len(jobs) > limit {
			jobs = jobs[:limit]
		}
	} else {
		jobs, err = h.jobs.ListRecent(c.Request.Context(), limit)
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"total": len(jobs),
	})
}

// GetJob handles GET /api/v1/ingest/jobs/:id.
// Parameters:
//   - c: Gin request context.
//
// Returns: none (writes JSON response).
func (h *IngestHandler) GetJob(c *gin.Context) {
	job, err := h.jobs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, job)
}
