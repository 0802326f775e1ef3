package repository

import (
	"context"

	"github.com/timmy/tubechat/internal/domain"
	"gorm.io/gorm"
)

// IngestJobRepository persists ingest run audit records.
type IngestJobRepository struct {
	db *gorm.DB
}

// NewIngestJobRepository creates a new IngestJobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
//
// Returns:
//   - *IngestJobRepository: repository instance bound to db.
func NewIngestJobRepository(db *gorm.DB) *IngestJobRepository {
	return &IngestJobRepository{db: db}
}

// Create inserts a new job record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job record to persist.
//
// Returns:
//   - error: non-nil if the insert fails.
func (r *IngestJobRepository) Create(ctx context.Context, job *domain.IngestJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// Update saves every field of an existing job record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job record with updated fields.
//
// Returns:
//   - error: non-nil if the update fails.
func (r *IngestJobRepository) Update(ctx context.Context, job *domain.IngestJob) error {
	return r.db.WithContext(ctx).Save(job).Error
}

// GetByID retrieves a job by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//
// Returns:
//   - *domain.IngestJob: job record if found.
//   - error: gorm.ErrRecordNotFound if missing, non-nil on lookup failure.
func (r *IngestJobRepository) GetByID(ctx context.Context, id string) (*domain.IngestJob, error) {
	var job domain.IngestJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// ListRecent returns the most recent jobs, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of jobs to return.
//
// Returns:
//   - []domain.IngestJob: jobs ordered by creation time descending.
//   - error: non-nil if the query fails.
func (r *IngestJobRepository) ListRecent(ctx context.Context, limit int) ([]domain.IngestJob, error) {
	var jobs []domain.IngestJob
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// ListByVideo returns every job of a video, newest first.
func (r *IngestJobRepository) ListByVideo(ctx context.Context, videoID string) ([]domain.IngestJob, error) {
	var jobs []domain.IngestJob
	err := r.db.WithContext(ctx).
		Where("video_id = ?", videoID).
		Order("created_at DESC").
		Find(&jobs).Error
	return jobs, err
}
