package domain

import "time"

// JobStatus represents the status of an ingest job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IngestPolicy decides what happens to earlier records of a video on re-ingest.
type IngestPolicy string

const (
	// IngestPolicyAppend keeps older batches, so re-ingests accumulate records.
	IngestPolicyAppend IngestPolicy = "append"
	// IngestPolicyReplace removes older batches once the new one is fully stored.
	IngestPolicyReplace IngestPolicy = "replace"
)

// Valid reports whether p is a known policy.
func (p IngestPolicy) Valid() bool {
	return p == IngestPolicyAppend || p == IngestPolicyReplace
}

// IngestJob records one run of the ingest pipeline for a video.
type IngestJob struct {
	ID          string       `gorm:"type:text;primaryKey" json:"id"`
	VideoID     string       `gorm:"type:text;not null;index" json:"video_id"`
	VideoURL    string       `gorm:"type:text" json:"video_url"`
	Policy      IngestPolicy `gorm:"type:text;default:append" json:"policy"`
	Status      JobStatus    `gorm:"type:text;default:pending" json:"status"`
	Batch       string       `gorm:"type:text" json:"batch"`
	ChunkCount  int          `gorm:"default:0" json:"chunk_count"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	ErrorLog    string       `json:"error_log,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// TableName returns the database table name for IngestJob.
func (IngestJob) TableName() string {
	return "ingest_jobs"
}
