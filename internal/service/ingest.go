package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/timmy/tubechat/internal/domain"
	"github.com/timmy/tubechat/internal/logger"
	"github.com/timmy/tubechat/internal/repository"
	"github.com/timmy/tubechat/internal/source"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// JobStore persists the audit trail of ingest runs.
type JobStore interface {
	Create(ctx context.Context, job *domain.IngestJob) error
	Update(ctx context.Context, job *domain.IngestJob) error
}

// IngestService runs the transcript pipeline: fetch, chunk, embed, upsert.
type IngestService struct {
	source    source.Source
	chunker   *Chunker
	embedding EmbeddingProvider
	vectors   repository.VectorRepository
	jobs      JobStore
	policy    domain.IngestPolicy

	maxRetries   int
	retryBackoff time.Duration

	mu        sync.Mutex
	lastBatch int64
	now       func() time.Time
}

// IngestConfig holds configuration for the ingest service.
type IngestConfig struct {
	Policy       domain.IngestPolicy
	ChunkSize    int
	ChunkOverlap int
	// MaxRetries bounds the retries of a chunk's embed or upsert after a
	// transient upstream failure. Zero disables retrying.
	MaxRetries   int
	RetryBackoff time.Duration
}

// IngestResult summarises one completed run.
type IngestResult struct {
	Job     *domain.IngestJob
	VideoID string
	Batch   string
	Chunks  int
}

// NewIngestService creates a new ingest service. jobs may be nil, in which
// case runs are not recorded.
func NewIngestService(
	src source.Source,
	embedding EmbeddingProvider,
	vectors repository.VectorRepository,
	jobs JobStore,
	cfg *IngestConfig,
) (*IngestService, error) {
	chunker, err := NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	policy := cfg.Policy
	if policy == "" {
		policy = domain.IngestPolicyAppend
	}
	if !policy.Valid() {
		return nil, fmt.Errorf("%w: unknown ingest policy %q", domain.ErrConfiguration, policy)
	}

	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = DefaultRetryBackoff
	}

	return &IngestService{
		source:       src,
		chunker:      chunker,
		embedding:    embedding,
		vectors:      vectors,
		jobs:         jobs,
		policy:       policy,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: backoff,
		now:          time.Now,
	}, nil
}

// nextBatch returns a millisecond timestamp that is strictly greater than
// the previous one handed out by this service.
func (s *IngestService) nextBatch() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now().UnixMilli()
	if ts <= s.lastBatch {
		ts = s.lastBatch + 1
	}
	s.lastBatch = ts
	return strconv.FormatInt(ts, 10)
}

// Ingest indexes the transcript of the video referenced by videoURL. Steps
// run strictly in order and the first failure aborts the run.
func (s *IngestService) Ingest(ctx context.Context, videoURL string) (*IngestResult, error) {
	ctx, span := tracer.Start(ctx, "ingest")
	defer span.End()

	videoID, err := source.ExtractVideoID(videoURL)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	batch := s.nextBatch()
	ctx = logger.SetVideoID(ctx, videoID)
	span.SetAttributes(attribute.String("video.id", videoID), attribute.String("ingest.batch", batch))

	job := s.startJob(ctx, videoID, videoURL, batch)
	ctx = logger.SetJobID(ctx, job.ID)
	start := time.Now()

	count, err := s.run(ctx, videoID, batch)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.finishJob(ctx, job, count, err)
		logger.With(logger.Fields{
			logger.FieldErrorKind:  domain.ErrorKind(err),
			logger.FieldDurationMs: time.Since(start).Milliseconds(),
		}).Error(ctx, "Ingestion failed: %v", err)
		return nil, err
	}

	s.finishJob(ctx, job, count, nil)
	logger.With(logger.Fields{
		logger.FieldCount:      count,
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Info(ctx, "Ingestion completed: policy=%s, batch=%s", s.policy, batch)

	return &IngestResult{Job: job, VideoID: videoID, Batch: batch, Chunks: count}, nil
}

func (s *IngestService) run(ctx context.Context, videoID, batch string) (int, error) {
	fetchCtx, span := tracer.Start(ctx, "ingest.fetch_transcript")
	text, err := s.source.Fetch(fetchCtx, videoID)
	span.End()
	if err != nil {
		return 0, err
	}
	logger.With(logger.Fields{logger.FieldSize: len(text)}).Debug(ctx, "Transcript fetched from %s", s.source.GetSourceID())

	chunks := s.chunker.Chunks(videoID, text)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("%w: transcript of %s is empty", domain.ErrTranscriptUnavailable, videoID)
	}

	model := s.embedding.GetModel()
	for i, chunk := range chunks {
		var vectors [][]float32
		err := retryUpstream(ctx, s.maxRetries, s.retryBackoff, "embedding", func(ctx context.Context) error {
			var err error
			vectors, err = s.embedding.Embed(ctx, []string{chunk.Text})
			return err
		})
		if err != nil {
			return i, fmt.Errorf("embed chunk %d: %w", chunk.Sequence, err)
		}

		record := &domain.IndexRecord{
			ID:     domain.RecordID(videoID, batch, chunk.Sequence),
			Vector: vectors[0],
			Metadata: domain.RecordMetadata{
				Text:     chunk.Text,
				Source:   videoID,
				Batch:    batch,
				Sequence: chunk.Sequence,
				Model:    model,
			},
		}
		err = retryUpstream(ctx, s.maxRetries, s.retryBackoff, "upsert", func(ctx context.Context) error {
			return s.vectors.Upsert(ctx, record)
		})
		if err != nil {
			return i, fmt.Errorf("upsert chunk %d: %w", chunk.Sequence, err)
		}
	}

	if s.policy == domain.IngestPolicyReplace {
		if err := s.vectors.DeleteSourceExcept(ctx, videoID, batch); err != nil {
			return len(chunks), fmt.Errorf("remove previous batches: %w", err)
		}
	}

	return len(chunks), nil
}

func (s *IngestService) startJob(ctx context.Context, videoID, videoURL, batch string) *domain.IngestJob {
	now := s.now()
	job := &domain.IngestJob{
		ID:        ksuid.New().String(),
		VideoID:   videoID,
		VideoURL:  videoURL,
		Policy:    s.policy,
		Status:    domain.JobStatusRunning,
		Batch:     batch,
		StartedAt: &now,
	}
	if s.jobs != nil {
		if err := s.jobs.Create(ctx, job); err != nil {
			logger.CtxWarn(ctx, "Failed to record ingest job: %v", err)
		}
	}
	return job
}

func (s *IngestService) finishJob(ctx context.Context, job *domain.IngestJob, count int, runErr error) {
	now := s.now()
	job.CompletedAt = &now
	job.ChunkCount = count
	job.Status = domain.JobStatusCompleted
	if runErr != nil {
		job.Status = domain.JobStatusFailed
		job.ErrorLog = runErr.Error()
	}
	if s.jobs != nil {
		if err := s.jobs.Update(ctx, job); err != nil {
			logger.CtxWarn(ctx, "Failed to update ingest job: %v", err)
			return
		}
	}
	logger.With(nil).WithStatus(string(job.Status)).WithCount(count).Debug(ctx, "Ingest job recorded")
}
