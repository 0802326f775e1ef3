package service

import (
	"context"
	"time"

	"github.com/timmy/tubechat/internal/logger"
	"github.com/timmy/tubechat/internal/repository"
)

const DefaultTopK = 3

// RetrievalService finds the transcript chunks closest to a query.
type RetrievalService struct {
	embedding EmbeddingProvider
	vectors   repository.VectorRepository
	topK      int
}

// RetrieveOptions narrows a retrieval.
type RetrieveOptions struct {
	// Source limits matches to one video id. Empty searches the whole namespace.
	Source string
}

// NewRetrievalService creates a new retrieval service. topK <= 0 uses DefaultTopK.
func NewRetrievalService(embedding EmbeddingProvider, vectors repository.VectorRepository, topK int) *RetrievalService {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &RetrievalService{embedding: embedding, vectors: vectors, topK: topK}
}

// Retrieve returns the texts of the best matches in descending score order.
// Matches without text are dropped.
func (s *RetrievalService) Retrieve(ctx context.Context, query string, opts RetrieveOptions) ([]string, error) {
	start := time.Now()

	vector, err := s.embedding.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	matches, err := s.vectors.Query(ctx, vector, repository.QueryOptions{
		TopK:            s.topK,
		IncludeMetadata: true,
		Source:          opts.Source,
	})
	if err != nil {
		return nil, err
	}

	texts := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.Metadata == nil || m.Metadata.Text == "" {
			continue
		}
		texts = append(texts, m.Metadata.Text)
	}

	logger.With(nil).
		WithCount(len(texts)).
		WithDuration(time.Since(start).Milliseconds()).
		Debug(ctx, "Retrieved %d of %d matches", len(texts), len(matches))

	return texts, nil
}
