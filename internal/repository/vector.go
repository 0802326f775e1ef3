package repository

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/timmy/tubechat/internal/config"
	"github.com/timmy/tubechat/internal/domain"
)

// VectorRepository is the nearest-neighbour index holding transcript chunks.
// Every implementation scopes its records to a single namespace.
type VectorRepository interface {
	// EnsureIndex creates the index if missing and verifies its dimension.
	EnsureIndex(ctx context.Context) error

	// Upsert inserts or replaces the record with the same id.
	Upsert(ctx context.Context, record *domain.IndexRecord) error

	// Query returns up to opts.TopK matches ordered by descending score.
	// An empty index yields an empty slice.
	Query(ctx context.Context, vector []float32, opts QueryOptions) ([]domain.Match, error)

	// DeleteSourceExcept removes records of source whose batch differs from keepBatch.
	DeleteSourceExcept(ctx context.Context, source, keepBatch string) error

	Close() error
}

// QueryOptions controls a similarity query.
type QueryOptions struct {
	TopK            int
	IncludeMetadata bool
	// Source restricts matches to one video when set.
	Source string
}

// NewVectorRepository builds the backend selected by cfg.Backend for vectors of
// the given dimension produced by model.
func NewVectorRepository(ctx context.Context, cfg config.VectorStoreConfig, dimension int, model string) (VectorRepository, error) {
	switch cfg.Backend {
	case "qdrant", "":
		return NewQdrantRepository(&QdrantConnectionConfig{
			Host:            cfg.Qdrant.Host,
			Port:            cfg.Qdrant.Port,
			Collection:      cfg.Qdrant.Collection,
			APIKey:          cfg.Qdrant.APIKey,
			UseTLS:          cfg.Qdrant.UseTLS,
			Namespace:       cfg.Namespace,
			VectorDimension: dimension,
		})
	case "pgvector":
		return NewPgVectorRepository(ctx, &PgVectorConfig{
			DSN:             cfg.PgVector.DSN,
			Table:           cfg.PgVector.Table,
			Namespace:       cfg.Namespace,
			VectorDimension: dimension,
		})
	case "bolt":
		return NewBoltRepository(&BoltConfig{
			Path:            cfg.Bolt.Path,
			Namespace:       cfg.Namespace,
			VectorDimension: dimension,
			Model:           model,
		})
	default:
		return nil, fmt.Errorf("%w: unknown vector store backend %q", domain.ErrConfiguration, cfg.Backend)
	}
}

func checkDimension(vector []float32, dimension int) error {
	if len(vector) != dimension {
		return fmt.Errorf("%w: got %d, index expects %d", domain.ErrDimensionMismatch, len(vector), dimension)
	}
	return nil
}

// pointID maps a record id to a stable UUID, since Qdrant only accepts
// unsigned integers or UUIDs as point ids.
func pointID(namespace, recordID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(namespace+"/"+recordID)).String()
}

// cosine returns the cosine similarity of a and b, or 0 when either is a zero vector.
func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// topK sorts matches by descending score, ties broken by id, and truncates to k.
func topK(matches []domain.Match, k int) []domain.Match {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}
