package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/timmy/tubechat/internal/domain"
	"go.etcd.io/bbolt"
)

var bucketMeta = []byte("meta")

// BoltConfig holds configuration for the embedded bbolt backend.
type BoltConfig struct {
	Path            string
	Namespace       string
	VectorDimension int
	Model           string
}

// BoltRepository is a single-file vector index for local development. Queries
// scan the whole namespace bucket.
type BoltRepository struct {
	db        *bbolt.DB
	bucket    []byte
	namespace string
	dimension int
	model     string
}

type boltRecord struct {
	Vector   []float32             `json:"vector"`
	Metadata domain.RecordMetadata `json:"metadata"`
}

// NewBoltRepository opens (or creates) the index file at cfg.Path.
func NewBoltRepository(cfg *BoltConfig) (*BoltRepository, error) {
	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}

	db, err := bbolt.Open(cfg.Path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt index: %w", err)
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = defaultNamespace
	}
	dimension := cfg.VectorDimension
	if dimension <= 0 {
		dimension = defaultVectorDimension
	}

	return &BoltRepository{
		db:        db,
		bucket:    []byte("ns:" + namespace),
		namespace: namespace,
		dimension: dimension,
		model:     cfg.Model,
	}, nil
}

func (r *BoltRepository) Close() error {
	return r.db.Close()
}

// EnsureIndex creates the namespace bucket and pins its dimension and model on
// first use. Later opens with a different dimension or model are rejected.
func (r *BoltRepository) EnsureIndex(ctx context.Context) error {
	dimKey := []byte(r.namespace + "/dimension")
	modelKey := []byte(r.namespace + "/model")

	return r.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(r.bucket); err != nil {
			return err
		}
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}

		if raw := meta.Get(dimKey); raw != nil {
			pinned, err := strconv.Atoi(string(raw))
			if err != nil {
				return fmt.Errorf("corrupt dimension entry: %w", err)
			}
			if pinned != r.dimension {
				return fmt.Errorf("%w: namespace %s holds %d-dimensional vectors, expected %d",
					domain.ErrDimensionMismatch, r.namespace, pinned, r.dimension)
			}
		} else if err := meta.Put(dimKey, []byte(strconv.Itoa(r.dimension))); err != nil {
			return err
		}

		if raw := meta.Get(modelKey); raw != nil && r.model != "" && string(raw) != r.model {
			return fmt.Errorf("%w: namespace %s was built with model %s, configured %s",
				domain.ErrConfiguration, r.namespace, raw, r.model)
		}
		if r.model != "" {
			return meta.Put(modelKey, []byte(r.model))
		}
		return nil
	})
}

func (r *BoltRepository) Upsert(ctx context.Context, record *domain.IndexRecord) error {
	if err := checkDimension(record.Vector, r.dimension); err != nil {
		return err
	}

	data, err := json.Marshal(boltRecord{Vector: record.Vector, Metadata: record.Metadata})
	if err != nil {
		return err
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(r.bucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(record.ID), data)
	})
}

func (r *BoltRepository) Query(ctx context.Context, vector []float32, opts QueryOptions) ([]domain.Match, error) {
	if err := checkDimension(vector, r.dimension); err != nil {
		return nil, err
	}

	matches := []domain.Match{}
	err := r.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(r.bucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec boltRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("corrupt record %s: %w", k, err)
			}
			if opts.Source != "" && rec.Metadata.Source != opts.Source {
				return nil
			}
			if len(rec.Vector) != len(vector) {
				return nil
			}

			m := domain.Match{ID: string(k), Score: cosine(vector, rec.Vector)}
			if opts.IncludeMetadata {
				md := rec.Metadata
				m.Metadata = &md
			}
			matches = append(matches, m)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return topK(matches, opts.TopK), nil
}

func (r *BoltRepository) DeleteSourceExcept(ctx context.Context, source, keepBatch string) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(r.bucket)
		if b == nil {
			return nil
		}

		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var rec boltRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if rec.Metadata.Source == source && rec.Metadata.Batch != keepBatch {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
