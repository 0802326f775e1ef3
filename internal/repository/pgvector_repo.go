package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/timmy/tubechat/internal/domain"
)

// PgVectorConfig holds configuration for the Postgres + pgvector backend.
type PgVectorConfig struct {
	DSN             string
	Table           string
	Namespace       string
	VectorDimension int
}

// PgVectorRepository stores transcript chunks in a Postgres table with a
// vector column and answers queries with cosine distance.
type PgVectorRepository struct {
	pool      *pgxpool.Pool
	table     string
	namespace string
	dimension int
}

// NewPgVectorRepository opens a connection pool against cfg.DSN.
func NewPgVectorRepository(ctx context.Context, cfg *PgVectorConfig) (*PgVectorRepository, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid pgvector dsn: %v", domain.ErrConfiguration, err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, domain.Upstream("pgvector", fmt.Errorf("failed to create connection pool: %w", err))
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, domain.Upstream("pgvector", fmt.Errorf("failed to ping database: %w", err))
	}

	table := cfg.Table
	if table == "" {
		table = "index_records"
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = defaultNamespace
	}
	dimension := cfg.VectorDimension
	if dimension <= 0 {
		dimension = defaultVectorDimension
	}

	return &PgVectorRepository{
		pool:      pool,
		table:     pgx.Identifier{table}.Sanitize(),
		namespace: namespace,
		dimension: dimension,
	}, nil
}

func (r *PgVectorRepository) Close() error {
	r.pool.Close()
	return nil
}

// EnsureIndex creates the extension, table and HNSW index, then checks that
// an existing table has the configured vector dimension.
func (r *PgVectorRepository) EnsureIndex(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			namespace  TEXT NOT NULL,
			id         TEXT NOT NULL,
			embedding  vector(%d) NOT NULL,
			text       TEXT NOT NULL,
			source     TEXT NOT NULL,
			batch      TEXT NOT NULL DEFAULT '',
			sequence   INTEGER NOT NULL DEFAULT 0,
			model      TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (namespace, id)
		)`, r.table, r.dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (namespace, source)`,
			pgx.Identifier{strings.Trim(r.table, `"`) + "_source_idx"}.Sanitize(), r.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)`,
			pgx.Identifier{strings.Trim(r.table, `"`) + "_embedding_idx"}.Sanitize(), r.table),
	}
	for _, stmt := range stmts {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return domain.Upstream("pgvector", fmt.Errorf("failed to prepare schema: %w", err))
		}
	}

	var columnType string
	err := r.pool.QueryRow(ctx,
		`SELECT format_type(atttypid, atttypmod) FROM pg_attribute
		 WHERE attrelid = $1::regclass AND attname = 'embedding'`,
		r.table,
	).Scan(&columnType)
	if err != nil {
		return domain.Upstream("pgvector", fmt.Errorf("failed to inspect embedding column: %w", err))
	}
	if want := fmt.Sprintf("vector(%d)", r.dimension); columnType != want {
		return fmt.Errorf("%w: table %s has %s, expected %s", domain.ErrDimensionMismatch, r.table, columnType, want)
	}
	return nil
}

func (r *PgVectorRepository) Upsert(ctx context.Context, record *domain.IndexRecord) error {
	if err := checkDimension(record.Vector, r.dimension); err != nil {
		return err
	}

	md := record.Metadata
	_, err := r.pool.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (namespace, id, embedding, text, source, batch, sequence, model)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (namespace, id) DO UPDATE SET
		   embedding = EXCLUDED.embedding, text = EXCLUDED.text, source = EXCLUDED.source,
		   batch = EXCLUDED.batch, sequence = EXCLUDED.sequence, model = EXCLUDED.model`, r.table),
		r.namespace, record.ID, pgvector.NewVector(record.Vector), md.Text, md.Source, md.Batch, md.Sequence, md.Model,
	)
	if err != nil {
		return domain.Upstream("pgvector", fmt.Errorf("failed to upsert record: %w", err))
	}
	return nil
}

func (r *PgVectorRepository) Query(ctx context.Context, vector []float32, opts QueryOptions) ([]domain.Match, error) {
	if err := checkDimension(vector, r.dimension); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		`SELECT id, 1 - (embedding <=> $1) AS score, text, source, batch, sequence, model
		 FROM %s
		 WHERE namespace = $2 AND ($3 = '' OR source = $3)
		 ORDER BY embedding <=> $1, id
		 LIMIT $4`, r.table)

	rows, err := r.pool.Query(ctx, query, pgvector.NewVector(vector), r.namespace, opts.Source, opts.TopK)
	if err != nil {
		return nil, domain.Upstream("pgvector", fmt.Errorf("failed to search: %w", err))
	}
	defer rows.Close()

	matches := []domain.Match{}
	for rows.Next() {
		var (
			m     domain.Match
			score float64
			md    domain.RecordMetadata
		)
		if err := rows.Scan(&m.ID, &score, &md.Text, &md.Source, &md.Batch, &md.Sequence, &md.Model); err != nil {
			return nil, domain.Upstream("pgvector", fmt.Errorf("failed to scan match: %w", err))
		}
		m.Score = float32(score)
		if opts.IncludeMetadata {
			m.Metadata = &md
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Upstream("pgvector", err)
	}
	return matches, nil
}

func (r *PgVectorRepository) DeleteSourceExcept(ctx context.Context, source, keepBatch string) error {
	_, err := r.pool.Exec(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE namespace = $1 AND source = $2 AND batch <> $3`, r.table),
		r.namespace, source, keepBatch,
	)
	if err != nil {
		return domain.Upstream("pgvector", fmt.Errorf("failed to delete stale records: %w", err))
	}
	return nil
}
