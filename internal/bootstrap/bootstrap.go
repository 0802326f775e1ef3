package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/timmy/tubechat/internal/config"
	"github.com/timmy/tubechat/internal/domain"
	"github.com/timmy/tubechat/internal/logger"
	"github.com/timmy/tubechat/internal/repository"
	"github.com/timmy/tubechat/internal/service"
	"github.com/timmy/tubechat/internal/source"
	"github.com/timmy/tubechat/internal/storage"
	"gorm.io/gorm"
)

// Components holds the process-wide handles built from configuration.
type Components struct {
	DB        *gorm.DB
	Jobs      *repository.IngestJobRepository
	Vectors   repository.VectorRepository
	Source    source.Source
	Embedding service.EmbeddingProvider
	Ingest    *service.IngestService
	Retrieval *service.RetrievalService
	// Chat is nil unless Options.WithChat was set.
	Chat *service.ChatService

	closers []func() error
}

// Options selects which parts Build wires.
type Options struct {
	WithChat bool
}

// Build wires storage, providers and services in dependency order. On error
// everything opened so far is closed again.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*Components, error) {
	c := &Components{}
	ready := false
	defer func() {
		if !ready {
			c.Close()
		}
	}()

	var err error

	c.DB, err = repository.InitDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	c.onClose(func() error { return repository.CloseDB(c.DB) })
	c.Jobs = repository.NewIngestJobRepository(c.DB)

	c.Embedding, err = service.NewEmbeddingProvider(&service.EmbeddingProviderConfig{
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    cfg.Embedding.Timeout,
	})
	if err != nil {
		return nil, err
	}

	c.Vectors, err = repository.NewVectorRepository(ctx, cfg.VectorStore, c.Embedding.GetDimensions(), c.Embedding.GetModel())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	c.onClose(c.Vectors.Close)
	if err = c.Vectors.EnsureIndex(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure vector index: %w", err)
	}

	c.Source, err = newSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.onClose(c.Source.Close)

	c.Ingest, err = service.NewIngestService(c.Source, c.Embedding, c.Vectors, c.Jobs, &service.IngestConfig{
		Policy:       domain.IngestPolicy(cfg.Ingest.Policy),
		ChunkSize:    cfg.Ingest.ChunkSize,
		ChunkOverlap: cfg.Ingest.ChunkOverlap,
		MaxRetries:   cfg.Ingest.MaxRetries,
		RetryBackoff: cfg.Ingest.RetryBackoff,
	})
	if err != nil {
		return nil, err
	}
	c.Retrieval = service.NewRetrievalService(c.Embedding, c.Vectors, cfg.Retrieval.TopK)

	if opts.WithChat {
		completion, cerr := service.NewCompletionService(&service.CompletionConfig{
			Model:       cfg.Completion.Model,
			APIKey:      cfg.Completion.APIKey,
			BaseURL:     cfg.Completion.BaseURL,
			MaxTokens:   cfg.Completion.MaxTokens,
			Temperature: cfg.Completion.Temperature,
			Timeout:     cfg.Completion.Timeout,
		})
		if cerr != nil {
			return nil, cerr
		}
		c.Chat = service.NewChatService(c.Ingest, c.Retrieval, completion, &service.ChatConfig{
			SystemPrompt:    cfg.Chat.SystemPrompt,
			DefaultVideoURL: cfg.Ingest.VideoURL,
		})
	}

	logger.With(logger.Fields{
		logger.FieldComponent: "bootstrap",
		logger.FieldProvider:  cfg.Embedding.Provider,
	}).Info(ctx, "Components ready: vector_store=%s, transcript=%s, embedding_model=%s, policy=%s",
		cfg.VectorStore.Backend, c.Source.GetSourceID(), c.Embedding.GetModel(), cfg.Ingest.Policy)

	ready = true
	return c, nil
}

// newSource builds the transcript source, wrapped by the S3 archive when enabled.
func newSource(ctx context.Context, cfg *config.Config) (source.Source, error) {
	src, err := source.New(cfg.Transcript)
	if err != nil {
		return nil, err
	}
	if !cfg.Archive.Enabled {
		return src, nil
	}

	archive, err := storage.NewFromConfig(cfg.Archive)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to initialize transcript archive: %w", err)
	}
	if err := archive.EnsureBucket(ctx); err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to ensure archive bucket: %w", err)
	}
	return source.NewArchivedSource(src, archive, cfg.Archive.Prefix), nil
}

func (c *Components) onClose(fn func() error) {
	c.closers = append(c.closers, fn)
}

// Close releases every handle in reverse order of creation.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
