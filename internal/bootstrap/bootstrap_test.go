package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/timmy/tubechat/internal/config"
	"github.com/timmy/tubechat/internal/domain"
	"github.com/timmy/tubechat/internal/logger"
	"github.com/timmy/tubechat/internal/repository"
)

func localConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{}
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = filepath.Join(dir, "jobs.db")
	cfg.Database.MaxOpenConns = 1
	cfg.Database.AutoMigrate = true

	cfg.VectorStore.Backend = "bolt"
	cfg.VectorStore.Namespace = "chat"
	cfg.VectorStore.Bolt.Path = filepath.Join(dir, "vectors.db")

	cfg.Embedding.Provider = "openai"
	cfg.Embedding.Model = "text-embedding-3-small"
	cfg.Embedding.APIKey = "test-key"
	cfg.Embedding.Dimensions = 8

	cfg.Completion.Model = "gpt-4o-mini"
	cfg.Completion.APIKey = "test-key"
	cfg.Completion.BaseURL = "http://127.0.0.1:1"

	cfg.Transcript.Source = "youtube"
	cfg.Ingest.Policy = "append"
	cfg.Ingest.ChunkSize = 2000
	cfg.Ingest.ChunkOverlap = 100
	cfg.Retrieval.TopK = 3
	return cfg
}

func TestBuildLocalStack(t *testing.T) {
	cfg := localConfig(t)
	var buf bytes.Buffer
	log := logger.New(&logger.Config{Level: "info", Format: "json", Output: &buf, ServiceName: "test"})

	c, err := Build(log.WithContext(context.Background()), cfg, Options{WithChat: true})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(buf.String(), `"provider":"openai"`) {
		t.Errorf("ready log lacks the embedding provider:\n%s", buf.String())
	}
	if c.Chat == nil || c.Ingest == nil || c.Retrieval == nil || c.Jobs == nil {
		t.Fatalf("components not wired: %+v", c)
	}
	if got := c.Source.GetSourceID(); got != "youtube" {
		t.Fatalf("source = %q, want youtube", got)
	}

	// An empty index answers with no context rather than an error.
	matches, err := c.Vectors.Query(context.Background(), make([]float32, 8), repository.QueryOptions{TopK: 3})
	if err != nil || len(matches) != 0 {
		t.Fatalf("Query on empty index = %v, %v", matches, err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestBuildReleasesHandlesOnFailure(t *testing.T) {
	cfg := localConfig(t)
	cfg.Completion.APIKey = ""

	// The bolt file is locked while open, so a second build against the same
	// path only succeeds if the failed one closed it.
	if _, err := Build(context.Background(), cfg, Options{WithChat: true}); err == nil {
		t.Fatal("Build without a completion key succeeded")
	}
	c, err := Build(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("Build after failure: %v", err)
	}
	c.Close()
}

func TestBuildWithoutChat(t *testing.T) {
	cfg := localConfig(t)
	cfg.Completion.APIKey = ""

	c, err := Build(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer c.Close()
	if c.Chat != nil {
		t.Fatal("chat wired without WithChat")
	}
}

func TestBuildFailsFastOnConfiguration(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown backend", func(c *config.Config) { c.VectorStore.Backend = "faiss" }},
		{"missing embedding key", func(c *config.Config) { c.Embedding.APIKey = "" }},
		{"unknown transcript source", func(c *config.Config) { c.Transcript.Source = "vimeo" }},
		{"unknown policy", func(c *config.Config) { c.Ingest.Policy = "dedupe" }},
		{"missing completion key", func(c *config.Config) { c.Completion.APIKey = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := localConfig(t)
			tt.mutate(cfg)

			_, err := Build(context.Background(), cfg, Options{WithChat: true})
			if !errors.Is(err, domain.ErrConfiguration) {
				t.Fatalf("Build err = %v, want ErrConfiguration", err)
			}
		})
	}
}
