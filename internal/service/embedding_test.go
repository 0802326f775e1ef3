package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/timmy/tubechat/internal/domain"
)

func newEmbeddingServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIEmbeddingOrdersByIndex(t *testing.T) {
	srv := newEmbeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		var req openAIEmbeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if req.Model != "text-embedding-3-small" || len(req.Input) != 2 {
			t.Errorf("unexpected request: %+v", req)
		}
		fmt.Fprint(w, `{"data":[{"index":1,"embedding":[0,1,0]},{"index":0,"embedding":[1,0,0]}]}`)
	})

	p, err := NewEmbeddingProvider(&EmbeddingProviderConfig{
		Provider: "openai", Model: "text-embedding-3-small", APIKey: "sk-test",
		BaseURL: srv.URL, Dimensions: 3,
	})
	if err != nil {
		t.Fatalf("NewEmbeddingProvider: %v", err)
	}

	vectors, err := p.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if vectors[0][0] != 1 || vectors[1][1] != 1 {
		t.Errorf("vectors out of order: %v", vectors)
	}
}

func TestEmbeddingFormatErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"nested", `{"data":[{"index":0,"embedding":[[1,0,0]]}]}`},
		{"non numeric", `{"data":[{"index":0,"embedding":["a","b","c"]}]}`},
		{"wrong length", `{"data":[{"index":0,"embedding":[1,0]}]}`},
		{"null", `{"data":[{"index":0,"embedding":null}]}`},
		{"missing data", `{"data":[]}`},
		{"not json", `<html>oops</html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newEmbeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tt.body)
			})
			p, err := NewEmbeddingProvider(&EmbeddingProviderConfig{
				Provider: "openai", Model: "m", APIKey: "k", BaseURL: srv.URL, Dimensions: 3,
			})
			if err != nil {
				t.Fatal(err)
			}
			if _, err := p.EmbedQuery(context.Background(), "q"); !errors.Is(err, domain.ErrEmbeddingFormat) {
				t.Errorf("err = %v, want ErrEmbeddingFormat", err)
			}
		})
	}
}

func TestEmbeddingUpstreamStatus(t *testing.T) {
	srv := newEmbeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	})
	p, _ := NewEmbeddingProvider(&EmbeddingProviderConfig{
		Provider: "jina", Model: "jina-embeddings-v3", APIKey: "k", BaseURL: srv.URL, Dimensions: 3,
	})

	_, err := p.Embed(context.Background(), []string{"x"})
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
}

func TestJinaEmbeddingTasks(t *testing.T) {
	var tasks []string
	srv := newEmbeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req jinaEmbeddingRequest
		json.NewDecoder(r.Body).Decode(&req)
		tasks = append(tasks, req.Task)
		fmt.Fprint(w, `{"data":[{"index":0,"embedding":[0.5,0.5]}]}`)
	})
	p, _ := NewEmbeddingProvider(&EmbeddingProviderConfig{
		Provider: "jina", Model: "jina-embeddings-v3", APIKey: "k", BaseURL: srv.URL, Dimensions: 2,
	})

	ctx := context.Background()
	if _, err := p.Embed(ctx, []string{"passage"}); err != nil {
		t.Fatal(err)
	}
	if _, err := p.EmbedQuery(ctx, "query"); err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 2 || tasks[0] != "retrieval.passage" || tasks[1] != "retrieval.query" {
		t.Errorf("tasks = %v", tasks)
	}
}

func TestHuggingFaceEmbedding(t *testing.T) {
	srv := newEmbeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sentence-transformers/all-MiniLM-L6-v2/pipeline/feature-extraction" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `[[0.1,0.2],[0.3,0.4]]`)
	})
	p, _ := NewEmbeddingProvider(&EmbeddingProviderConfig{
		Provider: "huggingface", Model: "sentence-transformers/all-MiniLM-L6-v2",
		APIKey: "hf", BaseURL: srv.URL, Dimensions: 2,
	})

	vectors, err := p.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vectors) != 2 || vectors[1][1] != float32(0.4) {
		t.Errorf("vectors = %v", vectors)
	}
}

func TestNewEmbeddingProviderRequiresKey(t *testing.T) {
	_, err := NewEmbeddingProvider(&EmbeddingProviderConfig{Provider: "openai", Dimensions: 3})
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("err = %v, want ErrConfiguration", err)
	}
}
