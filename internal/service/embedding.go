package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/tubechat/internal/domain"
)

const (
	openAIEmbeddingBaseURL      = "https://api.openai.com/v1"
	jinaEmbeddingBaseURL        = "https://api.jina.ai/v1"
	huggingFaceEmbeddingBaseURL = "https://router.huggingface.co/hf-inference/models"
)

// EmbeddingProvider turns text into fixed-length vectors.
type EmbeddingProvider interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery returns the vector for a retrieval query.
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
	GetModel() string
	GetDimensions() int
}

// EmbeddingProviderConfig holds configuration for creating an embedding provider.
type EmbeddingProviderConfig struct {
	Provider   string // openai, jina, huggingface
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
	Timeout    time.Duration
}

// NewEmbeddingProvider creates the provider named by cfg.Provider.
func NewEmbeddingProvider(cfg *EmbeddingProviderConfig) (EmbeddingProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: embedding API key is not set", domain.ErrConfiguration)
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: embedding dimensions must be positive", domain.ErrConfiguration)
	}

	switch cfg.Provider {
	case "openai", "":
		return &openAIEmbedding{embeddingClient: newEmbeddingClient(cfg, openAIEmbeddingBaseURL)}, nil
	case "jina":
		return &jinaEmbedding{embeddingClient: newEmbeddingClient(cfg, jinaEmbeddingBaseURL)}, nil
	case "huggingface":
		return &huggingFaceEmbedding{embeddingClient: newEmbeddingClient(cfg, huggingFaceEmbeddingBaseURL)}, nil
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", domain.ErrConfiguration, cfg.Provider)
	}
}

type embeddingClient struct {
	client     *resty.Client
	model      string
	dimensions int
}

func newEmbeddingClient(cfg *EmbeddingProviderConfig, defaultBaseURL string) embeddingClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(timeout).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json")

	return embeddingClient{client: client, model: cfg.Model, dimensions: cfg.Dimensions}
}

func (c *embeddingClient) GetModel() string   { return c.model }
func (c *embeddingClient) GetDimensions() int { return c.dimensions }

// post sends body to path and returns the raw response payload.
func (c *embeddingClient) post(ctx context.Context, path string, body interface{}) ([]byte, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(path)
	if err != nil {
		return nil, domain.Upstream("embedding", err)
	}
	if resp.IsError() {
		return nil, domain.Upstream("embedding", fmt.Errorf("status %d: %s", resp.StatusCode(), truncate(resp.String(), 200)))
	}
	return resp.Body(), nil
}

// decodeVector accepts only a flat JSON array of numbers of the given length.
func decodeVector(raw json.RawMessage, dimensions int) ([]float32, error) {
	var values []float64
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("%w: not a flat numeric array: %v", domain.ErrEmbeddingFormat, err)
	}
	if len(values) != dimensions {
		return nil, fmt.Errorf("%w: got %d dimensions, want %d", domain.ErrEmbeddingFormat, len(values), dimensions)
	}
	vec := make([]float32, len(values))
	for i, v := range values {
		vec[i] = float32(v)
	}
	return vec, nil
}

// indexedEmbedding is the OpenAI-compatible data item shared by OpenAI and Jina.
type indexedEmbedding struct {
	Embedding json.RawMessage `json:"embedding"`
	Index     int             `json:"index"`
}

type embeddingListResponse struct {
	Data []indexedEmbedding `json:"data"`
}

func (c *embeddingClient) decodeList(body []byte, n int) ([][]float32, error) {
	var resp embeddingListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingFormat, err)
	}
	if len(resp.Data) != n {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", domain.ErrEmbeddingFormat, len(resp.Data), n)
	}

	vectors := make([][]float32, n)
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= n || vectors[item.Index] != nil {
			return nil, fmt.Errorf("%w: bad embedding index %d", domain.ErrEmbeddingFormat, item.Index)
		}
		vec, err := decodeVector(item.Embedding, c.dimensions)
		if err != nil {
			return nil, err
		}
		vectors[item.Index] = vec
	}
	return vectors, nil
}

type openAIEmbedding struct {
	embeddingClient
}

type openAIEmbeddingRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	Dimensions     int      `json:"dimensions,omitempty"`
	EncodingFormat string   `json:"encoding_format"`
}

func (p *openAIEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	body, err := p.post(ctx, "/embeddings", openAIEmbeddingRequest{
		Model:          p.model,
		Input:          texts,
		Dimensions:     p.dimensions,
		EncodingFormat: "float",
	})
	if err != nil {
		return nil, err
	}
	return p.decodeList(body, len(texts))
}

func (p *openAIEmbedding) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := p.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type jinaEmbedding struct {
	embeddingClient
}

type jinaEmbeddingRequest struct {
	Model         string   `json:"model"`
	Task          string   `json:"task,omitempty"`
	Dimensions    int      `json:"dimensions,omitempty"`
	Input         []string `json:"input"`
	EmbeddingType string   `json:"embedding_type,omitempty"`
}

func (p *jinaEmbedding) embed(ctx context.Context, task string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	body, err := p.post(ctx, "/embeddings", jinaEmbeddingRequest{
		Model:         p.model,
		Task:          task,
		Dimensions:    p.dimensions,
		Input:         texts,
		EmbeddingType: "float",
	})
	if err != nil {
		return nil, err
	}
	return p.decodeList(body, len(texts))
}

func (p *jinaEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return p.embed(ctx, "retrieval.passage", texts)
}

func (p *jinaEmbedding) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := p.embed(ctx, "retrieval.query", []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// huggingFaceEmbedding calls the feature-extraction pipeline, which answers
// with a bare JSON array of vectors.
type huggingFaceEmbedding struct {
	embeddingClient
}

type huggingFaceRequest struct {
	Inputs []string `json:"inputs"`
}

func (p *huggingFaceEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	body, err := p.post(ctx, "/"+strings.Trim(p.model, "/")+"/pipeline/feature-extraction", huggingFaceRequest{Inputs: texts})
	if err != nil {
		return nil, err
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingFormat, err)
	}
	if len(items) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", domain.ErrEmbeddingFormat, len(items), len(texts))
	}

	vectors := make([][]float32, len(items))
	for i, raw := range items {
		if vectors[i], err = decodeVector(raw, p.dimensions); err != nil {
			return nil, err
		}
	}
	return vectors, nil
}

func (p *huggingFaceEmbedding) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := p.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
