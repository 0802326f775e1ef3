package service

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/tubechat/internal/domain"
)

// StreamFragment is one piece of a streamed completion. A fragment with a
// non-nil Err is always the last one sent.
type StreamFragment struct {
	Text string
	Err  error
}

// CompletionProvider generates the assistant reply for an augmented prompt.
type CompletionProvider interface {
	// Complete returns the whole reply.
	Complete(ctx context.Context, system, prompt string) (string, error)
	// Stream returns a channel of reply fragments that is closed when the
	// reply ends, fails or ctx is cancelled.
	Stream(ctx context.Context, system, prompt string) (<-chan StreamFragment, error)
	GetModel() string
}

// CompletionConfig holds configuration for the chat completion client.
type CompletionConfig struct {
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
}

// OpenAICompletion talks to any OpenAI-compatible /chat/completions endpoint.
type OpenAICompletion struct {
	client      *resty.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewCompletionService creates a new OpenAI-compatible completion client.
func NewCompletionService(cfg *CompletionConfig) (*OpenAICompletion, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: completion API key is not set", domain.ErrConfiguration)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(timeout).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json")

	return &OpenAICompletion{
		client:      client,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// GetModel returns the model name being used.
func (s *OpenAICompletion) GetModel() string {
	return s.model
}

type llmRequest struct {
	Model       string       `json:"model"`
	Messages    []llmMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature float32      `json:"temperature"`
	Stream      bool         `json:"stream,omitempty"`
}

type llmMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type llmError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type llmResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *llmError `json:"error,omitempty"`
}

type streamDelta struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *llmError `json:"error,omitempty"`
}

func (s *OpenAICompletion) request(system, prompt string, stream bool) llmRequest {
	var messages []llmMessage
	if system != "" {
		messages = append(messages, llmMessage{Role: string(domain.RoleSystem), Content: system})
	}
	messages = append(messages, llmMessage{Role: string(domain.RoleUser), Content: prompt})

	return llmRequest{
		Model:       s.model,
		Messages:    messages,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
		Stream:      stream,
	}
}

// Complete sends a non-streaming completion request. The body is decoded as
// JSON whatever Content-Type the upstream reports.
func (s *OpenAICompletion) Complete(ctx context.Context, system, prompt string) (string, error) {
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(s.request(system, prompt, false)).
		Post("/chat/completions")
	if err != nil {
		return "", domain.Upstream("completion", err)
	}

	var resp llmResponse
	decodeErr := json.Unmarshal(httpResp.Body(), &resp)
	if httpResp.IsError() {
		if decodeErr == nil && resp.Error != nil && resp.Error.Message != "" {
			return "", domain.Upstream("completion", fmt.Errorf("status %d: %s", httpResp.StatusCode(), resp.Error.Message))
		}
		return "", domain.Upstream("completion", fmt.Errorf("status %d", httpResp.StatusCode()))
	}
	if decodeErr != nil {
		return "", domain.Upstream("completion", fmt.Errorf("decode response: %w", decodeErr))
	}
	if len(resp.Choices) == 0 {
		return "", domain.Upstream("completion", errors.New("response has no choices"))
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream opens a streaming completion. Errors before the first byte of the
// upstream body are returned directly; later failures arrive as the final fragment.
func (s *OpenAICompletion) Stream(ctx context.Context, system, prompt string) (<-chan StreamFragment, error) {
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Accept", "text/event-stream").
		SetBody(s.request(system, prompt, true)).
		SetDoNotParseResponse(true).
		Post("/chat/completions")
	if err != nil {
		return nil, domain.Upstream("completion", err)
	}

	body := httpResp.RawBody()
	if httpResp.IsError() {
		defer body.Close()
		detail, _ := io.ReadAll(io.LimitReader(body, 512))
		return nil, domain.Upstream("completion", fmt.Errorf("status %d: %s", httpResp.StatusCode(), strings.TrimSpace(string(detail))))
	}

	out := make(chan StreamFragment)
	go func() {
		defer close(out)
		defer body.Close()

		// Closing the body unblocks the scanner when the caller goes away.
		stop := context.AfterFunc(ctx, func() { body.Close() })
		defer stop()

		send := func(f StreamFragment) bool {
			select {
			case out <- f:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if err := readSSE(body, func(text string) bool { return send(StreamFragment{Text: text}) }); err != nil {
			if ctx.Err() != nil {
				return
			}
			send(StreamFragment{Err: domain.Upstream("completion", err)})
		}
	}()

	return out, nil
}

// readSSE parses an OpenAI-style event stream from r and calls emit with
// every non-empty content delta. It returns nil once [DONE] is seen or the
// stream ends cleanly, and stops early when emit returns false.
func readSSE(r io.Reader, emit func(string) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return nil
		}

		var delta streamDelta
		if err := json.Unmarshal([]byte(data), &delta); err != nil {
			return fmt.Errorf("malformed stream chunk: %w", err)
		}
		if delta.Error != nil {
			return fmt.Errorf("stream error: %s", delta.Error.Message)
		}
		if len(delta.Choices) == 0 {
			continue
		}

		if text := delta.Choices[0].Delta.Content; text != "" {
			if !emit(text) {
				return nil
			}
		}
	}
	return scanner.Err()
}
