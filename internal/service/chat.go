package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/timmy/tubechat/internal/domain"
	"github.com/timmy/tubechat/internal/logger"
	"github.com/timmy/tubechat/internal/prompts"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Ingester is the part of IngestService the chat flow depends on.
type Ingester interface {
	Ingest(ctx context.Context, videoURL string) (*IngestResult, error)
}

// Retriever is the part of RetrievalService the chat flow depends on.
type Retriever interface {
	Retrieve(ctx context.Context, query string, opts RetrieveOptions) ([]string, error)
}

// ChatRequest is one chat turn: the full history plus optional ingest and
// retrieval hints.
type ChatRequest struct {
	Messages []domain.Message
	// VideoURL, when set, is ingested before retrieval. Falls back to the
	// configured default video.
	VideoURL string
	// Source restricts retrieval to one video id.
	Source string
}

// ChatConfig holds configuration for the chat service.
type ChatConfig struct {
	SystemPrompt    string
	DefaultVideoURL string
}

// ChatService answers a conversation using retrieved transcript context.
type ChatService struct {
	ingest       Ingester
	retrieval    Retriever
	completion   CompletionProvider
	systemPrompt string
	defaultVideo string
}

// NewChatService creates a new chat service. ingest may be nil when the
// deployment never ingests on the request path.
func NewChatService(ingest Ingester, retrieval Retriever, completion CompletionProvider, cfg *ChatConfig) *ChatService {
	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = prompts.AssistantPersona
	}
	return &ChatService{
		ingest:       ingest,
		retrieval:    retrieval,
		completion:   completion,
		systemPrompt: systemPrompt,
		defaultVideo: cfg.DefaultVideoURL,
	}
}

// Query returns the text of the last message, which must come from the user.
func (req *ChatRequest) Query() (string, error) {
	if len(req.Messages) == 0 {
		return "", fmt.Errorf("%w: messages must not be empty", domain.ErrInvalidRequest)
	}
	for i, m := range req.Messages {
		if !m.Role.Valid() {
			return "", fmt.Errorf("%w: message %d has unknown role %q", domain.ErrInvalidRequest, i, m.Role)
		}
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != domain.RoleUser {
		return "", fmt.Errorf("%w: last message must have role user, got %q", domain.ErrInvalidRequest, last.Role)
	}
	if strings.TrimSpace(last.Content) == "" {
		return "", fmt.Errorf("%w: last message is empty", domain.ErrInvalidRequest)
	}
	return last.Content, nil
}

func enterStage(ctx context.Context, stage domain.ChatStage) context.Context {
	ctx = logger.SetStage(ctx, string(stage))
	logger.CtxDebug(ctx, "Chat stage %s", stage)
	trace.SpanFromContext(ctx).AddEvent(string(stage))
	return ctx
}

func failStage(ctx context.Context, span trace.Span, err error) error {
	ctx = logger.SetStage(ctx, string(domain.StageFailed))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	logger.With(logger.Fields{logger.FieldErrorKind: domain.ErrorKind(err)}).Error(ctx, "Chat request failed: %v", err)
	return err
}

// prepare runs every stage up to and including augmentation and returns the prompt.
func (s *ChatService) prepare(ctx context.Context, req *ChatRequest) (string, error) {
	ctx = enterStage(ctx, domain.StageReceived)
	query, err := req.Query()
	if err != nil {
		return "", err
	}

	videoURL := req.VideoURL
	if videoURL == "" {
		videoURL = s.defaultVideo
	}
	if videoURL != "" && s.ingest != nil {
		ctx = enterStage(ctx, domain.StageIngesting)
		if _, err := s.ingest.Ingest(ctx, videoURL); err != nil {
			return "", err
		}
	}

	ctx = enterStage(ctx, domain.StageRetrieving)
	chunks, err := s.retrieval.Retrieve(ctx, query, RetrieveOptions{Source: req.Source})
	if err != nil {
		return "", err
	}

	enterStage(ctx, domain.StageAugmenting)
	return Augment(chunks, query), nil
}

// Reply produces the whole assistant reply.
func (s *ChatService) Reply(ctx context.Context, req *ChatRequest) (string, error) {
	ctx, span := tracer.Start(ctx, "chat.reply", trace.WithAttributes(attribute.Int("chat.messages", len(req.Messages))))
	defer span.End()
	start := time.Now()

	prompt, err := s.prepare(ctx, req)
	if err != nil {
		return "", failStage(ctx, span, err)
	}

	genCtx := enterStage(ctx, domain.StageGenerating)
	reply, err := s.completion.Complete(genCtx, s.systemPrompt, prompt)
	if err != nil {
		return "", failStage(ctx, span, err)
	}

	respCtx := enterStage(ctx, domain.StageResponding)
	logger.With(logger.Fields{
		logger.FieldSize:       len(reply),
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Info(respCtx, "Chat reply generated")
	return reply, nil
}

// ReplyStream produces the reply as a stream of fragments. Errors raised
// before generation starts are returned directly. Failures after that are
// delivered as the final fragment.
func (s *ChatService) ReplyStream(ctx context.Context, req *ChatRequest) (<-chan StreamFragment, error) {
	ctx, span := tracer.Start(ctx, "chat.stream", trace.WithAttributes(attribute.Int("chat.messages", len(req.Messages))))
	start := time.Now()

	prompt, err := s.prepare(ctx, req)
	if err != nil {
		defer span.End()
		return nil, failStage(ctx, span, err)
	}

	genCtx := enterStage(ctx, domain.StageGenerating)
	upstream, err := s.completion.Stream(genCtx, s.systemPrompt, prompt)
	if err != nil {
		defer span.End()
		return nil, failStage(ctx, span, err)
	}

	streamCtx := enterStage(ctx, domain.StageStreaming)
	out := make(chan StreamFragment)
	go func() {
		defer span.End()
		defer close(out)

		var size, fragments int
		failed := false
		for f := range upstream {
			if f.Err != nil {
				failed = true
				failStage(streamCtx, span, f.Err)
			} else {
				size += len(f.Text)
				fragments++
			}
			select {
			case out <- f:
			case <-ctx.Done():
				// Drain so the producer can observe cancellation and exit.
				for range upstream {
				}
				return
			}
		}
		if failed {
			return
		}

		logger.With(logger.Fields{
			logger.FieldSize:       size,
			logger.FieldCount:      fragments,
			logger.FieldDurationMs: time.Since(start).Milliseconds(),
		}).Info(streamCtx, "Chat stream finished")
	}()

	return out, nil
}
