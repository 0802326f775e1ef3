package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/timmy/tubechat/internal/domain"
	"github.com/timmy/tubechat/internal/logger"
	"github.com/timmy/tubechat/internal/prompts"
)

func userTurn(text string) []domain.Message {
	return []domain.Message{{Role: domain.RoleUser, Content: text}}
}

func newTestChat(t *testing.T, completion *scriptedCompletion, defaultVideo string) (*ChatService, *memoryVectors, *hashEmbedding) {
	t.Helper()
	vectors := newMemoryVectors()
	emb := &hashEmbedding{}
	src := &fakeSource{transcripts: map[string]string{"dQw4w9WgXcQ": "never gonna give you up never gonna let you down"}}
	ingest, err := NewIngestService(src, emb, vectors, nil, &IngestConfig{ChunkSize: 20, ChunkOverlap: 5})
	if err != nil {
		t.Fatal(err)
	}
	retrieval := NewRetrievalService(emb, vectors, 3)
	return NewChatService(ingest, retrieval, completion, &ChatConfig{DefaultVideoURL: defaultVideo}), vectors, emb
}

func TestChatReplyEmptyIndex(t *testing.T) {
	completion := &scriptedCompletion{fragments: []string{"I don't know."}}
	chat, _, _ := newTestChat(t, completion, "")

	reply, err := chat.Reply(context.Background(), &ChatRequest{Messages: userTurn("who sang it?")})
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if reply != "I don't know." {
		t.Errorf("reply = %q", reply)
	}
	if completion.lastPrompt != "\n---------\nquestion:\nwho sang it?" {
		t.Errorf("prompt = %q", completion.lastPrompt)
	}
	if completion.lastSystem != prompts.AssistantPersona {
		t.Errorf("system prompt not applied")
	}
}

func TestChatReplyIngestsAndRetrieves(t *testing.T) {
	completion := &scriptedCompletion{fragments: []string{"ok"}}
	chat, vectors, _ := newTestChat(t, completion, testVideo)

	if _, err := chat.Reply(context.Background(), &ChatRequest{Messages: userTurn("what is never given?")}); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if n := vectors.countSource("dQw4w9WgXcQ"); n == 0 {
		t.Fatal("default video was not ingested")
	}

	parts := strings.SplitN(completion.lastPrompt, "\n---------\n", 2)
	if len(parts) != 2 || parts[1] != "question:\nwhat is never given?" {
		t.Fatalf("prompt = %q", completion.lastPrompt)
	}
	if got := strings.Count(parts[0], "\n") + 1; got != 3 {
		t.Errorf("context has %d chunks, want top 3", got)
	}
}

func TestChatReplyEmbeddingFormatError(t *testing.T) {
	completion := &scriptedCompletion{fragments: []string{"never"}}
	chat, _, emb := newTestChat(t, completion, "")
	emb.err = domain.ErrEmbeddingFormat

	_, err := chat.Reply(context.Background(), &ChatRequest{Messages: userTurn("q")})
	if !errors.Is(err, domain.ErrEmbeddingFormat) {
		t.Fatalf("err = %v, want ErrEmbeddingFormat", err)
	}
	if completion.lastPrompt != "" {
		t.Errorf("completion must not run after a failed retrieval")
	}
}

func TestChatRequestValidation(t *testing.T) {
	tests := []struct {
		name     string
		messages []domain.Message
	}{
		{"empty", nil},
		{"last is assistant", []domain.Message{
			{Role: domain.RoleUser, Content: "hi"},
			{Role: domain.RoleAssistant, Content: "hello"},
		}},
		{"unknown role", []domain.Message{{Role: "robot", Content: "x"}, {Role: domain.RoleUser, Content: "q"}}},
		{"blank query", userTurn("   ")},
	}

	chat, _, _ := newTestChat(t, &scriptedCompletion{}, "")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := chat.Reply(context.Background(), &ChatRequest{Messages: tt.messages})
			if !errors.Is(err, domain.ErrInvalidRequest) {
				t.Errorf("err = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestChatReplyUsesLastMessageOnly(t *testing.T) {
	completion := &scriptedCompletion{fragments: []string{"x"}}
	chat, _, _ := newTestChat(t, completion, "")

	messages := []domain.Message{
		{Role: domain.RoleUser, Content: "first question"},
		{Role: domain.RoleAssistant, Content: "first answer"},
		{Role: domain.RoleUser, Content: "second question"},
	}
	if _, err := chat.Reply(context.Background(), &ChatRequest{Messages: messages}); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(completion.lastPrompt, "question:\nsecond question") || strings.Contains(completion.lastPrompt, "first") {
		t.Errorf("prompt = %q", completion.lastPrompt)
	}
}

func TestChatReplyStream(t *testing.T) {
	completion := &scriptedCompletion{fragments: []string{"Hel", "lo"}}
	chat, _, _ := newTestChat(t, completion, "")

	ch, err := chat.ReplyStream(context.Background(), &ChatRequest{Messages: userTurn("q")})
	if err != nil {
		t.Fatalf("ReplyStream: %v", err)
	}
	var sb strings.Builder
	for f := range ch {
		if f.Err != nil {
			t.Fatalf("fragment error: %v", f.Err)
		}
		sb.WriteString(f.Text)
	}
	if sb.String() != "Hello" {
		t.Errorf("stream = %q", sb.String())
	}
}

func TestChatReplyStreamFailures(t *testing.T) {
	upstream := domain.Upstream("completion", errors.New("reset"))

	t.Run("before first fragment", func(t *testing.T) {
		chat, _, _ := newTestChat(t, &scriptedCompletion{err: upstream}, "")
		if _, err := chat.ReplyStream(context.Background(), &ChatRequest{Messages: userTurn("q")}); !errors.Is(err, domain.ErrUpstream) {
			t.Fatalf("err = %v, want ErrUpstream", err)
		}
	})

	t.Run("mid stream", func(t *testing.T) {
		chat, _, _ := newTestChat(t, &scriptedCompletion{fragments: []string{"par"}, failAfter: upstream}, "")
		ch, err := chat.ReplyStream(context.Background(), &ChatRequest{Messages: userTurn("q")})
		if err != nil {
			t.Fatal(err)
		}
		var last StreamFragment
		var text string
		for f := range ch {
			text += f.Text
			last = f
		}
		if text != "par" || !errors.Is(last.Err, domain.ErrUpstream) {
			t.Errorf("text = %q, last = %+v", text, last)
		}
	})

	t.Run("cancelled consumer", func(t *testing.T) {
		chat, _, _ := newTestChat(t, &scriptedCompletion{fragments: []string{"a", "b", "c"}}, "")
		ctx, cancel := context.WithCancel(context.Background())
		ch, err := chat.ReplyStream(ctx, &ChatRequest{Messages: userTurn("q")})
		if err != nil {
			t.Fatal(err)
		}
		<-ch
		cancel()
		for range ch {
		}
	})
}

func TestChatReplyStreamLogsOutcomeOnce(t *testing.T) {
	upstream := domain.Upstream("completion", errors.New("reset"))
	tests := []struct {
		name         string
		completion   *scriptedCompletion
		wantFinished bool
		wantFailed   bool
	}{
		{"clean", &scriptedCompletion{fragments: []string{"a", "b"}}, true, false},
		{"mid stream failure", &scriptedCompletion{fragments: []string{"a"}, failAfter: upstream}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := logger.New(&logger.Config{Level: "info", Format: "json", Output: &buf, ServiceName: "test"})
			ctx := log.WithContext(context.Background())

			chat, _, _ := newTestChat(t, tt.completion, "")
			ch, err := chat.ReplyStream(ctx, &ChatRequest{Messages: userTurn("q")})
			if err != nil {
				t.Fatal(err)
			}
			for range ch {
			}

			out := buf.String()
			if got := strings.Contains(out, "Chat stream finished"); got != tt.wantFinished {
				t.Errorf("finished logged = %v, want %v\n%s", got, tt.wantFinished, out)
			}
			if got := strings.Contains(out, "Chat request failed"); got != tt.wantFailed {
				t.Errorf("failure logged = %v, want %v\n%s", got, tt.wantFailed, out)
			}
		})
	}
}
