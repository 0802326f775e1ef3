package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timmy/tubechat/internal/domain"
	"github.com/timmy/tubechat/internal/logger"
	"github.com/timmy/tubechat/internal/service"
)

// StreamErrorTrailer is the HTTP trailer that reports a failure after the
// streamed body has started.
const StreamErrorTrailer = "X-Stream-Error"

// ChatReplier is the part of ChatService the handlers depend on.
type ChatReplier interface {
	Reply(ctx context.Context, req *service.ChatRequest) (string, error)
	ReplyStream(ctx context.Context, req *service.ChatRequest) (<-chan service.StreamFragment, error)
}

// ChatRequest is the body of POST /api/v1/chat and the first WebSocket frame.
type ChatRequest struct {
	Messages []domain.Message `json:"messages"`
	VideoURL string           `json:"video_url,omitempty"`
	Source   string           `json:"source,omitempty"`
	// Stream overrides the server default when set.
	Stream *bool `json:"stream,omitempty"`
}

func (r *ChatRequest) toService() *service.ChatRequest {
	return &service.ChatRequest{
		Messages: r.Messages,
		VideoURL: r.VideoURL,
		Source:   r.Source,
	}
}

// ChatResponse is the buffered reply body.
type ChatResponse struct {
	Role    domain.Role `json:"role"`
	Content string      `json:"content"`
}

// ChatHandler handles the chat endpoints.
type ChatHandler struct {
	chat          ChatReplier
	streamDefault bool
}

// NewChatHandler creates a new chat handler.
// Parameters:
//   - chat: chat service instance.
//   - streamDefault: whether replies stream when the request does not say.
//
// Returns:
//   - *ChatHandler: initialized handler.
func NewChatHandler(chat ChatReplier, streamDefault bool) *ChatHandler {
	return &ChatHandler{
		chat:          chat,
		streamDefault: streamDefault,
	}
}

// Chat handles POST /api/v1/chat.
// Parameters:
//   - c: Gin request context.
//
// Returns: none (writes a JSON body or a streamed text body).
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err))
		return
	}

	stream := h.streamDefault
	if req.Stream != nil {
		stream = *req.Stream
	}

	if stream {
		h.stream(c, req.toService())
		return
	}

	reply, err := h.chat.Reply(c.Request.Context(), req.toService())
	if err != nil {
		respondError(c, errorStatus(err), err)
		return
	}

	c.JSON(http.StatusOK, ChatResponse{
		Role:    domain.RoleAssistant,
		Content: reply,
	})
}

// stream writes fragments as they arrive. Headers are committed with the
// first fragment, so a failure before that still gets a JSON error response.
func (h *ChatHandler) stream(c *gin.Context, req *service.ChatRequest) {
	ctx := c.Request.Context()

	fragments, err := h.chat.ReplyStream(ctx, req)
	if err != nil {
		respondError(c, errorStatus(err), err)
		return
	}

	committed := false
	commit := func() {
		header := c.Writer.Header()
		header.Set("Content-Type", "text/plain; charset=utf-8")
		header.Set("Cache-Control", "no-cache")
		header.Set("X-Content-Type-Options", "nosniff")
		header.Set("Trailer", StreamErrorTrailer)
		c.Status(http.StatusOK)
		c.Writer.WriteHeaderNow()
		committed = true
	}

	var written int
	for f := range fragments {
		if f.Err != nil {
			if !committed {
				respondError(c, errorStatus(f.Err), f.Err)
				return
			}
			c.Writer.Header().Set(StreamErrorTrailer, trailerValue(f.Err))
			logger.With(logger.Fields{
				logger.FieldErrorKind: domain.ErrorKind(f.Err),
				logger.FieldSize:      written,
			}).Error(ctx, "Chat stream aborted: %v", f.Err)
			return
		}
		if !committed {
			commit()
		}
		n, err := c.Writer.WriteString(f.Text)
		written += n
		if err != nil {
			// Client is gone; the request context cancels upstream.
			logger.CtxWarn(ctx, "Chat stream write failed: %v", err)
			return
		}
		c.Writer.Flush()
	}

	if !committed {
		commit()
	}
}

// trailerValue makes the public error message safe for a header field.
func trailerValue(err error) string {
	return strings.Join(strings.Fields(publicMessage(err)), " ")
}
