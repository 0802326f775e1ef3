package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/timmy/tubechat/internal/domain"
	"github.com/timmy/tubechat/internal/logger"
)

const (
	wsWriteWait = 10 * time.Second
	wsReadWait  = 60 * time.Second
)

// WebSocket frame types sent by the server.
const (
	FrameDelta = "delta"
	FrameDone  = "done"
	FrameError = "error"
)

// Frame is one server message on the chat WebSocket.
type Frame struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ChatSocket handles GET /api/v1/chat/ws. The client sends one ChatRequest
// and receives delta frames followed by a done or error frame.
type ChatSocket struct {
	chat     ChatReplier
	upgrader websocket.Upgrader
}

// NewChatSocket creates the WebSocket chat handler. checkOrigin may be nil to
// accept every origin.
func NewChatSocket(chat ChatReplier, checkOrigin func(origin string) bool) *ChatSocket {
	return &ChatSocket{
		chat: chat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if checkOrigin == nil {
					return true
				}
				return checkOrigin(r.Header.Get("Origin"))
			},
		},
	}
}

// Serve upgrades the connection and runs one chat turn over it.
func (h *ChatSocket) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		logger.CtxWarn(c.Request.Context(), "WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(wsReadWait))
	var req ChatRequest
	if err := conn.ReadJSON(&req); err != nil {
		h.writeFrame(ctx, conn, Frame{Type: FrameError, Error: fmt.Sprintf("%v: %v", domain.ErrInvalidRequest, err)})
		return
	}
	conn.SetReadDeadline(time.Time{})

	// A read failure means the peer closed or vanished; stop generating.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	fragments, err := h.chat.ReplyStream(ctx, req.toService())
	if err != nil {
		logger.With(logger.Fields{logger.FieldErrorKind: domain.ErrorKind(err)}).Error(ctx, "WebSocket chat failed: %v", err)
		h.writeFrame(ctx, conn, Frame{Type: FrameError, Error: publicMessage(err)})
		return
	}

	for f := range fragments {
		if f.Err != nil {
			logger.With(logger.Fields{logger.FieldErrorKind: domain.ErrorKind(f.Err)}).Error(ctx, "WebSocket chat stream aborted: %v", f.Err)
			h.writeFrame(ctx, conn, Frame{Type: FrameError, Error: publicMessage(f.Err)})
			return
		}
		if err := h.writeFrame(ctx, conn, Frame{Type: FrameDelta, Content: f.Text}); err != nil {
			cancel()
			return
		}
	}

	if ctx.Err() != nil {
		return
	}
	if err := h.writeFrame(ctx, conn, Frame{Type: FrameDone}); err != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *ChatSocket) writeFrame(ctx context.Context, conn *websocket.Conn, f Frame) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(f); err != nil {
		logger.CtxWarn(ctx, "WebSocket write failed: %v", err)
		return err
	}
	return nil
}
