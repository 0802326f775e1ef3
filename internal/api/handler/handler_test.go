package handler

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/timmy/tubechat/internal/domain"
	"github.com/timmy/tubechat/internal/logger"
	"github.com/timmy/tubechat/internal/service"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
	logger.SetDefaultLogger(logger.New(&logger.Config{Level: "error", Format: "text", Output: io.Discard}))
}

// scriptedReplier replays canned replies and records the last request.
type scriptedReplier struct {
	reply     string
	replyErr  error
	fragments []service.StreamFragment
	streamErr error

	got *service.ChatRequest
}

func (r *scriptedReplier) Reply(_ context.Context, req *service.ChatRequest) (string, error) {
	r.got = req
	if r.replyErr != nil {
		return "", r.replyErr
	}
	return r.reply, nil
}

func (r *scriptedReplier) ReplyStream(ctx context.Context, req *service.ChatRequest) (<-chan service.StreamFragment, error) {
	r.got = req
	if r.streamErr != nil {
		return nil, r.streamErr
	}
	out := make(chan service.StreamFragment)
	go func() {
		defer close(out)
		for _, f := range r.fragments {
			select {
			case out <- f:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

type fakeIngester struct {
	result *service.IngestResult
	err    error
	urls   []string
}

func (f *fakeIngester) Ingest(_ context.Context, videoURL string) (*service.IngestResult, error) {
	f.urls = append(f.urls, videoURL)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeJobs struct {
	jobs []domain.IngestJob
}

func (f *fakeJobs) ListRecent(_ context.Context, limit int) ([]domain.IngestJob, error) {
	if limit > len(f.jobs) {
		limit = len(f.jobs)
	}
	return f.jobs[:limit], nil
}

func (f *fakeJobs) ListByVideo(_ context.Context, videoID string) ([]domain.IngestJob, error) {
	var out []domain.IngestJob
	for _, j := range f.jobs {
		if j.VideoID == videoID {
			out = append(out, j)
		}
	}
	return out, nil
}

func (f *fakeJobs) GetByID(_ context.Context, id string) (*domain.IngestJob, error) {
	for i := range f.jobs {
		if f.jobs[i].ID == id {
			return &f.jobs[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func newChatServer(t *testing.T, replier ChatReplier, streamDefault bool) *httptest.Server {
	t.Helper()
	r := gin.New()
	h := NewChatHandler(replier, streamDefault)
	r.POST("/api/v1/chat", h.Chat)
	r.GET("/api/v1/chat/ws", NewChatSocket(replier, nil).Serve)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}
