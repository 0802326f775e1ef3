package chatui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/tubechat/internal/domain"
)

// streamErrorTrailer mirrors the trailer the chat endpoint sets when a
// streamed reply fails after it started.
const streamErrorTrailer = "X-Stream-Error"

var (
	// ErrStreamAborted means the server reported a failure mid-stream.
	ErrStreamAborted = errors.New("reply stream aborted")
	// ErrStreamTruncated means the body ended without a clean terminator.
	ErrStreamTruncated = errors.New("reply stream truncated")
)

// Fragment is one piece of a streamed reply. A fragment with Err set is the
// last one on its channel.
type Fragment struct {
	Text string
	Err  error
}

// Client talks to the chat endpoint.
type Client struct {
	http     *resty.Client
	videoURL string
}

// NewClient creates a client for the server at baseURL. videoURL, when set,
// is sent with every request so the server ingests it first.
func NewClient(baseURL, videoURL string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimSuffix(baseURL, "/")).
			SetHeader("Content-Type", "application/json"),
		videoURL: videoURL,
	}
}

type chatBody struct {
	Messages []domain.Message `json:"messages"`
	VideoURL string           `json:"video_url,omitempty"`
	Stream   bool             `json:"stream"`
}

// Stream posts the full history and returns the reply as fragments. Errors
// before the body starts are returned directly; later failures arrive as the
// final fragment. Cancelling ctx closes the connection.
func (c *Client) Stream(ctx context.Context, messages []domain.Message) (<-chan Fragment, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(chatBody{Messages: messages, VideoURL: c.videoURL, Stream: true}).
		SetDoNotParseResponse(true).
		Post("/api/v1/chat")
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}

	body := resp.RawBody()
	if resp.IsError() {
		defer body.Close()
		return nil, decodeError(resp.StatusCode(), body)
	}

	out := make(chan Fragment)
	go func() {
		defer close(out)
		defer body.Close()

		stop := context.AfterFunc(ctx, func() { body.Close() })
		defer stop()

		send := func(f Fragment) bool {
			select {
			case out <- f:
				return true
			case <-ctx.Done():
				return false
			}
		}

		err := readFragments(body, func(text string) bool { return send(Fragment{Text: text}) })
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			send(Fragment{Err: fmt.Errorf("%w: %v", ErrStreamTruncated, err)})
			return
		}
		if msg := resp.RawResponse.Trailer.Get(streamErrorTrailer); msg != "" {
			send(Fragment{Err: fmt.Errorf("%w: %s", ErrStreamAborted, msg)})
		}
	}()

	return out, nil
}

func decodeError(status int, body io.Reader) error {
	raw, _ := io.ReadAll(io.LimitReader(body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		return fmt.Errorf("server returned %d: %s", status, payload.Error)
	}
	return fmt.Errorf("server returned %d: %s", status, strings.TrimSpace(string(raw)))
}

// readFragments reads r to EOF, emitting text cut on rune boundaries so a
// multi-byte character is never split across fragments.
func readFragments(r io.Reader, emit func(string) bool) error {
	buf := make([]byte, 4096)
	var pending []byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			cut := runeBoundary(pending)
			if cut > 0 {
				if !emit(string(pending[:cut])) {
					return nil
				}
				pending = append(pending[:0], pending[cut:]...)
			}
		}
		if err == io.EOF {
			if len(pending) > 0 && !emit(string(pending)) {
				return nil
			}
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// runeBoundary returns the length of the longest prefix of b that does not
// end inside an incomplete UTF-8 sequence.
func runeBoundary(b []byte) int {
	for back := 1; back <= utf8.UTFMax && back <= len(b); back++ {
		i := len(b) - back
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return len(b)
		}
		return i
	}
	return len(b)
}
