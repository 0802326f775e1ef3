// Package browser fetches transcripts by driving a headless Chrome through the
// watch page, for deployments where the plain HTTP scrape is blocked.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/timmy/tubechat/internal/domain"
	"github.com/timmy/tubechat/internal/logger"
	"github.com/timmy/tubechat/internal/source/youtube"
)

const (
	SourceID   = "browser"
	SourceName = "Headless Chrome"

	defaultBaseURL = "https://www.youtube.com"
)

const captionTracksScript = `(() => {
	const r = window.ytInitialPlayerResponse;
	const t = r && r.captions && r.captions.playerCaptionsTracklistRenderer &&
		r.captions.playerCaptionsTracklistRenderer.captionTracks;
	return JSON.stringify(t || []);
})()`

const fetchScript = `fetch(%q, {credentials: "include"}).then(r => r.ok ? r.text() : "")`

// Config configures the browser adapter.
type Config struct {
	BaseURL  string
	Language string
	ExecPath string
	Headless bool
	Timeout  time.Duration
}

// Adapter owns one Chrome allocator for the process and opens a fresh tab per fetch.
type Adapter struct {
	cfg Config

	once        sync.Once
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

// NewAdapter creates a new browser adapter. Chrome is launched lazily on the first fetch.
func NewAdapter(cfg Config) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Adapter{cfg: cfg}
}

// GetSourceID returns the source identifier.
func (a *Adapter) GetSourceID() string {
	return SourceID
}

// GetDisplayName returns the human-readable name.
func (a *Adapter) GetDisplayName() string {
	return SourceName
}

func (a *Adapter) allocator() context.Context {
	a.once.Do(func() {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", a.cfg.Headless),
			chromedp.Flag("mute-audio", true),
			chromedp.Flag("lang", a.cfg.Language),
		)
		if a.cfg.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(a.cfg.ExecPath))
		}
		a.allocCtx, a.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	})
	return a.allocCtx
}

// Fetch loads the watch page, reads the caption tracks from the player
// response and downloads the preferred track from within the page.
func (a *Adapter) Fetch(ctx context.Context, videoID string) (string, error) {
	tabCtx, cancelTab := chromedp.NewContext(a.allocator())
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, a.cfg.Timeout)
	defer cancelTimeout()

	// Propagate caller cancellation into the tab.
	stop := context.AfterFunc(ctx, cancelTimeout)
	defer stop()

	watchURL := strings.TrimSuffix(a.cfg.BaseURL, "/") + "/watch?v=" + videoID

	var tracksJSON string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(watchURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(captionTracksScript, &tracksJSON),
	)
	if err != nil {
		return "", domain.Upstream(SourceID, err)
	}

	var tracks []youtube.CaptionTrack
	if err := json.Unmarshal([]byte(tracksJSON), &tracks); err != nil {
		return "", domain.Upstream(SourceID, fmt.Errorf("decode caption tracks: %w", err))
	}
	if len(tracks) == 0 {
		return "", fmt.Errorf("%w: no caption tracks for %s", domain.ErrTranscriptUnavailable, videoID)
	}
	track := youtube.PickTrack(tracks, a.cfg.Language)

	var body string
	err = chromedp.Run(tabCtx, chromedp.Evaluate(fmt.Sprintf(fetchScript, track.BaseURL), &body,
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams { return p.WithAwaitPromise(true) },
	))
	if err != nil {
		return "", domain.Upstream(SourceID, err)
	}
	if body == "" {
		return "", fmt.Errorf("%w: caption download failed for %s", domain.ErrTranscriptUnavailable, videoID)
	}

	text, err := youtube.ParseTimedText([]byte(body))
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("%w: empty caption track for %s", domain.ErrTranscriptUnavailable, videoID)
	}

	logger.With(logger.Fields{logger.FieldSize: len(text)}).Debug(ctx, "Transcript captured via browser")
	return text, nil
}

// Close shuts down the Chrome process if one was started.
func (a *Adapter) Close() error {
	if a.allocCancel != nil {
		a.allocCancel()
	}
	return nil
}
