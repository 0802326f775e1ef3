// Package invidious fetches transcripts through an Invidious instance's
// captions API, which proxies YouTube without the watch-page scrape.
package invidious

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/tubechat/internal/domain"
)

const (
	SourceID   = "invidious"
	SourceName = "Invidious captions API"
)

// Config configures the Invidious adapter.
type Config struct {
	BaseURL  string
	Language string
	Timeout  time.Duration
}

// Adapter lists caption tracks of a video and downloads one as WebVTT.
type Adapter struct {
	client   *resty.Client
	language string
}

type captionsResponse struct {
	Captions []struct {
		Label        string `json:"label"`
		LanguageCode string `json:"languageCode"`
		URL          string `json:"url"`
	} `json:"captions"`
}

// NewAdapter creates a new Invidious adapter.
func NewAdapter(cfg Config) *Adapter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	language := cfg.Language
	if language == "" {
		language = "en"
	}

	client := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Adapter{client: client, language: language}
}

// GetSourceID returns the source identifier.
func (a *Adapter) GetSourceID() string {
	return SourceID
}

// GetDisplayName returns the human-readable name.
func (a *Adapter) GetDisplayName() string {
	return SourceName
}

// Fetch returns the plain text of the preferred caption track of videoID.
func (a *Adapter) Fetch(ctx context.Context, videoID string) (string, error) {
	var list captionsResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetResult(&list).
		ForceContentType("application/json").
		Get("/api/v1/captions/" + url.PathEscape(videoID))
	if err != nil {
		return "", domain.Upstream(SourceID, err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return "", fmt.Errorf("%w: video %s not found", domain.ErrTranscriptUnavailable, videoID)
	case resp.IsError():
		return "", domain.Upstream(SourceID, fmt.Errorf("captions list returned status %d", resp.StatusCode()))
	}
	if len(list.Captions) == 0 {
		return "", fmt.Errorf("%w: no captions for %s", domain.ErrTranscriptUnavailable, videoID)
	}

	track := list.Captions[0]
	for _, c := range list.Captions {
		if strings.HasPrefix(c.LanguageCode, a.language) {
			track = c
			break
		}
	}

	vtt, err := a.client.R().
		SetContext(ctx).
		SetHeader("Accept", "text/vtt").
		Get(track.URL)
	if err != nil {
		return "", domain.Upstream(SourceID, err)
	}
	if vtt.IsError() {
		return "", domain.Upstream(SourceID, fmt.Errorf("caption download returned status %d", vtt.StatusCode()))
	}

	text := ParseVTT(vtt.String())
	if text == "" {
		return "", fmt.Errorf("%w: empty caption track for %s", domain.ErrTranscriptUnavailable, videoID)
	}
	return text, nil
}

func (a *Adapter) Close() error {
	return nil
}
