// Package youtube fetches transcripts from YouTube's public caption tracks.
package youtube

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/tubechat/internal/domain"
)

const (
	SourceID   = "youtube"
	SourceName = "YouTube caption tracks"

	defaultBaseURL   = "https://www.youtube.com"
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

var captionTracksPattern = regexp.MustCompile(`"captionTracks"\s*:\s*`)

// Config configures the YouTube adapter.
type Config struct {
	BaseURL  string
	Language string
	Timeout  time.Duration
}

// Adapter scrapes the watch page for caption track URLs and downloads the
// timed-text XML of the preferred language.
type Adapter struct {
	client   *resty.Client
	language string
}

type CaptionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
}

type timedText struct {
	Texts []struct {
		Value string `xml:",chardata"`
	} `xml:"text"`
}

// NewAdapter creates a new YouTube adapter.
func NewAdapter(cfg Config) *Adapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	language := cfg.Language
	if language == "" {
		language = "en"
	}

	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("User-Agent", defaultUserAgent).
		SetHeader("Accept-Language", language)

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

// Fetch downloads and concatenates the caption track of videoID.
func (a *Adapter) Fetch(ctx context.Context, videoID string) (string, error) {
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParam("v", videoID).
		Get("/watch")
	if err != nil {
		return "", domain.Upstream(SourceID, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", domain.Upstream(SourceID, fmt.Errorf("watch page returned status %d", resp.StatusCode()))
	}

	tracks, err := parseCaptionTracks(resp.String())
	if err != nil {
		return "", err
	}
	track := PickTrack(tracks, a.language)

	xmlResp, err := a.client.R().SetContext(ctx).Get(track.BaseURL)
	if err != nil {
		return "", domain.Upstream(SourceID, err)
	}
	if xmlResp.StatusCode() != http.StatusOK {
		return "", domain.Upstream(SourceID, fmt.Errorf("timedtext returned status %d", xmlResp.StatusCode()))
	}

	text, err := ParseTimedText(xmlResp.Body())
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("%w: empty caption track for %s", domain.ErrTranscriptUnavailable, videoID)
	}
	return text, nil
}

func (a *Adapter) Close() error {
	return nil
}

func parseCaptionTracks(page string) ([]CaptionTrack, error) {
	loc := captionTracksPattern.FindStringIndex(page)
	if loc == nil {
		return nil, fmt.Errorf("%w: no caption tracks on watch page", domain.ErrTranscriptUnavailable)
	}

	// The decoder stops at the end of the array, ignoring the rest of the page.
	var tracks []CaptionTrack
	if err := json.NewDecoder(strings.NewReader(page[loc[1]:])).Decode(&tracks); err != nil {
		return nil, domain.Upstream(SourceID, fmt.Errorf("decode caption tracks: %w", err))
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: caption track list is empty", domain.ErrTranscriptUnavailable)
	}
	return tracks, nil
}

// PickTrack prefers a manual track in language, then an auto-generated one,
// then the first track listed.
func PickTrack(tracks []CaptionTrack, language string) CaptionTrack {
	var auto *CaptionTrack
	for i := range tracks {
		t := &tracks[i]
		if !strings.HasPrefix(t.LanguageCode, language) {
			continue
		}
		if t.Kind != "asr" {
			return *t
		}
		if auto == nil {
			auto = t
		}
	}
	if auto != nil {
		return *auto
	}
	return tracks[0]
}

// ParseTimedText joins the caption segments with single spaces.
func ParseTimedText(data []byte) (string, error) {
	var doc timedText
	if err := xml.Unmarshal(data, &doc); err != nil {
		return "", domain.Upstream(SourceID, fmt.Errorf("decode timedtext: %w", err))
	}

	parts := make([]string, 0, len(doc.Texts))
	for _, t := range doc.Texts {
		s := strings.Join(strings.Fields(html.UnescapeString(t.Value)), " ")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " "), nil
}
