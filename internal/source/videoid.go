package source

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/timmy/tubechat/internal/domain"
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// pathPrefixes are the youtube.com paths that carry the id as the next segment.
var pathPrefixes = []string{"/embed/", "/shorts/", "/live/", "/v/"}

// ExtractVideoID returns the 11-character YouTube id referenced by ref, which
// may be a watch URL, a youtu.be short link, an embed/shorts/live URL or a bare id.
func ExtractVideoID(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty reference", domain.ErrInvalidURL)
	}
	if videoIDPattern.MatchString(ref) {
		return ref, nil
	}

	if !strings.Contains(ref, "://") {
		ref = "https://" + ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidURL, err)
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")

	var candidate string
	switch host {
	case "youtu.be":
		candidate = strings.Trim(u.Path, "/")
	case "youtube.com", "music.youtube.com", "youtube-nocookie.com":
		if u.Path == "/watch" {
			candidate = u.Query().Get("v")
			break
		}
		for _, prefix := range pathPrefixes {
			if strings.HasPrefix(u.Path, prefix) {
				candidate = strings.SplitN(strings.TrimPrefix(u.Path, prefix), "/", 2)[0]
				break
			}
		}
	default:
		return "", fmt.Errorf("%w: unsupported host %q", domain.ErrInvalidURL, u.Hostname())
	}

	if !videoIDPattern.MatchString(candidate) {
		return "", fmt.Errorf("%w: no video id in %q", domain.ErrInvalidURL, ref)
	}
	return candidate, nil
}

// WatchURL returns the canonical watch page of videoID.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + url.QueryEscape(videoID)
}
