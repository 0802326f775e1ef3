package source

import "context"

// Source fetches the transcript of a video. Implementations are process-wide
// handles built once at startup.
type Source interface {
	// GetSourceID returns the backend identifier (youtube, invidious, browser).
	GetSourceID() string

	// Fetch returns the concatenated transcript text of videoID.
	// Fails with domain.ErrTranscriptUnavailable when the video has no
	// captions and domain.ErrUpstream on network or service failures.
	Fetch(ctx context.Context, videoID string) (string, error)

	// Close releases resources held by the backend.
	Close() error
}

// Evicter is implemented by sources that cache transcripts.
type Evicter interface {
	Evict(ctx context.Context, videoID string) error
}
