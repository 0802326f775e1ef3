package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every pipeline stage. Callers wrap these with
// fmt.Errorf("%w: ...") so the API boundary can classify failures with errors.Is.
var (
	// ErrInvalidURL means no video id could be parsed from the reference.
	ErrInvalidURL = errors.New("invalid video url")

	// ErrTranscriptUnavailable means the video has no transcript or captions.
	ErrTranscriptUnavailable = errors.New("transcript unavailable")

	// ErrEmbeddingFormat means the embedding response was not a flat numeric
	// vector of the expected length.
	ErrEmbeddingFormat = errors.New("embedding format error")

	// ErrUpstream covers network and service failures of any third-party dependency.
	ErrUpstream = errors.New("upstream error")

	// ErrConfiguration means a required setting or credential is missing or invalid.
	ErrConfiguration = errors.New("configuration error")

	// ErrDimensionMismatch means a vector does not match the dimension pinned by the index.
	ErrDimensionMismatch = fmt.Errorf("%w: vector dimension mismatch", ErrConfiguration)

	// ErrInvalidRequest means the chat request itself is malformed.
	ErrInvalidRequest = errors.New("invalid request")
)

// Upstream wraps err as an ErrUpstream failure of the named dependency.
func Upstream(dependency string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrUpstream, dependency, err)
}

// ErrorKind returns a short machine-readable name for the taxonomy entry err belongs to.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrInvalidURL):
		return "invalid_url"
	case errors.Is(err, ErrTranscriptUnavailable):
		return "transcript_unavailable"
	case errors.Is(err, ErrEmbeddingFormat):
		return "embedding_format"
	case errors.Is(err, ErrDimensionMismatch):
		return "dimension_mismatch"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrUpstream):
		return "upstream"
	default:
		return "internal"
	}
}
