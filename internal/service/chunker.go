package service

import (
	"fmt"

	"github.com/timmy/tubechat/internal/domain"
)

const (
	DefaultChunkSize    = 2000
	DefaultChunkOverlap = 100
)

// Chunker splits transcripts into overlapping windows of runes.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker validates size and overlap. Overlap must be in [0, size).
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrConfiguration, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", domain.ErrConfiguration, size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split returns consecutive windows of at most size runes, each starting
// size-overlap runes after the previous one. The last window may be shorter.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	stride := c.size - c.overlap
	chunks := make([]string, 0, n/stride+1)
	for start := 0; ; start += stride {
		end := start + c.size
		if end > n {
			end = n
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == n {
			break
		}
	}
	return chunks
}

// Chunks splits the transcript of videoID into sequenced chunks.
func (c *Chunker) Chunks(videoID, text string) []domain.TranscriptChunk {
	parts := c.Split(text)
	chunks := make([]domain.TranscriptChunk, len(parts))
	for i, p := range parts {
		chunks[i] = domain.TranscriptChunk{Text: p, SourceVideoID: videoID, Sequence: i}
	}
	return chunks
}
