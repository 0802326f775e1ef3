package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"

	"github.com/timmy/tubechat/internal/logger"
	"github.com/timmy/tubechat/internal/storage"
)

// ArchivedSource serves transcripts from object storage when present and
// writes fresh fetches back. Archive failures never fail a fetch.
type ArchivedSource struct {
	inner   Source
	archive storage.ObjectStorage
	prefix  string
}

// NewArchivedSource wraps inner with a read-through transcript archive.
func NewArchivedSource(inner Source, archive storage.ObjectStorage, prefix string) *ArchivedSource {
	if prefix == "" {
		prefix = "transcripts"
	}
	return &ArchivedSource{inner: inner, archive: archive, prefix: prefix}
}

func (a *ArchivedSource) GetSourceID() string {
	return a.inner.GetSourceID()
}

func (a *ArchivedSource) key(videoID string) string {
	return path.Join(a.prefix, a.inner.GetSourceID(), videoID+".txt")
}

// Fetch returns the archived transcript if any, otherwise fetches from the
// wrapped source and archives the result.
func (a *ArchivedSource) Fetch(ctx context.Context, videoID string) (string, error) {
	key := a.key(videoID)
	log := logger.With(logger.Fields{"key": key})

	rc, err := a.archive.Get(ctx, key)
	switch {
	case err == nil:
		data, readErr := io.ReadAll(rc)
		rc.Close()
		if readErr == nil && len(data) > 0 {
			log.Debug(ctx, "Transcript served from archive")
			return string(data), nil
		}
		if readErr != nil {
			log.Warn(ctx, "Failed to read archived transcript: %v", readErr)
		}
	case errors.Is(err, storage.ErrObjectNotFound):
	default:
		log.Warn(ctx, "Archive lookup failed: %v", err)
	}

	text, err := a.inner.Fetch(ctx, videoID)
	if err != nil {
		return "", err
	}

	data := []byte(text)
	if putErr := a.archive.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "text/plain; charset=utf-8"); putErr != nil {
		log.Warn(ctx, "Failed to archive transcript: %v", putErr)
	}
	return text, nil
}

// Evict drops the archived transcript of videoID so the next Fetch goes
// upstream again.
func (a *ArchivedSource) Evict(ctx context.Context, videoID string) error {
	return a.archive.Delete(ctx, a.key(videoID))
}

func (a *ArchivedSource) Close() error {
	return a.inner.Close()
}
