package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned by Get when the key is absent.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStorage is the blob store used to archive fetched transcripts.
type ObjectStorage interface {
	// Put stores the content under key, replacing any previous object.
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Get opens the object stored under key. Returns ErrObjectNotFound when absent.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
