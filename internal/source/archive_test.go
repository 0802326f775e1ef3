package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/timmy/tubechat/internal/domain"
	"github.com/timmy/tubechat/internal/storage"
)

type memoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: make(map[string][]byte)}
}

func (m *memoryStorage) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	if m.putErr != nil {
		return m.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memoryStorage) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

type countingSource struct {
	calls int
	text  string
	err   error
}

func (c *countingSource) GetSourceID() string { return "fake" }
func (c *countingSource) Close() error        { return nil }
func (c *countingSource) Fetch(context.Context, string) (string, error) {
	c.calls++
	return c.text, c.err
}

func TestArchivedSourceReadThrough(t *testing.T) {
	inner := &countingSource{text: "hello world"}
	store := newMemoryStorage()
	src := NewArchivedSource(inner, store, "")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := src.Fetch(ctx, "dQw4w9WgXcQ")
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
		if got != "hello world" {
			t.Fatalf("fetch %d = %q", i, got)
		}
	}
	if inner.calls != 1 {
		t.Errorf("inner fetched %d times, want 1", inner.calls)
	}
	if _, ok := store.objects["transcripts/fake/dQw4w9WgXcQ.txt"]; !ok {
		t.Errorf("transcript not archived, keys: %v", store.objects)
	}
}

func TestArchivedSourceIgnoresWriteFailure(t *testing.T) {
	inner := &countingSource{text: "text"}
	store := newMemoryStorage()
	store.putErr = errors.New("bucket offline")
	src := NewArchivedSource(inner, store, "cache")

	got, err := src.Fetch(context.Background(), "abc")
	if err != nil || got != "text" {
		t.Fatalf("Fetch = %q, %v", got, err)
	}
}

func TestArchivedSourcePropagatesFetchError(t *testing.T) {
	inner := &countingSource{err: domain.ErrTranscriptUnavailable}
	store := newMemoryStorage()
	src := NewArchivedSource(inner, store, "")

	if _, err := src.Fetch(context.Background(), "abc"); !errors.Is(err, domain.ErrTranscriptUnavailable) {
		t.Fatalf("err = %v, want ErrTranscriptUnavailable", err)
	}
	if len(store.objects) != 0 {
		t.Errorf("failed fetch should not be archived")
	}
}

func TestArchivedSourceEvictForcesRefetch(t *testing.T) {
	inner := &countingSource{text: "v1"}
	store := newMemoryStorage()
	src := NewArchivedSource(inner, store, "")
	ctx := context.Background()

	if _, err := src.Fetch(ctx, "abc"); err != nil {
		t.Fatal(err)
	}
	inner.text = "v2"
	if err := src.Evict(ctx, "abc"); err != nil {
		t.Fatalf("Evict: %v", err)
	}
	// Evicting twice is harmless.
	if err := src.Evict(ctx, "abc"); err != nil {
		t.Fatalf("second Evict: %v", err)
	}

	got, err := src.Fetch(ctx, "abc")
	if err != nil {
		t.Fatal(err)
	}
	if got != "v2" || inner.calls != 2 {
		t.Errorf("Fetch = %q after %d upstream calls, want v2 after 2", got, inner.calls)
	}

	var _ Evicter = src
}
