package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/timmy/tubechat/internal/domain"
)

func newTestBolt(t *testing.T, dim int, model string) *BoltRepository {
	t.Helper()
	repo, err := NewBoltRepository(&BoltConfig{
		Path:            filepath.Join(t.TempDir(), "vectors.db"),
		Namespace:       "chat",
		VectorDimension: dim,
		Model:           model,
	})
	if err != nil {
		t.Fatalf("NewBoltRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	if err := repo.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	return repo
}

func record(id, source, batch string, seq int, vec ...float32) *domain.IndexRecord {
	return &domain.IndexRecord{
		ID:     id,
		Vector: vec,
		Metadata: domain.RecordMetadata{
			Text:     "text of " + id,
			Source:   source,
			Batch:    batch,
			Sequence: seq,
		},
	}
}

func TestBoltQueryEmptyIndex(t *testing.T) {
	repo := newTestBolt(t, 3, "m")

	matches, err := repo.Query(context.Background(), []float32{1, 0, 0}, QueryOptions{TopK: 3, IncludeMetadata: true})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if matches == nil || len(matches) != 0 {
		t.Errorf("matches = %#v, want empty non-nil slice", matches)
	}
}

func TestBoltQueryOrdering(t *testing.T) {
	repo := newTestBolt(t, 3, "m")
	ctx := context.Background()

	records := []*domain.IndexRecord{
		record("a", "vid1", "1", 0, 1, 0, 0),
		record("b", "vid1", "1", 1, 0.9, 0.1, 0),
		record("c", "vid2", "1", 0, 0, 1, 0),
		record("d", "vid2", "1", 1, 0.5, 0.5, 0),
	}
	for _, r := range records {
		if err := repo.Upsert(ctx, r); err != nil {
			t.Fatalf("Upsert %s: %v", r.ID, err)
		}
	}

	matches, err := repo.Query(ctx, []float32{1, 0, 0}, QueryOptions{TopK: 3, IncludeMetadata: true})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("got %d matches, want 3", len(matches))
	}
	wantOrder := []string{"a", "b", "d"}
	for i, id := range wantOrder {
		if matches[i].ID != id {
			t.Errorf("matches[%d] = %s, want %s", i, matches[i].ID, id)
		}
		if matches[i].Metadata == nil || matches[i].Metadata.Text != "text of "+id {
			t.Errorf("matches[%d] metadata = %+v", i, matches[i].Metadata)
		}
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Score > matches[i-1].Score {
			t.Errorf("scores not descending: %v", matches)
		}
	}

	filtered, err := repo.Query(ctx, []float32{1, 0, 0}, QueryOptions{TopK: 3, Source: "vid2"})
	if err != nil {
		t.Fatalf("Query with source: %v", err)
	}
	if len(filtered) != 2 || filtered[0].ID != "d" || filtered[0].Metadata != nil {
		t.Errorf("filtered = %+v", filtered)
	}
}

func TestBoltUpsertLastWriteWins(t *testing.T) {
	repo := newTestBolt(t, 2, "m")
	ctx := context.Background()

	repo.Upsert(ctx, record("x", "v", "1", 0, 1, 0))
	repo.Upsert(ctx, record("x", "v", "2", 0, 0, 1))

	matches, _ := repo.Query(ctx, []float32{0, 1}, QueryOptions{TopK: 10, IncludeMetadata: true})
	if len(matches) != 1 || matches[0].Metadata.Batch != "2" {
		t.Errorf("matches = %+v", matches)
	}
}

func TestBoltDeleteSourceExcept(t *testing.T) {
	repo := newTestBolt(t, 2, "m")
	ctx := context.Background()

	repo.Upsert(ctx, record("v-1-0", "v", "1", 0, 1, 0))
	repo.Upsert(ctx, record("v-2-0", "v", "2", 0, 1, 0))
	repo.Upsert(ctx, record("w-1-0", "w", "1", 0, 1, 0))

	if err := repo.DeleteSourceExcept(ctx, "v", "2"); err != nil {
		t.Fatalf("DeleteSourceExcept: %v", err)
	}

	matches, _ := repo.Query(ctx, []float32{1, 0}, QueryOptions{TopK: 10})
	got := map[string]bool{}
	for _, m := range matches {
		got[m.ID] = true
	}
	if got["v-1-0"] || !got["v-2-0"] || !got["w-1-0"] {
		t.Errorf("remaining ids = %v", got)
	}
}

func TestBoltDimensionGuard(t *testing.T) {
	repo := newTestBolt(t, 3, "m")
	ctx := context.Background()

	if err := repo.Upsert(ctx, record("a", "v", "1", 0, 1, 0)); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("Upsert err = %v, want ErrDimensionMismatch", err)
	}
	if _, err := repo.Query(ctx, []float32{1}, QueryOptions{TopK: 1}); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("Query err = %v, want ErrDimensionMismatch", err)
	}
}

func TestBoltPinsDimensionAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.db")
	ctx := context.Background()

	first, err := NewBoltRepository(&BoltConfig{Path: path, VectorDimension: 3, Model: "m1"})
	if err != nil {
		t.Fatal(err)
	}
	if err := first.EnsureIndex(ctx); err != nil {
		t.Fatal(err)
	}
	first.Close()

	second, err := NewBoltRepository(&BoltConfig{Path: path, VectorDimension: 4, Model: "m1"})
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()
	if err := second.EnsureIndex(ctx); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("EnsureIndex err = %v, want ErrDimensionMismatch", err)
	}
}

func TestPointIDDeterministic(t *testing.T) {
	a := pointID("chat", "vid-1-0")
	if a != pointID("chat", "vid-1-0") {
		t.Errorf("pointID not deterministic")
	}
	if len(a) != 36 {
		t.Errorf("invalid UUID length: %d", len(a))
	}
	if a == pointID("chat", "vid-1-1") || a == pointID("other", "vid-1-0") {
		t.Errorf("pointID collision")
	}
}
