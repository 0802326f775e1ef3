package service

import (
	"context"
	"hash/fnv"
	"sort"
	"strings"
	"sync"

	"github.com/timmy/tubechat/internal/domain"
	"github.com/timmy/tubechat/internal/repository"
)

// fakeSource serves fixed transcripts by video id.
type fakeSource struct {
	transcripts map[string]string
	err         error
}

func (f *fakeSource) GetSourceID() string { return "fake" }
func (f *fakeSource) Close() error        { return nil }
func (f *fakeSource) Fetch(_ context.Context, videoID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	text, ok := f.transcripts[videoID]
	if !ok {
		return "", domain.ErrTranscriptUnavailable
	}
	return text, nil
}

// hashEmbedding maps text to a deterministic 4-dimensional vector.
type hashEmbedding struct {
	err error
	// failures limits err to the first n calls; zero means every call.
	failures int
	calls    int
}

func (h *hashEmbedding) vector(text string) []float32 {
	f := fnv.New32a()
	f.Write([]byte(text))
	sum := f.Sum32()
	return []float32{float32(sum&0xff) + 1, float32(sum>>8&0xff) + 1, float32(sum>>16&0xff) + 1, float32(sum>>24) + 1}
}

func (h *hashEmbedding) Embed(_ context.Context, texts []string) ([][]float32, error) {
	h.calls++
	if h.err != nil && (h.failures == 0 || h.calls <= h.failures) {
		return nil, h.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *hashEmbedding) EmbedQuery(ctx context.Context, q string) ([]float32, error) {
	v, err := h.Embed(ctx, []string{q})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (h *hashEmbedding) GetModel() string   { return "hash-4" }
func (h *hashEmbedding) GetDimensions() int { return 4 }

// memoryVectors is an in-process VectorRepository that scores by insertion
// order, so tests can assert on exact retrieval results.
type memoryVectors struct {
	mu      sync.Mutex
	records map[string]*domain.IndexRecord
	order   []string
	err     error
}

func newMemoryVectors() *memoryVectors {
	return &memoryVectors{records: make(map[string]*domain.IndexRecord)}
}

func (m *memoryVectors) EnsureIndex(context.Context) error { return nil }
func (m *memoryVectors) Close() error                      { return nil }

func (m *memoryVectors) Upsert(_ context.Context, r *domain.IndexRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.records[r.ID]; !ok {
		m.order = append(m.order, r.ID)
	}
	m.records[r.ID] = r
	return nil
}

func (m *memoryVectors) Query(_ context.Context, _ []float32, opts repository.QueryOptions) ([]domain.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matches := []domain.Match{}
	for i, id := range m.order {
		r, ok := m.records[id]
		if !ok || (opts.Source != "" && r.Metadata.Source != opts.Source) {
			continue
		}
		md := r.Metadata
		matches = append(matches, domain.Match{ID: id, Score: float32(len(m.order) - i), Metadata: &md})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > opts.TopK {
		matches = matches[:opts.TopK]
	}
	return matches, nil
}

func (m *memoryVectors) DeleteSourceExcept(_ context.Context, source, keepBatch string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.order[:0]
	for _, id := range m.order {
		r := m.records[id]
		if r.Metadata.Source == source && r.Metadata.Batch != keepBatch {
			delete(m.records, id)
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	return nil
}

func (m *memoryVectors) countSource(source string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.records {
		if r.Metadata.Source == source {
			n++
		}
	}
	return n
}

// memoryJobs records job writes.
type memoryJobs struct {
	mu   sync.Mutex
	jobs map[string]domain.IngestJob
}

func (j *memoryJobs) Create(_ context.Context, job *domain.IngestJob) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.jobs == nil {
		j.jobs = make(map[string]domain.IngestJob)
	}
	j.jobs[job.ID] = *job
	return nil
}

func (j *memoryJobs) Update(ctx context.Context, job *domain.IngestJob) error {
	return j.Create(ctx, job)
}

// scriptedCompletion echoes the prompt or streams fixed fragments.
type scriptedCompletion struct {
	fragments  []string
	failAfter  error
	err        error
	lastPrompt string
	lastSystem string
}

func (c *scriptedCompletion) GetModel() string { return "scripted" }

func (c *scriptedCompletion) Complete(_ context.Context, system, prompt string) (string, error) {
	c.lastSystem, c.lastPrompt = system, prompt
	if c.err != nil {
		return "", c.err
	}
	return strings.Join(c.fragments, ""), nil
}

func (c *scriptedCompletion) Stream(ctx context.Context, system, prompt string) (<-chan StreamFragment, error) {
	c.lastSystem, c.lastPrompt = system, prompt
	if c.err != nil {
		return nil, c.err
	}
	out := make(chan StreamFragment)
	go func() {
		defer close(out)
		for _, f := range c.fragments {
			select {
			case out <- StreamFragment{Text: f}:
			case <-ctx.Done():
				return
			}
		}
		if c.failAfter != nil {
			select {
			case out <- StreamFragment{Err: c.failAfter}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}
