package memory

import (
	"container/heap"
	"context"
	"fmt"
	"sort"
	"sync"

	"reportmate/internal/domain"
	"reportmate/internal/metrics"
	"reportmate/internal/vectorstore"
)

var _ vectorstore.Index = (*Index)(nil)

type entry struct {
	chunk  domain.Chunk
	vector []float64
}

// Index is an in-memory brute-force inner-product index. Build assembles a
// new entry slice and swaps it in under the write lock.
type Index struct {
	mu      sync.RWMutex
	entries []entry
	dim     int
	ready   bool
}

func NewIndex() *Index { return &Index{} }

func (s *Index) Build(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("%w: %d chunks, %d vectors", domain.ErrInvalidInput, len(chunks), len(vectors))
	}
	entries := make([]entry, len(chunks))
	dim := 0
	for i := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i == 0 {
			dim = len(vectors[i])
		}
		if len(vectors[i]) != dim || dim == 0 {
			return fmt.Errorf("%w: vector %d has dimension %d, want %d", domain.ErrInvalidInput, i, len(vectors[i]), dim)
		}
		v := make([]float64, dim)
		copy(v, vectors[i])
		entries[i] = entry{chunk: chunks[i], vector: v}
	}

	s.mu.Lock()
	s.entries = entries
	s.dim = dim
	s.ready = true
	s.mu.Unlock()
	return nil
}

func (s *Index) Drop(context.Context) error {
	s.mu.Lock()
	s.entries = nil
	s.dim = 0
	s.ready = false
	s.mu.Unlock()
	return nil
}

func (s *Index) Search(_ context.Context, query []float64, k int) ([]domain.RetrievalHit, error) {
	s.mu.RLock()
	entries := s.entries
	dim := s.dim
	s.mu.RUnlock()

	metrics.Searches.Inc()
	if len(entries) == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != dim {
		return nil, fmt.Errorf("%w: query dimension %d, index dimension %d", domain.ErrInvalidInput, len(query), dim)
	}
	k = min(k, len(entries))

	h := make(minHeap, 0, k)
	for i := range entries {
		c := candidate{pos: i, score: dot(entries[i].vector, query)}
		if h.Len() < k {
			heap.Push(&h, c)
			continue
		}
		if c.better(h[0]) {
			h[0] = c
			heap.Fix(&h, 0)
		}
	}

	top := []candidate(h)
	sort.Slice(top, func(i, j int) bool { return top[i].better(top[j]) })

	hits := make([]domain.RetrievalHit, len(top))
	for i, c := range top {
		hits[i] = domain.RetrievalHit{Chunk: entries[c.pos].chunk, Score: c.score}
	}
	return hits, nil
}

func (s *Index) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

func (s *Index) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

type candidate struct {
	pos   int
	score float64
}

// better orders by descending score, then ascending insertion position.
func (c candidate) better(o candidate) bool {
	if c.score != o.score {
		return c.score > o.score
	}
	return c.pos < o.pos
}

// minHeap keeps the worst retained candidate at the root.
type minHeap []candidate

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return h[j].better(h[i]) }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
