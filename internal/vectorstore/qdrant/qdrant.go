package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"reportmate/internal/domain"
	"reportmate/internal/logger"
	"reportmate/internal/metrics"
	"reportmate/internal/vectorstore"
)

var _ vectorstore.Index = (*Index)(nil)

// Index is a minimal REST client to Qdrant.
// Every Build writes a fresh collection named <prefix>_<generation> and only
// then points searches at it; the previous collection is dropped afterwards.
type Index struct {
	url    string
	apiKey string
	prefix string
	client *http.Client
	log    *logger.Logger

	mu     sync.RWMutex
	active string
	count  int
	ready  bool
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewIndex(cfg Config, log *logger.Logger) *Index {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	prefix := cfg.Collection
	if prefix == "" {
		prefix = "reportmate"
	}
	return &Index{
		url:    strings.TrimRight(cfg.URL, "/"),
		apiKey: cfg.APIKey,
		prefix: prefix,
		client: &http.Client{Timeout: timeout},
		log:    logger.OrNop(log),
	}
}

type point struct {
	ID      int            `json:"id"`
	Vector  []float64      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func (s *Index) Build(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("%w: %d chunks, %d vectors", domain.ErrInvalidInput, len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		// Qdrant cannot size an empty collection; the index is ready with no points.
		s.swap("", 0)
		return nil
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim || dim == 0 {
			return fmt.Errorf("%w: vector %d has dimension %d, want %d", domain.ErrInvalidInput, i, len(v), dim)
		}
	}

	name := s.prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": "Dot",
		},
	}
	if err := s.do(ctx, http.MethodPut, "/collections/"+name, body, nil); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	points := make([]point, len(chunks))
	for i, c := range chunks {
		points[i] = point{
			ID:     i,
			Vector: vectors[i],
			Payload: map[string]any{
				"chunk_id": c.ID,
				"document": c.Document,
				"page":     c.Page,
				"ordinal":  c.Ordinal,
				"position": i,
				"text":     c.Text,
			},
		}
	}
	if err := s.do(ctx, http.MethodPut, "/collections/"+name+"/points?wait=true", map[string]any{"points": points}, nil); err != nil {
		s.drop(name)
		return fmt.Errorf("upsert points: %w", err)
	}

	s.swap(name, len(chunks))
	s.log.Debug("qdrant collection swapped", "collection", name, "points", len(chunks))
	return nil
}

// swap points searches at name and drops the collection it replaces.
func (s *Index) swap(name string, count int) {
	s.mu.Lock()
	previous := s.active
	s.active = name
	s.count = count
	s.ready = true
	s.mu.Unlock()

	if previous != "" {
		s.drop(previous)
	}
}

// Drop deletes the active collection.
func (s *Index) Drop(context.Context) error {
	s.mu.Lock()
	name := s.active
	s.active = ""
	s.count = 0
	s.ready = false
	s.mu.Unlock()

	if name != "" {
		s.drop(name)
	}
	return nil
}

func (s *Index) Search(ctx context.Context, query []float64, k int) ([]domain.RetrievalHit, error) {
	s.mu.RLock()
	name, count := s.active, s.count
	s.mu.RUnlock()

	metrics.Searches.Inc()
	if name == "" || count == 0 || k <= 0 {
		return nil, nil
	}
	req := map[string]any{
		"vector":       query,
		"limit":        min(k, count),
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload struct {
				ChunkID  string `json:"chunk_id"`
				Document string `json:"document"`
				Page     int    `json:"page"`
				Ordinal  int    `json:"ordinal"`
				Position int    `json:"position"`
				Text     string `json:"text"`
			} `json:"payload"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, "/collections/"+name+"/points/search", req, &resp); err != nil {
		return nil, err
	}

	// Qdrant does not promise an order among equal scores.
	sort.SliceStable(resp.Result, func(i, j int) bool {
		a, b := resp.Result[i], resp.Result[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Payload.Position < b.Payload.Position
	})
	hits := make([]domain.RetrievalHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hits = append(hits, domain.RetrievalHit{
			Chunk: domain.Chunk{
				ID:       r.Payload.ChunkID,
				Document: r.Payload.Document,
				Page:     r.Payload.Page,
				Ordinal:  r.Payload.Ordinal,
				Text:     r.Payload.Text,
			},
			Score: r.Score,
		})
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
	return s.count
}

// drop deletes a collection, best-effort.
func (s *Index) drop(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.client.Timeout)
	defer cancel()
	if err := s.do(ctx, http.MethodDelete, "/collections/"+name, nil, nil); err != nil {
		s.log.Warn("qdrant drop collection failed", "collection", name, "error", err)
	}
}

func (s *Index) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.url+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, path, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
