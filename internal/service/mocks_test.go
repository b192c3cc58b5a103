package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"reportmate/internal/domain"
	"reportmate/internal/embedding"
	"reportmate/internal/vectorstore/memory"
)

// pageExtractor returns canned page texts per document name.
type pageExtractor struct {
	pages map[string][]string
	calls atomic.Int32
}

func (p *pageExtractor) Extract(_ context.Context, doc domain.SourceDocument, maxPages int) ([]domain.Page, error) {
	p.calls.Add(1)
	texts, ok := p.pages[doc.Name]
	if !ok {
		return nil, errors.New("unknown document")
	}
	var out []domain.Page
	for i, t := range texts {
		if i >= maxPages {
			break
		}
		out = append(out, domain.Page{Document: doc.Name, Number: i + 1, Text: t})
	}
	return out, nil
}

// countingProvider counts provider calls and delegates to inner.
type countingProvider struct {
	inner embedding.Provider
	calls *atomic.Int32
	fail  bool
	gate  *gate
}

// gate holds every embedding call until it is opened, and reports when the
// first call arrives.
type gate struct {
	entered chan struct{}
	open    chan struct{}
	once    sync.Once
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}), open: make(chan struct{})}
}

func (g *gate) wait(ctx context.Context) error {
	g.once.Do(func() { close(g.entered) })
	select {
	case <-g.open:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *countingProvider) Name() string  { return "counting" }
func (c *countingProvider) Model() string { return "counting-" + c.inner.Model() }

func (c *countingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	c.calls.Add(1)
	if c.gate != nil {
		if err := c.gate.wait(ctx); err != nil {
			return nil, err
		}
	}
	if c.fail {
		return nil, errors.New("backend unavailable")
	}
	return c.inner.EmbedBatch(ctx, texts)
}

func (c *countingProvider) Fit(corpus []string) (embedding.Provider, error) {
	f, ok := c.inner.(embedding.Fitter)
	if !ok {
		return c, nil
	}
	p, err := f.Fit(corpus)
	if err != nil {
		return nil, err
	}
	return &countingProvider{inner: p, calls: c.calls, fail: c.fail, gate: c.gate}, nil
}

// trackingIndex counts drops of a memory index.
type trackingIndex struct {
	*memory.Index
	dropped *atomic.Int32
}

func (t *trackingIndex) Drop(ctx context.Context) error {
	t.dropped.Add(1)
	return t.Index.Drop(ctx)
}
