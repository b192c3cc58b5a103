// Package embedding maps text to L2-normalised vectors in bounded batches.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/time/rate"

	"reportmate/internal/domain"
	"reportmate/internal/logger"
	"reportmate/internal/metrics"
)

// DefaultBatchSize is the ceiling of texts submitted per provider call.
const DefaultBatchSize = 128

// normEpsilon keeps an all-zero vector from dividing by zero.
const normEpsilon = 1e-12

// Provider converts free text into vectors, one per input, in input order.
type Provider interface {
	Name() string
	Model() string
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// Fitter is implemented by providers that must learn from the corpus
// before they can embed. Fit returns a fitted copy; the receiver is unchanged.
type Fitter interface {
	Fit(corpus []string) (Provider, error)
}

// Client batches provider calls and normalises every returned vector.
type Client struct {
	provider  Provider
	batchSize int
	limiter   *rate.Limiter
	log       *logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBatchSize sets the batch ceiling; non-positive values are ignored.
func WithBatchSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithRateLimit paces provider calls to rps requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = logger.OrNop(l) }
}

func NewClient(p Provider, opts ...Option) *Client {
	c := &Client{provider: p, batchSize: DefaultBatchSize, log: logger.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model identifies the embedding model; it is part of the index fingerprint.
func (c *Client) Model() string { return c.provider.Model() }

// BatchSize returns the batch ceiling.
func (c *Client) BatchSize() int { return c.batchSize }

// Fit returns a client bound to a provider fitted on corpus. Providers that
// need no fitting return the receiver.
func (c *Client) Fit(corpus []string) (*Client, error) {
	f, ok := c.provider.(Fitter)
	if !ok {
		return c, nil
	}
	fitted, err := f.Fit(corpus)
	if err != nil {
		return nil, &domain.EmbeddingBackendError{Stage: "fit", Err: err}
	}
	cp := *c
	cp.provider = fitted
	return &cp, nil
}

// Embed returns one normalised vector per text, in input order. Any provider
// failure aborts the whole call; no partial result is returned.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	dim := 0
	for start, batch := 0, 0; start < len(texts); start, batch = start+c.batchSize, batch+1 {
		end := min(start+c.batchSize, len(texts))
		vecs, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("embed batch %d: %w", batch, ctxErr)
			}
			metrics.EmbeddingBatches.WithLabelValues(c.provider.Name(), "error").Inc()
			return nil, &domain.EmbeddingBackendError{Stage: "embed", Batch: batch, Err: err}
		}
		for i, v := range vecs {
			if dim == 0 {
				dim = len(v)
			}
			if len(v) != dim {
				return nil, &domain.EmbeddingBackendError{
					Stage: "embed", Batch: batch,
					Err: fmt.Errorf("vector %d has dimension %d, want %d", start+i, len(v), dim),
				}
			}
			out = append(out, Normalize(v))
		}
		metrics.EmbeddingBatches.WithLabelValues(c.provider.Name(), "ok").Inc()
		c.log.Debug("embedded batch", "provider", c.provider.Name(), "batch", batch, "size", end-start)
	}
	return out, nil
}

// EmbedQuery embeds a single query string.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	vecs, err := c.Embed(ctx, []string{text})
	if err != nil {
		var be *domain.EmbeddingBackendError
		if errors.As(err, &be) {
			be.Stage = "query"
		}
		return nil, err
	}
	return vecs[0], nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	vecs, err := c.provider.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%s returned %d vectors for %d inputs", c.provider.Name(), len(vecs), len(texts))
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return nil, fmt.Errorf("%s returned an empty vector at %d", c.provider.Name(), i)
		}
	}
	return vecs, nil
}

// Normalize returns v divided by its L2 norm plus a small epsilon.
func Normalize(v []float64) []float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	norm := math.Sqrt(sum) + normEpsilon
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
