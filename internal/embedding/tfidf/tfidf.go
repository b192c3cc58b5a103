// Package tfidf is a local embedding provider: smoothed TF-IDF over a
// vocabulary fitted on the session's own chunks.
package tfidf

import (
	"context"
	"errors"
	"math"
	"slices"

	"reportmate/internal/embedding"
	"reportmate/internal/textproc"
)

var _ embedding.Fitter = (*Embedder)(nil)

// Embedder maps text to term-frequency times inverse-document-frequency
// weights. The zero value, and the result of NewEmbedder, is unfitted.
type Embedder struct {
	terms map[string]int
	idf   []float64
}

func NewEmbedder() *Embedder { return &Embedder{} }

func (e *Embedder) Name() string { return "tfidf" }

// Model is the fingerprint identifier; TF-IDF has no external model.
func (e *Embedder) Model() string { return "tfidf" }

// Dimension is the vocabulary size, 0 before Fit.
func (e *Embedder) Dimension() int { return len(e.idf) }

// Fit returns a new embedder whose vocabulary and IDF values come from
// corpus. The receiver is left unchanged.
func (e *Embedder) Fit(corpus []string) (embedding.Provider, error) {
	if len(corpus) == 0 {
		return nil, errors.New("tfidf: empty corpus")
	}
	df := map[string]int{}
	for _, doc := range corpus {
		for t := range textproc.Set(textproc.Terms(doc)) {
			df[t]++
		}
	}
	if len(df) == 0 {
		return nil, errors.New("tfidf: corpus has no indexable terms")
	}

	vocab := make([]string, 0, len(df))
	for t := range df {
		vocab = append(vocab, t)
	}
	slices.Sort(vocab)

	n := float64(len(corpus))
	fitted := &Embedder{terms: make(map[string]int, len(vocab)), idf: make([]float64, len(vocab))}
	for i, t := range vocab {
		fitted.terms[t] = i
		fitted.idf[i] = math.Log((1+n)/(1+float64(df[t]))) + 1
	}
	return fitted, nil
}

// EmbedBatch returns raw TF-IDF vectors; the embedding client normalises them.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if e.terms == nil {
		return nil, errors.New("tfidf: embedder not fitted")
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *Embedder) vector(text string) []float64 {
	vec := make([]float64, len(e.idf))
	var known int
	for _, t := range textproc.Terms(text) {
		if i, ok := e.terms[t]; ok {
			vec[i]++
			known++
		}
	}
	if known == 0 {
		return vec
	}
	for i, count := range vec {
		if count > 0 {
			vec[i] = count / float64(known) * e.idf[i]
		}
	}
	return vec
}
