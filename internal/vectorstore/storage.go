// Package vectorstore defines the similarity index the context assembler queries.
package vectorstore

import (
	"context"

	"reportmate/internal/domain"
)

// Index stores chunk vectors and answers top-k inner-product queries.
// Vectors are expected to be L2-normalised so inner product is cosine similarity.
//
// Build replaces the whole contents atomically: on error the previous
// contents stay queryable. An empty chunk set is valid and leaves the index
// ready with Len 0. Search on an empty or unbuilt index returns no hits and
// no error; k is clamped to Len.
//
// Drop releases whatever backs the index; afterwards it is no longer ready.
type Index interface {
	Build(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error
	Drop(ctx context.Context) error
	Search(ctx context.Context, query []float64, k int) ([]domain.RetrievalHit, error)
	Ready() bool
	Len() int
}
