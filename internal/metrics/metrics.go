// Package metrics holds the Prometheus collectors of the retrieval pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// IndexBuilds counts index builds by outcome (built, reused, snapshot, failed).
	IndexBuilds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reportmate",
			Name:      "index_builds_total",
			Help:      "Vector index builds by outcome.",
		},
		[]string{"outcome"},
	)

	// EmbeddingBatches counts provider calls by provider and status.
	EmbeddingBatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reportmate",
			Name:      "embedding_batches_total",
			Help:      "Embedding provider batch calls.",
		},
		[]string{"provider", "status"},
	)

	// Searches counts similarity searches.
	Searches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "reportmate",
			Name:      "searches_total",
			Help:      "Similarity searches against the vector index.",
		},
	)

	// ContextFallbacks counts context assemblies served by the first-pages fallback.
	ContextFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reportmate",
			Name:      "context_fallbacks_total",
			Help:      "Context assemblies that used the first-pages fallback.",
		},
		[]string{"reason"},
	)

	// IndexedChunks reports the chunk count of the most recent build.
	IndexedChunks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "reportmate",
			Name:      "indexed_chunks",
			Help:      "Chunks in the most recently built index.",
		},
	)
)

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{IndexBuilds, EmbeddingBatches, Searches, ContextFallbacks, IndexedChunks} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
