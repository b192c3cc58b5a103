package service

import (
	"context"
	"fmt"
	"strings"

	"reportmate/internal/domain"
	"reportmate/internal/extractor"
	"reportmate/internal/logger"
	"reportmate/internal/metrics"
)

// Query carries the user's research framing.
type Query struct {
	Topic      string
	Purpose    string
	Hypothesis string
}

// Fallback reasons reported by Assembly.Reason.
const (
	ReasonIndexNotReady = "index_not_ready"
	ReasonNoHits        = "no_hits"
	ReasonRAGDisabled   = "rag_disabled"
)

// Assembly is the context handed to the generator.
type Assembly struct {
	Context  string
	Sections []domain.SectionContext
	// Degraded is set when the first-pages fallback replaced retrieval.
	Degraded bool
	Reason   string
}

// Assembler builds per-section retrieval context.
type Assembler struct {
	useRAG           bool
	fallbackMaxChars int
	log              *logger.Logger
}

func NewAssembler(useRAG bool, fallbackMaxChars int, log *logger.Logger) *Assembler {
	return &Assembler{useRAG: useRAG, fallbackMaxChars: fallbackMaxChars, log: logger.OrNop(log)}
}

// SectionQuery is the composite retrieval query for one section.
func SectionQuery(q Query, s domain.Section) string {
	return fmt.Sprintf("%s / %s / %s / %s / %s", q.Topic, q.Purpose, q.Hypothesis, s.Name, strings.Join(s.Hints, " "))
}

// Assemble runs one search per section and concatenates the non-empty
// section blocks in section order. When the index is not ready, or nothing
// was retrieved, it falls back to the session's first pages.
func (a *Assembler) Assemble(ctx context.Context, sess RetrievalSession, q Query, sections []domain.Section, topK int) (Assembly, error) {
	if !a.useRAG {
		return Assembly{Context: extractor.FallbackContext(sess.Pages, a.fallbackMaxChars), Reason: ReasonRAGDisabled}, nil
	}
	if !sess.Ready() {
		return a.fallback(sess, ReasonIndexNotReady), nil
	}

	var b strings.Builder
	var out []domain.SectionContext
	for _, s := range sections {
		hits, err := Search(ctx, sess, SectionQuery(q, s), topK)
		if err != nil {
			return Assembly{}, fmt.Errorf("retrieve %s: %w", s.Name, err)
		}
		if len(hits) == 0 {
			continue
		}
		sc := domain.SectionContext{Section: s, Hits: hits}
		out = append(out, sc)
		b.WriteString(sc.Render())
	}
	blob := strings.TrimSpace(b.String())
	if blob == "" {
		return a.fallback(sess, ReasonNoHits), nil
	}
	a.log.Debug("context assembled", "sections", len(out), "chars", len(blob))
	return Assembly{Context: blob, Sections: out}, nil
}

func (a *Assembler) fallback(sess RetrievalSession, reason string) Assembly {
	metrics.ContextFallbacks.WithLabelValues(reason).Inc()
	a.log.Warn("using first-pages context", "reason", reason, "pages", len(sess.Pages))
	return Assembly{
		Context:  extractor.FallbackContext(sess.Pages, a.fallbackMaxChars),
		Degraded: true,
		Reason:   reason,
	}
}
