package server

import (
	"time"

	"reportmate/internal/citation"
	"reportmate/internal/domain"
	"reportmate/internal/service"
)

type queryRequest struct {
	Topic      string `json:"topic"`
	Purpose    string `json:"purpose"`
	Hypothesis string `json:"hypothesis"`
	TopK       int    `json:"top_k"`
}

func (r queryRequest) query() service.Query {
	return service.Query{Topic: r.Topic, Purpose: r.Purpose, Hypothesis: r.Hypothesis}
}

type searchRequest struct {
	Query string `json:"query" binding:"required"`
	TopK  int    `json:"top_k"`
}

type draftRequest struct {
	queryRequest
	Expand bool `json:"expand"`
}

type citationRequest struct {
	Title     string               `json:"title"`
	Sections  []citation.Section   `json:"sections" binding:"required"`
	SourceMap citation.EvidenceMap `json:"source_map"`
}

type sessionResponse struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	Ready       bool      `json:"ready"`
	Status      string    `json:"status,omitempty"`
	Documents   []string  `json:"documents"`
	Pages       int       `json:"pages"`
	Chunks      int       `json:"chunks"`
	Summary     string    `json:"summary,omitempty"`
	BuiltAt     time.Time `json:"built_at"`
}

func newSessionResponse(sess service.RetrievalSession, docs []domain.SourceDocument) sessionResponse {
	names := make([]string, len(docs))
	for i, d := range docs {
		names[i] = d.Name
	}
	status := ""
	if err := sess.Status(); err != nil {
		status = err.Error()
	}
	return sessionResponse{
		ID:          sess.ID,
		Fingerprint: sess.Fingerprint,
		Ready:       status == "",
		Status:      status,
		Documents:   names,
		Pages:       len(sess.Pages),
		Chunks:      len(sess.Chunks),
		Summary:     sess.Summary,
		BuiltAt:     sess.BuiltAt,
	}
}

type hitResponse struct {
	ChunkID  string  `json:"chunk_id"`
	Document string  `json:"document"`
	Page     int     `json:"page"`
	Score    float64 `json:"score"`
	Label    string  `json:"label"`
	Text     string  `json:"text"`
}

func newHits(hits []domain.RetrievalHit) []hitResponse {
	out := make([]hitResponse, len(hits))
	for i, h := range hits {
		out[i] = hitResponse{
			ChunkID:  h.Chunk.ID,
			Document: h.Chunk.Document,
			Page:     h.Chunk.Page,
			Score:    h.Score,
			Label:    h.Label(),
			Text:     h.Chunk.Text,
		}
	}
	return out
}

type sectionHits struct {
	Section string        `json:"section"`
	Hits    []hitResponse `json:"hits"`
}

type contextResponse struct {
	Context  string        `json:"context"`
	Sections []sectionHits `json:"sections"`
	Degraded bool          `json:"degraded"`
	Reason   string        `json:"reason,omitempty"`
}

func newContextResponse(a service.Assembly) contextResponse {
	out := contextResponse{Context: a.Context, Degraded: a.Degraded, Reason: a.Reason, Sections: []sectionHits{}}
	for _, s := range a.Sections {
		out.Sections = append(out.Sections, sectionHits{Section: s.Section.Name, Hits: newHits(s.Hits)})
	}
	return out
}
