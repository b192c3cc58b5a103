package domain

import (
	"context"
	"fmt"
	"strings"
)

// SourceDocument is one uploaded source, identified by its name within a session.
type SourceDocument struct {
	Name    string
	Content []byte
}

// Page is the extracted text of one 1-based page. Empty text marks a page
// with nothing extractable (scanned image, broken page object).
type Page struct {
	Document string
	Number   int
	Text     string
}

// Chunk is an overlapping window of a page's text, the unit of embedding and retrieval.
type Chunk struct {
	ID       string
	Document string
	Page     int
	Ordinal  int
	Text     string
}

// ChunkID builds the durable identifier of a chunk.
func ChunkID(document string, page, ordinal int) string {
	return fmt.Sprintf("%s::p%d::c%d", document, page, ordinal)
}

// RetrievalHit is a scored chunk returned by a similarity search.
type RetrievalHit struct {
	Chunk Chunk
	Score float64
}

// Label renders the provenance header the generator echoes back as a citation tag.
func (h RetrievalHit) Label() string {
	return fmt.Sprintf("[SOURCE: %s, PAGE: %d]", h.Chunk.Document, h.Chunk.Page)
}

// SectionContext holds the hits gathered for one logical section.
type SectionContext struct {
	Section Section
	Hits    []RetrievalHit
}

// Render serializes the section as a labeled text block. Sections without
// hits render as the empty string.
func (s SectionContext) Render() string {
	if len(s.Hits) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n=== SECTION CONTEXT: ")
	b.WriteString(s.Section.Name)
	b.WriteString(" ===\n")
	for _, h := range s.Hits {
		b.WriteString("\n")
		b.WriteString(h.Label())
		b.WriteString("\n")
		b.WriteString(h.Chunk.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// Extractor converts raw document bytes into per-page text.
type Extractor interface {
	Extract(ctx context.Context, doc SourceDocument, maxPages int) ([]Page, error)
}

// Splitter cuts a page's text into ordered chunk texts.
// Name and Params feed the index fingerprint.
type Splitter interface {
	Name() string
	Params() string
	Split(text string) []string
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
