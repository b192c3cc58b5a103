// Package extractor turns uploaded sources into per-page text.
package extractor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"reportmate/internal/domain"
	"reportmate/internal/logger"
)

// Registry picks an extractor by content sniffing, then by file extension.
type Registry struct {
	pdf  domain.Extractor
	text domain.Extractor
}

func New(log *logger.Logger) *Registry {
	return &Registry{pdf: NewPDFExtractor(log), text: TextExtractor{}}
}

func (r *Registry) Extract(ctx context.Context, doc domain.SourceDocument, maxPages int) ([]domain.Page, error) {
	if len(doc.Content) == 0 {
		return nil, nil
	}
	if isPDF(doc.Content) {
		return r.pdf.Extract(ctx, doc, maxPages)
	}
	switch strings.ToLower(filepath.Ext(doc.Name)) {
	case ".txt", ".md", ".markdown", ".text":
		return r.text.Extract(ctx, doc, maxPages)
	case ".pdf":
		return nil, fmt.Errorf("%w: %s claims pdf but has no %%PDF header", domain.ErrInvalidInput, doc.Name)
	}
	if isProbablyText(doc.Content) {
		return r.text.Extract(ctx, doc, maxPages)
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedType, doc.Name)
}

// ExtractAll extracts every document and keeps only pages with text.
// Documents without any text are logged, never treated as failures.
func ExtractAll(ctx context.Context, ex domain.Extractor, docs []domain.SourceDocument, maxPages int, log *logger.Logger) ([]domain.Page, error) {
	log = logger.OrNop(log)
	var out []domain.Page
	for _, doc := range docs {
		pages, err := ex.Extract(ctx, doc, maxPages)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", doc.Name, err)
		}
		kept := 0
		for _, p := range pages {
			if p.Text == "" {
				continue
			}
			out = append(out, p)
			kept++
		}
		if kept == 0 {
			log.Warn("no extractable text", "document", doc.Name, "pages", len(pages))
		}
	}
	return out, nil
}

// FallbackContext concatenates labeled pages in order, cut at maxChars characters.
func FallbackContext(pages []domain.Page, maxChars int) string {
	var b strings.Builder
	for _, p := range pages {
		if p.Text == "" {
			continue
		}
		fmt.Fprintf(&b, "\n[SOURCE: %s, PAGE: %d]\n%s\n", p.Document, p.Number, p.Text)
	}
	out := b.String()
	if maxChars > 0 && utf8.RuneCountInString(out) > maxChars {
		out = string([]rune(out)[:maxChars])
	}
	return out
}

func isPDF(b []byte) bool {
	return len(b) >= 5 && string(b[:5]) == "%PDF-"
}

func isProbablyText(b []byte) bool {
	sample := b[:min(len(b), 4096)]
	good := 0
	for _, c := range sample {
		if c == 0x00 {
			return false
		}
		if c == '\n' || c == '\r' || c == '\t' || c == '\f' || (c >= 0x20 && c <= 0x7E) || c >= 0x80 {
			good++
		}
	}
	return float64(good)/float64(len(sample)) > 0.9
}
