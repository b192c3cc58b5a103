package extractor

import (
	"context"
	"strings"
	"unicode/utf8"

	"reportmate/internal/domain"
)

// TextExtractor treats plain-text sources as paged by form feeds.
// A file without form feeds is a single page.
type TextExtractor struct{}

func (TextExtractor) Extract(ctx context.Context, doc domain.SourceDocument, maxPages int) ([]domain.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw := string(doc.Content)
	if !utf8.ValidString(raw) {
		raw = strings.ToValidUTF8(raw, "")
	}
	parts := strings.Split(raw, "\f")
	if maxPages > 0 && len(parts) > maxPages {
		parts = parts[:maxPages]
	}
	pages := make([]domain.Page, len(parts))
	for i, p := range parts {
		pages[i] = domain.Page{Document: doc.Name, Number: i + 1, Text: strings.TrimSpace(p)}
	}
	return pages, nil
}
