package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"reportmate/internal/domain"
	"reportmate/internal/logger"
)

// PDFExtractor reads text page by page with ledongthuc/pdf.
type PDFExtractor struct {
	log *logger.Logger
}

func NewPDFExtractor(log *logger.Logger) *PDFExtractor {
	return &PDFExtractor{log: logger.OrNop(log)}
}

// Extract returns pages 1..min(total, maxPages). A page that fails to decode
// is returned with empty text; only an unreadable document is an error.
func (e *PDFExtractor) Extract(ctx context.Context, doc domain.SourceDocument, maxPages int) (pages []domain.Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("open pdf %s: %v", doc.Name, r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(doc.Content), int64(len(doc.Content)))
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", doc.Name, err)
	}

	total := reader.NumPage()
	limit := total
	if maxPages > 0 && maxPages < limit {
		limit = maxPages
	}
	pages = make([]domain.Page, 0, limit)
	for i := 1; i <= limit; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, perr := pageText(reader, i)
		if perr != nil {
			e.log.Warn("page without extractable text", "document", doc.Name, "page", i, "error",
				&domain.ExtractionPageError{Document: doc.Name, Page: i, Err: perr})
			text = ""
		}
		pages = append(pages, domain.Page{Document: doc.Name, Number: i, Text: strings.TrimSpace(text)})
	}
	e.log.Debug("pdf extracted", "document", doc.Name, "pages", total, "read", limit)
	return pages, nil
}

func pageText(reader *pdf.Reader, n int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("decoder panic: %v", r)
		}
	}()
	page := reader.Page(n)
	if page.V.IsNull() {
		return "", errors.New("missing page object")
	}
	return page.GetPlainText(nil)
}
