package service

import (
	"fmt"
	"strings"

	"reportmate/internal/domain"
)

// Fingerprint identifies the inputs an index was built from:
// every document's name and byte length, the page limit, the splitter
// parameters and the embedding model. Any change forces a rebuild.
func Fingerprint(docs []domain.SourceDocument, maxPages int, splitter domain.Splitter, model string) string {
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = fmt.Sprintf("%s:%d", d.Name, len(d.Content))
	}
	params := splitter.Params()
	if splitter.Name() != "char" {
		params = splitter.Name() + ":" + params
	}
	return fmt.Sprintf("%s::%d::%s::%s", strings.Join(parts, "|"), maxPages, params, model)
}
