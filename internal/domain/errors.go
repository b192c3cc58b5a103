package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors represent pipeline failures a caller can branch on.
var (
	// ErrNoExtractableText indicates that no supplied document yielded a single chunk.
	ErrNoExtractableText = errors.New("no extractable text")

	// ErrEmbeddingBackend indicates the embedding provider failed.
	// Callers own the retry policy.
	ErrEmbeddingBackend = errors.New("embedding backend error")

	// ErrExtractionPage indicates one page could not be decoded.
	// It is absorbed by the extractor and only surfaces in logs.
	ErrExtractionPage = errors.New("page extraction failed")

	// ErrIndexNotReady indicates the vector index has not been built.
	// Search never returns it; RetrievalSession.Status reports it.
	ErrIndexNotReady = errors.New("vector index not ready")

	// ErrInvalidConfig indicates a configuration value out of range.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown document, embedder or index type.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrNotFound indicates a requested session or entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrGeneratorOutput indicates the generator returned a payload that
	// does not match the draft schema.
	ErrGeneratorOutput = errors.New("malformed generator output")
)

// ExtractionPageError describes a single page that could not yield text.
type ExtractionPageError struct {
	Document string
	Page     int
	Err      error
}

func (e *ExtractionPageError) Error() string {
	return fmt.Sprintf("extract %s page %d: %v", e.Document, e.Page, e.Err)
}

func (e *ExtractionPageError) Unwrap() []error { return []error{ErrExtractionPage, e.Err} }

// NoExtractableTextError is returned when the aggregate chunk set of a build is empty.
type NoExtractableTextError struct {
	Documents []string
}

func (e *NoExtractableTextError) Error() string {
	if len(e.Documents) == 0 {
		return ErrNoExtractableText.Error()
	}
	return fmt.Sprintf("%s in %s (scanned or image-only PDFs?)", ErrNoExtractableText, strings.Join(e.Documents, ", "))
}

func (e *NoExtractableTextError) Unwrap() error { return ErrNoExtractableText }

// EmbeddingBackendError wraps a provider failure with the stage that hit it.
type EmbeddingBackendError struct {
	Stage    string
	Document string
	Batch    int
	Err      error
}

func (e *EmbeddingBackendError) Error() string {
	var b strings.Builder
	b.WriteString("embedding backend")
	if e.Stage != "" {
		b.WriteString(" (")
		b.WriteString(e.Stage)
		if e.Document != "" {
			b.WriteString(", ")
			b.WriteString(e.Document)
		}
		b.WriteString(")")
	}
	fmt.Fprintf(&b, " batch %d: %v", e.Batch, e.Err)
	return b.String()
}

func (e *EmbeddingBackendError) Unwrap() []error { return []error{ErrEmbeddingBackend, e.Err} }
