// Package generator defines the boundary to the external text generator.
package generator

import (
	"context"

	"reportmate/internal/draft"
)

// Generator returns the raw JSON object produced for a prompt.
// Callers validate it with draft.Parse.
type Generator interface {
	Generate(ctx context.Context, p draft.Prompt) ([]byte, error)
	ModelName() string
}
