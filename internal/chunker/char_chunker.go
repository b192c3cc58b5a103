package chunker

import (
	"fmt"
	"strings"

	"reportmate/internal/domain"
)

// Default window size and overlap, in runes.
const (
	DefaultChunkSize = 900
	DefaultOverlap   = 150
)

// CharChunker splits text into fixed-size, overlapping character windows.
type CharChunker struct {
	chunkSize int
	overlap   int
}

// NewCharChunker builds a character chunker. A non-positive size disables
// splitting; overlap is normalised by NormalizeOverlap.
func NewCharChunker(chunkSize, overlap int) *CharChunker {
	return &CharChunker{chunkSize: chunkSize, overlap: NormalizeOverlap(chunkSize, overlap)}
}

func (c *CharChunker) Name() string { return "char" }

func (c *CharChunker) Params() string {
	return fmt.Sprintf("%d::%d", c.chunkSize, c.overlap)
}

func (c *CharChunker) Split(text string) []string {
	return Split(text, c.chunkSize, c.overlap)
}

// NormalizeOverlap clamps overlap into [0, chunkSize-1] so every window
// starts strictly after the previous one.
func NormalizeOverlap(chunkSize, overlap int) int {
	if overlap < 0 {
		return 0
	}
	if chunkSize > 0 && overlap >= chunkSize {
		return chunkSize - 1
	}
	return overlap
}

// Split walks text in windows of chunkSize characters; each next window
// starts at end-overlap. The final window ends at len(text). Windows are
// trimmed and empty ones dropped. chunkSize <= 0 returns text unsplit.
func Split(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		return []string{text}
	}
	overlap = NormalizeOverlap(chunkSize, overlap)

	runes := []rune(text)
	n := len(runes)
	out := make([]string, 0, n/(chunkSize-overlap)+1)
	for start := 0; start < n; {
		end := start + chunkSize
		if end > n {
			end = n
		}
		if c := strings.TrimSpace(string(runes[start:end])); c != "" {
			out = append(out, c)
		}
		if end == n {
			break
		}
		start = end - overlap
	}
	return out
}

// ChunkPages splits every page and assigns ordinals from 1 per page.
// Re-chunking the same pages reproduces the same identifiers.
func ChunkPages(pages []domain.Page, splitter domain.Splitter) []domain.Chunk {
	var chunks []domain.Chunk
	for _, p := range pages {
		ordinal := 0
		for _, text := range splitter.Split(p.Text) {
			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			ordinal++
			chunks = append(chunks, domain.Chunk{
				ID:       domain.ChunkID(p.Document, p.Number, ordinal),
				Document: p.Document,
				Page:     p.Number,
				Ordinal:  ordinal,
				Text:     text,
			})
		}
	}
	return chunks
}
