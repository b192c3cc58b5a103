package chunker

import (
	"fmt"
	"strings"

	"reportmate/internal/textproc"
)

// SentenceChunker groups whole sentences into chunks; consecutive chunks
// share overlapSentences sentences. A trailing fragment without terminal
// punctuation counts as a sentence.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
}

func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}
	if overlapSentences >= sentencesPerChunk {
		overlapSentences = sentencesPerChunk - 1
	}
	return &SentenceChunker{sentencesPerChunk: sentencesPerChunk, overlapSentences: overlapSentences}
}

func (c *SentenceChunker) Name() string { return "sentence" }

func (c *SentenceChunker) Params() string {
	return fmt.Sprintf("%d::%d", c.sentencesPerChunk, c.overlapSentences)
}

func (c *SentenceChunker) Split(text string) []string {
	sentences := textproc.SplitSentences(text)
	var chunks []string
	for start := 0; start < len(sentences); start += c.sentencesPerChunk - c.overlapSentences {
		end := min(start+c.sentencesPerChunk, len(sentences))
		chunks = append(chunks, strings.Join(sentences[start:end], " "))
		if end == len(sentences) {
			break
		}
	}
	return chunks
}
