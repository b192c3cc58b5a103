// Package summarizer produces extractive corpus summaries.
package summarizer

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"reportmate/internal/domain"
	"reportmate/internal/textproc"
)

var _ domain.Summarizer = (*FrequencySummarizer)(nil)

const defaultMaxSentences = 5

// FrequencySummarizer picks the sentences whose content words are most
// frequent across the text. Scores are damped by the square root of the
// sentence length so long sentences do not win on size alone.
type FrequencySummarizer struct{}

func NewFrequencySummarizer() *FrequencySummarizer {
	return &FrequencySummarizer{}
}

type rankedSentence struct {
	pos   int
	text  string
	terms []string
	score float64
}

// Summarize returns up to maxSentences sentences in document order. Text
// without sentence punctuation is returned trimmed.
func (s *FrequencySummarizer) Summarize(text string, maxSentences int) (string, error) {
	if maxSentences <= 0 {
		maxSentences = defaultMaxSentences
	}
	raw := textproc.Sentences(text)
	if len(raw) == 0 {
		return strings.TrimSpace(text), nil
	}

	sents := make([]rankedSentence, len(raw))
	freq := map[string]float64{}
	var peak float64
	for i, r := range raw {
		sents[i] = rankedSentence{pos: i, text: strings.TrimSpace(r), terms: textproc.Terms(r)}
		for _, t := range sents[i].terms {
			freq[t]++
			peak = max(peak, freq[t])
		}
	}

	for i := range sents {
		words := len(textproc.Words(sents[i].text))
		if words == 0 || peak == 0 {
			continue
		}
		var sum float64
		for _, t := range sents[i].terms {
			sum += freq[t] / peak
		}
		sents[i].score = sum / math.Sqrt(float64(words))
	}

	slices.SortStableFunc(sents, func(a, b rankedSentence) int { return cmp.Compare(b.score, a.score) })
	picked := sents[:min(maxSentences, len(sents))]
	slices.SortFunc(picked, func(a, b rankedSentence) int { return cmp.Compare(a.pos, b.pos) })

	out := make([]string, len(picked))
	for i, p := range picked {
		out[i] = p.text
	}
	return strings.Join(out, " "), nil
}
