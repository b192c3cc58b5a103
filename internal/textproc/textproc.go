// Package textproc holds the tokenizer and sentence splitter shared by the
// local embedder, the summarizer and the TUI highlighter.
package textproc

import (
	"regexp"
	"strings"
)

var (
	wordPattern     = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`)
	sentencePattern = regexp.MustCompile(`(?m)(?U)([^.!?。]+[.!?。])`)
)

var stopwords = func() map[string]struct{} {
	words := strings.Fields(`a an the and or but if then else for to of in on at by with as
		is are was were be been being it this that these those from up down over under
		again further than so such into about between through during before after above
		below out off own same too very can will just don should now`)
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

// Words returns the lower-cased word tokens of s. Letters and digits from
// any script count; an inner apostrophe keeps a contraction together.
func Words(s string) []string {
	return wordPattern.FindAllString(strings.ToLower(s), -1)
}

// Terms returns Words(s) without English stopwords.
func Terms(s string) []string {
	words := Words(s)
	out := words[:0]
	for _, w := range words {
		if !IsStopword(w) {
			out = append(out, w)
		}
	}
	return out
}

func IsStopword(w string) bool {
	_, ok := stopwords[w]
	return ok
}

// Sentences splits s at ., !, ? and the ideographic full stop. Trailing
// text without terminal punctuation is not returned.
func Sentences(s string) []string {
	return sentencePattern.FindAllString(s, -1)
}

// SplitSentences returns the trimmed, non-empty sentences of s. Unlike
// Sentences it keeps a trailing fragment without terminal punctuation.
func SplitSentences(s string) []string {
	var out []string
	last := 0
	for _, loc := range sentencePattern.FindAllStringIndex(s, -1) {
		if sent := strings.TrimSpace(s[loc[0]:loc[1]]); sent != "" {
			out = append(out, sent)
		}
		last = loc[1]
	}
	if rest := strings.TrimSpace(s[last:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

// Set returns the distinct elements of tokens.
func Set(tokens []string) map[string]struct{} {
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}
