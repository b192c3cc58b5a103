package citation

import "strings"

// TokenKind distinguishes literal prose from a citation tag.
type TokenKind int

const (
	Literal TokenKind = iota
	TagToken
)

// Token is one run of a scanned text.
type Token struct {
	Kind TokenKind
	Text string
}

// Tag returns the token text as a Tag; it is only meaningful for TagToken.
func (t Token) Tag() Tag { return Tag(t.Text) }

// Scan splits text into alternating literal and tag tokens in one pass.
// Adjacent literal runs are merged; concatenating all token texts
// reproduces text exactly.
func Scan(text string) []Token {
	var tokens []Token
	litStart := 0
	flush := func(end int) {
		if end > litStart {
			tokens = append(tokens, Token{Kind: Literal, Text: text[litStart:end]})
		}
	}

	i := 0
	for i < len(text) {
		rel := strings.Index(text[i:], tagOpen)
		if rel < 0 {
			break
		}
		start := i + rel
		bodyStart := start + len(tagOpen)
		end := strings.IndexByte(text[bodyStart:], tagClose)
		if end < 0 {
			break
		}
		end += bodyStart
		body := text[bodyStart:end]
		// Only the last nested opener can start a valid tag.
		if k := strings.LastIndexByte(body, '['); k >= 0 {
			i = bodyStart + k
			continue
		}
		if _, _, ok := parseBody(body); !ok {
			i = end + 1
			continue
		}
		flush(start)
		tokens = append(tokens, Token{Kind: TagToken, Text: text[start : end+1]})
		litStart = end + 1
		i = end + 1
	}
	flush(len(text))
	return tokens
}
