package citation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func join(tokens []Token) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteString(t.Text)
	}
	return b.String()
}

func tagTexts(tokens []Token) []string {
	var out []string
	for _, t := range tokens {
		if t.Kind == TagToken {
			out = append(out, t.Text)
		}
	}
	return out
}

func TestScan(t *testing.T) {
	tests := []struct {
		name string
		text string
		tags []string
	}{
		{"plain", "no citations here", nil},
		{"single", "Claim [REF:A.pdf,p1].", []string{"[REF:A.pdf,p1]"}},
		{"adjacent", "[REF:A.pdf,p1][REF:B.pdf,p2]", []string{"[REF:A.pdf,p1]", "[REF:B.pdf,p2]"}},
		{"repeated", "x [REF:A.pdf,p1] y [REF:A.pdf,p1]", []string{"[REF:A.pdf,p1]", "[REF:A.pdf,p1]"}},
		{"malformed page", "x [REF:A.pdf,page1] y", nil},
		{"unterminated", "x [REF:A.pdf,p1", nil},
		{"nested opener", "[REF:broken [REF:B.pdf,p2] z", []string{"[REF:B.pdf,p2]"}},
		{"other brackets", "[1] and [see REF] and [REF:C.pdf,p9]", []string{"[REF:C.pdf,p9]"}},
		{"line break in name", "[REF:A\n.pdf,p1]", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tokens := Scan(tc.text)
			assert.Equal(t, tc.text, join(tokens))
			assert.Equal(t, tc.tags, tagTexts(tokens))
		})
	}
}

func TestScan_MergesLiteralRuns(t *testing.T) {
	tokens := Scan("a [REF:bad] b [REF:A.pdf,p1] c")
	assert.Equal(t, []Token{
		{Kind: Literal, Text: "a [REF:bad] b "},
		{Kind: TagToken, Text: "[REF:A.pdf,p1]"},
		{Kind: Literal, Text: " c"},
	}, tokens)
}

func TestScan_Empty(t *testing.T) {
	assert.Empty(t, Scan(""))
}
