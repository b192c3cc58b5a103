package citation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTag(t *testing.T) {
	tests := []struct {
		tag  Tag
		doc  string
		page int
	}{
		{"[REF:A.pdf,p1]", "A.pdf", 1},
		{"[REF:논문 2023.pdf,p12]", "논문 2023.pdf", 12},
		{"[REF:a,pb,p3]", "a,pb", 3},
		{"[REF:A.pdf,p]", "[REF:A.pdf,p]", -1},
		{"[REF:A.pdf,12]", "[REF:A.pdf,12]", -1},
		{"[REF:,p3]", "[REF:,p3]", -1},
		{"[REF:A.pdf,p1x]", "[REF:A.pdf,p1x]", -1},
		{"REF:A.pdf,p1", "REF:A.pdf,p1", -1},
		{"[REF:]", "[REF:]", -1},
		{"", "", -1},
	}
	for _, tc := range tests {
		t.Run(string(tc.tag), func(t *testing.T) {
			doc, page := ParseTag(tc.tag)
			assert.Equal(t, tc.doc, doc)
			assert.Equal(t, tc.page, page)
			assert.Equal(t, tc.page >= 0, tc.tag.Valid())
		})
	}
}

func TestNewTag(t *testing.T) {
	tag := NewTag("X.pdf", 7)
	assert.Equal(t, Tag("[REF:X.pdf,p7]"), tag)
	doc, page := ParseTag(tag)
	assert.Equal(t, "X.pdf", doc)
	assert.Equal(t, 7, page)
}
