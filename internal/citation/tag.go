// Package citation reconciles [REF:<document>,p<page>] tags in generated
// prose with the evidence map that explains them.
package citation

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	tagOpen  = "[REF:"
	tagClose = ']'
)

// Tag is a citation tag in its exact lexical form, e.g. "[REF:A.pdf,p3]".
// The literal string is the join key into an EvidenceMap.
type Tag string

// NewTag formats a tag for document and page.
func NewTag(document string, page int) Tag {
	return Tag(fmt.Sprintf("%s%s,p%d%c", tagOpen, document, page, tagClose))
}

// Valid reports whether t is a well-formed tag.
func (t Tag) Valid() bool {
	_, page := ParseTag(t)
	return page >= 0
}

// ParseTag splits a tag into its document name and page. A malformed tag
// yields (raw, -1); it never fails.
func ParseTag(t Tag) (string, int) {
	s := string(t)
	if !strings.HasPrefix(s, tagOpen) || len(s) < len(tagOpen)+1 || s[len(s)-1] != tagClose {
		return s, -1
	}
	doc, page, ok := parseBody(s[len(tagOpen) : len(s)-1])
	if !ok {
		return s, -1
	}
	return doc, page
}

// parseBody validates "<name>,p<digits>". The name may not contain a
// bracket or a line break.
func parseBody(body string) (string, int, bool) {
	if strings.ContainsAny(body, "[]\n\r") {
		return "", 0, false
	}
	i := strings.LastIndex(body, ",p")
	if i <= 0 {
		return "", 0, false
	}
	digits := body[i+2:]
	if digits == "" {
		return "", 0, false
	}
	for j := 0; j < len(digits); j++ {
		if digits[j] < '0' || digits[j] > '9' {
			return "", 0, false
		}
	}
	page, err := strconv.Atoi(digits)
	if err != nil {
		return "", 0, false
	}
	return body[:i], page, true
}
