package citation

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// NoEvidence is written in footnotes for tags missing from the evidence map.
const NoEvidence = "no evidence available"

// DefaultTitle heads a footnoted export.
const DefaultTitle = "Report Mate Draft"

// Section is one named block of generated prose.
type Section struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// EvidenceMap maps a tag to a human-readable summary of its supporting evidence.
type EvidenceMap map[Tag]string

// Merge returns the union of m and next. Entries of m survive unless next
// carries a non-empty summary for the same tag. Neither input is modified.
func (m EvidenceMap) Merge(next EvidenceMap) EvidenceMap {
	out := make(EvidenceMap, len(m)+len(next))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range next {
		if _, ok := out[k]; ok && v == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// ExtractTags returns the well-formed tags of all sections, deduplicated,
// in first-seen order across sections in the given order.
func ExtractTags(sections []Section) []Tag {
	var out []Tag
	seen := make(map[Tag]struct{})
	for _, s := range sections {
		for _, tok := range Scan(s.Text) {
			if tok.Kind != TagToken {
				continue
			}
			t := tok.Tag()
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// Row is one line of the reference table.
type Row struct {
	Tag      Tag    `json:"ref_tag"`
	File     string `json:"file"`
	Page     int    `json:"page"`
	Evidence string `json:"evidence_summary"`
}

// Table lists every used tag once, in first-seen order.
func Table(sections []Section, evidence EvidenceMap) []Row {
	tags := ExtractTags(sections)
	rows := make([]Row, len(tags))
	for i, t := range tags {
		file, page := ParseTag(t)
		rows[i] = Row{Tag: t, File: file, Page: page, Evidence: evidence[t]}
	}
	return rows
}

// WriteCSV writes rows with a UTF-8 byte order mark so spreadsheet
// applications detect the encoding of non-ASCII file names.
func WriteCSV(w io.Writer, rows []Row) error {
	if _, err := io.WriteString(w, "\ufeff"); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"ref_tag", "file", "page", "evidence_summary"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{string(r.Tag), r.File, strconv.Itoa(r.Page), r.Evidence}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Export is the structured reference export.
type Export struct {
	UsedRefs      []Tag       `json:"used_refs"`
	SourceMapUsed EvidenceMap `json:"source_map_used"`
}

// Structured returns the used tags and the evidence map restricted to them.
// Used tags without evidence map to the empty string.
func Structured(sections []Section, evidence EvidenceMap) Export {
	tags := ExtractTags(sections)
	used := make(EvidenceMap, len(tags))
	for _, t := range tags {
		used[t] = evidence[t]
	}
	if tags == nil {
		tags = []Tag{}
	}
	return Export{UsedRefs: tags, SourceMapUsed: used}
}

// WriteJSON writes the structured export, indented, without HTML escaping.
func WriteJSON(w io.Writer, e Export) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(e)
}

// Footnoted renders sections as markdown with every tag replaced by a
// footnote marker [^n], n being the tag's first-seen rank, followed by the
// footnote list.
func Footnoted(title string, sections []Section, evidence EvidenceMap) string {
	if title == "" {
		title = DefaultTitle
	}
	tags := ExtractTags(sections)
	rank := make(map[Tag]int, len(tags))
	for i, t := range tags {
		rank[t] = i + 1
	}

	parts := []string{"# " + title + "\n"}
	for _, s := range sections {
		parts = append(parts, "\n## "+s.Name+"\n")
		var b strings.Builder
		for _, tok := range Scan(s.Text) {
			if tok.Kind == TagToken {
				fmt.Fprintf(&b, "[^%d]", rank[tok.Tag()])
				continue
			}
			b.WriteString(tok.Text)
		}
		parts = append(parts, strings.TrimSpace(b.String())+"\n")
	}

	parts = append(parts, "\n---\n\n## References (Footnotes)\n")
	for i, t := range tags {
		summary, ok := evidence[t]
		if !ok || summary == "" {
			summary = NoEvidence
		}
		parts = append(parts, fmt.Sprintf("[^%d]: %s - %s\n", i+1, t, summary))
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// Segment is a run of prose or a tag with its evidence, for inline display.
type Segment struct {
	Text     string `json:"text"`
	Tag      Tag    `json:"tag,omitempty"`
	Evidence string `json:"evidence,omitempty"`
	Found    bool   `json:"found,omitempty"`
}

// IsTag reports whether the segment is a citation.
func (s Segment) IsTag() bool { return s.Tag != "" }

// Segments splits text for inline rendering; tag segments carry their evidence.
func Segments(text string, evidence EvidenceMap) []Segment {
	tokens := Scan(text)
	out := make([]Segment, 0, len(tokens))
	for _, tok := range tokens {
		if tok.Kind == Literal {
			out = append(out, Segment{Text: tok.Text})
			continue
		}
		t := tok.Tag()
		summary, ok := evidence[t]
		out = append(out, Segment{Text: tok.Text, Tag: t, Evidence: summary, Found: ok})
	}
	return out
}
