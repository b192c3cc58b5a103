// Package draft holds the typed generator output: outline, draft prose and
// the evidence map, validated where the raw JSON enters the system.
package draft

import (
	"encoding/json"
	"fmt"
	"strings"

	"reportmate/internal/citation"
	"reportmate/internal/domain"
	"reportmate/internal/logger"
)

// Sections holds one text per fixed draft section. JSON keys are the
// section display names.
type Sections struct {
	Introduction string `json:"서론"`
	Background   string `json:"이론적 배경"`
	Methods      string `json:"연구방법"`
	Conclusion   string `json:"결론"`
}

// Get returns the text for key.
func (s *Sections) Get(key domain.SectionKey) string {
	if p := s.field(key); p != nil {
		return *p
	}
	return ""
}

// Set stores text for key; unknown keys are ignored.
func (s *Sections) Set(key domain.SectionKey, text string) {
	if p := s.field(key); p != nil {
		*p = text
	}
}

func (s *Sections) field(key domain.SectionKey) *string {
	switch key {
	case domain.Introduction:
		return &s.Introduction
	case domain.Background:
		return &s.Background
	case domain.Methods:
		return &s.Methods
	case domain.Conclusion:
		return &s.Conclusion
	}
	return nil
}

// List returns the sections in document order, named by display name.
func (s *Sections) List() []citation.Section {
	defs := domain.DefaultSections()
	out := make([]citation.Section, len(defs))
	for i, d := range defs {
		out[i] = citation.Section{Name: d.Name, Text: s.Get(d.Key)}
	}
	return out
}

// Empty reports whether every section is blank.
func (s *Sections) Empty() bool {
	for _, sec := range s.List() {
		if strings.TrimSpace(sec.Text) != "" {
			return false
		}
	}
	return true
}

// Draft is one generation result.
type Draft struct {
	Outline        Sections             `json:"detailed_outline"`
	Body           Sections             `json:"interactive_draft"`
	Evidence       citation.EvidenceMap `json:"source_map"`
	ExpansionLevel int                  `json:"expansion_level"`
}

type rawDraft struct {
	Outline        map[string]json.RawMessage `json:"detailed_outline"`
	Body           map[string]json.RawMessage `json:"interactive_draft"`
	SourceMap      map[string]string          `json:"source_map"`
	ExpansionLevel int                        `json:"expansion_level"`
}

// Parse validates raw generator output. Section keys may be display names
// or section keys; anything else, a non-string section value, or an empty
// draft body is rejected with domain.ErrGeneratorOutput. source_map keys
// that are not well-formed tags are dropped and logged.
func Parse(data []byte, log *logger.Logger) (*Draft, error) {
	log = logger.OrNop(log)
	var raw rawDraft
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGeneratorOutput, err)
	}

	d := &Draft{Evidence: citation.EvidenceMap{}, ExpansionLevel: raw.ExpansionLevel}
	if err := fillSections(&d.Outline, raw.Outline, "detailed_outline"); err != nil {
		return nil, err
	}
	if err := fillSections(&d.Body, raw.Body, "interactive_draft"); err != nil {
		return nil, err
	}
	if d.Body.Empty() {
		return nil, fmt.Errorf("%w: interactive_draft is empty", domain.ErrGeneratorOutput)
	}
	for k, v := range raw.SourceMap {
		tag := citation.Tag(strings.TrimSpace(k))
		if !tag.Valid() {
			log.Warn("dropping malformed source_map key", "key", k)
			continue
		}
		d.Evidence[tag] = v
	}
	return d, nil
}

func fillSections(dst *Sections, src map[string]json.RawMessage, field string) error {
	for name, value := range src {
		sec, ok := domain.SectionByName(strings.TrimSpace(name))
		if !ok {
			return fmt.Errorf("%w: %s has unknown section %q", domain.ErrGeneratorOutput, field, name)
		}
		var text string
		if err := json.Unmarshal(value, &text); err != nil {
			return fmt.Errorf("%w: %s.%s is not a string", domain.ErrGeneratorOutput, field, name)
		}
		dst.Set(sec.Key, text)
	}
	return nil
}

// UsedTags returns the tags cited in the draft body, in first-seen order.
func (d *Draft) UsedTags() []citation.Tag {
	return citation.ExtractTags(d.Body.List())
}

// MissingEvidence lists cited tags that have no evidence summary.
func (d *Draft) MissingEvidence() []citation.Tag {
	var out []citation.Tag
	for _, t := range d.UsedTags() {
		if strings.TrimSpace(d.Evidence[t]) == "" {
			out = append(out, t)
		}
	}
	return out
}

// Expand folds an expansion pass into prev. The new pass carries the full
// section texts; a section it left blank keeps the previous text. Evidence
// is merged so no earlier tag is lost.
func Expand(prev, next *Draft) *Draft {
	out := &Draft{
		Evidence:       prev.Evidence.Merge(next.Evidence),
		ExpansionLevel: prev.ExpansionLevel + 1,
	}
	for _, sec := range domain.DefaultSections() {
		out.Outline.Set(sec.Key, pick(next.Outline.Get(sec.Key), prev.Outline.Get(sec.Key)))
		out.Body.Set(sec.Key, pick(next.Body.Get(sec.Key), prev.Body.Get(sec.Key)))
	}
	return out
}

func pick(next, prev string) string {
	if strings.TrimSpace(next) == "" {
		return prev
	}
	return next
}
