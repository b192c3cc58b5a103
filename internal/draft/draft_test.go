package draft

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportmate/internal/citation"
	"reportmate/internal/domain"
)

const generatorOutput = `{
  "detailed_outline": {"서론": "전개 전략", "결론": "요약 전략"},
  "interactive_draft": {
    "서론": "1.1 배경 [REF:A.pdf,p1] 그리고 [REF:B.pdf,p2].",
    "이론적 배경": "선행연구 [REF:A.pdf,p1].",
    "연구방법": "설계 [REF:C.pdf,p3].",
    "결론": "함의."
  },
  "source_map": {
    "[REF:A.pdf,p1]": "A 근거",
    "[REF:B.pdf,p2]": "B 근거",
    "REF:broken": "dropped"
  }
}`

func TestParse(t *testing.T) {
	d, err := Parse([]byte(generatorOutput), nil)
	require.NoError(t, err)

	assert.Equal(t, "전개 전략", d.Outline.Introduction)
	assert.Empty(t, d.Outline.Background)
	assert.Equal(t, "함의.", d.Body.Conclusion)
	assert.Equal(t, citation.EvidenceMap{"[REF:A.pdf,p1]": "A 근거", "[REF:B.pdf,p2]": "B 근거"}, d.Evidence)
	assert.Equal(t, []citation.Tag{"[REF:A.pdf,p1]", "[REF:B.pdf,p2]", "[REF:C.pdf,p3]"}, d.UsedTags())
	assert.Equal(t, []citation.Tag{"[REF:C.pdf,p3]"}, d.MissingEvidence())
}

func TestParse_EnglishAliases(t *testing.T) {
	d, err := Parse([]byte(`{"interactive_draft":{"introduction":"intro","methods":"m"}}`), nil)
	require.NoError(t, err)
	assert.Equal(t, "intro", d.Body.Get(domain.Introduction))
	assert.Equal(t, "m", d.Body.Methods)
	assert.NotNil(t, d.Evidence)
}

func TestParse_Rejects(t *testing.T) {
	tests := map[string]string{
		"not json":        `{"interactive_draft":`,
		"unknown section": `{"interactive_draft":{"appendix":"x"}}`,
		"nested value":    `{"interactive_draft":{"서론":{"1.1":"x"}}}`,
		"empty body":      `{"interactive_draft":{"서론":"  "}}`,
		"missing body":    `{"detailed_outline":{"서론":"x"}}`,
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(input), nil)
			assert.ErrorIs(t, err, domain.ErrGeneratorOutput)
		})
	}
}

func TestDraft_JSONRoundTrip(t *testing.T) {
	d, err := Parse([]byte(generatorOutput), nil)
	require.NoError(t, err)
	d.ExpansionLevel = 2

	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"이론적 배경"`)

	back, err := Parse(data, nil)
	require.NoError(t, err)
	assert.Equal(t, d, back)
}

func TestExpand(t *testing.T) {
	prev, err := Parse([]byte(generatorOutput), nil)
	require.NoError(t, err)

	next := &Draft{Evidence: citation.EvidenceMap{"[REF:D.pdf,p4]": "D 근거", "[REF:A.pdf,p1]": ""}}
	next.Body.Introduction = prev.Body.Introduction + " 추가 문단 [REF:D.pdf,p4]."

	out := Expand(prev, next)
	assert.Equal(t, 1, out.ExpansionLevel)
	assert.Equal(t, next.Body.Introduction, out.Body.Introduction)
	assert.Equal(t, prev.Body.Methods, out.Body.Methods, "blank sections keep previous text")
	assert.Equal(t, prev.Outline, out.Outline)
	assert.Equal(t, "A 근거", out.Evidence["[REF:A.pdf,p1]"])
	assert.Equal(t, "D 근거", out.Evidence["[REF:D.pdf,p4]"])
	assert.Contains(t, out.UsedTags(), citation.Tag("[REF:D.pdf,p4]"))

	again := Expand(out, &Draft{})
	assert.Equal(t, 2, again.ExpansionLevel)
}

func TestSections_List(t *testing.T) {
	s := Sections{Introduction: "i", Conclusion: "c"}
	list := s.List()
	require.Len(t, list, 4)
	assert.Equal(t, citation.Section{Name: "서론", Text: "i"}, list[0])
	assert.Equal(t, citation.Section{Name: "결론", Text: "c"}, list[3])
	assert.False(t, s.Empty())
	assert.True(t, (&Sections{}).Empty())
}
