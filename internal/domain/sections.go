package domain

// SectionKey names one of the four fixed draft sections.
type SectionKey string

const (
	Introduction SectionKey = "introduction"
	Background   SectionKey = "background"
	Methods      SectionKey = "methods"
	Conclusion   SectionKey = "conclusion"
)

// Section is a logical document section and the topical hints used to
// build its retrieval query.
type Section struct {
	Key   SectionKey
	Name  string
	Hints []string
}

// DefaultSections are the sections of a thesis draft, in document order.
func DefaultSections() []Section {
	return []Section{
		{Key: Introduction, Name: "서론", Hints: []string{"연구 배경", "문제 제기", "연구 필요성", "연구 질문"}},
		{Key: Background, Name: "이론적 배경", Hints: []string{"핵심 개념 정의", "선행연구", "이론", "연구 공백"}},
		{Key: Methods, Name: "연구방법", Hints: []string{"연구 설계", "표본", "측정", "변수", "분석 방법", "타당도"}},
		{Key: Conclusion, Name: "결론", Hints: []string{"요약", "함의", "한계", "후속 연구"}},
	}
}

// SectionByName resolves a section by its display name or its key.
func SectionByName(name string) (Section, bool) {
	for _, s := range DefaultSections() {
		if s.Name == name || string(s.Key) == name {
			return s, true
		}
	}
	return Section{}, false
}
