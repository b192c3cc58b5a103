package draft

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"
)

// Prompt is a system and user message pair for the generator.
type Prompt struct {
	System string
	User   string
	// Temperature used for this pass.
	Temperature float64
}

// PromptInput is the research framing and retrieved context of one pass.
type PromptInput struct {
	Topic      string
	Purpose    string
	Hypothesis string
	Context    string
	Paragraphs int
	MinChars   int
}

const editorRole = `당신은 석사학위 논문 지도 경험이 많은 학술 에디터입니다.
제공된 자료만을 근거로 석사 논문 수준의 엄밀한 학술 문체로 서술하며, 주장과 근거, 비판적 논의, 연구 공백 및 기여의 연결을 분명히 합니다.
`

const schemaBlock = `[JSON 스키마 - 이 구조로만 출력]
{
  "detailed_outline": {"서론": "...", "이론적 배경": "...", "연구방법": "...", "결론": "..."},
  "interactive_draft": {"서론": "...", "이론적 배경": "...", "연구방법": "...", "결론": "..."},
  "source_map": {"[REF:파일명,p숫자]": "이 REF가 뒷받침하는 해당 페이지의 핵심 근거 요약"}
}`

const refRules = `[REF 규칙]
- 태그 형식은 정확히 [REF:파일명,p숫자]
- 파일명은 SOURCE에 표기된 이름을 그대로 사용
- 페이지 숫자는 SOURCE의 PAGE 값을 사용`

var initialTmpl = template.Must(template.New("initial").Parse(`주제: {{.Topic}}
목적: {{.Purpose}}
가설: {{.Hypothesis}}

[자료 원문]
{{.Context}}

[출력 언어]
- 한국어

[요구사항]
1) detailed_outline: 섹션(서론/이론적 배경/연구방법/결론)마다 6~10문장 이내의 전개 전략 요약.
2) interactive_draft:
   - 섹션을 소절로 나누어 작성 (예: 서론 1.1~1.4, 이론적 배경 2.1~2.4, 연구방법 3.1~3.5, 결론 4.1~4.4).
   - 소절마다 최소 {{.Paragraphs}}개 문단, 문단마다 최소 {{.MinChars}}자.
   - 문단마다 인용 태그 [REF:파일명,p숫자]를 1개 이상(가능하면 2개) 포함.
   - 주장 → 근거 → 비판적 논의와 한계 → 연구 공백과 본 연구의 위치를 균형 있게 전개.
3) source_map: 사용한 모든 [REF:...] 태그에 해당 페이지 근거 요약을 구체적으로 작성.

{{.Rules}}

{{.Schema}}
`))

var expandTmpl = template.Must(template.New("expand").Parse(`주제: {{.Topic}}
목적: {{.Purpose}}
가설: {{.Hypothesis}}

[자료 원문]
{{.Context}}

[기존 결과(JSON)]
{{.Current}}

[확장 요구사항]
- interactive_draft만 더 길게 확장하고, 기존 문단을 포함한 전체 텍스트를 출력.
- 소절마다 문단을 {{.Paragraphs}}개씩 추가, 새 문단은 최소 {{.MinChars}}자.
- 새 문단마다 [REF:파일명,p숫자]를 1개 이상(가능하면 2개) 포함.
- source_map에는 새로 등장한 REF를 반드시 추가하고 기존 REF 매핑도 유지.
- 기존 서술과 모순되지 않게 개념 정교화, 한계, 연구 공백을 더 명확히.

{{.Rules}}

{{.Schema}}
`))

type promptData struct {
	PromptInput
	Current string
	Rules   string
	Schema  string
}

// InitialPrompt builds the first drafting pass.
func InitialPrompt(in PromptInput) (Prompt, error) {
	user, err := render(initialTmpl, promptData{PromptInput: in, Rules: refRules, Schema: schemaBlock})
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{
		System:      editorRole + "지정한 JSON 스키마로만 출력하세요.",
		User:        user,
		Temperature: 0.45,
	}, nil
}

// ExpandPrompt builds an expansion pass over current.
func ExpandPrompt(in PromptInput, current *Draft) (Prompt, error) {
	cur, err := json.Marshal(current)
	if err != nil {
		return Prompt{}, fmt.Errorf("marshal current draft: %w", err)
	}
	user, err := render(expandTmpl, promptData{PromptInput: in, Current: string(cur), Rules: refRules, Schema: schemaBlock})
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{
		System:      editorRole + "기존 초안을 근거 밀도를 유지하며 더 길게 확장합니다. 지정한 JSON 스키마로만 출력하세요.",
		User:        user,
		Temperature: 0.5,
	}, nil
}

func render(t *template.Template, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}
	return buf.String(), nil
}
