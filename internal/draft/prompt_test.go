package draft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialPrompt(t *testing.T) {
	p, err := InitialPrompt(PromptInput{
		Topic: "자기효능감", Purpose: "지속성 설명", Hypothesis: "정적 관계",
		Context: "[SOURCE: A.pdf, PAGE: 1]\n본문", Paragraphs: 2, MinChars: 200,
	})
	require.NoError(t, err)
	assert.Contains(t, p.System, "JSON")
	assert.Contains(t, p.User, "주제: 자기효능감")
	assert.Contains(t, p.User, "[SOURCE: A.pdf, PAGE: 1]")
	assert.Contains(t, p.User, "최소 2개 문단")
	assert.Contains(t, p.User, "최소 200자")
	assert.Contains(t, p.User, "[REF:파일명,p숫자]")
	assert.Contains(t, p.User, `"interactive_draft"`)
	assert.InDelta(t, 0.45, p.Temperature, 1e-9)
}

func TestExpandPrompt_IncludesCurrentDraft(t *testing.T) {
	d, err := Parse([]byte(generatorOutput), nil)
	require.NoError(t, err)

	p, err := ExpandPrompt(PromptInput{Topic: "t", Paragraphs: 1, MinChars: 150}, d)
	require.NoError(t, err)
	assert.Contains(t, p.User, "[기존 결과(JSON)]")
	assert.Contains(t, p.User, "1.1 배경")
	assert.Contains(t, p.User, "문단을 1개씩 추가")
	assert.InDelta(t, 0.5, p.Temperature, 1e-9)
}
