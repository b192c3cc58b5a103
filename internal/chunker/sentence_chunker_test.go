package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentenceChunker_Defaults(t *testing.T) {
	c := NewSentenceChunker(0, -1)
	assert.Equal(t, "sentence", c.Name())
	assert.Equal(t, "5::0", c.Params())
}

func TestSentenceChunker_OverlapClamped(t *testing.T) {
	c := NewSentenceChunker(2, 5)
	assert.Equal(t, "2::1", c.Params())
}

func TestSentenceChunker_Split(t *testing.T) {
	c := NewSentenceChunker(2, 1)
	chunks := c.Split("One. Two! Three? Four.")
	assert.Equal(t, []string{"One. Two!", "Two! Three?", "Three? Four."}, chunks)
}

func TestSentenceChunker_KeepsTrailingFragment(t *testing.T) {
	c := NewSentenceChunker(3, 0)
	chunks := c.Split("연구 배경을 서술한다. 결론 없음")
	assert.Equal(t, []string{"연구 배경을 서술한다. 결론 없음"}, chunks)
}

func TestSentenceChunker_Empty(t *testing.T) {
	c := NewSentenceChunker(3, 1)
	assert.Empty(t, c.Split("   "))
}
