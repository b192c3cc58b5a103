package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportmate/internal/domain"
	"reportmate/internal/embedding"
	"reportmate/internal/embedding/tfidf"
	"reportmate/internal/vectorstore/memory"
)

var pages = []domain.Page{
	{Document: "A.pdf", Number: 1, Text: "alpha beta"},
	{Document: "A.pdf", Number: 2, Text: "gamma delta"},
}

func readySession(t *testing.T, chunks []domain.Chunk) RetrievalSession {
	t.Helper()
	client, err := embedding.NewClient(tfidf.NewEmbedder()).Fit([]string{"alpha beta", "gamma delta"})
	require.NoError(t, err)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	var vecs [][]float64
	if len(texts) > 0 {
		vecs, err = client.Embed(context.Background(), texts)
		require.NoError(t, err)
	}
	idx := memory.NewIndex()
	require.NoError(t, idx.Build(context.Background(), chunks, vecs))
	return RetrievalSession{Index: idx, Embedder: client, Pages: pages, Chunks: chunks}
}

func TestSectionQuery(t *testing.T) {
	s := domain.Section{Name: "서론", Hints: []string{"연구 배경", "문제 제기"}}
	got := SectionQuery(Query{Topic: "T", Purpose: "P", Hypothesis: "H"}, s)
	assert.Equal(t, "T / P / H / 서론 / 연구 배경 문제 제기", got)
}

func TestAssemble_RendersSectionsInOrder(t *testing.T) {
	chunks := []domain.Chunk{
		{ID: "A.pdf::p1::c1", Document: "A.pdf", Page: 1, Ordinal: 1, Text: "alpha beta"},
		{ID: "A.pdf::p2::c1", Document: "A.pdf", Page: 2, Ordinal: 1, Text: "gamma delta"},
	}
	sess := readySession(t, chunks)
	sections := []domain.Section{{Name: "First", Hints: []string{"alpha"}}, {Name: "Second", Hints: []string{"gamma"}}}

	out, err := NewAssembler(true, 100, nil).Assemble(context.Background(), sess, Query{Topic: "x"}, sections, 1)
	require.NoError(t, err)
	assert.False(t, out.Degraded)
	require.Len(t, out.Sections, 2)
	assert.Equal(t, "A.pdf::p1::c1", out.Sections[0].Hits[0].Chunk.ID)
	assert.Equal(t, "A.pdf::p2::c1", out.Sections[1].Hits[0].Chunk.ID)

	want := "=== SECTION CONTEXT: First ===\n\n[SOURCE: A.pdf, PAGE: 1]\nalpha beta\n" +
		"\n=== SECTION CONTEXT: Second ===\n\n[SOURCE: A.pdf, PAGE: 2]\ngamma delta"
	assert.Equal(t, want, out.Context)
}

func TestAssemble_NotReadyFallsBack(t *testing.T) {
	sess := RetrievalSession{Pages: pages}
	out, err := NewAssembler(true, 1000, nil).Assemble(context.Background(), sess, Query{}, domain.DefaultSections(), 3)
	require.NoError(t, err)
	assert.True(t, out.Degraded)
	assert.Equal(t, ReasonIndexNotReady, out.Reason)
	assert.Contains(t, out.Context, "[SOURCE: A.pdf, PAGE: 1]\nalpha beta")
	assert.Empty(t, out.Sections)
}

func TestAssemble_EmptyIndexFallsBack(t *testing.T) {
	sess := readySession(t, nil)
	out, err := NewAssembler(true, 1000, nil).Assemble(context.Background(), sess, Query{}, domain.DefaultSections(), 3)
	require.NoError(t, err)
	assert.True(t, out.Degraded)
	assert.Equal(t, ReasonNoHits, out.Reason)
}

func TestAssemble_FallbackRespectsCharBudget(t *testing.T) {
	out, err := NewAssembler(true, 10, nil).Assemble(context.Background(), RetrievalSession{Pages: pages}, Query{}, nil, 3)
	require.NoError(t, err)
	assert.Len(t, []rune(out.Context), 10)
}

func TestAssemble_RAGDisabled(t *testing.T) {
	sess := readySession(t, []domain.Chunk{{ID: "A.pdf::p1::c1", Document: "A.pdf", Page: 1, Ordinal: 1, Text: "alpha beta"}})
	out, err := NewAssembler(false, 1000, nil).Assemble(context.Background(), sess, Query{}, domain.DefaultSections(), 3)
	require.NoError(t, err)
	assert.False(t, out.Degraded)
	assert.Equal(t, ReasonRAGDisabled, out.Reason)
	assert.Contains(t, out.Context, "[SOURCE: A.pdf, PAGE: 2]")
}
