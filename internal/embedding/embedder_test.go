package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportmate/internal/domain"
)

// fakeProvider embeds each text as [len(text), 1] and records batch sizes.
type fakeProvider struct {
	batches []int
	failAt  int
	dims    map[int]int
}

func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) Model() string { return "fake-model" }

func (f *fakeProvider) EmbedBatch(_ context.Context, texts []string) ([][]float64, error) {
	f.batches = append(f.batches, len(texts))
	if f.failAt > 0 && len(f.batches) == f.failAt {
		return nil, errors.New("backend down")
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		dim := 2
		if d, ok := f.dims[len(f.batches)]; ok {
			dim = d
		}
		v := make([]float64, dim)
		v[0] = float64(len(t))
		v[1] = 1
		out[i] = v
	}
	return out, nil
}

type fakeFitter struct {
	fakeProvider
	corpus []string
}

func (f *fakeFitter) Fit(corpus []string) (Provider, error) {
	if len(corpus) == 0 {
		return nil, errors.New("empty corpus")
	}
	return &fakeFitter{corpus: corpus}, nil
}

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = string(make([]byte, i))
	}
	return out
}

func norm(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}

func TestClient_BatchesAtCeiling(t *testing.T) {
	p := &fakeProvider{}
	c := NewClient(p, WithBatchSize(4))

	vecs, err := c.Embed(context.Background(), texts(10))
	require.NoError(t, err)
	require.Len(t, vecs, 10)
	assert.Equal(t, []int{4, 4, 2}, p.batches)
}

func TestClient_PreservesOrderAndNormalises(t *testing.T) {
	c := NewClient(&fakeProvider{}, WithBatchSize(3))
	in := texts(7)

	vecs, err := c.Embed(context.Background(), in)
	require.NoError(t, err)
	for i, v := range vecs {
		assert.InDelta(t, 1.0, norm(v), 1e-6)
		want := Normalize([]float64{float64(i), 1})
		assert.InDeltaSlice(t, want, v, 1e-12, "row %d", i)
	}
}

func TestClient_DefaultBatchSize(t *testing.T) {
	p := &fakeProvider{}
	c := NewClient(p, WithBatchSize(0))
	assert.Equal(t, DefaultBatchSize, c.BatchSize())

	_, err := c.Embed(context.Background(), texts(130))
	require.NoError(t, err)
	assert.Equal(t, []int{128, 2}, p.batches)
}

func TestClient_ProviderFailureAbortsWithoutPartialOutput(t *testing.T) {
	p := &fakeProvider{failAt: 2}
	c := NewClient(p, WithBatchSize(2))

	vecs, err := c.Embed(context.Background(), texts(6))
	assert.Nil(t, vecs)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmbeddingBackend)

	var be *domain.EmbeddingBackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "embed", be.Stage)
	assert.Equal(t, 1, be.Batch)
	assert.Equal(t, []int{2, 2}, p.batches, "no batches after the failing one")
}

func TestClient_DimensionMismatchIsBackendError(t *testing.T) {
	p := &fakeProvider{dims: map[int]int{2: 3}}
	c := NewClient(p, WithBatchSize(2))

	_, err := c.Embed(context.Background(), texts(4))
	assert.ErrorIs(t, err, domain.ErrEmbeddingBackend)
}

func TestClient_EmbedQuery(t *testing.T) {
	c := NewClient(&fakeProvider{})
	v, err := c.EmbedQuery(context.Background(), "abc")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, norm(v), 1e-6)

	failing := NewClient(&fakeProvider{failAt: 1})
	_, err = failing.EmbedQuery(context.Background(), "abc")
	var be *domain.EmbeddingBackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "query", be.Stage)
}

func TestClient_FitReturnsFittedCopy(t *testing.T) {
	base := NewClient(&fakeFitter{}, WithBatchSize(8))

	fitted, err := base.Fit([]string{"a", "b"})
	require.NoError(t, err)
	assert.NotSame(t, base, fitted)
	assert.Equal(t, 8, fitted.BatchSize())
	assert.Equal(t, []string{"a", "b"}, fitted.provider.(*fakeFitter).corpus)
	assert.Nil(t, base.provider.(*fakeFitter).corpus)

	_, err = base.Fit(nil)
	assert.ErrorIs(t, err, domain.ErrEmbeddingBackend)
}

func TestClient_FitWithoutFitterIsIdentity(t *testing.T) {
	c := NewClient(&fakeProvider{})
	fitted, err := c.Fit([]string{"x"})
	require.NoError(t, err)
	assert.Same(t, c, fitted)
}

func TestClient_RateLimitHonoursContext(t *testing.T) {
	c := NewClient(&fakeProvider{}, WithRateLimit(0.001), WithBatchSize(1))
	ctx, cancel := context.WithCancel(context.Background())

	// The first call consumes the burst token; the second must wait and fails on a cancelled context.
	_, err := c.Embed(ctx, texts(1))
	require.NoError(t, err)
	cancel()
	_, err = c.Embed(ctx, texts(1))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrEmbeddingBackend, "caller cancellation is not a backend failure")
}

func TestClient_ProviderErrorAfterCancelIsNotBackendError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewClient(&fakeProvider{failAt: 1})

	_, err := c.Embed(ctx, texts(3))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	var be *domain.EmbeddingBackendError
	assert.False(t, errors.As(err, &be))
}

func TestNormalize_ZeroVector(t *testing.T) {
	v := Normalize([]float64{0, 0, 0})
	assert.Equal(t, []float64{0, 0, 0}, v)
}
