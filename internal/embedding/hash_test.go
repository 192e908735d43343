package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assistant/internal/domain"
)

func TestHashEmbedderDeterminism(t *testing.T) {
	e, err := NewHashEmbedder(384)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := e.Embed(ctx, "The company was founded in 2020 in San Francisco.")
	require.NoError(t, err)
	second, err := e.Embed(ctx, "The company was founded in 2020 in San Francisco.")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, e.Dimension())
}

func TestHashEmbedderNormalised(t *testing.T) {
	e, err := NewHashEmbedder(64)
	require.NoError(t, err)
	vec, err := e.Embed(context.Background(), "some text to embed with several distinct words")
	require.NoError(t, err)
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
}

func TestHashEmbedderRejectsEmptyInput(t *testing.T) {
	e, err := NewHashEmbedder(64)
	require.NoError(t, err)
	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := e.Embed(context.Background(), text)
		require.Error(t, err)
		assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
	}
}

func TestHashEmbedderBatchOrder(t *testing.T) {
	e, err := NewHashEmbedder(128)
	require.NoError(t, err)
	texts := []string{"alpha beta", "gamma delta", "alpha beta"}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, vecs[0], vecs[2])
	assert.NotEqual(t, vecs[0], vecs[1])
}

func TestHashEmbedderRejectsBadDimension(t *testing.T) {
	for _, dim := range []int{0, -5} {
		_, err := NewHashEmbedder(dim)
		require.Error(t, err)
		assert.Equal(t, domain.KindInvalidConfiguration, domain.KindOf(err))
	}
}

func TestHashEmbedderSimilarTextsCloser(t *testing.T) {
	e, err := NewHashEmbedder(384)
	require.NoError(t, err)
	ctx := context.Background()
	a, err := e.Embed(ctx, "the quick brown fox jumps over the lazy dog")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "the quick brown fox leaps over the lazy dog")
	require.NoError(t, err)
	c, err := e.Embed(ctx, "completely unrelated sentence about quarterly finance reports")
	require.NoError(t, err)

	assert.Greater(t, cosine(a, b), cosine(a, c))
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
