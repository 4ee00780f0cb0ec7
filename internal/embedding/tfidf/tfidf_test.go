package tfidf

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedBeforePrepareFails(t *testing.T) {
	_, err := NewEmbedder().Embed(context.Background(), "tofu")
	assert.Error(t, err)
}

func TestPrepareEmptyCorpus(t *testing.T) {
	assert.Error(t, NewEmbedder().Prepare(nil))
	assert.Error(t, NewEmbedder().Prepare([]string{"the and of"}))
}

func TestEmbedIsNormalizedAndSimilar(t *testing.T) {
	e := NewEmbedder()
	require.NoError(t, e.Prepare([]string{
		"tofu with ground pork and sichuan peppercorns",
		"steamed fish with ginger and scallion",
	}))
	assert.Greater(t, e.Dimension(), 0)

	vecs, err := e.EmbedBatch(context.Background(), []string{
		"tofu pork peppercorns",
		"fish ginger",
		"tofu",
	})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	norm := 0.0
	for _, v := range vecs[0] {
		norm += v * v
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)

	assert.Greater(t, dot(vecs[2], vecs[0]), dot(vecs[2], vecs[1]))
}

func TestEmbedUnknownWordsIsZero(t *testing.T) {
	e := NewEmbedder()
	require.NoError(t, e.Prepare([]string{"dumplings"}))

	v, err := e.Embed(context.Background(), "noodles")
	require.NoError(t, err)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
