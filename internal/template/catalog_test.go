package template

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutAndGet(t *testing.T) {
	c := NewMemoryCatalog("default")
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, &Template{ID: "tpl_1", Name: "Noir", Embedding: []float64{1, 0}}))

	tpl, err := c.Get(ctx, "tpl_1")
	require.NoError(t, err)
	assert.Equal(t, "Noir", tpl.Name)
	assert.False(t, tpl.CreatedAt.IsZero())

	_, err = c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMatchPicksHighestSimilarity(t *testing.T) {
	c := NewMemoryCatalog("default")
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, &Template{ID: "tpl_noir", Embedding: []float64{1, 0, 0}}))
	require.NoError(t, c.Put(ctx, &Template{ID: "tpl_pastel", Embedding: []float64{0.9, 0.1, 0}}))
	require.NoError(t, c.Put(ctx, &Template{ID: "tpl_other", Embedding: []float64{0, 1, 0}}))

	tpl, score, err := c.Match(ctx, []float64{1, 0, 0}, 0.8)
	require.NoError(t, err)
	assert.Equal(t, "tpl_noir", tpl.ID)
	assert.InDelta(t, 1.0, score, 1e-9)
}

func TestMatchBelowThresholdFallsBackToDefault(t *testing.T) {
	c := NewMemoryCatalog("default")
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, &Template{ID: "tpl_other", Embedding: []float64{0, 1}}))

	tpl, score, err := c.Match(ctx, []float64{1, 0}, 0.8)
	require.NoError(t, err)
	assert.Equal(t, "default", tpl.ID)
	assert.Zero(t, score)
}

func TestMatchEmptyCatalogUsesDefault(t *testing.T) {
	c := NewMemoryCatalog("default")

	tpl, score, err := c.Match(context.Background(), []float64{1, 0}, 0.8)
	require.NoError(t, err)
	assert.Equal(t, "default", tpl.ID)
	assert.Zero(t, score)
}

func TestDefaultSeedsLazily(t *testing.T) {
	c := NewMemoryCatalog("default")
	ctx := context.Background()

	tpl, err := c.Default(ctx)
	require.NoError(t, err)
	assert.Equal(t, "default", tpl.ID)
	assert.NotEmpty(t, tpl.Description)

	// Subsequent calls return the seeded template.
	again, err := c.Get(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, tpl.Description, again.Description)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float64{1, 2}, []float64{1, 2}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.Zero(t, cosine([]float64{1, 0}, []float64{1, 0, 0}))
	assert.Zero(t, cosine(nil, nil))
	assert.Zero(t, cosine([]float64{0, 0}, []float64{1, 1}))
}
