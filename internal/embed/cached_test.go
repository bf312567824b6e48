package embed

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder wraps StaticEmbedder and counts backend calls.
type countingEmbedder struct {
	*StaticEmbedder
	embedCalls int32
	batchTexts int32
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt32(&c.embedCalls, 1)
	return c.StaticEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt32(&c.batchTexts, int32(len(texts)))
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func newCachedForTest(t *testing.T) (*CachedEmbedder, *countingEmbedder) {
	t.Helper()
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	cached, err := NewCachedEmbedder(inner, 16)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cached.Close() })
	return cached, inner
}

func TestCachedEmbedder_SecondCallHitsCache(t *testing.T) {
	cached, inner := newCachedForTest(t)
	ctx := context.Background()

	first, err := cached.Embed(ctx, "block my card")
	require.NoError(t, err)
	second, err := cached.Embed(ctx, "block my card")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.embedCalls))
	assert.Equal(t, 1, cached.Len())
}

func TestCachedEmbedder_BatchForwardsOnlyMisses(t *testing.T) {
	cached, inner := newCachedForTest(t)
	ctx := context.Background()

	_, err := cached.Embed(ctx, "card fees")
	require.NoError(t, err)

	batch, err := cached.EmbedBatch(ctx, []string{"card fees", "overdraft", "card fees"})
	require.NoError(t, err)
	require.Len(t, batch, 3)

	// Only "overdraft" missed; cached texts never reach the backend.
	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.batchTexts))
	assert.Equal(t, batch[0], batch[2])
}

func TestCachedEmbedder_PurgeForcesRecompute(t *testing.T) {
	cached, inner := newCachedForTest(t)
	ctx := context.Background()

	_, err := cached.Embed(ctx, "standing order")
	require.NoError(t, err)
	cached.Purge()
	assert.Equal(t, 0, cached.Len())

	_, err = cached.Embed(ctx, "standing order")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&inner.embedCalls))
}

func TestCachedEmbedder_DelegatesMetadata(t *testing.T) {
	cached, _ := newCachedForTest(t)

	assert.Equal(t, StaticDimensions, cached.Dimensions())
	assert.Equal(t, "static", cached.ModelName())
	assert.True(t, cached.Available(context.Background()))
}
