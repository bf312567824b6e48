package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the default number of cached embeddings. Bank FAQ
// corpora are small, so this comfortably covers repeated query traffic.
const DefaultCacheSize = 4096

// CachedEmbedder wraps an EmbeddingProvider with an LRU cache keyed by
// model name and text. Repeated queries (the common case for FAQ-style
// traffic) skip the backend entirely.
type CachedEmbedder struct {
	inner EmbeddingProvider
	cache *lru.Cache[string, []float32]
}

// Compile-time interface check.
var _ EmbeddingProvider = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps inner with an LRU cache of the given size.
// Size <= 0 uses DefaultCacheSize.
func NewCachedEmbedder(inner EmbeddingProvider, size int) (*CachedEmbedder, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}

	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}

	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

// cacheKey includes the model name so switching backends never serves
// vectors from a different embedding space.
func (e *CachedEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(e.inner.ModelName() + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// Embed returns a cached embedding or delegates to the inner provider.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := e.cacheKey(text)
	if vec, ok := e.cache.Get(key); ok {
		return vec, nil
	}

	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	e.cache.Add(key, vec)
	return vec, nil
}

// EmbedBatch serves cached entries and forwards only the misses to the
// inner provider in a single batch.
func (e *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		if vec, ok := e.cache.Get(e.cacheKey(text)); ok {
			results[i] = vec
		} else {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, text)
		}
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	embeddings, err := e.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	for i, vec := range embeddings {
		results[missIdx[i]] = vec
		e.cache.Add(e.cacheKey(missTexts[i]), vec)
	}

	return results, nil
}

// Len returns the number of cached embeddings.
func (e *CachedEmbedder) Len() int {
	return e.cache.Len()
}

// Purge drops all cached embeddings. Called after corpus mutations that
// change the embedding model.
func (e *CachedEmbedder) Purge() {
	e.cache.Purge()
}

// Dimensions returns the inner provider's embedding dimension.
func (e *CachedEmbedder) Dimensions() int {
	return e.inner.Dimensions()
}

// ModelName returns the inner provider's model identifier.
func (e *CachedEmbedder) ModelName() string {
	return e.inner.ModelName()
}

// Available delegates to the inner provider.
func (e *CachedEmbedder) Available(ctx context.Context) bool {
	return e.inner.Available(ctx)
}

// Close purges the cache and closes the inner provider.
func (e *CachedEmbedder) Close() error {
	e.cache.Purge()
	return e.inner.Close()
}
