// Package cached decorates another embedder with a ristretto cache.
// The event classifier tends to resubmit near-identical text (the same
// query phrasing, repeated event templates), and real embedders are
// the slowest call in a turn, so caching text-to-vector pays off.
package cached

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/fablemill/reverie/memory"
)

// Embedder wraps an inner embedder and caches its results by text.
type Embedder struct {
	inner memory.Embedder
	cache *ristretto.Cache
}

// New creates a caching embedder holding up to maxEntries vectors.
func New(inner memory.Embedder, maxEntries int64) (*Embedder, error) {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	return &Embedder{inner: inner, cache: cache}, nil
}

// Embed returns the cached vector for the text, or embeds and caches
// it. Errors from the inner embedder are never cached, so a transient
// failure does not poison later calls.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Get(text); ok {
		return v.([]float32), nil
	}
	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, vec, 1)
	return vec, nil
}

// Dimensions returns the inner embedder's vector size.
func (e *Embedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Close releases the cache.
func (e *Embedder) Close() {
	e.cache.Close()
}
