package embedding

import (
	"context"

	"github.com/dgraph-io/ristretto"
)

/*
Cached remembers vectors per model and text, so recalling the same query
twice or storing a duplicate does not pay for a second provider call.
*/
type Cached struct {
	inner Embedder
	cache *ristretto.Cache
}

func NewCached(inner Embedder, maxEntries int64) (*Cached, error) {
	if maxEntries <= 0 {
		maxEntries = 10_000
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})

	if err != nil {
		return nil, err
	}

	return &Cached{inner: inner, cache: cache}, nil
}

func (c *Cached) key(text string) string {
	return c.inner.Model() + "\x00" + text
}

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)

	if hit, ok := c.cache.Get(key); ok {
		return append([]float32(nil), hit.([]float32)...), nil
	}

	vector, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.Set(key, append([]float32(nil), vector...), 1)

	return vector, nil
}

func (c *Cached) Dimension() int {
	return c.inner.Dimension()
}

func (c *Cached) Model() string {
	return c.inner.Model()
}

// Wait blocks until buffered cache writes are applied.
func (c *Cached) Wait() {
	c.cache.Wait()
}

func (c *Cached) Close() {
	c.cache.Close()
}
