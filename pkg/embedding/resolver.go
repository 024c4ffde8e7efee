package embedding

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/memoria/pkg/config"
)

type resolved struct {
	key      string
	cfg      config.Embedding
	embedder Embedder
}

/*
Resolver follows the active embedding profile. When the profile's
identifying fields change, the next call builds a fresh provider instead
of reusing the old one.
*/
type Resolver struct {
	active    func() config.Embedding
	build     func(config.Embedding) (Embedder, error)
	cacheSize int64

	mu      sync.Mutex
	current atomic.Pointer[resolved]
}

type ResolverOption func(*Resolver)

func WithBuilder(build func(config.Embedding) (Embedder, error)) ResolverOption {
	return func(r *Resolver) {
		r.build = build
	}
}

func WithCacheSize(entries int64) ResolverOption {
	return func(r *Resolver) {
		r.cacheSize = entries
	}
}

func NewResolver(active func() config.Embedding, options ...ResolverOption) *Resolver {
	resolver := &Resolver{active: active, build: New}

	for _, option := range options {
		option(resolver)
	}

	return resolver
}

func (resolver *Resolver) resolve() (*resolved, error) {
	cfg := resolver.active()
	key := cfg.Key()

	if current := resolver.current.Load(); current != nil && current.key == key {
		return current, nil
	}

	resolver.mu.Lock()
	defer resolver.mu.Unlock()

	if current := resolver.current.Load(); current != nil && current.key == key {
		return current, nil
	}

	embedder, err := resolver.build(cfg)
	if err != nil {
		return nil, err
	}

	if resolver.cacheSize >= 0 {
		cached, err := NewCached(embedder, resolver.cacheSize)
		if err != nil {
			return nil, err
		}

		embedder = cached
	}

	next := &resolved{key: key, cfg: cfg, embedder: embedder}

	if previous := resolver.current.Swap(next); previous != nil {
		log.Info("embedding profile changed", "from", previous.cfg.Name, "to", cfg.Name, "model", cfg.Model)
	}

	return next, nil
}

func (resolver *Resolver) Embed(ctx context.Context, text string) ([]float32, error) {
	current, err := resolver.resolve()
	if err != nil {
		return nil, err
	}

	if current.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, current.cfg.Timeout)
		defer cancel()
	}

	return current.embedder.Embed(ctx, text)
}

// Dimension is the dimension the active profile declares.
func (resolver *Resolver) Dimension() int {
	if dimension := resolver.active().Dimension; dimension > 0 {
		return dimension
	}

	return config.DefaultDimension
}

func (resolver *Resolver) Model() string {
	return resolver.active().Model
}
