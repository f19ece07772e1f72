package llm

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// WrapQueryCache caches single-text embedding calls. Retrieval queries are
// embedded one at a time and the quiz query is the same for every session,
// while document chunks always arrive in batches and bypass the cache.
func WrapQueryCache(e Embedder, size int, ttl time.Duration) Embedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &cachedEmbedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type cachedEmbedder struct {
	next  Embedder
	cache *expirable.LRU[string, []float32]
}

func (c *cachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) != 1 {
		return c.next.Embed(ctx, texts)
	}
	if cached, ok := c.cache.Get(texts[0]); ok {
		return [][]float32{cloneVector(cached)}, nil
	}
	res, err := c.next.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(res) == 1 && len(res[0]) > 0 {
		c.cache.Add(texts[0], cloneVector(res[0]))
	}
	return res, nil
}

func cloneVector(values []float32) []float32 {
	out := make([]float32, len(values))
	copy(out, values)
	return out
}
