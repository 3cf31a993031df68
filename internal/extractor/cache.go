package extractor

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/scrypster/notouch/pkg/types"
)

// CachingExtractor memoises embeddings by frame content. A camera watching a
// still scene produces byte-identical snapshots, and those skip the model.
type CachingExtractor struct {
	next   FeatureExtractor
	cache  *lru.Cache[[sha256.Size]byte, types.Embedding]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCachingExtractor wraps next with an LRU cache holding size embeddings.
func NewCachingExtractor(next FeatureExtractor, size int) (*CachingExtractor, error) {
	cache, err := lru.New[[sha256.Size]byte, types.Embedding](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &CachingExtractor{next: next, cache: cache}, nil
}

// Embed returns the cached embedding for identical frame bytes or computes it.
// Failures are never cached.
func (c *CachingExtractor) Embed(ctx context.Context, frame Frame) (types.Embedding, error) {
	key := sha256.Sum256(frame.Data)
	if e, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return e.Clone(), nil
	}
	c.misses.Add(1)

	e, err := c.next.Embed(ctx, frame)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, e.Clone())
	return e, nil
}

// CacheStats reports how a CachingExtractor has been serving requests.
type CacheStats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Entries int    `json:"entries"`
}

// Stats returns cache counters and the number of cached embeddings.
func (c *CachingExtractor) Stats() CacheStats {
	return CacheStats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.cache.Len(),
	}
}
