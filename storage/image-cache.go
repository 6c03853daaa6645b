package storage

import (
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// PromptImageCache caches generated images by exact prompt. With zero
// maxEntries and ttl it never evicts, so a prompt keeps its first image
// for the lifetime of the process.
type PromptImageCache struct {
	lru    *expirable.LRU[string, string]
	hits   atomic.Int64
	misses atomic.Int64
}

func NewPromptImageCache(maxEntries int, ttl time.Duration) *PromptImageCache {
	if maxEntries < 0 {
		maxEntries = 0
	}
	return &PromptImageCache{
		lru: expirable.NewLRU[string, string](maxEntries, nil, ttl),
	}
}

func (c *PromptImageCache) Get(prompt string) (string, bool) {
	image, ok := c.lru.Get(prompt)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return image, ok
}

func (c *PromptImageCache) Set(prompt, image string) {
	c.lru.Add(prompt, image)
}

func (c *PromptImageCache) Clear() int {
	n := c.lru.Len()
	c.lru.Purge()
	return n
}

func (c *PromptImageCache) Stats() CacheStats {
	return CacheStats{
		Entries: c.lru.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}
