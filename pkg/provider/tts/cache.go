package tts

import (
	"container/list"
	"context"
	"fmt"
	"sync"
)

// DefaultCacheEntries is the default capacity of a [Cache].
const DefaultCacheEntries = 256

// Cache wraps a Provider and memoises synthesis results keyed by
// (text, voice, speed). Question prompts repeat across interviews that share a
// plan, so the same clip is often requested many times.
//
// Eviction is least-recently-used. Cache is safe for concurrent use.
type Cache struct {
	inner    Provider
	capacity int

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used
}

// cacheEntry is the value stored in the LRU list.
type cacheEntry struct {
	key   string
	audio []byte
}

var _ Provider = (*Cache)(nil)

// NewCache wraps inner with an LRU cache of the given capacity.
// A capacity below one selects DefaultCacheEntries.
func NewCache(inner Provider, capacity int) *Cache {
	if capacity < 1 {
		capacity = DefaultCacheEntries
	}
	return &Cache{
		inner:    inner,
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Synthesize implements Provider. Concurrent misses for the same key may both
// reach the inner provider; the second result simply overwrites the first.
func (c *Cache) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	key := fmt.Sprintf("%s\x00%s\x00%.2f", req.Text, req.Voice, req.Speed)

	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		audio := el.Value.(*cacheEntry).audio
		c.mu.Unlock()
		return audio, nil
	}
	c.mu.Unlock()

	audio, err := c.inner.Synthesize(ctx, req)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).audio = audio
		c.order.MoveToFront(el)
	} else {
		c.entries[key] = c.order.PushFront(&cacheEntry{key: key, audio: audio})
		for c.order.Len() > c.capacity {
			oldest := c.order.Back()
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}
	c.mu.Unlock()

	return audio, nil
}

// Voices implements Provider by delegating to the wrapped provider.
func (c *Cache) Voices(ctx context.Context) ([]string, error) {
	return c.inner.Voices(ctx)
}

// Len returns the number of cached clips.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
