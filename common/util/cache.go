package util

import (
	"sync"
	"time"
)

type cacheKey interface{ uint32 | ~string }

type writeToken[K cacheKey] struct {
	key K
	seq uint64
}

type cacheEntry[V any] struct {
	timer *time.Timer
	value V
	seq   uint64
	// gen changes on every rewrite so a stale timer cannot expire a fresh write
	gen uint64
}

// LRWCache drops entries ttl after their last write. When full, the least
// recently inserted key is evicted to make room.
type LRWCache[K cacheKey, V any] struct {
	ttl     time.Duration
	maxSize int
	tokens  chan writeToken[K]
	data    map[K]cacheEntry[V]
	seq     uint64
	mu      sync.RWMutex
}

func NewLRWCache[K cacheKey, V any](ttl time.Duration, maxSize int) *LRWCache[K, V] {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &LRWCache[K, V]{
		ttl:     ttl,
		maxSize: maxSize,
		tokens:  make(chan writeToken[K], maxSize),
		data:    make(map[K]cacheEntry[V], maxSize),
	}
}

func (c *LRWCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.data[key]; ok {
		entry.timer.Stop()
		entry.value = value
		entry.gen++
		entry.timer = c.expireAfter(key, entry.seq, entry.gen)
		c.data[key] = entry
		return
	}
	for len(c.tokens) == c.maxSize {
		c.evict(<-c.tokens)
	}
	c.seq++
	c.tokens <- writeToken[K]{key: key, seq: c.seq}
	c.data[key] = cacheEntry[V]{
		timer: c.expireAfter(key, c.seq, 0),
		value: value,
		seq:   c.seq,
	}
}

func (c *LRWCache[K, V]) expireAfter(key K, seq, gen uint64) *time.Timer {
	return time.AfterFunc(c.ttl, func() {
		c.expire(key, seq, gen)
	})
}

// expire drops key only if it still holds the write generation the timer was
// armed for.
func (c *LRWCache[K, V]) expire(key K, seq, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.data[key]
	if !ok || entry.seq != seq || entry.gen != gen {
		return
	}
	c.delete(key)
}

func (c *LRWCache[K, V]) Get(key K) (value V, exists bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, exists = c.get(key)
	return
}

func (c *LRWCache[K, V]) get(key K) (value V, exists bool) {
	entry, exists := c.data[key]
	if exists {
		value = entry.value
	}
	return
}

func (c *LRWCache[K, V]) GetAndRemove(key K) (value V, exists bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, exists = c.get(key)
	c.delete(key)
	return
}

func (c *LRWCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delete(key)
}

func (c *LRWCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// evict removes the entry only if it is still the write the token refers to.
func (c *LRWCache[K, V]) evict(token writeToken[K]) {
	entry, ok := c.data[token.key]
	if !ok || entry.seq != token.seq {
		return
	}
	c.delete(token.key)
}

// delete leaves the write token queued; evict skips it later.
func (c *LRWCache[K, V]) delete(key K) {
	entry, ok := c.data[key]
	if !ok {
		return
	}
	entry.timer.Stop()
	delete(c.data, key)
}
