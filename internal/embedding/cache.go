package embedding

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is an LRU cache of embeddings keyed by content hash. It is safe for
// concurrent use.
type Cache struct {
	lru *lru.Cache[string, []float32]
}

// NewCache creates a cache holding up to capacity embeddings.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 1000
	}
	c, err := lru.New[string, []float32](capacity)
	if err != nil {
		// Only reachable with a non-positive size, which is guarded above.
		panic(err)
	}
	return &Cache{lru: c}
}

// Get returns a copy of the cached embedding for text, if present.
func (c *Cache) Get(text string) ([]float32, bool) {
	vec, ok := c.lru.Get(hashKey(text))
	if !ok {
		return nil, false
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, true
}

// Set stores the embedding for text, evicting the least recently used entry
// when at capacity.
func (c *Cache) Set(text string, vec []float32) {
	stored := make([]float32, len(vec))
	copy(stored, vec)
	c.lru.Add(hashKey(text), stored)
}

// Len returns the current number of cached embeddings.
func (c *Cache) Len() int {
	return c.lru.Len()
}

func hashKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
