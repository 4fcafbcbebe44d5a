package cache

import (
	"sync"
)

// Cache is a thread-safe generic map.
// Entries live until deleted or until the Cache is cleaned.
type Cache[K comparable, V any] struct {
	mu    sync.RWMutex
	store map[K]V
}

// NewCache creates an empty Cache.
func NewCache[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{store: make(map[K]V)}
}

// Set adds or replaces the value for k.
func (c *Cache[K, V]) Set(k K, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[k] = v
}

// Get retrieves the value for k.
func (c *Cache[K, V]) Get(k K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.store[k]
	return v, ok
}

// Contains reports whether k is present.
func (c *Cache[K, V]) Contains(k K) bool {
	_, ok := c.Get(k)
	return ok
}

// GetOrSet returns the existing value for k if present.
// Otherwise, it stores and returns v.
// The loaded result is true if the value was loaded, false if stored.
func (c *Cache[K, V]) GetOrSet(k K, v V) (V, bool) {
	return c.GetOrSetFunc(k, func() V { return v })
}

// GetOrSetFunc is GetOrSet with a lazily computed value.
// f runs under the write lock at most once per missing key and must not use the Cache.
func (c *Cache[K, V]) GetOrSetFunc(k K, f func() V) (V, bool) {
	c.mu.RLock()
	existing, ok := c.store[k]
	c.mu.RUnlock()
	if ok {
		return existing, true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.store[k]; ok {
		return existing, true
	}
	v := f()
	c.store[k] = v
	return v, false
}

// Delete removes k from the cache.
func (c *Cache[K, V]) Delete(k K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, k)
}

// Range calls f for each entry on a snapshot of the cache.
// If f returns false, range stops the iteration.
// Iteration order is not guaranteed.
func (c *Cache[K, V]) Range(f func(key K, value V) bool) {
	c.mu.RLock()
	snapshot := make(map[K]V, len(c.store))
	for k, v := range c.store {
		snapshot[k] = v
	}
	c.mu.RUnlock()

	for k, v := range snapshot {
		if !f(k, v) {
			return
		}
	}
}

// Clean removes all items from the cache.
func (c *Cache[K, V]) Clean() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = make(map[K]V)
}

// Len returns the current number of items in the cache.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// GetTyped retrieves an item and asserts it to type T.
// It returns false when the key is missing or holds a value of another type.
func GetTyped[T any, K comparable, V any](c *Cache[K, V], k K) (T, bool) {
	var zeroT T
	val, ok := c.Get(k)
	if !ok {
		return zeroT, false
	}
	typedVal, typeOk := any(val).(T)
	if !typeOk {
		return zeroT, false
	}
	return typedVal, true
}
