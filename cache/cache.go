package cache

import (
	"sync"
	"time"
)

// TTL is a key/value cache whose entries expire a fixed duration
// after they were last stored. Expiry is checked on read; there is no
// background eviction.
type TTL[K comparable, V any] struct {
	mutex   sync.Mutex
	entries map[K]ttlEntry[V]
	ttl     time.Duration

	TimeNow func() time.Time
}

type ttlEntry[V any] struct {
	value    V
	storedAt time.Time
}

func NewTTL[K comparable, V any](ttl time.Duration) *TTL[K, V] {
	return &TTL[K, V]{
		entries: make(map[K]ttlEntry[V]),
		ttl:     ttl,
		TimeNow: time.Now,
	}
}

func (c *TTL[K, V]) TTL() time.Duration {
	return c.ttl
}

// Returns the value for key, if present and not expired. Expired
// entries are removed.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var zero V
	entry, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if c.expired(entry) {
		delete(c.entries, key)
		return zero, false
	}
	return entry.value, true
}

func (c *TTL[K, V]) Put(key K, value V) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries[key] = ttlEntry[V]{value: value, storedAt: c.TimeNow()}
}

// Resets the insertion time of an existing, unexpired entry. Returns
// false if there was nothing to touch.
func (c *TTL[K, V]) Touch(key K) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, ok := c.entries[key]
	if !ok || c.expired(entry) {
		delete(c.entries, key)
		return false
	}
	entry.storedAt = c.TimeNow()
	c.entries[key] = entry
	return true
}

// Get-or-create under a single lock. create is only called on a miss,
// and its value is stored unless it returns an error.
func (c *TTL[K, V]) GetOrCreate(key K, create func() (V, error)) (V, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if entry, ok := c.entries[key]; ok && !c.expired(entry) {
		return entry.value, nil
	}

	value, err := create()
	if err != nil {
		var zero V
		return zero, err
	}
	c.entries[key] = ttlEntry[V]{value: value, storedAt: c.TimeNow()}
	return value, nil
}

func (c *TTL[K, V]) Delete(key K) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.entries, key)
}

// Drops all expired entries and returns their keys.
func (c *TTL[K, V]) Sweep() []K {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var removed []K
	for k, entry := range c.entries {
		if c.expired(entry) {
			delete(c.entries, k)
			removed = append(removed, k)
		}
	}
	return removed
}

func (c *TTL[K, V]) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries = make(map[K]ttlEntry[V])
}

// Number of entries, expired or not.
func (c *TTL[K, V]) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.entries)
}

func (c *TTL[K, V]) expired(entry ttlEntry[V]) bool {
	return !c.TimeNow().Before(entry.storedAt.Add(c.ttl))
}
