// Package cache holds prior provider opinions so repeated (role, context)
// requests inside one run never re-invoke the provider. Hits bypass the
// resilient caller entirely, so they leave no retry or breaker bookkeeping.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rustyeddy/agentsim/agent"
)

// Key builds a stable cache key from the agent identity and the normalized
// context fields that influence its output. Field order matters; callers
// pass the same fields in the same order for the same logical request.
func Key(role agent.Role, fields ...string) string {
	h := sha256.New()
	h.Write([]byte(role))
	for _, f := range fields {
		h.Write([]byte{0})
		h.Write([]byte(strings.TrimSpace(f)))
	}
	return hex.EncodeToString(h.Sum(nil))
}

type entry struct {
	key        string
	op         agent.Opinion
	createdAt  time.Time
	lastAccess time.Time
	expiresAt  time.Time

	// intrusive LRU list, most recent at head
	prev, next *entry
}

// Cache is a TTL + capacity bounded opinion cache, safe for concurrent use
// from in-flight decision cycles. Expiry is authoritative: an expired entry
// is a miss no matter how recently it was touched.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	head     *entry // most recently used
	tail     *entry // least recently used
	capacity int
	ttl      time.Duration
	now      func() time.Time

	hits, misses, evictions uint64
}

// New returns a cache holding at most capacity entries, each valid for ttl.
func New(capacity int, ttl time.Duration) (*Cache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("cache: capacity must be positive, got %d", capacity)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cache: ttl must be positive, got %v", ttl)
	}
	return &Cache{
		entries:  make(map[string]*entry, capacity),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

// Get returns the cached opinion for key if present and unexpired.
func (c *Cache) Get(key string) (agent.Opinion, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return agent.Opinion{}, false
	}
	if c.now().After(e.expiresAt) {
		c.remove(e)
		c.misses++
		return agent.Opinion{}, false
	}

	e.lastAccess = c.now()
	c.moveToFront(e)
	c.hits++
	return e.op, true
}

// Put inserts or overwrites the opinion for key with the default TTL.
func (c *Cache) Put(key string, op agent.Opinion) {
	c.PutTTL(key, op, c.ttl)
}

// PutTTL is Put with an explicit TTL. At capacity it drops expired entries
// first and only then falls back to evicting the least recently used.
func (c *Cache) PutTTL(key string, op agent.Opinion, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.entries[key]; ok {
		e.op = op
		e.createdAt = now
		e.lastAccess = now
		e.expiresAt = now.Add(ttl)
		c.moveToFront(e)
		return
	}

	if len(c.entries) >= c.capacity {
		c.sweepExpired(now)
	}
	for len(c.entries) >= c.capacity {
		c.evictions++
		c.remove(c.tail)
	}

	e := &entry{
		key:        key,
		op:         op,
		createdAt:  now,
		lastAccess: now,
		expiresAt:  now.Add(ttl),
	}
	c.entries[key] = e
	c.pushFront(e)
}

// Len reports the number of entries, expired ones included until swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns hit/miss/eviction counters.
func (c *Cache) Stats() (hits, misses, evictions uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, c.evictions
}

func (c *Cache) sweepExpired(now time.Time) {
	for e := c.tail; e != nil; {
		prev := e.prev
		if now.After(e.expiresAt) {
			c.remove(e)
		}
		e = prev
	}
}

func (c *Cache) pushFront(e *entry) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *Cache) moveToFront(e *entry) {
	if c.head == e {
		return
	}
	c.unlink(e)
	c.pushFront(e)
}

func (c *Cache) remove(e *entry) {
	if e == nil {
		return
	}
	c.unlink(e)
	delete(c.entries, e.key)
}

func (c *Cache) unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev, e.next = nil, nil
}
