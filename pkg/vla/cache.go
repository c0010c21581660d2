package vla

import (
	"container/list"
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache abstracts the VLA service's response cache so a deployment can pick
// an in-process store (the default) or a shared one spanning multiple
// service instances. A cache entry is only ever written for a StatusOK
// response, and only Submit's cache lookup and runInference's cache write
// touch it.
type Cache interface {
	Get(key uint64) (Response, bool)
	Set(key uint64, resp Response, ttl time.Duration)
	Len() int
}

// capacitied is implemented by caches that support a bounded size; caches
// without a meaningful notion of capacity (redisCache) simply don't satisfy
// it, and Service's capacity accessors become no-ops for them.
type capacitied interface {
	Capacity() int
	SetCapacity(int)
}

type memCacheEntry struct {
	key       uint64
	response  Response
	expiresAt time.Time
}

// memCache is an explicit LRU over a map, ordered by a container/list so
// eviction is deterministic (oldest-touched entry first) instead of relying
// on Go's unspecified map iteration order.
type memCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[uint64]*list.Element
}

// NewMemCache constructs the in-process default cache. A non-positive
// capacity falls back to 256 entries.
func NewMemCache(capacity int) *memCache {
	if capacity <= 0 {
		capacity = 256
	}
	return &memCache{capacity: capacity, ll: list.New(), items: make(map[uint64]*list.Element)}
}

func (c *memCache) Get(key uint64) (Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return Response{}, false
	}
	entry := el.Value.(*memCacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.ll.Remove(el)
		delete(c.items, key)
		return Response{}, false
	}
	c.ll.MoveToFront(el)
	return entry.response, true
}

func (c *memCache) Set(key uint64, resp Response, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	expiresAt := time.Now().Add(ttl)
	if el, ok := c.items[key]; ok {
		entry := el.Value.(*memCacheEntry)
		entry.response = resp
		entry.expiresAt = expiresAt
		c.ll.MoveToFront(el)
	} else {
		el := c.ll.PushFront(&memCacheEntry{key: key, response: resp, expiresAt: expiresAt})
		c.items[key] = el
	}
	c.evictLocked()
}

func (c *memCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// SetCapacity adjusts the LRU bound, evicting the least-recently-used
// entries immediately if the new capacity is smaller than the current size.
func (c *memCache) SetCapacity(capacity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capacity = capacity
	c.evictLocked()
}

func (c *memCache) Capacity() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity
}

// evictLocked must be called with c.mu held.
func (c *memCache) evictLocked() {
	for c.ll.Len() > c.capacity {
		back := c.ll.Back()
		if back == nil {
			return
		}
		c.ll.Remove(back)
		delete(c.items, back.Value.(*memCacheEntry).key)
	}
}

// redisCache stores responses in Redis under their own TTL, so eviction is
// handled by Redis rather than an in-process LRU — suited to a VLA service
// fronted by more than one process sharing cached inferences.
type redisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache wraps client for use as a Service's response cache.
func NewRedisCache(client *redis.Client) *redisCache {
	return &redisCache{client: client, prefix: "vla:cache:"}
}

func (c *redisCache) key(k uint64) string {
	return c.prefix + strconv.FormatUint(k, 10)
}

func (c *redisCache) Get(key uint64) (Response, bool) {
	data, err := c.client.Get(context.Background(), c.key(key)).Bytes()
	if err != nil {
		return Response{}, false
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Response{}, false
	}
	return resp, true
}

func (c *redisCache) Set(key uint64, resp Response, ttl time.Duration) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	c.client.Set(context.Background(), c.key(key), data, ttl)
}

// Len reports -1: Redis expires entries by TTL on its own schedule, and
// counting keys matching a prefix would require a blocking SCAN this method
// isn't positioned to make.
func (c *redisCache) Len() int { return -1 }
