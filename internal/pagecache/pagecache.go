// Package pagecache implements the store's buffer pool: a fixed-capacity,
// set-associative cache of decoded pages keyed by (file, byte-offset),
// with hash-bucket collision chains and an intrusive doubly-linked LRU
// list for eviction. Grounded on the original Rust BufferPool/LRUMain
// (buffer/mod.rs, buffer/lru.rs), re-expressed with integer-handle
// arenas instead of Rc<RefCell<_>> cycles, per spec.md §9's design note.
package pagecache

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/intellect4all/kvengine/internal/page"
)

const nilHandle = -1

type cacheKey struct {
	file   string
	offset int64
}

type entry struct {
	key     cacheKey
	records []page.Record

	// Bucket collision chain (intrusive, doubly-linked).
	bucketPrev, bucketNext int32
	bucket                 int32

	// Global LRU list (intrusive, doubly-linked). lruHead is the next
	// entry to evict; lruTail is the most-recently-used entry.
	lruPrev, lruNext int32

	inUse bool
}

// Cache is a fixed-capacity page cache. The zero value is not usable;
// construct with New.
type Cache struct {
	capacity int
	buckets  []int32 // bucket -> head entry handle, or nilHandle
	entries  []entry
	free     []int32 // recycled entry handles

	lruHead, lruTail int32
	size             int

	log *zap.SugaredLogger
}

// Loader reads a single page from disk. It is invoked on a cache miss.
type Loader func(path string, byteOffset int64) ([]page.Record, error)

// New constructs a Cache with room for capacity entries. A capacity of
// zero is legal: every lookup misses and nothing is ever inserted.
func New(capacity int, log *zap.SugaredLogger) *Cache {
	buckets := make([]int32, capacity)
	for i := range buckets {
		buckets[i] = nilHandle
	}
	return &Cache{
		capacity: capacity,
		buckets:  buckets,
		entries:  make([]entry, 0, capacity),
		lruHead:  nilHandle,
		lruTail:  nilHandle,
		log:      log,
	}
}

func (c *Cache) bucketIndex(key cacheKey) int {
	combined := fmt.Sprintf("%s %d", key.file, key.offset)
	return int(xxhash.Sum64String(combined) % uint64(c.capacity))
}

// FindPage returns the decoded records for the page at byteOffset in
// path, using a cached copy when present and otherwise loading it via
// load, inserting the result into the cache (evicting if necessary).
func (c *Cache) FindPage(path string, byteOffset int64, load Loader) ([]page.Record, error) {
	key := cacheKey{file: path, offset: byteOffset}

	if h := c.search(key); h != nilHandle {
		c.touch(h)
		return c.entries[h].records, nil
	}

	records, err := load(path, byteOffset)
	if err != nil {
		return nil, err
	}
	c.insert(key, records)
	return records, nil
}

func (c *Cache) search(key cacheKey) int32 {
	if c.capacity == 0 {
		return nilHandle
	}
	bucket := c.bucketIndex(key)
	for h := c.buckets[bucket]; h != nilHandle; h = c.entries[h].bucketNext {
		if c.entries[h].key == key {
			return h
		}
	}
	return nilHandle
}

// touch splices h out of its current LRU position and reinserts it at
// the tail (the most-recently-used end).
func (c *Cache) touch(h int32) {
	if c.lruTail == h {
		return
	}
	c.lruUnlink(h)
	c.lruPushTail(h)
}

func (c *Cache) lruUnlink(h int32) {
	e := &c.entries[h]
	if e.lruPrev != nilHandle {
		c.entries[e.lruPrev].lruNext = e.lruNext
	} else {
		c.lruHead = e.lruNext
	}
	if e.lruNext != nilHandle {
		c.entries[e.lruNext].lruPrev = e.lruPrev
	} else {
		c.lruTail = e.lruPrev
	}
	e.lruPrev, e.lruNext = nilHandle, nilHandle
}

func (c *Cache) lruPushTail(h int32) {
	e := &c.entries[h]
	e.lruPrev = c.lruTail
	e.lruNext = nilHandle
	if c.lruTail != nilHandle {
		c.entries[c.lruTail].lruNext = h
	}
	c.lruTail = h
	if c.lruHead == nilHandle {
		c.lruHead = h
	}
}

func (c *Cache) bucketUnlink(h int32) {
	e := &c.entries[h]
	if e.bucketPrev != nilHandle {
		c.entries[e.bucketPrev].bucketNext = e.bucketNext
	} else {
		c.buckets[e.bucket] = e.bucketNext
	}
	if e.bucketNext != nilHandle {
		c.entries[e.bucketNext].bucketPrev = e.bucketPrev
	}
	e.bucketPrev, e.bucketNext = nilHandle, nilHandle
}

func (c *Cache) bucketPushFront(bucket int, h int32) {
	e := &c.entries[h]
	e.bucket = int32(bucket)
	e.bucketPrev = nilHandle
	e.bucketNext = c.buckets[bucket]
	if c.buckets[bucket] != nilHandle {
		c.entries[c.buckets[bucket]].bucketPrev = h
	}
	c.buckets[bucket] = h
}

func (c *Cache) insert(key cacheKey, records []page.Record) {
	if c.capacity == 0 {
		return
	}
	if c.size == c.capacity {
		if !c.evictOne() {
			c.log.Fatalf("pagecache: eviction failed when attempting overflow insert for %+v", key)
		}
	}

	h := c.allocate()
	e := &c.entries[h]
	e.key = key
	e.records = records
	e.inUse = true

	bucket := c.bucketIndex(key)
	c.bucketPushFront(bucket, h)
	c.lruPushTail(h)
	c.size++
}

func (c *Cache) allocate() int32 {
	if n := len(c.free); n > 0 {
		h := c.free[n-1]
		c.free = c.free[:n-1]
		return h
	}
	c.entries = append(c.entries, entry{bucketPrev: nilHandle, bucketNext: nilHandle, lruPrev: nilHandle, lruNext: nilHandle})
	return int32(len(c.entries) - 1)
}

// evictOne removes the LRU head entry. It reports false only if the
// cache was already empty (a state New/insert never actually reach).
func (c *Cache) evictOne() bool {
	if c.lruHead == nilHandle {
		if c.lruTail != nilHandle {
			c.log.Fatalf("pagecache: LRU front/back mismatch (head nil, tail set)")
		}
		return false
	}
	h := c.lruHead
	c.lruUnlink(h)
	c.bucketUnlink(h)

	c.entries[h] = entry{bucketPrev: nilHandle, bucketNext: nilHandle, lruPrev: nilHandle, lruNext: nilHandle}
	c.free = append(c.free, h)
	c.size--
	return true
}

// Len reports the number of entries currently resident.
func (c *Cache) Len() int { return c.size }

// Capacity reports the cache's fixed entry capacity.
func (c *Cache) Capacity() int { return c.capacity }
