package consolidate

import (
	"encoding/binary"
	"hash/fnv"

	"github.com/reviewkit/redline/internal/editor"
	"github.com/reviewkit/redline/internal/track"
)

// overlapCache memoizes overlap query results. Keys derive from the query
// range and the index's content signature, so entries outlive per-batch
// index rebuilds while the pending set is unchanged, and a mutated
// pending set can never serve stale results. Eviction is FIFO with a
// fixed bound.
type overlapCache struct {
	max     int
	entries map[uint64][]track.Change
	order   []uint64
	hits    uint64
	misses  uint64
}

func newOverlapCache(max int) *overlapCache {
	return &overlapCache{
		max:     max,
		entries: make(map[uint64][]track.Change, max),
	}
}

func cacheKey(sig uint64, r editor.Range) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], sig)
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(r.Start))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(r.End))
	h.Write(buf[:])
	return h.Sum64()
}

func (c *overlapCache) get(key uint64) ([]track.Change, bool) {
	v, ok := c.entries[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return v, ok
}

func (c *overlapCache) put(key uint64, v []track.Change) {
	if _, ok := c.entries[key]; ok {
		c.entries[key] = v
		return
	}
	for len(c.entries) >= c.max && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = v
	c.order = append(c.order, key)
}

// purge drops every cached entry.
func (c *overlapCache) purge() {
	c.entries = make(map[uint64][]track.Change, c.max)
	c.order = c.order[:0]
}

func (c *overlapCache) len() int {
	return len(c.entries)
}
