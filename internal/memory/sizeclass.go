package memory

import (
	"github.com/eapache/queue"
)

// sizeClass identifies one of the recycler's three stores.
type sizeClass int

const (
	classSmall sizeClass = iota
	classMedium
	classLarge
	numClasses
)

var sizeClasses = []sizeClass{classSmall, classMedium, classLarge}

func (c sizeClass) String() string {
	switch c {
	case classSmall:
		return "small"
	case classMedium:
		return "medium"
	case classLarge:
		return "large"
	default:
		return "unknown"
	}
}

// cacheKey orders cache entries by capacity in quads. Entries of the same
// capacity are told apart by probe, which never carries into the next
// capacity, so a batch of identical buffers sits in one run below it.
type cacheKey struct {
	quads int
	probe uint64
}

func (k cacheKey) less(o cacheKey) bool {
	if k.quads != o.quads {
		return k.quads < o.quads
	}
	return k.probe < o.probe
}

// cacheEntry is an idle buffer waiting in a class store.
type cacheEntry struct {
	key        cacheKey
	buffer     *Buffer
	recycledAt int64
	removed    bool
}

// classStore caches idle buffers of one size class. Entries are kept sorted by
// key for best-fit search, and queued in recycling order for age-based
// eviction. Entries taken out of the sorted slice are only marked removed in
// the age queue and skipped when they reach its front.
type classStore struct {
	class    sizeClass
	ceiling  int
	entries  []*cacheEntry
	byAge    *queue.Queue
	capacity int    // summed vertex capacity of cached buffers
	probes   uint64 // next collision probe
}

func newClassStore(class sizeClass, ceiling int) *classStore {
	return &classStore{
		class:   class,
		ceiling: ceiling,
		byAge:   queue.New(),
	}
}

// lowerBound returns the index of the first entry with key >= key.
func (cs *classStore) lowerBound(key cacheKey) int {
	lo, hi := 0, len(cs.entries)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if cs.entries[mid].key.less(key) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// insert caches b, stamped with now.
func (cs *classStore) insert(b *Buffer, now int64) {
	key := cacheKey{quads: b.vertexCapacity / VerticesPerQuad, probe: cs.probes}
	cs.probes++

	e := &cacheEntry{key: key, buffer: b, recycledAt: now}
	i := cs.lowerBound(key)
	cs.entries = append(cs.entries, nil)
	copy(cs.entries[i+1:], cs.entries[i:])
	cs.entries[i] = e

	cs.byAge.Add(e)
	cs.capacity += b.vertexCapacity
}

// removeAt takes entry i out of the store.
func (cs *classStore) removeAt(i int) *Buffer {
	e := cs.entries[i]
	copy(cs.entries[i:], cs.entries[i+1:])
	cs.entries[len(cs.entries)-1] = nil
	cs.entries = cs.entries[:len(cs.entries)-1]

	e.removed = true
	cs.capacity -= e.buffer.vertexCapacity
	return e.buffer
}

// bestFit removes and returns the smallest cached buffer of at least quads
// quads, or nil if there is none or the smallest is too oversized to reuse.
func (cs *classStore) bestFit(quads int, tolerance, slack float64) *Buffer {
	i := cs.lowerBound(cacheKey{quads: quads})
	if i == len(cs.entries) {
		return nil
	}
	if float64(cs.entries[i].key.quads) > float64(quads)*(1+tolerance)+slack {
		return nil
	}
	return cs.removeAt(i)
}

// oldest returns the longest-cached live entry, dropping removed entries from
// the front of the age queue.
func (cs *classStore) oldest() *cacheEntry {
	for cs.byAge.Length() > 0 {
		e := cs.byAge.Peek().(*cacheEntry)
		if !e.removed {
			return e
		}
		cs.byAge.Remove()
	}
	return nil
}

func (cs *classStore) evict(e *cacheEntry) *Buffer {
	return cs.removeAt(cs.lowerBound(e.key))
}

// prune evicts at most one entry because the store is over its ceiling and at
// most one entry because it outlived ttl.
func (cs *classStore) prune(now, ttl int64) (evicted []*Buffer, expired int) {
	if cs.capacity > cs.ceiling {
		if e := cs.oldest(); e != nil {
			evicted = append(evicted, cs.evict(e))
		}
	}
	if e := cs.oldest(); e != nil && now-e.recycledAt > ttl {
		evicted = append(evicted, cs.evict(e))
		expired++
	}
	return evicted, expired
}

// drain removes every cached buffer.
func (cs *classStore) drain() []*Buffer {
	out := make([]*Buffer, 0, len(cs.entries))
	for _, e := range cs.entries {
		out = append(out, e.buffer)
	}
	cs.entries = nil
	cs.byAge = queue.New()
	cs.capacity = 0
	return out
}

func (cs *classStore) len() int { return len(cs.entries) }
