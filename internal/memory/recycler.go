package memory

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"

	"github.com/irfansharif/geopool/internal/geom"
)

// Clock supplies the current time in the units the recycler's TTL is
// expressed in.
type Clock interface {
	Now() int64
}

// ClockFunc adapts a function to a Clock.
type ClockFunc func() int64

func (f ClockFunc) Now() int64 { return f() }

// WallClock returns a Clock counting milliseconds since the call.
func WallClock() Clock {
	start := time.Now()
	return ClockFunc(func() int64 { return time.Since(start).Milliseconds() })
}

// RecyclerStats tracks cache efficiency.
type RecyclerStats struct {
	Hits          int
	Misses        int
	Fresh         int
	Recycled      int
	Evictions     int
	Expirations   int
	Dropped       int
	IndexReallocs int
	Pending       int
	Classes       [numClasses]ClassStats
}

// ClassStats describes one size-class store.
type ClassStats struct {
	Entries  int
	Capacity int
	Ceiling  int
}

// pendingQueue is the multi-producer, single-consumer ingestion point for
// released buffers.
type pendingQueue struct {
	mu     sync.Mutex
	q      *queue.Queue
	closed bool
}

func (pq *pendingQueue) push(b *Buffer) bool {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	if pq.closed {
		return false
	}
	pq.q.Add(b)
	return true
}

// take empties the queue, optionally closing it for good.
func (pq *pendingQueue) take(close bool) []*Buffer {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	out := make([]*Buffer, 0, pq.q.Length())
	for pq.q.Length() > 0 {
		out = append(out, pq.q.Remove().(*Buffer))
	}
	if close {
		pq.closed = true
	}
	return out
}

func (pq *pendingQueue) length() int {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	return pq.q.Length()
}

// Recycler hands out geometry buffers, preferring idle buffers of a similar
// capacity over fresh allocations.
//
// Release may be called from any goroutine. Everything else must be called
// from the render goroutine, the one that owns the Backend.
type Recycler struct {
	cfg      RecyclerConfig
	backend  Backend
	clock    Clock
	stores   [numClasses]*classStore
	pending  pendingQueue
	shutdown atomic.Bool
	nextID   BufferID
	stats    RecyclerStats
}

// NewRecycler returns a recycler allocating from backend. A nil clock uses
// WallClock.
func NewRecycler(cfg RecyclerConfig, backend Backend, clock Clock) *Recycler {
	if clock == nil {
		clock = WallClock()
	}
	r := &Recycler{
		cfg:     cfg,
		backend: backend,
		clock:   clock,
		pending: pendingQueue{q: queue.New()},
	}
	r.stores[classSmall] = newClassStore(classSmall, cfg.SmallCeiling)
	r.stores[classMedium] = newClassStore(classMedium, cfg.MediumCeiling)
	r.stores[classLarge] = newClassStore(classLarge, cfg.LargeCeiling)
	return r
}

// Backend returns the backend buffers are allocated from.
func (r *Recycler) Backend() Backend { return r.backend }

// classFor picks the store for a vertex capacity.
func (r *Recycler) classFor(vertexCapacity int) sizeClass {
	quads := vertexCapacity / VerticesPerQuad
	if quads <= r.cfg.SmallMaxQuads {
		return classSmall
	}
	if quads <= r.cfg.MediumMaxQuads {
		return classMedium
	}
	return classLarge
}

// Acquire returns a buffer with room for at least minCapacity vertices,
// rounded up to a multiple of four. It never fails.
func (r *Recycler) Acquire(minCapacity int) *Buffer {
	n := geom.RoundUp4(minCapacity)
	if n == 0 {
		n = VerticesPerQuad
	}

	if !r.shutdown.Load() {
		store := r.stores[r.classFor(n)]
		if b := store.bestFit(n/VerticesPerQuad, r.cfg.BestFitTolerance, r.cfg.BestFitSlack); b != nil {
			r.stats.Hits++
			r.matchIndexCapacity(b)
			recyclerLogger.Printf("reusing %s for %d vertices from %s store", b, n, store.class)
			return b
		}
		r.stats.Misses++
	}

	capacity := n
	if !r.shutdown.Load() && r.cfg.HeadroomDen > 0 {
		capacity = geom.RoundUp4(n * r.cfg.HeadroomNum / r.cfg.HeadroomDen)
		if capacity < n {
			capacity = n
		}
	}
	return r.allocate(capacity)
}

func (r *Recycler) allocate(vertexCapacity int) *Buffer {
	r.nextID++
	indexCapacity := indexCapacityFor(vertexCapacity)
	b := &Buffer{
		id:             r.nextID,
		handle:         r.backend.Create(vertexCapacity, indexCapacity),
		vertexCapacity: vertexCapacity,
		indexCapacity:  indexCapacity,
	}
	r.stats.Fresh++
	recyclerLogger.Printf("allocated %s", b)
	return b
}

// matchIndexCapacity reallocates b's index storage if it does not hold six
// indices per four vertices.
func (r *Recycler) matchIndexCapacity(b *Buffer) {
	want := indexCapacityFor(b.vertexCapacity)
	if b.indexCapacity == want {
		return
	}
	r.backend.ReallocIndices(b.handle, want)
	b.indexCapacity = want
	r.stats.IndexReallocs++
}

// Release queues b for recycling. The buffer becomes available to Acquire
// only after the next RunMaintenance. After Shutdown nothing is queued and
// Release returns false; the caller must destroy b itself.
func (r *Recycler) Release(b *Buffer) bool {
	if b == nil {
		return true
	}
	if !r.pending.push(b) {
		recyclerLogger.Printf("dropping %s released after shutdown", b)
		return false
	}
	return true
}

// RunMaintenance moves released buffers into their size-class stores and
// prunes each store. Call it once per frame.
func (r *Recycler) RunMaintenance() {
	if r.shutdown.Load() {
		return
	}

	now := r.clock.Now()
	for _, b := range r.pending.take(false) {
		b.used = 0
		class := r.classFor(b.vertexCapacity)
		r.stores[class].insert(b, now)
		r.stats.Recycled++
	}

	for _, class := range sizeClasses {
		evicted, expired := r.stores[class].prune(now, r.cfg.TTL)
		for _, b := range evicted {
			recyclerLogger.Printf("evicting %s from %s store", b, class)
			r.backend.Destroy(b.handle)
		}
		r.stats.Evictions += len(evicted)
		r.stats.Expirations += expired
	}
}

// Shutdown destroys every cached and pending buffer. Afterwards Acquire
// always allocates fresh buffers without headroom and Release drops buffers.
func (r *Recycler) Shutdown() {
	if r.shutdown.Swap(true) {
		return
	}
	dropped := r.pending.take(true)
	for _, class := range sizeClasses {
		dropped = append(dropped, r.stores[class].drain()...)
	}
	for _, b := range dropped {
		r.backend.Destroy(b.handle)
	}
	r.stats.Dropped += len(dropped)
	recyclerLogger.Printf("shut down, destroyed %d idle buffers", len(dropped))
}

// IsShutdown reports whether Shutdown has been called.
func (r *Recycler) IsShutdown() bool { return r.shutdown.Load() }

// Stats returns a snapshot of the recycler's counters.
func (r *Recycler) Stats() RecyclerStats {
	s := r.stats
	s.Pending = r.pending.length()
	for _, class := range sizeClasses {
		store := r.stores[class]
		s.Classes[class] = ClassStats{
			Entries:  store.len(),
			Capacity: store.capacity,
			Ceiling:  store.ceiling,
		}
	}
	return s
}
