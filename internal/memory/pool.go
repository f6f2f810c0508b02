package memory

import (
	"fmt"
	"log"
)

// span is a half-open range [start, end).
type span struct {
	start, end int
}

// rangeAllocator hands out ranges below a high-water mark. Freed ranges are
// kept sorted and coalesced; a freed range touching the high-water mark lowers
// it instead.
type rangeAllocator struct {
	free   []span
	extent int
}

func (ra *rangeAllocator) fits(n, capacity int) bool {
	if n <= 0 {
		return true
	}
	for _, s := range ra.free {
		if s.end-s.start >= n {
			return true
		}
	}
	return ra.extent+n <= capacity
}

// take reserves n units, first-fit among freed ranges and then from the
// high-water mark. Zero-length requests always succeed at offset 0.
func (ra *rangeAllocator) take(n, capacity int) (int, bool) {
	if n <= 0 {
		return 0, true
	}
	for i := range ra.free {
		s := &ra.free[i]
		if s.end-s.start < n {
			continue
		}
		start := s.start
		s.start += n
		if s.start == s.end {
			ra.free = append(ra.free[:i], ra.free[i+1:]...)
		}
		return start, true
	}
	if ra.extent+n > capacity {
		return 0, false
	}
	start := ra.extent
	ra.extent += n
	return start, true
}

// give returns [start, end) to the allocator.
func (ra *rangeAllocator) give(start, end int) {
	if start >= end {
		return
	}
	if end == ra.extent {
		ra.extent = start
		for n := len(ra.free); n > 0 && ra.free[n-1].end == ra.extent; n = len(ra.free) {
			ra.extent = ra.free[n-1].start
			ra.free = ra.free[:n-1]
		}
		return
	}

	i := 0
	for i < len(ra.free) && ra.free[i].start < start {
		i++
	}
	ra.free = append(ra.free, span{})
	copy(ra.free[i+1:], ra.free[i:])
	ra.free[i] = span{start, end}

	// Coalesce with the following and preceding neighbours.
	if i+1 < len(ra.free) && ra.free[i].end == ra.free[i+1].start {
		ra.free[i].end = ra.free[i+1].end
		ra.free = append(ra.free[:i+1], ra.free[i+2:]...)
	}
	if i > 0 && ra.free[i-1].end == ra.free[i].start {
		ra.free[i-1].end = ra.free[i].end
		ra.free = append(ra.free[:i], ra.free[i+1:]...)
	}
}

// freeUnits returns the total size of freed ranges below the high-water mark.
func (ra *rangeAllocator) freeUnits() int {
	n := 0
	for _, s := range ra.free {
		n += s.end - s.start
	}
	return n
}

// Pool sub-allocates vertex and index ranges out of one backing buffer,
// growing the buffer through the recycler when it runs out of room.
type Pool struct {
	id        PoolID
	recycler  *Recycler
	buffer    *Buffer
	vertices  rangeAllocator
	indices   rangeAllocator
	records   []*Record // indexed by slot, nil when free
	freeSlots []int
	live      int

	usedVertices int
	usedIndices  int

	// retire disposes of a backing buffer replaced by growth or shrinking.
	retire func(*Buffer)

	growths, shrinks int
}

// NewPool returns a standalone pool with room for at least vertexCapacity
// vertices. Buffers it outgrows are released straight to the recycler; pools
// created by a Manager defer that release instead.
func NewPool(id PoolID, recycler *Recycler, vertexCapacity int) *Pool {
	return newPool(id, recycler, vertexCapacity, func(b *Buffer) {
		if !recycler.Release(b) {
			recycler.Backend().Destroy(b.handle)
		}
	})
}

func newPool(id PoolID, recycler *Recycler, vertexCapacity int, retire func(*Buffer)) *Pool {
	return &Pool{
		id:       id,
		recycler: recycler,
		buffer:   recycler.Acquire(vertexCapacity),
		retire:   retire,
	}
}

func (p *Pool) ID() PoolID       { return p.id }
func (p *Pool) Buffer() *Buffer  { return p.buffer }
func (p *Pool) Len() int         { return p.live }
func (p *Pool) Empty() bool      { return p.live == 0 }
func (p *Pool) UsedVertices() int { return p.usedVertices }
func (p *Pool) UsedIndices() int  { return p.usedIndices }

// VertexCapacity returns the vertex capacity of the backing buffer.
func (p *Pool) VertexCapacity() int {
	if p.buffer == nil {
		return 0
	}
	return p.buffer.vertexCapacity
}

// VertexExtent returns the pool's vertex high-water mark.
func (p *Pool) VertexExtent() int { return p.vertices.extent }

// IndexExtent returns the pool's index high-water mark.
func (p *Pool) IndexExtent() int { return p.indices.extent }

// Fits reports whether an allocation fits without growing the buffer.
func (p *Pool) Fits(vertexCount, indexCount int) bool {
	return p.vertices.fits(vertexCount, p.buffer.vertexCapacity) &&
		p.indices.fits(indexCount, p.buffer.indexCapacity)
}

// Allocate reserves vertexCount vertices and indexCount indices, growing the
// backing buffer if needed, and returns the record describing them.
func (p *Pool) Allocate(vertexCount, indexCount int) *Record {
	vertexCount, indexCount = max(vertexCount, 0), max(indexCount, 0)
	if !p.Fits(vertexCount, indexCount) {
		p.grow(vertexCount, indexCount)
	}

	vs, vok := p.vertices.take(vertexCount, p.buffer.vertexCapacity)
	is, iok := p.indices.take(indexCount, p.buffer.indexCapacity)
	if !vok || !iok {
		// grow sized the buffer for the worst case; this is a bug.
		panic(fmt.Sprintf("pool %d: allocation of %d/%d failed after growth", p.id, vertexCount, indexCount))
	}

	rec := &Record{
		pool:        p.id,
		vertexStart: vs,
		vertexEnd:   vs + vertexCount,
		indexStart:  is,
		indexEnd:    is + indexCount,
	}
	if n := len(p.freeSlots); n > 0 {
		rec.slot = p.freeSlots[n-1]
		p.freeSlots = p.freeSlots[:n-1]
		p.records[rec.slot] = rec
	} else {
		rec.slot = len(p.records)
		p.records = append(p.records, rec)
	}

	p.live++
	p.usedVertices += vertexCount
	p.usedIndices += indexCount
	p.buffer.used = p.vertices.extent
	return rec
}

// Free returns the record's ranges to the pool. It does not release memory to
// the recycler; the manager does that once the pool is empty. Records that do
// not belong to the pool, or lie outside its extents, are logged and skipped.
func (p *Pool) Free(rec *Record) bool {
	if rec == nil {
		return false
	}
	if rec.pool != p.id || rec.slot < 0 || rec.slot >= len(p.records) || p.records[rec.slot] != rec {
		log.Printf("pool %d: cannot free %s: not allocated here", p.id, rec)
		return false
	}
	if rec.vertexEnd > p.vertices.extent || rec.indexEnd > p.indices.extent {
		log.Printf("pool %d: cannot free %s: outside extents (%d vertices, %d indices)",
			p.id, rec, p.vertices.extent, p.indices.extent)
		return false
	}

	p.vertices.give(rec.vertexStart, rec.vertexEnd)
	p.indices.give(rec.indexStart, rec.indexEnd)
	p.records[rec.slot] = nil
	p.freeSlots = append(p.freeSlots, rec.slot)

	p.live--
	p.usedVertices -= rec.VertexCount()
	p.usedIndices -= rec.IndexCount()
	if p.buffer != nil {
		p.buffer.used = p.vertices.extent
	}
	return true
}

// Write uploads a payload into the record's ranges. Indices are relative to
// the record's first vertex.
func (p *Pool) Write(rec *Record, vertices []float32, indices []uint32) error {
	if rec.pool != p.id {
		return fmt.Errorf("pool %d: %s belongs to another pool", p.id, rec)
	}
	stride := p.recycler.Backend().Stride()
	if len(vertices) != rec.VertexCount()*stride {
		return fmt.Errorf("pool %d: %d floats do not fill %d vertices of stride %d", p.id, len(vertices), rec.VertexCount(), stride)
	}
	if len(indices) != rec.IndexCount() {
		return fmt.Errorf("pool %d: %d indices do not fill %s", p.id, len(indices), rec)
	}
	if err := p.recycler.Backend().Upload(p.buffer.handle, rec.vertexStart, vertices, rec.indexStart, indices); err != nil {
		return fmt.Errorf("pool %d: uploading %s: %w", p.id, rec, err)
	}
	return nil
}

// Each calls fn for every live record, in slot order.
func (p *Pool) Each(fn func(*Record)) {
	for _, rec := range p.records {
		if rec != nil {
			fn(rec)
		}
	}
}

// grow replaces the backing buffer with one that can take the allocation even
// if no freed range fits it: at least double the current capacity.
func (p *Pool) grow(vertexCount, indexCount int) {
	capacity := max(2*p.buffer.vertexCapacity, p.vertices.extent+vertexCount)
	if needIndices := p.indices.extent + indexCount; indexCapacityFor(capacity) < needIndices {
		capacity = (needIndices*VerticesPerQuad + IndicesPerQuad - 1) / IndicesPerQuad
	}
	memoryLogger.Printf("pool %d: growing %s for %d/%d more vertices/indices", p.id, p.buffer, vertexCount, indexCount)
	p.resize(capacity)
	p.growths++
}

// shrink replaces the backing buffer with a smaller one that still holds
// everything below the high-water marks.
func (p *Pool) shrink(vertexCapacity int) {
	vertexCapacity = max(vertexCapacity, p.vertices.extent)
	if needIndices := p.indices.extent; indexCapacityFor(vertexCapacity) < needIndices {
		vertexCapacity = (needIndices*VerticesPerQuad + IndicesPerQuad - 1) / IndicesPerQuad
	}
	memoryLogger.Printf("pool %d: shrinking %s to %d vertices", p.id, p.buffer, vertexCapacity)
	p.resize(vertexCapacity)
	p.shrinks++
}

func (p *Pool) resize(vertexCapacity int) {
	old := p.buffer
	nb := p.recycler.Acquire(vertexCapacity)
	p.recycler.Backend().Copy(nb.handle, old.handle, p.vertices.extent, p.indices.extent)
	nb.used = p.vertices.extent
	p.buffer = nb
	p.retire(old)
}

// release detaches and returns the backing buffer.
func (p *Pool) release() *Buffer {
	b := p.buffer
	p.buffer = nil
	return b
}
