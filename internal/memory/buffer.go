package memory

import "fmt"

// Handle identifies backend storage for one buffer. Zero is never valid.
type Handle uint64

// Backend owns the actual vertex and index storage, typically on the GPU. All
// calls are made from the render goroutine.
type Backend interface {
	// Stride is the number of float32s per vertex.
	Stride() int
	// Create allocates storage for the given vertex and index capacities.
	Create(vertexCapacity, indexCapacity int) Handle
	// ReallocIndices replaces the index storage of h, discarding its contents.
	ReallocIndices(h Handle, indexCapacity int)
	// Upload writes vertices at vertexOffset and indices at indexOffset.
	Upload(h Handle, vertexOffset int, vertices []float32, indexOffset int, indices []uint32) error
	// Copy copies the first vertexCount vertices and indexCount indices of src
	// into dst.
	Copy(dst, src Handle, vertexCount, indexCount int)
	// Destroy releases the storage behind h.
	Destroy(h Handle)
}

// BufferID uniquely identifies a buffer for the lifetime of a recycler.
type BufferID uint64

// Buffer is a block of vertex/index storage. At any time it is owned by
// exactly one of: the recycler's cache, a pool, or a caller that acquired it
// and has not yet handed it on.
type Buffer struct {
	id             BufferID
	handle         Handle
	vertexCapacity int
	indexCapacity  int
	used           int // vertices in use, the buffer's logical length
}

func (b *Buffer) ID() BufferID        { return b.id }
func (b *Buffer) Handle() Handle      { return b.handle }
func (b *Buffer) VertexCapacity() int { return b.vertexCapacity }
func (b *Buffer) IndexCapacity() int  { return b.indexCapacity }
func (b *Buffer) Used() int           { return b.used }

// SetUsed records how many vertices of the buffer hold live data.
func (b *Buffer) SetUsed(n int) {
	if n < 0 || n > b.vertexCapacity {
		panic(fmt.Sprintf("buffer %d: used %d outside capacity %d", b.id, n, b.vertexCapacity))
	}
	b.used = n
}

func (b *Buffer) String() string {
	return fmt.Sprintf("buffer#%d(%d/%d vertices, %d indices)", b.id, b.used, b.vertexCapacity, b.indexCapacity)
}

// indexCapacityFor returns the index capacity matching a vertex capacity: six
// indices for every four vertices.
func indexCapacityFor(vertexCapacity int) int {
	return vertexCapacity * IndicesPerQuad / VerticesPerQuad
}

// HeapBackend keeps buffer contents in ordinary Go slices. It stands in for
// the GPU in headless runs and tests.
type HeapBackend struct {
	stride  int
	next    Handle
	buffers map[Handle]*heapBuffer
}

type heapBuffer struct {
	vertices []float32
	indices  []uint32
}

var _ Backend = (*HeapBackend)(nil)

// NewHeapBackend returns a heap backend with the given vertex stride (in
// float32s).
func NewHeapBackend(stride int) *HeapBackend {
	return &HeapBackend{
		stride:  stride,
		buffers: make(map[Handle]*heapBuffer),
	}
}

func (hb *HeapBackend) Stride() int { return hb.stride }

func (hb *HeapBackend) Create(vertexCapacity, indexCapacity int) Handle {
	hb.next++
	hb.buffers[hb.next] = &heapBuffer{
		vertices: make([]float32, vertexCapacity*hb.stride),
		indices:  make([]uint32, indexCapacity),
	}
	return hb.next
}

func (hb *HeapBackend) ReallocIndices(h Handle, indexCapacity int) {
	if buf, ok := hb.buffers[h]; ok {
		buf.indices = make([]uint32, indexCapacity)
	}
}

func (hb *HeapBackend) Upload(h Handle, vertexOffset int, vertices []float32, indexOffset int, indices []uint32) error {
	buf, ok := hb.buffers[h]
	if !ok {
		return fmt.Errorf("heap backend: unknown handle %d", h)
	}
	vo := vertexOffset * hb.stride
	if vo < 0 || vo+len(vertices) > len(buf.vertices) {
		return fmt.Errorf("heap backend: vertex upload [%d, %d) outside buffer of %d floats", vo, vo+len(vertices), len(buf.vertices))
	}
	if indexOffset < 0 || indexOffset+len(indices) > len(buf.indices) {
		return fmt.Errorf("heap backend: index upload [%d, %d) outside buffer of %d indices", indexOffset, indexOffset+len(indices), len(buf.indices))
	}
	copy(buf.vertices[vo:], vertices)
	copy(buf.indices[indexOffset:], indices)
	return nil
}

func (hb *HeapBackend) Copy(dst, src Handle, vertexCount, indexCount int) {
	d, s := hb.buffers[dst], hb.buffers[src]
	if d == nil || s == nil {
		return
	}
	copy(d.vertices, s.vertices[:vertexCount*hb.stride])
	copy(d.indices, s.indices[:indexCount])
}

func (hb *HeapBackend) Destroy(h Handle) {
	delete(hb.buffers, h)
}

// Vertices returns the vertex storage behind h, or nil.
func (hb *HeapBackend) Vertices(h Handle) []float32 {
	if buf, ok := hb.buffers[h]; ok {
		return buf.vertices
	}
	return nil
}

// Indices returns the index storage behind h, or nil.
func (hb *HeapBackend) Indices(h Handle) []uint32 {
	if buf, ok := hb.buffers[h]; ok {
		return buf.indices
	}
	return nil
}

// Live returns the number of handles not yet destroyed.
func (hb *HeapBackend) Live() int { return len(hb.buffers) }
