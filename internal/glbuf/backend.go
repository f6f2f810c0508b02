// Package glbuf stores geometry buffers in OpenGL. Each buffer is a VAO with
// one vertex buffer (position xyz, colour rgb) and one element buffer.
//
// All functions must be called on the goroutine owning the GL context.
package glbuf

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/irfansharif/geopool/internal/memory"
)

// Vertex layout: three position floats followed by three colour floats.
const (
	Stride      = 6
	vertexBytes = Stride * 4
	indexBytes  = 4
)

type buffer struct {
	vao, vbo, ebo  uint32
	vertexCapacity int
	indexCapacity  int
}

// Stats counts GL activity. DrawCalls is reset by ResetFrame.
type Stats struct {
	Live      int
	GPUBytes  int64
	Uploads   int
	Copies    int
	DrawCalls int
}

// Backend implements memory.Backend on OpenGL buffer objects.
type Backend struct {
	next    memory.Handle
	buffers map[memory.Handle]*buffer
	stats   Stats
}

var _ memory.Backend = (*Backend)(nil)

// NewBackend returns an empty backend. A GL context must be current.
func NewBackend() *Backend {
	return &Backend{buffers: make(map[memory.Handle]*buffer)}
}

func (b *Backend) Stride() int { return Stride }

// Create allocates a VAO with vertex and element buffers of the given
// capacities and configures the vertex attributes.
func (b *Backend) Create(vertexCapacity, indexCapacity int) memory.Handle {
	buf := &buffer{vertexCapacity: vertexCapacity, indexCapacity: indexCapacity}
	gl.GenVertexArrays(1, &buf.vao)
	gl.GenBuffers(1, &buf.vbo)
	gl.GenBuffers(1, &buf.ebo)

	gl.BindVertexArray(buf.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, buf.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, max(vertexCapacity, 1)*vertexBytes, nil, gl.DYNAMIC_DRAW)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, buf.ebo)
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, max(indexCapacity, 1)*indexBytes, nil, gl.DYNAMIC_DRAW)

	// - Attribute 0: position (vec3)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(0, 3, gl.FLOAT, false, vertexBytes, gl.PtrOffset(0))
	// - Attribute 1: colour (vec3)
	gl.EnableVertexAttribArray(1)
	gl.VertexAttribPointer(1, 3, gl.FLOAT, false, vertexBytes, gl.PtrOffset(12))

	// The element buffer binding is VAO state; unbind the VAO first.
	gl.BindVertexArray(0)
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, 0)

	b.next++
	b.buffers[b.next] = buf
	b.stats.Live++
	b.stats.GPUBytes += int64(vertexCapacity*vertexBytes + indexCapacity*indexBytes)
	return b.next
}

// ReallocIndices orphans the element buffer of h and reallocates it.
func (b *Backend) ReallocIndices(h memory.Handle, indexCapacity int) {
	buf := b.mustGet(h)
	gl.BindVertexArray(0)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, buf.ebo)
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, max(indexCapacity, 1)*indexBytes, nil, gl.DYNAMIC_DRAW)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, 0)

	b.stats.GPUBytes += int64((indexCapacity - buf.indexCapacity) * indexBytes)
	buf.indexCapacity = indexCapacity
}

// Upload writes vertices and indices into h at the given element offsets.
func (b *Backend) Upload(h memory.Handle, vertexOffset int, vertices []float32, indexOffset int, indices []uint32) error {
	buf, ok := b.buffers[h]
	if !ok {
		return fmt.Errorf("upload to unknown buffer %d", h)
	}
	if len(vertices)%Stride != 0 {
		return fmt.Errorf("upload of %d floats is not a whole number of vertices", len(vertices))
	}
	if vertexOffset < 0 || vertexOffset+len(vertices)/Stride > buf.vertexCapacity {
		return fmt.Errorf("upload of %d vertices at %d overflows buffer %d (%d vertices)",
			len(vertices)/Stride, vertexOffset, h, buf.vertexCapacity)
	}
	if indexOffset < 0 || indexOffset+len(indices) > buf.indexCapacity {
		return fmt.Errorf("upload of %d indices at %d overflows buffer %d (%d indices)",
			len(indices), indexOffset, h, buf.indexCapacity)
	}

	if len(vertices) > 0 {
		gl.BindBuffer(gl.ARRAY_BUFFER, buf.vbo)
		gl.BufferSubData(gl.ARRAY_BUFFER, vertexOffset*vertexBytes, len(vertices)*4, gl.Ptr(vertices))
		gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	}
	if len(indices) > 0 {
		gl.BindVertexArray(0)
		gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, buf.ebo)
		gl.BufferSubData(gl.ELEMENT_ARRAY_BUFFER, indexOffset*indexBytes, len(indices)*indexBytes, gl.Ptr(indices))
		gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, 0)
	}
	b.stats.Uploads++
	return nil
}

// Copy copies the leading vertexCount vertices and indexCount indices from src
// to dst on the GPU.
func (b *Backend) Copy(dst, src memory.Handle, vertexCount, indexCount int) {
	d, s := b.mustGet(dst), b.mustGet(src)
	copyBuffer(s.vbo, d.vbo, vertexCount*vertexBytes)
	copyBuffer(s.ebo, d.ebo, indexCount*indexBytes)
	b.stats.Copies++
}

func copyBuffer(src, dst uint32, size int) {
	if size <= 0 {
		return
	}
	gl.BindBuffer(gl.COPY_READ_BUFFER, src)
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, dst)
	gl.CopyBufferSubData(gl.COPY_READ_BUFFER, gl.COPY_WRITE_BUFFER, 0, 0, size)
	gl.BindBuffer(gl.COPY_READ_BUFFER, 0)
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, 0)
}

// Destroy deletes the GL objects behind h. Unknown handles are ignored.
func (b *Backend) Destroy(h memory.Handle) {
	buf, ok := b.buffers[h]
	if !ok {
		return
	}
	gl.DeleteVertexArrays(1, &buf.vao)
	gl.DeleteBuffers(1, &buf.vbo)
	gl.DeleteBuffers(1, &buf.ebo)
	delete(b.buffers, h)

	b.stats.Live--
	b.stats.GPUBytes -= int64(buf.vertexCapacity*vertexBytes + buf.indexCapacity*indexBytes)
}

// Range is one indexed draw out of a buffer. Indices are relative to
// BaseVertex.
type Range struct {
	IndexStart int
	IndexCount int
	BaseVertex int
}

// DrawRanges draws the given ranges of h with a single multi-draw call.
func (b *Backend) DrawRanges(h memory.Handle, ranges []Range) {
	if len(ranges) == 0 {
		return
	}
	buf := b.mustGet(h)

	counts := make([]int32, len(ranges))
	offsets := make([]unsafe.Pointer, len(ranges))
	bases := make([]int32, len(ranges))
	for i, r := range ranges {
		counts[i] = int32(r.IndexCount)
		offsets[i] = gl.PtrOffset(r.IndexStart * indexBytes)
		bases[i] = int32(r.BaseVertex)
	}

	gl.BindVertexArray(buf.vao)
	gl.MultiDrawElementsBaseVertex(gl.TRIANGLES, &counts[0], gl.UNSIGNED_INT, &offsets[0], int32(len(ranges)), &bases[0])
	gl.BindVertexArray(0)
	b.stats.DrawCalls++
}

// ResetFrame zeroes per-frame counters.
func (b *Backend) ResetFrame() { b.stats.DrawCalls = 0 }

func (b *Backend) Stats() Stats { return b.stats }

// Close deletes every remaining buffer.
func (b *Backend) Close() {
	for h := range b.buffers {
		b.Destroy(h)
	}
}

func (b *Backend) mustGet(h memory.Handle) *buffer {
	buf, ok := b.buffers[h]
	if !ok {
		panic(fmt.Sprintf("glbuf: unknown buffer %d", h))
	}
	return buf
}
