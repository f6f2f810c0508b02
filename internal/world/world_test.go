package world

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfansharif/geopool/internal/memory"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ViewRadius = 2
	cfg.CellsPerChunk = 4
	cfg.LOD0Rings = 1
	cfg.LOD2Rings = 3
	return cfg
}

func newTestStreamer(t *testing.T, cfg Config, immediate bool) (*Streamer, *memory.Manager, *memory.HeapBackend) {
	t.Helper()
	backend := memory.NewHeapBackend(Stride)
	recycler := memory.NewRecycler(memory.DefaultRecyclerConfig(), backend, memory.WallClock())
	mcfg := memory.DefaultManagerConfig()
	mcfg.InitialPoolVertices = 1024
	mcfg.ImmediateRemoval = immediate
	m := memory.NewManager(mcfg, recycler)

	s, err := NewStreamer(cfg, m)
	require.NoError(t, err)
	return s, m, backend
}

func TestMeshLayout(t *testing.T) {
	cfg := testConfig()
	m, err := NewMesher(cfg)
	require.NoError(t, err)

	mesh, err := m.Mesh(ChunkKey{X: -1, Z: 2}, 0)
	require.NoError(t, err)
	require.Equal(t, 4*4*4, mesh.VertexCount())
	require.Equal(t, 4*4*6, mesh.IndexCount())
	assert.Equal(t, mesh.VertexCount()*memory.IndicesPerQuad, mesh.IndexCount()*memory.VerticesPerQuad)

	const step = 32.0 / 4
	for cell := 0; cell < mesh.IndexCount()/6; cell++ {
		tris := mesh.Indices[cell*6 : cell*6+6]
		for _, idx := range tris {
			assert.GreaterOrEqual(t, int(idx), cell*4)
			assert.Less(t, int(idx), cell*4+4, "cell %d references another cell's corner", cell)
		}
		var area float32
		for k := 0; k < 6; k += 3 {
			area += footprintArea(mesh, tris[k], tris[k+1], tris[k+2])
		}
		assert.InDelta(t, step*step, area, 1e-3, "cell %d triangles cover its footprint", cell)
	}

	for v := 0; v < mesh.VertexCount(); v++ {
		x, y, z := mesh.Vertices[v*Stride], mesh.Vertices[v*Stride+1], mesh.Vertices[v*Stride+2]
		assert.GreaterOrEqual(t, x, float32(-32))
		assert.LessOrEqual(t, x, float32(0))
		assert.GreaterOrEqual(t, z, float32(64))
		assert.LessOrEqual(t, z, float32(96))
		assert.LessOrEqual(t, y, cfg.HeightScale)
		assert.GreaterOrEqual(t, y, -cfg.HeightScale)
		assert.GreaterOrEqual(t, y, mesh.Min[1])
		assert.LessOrEqual(t, y, mesh.Max[1])
		for _, c := range mesh.Vertices[v*Stride+3 : v*Stride+6] {
			assert.GreaterOrEqual(t, c, float32(0))
			assert.LessOrEqual(t, c, float32(1))
		}
	}

	again, err := m.Mesh(ChunkKey{X: -1, Z: 2}, 0)
	require.NoError(t, err)
	assert.Equal(t, mesh.Vertices, again.Vertices, "meshing is deterministic")
}

func TestMeshResolutionByLOD(t *testing.T) {
	m, err := NewMesher(testConfig())
	require.NoError(t, err)

	assert.Equal(t, 4, m.Cells(0))
	assert.Equal(t, 4, m.Cells(1))
	assert.Equal(t, 2, m.Cells(2))
	assert.Equal(t, 1, m.Cells(3))
	assert.Equal(t, 1, m.Cells(6))
	mesh, err := m.Mesh(ChunkKey{}, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, mesh.VertexCount())
}

func TestNewMesherRejectsEmptyChunks(t *testing.T) {
	cfg := testConfig()
	cfg.CellsPerChunk = 0
	_, err := NewMesher(cfg)
	assert.Error(t, err)
}

// footprintArea is the area of triangle (a, b, c) projected onto the XZ plane.
func footprintArea(mesh *Mesh, a, b, c uint32) float32 {
	p := func(i uint32) mgl32.Vec2 {
		return mgl32.Vec2{mesh.Vertices[int(i)*Stride], mesh.Vertices[int(i)*Stride+2]}
	}
	u, v := p(b).Sub(p(a)), p(c).Sub(p(a))
	return math32.Abs(u[0]*v[1]-u[1]*v[0]) / 2
}

func TestChunkAt(t *testing.T) {
	s, _, _ := newTestStreamer(t, testConfig(), true)

	assert.Equal(t, ChunkKey{0, 0}, s.ChunkAt(mgl32.Vec3{1, 50, 31}))
	assert.Equal(t, ChunkKey{-1, 1}, s.ChunkAt(mgl32.Vec3{-0.5, 0, 32}))
	assert.Equal(t, ChunkKey{2, -3}, s.ChunkAt(mgl32.Vec3{64, 0, -65}))
}

func TestLODForRings(t *testing.T) {
	s, _, _ := newTestStreamer(t, testConfig(), true)
	assert.Equal(t, 0, s.LODFor(0))
	assert.Equal(t, 0, s.LODFor(1))
	assert.Equal(t, 2, s.LODFor(2))
	assert.Equal(t, 2, s.LODFor(3))
	assert.Equal(t, 3, s.LODFor(4))

	cfg := testConfig()
	cfg.Banded = false
	flat, _, _ := newTestStreamer(t, cfg, true)
	assert.Equal(t, 1, flat.LODFor(0))
	assert.Equal(t, 1, flat.LODFor(9))
}

func TestStreamerLoadsDisc(t *testing.T) {
	s, m, backend := newTestStreamer(t, testConfig(), true)

	require.NoError(t, s.Update(mgl32.Vec3{16, 0, 16}))
	chunks := s.Chunks()
	require.Len(t, chunks, 13)
	assert.Equal(t, 13, m.Stats().Records)
	require.NoError(t, m.ValidateIntegrity())

	center := s.Chunk(ChunkKey{0, 0})
	require.NotNil(t, center)
	assert.Equal(t, 0, center.LOD)
	assert.Equal(t, 2, s.Chunk(ChunkKey{2, 0}).LOD)
	assert.Nil(t, s.Chunk(ChunkKey{2, 2}), "outside the disc")

	rec := center.Record
	assert.Equal(t, 0, rec.LOD())
	sphere := rec.CullSphere()
	assert.InDelta(t, 16, sphere.Center[0], 1e-4)
	assert.InDelta(t, 16, sphere.Center[2], 1e-4)

	// The uploaded geometry matches a fresh mesh of the same chunk.
	mesh, err := s.Mesher().Mesh(ChunkKey{0, 0}, 0)
	require.NoError(t, err)
	pool := m.Pool(rec.PoolID())
	vs, ve := rec.VertexRange()
	is, ie := rec.IndexRange()
	assert.Equal(t, mesh.Vertices, backend.Vertices(pool.Buffer().Handle())[vs*Stride:ve*Stride])
	assert.Equal(t, mesh.Indices, backend.Indices(pool.Buffer().Handle())[is:ie])

	stats := s.Stats()
	assert.Equal(t, 13, stats.Loaded)
	assert.Equal(t, 13, stats.Chunks)
	assert.Equal(t, 1, stats.Updates)
}

func TestStreamerIgnoresMovesWithinChunk(t *testing.T) {
	s, _, _ := newTestStreamer(t, testConfig(), true)

	require.NoError(t, s.Update(mgl32.Vec3{1, 0, 1}))
	require.NoError(t, s.Update(mgl32.Vec3{30, 0, 30}))
	assert.Equal(t, 1, s.Stats().Updates)
}

func TestStreamerMoveUnloadsAndRemeshes(t *testing.T) {
	s, m, _ := newTestStreamer(t, testConfig(), true)

	require.NoError(t, s.Update(mgl32.Vec3{16, 0, 16}))
	before := s.Chunk(ChunkKey{1, 0}).Record
	require.NoError(t, s.Update(mgl32.Vec3{16 + 32, 0, 16}))

	assert.Len(t, s.Chunks(), 13)
	assert.Equal(t, 13, m.Stats().Records)
	require.NoError(t, m.ValidateIntegrity())
	assert.Nil(t, s.Chunk(ChunkKey{-2, 0}))
	assert.NotNil(t, s.Chunk(ChunkKey{3, 0}))

	// {1,0} stays at LOD 0, {0,0} stays at LOD 0, {-1,0} drops to LOD 2.
	assert.Same(t, before, s.Chunk(ChunkKey{1, 0}).Record)
	assert.Equal(t, 2, s.Chunk(ChunkKey{-1, 0}).LOD)

	stats := s.Stats()
	assert.Equal(t, 5, stats.Unloaded)
	assert.Positive(t, stats.Remeshed)
	assert.Equal(t, 2, stats.Updates)
}

func TestStreamerDefersReclamation(t *testing.T) {
	s, m, _ := newTestStreamer(t, testConfig(), false)

	require.NoError(t, s.Update(mgl32.Vec3{16, 0, 16}))
	old := s.Chunk(ChunkKey{-2, 0}).Record
	require.NoError(t, s.Update(mgl32.Vec3{16 + 32, 0, 16}))

	assert.True(t, old.Hidden(), "unloaded geometry is hidden at once")
	assert.Greater(t, m.Stats().Records, 13, "but its range is still reserved")

	for i := 0; i < memory.DefaultManagerConfig().RemovalStages; i++ {
		m.AdvanceFrame()
	}
	assert.Equal(t, 13, m.Stats().Records)
	require.NoError(t, m.ValidateIntegrity())
}

func TestStreamerClose(t *testing.T) {
	s, m, _ := newTestStreamer(t, testConfig(), true)

	require.NoError(t, s.Update(mgl32.Vec3{}))
	s.Close()
	assert.Empty(t, s.Chunks())
	assert.Zero(t, m.ActivePoolCount())
	assert.Equal(t, 13, s.Stats().Unloaded)
}

func TestNewStreamerRejectsStrideMismatch(t *testing.T) {
	backend := memory.NewHeapBackend(3)
	recycler := memory.NewRecycler(memory.DefaultRecyclerConfig(), backend, memory.WallClock())
	m := memory.NewManager(memory.DefaultManagerConfig(), recycler)

	_, err := NewStreamer(testConfig(), m)
	assert.Error(t, err)

	cfg := testConfig()
	cfg.ChunkSize = 0
	_, err = NewStreamer(cfg, memory.NewManager(memory.DefaultManagerConfig(),
		memory.NewRecycler(memory.DefaultRecyclerConfig(), memory.NewHeapBackend(Stride), memory.WallClock())))
	assert.Error(t, err)
}
