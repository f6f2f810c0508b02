package world

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/rclancey/earcut"

	"github.com/irfansharif/geopool/internal/palette"
)

// Stride is the number of float32s per vertex: position xyz, then colour rgb.
const Stride = 6

// Mesh is the geometry of one chunk. Indices are relative to the first vertex.
type Mesh struct {
	Vertices []float32
	Indices  []uint32
	Min, Max mgl32.Vec3 // bounds of the vertex positions
}

func (m *Mesh) VertexCount() int { return len(m.Vertices) / Stride }
func (m *Mesh) IndexCount() int  { return len(m.Indices) }

// octave is one sinusoidal layer of the height field.
type octave struct {
	fx, fz, phase, amp float32
}

// Mesher turns chunk coordinates into coloured height-field geometry.
type Mesher struct {
	cfg     Config
	ramp    palette.Ramp
	octaves [3]octave
}

// NewMesher returns a mesher for the terrain described by cfg.
func NewMesher(cfg Config) (*Mesher, error) {
	if cfg.ChunkSize <= 0 || cfg.CellsPerChunk <= 0 {
		return nil, fmt.Errorf("invalid mesher config: chunk size %.1f, %d cells", cfg.ChunkSize, cfg.CellsPerChunk)
	}
	r := rand.New(rand.NewSource(cfg.Seed))
	m := &Mesher{cfg: cfg, ramp: palette.Terrain(r)}

	amps := [3]float32{0.6, 0.3, 0.1}
	for i := range m.octaves {
		base := float32(int(1)<<i) / 96 // wavelengths of roughly 600, 300 and 150 units
		m.octaves[i] = octave{
			fx:    base * (0.75 + r.Float32()/2),
			fz:    base * (0.75 + r.Float32()/2),
			phase: r.Float32() * 2 * math32.Pi,
			amp:   amps[i],
		}
	}
	return m, nil
}

// Height returns the terrain height at (x, z), within ±HeightScale.
func (m *Mesher) Height(x, z float32) float32 {
	var y float32
	for _, o := range m.octaves {
		y += o.amp * math32.Sin(x*o.fx+o.phase) * math32.Cos(z*o.fz-o.phase)
	}
	return y * m.cfg.HeightScale
}

// Cells returns the number of quads along a chunk side at the given LOD.
func (m *Mesher) Cells(lod int) int {
	shift := 0
	if lod > 1 {
		shift = lod - 1
	}
	return max(m.cfg.CellsPerChunk>>shift, 1)
}

// Mesh builds the geometry of a chunk at the given LOD. Every cell is four
// vertices and six indices, the cell's corners triangulated in the XZ plane.
func (m *Mesher) Mesh(key ChunkKey, lod int) (*Mesh, error) {
	cells := m.Cells(lod)
	step := m.cfg.ChunkSize / float32(cells)
	ox := float32(key.X) * m.cfg.ChunkSize
	oz := float32(key.Z) * m.cfg.ChunkSize

	mesh := &Mesh{
		Vertices: make([]float32, 0, cells*cells*4*Stride),
		Indices:  make([]uint32, 0, cells*cells*6),
		Min:      mgl32.Vec3{ox, math.MaxFloat32, oz},
		Max:      mgl32.Vec3{ox + m.cfg.ChunkSize, -math.MaxFloat32, oz + m.cfg.ChunkSize},
	}

	corners := make([]mgl32.Vec2, 4)
	for j := 0; j < cells; j++ {
		for i := 0; i < cells; i++ {
			x0, z0 := ox+float32(i)*step, oz+float32(j)*step
			corners[0] = mgl32.Vec2{x0, z0}
			corners[1] = mgl32.Vec2{x0 + step, z0}
			corners[2] = mgl32.Vec2{x0 + step, z0 + step}
			corners[3] = mgl32.Vec2{x0, z0 + step}

			tris, err := triangulate(corners)
			if err != nil {
				return nil, fmt.Errorf("triangulating cell (%d, %d) of chunk %v: %w", i, j, key, err)
			}
			if len(tris) != 6 {
				return nil, fmt.Errorf("triangulating cell (%d, %d) of chunk %v: got %d indices, want 6", i, j, key, len(tris))
			}

			base := uint32(mesh.VertexCount())
			for _, c := range corners {
				m.vertex(mesh, c[0], c[1], lod)
			}
			for _, idx := range tris {
				mesh.Indices = append(mesh.Indices, base+idx)
			}
		}
	}
	return mesh, nil
}

func (m *Mesher) vertex(mesh *Mesh, x, z float32, lod int) {
	y := m.Height(x, z)
	mesh.Min[1] = math32.Min(mesh.Min[1], y)
	mesh.Max[1] = math32.Max(mesh.Max[1], y)

	t := 0.5
	if m.cfg.HeightScale > 0 {
		t = float64(y/m.cfg.HeightScale+1) / 2
	}
	c := palette.Tinted(m.ramp.At(t), lod)
	mesh.Vertices = append(mesh.Vertices, x, y, z, float32(c.R), float32(c.G), float32(c.B))
}

// triangulate returns triangle indices into a polygon's vertex list.
func triangulate(polygon []mgl32.Vec2) ([]uint32, error) {
	if len(polygon) < 3 {
		return nil, fmt.Errorf("degenerate polygon (%d vertices < 3)", len(polygon))
	}

	coords := make([]float64, len(polygon)*2)
	for i, p := range polygon {
		coords[i*2] = float64(p[0])
		coords[i*2+1] = float64(p[1])
	}

	indices, err := earcut.Earcut(coords, nil /* holeIndices */, 2 /* dim */)
	if err != nil {
		return nil, fmt.Errorf("triangulating %d-vertex polygon: %w", len(polygon), err)
	}
	if len(indices)%3 != 0 {
		return nil, fmt.Errorf("invalid triangle count (indices: %d, not divisible by 3)", len(indices))
	}

	out := make([]uint32, len(indices))
	for i, idx := range indices {
		out[i] = uint32(idx)
	}
	return out, nil
}
