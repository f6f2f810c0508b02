// Package world streams height-field terrain chunks around an observer. It is
// the producer side of the geometry pools: chunks entering the view radius are
// meshed and allocated, chunks leaving it or changing level of detail are
// submitted for deferred removal.
package world

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/irfansharif/geopool/internal/geom"
	"github.com/irfansharif/geopool/internal/memory"
)

var streamingLogger *log.Logger = log.New(io.Discard, "", 0)

func init() {
	if os.Getenv("GEOPOOL_DEBUG_STREAMING") == "1" {
		streamingLogger = log.New(os.Stdout, "[streaming] ", log.Ltime|log.Lmsgprefix)
	}
}

// ChunkKey is a chunk's position on the chunk grid.
type ChunkKey struct {
	X, Z int
}

// Ring returns the Chebyshev distance between two chunks.
func (k ChunkKey) Ring(o ChunkKey) int {
	return max(abs(k.X-o.X), abs(k.Z-o.Z))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Chunk is a loaded chunk and the record holding its geometry.
type Chunk struct {
	Key    ChunkKey
	LOD    int
	Record *memory.Record
}

// Stats counts streaming events since creation.
type Stats struct {
	Chunks   int // currently loaded
	Loaded   int
	Unloaded int
	Remeshed int
	Updates  int // updates that changed the loaded set
}

// Streamer keeps the chunks around an observer loaded. It must be used from
// the render goroutine.
type Streamer struct {
	cfg     Config
	manager *memory.Manager
	mesher  *Mesher

	chunks map[ChunkKey]*Chunk
	center ChunkKey
	primed bool
	stats  Stats
}

// NewStreamer returns a streamer allocating chunk geometry from manager. The
// manager's backend must use Stride floats per vertex.
func NewStreamer(cfg Config, manager *memory.Manager) (*Streamer, error) {
	if cfg.ChunkSize <= 0 || cfg.CellsPerChunk <= 0 || cfg.ViewRadius < 0 {
		return nil, fmt.Errorf("invalid world config: chunk size %.1f, %d cells, radius %d",
			cfg.ChunkSize, cfg.CellsPerChunk, cfg.ViewRadius)
	}
	if stride := manager.Recycler().Backend().Stride(); stride != Stride {
		return nil, fmt.Errorf("backend stride %d does not match vertex layout stride %d", stride, Stride)
	}
	mesher, err := NewMesher(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating mesher: %w", err)
	}
	return &Streamer{
		cfg:     cfg,
		manager: manager,
		mesher:  mesher,
		chunks:  make(map[ChunkKey]*Chunk),
	}, nil
}

// Mesher returns the streamer's mesher.
func (s *Streamer) Mesher() *Mesher { return s.mesher }

// ChunkAt returns the key of the chunk containing p.
func (s *Streamer) ChunkAt(p mgl32.Vec3) ChunkKey {
	return ChunkKey{
		X: int(math32.Floor(p[0] / s.cfg.ChunkSize)),
		Z: int(math32.Floor(p[2] / s.cfg.ChunkSize)),
	}
}

// LODFor returns the level of detail of a chunk ring chunks from the
// observer's.
func (s *Streamer) LODFor(ring int) int {
	switch {
	case !s.cfg.Banded:
		return 1
	case ring <= s.cfg.LOD0Rings:
		return 0
	case ring <= s.cfg.LOD2Rings:
		return 2
	default:
		return 3
	}
}

// Update loads and unloads chunks for an observer at p. Nothing happens until
// the observer crosses into another chunk. Replaced records are submitted for
// removal in a single batch before any new geometry is allocated.
func (s *Streamer) Update(p mgl32.Vec3) error {
	center := s.ChunkAt(p)
	if s.primed && center == s.center {
		return nil
	}
	s.center, s.primed = center, true

	want := s.desired(center)

	var retired []*memory.Record
	unloaded, remeshed := 0, 0
	for key, c := range s.chunks {
		lod, ok := want[key]
		if ok && lod == c.LOD {
			delete(want, key)
			continue
		}
		if ok {
			remeshed++
		} else {
			unloaded++
		}
		retired = append(retired, c.Record)
		delete(s.chunks, key)
	}
	s.manager.SubmitForRemoval(retired)

	keys := make([]ChunkKey, 0, len(want))
	for key := range want {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := keys[i].Ring(center), keys[j].Ring(center)
		if ri != rj {
			return ri < rj
		}
		if keys[i].Z != keys[j].Z {
			return keys[i].Z < keys[j].Z
		}
		return keys[i].X < keys[j].X
	})

	for _, key := range keys {
		if err := s.load(key, want[key]); err != nil {
			return err
		}
	}

	s.stats.Unloaded += unloaded
	s.stats.Remeshed += remeshed
	s.stats.Loaded += len(keys) - remeshed
	s.stats.Chunks = len(s.chunks)
	s.stats.Updates++
	streamingLogger.Printf("observer entered chunk %v: %d loaded, %d unloaded, %d remeshed, %d resident",
		center, len(keys)-remeshed, unloaded, remeshed, len(s.chunks))
	return nil
}

// desired returns the LOD of every chunk within ViewRadius of center.
func (s *Streamer) desired(center ChunkKey) map[ChunkKey]int {
	r := s.cfg.ViewRadius
	want := make(map[ChunkKey]int)
	for dz := -r; dz <= r; dz++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dz*dz > r*r {
				continue
			}
			key := ChunkKey{X: center.X + dx, Z: center.Z + dz}
			want[key] = s.LODFor(key.Ring(center))
		}
	}
	return want
}

func (s *Streamer) load(key ChunkKey, lod int) error {
	mesh, err := s.mesher.Mesh(key, lod)
	if err != nil {
		return fmt.Errorf("loading chunk %v: %w", key, err)
	}
	rec := s.manager.Allocate(mesh.VertexCount(), mesh.IndexCount(), geom.SphereAroundBox(mesh.Min, mesh.Max), lod)
	if err := s.manager.Pool(rec.PoolID()).Write(rec, mesh.Vertices, mesh.Indices); err != nil {
		s.manager.SubmitForRemoval([]*memory.Record{rec})
		return fmt.Errorf("loading chunk %v: %w", key, err)
	}
	s.chunks[key] = &Chunk{Key: key, LOD: lod, Record: rec}
	return nil
}

// Chunk returns the loaded chunk at key, or nil.
func (s *Streamer) Chunk(key ChunkKey) *Chunk { return s.chunks[key] }

// Chunks returns the loaded chunks ordered by key.
func (s *Streamer) Chunks() []*Chunk {
	out := make([]*Chunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Z != out[j].Key.Z {
			return out[i].Key.Z < out[j].Key.Z
		}
		return out[i].Key.X < out[j].Key.X
	})
	return out
}

func (s *Streamer) Stats() Stats { return s.stats }

// Close submits every loaded chunk for removal.
func (s *Streamer) Close() {
	retired := make([]*memory.Record, 0, len(s.chunks))
	for _, c := range s.Chunks() {
		retired = append(retired, c.Record)
	}
	s.manager.SubmitForRemoval(retired)
	s.chunks = make(map[ChunkKey]*Chunk)
	s.stats.Unloaded += len(retired)
	s.stats.Chunks = 0
	s.primed = false
}
