// Package memory manages the lifecycle of geometry buffers for a streaming
// renderer.
//
// Buffers are handed out by a size-classed Recycler that caches buffers the
// renderer no longer needs. Pools sub-allocate vertex and index ranges out of
// a single backing buffer and track one Record per allocation. The Manager
// owns the pools and defers every free across several frames so that a range
// is never reused while the render backend may still be reading it.
package memory

import (
	"io"
	"log"
	"os"
)

var (
	memoryLogger     *log.Logger = log.New(io.Discard, "", 0)
	recyclerLogger   *log.Logger = log.New(io.Discard, "", 0)
	compactionLogger *log.Logger = log.New(io.Discard, "", 0)
)

func init() {
	if os.Getenv("GEOPOOL_DEBUG_MEMORY") == "1" {
		memoryLogger = log.New(os.Stdout, "[memory] ", log.Ltime|log.Lmsgprefix)
	}
	if os.Getenv("GEOPOOL_DEBUG_RECYCLER") == "1" {
		recyclerLogger = log.New(os.Stdout, "[recycler] ", log.Ltime|log.Lmsgprefix)
	}
	if os.Getenv("GEOPOOL_DEBUG_COMPACTION") == "1" {
		compactionLogger = log.New(os.Stdout, "[compaction] ", log.Ltime|log.Lmsgprefix)
	}
}

// Quad layout. Vertices are interleaved four to a quad, and each quad is drawn
// as two triangles.
const (
	VerticesPerQuad = 4
	IndicesPerQuad  = 6
)

// RecyclerConfig tunes the buffer recycler. Capacities are in vertices;
// class boundaries are in quads (capacity / 4).
type RecyclerConfig struct {
	// Size-class boundaries. A buffer of q quads goes into the small class if
	// q <= SmallMaxQuads, the medium class if q <= MediumMaxQuads, and the
	// large class otherwise.
	SmallMaxQuads  int `toml:"small_max_quads"`
	MediumMaxQuads int `toml:"medium_max_quads"`

	// Per-class ceilings on the summed vertex capacity of cached buffers.
	// Exceeding one evicts the oldest entry in that class.
	SmallCeiling  int `toml:"small_ceiling"`
	MediumCeiling int `toml:"medium_ceiling"`
	LargeCeiling  int `toml:"large_ceiling"`

	// TTL is the maximum age, in clock units, of a cached buffer.
	TTL int64 `toml:"ttl"`

	// A cached buffer of k quads satisfies a request for q quads only if
	// k <= q*(1+BestFitTolerance) + BestFitSlack.
	BestFitTolerance float64 `toml:"best_fit_tolerance"`
	BestFitSlack     float64 `toml:"best_fit_slack"`

	// Fresh allocations are over-provisioned by HeadroomNum/HeadroomDen.
	HeadroomNum int `toml:"headroom_num"`
	HeadroomDen int `toml:"headroom_den"`
}

// DefaultRecyclerConfig returns the stock recycler tuning.
func DefaultRecyclerConfig() RecyclerConfig {
	return RecyclerConfig{
		SmallMaxQuads:    1024,
		MediumMaxQuads:   8192,
		SmallCeiling:     300_000,
		MediumCeiling:    900_000,
		LargeCeiling:     2_240_000,
		TTL:              15_000,
		BestFitTolerance: 0.25,
		BestFitSlack:     4,
		HeadroomNum:      41,
		HeadroomDen:      40,
	}
}

// ManagerConfig tunes the pool master manager.
type ManagerConfig struct {
	// RemovalStages is the number of AdvanceFrame calls between submitting a
	// record for removal and reclaiming its range. It must exceed the render
	// backend's in-flight frame latency.
	RemovalStages int `toml:"removal_stages"`

	// ImmediateRemoval reclaims synchronously in SubmitForRemoval. Only for
	// contexts without render latency, e.g. headless tests.
	ImmediateRemoval bool `toml:"immediate_removal"`

	// New pools start with InitialPoolVertices and grow by doubling until
	// MaxPoolVertices, after which another pool is created.
	InitialPoolVertices int `toml:"initial_pool_vertices"`
	MaxPoolVertices     int `toml:"max_pool_vertices"`

	// Compaction shrinks pools whose high-water mark has dropped below
	// CompactionThreshold of their capacity, at most CompactionMaxPerFrame
	// pools per call.
	CompactionEnabled     bool    `toml:"compaction_enabled"`
	CompactionThreshold   float64 `toml:"compaction_threshold"`
	CompactionMaxPerFrame int     `toml:"compaction_max_per_frame"`
}

// DefaultManagerConfig returns the stock manager tuning.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		RemovalStages:         4,
		InitialPoolVertices:   16 * 1024,
		MaxPoolVertices:       256 * 1024,
		CompactionEnabled:     true,
		CompactionThreshold:   0.25,
		CompactionMaxPerFrame: 1,
	}
}
