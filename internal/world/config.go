package world

// Config describes the streamed terrain.
type Config struct {
	// Seed drives terrain heights and colours.
	Seed int64 `toml:"seed"`

	// ChunkSize is the side of a square chunk in world units.
	ChunkSize float32 `toml:"chunk_size"`

	// CellsPerChunk is the number of quads along a chunk side at full
	// resolution. Coarser levels halve it per step, down to one.
	CellsPerChunk int `toml:"cells_per_chunk"`

	// ViewRadius is the radius, in chunks, of the loaded disc around the
	// observer.
	ViewRadius int `toml:"view_radius"`

	// Rings, in chunks, bounding the LOD 0 and LOD 2 bands. Chunks beyond
	// LOD2Rings are LOD 3. With Banded unset every chunk is LOD 1.
	Banded    bool `toml:"banded"`
	LOD0Rings int  `toml:"lod0_rings"`
	LOD2Rings int  `toml:"lod2_rings"`

	// HeightScale is the peak terrain height.
	HeightScale float32 `toml:"height_scale"`
}

// DefaultConfig returns a config whose bands line up with cull.DefaultConfig.
func DefaultConfig() Config {
	return Config{
		Seed:          1,
		ChunkSize:     32,
		CellsPerChunk: 16,
		ViewRadius:    8,
		Banded:        true,
		LOD0Rings:     1,
		LOD2Rings:     3,
		HeightScale:   24,
	}
}
