// Package config gathers every tunable of the geometry pools, the culler and
// the terrain streamer. Values start from the package defaults, are
// overlaid by an optional TOML file, and finally by environment variables.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"

	"github.com/irfansharif/geopool/internal/cull"
	"github.com/irfansharif/geopool/internal/memory"
	"github.com/irfansharif/geopool/internal/world"
)

// Config is the complete configuration of the viewer.
type Config struct {
	Recycler memory.RecyclerConfig `toml:"recycler"`
	Manager  memory.ManagerConfig  `toml:"manager"`
	Cull     cull.Config           `toml:"cull"`
	World    world.Config          `toml:"world"`

	// Window size in screen coordinates.
	Width  int `toml:"width"`
	Height int `toml:"height"`

	// Frame intervals for periodic work in the main loop. Zero disables.
	StatsInterval      int `toml:"stats_interval"`
	CompactionInterval int `toml:"compaction_interval"`
	IntegrityInterval  int `toml:"integrity_interval"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Recycler:           memory.DefaultRecyclerConfig(),
		Manager:            memory.DefaultManagerConfig(),
		Cull:               cull.DefaultConfig(),
		World:              world.DefaultConfig(),
		Width:              1280,
		Height:             960,
		StatsInterval:      300,
		CompactionInterval: 60,
		IntegrityInterval:  100,
	}
}

// Load returns the defaults overlaid with the TOML file at path, if path is
// non-empty, and then with environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		if err := Decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode overlays TOML data onto cfg. Unknown keys are rejected.
func Decode(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}

// Encode renders cfg as TOML.
func Encode(cfg Config) ([]byte, error) {
	return toml.Marshal(cfg)
}

// ApplyEnv applies GEOPOOL_SEED and GEOPOOL_IMMEDIATE_REMOVAL from lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("GEOPOOL_SEED"); ok && v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid GEOPOOL_SEED value '%s': %w", v, err)
		}
		c.World.Seed = seed
	}
	if v, ok := lookup("GEOPOOL_IMMEDIATE_REMOVAL"); ok && v != "" {
		immediate, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid GEOPOOL_IMMEDIATE_REMOVAL value '%s': %w", v, err)
		}
		c.Manager.ImmediateRemoval = immediate
	}
	return nil
}

// Validate rejects configurations the pools or the streamer cannot run with.
func (c *Config) Validate() error {
	r := c.Recycler
	switch {
	case r.SmallMaxQuads <= 0 || r.MediumMaxQuads <= r.SmallMaxQuads:
		return fmt.Errorf("size classes must satisfy 0 < small (%d) < medium (%d)", r.SmallMaxQuads, r.MediumMaxQuads)
	case r.HeadroomNum < r.HeadroomDen || r.HeadroomDen <= 0:
		return fmt.Errorf("headroom %d/%d must be at least 1", r.HeadroomNum, r.HeadroomDen)
	case r.TTL <= 0:
		return fmt.Errorf("recycler ttl must be positive, got %d", r.TTL)
	case c.Manager.RemovalStages < 1:
		return fmt.Errorf("removal stages must be at least 1, got %d", c.Manager.RemovalStages)
	case c.Manager.InitialPoolVertices <= 0 || c.Manager.MaxPoolVertices < c.Manager.InitialPoolVertices:
		return fmt.Errorf("pool sizes must satisfy 0 < initial (%d) <= max (%d)",
			c.Manager.InitialPoolVertices, c.Manager.MaxPoolVertices)
	case c.Cull.ViewDistance <= 0:
		return fmt.Errorf("view distance must be positive, got %.1f", c.Cull.ViewDistance)
	case c.World.ChunkSize <= 0 || c.World.CellsPerChunk <= 0:
		return fmt.Errorf("chunks must have a positive size and cell count")
	}
	return nil
}
