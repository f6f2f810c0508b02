package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 4, cfg.Manager.RemovalStages)
	assert.Equal(t, 300_000, cfg.Recycler.SmallCeiling)
	assert.Equal(t, 900_000, cfg.Recycler.MediumCeiling)
	assert.Equal(t, 2_240_000, cfg.Recycler.LargeCeiling)
	assert.Equal(t, int64(15_000), cfg.Recycler.TTL)
	assert.Equal(t, float32(1024), cfg.Cull.LOD0Margin)
}

func TestDecodeOverlaysDefaults(t *testing.T) {
	cfg := Default()
	err := Decode([]byte(`
width = 800

[manager]
removal_stages = 3
immediate_removal = true

[cull]
view_distance = 512.0

[world]
seed = 42
`), &cfg)
	require.NoError(t, err)

	assert.Equal(t, 800, cfg.Width)
	assert.Equal(t, 960, cfg.Height, "unset keys keep their defaults")
	assert.Equal(t, 3, cfg.Manager.RemovalStages)
	assert.True(t, cfg.Manager.ImmediateRemoval)
	assert.Equal(t, Default().Manager.InitialPoolVertices, cfg.Manager.InitialPoolVertices)
	assert.Equal(t, float32(512), cfg.Cull.ViewDistance)
	assert.Equal(t, int64(42), cfg.World.Seed)
	assert.Equal(t, Default().Recycler, cfg.Recycler)
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	cfg := Default()
	assert.Error(t, Decode([]byte("[manager]\nremoval_stagez = 3\n"), &cfg))
}

func TestEncodeRoundTrip(t *testing.T) {
	want := Default()
	want.World.Seed = 7
	data, err := Encode(want)
	require.NoError(t, err)

	var got Config
	require.NoError(t, Decode(data, &got))
	assert.Equal(t, want, got)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(env(map[string]string{
		"GEOPOOL_SEED":              "1234",
		"GEOPOOL_IMMEDIATE_REMOVAL": "true",
	})))
	assert.Equal(t, int64(1234), cfg.World.Seed)
	assert.True(t, cfg.Manager.ImmediateRemoval)

	cfg = Default()
	require.NoError(t, cfg.ApplyEnv(env(map[string]string{"GEOPOOL_SEED": ""})))
	assert.Equal(t, Default().World.Seed, cfg.World.Seed)

	assert.Error(t, cfg.ApplyEnv(env(map[string]string{"GEOPOOL_SEED": "abc"})))
	assert.Error(t, cfg.ApplyEnv(env(map[string]string{"GEOPOOL_IMMEDIATE_REMOVAL": "maybe"})))
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*Config)
	}{
		{"inverted size classes", func(c *Config) { c.Recycler.MediumMaxQuads = c.Recycler.SmallMaxQuads }},
		{"headroom below one", func(c *Config) { c.Recycler.HeadroomNum = 39 }},
		{"zero ttl", func(c *Config) { c.Recycler.TTL = 0 }},
		{"no removal stages", func(c *Config) { c.Manager.RemovalStages = 0 }},
		{"max pool below initial", func(c *Config) { c.Manager.MaxPoolVertices = 1 }},
		{"zero view distance", func(c *Config) { c.Cull.ViewDistance = 0 }},
		{"zero chunk size", func(c *Config) { c.World.ChunkSize = 0 }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("GEOPOOL_SEED", "99")

	path := filepath.Join(t.TempDir(), "geopool.toml")
	require.NoError(t, os.WriteFile(path, []byte("[world]\nseed = 5\nview_radius = 4\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(99), cfg.World.Seed, "environment wins over the file")
	assert.Equal(t, 4, cfg.World.ViewRadius)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("[manager]\nremoval_stages = 0\n"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}
