package cull

// Config holds the distance bands used by the frustum. All squared values are
// in world units squared, measured in the XZ plane from the observer.
type Config struct {
	// ViewDistance bounds LOD 1 and LOD 3.
	ViewDistance float32 `toml:"view_distance"`

	// LOD0Bias is the close-range radius for LOD 0. Zero or negative disables
	// the tier entirely.
	LOD0Bias float32 `toml:"lod0_bias"`

	// LOD0Margin is added to LOD0Bias² to form the LOD 0 threshold. The
	// default of 1024 is one 32-unit chunk squared.
	LOD0Margin float32 `toml:"lod0_margin"`

	// LOD2NearDistSq is the near band for LOD 2; LOD 3 starts beyond it.
	LOD2NearDistSq float32 `toml:"lod2_near_dist_sq"`

	// ShadowRange is the half-width of the square, centered on the observer,
	// outside of which nothing casts shadows.
	ShadowRange float32 `toml:"shadow_range"`

	// HysteresisFraction widens the distance bands for records that were
	// visible on their previous evaluation.
	HysteresisFraction float32 `toml:"hysteresis_fraction"`
}

// DefaultConfig returns the stock distance bands.
func DefaultConfig() Config {
	return Config{
		ViewDistance:       256,
		LOD0Bias:           48,
		LOD0Margin:         1024,
		LOD2NearDistSq:     96 * 96,
		ShadowRange:        128,
		HysteresisFraction: 0.05,
	}
}
