// Package palette provides colour ramps for terrain geometry. Ramps are
// generated in HSV space with a seeded jitter and blended in Lab space.
package palette

import (
	"image/color"
	"math/rand"
	"sort"

	"github.com/lucasb-eyer/go-colorful"
)

// Stop is one colour on a ramp, at a normalized height in [0, 1].
type Stop struct {
	At    float64
	Color colorful.Color
}

// Ramp maps a normalized height to a colour. Stops are sorted by At.
type Ramp []Stop

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Terrain returns a five-stop ramp (shore, lowland, upland, rock, snow) whose
// hues and brightness are jittered by r.
func Terrain(r *rand.Rand) Ramp {
	// hsb takes hue in 0-100 and saturation/brightness in percent.
	hsb := func(h, s, b float64) colorful.Color {
		hue := h * 3.6
		sat := clamp(s/100.0, 0, 1)
		bright := clamp(b/100.0, 0, 1)
		return colorful.Hsv(hue, sat, bright)
	}
	jitter := func(spread float64) float64 { return (r.Float64() - 0.5) * spread }

	ramp := Ramp{
		{At: 0.00, Color: hsb(14+jitter(4), 35+jitter(20), 75+jitter(10))},
		{At: 0.20, Color: hsb(30+jitter(8), 55+jitter(20), 55+jitter(20))},
		{At: 0.55, Color: hsb(25+jitter(8), 45+jitter(20), 40+jitter(20))},
		{At: 0.80, Color: hsb(8+jitter(6), 10+jitter(10), 45+jitter(10))},
		{At: 1.00, Color: colorful.Color{R: 0.96, G: 0.97, B: 1}},
	}
	sort.SliceStable(ramp, func(i, j int) bool { return ramp[i].At < ramp[j].At })
	return ramp
}

// At returns the ramp colour for a normalized height t, blending the two
// surrounding stops in Lab space. t is clamped to [0, 1].
func (r Ramp) At(t float64) colorful.Color {
	if len(r) == 0 {
		return colorful.Color{}
	}
	t = clamp(t, 0, 1)
	i := sort.Search(len(r), func(i int) bool { return r[i].At >= t })
	if i == 0 {
		return r[0].Color
	}
	if i == len(r) {
		return r[len(r)-1].Color
	}
	lo, hi := r[i-1], r[i]
	if hi.At == lo.At {
		return hi.Color
	}
	return lo.Color.BlendLab(hi.Color, (t-lo.At)/(hi.At-lo.At)).Clamped()
}

// RGBA returns the ramp colour at t as 8-bit RGBA.
func (r Ramp) RGBA(t float64) color.RGBA {
	red, green, blue := r.At(t).RGB255()
	return color.RGBA{R: red, G: green, B: blue, A: 255}
}

// Tinted darkens c by a fixed step per level of detail so coarser bands are
// distinguishable. Level 0 and 1 are returned unchanged.
func Tinted(c colorful.Color, lod int) colorful.Color {
	if lod <= 1 {
		return c
	}
	h, s, v := c.Hsv()
	v = clamp(v-0.06*float64(lod-1), 0, 1)
	return colorful.Hsv(h, s, v)
}

// Shimmered applies a small brightness jitter to c.
func Shimmered(c colorful.Color, r *rand.Rand) colorful.Color {
	h, s, v := c.Hsv()
	v = clamp(v+(r.Float64()-0.5)*0.1, 0, 1)
	return colorful.Hsv(h, s, v)
}
