package cull

import "github.com/irfansharif/geopool/internal/geom"

// View selects an independent visibility slot on each record.
type View uint8

const (
	ViewMain View = iota
	ViewShadow
	NumViews
)

func (v View) String() string {
	switch v {
	case ViewMain:
		return "main"
	case ViewShadow:
		return "shadow"
	default:
		return "unknown"
	}
}

// Parity indexes the double-buffered visibility gates.
type Parity uint8

// Pass is the per-frame culling context. Evaluation writes the gate for the
// opposite parity; readers read the gate for Parity. Call Next once per frame,
// after evaluating and before reading, to make the fresh decisions current.
type Pass struct {
	View   View
	Parity Parity
}

// Next returns the pass for the following phase, with parity flipped.
func (p Pass) Next() Pass {
	return Pass{View: p.View, Parity: p.Parity ^ 1}
}

// Visibility is the per-view visibility state of a record.
type Visibility struct {
	gates          [2]bool
	frustumVisible bool
}

// Visible reads the gate for the given parity.
func (v *Visibility) Visible(p Parity) bool { return v.gates[p&1] }

// FrustumVisible returns the hysteresis state from the last evaluation.
func (v *Visibility) FrustumVisible() bool { return v.frustumVisible }

// Reset clears all state, e.g. when a record slot is reused.
func (v *Visibility) Reset() { *v = Visibility{} }

// Target is anything the frustum can classify.
type Target interface {
	CullSphere() geom.Sphere
	LOD() int
	Hidden() bool
	Visibility(View) *Visibility
}

// Evaluate classifies t for the pass, updates its hysteresis flag and writes
// the opposite-parity gate. A hidden target is never visible.
func (f *Frustum) Evaluate(t Target, pass Pass) bool {
	v := t.Visibility(pass.View)

	visible := false
	if !t.Hidden() {
		switch pass.View {
		case ViewShadow:
			visible = f.InFrustumShadowPass(t.CullSphere())
		default:
			visible = f.InFrustumAndRange(t.CullSphere(), v.frustumVisible, t.LOD())
		}
	}

	v.frustumVisible = visible
	v.gates[(pass.Parity^1)&1] = visible
	return visible
}
