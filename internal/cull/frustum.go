// Package cull decides which pool records are visible.
//
// A Frustum holds six planes extracted from the combined projection × view
// transform, the observer position and the distance bands that gate each LOD
// tier. Records are evaluated once per culling pass; each pass writes into its
// own per-record Visibility slot so that the main view and the shadow view can
// run over the same record set without interfering.
package cull

import (
	"io"
	"log"
	"os"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/irfansharif/geopool/internal/geom"
)

var cullLogger *log.Logger = log.New(io.Discard, "", 0)

func init() {
	if os.Getenv("GEOPOOL_DEBUG_CULL") == "1" {
		cullLogger = log.New(os.Stdout, "[cull] ", log.Ltime|log.Lmsgprefix)
	}
}

// Plane indices. The first four are the side planes used by the ranged test.
const (
	PlaneLeft = iota
	PlaneRight
	PlaneBottom
	PlaneTop
	PlaneNear
	PlaneFar
	numPlanes
)

const numSidePlanes = 4

// Plane is n·p + d = 0, with positive distances inside the frustum.
type Plane struct {
	Normal mgl32.Vec3
	D      float32
}

// Distance returns the signed distance of p from the plane.
func (pl Plane) Distance(p mgl32.Vec3) float32 {
	return pl.Normal.Dot(p) + pl.D
}

// makePlane normalizes the plane (a, b, c, d) by the length of its normal.
// A singular source transform yields a zero normal; callers must avoid it.
func makePlane(v mgl32.Vec4) Plane {
	n := mgl32.Vec3{v[0], v[1], v[2]}
	l := math32.Sqrt(n.Dot(n))
	return Plane{Normal: n.Mul(1 / l), D: v[3] / l}
}

// Frustum is the per-frame culling state.
type Frustum struct {
	cfg        Config
	planes     [numPlanes]Plane
	observer   mgl32.Vec3
	viewDistSq float32
}

// NewFrustum returns a frustum using the given distance bands. It must be
// updated with a transform before use.
func NewFrustum(cfg Config) *Frustum {
	return &Frustum{
		cfg:        cfg,
		viewDistSq: cfg.ViewDistance * cfg.ViewDistance,
	}
}

// Update re-derives the planes from the combined projection × view matrix and
// records the observer position. mgl32 matrices are column-major, so row i is
// (m[i], m[4+i], m[8+i], m[12+i]).
func (f *Frustum) Update(projView mgl32.Mat4, observer mgl32.Vec3) {
	r0, r1, r2, r3 := projView.Row(0), projView.Row(1), projView.Row(2), projView.Row(3)

	f.planes[PlaneLeft] = makePlane(r3.Add(r0))
	f.planes[PlaneRight] = makePlane(r3.Sub(r0))
	f.planes[PlaneBottom] = makePlane(r3.Add(r1))
	f.planes[PlaneTop] = makePlane(r3.Sub(r1))
	f.planes[PlaneNear] = makePlane(r3.Add(r2))
	f.planes[PlaneFar] = makePlane(r3.Sub(r2))
	f.observer = observer

	cullLogger.Printf("frustum updated at observer (%.1f, %.1f, %.1f)", observer[0], observer[1], observer[2])
}

// SetViewDistance changes the LOD 1/3 distance band.
func (f *Frustum) SetViewDistance(d float32) {
	f.cfg.ViewDistance = d
	f.viewDistSq = d * d
}

// Plane returns plane i (see the Plane* constants).
func (f *Frustum) Plane(i int) Plane { return f.planes[i] }

// Observer returns the position recorded by the last Update.
func (f *Frustum) Observer() mgl32.Vec3 { return f.observer }

// SphereInFrustum reports whether the sphere is not entirely outside any of
// the six planes. A sphere exactly tangent to a plane is inside.
func (f *Frustum) SphereInFrustum(center mgl32.Vec3, radius float32) bool {
	for i := range f.planes {
		if f.planes[i].Distance(center) < -radius {
			return false
		}
	}
	return true
}

// AxisAlignedBoxIsOutside reports whether the box inscribed in the sphere lies
// entirely behind one of the six planes.
func (f *Frustum) AxisAlignedBoxIsOutside(s geom.Sphere) bool {
	return f.boxOutside(s, numPlanes)
}

// boxOutside tests the first n planes. For each plane it projects the box's
// half-extent onto the normal and rejects if the farthest corner along the
// normal is still behind the plane.
func (f *Frustum) boxOutside(s geom.Sphere, n int) bool {
	half := s.HalfExtent()
	for i := 0; i < n; i++ {
		pl := &f.planes[i]
		reach := math32.Abs(pl.Normal[0])*half[0] +
			math32.Abs(pl.Normal[1])*half[1] +
			math32.Abs(pl.Normal[2])*half[2]
		if pl.Distance(s.Center)+reach < 0 {
			return true
		}
	}
	return false
}

// InFrustumAndRange applies the side planes and then the horizontal distance
// band for the given LOD. wasVisible widens the bands by the configured
// hysteresis fraction so that a record near a band edge does not flicker.
func (f *Frustum) InFrustumAndRange(s geom.Sphere, wasVisible bool, lod int) bool {
	if f.boxOutside(s, numSidePlanes) {
		return false
	}

	grow, shrink := float32(1), float32(1)
	if wasVisible {
		grow = 1 + f.cfg.HysteresisFraction
		shrink = 1 - f.cfg.HysteresisFraction
	}

	d2 := s.HorizontalDistSq(f.observer)
	switch lod {
	case 0:
		if f.cfg.LOD0Bias <= 0 {
			return false // tier disabled
		}
		return d2 <= (f.cfg.LOD0Bias*f.cfg.LOD0Bias+f.cfg.LOD0Margin)*grow
	case 1:
		return d2 <= f.viewDistSq*grow
	case 2:
		return d2 <= f.cfg.LOD2NearDistSq*grow
	case 3:
		return d2 > f.cfg.LOD2NearDistSq*shrink && d2 <= f.viewDistSq*grow
	default:
		return false
	}
}

// InFrustumShadowPass rejects spheres whose centre lies farther than the
// shadow range from the observer along X or Z, then falls through to the
// six-plane test. The radius does not widen the range.
func (f *Frustum) InFrustumShadowPass(s geom.Sphere) bool {
	if math32.Abs(s.Center[0]-f.observer[0]) > f.cfg.ShadowRange {
		return false
	}
	if math32.Abs(s.Center[2]-f.observer[2]) > f.cfg.ShadowRange {
		return false
	}
	return f.SphereInFrustum(s.Center, s.MaxRadius())
}
