// Package geom provides the 3D primitives shared by the culler and the memory
// manager:
// - Cull spheres with a per-axis radius
// - Horizontal (XZ-plane) distance helpers used for LOD banding
// - Rounding helpers for the quad-interleaved vertex layout
package geom

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Sqrt3 is the ratio between a cube's circumscribed radius and its half-extent.
const Sqrt3 = 1.7320508

// Sphere is a cull volume: a center with a radius per axis. A sphere with the
// same radius on every axis is an ordinary bounding sphere; unequal radii
// describe the sphere circumscribing a box.
type Sphere struct {
	Center mgl32.Vec3
	Radius mgl32.Vec3
}

func MakeSphere(center mgl32.Vec3, radius float32) Sphere {
	return Sphere{Center: center, Radius: mgl32.Vec3{radius, radius, radius}}
}

// SphereAroundBox returns the sphere circumscribing the box [min, max].
func SphereAroundBox(min, max mgl32.Vec3) Sphere {
	half := max.Sub(min).Mul(0.5)
	return Sphere{
		Center: min.Add(half),
		Radius: half.Mul(Sqrt3),
	}
}

// MaxRadius returns the largest of the per-axis radii.
func (s Sphere) MaxRadius() float32 {
	return math32.Max(s.Radius[0], math32.Max(s.Radius[1], s.Radius[2]))
}

// HalfExtent returns the half-extent of the box inscribed in the sphere.
func (s Sphere) HalfExtent() mgl32.Vec3 {
	return s.Radius.Mul(1 / Sqrt3)
}

// HorizontalDistSq returns the squared distance between the sphere center and
// p, ignoring height.
func (s Sphere) HorizontalDistSq(p mgl32.Vec3) float32 {
	return HorizontalDistSq(s.Center, p)
}

// HorizontalDistSq returns the squared XZ-plane distance between a and b.
func HorizontalDistSq(a, b mgl32.Vec3) float32 {
	dx := a[0] - b[0]
	dz := a[2] - b[2]
	return dx*dx + dz*dz
}

// RoundUp4 rounds n up to the next multiple of 4, the quad interleave
// granularity.
func RoundUp4(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + 3) &^ 3
}
