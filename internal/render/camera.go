package render

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	maxPitch = 1.4 // radians, short of straight up or down
	minFovY  = 0.3
	maxFovY  = 1.6
)

// Camera is a first-person camera. Yaw 0 looks down -Z; positive yaw turns
// towards +X.
type Camera struct {
	Position   mgl32.Vec3
	Yaw, Pitch float32 // radians
	FovY       float32 // radians
	Near, Far  float32

	Width, Height int
}

// NewCamera creates a camera at the origin with a 60° field of view.
func NewCamera(width, height int, far float32) *Camera {
	return &Camera{
		FovY:   mgl32.DegToRad(60),
		Near:   0.5,
		Far:    far,
		Width:  width,
		Height: height,
	}
}

// SetViewport updates the viewport dimensions.
func (c *Camera) SetViewport(width, height int) {
	c.Width = width
	c.Height = height
}

// SetFovY sets the vertical field of view, clamping to a usable range.
func (c *Camera) SetFovY(fov float32) {
	c.FovY = mgl32.Clamp(fov, minFovY, maxFovY)
}

// Turn rotates the camera. Yaw is kept within [-π, π] and pitch is clamped
// short of the poles.
func (c *Camera) Turn(dyaw, dpitch float32) {
	c.Yaw += dyaw
	for c.Yaw > math32.Pi {
		c.Yaw -= 2 * math32.Pi
	}
	for c.Yaw < -math32.Pi {
		c.Yaw += 2 * math32.Pi
	}
	c.Pitch = mgl32.Clamp(c.Pitch+dpitch, -maxPitch, maxPitch)
}

// Forward returns the unit view direction.
func (c *Camera) Forward() mgl32.Vec3 {
	cp := math32.Cos(c.Pitch)
	return mgl32.Vec3{math32.Sin(c.Yaw) * cp, math32.Sin(c.Pitch), -math32.Cos(c.Yaw) * cp}
}

// Right returns the unit horizontal direction to the camera's right.
func (c *Camera) Right() mgl32.Vec3 {
	return mgl32.Vec3{math32.Cos(c.Yaw), 0, math32.Sin(c.Yaw)}
}

// Move translates the camera. forward and right move in the horizontal plane
// regardless of pitch; up moves along +Y.
func (c *Camera) Move(forward, right, up float32) {
	flat := mgl32.Vec3{math32.Sin(c.Yaw), 0, -math32.Cos(c.Yaw)}
	c.Position = c.Position.
		Add(flat.Mul(forward)).
		Add(c.Right().Mul(right)).
		Add(mgl32.Vec3{0, up, 0})
}

// Projection returns the perspective projection matrix.
func (c *Camera) Projection() mgl32.Mat4 {
	aspect := float32(1)
	if c.Width > 0 && c.Height > 0 {
		aspect = float32(c.Width) / float32(c.Height)
	}
	return mgl32.Perspective(c.FovY, aspect, c.Near, c.Far)
}

// View returns the world-to-camera matrix.
func (c *Camera) View() mgl32.Mat4 {
	return mgl32.LookAtV(c.Position, c.Position.Add(c.Forward()), mgl32.Vec3{0, 1, 0})
}

// ProjView returns Projection × View, the matrix the frustum is extracted from.
func (c *Camera) ProjView() mgl32.Mat4 {
	return c.Projection().Mul4(c.View())
}
