package components

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"

	emath "github.com/spaghettifunk/lumen/engine/math"
)

const maxPitch = math.Pi/2 - 0.01

var worldUp = mgl64.Vec3{0, 1, 0}

/**
 * @brief A perspective camera described by a position and yaw/pitch angles.
 * Matrices are computed in float64: with a near/far ratio of 1e7 the float32
 * inverse of the projection loses precision.
 */
type Camera struct {
	Position mgl64.Vec3
	/** @brief Rotation around the world up axis, in radians. */
	Yaw float64
	/** @brief Elevation in radians, clamped to just under +/- pi/2. */
	Pitch float64
	/** @brief Vertical field of view in radians. */
	FovY   float64
	Aspect float64
	Near   float64
	Far    float64
}

// NewCamera creates a camera at position looking at target.
func NewCamera(position, target mgl32.Vec3, aspect, fovY float32) *Camera {
	c := &Camera{
		Position: vec64(position),
		FovY:     float64(fovY),
		Aspect:   float64(aspect),
		Near:     0.001,
		Far:      10000,
	}
	c.LookAt(target)
	return c
}

// LookAt orients the camera toward target.
func (c *Camera) LookAt(target mgl32.Vec3) {
	d := vec64(target).Sub(c.Position)
	if d.Len() == 0 {
		return
	}
	d = d.Normalize()
	c.Yaw = math.Atan2(d.Z(), d.X())
	c.Pitch = emath.Clamp(math.Asin(emath.Clamp(d.Y(), -1, 1)), -maxPitch, maxPitch)
}

func (c *Camera) Front() mgl64.Vec3 {
	return mgl64.Vec3{
		math.Cos(c.Pitch) * math.Cos(c.Yaw),
		math.Sin(c.Pitch),
		math.Cos(c.Pitch) * math.Sin(c.Yaw),
	}.Normalize()
}

func (c *Camera) Right() mgl64.Vec3 {
	return c.Front().Cross(worldUp).Normalize()
}

func (c *Camera) Up() mgl64.Vec3 {
	return c.Right().Cross(c.Front()).Normalize()
}

// Move translates the camera along its own axes.
func (c *Camera) Move(forward, right, up float64) {
	c.Position = c.Position.
		Add(c.Front().Mul(forward)).
		Add(c.Right().Mul(right)).
		Add(worldUp.Mul(up))
}

// Rotate adds to yaw and pitch, in radians.
func (c *Camera) Rotate(yaw, pitch float64) {
	c.Yaw += yaw
	c.Pitch = emath.Clamp(c.Pitch+pitch, -maxPitch, maxPitch)
}

func (c *Camera) SetAspect(width, height uint32) {
	if height == 0 {
		return
	}
	c.Aspect = float64(width) / float64(height)
}

func (c *Camera) View() mgl64.Mat4 {
	return mgl64.LookAtV(c.Position, c.Position.Add(c.Front()), c.Up())
}

func (c *Camera) Projection() mgl64.Mat4 {
	return mgl64.Perspective(c.FovY, c.Aspect, c.Near, c.Far)
}

// RayProjection is Projection with y pointing down in NDC, matching Vulkan launch ids
// where row 0 is the top of the image.
func (c *Camera) RayProjection() mgl64.Mat4 {
	p := c.Projection()
	p[5] = -p[5]
	return p
}

func (c *Camera) RayProjectionInverse() mgl64.Mat4 {
	return c.RayProjection().Inv()
}

func (c *Camera) ViewInverse() mgl64.Mat4 {
	return c.View().Inv()
}

func (c *Camera) ProjectionInverse() mgl64.Mat4 {
	return c.Projection().Inv()
}

func vec64(v mgl32.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{float64(v[0]), float64(v[1]), float64(v[2])}
}

func mat32(m mgl64.Mat4) mgl32.Mat4 {
	var out mgl32.Mat4
	for i := range m {
		out[i] = float32(m[i])
	}
	return out
}

func vec32(v mgl64.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{float32(v[0]), float32(v[1]), float32(v[2])}
}
