package components

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertIdentity(t *testing.T, m mgl64.Mat4, tolerance float64) {
	t.Helper()
	ident := mgl64.Ident4()
	for i := range m {
		assert.InDelta(t, ident[i], m[i], tolerance, "element %d", i)
	}
}

func defaultCamera() *Camera {
	return NewCamera(mgl32.Vec3{0, 0, 10}, mgl32.Vec3{0, 0, 0}, 16.0/9.0, math.Pi/3)
}

func TestViewRoundTrip(t *testing.T) {
	c := defaultCamera()
	assertIdentity(t, c.ViewInverse().Mul4(c.View()), 1e-5)
}

func TestProjectionRoundTrip(t *testing.T) {
	c := defaultCamera()
	assert.Equal(t, 0.001, c.Near)
	assert.Equal(t, 10000.0, c.Far)
	assertIdentity(t, c.ProjectionInverse().Mul4(c.Projection()), 1e-5)
}

func TestLookAtOrigin(t *testing.T) {
	c := defaultCamera()
	front := c.Front()
	assert.InDelta(t, 0, front.X(), 1e-6)
	assert.InDelta(t, 0, front.Y(), 1e-6)
	assert.InDelta(t, -1, front.Z(), 1e-6)

	up := c.Up()
	assert.InDelta(t, 1, up.Y(), 1e-6)

	// the camera origin is recovered from the inverse view
	origin := c.ViewInverse().Mul4x1(mgl64.Vec4{0, 0, 0, 1})
	assert.InDelta(t, 10, origin.Z(), 1e-6)
}

func TestPitchIsClamped(t *testing.T) {
	c := defaultCamera()
	c.Rotate(0, 10)
	assert.InDelta(t, maxPitch, c.Pitch, 1e-9)
	c.Rotate(0, -20)
	assert.InDelta(t, -maxPitch, c.Pitch, 1e-9)
}

func TestMove(t *testing.T) {
	c := defaultCamera()
	c.Move(2, 0, 0)
	assert.InDelta(t, 8, c.Position.Z(), 1e-6)
	c.Move(0, 0, 1)
	assert.InDelta(t, 1, c.Position.Y(), 1e-6)
}

func TestSetAspect(t *testing.T) {
	c := defaultCamera()
	c.SetAspect(800, 400)
	assert.Equal(t, 2.0, c.Aspect)
	c.SetAspect(800, 0)
	assert.Equal(t, 2.0, c.Aspect)
}

func TestPayloadSizes(t *testing.T) {
	c := defaultCamera()

	b, err := c.MatricesPayload().MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, b, MatricesPayloadSize)

	b, err = c.RayPayload().MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, b, RayPayloadSize)

	b, err = c.TransformPayload(mgl32.Ident4()).MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, b, TransformPayloadSize)

	assert.Len(t, c.CameraPayload(CameraLayoutRay), int(CameraLayoutRay.Size()))
	assert.Len(t, c.CameraPayload(CameraLayoutMatrices), int(CameraLayoutMatrices.Size()))
}

func TestMatricesPayloadIsColumnMajor(t *testing.T) {
	c := defaultCamera()
	p := c.MatricesPayload()
	b, err := p.MarshalBinary()
	require.NoError(t, err)

	// element 12..14 of a column major matrix is the translation, i.e. the camera position
	read := func(i int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:])) }
	assert.InDelta(t, 0, read(12), 1e-5)
	assert.InDelta(t, 0, read(13), 1e-5)
	assert.InDelta(t, 10, read(14), 1e-5)
	assert.Equal(t, p.ProjectionInverse[0], read(16))
}

func TestRayPayload(t *testing.T) {
	c := defaultCamera()
	b, err := c.RayPayload().MarshalBinary()
	require.NoError(t, err)

	read := func(i int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:])) }
	assert.Equal(t, float32(10), read(2))
	assert.InDelta(t, -1, read(5), 1e-6)
	assert.InDelta(t, math.Pi/3, read(6), 1e-6)
}

func TestParseCameraLayout(t *testing.T) {
	l, ok := ParseCameraLayout("ray")
	assert.True(t, ok)
	assert.Equal(t, CameraLayoutRay, l)

	_, ok = ParseCameraLayout("euler")
	assert.False(t, ok)
}

// primaryRayMatrices mirrors the ray generation shader for the matrices layout.
// d is the launch position mapped to [-1, 1], with d.y = -1 on the first row.
func primaryRayMatrices(p MatricesPayload, d mgl32.Vec2) mgl32.Vec3 {
	target := p.ProjectionInverse.Mul4x1(mgl32.Vec4{d.X(), d.Y(), 1, 1})
	dir := target.Vec3().Mul(1 / target.W()).Normalize()
	return p.ViewInverse.Mul4x1(dir.Vec4(0)).Vec3().Normalize()
}

// primaryRayLayout mirrors the ray generation shader for the ray layout.
func primaryRayLayout(p RayPayload, d mgl32.Vec2, aspect float32) mgl32.Vec3 {
	forward := p.Direction.Normalize()
	tanHalf := float32(math.Tan(float64(p.VerticalFov) * 0.5))
	right := forward.Cross(mgl32.Vec3{0, 1, 0}).Normalize()
	up := right.Cross(forward)
	return forward.
		Add(right.Mul(d.X() * tanHalf * aspect)).
		Sub(up.Mul(d.Y() * tanHalf)).
		Normalize()
}

func TestFirstRowLooksUp(t *testing.T) {
	c := defaultCamera()
	top := mgl32.Vec2{0, -1}
	bottom := mgl32.Vec2{0, 1}

	assert.Positive(t, primaryRayMatrices(c.MatricesPayload(), top).Y())
	assert.Negative(t, primaryRayMatrices(c.MatricesPayload(), bottom).Y())
	assert.Positive(t, primaryRayLayout(c.RayPayload(), top, float32(c.Aspect)).Y())
	assert.Negative(t, primaryRayLayout(c.RayPayload(), bottom, float32(c.Aspect)).Y())
}

func TestCameraLayoutsTraceTheSameRays(t *testing.T) {
	c := defaultCamera()
	for _, d := range []mgl32.Vec2{{0, 0}, {-1, -1}, {1, -1}, {0.5, 0.25}, {-0.3, 0.9}} {
		m := primaryRayMatrices(c.MatricesPayload(), d)
		r := primaryRayLayout(c.RayPayload(), d, float32(c.Aspect))
		for i := 0; i < 3; i++ {
			assert.InDelta(t, r[i], m[i], 1e-4, "d=%v component %d", d, i)
		}
	}
}

func TestRayProjectionRoundTrip(t *testing.T) {
	c := defaultCamera()
	assertIdentity(t, c.RayProjectionInverse().Mul4(c.RayProjection()), 1e-5)
	assert.Equal(t, -c.Projection()[5], c.RayProjection()[5])
}
