package components

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	// MatricesPayloadSize is two column major mat4.
	MatricesPayloadSize = 128
	// RayPayloadSize is origin, direction and vertical fov packed as seven floats.
	RayPayloadSize = 28
	// TransformPayloadSize is model, view and projection as column major mat4.
	TransformPayloadSize = 192
)

// CameraLayout selects which camera payload the ray generation shader expects.
type CameraLayout uint8

const (
	CameraLayoutMatrices CameraLayout = iota
	CameraLayoutRay
)

// ParseCameraLayout maps the config names "matrices" and "ray" to a layout.
func ParseCameraLayout(s string) (CameraLayout, bool) {
	switch s {
	case "matrices", "":
		return CameraLayoutMatrices, true
	case "ray":
		return CameraLayoutRay, true
	}
	return CameraLayoutMatrices, false
}

// Size is the push constant range the layout needs.
func (l CameraLayout) Size() uint32 {
	if l == CameraLayoutRay {
		return RayPayloadSize
	}
	return MatricesPayloadSize
}

type MatricesPayload struct {
	ViewInverse       mgl32.Mat4
	ProjectionInverse mgl32.Mat4
}

func (p MatricesPayload) AppendBinary(b []byte) ([]byte, error) {
	b = appendMat4(b, p.ViewInverse)
	return appendMat4(b, p.ProjectionInverse), nil
}

func (p MatricesPayload) MarshalBinary() ([]byte, error) {
	return p.AppendBinary(make([]byte, 0, MatricesPayloadSize))
}

type RayPayload struct {
	Origin      mgl32.Vec3
	Direction   mgl32.Vec3
	VerticalFov float32
}

func (p RayPayload) AppendBinary(b []byte) ([]byte, error) {
	for _, f := range p.Origin {
		b = appendFloat(b, f)
	}
	for _, f := range p.Direction {
		b = appendFloat(b, f)
	}
	return appendFloat(b, p.VerticalFov), nil
}

func (p RayPayload) MarshalBinary() ([]byte, error) {
	return p.AppendBinary(make([]byte, 0, RayPayloadSize))
}

type TransformPayload struct {
	Model      mgl32.Mat4
	View       mgl32.Mat4
	Projection mgl32.Mat4
}

func (p TransformPayload) AppendBinary(b []byte) ([]byte, error) {
	b = appendMat4(b, p.Model)
	b = appendMat4(b, p.View)
	return appendMat4(b, p.Projection), nil
}

func (p TransformPayload) MarshalBinary() ([]byte, error) {
	return p.AppendBinary(make([]byte, 0, TransformPayloadSize))
}

// MatricesPayload derives the inverse view and projection matrices for the ray generation shader.
func (c *Camera) MatricesPayload() MatricesPayload {
	return MatricesPayload{
		ViewInverse:       mat32(c.ViewInverse()),
		ProjectionInverse: mat32(c.RayProjectionInverse()),
	}
}

func (c *Camera) RayPayload() RayPayload {
	return RayPayload{
		Origin:      vec32(c.Position),
		Direction:   vec32(c.Front()),
		VerticalFov: float32(c.FovY),
	}
}

// CameraPayload encodes the payload selected by layout.
func (c *Camera) CameraPayload(layout CameraLayout) []byte {
	var b []byte
	if layout == CameraLayoutRay {
		b, _ = c.RayPayload().MarshalBinary()
	} else {
		b, _ = c.MatricesPayload().MarshalBinary()
	}
	return b
}

// TransformPayload combines model with the camera view and projection.
func (c *Camera) TransformPayload(model mgl32.Mat4) TransformPayload {
	return TransformPayload{
		Model:      model,
		View:       mat32(c.View()),
		Projection: mat32(c.Projection()),
	}
}

func appendMat4(b []byte, m mgl32.Mat4) []byte {
	for _, f := range m {
		b = appendFloat(b, f)
	}
	return b
}

func appendFloat(b []byte, f float32) []byte {
	return binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
}
