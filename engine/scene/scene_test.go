package scene

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/renderer/gputest"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

func TestGenerateCube(t *testing.T) {
	c := GenerateCubeConfig(2, 4, 6, 1, 1, "cube")
	assert.Len(t, c.Positions, 24)
	assert.Len(t, c.Colors, 24)
	assert.Len(t, c.TexCoords, 24)
	assert.Len(t, c.Indices, 36)
	for _, p := range c.Positions {
		assert.InDelta(t, 1, math.Abs(float64(p[0])), 1e-6)
		assert.InDelta(t, 2, math.Abs(float64(p[1])), 1e-6)
		assert.InDelta(t, 3, math.Abs(float64(p[2])), 1e-6)
	}
}

func TestGeneratePlaneDefaults(t *testing.T) {
	p := GeneratePlaneConfig(0, 0, 0, 0, 0, 0, "plane")
	assert.Len(t, p.Positions, 4)
	assert.Len(t, p.Indices, 6)
	assert.Nil(t, p.Colors)

	p = GeneratePlaneConfig(4, 4, 2, 3, 1, 1, "plane")
	assert.Len(t, p.Positions, 2*3*4)
	assert.Len(t, p.Indices, 2*3*6)
	assert.Equal(t, uint32(21), p.Indices[len(p.Indices)-1])
}

func TestBuildTriangle(t *testing.T) {
	device := gputest.NewDevice()
	s, err := Load(device, "triangle")
	require.NoError(t, err)
	defer s.Release()

	require.Len(t, s.MeshInfos(), 1)
	prim := s.MeshInfos()[0].Primitives[0]
	assert.Equal(t, uint64(3), prim.IndexCount)
	assert.Equal(t, uint64(3), prim.VertexCount)
	assert.Nil(t, prim.ColorOffset)
	assert.Nil(t, prim.TexCoordOffset)
	assert.Nil(t, s.ColorBuffer())
	assert.Nil(t, s.TexCoordBuffer())

	assert.Equal(t, uint64(36), s.VertexBuffer().Size())
	assert.Equal(t, uint64(12), s.IndexBuffer().Size())
	assert.Equal(t, uint64(64), s.TransformBuffer().Size())

	tlas := s.TLAS()
	require.Len(t, tlas.Instances, 1)
	assert.Equal(t, uint8(0xFF), tlas.Instances[0].Mask)
	require.Len(t, tlas.Instances[0].Bottom.Geometries, 1)
	assert.Equal(t, uint32(12), tlas.Instances[0].Bottom.Geometries[0].VertexStride)
}

func TestBuildCubesOffsets(t *testing.T) {
	device := gputest.NewDevice()
	s, err := Load(device, "cubes")
	require.NoError(t, err)
	defer s.Release()

	meshes := s.MeshInfos()
	require.Len(t, meshes, 3)
	assert.Len(t, s.MaterialInfos(), 3)
	assert.Len(t, s.TLAS().Instances, 10)
	assert.Equal(t, uint64(10*transformSize), s.TransformBuffer().Size())

	floor := meshes[0].Primitives[0]
	red := meshes[1].Primitives[0]
	blue := meshes[2].Primitives[0]
	assert.Equal(t, uint64(4), red.VertexOffset)
	assert.Equal(t, uint64(6), red.IndexOffset)
	assert.Equal(t, uint64(28), blue.VertexOffset)
	assert.Equal(t, uint64(42), blue.IndexOffset)

	// the floor has no colors, so cube colors start at zero
	assert.Nil(t, floor.ColorOffset)
	require.NotNil(t, red.ColorOffset)
	assert.Equal(t, uint64(0), *red.ColorOffset)
	assert.Equal(t, uint64(24), *blue.ColorOffset)
	require.NotNil(t, blue.TexCoordOffset)
	assert.Equal(t, uint64(28), *blue.TexCoordOffset)
	assert.Equal(t, uint64(48*colorSize), s.ColorBuffer().Size())

	geom := s.TLAS().Instances[1].Bottom.Geometries[0]
	assert.Equal(t, red.VertexOffset*positionSize, geom.VertexOffset)
	assert.Equal(t, red.IndexOffset*indexSize, geom.IndexOffset)
}

func TestBuildWritesLittleEndian(t *testing.T) {
	device := gputest.NewDevice()
	b := NewBuilder("test")
	b.AddMaterial(solid(1, 1, 1))
	b.AddInstance(b.AddMesh(&GeometryConfig{
		Positions: []mgl32.Vec3{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}},
		Indices:   []uint32{2, 1, 0},
	}), mgl32.Translate3D(5, 0, 0))
	s, err := b.Build(device)
	require.NoError(t, err)

	vertices := s.VertexBuffer().(*gputest.Buffer).Data
	assert.Equal(t, float32(8), math.Float32frombits(binary.LittleEndian.Uint32(vertices[28:])))
	indices := s.IndexBuffer().(*gputest.Buffer).Data
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(indices))
	transform := s.TransformBuffer().(*gputest.Buffer).Data
	// column major, translation in the last column
	assert.Equal(t, float32(5), math.Float32frombits(binary.LittleEndian.Uint32(transform[48:])))
}

func TestBuildValidation(t *testing.T) {
	device := gputest.NewDevice()

	_, err := NewBuilder("empty").Build(device)
	assert.Error(t, err)

	b := NewBuilder("bad index")
	b.AddMaterial(solid(1, 1, 1))
	b.AddInstance(b.AddMesh(&GeometryConfig{Positions: []mgl32.Vec3{{}, {}, {}}, Indices: []uint32{0, 1, 3}}), mgl32.Ident4())
	_, err = b.Build(device)
	assert.Error(t, err)

	b = NewBuilder("bad material")
	b.AddMaterial(solid(1, 1, 1))
	tri := GenerateTriangleConfig(1, "tri")
	tri.Material = 4
	b.AddInstance(b.AddMesh(tri), mgl32.Ident4())
	_, err = b.Build(device)
	assert.Error(t, err)
	assert.Zero(t, device.BufferCount())
}

func TestBuildReleasesOnFailure(t *testing.T) {
	device := gputest.NewDevice()
	device.FailBufferAt(2)

	_, err := Load(device, "triangle")
	require.ErrorIs(t, err, gputest.ErrInjected)
	for _, b := range device.Buffers {
		assert.True(t, b.Released())
	}
}

func TestLoadPresets(t *testing.T) {
	device := gputest.NewDevice()
	for _, name := range Presets() {
		s, err := Load(device, name)
		require.NoError(t, err, name)
		assert.NotNil(t, s.TLAS(), name)
		s.Release()
	}

	s, err := Load(device, NoScene)
	assert.NoError(t, err)
	assert.Nil(t, s)

	_, err = Load(device, "teapot")
	assert.Error(t, err)
}

func TestScenesHaveDistinctIdentity(t *testing.T) {
	device := gputest.NewDevice()
	a, err := Load(device, "cube")
	require.NoError(t, err)
	b, err := Load(device, "cube")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())

	var _ metadata.Scene = a
}
