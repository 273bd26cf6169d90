package vulkan

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

func TestTriangleGeometries(t *testing.T) {
	vertices := &Buffer{name: "vertices", address: 0x1000}
	indices := &Buffer{name: "indices", address: 0x8000}

	out, err := triangleGeometries([]metadata.GeometryBinding{{
		VertexBuffer: vertices,
		IndexBuffer:  indices,
		VertexOffset: 16,
		IndexOffset:  8,
		VertexCount:  4,
		IndexCount:   6,
	}})
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, triangleGeometry{
		VertexAddress:  0x1010,
		IndexAddress:   0x8008,
		VertexStride:   12,
		MaxVertex:      3,
		PrimitiveCount: 2,
	}, out[0])
}

func TestTriangleGeometriesRejectsEmptyGeometry(t *testing.T) {
	b := &Buffer{address: 0x1000}

	_, err := triangleGeometries([]metadata.GeometryBinding{{VertexBuffer: b, IndexBuffer: b, IndexCount: 3}})
	assert.Error(t, err)

	_, err = triangleGeometries([]metadata.GeometryBinding{{VertexBuffer: b, IndexBuffer: b, VertexCount: 3, IndexCount: 2}})
	assert.Error(t, err)
}

func TestTriangleGeometriesRejectsForeignBuffers(t *testing.T) {
	_, err := triangleGeometries([]metadata.GeometryBinding{{VertexCount: 3, IndexCount: 3}})
	assert.Error(t, err)
}

func TestRowMajor3x4(t *testing.T) {
	m := mgl32.Translate3D(1, 2, 3).Mul4(mgl32.Scale3D(4, 5, 6))

	assert.Equal(t, [12]float32{
		4, 0, 0, 1,
		0, 5, 0, 2,
		0, 0, 6, 3,
	}, rowMajor3x4(m))
}
