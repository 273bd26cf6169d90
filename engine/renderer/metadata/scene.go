package metadata

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

/**
 * @brief A primitive of a mesh, expressed as element offsets into the scene wide buffers.
 * Indices are local to the primitive, i.e. relative to VertexOffset.
 */
type PrimitiveInfo struct {
	IndexOffset   uint64
	VertexOffset  uint64
	IndexCount    uint64
	VertexCount   uint64
	MaterialIndex uint64
	/** @brief Offset into the color buffer, nil when the primitive has no colors. */
	ColorOffset *uint64
	/** @brief Offset into the texcoord buffer, nil when the primitive has no texcoords. */
	TexCoordOffset *uint64
}

type MeshInfo struct {
	Primitives []PrimitiveInfo
}

// TextureRef points into the scene sampler and image arrays.
// A nil Sampler selects the default sampler.
type TextureRef struct {
	Sampler *uint32
	Image   uint32
}

type MaterialInfo struct {
	BaseColorFactor          [4]float32
	BaseColorTexture         *TextureRef
	MetallicRoughnessTexture *TextureRef
}

// GeometryBinding is a triangle list inside the scene vertex and index buffers.
// Offsets are in bytes, vertices are three float32 positions.
type GeometryBinding struct {
	VertexBuffer Buffer
	IndexBuffer  Buffer
	VertexOffset uint64
	IndexOffset  uint64
	VertexCount  uint32
	IndexCount   uint32
	VertexStride uint32
}

type BottomLevel struct {
	Handle     AccelerationStructure
	Geometries []GeometryBinding
}

// Instance places a bottom level structure in the world.
// CustomIndex is the mesh index used by hit shaders to reach the offset table.
type Instance struct {
	Transform   mgl32.Mat4
	Bottom      *BottomLevel
	CustomIndex uint32
	HitGroup    uint32
	Mask        uint8
}

type TopLevel struct {
	Handle    AccelerationStructure
	Instances []Instance
}

// Scene is the read only view of a loaded scene the render passes consume.
// Buffers returned by ColorBuffer and TexCoordBuffer are nil when the scene has none.
type Scene interface {
	// ID changes every time the scene content changes.
	ID() uuid.UUID
	TLAS() *TopLevel
	IndexBuffer() Buffer
	VertexBuffer() Buffer
	TransformBuffer() Buffer
	ColorBuffer() Buffer
	TexCoordBuffer() Buffer
	MeshInfos() []MeshInfo
	MaterialInfos() []MaterialInfo
	Images() []ImageView
	Samplers() []Sampler
}
