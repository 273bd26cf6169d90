package gputest

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// Scene is a plain metadata.Scene whose fields tests fill in directly.
type Scene struct {
	Identity    uuid.UUID
	Top         *metadata.TopLevel
	Index       metadata.Buffer
	Vertex      metadata.Buffer
	Transform   metadata.Buffer
	Color       metadata.Buffer
	TexCoord    metadata.Buffer
	Meshes      []metadata.MeshInfo
	Materials   []metadata.MaterialInfo
	ImageViews  []metadata.ImageView
	SamplerList []metadata.Sampler
}

func (s *Scene) ID() uuid.UUID                          { return s.Identity }
func (s *Scene) TLAS() *metadata.TopLevel               { return s.Top }
func (s *Scene) IndexBuffer() metadata.Buffer           { return s.Index }
func (s *Scene) VertexBuffer() metadata.Buffer          { return s.Vertex }
func (s *Scene) TransformBuffer() metadata.Buffer       { return s.Transform }
func (s *Scene) ColorBuffer() metadata.Buffer           { return s.Color }
func (s *Scene) TexCoordBuffer() metadata.Buffer        { return s.TexCoord }
func (s *Scene) MeshInfos() []metadata.MeshInfo         { return s.Meshes }
func (s *Scene) MaterialInfos() []metadata.MaterialInfo { return s.Materials }
func (s *Scene) Images() []metadata.ImageView           { return s.ImageViews }
func (s *Scene) Samplers() []metadata.Sampler           { return s.SamplerList }

// NewTriangleScene returns a scene made of a single triangle with one material and
// no colors, texcoords, images or samplers. Its buffers are not tracked by any device.
func NewTriangleScene() *Scene {
	index := &Buffer{handle: handle{name: "index"}, Data: make([]byte, 12)}
	vertex := &Buffer{handle: handle{name: "vertex"}, Data: make([]byte, 36)}
	transform := &Buffer{handle: handle{name: "transform"}, Data: make([]byte, 64)}

	bottom := &metadata.BottomLevel{
		Handle: &AccelerationStructure{handle: handle{name: "blas"}},
		Geometries: []metadata.GeometryBinding{{
			VertexBuffer: vertex,
			IndexBuffer:  index,
			VertexCount:  3,
			IndexCount:   3,
			VertexStride: 12,
		}},
	}
	instances := []metadata.Instance{{Transform: mgl32.Ident4(), Bottom: bottom, Mask: 0xFF}}

	return &Scene{
		Identity:  uuid.New(),
		Top:       &metadata.TopLevel{Handle: &AccelerationStructure{handle: handle{name: "tlas"}, Instances: instances}, Instances: instances},
		Index:     index,
		Vertex:    vertex,
		Transform: transform,
		Meshes: []metadata.MeshInfo{{
			Primitives: []metadata.PrimitiveInfo{{IndexCount: 3, VertexCount: 3}},
		}},
		Materials: []metadata.MaterialInfo{{BaseColorFactor: [4]float32{1, 1, 1, 1}}},
	}
}
