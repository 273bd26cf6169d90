// Package scene builds in-memory scenes and uploads them to a device.
package scene

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

const (
	positionSize  = 12
	colorSize     = 16
	texCoordSize  = 8
	indexSize     = 4
	transformSize = 64
)

const (
	geometryUsage = metadata.BufferUsageStorage | metadata.BufferUsageVertex | metadata.BufferUsageIndex |
		metadata.BufferUsageDeviceAddress | metadata.BufferUsageAccelerationStructureInput
	attributeUsage = metadata.BufferUsageStorage | metadata.BufferUsageDeviceAddress
)

// Scene is an uploaded scene. It owns its buffers and acceleration structures.
type Scene struct {
	id   uuid.UUID
	name string

	tlas      *metadata.TopLevel
	bottoms   []*metadata.BottomLevel
	index     metadata.Buffer
	vertex    metadata.Buffer
	transform metadata.Buffer
	color     metadata.Buffer
	texCoord  metadata.Buffer

	meshes    []metadata.MeshInfo
	materials []metadata.MaterialInfo
}

func (s *Scene) ID() uuid.UUID                          { return s.id }
func (s *Scene) Name() string                           { return s.name }
func (s *Scene) TLAS() *metadata.TopLevel               { return s.tlas }
func (s *Scene) IndexBuffer() metadata.Buffer           { return s.index }
func (s *Scene) VertexBuffer() metadata.Buffer          { return s.vertex }
func (s *Scene) TransformBuffer() metadata.Buffer       { return s.transform }
func (s *Scene) ColorBuffer() metadata.Buffer           { return s.color }
func (s *Scene) TexCoordBuffer() metadata.Buffer        { return s.texCoord }
func (s *Scene) MeshInfos() []metadata.MeshInfo         { return s.meshes }
func (s *Scene) MaterialInfos() []metadata.MaterialInfo { return s.materials }

// Images is always empty, procedural scenes are not textured.
func (s *Scene) Images() []metadata.ImageView { return nil }
func (s *Scene) Samplers() []metadata.Sampler { return nil }

// Release destroys every device object of the scene. The device must be idle.
func (s *Scene) Release() {
	if s.tlas != nil {
		metadata.ReleaseAll(s.tlas.Handle)
	}
	for _, b := range s.bottoms {
		metadata.ReleaseAll(b.Handle)
	}
	metadata.ReleaseAll(s.index, s.vertex, s.transform, s.color, s.texCoord)
	s.tlas, s.bottoms = nil, nil
	s.index, s.vertex, s.transform, s.color, s.texCoord = nil, nil, nil, nil, nil
}

type instanceDesc struct {
	mesh      int
	transform mgl32.Mat4
}

// Builder collects meshes, materials and instances and uploads them in one go.
type Builder struct {
	name      string
	meshes    [][]*GeometryConfig
	materials []metadata.MaterialInfo
	instances []instanceDesc
}

func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// AddMaterial appends a material and returns its index.
func (b *Builder) AddMaterial(m metadata.MaterialInfo) uint32 {
	b.materials = append(b.materials, m)
	return uint32(len(b.materials) - 1)
}

// AddMesh appends a mesh made of primitives and returns its index.
func (b *Builder) AddMesh(primitives ...*GeometryConfig) int {
	b.meshes = append(b.meshes, primitives)
	return len(b.meshes) - 1
}

// AddInstance places mesh in the world.
func (b *Builder) AddInstance(mesh int, transform mgl32.Mat4) {
	b.instances = append(b.instances, instanceDesc{mesh: mesh, transform: transform})
}

func (b *Builder) validate() error {
	if len(b.instances) == 0 {
		return errors.New("scene has no instances")
	}
	if len(b.materials) == 0 {
		return errors.New("scene has no materials")
	}
	for _, inst := range b.instances {
		if inst.mesh < 0 || inst.mesh >= len(b.meshes) {
			return fmt.Errorf("instance references unknown mesh %d", inst.mesh)
		}
	}
	for i, mesh := range b.meshes {
		if len(mesh) == 0 {
			return fmt.Errorf("mesh %d has no primitives", i)
		}
		for _, g := range mesh {
			if len(g.Positions) == 0 || len(g.Indices) == 0 || len(g.Indices)%3 != 0 {
				return fmt.Errorf("primitive %q of mesh %d is not a triangle list", g.Name, i)
			}
			if g.Colors != nil && len(g.Colors) != len(g.Positions) {
				return fmt.Errorf("primitive %q has %d colors for %d positions", g.Name, len(g.Colors), len(g.Positions))
			}
			if g.TexCoords != nil && len(g.TexCoords) != len(g.Positions) {
				return fmt.Errorf("primitive %q has %d texcoords for %d positions", g.Name, len(g.TexCoords), len(g.Positions))
			}
			if int(g.Material) >= len(b.materials) {
				return fmt.Errorf("primitive %q references unknown material %d", g.Name, g.Material)
			}
			for _, idx := range g.Indices {
				if int(idx) >= len(g.Positions) {
					return fmt.Errorf("primitive %q index %d out of range", g.Name, idx)
				}
			}
		}
	}
	return nil
}

// packed is the CPU side of the scene buffers.
type packed struct {
	index, vertex, color, texCoord, transform []byte
	meshes                                    []metadata.MeshInfo
}

func (b *Builder) pack() packed {
	var p packed
	var vertices, indices, colors, texCoords uint64
	for _, mesh := range b.meshes {
		info := metadata.MeshInfo{Primitives: make([]metadata.PrimitiveInfo, 0, len(mesh))}
		for _, g := range mesh {
			prim := metadata.PrimitiveInfo{
				IndexOffset:   indices,
				VertexOffset:  vertices,
				IndexCount:    uint64(len(g.Indices)),
				VertexCount:   uint64(len(g.Positions)),
				MaterialIndex: uint64(g.Material),
			}
			for _, v := range g.Positions {
				p.vertex = appendFloats(p.vertex, v[:]...)
			}
			for _, i := range g.Indices {
				p.index = binary.LittleEndian.AppendUint32(p.index, i)
			}
			if g.Colors != nil {
				off := colors
				prim.ColorOffset = &off
				for _, c := range g.Colors {
					p.color = appendFloats(p.color, c[:]...)
				}
				colors += uint64(len(g.Colors))
			}
			if g.TexCoords != nil {
				off := texCoords
				prim.TexCoordOffset = &off
				for _, t := range g.TexCoords {
					p.texCoord = appendFloats(p.texCoord, t[:]...)
				}
				texCoords += uint64(len(g.TexCoords))
			}
			vertices += uint64(len(g.Positions))
			indices += uint64(len(g.Indices))
			info.Primitives = append(info.Primitives, prim)
		}
		p.meshes = append(p.meshes, info)
	}
	for _, inst := range b.instances {
		p.transform = appendFloats(p.transform, inst.transform[:]...)
	}
	return p
}

// Build uploads the scene to device and builds its acceleration structures.
func (b *Builder) Build(device metadata.Device) (*Scene, error) {
	if err := b.validate(); err != nil {
		return nil, fmt.Errorf("scene %s: %w", b.name, err)
	}
	p := b.pack()

	s := &Scene{
		id:        uuid.New(),
		name:      b.name,
		meshes:    p.meshes,
		materials: append([]metadata.MaterialInfo(nil), b.materials...),
	}
	if err := s.upload(device, b, p); err != nil {
		s.Release()
		return nil, fmt.Errorf("scene %s: %w", b.name, err)
	}
	core.LogInfo("scene %s uploaded: %d meshes, %d instances, %d vertices", b.name, len(p.meshes), len(b.instances), len(p.vertex)/positionSize)
	return s, nil
}

func (s *Scene) upload(device metadata.Device, b *Builder, p packed) error {
	var err error
	if s.index, err = device.CreateBuffer(b.name+" indices", geometryUsage, p.index); err != nil {
		return err
	}
	if s.vertex, err = device.CreateBuffer(b.name+" vertices", geometryUsage, p.vertex); err != nil {
		return err
	}
	if s.transform, err = device.CreateBuffer(b.name+" transforms", attributeUsage, p.transform); err != nil {
		return err
	}
	if len(p.color) > 0 {
		if s.color, err = device.CreateBuffer(b.name+" colors", attributeUsage, p.color); err != nil {
			return err
		}
	}
	if len(p.texCoord) > 0 {
		if s.texCoord, err = device.CreateBuffer(b.name+" texcoords", attributeUsage, p.texCoord); err != nil {
			return err
		}
	}

	for i, mesh := range p.meshes {
		geometries := make([]metadata.GeometryBinding, len(mesh.Primitives))
		for j, prim := range mesh.Primitives {
			geometries[j] = metadata.GeometryBinding{
				VertexBuffer: s.vertex,
				IndexBuffer:  s.index,
				VertexOffset: prim.VertexOffset * positionSize,
				IndexOffset:  prim.IndexOffset * indexSize,
				VertexCount:  uint32(prim.VertexCount),
				IndexCount:   uint32(prim.IndexCount),
				VertexStride: positionSize,
			}
		}
		handle, err := device.BuildBottomLevel(fmt.Sprintf("%s blas %d", b.name, i), geometries)
		if err != nil {
			return err
		}
		s.bottoms = append(s.bottoms, &metadata.BottomLevel{Handle: handle, Geometries: geometries})
	}

	instances := make([]metadata.Instance, len(b.instances))
	for i, inst := range b.instances {
		instances[i] = metadata.Instance{
			Transform:   inst.transform,
			Bottom:      s.bottoms[inst.mesh],
			CustomIndex: uint32(inst.mesh),
			HitGroup:    0,
			Mask:        0xFF,
		}
	}
	handle, err := device.BuildTopLevel(b.name+" tlas", instances)
	if err != nil {
		return err
	}
	s.tlas = &metadata.TopLevel{Handle: handle, Instances: instances}
	return nil
}

func appendFloats(b []byte, fs ...float32) []byte {
	for _, f := range fs {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
	}
	return b
}
