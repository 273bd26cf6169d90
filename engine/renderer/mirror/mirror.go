// Package mirror keeps a flattened device copy of the per primitive and per material
// scene data the ray tracing shaders read.
package mirror

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/binding"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// minBufferSize backs empty collections, since devices reject zero sized buffers.
const minBufferSize = 4

const usage = metadata.BufferUsageStorage | metadata.BufferUsageTransferDst

type Options struct {
	// Set is the scene descriptor set the mirror publishes into.
	Set metadata.DescriptorSet
	// DefaultSampler occupies slot 0 of the sampler array.
	DefaultSampler metadata.Sampler
	// BindlessCeiling is the size of the sampler and image arrays of Set.
	BindlessCeiling uint32
}

// Mirror owns the geometry record, offset table and material record buffers.
// It is rebuilt only when the scene identity changes.
type Mirror struct {
	device metadata.Device
	opts   Options

	geometries metadata.Buffer
	offsets    metadata.Buffer
	materials  metadata.Buffer

	identity uuid.UUID
	synced   bool
}

// New creates an empty mirror backed by placeholder buffers.
func New(device metadata.Device, opts Options) (*Mirror, error) {
	if opts.Set == nil || opts.DefaultSampler == nil {
		return nil, fmt.Errorf("mirror needs a descriptor set and a default sampler")
	}
	if opts.BindlessCeiling == 0 {
		opts.BindlessCeiling = binding.DefaultPoolConfig().BindlessCeiling
	}
	m := &Mirror{device: device, opts: opts}

	bufs, err := m.createBuffers(make([]byte, minBufferSize), make([]byte, minBufferSize), make([]byte, minBufferSize))
	if err != nil {
		return nil, err
	}
	m.geometries, m.offsets, m.materials = bufs[0], bufs[1], bufs[2]
	return m, nil
}

// Sync uploads scene if its identity differs from the last synced one and publishes the
// descriptor bindings. It reports whether anything was uploaded. On failure the previous
// state stays in place and the error wraps core.ErrSceneUploadFailed.
func (m *Mirror) Sync(scene metadata.Scene) (bool, error) {
	if scene == nil {
		return false, fmt.Errorf("nil scene: %w", core.ErrSceneUploadFailed)
	}
	id := scene.ID()
	if m.synced && id == m.identity {
		return false, nil
	}

	if err := checkScene(scene, m.opts.BindlessCeiling); err != nil {
		return false, m.fail(id, err)
	}

	meshes := scene.MeshInfos()
	records := make([]metadata.GeometryRecord, 0, len(meshes))
	for i, mesh := range meshes {
		for j, p := range mesh.Primitives {
			r, err := metadata.NewGeometryRecord(p)
			if err != nil {
				return false, m.fail(id, fmt.Errorf("mesh %d primitive %d: %w", i, j, err))
			}
			records = append(records, r)
		}
	}
	table, err := metadata.NewOffsetTable(meshes)
	if err != nil {
		return false, m.fail(id, err)
	}

	infos := scene.MaterialInfos()
	materials := make([]metadata.MaterialRecord, len(infos))
	for i, info := range infos {
		materials[i] = metadata.NewMaterialRecord(info)
	}

	tableData, _ := table.MarshalBinary()
	bufs, err := m.createBuffers(
		orPlaceholder(metadata.EncodeGeometryRecords(records)),
		tableData,
		orPlaceholder(metadata.EncodeMaterialRecords(materials)),
	)
	if err != nil {
		return false, m.fail(id, err)
	}

	if err := m.device.UpdateDescriptorSets(m.writes(scene, bufs)); err != nil {
		metadata.ReleaseAll(bufs...)
		return false, m.fail(id, err)
	}

	old := []metadata.Buffer{m.geometries, m.offsets, m.materials}
	m.geometries, m.offsets, m.materials = bufs[0], bufs[1], bufs[2]
	m.identity = id
	m.synced = true
	metadata.ReleaseAll(old...)

	core.LogDebug("scene %s mirrored: %d meshes, %d primitives, %d materials", id, len(meshes), len(records), len(materials))
	return true, nil
}

func (m *Mirror) fail(id uuid.UUID, err error) error {
	err = fmt.Errorf("scene %s: %w: %w", id, core.ErrSceneUploadFailed, err)
	core.LogError(err.Error())
	return err
}

// createBuffers creates the geometry, offset and material buffers, releasing what was
// created so far if any of them fails.
func (m *Mirror) createBuffers(geometries, offsets, materials []byte) ([]metadata.Buffer, error) {
	specs := []struct {
		name string
		data []byte
	}{
		{"geometry records", geometries},
		{"mesh offsets", offsets},
		{"material records", materials},
	}
	bufs := make([]metadata.Buffer, 0, len(specs))
	for _, s := range specs {
		b, err := m.device.CreateBuffer(s.name, usage, s.data)
		if err != nil {
			metadata.ReleaseAll(bufs...)
			return nil, fmt.Errorf("failed to create %s buffer: %w", s.name, err)
		}
		bufs = append(bufs, b)
	}
	return bufs, nil
}

func (m *Mirror) writes(scene metadata.Scene, bufs []metadata.Buffer) []metadata.DescriptorWrite {
	set := m.opts.Set
	buffer := func(b uint32, buf metadata.Buffer) metadata.DescriptorWrite {
		return metadata.DescriptorWrite{Set: set, Binding: b, Kind: metadata.ResourceKindStorageBuffer, Buffers: []metadata.Buffer{buf}}
	}

	samplers := append([]metadata.Sampler{m.opts.DefaultSampler}, scene.Samplers()...)

	writes := []metadata.DescriptorWrite{
		buffer(binding.BindingIndices, scene.IndexBuffer()),
		buffer(binding.BindingVertices, scene.VertexBuffer()),
		buffer(binding.BindingGeometries, bufs[0]),
		buffer(binding.BindingOffsets, bufs[1]),
		buffer(binding.BindingMaterials, bufs[2]),
		buffer(binding.BindingTransforms, scene.TransformBuffer()),
		{Set: set, Binding: binding.BindingTLAS, Kind: metadata.ResourceKindAccelerationStructure, Accel: scene.TLAS().Handle},
		{Set: set, Binding: binding.BindingSamplers, Kind: metadata.ResourceKindSampler, Samplers: samplers},
	}
	if images := scene.Images(); len(images) > 0 {
		writes = append(writes, metadata.DescriptorWrite{Set: set, Binding: binding.BindingImages, Kind: metadata.ResourceKindSampledImage, Images: images})
	}
	if c := scene.ColorBuffer(); c != nil {
		writes = append(writes, buffer(binding.BindingColors, c))
	}
	if tc := scene.TexCoordBuffer(); tc != nil {
		writes = append(writes, buffer(binding.BindingTexCoords, tc))
	}
	return writes
}

func checkScene(scene metadata.Scene, ceiling uint32) error {
	if scene.TLAS() == nil || scene.TLAS().Handle == nil {
		return fmt.Errorf("scene has no top level acceleration structure")
	}
	if scene.IndexBuffer() == nil || scene.VertexBuffer() == nil || scene.TransformBuffer() == nil {
		return fmt.Errorf("scene is missing index, vertex or transform buffer")
	}
	if n := len(scene.Samplers()) + 1; n > int(ceiling) {
		return fmt.Errorf("%d samplers exceed the bindless ceiling of %d", n, ceiling)
	}
	if n := len(scene.Images()); n > int(ceiling) {
		return fmt.Errorf("%d images exceed the bindless ceiling of %d", n, ceiling)
	}
	return nil
}

func orPlaceholder(b []byte) []byte {
	if len(b) == 0 {
		return make([]byte, minBufferSize)
	}
	return b
}

// Identity returns the identity of the last synced scene.
func (m *Mirror) Identity() (uuid.UUID, bool) {
	return m.identity, m.synced
}

func (m *Mirror) GeometryBuffer() metadata.Buffer { return m.geometries }
func (m *Mirror) OffsetBuffer() metadata.Buffer   { return m.offsets }
func (m *Mirror) MaterialBuffer() metadata.Buffer { return m.materials }

func (m *Mirror) Release() {
	metadata.ReleaseAll(m.geometries, m.offsets, m.materials)
	m.geometries, m.offsets, m.materials = nil, nil, nil
	m.synced = false
}
