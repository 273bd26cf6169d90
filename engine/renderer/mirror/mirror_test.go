package mirror

import (
	"encoding/binary"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/binding"
	"github.com/spaghettifunk/lumen/engine/renderer/gputest"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type fixture struct {
	dev    *gputest.Device
	set    metadata.DescriptorSet
	mirror *Mirror
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dev := gputest.NewDevice()
	catalog, err := binding.NewCatalog(dev, binding.DefaultPoolConfig())
	require.NoError(t, err)
	layouts, err := catalog.RayTracingLayouts(500)
	require.NoError(t, err)
	set, err := catalog.AllocateSet("scene", layouts[0])
	require.NoError(t, err)
	sampler, err := dev.CreateSampler(metadata.SamplerDesc{Name: "default"})
	require.NoError(t, err)

	m, err := New(dev, Options{Set: set, DefaultSampler: sampler, BindlessCeiling: 500})
	require.NoError(t, err)
	return &fixture{dev: dev, set: set, mirror: m}
}

func u64(v uint64) *uint64 { return &v }

func decodeTable(t *testing.T, b metadata.Buffer) []uint32 {
	t.Helper()
	data := b.(*gputest.Buffer).Data
	require.Zero(t, len(data)%4)
	out := make([]uint32, len(data)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return out
}

func TestNewUsesPlaceholders(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, 3, f.dev.BufferCount())
	assert.Equal(t, uint64(minBufferSize), f.mirror.GeometryBuffer().Size())
	_, synced := f.mirror.Identity()
	assert.False(t, synced)
}

func TestOffsetTableMatchesPrimitiveCounts(t *testing.T) {
	f := newFixture(t)
	scene := gputest.NewTriangleScene()
	scene.Meshes = []metadata.MeshInfo{
		{Primitives: make([]metadata.PrimitiveInfo, 2)},
		{Primitives: make([]metadata.PrimitiveInfo, 1)},
		{Primitives: nil},
		{Primitives: make([]metadata.PrimitiveInfo, 4)},
	}

	reloaded, err := f.mirror.Sync(scene)
	require.NoError(t, err)
	assert.True(t, reloaded)

	table := decodeTable(t, f.mirror.OffsetBuffer())
	require.Len(t, table, len(scene.Meshes)+1)
	assert.Equal(t, uint32(0), table[0])
	for i, m := range scene.Meshes {
		assert.Equal(t, uint32(len(m.Primitives)), table[i+1]-table[i])
	}
	assert.Equal(t, uint64(7*metadata.GeometryRecordSize), f.mirror.GeometryBuffer().Size())
}

func TestSameSceneDoesNotReupload(t *testing.T) {
	f := newFixture(t)
	scene := gputest.NewTriangleScene()

	_, err := f.mirror.Sync(scene)
	require.NoError(t, err)
	buffers := f.dev.BufferCount()
	f.dev.ResetWrites()

	reloaded, err := f.mirror.Sync(scene)
	require.NoError(t, err)
	assert.False(t, reloaded)
	assert.Equal(t, buffers, f.dev.BufferCount())
	assert.Empty(t, f.dev.Writes)
}

func TestNewSceneReallocates(t *testing.T) {
	f := newFixture(t)
	first := gputest.NewTriangleScene()
	_, err := f.mirror.Sync(first)
	require.NoError(t, err)
	before := []metadata.Buffer{f.mirror.GeometryBuffer(), f.mirror.OffsetBuffer(), f.mirror.MaterialBuffer()}
	count := f.dev.BufferCount()

	second := gputest.NewTriangleScene()
	reloaded, err := f.mirror.Sync(second)
	require.NoError(t, err)
	assert.True(t, reloaded)
	assert.Equal(t, count+3, f.dev.BufferCount())

	after := []metadata.Buffer{f.mirror.GeometryBuffer(), f.mirror.OffsetBuffer(), f.mirror.MaterialBuffer()}
	for i := range before {
		assert.NotSame(t, before[i], after[i])
		assert.True(t, before[i].(*gputest.Buffer).Released())
	}

	id, synced := f.mirror.Identity()
	assert.True(t, synced)
	assert.Equal(t, second.ID(), id)
}

func TestSingleTriangle(t *testing.T) {
	f := newFixture(t)
	scene := gputest.NewTriangleScene()

	_, err := f.mirror.Sync(scene)
	require.NoError(t, err)

	data := f.mirror.GeometryBuffer().(*gputest.Buffer).Data
	require.Len(t, data, metadata.GeometryRecordSize)
	field := func(i int) uint32 { return binary.LittleEndian.Uint32(data[i*4:]) }
	assert.Equal(t, uint32(3), field(2)) // index count
	assert.Equal(t, uint32(3), field(3)) // vertex count
	assert.Equal(t, uint32(0), field(4)) // material
	assert.Equal(t, uint32(0), field(5)) // has color
	assert.Equal(t, uint32(0), field(7)) // has texcoord

	assert.Equal(t, []uint32{0, 1}, decodeTable(t, f.mirror.OffsetBuffer()))
	assert.Equal(t, uint64(metadata.MaterialRecordSize), f.mirror.MaterialBuffer().Size())
}

func TestAbsentResourcesAreNotWritten(t *testing.T) {
	f := newFixture(t)
	scene := gputest.NewTriangleScene()

	_, err := f.mirror.Sync(scene)
	require.NoError(t, err)

	assert.Empty(t, f.dev.WritesFor(f.set, binding.BindingImages))
	assert.Empty(t, f.dev.WritesFor(f.set, binding.BindingColors))
	assert.Empty(t, f.dev.WritesFor(f.set, binding.BindingTexCoords))

	for _, b := range []uint32{
		binding.BindingTLAS, binding.BindingIndices, binding.BindingVertices, binding.BindingGeometries,
		binding.BindingOffsets, binding.BindingMaterials, binding.BindingTransforms, binding.BindingSamplers,
	} {
		assert.Len(t, f.dev.WritesFor(f.set, b), 1, "binding %d", b)
	}

	samplers := f.dev.WritesFor(f.set, binding.BindingSamplers)[0]
	assert.Len(t, samplers.Samplers, 1)
}

func TestPresentResourcesAreWritten(t *testing.T) {
	f := newFixture(t)
	scene := gputest.NewTriangleScene()
	scene.Color = &gputest.Buffer{Data: make([]byte, 48)}
	scene.TexCoord = &gputest.Buffer{Data: make([]byte, 24)}
	img := gputest.NewImage("albedo", 4, 4, metadata.FormatR8G8B8A8Unorm)
	scene.ImageViews = []metadata.ImageView{gputest.NewImageView(img)}
	scene.SamplerList = []metadata.Sampler{&gputest.Sampler{}}
	scene.Meshes[0].Primitives[0].ColorOffset = u64(0)

	_, err := f.mirror.Sync(scene)
	require.NoError(t, err)

	assert.Len(t, f.dev.WritesFor(f.set, binding.BindingImages), 1)
	assert.Len(t, f.dev.WritesFor(f.set, binding.BindingColors), 1)
	assert.Len(t, f.dev.WritesFor(f.set, binding.BindingTexCoords), 1)
	assert.Len(t, f.dev.WritesFor(f.set, binding.BindingSamplers)[0].Samplers, 2)

	data := f.mirror.GeometryBuffer().(*gputest.Buffer).Data
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(data[20:]))
}

func TestEmptySceneUsesSingleEntryTable(t *testing.T) {
	f := newFixture(t)
	scene := gputest.NewTriangleScene()
	scene.Meshes = nil
	scene.Materials = nil

	_, err := f.mirror.Sync(scene)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0}, decodeTable(t, f.mirror.OffsetBuffer()))
	assert.Equal(t, uint64(minBufferSize), f.mirror.MaterialBuffer().Size())
}

func TestFailedUploadKeepsPreviousState(t *testing.T) {
	f := newFixture(t)
	first := gputest.NewTriangleScene()
	_, err := f.mirror.Sync(first)
	require.NoError(t, err)
	geometries := f.mirror.GeometryBuffer()
	start := f.dev.BufferCount()
	f.dev.ResetWrites()

	f.dev.FailBufferAt(2)
	second := gputest.NewTriangleScene()
	reloaded, err := f.mirror.Sync(second)
	assert.False(t, reloaded)
	assert.ErrorIs(t, err, core.ErrSceneUploadFailed)

	assert.Same(t, geometries, f.mirror.GeometryBuffer())
	id, _ := f.mirror.Identity()
	assert.Equal(t, first.ID(), id)
	assert.Empty(t, f.dev.Writes)

	// the two buffers created before the failure were released
	for _, b := range f.dev.Buffers[start:] {
		assert.True(t, b.Released())
	}
	assert.False(t, geometries.(*gputest.Buffer).Released())
}

func TestRejectedDescriptorWriteFailsUpload(t *testing.T) {
	f := newFixture(t)
	first := gputest.NewTriangleScene()
	_, err := f.mirror.Sync(first)
	require.NoError(t, err)
	geometries := f.mirror.GeometryBuffer()
	start := f.dev.BufferCount()
	f.dev.ResetWrites()

	f.dev.FailWrites(1)
	second := gputest.NewTriangleScene()
	reloaded, err := f.mirror.Sync(second)
	assert.False(t, reloaded)
	assert.ErrorIs(t, err, core.ErrSceneUploadFailed)
	assert.ErrorIs(t, err, gputest.ErrInjected)

	id, _ := f.mirror.Identity()
	assert.Equal(t, first.ID(), id)
	assert.Same(t, geometries, f.mirror.GeometryBuffer())
	assert.Empty(t, f.dev.Writes)
	for _, b := range f.dev.Buffers[start:] {
		assert.True(t, b.Released())
	}

	// the same scene uploads once the device accepts writes again
	reloaded, err = f.mirror.Sync(second)
	require.NoError(t, err)
	assert.True(t, reloaded)
}

type foreignSet struct{}

func (foreignSet) Layout() metadata.DescriptorSetLayout { return nil }

func TestForeignSetFailsUpload(t *testing.T) {
	dev := gputest.NewDevice()
	sampler, err := dev.CreateSampler(metadata.SamplerDesc{Name: "default"})
	require.NoError(t, err)
	m, err := New(dev, Options{Set: foreignSet{}, DefaultSampler: sampler, BindlessCeiling: 500})
	require.NoError(t, err)

	reloaded, err := m.Sync(gputest.NewTriangleScene())
	assert.False(t, reloaded)
	assert.ErrorIs(t, err, core.ErrSceneUploadFailed)
	_, synced := m.Identity()
	assert.False(t, synced)
}

func TestSceneWithoutTLASFails(t *testing.T) {
	f := newFixture(t)
	scene := gputest.NewTriangleScene()
	scene.Top = nil

	_, err := f.mirror.Sync(scene)
	assert.ErrorIs(t, err, core.ErrSceneUploadFailed)
}

func TestPrimitiveOverflowFails(t *testing.T) {
	f := newFixture(t)
	scene := gputest.NewTriangleScene()
	scene.Meshes[0].Primitives[0].VertexOffset = 1 << 40

	_, err := f.mirror.Sync(scene)
	assert.ErrorIs(t, err, core.ErrSceneUploadFailed)
	_, synced := f.mirror.Identity()
	assert.False(t, synced)
}

func TestTooManySamplersFails(t *testing.T) {
	f := newFixture(t)
	scene := gputest.NewTriangleScene()
	scene.SamplerList = make([]metadata.Sampler, 500)

	_, err := f.mirror.Sync(scene)
	assert.ErrorIs(t, err, core.ErrSceneUploadFailed)
}

func TestNilIdentityIsStillSynced(t *testing.T) {
	f := newFixture(t)
	scene := gputest.NewTriangleScene()
	scene.Identity = uuid.Nil

	reloaded, err := f.mirror.Sync(scene)
	require.NoError(t, err)
	assert.True(t, reloaded)
}
