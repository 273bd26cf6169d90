package metadata

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u64(v uint64) *uint64 { return &v }
func u32(v uint32) *uint32 { return &v }

func TestGeometryRecordLayout(t *testing.T) {
	rec, err := NewGeometryRecord(PrimitiveInfo{
		IndexOffset:    1,
		VertexOffset:   2,
		IndexCount:     3,
		VertexCount:    4,
		MaterialIndex:  5,
		TexCoordOffset: u64(7),
	})
	require.NoError(t, err)

	b, err := rec.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, GeometryRecordSize)

	want := []uint32{1, 2, 3, 4, 5, 0, 0, 1, 7}
	for i, w := range want {
		assert.Equal(t, w, binary.LittleEndian.Uint32(b[i*4:]), "field %d", i)
	}
}

func TestGeometryRecordOverflow(t *testing.T) {
	_, err := NewGeometryRecord(PrimitiveInfo{VertexOffset: math.MaxUint32 + 1})
	assert.Error(t, err)

	_, err = NewGeometryRecord(PrimitiveInfo{ColorOffset: u64(math.MaxUint32 + 5)})
	assert.Error(t, err)
}

func TestMaterialRecordLayout(t *testing.T) {
	rec := NewMaterialRecord(MaterialInfo{
		BaseColorFactor:          [4]float32{0.5, 0.25, 1, 1},
		BaseColorTexture:         &TextureRef{Sampler: u32(2), Image: 9},
		MetallicRoughnessTexture: &TextureRef{Image: 4},
	})
	b, err := rec.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, MaterialRecordSize)

	assert.Equal(t, float32(0.5), math.Float32frombits(binary.LittleEndian.Uint32(b[0:])))
	assert.Equal(t, float32(0.25), math.Float32frombits(binary.LittleEndian.Uint32(b[4:])))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(b[16:]))
	// scene sampler 2 is descriptor 3, slot 0 is the default sampler
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(b[20:]))
	assert.Equal(t, uint32(9), binary.LittleEndian.Uint32(b[24:]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(b[28:]))
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(b[32:]))
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(b[36:]))
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(b[40:]))
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(b[44:]))
}

func TestMaterialRecordWithoutTextures(t *testing.T) {
	rec := NewMaterialRecord(MaterialInfo{BaseColorFactor: [4]float32{1, 1, 1, 1}})
	assert.False(t, rec.HasBaseColorTexture)
	assert.False(t, rec.HasMetallicRoughnessTexture)
	assert.Zero(t, rec.BaseColorSamplerIndex)
}

func TestOffsetTable(t *testing.T) {
	meshes := []MeshInfo{
		{Primitives: make([]PrimitiveInfo, 2)},
		{Primitives: nil},
		{Primitives: make([]PrimitiveInfo, 3)},
	}
	table, err := NewOffsetTable(meshes)
	require.NoError(t, err)
	assert.Equal(t, OffsetTable{0, 2, 2, 5}, table)
	for i, m := range meshes {
		assert.Equal(t, uint32(len(m.Primitives)), table.PrimitiveCount(i))
	}

	empty, err := NewOffsetTable(nil)
	require.NoError(t, err)
	assert.Equal(t, OffsetTable{0}, empty)

	b, err := table.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, b, 16)
	assert.Equal(t, uint32(5), binary.LittleEndian.Uint32(b[12:]))
}

func TestEncodeRecords(t *testing.T) {
	geo := EncodeGeometryRecords(make([]GeometryRecord, 3))
	assert.Len(t, geo, 3*GeometryRecordSize)

	mat := EncodeMaterialRecords(make([]MaterialRecord, 2))
	assert.Len(t, mat, 2*MaterialRecordSize)
}

func TestDescriptorWriteLen(t *testing.T) {
	assert.Equal(t, 0, DescriptorWrite{Kind: ResourceKindAccelerationStructure}.Len())
	assert.Equal(t, 2, DescriptorWrite{Kind: ResourceKindSampler, Samplers: make([]Sampler, 2)}.Len())
	assert.Equal(t, 1, DescriptorWrite{Kind: ResourceKindStorageImage, Images: make([]ImageView, 1)}.Len())
}

func TestShaderStageFlags(t *testing.T) {
	s := ShaderStageRaygen | ShaderStageClosestHit
	assert.True(t, s.Has(ShaderStageRaygen))
	assert.False(t, s.Has(ShaderStageMiss))
	assert.True(t, ShaderStageAll.Has(s))
	assert.Len(t, ResourceKinds(), 5)
	assert.Equal(t, "sampler", ResourceKindSampler.String())
}
