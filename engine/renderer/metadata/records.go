package metadata

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// GeometryRecordSize is the std430 size of one geometry record: nine uint32.
	GeometryRecordSize = 36
	// MaterialRecordSize is the std430 size of one material record, padded to a vec4 multiple.
	MaterialRecordSize = 48
)

// GeometryRecord describes one primitive to the hit shaders.
// Optional offsets are paired with an explicit presence flag.
type GeometryRecord struct {
	IndexOffset    uint32
	VertexOffset   uint32
	IndexCount     uint32
	VertexCount    uint32
	MaterialIndex  uint32
	HasColor       bool
	ColorOffset    uint32
	HasTexCoord    bool
	TexCoordOffset uint32
}

// NewGeometryRecord narrows a primitive to the 32 bit device representation.
func NewGeometryRecord(p PrimitiveInfo) (GeometryRecord, error) {
	var (
		r   GeometryRecord
		err error
	)
	if r.IndexOffset, err = narrow("index offset", p.IndexOffset); err != nil {
		return r, err
	}
	if r.VertexOffset, err = narrow("vertex offset", p.VertexOffset); err != nil {
		return r, err
	}
	if r.IndexCount, err = narrow("index count", p.IndexCount); err != nil {
		return r, err
	}
	if r.VertexCount, err = narrow("vertex count", p.VertexCount); err != nil {
		return r, err
	}
	if r.MaterialIndex, err = narrow("material index", p.MaterialIndex); err != nil {
		return r, err
	}
	if p.ColorOffset != nil {
		r.HasColor = true
		if r.ColorOffset, err = narrow("color offset", *p.ColorOffset); err != nil {
			return r, err
		}
	}
	if p.TexCoordOffset != nil {
		r.HasTexCoord = true
		if r.TexCoordOffset, err = narrow("texcoord offset", *p.TexCoordOffset); err != nil {
			return r, err
		}
	}
	return r, nil
}

func (r GeometryRecord) AppendBinary(b []byte) ([]byte, error) {
	b = binary.LittleEndian.AppendUint32(b, r.IndexOffset)
	b = binary.LittleEndian.AppendUint32(b, r.VertexOffset)
	b = binary.LittleEndian.AppendUint32(b, r.IndexCount)
	b = binary.LittleEndian.AppendUint32(b, r.VertexCount)
	b = binary.LittleEndian.AppendUint32(b, r.MaterialIndex)
	b = binary.LittleEndian.AppendUint32(b, boolToUint32(r.HasColor))
	b = binary.LittleEndian.AppendUint32(b, r.ColorOffset)
	b = binary.LittleEndian.AppendUint32(b, boolToUint32(r.HasTexCoord))
	b = binary.LittleEndian.AppendUint32(b, r.TexCoordOffset)
	return b, nil
}

func (r GeometryRecord) MarshalBinary() ([]byte, error) {
	return r.AppendBinary(make([]byte, 0, GeometryRecordSize))
}

// MaterialRecord is the device copy of a material. Texture indices address the
// bindless sampler and image arrays, sampler 0 being the default sampler.
type MaterialRecord struct {
	BaseColorFactor               [4]float32
	HasBaseColorTexture           bool
	BaseColorSamplerIndex         uint32
	BaseColorImageIndex           uint32
	HasMetallicRoughnessTexture   bool
	MetallicRoughnessSamplerIndex uint32
	MetallicRoughnessImageIndex   uint32
}

// NewMaterialRecord resolves texture references. Scene sampler i lands at descriptor i+1.
func NewMaterialRecord(m MaterialInfo) MaterialRecord {
	r := MaterialRecord{BaseColorFactor: m.BaseColorFactor}
	if m.BaseColorTexture != nil {
		r.HasBaseColorTexture = true
		r.BaseColorSamplerIndex = samplerSlot(m.BaseColorTexture.Sampler)
		r.BaseColorImageIndex = m.BaseColorTexture.Image
	}
	if m.MetallicRoughnessTexture != nil {
		r.HasMetallicRoughnessTexture = true
		r.MetallicRoughnessSamplerIndex = samplerSlot(m.MetallicRoughnessTexture.Sampler)
		r.MetallicRoughnessImageIndex = m.MetallicRoughnessTexture.Image
	}
	return r
}

func (r MaterialRecord) AppendBinary(b []byte) ([]byte, error) {
	for _, f := range r.BaseColorFactor {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
	}
	b = binary.LittleEndian.AppendUint32(b, boolToUint32(r.HasBaseColorTexture))
	b = binary.LittleEndian.AppendUint32(b, r.BaseColorSamplerIndex)
	b = binary.LittleEndian.AppendUint32(b, r.BaseColorImageIndex)
	b = binary.LittleEndian.AppendUint32(b, boolToUint32(r.HasMetallicRoughnessTexture))
	b = binary.LittleEndian.AppendUint32(b, r.MetallicRoughnessSamplerIndex)
	b = binary.LittleEndian.AppendUint32(b, r.MetallicRoughnessImageIndex)
	// padding
	b = binary.LittleEndian.AppendUint32(b, 0)
	b = binary.LittleEndian.AppendUint32(b, 0)
	return b, nil
}

func (r MaterialRecord) MarshalBinary() ([]byte, error) {
	return r.AppendBinary(make([]byte, 0, MaterialRecordSize))
}

// OffsetTable maps a mesh index to the index of its first geometry record.
// It has one more entry than there are meshes.
type OffsetTable []uint32

// NewOffsetTable builds the cumulative primitive counts of meshes.
func NewOffsetTable(meshes []MeshInfo) (OffsetTable, error) {
	t := make(OffsetTable, 1, len(meshes)+1)
	var acc uint64
	for i, m := range meshes {
		acc += uint64(len(m.Primitives))
		if acc > math.MaxUint32 {
			return nil, fmt.Errorf("mesh %d: primitive count %d exceeds 32 bits", i, acc)
		}
		t = append(t, uint32(acc))
	}
	return t, nil
}

// PrimitiveCount is the number of primitives of mesh i.
func (t OffsetTable) PrimitiveCount(i int) uint32 {
	return t[i+1] - t[i]
}

func (t OffsetTable) AppendBinary(b []byte) ([]byte, error) {
	for _, v := range t {
		b = binary.LittleEndian.AppendUint32(b, v)
	}
	return b, nil
}

func (t OffsetTable) MarshalBinary() ([]byte, error) {
	return t.AppendBinary(make([]byte, 0, 4*len(t)))
}

// EncodeGeometryRecords packs records back to back.
func EncodeGeometryRecords(records []GeometryRecord) []byte {
	b := make([]byte, 0, len(records)*GeometryRecordSize)
	for _, r := range records {
		b, _ = r.AppendBinary(b)
	}
	return b
}

// EncodeMaterialRecords packs records back to back.
func EncodeMaterialRecords(records []MaterialRecord) []byte {
	b := make([]byte, 0, len(records)*MaterialRecordSize)
	for _, r := range records {
		b, _ = r.AppendBinary(b)
	}
	return b
}

func samplerSlot(i *uint32) uint32 {
	if i == nil {
		return 0
	}
	return *i + 1
}

func narrow(field string, v uint64) (uint32, error) {
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("%s %d does not fit in 32 bits", field, v)
	}
	return uint32(v), nil
}

func boolToUint32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
