package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	emath "github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// sbtLayout gives the byte offsets and strides of the raygen, miss and hit regions.
type sbtLayout struct {
	handleSize uint64
	base       uint64

	raygenStride uint64
	raygenSize   uint64

	missOffset uint64
	missStride uint64
	missSize   uint64

	hitOffset uint64
	hitStride uint64
	hitSize   uint64
}

func (l sbtLayout) total() uint64 {
	return l.hitOffset + l.hitSize
}

func layoutShaderBindingTables(props rayTracingProperties, missCount, hitCount uint32) sbtLayout {
	handleSize := uint64(props.HandleSize)
	handleAlignment := uint64(props.HandleAlignment)
	base := uint64(props.BaseAlignment)

	aligned := emath.AlignUp(handleSize, handleAlignment)
	l := sbtLayout{
		handleSize:   handleSize,
		base:         base,
		raygenStride: emath.AlignUp(aligned, base),
		missStride:   aligned,
		hitStride:    aligned,
	}
	l.raygenSize = l.raygenStride
	l.missOffset = l.raygenSize
	l.missSize = emath.AlignUp(uint64(missCount)*l.missStride, base)
	l.hitOffset = l.missOffset + l.missSize
	l.hitSize = emath.AlignUp(uint64(hitCount)*l.hitStride, base)
	return l
}

// pack copies group handles into the table memory. handles holds the raygen group,
// missCount miss groups and the hit groups in pipeline order. hitGroups names the hit
// group used by each hit record.
func (l sbtLayout) pack(handles []byte, missCount uint32, hitGroups []uint32, hitGroupCount uint32) ([]byte, error) {
	groups := uint64(1 + missCount + hitGroupCount)
	if uint64(len(handles)) < groups*l.handleSize {
		return nil, fmt.Errorf("got %d bytes of group handles, want %d", len(handles), groups*l.handleSize)
	}
	handle := func(group uint64) []byte {
		return handles[group*l.handleSize : (group+1)*l.handleSize]
	}

	out := make([]byte, l.total())
	copy(out, handle(0))
	for i := uint64(0); i < uint64(missCount); i++ {
		copy(out[l.missOffset+i*l.missStride:], handle(1+i))
	}
	for i, group := range hitGroups {
		if group >= hitGroupCount {
			return nil, fmt.Errorf("hit record %d names hit group %d, pipeline has %d", i, group, hitGroupCount)
		}
		copy(out[l.hitOffset+uint64(i)*l.hitStride:], handle(1+uint64(missCount)+uint64(group)))
	}
	return out, nil
}

// regions returns the trace regions for a table placed at address.
func (l sbtLayout) regions(address uint64) [4]stridedRegion {
	var out [4]stridedRegion
	out[0] = stridedRegion{Address: address, Stride: l.raygenStride, Size: l.raygenSize}
	if l.missSize > 0 {
		out[1] = stridedRegion{Address: address + l.missOffset, Stride: l.missStride, Size: l.missSize}
	}
	if l.hitSize > 0 {
		out[2] = stridedRegion{Address: address + l.hitOffset, Stride: l.hitStride, Size: l.hitSize}
	}
	return out
}

// ShaderBindingTables keeps the raygen, miss and hit tables in one buffer.
type ShaderBindingTables struct {
	buffer   *Buffer
	regions  [4]stridedRegion
	hitCount int
}

func (t *ShaderBindingTables) HitGroupCount() int { return t.hitCount }

func (t *ShaderBindingTables) Release() {
	if t.buffer != nil {
		t.buffer.Release()
		t.buffer = nil
	}
}

func (vc *VulkanContext) CreateShaderBindingTables(pipeline metadata.Pipeline, hitGroups []uint32) (metadata.ShaderBindingTables, error) {
	p, err := handleOf[*Pipeline](pipeline, "pipeline")
	if err != nil {
		return nil, err
	}
	if p.bindPoint != metadata.PipelineBindPointRayTracing {
		return nil, fmt.Errorf("pipeline %s is not a ray tracing pipeline", p.name)
	}

	props := vc.Device.RayTracing
	layout := layoutShaderBindingTables(props, p.missCount, uint32(len(hitGroups)))
	handles, err := vc.rtx.shaderGroupHandles(vc.Device.LogicalDevice, p.Handle, p.groupCount(), props.HandleSize)
	if err != nil {
		core.LogError("pipeline %s: %s", p.name, err)
		return nil, err
	}
	table, err := layout.pack(handles, p.missCount, hitGroups, p.hitGroupCount)
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", p.name, err)
	}

	// The buffer address is only guaranteed to be handle aligned, so leave room to move to the base alignment.
	padding := layout.base
	data := make([]byte, uint64(len(table))+padding)
	buffer, err := vc.createBuffer(p.name+" sbt", vk.BufferUsageFlags(bufferUsageShaderBindingTable), uint64(len(data)), nil)
	if err != nil {
		return nil, err
	}
	address := emath.AlignUp(buffer.Address(), layout.base)
	copy(data[address-buffer.Address():], table)
	if err := vc.uploadBuffer(buffer, data); err != nil {
		buffer.Release()
		return nil, err
	}

	core.LogDebug("shader binding tables for %s: %d miss and %d hit records", p.name, p.missCount, len(hitGroups))
	return &ShaderBindingTables{
		buffer:   buffer,
		regions:  layout.regions(address),
		hitCount: len(hitGroups),
	}, nil
}
