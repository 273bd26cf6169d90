package vulkan

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	emath "github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// AccelerationStructure owns the structure handle and the buffer storing it.
type AccelerationStructure struct {
	context  *VulkanContext
	name     string
	handle   accelHandle
	buffer   *Buffer
	address  uint64
	topLevel bool
}

func (a *AccelerationStructure) Release() {
	if a.handle != nil {
		a.context.rtx.destroyAccelerationStructure(a.context.Device.LogicalDevice, a.handle)
		a.handle = nil
	}
	if a.buffer != nil {
		a.buffer.Release()
		a.buffer = nil
	}
}

// triangleGeometries resolves the device addresses of every geometry.
func triangleGeometries(geometries []metadata.GeometryBinding) ([]triangleGeometry, error) {
	out := make([]triangleGeometry, len(geometries))
	for i, g := range geometries {
		vertices, err := handleOf[*Buffer](g.VertexBuffer, "vertex buffer")
		if err != nil {
			return nil, err
		}
		indices, err := handleOf[*Buffer](g.IndexBuffer, "index buffer")
		if err != nil {
			return nil, err
		}
		if g.VertexCount == 0 || g.IndexCount < 3 {
			return nil, fmt.Errorf("geometry %d has %d vertices and %d indices", i, g.VertexCount, g.IndexCount)
		}
		stride := g.VertexStride
		if stride == 0 {
			stride = 12
		}
		out[i] = triangleGeometry{
			VertexAddress:  vertices.Address() + g.VertexOffset,
			IndexAddress:   indices.Address() + g.IndexOffset,
			VertexStride:   stride,
			MaxVertex:      g.VertexCount - 1,
			PrimitiveCount: g.IndexCount / 3,
		}
	}
	return out, nil
}

// rowMajor3x4 drops the last row of a column major matrix and lays the rest out row by row.
func rowMajor3x4(m mgl32.Mat4) [12]float32 {
	var out [12]float32
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			out[row*4+col] = m.At(row, col)
		}
	}
	return out
}

// scratchBuffer creates a build scratch buffer and returns it with its aligned address.
func (vc *VulkanContext) scratchBuffer(name string, size uint64) (*Buffer, uint64, error) {
	alignment := uint64(vc.Device.RayTracing.ScratchAlignment)
	buffer, err := vc.createBuffer(name+" scratch", vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit), size+alignment, nil)
	if err != nil {
		return nil, 0, err
	}
	return buffer, emath.AlignUp(buffer.Address(), alignment), nil
}

func (vc *VulkanContext) newAccelerationStructure(name string, size uint64, topLevel bool) (*AccelerationStructure, error) {
	storage, err := vc.createBuffer(name, vk.BufferUsageFlags(bufferUsageAccelStorage), size, nil)
	if err != nil {
		return nil, err
	}
	handle, address, err := vc.rtx.createAccelerationStructure(vc.Device.LogicalDevice, storage.Handle, size, topLevel)
	if err != nil {
		storage.Release()
		core.LogError("acceleration structure %s: %s", name, err)
		return nil, err
	}
	return &AccelerationStructure{
		context:  vc,
		name:     name,
		handle:   handle,
		buffer:   storage,
		address:  address,
		topLevel: topLevel,
	}, nil
}

func (vc *VulkanContext) BuildBottomLevel(name string, geometries []metadata.GeometryBinding) (metadata.AccelerationStructure, error) {
	if len(geometries) == 0 {
		return nil, fmt.Errorf("bottom level %s: no geometries", name)
	}
	triangles, err := triangleGeometries(geometries)
	if err != nil {
		return nil, fmt.Errorf("bottom level %s: %w", name, err)
	}

	accelSize, scratchSize, err := vc.rtx.bottomLevelSizes(vc.Device.LogicalDevice, triangles)
	if err != nil {
		return nil, fmt.Errorf("bottom level %s: %w", name, err)
	}
	accel, err := vc.newAccelerationStructure(name, accelSize, false)
	if err != nil {
		return nil, err
	}
	scratch, scratchAddress, err := vc.scratchBuffer(name, scratchSize)
	if err != nil {
		accel.Release()
		return nil, err
	}
	defer scratch.Release()

	if err := vc.singleUse(func(cmd vk.CommandBuffer) error {
		return vc.rtx.cmdBuildBottomLevel(cmd, accel.handle, scratchAddress, triangles)
	}); err != nil {
		accel.Release()
		return nil, fmt.Errorf("bottom level %s: %w", name, err)
	}
	core.LogDebug("built bottom level %s with %d geometries (%d bytes)", name, len(geometries), accelSize)
	return accel, nil
}

func (vc *VulkanContext) BuildTopLevel(name string, instances []metadata.Instance) (metadata.AccelerationStructure, error) {
	records := make([]instanceRecord, len(instances))
	for i, inst := range instances {
		if inst.Bottom == nil {
			return nil, fmt.Errorf("top level %s: instance %d has no bottom level", name, i)
		}
		bottom, err := handleOf[*AccelerationStructure](inst.Bottom.Handle, "bottom level")
		if err != nil {
			return nil, fmt.Errorf("top level %s: %w", name, err)
		}
		records[i] = instanceRecord{
			Transform:   rowMajor3x4(inst.Transform),
			CustomIndex: inst.CustomIndex,
			Mask:        uint32(inst.Mask),
			HitGroup:    inst.HitGroup,
			BottomLevel: bottom.address,
		}
	}

	packed := packInstances(records)
	instanceBuffer, err := vc.createBuffer(name+" instances", vk.BufferUsageFlags(bufferUsageAccelBuildInput), uint64(len(packed)), packed)
	if err != nil {
		return nil, err
	}
	defer instanceBuffer.Release()

	count := uint32(len(records))
	accelSize, scratchSize := vc.rtx.topLevelSizes(vc.Device.LogicalDevice, count)
	accel, err := vc.newAccelerationStructure(name, accelSize, true)
	if err != nil {
		return nil, err
	}
	scratch, scratchAddress, err := vc.scratchBuffer(name, scratchSize)
	if err != nil {
		accel.Release()
		return nil, err
	}
	defer scratch.Release()

	if err := vc.singleUse(func(cmd vk.CommandBuffer) error {
		barrier := vk.MemoryBarrier{
			SType:         vk.StructureTypeMemoryBarrier,
			SrcAccessMask: vk.AccessFlags(vk.AccessTransferWriteBit),
			DstAccessMask: vk.AccessFlags(accessAccelRead) | vk.AccessFlags(accessAccelWrite),
		}
		vk.CmdPipelineBarrier(cmd,
			vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			vk.PipelineStageFlags(pipelineStageAccelBuild),
			0, 1, []vk.MemoryBarrier{barrier}, 0, nil, 0, nil)
		vc.rtx.cmdBuildTopLevel(cmd, accel.handle, scratchAddress, instanceBuffer.Address(), count)
		return nil
	}); err != nil {
		accel.Release()
		return nil, fmt.Errorf("top level %s: %w", name, err)
	}
	core.LogDebug("built top level %s with %d instances", name, count)
	return accel, nil
}
