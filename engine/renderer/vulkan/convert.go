package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

func vulkanFormat(format metadata.Format) vk.Format {
	switch format {
	case metadata.FormatR8G8B8A8Unorm:
		return vk.FormatR8g8b8a8Unorm
	case metadata.FormatB8G8R8A8Unorm:
		return vk.FormatB8g8r8a8Unorm
	case metadata.FormatR32Sfloat:
		return vk.FormatR32Sfloat
	case metadata.FormatR32G32B32Sfloat:
		return vk.FormatR32g32b32Sfloat
	case metadata.FormatR32G32B32A32Sfloat:
		return vk.FormatR32g32b32a32Sfloat
	}
	return vk.FormatUndefined
}

func metadataFormat(format vk.Format) metadata.Format {
	switch format {
	case vk.FormatR8g8b8a8Unorm:
		return metadata.FormatR8G8B8A8Unorm
	case vk.FormatB8g8r8a8Unorm:
		return metadata.FormatB8G8R8A8Unorm
	case vk.FormatR32Sfloat:
		return metadata.FormatR32Sfloat
	case vk.FormatR32g32b32Sfloat:
		return metadata.FormatR32G32B32Sfloat
	case vk.FormatR32g32b32a32Sfloat:
		return metadata.FormatR32G32B32A32Sfloat
	}
	return metadata.FormatUndefined
}

func vulkanImageLayout(layout metadata.ImageLayout) vk.ImageLayout {
	switch layout {
	case metadata.ImageLayoutGeneral:
		return vk.ImageLayoutGeneral
	case metadata.ImageLayoutTransferSrc:
		return vk.ImageLayoutTransferSrcOptimal
	case metadata.ImageLayoutTransferDst:
		return vk.ImageLayoutTransferDstOptimal
	case metadata.ImageLayoutShaderReadOnly:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case metadata.ImageLayoutColorAttachment:
		return vk.ImageLayoutColorAttachmentOptimal
	case metadata.ImageLayoutPresentSrc:
		return vk.ImageLayoutPresentSrc
	}
	return vk.ImageLayoutUndefined
}

// layoutAccess is the access and stage scope of work touching an image in layout.
func layoutAccess(layout metadata.ImageLayout) (vk.AccessFlags, vk.PipelineStageFlags) {
	switch layout {
	case metadata.ImageLayoutGeneral:
		return vk.AccessFlags(vk.AccessShaderReadBit | vk.AccessShaderWriteBit | vk.AccessTransferWriteBit),
			vk.PipelineStageFlags(pipelineStageRayTracing) | vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case metadata.ImageLayoutTransferSrc:
		return vk.AccessFlags(vk.AccessTransferReadBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case metadata.ImageLayoutTransferDst:
		return vk.AccessFlags(vk.AccessTransferWriteBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case metadata.ImageLayoutShaderReadOnly:
		return vk.AccessFlags(vk.AccessShaderReadBit),
			vk.PipelineStageFlags(pipelineStageRayTracing) | vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
	case metadata.ImageLayoutColorAttachment:
		return vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	case metadata.ImageLayoutPresentSrc:
		return 0, vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	}
	return 0, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
}

func vulkanFilter(filter metadata.Filter) vk.Filter {
	if filter == metadata.FilterLinear {
		return vk.FilterLinear
	}
	return vk.FilterNearest
}

func vulkanAddressMode(mode metadata.AddressMode) vk.SamplerAddressMode {
	if mode == metadata.AddressModeRepeat {
		return vk.SamplerAddressModeRepeat
	}
	return vk.SamplerAddressModeClampToEdge
}

var shaderStageBits = []struct {
	from metadata.ShaderStageFlags
	to   vk.ShaderStageFlagBits
}{
	{metadata.ShaderStageVertex, vk.ShaderStageVertexBit},
	{metadata.ShaderStageFragment, vk.ShaderStageFragmentBit},
	{metadata.ShaderStageCompute, vk.ShaderStageComputeBit},
	{metadata.ShaderStageRaygen, shaderStageRaygen},
	{metadata.ShaderStageMiss, shaderStageMiss},
	{metadata.ShaderStageClosestHit, shaderStageClosestHit},
	{metadata.ShaderStageAnyHit, shaderStageAnyHit},
}

func vulkanShaderStages(stages metadata.ShaderStageFlags) vk.ShaderStageFlags {
	var out vk.ShaderStageFlags
	for _, b := range shaderStageBits {
		if stages&b.from != 0 {
			out |= vk.ShaderStageFlags(b.to)
		}
	}
	return out
}

// vulkanShaderStage maps a single stage. Combined flags map to their lowest stage.
func vulkanShaderStage(stage metadata.ShaderStageFlags) vk.ShaderStageFlagBits {
	for _, b := range shaderStageBits {
		if stage&b.from != 0 {
			return b.to
		}
	}
	return 0
}

func vulkanDescriptorType(kind metadata.ResourceKind) vk.DescriptorType {
	switch kind {
	case metadata.ResourceKindAccelerationStructure:
		return descriptorTypeAccelStruct
	case metadata.ResourceKindStorageBuffer:
		return vk.DescriptorTypeStorageBuffer
	case metadata.ResourceKindStorageImage:
		return vk.DescriptorTypeStorageImage
	case metadata.ResourceKindSampledImage:
		return vk.DescriptorTypeSampledImage
	}
	return vk.DescriptorTypeSampler
}

var bufferUsageBits = []struct {
	from metadata.BufferUsage
	to   vk.BufferUsageFlagBits
}{
	{metadata.BufferUsageStorage, vk.BufferUsageStorageBufferBit},
	{metadata.BufferUsageVertex, vk.BufferUsageVertexBufferBit},
	{metadata.BufferUsageIndex, vk.BufferUsageIndexBufferBit},
	{metadata.BufferUsageTransferSrc, vk.BufferUsageTransferSrcBit},
	{metadata.BufferUsageTransferDst, vk.BufferUsageTransferDstBit},
	{metadata.BufferUsageDeviceAddress, bufferUsageDeviceAddress},
	{metadata.BufferUsageAccelerationStructureInput, bufferUsageAccelBuildInput},
	{metadata.BufferUsageShaderBindingTable, bufferUsageShaderBindingTable},
}

func vulkanBufferUsage(usage metadata.BufferUsage) vk.BufferUsageFlags {
	var out vk.BufferUsageFlags
	for _, b := range bufferUsageBits {
		if usage&b.from != 0 {
			out |= vk.BufferUsageFlags(b.to)
		}
	}
	return out
}

func vulkanImageUsage(usage metadata.ImageUsage) vk.ImageUsageFlags {
	var out vk.ImageUsageFlags
	if usage&metadata.ImageUsageStorage != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageStorageBit)
	}
	if usage&metadata.ImageUsageSampled != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageSampledBit)
	}
	if usage&metadata.ImageUsageTransferSrc != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit)
	}
	if usage&metadata.ImageUsageTransferDst != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageTransferDstBit)
	}
	if usage&metadata.ImageUsageColorAttachment != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)
	}
	return out
}

func vulkanLoadOp(op metadata.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case metadata.LoadOpClear:
		return vk.AttachmentLoadOpClear
	case metadata.LoadOpDontCare:
		return vk.AttachmentLoadOpDontCare
	}
	return vk.AttachmentLoadOpLoad
}

func vulkanStoreOp(op metadata.StoreOp) vk.AttachmentStoreOp {
	if op == metadata.StoreOpDontCare {
		return vk.AttachmentStoreOpDontCare
	}
	return vk.AttachmentStoreOpStore
}

func vulkanPolygonMode(mode metadata.PolygonMode) vk.PolygonMode {
	if mode == metadata.PolygonModeLine {
		return vk.PolygonModeLine
	}
	return vk.PolygonModeFill
}

func vulkanBindPoint(point metadata.PipelineBindPoint) vk.PipelineBindPoint {
	if point == metadata.PipelineBindPointRayTracing {
		return pipelineBindPointRayTracing
	}
	return vk.PipelineBindPointGraphics
}
