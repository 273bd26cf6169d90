package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	emath "github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type PipelineLayout struct {
	context *VulkanContext
	name    string
	Handle  vk.PipelineLayout
}

func (l *PipelineLayout) Release() {
	if l.Handle == vk.NullPipelineLayout {
		return
	}
	_ = lockPool.SafeCall(PipelineManagement, func() error {
		vk.DestroyPipelineLayout(l.context.Device.LogicalDevice, l.Handle, l.context.Allocator)
		l.Handle = vk.NullPipelineLayout
		return nil
	})
}

/**
 * @brief Holds a Vulkan pipeline. Ray tracing pipelines also record their shader group
 * counts so binding tables can be laid out.
 */
type Pipeline struct {
	context *VulkanContext
	name    string
	/** @brief The internal pipeline handle. */
	Handle    vk.Pipeline
	bindPoint metadata.PipelineBindPoint
	/** @brief The number of miss groups, following the raygen group. */
	missCount uint32
	/** @brief The number of hit groups, following the miss groups. */
	hitGroupCount uint32
}

func (p *Pipeline) groupCount() uint32 {
	return 1 + p.missCount + p.hitGroupCount
}

func (p *Pipeline) Release() {
	if p.Handle == vk.NullPipeline {
		return
	}
	_ = lockPool.SafeCall(PipelineManagement, func() error {
		vk.DestroyPipeline(p.context.Device.LogicalDevice, p.Handle, p.context.Allocator)
		p.Handle = vk.NullPipeline
		return nil
	})
}

func (vc *VulkanContext) CreatePipelineLayout(name string, layouts []metadata.DescriptorSetLayout, pushConstants []metadata.PushConstantRange) (metadata.PipelineLayout, error) {
	setLayouts := make([]vk.DescriptorSetLayout, len(layouts))
	for i, layout := range layouts {
		l, err := handleOf[*DescriptorSetLayout](layout, "descriptor set layout")
		if err != nil {
			return nil, err
		}
		setLayouts[i] = l.Handle
	}

	limit := vc.Limits().MaxPushConstantsSize
	ranges := make([]vk.PushConstantRange, len(pushConstants))
	for i, r := range pushConstants {
		if limit > 0 && r.Offset+r.Size > limit {
			err := fmt.Errorf("pipeline layout %q: push constant range ends at %d, device limit is %d", name, r.Offset+r.Size, limit)
			core.LogError(err.Error())
			return nil, err
		}
		ranges[i] = vk.PushConstantRange{
			StageFlags: vulkanShaderStages(r.Stages),
			Offset:     r.Offset,
			Size:       r.Size,
		}
	}

	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(setLayouts)),
		PSetLayouts:            setLayouts,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}

	var handle vk.PipelineLayout
	if err := lockPool.SafeCall(PipelineManagement, func() error {
		result := vk.CreatePipelineLayout(vc.Device.LogicalDevice, &pipelineLayoutCreateInfo, vc.Allocator, &handle)
		if !VulkanResultIsSuccess(result) {
			return fmt.Errorf("vkCreatePipelineLayout failed with %s", VulkanResultString(result, true))
		}
		return nil
	}); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return &PipelineLayout{context: vc, name: name, Handle: handle}, nil
}

func shaderStageInfo(stage metadata.ShaderStage) (vk.PipelineShaderStageCreateInfo, error) {
	module, err := handleOf[*ShaderModule](stage.Module, "shader module")
	if err != nil {
		return vk.PipelineShaderStageCreateInfo{}, err
	}
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vulkanShaderStage(stage.Stage),
		Module: module.Handle,
		PName:  VulkanSafeString(stage.Entry),
	}, nil
}

// CreateGraphicsPipeline builds a single color attachment pipeline with one position attribute
// and dynamic viewport and scissor.
func (vc *VulkanContext) CreateGraphicsPipeline(desc metadata.GraphicsPipelineDesc) (metadata.Pipeline, error) {
	layout, err := handleOf[*PipelineLayout](desc.Layout, "pipeline layout")
	if err != nil {
		return nil, err
	}
	renderPass, err := handleOf[*RenderPass](desc.RenderPass, "render pass")
	if err != nil {
		return nil, err
	}
	stages := make([]vk.PipelineShaderStageCreateInfo, len(desc.Stages))
	for i, stage := range desc.Stages {
		if stages[i], err = shaderStageInfo(stage); err != nil {
			return nil, err
		}
	}

	// Viewport and scissor are dynamic, only the counts matter.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vulkanPolygonMode(desc.PolygonMode),
		LineWidth:               1.0,
		CullMode:                vk.CullModeFlags(vk.CullModeNone),
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}

	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:  vk.False,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.False,
		DepthWriteEnable:  vk.False,
		StencilTestEnable: vk.False,
	}

	colorBlendAttachmentState := vk.PipelineColorBlendAttachmentState{
		BlendEnable: vk.False,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
	}

	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{colorBlendAttachmentState},
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	bindingDescription := vk.VertexInputBindingDescription{
		Binding:   0,
		Stride:    desc.VertexStride,
		InputRate: vk.VertexInputRateVertex,
	}
	positionAttribute := vk.VertexInputAttributeDescription{
		Location: 0,
		Binding:  0,
		Format:   vulkanFormat(desc.VertexFormat),
		Offset:   0,
	}
	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   1,
		PVertexBindingDescriptions:      []vk.VertexInputBindingDescription{bindingDescription},
		VertexAttributeDescriptionCount: 1,
		PVertexAttributeDescriptions:    []vk.VertexInputAttributeDescription{positionAttribute},
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		Layout:              layout.Handle,
		RenderPass:          renderPass.Handle,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pPipelines := make([]vk.Pipeline, 1)
	if err := lockPool.SafeCall(PipelineManagement, func() error {
		result := vk.CreateGraphicsPipelines(
			vc.Device.LogicalDevice,
			vk.NullPipelineCache,
			1,
			[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo},
			vc.Allocator,
			pPipelines)
		if !VulkanResultIsSuccess(result) {
			return fmt.Errorf("vkCreateGraphicsPipelines failed with %s", VulkanResultString(result, true))
		}
		return nil
	}); err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	core.LogDebug("Graphics pipeline %s created!", desc.Name)
	return &Pipeline{
		context:   vc,
		name:      desc.Name,
		Handle:    pPipelines[0],
		bindPoint: metadata.PipelineBindPointGraphics,
	}, nil
}

// rayTracingGroups orders stages and groups as raygen, misses, then hit groups.
func rayTracingGroups(desc metadata.RayTracingPipelineDesc) ([]metadata.ShaderStage, []rtGroup) {
	stages := []metadata.ShaderStage{desc.Raygen}
	groups := []rtGroup{{Kind: shaderGroupGeneral, General: 0, ClosestHit: shaderUnused, AnyHit: shaderUnused}}

	for _, miss := range desc.Misses {
		groups = append(groups, rtGroup{Kind: shaderGroupGeneral, General: uint32(len(stages)), ClosestHit: shaderUnused, AnyHit: shaderUnused})
		stages = append(stages, miss)
	}
	for _, hit := range desc.HitGroups {
		group := rtGroup{Kind: shaderGroupTriangles, General: shaderUnused, ClosestHit: uint32(len(stages)), AnyHit: shaderUnused}
		stages = append(stages, hit.ClosestHit)
		if hit.AnyHit != nil {
			group.AnyHit = uint32(len(stages))
			stages = append(stages, *hit.AnyHit)
		}
		groups = append(groups, group)
	}
	return stages, groups
}

func (vc *VulkanContext) CreateRayTracingPipeline(desc metadata.RayTracingPipelineDesc) (metadata.Pipeline, error) {
	layout, err := handleOf[*PipelineLayout](desc.Layout, "pipeline layout")
	if err != nil {
		return nil, err
	}

	stages, groups := rayTracingGroups(desc)
	rtStages := make([]rtStage, len(stages))
	for i, stage := range stages {
		module, err := handleOf[*ShaderModule](stage.Module, "shader module")
		if err != nil {
			return nil, err
		}
		entry := stage.Entry
		if entry == "" {
			entry = "main"
		}
		rtStages[i] = rtStage{Module: module.Handle, Stage: vulkanShaderStage(stage.Stage), Entry: entry}
	}

	depth := desc.MaxRecursionDepth
	if limit := vc.Device.RayTracing.MaxRecursionDepth; limit > 0 {
		depth = emath.Clamp(depth, 1, limit)
	}

	var handle vk.Pipeline
	if err := lockPool.SafeCall(PipelineManagement, func() error {
		var err error
		handle, err = vc.rtx.createRayTracingPipeline(vc.Device.LogicalDevice, layout.Handle, rtStages, groups, depth)
		return err
	}); err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	core.LogDebug("Ray tracing pipeline %s created with %d groups.", desc.Name, len(groups))
	return &Pipeline{
		context:       vc,
		name:          desc.Name,
		Handle:        handle,
		bindPoint:     metadata.PipelineBindPointRayTracing,
		missCount:     uint32(len(desc.Misses)),
		hitGroupCount: uint32(len(desc.HitGroups)),
	}, nil
}
