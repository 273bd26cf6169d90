package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// RenderPass has a single color attachment and a single subpass.
type RenderPass struct {
	context *VulkanContext
	Handle  vk.RenderPass
	desc    metadata.RenderPassDesc
}

func (vc *VulkanContext) CreateRenderPass(desc metadata.RenderPassDesc) (metadata.RenderPass, error) {
	colorAttachment := vk.AttachmentDescription{
		Format:         vulkanFormat(desc.Format),
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vulkanLoadOp(desc.LoadOp),
		StoreOp:        vulkanStoreOp(desc.StoreOp),
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vulkanImageLayout(desc.InitialLayout),
		FinalLayout:    vulkanImageLayout(desc.FinalLayout),
	}

	colorAttachmentReference := []vk.AttachmentReference{
		{
			Attachment: 0, // Attachment description array index
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		},
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments:    colorAttachmentReference,
	}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit) | vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		SrcAccessMask: vk.AccessFlags(vk.AccessTransferWriteBit),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
	}

	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: 1,
		PAttachments:    []vk.AttachmentDescription{colorAttachment},
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	var handle vk.RenderPass
	if err := vkCheck(vk.CreateRenderPass(vc.Device.LogicalDevice, &renderpassCreateInfo, vc.Allocator, &handle), "vkCreateRenderPass %s", desc.Name); err != nil {
		return nil, err
	}
	return &RenderPass{context: vc, Handle: handle, desc: desc}, nil
}

func (rp *RenderPass) Release() {
	if rp.Handle != vk.NullRenderPass {
		vk.DestroyRenderPass(rp.context.Device.LogicalDevice, rp.Handle, rp.context.Allocator)
		rp.Handle = vk.NullRenderPass
	}
}

// Begin starts the pass on commandBuffer. Cleared attachments are cleared to transparent black.
func (rp *RenderPass) Begin(commandBuffer *VulkanCommandBuffer, framebuffer *Framebuffer, area metadata.Rect) {
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp.Handle,
		Framebuffer: framebuffer.Handle,
		RenderArea:  vulkanRect(area),
	}

	if rp.desc.LoadOp == metadata.LoadOpClear {
		clearValues := make([]vk.ClearValue, 1)
		clearValues[0].SetColor([]float32{0, 0, 0, 0})
		beginInfo.ClearValueCount = 1
		beginInfo.PClearValues = clearValues
	}

	vk.CmdBeginRenderPass(commandBuffer.Handle, &beginInfo, vk.SubpassContentsInline)
	commandBuffer.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}
