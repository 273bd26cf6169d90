package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

var _ metadata.CommandRecorder = (*Recorder)(nil)

// Recorder records pass commands into the frame command buffer.
type Recorder struct {
	context *VulkanContext
	buffer  *VulkanCommandBuffer
	// Images written by the active render pass and the layout they end in.
	passImages []*Image
	passFinal  metadata.ImageLayout
}

func newRecorder(context *VulkanContext, buffer *VulkanCommandBuffer) *Recorder {
	return &Recorder{context: context, buffer: buffer}
}

// recordImageBarrier transitions image from its tracked layout to layout and tracks the new one.
func recordImageBarrier(cmd vk.CommandBuffer, image *Image, layout metadata.ImageLayout) {
	srcAccess, srcStage := layoutAccess(image.layout)
	dstAccess, dstStage := layoutAccess(layout)

	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       srcAccess,
		DstAccessMask:       dstAccess,
		OldLayout:           vulkanImageLayout(image.layout),
		NewLayout:           vulkanImageLayout(layout),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               image.Handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	vk.CmdPipelineBarrier(cmd, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
	image.layout = layout
}

func (r *Recorder) BindPipeline(point metadata.PipelineBindPoint, pipeline metadata.Pipeline) {
	p, err := handleOf[*Pipeline](pipeline, "pipeline")
	if err != nil {
		return
	}
	vk.CmdBindPipeline(r.buffer.Handle, vulkanBindPoint(point), p.Handle)
}

func (r *Recorder) BindDescriptorSets(point metadata.PipelineBindPoint, layout metadata.PipelineLayout, firstSet uint32, sets []metadata.DescriptorSet) {
	l, err := handleOf[*PipelineLayout](layout, "pipeline layout")
	if err != nil {
		return
	}
	handles := make([]vk.DescriptorSet, len(sets))
	for i, set := range sets {
		s, err := handleOf[*DescriptorSet](set, "descriptor set")
		if err != nil {
			return
		}
		handles[i] = s.Handle
	}
	vk.CmdBindDescriptorSets(r.buffer.Handle, vulkanBindPoint(point), l.Handle, firstSet, uint32(len(handles)), handles, 0, nil)
}

func (r *Recorder) PushConstants(layout metadata.PipelineLayout, stages metadata.ShaderStageFlags, offset uint32, data []byte) {
	l, err := handleOf[*PipelineLayout](layout, "pipeline layout")
	if err != nil || len(data) == 0 {
		return
	}
	vk.CmdPushConstants(r.buffer.Handle, l.Handle, vulkanShaderStages(stages), offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (r *Recorder) TransitionImage(image metadata.Image, layout metadata.ImageLayout) {
	img, err := handleOf[*Image](image, "image")
	if err != nil {
		return
	}
	recordImageBarrier(r.buffer.Handle, img, layout)
}

func (r *Recorder) ClearColorImage(image metadata.Image, color metadata.Color) {
	img, err := handleOf[*Image](image, "image")
	if err != nil {
		return
	}
	if img.layout != metadata.ImageLayoutGeneral && img.layout != metadata.ImageLayoutTransferDst {
		core.LogError("clear of image %s in layout %d, want general or transfer destination", img.name, img.layout)
		return
	}
	r.context.rtx.cmdClearColorImage(r.buffer.Handle, img.Handle, vulkanImageLayout(img.layout), color)
}

func (r *Recorder) TraceRays(tables metadata.ShaderBindingTables, width, height, depth uint32) {
	t, err := handleOf[*ShaderBindingTables](tables, "shader binding tables")
	if err != nil {
		return
	}
	r.context.rtx.cmdTraceRays(r.buffer.Handle, t.regions, width, height, depth)
}

func (r *Recorder) BlitImage(src, dst metadata.Image, filter metadata.Filter) {
	s, err := handleOf[*Image](src, "blit source")
	if err != nil {
		return
	}
	d, err := handleOf[*Image](dst, "blit destination")
	if err != nil {
		return
	}
	if s.layout != metadata.ImageLayoutTransferSrc || d.layout != metadata.ImageLayoutTransferDst {
		core.LogError("blit from %s in layout %d to %s in layout %d, want transfer source and destination", s.name, s.layout, d.name, d.layout)
		return
	}

	subresource := vk.ImageSubresourceLayers{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		LayerCount: 1,
	}
	region := vk.ImageBlit{
		SrcSubresource: subresource,
		SrcOffsets:     [2]vk.Offset3D{{}, {X: int32(s.width), Y: int32(s.height), Z: 1}},
		DstSubresource: subresource,
		DstOffsets:     [2]vk.Offset3D{{}, {X: int32(d.width), Y: int32(d.height), Z: 1}},
	}
	vk.CmdBlitImage(r.buffer.Handle,
		s.Handle, vk.ImageLayoutTransferSrcOptimal,
		d.Handle, vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageBlit{region}, vulkanFilter(filter))
}

func (r *Recorder) BeginRenderPass(pass metadata.RenderPass, framebuffer metadata.Framebuffer, area metadata.Rect) {
	p, err := handleOf[*RenderPass](pass, "render pass")
	if err != nil {
		return
	}
	fb, err := handleOf[*Framebuffer](framebuffer, "framebuffer")
	if err != nil {
		return
	}
	p.Begin(r.buffer, fb, area)
	r.passImages = fb.images()
	r.passFinal = p.desc.FinalLayout
}

func (r *Recorder) EndRenderPass() {
	vk.CmdEndRenderPass(r.buffer.Handle)
	r.buffer.State = COMMAND_BUFFER_STATE_RECORDING
	for _, image := range r.passImages {
		image.layout = r.passFinal
	}
	r.passImages = nil
}

func (r *Recorder) SetViewport(viewport metadata.Viewport) {
	vk.CmdSetViewport(r.buffer.Handle, 0, 1, []vk.Viewport{{
		X:        viewport.X,
		Y:        viewport.Y,
		Width:    viewport.Width,
		Height:   viewport.Height,
		MinDepth: viewport.MinDepth,
		MaxDepth: viewport.MaxDepth,
	}})
}

func (r *Recorder) SetScissor(scissor metadata.Rect) {
	vk.CmdSetScissor(r.buffer.Handle, 0, 1, []vk.Rect2D{vulkanRect(scissor)})
}

func (r *Recorder) BindVertexBuffer(buffer metadata.Buffer, offset uint64) {
	b, err := handleOf[*Buffer](buffer, "vertex buffer")
	if err != nil {
		return
	}
	vk.CmdBindVertexBuffers(r.buffer.Handle, 0, 1, []vk.Buffer{b.Handle}, []vk.DeviceSize{vk.DeviceSize(offset)})
}

func (r *Recorder) BindIndexBuffer(buffer metadata.Buffer, offset uint64) {
	b, err := handleOf[*Buffer](buffer, "index buffer")
	if err != nil {
		return
	}
	vk.CmdBindIndexBuffer(r.buffer.Handle, b.Handle, vk.DeviceSize(offset), vk.IndexTypeUint32)
}

func (r *Recorder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(r.buffer.Handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func vulkanRect(rect metadata.Rect) vk.Rect2D {
	return vk.Rect2D{
		Offset: vk.Offset2D{X: rect.X, Y: rect.Y},
		Extent: vk.Extent2D{Width: rect.Width, Height: rect.Height},
	}
}
