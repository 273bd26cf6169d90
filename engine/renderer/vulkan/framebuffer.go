package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type Framebuffer struct {
	context     *VulkanContext
	Handle      vk.Framebuffer
	Attachments []*ImageView
	Renderpass  *RenderPass
}

func (vc *VulkanContext) CreateFramebuffer(pass metadata.RenderPass, views []metadata.ImageView, width, height uint32) (metadata.Framebuffer, error) {
	renderpass, err := handleOf[*RenderPass](pass, "render pass")
	if err != nil {
		return nil, err
	}

	framebuffer := &Framebuffer{
		context:     vc,
		Attachments: make([]*ImageView, len(views)),
		Renderpass:  renderpass,
	}
	handles := make([]vk.ImageView, len(views))
	for i, view := range views {
		v, err := handleOf[*ImageView](view, "framebuffer attachment")
		if err != nil {
			return nil, err
		}
		framebuffer.Attachments[i] = v
		handles[i] = v.Handle
	}

	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderpass.Handle,
		AttachmentCount: uint32(len(handles)),
		PAttachments:    handles,
		Width:           width,
		Height:          height,
		Layers:          1,
	}

	var handle vk.Framebuffer
	if err := vkCheck(vk.CreateFramebuffer(vc.Device.LogicalDevice, &framebufferCreateInfo, vc.Allocator, &handle), "vkCreateFramebuffer"); err != nil {
		return nil, err
	}
	framebuffer.Handle = handle
	return framebuffer, nil
}

// images are the attachment images, whose layout changes when a pass on the framebuffer ends.
func (vfb *Framebuffer) images() []*Image {
	out := make([]*Image, len(vfb.Attachments))
	for i, view := range vfb.Attachments {
		out[i] = view.image
	}
	return out
}

func (vfb *Framebuffer) Release() {
	if vfb.Handle != vk.NullFramebuffer {
		vk.DestroyFramebuffer(vfb.context.Device.LogicalDevice, vfb.Handle, vfb.context.Allocator)
		vfb.Handle = vk.NullFramebuffer
	}
	vfb.Attachments = nil
	vfb.Renderpass = nil
}
