package renderer

import "github.com/spaghettifunk/lumen/engine/renderer/metadata"

// Backend owns the presentation surface and the frame command buffer.
// *vulkan.VulkanRenderer implements it.
type Backend interface {
	Device() metadata.Device
	// BeginFrame starts recording into the next presentable image. It returns
	// core.ErrSwapchainBooting when the frame must be skipped.
	BeginFrame() (metadata.CommandRecorder, metadata.Image, metadata.ImageView, error)
	// EndFrame submits the frame, waits for it and presents the image.
	EndFrame() error
	Resized(width, height uint32)
	Shutdown() error
}
