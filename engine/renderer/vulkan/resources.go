package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

/**
 * @brief A device local buffer. Every buffer can be addressed from shaders and
 * used as an acceleration structure build input.
 */
type Buffer struct {
	context *VulkanContext
	name    string
	Handle  vk.Buffer
	Memory  vk.DeviceMemory
	size    uint64
	address uint64
}

func (b *Buffer) Name() string { return b.name }
func (b *Buffer) Size() uint64 { return b.size }

// Address is the device address of the first byte.
func (b *Buffer) Address() uint64 { return b.address }

func (b *Buffer) Release() {
	if b.Handle != vk.NullBuffer {
		vk.DestroyBuffer(b.context.Device.LogicalDevice, b.Handle, b.context.Allocator)
		b.Handle = vk.NullBuffer
	}
	if b.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(b.context.Device.LogicalDevice, b.Memory, b.context.Allocator)
		b.Memory = vk.NullDeviceMemory
	}
}

type Image struct {
	context  *VulkanContext
	name     string
	Handle   vk.Image
	Memory   vk.DeviceMemory
	width    uint32
	height   uint32
	format   metadata.Format
	vkFormat vk.Format
	layout   metadata.ImageLayout
	// owned is false for swapchain images.
	owned bool
}

func (i *Image) Width() uint32                { return i.width }
func (i *Image) Height() uint32               { return i.height }
func (i *Image) Format() metadata.Format      { return i.format }
func (i *Image) Layout() metadata.ImageLayout { return i.layout }

func (i *Image) Release() {
	if !i.owned {
		return
	}
	if i.Handle != vk.NullImage {
		vk.DestroyImage(i.context.Device.LogicalDevice, i.Handle, i.context.Allocator)
		i.Handle = vk.NullImage
	}
	if i.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(i.context.Device.LogicalDevice, i.Memory, i.context.Allocator)
		i.Memory = vk.NullDeviceMemory
	}
}

type ImageView struct {
	context *VulkanContext
	Handle  vk.ImageView
	image   *Image
}

func (v *ImageView) Image() metadata.Image { return v.image }

func (v *ImageView) Release() {
	if v.Handle != vk.NullImageView {
		vk.DestroyImageView(v.context.Device.LogicalDevice, v.Handle, v.context.Allocator)
		v.Handle = vk.NullImageView
	}
}

type Sampler struct {
	context *VulkanContext
	Handle  vk.Sampler
}

func (s *Sampler) Release() {
	if s.Handle != vk.NullSampler {
		vk.DestroySampler(s.context.Device.LogicalDevice, s.Handle, s.context.Allocator)
		s.Handle = vk.NullSampler
	}
}

type ShaderModule struct {
	context *VulkanContext
	name    string
	Handle  vk.ShaderModule
}

func (m *ShaderModule) Release() {
	if m.Handle != vk.NullShaderModule {
		vk.DestroyShaderModule(m.context.Device.LogicalDevice, m.Handle, m.context.Allocator)
		m.Handle = vk.NullShaderModule
	}
}

// handleOf unwraps a handle created by this backend.
func handleOf[T any](h any, what string) (T, error) {
	v, ok := h.(T)
	if !ok {
		var zero T
		err := fmt.Errorf("%s of type %T was not created by the vulkan backend", what, h)
		core.LogError(err.Error())
		return zero, err
	}
	return v, nil
}

// createRawBuffer creates a buffer and binds fresh memory with the given properties to it.
func (vc *VulkanContext) createRawBuffer(size uint64, usage vk.BufferUsageFlags, properties vk.MemoryPropertyFlags) (vk.Buffer, vk.DeviceMemory, error) {
	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}

	var buffer vk.Buffer
	if err := lockPool.SafeCall(ResourceManagement, func() error {
		return vkCheck(vk.CreateBuffer(vc.Device.LogicalDevice, &bufferInfo, vc.Allocator, &buffer), "vkCreateBuffer")
	}); err != nil {
		return vk.NullBuffer, vk.NullDeviceMemory, err
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(vc.Device.LogicalDevice, buffer, &requirements)
	requirements.Deref()

	deviceAddress := vk.BufferUsageFlags(bufferUsageDeviceAddress)&usage != 0
	memory, err := vc.allocateMemory(requirements, properties, deviceAddress)
	if err != nil {
		vk.DestroyBuffer(vc.Device.LogicalDevice, buffer, vc.Allocator)
		return vk.NullBuffer, vk.NullDeviceMemory, err
	}
	if err := vkCheck(vk.BindBufferMemory(vc.Device.LogicalDevice, buffer, memory, 0), "vkBindBufferMemory"); err != nil {
		vk.DestroyBuffer(vc.Device.LogicalDevice, buffer, vc.Allocator)
		vk.FreeMemory(vc.Device.LogicalDevice, memory, vc.Allocator)
		return vk.NullBuffer, vk.NullDeviceMemory, err
	}
	return buffer, memory, nil
}

// createBuffer creates a device local buffer of at least size bytes filled with data.
func (vc *VulkanContext) createBuffer(name string, usage vk.BufferUsageFlags, size uint64, data []byte) (*Buffer, error) {
	if size < 4 {
		size = 4
	}
	usage |= vk.BufferUsageFlags(vk.BufferUsageTransferDstBit) | vk.BufferUsageFlags(bufferUsageDeviceAddress)

	handle, memory, err := vc.createRawBuffer(size, usage, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return nil, fmt.Errorf("buffer %q: %w", name, err)
	}
	buffer := &Buffer{
		context: vc,
		name:    name,
		Handle:  handle,
		Memory:  memory,
		size:    size,
		address: vc.rtx.bufferAddress(vc.Device.LogicalDevice, handle),
	}

	if len(data) > 0 {
		if err := vc.uploadBuffer(buffer, data); err != nil {
			buffer.Release()
			return nil, fmt.Errorf("buffer %q: %w", name, err)
		}
	}
	return buffer, nil
}

func (vc *VulkanContext) CreateBuffer(name string, usage metadata.BufferUsage, data []byte) (metadata.Buffer, error) {
	buffer, err := vc.createBuffer(name, vulkanBufferUsage(usage), uint64(len(data)), data)
	if err != nil {
		return nil, err
	}
	core.LogDebug("created buffer %s (%d bytes)", name, buffer.size)
	return buffer, nil
}

// staging copies data into a host visible buffer.
func (vc *VulkanContext) staging(data []byte) (vk.Buffer, vk.DeviceMemory, error) {
	handle, memory, err := vc.createRawBuffer(uint64(len(data)),
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		return vk.NullBuffer, vk.NullDeviceMemory, err
	}

	var mapped unsafe.Pointer
	if err := vkCheck(vk.MapMemory(vc.Device.LogicalDevice, memory, 0, vk.DeviceSize(len(data)), 0, &mapped), "vkMapMemory"); err != nil {
		vk.DestroyBuffer(vc.Device.LogicalDevice, handle, vc.Allocator)
		vk.FreeMemory(vc.Device.LogicalDevice, memory, vc.Allocator)
		return vk.NullBuffer, vk.NullDeviceMemory, err
	}
	copy(unsafe.Slice((*byte)(mapped), len(data)), data)
	vk.UnmapMemory(vc.Device.LogicalDevice, memory)
	return handle, memory, nil
}

func (vc *VulkanContext) releaseStaging(handle vk.Buffer, memory vk.DeviceMemory) {
	vk.DestroyBuffer(vc.Device.LogicalDevice, handle, vc.Allocator)
	vk.FreeMemory(vc.Device.LogicalDevice, memory, vc.Allocator)
}

func (vc *VulkanContext) uploadBuffer(buffer *Buffer, data []byte) error {
	staging, stagingMemory, err := vc.staging(data)
	if err != nil {
		return err
	}
	defer vc.releaseStaging(staging, stagingMemory)

	return vc.singleUse(func(cmd vk.CommandBuffer) error {
		vk.CmdCopyBuffer(cmd, staging, buffer.Handle, 1, []vk.BufferCopy{{
			Size: vk.DeviceSize(len(data)),
		}})
		return nil
	})
}

func (vc *VulkanContext) CreateImage(desc metadata.ImageDesc) (metadata.Image, error) {
	format := vulkanFormat(desc.Format)
	if format == vk.FormatUndefined || desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("image %q: invalid description %dx%d format %d", desc.Name, desc.Width, desc.Height, desc.Format)
	}

	imageInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vulkanImageUsage(desc.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}

	var handle vk.Image
	if err := lockPool.SafeCall(ResourceManagement, func() error {
		return vkCheck(vk.CreateImage(vc.Device.LogicalDevice, &imageInfo, vc.Allocator, &handle), "vkCreateImage %s", desc.Name)
	}); err != nil {
		return nil, err
	}

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(vc.Device.LogicalDevice, handle, &requirements)
	requirements.Deref()

	memory, err := vc.allocateMemory(requirements, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit), false)
	if err != nil {
		vk.DestroyImage(vc.Device.LogicalDevice, handle, vc.Allocator)
		return nil, err
	}
	if err := vkCheck(vk.BindImageMemory(vc.Device.LogicalDevice, handle, memory, 0), "vkBindImageMemory"); err != nil {
		vk.DestroyImage(vc.Device.LogicalDevice, handle, vc.Allocator)
		vk.FreeMemory(vc.Device.LogicalDevice, memory, vc.Allocator)
		return nil, err
	}

	return &Image{
		context:  vc,
		name:     desc.Name,
		Handle:   handle,
		Memory:   memory,
		width:    desc.Width,
		height:   desc.Height,
		format:   desc.Format,
		vkFormat: format,
		layout:   metadata.ImageLayoutUndefined,
		owned:    true,
	}, nil
}

func (vc *VulkanContext) createImageView(image *Image) (*ImageView, error) {
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image.Handle,
		ViewType: vk.ImageViewType2d,
		Format:   image.vkFormat,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}

	var handle vk.ImageView
	if err := vkCheck(vk.CreateImageView(vc.Device.LogicalDevice, &viewInfo, vc.Allocator, &handle), "vkCreateImageView %s", image.name); err != nil {
		return nil, err
	}
	return &ImageView{context: vc, Handle: handle, image: image}, nil
}

func (vc *VulkanContext) CreateImageView(image metadata.Image) (metadata.ImageView, error) {
	img, err := handleOf[*Image](image, "image")
	if err != nil {
		return nil, err
	}
	return vc.createImageView(img)
}

func (vc *VulkanContext) UploadImage(image metadata.Image, pixels []byte) error {
	img, err := handleOf[*Image](image, "image")
	if err != nil {
		return err
	}
	if img.format != metadata.FormatR8G8B8A8Unorm {
		return fmt.Errorf("image %q: uploads require R8G8B8A8 pixels", img.name)
	}
	if want := int(img.width) * int(img.height) * 4; len(pixels) != want {
		return fmt.Errorf("image %q: got %d bytes of pixels, want %d", img.name, len(pixels), want)
	}

	staging, stagingMemory, err := vc.staging(pixels)
	if err != nil {
		return err
	}
	defer vc.releaseStaging(staging, stagingMemory)

	return vc.singleUse(func(cmd vk.CommandBuffer) error {
		recordImageBarrier(cmd, img, metadata.ImageLayoutTransferDst)
		vk.CmdCopyBufferToImage(cmd, staging, img.Handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{{
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LayerCount: 1,
			},
			ImageExtent: vk.Extent3D{
				Width:  img.width,
				Height: img.height,
				Depth:  1,
			},
		}})
		recordImageBarrier(cmd, img, metadata.ImageLayoutShaderReadOnly)
		return nil
	})
}

func (vc *VulkanContext) CreateSampler(desc metadata.SamplerDesc) (metadata.Sampler, error) {
	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vulkanFilter(desc.MagFilter),
		MinFilter:               vulkanFilter(desc.MinFilter),
		MipmapMode:              vk.SamplerMipmapModeLinear,
		AddressModeU:            vulkanAddressMode(desc.AddressU),
		AddressModeV:            vulkanAddressMode(desc.AddressV),
		AddressModeW:            vulkanAddressMode(desc.AddressV),
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1.0,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
	}

	var handle vk.Sampler
	if err := lockPool.SafeCall(ResourceManagement, func() error {
		return vkCheck(vk.CreateSampler(vc.Device.LogicalDevice, &samplerInfo, vc.Allocator, &handle), "vkCreateSampler %s", desc.Name)
	}); err != nil {
		return nil, err
	}
	return &Sampler{context: vc, Handle: handle}, nil
}

func (vc *VulkanContext) CreateShaderModule(name string, code []uint32) (metadata.ShaderModule, error) {
	if len(code) == 0 {
		return nil, fmt.Errorf("shader module %q: empty SPIR-V", name)
	}
	moduleInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code) * 4),
		PCode:    code,
	}

	var handle vk.ShaderModule
	if err := vkCheck(vk.CreateShaderModule(vc.Device.LogicalDevice, &moduleInfo, vc.Allocator, &handle), "vkCreateShaderModule %s", name); err != nil {
		return nil, err
	}
	return &ShaderModule{context: vc, name: name, Handle: handle}, nil
}
