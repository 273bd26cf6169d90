package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

var _ metadata.Device = (*VulkanContext)(nil)

// VulkanContext owns the instance, device and swapchain, and creates every GPU resource.
type VulkanContext struct {
	// The framebuffer's current width.
	FramebufferWidth uint32
	// The framebuffer's current height.
	FramebufferHeight uint32
	// Current generation of framebuffer size. If it does not match FramebufferSizeLastGeneration,
	// the swapchain must be recreated.
	FramebufferSizeGeneration uint64
	// The generation of the framebuffer when it was last created.
	FramebufferSizeLastGeneration uint64

	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	debugMessenger vk.DebugReportCallback

	Device    *VulkanDevice
	Swapchain *VulkanSwapchain

	rtx *rtxDispatch
}

// FindMemoryIndex returns the first memory type allowed by typeFilter with all of propertyFlags.
func (vc *VulkanContext) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) (uint32, error) {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(vc.Device.PhysicalDevice, &memoryProperties)
	memoryProperties.Deref()

	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		memoryProperties.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && memoryProperties.MemoryTypes[i].PropertyFlags&propertyFlags == propertyFlags {
			return i, nil
		}
	}
	err := fmt.Errorf("unable to find suitable memory type for filter %#x and flags %#x", typeFilter, uint32(propertyFlags))
	core.LogWarn(err.Error())
	return 0, err
}

func (vc *VulkanContext) Limits() metadata.DeviceLimits {
	return metadata.DeviceLimits{
		MaxRayRecursionDepth: vc.Device.RayTracing.MaxRecursionDepth,
		MaxPushConstantsSize: vc.Device.RayTracing.MaxPushConstantsSize,
	}
}

func (vc *VulkanContext) WaitIdle() error {
	return vkCheck(vk.DeviceWaitIdle(vc.Device.LogicalDevice), "vkDeviceWaitIdle")
}

// allocateMemory allocates memory matching requirements. deviceAddress chains the allocate flags
// needed by buffers whose address is taken.
func (vc *VulkanContext) allocateMemory(requirements vk.MemoryRequirements, flags vk.MemoryPropertyFlags, deviceAddress bool) (vk.DeviceMemory, error) {
	index, err := vc.FindMemoryIndex(requirements.MemoryTypeBits, flags)
	if err != nil {
		return vk.NullDeviceMemory, err
	}
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: index,
	}
	if deviceAddress {
		allocateInfo.PNext = deviceAddressAllocation()
	}
	var memory vk.DeviceMemory
	if err := vkCheck(vk.AllocateMemory(vc.Device.LogicalDevice, &allocateInfo, vc.Allocator, &memory), "vkAllocateMemory"); err != nil {
		return vk.NullDeviceMemory, err
	}
	return memory, nil
}
