package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
)

type VulkanDevice struct {
	PhysicalDevice     vk.PhysicalDevice
	LogicalDevice      vk.Device
	SwapchainSupport   VulkanSwapchainSupportInfo
	GraphicsQueueIndex uint32
	PresentQueueIndex  uint32

	GraphicsQueue vk.Queue
	PresentQueue  vk.Queue

	GraphicsCommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties
	RayTracing rayTracingProperties
}

type VulkanPhysicalDeviceRequirements struct {
	Graphics             bool
	Present              bool
	DeviceExtensionNames []string
	SamplerAnisotropy    bool
	RayTracing           bool
}

type VulkanPhysicalDeviceQueueFamilyInfo struct {
	GraphicsFamilyIndex uint32
	PresentFamilyIndex  uint32
	HasGraphics         bool
	HasPresent          bool
}

type physicalDeviceCandidate struct {
	handle     vk.PhysicalDevice
	properties vk.PhysicalDeviceProperties
	features   vk.PhysicalDeviceFeatures
	memory     vk.PhysicalDeviceMemoryProperties
	queues     VulkanPhysicalDeviceQueueFamilyInfo
	support    VulkanSwapchainSupportInfo
}

func DeviceCreate(context *VulkanContext) error {
	if err := SelectPhysicalDevice(context); err != nil {
		return err
	}

	core.LogInfo("Creating logical device...")

	// Do not create additional queues for shared indices.
	indices := []uint32{context.Device.GraphicsQueueIndex}
	if context.Device.PresentQueueIndex != context.Device.GraphicsQueueIndex {
		indices = append(indices, context.Device.PresentQueueIndex)
	}

	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i, index := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: index,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
		lockPool.SetQueueFamily(index)
	}

	deviceFeatures := vk.PhysicalDeviceFeatures{
		SamplerAnisotropy: vk.True,
	}

	extensionNames := append([]string{vk.KhrSwapchainExtensionName}, rayTracingExtensions...)
	available, err := deviceExtensions(context.Device.PhysicalDevice)
	if err != nil {
		return err
	}
	if available["VK_KHR_portability_subset"] {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensionNames = append(extensionNames, "VK_KHR_portability_subset")
	}

	chain, freeChain := newDeviceFeatureChain()
	defer freeChain()

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		PNext:                   chain,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}

	var logicalDevice vk.Device
	if err := vkCheck(vk.CreateDevice(context.Device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &logicalDevice), "vkCreateDevice"); err != nil {
		return err
	}
	context.Device.LogicalDevice = logicalDevice
	core.LogInfo("Logical device created.")

	if err := context.rtx.loadDevice(logicalDevice); err != nil {
		core.LogError(err.Error())
		return fmt.Errorf("%w: %s", core.ErrNoSuitableGPU, err)
	}

	var graphicsQueue, presentQueue vk.Queue
	vk.GetDeviceQueue(logicalDevice, context.Device.GraphicsQueueIndex, 0, &graphicsQueue)
	vk.GetDeviceQueue(logicalDevice, context.Device.PresentQueueIndex, 0, &presentQueue)
	context.Device.GraphicsQueue = graphicsQueue
	context.Device.PresentQueue = presentQueue
	core.LogInfo("Queues obtained.")

	// Create command pool for graphics queue.
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: context.Device.GraphicsQueueIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if err := vkCheck(vk.CreateCommandPool(logicalDevice, &poolCreateInfo, context.Allocator, &pool), "vkCreateCommandPool"); err != nil {
		return err
	}
	context.Device.GraphicsCommandPool = pool
	core.LogInfo("Graphics command pool created.")

	return nil
}

func DeviceDestroy(context *VulkanContext) {
	if context.Device == nil {
		return
	}
	context.Device.GraphicsQueue = nil
	context.Device.PresentQueue = nil

	if context.Device.LogicalDevice != nil {
		core.LogInfo("Destroying command pools...")
		if context.Device.GraphicsCommandPool != vk.NullCommandPool {
			vk.DestroyCommandPool(context.Device.LogicalDevice, context.Device.GraphicsCommandPool, context.Allocator)
			context.Device.GraphicsCommandPool = vk.NullCommandPool
		}

		core.LogInfo("Destroying logical device...")
		vk.DestroyDevice(context.Device.LogicalDevice, context.Allocator)
		context.Device.LogicalDevice = nil
	}

	// Physical devices are not destroyed.
	context.Device.PhysicalDevice = nil
	context.Device.SwapchainSupport = VulkanSwapchainSupportInfo{}
}

func DeviceQuerySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface, supportInfo *VulkanSwapchainSupportInfo) error {
	if err := vkCheck(vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &supportInfo.Capabilities), "vkGetPhysicalDeviceSurfaceCapabilitiesKHR"); err != nil {
		return err
	}
	supportInfo.Capabilities.Deref()
	supportInfo.Capabilities.CurrentExtent.Deref()
	supportInfo.Capabilities.MinImageExtent.Deref()
	supportInfo.Capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	if err := vkCheck(vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, nil), "vkGetPhysicalDeviceSurfaceFormatsKHR"); err != nil {
		return err
	}
	supportInfo.Formats = make([]vk.SurfaceFormat, formatCount)
	if formatCount != 0 {
		if err := vkCheck(vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, supportInfo.Formats), "vkGetPhysicalDeviceSurfaceFormatsKHR"); err != nil {
			return err
		}
		for i := range supportInfo.Formats {
			supportInfo.Formats[i].Deref()
		}
	}
	supportInfo.FormatCount = formatCount

	var presentModeCount uint32
	if err := vkCheck(vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &presentModeCount, nil), "vkGetPhysicalDeviceSurfacePresentModesKHR"); err != nil {
		return err
	}
	supportInfo.PresentModes = make([]vk.PresentMode, presentModeCount)
	if presentModeCount != 0 {
		if err := vkCheck(vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &presentModeCount, supportInfo.PresentModes), "vkGetPhysicalDeviceSurfacePresentModesKHR"); err != nil {
			return err
		}
	}
	supportInfo.PresentModeCount = presentModeCount
	return nil
}

// SelectPhysicalDevice picks a device meeting the requirements, preferring discrete GPUs.
func SelectPhysicalDevice(context *VulkanContext) error {
	var physicalDeviceCount uint32
	if err := vkCheck(vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, nil), "vkEnumeratePhysicalDevices"); err != nil {
		return err
	}
	if physicalDeviceCount == 0 {
		err := fmt.Errorf("%w: no devices which support Vulkan were found", core.ErrNoSuitableGPU)
		core.LogError(err.Error())
		return err
	}

	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if err := vkCheck(vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, physicalDevices), "vkEnumeratePhysicalDevices"); err != nil {
		return err
	}

	requirements := VulkanPhysicalDeviceRequirements{
		Graphics:             true,
		Present:              true,
		SamplerAnisotropy:    true,
		RayTracing:           true,
		DeviceExtensionNames: append([]string{vk.KhrSwapchainExtensionName}, rayTracingExtensions...),
	}

	var selected *physicalDeviceCandidate
	for _, physicalDevice := range physicalDevices {
		candidate := &physicalDeviceCandidate{handle: physicalDevice}
		vk.GetPhysicalDeviceProperties(physicalDevice, &candidate.properties)
		candidate.properties.Deref()
		candidate.properties.Limits.Deref()
		vk.GetPhysicalDeviceFeatures(physicalDevice, &candidate.features)
		candidate.features.Deref()
		vk.GetPhysicalDeviceMemoryProperties(physicalDevice, &candidate.memory)
		candidate.memory.Deref()

		if !PhysicalDeviceMeetsRequirements(context, candidate, &requirements) {
			continue
		}
		if selected == nil || (candidate.properties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu &&
			selected.properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu) {
			selected = candidate
		}
	}

	if selected == nil {
		err := fmt.Errorf("%w: no physical devices were found which meet the requirements", core.ErrNoSuitableGPU)
		core.LogError(err.Error())
		return err
	}

	logDeviceInfo(selected)

	context.Device.PhysicalDevice = selected.handle
	context.Device.GraphicsQueueIndex = selected.queues.GraphicsFamilyIndex
	context.Device.PresentQueueIndex = selected.queues.PresentFamilyIndex
	context.Device.SwapchainSupport = selected.support
	context.Device.Properties = selected.properties
	context.Device.Features = selected.features
	context.Device.Memory = selected.memory
	context.Device.RayTracing = context.rtx.properties(selected.handle)

	core.LogInfo("Physical device selected.")
	return nil
}

func PhysicalDeviceMeetsRequirements(context *VulkanContext, candidate *physicalDeviceCandidate, requirements *VulkanPhysicalDeviceRequirements) bool {
	name := cString(candidate.properties.DeviceName[:])

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(candidate.handle, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(candidate.handle, &queueFamilyCount, queueFamilies)

	queues := &candidate.queues
	for i := range queueFamilies {
		queueFamilies[i].Deref()
		index := uint32(i)

		if !queues.HasGraphics && vk.QueueFlagBits(queueFamilies[i].QueueFlags)&vk.QueueGraphicsBit != 0 {
			queues.GraphicsFamilyIndex = index
			queues.HasGraphics = true
		}

		var supportsPresent vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(candidate.handle, index, context.Surface, &supportsPresent); res != vk.Success {
			return false
		}
		// Prefer a family that does both.
		if supportsPresent == vk.True && (!queues.HasPresent || (queues.HasGraphics && queues.GraphicsFamilyIndex == index)) {
			queues.PresentFamilyIndex = index
			queues.HasPresent = true
		}
	}

	core.LogDebug("Graphics | Present | Name")
	core.LogDebug("    %t |    %t | %s", queues.HasGraphics, queues.HasPresent, name)

	if (requirements.Graphics && !queues.HasGraphics) || (requirements.Present && !queues.HasPresent) {
		core.LogInfo("Device '%s' does not meet queue requirements, skipping.", name)
		return false
	}

	if err := DeviceQuerySwapchainSupport(candidate.handle, context.Surface, &candidate.support); err != nil {
		return false
	}
	if candidate.support.FormatCount < 1 || candidate.support.PresentModeCount < 1 {
		core.LogInfo("Required swapchain support not present, skipping device '%s'.", name)
		return false
	}

	available, err := deviceExtensions(candidate.handle)
	if err != nil {
		return false
	}
	for _, required := range requirements.DeviceExtensionNames {
		if !available[required] {
			core.LogInfo("Required extension not found: '%s', skipping device '%s'.", required, name)
			return false
		}
	}

	if requirements.SamplerAnisotropy && candidate.features.SamplerAnisotropy == vk.False {
		core.LogInfo("Device '%s' does not support samplerAnisotropy, skipping.", name)
		return false
	}

	if requirements.RayTracing && !context.rtx.supportsRayTracing(candidate.handle) {
		core.LogInfo("Device '%s' lacks ray tracing or descriptor indexing features, skipping.", name)
		return false
	}

	return true
}

func deviceExtensions(physicalDevice vk.PhysicalDevice) (map[string]bool, error) {
	var count uint32
	if err := vkCheck(vk.EnumerateDeviceExtensionProperties(physicalDevice, "", &count, nil), "vkEnumerateDeviceExtensionProperties"); err != nil {
		return nil, err
	}
	properties := make([]vk.ExtensionProperties, count)
	if count != 0 {
		if err := vkCheck(vk.EnumerateDeviceExtensionProperties(physicalDevice, "", &count, properties), "vkEnumerateDeviceExtensionProperties"); err != nil {
			return nil, err
		}
	}
	out := make(map[string]bool, count)
	for i := range properties {
		properties[i].Deref()
		out[cString(properties[i].ExtensionName[:])] = true
	}
	return out, nil
}

func logDeviceInfo(candidate *physicalDeviceCandidate) {
	properties := candidate.properties
	core.LogInfo("Selected device: '%s'.", cString(properties.DeviceName[:]))
	switch properties.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		core.LogInfo("GPU type is Integrated.")
	case vk.PhysicalDeviceTypeDiscreteGpu:
		core.LogInfo("GPU type is Discrete.")
	case vk.PhysicalDeviceTypeVirtualGpu:
		core.LogInfo("GPU type is Virtual.")
	case vk.PhysicalDeviceTypeCpu:
		core.LogInfo("GPU type is CPU.")
	default:
		core.LogInfo("GPU type is Unknown.")
	}

	core.LogInfo(
		"GPU Driver version: %d.%d.%d",
		vk.Version.Major(vk.Version(properties.DriverVersion)),
		vk.Version.Minor(vk.Version(properties.DriverVersion)),
		vk.Version.Patch(vk.Version(properties.DriverVersion)),
	)
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version.Major(vk.Version(properties.ApiVersion)),
		vk.Version.Minor(vk.Version(properties.ApiVersion)),
		vk.Version.Patch(vk.Version(properties.ApiVersion)),
	)

	memory := candidate.memory
	for j := 0; j < int(memory.MemoryHeapCount); j++ {
		memory.MemoryHeaps[j].Deref()
		memorySizeGib := float64(memory.MemoryHeaps[j].Size) / 1024.0 / 1024.0 / 1024.0
		if vk.MemoryHeapFlagBits(memory.MemoryHeaps[j].Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", memorySizeGib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", memorySizeGib)
		}
	}
}
