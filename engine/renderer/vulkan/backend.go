package vulkan

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/platform"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

// VulkanRenderer owns the Vulkan context and drives one frame at a time. Every frame
// is submitted and waited on before the next one begins.
type VulkanRenderer struct {
	platform                *platform.Platform
	FrameNumber             uint64
	context                 *VulkanContext
	cachedFramebufferWidth  uint32
	cachedFramebufferHeight uint32

	validation bool

	commandBuffer  *VulkanCommandBuffer
	inFlight       *VulkanFence
	imageAvailable vk.Semaphore
	renderComplete vk.Semaphore
	imageIndex     uint32
	target         *Image

	recreatingSwapchain bool
}

func New(p *platform.Platform, validation bool) *VulkanRenderer {
	return &VulkanRenderer{
		platform:   p,
		validation: validation,
		context: &VulkanContext{
			Allocator: nil,
			Device:    &VulkanDevice{},
		},
	}
}

// Device exposes the context as the backend agnostic resource factory.
func (vr *VulkanRenderer) Device() metadata.Device {
	return vr.context
}

// Extent is the current swapchain size.
func (vr *VulkanRenderer) Extent() (uint32, uint32) {
	return vr.context.FramebufferWidth, vr.context.FramebufferHeight
}

// SurfaceFormat is the format of the presentable images.
func (vr *VulkanRenderer) SurfaceFormat() metadata.Format {
	if vr.context.Swapchain == nil {
		return metadata.FormatUndefined
	}
	return metadataFormat(vr.context.Swapchain.ImageFormat.Format)
}

func (vr *VulkanRenderer) Initialize(appName string, appWidth, appHeight uint32) error {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		err := fmt.Errorf("GetInstanceProcAddress is nil")
		core.LogError(err.Error())
		return err
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return err
	}

	vr.context.FramebufferWidth = appWidth
	vr.context.FramebufferHeight = appHeight

	if err := vr.createInstance(appName); err != nil {
		return err
	}

	rtx, err := newRtxDispatch(procAddr, vr.context.Instance)
	if err != nil {
		core.LogError(err.Error())
		return fmt.Errorf("%w: %s", core.ErrNoSuitableGPU, err)
	}
	vr.context.rtx = rtx

	if vr.validation {
		if err := vr.createDebugCallback(); err != nil {
			return err
		}
	}

	core.LogDebug("Creating Vulkan surface...")
	surface, err := vr.platform.Window.CreateWindowSurface(vr.context.Instance, nil)
	if err != nil {
		core.LogError("Failed to create platform surface: %s", err)
		return err
	}
	vr.context.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")

	if err := DeviceCreate(vr.context); err != nil {
		core.LogError("Failed to create device: %s", err)
		return err
	}

	sc, err := SwapchainCreate(vr.context, vr.context.FramebufferWidth, vr.context.FramebufferHeight)
	if err != nil {
		return err
	}
	vr.context.Swapchain = sc
	vr.context.FramebufferWidth = sc.Extent.Width
	vr.context.FramebufferHeight = sc.Extent.Height

	cb, err := NewVulkanCommandBuffer(vr.context, vr.context.Device.GraphicsCommandPool, true)
	if err != nil {
		return err
	}
	vr.commandBuffer = cb
	core.LogDebug("Vulkan command buffer created.")

	if vr.imageAvailable, err = vr.createSemaphore(); err != nil {
		return err
	}
	if vr.renderComplete, err = vr.createSemaphore(); err != nil {
		return err
	}
	if vr.inFlight, err = NewFence(vr.context, false); err != nil {
		return err
	}

	core.LogInfo("Vulkan renderer initialized successfully.")
	return nil
}

func (vr *VulkanRenderer) createInstance(appName string) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 2, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Lumen"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	requiredExtensions := []string{"VK_KHR_surface"}
	requiredExtensions = append(requiredExtensions, vr.platform.GetRequiredExtensionNames()...)
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	var layers []string
	if vr.validation {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
		if vr.hasLayer(validationLayer) {
			layers = append(layers, validationLayer)
		} else {
			core.LogWarn("Validation layer %s is missing, continuing without it.", validationLayer)
		}
	}

	core.LogDebug("Required extensions: %v", requiredExtensions)
	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if err := vkCheck(vk.CreateInstance(&createInfo, vr.context.Allocator, &vr.context.Instance), "vkCreateInstance"); err != nil {
		return err
	}
	if err := vk.InitInstance(vr.context.Instance); err != nil {
		core.LogError(err.Error())
		return err
	}
	core.LogInfo("Vulkan Instance created.")
	return nil
}

func (vr *VulkanRenderer) hasLayer(name string) bool {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return false
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		if cString(available[i].LayerName[:]) == name {
			return true
		}
	}
	return false
}

func (vr *VulkanRenderer) createDebugCallback() error {
	core.LogDebug("Creating Vulkan debugger...")
	debugCreateInfo := vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: dbgCallbackFunc,
	}

	var dbg vk.DebugReportCallback
	if err := vk.Error(vk.CreateDebugReportCallback(vr.context.Instance, &debugCreateInfo, nil, &dbg)); err != nil {
		core.LogError("vk.CreateDebugReportCallback failed with %s", err)
		return err
	}
	vr.context.debugMessenger = dbg
	core.LogDebug("Vulkan debugger created.")
	return nil
}

func (vr *VulkanRenderer) createSemaphore() (vk.Semaphore, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if err := vkCheck(vk.CreateSemaphore(vr.context.Device.LogicalDevice, &semaphoreCreateInfo, vr.context.Allocator, &semaphore), "vkCreateSemaphore"); err != nil {
		return vk.NullSemaphore, err
	}
	return semaphore, nil
}

func (vr *VulkanRenderer) destroySemaphore(semaphore *vk.Semaphore) {
	if *semaphore != vk.NullSemaphore {
		vk.DestroySemaphore(vr.context.Device.LogicalDevice, *semaphore, vr.context.Allocator)
		*semaphore = vk.NullSemaphore
	}
}

func (vr *VulkanRenderer) Shutdown() error {
	if vr.context.Device != nil && vr.context.Device.LogicalDevice != nil {
		vk.DeviceWaitIdle(vr.context.Device.LogicalDevice)

		// Destroy in the opposite order of creation.
		vr.destroySemaphore(&vr.imageAvailable)
		vr.destroySemaphore(&vr.renderComplete)
		if vr.inFlight != nil {
			vr.inFlight.Destroy(vr.context)
			vr.inFlight = nil
		}
		if vr.commandBuffer != nil {
			vr.commandBuffer.Free(vr.context, vr.context.Device.GraphicsCommandPool)
			vr.commandBuffer = nil
		}
		if vr.context.Swapchain != nil {
			vr.context.Swapchain.SwapchainDestroy(vr.context)
			vr.context.Swapchain = nil
		}

		core.LogDebug("Destroying Vulkan device...")
		DeviceDestroy(vr.context)
	}

	core.LogDebug("Destroying Vulkan surface...")
	if vr.context.Surface != vk.NullSurface {
		vk.DestroySurface(vr.context.Instance, vr.context.Surface, vr.context.Allocator)
		vr.context.Surface = vk.NullSurface
	}

	if vr.context.debugMessenger != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(vr.context.Instance, vr.context.debugMessenger, vr.context.Allocator)
		vr.context.debugMessenger = vk.NullDebugReportCallback
	}

	if vr.context.rtx != nil {
		vr.context.rtx.release()
		vr.context.rtx = nil
	}

	core.LogDebug("Destroying Vulkan instance...")
	if vr.context.Instance != nil {
		vk.DestroyInstance(vr.context.Instance, vr.context.Allocator)
		vr.context.Instance = nil
	}
	return nil
}

// Resized records the new framebuffer size. The swapchain is recreated by the next BeginFrame.
func (vr *VulkanRenderer) Resized(width, height uint32) {
	vr.cachedFramebufferWidth = width
	vr.cachedFramebufferHeight = height
	vr.context.FramebufferSizeGeneration++

	core.LogInfo("Vulkan renderer backend->resized: w/h/gen: %d/%d/%d", width, height, vr.context.FramebufferSizeGeneration)
}

// BeginFrame acquires the next swapchain image and starts recording. It returns
// core.ErrSwapchainBooting when the swapchain was recreated and the frame must be skipped.
func (vr *VulkanRenderer) BeginFrame() (metadata.CommandRecorder, metadata.Image, metadata.ImageView, error) {
	if vr.recreatingSwapchain {
		return nil, nil, nil, core.ErrSwapchainBooting
	}

	if vr.context.FramebufferSizeGeneration != vr.context.FramebufferSizeLastGeneration {
		if err := vr.recreateSwapchain(); err != nil {
			return nil, nil, nil, err
		}
		core.LogInfo("Resized, booting.")
		return nil, nil, nil, core.ErrSwapchainBooting
	}

	imageIndex, err := vr.context.Swapchain.AcquireNextImageIndex(vr.context, math.MaxUint64, vr.imageAvailable, vk.NullFence)
	if errors.Is(err, core.ErrSwapchainBooting) {
		if err := vr.recreateSwapchain(); err != nil {
			return nil, nil, nil, err
		}
		return nil, nil, nil, core.ErrSwapchainBooting
	}
	if err != nil {
		return nil, nil, nil, err
	}
	vr.imageIndex = imageIndex

	if err := vr.commandBuffer.Reset(); err != nil {
		return nil, nil, nil, err
	}
	if err := vr.commandBuffer.Begin(true, false, false); err != nil {
		return nil, nil, nil, err
	}

	// Presented contents are discarded.
	vr.target = vr.context.Swapchain.Images[imageIndex]
	vr.target.layout = metadata.ImageLayoutUndefined

	return newRecorder(vr.context, vr.commandBuffer), vr.target, vr.context.Swapchain.Views[imageIndex], nil
}

// EndFrame transitions the target for presentation, submits, waits for the GPU and presents.
func (vr *VulkanRenderer) EndFrame() error {
	recordImageBarrier(vr.commandBuffer.Handle, vr.target, metadata.ImageLayoutPresentSrc)
	if err := vr.commandBuffer.End(); err != nil {
		return err
	}

	if err := vr.inFlight.Reset(vr.context); err != nil {
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{vr.imageAvailable},
		PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{vr.commandBuffer.Handle},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{vr.renderComplete},
	}

	if err := lockPool.SafeQueueCall(vr.context.Device.GraphicsQueueIndex, func() error {
		return vkCheck(vk.QueueSubmit(vr.context.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, vr.inFlight.Handle), "vkQueueSubmit")
	}); err != nil {
		return err
	}
	vr.commandBuffer.UpdateSubmitted()

	if err := vr.inFlight.Wait(vr.context, math.MaxUint64); err != nil {
		return err
	}

	err := vr.context.Swapchain.Present(vr.context, vr.context.Device.PresentQueue, vr.renderComplete, vr.imageIndex)
	vr.FrameNumber++
	if errors.Is(err, core.ErrSwapchainBooting) {
		if err := vr.recreateSwapchain(); err != nil {
			return err
		}
		return core.ErrSwapchainBooting
	}
	return err
}

func (vr *VulkanRenderer) recreateSwapchain() error {
	if vr.recreatingSwapchain {
		core.LogDebug("recreateSwapchain called when already recreating. Booting.")
		return core.ErrSwapchainBooting
	}

	width, height := vr.cachedFramebufferWidth, vr.cachedFramebufferHeight
	if width == 0 && height == 0 {
		width, height = vr.context.FramebufferWidth, vr.context.FramebufferHeight
	}
	// Minimized windows keep the old swapchain until they are restored.
	if width == 0 || height == 0 {
		core.LogDebug("recreateSwapchain called when window is < 1 in a dimension. Booting.")
		return core.ErrSwapchainBooting
	}

	vr.recreatingSwapchain = true
	defer func() { vr.recreatingSwapchain = false }()

	if err := vkCheck(vk.DeviceWaitIdle(vr.context.Device.LogicalDevice), "vkDeviceWaitIdle"); err != nil {
		return err
	}

	if err := DeviceQuerySwapchainSupport(vr.context.Device.PhysicalDevice, vr.context.Surface, &vr.context.Device.SwapchainSupport); err != nil {
		return err
	}

	sc, err := vr.context.Swapchain.SwapchainRecreate(vr.context, width, height)
	if err != nil {
		return err
	}
	vr.context.Swapchain = sc
	vr.context.FramebufferWidth = sc.Extent.Width
	vr.context.FramebufferHeight = sc.Extent.Height
	vr.cachedFramebufferWidth = 0
	vr.cachedFramebufferHeight = 0
	vr.context.FramebufferSizeLastGeneration = vr.context.FramebufferSizeGeneration

	// A suboptimal acquire may have left the semaphore signaled.
	vr.destroySemaphore(&vr.imageAvailable)
	if vr.imageAvailable, err = vr.createSemaphore(); err != nil {
		return err
	}
	return nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
