package vulkan

/*
#define VK_NO_PROTOTYPES
#include <stdlib.h>
#include <string.h>
#include <vulkan/vulkan.h>

typedef struct lumenRtx {
	PFN_vkGetDeviceProcAddr getDeviceProcAddr;
	PFN_vkGetPhysicalDeviceFeatures2 getPhysicalDeviceFeatures2;
	PFN_vkGetPhysicalDeviceProperties2 getPhysicalDeviceProperties2;
	PFN_vkGetBufferDeviceAddress getBufferDeviceAddress;
	PFN_vkCmdClearColorImage cmdClearColorImage;
	PFN_vkCreateAccelerationStructureKHR createAccelerationStructure;
	PFN_vkDestroyAccelerationStructureKHR destroyAccelerationStructure;
	PFN_vkGetAccelerationStructureBuildSizesKHR getAccelerationStructureBuildSizes;
	PFN_vkGetAccelerationStructureDeviceAddressKHR getAccelerationStructureDeviceAddress;
	PFN_vkCmdBuildAccelerationStructuresKHR cmdBuildAccelerationStructures;
	PFN_vkCreateRayTracingPipelinesKHR createRayTracingPipelines;
	PFN_vkGetRayTracingShaderGroupHandlesKHR getRayTracingShaderGroupHandles;
	PFN_vkCmdTraceRaysKHR cmdTraceRays;
} lumenRtx;

typedef struct lumenRtProperties {
	uint32_t shaderGroupHandleSize;
	uint32_t shaderGroupHandleAlignment;
	uint32_t shaderGroupBaseAlignment;
	uint32_t maxRayRecursionDepth;
	uint32_t maxPushConstantsSize;
	uint32_t minScratchOffsetAlignment;
} lumenRtProperties;

typedef struct lumenTriangles {
	VkDeviceAddress vertexAddress;
	VkDeviceAddress indexAddress;
	uint32_t vertexStride;
	uint32_t maxVertex;
	uint32_t primitiveCount;
} lumenTriangles;

typedef struct lumenInstance {
	float transform[12];
	uint32_t customIndex;
	uint32_t mask;
	uint32_t hitGroup;
	VkDeviceAddress bottomLevel;
} lumenInstance;

typedef struct lumenStage {
	VkShaderModule module;
	uint32_t stage;
	const char* entry;
} lumenStage;

typedef struct lumenGroup {
	uint32_t type;
	uint32_t general;
	uint32_t closestHit;
	uint32_t anyHit;
} lumenGroup;

typedef struct lumenDeviceFeatures {
	VkPhysicalDeviceVulkan12Features vulkan12;
	VkPhysicalDeviceAccelerationStructureFeaturesKHR accel;
	VkPhysicalDeviceRayTracingPipelineFeaturesKHR rayTracing;
} lumenDeviceFeatures;

typedef struct lumenVariableCount {
	VkDescriptorSetVariableDescriptorCountAllocateInfo info;
	uint32_t count;
} lumenVariableCount;

typedef struct lumenAccelWrite {
	VkWriteDescriptorSetAccelerationStructureKHR info;
	VkAccelerationStructureKHR handle;
} lumenAccelWrite;

static VkMemoryAllocateFlagsInfo lumenDeviceAddressFlags = {
	VK_STRUCTURE_TYPE_MEMORY_ALLOCATE_FLAGS_INFO, NULL, VK_MEMORY_ALLOCATE_DEVICE_ADDRESS_BIT, 0,
};

static void* lumenDeviceAddressAllocation(void) {
	return &lumenDeviceAddressFlags;
}

static int lumenLoadInstance(lumenRtx* t, void* getInstanceProcAddr, VkInstance instance) {
	PFN_vkGetInstanceProcAddr get = (PFN_vkGetInstanceProcAddr)getInstanceProcAddr;
	t->getDeviceProcAddr = (PFN_vkGetDeviceProcAddr)get(instance, "vkGetDeviceProcAddr");
	t->getPhysicalDeviceFeatures2 = (PFN_vkGetPhysicalDeviceFeatures2)get(instance, "vkGetPhysicalDeviceFeatures2");
	t->getPhysicalDeviceProperties2 = (PFN_vkGetPhysicalDeviceProperties2)get(instance, "vkGetPhysicalDeviceProperties2");
	return t->getDeviceProcAddr != NULL && t->getPhysicalDeviceFeatures2 != NULL && t->getPhysicalDeviceProperties2 != NULL;
}

#define LUMEN_LOAD(field, type, name) \
	t->field = (type)t->getDeviceProcAddr(device, name); \
	if (t->field == NULL) return name;

static const char* lumenLoadDevice(lumenRtx* t, VkDevice device) {
	LUMEN_LOAD(getBufferDeviceAddress, PFN_vkGetBufferDeviceAddress, "vkGetBufferDeviceAddress")
	LUMEN_LOAD(cmdClearColorImage, PFN_vkCmdClearColorImage, "vkCmdClearColorImage")
	LUMEN_LOAD(createAccelerationStructure, PFN_vkCreateAccelerationStructureKHR, "vkCreateAccelerationStructureKHR")
	LUMEN_LOAD(destroyAccelerationStructure, PFN_vkDestroyAccelerationStructureKHR, "vkDestroyAccelerationStructureKHR")
	LUMEN_LOAD(getAccelerationStructureBuildSizes, PFN_vkGetAccelerationStructureBuildSizesKHR, "vkGetAccelerationStructureBuildSizesKHR")
	LUMEN_LOAD(getAccelerationStructureDeviceAddress, PFN_vkGetAccelerationStructureDeviceAddressKHR, "vkGetAccelerationStructureDeviceAddressKHR")
	LUMEN_LOAD(cmdBuildAccelerationStructures, PFN_vkCmdBuildAccelerationStructuresKHR, "vkCmdBuildAccelerationStructuresKHR")
	LUMEN_LOAD(createRayTracingPipelines, PFN_vkCreateRayTracingPipelinesKHR, "vkCreateRayTracingPipelinesKHR")
	LUMEN_LOAD(getRayTracingShaderGroupHandles, PFN_vkGetRayTracingShaderGroupHandlesKHR, "vkGetRayTracingShaderGroupHandlesKHR")
	LUMEN_LOAD(cmdTraceRays, PFN_vkCmdTraceRaysKHR, "vkCmdTraceRaysKHR")
	return NULL;
}

static int lumenSupportsRayTracing(lumenRtx* t, VkPhysicalDevice physicalDevice) {
	VkPhysicalDeviceRayTracingPipelineFeaturesKHR rt;
	VkPhysicalDeviceAccelerationStructureFeaturesKHR accel;
	VkPhysicalDeviceVulkan12Features v12;
	VkPhysicalDeviceFeatures2 features;
	memset(&rt, 0, sizeof(rt));
	memset(&accel, 0, sizeof(accel));
	memset(&v12, 0, sizeof(v12));
	memset(&features, 0, sizeof(features));
	rt.sType = VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_RAY_TRACING_PIPELINE_FEATURES_KHR;
	accel.sType = VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_ACCELERATION_STRUCTURE_FEATURES_KHR;
	accel.pNext = &rt;
	v12.sType = VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_VULKAN_1_2_FEATURES;
	v12.pNext = &accel;
	features.sType = VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_FEATURES_2;
	features.pNext = &v12;
	t->getPhysicalDeviceFeatures2(physicalDevice, &features);
	return rt.rayTracingPipeline && accel.accelerationStructure &&
		v12.bufferDeviceAddress && v12.descriptorIndexing &&
		v12.descriptorBindingPartiallyBound && v12.descriptorBindingVariableDescriptorCount &&
		v12.runtimeDescriptorArray && v12.shaderSampledImageArrayNonUniformIndexing;
}

static void lumenQueryProperties(lumenRtx* t, VkPhysicalDevice physicalDevice, lumenRtProperties* out) {
	VkPhysicalDeviceAccelerationStructurePropertiesKHR accel;
	VkPhysicalDeviceRayTracingPipelinePropertiesKHR rt;
	VkPhysicalDeviceProperties2 props;
	memset(&accel, 0, sizeof(accel));
	memset(&rt, 0, sizeof(rt));
	memset(&props, 0, sizeof(props));
	accel.sType = VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_ACCELERATION_STRUCTURE_PROPERTIES_KHR;
	rt.sType = VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_RAY_TRACING_PIPELINE_PROPERTIES_KHR;
	rt.pNext = &accel;
	props.sType = VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_PROPERTIES_2;
	props.pNext = &rt;
	t->getPhysicalDeviceProperties2(physicalDevice, &props);
	out->shaderGroupHandleSize = rt.shaderGroupHandleSize;
	out->shaderGroupHandleAlignment = rt.shaderGroupHandleAlignment;
	out->shaderGroupBaseAlignment = rt.shaderGroupBaseAlignment;
	out->maxRayRecursionDepth = rt.maxRayRecursionDepth;
	out->maxPushConstantsSize = props.properties.limits.maxPushConstantsSize;
	out->minScratchOffsetAlignment = accel.minAccelerationStructureScratchOffsetAlignment;
}

static lumenDeviceFeatures* lumenNewDeviceFeatures(void) {
	lumenDeviceFeatures* f = (lumenDeviceFeatures*)calloc(1, sizeof(lumenDeviceFeatures));
	if (f == NULL) return NULL;
	f->rayTracing.sType = VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_RAY_TRACING_PIPELINE_FEATURES_KHR;
	f->rayTracing.rayTracingPipeline = VK_TRUE;
	f->accel.sType = VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_ACCELERATION_STRUCTURE_FEATURES_KHR;
	f->accel.pNext = &f->rayTracing;
	f->accel.accelerationStructure = VK_TRUE;
	f->vulkan12.sType = VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_VULKAN_1_2_FEATURES;
	f->vulkan12.pNext = &f->accel;
	f->vulkan12.bufferDeviceAddress = VK_TRUE;
	f->vulkan12.descriptorIndexing = VK_TRUE;
	f->vulkan12.runtimeDescriptorArray = VK_TRUE;
	f->vulkan12.descriptorBindingPartiallyBound = VK_TRUE;
	f->vulkan12.descriptorBindingVariableDescriptorCount = VK_TRUE;
	f->vulkan12.shaderSampledImageArrayNonUniformIndexing = VK_TRUE;
	return f;
}

static void* lumenNewBindingFlags(const uint32_t* flags, uint32_t count) {
	VkDescriptorSetLayoutBindingFlagsCreateInfo* info = (VkDescriptorSetLayoutBindingFlagsCreateInfo*)calloc(
		1, sizeof(VkDescriptorSetLayoutBindingFlagsCreateInfo) + count * sizeof(VkDescriptorBindingFlags));
	if (info == NULL) return NULL;
	VkDescriptorBindingFlags* dst = (VkDescriptorBindingFlags*)(info + 1);
	for (uint32_t i = 0; i < count; i++) dst[i] = flags[i];
	info->sType = VK_STRUCTURE_TYPE_DESCRIPTOR_SET_LAYOUT_BINDING_FLAGS_CREATE_INFO;
	info->bindingCount = count;
	info->pBindingFlags = dst;
	return info;
}

static void* lumenNewVariableCount(uint32_t count) {
	lumenVariableCount* v = (lumenVariableCount*)calloc(1, sizeof(lumenVariableCount));
	if (v == NULL) return NULL;
	v->count = count;
	v->info.sType = VK_STRUCTURE_TYPE_DESCRIPTOR_SET_VARIABLE_DESCRIPTOR_COUNT_ALLOCATE_INFO;
	v->info.descriptorSetCount = 1;
	v->info.pDescriptorCounts = &v->count;
	return v;
}

static void* lumenNewAccelWrite(VkAccelerationStructureKHR handle) {
	lumenAccelWrite* w = (lumenAccelWrite*)calloc(1, sizeof(lumenAccelWrite));
	if (w == NULL) return NULL;
	w->handle = handle;
	w->info.sType = VK_STRUCTURE_TYPE_WRITE_DESCRIPTOR_SET_ACCELERATION_STRUCTURE_KHR;
	w->info.accelerationStructureCount = 1;
	w->info.pAccelerationStructures = &w->handle;
	return w;
}

static VkDeviceAddress lumenBufferAddress(lumenRtx* t, VkDevice device, VkBuffer buffer) {
	VkBufferDeviceAddressInfo info;
	memset(&info, 0, sizeof(info));
	info.sType = VK_STRUCTURE_TYPE_BUFFER_DEVICE_ADDRESS_INFO;
	info.buffer = buffer;
	return t->getBufferDeviceAddress(device, &info);
}

static void lumenCmdClearColor(lumenRtx* t, VkCommandBuffer cmd, VkImage image, uint32_t layout, float r, float g, float b, float a) {
	VkClearColorValue color;
	VkImageSubresourceRange range;
	memset(&color, 0, sizeof(color));
	memset(&range, 0, sizeof(range));
	color.float32[0] = r;
	color.float32[1] = g;
	color.float32[2] = b;
	color.float32[3] = a;
	range.aspectMask = VK_IMAGE_ASPECT_COLOR_BIT;
	range.levelCount = 1;
	range.layerCount = 1;
	t->cmdClearColorImage(cmd, image, (VkImageLayout)layout, &color, 1, &range);
}

static void lumenFillTriangles(const lumenTriangles* in, uint32_t count, VkAccelerationStructureGeometryKHR* geometries, VkAccelerationStructureBuildRangeInfoKHR* ranges) {
	for (uint32_t i = 0; i < count; i++) {
		VkAccelerationStructureGeometryKHR* g = &geometries[i];
		memset(g, 0, sizeof(*g));
		g->sType = VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_GEOMETRY_KHR;
		g->geometryType = VK_GEOMETRY_TYPE_TRIANGLES_KHR;
		g->flags = VK_GEOMETRY_OPAQUE_BIT_KHR;
		g->geometry.triangles.sType = VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_GEOMETRY_TRIANGLES_DATA_KHR;
		g->geometry.triangles.vertexFormat = VK_FORMAT_R32G32B32_SFLOAT;
		g->geometry.triangles.vertexData.deviceAddress = in[i].vertexAddress;
		g->geometry.triangles.vertexStride = in[i].vertexStride;
		g->geometry.triangles.maxVertex = in[i].maxVertex;
		g->geometry.triangles.indexType = VK_INDEX_TYPE_UINT32;
		g->geometry.triangles.indexData.deviceAddress = in[i].indexAddress;
		if (ranges != NULL) {
			memset(&ranges[i], 0, sizeof(ranges[i]));
			ranges[i].primitiveCount = in[i].primitiveCount;
		}
	}
}

static void lumenFillInstances(VkAccelerationStructureGeometryKHR* g, VkDeviceAddress instances) {
	memset(g, 0, sizeof(*g));
	g->sType = VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_GEOMETRY_KHR;
	g->geometryType = VK_GEOMETRY_TYPE_INSTANCES_KHR;
	g->flags = VK_GEOMETRY_OPAQUE_BIT_KHR;
	g->geometry.instances.sType = VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_GEOMETRY_INSTANCES_DATA_KHR;
	g->geometry.instances.arrayOfPointers = VK_FALSE;
	g->geometry.instances.data.deviceAddress = instances;
}

static void lumenBuildInfo(VkAccelerationStructureBuildGeometryInfoKHR* info, int topLevel, const VkAccelerationStructureGeometryKHR* geometries, uint32_t count) {
	memset(info, 0, sizeof(*info));
	info->sType = VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_BUILD_GEOMETRY_INFO_KHR;
	info->type = topLevel ? VK_ACCELERATION_STRUCTURE_TYPE_TOP_LEVEL_KHR : VK_ACCELERATION_STRUCTURE_TYPE_BOTTOM_LEVEL_KHR;
	info->flags = VK_BUILD_ACCELERATION_STRUCTURE_PREFER_FAST_TRACE_BIT_KHR;
	info->mode = VK_BUILD_ACCELERATION_STRUCTURE_MODE_BUILD_KHR;
	info->geometryCount = count;
	info->pGeometries = geometries;
}

static void lumenSizes(lumenRtx* t, VkDevice device, const VkAccelerationStructureBuildGeometryInfoKHR* info, const uint32_t* primitives, VkDeviceSize* accelSize, VkDeviceSize* scratchSize) {
	VkAccelerationStructureBuildSizesInfoKHR sizes;
	memset(&sizes, 0, sizeof(sizes));
	sizes.sType = VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_BUILD_SIZES_INFO_KHR;
	t->getAccelerationStructureBuildSizes(device, VK_ACCELERATION_STRUCTURE_BUILD_TYPE_DEVICE_KHR, info, primitives, &sizes);
	*accelSize = sizes.accelerationStructureSize;
	*scratchSize = sizes.buildScratchSize;
}

static VkResult lumenBottomLevelSizes(lumenRtx* t, VkDevice device, const lumenTriangles* in, uint32_t count, VkDeviceSize* accelSize, VkDeviceSize* scratchSize) {
	VkAccelerationStructureGeometryKHR* geometries = (VkAccelerationStructureGeometryKHR*)calloc(count, sizeof(VkAccelerationStructureGeometryKHR));
	uint32_t* primitives = (uint32_t*)calloc(count, sizeof(uint32_t));
	if (geometries == NULL || primitives == NULL) {
		free(geometries);
		free(primitives);
		return VK_ERROR_OUT_OF_HOST_MEMORY;
	}
	lumenFillTriangles(in, count, geometries, NULL);
	for (uint32_t i = 0; i < count; i++) primitives[i] = in[i].primitiveCount;
	VkAccelerationStructureBuildGeometryInfoKHR info;
	lumenBuildInfo(&info, 0, geometries, count);
	lumenSizes(t, device, &info, primitives, accelSize, scratchSize);
	free(geometries);
	free(primitives);
	return VK_SUCCESS;
}

static void lumenTopLevelSizes(lumenRtx* t, VkDevice device, uint32_t instanceCount, VkDeviceSize* accelSize, VkDeviceSize* scratchSize) {
	VkAccelerationStructureGeometryKHR geometry;
	lumenFillInstances(&geometry, 0);
	VkAccelerationStructureBuildGeometryInfoKHR info;
	lumenBuildInfo(&info, 1, &geometry, 1);
	lumenSizes(t, device, &info, &instanceCount, accelSize, scratchSize);
}

static VkResult lumenCreateAccel(lumenRtx* t, VkDevice device, VkBuffer buffer, VkDeviceSize size, int topLevel, VkAccelerationStructureKHR* out, VkDeviceAddress* address) {
	VkAccelerationStructureCreateInfoKHR info;
	memset(&info, 0, sizeof(info));
	info.sType = VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_CREATE_INFO_KHR;
	info.buffer = buffer;
	info.size = size;
	info.type = topLevel ? VK_ACCELERATION_STRUCTURE_TYPE_TOP_LEVEL_KHR : VK_ACCELERATION_STRUCTURE_TYPE_BOTTOM_LEVEL_KHR;
	VkResult res = t->createAccelerationStructure(device, &info, NULL, out);
	if (res != VK_SUCCESS) return res;
	VkAccelerationStructureDeviceAddressInfoKHR addressInfo;
	memset(&addressInfo, 0, sizeof(addressInfo));
	addressInfo.sType = VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_DEVICE_ADDRESS_INFO_KHR;
	addressInfo.accelerationStructure = *out;
	*address = t->getAccelerationStructureDeviceAddress(device, &addressInfo);
	return VK_SUCCESS;
}

static void lumenDestroyAccel(lumenRtx* t, VkDevice device, VkAccelerationStructureKHR handle) {
	t->destroyAccelerationStructure(device, handle, NULL);
}

static VkResult lumenCmdBuildBottomLevel(lumenRtx* t, VkCommandBuffer cmd, VkAccelerationStructureKHR dst, VkDeviceAddress scratch, const lumenTriangles* in, uint32_t count) {
	VkAccelerationStructureGeometryKHR* geometries = (VkAccelerationStructureGeometryKHR*)calloc(count, sizeof(VkAccelerationStructureGeometryKHR));
	VkAccelerationStructureBuildRangeInfoKHR* ranges = (VkAccelerationStructureBuildRangeInfoKHR*)calloc(count, sizeof(VkAccelerationStructureBuildRangeInfoKHR));
	if (geometries == NULL || ranges == NULL) {
		free(geometries);
		free(ranges);
		return VK_ERROR_OUT_OF_HOST_MEMORY;
	}
	lumenFillTriangles(in, count, geometries, ranges);
	VkAccelerationStructureBuildGeometryInfoKHR info;
	lumenBuildInfo(&info, 0, geometries, count);
	info.dstAccelerationStructure = dst;
	info.scratchData.deviceAddress = scratch;
	const VkAccelerationStructureBuildRangeInfoKHR* pRanges = ranges;
	t->cmdBuildAccelerationStructures(cmd, 1, &info, &pRanges);
	free(geometries);
	free(ranges);
	return VK_SUCCESS;
}

static void lumenCmdBuildTopLevel(lumenRtx* t, VkCommandBuffer cmd, VkAccelerationStructureKHR dst, VkDeviceAddress scratch, VkDeviceAddress instances, uint32_t count) {
	VkAccelerationStructureGeometryKHR geometry;
	lumenFillInstances(&geometry, instances);
	VkAccelerationStructureBuildGeometryInfoKHR info;
	lumenBuildInfo(&info, 1, &geometry, 1);
	info.dstAccelerationStructure = dst;
	info.scratchData.deviceAddress = scratch;
	VkAccelerationStructureBuildRangeInfoKHR range;
	memset(&range, 0, sizeof(range));
	range.primitiveCount = count;
	const VkAccelerationStructureBuildRangeInfoKHR* pRange = &range;
	t->cmdBuildAccelerationStructures(cmd, 1, &info, &pRange);
}

static size_t lumenInstanceSize(void) {
	return sizeof(VkAccelerationStructureInstanceKHR);
}

static void lumenPackInstances(const lumenInstance* in, uint32_t count, void* out) {
	VkAccelerationStructureInstanceKHR* dst = (VkAccelerationStructureInstanceKHR*)out;
	for (uint32_t i = 0; i < count; i++) {
		memset(&dst[i], 0, sizeof(dst[i]));
		memcpy(dst[i].transform.matrix, in[i].transform, sizeof(float) * 12);
		dst[i].instanceCustomIndex = in[i].customIndex & 0xFFFFFF;
		dst[i].mask = in[i].mask & 0xFF;
		dst[i].instanceShaderBindingTableRecordOffset = in[i].hitGroup & 0xFFFFFF;
		dst[i].flags = VK_GEOMETRY_INSTANCE_TRIANGLE_FACING_CULL_DISABLE_BIT_KHR;
		dst[i].accelerationStructureReference = in[i].bottomLevel;
	}
}

static VkResult lumenCreateRayTracingPipeline(lumenRtx* t, VkDevice device, VkPipelineLayout layout,
	const lumenStage* stages, uint32_t stageCount, const lumenGroup* groups, uint32_t groupCount,
	uint32_t maxRecursion, VkPipeline* out) {
	VkPipelineShaderStageCreateInfo* s = (VkPipelineShaderStageCreateInfo*)calloc(stageCount, sizeof(VkPipelineShaderStageCreateInfo));
	VkRayTracingShaderGroupCreateInfoKHR* g = (VkRayTracingShaderGroupCreateInfoKHR*)calloc(groupCount, sizeof(VkRayTracingShaderGroupCreateInfoKHR));
	if (s == NULL || g == NULL) {
		free(s);
		free(g);
		return VK_ERROR_OUT_OF_HOST_MEMORY;
	}
	for (uint32_t i = 0; i < stageCount; i++) {
		s[i].sType = VK_STRUCTURE_TYPE_PIPELINE_SHADER_STAGE_CREATE_INFO;
		s[i].stage = (VkShaderStageFlagBits)stages[i].stage;
		s[i].module = stages[i].module;
		s[i].pName = stages[i].entry;
	}
	for (uint32_t i = 0; i < groupCount; i++) {
		g[i].sType = VK_STRUCTURE_TYPE_RAY_TRACING_SHADER_GROUP_CREATE_INFO_KHR;
		g[i].type = (VkRayTracingShaderGroupTypeKHR)groups[i].type;
		g[i].generalShader = groups[i].general;
		g[i].closestHitShader = groups[i].closestHit;
		g[i].anyHitShader = groups[i].anyHit;
		g[i].intersectionShader = VK_SHADER_UNUSED_KHR;
	}
	VkRayTracingPipelineCreateInfoKHR info;
	memset(&info, 0, sizeof(info));
	info.sType = VK_STRUCTURE_TYPE_RAY_TRACING_PIPELINE_CREATE_INFO_KHR;
	info.stageCount = stageCount;
	info.pStages = s;
	info.groupCount = groupCount;
	info.pGroups = g;
	info.maxPipelineRayRecursionDepth = maxRecursion;
	info.layout = layout;
	VkResult res = t->createRayTracingPipelines(device, VK_NULL_HANDLE, VK_NULL_HANDLE, 1, &info, NULL, out);
	free(s);
	free(g);
	return res;
}

static VkResult lumenGroupHandles(lumenRtx* t, VkDevice device, VkPipeline pipeline, uint32_t groupCount, size_t size, void* out) {
	return t->getRayTracingShaderGroupHandles(device, pipeline, 0, groupCount, size, out);
}

static void lumenCmdTraceRays(lumenRtx* t, VkCommandBuffer cmd, const VkStridedDeviceAddressRegionKHR* regions, uint32_t width, uint32_t height, uint32_t depth) {
	t->cmdTraceRays(cmd, &regions[0], &regions[1], &regions[2], &regions[3], width, height, depth);
}
*/
import "C"

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// Ray tracing enums and bits goki/vulkan does not expose.
const (
	pipelineBindPointRayTracing = vk.PipelineBindPoint(1000165000)
	descriptorTypeAccelStruct   = vk.DescriptorType(1000150000)

	shaderStageRaygen     = vk.ShaderStageFlagBits(0x00000100)
	shaderStageAnyHit     = vk.ShaderStageFlagBits(0x00000200)
	shaderStageClosestHit = vk.ShaderStageFlagBits(0x00000400)
	shaderStageMiss       = vk.ShaderStageFlagBits(0x00000800)

	bufferUsageShaderBindingTable = vk.BufferUsageFlagBits(0x00000400)
	bufferUsageDeviceAddress      = vk.BufferUsageFlagBits(0x00020000)
	bufferUsageAccelBuildInput    = vk.BufferUsageFlagBits(0x00080000)
	bufferUsageAccelStorage       = vk.BufferUsageFlagBits(0x00100000)

	pipelineStageRayTracing = vk.PipelineStageFlagBits(0x00200000)
	pipelineStageAccelBuild = vk.PipelineStageFlagBits(0x02000000)

	accessAccelRead  = vk.AccessFlagBits(0x00200000)
	accessAccelWrite = vk.AccessFlagBits(0x00400000)

	descriptorBindingPartiallyBound = uint32(0x00000004)
	descriptorBindingVariableCount  = uint32(0x00000008)

	shaderGroupGeneral   = uint32(0)
	shaderGroupTriangles = uint32(1)
	shaderUnused         = ^uint32(0)
)

// Device extensions a GPU must offer to run the ray tracing pass.
var rayTracingExtensions = []string{
	"VK_KHR_acceleration_structure",
	"VK_KHR_ray_tracing_pipeline",
	"VK_KHR_deferred_host_operations",
}

type rayTracingProperties struct {
	HandleSize           uint32
	HandleAlignment      uint32
	BaseAlignment        uint32
	MaxRecursionDepth    uint32
	MaxPushConstantsSize uint32
	ScratchAlignment     uint32
}

// accelHandle is an opaque VkAccelerationStructureKHR.
type accelHandle unsafe.Pointer

type triangleGeometry struct {
	VertexAddress  uint64
	IndexAddress   uint64
	VertexStride   uint32
	MaxVertex      uint32
	PrimitiveCount uint32
}

type instanceRecord struct {
	// Transform is the row major 3x4 object to world matrix.
	Transform   [12]float32
	CustomIndex uint32
	Mask        uint32
	HitGroup    uint32
	BottomLevel uint64
}

type rtStage struct {
	Module vk.ShaderModule
	Stage  vk.ShaderStageFlagBits
	Entry  string
}

type rtGroup struct {
	Kind       uint32
	General    uint32
	ClosestHit uint32
	AnyHit     uint32
}

type stridedRegion struct {
	Address uint64
	Stride  uint64
	Size    uint64
}

/** @brief Function table for the KHR ray tracing and Vulkan 1.2 entry points. */
type rtxDispatch struct {
	table *C.lumenRtx
}

func newRtxDispatch(getInstanceProcAddr unsafe.Pointer, instance vk.Instance) (*rtxDispatch, error) {
	table := (*C.lumenRtx)(C.calloc(1, C.size_t(unsafe.Sizeof(C.lumenRtx{}))))
	if table == nil {
		return nil, fmt.Errorf("failed to allocate the ray tracing dispatch table")
	}
	if C.lumenLoadInstance(table, getInstanceProcAddr, cInstance(instance)) == 0 {
		C.free(unsafe.Pointer(table))
		return nil, fmt.Errorf("instance does not expose vkGetPhysicalDeviceFeatures2")
	}
	return &rtxDispatch{table: table}, nil
}

func (r *rtxDispatch) loadDevice(device vk.Device) error {
	if missing := C.lumenLoadDevice(r.table, cDevice(device)); missing != nil {
		return fmt.Errorf("device does not expose %s", C.GoString(missing))
	}
	return nil
}

func (r *rtxDispatch) release() {
	if r.table != nil {
		C.free(unsafe.Pointer(r.table))
		r.table = nil
	}
}

func (r *rtxDispatch) supportsRayTracing(physicalDevice vk.PhysicalDevice) bool {
	return C.lumenSupportsRayTracing(r.table, cPhysicalDevice(physicalDevice)) != 0
}

func (r *rtxDispatch) properties(physicalDevice vk.PhysicalDevice) rayTracingProperties {
	var props C.lumenRtProperties
	C.lumenQueryProperties(r.table, cPhysicalDevice(physicalDevice), &props)
	return rayTracingProperties{
		HandleSize:           uint32(props.shaderGroupHandleSize),
		HandleAlignment:      uint32(props.shaderGroupHandleAlignment),
		BaseAlignment:        uint32(props.shaderGroupBaseAlignment),
		MaxRecursionDepth:    uint32(props.maxRayRecursionDepth),
		MaxPushConstantsSize: uint32(props.maxPushConstantsSize),
		ScratchAlignment:     uint32(props.minScratchOffsetAlignment),
	}
}

// newDeviceFeatureChain returns the pNext chain enabling ray tracing, buffer device
// addresses and descriptor indexing. free must be called once the device exists.
func newDeviceFeatureChain() (chain unsafe.Pointer, free func()) {
	f := C.lumenNewDeviceFeatures()
	return unsafe.Pointer(f), func() { C.free(unsafe.Pointer(f)) }
}

// deviceAddressAllocation is the pNext for allocations backing device addressable buffers.
func deviceAddressAllocation() unsafe.Pointer {
	return C.lumenDeviceAddressAllocation()
}

func newBindingFlags(flags []uint32) (unsafe.Pointer, func()) {
	p := C.lumenNewBindingFlags((*C.uint32_t)(unsafe.Pointer(&flags[0])), C.uint32_t(len(flags)))
	return p, func() { C.free(p) }
}

func newVariableCountInfo(count uint32) (unsafe.Pointer, func()) {
	p := C.lumenNewVariableCount(C.uint32_t(count))
	return p, func() { C.free(p) }
}

func newAccelerationStructureWrite(handle accelHandle) (unsafe.Pointer, func()) {
	p := C.lumenNewAccelWrite(C.VkAccelerationStructureKHR(handle))
	return p, func() { C.free(p) }
}

func (r *rtxDispatch) bufferAddress(device vk.Device, buffer vk.Buffer) uint64 {
	return uint64(C.lumenBufferAddress(r.table, cDevice(device), C.VkBuffer(unsafe.Pointer(buffer))))
}

func (r *rtxDispatch) cmdClearColorImage(cmd vk.CommandBuffer, image vk.Image, layout vk.ImageLayout, color metadata.Color) {
	C.lumenCmdClearColor(r.table, cCommandBuffer(cmd), C.VkImage(unsafe.Pointer(image)), C.uint32_t(layout),
		C.float(color.R), C.float(color.G), C.float(color.B), C.float(color.A))
}

func toCTriangles(geometries []triangleGeometry) []C.lumenTriangles {
	out := make([]C.lumenTriangles, len(geometries))
	for i, g := range geometries {
		out[i] = C.lumenTriangles{
			vertexAddress:  C.VkDeviceAddress(g.VertexAddress),
			indexAddress:   C.VkDeviceAddress(g.IndexAddress),
			vertexStride:   C.uint32_t(g.VertexStride),
			maxVertex:      C.uint32_t(g.MaxVertex),
			primitiveCount: C.uint32_t(g.PrimitiveCount),
		}
	}
	return out
}

func (r *rtxDispatch) bottomLevelSizes(device vk.Device, geometries []triangleGeometry) (accelSize, scratchSize uint64, err error) {
	in := toCTriangles(geometries)
	var a, s C.VkDeviceSize
	if res := vk.Result(C.lumenBottomLevelSizes(r.table, cDevice(device), &in[0], C.uint32_t(len(in)), &a, &s)); res != vk.Success {
		return 0, 0, fmt.Errorf("bottom level size query failed with %s", VulkanResultString(res, true))
	}
	return uint64(a), uint64(s), nil
}

func (r *rtxDispatch) topLevelSizes(device vk.Device, instanceCount uint32) (accelSize, scratchSize uint64) {
	var a, s C.VkDeviceSize
	C.lumenTopLevelSizes(r.table, cDevice(device), C.uint32_t(instanceCount), &a, &s)
	return uint64(a), uint64(s)
}

func (r *rtxDispatch) createAccelerationStructure(device vk.Device, buffer vk.Buffer, size uint64, topLevel bool) (accelHandle, uint64, error) {
	var handle C.VkAccelerationStructureKHR
	var address C.VkDeviceAddress
	level := C.int(0)
	if topLevel {
		level = 1
	}
	res := vk.Result(C.lumenCreateAccel(r.table, cDevice(device), C.VkBuffer(unsafe.Pointer(buffer)), C.VkDeviceSize(size), level, &handle, &address))
	if res != vk.Success {
		return nil, 0, fmt.Errorf("vkCreateAccelerationStructureKHR failed with %s", VulkanResultString(res, true))
	}
	return accelHandle(unsafe.Pointer(handle)), uint64(address), nil
}

func (r *rtxDispatch) destroyAccelerationStructure(device vk.Device, handle accelHandle) {
	C.lumenDestroyAccel(r.table, cDevice(device), C.VkAccelerationStructureKHR(handle))
}

func (r *rtxDispatch) cmdBuildBottomLevel(cmd vk.CommandBuffer, dst accelHandle, scratch uint64, geometries []triangleGeometry) error {
	in := toCTriangles(geometries)
	res := vk.Result(C.lumenCmdBuildBottomLevel(r.table, cCommandBuffer(cmd), C.VkAccelerationStructureKHR(dst),
		C.VkDeviceAddress(scratch), &in[0], C.uint32_t(len(in))))
	if res != vk.Success {
		return fmt.Errorf("bottom level build failed with %s", VulkanResultString(res, true))
	}
	return nil
}

func (r *rtxDispatch) cmdBuildTopLevel(cmd vk.CommandBuffer, dst accelHandle, scratch, instances uint64, count uint32) {
	C.lumenCmdBuildTopLevel(r.table, cCommandBuffer(cmd), C.VkAccelerationStructureKHR(dst),
		C.VkDeviceAddress(scratch), C.VkDeviceAddress(instances), C.uint32_t(count))
}

// packInstances encodes instances as VkAccelerationStructureInstanceKHR records.
func packInstances(instances []instanceRecord) []byte {
	size := int(C.lumenInstanceSize())
	out := make([]byte, size*len(instances))
	if len(instances) == 0 {
		return out
	}
	in := make([]C.lumenInstance, len(instances))
	for i, inst := range instances {
		for j, v := range inst.Transform {
			in[i].transform[j] = C.float(v)
		}
		in[i].customIndex = C.uint32_t(inst.CustomIndex)
		in[i].mask = C.uint32_t(inst.Mask)
		in[i].hitGroup = C.uint32_t(inst.HitGroup)
		in[i].bottomLevel = C.VkDeviceAddress(inst.BottomLevel)
	}
	C.lumenPackInstances(&in[0], C.uint32_t(len(in)), unsafe.Pointer(&out[0]))
	return out
}

func (r *rtxDispatch) createRayTracingPipeline(device vk.Device, layout vk.PipelineLayout, stages []rtStage, groups []rtGroup, maxRecursion uint32) (vk.Pipeline, error) {
	cStages := make([]C.lumenStage, len(stages))
	for i, s := range stages {
		entry := C.CString(s.Entry)
		defer C.free(unsafe.Pointer(entry))
		cStages[i] = C.lumenStage{
			module: C.VkShaderModule(unsafe.Pointer(s.Module)),
			stage:  C.uint32_t(s.Stage),
			entry:  entry,
		}
	}
	cGroups := make([]C.lumenGroup, len(groups))
	for i, g := range groups {
		cGroups[i] = C.lumenGroup{
			_type:      C.uint32_t(g.Kind),
			general:    C.uint32_t(g.General),
			closestHit: C.uint32_t(g.ClosestHit),
			anyHit:     C.uint32_t(g.AnyHit),
		}
	}

	var pipeline C.VkPipeline
	res := vk.Result(C.lumenCreateRayTracingPipeline(r.table, cDevice(device), C.VkPipelineLayout(unsafe.Pointer(layout)),
		&cStages[0], C.uint32_t(len(cStages)), &cGroups[0], C.uint32_t(len(cGroups)), C.uint32_t(maxRecursion), &pipeline))
	if res != vk.Success {
		return nil, fmt.Errorf("vkCreateRayTracingPipelinesKHR failed with %s", VulkanResultString(res, true))
	}
	return vk.Pipeline(unsafe.Pointer(pipeline)), nil
}

func (r *rtxDispatch) shaderGroupHandles(device vk.Device, pipeline vk.Pipeline, groupCount, handleSize uint32) ([]byte, error) {
	out := make([]byte, groupCount*handleSize)
	res := vk.Result(C.lumenGroupHandles(r.table, cDevice(device), C.VkPipeline(unsafe.Pointer(pipeline)),
		C.uint32_t(groupCount), C.size_t(len(out)), unsafe.Pointer(&out[0])))
	if res != vk.Success {
		return nil, fmt.Errorf("vkGetRayTracingShaderGroupHandlesKHR failed with %s", VulkanResultString(res, true))
	}
	return out, nil
}

// cmdTraceRays takes the raygen, miss, hit and callable regions in that order.
func (r *rtxDispatch) cmdTraceRays(cmd vk.CommandBuffer, regions [4]stridedRegion, width, height, depth uint32) {
	var cRegions [4]C.VkStridedDeviceAddressRegionKHR
	for i, region := range regions {
		cRegions[i] = C.VkStridedDeviceAddressRegionKHR{
			deviceAddress: C.VkDeviceAddress(region.Address),
			stride:        C.VkDeviceSize(region.Stride),
			size:          C.VkDeviceSize(region.Size),
		}
	}
	C.lumenCmdTraceRays(r.table, cCommandBuffer(cmd), &cRegions[0], C.uint32_t(width), C.uint32_t(height), C.uint32_t(depth))
}

func cInstance(instance vk.Instance) C.VkInstance {
	return C.VkInstance(unsafe.Pointer(instance))
}

func cPhysicalDevice(device vk.PhysicalDevice) C.VkPhysicalDevice {
	return C.VkPhysicalDevice(unsafe.Pointer(device))
}

func cDevice(device vk.Device) C.VkDevice {
	return C.VkDevice(unsafe.Pointer(device))
}

func cCommandBuffer(cmd vk.CommandBuffer) C.VkCommandBuffer {
	return C.VkCommandBuffer(unsafe.Pointer(cmd))
}
