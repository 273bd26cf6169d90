package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/renderer/binding"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

func TestFormatsMapBothWays(t *testing.T) {
	for _, f := range []metadata.Format{
		metadata.FormatR8G8B8A8Unorm,
		metadata.FormatB8G8R8A8Unorm,
		metadata.FormatR32Sfloat,
		metadata.FormatR32G32B32A32Sfloat,
	} {
		assert.Equal(t, f, metadataFormat(vulkanFormat(f)))
	}
	assert.Equal(t, metadata.FormatUndefined, metadataFormat(vk.FormatD32Sfloat))
}

func TestLayoutAccess(t *testing.T) {
	access, stage := layoutAccess(metadata.ImageLayoutTransferDst)
	assert.Equal(t, vk.AccessFlags(vk.AccessTransferWriteBit), access)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTransferBit), stage)

	access, stage = layoutAccess(metadata.ImageLayoutUndefined)
	assert.Zero(t, access)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), stage)

	_, stage = layoutAccess(metadata.ImageLayoutGeneral)
	assert.NotZero(t, stage&vk.PipelineStageFlags(pipelineStageRayTracing))
}

func TestBindingFlags(t *testing.T) {
	flags, flagged := bindingFlags([]metadata.DescriptorBindingSpec{
		{Binding: 0, Count: 1},
		{Binding: 1, Count: 1},
	})
	assert.False(t, flagged)
	assert.Equal(t, []uint32{0, 0}, flags)

	flags, flagged = bindingFlags([]metadata.DescriptorBindingSpec{
		{Binding: 0, Count: 1},
		{Binding: 1, Count: 500},
		{Binding: 2, Count: 500, VariableLength: true},
	})
	assert.True(t, flagged)
	assert.Equal(t, []uint32{
		0,
		descriptorBindingPartiallyBound,
		descriptorBindingPartiallyBound | descriptorBindingVariableCount,
	}, flags)
}

func TestSceneBindingFlags(t *testing.T) {
	bindings := binding.SceneBindings(500)
	flags, flagged := bindingFlags(bindings)
	require.True(t, flagged)
	require.Len(t, flags, len(bindings))

	partial := map[uint32]bool{
		binding.BindingSamplers:  true,
		binding.BindingImages:    true,
		binding.BindingColors:    true,
		binding.BindingTexCoords: true,
	}
	for i, b := range bindings {
		if partial[b.Binding] {
			assert.Equal(t, descriptorBindingPartiallyBound, flags[i], "binding %d", b.Binding)
		} else {
			assert.Zero(t, flags[i], "binding %d", b.Binding)
		}
	}
}

func TestRayTracingGroups(t *testing.T) {
	raygen := metadata.ShaderStage{Stage: metadata.ShaderStageRaygen, Entry: "main"}
	miss := metadata.ShaderStage{Stage: metadata.ShaderStageMiss, Entry: "main"}
	hit := metadata.ShaderStage{Stage: metadata.ShaderStageClosestHit, Entry: "main"}
	anyHit := metadata.ShaderStage{Stage: metadata.ShaderStageAnyHit, Entry: "main"}

	stages, groups := rayTracingGroups(metadata.RayTracingPipelineDesc{
		Raygen:    raygen,
		Misses:    []metadata.ShaderStage{miss},
		HitGroups: []metadata.HitGroup{{ClosestHit: hit}, {ClosestHit: hit, AnyHit: &anyHit}},
	})

	require.Len(t, stages, 5)
	require.Len(t, groups, 4)
	assert.Equal(t, rtGroup{Kind: shaderGroupGeneral, General: 0, ClosestHit: shaderUnused, AnyHit: shaderUnused}, groups[0])
	assert.Equal(t, rtGroup{Kind: shaderGroupGeneral, General: 1, ClosestHit: shaderUnused, AnyHit: shaderUnused}, groups[1])
	assert.Equal(t, rtGroup{Kind: shaderGroupTriangles, General: shaderUnused, ClosestHit: 2, AnyHit: shaderUnused}, groups[2])
	assert.Equal(t, rtGroup{Kind: shaderGroupTriangles, General: shaderUnused, ClosestHit: 3, AnyHit: 4}, groups[3])
	assert.Equal(t, metadata.ShaderStageAnyHit, stages[4].Stage)
}
