package binding

import "github.com/spaghettifunk/lumen/engine/renderer/metadata"

// Ray tracing descriptor sets.
const (
	SetScene  uint32 = 0
	SetImages uint32 = 1
	SetSkymap uint32 = 2
)

// Bindings of SetScene.
const (
	BindingTLAS       uint32 = 0
	BindingIndices    uint32 = 1
	BindingVertices   uint32 = 2
	BindingGeometries uint32 = 3
	BindingOffsets    uint32 = 4
	BindingMaterials  uint32 = 5
	BindingSamplers   uint32 = 6
	BindingImages     uint32 = 7
	BindingTransforms uint32 = 8
	BindingColors     uint32 = 9
	BindingTexCoords  uint32 = 10
)

// Bindings of SetImages.
const (
	BindingColorImage uint32 = 0
	BindingAOImage    uint32 = 1
	BindingSkySampler uint32 = 2
)

// Bindings of SetSkymap.
const (
	BindingSkymap uint32 = 0
)

const (
	LayoutRayTracingScene  = "ray tracing scene"
	LayoutRayTracingImages = "ray tracing images"
	LayoutRayTracingSkymap = "ray tracing skymap"
)

// optional marks a binding the mirror only writes when the scene has the resource.
func optional(b metadata.DescriptorBindingSpec) metadata.DescriptorBindingSpec {
	b.Optional = true
	return b
}

// SceneBindings declares the scene set: the TLAS, the geometry and material buffers and
// the bindless sampler and image arrays of size bindless.
func SceneBindings(bindless uint32) []metadata.DescriptorBindingSpec {
	storage := func(binding uint32) metadata.DescriptorBindingSpec {
		return metadata.DescriptorBindingSpec{
			Set:        SetScene,
			Binding:    binding,
			Kind:       metadata.ResourceKindStorageBuffer,
			Visibility: metadata.ShaderStageAll,
			Count:      1,
		}
	}
	return []metadata.DescriptorBindingSpec{
		{Set: SetScene, Binding: BindingTLAS, Kind: metadata.ResourceKindAccelerationStructure, Visibility: metadata.ShaderStageAll, Count: 1},
		storage(BindingIndices),
		storage(BindingVertices),
		storage(BindingGeometries),
		storage(BindingOffsets),
		storage(BindingMaterials),
		{Set: SetScene, Binding: BindingSamplers, Kind: metadata.ResourceKindSampler, Visibility: metadata.ShaderStageAll, Count: bindless},
		{Set: SetScene, Binding: BindingImages, Kind: metadata.ResourceKindSampledImage, Visibility: metadata.ShaderStageAll, Count: bindless, Optional: true},
		storage(BindingTransforms),
		optional(storage(BindingColors)),
		optional(storage(BindingTexCoords)),
	}
}

// ImageBindings declares the output images and the sky sampler.
func ImageBindings() []metadata.DescriptorBindingSpec {
	return []metadata.DescriptorBindingSpec{
		{Set: SetImages, Binding: BindingColorImage, Kind: metadata.ResourceKindStorageImage, Visibility: metadata.ShaderStageAll, Count: 1},
		{Set: SetImages, Binding: BindingAOImage, Kind: metadata.ResourceKindStorageImage, Visibility: metadata.ShaderStageAll, Count: 1},
		{Set: SetImages, Binding: BindingSkySampler, Kind: metadata.ResourceKindSampler, Visibility: metadata.ShaderStageAll, Count: 1},
	}
}

func SkymapBindings() []metadata.DescriptorBindingSpec {
	return []metadata.DescriptorBindingSpec{
		{Set: SetSkymap, Binding: BindingSkymap, Kind: metadata.ResourceKindSampledImage, Visibility: metadata.ShaderStageMiss, Count: 1},
	}
}

// RayTracingLayouts creates the three ray tracing layouts, in set order.
func (c *Catalog) RayTracingLayouts(bindless uint32) ([]metadata.DescriptorSetLayout, error) {
	scene, err := c.CreateLayout(LayoutRayTracingScene, SetScene, SceneBindings(bindless))
	if err != nil {
		return nil, err
	}
	images, err := c.CreateLayout(LayoutRayTracingImages, SetImages, ImageBindings())
	if err != nil {
		return nil, err
	}
	skymap, err := c.CreateLayout(LayoutRayTracingSkymap, SetSkymap, SkymapBindings())
	if err != nil {
		return nil, err
	}
	return []metadata.DescriptorSetLayout{scene, images, skymap}, nil
}
