package metadata

// ImageDesc describes a 2D image with a single mip level.
type ImageDesc struct {
	Name   string
	Width  uint32
	Height uint32
	Format Format
	Usage  ImageUsage
}

type SamplerDesc struct {
	Name      string
	MagFilter Filter
	MinFilter Filter
	AddressU  AddressMode
	AddressV  AddressMode
}

type PushConstantRange struct {
	Stages ShaderStageFlags
	Offset uint32
	Size   uint32
}

// ShaderStage references one entry point of a shader module.
type ShaderStage struct {
	Module ShaderModule
	Stage  ShaderStageFlags
	Entry  string
}

// HitGroup is a triangles hit group. AnyHit is optional.
type HitGroup struct {
	ClosestHit ShaderStage
	AnyHit     *ShaderStage
}

type RayTracingPipelineDesc struct {
	Name              string
	Layout            PipelineLayout
	Raygen            ShaderStage
	Misses            []ShaderStage
	HitGroups         []HitGroup
	MaxRecursionDepth uint32
}

type GraphicsPipelineDesc struct {
	Name         string
	Layout       PipelineLayout
	RenderPass   RenderPass
	Stages       []ShaderStage
	VertexStride uint32
	VertexFormat Format
	PolygonMode  PolygonMode
}

// RenderPassDesc describes a pass with a single color attachment.
type RenderPassDesc struct {
	Name          string
	Format        Format
	LoadOp        LoadOp
	StoreOp       StoreOp
	InitialLayout ImageLayout
	FinalLayout   ImageLayout
}

// DescriptorWrite updates consecutive elements of one binding starting at ArrayElement.
// Exactly one of Buffers, Images, Samplers or Accel is used, depending on Kind.
type DescriptorWrite struct {
	Set          DescriptorSet
	Binding      uint32
	ArrayElement uint32
	Kind         ResourceKind
	Buffers      []Buffer
	Images       []ImageView
	Samplers     []Sampler
	Accel        AccelerationStructure
}

// Len is the number of descriptors the write updates.
func (w DescriptorWrite) Len() int {
	switch w.Kind {
	case ResourceKindAccelerationStructure:
		if w.Accel == nil {
			return 0
		}
		return 1
	case ResourceKindStorageBuffer:
		return len(w.Buffers)
	case ResourceKindStorageImage, ResourceKindSampledImage:
		return len(w.Images)
	case ResourceKindSampler:
		return len(w.Samplers)
	}
	return 0
}

type DeviceLimits struct {
	MaxRayRecursionDepth uint32
	MaxPushConstantsSize uint32
}

// Device creates and owns GPU resources. Implementations are not safe for concurrent use
// and are driven from the render goroutine only.
type Device interface {
	Limits() DeviceLimits

	// CreateBuffer creates a device local buffer filled with data.
	CreateBuffer(name string, usage BufferUsage, data []byte) (Buffer, error)
	CreateImage(desc ImageDesc) (Image, error)
	CreateImageView(image Image) (ImageView, error)
	// UploadImage copies tightly packed RGBA8 pixels into image and leaves it shader readable.
	UploadImage(image Image, pixels []byte) error
	CreateSampler(desc SamplerDesc) (Sampler, error)
	CreateShaderModule(name string, code []uint32) (ShaderModule, error)

	CreateDescriptorPool(name string, sizes map[ResourceKind]uint32, maxSets uint32) (DescriptorPool, error)
	CreateDescriptorSetLayout(name string, bindings []DescriptorBindingSpec) (DescriptorSetLayout, error)
	// AllocateDescriptorSet allocates a set. variableCount sizes the trailing variable length binding, if any.
	AllocateDescriptorSet(name string, pool DescriptorPool, layout DescriptorSetLayout, variableCount uint32) (DescriptorSet, error)
	// UpdateDescriptorSets applies writes all or nothing: a write naming a handle the device
	// did not create fails the whole batch.
	UpdateDescriptorSets(writes []DescriptorWrite) error

	CreatePipelineLayout(name string, layouts []DescriptorSetLayout, pushConstants []PushConstantRange) (PipelineLayout, error)
	CreateRayTracingPipeline(desc RayTracingPipelineDesc) (Pipeline, error)
	// CreateShaderBindingTables lays out one hit record per entry of hitGroups, each naming a hit group index of pipeline.
	CreateShaderBindingTables(pipeline Pipeline, hitGroups []uint32) (ShaderBindingTables, error)
	CreateRenderPass(desc RenderPassDesc) (RenderPass, error)
	CreateFramebuffer(pass RenderPass, views []ImageView, width, height uint32) (Framebuffer, error)
	CreateGraphicsPipeline(desc GraphicsPipelineDesc) (Pipeline, error)

	BuildBottomLevel(name string, geometries []GeometryBinding) (AccelerationStructure, error)
	BuildTopLevel(name string, instances []Instance) (AccelerationStructure, error)

	// WaitIdle blocks until the device finished all submitted work.
	WaitIdle() error
}

// CommandRecorder records commands into the command buffer of the current frame.
type CommandRecorder interface {
	BindPipeline(point PipelineBindPoint, pipeline Pipeline)
	BindDescriptorSets(point PipelineBindPoint, layout PipelineLayout, firstSet uint32, sets []DescriptorSet)
	PushConstants(layout PipelineLayout, stages ShaderStageFlags, offset uint32, data []byte)

	// TransitionImage moves image from its tracked layout to layout.
	TransitionImage(image Image, layout ImageLayout)
	// ClearColorImage clears an image in the general or transfer destination layout.
	ClearColorImage(image Image, color Color)
	TraceRays(tables ShaderBindingTables, width, height, depth uint32)
	BlitImage(src, dst Image, filter Filter)

	BeginRenderPass(pass RenderPass, framebuffer Framebuffer, area Rect)
	EndRenderPass()
	SetViewport(viewport Viewport)
	SetScissor(scissor Rect)
	BindVertexBuffer(buffer Buffer, offset uint64)
	// BindIndexBuffer binds 32 bit indices.
	BindIndexBuffer(buffer Buffer, offset uint64)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
}
