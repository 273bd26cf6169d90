package metadata

import "fmt"

// ResourceKind is the type of resource a descriptor binding exposes to shaders.
type ResourceKind uint8

const (
	ResourceKindAccelerationStructure ResourceKind = iota
	ResourceKindStorageBuffer
	ResourceKindStorageImage
	ResourceKindSampledImage
	ResourceKindSampler
	resourceKindMax
)

// ResourceKinds lists every kind in declaration order.
func ResourceKinds() []ResourceKind {
	kinds := make([]ResourceKind, 0, resourceKindMax)
	for k := ResourceKind(0); k < resourceKindMax; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

func (k ResourceKind) String() string {
	switch k {
	case ResourceKindAccelerationStructure:
		return "acceleration_structure"
	case ResourceKindStorageBuffer:
		return "storage_buffer"
	case ResourceKindStorageImage:
		return "storage_image"
	case ResourceKindSampledImage:
		return "sampled_image"
	case ResourceKindSampler:
		return "sampler"
	}
	return fmt.Sprintf("resource_kind(%d)", uint8(k))
}

/** @brief Bit mask of the shader stages a resource or push constant is visible to. */
type ShaderStageFlags uint32

const (
	ShaderStageVertex     ShaderStageFlags = 0x01
	ShaderStageFragment   ShaderStageFlags = 0x02
	ShaderStageCompute    ShaderStageFlags = 0x04
	ShaderStageRaygen     ShaderStageFlags = 0x08
	ShaderStageMiss       ShaderStageFlags = 0x10
	ShaderStageClosestHit ShaderStageFlags = 0x20
	ShaderStageAnyHit     ShaderStageFlags = 0x40

	ShaderStageAll ShaderStageFlags = ShaderStageVertex | ShaderStageFragment | ShaderStageCompute |
		ShaderStageRaygen | ShaderStageMiss | ShaderStageClosestHit | ShaderStageAnyHit
)

func (s ShaderStageFlags) Has(other ShaderStageFlags) bool {
	return s&other == other
}

/**
 * @brief Describes one binding of a descriptor set layout.
 */
type DescriptorBindingSpec struct {
	/** @brief The set index the binding belongs to. */
	Set uint32
	/** @brief The binding index inside the set. */
	Binding uint32
	/** @brief The kind of resource bound. */
	Kind ResourceKind
	/** @brief The stages that can access the binding. */
	Visibility ShaderStageFlags
	/** @brief The number of elements. Arrays larger than one are created partially bound. */
	Count uint32
	/** @brief Marks a variable sized array. Only the last binding of a set may be variable. */
	VariableLength bool
	/** @brief The binding may stay unwritten when the shader does not reach it. */
	Optional bool
}

// Format is a texel format understood by every backend.
type Format uint8

const (
	FormatUndefined Format = iota
	FormatR8G8B8A8Unorm
	FormatB8G8R8A8Unorm
	FormatR32Sfloat
	FormatR32G32B32Sfloat
	FormatR32G32B32A32Sfloat
)

type BufferUsage uint32

const (
	BufferUsageStorage                    BufferUsage = 0x01
	BufferUsageVertex                     BufferUsage = 0x02
	BufferUsageIndex                      BufferUsage = 0x04
	BufferUsageTransferSrc                BufferUsage = 0x08
	BufferUsageTransferDst                BufferUsage = 0x10
	BufferUsageDeviceAddress              BufferUsage = 0x20
	BufferUsageAccelerationStructureInput BufferUsage = 0x40
	BufferUsageShaderBindingTable         BufferUsage = 0x80
)

type ImageUsage uint32

const (
	ImageUsageStorage         ImageUsage = 0x01
	ImageUsageSampled         ImageUsage = 0x02
	ImageUsageTransferSrc     ImageUsage = 0x04
	ImageUsageTransferDst     ImageUsage = 0x08
	ImageUsageColorAttachment ImageUsage = 0x10
)

// ImageLayout tracks how an image is currently laid out in device memory.
type ImageLayout uint8

const (
	ImageLayoutUndefined ImageLayout = iota
	ImageLayoutGeneral
	ImageLayoutTransferSrc
	ImageLayoutTransferDst
	ImageLayoutShaderReadOnly
	ImageLayoutColorAttachment
	ImageLayoutPresentSrc
)

type Filter uint8

const (
	FilterNearest Filter = iota
	FilterLinear
)

type AddressMode uint8

const (
	AddressModeClampToEdge AddressMode = iota
	AddressModeRepeat
)

type PolygonMode uint8

const (
	PolygonModeFill PolygonMode = iota
	PolygonModeLine
)

type PipelineBindPoint uint8

const (
	PipelineBindPointGraphics PipelineBindPoint = iota
	PipelineBindPointRayTracing
)

type LoadOp uint8

const (
	LoadOpLoad LoadOp = iota
	LoadOpClear
	LoadOpDontCare
)

type StoreOp uint8

const (
	StoreOpStore StoreOp = iota
	StoreOpDontCare
)

type Color struct {
	R, G, B, A float32
}

type Rect struct {
	X, Y          int32
	Width, Height uint32
}

type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

// Releaser is implemented by every device handle.
type Releaser interface {
	Release()
}

type Buffer interface {
	Releaser
	Name() string
	Size() uint64
}

type Image interface {
	Releaser
	Width() uint32
	Height() uint32
	Format() Format
	// Layout is the layout the image will be in once recorded commands execute.
	Layout() ImageLayout
}

type ImageView interface {
	Releaser
	Image() Image
}

type Sampler interface {
	Releaser
}

type ShaderModule interface {
	Releaser
}

type DescriptorSetLayout interface {
	Releaser
	Bindings() []DescriptorBindingSpec
}

type DescriptorPool interface {
	Releaser
}

// DescriptorSet lives as long as the pool it was allocated from.
type DescriptorSet interface {
	Layout() DescriptorSetLayout
}

type PipelineLayout interface {
	Releaser
}

type Pipeline interface {
	Releaser
}

type RenderPass interface {
	Releaser
}

type Framebuffer interface {
	Releaser
}

type AccelerationStructure interface {
	Releaser
}

// ShaderBindingTables holds the raygen, miss and hit regions used by a trace call.
type ShaderBindingTables interface {
	Releaser
	HitGroupCount() int
}

// ReleaseAll releases every non nil handle.
func ReleaseAll[T Releaser](handles ...T) {
	for _, h := range handles {
		if any(h) != nil {
			h.Release()
		}
	}
}
