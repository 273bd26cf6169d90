package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type DescriptorPool struct {
	context *VulkanContext
	name    string
	Handle  vk.DescriptorPool
}

func (p *DescriptorPool) Release() {
	if p.Handle != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(p.context.Device.LogicalDevice, p.Handle, p.context.Allocator)
		p.Handle = vk.NullDescriptorPool
	}
}

type DescriptorSetLayout struct {
	context  *VulkanContext
	name     string
	Handle   vk.DescriptorSetLayout
	bindings []metadata.DescriptorBindingSpec
}

func (l *DescriptorSetLayout) Bindings() []metadata.DescriptorBindingSpec { return l.bindings }

func (l *DescriptorSetLayout) Release() {
	if l.Handle != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(l.context.Device.LogicalDevice, l.Handle, l.context.Allocator)
		l.Handle = vk.NullDescriptorSetLayout
	}
}

// DescriptorSet is freed together with its pool.
type DescriptorSet struct {
	name   string
	Handle vk.DescriptorSet
	layout *DescriptorSetLayout
}

func (s *DescriptorSet) Layout() metadata.DescriptorSetLayout { return s.layout }

func (vc *VulkanContext) CreateDescriptorPool(name string, sizes map[metadata.ResourceKind]uint32, maxSets uint32) (metadata.DescriptorPool, error) {
	poolSizes := make([]vk.DescriptorPoolSize, 0, len(sizes))
	for _, kind := range metadata.ResourceKinds() {
		count, ok := sizes[kind]
		if !ok || count == 0 {
			continue
		}
		poolSizes = append(poolSizes, vk.DescriptorPoolSize{
			Type:            vulkanDescriptorType(kind),
			DescriptorCount: count,
		})
	}
	if len(poolSizes) == 0 {
		return nil, fmt.Errorf("descriptor pool %q: no descriptor sizes", name)
	}

	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}

	var handle vk.DescriptorPool
	if err := lockPool.SafeCall(DescriptorManagement, func() error {
		return vkCheck(vk.CreateDescriptorPool(vc.Device.LogicalDevice, &poolInfo, vc.Allocator, &handle), "vkCreateDescriptorPool %s", name)
	}); err != nil {
		return nil, err
	}
	core.LogDebug("created descriptor pool %s", name)
	return &DescriptorPool{context: vc, name: name, Handle: handle}, nil
}

// bindingFlags marks arrays and optional bindings partially bound, and a trailing variable length binding.
func bindingFlags(bindings []metadata.DescriptorBindingSpec) ([]uint32, bool) {
	flags := make([]uint32, len(bindings))
	flagged := false
	for i, b := range bindings {
		if b.Count > 1 || b.Optional {
			flags[i] |= descriptorBindingPartiallyBound
		}
		if b.VariableLength && i == len(bindings)-1 {
			flags[i] |= descriptorBindingVariableCount | descriptorBindingPartiallyBound
		}
		if flags[i] != 0 {
			flagged = true
		}
	}
	return flags, flagged
}

func (vc *VulkanContext) CreateDescriptorSetLayout(name string, bindings []metadata.DescriptorBindingSpec) (metadata.DescriptorSetLayout, error) {
	for i, b := range bindings {
		if b.VariableLength && i != len(bindings)-1 {
			err := fmt.Errorf("%w: %s binding %d is variable length but not last", core.ErrLayoutCreation, name, b.Binding)
			core.LogError(err.Error())
			return nil, err
		}
	}

	layoutBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		layoutBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  vulkanDescriptorType(b.Kind),
			DescriptorCount: b.Count,
			StageFlags:      vulkanShaderStages(b.Visibility),
		}
	}

	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(layoutBindings)),
		PBindings:    layoutBindings,
	}
	if flags, flagged := bindingFlags(bindings); flagged {
		chain, free := newBindingFlags(flags)
		defer free()
		layoutInfo.PNext = chain
	}

	var handle vk.DescriptorSetLayout
	if err := lockPool.SafeCall(DescriptorManagement, func() error {
		return vkCheck(vk.CreateDescriptorSetLayout(vc.Device.LogicalDevice, &layoutInfo, vc.Allocator, &handle), "vkCreateDescriptorSetLayout %s", name)
	}); err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrLayoutCreation, err)
	}

	owned := make([]metadata.DescriptorBindingSpec, len(bindings))
	copy(owned, bindings)
	return &DescriptorSetLayout{context: vc, name: name, Handle: handle, bindings: owned}, nil
}

func (vc *VulkanContext) AllocateDescriptorSet(name string, pool metadata.DescriptorPool, layout metadata.DescriptorSetLayout, variableCount uint32) (metadata.DescriptorSet, error) {
	p, err := handleOf[*DescriptorPool](pool, "descriptor pool")
	if err != nil {
		return nil, err
	}
	l, err := handleOf[*DescriptorSetLayout](layout, "descriptor set layout")
	if err != nil {
		return nil, err
	}

	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.Handle,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{l.Handle},
	}
	if n := len(l.bindings); n > 0 && l.bindings[n-1].VariableLength {
		chain, free := newVariableCountInfo(variableCount)
		defer free()
		allocateInfo.PNext = chain
	}

	handles := make([]vk.DescriptorSet, 1)
	if err := lockPool.SafeCall(DescriptorManagement, func() error {
		return vkCheck(vk.AllocateDescriptorSets(vc.Device.LogicalDevice, &allocateInfo, &handles[0]), "vkAllocateDescriptorSets %s", name)
	}); err != nil {
		return nil, err
	}
	return &DescriptorSet{name: name, Handle: handles[0], layout: l}, nil
}

func (vc *VulkanContext) UpdateDescriptorSets(writes []metadata.DescriptorWrite) error {
	out := make([]vk.WriteDescriptorSet, 0, len(writes))
	var frees []func()
	defer func() {
		for _, free := range frees {
			free()
		}
	}()

	for _, w := range writes {
		count := w.Len()
		if count == 0 {
			continue
		}
		set, err := handleOf[*DescriptorSet](w.Set, "descriptor set")
		if err != nil {
			return err
		}
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set.Handle,
			DstBinding:      w.Binding,
			DstArrayElement: w.ArrayElement,
			DescriptorCount: uint32(count),
			DescriptorType:  vulkanDescriptorType(w.Kind),
		}

		switch w.Kind {
		case metadata.ResourceKindAccelerationStructure:
			accel, err := handleOf[*AccelerationStructure](w.Accel, "acceleration structure")
			if err != nil {
				return fmt.Errorf("binding %d: %w", w.Binding, err)
			}
			chain, free := newAccelerationStructureWrite(accel.handle)
			frees = append(frees, free)
			write.PNext = chain
		case metadata.ResourceKindStorageBuffer:
			infos := make([]vk.DescriptorBufferInfo, 0, count)
			for _, buffer := range w.Buffers {
				b, err := handleOf[*Buffer](buffer, "storage buffer")
				if err != nil {
					return fmt.Errorf("binding %d: %w", w.Binding, err)
				}
				infos = append(infos, vk.DescriptorBufferInfo{
					Buffer: b.Handle,
					Range:  vk.DeviceSize(b.size),
				})
			}
			write.PBufferInfo = infos
		case metadata.ResourceKindStorageImage, metadata.ResourceKindSampledImage:
			layout := vk.ImageLayoutShaderReadOnlyOptimal
			if w.Kind == metadata.ResourceKindStorageImage {
				layout = vk.ImageLayoutGeneral
			}
			infos := make([]vk.DescriptorImageInfo, 0, count)
			for _, view := range w.Images {
				v, err := handleOf[*ImageView](view, "image view")
				if err != nil {
					return fmt.Errorf("binding %d: %w", w.Binding, err)
				}
				infos = append(infos, vk.DescriptorImageInfo{
					ImageView:   v.Handle,
					ImageLayout: layout,
				})
			}
			write.PImageInfo = infos
		case metadata.ResourceKindSampler:
			infos := make([]vk.DescriptorImageInfo, 0, count)
			for _, sampler := range w.Samplers {
				s, err := handleOf[*Sampler](sampler, "sampler")
				if err != nil {
					return fmt.Errorf("binding %d: %w", w.Binding, err)
				}
				infos = append(infos, vk.DescriptorImageInfo{Sampler: s.Handle})
			}
			write.PImageInfo = infos
		}
		out = append(out, write)
	}

	if len(out) == 0 {
		return nil
	}
	return lockPool.SafeCall(DescriptorManagement, func() error {
		vk.UpdateDescriptorSets(vc.Device.LogicalDevice, uint32(len(out)), out, 0, nil)
		return nil
	})
}
