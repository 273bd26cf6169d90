// Package binding declares descriptor set layouts and hands out descriptor sets from a
// single statically sized pool.
package binding

import (
	"fmt"
	"sort"
	"sync"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// PoolConfig sizes the shared descriptor pool.
type PoolConfig struct {
	// PerKind is the number of descriptors available for every resource kind.
	PerKind uint32
	// MaxSets is the number of sets the pool can allocate.
	MaxSets uint32
	// BindlessCeiling is added on top of PerKind for samplers and sampled images.
	BindlessCeiling uint32
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		PerKind:         100,
		MaxSets:         1000,
		BindlessCeiling: 500,
	}
}

// Sizes returns the per kind descriptor counts of the pool.
func (c PoolConfig) Sizes() map[metadata.ResourceKind]uint32 {
	sizes := make(map[metadata.ResourceKind]uint32)
	for _, k := range metadata.ResourceKinds() {
		sizes[k] = c.PerKind
	}
	sizes[metadata.ResourceKindSampler] += c.BindlessCeiling
	sizes[metadata.ResourceKindSampledImage] += c.BindlessCeiling
	return sizes
}

// Catalog owns the descriptor pool and every layout created through it.
// Running out of pool capacity is reported as core.ErrLayoutCreation and is never retried.
type Catalog struct {
	mu            sync.Mutex
	device        metadata.Device
	pool          metadata.DescriptorPool
	remaining     map[metadata.ResourceKind]uint32
	remainingSets uint32
	layouts       map[string]metadata.DescriptorSetLayout
}

func NewCatalog(device metadata.Device, cfg PoolConfig) (*Catalog, error) {
	if cfg.MaxSets == 0 {
		err := fmt.Errorf("descriptor pool needs at least one set: %w", core.ErrLayoutCreation)
		core.LogError(err.Error())
		return nil, err
	}
	sizes := cfg.Sizes()
	pool, err := device.CreateDescriptorPool("lumen", sizes, cfg.MaxSets)
	if err != nil {
		err = fmt.Errorf("failed to create descriptor pool: %w: %w", core.ErrLayoutCreation, err)
		core.LogError(err.Error())
		return nil, err
	}
	core.LogDebug("descriptor pool created with %d sets", cfg.MaxSets)

	return &Catalog{
		device:        device,
		pool:          pool,
		remaining:     sizes,
		remainingSets: cfg.MaxSets,
		layouts:       make(map[string]metadata.DescriptorSetLayout),
	}, nil
}

// ValidateBindings checks that binding indices are unique, counts are non zero, every
// binding belongs to set and that only the last binding is variable length.
func ValidateBindings(set uint32, bindings []metadata.DescriptorBindingSpec) error {
	if len(bindings) == 0 {
		return fmt.Errorf("set %d has no bindings", set)
	}
	seen := make(map[uint32]bool, len(bindings))
	var highest uint32
	for i, b := range bindings {
		if b.Set != set {
			return fmt.Errorf("binding %d declares set %d inside set %d", b.Binding, b.Set, set)
		}
		if seen[b.Binding] {
			return fmt.Errorf("binding %d declared twice in set %d", b.Binding, set)
		}
		seen[b.Binding] = true
		if b.Count == 0 {
			return fmt.Errorf("binding %d of set %d has zero descriptors", b.Binding, set)
		}
		if b.Kind == metadata.ResourceKindAccelerationStructure && b.Count != 1 {
			return fmt.Errorf("binding %d of set %d: acceleration structure arrays are not supported", b.Binding, set)
		}
		if b.Binding > highest || i == 0 {
			highest = b.Binding
		}
	}
	for _, b := range bindings {
		if b.VariableLength && b.Binding != highest {
			return fmt.Errorf("variable length binding %d is not the last binding of set %d", b.Binding, set)
		}
	}
	return nil
}

// CreateLayout validates and creates a set layout. Bindings are stored sorted by index.
func (c *Catalog) CreateLayout(name string, set uint32, bindings []metadata.DescriptorBindingSpec) (metadata.DescriptorSetLayout, error) {
	if err := ValidateBindings(set, bindings); err != nil {
		err = fmt.Errorf("layout %s: %w: %w", name, core.ErrLayoutCreation, err)
		core.LogError(err.Error())
		return nil, err
	}

	sorted := append([]metadata.DescriptorBindingSpec(nil), bindings...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Binding < sorted[j].Binding })

	layout, err := c.device.CreateDescriptorSetLayout(name, sorted)
	if err != nil {
		err = fmt.Errorf("layout %s: %w: %w", name, core.ErrLayoutCreation, err)
		core.LogError(err.Error())
		return nil, err
	}

	c.mu.Lock()
	if old, ok := c.layouts[name]; ok {
		old.Release()
	}
	c.layouts[name] = layout
	c.mu.Unlock()

	core.LogDebug("descriptor set layout '%s' created for set %d with %d bindings", name, set, len(sorted))
	return layout, nil
}

// Layout returns a layout previously created under name.
func (c *Catalog) Layout(name string) (metadata.DescriptorSetLayout, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.layouts[name]
	return l, ok
}

// AllocateSet allocates a set for layout. Variable length bindings are allocated at their full
// declared count.
func (c *Catalog) AllocateSet(name string, layout metadata.DescriptorSetLayout) (metadata.DescriptorSet, error) {
	bindings := layout.Bindings()

	need := make(map[metadata.ResourceKind]uint32)
	var variableCount uint32
	for _, b := range bindings {
		need[b.Kind] += b.Count
		if b.VariableLength {
			variableCount = b.Count
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.remainingSets == 0 {
		err := fmt.Errorf("set %s: descriptor pool has no sets left: %w", name, core.ErrLayoutCreation)
		core.LogError(err.Error())
		return nil, err
	}
	for kind, n := range need {
		if c.remaining[kind] < n {
			err := fmt.Errorf("set %s: needs %d %s descriptors, pool has %d left: %w", name, n, kind, c.remaining[kind], core.ErrLayoutCreation)
			core.LogError(err.Error())
			return nil, err
		}
	}

	set, err := c.device.AllocateDescriptorSet(name, c.pool, layout, variableCount)
	if err != nil {
		err = fmt.Errorf("set %s: %w: %w", name, core.ErrLayoutCreation, err)
		core.LogError(err.Error())
		return nil, err
	}

	for kind, n := range need {
		c.remaining[kind] -= n
	}
	c.remainingSets--
	return set, nil
}

// BuildSet allocates a set and populates it with initial. The Set field of every write is
// replaced by the new set and writes without elements are skipped.
func (c *Catalog) BuildSet(name string, layout metadata.DescriptorSetLayout, initial []metadata.DescriptorWrite) (metadata.DescriptorSet, error) {
	set, err := c.AllocateSet(name, layout)
	if err != nil {
		return nil, err
	}
	writes := make([]metadata.DescriptorWrite, 0, len(initial))
	for _, w := range initial {
		if w.Len() == 0 {
			continue
		}
		w.Set = set
		writes = append(writes, w)
	}
	if len(writes) > 0 {
		if err := c.device.UpdateDescriptorSets(writes); err != nil {
			err = fmt.Errorf("set %s: %w", name, err)
			core.LogError(err.Error())
			return nil, err
		}
	}
	return set, nil
}

// Remaining returns the number of descriptors of kind still available in the pool.
func (c *Catalog) Remaining(kind metadata.ResourceKind) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining[kind]
}

// RemainingSets returns the number of sets the pool can still allocate.
func (c *Catalog) RemainingSets() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remainingSets
}

// Release destroys every layout and the pool, freeing all sets allocated from it.
func (c *Catalog) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, l := range c.layouts {
		l.Release()
		delete(c.layouts, name)
	}
	if c.pool != nil {
		c.pool.Release()
		c.pool = nil
	}
}
