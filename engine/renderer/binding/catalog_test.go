package binding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gputest"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

func storage(set, binding uint32) metadata.DescriptorBindingSpec {
	return metadata.DescriptorBindingSpec{Set: set, Binding: binding, Kind: metadata.ResourceKindStorageBuffer, Visibility: metadata.ShaderStageAll, Count: 1}
}

func TestValidateBindings(t *testing.T) {
	t.Run("variable length last", func(t *testing.T) {
		images := metadata.DescriptorBindingSpec{Set: 0, Binding: 3, Kind: metadata.ResourceKindSampledImage, Count: 16, VariableLength: true}
		assert.NoError(t, ValidateBindings(0, []metadata.DescriptorBindingSpec{storage(0, 0), images, storage(0, 1)}))
	})

	t.Run("variable length not last", func(t *testing.T) {
		images := metadata.DescriptorBindingSpec{Set: 0, Binding: 1, Kind: metadata.ResourceKindSampledImage, Count: 16, VariableLength: true}
		assert.Error(t, ValidateBindings(0, []metadata.DescriptorBindingSpec{storage(0, 0), images, storage(0, 2)}))
	})

	t.Run("duplicate binding", func(t *testing.T) {
		assert.Error(t, ValidateBindings(0, []metadata.DescriptorBindingSpec{storage(0, 0), storage(0, 0)}))
	})

	t.Run("wrong set", func(t *testing.T) {
		assert.Error(t, ValidateBindings(1, []metadata.DescriptorBindingSpec{storage(0, 0)}))
	})

	t.Run("zero count", func(t *testing.T) {
		b := storage(0, 0)
		b.Count = 0
		assert.Error(t, ValidateBindings(0, []metadata.DescriptorBindingSpec{b}))
	})

	t.Run("empty", func(t *testing.T) {
		assert.Error(t, ValidateBindings(0, nil))
	})
}

func TestCreateLayoutRejectsInvalid(t *testing.T) {
	dev := gputest.NewDevice()
	c, err := NewCatalog(dev, DefaultPoolConfig())
	require.NoError(t, err)

	_, err = c.CreateLayout("bad", 0, []metadata.DescriptorBindingSpec{storage(0, 0), storage(0, 0)})
	assert.ErrorIs(t, err, core.ErrLayoutCreation)
	assert.Empty(t, dev.Layouts)
}

func TestRayTracingLayouts(t *testing.T) {
	dev := gputest.NewDevice()
	c, err := NewCatalog(dev, DefaultPoolConfig())
	require.NoError(t, err)

	layouts, err := c.RayTracingLayouts(500)
	require.NoError(t, err)
	require.Len(t, layouts, 3)
	assert.Len(t, layouts[0].Bindings(), 11)
	assert.Len(t, layouts[1].Bindings(), 3)
	assert.Len(t, layouts[2].Bindings(), 1)
	assert.Equal(t, metadata.ShaderStageMiss, layouts[2].Bindings()[0].Visibility)

	for i, b := range layouts[0].Bindings() {
		assert.Equal(t, uint32(i), b.Binding)
	}

	// the scene set fits in the default pool, bindless arrays included
	_, err = c.AllocateSet("scene", layouts[0])
	require.NoError(t, err)
	assert.Equal(t, uint32(100), c.Remaining(metadata.ResourceKindSampler))
	assert.Equal(t, uint32(100), c.Remaining(metadata.ResourceKindSampledImage))
	assert.Equal(t, uint32(100-8), c.Remaining(metadata.ResourceKindStorageBuffer))
	assert.Equal(t, uint32(999), c.RemainingSets())
}

func TestAllocateSetExhaustsKind(t *testing.T) {
	dev := gputest.NewDevice()
	c, err := NewCatalog(dev, PoolConfig{PerKind: 2, MaxSets: 10})
	require.NoError(t, err)

	layout, err := c.CreateLayout("buffers", 0, []metadata.DescriptorBindingSpec{storage(0, 0)})
	require.NoError(t, err)

	_, err = c.AllocateSet("a", layout)
	require.NoError(t, err)
	_, err = c.AllocateSet("b", layout)
	require.NoError(t, err)
	_, err = c.AllocateSet("c", layout)
	assert.ErrorIs(t, err, core.ErrLayoutCreation)
	assert.Len(t, dev.Sets, 2)
}

func TestAllocateSetExhaustsSets(t *testing.T) {
	dev := gputest.NewDevice()
	c, err := NewCatalog(dev, PoolConfig{PerKind: 10, MaxSets: 1})
	require.NoError(t, err)

	layout, err := c.CreateLayout("buffers", 0, []metadata.DescriptorBindingSpec{storage(0, 0)})
	require.NoError(t, err)

	_, err = c.AllocateSet("a", layout)
	require.NoError(t, err)
	_, err = c.AllocateSet("b", layout)
	assert.ErrorIs(t, err, core.ErrLayoutCreation)
}

func TestAllocateSetVariableCount(t *testing.T) {
	dev := gputest.NewDevice()
	c, err := NewCatalog(dev, DefaultPoolConfig())
	require.NoError(t, err)

	images := metadata.DescriptorBindingSpec{Set: 0, Binding: 1, Kind: metadata.ResourceKindSampledImage, Count: 64, VariableLength: true}
	layout, err := c.CreateLayout("textures", 0, []metadata.DescriptorBindingSpec{storage(0, 0), images})
	require.NoError(t, err)

	set, err := c.AllocateSet("textures", layout)
	require.NoError(t, err)
	assert.Equal(t, uint32(64), set.(*gputest.DescriptorSet).VariableCount)
}

func TestBuildSetSkipsEmptyWrites(t *testing.T) {
	dev := gputest.NewDevice()
	c, err := NewCatalog(dev, DefaultPoolConfig())
	require.NoError(t, err)

	layouts, err := c.RayTracingLayouts(500)
	require.NoError(t, err)

	sampler, err := dev.CreateSampler(metadata.SamplerDesc{Name: "sky"})
	require.NoError(t, err)

	set, err := c.BuildSet("images", layouts[1], []metadata.DescriptorWrite{
		{Binding: BindingSkySampler, Kind: metadata.ResourceKindSampler, Samplers: []metadata.Sampler{sampler}},
		{Binding: BindingColorImage, Kind: metadata.ResourceKindStorageImage},
	})
	require.NoError(t, err)

	require.Len(t, dev.Writes, 1)
	assert.Equal(t, set, dev.Writes[0].Set)
	assert.Equal(t, BindingSkySampler, dev.Writes[0].Binding)
}

func TestRelease(t *testing.T) {
	dev := gputest.NewDevice()
	c, err := NewCatalog(dev, DefaultPoolConfig())
	require.NoError(t, err)
	_, err = c.RayTracingLayouts(500)
	require.NoError(t, err)

	c.Release()
	for _, l := range dev.Layouts {
		assert.True(t, l.Released())
	}
	assert.True(t, dev.Pools[0].Released())

	_, ok := c.Layout(LayoutRayTracingScene)
	assert.False(t, ok)
}
