// Package gputest provides an in-memory metadata.Device that records every call,
// so GPU facing logic can be tested without a GPU.
package gputest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// ErrInjected is returned by calls configured to fail.
var ErrInjected = errors.New("injected device failure")

type handle struct {
	name     string
	released bool
}

func (h *handle) Release() { h.released = true }

// Released reports whether Release was called on the handle.
func (h *handle) Released() bool { return h.released }

type Buffer struct {
	handle
	Usage metadata.BufferUsage
	Data  []byte
}

func (b *Buffer) Name() string { return b.name }
func (b *Buffer) Size() uint64 { return uint64(len(b.Data)) }

type Image struct {
	handle
	Desc   metadata.ImageDesc
	layout metadata.ImageLayout
	Pixels []byte
}

func (i *Image) Width() uint32                { return i.Desc.Width }
func (i *Image) Height() uint32               { return i.Desc.Height }
func (i *Image) Format() metadata.Format      { return i.Desc.Format }
func (i *Image) Layout() metadata.ImageLayout { return i.layout }

// SetLayout forces the tracked layout, e.g. to mimic a presented swapchain image.
func (i *Image) SetLayout(l metadata.ImageLayout) { i.layout = l }

type ImageView struct {
	handle
	image *Image
}

func (v *ImageView) Image() metadata.Image { return v.image }

type Sampler struct {
	handle
	Desc metadata.SamplerDesc
}

type ShaderModule struct {
	handle
	Code []uint32
}

type DescriptorSetLayout struct {
	handle
	bindings []metadata.DescriptorBindingSpec
}

func (l *DescriptorSetLayout) Bindings() []metadata.DescriptorBindingSpec { return l.bindings }

type DescriptorPool struct {
	handle
	Sizes   map[metadata.ResourceKind]uint32
	MaxSets uint32
}

type DescriptorSet struct {
	name          string
	layout        *DescriptorSetLayout
	VariableCount uint32
}

func (s *DescriptorSet) Layout() metadata.DescriptorSetLayout { return s.layout }
func (s *DescriptorSet) Name() string                         { return s.name }

type PipelineLayout struct {
	handle
	Layouts       []metadata.DescriptorSetLayout
	PushConstants []metadata.PushConstantRange
}

type Pipeline struct {
	handle
	RayTracing *metadata.RayTracingPipelineDesc
	Graphics   *metadata.GraphicsPipelineDesc
}

type RenderPass struct {
	handle
	Desc metadata.RenderPassDesc
}

type Framebuffer struct {
	handle
	Views []metadata.ImageView
}

type AccelerationStructure struct {
	handle
	Geometries []metadata.GeometryBinding
	Instances  []metadata.Instance
}

type ShaderBindingTables struct {
	handle
	HitGroups []uint32
}

func (s *ShaderBindingTables) HitGroupCount() int { return len(s.HitGroups) }

// Device is a recording metadata.Device. The zero value is not usable, use NewDevice.
type Device struct {
	mu sync.Mutex

	limits metadata.DeviceLimits

	Buffers     []*Buffer
	Images      []*Image
	Samplers    []*Sampler
	Modules     []*ShaderModule
	Layouts     []*DescriptorSetLayout
	Pools       []*DescriptorPool
	Sets        []*DescriptorSet
	Pipelines   []*Pipeline
	SBTs        []*ShaderBindingTables
	Writes      []metadata.DescriptorWrite
	Accels      []*AccelerationStructure
	WaitIdles   int
	failBuffers map[int]bool
	failWrites  int
}

func NewDevice() *Device {
	return &Device{
		limits: metadata.DeviceLimits{
			MaxRayRecursionDepth: 31,
			MaxPushConstantsSize: 256,
		},
		failBuffers: map[int]bool{},
	}
}

// FailBufferAt makes the n-th future CreateBuffer call (0 based, counted from now) fail.
func (d *Device) FailBufferAt(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failBuffers[len(d.Buffers)+n] = true
}

// FailWrites makes the next n UpdateDescriptorSets calls fail without recording anything.
func (d *Device) FailWrites(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failWrites = n
}

// BufferCount is the number of buffers created so far.
func (d *Device) BufferCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Buffers)
}

// WritesFor returns the recorded descriptor writes targeting binding of set.
func (d *Device) WritesFor(set metadata.DescriptorSet, binding uint32) []metadata.DescriptorWrite {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []metadata.DescriptorWrite
	for _, w := range d.Writes {
		if w.Set == set && w.Binding == binding {
			out = append(out, w)
		}
	}
	return out
}

// ResetWrites forgets recorded descriptor writes.
func (d *Device) ResetWrites() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Writes = nil
}

func (d *Device) Limits() metadata.DeviceLimits { return d.limits }

func (d *Device) CreateBuffer(name string, usage metadata.BufferUsage, data []byte) (metadata.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(data) == 0 {
		return nil, fmt.Errorf("buffer %s: zero sized buffers are not allowed", name)
	}
	idx := len(d.Buffers)
	b := &Buffer{handle: handle{name: name}, Usage: usage, Data: append([]byte(nil), data...)}
	d.Buffers = append(d.Buffers, b)
	if d.failBuffers[idx] {
		delete(d.failBuffers, idx)
		b.released = true
		return nil, fmt.Errorf("buffer %s: %w", name, ErrInjected)
	}
	return b, nil
}

func (d *Device) CreateImage(desc metadata.ImageDesc) (metadata.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("image %s: zero extent", desc.Name)
	}
	img := &Image{handle: handle{name: desc.Name}, Desc: desc}
	d.Images = append(d.Images, img)
	return img, nil
}

// NewImage creates an image outside of the recorded set, e.g. a swapchain target.
func NewImage(name string, width, height uint32, format metadata.Format) *Image {
	return &Image{handle: handle{name: name}, Desc: metadata.ImageDesc{Name: name, Width: width, Height: height, Format: format}}
}

// NewImageView wraps image in a view.
func NewImageView(image *Image) *ImageView {
	return &ImageView{handle: handle{name: image.name}, image: image}
}

func (d *Device) CreateImageView(image metadata.Image) (metadata.ImageView, error) {
	img, ok := image.(*Image)
	if !ok {
		return nil, fmt.Errorf("foreign image %T", image)
	}
	return NewImageView(img), nil
}

func (d *Device) UploadImage(image metadata.Image, pixels []byte) error {
	img, ok := image.(*Image)
	if !ok {
		return fmt.Errorf("foreign image %T", image)
	}
	if want := int(img.Desc.Width * img.Desc.Height * 4); len(pixels) != want {
		return fmt.Errorf("image %s: expected %d bytes, got %d", img.name, want, len(pixels))
	}
	img.Pixels = append([]byte(nil), pixels...)
	img.layout = metadata.ImageLayoutShaderReadOnly
	return nil
}

func (d *Device) CreateSampler(desc metadata.SamplerDesc) (metadata.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &Sampler{handle: handle{name: desc.Name}, Desc: desc}
	d.Samplers = append(d.Samplers, s)
	return s, nil
}

func (d *Device) CreateShaderModule(name string, code []uint32) (metadata.ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(code) == 0 {
		return nil, fmt.Errorf("shader module %s: empty code", name)
	}
	m := &ShaderModule{handle: handle{name: name}, Code: code}
	d.Modules = append(d.Modules, m)
	return m, nil
}

func (d *Device) CreateDescriptorPool(name string, sizes map[metadata.ResourceKind]uint32, maxSets uint32) (metadata.DescriptorPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := &DescriptorPool{handle: handle{name: name}, Sizes: sizes, MaxSets: maxSets}
	d.Pools = append(d.Pools, p)
	return p, nil
}

func (d *Device) CreateDescriptorSetLayout(name string, bindings []metadata.DescriptorBindingSpec) (metadata.DescriptorSetLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l := &DescriptorSetLayout{handle: handle{name: name}, bindings: append([]metadata.DescriptorBindingSpec(nil), bindings...)}
	d.Layouts = append(d.Layouts, l)
	return l, nil
}

func (d *Device) AllocateDescriptorSet(name string, pool metadata.DescriptorPool, layout metadata.DescriptorSetLayout, variableCount uint32) (metadata.DescriptorSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := layout.(*DescriptorSetLayout)
	if !ok {
		return nil, fmt.Errorf("foreign layout %T", layout)
	}
	s := &DescriptorSet{name: name, layout: l, VariableCount: variableCount}
	d.Sets = append(d.Sets, s)
	return s, nil
}

func (d *Device) UpdateDescriptorSets(writes []metadata.DescriptorWrite) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failWrites > 0 {
		d.failWrites--
		return ErrInjected
	}
	for _, w := range writes {
		if _, ok := w.Set.(*DescriptorSet); !ok {
			return fmt.Errorf("descriptor set of type %T was not created by the test device", w.Set)
		}
	}
	d.Writes = append(d.Writes, writes...)
	return nil
}

func (d *Device) CreatePipelineLayout(name string, layouts []metadata.DescriptorSetLayout, pushConstants []metadata.PushConstantRange) (metadata.PipelineLayout, error) {
	return &PipelineLayout{handle: handle{name: name}, Layouts: layouts, PushConstants: pushConstants}, nil
}

func (d *Device) CreateRayTracingPipeline(desc metadata.RayTracingPipelineDesc) (metadata.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := &Pipeline{handle: handle{name: desc.Name}, RayTracing: &desc}
	d.Pipelines = append(d.Pipelines, p)
	return p, nil
}

func (d *Device) CreateShaderBindingTables(pipeline metadata.Pipeline, hitGroups []uint32) (metadata.ShaderBindingTables, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &ShaderBindingTables{handle: handle{name: "sbt"}, HitGroups: append([]uint32(nil), hitGroups...)}
	d.SBTs = append(d.SBTs, s)
	return s, nil
}

func (d *Device) CreateRenderPass(desc metadata.RenderPassDesc) (metadata.RenderPass, error) {
	return &RenderPass{handle: handle{name: desc.Name}, Desc: desc}, nil
}

func (d *Device) CreateFramebuffer(pass metadata.RenderPass, views []metadata.ImageView, width, height uint32) (metadata.Framebuffer, error) {
	return &Framebuffer{handle: handle{name: "framebuffer"}, Views: views}, nil
}

func (d *Device) CreateGraphicsPipeline(desc metadata.GraphicsPipelineDesc) (metadata.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := &Pipeline{handle: handle{name: desc.Name}, Graphics: &desc}
	d.Pipelines = append(d.Pipelines, p)
	return p, nil
}

func (d *Device) BuildBottomLevel(name string, geometries []metadata.GeometryBinding) (metadata.AccelerationStructure, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a := &AccelerationStructure{handle: handle{name: name}, Geometries: geometries}
	d.Accels = append(d.Accels, a)
	return a, nil
}

func (d *Device) BuildTopLevel(name string, instances []metadata.Instance) (metadata.AccelerationStructure, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a := &AccelerationStructure{handle: handle{name: name}, Instances: instances}
	d.Accels = append(d.Accels, a)
	return a, nil
}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.WaitIdles++
	return nil
}
