package passes

import (
	"context"
	"fmt"

	"github.com/spaghettifunk/lumen/engine/core"
	emath "github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/binding"
	"github.com/spaghettifunk/lumen/engine/renderer/components"
	"github.com/spaghettifunk/lumen/engine/renderer/hotreload"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/mirror"
)

const (
	rayTracingName = "ray tracing"
	// ray push constants are visible to these stages
	rayPushStages = metadata.ShaderStageRaygen | metadata.ShaderStageClosestHit
)

type RayTracingConfig struct {
	Shaders           ShaderConfig
	CameraLayout      components.CameraLayout
	BindlessCeiling   uint32
	MaxRecursionDepth uint32
}

// RayTracingPass traces one primary ray per target pixel into an intermediate float image
// and blits the result into the target.
type RayTracingPass struct {
	device  metadata.Device
	catalog *binding.Catalog
	cfg     RayTracingConfig

	source *shaderSource

	pipelineLayout metadata.PipelineLayout
	pipeline       metadata.Pipeline
	program        *program
	sbt            metadata.ShaderBindingTables

	sceneSet  metadata.DescriptorSet
	imageSet  metadata.DescriptorSet
	skymapSet metadata.DescriptorSet

	defaultSampler metadata.Sampler
	skySampler     metadata.Sampler

	mirror *mirror.Mirror
	scene  metadata.Scene

	color     metadata.Image
	colorView metadata.ImageView
	ao        metadata.Image
	aoView    metadata.ImageView
	skymap    metadata.ImageView
}

// NewRayTracingPass builds the shaders, the pipeline and the descriptor sets. Any failure
// here is fatal for the pass.
func NewRayTracingPass(ctx context.Context, device metadata.Device, catalog *binding.Catalog, cfg RayTracingConfig) (*RayTracingPass, error) {
	if cfg.BindlessCeiling == 0 {
		cfg.BindlessCeiling = binding.DefaultPoolConfig().BindlessCeiling
	}
	depth := cfg.MaxRecursionDepth
	if depth == 0 {
		depth = 31
	}
	cfg.MaxRecursionDepth = emath.Clamp(depth, 1, device.Limits().MaxRayRecursionDepth)

	p := &RayTracingPass{device: device, catalog: catalog, cfg: cfg}
	if err := p.initialize(ctx); err != nil {
		p.Release()
		return nil, err
	}
	return p, nil
}

func (p *RayTracingPass) initialize(ctx context.Context) error {
	layouts, err := p.catalog.RayTracingLayouts(p.cfg.BindlessCeiling)
	if err != nil {
		return err
	}

	p.pipelineLayout, err = p.device.CreatePipelineLayout(rayTracingName, layouts, []metadata.PushConstantRange{{
		Stages: rayPushStages,
		Offset: 0,
		Size:   p.cfg.CameraLayout.Size(),
	}})
	if err != nil {
		return fmt.Errorf("failed to create ray tracing pipeline layout: %w", err)
	}

	source, blob, err := newShaderSource(ctx, rayTracingName, p.cfg.Shaders)
	if err != nil {
		return err
	}
	p.source = source

	prog, pipeline, err := p.buildPipeline(blob)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrShaderBuild, err)
	}
	p.program, p.pipeline = prog, pipeline

	p.defaultSampler, err = p.device.CreateSampler(metadata.SamplerDesc{
		Name:      "rt default sampler",
		MagFilter: metadata.FilterNearest,
		MinFilter: metadata.FilterNearest,
		AddressU:  metadata.AddressModeClampToEdge,
		AddressV:  metadata.AddressModeClampToEdge,
	})
	if err != nil {
		return err
	}
	p.skySampler, err = p.device.CreateSampler(metadata.SamplerDesc{
		Name:      "sky",
		MagFilter: metadata.FilterLinear,
		MinFilter: metadata.FilterLinear,
		AddressU:  metadata.AddressModeClampToEdge,
		AddressV:  metadata.AddressModeClampToEdge,
	})
	if err != nil {
		return err
	}

	if p.sceneSet, err = p.catalog.AllocateSet("ray tracing scene", layouts[binding.SetScene]); err != nil {
		return err
	}
	p.imageSet, err = p.catalog.BuildSet("ray tracing images", layouts[binding.SetImages], []metadata.DescriptorWrite{{
		Binding:  binding.BindingSkySampler,
		Kind:     metadata.ResourceKindSampler,
		Samplers: []metadata.Sampler{p.skySampler},
	}})
	if err != nil {
		return err
	}
	if p.skymapSet, err = p.catalog.AllocateSet("ray tracing skymap", layouts[binding.SetSkymap]); err != nil {
		return err
	}

	p.mirror, err = mirror.New(p.device, mirror.Options{
		Set:             p.sceneSet,
		DefaultSampler:  p.defaultSampler,
		BindlessCeiling: p.cfg.BindlessCeiling,
	})
	return err
}

// buildPipeline creates a ray tracing pipeline with one raygen shader, every miss shader
// and a single triangles hit group.
func (p *RayTracingPass) buildPipeline(blob *hotreload.BytecodeBlob) (*program, metadata.Pipeline, error) {
	prog, err := newProgram(p.device, rayTracingName, blob)
	if err != nil {
		return nil, nil, err
	}

	raygen, ok := prog.stage(metadata.ShaderStageRaygen)
	if !ok {
		prog.release()
		return nil, nil, fmt.Errorf("no ray generation shader in %s", blob.Source)
	}
	misses := prog.all(metadata.ShaderStageMiss)
	if len(misses) == 0 {
		prog.release()
		return nil, nil, fmt.Errorf("no miss shader in %s", blob.Source)
	}
	closest, ok := prog.stage(metadata.ShaderStageClosestHit)
	if !ok {
		prog.release()
		return nil, nil, fmt.Errorf("no closest hit shader in %s", blob.Source)
	}
	group := metadata.HitGroup{ClosestHit: closest}
	if anyHit, ok := prog.stage(metadata.ShaderStageAnyHit); ok {
		group.AnyHit = &anyHit
	}

	pipeline, err := p.device.CreateRayTracingPipeline(metadata.RayTracingPipelineDesc{
		Name:              rayTracingName,
		Layout:            p.pipelineLayout,
		Raygen:            raygen,
		Misses:            misses,
		HitGroups:         []metadata.HitGroup{group},
		MaxRecursionDepth: p.cfg.MaxRecursionDepth,
	})
	if err != nil {
		prog.release()
		return nil, nil, err
	}
	return prog, pipeline, nil
}

// Update swaps in a rebuilt pipeline when new bytecode is available. A failed rebuild
// keeps the current pipeline.
func (p *RayTracingPass) Update() error {
	blob, ok := p.source.poll()
	if !ok {
		return nil
	}
	core.LogInfo("updating ray tracing shaders to version %d", blob.Version)

	prog, pipeline, err := p.buildPipeline(blob)
	if err != nil {
		core.LogError("ray tracing pipeline rebuild failed, keeping version %d: %s", p.program.version, err.Error())
		return nil
	}

	if err := p.device.WaitIdle(); err != nil {
		prog.release()
		pipeline.Release()
		return err
	}
	metadata.ReleaseAll[metadata.Releaser](p.sbt, p.pipeline)
	p.program.release()
	p.sbt = nil
	p.program, p.pipeline = prog, pipeline
	return nil
}

func (p *RayTracingPass) PrepareScene(scene metadata.Scene) error {
	if scene == nil {
		p.scene = nil
		return nil
	}
	if _, err := p.mirror.Sync(scene); err != nil {
		return err
	}
	p.scene = scene
	return nil
}

func (p *RayTracingPass) Execute(rec metadata.CommandRecorder, target metadata.ImageView, camera *components.Camera, clear *metadata.Color, skymap metadata.ImageView) error {
	if p.scene == nil {
		return core.ErrNoActiveScene
	}
	if skymap == nil {
		return fmt.Errorf("ray tracing needs a skymap: %w", core.ErrPreconditionNotMet)
	}
	if target == nil || camera == nil {
		return fmt.Errorf("ray tracing needs a target and a camera: %w", core.ErrPreconditionNotMet)
	}

	dst := target.Image()
	width, height := dst.Width(), dst.Height()
	if err := p.ensureImages(width, height); err != nil {
		return err
	}
	if skymap != p.skymap {
		if err := p.device.UpdateDescriptorSets([]metadata.DescriptorWrite{{
			Set:     p.skymapSet,
			Binding: binding.BindingSkymap,
			Kind:    metadata.ResourceKindSampledImage,
			Images:  []metadata.ImageView{skymap},
		}}); err != nil {
			return fmt.Errorf("binding skymap: %w", err)
		}
		p.skymap = skymap
	}
	if err := p.ensureShaderBindingTables(); err != nil {
		return err
	}

	rec.TransitionImage(p.color, metadata.ImageLayoutGeneral)
	rec.TransitionImage(p.ao, metadata.ImageLayoutGeneral)
	c := metadata.Color{}
	if clear != nil {
		c = *clear
	}
	rec.ClearColorImage(p.color, c)
	rec.ClearColorImage(p.ao, metadata.Color{})

	rec.BindPipeline(metadata.PipelineBindPointRayTracing, p.pipeline)
	rec.BindDescriptorSets(metadata.PipelineBindPointRayTracing, p.pipelineLayout, 0, []metadata.DescriptorSet{p.sceneSet, p.imageSet, p.skymapSet})
	rec.PushConstants(p.pipelineLayout, rayPushStages, 0, camera.CameraPayload(p.cfg.CameraLayout))
	rec.TraceRays(p.sbt, width, height, 1)

	rec.TransitionImage(p.color, metadata.ImageLayoutTransferSrc)
	rec.TransitionImage(dst, metadata.ImageLayoutTransferDst)
	rec.BlitImage(p.color, dst, metadata.FilterLinear)
	return nil
}

// ensureImages recreates the color and ambient occlusion images when the target size changes.
func (p *RayTracingPass) ensureImages(width, height uint32) error {
	if p.color != nil && p.color.Width() == width && p.color.Height() == height {
		return nil
	}

	color, err := p.device.CreateImage(metadata.ImageDesc{
		Name:   "rt color",
		Width:  width,
		Height: height,
		Format: metadata.FormatR32G32B32A32Sfloat,
		Usage:  metadata.ImageUsageStorage | metadata.ImageUsageTransferSrc | metadata.ImageUsageTransferDst,
	})
	if err != nil {
		return err
	}
	ao, err := p.device.CreateImage(metadata.ImageDesc{
		Name:   "rt ao",
		Width:  width,
		Height: height,
		Format: metadata.FormatR32Sfloat,
		Usage:  metadata.ImageUsageStorage | metadata.ImageUsageTransferDst,
	})
	if err != nil {
		color.Release()
		return err
	}
	colorView, err := p.device.CreateImageView(color)
	if err != nil {
		metadata.ReleaseAll(color, ao)
		return err
	}
	aoView, err := p.device.CreateImageView(ao)
	if err != nil {
		colorView.Release()
		metadata.ReleaseAll(color, ao)
		return err
	}

	if p.color != nil {
		if err := p.device.WaitIdle(); err != nil {
			metadata.ReleaseAll(colorView, aoView)
			metadata.ReleaseAll(color, ao)
			return err
		}
	}
	if err := p.device.UpdateDescriptorSets([]metadata.DescriptorWrite{
		{Set: p.imageSet, Binding: binding.BindingColorImage, Kind: metadata.ResourceKindStorageImage, Images: []metadata.ImageView{colorView}},
		{Set: p.imageSet, Binding: binding.BindingAOImage, Kind: metadata.ResourceKindStorageImage, Images: []metadata.ImageView{aoView}},
	}); err != nil {
		metadata.ReleaseAll(colorView, aoView)
		metadata.ReleaseAll(color, ao)
		return fmt.Errorf("binding ray tracing images: %w", err)
	}
	p.releaseImages()
	p.color, p.ao, p.colorView, p.aoView = color, ao, colorView, aoView
	core.LogDebug("ray tracing images resized to %dx%d", width, height)
	return nil
}

// ensureShaderBindingTables lays out one hit record per instance. The tables are reused
// until the instance count or the pipeline changes.
func (p *RayTracingPass) ensureShaderBindingTables() error {
	instances := p.scene.TLAS().Instances
	if p.sbt != nil && p.sbt.HitGroupCount() == len(instances) {
		return nil
	}

	// every instance uses the single triangles hit group
	hitGroups := make([]uint32, len(instances))
	sbt, err := p.device.CreateShaderBindingTables(p.pipeline, hitGroups)
	if err != nil {
		return fmt.Errorf("failed to create shader binding tables: %w", err)
	}
	if p.sbt != nil {
		if err := p.device.WaitIdle(); err != nil {
			sbt.Release()
			return err
		}
		p.sbt.Release()
	}
	p.sbt = sbt
	return nil
}

func (p *RayTracingPass) releaseImages() {
	metadata.ReleaseAll(p.colorView, p.aoView)
	metadata.ReleaseAll(p.color, p.ao)
	p.color, p.ao, p.colorView, p.aoView = nil, nil, nil, nil
}

// Pipeline returns the active pipeline.
func (p *RayTracingPass) Pipeline() metadata.Pipeline {
	return p.pipeline
}

func (p *RayTracingPass) Release() {
	p.source.close()
	if p.mirror != nil {
		p.mirror.Release()
	}
	p.releaseImages()
	metadata.ReleaseAll[metadata.Releaser](p.sbt, p.pipeline)
	p.program.release()
	metadata.ReleaseAll(p.pipelineLayout)
	metadata.ReleaseAll(p.defaultSampler, p.skySampler)
	p.sbt, p.pipeline, p.program, p.pipelineLayout = nil, nil, nil, nil
}
