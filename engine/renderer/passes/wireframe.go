package passes

import (
	"context"
	"fmt"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/components"
	"github.com/spaghettifunk/lumen/engine/renderer/hotreload"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

const (
	wireframeName = "wireframe"
	// positions only, three float32
	wireframeVertexStride = 12
)

type WireframeConfig struct {
	Shaders ShaderConfig
	// Format is the format of the images the pass renders into.
	Format metadata.Format
}

type framebufferEntry struct {
	framebuffer   metadata.Framebuffer
	width, height uint32
}

// WireframePass rasterizes the edges of every geometry of every TLAS instance.
type WireframePass struct {
	device metadata.Device
	cfg    WireframeConfig

	source *shaderSource

	pipelineLayout metadata.PipelineLayout
	renderPass     metadata.RenderPass
	pipeline       metadata.Pipeline
	program        *program

	framebuffers map[metadata.ImageView]framebufferEntry
	scene        metadata.Scene
}

func NewWireframePass(ctx context.Context, device metadata.Device, cfg WireframeConfig) (*WireframePass, error) {
	if cfg.Format == metadata.FormatUndefined {
		cfg.Format = metadata.FormatB8G8R8A8Unorm
	}
	p := &WireframePass{
		device:       device,
		cfg:          cfg,
		framebuffers: make(map[metadata.ImageView]framebufferEntry),
	}
	if err := p.initialize(ctx); err != nil {
		p.Release()
		return nil, err
	}
	return p, nil
}

func (p *WireframePass) initialize(ctx context.Context) error {
	var err error
	p.pipelineLayout, err = p.device.CreatePipelineLayout(wireframeName, nil, []metadata.PushConstantRange{{
		Stages: metadata.ShaderStageVertex,
		Offset: 0,
		Size:   components.TransformPayloadSize,
	}})
	if err != nil {
		return fmt.Errorf("failed to create wireframe pipeline layout: %w", err)
	}

	p.renderPass, err = p.device.CreateRenderPass(metadata.RenderPassDesc{
		Name:          wireframeName,
		Format:        p.cfg.Format,
		LoadOp:        metadata.LoadOpLoad,
		StoreOp:       metadata.StoreOpStore,
		InitialLayout: metadata.ImageLayoutColorAttachment,
		FinalLayout:   metadata.ImageLayoutColorAttachment,
	})
	if err != nil {
		return fmt.Errorf("failed to create wireframe render pass: %w", err)
	}

	source, blob, err := newShaderSource(ctx, wireframeName, p.cfg.Shaders)
	if err != nil {
		return err
	}
	p.source = source

	prog, pipeline, err := p.buildPipeline(blob)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrShaderBuild, err)
	}
	p.program, p.pipeline = prog, pipeline
	return nil
}

func (p *WireframePass) buildPipeline(blob *hotreload.BytecodeBlob) (*program, metadata.Pipeline, error) {
	prog, err := newProgram(p.device, wireframeName, blob)
	if err != nil {
		return nil, nil, err
	}
	vert, ok := prog.stage(metadata.ShaderStageVertex)
	if !ok {
		prog.release()
		return nil, nil, fmt.Errorf("no vertex shader in %s", blob.Source)
	}
	frag, ok := prog.stage(metadata.ShaderStageFragment)
	if !ok {
		prog.release()
		return nil, nil, fmt.Errorf("no fragment shader in %s", blob.Source)
	}

	pipeline, err := p.device.CreateGraphicsPipeline(metadata.GraphicsPipelineDesc{
		Name:         wireframeName,
		Layout:       p.pipelineLayout,
		RenderPass:   p.renderPass,
		Stages:       []metadata.ShaderStage{vert, frag},
		VertexStride: wireframeVertexStride,
		VertexFormat: metadata.FormatR32G32B32Sfloat,
		PolygonMode:  metadata.PolygonModeLine,
	})
	if err != nil {
		prog.release()
		return nil, nil, err
	}
	return prog, pipeline, nil
}

func (p *WireframePass) Update() error {
	blob, ok := p.source.poll()
	if !ok {
		return nil
	}
	core.LogInfo("updating wireframe shaders to version %d", blob.Version)

	prog, pipeline, err := p.buildPipeline(blob)
	if err != nil {
		core.LogError("wireframe pipeline rebuild failed, keeping version %d: %s", p.program.version, err.Error())
		return nil
	}
	if err := p.device.WaitIdle(); err != nil {
		prog.release()
		pipeline.Release()
		return err
	}
	metadata.ReleaseAll(p.pipeline)
	p.program.release()
	p.program, p.pipeline = prog, pipeline
	return nil
}

func (p *WireframePass) PrepareScene(scene metadata.Scene) error {
	p.scene = scene
	return nil
}

func (p *WireframePass) Execute(rec metadata.CommandRecorder, target metadata.ImageView, camera *components.Camera, clear *metadata.Color, _ metadata.ImageView) error {
	if p.scene == nil {
		return core.ErrNoActiveScene
	}
	if target == nil || camera == nil {
		return fmt.Errorf("wireframe needs a target and a camera: %w", core.ErrPreconditionNotMet)
	}
	img := target.Image()
	width, height := img.Width(), img.Height()

	fb, err := p.framebuffer(target, width, height)
	if err != nil {
		return err
	}

	if clear != nil {
		rec.TransitionImage(img, metadata.ImageLayoutTransferDst)
		rec.ClearColorImage(img, *clear)
	}
	rec.TransitionImage(img, metadata.ImageLayoutColorAttachment)

	area := metadata.Rect{Width: width, Height: height}
	rec.BeginRenderPass(p.renderPass, fb, area)
	// flipped so that +y is up like in the ray traced image
	rec.SetViewport(metadata.Viewport{
		X:        0,
		Y:        float32(height),
		Width:    float32(width),
		Height:   -float32(height),
		MinDepth: 0,
		MaxDepth: 1,
	})
	rec.SetScissor(area)
	rec.BindPipeline(metadata.PipelineBindPointGraphics, p.pipeline)

	if tlas := p.scene.TLAS(); tlas != nil {
		for _, inst := range tlas.Instances {
			if inst.Bottom == nil {
				continue
			}
			push, _ := camera.TransformPayload(inst.Transform).MarshalBinary()
			for _, g := range inst.Bottom.Geometries {
				if g.IndexCount == 0 {
					continue
				}
				rec.PushConstants(p.pipelineLayout, metadata.ShaderStageVertex, 0, push)
				rec.BindVertexBuffer(g.VertexBuffer, g.VertexOffset)
				rec.BindIndexBuffer(g.IndexBuffer, g.IndexOffset)
				rec.DrawIndexed(g.IndexCount, 1, 0, 0, 0)
			}
		}
	}

	rec.EndRenderPass()
	return nil
}

// framebuffer returns the cached framebuffer of target, recreating it on resize.
func (p *WireframePass) framebuffer(target metadata.ImageView, width, height uint32) (metadata.Framebuffer, error) {
	if e, ok := p.framebuffers[target]; ok {
		if e.width == width && e.height == height {
			return e.framebuffer, nil
		}
		if err := p.device.WaitIdle(); err != nil {
			return nil, err
		}
		e.framebuffer.Release()
		delete(p.framebuffers, target)
	}
	fb, err := p.device.CreateFramebuffer(p.renderPass, []metadata.ImageView{target}, width, height)
	if err != nil {
		return nil, fmt.Errorf("failed to create wireframe framebuffer: %w", err)
	}
	p.framebuffers[target] = framebufferEntry{framebuffer: fb, width: width, height: height}
	return fb, nil
}

// DropFramebuffers forgets every cached framebuffer, e.g. after the swapchain was recreated.
func (p *WireframePass) DropFramebuffers() {
	for view, e := range p.framebuffers {
		e.framebuffer.Release()
		delete(p.framebuffers, view)
	}
}

func (p *WireframePass) Pipeline() metadata.Pipeline {
	return p.pipeline
}

func (p *WireframePass) Release() {
	p.source.close()
	p.DropFramebuffers()
	metadata.ReleaseAll(p.pipeline)
	p.program.release()
	metadata.ReleaseAll[metadata.Releaser](p.renderPass, p.pipelineLayout)
	p.pipeline, p.program, p.renderPass, p.pipelineLayout = nil, nil, nil, nil
}
