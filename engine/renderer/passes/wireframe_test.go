package passes

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/components"
	"github.com/spaghettifunk/lumen/engine/renderer/gputest"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type wireframeFixture struct {
	device   *gputest.Device
	compiler *switchableCompiler
	pass     *WireframePass
	dir      string
}

func newWireframeFixture(t *testing.T) *wireframeFixture {
	t.Helper()
	f := &wireframeFixture{device: gputest.NewDevice(), compiler: wireframeCompiler(), dir: t.TempDir()}
	var err error
	f.pass, err = NewWireframePass(context.Background(), f.device, WireframeConfig{
		Shaders: ShaderConfig{
			Dir:       f.dir,
			Compiler:  f.compiler,
			HotReload: true,
			Debounce:  10 * time.Millisecond,
		},
	})
	require.NoError(t, err)
	t.Cleanup(f.pass.Release)
	return f
}

func newWireframe(t *testing.T, device *gputest.Device) *WireframePass {
	t.Helper()
	pass, err := NewWireframePass(context.Background(), device, WireframeConfig{
		Shaders: ShaderConfig{Dir: t.TempDir(), Compiler: wireframeCompiler()},
	})
	require.NoError(t, err)
	t.Cleanup(pass.Release)
	return pass
}

func TestWireframePipeline(t *testing.T) {
	device := gputest.NewDevice()
	newWireframe(t, device)

	require.Len(t, device.Pipelines, 1)
	desc := device.Pipelines[0].Graphics
	require.NotNil(t, desc)
	assert.Equal(t, metadata.PolygonModeLine, desc.PolygonMode)
	assert.Equal(t, uint32(12), desc.VertexStride)
	assert.Equal(t, metadata.FormatR32G32B32Sfloat, desc.VertexFormat)
	assert.Len(t, desc.Stages, 2)

	rp := desc.RenderPass.(*gputest.RenderPass)
	assert.Equal(t, metadata.LoadOpLoad, rp.Desc.LoadOp)
	assert.Equal(t, metadata.ImageLayoutColorAttachment, rp.Desc.InitialLayout)
	assert.Equal(t, metadata.ImageLayoutColorAttachment, rp.Desc.FinalLayout)

	layout := desc.Layout.(*gputest.PipelineLayout)
	require.Len(t, layout.PushConstants, 1)
	assert.Equal(t, metadata.ShaderStageVertex, layout.PushConstants[0].Stages)
	assert.Equal(t, uint32(components.TransformPayloadSize), layout.PushConstants[0].Size)
}

func TestWireframeMissingFragment(t *testing.T) {
	compiler := wireframeCompiler()
	compiler.stages = compiler.stages[:1]
	_, err := NewWireframePass(context.Background(), gputest.NewDevice(), WireframeConfig{
		Shaders: ShaderConfig{Dir: t.TempDir(), Compiler: compiler},
	})
	assert.ErrorIs(t, err, core.ErrShaderBuild)
}

func TestWireframeExecuteWithoutScene(t *testing.T) {
	pass := newWireframe(t, gputest.NewDevice())
	_, view := target(32, 32)

	rec := &gputest.Recorder{}
	assert.ErrorIs(t, pass.Execute(rec, view, testCamera(), nil, nil), core.ErrNoActiveScene)
	assert.Empty(t, rec.Commands)
}

func TestWireframeExecute(t *testing.T) {
	pass := newWireframe(t, gputest.NewDevice())

	scene := gputest.NewTriangleScene()
	second := scene.Top.Instances[0]
	second.Transform = mgl32.Translate3D(2, 0, 0)
	scene.Top.Instances = append(scene.Top.Instances, second)
	require.NoError(t, pass.PrepareScene(scene))

	img, view := target(80, 60)
	clear := metadata.Color{A: 1}
	rec := &gputest.Recorder{}
	require.NoError(t, pass.Execute(rec, view, testCamera(), &clear, nil))

	assert.Equal(t, []string{
		"TransitionImage", "ClearColorImage", "TransitionImage",
		"BeginRenderPass", "SetViewport", "SetScissor", "BindPipeline",
		"PushConstants", "BindVertexBuffer", "BindIndexBuffer", "DrawIndexed",
		"PushConstants", "BindVertexBuffer", "BindIndexBuffer", "DrawIndexed",
		"EndRenderPass",
	}, rec.Names())
	assert.Equal(t, metadata.ImageLayoutColorAttachment, img.Layout())

	viewport := rec.Find("SetViewport")[0].Args[0].(metadata.Viewport)
	assert.Equal(t, float32(60), viewport.Y)
	assert.Equal(t, float32(-60), viewport.Height)
	assert.Equal(t, float32(80), viewport.Width)

	draw := rec.Find("DrawIndexed")[0]
	assert.Equal(t, uint32(3), draw.Args[0])
	assert.Equal(t, uint32(1), draw.Args[1])

	pushes := rec.Find("PushConstants")
	assert.Len(t, pushes[0].Args[3], components.TransformPayloadSize)
	assert.NotEqual(t, pushes[0].Args[3], pushes[1].Args[3])
}

func TestWireframeExecuteWithoutClear(t *testing.T) {
	pass := newWireframe(t, gputest.NewDevice())
	require.NoError(t, pass.PrepareScene(gputest.NewTriangleScene()))
	_, view := target(32, 32)

	rec := &gputest.Recorder{}
	require.NoError(t, pass.Execute(rec, view, testCamera(), nil, nil))
	assert.Zero(t, rec.Count("ClearColorImage"))
	assert.Equal(t, 1, rec.Count("DrawIndexed"))
}

func TestWireframeFramebufferCache(t *testing.T) {
	device := gputest.NewDevice()
	pass := newWireframe(t, device)
	require.NoError(t, pass.PrepareScene(gputest.NewTriangleScene()))
	img, view := target(32, 32)
	cam := testCamera()

	first := &gputest.Recorder{}
	require.NoError(t, pass.Execute(first, view, cam, nil, nil))
	second := &gputest.Recorder{}
	require.NoError(t, pass.Execute(second, view, cam, nil, nil))

	fb := first.Find("BeginRenderPass")[0].Args[1]
	assert.Same(t, fb, second.Find("BeginRenderPass")[0].Args[1])

	img.Desc.Width = 64
	third := &gputest.Recorder{}
	require.NoError(t, pass.Execute(third, view, cam, nil, nil))
	assert.NotSame(t, fb, third.Find("BeginRenderPass")[0].Args[1])
	assert.True(t, fb.(*gputest.Framebuffer).Released())
	assert.Len(t, pass.framebuffers, 1)
}

func TestWireframeHotReload(t *testing.T) {
	f := newWireframeFixture(t)
	first := f.pass.Pipeline()

	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "wireframe.vert"), []byte("#version 460\n"), 0o644))
	require.Eventually(t, func() bool {
		return f.pass.Update() == nil && f.pass.Pipeline() != first
	}, 5*time.Second, 10*time.Millisecond)

	assert.True(t, first.(*gputest.Pipeline).Released())
	assert.False(t, f.pass.Pipeline().(*gputest.Pipeline).Released())
	assert.Positive(t, f.device.WaitIdles)
}

func TestWireframeHotReloadFailureKeepsPipeline(t *testing.T) {
	f := newWireframeFixture(t)
	first := f.pass.Pipeline()
	builds := f.compiler.builds.Load()

	f.compiler.broken.Store(true)
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "wireframe.frag"), []byte("oops"), 0o644))
	require.Eventually(t, func() bool { return f.compiler.builds.Load() > builds }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, f.pass.Update())
	assert.Same(t, first, f.pass.Pipeline())
	assert.False(t, first.(*gputest.Pipeline).Released())
	assert.Zero(t, f.device.WaitIdles)
}
