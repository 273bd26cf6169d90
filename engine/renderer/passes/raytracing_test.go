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
	"github.com/spaghettifunk/lumen/engine/renderer/binding"
	"github.com/spaghettifunk/lumen/engine/renderer/components"
	"github.com/spaghettifunk/lumen/engine/renderer/gputest"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type rtFixture struct {
	device   *gputest.Device
	compiler *switchableCompiler
	pass     *RayTracingPass
	dir      string
}

func newRTFixture(t *testing.T, hotReload bool, layout components.CameraLayout) *rtFixture {
	t.Helper()
	device := gputest.NewDevice()
	catalog, err := binding.NewCatalog(device, binding.DefaultPoolConfig())
	require.NoError(t, err)

	f := &rtFixture{device: device, compiler: rayTracingCompiler(), dir: t.TempDir()}
	f.pass, err = NewRayTracingPass(context.Background(), device, catalog, RayTracingConfig{
		Shaders: ShaderConfig{
			Dir:       f.dir,
			Compiler:  f.compiler,
			HotReload: hotReload,
			Debounce:  10 * time.Millisecond,
		},
		CameraLayout: layout,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		f.pass.Release()
		catalog.Release()
	})
	return f
}

func target(w, h uint32) (*gputest.Image, *gputest.ImageView) {
	img := gputest.NewImage("swapchain", w, h, metadata.FormatB8G8R8A8Unorm)
	img.SetLayout(metadata.ImageLayoutUndefined)
	return img, gputest.NewImageView(img)
}

func skymap() *gputest.ImageView {
	return gputest.NewImageView(gputest.NewImage("sky", 4, 2, metadata.FormatR8G8B8A8Unorm))
}

func testCamera() *components.Camera {
	return components.NewCamera(mgl32.Vec3{0, 0, 10}, mgl32.Vec3{}, 16.0/9.0, mgl32.DegToRad(60))
}

func TestRayTracingPipelineLayout(t *testing.T) {
	f := newRTFixture(t, false, components.CameraLayoutMatrices)

	require.Len(t, f.device.Pipelines, 1)
	desc := f.device.Pipelines[0].RayTracing
	require.NotNil(t, desc)
	assert.Equal(t, metadata.ShaderStageRaygen, desc.Raygen.Stage)
	assert.Len(t, desc.Misses, 1)
	assert.Len(t, desc.HitGroups, 1)
	assert.Nil(t, desc.HitGroups[0].AnyHit)
	assert.Equal(t, uint32(31), desc.MaxRecursionDepth)

	layout := desc.Layout.(*gputest.PipelineLayout)
	assert.Len(t, layout.Layouts, 3)
	require.Len(t, layout.PushConstants, 1)
	assert.Equal(t, uint32(components.MatricesPayloadSize), layout.PushConstants[0].Size)
	assert.True(t, layout.PushConstants[0].Stages.Has(metadata.ShaderStageRaygen))
	assert.True(t, layout.PushConstants[0].Stages.Has(metadata.ShaderStageClosestHit))
}

func TestRayTracingMissingStage(t *testing.T) {
	device := gputest.NewDevice()
	catalog, err := binding.NewCatalog(device, binding.DefaultPoolConfig())
	require.NoError(t, err)
	defer catalog.Release()

	compiler := rayTracingCompiler()
	compiler.stages = compiler.stages[:2]
	_, err = NewRayTracingPass(context.Background(), device, catalog, RayTracingConfig{
		Shaders: ShaderConfig{Dir: t.TempDir(), Compiler: compiler},
	})
	assert.ErrorIs(t, err, core.ErrShaderBuild)
}

func TestRayTracingInitialBuildFailure(t *testing.T) {
	device := gputest.NewDevice()
	catalog, err := binding.NewCatalog(device, binding.DefaultPoolConfig())
	require.NoError(t, err)
	defer catalog.Release()

	compiler := rayTracingCompiler()
	compiler.broken.Store(true)
	_, err = NewRayTracingPass(context.Background(), device, catalog, RayTracingConfig{
		Shaders: ShaderConfig{Dir: t.TempDir(), Compiler: compiler},
	})
	assert.ErrorIs(t, err, core.ErrShaderBuild)
}

func TestRayTracingExecuteWithoutScene(t *testing.T) {
	f := newRTFixture(t, false, components.CameraLayoutMatrices)
	_, view := target(64, 32)

	rec := &gputest.Recorder{}
	err := f.pass.Execute(rec, view, testCamera(), nil, skymap())
	assert.ErrorIs(t, err, core.ErrNoActiveScene)
	assert.Empty(t, rec.Commands)
}

func TestRayTracingExecuteWithoutSkymap(t *testing.T) {
	f := newRTFixture(t, false, components.CameraLayoutMatrices)
	require.NoError(t, f.pass.PrepareScene(gputest.NewTriangleScene()))
	_, view := target(64, 32)

	rec := &gputest.Recorder{}
	err := f.pass.Execute(rec, view, testCamera(), nil, nil)
	assert.ErrorIs(t, err, core.ErrPreconditionNotMet)
	assert.Empty(t, rec.Commands)
}

func TestRayTracingExecute(t *testing.T) {
	f := newRTFixture(t, false, components.CameraLayoutMatrices)
	require.NoError(t, f.pass.PrepareScene(gputest.NewTriangleScene()))
	img, view := target(64, 32)
	sky := skymap()

	rec := &gputest.Recorder{}
	clear := metadata.Color{R: 0.1, G: 0.2, B: 0.3, A: 1}
	require.NoError(t, f.pass.Execute(rec, view, testCamera(), &clear, sky))

	assert.Equal(t, []string{
		"TransitionImage", "TransitionImage",
		"ClearColorImage", "ClearColorImage",
		"BindPipeline", "BindDescriptorSets", "PushConstants",
		"TraceRays",
		"TransitionImage", "TransitionImage",
		"BlitImage",
	}, rec.Names())

	clears := rec.Find("ClearColorImage")
	assert.Equal(t, clear, clears[0].Args[1])

	sets := rec.Find("BindDescriptorSets")[0].Args[3].([]metadata.DescriptorSet)
	assert.Len(t, sets, 3)

	push := rec.Find("PushConstants")[0]
	assert.Equal(t, rayPushStages, push.Args[1])
	assert.Len(t, push.Args[3], components.MatricesPayloadSize)

	trace := rec.Find("TraceRays")[0]
	assert.Equal(t, uint32(64), trace.Args[1])
	assert.Equal(t, uint32(32), trace.Args[2])
	assert.Equal(t, uint32(1), trace.Args[3])
	sbt := trace.Args[0].(*gputest.ShaderBindingTables)
	assert.Equal(t, []uint32{0}, sbt.HitGroups)

	blit := rec.Find("BlitImage")[0]
	assert.Same(t, img, blit.Args[1])
	assert.Equal(t, metadata.FilterLinear, blit.Args[2])
	assert.Equal(t, metadata.ImageLayoutTransferDst, img.Layout())

	color := blit.Args[0].(*gputest.Image)
	assert.Equal(t, metadata.FormatR32G32B32A32Sfloat, color.Format())
	assert.Equal(t, uint32(64), color.Width())

	writes := f.device.WritesFor(f.pass.skymapSet, binding.BindingSkymap)
	require.Len(t, writes, 1)
	assert.Equal(t, []metadata.ImageView{sky}, writes[0].Images)
}

func TestRayTracingExecuteReusesResources(t *testing.T) {
	f := newRTFixture(t, false, components.CameraLayoutRay)
	require.NoError(t, f.pass.PrepareScene(gputest.NewTriangleScene()))
	_, view := target(64, 32)
	sky := skymap()
	cam := testCamera()

	require.NoError(t, f.pass.Execute(&gputest.Recorder{}, view, cam, nil, sky))
	images, sbts := len(f.device.Images), len(f.device.SBTs)

	rec := &gputest.Recorder{}
	require.NoError(t, f.pass.Execute(rec, view, cam, nil, sky))
	assert.Len(t, f.device.Images, images)
	assert.Len(t, f.device.SBTs, sbts)
	assert.Len(t, f.device.WritesFor(f.pass.skymapSet, binding.BindingSkymap), 1)
	assert.Len(t, rec.Find("PushConstants")[0].Args[3], components.RayPayloadSize)
	assert.Equal(t, metadata.Color{}, rec.Find("ClearColorImage")[0].Args[1])

	_, bigger := target(128, 64)
	require.NoError(t, f.pass.Execute(&gputest.Recorder{}, bigger, cam, nil, sky))
	assert.Len(t, f.device.Images, images+2)
	assert.True(t, f.device.Images[0].Released())
	assert.True(t, f.device.Images[1].Released())
}

func TestRayTracingRejectedImageWriteKeepsImages(t *testing.T) {
	f := newRTFixture(t, false, components.CameraLayoutMatrices)
	require.NoError(t, f.pass.PrepareScene(gputest.NewTriangleScene()))
	_, view := target(64, 32)
	sky := skymap()
	cam := testCamera()
	require.NoError(t, f.pass.Execute(&gputest.Recorder{}, view, cam, nil, sky))
	images := len(f.device.Images)

	f.device.FailWrites(1)
	_, bigger := target(128, 64)
	err := f.pass.Execute(&gputest.Recorder{}, bigger, cam, nil, sky)
	assert.ErrorIs(t, err, gputest.ErrInjected)
	assert.False(t, f.device.Images[0].Released())
	assert.False(t, f.device.Images[1].Released())
	for _, img := range f.device.Images[images:] {
		assert.True(t, img.Released())
	}

	require.NoError(t, f.pass.Execute(&gputest.Recorder{}, bigger, cam, nil, sky))
	assert.True(t, f.device.Images[0].Released())
	assert.Equal(t, uint32(128), f.pass.color.Width())
}

func TestRayTracingPrepareSceneTwice(t *testing.T) {
	f := newRTFixture(t, false, components.CameraLayoutMatrices)
	scene := gputest.NewTriangleScene()

	require.NoError(t, f.pass.PrepareScene(scene))
	buffers := f.device.BufferCount()
	require.NoError(t, f.pass.PrepareScene(scene))
	assert.Equal(t, buffers, f.device.BufferCount())
}

func TestRayTracingHotReload(t *testing.T) {
	f := newRTFixture(t, true, components.CameraLayoutMatrices)
	first := f.pass.Pipeline()

	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "raygen.rgen"), []byte("#version 460\n"), 0o644))
	require.Eventually(t, func() bool {
		return f.pass.Update() == nil && f.pass.Pipeline() != first
	}, 5*time.Second, 10*time.Millisecond)

	assert.True(t, first.(*gputest.Pipeline).Released())
	assert.Positive(t, f.device.WaitIdles)
}

func TestRayTracingHotReloadFailureKeepsPipeline(t *testing.T) {
	f := newRTFixture(t, true, components.CameraLayoutMatrices)
	first := f.pass.Pipeline()
	builds := f.compiler.builds.Load()

	f.compiler.broken.Store(true)
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "miss.rmiss"), []byte("oops"), 0o644))
	require.Eventually(t, func() bool { return f.compiler.builds.Load() > builds }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, f.pass.Update())
	assert.Same(t, first, f.pass.Pipeline())
	assert.False(t, first.(*gputest.Pipeline).Released())
}

func TestRayTracingUpdateWithoutChanges(t *testing.T) {
	f := newRTFixture(t, false, components.CameraLayoutMatrices)
	first := f.pass.Pipeline()

	require.NoError(t, f.pass.Update())
	assert.Same(t, first, f.pass.Pipeline())
	assert.Zero(t, f.device.WaitIdles)
}
