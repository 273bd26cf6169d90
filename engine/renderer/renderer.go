// Package renderer drives a frame: it applies pass switches, feeds the active pass the
// current scene and submits the recorded commands through the backend.
package renderer

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/lumen/engine/assets"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/binding"
	"github.com/spaghettifunk/lumen/engine/renderer/components"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/passes"
	"github.com/spaghettifunk/lumen/engine/scene"
)

type CameraConfig struct {
	Position mgl32.Vec3
	Target   mgl32.Vec3
	FovY     float32
	Near     float32
	Far      float32
}

type Config struct {
	InitialPass passes.PassKind
	RayTracing  passes.RayTracingConfig
	Wireframe   passes.WireframeConfig
	Pool        binding.PoolConfig
	// Scene is a procedural scene name, scene.NoScene loads nothing.
	Scene string
	// Skymap is an image path. Empty selects the gradient sky.
	Skymap     string
	ClearColor *metadata.Color
	Camera     CameraConfig
}

// Renderer owns every pass and the resources shared between them. It is driven from
// the render goroutine only, except for RequestPass.
type Renderer struct {
	backend Backend
	device  metadata.Device
	cfg     Config

	catalog   *binding.Catalog
	arena     *passes.Arena
	wireframe *passes.WireframePass

	scene      *scene.Scene
	skymap     metadata.Image
	skymapView metadata.ImageView
	camera     *components.Camera

	metrics   *core.Metrics
	sinceLog  float64
	frameSkip int
}

// New creates the passes and uploads the scene and the skymap. Any error is fatal.
func New(ctx context.Context, backend Backend, cfg Config) (*Renderer, error) {
	r := &Renderer{
		backend: backend,
		device:  backend.Device(),
		cfg:     cfg,
		metrics: core.NewMetrics(),
	}
	if err := r.initialize(ctx); err != nil {
		r.Release()
		return nil, err
	}
	return r, nil
}

func (r *Renderer) initialize(ctx context.Context) error {
	var err error
	r.catalog, err = binding.NewCatalog(r.device, r.cfg.Pool)
	if err != nil {
		return err
	}

	rt, err := passes.NewRayTracingPass(ctx, r.device, r.catalog, r.cfg.RayTracing)
	if err != nil {
		return fmt.Errorf("failed to create the ray tracing pass: %w", err)
	}
	wf, err := passes.NewWireframePass(ctx, r.device, r.cfg.Wireframe)
	if err != nil {
		rt.Release()
		return fmt.Errorf("failed to create the wireframe pass: %w", err)
	}
	r.wireframe = wf

	r.arena, err = passes.NewArena(r.cfg.InitialPass, map[passes.PassKind]passes.ScenePass{
		passes.PassKindRayTracing: rt,
		passes.PassKindWireframe:  wf,
	})
	if err != nil {
		rt.Release()
		wf.Release()
		return err
	}

	sky := assets.LoadSkymap(r.cfg.Skymap)
	r.skymap, r.skymapView, err = assets.Upload(r.device, sky)
	if err != nil {
		return err
	}

	r.scene, err = scene.Load(r.device, r.cfg.Scene)
	if err != nil {
		return fmt.Errorf("failed to load scene %s: %w", r.cfg.Scene, err)
	}
	if r.scene == nil {
		core.LogInfo("no scene loaded")
	} else {
		core.LogInfo("scene %s loaded", r.scene.Name())
	}

	fov := r.cfg.Camera.FovY
	if fov == 0 {
		fov = mgl32.DegToRad(60)
	}
	r.camera = components.NewCamera(r.cfg.Camera.Position, r.cfg.Camera.Target, 16.0/9.0, fov)
	if r.cfg.Camera.Near > 0 && r.cfg.Camera.Far > r.cfg.Camera.Near {
		r.camera.Near = float64(r.cfg.Camera.Near)
		r.camera.Far = float64(r.cfg.Camera.Far)
	}
	return nil
}

// RequestPass queues a switch to kind. It is safe to call from any goroutine.
func (r *Renderer) RequestPass(kind passes.PassKind) bool {
	return r.arena.RequestSwitch(kind)
}

func (r *Renderer) ActivePass() passes.PassKind {
	return r.arena.ActiveKind()
}

func (r *Renderer) Camera() *components.Camera {
	return r.camera
}

func (r *Renderer) Metrics() *core.Metrics {
	return r.metrics
}

func (r *Renderer) OnResize(width, height uint32) {
	r.backend.Resized(width, height)
}

// activeScene hides a nil *scene.Scene behind a nil interface.
func (r *Renderer) activeScene() metadata.Scene {
	if r.scene == nil {
		return nil
	}
	return r.scene
}

// DrawFrame renders one frame with the active pass. A skipped frame is not an error.
func (r *Renderer) DrawFrame(deltaTime float64) error {
	r.arena.ApplySwitches()
	pass := r.arena.Active()

	if err := pass.Update(); err != nil {
		core.LogError("pass %s update failed: %s", r.arena.ActiveKind(), err)
	}

	if err := pass.PrepareScene(r.activeScene()); err != nil {
		if errors.Is(err, core.ErrSceneUploadFailed) {
			core.LogWarn("skipping frame: %s", err)
			r.frameSkip++
			return nil
		}
		return err
	}

	rec, target, view, err := r.backend.BeginFrame()
	if errors.Is(err, core.ErrSwapchainBooting) {
		r.wireframe.DropFramebuffers()
		r.frameSkip++
		return nil
	}
	if err != nil {
		return err
	}
	r.camera.SetAspect(target.Width(), target.Height())

	execErr := pass.Execute(rec, view, r.camera, r.cfg.ClearColor, r.skymapView)
	switch {
	case execErr == nil:
	case errors.Is(execErr, core.ErrNoActiveScene), errors.Is(execErr, core.ErrPreconditionNotMet):
		core.LogDebug("pass %s skipped: %s", r.arena.ActiveKind(), execErr)
		r.clearTarget(rec, target)
		execErr = nil
	default:
		core.LogError("pass %s failed: %s", r.arena.ActiveKind(), execErr)
		r.clearTarget(rec, target)
	}

	if err := r.backend.EndFrame(); err != nil {
		if errors.Is(err, core.ErrSwapchainBooting) {
			r.wireframe.DropFramebuffers()
			return execErr
		}
		return err
	}

	r.recordMetrics(deltaTime)
	return execErr
}

// clearTarget fills the target with the clear color so a skipped pass never presents garbage.
func (r *Renderer) clearTarget(rec metadata.CommandRecorder, target metadata.Image) {
	c := metadata.Color{}
	if r.cfg.ClearColor != nil {
		c = *r.cfg.ClearColor
	}
	rec.TransitionImage(target, metadata.ImageLayoutTransferDst)
	rec.ClearColorImage(target, c)
}

func (r *Renderer) recordMetrics(deltaTime float64) {
	r.metrics.Update(deltaTime)
	r.sinceLog += deltaTime
	if r.sinceLog < 1 {
		return
	}
	r.sinceLog = 0
	fps, frameMS := r.metrics.Frame()
	core.LogDebug("%s: %.0f fps, %.2f ms per frame, %d frames skipped", r.arena.ActiveKind(), fps, frameMS, r.frameSkip)
	r.frameSkip = 0
}

// Release waits for the device and destroys everything the renderer created.
func (r *Renderer) Release() {
	if r.device != nil {
		if err := r.device.WaitIdle(); err != nil {
			core.LogWarn("failed to wait for the device: %s", err)
		}
	}
	if r.arena != nil {
		r.arena.Release()
		r.arena = nil
	}
	if r.scene != nil {
		r.scene.Release()
		r.scene = nil
	}
	metadata.ReleaseAll[metadata.Releaser](r.skymapView, r.skymap)
	r.skymapView, r.skymap = nil, nil
	if r.catalog != nil {
		r.catalog.Release()
		r.catalog = nil
	}
}
