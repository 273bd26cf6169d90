package engine

import (
	"context"
	"fmt"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/platform"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/passes"
	"github.com/spaghettifunk/lumen/engine/renderer/vulkan"
)

// maxFrameFailures consecutive failed frames stop the engine.
const maxFrameFailures = 10

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

type Engine struct {
	currentStage Stage
	app          *ApplicationConfig
	platform     *platform.Platform
	backend      *vulkan.VulkanRenderer
	renderer     *renderer.Renderer
	controls     *CameraControls
	isSuspended  bool
	width        uint32
	height       uint32
	clock        *core.Clock
}

func New(app *ApplicationConfig) (*Engine, error) {
	p, err := platform.New()
	if err != nil {
		return nil, err
	}
	return &Engine{
		currentStage: EngineStageUninitialized,
		app:          app,
		platform:     p,
		controls:     NewCameraControls(),
		clock:        core.NewClock(),
		width:        app.StartWidth,
		height:       app.StartHeight,
	}, nil
}

// Initialize opens the window, brings up the Vulkan backend and builds the passes.
// It must run on the main thread.
func (e *Engine) Initialize(ctx context.Context) error {
	e.currentStage = EngineStageInitializing

	if err := e.platform.Startup(e.app.Name, e.app.StartPosX, e.app.StartPosY, e.app.StartWidth, e.app.StartHeight); err != nil {
		return err
	}

	e.backend = vulkan.New(e.platform, e.app.Validation)
	if err := e.backend.Initialize(e.app.Name, e.app.StartWidth, e.app.StartHeight); err != nil {
		core.LogError("failed to initialize the vulkan backend: %s", err)
		return err
	}

	cfg := e.app.Renderer
	if f := e.backend.SurfaceFormat(); f != metadata.FormatUndefined {
		cfg.Wireframe.Format = f
	}
	r, err := renderer.New(ctx, e.backend, cfg)
	if err != nil {
		core.LogError("failed to initialize the renderer: %s", err)
		return err
	}
	e.renderer = r

	e.platform.OnKeyPressed = e.onKey
	e.platform.OnResized = e.onResized

	e.currentStage = EngineStageInitialized
	core.LogInfo("engine initialized, active pass %s", e.renderer.ActivePass())
	return nil
}

// Run drives the frame loop until the window closes or ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.currentStage = EngineStageRunning
	e.clock.Start()

	failures := 0
	for !e.platform.ShouldClose() {
		if ctx.Err() != nil {
			core.LogInfo("shutdown requested")
			return nil
		}
		e.platform.PumpMessages()

		delta := e.clock.Tick()

		if e.isSuspended {
			continue
		}

		e.controls.Apply(e.renderer.Camera(), e.platform.IsKeyDown, delta)

		if err := e.renderer.DrawFrame(delta); err != nil {
			failures++
			core.LogError("frame failed: %s", err)
			if failures >= maxFrameFailures {
				return fmt.Errorf("%d frames in a row failed: %w", failures, err)
			}
			continue
		}
		failures = 0
	}
	return nil
}

// Shutdown releases the renderer before the backend and the window. It must run on the main thread.
func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	if e.renderer != nil {
		e.renderer.Release()
		e.renderer = nil
	}
	if e.backend != nil {
		if err := e.backend.Shutdown(); err != nil {
			return err
		}
		e.backend = nil
	}
	return e.platform.Shutdown()
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

// GetFramebufferSize returns the width and height (in this order)
// of the application Framebuffer
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onKey(key platform.Key) {
	switch key {
	case platform.KeyEscape:
		core.LogInfo("escape pressed, shutting down")
		e.platform.RequestClose()
	case platform.KeyWireframe:
		e.requestPass(passes.PassKindWireframe)
	case platform.KeyRayTracing:
		e.requestPass(passes.PassKindRayTracing)
	}
}

func (e *Engine) requestPass(kind passes.PassKind) {
	if !e.renderer.RequestPass(kind) {
		core.LogWarn("pass switch to %s dropped", kind)
	}
}

func (e *Engine) onResized(width, height uint32) {
	if width == e.width && height == e.height {
		return
	}
	e.width = width
	e.height = height
	core.LogDebug("Window resize: %d, %d", width, height)

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	e.renderer.OnResize(width, height)
}
