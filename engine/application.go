package engine

import (
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/binding"
	"github.com/spaghettifunk/lumen/engine/renderer/components"
	"github.com/spaghettifunk/lumen/engine/renderer/hotreload"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/passes"
)

// cameraRayDefine switches the ray generation shader to the ray push constant layout.
const cameraRayDefine = "CAMERA_RAY"

type ApplicationConfig struct {
	// Window starting position x axis, if applicable.
	StartPosX uint32
	// Window starting position y axis, if applicable.
	StartPosY uint32
	// Window starting width, if applicable.
	StartWidth uint32
	// Window starting height, if applicable.
	StartHeight uint32
	// The application name used in windowing, if applicable.
	Name string
	// Validation enables the Khronos validation layer when it is installed.
	Validation bool
	Renderer   renderer.Config
}

// NewApplicationConfig translates the loaded configuration into what the engine needs.
func NewApplicationConfig(cfg *config.Config) (*ApplicationConfig, error) {
	kind, err := passes.ParsePassKind(cfg.Renderer.Pass)
	if err != nil {
		return nil, err
	}
	layout, ok := components.ParseCameraLayout(cfg.Renderer.RayTracing.Camera)
	if !ok {
		return nil, fmt.Errorf("unknown ray tracing camera layout %q", cfg.Renderer.RayTracing.Camera)
	}
	args, err := cfg.Shaders.GlslcArguments()
	if err != nil {
		return nil, err
	}

	rtDefines := map[string]string{}
	if layout == components.CameraLayoutRay {
		rtDefines[cameraRayDefine] = ""
	}
	debounce := time.Duration(cfg.Shaders.DebounceMS) * time.Millisecond

	cc := cfg.Renderer.ClearColor
	clearColor := metadata.Color{R: cc[0], G: cc[1], B: cc[2], A: cc[3]}

	pool := binding.PoolConfig{
		PerKind:         cfg.Renderer.Pool.PerKind,
		MaxSets:         cfg.Renderer.Pool.MaxSets,
		BindlessCeiling: cfg.Renderer.Pool.BindlessCeiling,
	}

	return &ApplicationConfig{
		StartPosX:   cfg.Window.PosX,
		StartPosY:   cfg.Window.PosY,
		StartWidth:  cfg.Window.Width,
		StartHeight: cfg.Window.Height,
		Name:        cfg.Window.Title,
		Validation:  cfg.Renderer.Validation,
		Renderer: renderer.Config{
			InitialPass: kind,
			RayTracing: passes.RayTracingConfig{
				Shaders: passes.ShaderConfig{
					Dir: cfg.Shaders.RayTracingDir,
					Compiler: hotreload.NewDirCompiler(&hotreload.GlslcCompiler{
						Path:    cfg.Shaders.Glslc,
						Args:    args,
						Defines: rtDefines,
					}),
					HotReload: cfg.Shaders.HotReload,
					Debounce:  debounce,
				},
				CameraLayout:      layout,
				BindlessCeiling:   pool.BindlessCeiling,
				MaxRecursionDepth: cfg.Renderer.RayTracing.MaxRecursionDepth,
			},
			Wireframe: passes.WireframeConfig{
				Shaders: passes.ShaderConfig{
					Dir: cfg.Shaders.WireframeDir,
					Compiler: hotreload.NewDirCompiler(&hotreload.GlslcCompiler{
						Path: cfg.Shaders.Glslc,
						Args: args,
					}),
					HotReload: cfg.Shaders.HotReload,
					Debounce:  debounce,
				},
				Format: metadata.FormatB8G8R8A8Unorm,
			},
			Pool:       pool,
			Scene:      cfg.Scene,
			Skymap:     cfg.Skymap,
			ClearColor: &clearColor,
			Camera: renderer.CameraConfig{
				Position: mgl32.Vec3(cfg.Renderer.Camera.Position),
				Target:   mgl32.Vec3(cfg.Renderer.Camera.Target),
				FovY:     cfg.Renderer.Camera.FovY,
				Near:     cfg.Renderer.Camera.Near,
				Far:      cfg.Renderer.Camera.Far,
			},
		},
	}, nil
}
