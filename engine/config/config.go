package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
)

const (
	// EnvConfigPath overrides the config file location.
	EnvConfigPath = "LUMEN_CONFIG"
	// EnvDefaultScene selects the scene loaded at startup.
	EnvDefaultScene = "DEFAULT_SCENE"
	// EnvDefaultSkymap selects the image used as sky by the ray tracing pass.
	EnvDefaultSkymap = "DEFAULT_SKYMAP"
	// EnvLogLevel overrides the configured log level.
	EnvLogLevel = "LUMEN_LOG_LEVEL"

	DefaultConfigPath = "lumen.toml"
)

type Window struct {
	Title  string `toml:"title"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
	PosX   uint32 `toml:"pos_x"`
	PosY   uint32 `toml:"pos_y"`
}

type Descriptors struct {
	// PerKind is the number of descriptors of every kind the shared pool can hand out.
	PerKind uint32 `toml:"per_kind"`
	MaxSets uint32 `toml:"max_sets"`
	// BindlessCeiling is the element count of the sampler and image arrays.
	BindlessCeiling uint32 `toml:"bindless_ceiling"`
}

type Shaders struct {
	RayTracingDir string `toml:"ray_tracing_dir"`
	WireframeDir  string `toml:"wireframe_dir"`
	Glslc         string `toml:"glslc"`
	// GlslcArgs is a shell-style string appended to every glslc invocation.
	GlslcArgs  string `toml:"glslc_args"`
	HotReload  bool   `toml:"hot_reload"`
	DebounceMS int    `toml:"debounce_ms"`
}

type RayTracing struct {
	// Camera selects the push constant layout, "matrices" or "ray".
	Camera            string `toml:"camera"`
	MaxRecursionDepth uint32 `toml:"max_recursion_depth"`
}

type Camera struct {
	Position [3]float32 `toml:"position"`
	Target   [3]float32 `toml:"target"`
	FovY     float32    `toml:"fov_y"`
	Near     float32    `toml:"near"`
	Far      float32    `toml:"far"`
}

type Renderer struct {
	// Pass is the pass active at startup, "raytracing" or "wireframe".
	Pass       string      `toml:"pass"`
	ClearColor [4]float32  `toml:"clear_color"`
	RayTracing RayTracing  `toml:"raytracing"`
	Camera     Camera      `toml:"camera"`
	Validation bool        `toml:"validation"`
	Pool       Descriptors `toml:"descriptors"`
}

type Config struct {
	LogLevel string   `toml:"log_level"`
	Scene    string   `toml:"scene"`
	Skymap   string   `toml:"skymap"`
	Window   Window   `toml:"window"`
	Shaders  Shaders  `toml:"shaders"`
	Renderer Renderer `toml:"renderer"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Scene:    "cubes",
		Skymap:   "",
		Window: Window{
			Title:  "Lumen",
			Width:  1280,
			Height: 720,
			PosX:   100,
			PosY:   100,
		},
		Shaders: Shaders{
			RayTracingDir: "assets/shaders/raytracing",
			WireframeDir:  "assets/shaders/wireframe",
			Glslc:         "glslc",
			GlslcArgs:     "-O",
			HotReload:     true,
			DebounceMS:    100,
		},
		Renderer: Renderer{
			Pass:       "raytracing",
			ClearColor: [4]float32{1, 1, 1, 1},
			RayTracing: RayTracing{
				Camera:            "matrices",
				MaxRecursionDepth: 31,
			},
			Camera: Camera{
				Position: [3]float32{0, 0, 10},
				Target:   [3]float32{0, 0, 0},
				FovY:     1.0471976, // pi/3
				Near:     0.001,
				Far:      10000,
			},
			Validation: true,
			Pool: Descriptors{
				PerKind:         100,
				MaxSets:         1000,
				BindlessCeiling: 500,
			},
		},
	}
}

// Load reads the config file at path on top of the defaults and applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		path = DefaultConfigPath
	}

	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand config path %s: %w", path, err)
	}

	data, err := os.ReadFile(expanded)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config %s: %w", expanded, err)
	default:
		if err := Parse(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", expanded, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes TOML data into cfg. Keys absent from data keep their current value.
func Parse(data []byte, cfg *Config) error {
	return toml.Unmarshal(data, cfg)
}

func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv(EnvDefaultScene); ok {
		c.Scene = v
	}
	if v, ok := os.LookupEnv(EnvDefaultSkymap); ok {
		c.Skymap = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
}

func (c *Config) normalize() error {
	var err error
	if c.Skymap, err = expand(c.Skymap); err != nil {
		return err
	}
	if c.Shaders.RayTracingDir, err = expand(c.Shaders.RayTracingDir); err != nil {
		return err
	}
	if c.Shaders.WireframeDir, err = expand(c.Shaders.WireframeDir); err != nil {
		return err
	}

	c.Renderer.Pass = strings.ToLower(c.Renderer.Pass)
	switch c.Renderer.Pass {
	case "raytracing", "wireframe":
	default:
		return fmt.Errorf("unknown renderer pass %q", c.Renderer.Pass)
	}

	c.Renderer.RayTracing.Camera = strings.ToLower(c.Renderer.RayTracing.Camera)
	switch c.Renderer.RayTracing.Camera {
	case "matrices", "ray":
	default:
		return fmt.Errorf("unknown ray tracing camera layout %q", c.Renderer.RayTracing.Camera)
	}

	if c.Window.Width == 0 || c.Window.Height == 0 {
		return fmt.Errorf("window size must be non zero, got %dx%d", c.Window.Width, c.Window.Height)
	}
	return nil
}

// GlslcArguments splits the configured extra glslc arguments the way a shell would.
func (s Shaders) GlslcArguments() ([]string, error) {
	if strings.TrimSpace(s.GlslcArgs) == "" {
		return nil, nil
	}
	args, err := shellwords.Parse(s.GlslcArgs)
	if err != nil {
		return nil, fmt.Errorf("invalid glslc_args %q: %w", s.GlslcArgs, err)
	}
	return args, nil
}

func expand(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	p, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("failed to expand path %s: %w", path, err)
	}
	return p, nil
}
