package engine

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/renderer/components"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/passes"
)

func TestNewApplicationConfigDefaults(t *testing.T) {
	app, err := NewApplicationConfig(config.Default())
	require.NoError(t, err)

	assert.Equal(t, "Lumen", app.Name)
	assert.Equal(t, uint32(1280), app.StartWidth)
	assert.Equal(t, uint32(720), app.StartHeight)
	assert.True(t, app.Validation)

	r := app.Renderer
	assert.Equal(t, passes.PassKindRayTracing, r.InitialPass)
	assert.Equal(t, components.CameraLayoutMatrices, r.RayTracing.CameraLayout)
	assert.Equal(t, uint32(31), r.RayTracing.MaxRecursionDepth)
	assert.Equal(t, uint32(500), r.RayTracing.BindlessCeiling)
	assert.Equal(t, 100*time.Millisecond, r.RayTracing.Shaders.Debounce)
	assert.True(t, r.Wireframe.Shaders.HotReload)
	assert.Equal(t, metadata.FormatB8G8R8A8Unorm, r.Wireframe.Format)
	assert.Equal(t, metadata.Color{R: 1, G: 1, B: 1, A: 1}, *r.ClearColor)
	assert.Equal(t, mgl32.Vec3{0, 0, 10}, r.Camera.Position)
	assert.Equal(t, "cubes", r.Scene)
}

func TestNewApplicationConfigRayLayout(t *testing.T) {
	cfg := config.Default()
	cfg.Renderer.Pass = "wireframe"
	cfg.Renderer.RayTracing.Camera = "ray"

	app, err := NewApplicationConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, passes.PassKindWireframe, app.Renderer.InitialPass)
	assert.Equal(t, components.CameraLayoutRay, app.Renderer.RayTracing.CameraLayout)
}

func TestNewApplicationConfigRejectsBadValues(t *testing.T) {
	cfg := config.Default()
	cfg.Renderer.Pass = "raster"
	_, err := NewApplicationConfig(cfg)
	assert.Error(t, err)

	cfg = config.Default()
	cfg.Shaders.GlslcArgs = `-DNAME="unterminated`
	_, err = NewApplicationConfig(cfg)
	assert.Error(t, err)
}
