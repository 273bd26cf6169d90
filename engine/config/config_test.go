package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
log_level = "debug"
scene = "triangle"

[window]
title = "test"
width = 800
height = 600

[shaders]
glslc_args = "-O -DFOO='a b'"

[renderer]
pass = "Wireframe"
clear_color = [0.0, 0.0, 0.0, 1.0]

[renderer.raytracing]
camera = "ray"

[renderer.descriptors]
per_kind = 10
`

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lumen.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "triangle", cfg.Scene)
	assert.Equal(t, "test", cfg.Window.Title)
	assert.Equal(t, uint32(800), cfg.Window.Width)
	assert.Equal(t, "wireframe", cfg.Renderer.Pass)
	assert.Equal(t, "ray", cfg.Renderer.RayTracing.Camera)
	assert.Equal(t, [4]float32{0, 0, 0, 1}, cfg.Renderer.ClearColor)

	// untouched keys keep defaults
	assert.Equal(t, uint32(10), cfg.Renderer.Pool.PerKind)
	assert.Equal(t, uint32(1000), cfg.Renderer.Pool.MaxSets)
	assert.Equal(t, uint32(31), cfg.Renderer.RayTracing.MaxRecursionDepth)
	assert.Equal(t, [3]float32{0, 0, 10}, cfg.Renderer.Camera.Position)

	args, err := cfg.Shaders.GlslcArguments()
	require.NoError(t, err)
	assert.Equal(t, []string{"-O", "-DFOO=a b"}, args)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv(EnvDefaultScene, "")
	t.Setenv(EnvDefaultSkymap, "")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, "raytracing", cfg.Renderer.Pass)
	assert.Equal(t, "", cfg.Scene)
	assert.Equal(t, uint32(1280), cfg.Window.Width)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvDefaultScene, "plane")
	t.Setenv(EnvDefaultSkymap, "~/sky.png")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)

	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, "plane", cfg.Scene)
	assert.Equal(t, filepath.Join(home, "sky.png"), cfg.Skymap)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestInvalidPass(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lumen.toml")
	require.NoError(t, os.WriteFile(path, []byte("[renderer]\npass = \"raster\"\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEmptyGlslcArgs(t *testing.T) {
	args, err := Shaders{GlslcArgs: "  "}.GlslcArguments()
	require.NoError(t, err)
	assert.Nil(t, args)
}
