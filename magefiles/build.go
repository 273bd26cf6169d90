//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

const (
	shaderDir    = "assets/shaders"
	shaderOutDir = "build/shaders"
)

var glslExtensions = map[string]bool{
	".vert": true, ".frag": true, ".comp": true,
	".rgen": true, ".rmiss": true, ".rchit": true, ".rahit": true,
}

// Compiles every GLSL shader with glslc. The engine compiles at runtime, this only checks the sources.
func (Build) Shaders() error {
	return buildShaders()
}

func buildShaders() error {
	var sources []string
	err := filepath.WalkDir(shaderDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && glslExtensions[filepath.Ext(path)] {
			sources = append(sources, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to list shaders: %w", err)
	}

	for _, src := range sources {
		out := filepath.Join(shaderOutDir, strings.TrimPrefix(src, shaderDir)) + ".spv"
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return err
		}
		if _, err := executeCmd("glslc", withArgs("--target-env=vulkan1.2", "--target-spv=spv1.4", src, "-o", out)); err != nil {
			return err
		}
		// the ray generation shader has a second camera layout
		if filepath.Ext(src) == ".rgen" {
			rayOut := strings.TrimSuffix(out, ".spv") + ".ray.spv"
			if _, err := executeCmd("glslc", withArgs("--target-env=vulkan1.2", "--target-spv=spv1.4", "-DCAMERA_RAY", src, "-o", rayOut)); err != nil {
				return err
			}
		}
	}
	fmt.Printf("Compiled %d shaders into %s\n", len(sources), shaderOutDir)
	return nil
}
