package hotreload

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/gogpu/naga"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// Compiler builds every shader source of a directory into SPIR-V.
type Compiler interface {
	Build(ctx context.Context, dir string) (*BytecodeBlob, error)
}

// CompilerFunc adapts a function to the Compiler interface.
type CompilerFunc func(ctx context.Context, dir string) (*BytecodeBlob, error)

func (f CompilerFunc) Build(ctx context.Context, dir string) (*BytecodeBlob, error) {
	return f(ctx, dir)
}

// GlslcCompiler invokes the glslc executable once per GLSL source.
type GlslcCompiler struct {
	// Path of the glslc binary, "glslc" by default.
	Path string
	// Args are appended to every invocation.
	Args []string
	// Defines are passed as -D flags.
	Defines map[string]string
}

func (g *GlslcCompiler) CompileFile(ctx context.Context, path string) ([]ShaderModuleCode, error) {
	stage, ok := GLSLStage(path)
	if !ok {
		return nil, fmt.Errorf("%s is not a glsl shader", path)
	}

	out, err := os.CreateTemp("", "lumen-*.spv")
	if err != nil {
		return nil, err
	}
	out.Close()
	defer os.Remove(out.Name())

	bin := g.Path
	if bin == "" {
		bin = "glslc"
	}
	args := []string{"--target-env=vulkan1.2", "--target-spv=spv1.4"}
	keys := make([]string, 0, len(g.Defines))
	for k := range g.Defines {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := g.Defines[k]; v != "" {
			args = append(args, fmt.Sprintf("-D%s=%s", k, v))
		} else {
			args = append(args, "-D"+k)
		}
	}
	args = append(args, g.Args...)
	args = append(args, path, "-o", out.Name())

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("glslc %s: %w: %s", filepath.Base(path), err, strings.TrimSpace(stderr.String()))
	}

	spv, err := os.ReadFile(out.Name())
	if err != nil {
		return nil, err
	}
	return []ShaderModuleCode{{Stage: stage, Entry: "main", Code: bytesToBytecode(spv)}}, nil
}

var wgslEntry = regexp.MustCompile(`@(vertex|fragment|compute)(?:\s+@workgroup_size\([^)]*\))?\s+fn\s+([A-Za-z_][A-Za-z0-9_]*)`)

var wgslStages = map[string]metadata.ShaderStageFlags{
	"vertex":   metadata.ShaderStageVertex,
	"fragment": metadata.ShaderStageFragment,
	"compute":  metadata.ShaderStageCompute,
}

// NagaCompiler compiles WGSL in process. Every entry point of a source becomes a module
// sharing the same SPIR-V words.
type NagaCompiler struct{}

func (NagaCompiler) CompileFile(_ context.Context, path string) ([]ShaderModuleCode, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return compileWGSL(string(src))
}

func compileWGSL(source string) ([]ShaderModuleCode, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("failed to compile shader: %w", err)
	}
	code := bytesToBytecode(spirvBytes)

	var modules []ShaderModuleCode
	for _, m := range wgslEntry.FindAllStringSubmatch(source, -1) {
		modules = append(modules, ShaderModuleCode{Stage: wgslStages[m[1]], Entry: m[2], Code: code})
	}
	if len(modules) == 0 {
		return nil, fmt.Errorf("no entry point found")
	}
	return modules, nil
}

// FileCompiler compiles a single source file.
type FileCompiler interface {
	CompileFile(ctx context.Context, path string) ([]ShaderModuleCode, error)
}

// DirCompiler compiles every shader source directly inside a directory, dispatching
// GLSL sources to Glsl and WGSL sources to Wgsl.
type DirCompiler struct {
	Glsl FileCompiler
	Wgsl FileCompiler
}

// NewDirCompiler uses glslc for GLSL and naga for WGSL.
func NewDirCompiler(glslc *GlslcCompiler) *DirCompiler {
	return &DirCompiler{Glsl: glslc, Wgsl: NagaCompiler{}}
}

func (d *DirCompiler) Build(ctx context.Context, dir string) (*BytecodeBlob, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read shader dir %s: %w", dir, err)
	}

	blob := &BytecodeBlob{Source: dir}
	for _, e := range entries {
		if e.IsDir() || !IsShaderSource(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())

		var fc FileCompiler
		if strings.EqualFold(filepath.Ext(path), ".wgsl") {
			fc = d.Wgsl
		} else {
			fc = d.Glsl
		}
		if fc == nil {
			return nil, fmt.Errorf("no compiler configured for %s", e.Name())
		}

		modules, err := fc.CompileFile(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		for i := range modules {
			modules[i].Name = e.Name()
		}
		blob.Modules = append(blob.Modules, modules...)
		core.LogDebug("compiled shader %s", path)
	}

	if len(blob.Modules) == 0 {
		return nil, fmt.Errorf("no shader sources in %s", dir)
	}
	return blob, nil
}
