package passes

import (
	"context"
	"fmt"
	"time"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/hotreload"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// ShaderConfig tells a pass where its shaders live and how to build them.
type ShaderConfig struct {
	Dir      string
	Compiler hotreload.Compiler
	// HotReload watches Dir and rebuilds the pipeline on change.
	HotReload bool
	Debounce  time.Duration
}

// program is the set of shader modules a pipeline was built from.
type program struct {
	stages  []metadata.ShaderStage
	modules []metadata.ShaderModule
	version uint64
}

// newProgram creates one module per compiled source. Entry points compiled from the same
// source share a module.
func newProgram(device metadata.Device, name string, blob *hotreload.BytecodeBlob) (*program, error) {
	p := &program{version: blob.Version}
	bySource := make(map[string]metadata.ShaderModule)
	for _, code := range blob.Modules {
		module, ok := bySource[code.Name]
		if !ok || code.Name == "" {
			m, err := device.CreateShaderModule(fmt.Sprintf("%s %s", name, code.Name), code.Code)
			if err != nil {
				p.release()
				return nil, err
			}
			module = m
			bySource[code.Name] = m
			p.modules = append(p.modules, m)
		}
		p.stages = append(p.stages, metadata.ShaderStage{Module: module, Stage: code.Stage, Entry: code.Entry})
	}
	return p, nil
}

func (p *program) stage(stage metadata.ShaderStageFlags) (metadata.ShaderStage, bool) {
	for _, s := range p.stages {
		if s.Stage == stage {
			return s, true
		}
	}
	return metadata.ShaderStage{}, false
}

func (p *program) all(stage metadata.ShaderStageFlags) []metadata.ShaderStage {
	var out []metadata.ShaderStage
	for _, s := range p.stages {
		if s.Stage == stage {
			out = append(out, s)
		}
	}
	return out
}

func (p *program) release() {
	if p == nil {
		return
	}
	metadata.ReleaseAll(p.modules...)
	p.modules = nil
}

// shaderSource runs the initial build and, when enabled, the background watcher.
type shaderSource struct {
	reload  *hotreload.Pipeline
	updates <-chan *hotreload.BytecodeBlob
}

func newShaderSource(ctx context.Context, name string, cfg ShaderConfig) (*shaderSource, *hotreload.BytecodeBlob, error) {
	var opts []hotreload.Option
	if cfg.Debounce > 0 {
		opts = append(opts, hotreload.WithDebounce(cfg.Debounce))
	}
	reload := hotreload.New(name, cfg.Compiler, opts...)

	blob, err := reload.InitialBuild(ctx, cfg.Dir)
	if err != nil {
		return nil, nil, err
	}

	s := &shaderSource{reload: reload}
	if cfg.HotReload {
		updates, err := reload.StartWatch(ctx, cfg.Dir)
		if err != nil {
			core.LogWarn("%s: hot reload disabled: %s", name, err.Error())
		} else {
			s.updates = updates
		}
	}
	return s, blob, nil
}

func (s *shaderSource) poll() (*hotreload.BytecodeBlob, bool) {
	if s == nil || s.updates == nil {
		return nil, false
	}
	return hotreload.Poll(s.updates)
}

func (s *shaderSource) close() {
	if s != nil && s.reload != nil {
		s.reload.Close()
	}
}
