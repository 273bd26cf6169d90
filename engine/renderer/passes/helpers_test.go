package passes

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/spaghettifunk/lumen/engine/renderer/hotreload"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

var spirvMagic = []uint32{0x07230203, 0x00010400}

// switchableCompiler builds the given stages until broken is set.
type switchableCompiler struct {
	stages []hotreload.ShaderModuleCode
	broken atomic.Bool
	builds atomic.Int32
}

func (c *switchableCompiler) Build(_ context.Context, dir string) (*hotreload.BytecodeBlob, error) {
	c.builds.Add(1)
	if c.broken.Load() {
		return nil, errors.New("syntax error")
	}
	return &hotreload.BytecodeBlob{Source: dir, Modules: append([]hotreload.ShaderModuleCode(nil), c.stages...)}, nil
}

func rayTracingCompiler() *switchableCompiler {
	return &switchableCompiler{stages: []hotreload.ShaderModuleCode{
		{Name: "raygen.rgen", Stage: metadata.ShaderStageRaygen, Entry: "main", Code: spirvMagic},
		{Name: "miss.rmiss", Stage: metadata.ShaderStageMiss, Entry: "main", Code: spirvMagic},
		{Name: "closesthit.rchit", Stage: metadata.ShaderStageClosestHit, Entry: "main", Code: spirvMagic},
	}}
}

func wireframeCompiler() *switchableCompiler {
	return &switchableCompiler{stages: []hotreload.ShaderModuleCode{
		{Name: "wireframe.vert", Stage: metadata.ShaderStageVertex, Entry: "main", Code: spirvMagic},
		{Name: "wireframe.frag", Stage: metadata.ShaderStageFragment, Entry: "main", Code: spirvMagic},
	}}
}
