package hotreload

import (
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// ShaderModuleCode is one entry point of a compiled SPIR-V module.
type ShaderModuleCode struct {
	// Name is the source file the code was compiled from, relative to the source dir.
	Name  string
	Stage metadata.ShaderStageFlags
	Entry string
	Code  []uint32
}

// BytecodeBlob is the result of one build of a shader source directory.
type BytecodeBlob struct {
	// Version increases with every successful build of the same pipeline.
	Version uint64
	Source  string
	Modules []ShaderModuleCode
}

// Module returns the first module compiled for stage.
func (b *BytecodeBlob) Module(stage metadata.ShaderStageFlags) (ShaderModuleCode, bool) {
	for _, m := range b.Modules {
		if m.Stage == stage {
			return m, true
		}
	}
	return ShaderModuleCode{}, false
}

// Stages returns the union of every compiled stage.
func (b *BytecodeBlob) Stages() metadata.ShaderStageFlags {
	var s metadata.ShaderStageFlags
	for _, m := range b.Modules {
		s |= m.Stage
	}
	return s
}

// glslStages maps the glslc file extensions to their shader stage.
var glslStages = map[string]metadata.ShaderStageFlags{
	".vert":  metadata.ShaderStageVertex,
	".frag":  metadata.ShaderStageFragment,
	".comp":  metadata.ShaderStageCompute,
	".rgen":  metadata.ShaderStageRaygen,
	".rmiss": metadata.ShaderStageMiss,
	".rchit": metadata.ShaderStageClosestHit,
	".rahit": metadata.ShaderStageAnyHit,
}

// GLSLStage returns the stage of a GLSL source file, based on its extension.
func GLSLStage(path string) (metadata.ShaderStageFlags, bool) {
	s, ok := glslStages[strings.ToLower(filepath.Ext(path))]
	return s, ok
}

// IsShaderSource reports whether path is a file the compilers understand.
func IsShaderSource(path string) bool {
	if _, ok := GLSLStage(path); ok {
		return true
	}
	return strings.EqualFold(filepath.Ext(path), ".wgsl")
}

// bytesToBytecode reinterprets little endian SPIR-V bytes as words.
func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}
	return byteCode
}
