package hotreload

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

const spirvMagic = 0x07230203

const doubleWGSL = `
@group(0) @binding(0) var<storage, read_write> data: array<u32>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    data[id.x] = data[id.x] * 2u;
}
`

type fakeFileCompiler struct {
	stage metadata.ShaderStageFlags
	paths []string
}

func (f *fakeFileCompiler) CompileFile(_ context.Context, path string) ([]ShaderModuleCode, error) {
	f.paths = append(f.paths, path)
	return []ShaderModuleCode{{Stage: f.stage, Entry: "main", Code: []uint32{spirvMagic}}}, nil
}

func TestGLSLStage(t *testing.T) {
	s, ok := GLSLStage("shaders/raygen.rgen")
	assert.True(t, ok)
	assert.Equal(t, metadata.ShaderStageRaygen, s)

	s, ok = GLSLStage("closesthit.RCHIT")
	assert.True(t, ok)
	assert.Equal(t, metadata.ShaderStageClosestHit, s)

	_, ok = GLSLStage("readme.md")
	assert.False(t, ok)

	assert.True(t, IsShaderSource("shader.wgsl"))
	assert.False(t, IsShaderSource("shader.spv"))
}

func TestBytesToBytecode(t *testing.T) {
	words := bytesToBytecode([]byte{0x03, 0x02, 0x23, 0x07, 0x01, 0x00, 0x00, 0x00})
	assert.Equal(t, []uint32{spirvMagic, 1}, words)
}

func TestDirCompilerDispatch(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"raygen.rgen", "miss.rmiss", "post.wgsl", "README.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "include.rgen"), 0o755))

	glsl := &fakeFileCompiler{stage: metadata.ShaderStageRaygen}
	wgsl := &fakeFileCompiler{stage: metadata.ShaderStageCompute}
	d := &DirCompiler{Glsl: glsl, Wgsl: wgsl}

	blob, err := d.Build(context.Background(), dir)
	require.NoError(t, err)
	assert.Len(t, glsl.paths, 2)
	assert.Len(t, wgsl.paths, 1)
	assert.Len(t, blob.Modules, 3)
	assert.Equal(t, dir, blob.Source)
	assert.Equal(t, metadata.ShaderStageRaygen|metadata.ShaderStageCompute, blob.Stages())

	m, ok := blob.Module(metadata.ShaderStageCompute)
	require.True(t, ok)
	assert.Equal(t, "post.wgsl", m.Name)
}

func TestDirCompilerEmptyDir(t *testing.T) {
	d := &DirCompiler{Glsl: &fakeFileCompiler{}, Wgsl: &fakeFileCompiler{}}
	_, err := d.Build(context.Background(), t.TempDir())
	assert.Error(t, err)
}

func TestNagaCompile(t *testing.T) {
	modules, err := compileWGSL(doubleWGSL)
	require.NoError(t, err)
	require.Len(t, modules, 1)
	assert.Equal(t, metadata.ShaderStageCompute, modules[0].Stage)
	assert.Equal(t, "main", modules[0].Entry)
	require.NotEmpty(t, modules[0].Code)
	assert.Equal(t, uint32(spirvMagic), modules[0].Code[0])
}

func TestNagaCompileError(t *testing.T) {
	_, err := compileWGSL("fn broken( {")
	assert.Error(t, err)
}

func TestGlslcCompile(t *testing.T) {
	if _, err := exec.LookPath("glslc"); err != nil {
		t.Skip("glslc not installed")
	}
	dir := t.TempDir()
	src := filepath.Join(dir, "color.frag")
	require.NoError(t, os.WriteFile(src, []byte("#version 450\nlayout(location = 0) out vec4 color;\nvoid main() { color = vec4(0.0, 1.0, 0.0, 1.0); }\n"), 0o644))

	modules, err := (&GlslcCompiler{}).CompileFile(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, modules, 1)
	assert.Equal(t, metadata.ShaderStageFragment, modules[0].Stage)
	assert.Equal(t, uint32(spirvMagic), modules[0].Code[0])
}
