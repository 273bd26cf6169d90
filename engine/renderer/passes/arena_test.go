package passes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/renderer/components"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type stubPass struct {
	released bool
}

func (s *stubPass) PrepareScene(metadata.Scene) error { return nil }
func (s *stubPass) Update() error                      { return nil }
func (s *stubPass) Execute(metadata.CommandRecorder, metadata.ImageView, *components.Camera, *metadata.Color, metadata.ImageView) error {
	return nil
}
func (s *stubPass) Release() { s.released = true }

func TestParsePassKind(t *testing.T) {
	k, err := ParsePassKind("Wireframe")
	require.NoError(t, err)
	assert.Equal(t, PassKindWireframe, k)

	k, err = ParsePassKind("raytracing")
	require.NoError(t, err)
	assert.Equal(t, PassKindRayTracing, k)
	assert.Equal(t, "raytracing", k.String())

	_, err = ParsePassKind("pathtracing")
	assert.Error(t, err)
}

func TestArenaSwitch(t *testing.T) {
	wire, rt := &stubPass{}, &stubPass{}
	arena, err := NewArena(PassKindRayTracing, map[PassKind]ScenePass{
		PassKindWireframe:  wire,
		PassKindRayTracing: rt,
	})
	require.NoError(t, err)
	assert.Same(t, rt, arena.Active())
	assert.ElementsMatch(t, []PassKind{PassKindWireframe, PassKindRayTracing}, arena.Kinds())

	assert.False(t, arena.ApplySwitches())

	require.True(t, arena.RequestSwitch(PassKindWireframe))
	assert.Same(t, rt, arena.Active(), "switches apply at frame start only")
	assert.True(t, arena.ApplySwitches())
	assert.Same(t, wire, arena.Active())
	assert.Equal(t, PassKindWireframe, arena.ActiveKind())

	arena.RequestSwitch(PassKindRayTracing)
	arena.RequestSwitch(PassKindWireframe)
	assert.False(t, arena.ApplySwitches(), "the last request wins")
	assert.Same(t, wire, arena.Active())

	arena.Release()
	assert.True(t, wire.released)
	assert.True(t, rt.released)
	assert.Nil(t, arena.Get(PassKindWireframe))
}

func TestArenaUnavailablePass(t *testing.T) {
	wire := &stubPass{}
	_, err := NewArena(PassKindRayTracing, map[PassKind]ScenePass{PassKindWireframe: wire})
	assert.Error(t, err)

	arena, err := NewArena(PassKindWireframe, map[PassKind]ScenePass{PassKindWireframe: wire})
	require.NoError(t, err)
	arena.RequestSwitch(PassKindRayTracing)
	assert.False(t, arena.ApplySwitches())
	assert.Same(t, wire, arena.Active())
}

func TestArenaInvalidInitialKind(t *testing.T) {
	wire := &stubPass{}
	assert.NotPanics(t, func() {
		_, err := NewArena(PassKind(99), map[PassKind]ScenePass{PassKindWireframe: wire})
		assert.Error(t, err)
	})
	_, err := NewArena(passKindCount, map[PassKind]ScenePass{PassKindWireframe: wire})
	assert.Error(t, err)
}

func TestArenaRequestQueueFull(t *testing.T) {
	arena, err := NewArena(PassKindWireframe, map[PassKind]ScenePass{PassKindWireframe: &stubPass{}})
	require.NoError(t, err)
	for i := 0; i < switchQueueSize; i++ {
		require.True(t, arena.RequestSwitch(PassKindWireframe))
	}
	assert.False(t, arena.RequestSwitch(PassKindWireframe))
}
