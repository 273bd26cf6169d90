// Package passes holds the pluggable scene passes and the arena that switches between them.
package passes

import (
	"github.com/spaghettifunk/lumen/engine/renderer/components"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// ScenePass renders a scene into a target image. Passes are driven by the render
// goroutine, once per frame: Update, then PrepareScene, then Execute.
type ScenePass interface {
	// PrepareScene uploads whatever the pass needs from scene. It is cheap when the
	// scene did not change since the last call.
	PrepareScene(scene metadata.Scene) error
	// Update consumes pending shader rebuilds. It never blocks.
	Update() error
	// Execute records the pass into rec. clear is optional, skymap is only used by
	// passes that sample a sky.
	Execute(rec metadata.CommandRecorder, target metadata.ImageView, camera *components.Camera, clear *metadata.Color, skymap metadata.ImageView) error
	Release()
}
