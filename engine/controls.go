package engine

import (
	"github.com/spaghettifunk/lumen/engine/platform"
	"github.com/spaghettifunk/lumen/engine/renderer/components"
)

const (
	defaultMoveSpeed = 5.0
	defaultTurnSpeed = 1.5
)

// CameraControls moves the camera from the keys held down during a frame.
type CameraControls struct {
	// MoveSpeed is in world units per second.
	MoveSpeed float64
	// TurnSpeed is in radians per second.
	TurnSpeed float64
}

func NewCameraControls() *CameraControls {
	return &CameraControls{
		MoveSpeed: defaultMoveSpeed,
		TurnSpeed: defaultTurnSpeed,
	}
}

// axis is +1 when pos is held, -1 when neg is held and 0 when both or none are.
func axis(isDown func(platform.Key) bool, pos, neg platform.Key) float64 {
	v := 0.0
	if isDown(pos) {
		v++
	}
	if isDown(neg) {
		v--
	}
	return v
}

// Apply moves and turns camera for a frame lasting deltaTime seconds.
func (c *CameraControls) Apply(camera *components.Camera, isDown func(platform.Key) bool, deltaTime float64) bool {
	forward := axis(isDown, platform.KeyForward, platform.KeyBackward)
	right := axis(isDown, platform.KeyRight, platform.KeyLeft)
	up := axis(isDown, platform.KeyUp, platform.KeyDown)
	yaw := axis(isDown, platform.KeyTurnRight, platform.KeyTurnLeft)
	pitch := axis(isDown, platform.KeyTurnUp, platform.KeyTurnDown)

	if forward == 0 && right == 0 && up == 0 && yaw == 0 && pitch == 0 {
		return false
	}
	step := c.MoveSpeed * deltaTime
	turn := c.TurnSpeed * deltaTime
	camera.Move(forward*step, right*step, up*step)
	camera.Rotate(yaw*turn, pitch*turn)
	return true
}
