package core

import (
	"errors"
)

var (
	ErrSwapchainBooting   = errors.New("swapchain resized or recreated, booting")
	ErrNoSuitableGPU      = errors.New("no suitable ray tracing capable GPU")
	ErrShaderBuild        = errors.New("shader build failed")
	ErrLayoutCreation     = errors.New("descriptor layout creation failed")
	ErrNoActiveScene      = errors.New("no active scene")
	ErrPreconditionNotMet = errors.New("render precondition not met")
	ErrSceneUploadFailed  = errors.New("scene upload failed")
	ErrUnknown            = errors.New("unknown")
)
