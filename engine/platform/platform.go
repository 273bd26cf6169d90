package platform

import (
	"runtime"
	"sync"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/lumen/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

type Key int

const (
	KeyUnknown Key = iota
	KeyWireframe
	KeyRayTracing
	KeyForward
	KeyBackward
	KeyLeft
	KeyRight
	KeyUp
	KeyDown
	KeyTurnLeft
	KeyTurnRight
	KeyTurnUp
	KeyTurnDown
	KeyEscape
	keyCount
)

var keyMap = map[glfw.Key]Key{
	glfw.Key1:      KeyWireframe,
	glfw.Key2:      KeyRayTracing,
	glfw.KeyW:      KeyForward,
	glfw.KeyS:      KeyBackward,
	glfw.KeyA:      KeyLeft,
	glfw.KeyD:      KeyRight,
	glfw.KeyE:      KeyUp,
	glfw.KeyQ:      KeyDown,
	glfw.KeyLeft:   KeyTurnLeft,
	glfw.KeyRight:  KeyTurnRight,
	glfw.KeyUp:     KeyTurnUp,
	glfw.KeyDown:   KeyTurnDown,
	glfw.KeyEscape: KeyEscape,
}

// TranslateKey maps a glfw key to the keys the engine reacts to.
func TranslateKey(key glfw.Key) Key {
	if k, ok := keyMap[key]; ok {
		return k
	}
	return KeyUnknown
}

// Platform owns the window. Callbacks run on the main thread inside PumpMessages.
type Platform struct {
	Window *glfw.Window

	mu      sync.Mutex
	pressed [keyCount]bool

	OnKeyPressed func(key Key)
	OnResized    func(width, height uint32)
}

func New() (*Platform, error) {
	return &Platform{
		Window: nil,
	}, nil
}

func (p *Platform) Startup(applicationName string, x uint32, y uint32, width uint32, height uint32) error {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return err
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return core.ErrNoSuitableGPU
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		core.LogError("failed to create window: %s", err)
		glfw.Terminate()
		return err
	}
	p.Window = window

	p.Window.SetKeyCallback(p.keyCallback)
	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetPos(int(x), int(y))
	p.Window.Show()

	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

// PumpMessages processes pending window events.
func (p *Platform) PumpMessages() {
	glfw.PollEvents()
}

func (p *Platform) ShouldClose() bool {
	return p.Window == nil || p.Window.ShouldClose()
}

func (p *Platform) RequestClose() {
	if p.Window != nil {
		p.Window.SetShouldClose(true)
	}
}

func (p *Platform) GetRequiredExtensionNames() []string {
	return p.Window.GetRequiredInstanceExtensions()
}

func (p *Platform) FramebufferSize() (uint32, uint32) {
	w, h := p.Window.GetFramebufferSize()
	return uint32(w), uint32(h)
}

func (p *Platform) IsKeyDown(key Key) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pressed[key]
}

// GetTime is the number of seconds since glfw was initialized.
func (p *Platform) GetTime() float64 {
	return glfw.GetTime()
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	k := TranslateKey(key)
	if k == KeyUnknown {
		return
	}
	p.mu.Lock()
	switch action {
	case glfw.Press, glfw.Repeat:
		p.pressed[k] = true
	case glfw.Release:
		p.pressed[k] = false
	}
	p.mu.Unlock()

	if action == glfw.Press && p.OnKeyPressed != nil {
		p.OnKeyPressed(k)
	}
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	if p.OnResized != nil {
		p.OnResized(uint32(width), uint32(height))
	}
}
