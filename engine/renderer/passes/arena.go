package passes

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/lumen/engine/core"
)

// PassKind identifies one of the available scene passes.
type PassKind uint8

const (
	PassKindWireframe PassKind = iota
	PassKindRayTracing
	passKindCount
)

func (k PassKind) String() string {
	switch k {
	case PassKindWireframe:
		return "wireframe"
	case PassKindRayTracing:
		return "raytracing"
	}
	return fmt.Sprintf("pass(%d)", uint8(k))
}

func ParsePassKind(s string) (PassKind, error) {
	switch strings.ToLower(s) {
	case "wireframe":
		return PassKindWireframe, nil
	case "raytracing", "ray_tracing", "rt":
		return PassKindRayTracing, nil
	}
	return 0, fmt.Errorf("unknown pass %q", s)
}

const switchQueueSize = 8

// Arena owns one pass per kind. Switch requests may come from any goroutine and are
// applied by the render goroutine at the start of a frame.
type Arena struct {
	passes   [passKindCount]ScenePass
	active   PassKind
	requests chan PassKind
}

func NewArena(initial PassKind, passes map[PassKind]ScenePass) (*Arena, error) {
	a := &Arena{requests: make(chan PassKind, switchQueueSize)}
	for k, p := range passes {
		if k >= passKindCount {
			return nil, fmt.Errorf("invalid pass kind %d", k)
		}
		a.passes[k] = p
	}
	if a.Get(initial) == nil {
		return nil, fmt.Errorf("initial pass %s is not available", initial)
	}
	a.active = initial
	return a, nil
}

// RequestSwitch queues a switch to kind. It never blocks and reports false when the
// queue is full.
func (a *Arena) RequestSwitch(kind PassKind) bool {
	select {
	case a.requests <- kind:
		return true
	default:
		return false
	}
}

// ApplySwitches drains pending requests, the last available kind wins. It reports
// whether the active pass changed.
func (a *Arena) ApplySwitches() bool {
	prev := a.active
	for {
		select {
		case k := <-a.requests:
			if k >= passKindCount || a.passes[k] == nil {
				core.LogWarn("ignoring switch to unavailable pass %s", k)
				continue
			}
			a.active = k
		default:
			if a.active != prev {
				core.LogInfo("switching scene pass from %s to %s", prev, a.active)
				return true
			}
			return false
		}
	}
}

func (a *Arena) Active() ScenePass {
	return a.passes[a.active]
}

func (a *Arena) ActiveKind() PassKind {
	return a.active
}

// Get returns the pass of kind, nil when not available.
func (a *Arena) Get(kind PassKind) ScenePass {
	if kind >= passKindCount {
		return nil
	}
	return a.passes[kind]
}

// Kinds lists the available passes.
func (a *Arena) Kinds() []PassKind {
	var kinds []PassKind
	for k, p := range a.passes {
		if p != nil {
			kinds = append(kinds, PassKind(k))
		}
	}
	return kinds
}

func (a *Arena) Release() {
	for k, p := range a.passes {
		if p != nil {
			p.Release()
			a.passes[k] = nil
		}
	}
}
