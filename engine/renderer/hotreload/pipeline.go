// Package hotreload compiles shader sources and recompiles them in the background
// whenever they change on disk.
package hotreload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/lumen/engine/core"
)

const defaultDebounce = 100 * time.Millisecond

type Option func(*Pipeline)

// WithDebounce sets how long the watcher waits for more events before rebuilding.
func WithDebounce(d time.Duration) Option {
	return func(p *Pipeline) {
		p.debounce = d
	}
}

// Pipeline hands compiled bytecode to the render goroutine. At most one unconsumed blob
// is buffered, a newer build replaces an older one.
type Pipeline struct {
	name     string
	compiler Compiler
	debounce time.Duration

	version atomic.Uint64
	slot    chan *BytecodeBlob
	sendMu  sync.Mutex

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func New(name string, compiler Compiler, opts ...Option) *Pipeline {
	p := &Pipeline{
		name:     name,
		compiler: compiler,
		debounce: defaultDebounce,
		slot:     make(chan *BytecodeBlob, 1),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// InitialBuild compiles dir and blocks until done. A failure wraps core.ErrShaderBuild.
func (p *Pipeline) InitialBuild(ctx context.Context, dir string) (*BytecodeBlob, error) {
	blob, err := p.build(ctx, dir)
	if err != nil {
		err = fmt.Errorf("%s: initial build of %s: %w: %w", p.name, dir, core.ErrShaderBuild, err)
		core.LogError(err.Error())
		return nil, err
	}
	core.LogInfo("%s shaders built from %s (version %d)", p.name, dir, blob.Version)
	return blob, nil
}

func (p *Pipeline) build(ctx context.Context, dir string) (*BytecodeBlob, error) {
	blob, err := p.compiler.Build(ctx, dir)
	if err != nil {
		return nil, err
	}
	if blob == nil || len(blob.Modules) == 0 {
		return nil, errors.New("compiler produced no modules")
	}
	blob.Version = p.version.Add(1)
	if blob.Source == "" {
		blob.Source = dir
	}
	return blob, nil
}

// StartWatch watches dir and pushes every successful rebuild into the returned channel.
// The watcher runs until ctx is done or Close is called.
func (p *Pipeline) StartWatch(ctx context.Context, dir string) (<-chan *BytecodeBlob, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil, fmt.Errorf("%s: watcher already started", p.name)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("%s: failed to watch %s: %w", p.name, dir, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.started = true

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer watcher.Close()
		p.watch(ctx, watcher, dir)
	}()

	core.LogDebug("%s: watching %s for shader changes", p.name, dir)
	return p.slot, nil
}

func (p *Pipeline) watch(ctx context.Context, watcher *fsnotify.Watcher, dir string) {
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case e, ok := <-watcher.Events:
			if !ok {
				core.LogWarn("%s: watcher closed, hot reload disabled", p.name)
				return
			}
			if !IsShaderSource(e.Name) || !e.Op.Has(fsnotify.Create) && !e.Op.Has(fsnotify.Write) && !e.Op.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(p.debounce)
			} else {
				timer.Reset(p.debounce)
			}
			fire = timer.C

		case err, ok := <-watcher.Errors:
			if !ok {
				core.LogWarn("%s: watcher closed, hot reload disabled", p.name)
				return
			}
			core.LogError("%s: watcher error: %s", p.name, err.Error())

		case <-fire:
			fire = nil
			blob, err := p.build(ctx, dir)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				core.LogError("%s: shader rebuild failed: %s", p.name, err.Error())
				continue
			}
			p.publish(blob)
			core.LogInfo("%s: shaders rebuilt (version %d)", p.name, blob.Version)

		case <-ctx.Done():
			return
		}
	}
}

// publish replaces any unconsumed blob with blob. It never blocks.
func (p *Pipeline) publish(blob *BytecodeBlob) {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	select {
	case <-p.slot:
	default:
	}
	p.slot <- blob
}

// Poll returns the pending blob, if any, without blocking.
func (p *Pipeline) Poll() (*BytecodeBlob, bool) {
	return Poll(p.slot)
}

// Poll performs a non blocking receive on ch.
func Poll(ch <-chan *BytecodeBlob) (*BytecodeBlob, bool) {
	select {
	case b, ok := <-ch:
		if !ok || b == nil {
			return nil, false
		}
		return b, true
	default:
		return nil, false
	}
}

// Close stops the watcher and waits for it to exit. It is safe to call more than once.
func (p *Pipeline) Close() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}
