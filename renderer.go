package multiverse

import (
	"fmt"
	"runtime"
	"sync"
)

// backend is a complete render pipeline bound to one OS thread. The
// Renderer owns the thread; backends never see concurrent calls.
type backend interface {
	Render(p *passInput) (*Frame, error)
	RenderSync(p *passInput) (*Frame, error)
	Name() string
	Close() error
}

// Config holds the construction-time renderer settings. The zero value
// of the blend fields picks the defaults below.
type Config struct {
	Width  int
	Height int

	// ForceCPU skips the GPU backend even when one would come up.
	ForceCPU bool

	BlendMode             float32
	Brightness            float32 // <= 0 means the 2.5 default
	BaseHue               float32
	ColorScheme           float32
	ExternalBlendStrength float32
}

const defaultBrightness = 2.5

type syncRequest struct {
	pass  *passInput
	reply chan syncResult
}

type syncResult struct {
	frame *Frame
	err   error
}

// Renderer is the concurrency front end over one backend. Render may be
// called from any goroutine: each call deposits a compiled pass into a
// single-slot mailbox and returns immediately with the latest completed
// frame. When passes arrive faster than the backend drains them, stale
// pending passes are overwritten, never queued.
type Renderer struct {
	width  int
	height int

	mu      sync.Mutex
	state   BlendState
	pending *passInput
	last    *Frame
	name    string

	signal chan struct{}
	syncCh chan syncRequest
	quit   chan struct{}
	done   chan struct{}

	closeOnce sync.Once
}

// New starts the render owner goroutine and brings up a backend on it:
// the GPU pipeline when one can be created, the concurrent CPU pipeline
// otherwise. The fallback is logged, not surfaced as an error.
func New(cfg Config) (*Renderer, error) {
	return newRenderer(cfg, func(width, height int) (backend, error) {
		if cfg.ForceCPU {
			return NewCPURenderer(width, height), nil
		}
		b, err := NewGLRenderer(width, height)
		if err != nil {
			logger.Warn("gpu backend unavailable, falling back to cpu", "error", err)
			return NewCPURenderer(width, height), nil
		}
		return b, nil
	})
}

func newRenderer(cfg Config, create func(width, height int) (backend, error)) (*Renderer, error) {
	if cfg.Width == 0 && cfg.Height == 0 {
		cfg.Width, cfg.Height = 1920, 1080
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid size %dx%d", cfg.Width, cfg.Height)
	}
	brightness := cfg.Brightness
	if brightness <= 0 {
		brightness = defaultBrightness
	}
	r := &Renderer{
		width:  cfg.Width,
		height: cfg.Height,
		state: BlendState{
			BlendMode:             cfg.BlendMode,
			Brightness:            brightness,
			BaseHue:               cfg.BaseHue,
			ColorScheme:           cfg.ColorScheme,
			ExternalBlendStrength: cfg.ExternalBlendStrength,
		}.clamped(),
		signal: make(chan struct{}, 1),
		syncCh: make(chan syncRequest),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	ready := make(chan error)
	go r.run(create, ready)
	if err := <-ready; err != nil {
		return nil, err
	}
	return r, nil
}

// run is the owner goroutine. The backend is created, used and closed on
// this one locked thread; nothing else ever touches it.
func (r *Renderer) run(create func(width, height int) (backend, error), ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	b, err := create(r.width, r.height)
	if err != nil {
		ready <- err
		return
	}
	r.mu.Lock()
	r.name = b.Name()
	r.mu.Unlock()
	logger.Info("renderer started", "backend", b.Name(), "width", r.width, "height", r.height)
	ready <- nil

	for {
		select {
		case <-r.signal:
			r.mu.Lock()
			pass := r.pending
			r.pending = nil
			r.mu.Unlock()
			if pass == nil {
				continue
			}
			frame, err := b.Render(pass)
			if err != nil {
				logger.Error("render pass failed", "error", err)
				continue
			}
			if frame != nil {
				r.mu.Lock()
				r.last = frame
				r.mu.Unlock()
			}
		case req := <-r.syncCh:
			frame, err := b.RenderSync(req.pass)
			if err == nil && frame != nil {
				r.mu.Lock()
				r.last = frame
				r.mu.Unlock()
			}
			req.reply <- syncResult{frame: frame, err: err}
		case <-r.quit:
			if err := b.Close(); err != nil {
				logger.Error("backend close failed", "error", err)
			}
			close(r.done)
			return
		}
	}
}

// Render schedules one pass and returns without waiting for it. The
// returned frame is the most recently completed one, which on a busy
// renderer lags the input by one or two passes.
func (r *Renderer) Render(in RenderInput) *Frame {
	r.mu.Lock()
	st := r.state
	r.mu.Unlock()

	pass := compilePass(in, st, r.width, r.height)

	r.mu.Lock()
	r.pending = pass
	r.mu.Unlock()
	select {
	case r.signal <- struct{}{}:
	default:
	}
	return r.LastFrame()
}

// RenderSync renders the given input and blocks until its frame is
// complete. Sync passes bypass the coalescing mailbox.
func (r *Renderer) RenderSync(in RenderInput) (*Frame, error) {
	r.mu.Lock()
	st := r.state
	r.mu.Unlock()

	pass := compilePass(in, st, r.width, r.height)
	req := syncRequest{pass: pass, reply: make(chan syncResult, 1)}
	select {
	case r.syncCh <- req:
	case <-r.done:
		return nil, fmt.Errorf("renderer closed")
	}
	res := <-req.reply
	if res.err != nil {
		return nil, res.err
	}
	if res.frame == nil {
		return NewFrame(r.width, r.height), nil
	}
	return res.frame, nil
}

// LastFrame returns a copy of the most recently completed frame, or an
// all-black frame before the first pass finishes.
func (r *Renderer) LastFrame() *Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return NewFrame(r.width, r.height)
	}
	return r.last.Clone()
}

// Backend reports which pipeline came up, "gl" or "cpu".
func (r *Renderer) Backend() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.name
}

func (r *Renderer) SetBlendMode(t float32) {
	r.mu.Lock()
	r.state.BlendMode = clamp32(t, 0, 1)
	r.mu.Unlock()
}

func (r *Renderer) SetBrightness(b float32) {
	r.mu.Lock()
	r.state.Brightness = clamp32(b, 0, 4)
	r.mu.Unlock()
}

func (r *Renderer) SetBaseHue(h float32) {
	r.mu.Lock()
	r.state.BaseHue = fract32(h)
	r.mu.Unlock()
}

// SetEnvelopeOffset rotates the hue of channel ch (1..3) by offset and
// desaturates it in proportion. Channel 0 is the anchor and has no
// offset.
func (r *Renderer) SetEnvelopeOffset(ch int, offset float32) {
	if ch < 1 || ch >= MaxChannels {
		return
	}
	r.mu.Lock()
	r.state.EnvelopeOffsets[ch-1] = offset
	r.mu.Unlock()
}

func (r *Renderer) SetColorScheme(t float32) {
	r.mu.Lock()
	r.state.ColorScheme = clamp32(t, 0, 1)
	r.mu.Unlock()
}

func (r *Renderer) SetExternalBlendStrength(s float32) {
	r.mu.Lock()
	r.state.ExternalBlendStrength = clamp32(s, 0, 1)
	r.mu.Unlock()
}

// Close shuts the owner goroutine down and releases the backend on its
// own thread. Pending passes that never ran are dropped.
func (r *Renderer) Close() error {
	r.closeOnce.Do(func() {
		close(r.quit)
		<-r.done
	})
	return nil
}
