package multiverse

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubBackend records the passes it renders and can be gated to hold the
// owner goroutine inside a render, which is how the coalescing behavior
// gets observed.
type stubBackend struct {
	mu       sync.Mutex
	gate     chan struct{}
	rendered []*passInput
	closed   bool
}

func (s *stubBackend) Render(p *passInput) (*Frame, error) {
	s.mu.Lock()
	s.rendered = append(s.rendered, p)
	n := len(s.rendered)
	s.mu.Unlock()
	if s.gate != nil {
		<-s.gate
	}
	f := NewFrame(2, 2)
	f.Pix[0] = uint8(n)
	return f, nil
}

func (s *stubBackend) RenderSync(p *passInput) (*Frame, error) { return s.Render(p) }

func (s *stubBackend) Name() string { return "stub" }

func (s *stubBackend) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *stubBackend) renderedPasses() []*passInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*passInput(nil), s.rendered...)
}

func newStubRenderer(t *testing.T, stub *stubBackend) *Renderer {
	t.Helper()
	r, err := newRenderer(Config{Width: 2, Height: 2},
		func(width, height int) (backend, error) { return stub, nil })
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func oneChannelInput(ratio float32) RenderInput {
	return RenderInput{Channels: []Channel{{
		Audio:     []float32{1, 2, 3},
		Frequency: 440,
		Ratio:     ratio,
		Enabled:   true,
	}}}
}

func TestNewRendererRejectsBadSize(t *testing.T) {
	_, err := newRenderer(Config{Width: 0, Height: 10},
		func(width, height int) (backend, error) { return &stubBackend{}, nil })
	assert.Error(t, err)
}

func TestRendererBackendName(t *testing.T) {
	r := newStubRenderer(t, &stubBackend{})
	assert.Equal(t, "stub", r.Backend())
}

func TestRendererFirstFrameBlack(t *testing.T) {
	r := newStubRenderer(t, &stubBackend{})
	f := r.LastFrame()
	require.NotNil(t, f)
	for _, p := range f.Pix {
		require.Equal(t, uint8(0), p)
	}
}

func TestRendererCoalescing(t *testing.T) {
	stub := &stubBackend{gate: make(chan struct{})}
	r := newStubRenderer(t, stub)

	// The first pass parks the owner goroutine in the gate; everything
	// submitted after that lands in the single mailbox slot.
	r.Render(oneChannelInput(1))
	require.Eventually(t, func() bool {
		return len(stub.renderedPasses()) == 1
	}, time.Second, time.Millisecond)

	const burst = 50
	for i := 0; i < burst; i++ {
		r.Render(oneChannelInput(float32(i + 2)))
	}
	close(stub.gate)

	require.Eventually(t, func() bool {
		return len(stub.renderedPasses()) == 2
	}, time.Second, time.Millisecond)

	passes := stub.renderedPasses()
	assert.Equal(t, float32(1), passes[0].channels[0].ratio)
	// Intermediate submissions were overwritten; only the newest ran.
	assert.Equal(t, float32(burst+1), passes[1].channels[0].ratio)
}

func TestRendererRenderDoesNotBlock(t *testing.T) {
	stub := &stubBackend{gate: make(chan struct{})}
	r := newStubRenderer(t, stub)
	defer close(stub.gate)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			r.Render(oneChannelInput(1))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Render blocked on a busy backend")
	}
}

func TestRendererRenderSync(t *testing.T) {
	stub := &stubBackend{}
	r := newStubRenderer(t, stub)

	f, err := r.RenderSync(oneChannelInput(3))
	require.NoError(t, err)
	require.NotNil(t, f)

	passes := stub.renderedPasses()
	require.Len(t, passes, 1)
	assert.Equal(t, float32(3), passes[0].channels[0].ratio)

	// The sync frame becomes the latest frame.
	assert.Equal(t, f.Pix, r.LastFrame().Pix)
}

func TestRendererStateSnapshot(t *testing.T) {
	stub := &stubBackend{}
	r := newStubRenderer(t, stub)

	r.SetBlendMode(0.4)
	r.SetBrightness(10) // clamps to 4
	r.SetBaseHue(1.25)  // wraps to 0.25
	r.SetColorScheme(0.5)
	r.SetEnvelopeOffset(2, 0.3)
	r.SetEnvelopeOffset(0, 0.9) // channel 0 has no offset slot
	r.SetExternalBlendStrength(2)

	_, err := r.RenderSync(oneChannelInput(1))
	require.NoError(t, err)

	st := stub.renderedPasses()[0].state
	assert.Equal(t, float32(0.4), st.BlendMode)
	assert.Equal(t, float32(4), st.Brightness)
	assert.InDelta(t, 0.25, st.BaseHue, 1e-5)
	assert.Equal(t, float32(0.5), st.ColorScheme)
	assert.Equal(t, [3]float32{0, 0.3, 0}, st.EnvelopeOffsets)
	assert.Equal(t, float32(1), st.ExternalBlendStrength)
}

func TestRendererDefaultBrightness(t *testing.T) {
	stub := &stubBackend{}
	r := newStubRenderer(t, stub)
	_, err := r.RenderSync(oneChannelInput(1))
	require.NoError(t, err)
	assert.Equal(t, float32(defaultBrightness), stub.renderedPasses()[0].state.Brightness)
}

func TestRendererClose(t *testing.T) {
	stub := &stubBackend{}
	r := newStubRenderer(t, stub)

	require.NoError(t, r.Close())
	stub.mu.Lock()
	closed := stub.closed
	stub.mu.Unlock()
	assert.True(t, closed)

	// Close is idempotent and late calls stay safe.
	require.NoError(t, r.Close())
	r.Render(oneChannelInput(1))
	_, err := r.RenderSync(oneChannelInput(1))
	assert.Error(t, err)
}
