package multiverse

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newGLForTest brings up the GPU backend on the test goroutine's thread,
// or skips when the host has no GL stack (headless CI).
func newGLForTest(t *testing.T, width, height int) *GLRenderer {
	t.Helper()
	runtime.LockOSThread()
	r, err := NewGLRenderer(width, height)
	if err != nil {
		runtime.UnlockOSThread()
		t.Skipf("no GL context: %v", err)
	}
	t.Cleanup(func() {
		r.Close()
		runtime.UnlockOSThread()
	})
	return r
}

func maxByteDiff(a, b *Frame) int {
	max := 0
	for i := range a.Pix {
		d := int(a.Pix[i]) - int(b.Pix[i])
		if d < 0 {
			d = -d
		}
		if d > max {
			max = d
		}
	}
	return max
}

func TestGLFirstFrameNil(t *testing.T) {
	r := newGLForTest(t, 16, 16)
	p := compilePass(fourChannelInput(), BlendState{Brightness: 2.5}, 16, 16)
	frame, err := r.Render(p)
	require.NoError(t, err)
	assert.Nil(t, frame)

	frame, err = r.Render(p)
	require.NoError(t, err)
	assert.NotNil(t, frame)
}

func TestGLMatchesCPULayered(t *testing.T) {
	const w, h = 64, 48
	r := newGLForTest(t, w, h)
	st := BlendState{Brightness: 2.5, BlendMode: 0.4, ColorScheme: 0.3}
	p := compilePass(fourChannelInput(), st, w, h)

	gpu, err := r.RenderSync(p)
	require.NoError(t, err)
	cpu, err := NewCPURenderer(w, h).Render(p)
	require.NoError(t, err)

	assert.LessOrEqual(t, maxByteDiff(gpu, cpu), 1)
}

func TestGLMatchesCPURegionGated(t *testing.T) {
	const w, h = 64, 48
	r := newGLForTest(t, w, h)
	in := fourChannelInput()
	in.Region = QuadrantRegions(w, h)
	p := compilePass(in, BlendState{Brightness: 2.5, BlendMode: 0.5}, w, h)

	gpu, err := r.RenderSync(p)
	require.NoError(t, err)
	cpu, err := NewCPURenderer(w, h).Render(p)
	require.NoError(t, err)

	assert.LessOrEqual(t, maxByteDiff(gpu, cpu), 1)
}

func TestGLMatchesCPUCurved(t *testing.T) {
	const w, h = 64, 48
	r := newGLForTest(t, w, h)
	in := RenderInput{Channels: []Channel{{
		Audio:     sineRing(440, RingSamples),
		Frequency: 440,
		Intensity: 1,
		Curve:     0.5,
		Angle:     45,
		Ratio:     2,
		Enabled:   true,
	}}}
	p := compilePass(in, BlendState{Brightness: 2.5}, w, h)

	gpu, err := r.RenderSync(p)
	require.NoError(t, err)
	cpu, err := NewCPURenderer(w, h).Render(p)
	require.NoError(t, err)

	assert.LessOrEqual(t, maxByteDiff(gpu, cpu), 1)
}

func TestGLMatchesCPUReferenceRegions(t *testing.T) {
	const w, h = 64, 48
	r := newGLForTest(t, w, h)
	in := fourChannelInput()
	// Horizontal brightness ramp: the reference quantizes to all four
	// regions, in-shader on the GL side, via BrightnessRegions on the CPU.
	in.Reference = NewFrame(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(x * 255 / (w - 1))
			in.Reference.Set(x, y, v, v, v)
		}
	}
	p := compilePass(in, BlendState{Brightness: 2.5}, w, h)

	gpu, err := r.RenderSync(p)
	require.NoError(t, err)
	cpu, err := NewCPURenderer(w, h).Render(p)
	require.NoError(t, err)

	assert.LessOrEqual(t, maxByteDiff(gpu, cpu), 1)
}

func TestGLMatchesCPUExternalBlend(t *testing.T) {
	const w, h = 64, 48
	r := newGLForTest(t, w, h)
	in := fourChannelInput()
	in.External = NewFrame(w, h)
	for i := range in.External.Pix {
		in.External.Pix[i] = uint8(i % 251)
	}
	st := BlendState{Brightness: 2.5, ExternalBlendStrength: 0.7}
	p := compilePass(in, st, w, h)

	gpu, err := r.RenderSync(p)
	require.NoError(t, err)
	cpu, err := NewCPURenderer(w, h).Render(p)
	require.NoError(t, err)

	assert.LessOrEqual(t, maxByteDiff(gpu, cpu), 1)
}
