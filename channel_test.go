package multiverse

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constRing(v float32, n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func TestCompileChannelDisabled(t *testing.T) {
	st := BlendState{}
	cp := compileChannel(Channel{Enabled: false, Audio: constRing(1, 100)}, 0, st, 64, 64)
	assert.False(t, cp.enabled)

	// An enabled channel without samples is silent for the frame.
	cp = compileChannel(Channel{Enabled: true}, 0, st, 64, 64)
	assert.False(t, cp.enabled)
}

func TestCompileChannelClamps(t *testing.T) {
	st := BlendState{}
	cp := compileChannel(Channel{
		Enabled:   true,
		Audio:     constRing(1, 100),
		Frequency: 440,
		Intensity: 2,
		Curve:     3,
		Ratio:     0.01,
	}, 0, st, 64, 64)
	require.True(t, cp.enabled)
	assert.Equal(t, float32(1.5), cp.intensity)
	assert.Equal(t, float32(1), cp.curve)
	assert.Equal(t, float32(0.05), cp.ratio)
}

func TestCompileChannelResamplesWave(t *testing.T) {
	audio := make([]float32, RingSamples)
	for i := range audio {
		audio[i] = float32(i)
	}
	cp := compileChannel(Channel{Enabled: true, Audio: audio, Frequency: 440}, 0, BlendState{}, 64, 64)
	require.Len(t, cp.wave, WaveTexWidth)
	assert.Equal(t, audio[0], cp.wave[0])
	assert.Equal(t, audio[(WaveTexWidth-1)*RingSamples/WaveTexWidth], cp.wave[WaveTexWidth-1])
}

func TestCompileChannelEstimatesFrequency(t *testing.T) {
	st := BlendState{}
	given := compileChannel(Channel{Enabled: true, Audio: sineRing(480, RingSamples), Frequency: 480}, 0, st, 64, 64)
	estimated := compileChannel(Channel{Enabled: true, Audio: sineRing(480, RingSamples)}, 0, st, 64, 64)
	assert.InDelta(t, given.hue, estimated.hue, 1e-3)
}

func TestRotationScale(t *testing.T) {
	assert.InDelta(t, 1, rotationScale(1, 0, 100, 50), 1e-6)
	// 90° swaps the axes; the wide side must still be covered.
	assert.InDelta(t, 2, rotationScale(0, 1, 100, 50), 1e-6)
	// 45° on a square needs sqrt(2).
	c := math.Sqrt2 / 2
	assert.InDelta(t, math.Sqrt2, rotationScale(c, c, 100, 100), 1e-6)
}

func TestValueAtStraightMapping(t *testing.T) {
	cp := channelPass{
		enabled:   true,
		wave:      constRing(10, WaveTexWidth),
		sat:       0,
		intensity: 1,
		ratio:     1,
		cosA:      1,
		scale:     1,
	}
	// 10 V at intensity 1 saturates brightness; zero saturation gives white.
	v := cp.valueAt(3, 7, 64, 64)
	assert.InDelta(t, 1, v[0], 1e-5)
	assert.InDelta(t, 1, v[1], 1e-5)
	assert.InDelta(t, 1, v[2], 1e-5)
	assert.InDelta(t, 1, v[3], 1e-5)
}

func TestValueAtBrightnessFloor(t *testing.T) {
	cp := channelPass{
		enabled:   true,
		wave:      make([]float32, WaveTexWidth),
		sat:       0,
		intensity: 1,
		ratio:     1,
		cosA:      1,
		scale:     1,
	}
	v := cp.valueAt(0, 0, 64, 64)
	assert.InDelta(t, 0.1, v[3], 1e-5)
}

func TestValueAtCurveZeroIgnoresY(t *testing.T) {
	wave := make([]float32, WaveTexWidth)
	for i := range wave {
		wave[i] = float32(i%7) * 2
	}
	cp := channelPass{
		enabled:   true,
		wave:      wave,
		intensity: 1,
		ratio:     1,
		cosA:      1,
		scale:     1,
	}
	top := cp.valueAt(13, 0, 64, 64)
	bottom := cp.valueAt(13, 63, 64, 64)
	assert.Equal(t, top, bottom)
}

func TestValueAtCurveBendsRows(t *testing.T) {
	wave := make([]float32, WaveTexWidth)
	for i := range wave {
		wave[i] = float32(i%7) * 2
	}
	cp := channelPass{
		enabled:   true,
		wave:      wave,
		intensity: 1,
		curve:     0.5,
		ratio:     1,
		cosA:      1,
		scale:     1,
	}
	// With the bend active, rows equidistant from center sample the
	// waveform at different offsets.
	top := cp.valueAt(13, 0, 64, 64)
	bottom := cp.valueAt(13, 63, 64, 64)
	assert.NotEqual(t, top, bottom)
}

func TestCompilePassIgnoresMismatchedRegion(t *testing.T) {
	in := RenderInput{
		Region:    NewRegionMask(8, 8),
		Reference: NewFrame(64, 64),
	}
	p := compilePass(in, BlendState{}, 64, 64)
	assert.Nil(t, p.region)
	// Rejected masks fall back to reference-derived regions.
	require.NotNil(t, p.reference)
}

func TestCompilePassRegionWinsOverReference(t *testing.T) {
	in := RenderInput{
		Region:    QuadrantRegions(64, 64),
		Reference: NewFrame(64, 64),
	}
	p := compilePass(in, BlendState{}, 64, 64)
	require.NotNil(t, p.region)
	assert.Nil(t, p.reference)
}

func TestCompilePassCopiesInputs(t *testing.T) {
	region := QuadrantRegions(64, 64)
	ov := &Overlay{Marker: &Point{X: 1, Y: 2}}
	in := RenderInput{Region: region, Overlay: ov}
	p := compilePass(in, BlendState{}, 64, 64)

	region.ID[0] = 3
	ov.Marker.X = 99
	assert.Equal(t, uint8(0), p.region.ID[0])
	assert.Equal(t, 1, p.overlay.Marker.X)
}
