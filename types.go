package multiverse

import (
	"image"
)

type Point = image.Point

const (
	// MaxChannels is the fixed channel arity. Both backends allocate
	// uniform and texture layouts sized to it.
	MaxChannels = 4

	// RingRate and RingSamples describe the per-channel waveform ring:
	// 50 ms at 48 kHz.
	RingRate    = 48000
	RingSamples = 2400

	// WaveTexWidth is the canonical per-pass waveform length. Rings are
	// nearest-resampled to this length once per pass so that the CPU and
	// GL backends index the exact same samples.
	WaveTexWidth = 2048
)

// Channel is one audio-driven visual layer. Channels are supplied fresh
// for every render call; the renderer never retains them beyond one pass.
type Channel struct {
	Audio     []float32 // waveform ring, ±10 V signal
	Frequency float32   // Hz; 0 means "estimate from Audio"
	Intensity float32   // 0..1.5
	Curve     float32   // 0..1
	Angle     float32   // degrees, -180..180
	Ratio     float32   // >= 0.05, stripe density multiplier
	Enabled   bool
}

// Ring is a decaying trigger ring drawn on top of the composite.
type Ring struct {
	Center Point
	Radius float32
	Color  [3]float32 // 0..1 RGB
	Alpha  float32
}

// Overlay holds frame-scoped vector shapes: a contour polyline, a scan
// marker and trigger rings. They have no lifecycle beyond one render call.
type Overlay struct {
	Contour []Point
	Marker  *Point
	Rings   []Ring
}

func (o *Overlay) clone() *Overlay {
	if o == nil {
		return nil
	}
	c := &Overlay{
		Contour: append([]Point(nil), o.Contour...),
		Rings:   append([]Ring(nil), o.Rings...),
	}
	if o.Marker != nil {
		m := *o.Marker
		c.Marker = &m
	}
	return c
}

// RenderInput is everything one render pass consumes besides the
// renderer-wide blend state.
type RenderInput struct {
	Channels  []Channel   // up to MaxChannels; extras ignored
	Region    *RegionMask // optional precomputed per-pixel channel selector
	Reference *Frame      // optional raw frame; regions derived from its brightness when Region is nil
	External  *Frame      // optional external blend input
	Overlay   *Overlay    // optional overlay primitives
}
