package multiverse

import "math"

// channelPass is the per-pass compiled form of a Channel. Waveform
// resampling, color resolution and the rotation precomputation all happen
// here, once, so the CPU and GL backends consume byte-identical inputs.
type channelPass struct {
	enabled   bool
	wave      []float32 // WaveTexWidth samples
	hue       float32
	sat       float32
	intensity float32
	curve     float32
	ratio     float32
	cosA      float32
	sinA      float32
	scale     float32
}

// passInput carries one render submission: compiled channels, the region
// source, optional external frame, overlay primitives and the blend-state
// snapshot taken at submission time.
type passInput struct {
	channels  [MaxChannels]channelPass
	region    *RegionMask
	reference *Frame // non-nil selects in-pass brightness-derived regions
	external  *Frame
	overlay   *Overlay
	state     BlendState
}

// rotationScale returns the zoom factor that keeps a rotated canvas fully
// covered by the source layer for any angle.
func rotationScale(cosA, sinA float64, width, height int) float32 {
	w := float64(width)
	h := float64(height)
	absCos := math.Abs(cosA)
	absSin := math.Abs(sinA)
	scaleX := (w*absCos + h*absSin) / w
	scaleY := (w*absSin + h*absCos) / h
	return float32(math.Max(scaleX, scaleY))
}

// compileChannel resolves one channel for a pass. A channel with an empty
// waveform ring is treated as disabled for the frame.
func compileChannel(ch Channel, idx int, st BlendState, width, height int) channelPass {
	cp := channelPass{}
	if !ch.Enabled || len(ch.Audio) == 0 {
		return cp
	}
	cp.enabled = true

	cp.wave = make([]float32, WaveTexWidth)
	n := len(ch.Audio)
	for i := 0; i < WaveTexWidth; i++ {
		cp.wave[i] = ch.Audio[i*n/WaveTexWidth]
	}

	freq := ch.Frequency
	if freq <= 0 {
		freq = EstimateFrequency(ch.Audio, RingRate)
	}
	cp.hue, cp.sat = resolveChannelColor(st, idx, freq)

	cp.intensity = clamp32(ch.Intensity, 0, 1.5)
	cp.curve = clamp32(ch.Curve, 0, 1)
	cp.ratio = ch.Ratio
	if cp.ratio < 0.05 {
		cp.ratio = 0.05
	}

	angle := clamp32(ch.Angle, -180, 180)
	rad := float64(angle) * math.Pi / 180
	cosA := math.Cos(rad)
	sinA := math.Sin(rad)
	cp.cosA = float32(cosA)
	cp.sinA = float32(sinA)
	cp.scale = rotationScale(cosA, sinA, width, height)
	return cp
}

// compilePass validates and deep-copies a render submission. The caller's
// buffers may be reused as soon as it returns.
func compilePass(in RenderInput, st BlendState, width, height int) *passInput {
	p := &passInput{state: st.clamped()}

	for i := 0; i < MaxChannels && i < len(in.Channels); i++ {
		p.channels[i] = compileChannel(in.Channels[i], i, p.state, width, height)
	}

	if in.Region != nil {
		if in.Region.validFor(width, height) {
			p.region = in.Region.Clone()
		} else {
			logger.Debug("region mask resolution mismatch, ignoring",
				"want_width", width, "want_height", height,
				"got_width", in.Region.Width, "got_height", in.Region.Height)
		}
	}
	if p.region == nil && in.Reference != nil {
		p.reference = fitFrame(in.Reference, width, height)
	}
	if in.External != nil {
		p.external = fitFrame(in.External, width, height)
	}
	p.overlay = in.Overlay.clone()
	return p
}

// anyEnabled reports whether the pass renders at least one channel.
func (p *passInput) anyEnabled() bool {
	for i := range p.channels {
		if p.channels[i].enabled {
			return true
		}
	}
	return false
}

// valueAt is the channel render primitive: the RGBA contribution of one
// compiled channel at output pixel (x, y). The GL fragment shader computes
// the identical function per pixel; keep the two in lockstep.
func (cp *channelPass) valueAt(x, y, width, height int) [4]float32 {
	cx := float32(width) / 2
	cy := float32(height) / 2
	px := float32(x) + 0.5
	py := float32(y) + 0.5

	// Inverse rotation, pre-divided by the no-clip scale.
	dx := (px - cx) / cp.scale
	dy := (py - cy) / cp.scale
	sx := cx + dx*cp.cosA + dy*cp.sinA
	sy := cy - dx*cp.sinA + dy*cp.cosA

	xn := sx / float32(width)
	yn := sy / float32(height)

	// Parabolic bend: zero at the left/right edges, maximal at center.
	bend := (yn - 0.5) * 2 * sin32(xn*math.Pi) * cp.curve * 2
	xs := fract32(xn*cp.ratio + bend)

	idx := int(xs * WaveTexWidth)
	if idx < 0 {
		idx = 0
	} else if idx >= WaveTexWidth {
		idx = WaveTexWidth - 1
	}
	smp := cp.wave[idx]

	// ±10 V signal to normalized brightness, floored so an enabled
	// channel is never fully invisible.
	b := clamp32(smp*0.1*cp.intensity, 0, 1)
	if b < 0.1 {
		b = 0.1
	}

	r, g, bl := hsvToRGB(cp.hue, cp.sat, 1)
	return [4]float32{r * b, g * b, bl * b, b}
}

func sin32(x float32) float32 {
	return float32(math.Sin(float64(x)))
}
