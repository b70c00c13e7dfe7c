package multiverse

import "math"

// baseFrequency anchors the octave-periodic hue mapping (C4). Frequencies
// one octave apart map to the same hue.
const baseFrequency = 261.63

func fract32(x float32) float32 {
	f := x - float32(math.Floor(float64(x)))
	if f < 0 {
		f += 1
	}
	return f
}

func clamp32(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// HueFromFrequency maps a frequency to a hue in [0,1), independent of
// octave. Input is clamped to the audible band.
func HueFromFrequency(freq float32) float32 {
	f := float64(freq)
	if f < 20 {
		f = 20
	}
	if f > 20000 {
		f = 20000
	}
	h := math.Log2(f / baseFrequency)
	return float32(h - math.Floor(h))
}

// hsvToRGB mirrors the fragment shader's conversion so both backends
// quantize the same way.
func hsvToRGB(h, s, v float32) (r, g, b float32) {
	conv := func(k float32) float32 {
		p := float32(math.Abs(float64(fract32(h+k)*6 - 3)))
		return v * (1 + (clamp32(p-1, 0, 1)-1)*s)
	}
	return conv(1), conv(2.0 / 3.0), conv(1.0 / 3.0)
}

// hueLerp interpolates between two hues along the shortest arc on the hue
// circle.
func hueLerp(a, b, t float32) float32 {
	d := b - a
	d -= float32(math.Floor(float64(d) + 0.5))
	return fract32(a + d*t)
}

// resolveChannelColor turns a channel's frequency and the renderer-wide
// color settings into the hue/saturation pair both backends render with.
//
// The three schemes: spectral (octave hue), complementary (channels half a
// circle apart) and triadic (channels a third apart). The continuous
// scheme scalar interpolates spectral→complementary on [0,0.5] and
// complementary→triadic on [0.5,1]. Envelope offset k rotates channel
// k+1's hue and desaturates it.
func resolveChannelColor(st BlendState, ch int, freq float32) (hue, sat float32) {
	spectral := fract32(HueFromFrequency(freq) + st.BaseHue)
	complementary := fract32(st.BaseHue + float32(ch)*0.5)
	triadic := fract32(st.BaseHue + float32(ch)/3.0)

	t := clamp32(st.ColorScheme, 0, 1)
	if t <= 0.5 {
		hue = hueLerp(spectral, complementary, t*2)
	} else {
		hue = hueLerp(complementary, triadic, (t-0.5)*2)
	}

	sat = 1
	if ch >= 1 && ch-1 < len(st.EnvelopeOffsets) {
		off := st.EnvelopeOffsets[ch-1]
		hue = fract32(hue + off)
		sat -= 0.5 * clamp32(off, 0, 1)
	}
	return hue, sat
}
