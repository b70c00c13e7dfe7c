package multiverse

// BlendState is the renderer-wide render configuration. It is owned by the
// Renderer, mutated through setters from any goroutine and snapshotted
// once per render pass, so no pass ever observes a state that changes
// mid-pass.
type BlendState struct {
	BlendMode             float32    // 0..1, continuous position across the four blend laws
	Brightness            float32    // 0..4
	BaseHue               float32    // 0..1
	EnvelopeOffsets       [3]float32 // per-channel hue rotation/desaturation, channels 1..3
	ColorScheme           float32    // 0..1, continuous position across the three hue schemes
	ExternalBlendStrength float32    // 0..1
}

func (st BlendState) clamped() BlendState {
	st.BlendMode = clamp32(st.BlendMode, 0, 1)
	st.Brightness = clamp32(st.Brightness, 0, 4)
	st.BaseHue = clamp32(st.BaseHue, 0, 1)
	st.ColorScheme = clamp32(st.ColorScheme, 0, 1)
	st.ExternalBlendStrength = clamp32(st.ExternalBlendStrength, 0, 1)
	return st
}
