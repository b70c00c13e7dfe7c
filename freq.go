package multiverse

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// EstimateFrequency returns the dominant frequency of a waveform by FFT
// peak picking, or 0 when the buffer is too short to tell.
func EstimateFrequency(samples []float32, sampleRate float64) float32 {
	n := len(samples)
	if n < 32 || sampleRate <= 0 {
		return 0
	}
	x := make([]float64, n)
	for i, s := range samples {
		x[i] = float64(s)
	}
	spectrum := fft.FFTReal(x)
	peakBin := 0
	peakMag := 0.0
	for k := 1; k < n/2; k++ {
		mag := cmplx.Abs(spectrum[k])
		if mag > peakMag {
			peakMag = mag
			peakBin = k
		}
	}
	if peakBin == 0 {
		return 0
	}
	return float32(float64(peakBin) * sampleRate / float64(n))
}
