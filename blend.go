package multiverse

import "math"

// Blend laws, applied pairwise over RGB. Output alpha of any law is the
// max of the input alphas.
const (
	blendAdd = iota
	blendScreen
	blendDifference
	blendDodge
)

func blendLaw(mode int, a, b [4]float32) [4]float32 {
	var out [4]float32
	switch mode {
	case blendAdd:
		for i := 0; i < 3; i++ {
			out[i] = clamp32(a[i]+b[i], 0, 1)
		}
	case blendScreen:
		for i := 0; i < 3; i++ {
			out[i] = 1 - (1-a[i])*(1-b[i])
		}
	case blendDifference:
		for i := 0; i < 3; i++ {
			out[i] = float32(math.Abs(float64(a[i] - b[i])))
		}
	default: // color dodge
		for i := 0; i < 3; i++ {
			if b[i] < 0.999 {
				d := 1 - b[i]
				if d < 0.001 {
					d = 0.001
				}
				v := a[i] / d
				if v > 1 {
					v = 1
				}
				out[i] = v
			} else {
				out[i] = 1
			}
		}
	}
	out[3] = max32(a[3], b[3])
	return out
}

// blendAt evaluates the continuous blend scalar t in [0,1]: three equal
// thirds along add→screen→difference→dodge, linearly interpolated between
// adjacent laws.
func blendAt(t float32, a, b [4]float32) [4]float32 {
	t = clamp32(t, 0, 1)
	seg := int(t * 3)
	if seg > 2 {
		seg = 2
	}
	f := t*3 - float32(seg)
	lo := blendLaw(seg, a, b)
	if f <= 0 {
		return lo
	}
	hi := blendLaw(seg+1, a, b)
	if f >= 1 {
		return hi
	}
	var out [4]float32
	for i := 0; i < 3; i++ {
		// Same form as GLSL mix, exact at both ends of the segment.
		out[i] = lo[i]*(1-f) + hi[i]*f
	}
	out[3] = max32(a[3], b[3])
	return out
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
