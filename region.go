package multiverse

// RegionMask is a per-pixel channel selector: each pixel holds the id of
// the single channel allowed to contribute at that pixel.
type RegionMask struct {
	Width  int
	Height int
	ID     []uint8
}

func NewRegionMask(width, height int) *RegionMask {
	return &RegionMask{
		Width:  width,
		Height: height,
		ID:     make([]uint8, width*height),
	}
}

func (m *RegionMask) Clone() *RegionMask {
	if m == nil {
		return nil
	}
	return &RegionMask{
		Width:  m.Width,
		Height: m.Height,
		ID:     append([]uint8(nil), m.ID...),
	}
}

func (m *RegionMask) validFor(width, height int) bool {
	return m != nil && m.Width == width && m.Height == height && len(m.ID) == width*height
}

// luminance matches the shader's Rec.601 weighting of normalized RGB.
func luminance(r, g, b uint8) float32 {
	return (0.299*float32(r) + 0.587*float32(g) + 0.114*float32(b)) / 255.0
}

func brightnessBucket(lum float32) uint8 {
	bucket := int(lum * 4)
	if bucket > 3 {
		bucket = 3
	}
	return uint8(bucket)
}

// BrightnessRegions quantizes a reference frame into four equal brightness
// buckets, one region per bucket. The GL backend derives the same
// assignment in-shader when a raw reference frame is supplied instead of a
// precomputed mask.
func BrightnessRegions(ref *Frame) *RegionMask {
	m := NewRegionMask(ref.Width, ref.Height)
	pi := 0
	for i := range m.ID {
		m.ID[i] = brightnessBucket(luminance(ref.Pix[pi], ref.Pix[pi+1], ref.Pix[pi+2]))
		pi += 3
	}
	return m
}

// QuadrantRegions assigns one channel per screen quadrant.
func QuadrantRegions(width, height int) *RegionMask {
	m := NewRegionMask(width, height)
	midX := width / 2
	midY := height / 2
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var id uint8
			if x >= midX {
				id = 1
			}
			if y >= midY {
				id += 2
			}
			m.ID[y*width+x] = id
		}
	}
	return m
}
