package multiverse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameCloneIndependent(t *testing.T) {
	f := NewFrame(4, 4)
	f.Set(1, 1, 10, 20, 30)
	c := f.Clone()
	c.Set(1, 1, 0, 0, 0)
	r, g, b := f.At(1, 1)
	assert.Equal(t, [3]uint8{10, 20, 30}, [3]uint8{r, g, b})
}

func TestFrameImageRoundTrip(t *testing.T) {
	f := NewFrame(3, 2)
	f.Set(0, 0, 255, 0, 0)
	f.Set(2, 1, 0, 0, 255)
	back := FrameFromImage(f.ToImage())
	require.Equal(t, f.Width, back.Width)
	require.Equal(t, f.Height, back.Height)
	assert.Equal(t, f.Pix, back.Pix)
}

func TestFitFrameScales(t *testing.T) {
	f := NewFrame(8, 8)
	for i := range f.Pix {
		f.Pix[i] = 200
	}
	scaled := fitFrame(f, 4, 4)
	require.Equal(t, 4, scaled.Width)
	require.Equal(t, 4, scaled.Height)
	r, _, _ := scaled.At(2, 2)
	assert.Equal(t, uint8(200), r)

	// Matching size clones instead of resampling.
	same := fitFrame(f, 8, 8)
	assert.Equal(t, f.Pix, same.Pix)
	same.Pix[0] = 0
	assert.Equal(t, uint8(200), f.Pix[0])
}
