package multiverse

import (
	"image"

	"golang.org/x/image/draw"
)

// Frame is an RGB raster, 3 bytes per pixel, row-major with the origin at
// the top-left corner.
type Frame struct {
	Width  int
	Height int
	Pix    []uint8
}

func NewFrame(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*3),
	}
}

func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	return &Frame{
		Width:  f.Width,
		Height: f.Height,
		Pix:    append([]uint8(nil), f.Pix...),
	}
}

func (f *Frame) At(x, y int) (r, g, b uint8) {
	i := (y*f.Width + x) * 3
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
}

func (f *Frame) Set(x, y int, r, g, b uint8) {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return
	}
	i := (y*f.Width + x) * 3
	f.Pix[i] = r
	f.Pix[i+1] = g
	f.Pix[i+2] = b
}

// ToImage converts the frame to an image.RGBA with alpha fixed at 255.
func (f *Frame) ToImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	si := 0
	di := 0
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			img.Pix[di] = f.Pix[si]
			img.Pix[di+1] = f.Pix[si+1]
			img.Pix[di+2] = f.Pix[si+2]
			img.Pix[di+3] = 255
			si += 3
			di += 4
		}
	}
	return img
}

// FrameFromImage converts any image to a Frame, dropping alpha.
func FrameFromImage(img image.Image) *Frame {
	bounds := img.Bounds()
	f := NewFrame(bounds.Dx(), bounds.Dy())
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			f.Pix[i] = uint8(r >> 8)
			f.Pix[i+1] = uint8(g >> 8)
			f.Pix[i+2] = uint8(b >> 8)
			i += 3
		}
	}
	return f
}

// fitFrame returns f rescaled to width x height. Frames that already
// match are cloned so the pass owns its copy.
func fitFrame(f *Frame, width, height int) *Frame {
	if f == nil {
		return nil
	}
	if f.Width == width && f.Height == height {
		return f.Clone()
	}
	src := f.ToImage()
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return FrameFromImage(dst)
}
