package multiverse

import (
	"math"
	"runtime"
	"sync"
)

// CPURenderer reproduces the GL backend's per-pixel output with row-level
// goroutine parallelism and no GPU dependency. Blend laws run as explicit
// full-buffer passes, one per channel, matching the shader mode for mode.
//
// Render is synchronous and not safe for concurrent use; wrap the backend
// in a Renderer for the cross-thread contract.
type CPURenderer struct {
	width   int
	height  int
	workers int
	accum   []float32 // RGBA accumulation buffer
	layer   []float32 // per-channel RGBA scratch layer
}

func NewCPURenderer(width, height int) *CPURenderer {
	return &CPURenderer{
		width:   width,
		height:  height,
		workers: runtime.NumCPU(),
		accum:   make([]float32, width*height*4),
		layer:   make([]float32, width*height*4),
	}
}

func (c *CPURenderer) Name() string { return "cpu" }

func (c *CPURenderer) Close() error { return nil }

// parallelRows splits the image into horizontal bands, one goroutine per
// band, and waits for all of them.
func (c *CPURenderer) parallelRows(fn func(y0, y1 int)) {
	bands := c.workers
	if bands > c.height {
		bands = c.height
	}
	if bands <= 1 {
		fn(0, c.height)
		return
	}
	var wg sync.WaitGroup
	per := (c.height + bands - 1) / bands
	for y0 := 0; y0 < c.height; y0 += per {
		y1 := y0 + per
		if y1 > c.height {
			y1 = c.height
		}
		wg.Add(1)
		go func(y0, y1 int) {
			defer wg.Done()
			fn(y0, y1)
		}(y0, y1)
	}
	wg.Wait()
}

func (c *CPURenderer) Render(p *passInput) (*Frame, error) {
	for i := range c.accum {
		c.accum[i] = 0
	}

	var region *RegionMask
	if p.region != nil {
		region = p.region
	} else if p.reference != nil {
		region = BrightnessRegions(p.reference)
	}

	if region != nil {
		c.renderRegionGated(p, region)
	} else {
		for ch := range p.channels {
			cp := &p.channels[ch]
			if !cp.enabled {
				continue
			}
			c.renderLayer(cp)
			c.blendLayer(p.state.BlendMode)
		}
	}

	if p.external != nil && p.state.ExternalBlendStrength > 0 {
		c.blendExternal(p.external, p.state.ExternalBlendStrength, p.state.BlendMode)
	}

	frame := c.finalize(p.state.Brightness)
	if p.overlay != nil {
		drawOverlay(frame, p.overlay)
	}
	return frame, nil
}

// renderRegionGated composites exactly one channel per pixel, selected by
// the region mask; pixels whose designated channel is disabled stay black.
func (c *CPURenderer) renderRegionGated(p *passInput, region *RegionMask) {
	c.parallelRows(func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < c.width; x++ {
				id := int(region.ID[y*c.width+x])
				if id >= MaxChannels {
					continue
				}
				cp := &p.channels[id]
				if !cp.enabled {
					continue
				}
				v := cp.valueAt(x, y, c.width, c.height)
				i := (y*c.width + x) * 4
				c.accum[i] = v[0]
				c.accum[i+1] = v[1]
				c.accum[i+2] = v[2]
				c.accum[i+3] = v[3]
			}
		}
	})
}

func (c *CPURenderer) renderLayer(cp *channelPass) {
	c.parallelRows(func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			i := y * c.width * 4
			for x := 0; x < c.width; x++ {
				v := cp.valueAt(x, y, c.width, c.height)
				c.layer[i] = v[0]
				c.layer[i+1] = v[1]
				c.layer[i+2] = v[2]
				c.layer[i+3] = v[3]
				i += 4
			}
		}
	})
}

// blendLayer merges the scratch layer into the accumulation buffer as one
// full-buffer pass of the continuous blend law.
func (c *CPURenderer) blendLayer(mode float32) {
	c.parallelRows(func(y0, y1 int) {
		for i := y0 * c.width * 4; i < y1*c.width*4; i += 4 {
			a := [4]float32{c.accum[i], c.accum[i+1], c.accum[i+2], c.accum[i+3]}
			b := [4]float32{c.layer[i], c.layer[i+1], c.layer[i+2], c.layer[i+3]}
			out := blendAt(mode, a, b)
			c.accum[i] = out[0]
			c.accum[i+1] = out[1]
			c.accum[i+2] = out[2]
			c.accum[i+3] = out[3]
		}
	})
}

// blendExternal folds the external frame in as one more channel, scaled by
// strength, through the same blend-law selector. Doing this inside the
// pass keeps region-gated pixels consistent with the GL path.
func (c *CPURenderer) blendExternal(ext *Frame, strength, mode float32) {
	c.parallelRows(func(y0, y1 int) {
		pi := y0 * c.width * 3
		for i := y0 * c.width * 4; i < y1*c.width*4; i += 4 {
			a := [4]float32{c.accum[i], c.accum[i+1], c.accum[i+2], c.accum[i+3]}
			b := [4]float32{
				float32(ext.Pix[pi]) / 255 * strength,
				float32(ext.Pix[pi+1]) / 255 * strength,
				float32(ext.Pix[pi+2]) / 255 * strength,
				strength,
			}
			out := blendAt(mode, a, b)
			c.accum[i] = out[0]
			c.accum[i+1] = out[1]
			c.accum[i+2] = out[2]
			c.accum[i+3] = out[3]
			pi += 3
		}
	})
}

// finalize applies brightness and quantizes to an RGB frame with
// round-to-nearest, matching the GPU's unorm conversion.
func (c *CPURenderer) finalize(brightness float32) *Frame {
	frame := NewFrame(c.width, c.height)
	c.parallelRows(func(y0, y1 int) {
		pi := y0 * c.width * 3
		for i := y0 * c.width * 4; i < y1*c.width*4; i += 4 {
			for ch := 0; ch < 3; ch++ {
				v := clamp32(c.accum[i+ch]*brightness, 0, 1)
				frame.Pix[pi+ch] = uint8(math.Round(float64(v) * 255))
			}
			pi += 3
		}
	})
	return frame
}

// RenderSync is identical to Render: the CPU path always returns the
// frame for the exact input it was handed.
func (c *CPURenderer) RenderSync(p *passInput) (*Frame, error) {
	return c.Render(p)
}
