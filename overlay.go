package multiverse

import "math"

// Overlay drawing. Visual contract carried over from the CV scanner that
// feeds this renderer: the contour is a thick light polyline with a
// thinner dark line on top, the scan marker is a three-layer cross and
// trigger rings are alpha-blended circles. Thickness is simulated by
// redrawing each primitive at small pixel offsets, the same trick the GL
// path uses because line width may be clamped to 1.

var (
	contourBase = [3]uint8{255, 255, 255}
	contourEdge = [3]uint8{0, 0, 0}
	markerOuter = [3]uint8{0, 0, 0}
	markerMid   = [3]uint8{255, 255, 255}
	markerInner = [3]uint8{255, 133, 133}
)

const markerCrossSize = 20

func drawOverlay(frame *Frame, ov *Overlay) {
	if len(ov.Contour) > 1 {
		drawPolyline(frame, ov.Contour, contourBase, 6, 1)
		drawPolyline(frame, ov.Contour, contourEdge, 2, 1)
	}
	if ov.Marker != nil {
		drawCross(frame, *ov.Marker, markerOuter, 10)
		drawCross(frame, *ov.Marker, markerMid, 6)
		drawCross(frame, *ov.Marker, markerInner, 3)
	}
	for i := range ov.Rings {
		drawRing(frame, &ov.Rings[i])
	}
}

// thicknessOffsets returns the pixel offsets a primitive is redrawn at to
// simulate the requested thickness.
func thicknessOffsets(thickness int) []Point {
	if thickness <= 1 {
		return []Point{{0, 0}}
	}
	half := thickness / 2
	offsets := make([]Point, 0, 4*half+1)
	offsets = append(offsets, Point{0, 0})
	for d := 1; d <= half; d++ {
		offsets = append(offsets,
			Point{d, 0}, Point{-d, 0},
			Point{0, d}, Point{0, -d})
	}
	return offsets
}

func drawPolyline(frame *Frame, pts []Point, color [3]uint8, thickness int, alpha float32) {
	offsets := thicknessOffsets(thickness)
	for i := 1; i < len(pts); i++ {
		for _, off := range offsets {
			drawLine(frame,
				pts[i-1].Add(off), pts[i].Add(off),
				color, alpha)
		}
	}
}

func drawCross(frame *Frame, center Point, color [3]uint8, thickness int) {
	h0 := Point{center.X - markerCrossSize, center.Y}
	h1 := Point{center.X + markerCrossSize, center.Y}
	v0 := Point{center.X, center.Y - markerCrossSize}
	v1 := Point{center.X, center.Y + markerCrossSize}
	for _, off := range thicknessOffsets(thickness) {
		drawLine(frame, h0.Add(off), h1.Add(off), color, 1)
		drawLine(frame, v0.Add(off), v1.Add(off), color, 1)
	}
}

const ringSegments = 64

func drawRing(frame *Frame, ring *Ring) {
	color := [3]uint8{
		uint8(clamp32(ring.Color[0], 0, 1) * 255),
		uint8(clamp32(ring.Color[1], 0, 1) * 255),
		uint8(clamp32(ring.Color[2], 0, 1) * 255),
	}
	alpha := clamp32(ring.Alpha, 0, 1)
	if alpha == 0 || ring.Radius <= 0 {
		return
	}
	r := float64(ring.Radius)
	prev := Point{
		X: ring.Center.X + int(math.Round(r)),
		Y: ring.Center.Y,
	}
	for i := 1; i <= ringSegments; i++ {
		theta := 2 * math.Pi * float64(i) / ringSegments
		next := Point{
			X: ring.Center.X + int(math.Round(r*math.Cos(theta))),
			Y: ring.Center.Y + int(math.Round(r*math.Sin(theta))),
		}
		for _, off := range thicknessOffsets(3) {
			drawLine(frame, prev.Add(off), next.Add(off), color, alpha)
		}
		prev = next
	}
}

// drawLine is a Bresenham line with per-pixel alpha blending, clipped to
// the frame bounds.
func drawLine(frame *Frame, a, b Point, color [3]uint8, alpha float32) {
	dx := abs(b.X - a.X)
	dy := -abs(b.Y - a.Y)
	sx := 1
	if a.X > b.X {
		sx = -1
	}
	sy := 1
	if a.Y > b.Y {
		sy = -1
	}
	err := dx + dy
	x, y := a.X, a.Y
	for {
		blendPixel(frame, x, y, color, alpha)
		if x == b.X && y == b.Y {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}

func blendPixel(frame *Frame, x, y int, color [3]uint8, alpha float32) {
	if x < 0 || y < 0 || x >= frame.Width || y >= frame.Height {
		return
	}
	if alpha >= 1 {
		frame.Set(x, y, color[0], color[1], color[2])
		return
	}
	r, g, b := frame.At(x, y)
	frame.Set(x, y,
		uint8(float32(r)*(1-alpha)+float32(color[0])*alpha),
		uint8(float32(g)*(1-alpha)+float32(color[1])*alpha),
		uint8(float32(b)*(1-alpha)+float32(color[2])*alpha))
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
