package multiverse

import (
	"fmt"
	"math"

	gl "github.com/go-gl/gl/v3.1/gles2"
	mgl "github.com/go-gl/mathgl/mgl32"
)

const compositeVertexShader = `#version 300 es
layout(location = 0) in vec2 a_position;
void main(void) {
  gl_Position = vec4(a_position, 0.0, 1.0);
}` + "\x00"

// compositeFragmentShader is the per-pixel render primitive plus the
// compositor. channelValue must stay in lockstep with channelPass.valueAt
// in channel.go: the CPU backend is asserted to match this shader within
// one 8-bit unit.
const compositeFragmentShader = `#version 300 es
precision highp float;
precision highp int;

#define WAVE_W 2048
#define PI 3.14159265358979

uniform sampler2D u_audio;
uniform sampler2D u_region;
uniform sampler2D u_reference;
uniform sampler2D u_external;
uniform vec2  u_size;
uniform vec4  u_enabled;
uniform vec4  u_hue;
uniform vec4  u_sat;
uniform vec4  u_intensity;
uniform vec4  u_curve;
uniform vec4  u_ratio;
uniform vec4  u_cosA;
uniform vec4  u_sinA;
uniform vec4  u_scale;
uniform float u_blend;
uniform float u_brightness;
uniform int   u_regionMode;
uniform float u_extStrength;
uniform int   u_hasExternal;

out vec4 fragColor;

vec3 hsv2rgb(vec3 c) {
  vec4 K = vec4(1.0, 2.0 / 3.0, 1.0 / 3.0, 3.0);
  vec3 p = abs(fract(c.xxx + K.xyz) * 6.0 - K.www);
  return c.z * mix(K.xxx, clamp(p - K.xxx, 0.0, 1.0), c.y);
}

vec4 blendLaw(int mode, vec4 a, vec4 b) {
  float outA = max(a.a, b.a);
  if (mode == 0) {
    return vec4(min(vec3(1.0), a.rgb + b.rgb), outA);
  } else if (mode == 1) {
    return vec4(vec3(1.0) - (vec3(1.0) - a.rgb) * (vec3(1.0) - b.rgb), outA);
  } else if (mode == 2) {
    return vec4(abs(a.rgb - b.rgb), outA);
  }
  vec3 r;
  for (int i = 0; i < 3; i++) {
    r[i] = b[i] < 0.999 ? min(1.0, a[i] / max(0.001, 1.0 - b[i])) : 1.0;
  }
  return vec4(r, outA);
}

vec4 blendAt(float t, vec4 a, vec4 b) {
  int seg = min(int(t * 3.0), 2);
  float f = t * 3.0 - float(seg);
  vec4 lo = blendLaw(seg, a, b);
  if (f <= 0.0) {
    return lo;
  }
  vec4 hi = blendLaw(seg + 1, a, b);
  return vec4(mix(lo.rgb, hi.rgb, f), max(a.a, b.a));
}

vec4 channelValue(int ch, vec2 p) {
  vec2 c = u_size * 0.5;
  vec2 d = (p - c) / u_scale[ch];
  float sx = c.x + d.x * u_cosA[ch] + d.y * u_sinA[ch];
  float sy = c.y - d.x * u_sinA[ch] + d.y * u_cosA[ch];
  float xn = sx / u_size.x;
  float yn = sy / u_size.y;
  float bend = (yn - 0.5) * 2.0 * sin(xn * PI) * u_curve[ch] * 2.0;
  float xs = fract(xn * u_ratio[ch] + bend);
  int idx = clamp(int(xs * float(WAVE_W)), 0, WAVE_W - 1);
  float smp = texelFetch(u_audio, ivec2(idx, ch), 0).r;
  float b = clamp(smp * 0.1 * u_intensity[ch], 0.0, 1.0);
  b = max(b, 0.1);
  vec3 rgb = hsv2rgb(vec3(u_hue[ch], u_sat[ch], 1.0)) * b;
  return vec4(rgb, b);
}

void main(void) {
  vec2 p = vec2(gl_FragCoord.x, u_size.y - gl_FragCoord.y);
  vec2 uv = p / u_size;
  vec4 result = vec4(0.0);
  if (u_regionMode != 0) {
    int rid;
    if (u_regionMode == 1) {
      rid = int(texture(u_region, uv).r * 255.0 + 0.5);
    } else {
      vec3 ref = texture(u_reference, uv).rgb;
      rid = min(int(dot(ref, vec3(0.299, 0.587, 0.114)) * 4.0), 3);
    }
    if (rid >= 0 && rid < 4 && u_enabled[rid] > 0.5) {
      result = channelValue(rid, p);
    }
  } else {
    for (int ch = 0; ch < 4; ch++) {
      if (u_enabled[ch] < 0.5) {
        continue;
      }
      result = blendAt(u_blend, result, channelValue(ch, p));
    }
  }
  if (u_hasExternal == 1 && u_extStrength > 0.0) {
    vec3 ext = texture(u_external, uv).rgb * u_extStrength;
    result = blendAt(u_blend, result, vec4(ext, u_extStrength));
  }
  fragColor = vec4(clamp(result.rgb * u_brightness, 0.0, 1.0), 1.0);
}` + "\x00"

const overlayVertexShader = `#version 300 es
layout(location = 0) in vec2 a_position;
uniform mat4 u_transform;
uniform vec2 u_offset;
void main(void) {
  gl_Position = u_transform * vec4(a_position + u_offset, 0.0, 1.0);
}` + "\x00"

const overlayFragmentShader = `#version 300 es
precision mediump float;
uniform vec4 u_color;
out vec4 fragColor;
void main(void) {
  fragColor = u_color;
}` + "\x00"

// GLRenderer is the GPU backend. It owns every GL resource it touches and
// must only ever be used from the thread its context is current on; the
// Renderer front end guarantees that by construction.
//
// Readback is double buffered: each Render initiates an asynchronous copy
// of the fresh frame and returns the previous one, trading one frame of
// latency for never stalling on a GPU→CPU transfer.
type GLRenderer struct {
	width  int
	height int

	ctx *glContext // nil when the caller supplied its own context

	composite   Program
	overlay     Program
	quadVBO     uint32
	overlayVBO  uint32
	audioTex    Texture
	regionTex   Texture
	refTex      Texture
	extTex      Texture
	target      Framebuffer
	readback    [2]PixelBuffer
	readbackIdx int

	audioData []float32 // MaxChannels rows of WaveTexWidth samples
	rgbaBuf   []uint8

	uSize        int32
	uEnabled     int32
	uHue         int32
	uSat         int32
	uIntensity   int32
	uCurve       int32
	uRatio       int32
	uCosA        int32
	uSinA        int32
	uScale       int32
	uBlend       int32
	uBrightness  int32
	uRegionMode  int32
	uExtStrength int32
	uHasExternal int32

	uTransform int32
	uOffset    int32
	uColor     int32
}

// NewGLRenderer creates the GPU backend with its own hidden offscreen
// context. Must be called on a locked OS thread; all failures are
// construction-time errors, a constructed backend is assumed stable.
func NewGLRenderer(width, height int) (*GLRenderer, error) {
	ctx, err := createOffscreenContext(width, height)
	if err != nil {
		return nil, err
	}
	r, err := NewGLRendererWithContext(width, height)
	if err != nil {
		ctx.Close()
		return nil, err
	}
	r.ctx = ctx
	return r, nil
}

// NewGLRendererWithContext builds the backend against the GL context
// already current on the calling thread. The caller keeps ownership of
// the context.
func NewGLRendererWithContext(width, height int) (*GLRenderer, error) {
	r := &GLRenderer{
		width:     width,
		height:    height,
		audioData: make([]float32, MaxChannels*WaveTexWidth),
		rgbaBuf:   make([]uint8, width*height*4),
	}
	if err := r.initResources(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *GLRenderer) Name() string { return "gl" }

func (r *GLRenderer) initResources() error {
	var err error
	r.composite, err = CreateProgram(compositeVertexShader, compositeFragmentShader)
	if err != nil {
		return fmt.Errorf("composite program: %w", err)
	}
	r.overlay, err = CreateProgram(overlayVertexShader, overlayFragmentShader)
	if err != nil {
		return fmt.Errorf("overlay program: %w", err)
	}

	r.uSize = r.composite.GetUniformLocation("u_size\x00")
	r.uEnabled = r.composite.GetUniformLocation("u_enabled\x00")
	r.uHue = r.composite.GetUniformLocation("u_hue\x00")
	r.uSat = r.composite.GetUniformLocation("u_sat\x00")
	r.uIntensity = r.composite.GetUniformLocation("u_intensity\x00")
	r.uCurve = r.composite.GetUniformLocation("u_curve\x00")
	r.uRatio = r.composite.GetUniformLocation("u_ratio\x00")
	r.uCosA = r.composite.GetUniformLocation("u_cosA\x00")
	r.uSinA = r.composite.GetUniformLocation("u_sinA\x00")
	r.uScale = r.composite.GetUniformLocation("u_scale\x00")
	r.uBlend = r.composite.GetUniformLocation("u_blend\x00")
	r.uBrightness = r.composite.GetUniformLocation("u_brightness\x00")
	r.uRegionMode = r.composite.GetUniformLocation("u_regionMode\x00")
	r.uExtStrength = r.composite.GetUniformLocation("u_extStrength\x00")
	r.uHasExternal = r.composite.GetUniformLocation("u_hasExternal\x00")

	r.uTransform = r.overlay.GetUniformLocation("u_transform\x00")
	r.uOffset = r.overlay.GetUniformLocation("u_offset\x00")
	r.uColor = r.overlay.GetUniformLocation("u_color\x00")

	// Texture units are fixed: audio=0, region=1, reference=2, external=3.
	r.composite.Use()
	gl.Uniform1i(r.composite.GetUniformLocation("u_audio\x00"), 0)
	gl.Uniform1i(r.composite.GetUniformLocation("u_region\x00"), 1)
	gl.Uniform1i(r.composite.GetUniformLocation("u_reference\x00"), 2)
	gl.Uniform1i(r.composite.GetUniformLocation("u_external\x00"), 3)

	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)

	// Audio samples must be fetched exactly, never filtered.
	r.audioTex, err = CreateTexture(gl.NEAREST)
	if err != nil {
		return err
	}
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.R32F,
		WaveTexWidth, MaxChannels, 0, gl.RED, gl.FLOAT, nil)

	r.regionTex, err = CreateTexture(gl.NEAREST)
	if err != nil {
		return err
	}
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.R8,
		int32(r.width), int32(r.height), 0, gl.RED, gl.UNSIGNED_BYTE, nil)

	r.refTex, err = CreateTexture(gl.NEAREST)
	if err != nil {
		return err
	}
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGB8,
		int32(r.width), int32(r.height), 0, gl.RGB, gl.UNSIGNED_BYTE, nil)

	r.extTex, err = CreateTexture(gl.NEAREST)
	if err != nil {
		return err
	}
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGB8,
		int32(r.width), int32(r.height), 0, gl.RGB, gl.UNSIGNED_BYTE, nil)

	r.target, err = CreateFramebuffer(r.width, r.height)
	if err != nil {
		return err
	}

	size := r.width * r.height * 4
	for i := range r.readback {
		r.readback[i], err = CreatePixelBuffer(size)
		if err != nil {
			return err
		}
	}

	quad := []float32{
		-1, 1,
		-1, -1,
		1, 1,
		1, -1,
	}
	gl.GenBuffers(1, &r.quadVBO)
	gl.BindBuffer(gl.ARRAY_BUFFER, r.quadVBO)
	gl.BufferData(gl.ARRAY_BUFFER, len(quad)*4, gl.Ptr(quad), gl.STATIC_DRAW)

	gl.GenBuffers(1, &r.overlayVBO)
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	return nil
}

// Render draws one pass and returns the frame completed by the previous
// pass, or nil on the very first call when no readback has finished yet.
func (r *GLRenderer) Render(p *passInput) (*Frame, error) {
	r.uploadInputs(p)

	r.target.Bind()
	gl.ClearColor(0, 0, 0, 1)
	gl.Clear(gl.COLOR_BUFFER_BIT)
	r.drawComposite(p)
	if p.overlay != nil {
		r.drawOverlay(p.overlay)
	}

	// Ping-pong readback: kick off the async copy of this frame, then
	// collect the previous one.
	cur := &r.readback[r.readbackIdx]
	prev := &r.readback[1-r.readbackIdx]
	cur.ReadInto(int32(r.width), int32(r.height))
	r.readbackIdx = 1 - r.readbackIdx

	var frame *Frame
	if prev.Map(r.rgbaBuf) {
		frame = r.unpackFrame()
	}
	r.target.Unbind()
	return frame, nil
}

func (r *GLRenderer) uploadInputs(p *passInput) {
	for ch := range p.channels {
		row := r.audioData[ch*WaveTexWidth : (ch+1)*WaveTexWidth]
		if p.channels[ch].enabled {
			copy(row, p.channels[ch].wave)
		} else {
			for i := range row {
				row[i] = 0
			}
		}
	}
	r.audioTex.BindUnit(0)
	gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0,
		WaveTexWidth, MaxChannels, gl.RED, gl.FLOAT, gl.Ptr(r.audioData))

	if p.region != nil {
		r.regionTex.BindUnit(1)
		gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0,
			int32(r.width), int32(r.height), gl.RED, gl.UNSIGNED_BYTE, gl.Ptr(p.region.ID))
	}
	if p.reference != nil {
		r.refTex.BindUnit(2)
		gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0,
			int32(r.width), int32(r.height), gl.RGB, gl.UNSIGNED_BYTE, gl.Ptr(p.reference.Pix))
	}
	if p.external != nil {
		r.extTex.BindUnit(3)
		gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0,
			int32(r.width), int32(r.height), gl.RGB, gl.UNSIGNED_BYTE, gl.Ptr(p.external.Pix))
	}
}

func (r *GLRenderer) drawComposite(p *passInput) {
	r.composite.Use()

	var enabled, hue, sat, intensity, curve, ratio, cosA, sinA, scale [4]float32
	for ch := range p.channels {
		cp := &p.channels[ch]
		if cp.enabled {
			enabled[ch] = 1
		}
		hue[ch] = cp.hue
		sat[ch] = cp.sat
		intensity[ch] = cp.intensity
		curve[ch] = cp.curve
		ratio[ch] = cp.ratio
		cosA[ch] = cp.cosA
		sinA[ch] = cp.sinA
		scale[ch] = cp.scale
		if scale[ch] == 0 {
			scale[ch] = 1
		}
		if ratio[ch] == 0 {
			ratio[ch] = 1
		}
	}

	gl.Uniform2f(r.uSize, float32(r.width), float32(r.height))
	gl.Uniform4fv(r.uEnabled, 1, &enabled[0])
	gl.Uniform4fv(r.uHue, 1, &hue[0])
	gl.Uniform4fv(r.uSat, 1, &sat[0])
	gl.Uniform4fv(r.uIntensity, 1, &intensity[0])
	gl.Uniform4fv(r.uCurve, 1, &curve[0])
	gl.Uniform4fv(r.uRatio, 1, &ratio[0])
	gl.Uniform4fv(r.uCosA, 1, &cosA[0])
	gl.Uniform4fv(r.uSinA, 1, &sinA[0])
	gl.Uniform4fv(r.uScale, 1, &scale[0])
	gl.Uniform1f(r.uBlend, p.state.BlendMode)
	gl.Uniform1f(r.uBrightness, p.state.Brightness)

	regionMode := int32(0)
	if p.region != nil {
		regionMode = 1
	} else if p.reference != nil {
		regionMode = 2
	}
	gl.Uniform1i(r.uRegionMode, regionMode)
	gl.Uniform1f(r.uExtStrength, p.state.ExternalBlendStrength)
	hasExternal := int32(0)
	if p.external != nil {
		hasExternal = 1
	}
	gl.Uniform1i(r.uHasExternal, hasExternal)

	gl.BindBuffer(gl.ARRAY_BUFFER, r.quadVBO)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(0, 2, gl.FLOAT, false, 8, nil)
	gl.DrawArrays(gl.TRIANGLE_STRIP, 0, 4)
	gl.DisableVertexAttribArray(0)
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
}

// drawOverlay renders the frame-scoped vector shapes with the same
// layered-offset scheme as the CPU path. Line width is clamped to 1 on
// some platforms, so thickness comes from redrawing at pixel offsets.
func (r *GLRenderer) drawOverlay(ov *Overlay) {
	r.overlay.Use()

	// Pixel coordinates, origin top-left, to match the composite pass.
	transform := mgl.Ortho2D(0, float32(r.width), float32(r.height), 0)
	gl.UniformMatrix4fv(r.uTransform, 1, false, &transform[0])

	gl.Enable(gl.BLEND)
	gl.BlendEquation(gl.FUNC_ADD)
	gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
	gl.BindBuffer(gl.ARRAY_BUFFER, r.overlayVBO)
	gl.EnableVertexAttribArray(0)

	if len(ov.Contour) > 1 {
		verts := pointVerts(ov.Contour)
		// Light base first, dark edge on top.
		r.strokeVerts(verts, gl.LINE_STRIP, [4]float32{1, 1, 1, 1}, 6)
		r.strokeVerts(verts, gl.LINE_STRIP, [4]float32{0, 0, 0, 1}, 2)
	}
	if ov.Marker != nil {
		m := *ov.Marker
		verts := []float32{
			float32(m.X - markerCrossSize), float32(m.Y),
			float32(m.X + markerCrossSize), float32(m.Y),
			float32(m.X), float32(m.Y - markerCrossSize),
			float32(m.X), float32(m.Y + markerCrossSize),
		}
		r.strokeVerts(verts, gl.LINES, [4]float32{0, 0, 0, 1}, 10)
		r.strokeVerts(verts, gl.LINES, [4]float32{1, 1, 1, 1}, 6)
		r.strokeVerts(verts, gl.LINES, [4]float32{1, 133.0 / 255, 133.0 / 255, 1}, 3)
	}
	for i := range ov.Rings {
		ring := &ov.Rings[i]
		if ring.Alpha <= 0 || ring.Radius <= 0 {
			continue
		}
		verts := ringVerts(ring)
		color := [4]float32{ring.Color[0], ring.Color[1], ring.Color[2], ring.Alpha}
		r.strokeVerts(verts, gl.LINE_LOOP, color, 3)
	}

	gl.DisableVertexAttribArray(0)
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	gl.Disable(gl.BLEND)
}

// strokeVerts uploads one primitive and draws it once per thickness
// offset, innermost pass last.
func (r *GLRenderer) strokeVerts(verts []float32, mode uint32, color [4]float32, thickness int) {
	gl.BufferData(gl.ARRAY_BUFFER, len(verts)*4, gl.Ptr(verts), gl.STREAM_DRAW)
	gl.VertexAttribPointer(0, 2, gl.FLOAT, false, 8, nil)
	gl.Uniform4fv(r.uColor, 1, &color[0])
	for _, off := range thicknessOffsets(thickness) {
		gl.Uniform2f(r.uOffset, float32(off.X), float32(off.Y))
		gl.DrawArrays(mode, 0, int32(len(verts)/2))
	}
}

func pointVerts(pts []Point) []float32 {
	verts := make([]float32, 0, len(pts)*2)
	for _, p := range pts {
		verts = append(verts, float32(p.X), float32(p.Y))
	}
	return verts
}

func ringVerts(ring *Ring) []float32 {
	verts := make([]float32, 0, ringSegments*2)
	for i := 0; i < ringSegments; i++ {
		theta := 2 * math.Pi * float64(i) / ringSegments
		verts = append(verts,
			float32(ring.Center.X)+ring.Radius*float32(math.Cos(theta)),
			float32(ring.Center.Y)+ring.Radius*float32(math.Sin(theta)))
	}
	return verts
}

// unpackFrame flips the bottom-up RGBA readback into a top-down RGB frame.
func (r *GLRenderer) unpackFrame() *Frame {
	frame := NewFrame(r.width, r.height)
	for y := 0; y < r.height; y++ {
		src := (r.height - 1 - y) * r.width * 4
		dst := y * r.width * 3
		for x := 0; x < r.width; x++ {
			frame.Pix[dst] = r.rgbaBuf[src]
			frame.Pix[dst+1] = r.rgbaBuf[src+1]
			frame.Pix[dst+2] = r.rgbaBuf[src+2]
			src += 4
			dst += 3
		}
	}
	return frame
}

func (r *GLRenderer) Close() error {
	r.composite.Close()
	r.overlay.Close()
	r.audioTex.Close()
	r.regionTex.Close()
	r.refTex.Close()
	r.extTex.Close()
	r.target.Close()
	for i := range r.readback {
		r.readback[i].Close()
	}
	if r.quadVBO != 0 {
		gl.DeleteBuffers(1, &r.quadVBO)
		r.quadVBO = 0
	}
	if r.overlayVBO != 0 {
		gl.DeleteBuffers(1, &r.overlayVBO)
		r.overlayVBO = 0
	}
	if r.ctx != nil {
		r.ctx.Close()
		r.ctx = nil
	}
	return nil
}

// RenderSync draws one pass and waits for its own readback instead of
// returning the previous frame. Mapping the just-issued buffer stalls
// until the transfer completes, so this is the slow path.
func (r *GLRenderer) RenderSync(p *passInput) (*Frame, error) {
	if _, err := r.Render(p); err != nil {
		return nil, err
	}
	issued := &r.readback[1-r.readbackIdx]
	if !issued.Map(r.rgbaBuf) {
		return nil, fmt.Errorf("readback map failed")
	}
	return r.unpackFrame(), nil
}
