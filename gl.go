package multiverse

import (
	"fmt"
	"unsafe"

	gl "github.com/go-gl/gl/v3.1/gles2"
)

type Texture struct {
	tex uint32
}

func (t Texture) Bind() {
	gl.BindTexture(gl.TEXTURE_2D, t.tex)
}

func (t Texture) BindUnit(unit uint32) {
	gl.ActiveTexture(gl.TEXTURE0 + unit)
	gl.BindTexture(gl.TEXTURE_2D, t.tex)
}

func CreateTexture(filter int32) (Texture, error) {
	var tex uint32
	gl.GenTextures(1, &tex)
	gl.BindTexture(gl.TEXTURE_2D, tex)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, filter)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, filter)
	return Texture{tex}, nil
}

func (t Texture) Close() error {
	if t.tex != 0 {
		gl.DeleteTextures(1, &t.tex)
		t.tex = 0
	}
	return nil
}

type Shader struct {
	shader uint32
}

func GetShaderInfoLog(shader uint32) string {
	var length int32
	gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &length)
	if length == 0 {
		return ""
	}
	log := make([]uint8, length)
	var logLen int32
	gl.GetShaderInfoLog(shader, length, &logLen, &log[0])
	return string(log[:logLen])
}

func CreateShader(shaderType uint32, source string) (Shader, error) {
	shader := gl.CreateShader(shaderType)
	data := gl.Str(source)
	length := int32(len(source))
	gl.ShaderSource(shader, 1, &data, &length)
	gl.CompileShader(shader)
	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		log := GetShaderInfoLog(shader)
		gl.DeleteShader(shader)
		return Shader{}, fmt.Errorf("shader compilation failed: %s", log)
	}
	return Shader{shader}, nil
}

func (s Shader) Close() error {
	if s.shader != 0 {
		gl.DeleteShader(s.shader)
		s.shader = 0
	}
	return nil
}

type Program struct {
	program        uint32
	vertexShader   Shader
	fragmentShader Shader
}

func GetProgramInfoLog(program uint32) string {
	var length int32
	gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &length)
	if length == 0 {
		return ""
	}
	log := make([]uint8, length)
	var logLen int32
	gl.GetProgramInfoLog(program, length, &logLen, &log[0])
	return string(log[:logLen])
}

func CreateProgram(vertexShader string, fragmentShader string) (Program, error) {
	vs, err := CreateShader(gl.VERTEX_SHADER, vertexShader)
	if err != nil {
		return Program{}, err
	}
	fs, err := CreateShader(gl.FRAGMENT_SHADER, fragmentShader)
	if err != nil {
		vs.Close()
		return Program{}, err
	}
	program := gl.CreateProgram()
	gl.AttachShader(program, vs.shader)
	gl.AttachShader(program, fs.shader)
	gl.LinkProgram(program)
	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		log := GetProgramInfoLog(program)
		gl.DeleteProgram(program)
		vs.Close()
		fs.Close()
		return Program{}, fmt.Errorf("program link failed: %s", log)
	}
	return Program{program, vs, fs}, nil
}

func (p Program) GetAttribLocation(name string) int32 {
	return gl.GetAttribLocation(p.program, gl.Str(name))
}

func (p Program) GetUniformLocation(name string) int32 {
	return gl.GetUniformLocation(p.program, gl.Str(name))
}

func (p Program) Use() {
	gl.UseProgram(p.program)
}

func (p Program) Close() error {
	if err := p.vertexShader.Close(); err != nil {
		return err
	}
	if err := p.fragmentShader.Close(); err != nil {
		return err
	}
	if p.program != 0 {
		gl.DeleteProgram(p.program)
		p.program = 0
	}
	return nil
}

// Framebuffer is an offscreen RGBA8 render target.
type Framebuffer struct {
	fbo    uint32
	tex    Texture
	width  int32
	height int32
}

func CreateFramebuffer(width, height int) (Framebuffer, error) {
	tex, err := CreateTexture(gl.NEAREST)
	if err != nil {
		return Framebuffer{}, err
	}
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8,
		int32(width), int32(height),
		0, gl.RGBA, gl.UNSIGNED_BYTE, nil)

	var fbo uint32
	gl.GenFramebuffers(1, &fbo)
	gl.BindFramebuffer(gl.FRAMEBUFFER, fbo)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0,
		gl.TEXTURE_2D, tex.tex, 0)
	status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	if status != gl.FRAMEBUFFER_COMPLETE {
		gl.DeleteFramebuffers(1, &fbo)
		tex.Close()
		return Framebuffer{}, fmt.Errorf("framebuffer incomplete: 0x%x", status)
	}
	return Framebuffer{fbo: fbo, tex: tex, width: int32(width), height: int32(height)}, nil
}

func (fb Framebuffer) Bind() {
	gl.BindFramebuffer(gl.FRAMEBUFFER, fb.fbo)
	gl.Viewport(0, 0, fb.width, fb.height)
}

func (fb Framebuffer) Unbind() {
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
}

func (fb Framebuffer) Close() error {
	if fb.fbo != 0 {
		gl.DeleteFramebuffers(1, &fb.fbo)
		fb.fbo = 0
	}
	return fb.tex.Close()
}

// PixelBuffer is a PIXEL_PACK buffer used for asynchronous readback.
type PixelBuffer struct {
	pbo  uint32
	size int
	// filled is set once a ReadInto has been issued, so the first
	// ping-pong cycle knows the buffer holds nothing yet.
	filled bool
}

func CreatePixelBuffer(size int) (PixelBuffer, error) {
	var pbo uint32
	gl.GenBuffers(1, &pbo)
	gl.BindBuffer(gl.PIXEL_PACK_BUFFER, pbo)
	gl.BufferData(gl.PIXEL_PACK_BUFFER, size, nil, gl.STREAM_READ)
	gl.BindBuffer(gl.PIXEL_PACK_BUFFER, 0)
	return PixelBuffer{pbo: pbo, size: size}, nil
}

// ReadInto initiates an asynchronous framebuffer read into the buffer.
// The copy completes on the GPU timeline; Map on a later frame does not
// stall.
func (pb *PixelBuffer) ReadInto(width, height int32) {
	gl.BindBuffer(gl.PIXEL_PACK_BUFFER, pb.pbo)
	gl.ReadPixels(0, 0, width, height, gl.RGBA, gl.UNSIGNED_BYTE, nil)
	gl.BindBuffer(gl.PIXEL_PACK_BUFFER, 0)
	pb.filled = true
}

// Map copies the buffer contents out. Returns false if no read has been
// issued into this buffer yet.
func (pb *PixelBuffer) Map(dst []uint8) bool {
	if !pb.filled {
		return false
	}
	gl.BindBuffer(gl.PIXEL_PACK_BUFFER, pb.pbo)
	ptr := gl.MapBufferRange(gl.PIXEL_PACK_BUFFER, 0, pb.size, gl.MAP_READ_BIT)
	if ptr == nil {
		gl.BindBuffer(gl.PIXEL_PACK_BUFFER, 0)
		return false
	}
	copy(dst, unsafe.Slice((*uint8)(ptr), pb.size))
	gl.UnmapBuffer(gl.PIXEL_PACK_BUFFER)
	gl.BindBuffer(gl.PIXEL_PACK_BUFFER, 0)
	return true
}

func (pb *PixelBuffer) Close() error {
	if pb.pbo != 0 {
		gl.DeleteBuffers(1, &pb.pbo)
		pb.pbo = 0
	}
	return nil
}
