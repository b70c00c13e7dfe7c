package multiverse

import (
	"fmt"

	gl "github.com/go-gl/gl/v3.1/gles2"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// glContext wraps a hidden glfw window whose only purpose is to supply an
// offscreen OpenGL ES context. All methods, including creation, must run
// on the OS thread that will issue GL calls; the Renderer's owner
// goroutine locks itself to one before calling in here.
type glContext struct {
	window *glfw.Window
}

func createOffscreenContext(width, height int) (*glContext, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("glfw init: %w", err)
	}
	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.ClientAPI, glfw.OpenGLESAPI)
	glfw.WindowHint(glfw.ContextVersionMajor, 3)
	glfw.WindowHint(glfw.ContextVersionMinor, 0)
	window, err := glfw.CreateWindow(width, height, "multiverse", nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("offscreen window: %w", err)
	}
	window.MakeContextCurrent()
	if err := gl.Init(); err != nil {
		window.Destroy()
		glfw.Terminate()
		return nil, fmt.Errorf("gl init: %w", err)
	}
	return &glContext{window: window}, nil
}

func (c *glContext) Close() error {
	if c.window != nil {
		c.window.Destroy()
		c.window = nil
		glfw.Terminate()
	}
	return nil
}
