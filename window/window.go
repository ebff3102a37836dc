// Package window owns the OS window and the GLFW event dispatch. The
// render core never touches window geometry itself; it consumes the
// resize, redraw and close signals delivered through the callbacks here.
package window

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"
)

// Window wraps a GLFW window configured for Vulkan rendering.
type Window struct {
	handle *glfw.Window

	onResize func(width, height int)
	onClose  func()
}

// New initializes GLFW and creates a resizable window without a client
// API context. The caller must run on the main OS thread.
func New(title string, width, height int) (*Window, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("glfw.Init: %w", err)
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)

	handle, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("creating window: %w", err)
	}

	w := &Window{handle: handle}

	handle.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		if w.onResize != nil {
			w.onResize(width, height)
		}
	})
	handle.SetCloseCallback(func(_ *glfw.Window) {
		if w.onClose != nil {
			w.onClose()
		}
	})

	return w, nil
}

// OnResize registers the callback invoked when the framebuffer size
// changes.
func (w *Window) OnResize(fn func(width, height int)) {
	w.onResize = fn
}

// OnClose registers the callback invoked when the user requests the
// window to close.
func (w *Window) OnClose(fn func()) {
	w.onClose = fn
}

// ShouldClose reports whether a close was requested.
func (w *Window) ShouldClose() bool {
	return w.handle.ShouldClose()
}

// PollEvents dispatches pending OS events, firing the registered
// callbacks.
func (w *Window) PollEvents() {
	glfw.PollEvents()
}

// WaitEvents blocks until at least one event arrives. Used to sit out a
// minimized window whose framebuffer has zero size.
func (w *Window) WaitEvents() {
	glfw.WaitEvents()
}

// ProcAddr returns the vkGetInstanceProcAddr pointer of the system Vulkan
// loader.
func (w *Window) ProcAddr() unsafe.Pointer {
	return glfw.GetVulkanGetInstanceProcAddress()
}

// RequiredExtensions lists the instance extensions GLFW needs to create a
// surface on this platform.
func (w *Window) RequiredExtensions() []string {
	return w.handle.GetRequiredInstanceExtensions()
}

// CreateSurface creates the presentable surface bound to this window.
func (w *Window) CreateSurface(instance vk.Instance) (uintptr, error) {
	surfacePtr, err := w.handle.CreateWindowSurface(instance, nil)
	if err != nil {
		return 0, fmt.Errorf("cannot create surface within GLFW window: %w", err)
	}
	return surfacePtr, nil
}

// FramebufferSize reports the current drawable size in pixels.
func (w *Window) FramebufferSize() (uint32, uint32) {
	width, height := w.handle.GetFramebufferSize()
	return uint32(width), uint32(height)
}

// PrePresentNotify is called by the renderer right before every present.
// GLFW needs no work here; the hook exists because some windowing
// backends require one for correct frame pacing.
func (w *Window) PrePresentNotify() {}

// Destroy closes the window and terminates GLFW.
func (w *Window) Destroy() {
	w.handle.Destroy()
	glfw.Terminate()
}
