package renderer

import (
	"github.com/Carmen-Shannon/oxy-batch/engine/window"
)

// Renderer is a Backend bound to a window surface.
//
// It owns the WebGPU instance, adapter and device, and every object created through the Backend
// methods. Callers drive it from the goroutine that created it.
type Renderer interface {
	Backend

	// Resize configures the underlying surface for a new size.
	// This should be called when re-sizing the window or when the surface size should change.
	//
	// Parameters:
	//   - width: the new width of the surface in pixels
	//   - height: the new height of the surface in pixels
	Resize(width, height int)

	// SetPresentMode changes how frames are delivered to the display and reconfigures the surface.
	//
	// Parameters:
	//   - mode: the PresentMode to use
	SetPresentMode(mode PresentMode)

	// TimerQueriesSupported reports whether the device was created with timestamp queries.
	// When false, CreateTimerQuery always fails with ErrTimerQueriesUnsupported.
	//
	// Returns:
	//   - bool: true if GPU pass timing is available
	TimerQueriesSupported() bool

	// Release destroys every GPU object the renderer created, then the device itself.
	Release()
}

// NewRenderer creates a WebGPU Renderer presenting to the window's surface.
// Adapter or device acquisition failures panic.
//
// Parameters:
//   - win: the window providing the surface and its initial size
//   - options: functional options applied before the device is created
//
// Returns:
//   - Renderer: the ready renderer
func NewRenderer(win window.Window, options ...RendererBuilderOption) Renderer {
	b := newWGPURendererBackend()
	for _, opt := range options {
		opt(b)
	}
	if b.uniformVersions < 1 {
		b.uniformVersions = 1
	}

	b.init(win.SurfaceDescriptor())
	b.configureSurface(win.Width(), win.Height())
	return b
}
