package renderer

// RendererBackend is the graphics API specific side of the renderer.
type RendererBackend interface {
	// Initialize creates everything needed to draw into a window of the given size.
	Initialize(width, height uint32) error
	// RenderFrame draws and presents one frame. Errors are fatal *core.FrameError values.
	RenderFrame() error
	// ReloadShaders rebuilds the pipeline between two frames.
	ReloadShaders() error
	// FrameNumber counts the frames submitted so far.
	FrameNumber() uint64
	// Shutdown waits for the GPU to finish and releases everything in reverse creation order.
	Shutdown() error
}
