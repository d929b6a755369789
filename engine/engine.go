package engine

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/spaghettifunk/triangle/engine/assets"
	"github.com/spaghettifunk/triangle/engine/config"
	"github.com/spaghettifunk/triangle/engine/core"
	"github.com/spaghettifunk/triangle/engine/platform"
	"github.com/spaghettifunk/triangle/engine/renderer"
	"github.com/spaghettifunk/triangle/engine/renderer/vulkan"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released everything it created
	EngineStageShutdown
)

// Window is the OS window the frames are presented to.
type Window interface {
	Startup(applicationName string, x, y, width, height uint32) error
	PumpMessages() bool
	// FramebufferSize is the drawable size in pixels, which differs from the window size
	// on HiDPI displays.
	FramebufferSize() (uint32, uint32)
	Shutdown() error
}

// Assets provides the shader binaries, optionally watching them for changes.
type Assets interface {
	Initialize(dir string, watch bool) error
	Shutdown() error
}

type Engine struct {
	config *config.Config
	stage  Stage

	window   Window
	renderer renderer.RendererBackend
	assets   Assets

	clock    *core.Clock
	lastTime float64

	stopRequested atomic.Bool
	shadersDirty  atomic.Bool
}

// New wires the glfw window, the shader asset manager and the Vulkan renderer.
func New(cfg *config.Config) (*Engine, error) {
	p, err := platform.New()
	if err != nil {
		return nil, err
	}
	am, err := assets.NewAssetManager()
	if err != nil {
		return nil, err
	}
	return newEngine(cfg, p, am, vulkan.New(p, am, cfg.Renderer)), nil
}

func newEngine(cfg *config.Config, w Window, r renderer.RendererBackend, a Assets) *Engine {
	return &Engine{
		config:   cfg,
		stage:    EngineStageUninitialized,
		window:   w,
		renderer: r,
		assets:   a,
		clock:    core.NewClock(),
	}
}

func (e *Engine) Initialize() error {
	e.stage = EngineStageInitializing
	core.LogWith("session", uuid.New().String())

	if !core.EventSystemInitialize() {
		return errors.New("failed to initialize the event system")
	}
	if err := core.MetricsInitialize(); err != nil {
		return err
	}

	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	core.EventRegister(core.EVENT_CODE_KEY_PRESSED, e, e.onKey)
	core.EventRegister(core.EVENT_CODE_KEY_RELEASED, e, e.onKey)
	core.EventRegister(core.EVENT_CODE_RESIZED, e, e.onResized)
	core.EventRegister(core.EVENT_CODE_SHADERS_CHANGED, e, e.onShadersChanged)

	w := e.config.Window
	if err := e.window.Startup(w.Title, w.X, w.Y, w.Width, w.Height); err != nil {
		return core.NewFrameError(core.KindSetup, "CreateWindow", 0, err)
	}

	r := e.config.Renderer
	if err := e.assets.Initialize(r.ShaderDir, r.HotReload); err != nil {
		return core.NewFrameError(core.KindSetup, "LoadAssets", 0, err)
	}

	width, height := e.window.FramebufferSize()
	core.LogDebug("Framebuffer size: %d, %d", width, height)
	if err := e.renderer.Initialize(width, height); err != nil {
		return err
	}

	e.stage = EngineStageInitialized
	return nil
}

// Run renders frames until the window closes or a stop is requested. A frame error ends
// the loop and is returned. Shutdown must still be called.
func (e *Engine) Run() error {
	if e.stage != EngineStageInitialized {
		return errors.New("engine is not initialized")
	}
	e.stage = EngineStageRunning

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()
	var lastReport float64

	for !e.stopRequested.Load() {
		if !e.window.PumpMessages() {
			break
		}
		core.EventDispatch()
		if e.stopRequested.Load() {
			break
		}

		if e.shadersDirty.Swap(false) {
			if err := e.renderer.ReloadShaders(); err != nil {
				core.LogWarn("shader reload failed: %s", err)
			}
		}

		if err := e.renderer.RenderFrame(); err != nil {
			core.LogError("Frame %d failed, shutting down: %s", e.renderer.FrameNumber(), err)
			return err
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		core.MetricsUpdate(currentTime - e.lastTime)
		e.lastTime = currentTime

		if currentTime-lastReport >= 5 {
			fps, frameTime := core.MetricsFrame()
			core.LogDebug("%.0f fps, %.3f ms average frame time", fps, frameTime)
			lastReport = currentTime
		}
	}
	core.LogInfo("Render loop stopped after %d frames.", e.renderer.FrameNumber())
	return nil
}

// RequestStop ends the render loop before its next frame. Safe from any goroutine.
func (e *Engine) RequestStop() {
	e.stopRequested.Store(true)
}

// Shutdown releases the renderer, the assets and the window in that order. Every step
// runs even if an earlier one fails.
func (e *Engine) Shutdown() error {
	if e.stage == EngineStageShutdown {
		return nil
	}
	e.stage = EngineStageShuttingDown

	var errs []error
	if err := e.renderer.Shutdown(); err != nil {
		errs = append(errs, errors.Wrap(err, "renderer"))
	}
	if err := e.assets.Shutdown(); err != nil {
		errs = append(errs, errors.Wrap(err, "assets"))
	}
	if err := e.window.Shutdown(); err != nil {
		errs = append(errs, errors.Wrap(err, "window"))
	}
	if err := core.EventShutdown(); err != nil {
		errs = append(errs, errors.Wrap(err, "events"))
	}

	e.stage = EngineStageShutdown
	return errors.Join(errs...)
}

func (e *Engine) Stage() Stage {
	return e.stage
}

func (e *Engine) onEvent(code core.SystemEventCode, sender, listenerInst interface{}, context core.EventContext) bool {
	switch code {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.RequestStop()
		return true
	}
	return false
}

func (e *Engine) onKey(code core.SystemEventCode, sender, listenerInst interface{}, context core.EventContext) bool {
	keyCode := context.Data.I32[0]
	if code == core.EVENT_CODE_KEY_PRESSED {
		core.LogDebug("Key %d pressed in window.", keyCode)
	} else if code == core.EVENT_CODE_KEY_RELEASED {
		core.LogDebug("Key %d released in window.", keyCode)
	}
	return false
}

func (e *Engine) onResized(code core.SystemEventCode, sender, listenerInst interface{}, context core.EventContext) bool {
	// The window is not resizable, so this only reports what the OS did.
	core.LogDebug("Window resize: %d, %d", context.Data.U32[0], context.Data.U32[1])
	return false
}

func (e *Engine) onShadersChanged(code core.SystemEventCode, sender, listenerInst interface{}, context core.EventContext) bool {
	core.LogInfo("Shader %s changed, reloading before the next frame.", context.Data.C[0])
	e.shadersDirty.Store(true)
	return true
}
