package vulkan

import (
	"runtime"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/triangle/engine/assets/loaders"
	"github.com/spaghettifunk/triangle/engine/config"
	"github.com/spaghettifunk/triangle/engine/core"
	"github.com/spaghettifunk/triangle/engine/platform"
	"github.com/spaghettifunk/triangle/engine/renderer"
	"github.com/spaghettifunk/triangle/engine/renderer/scheduler"
)

const (
	applicationName = "Hello Triangle"
	engineName      = "No Engine"

	vertexShaderName   = "triangle.vert"
	fragmentShaderName = "triangle.frag"

	// The triangle vertices are generated in the vertex shader.
	triangleVertexCount = 3
)

// ShaderLoader loads the SPIR-V binary of a named shader.
type ShaderLoader interface {
	LoadShader(name string) (*loaders.Resource, error)
	UnloadAsset(res *loaders.Resource) error
}

// VulkanRenderer owns every Vulkan object of the triangle and drives them through the
// frame scheduler.
type VulkanRenderer struct {
	platform *platform.Platform
	shaders  ShaderLoader
	config   config.Renderer

	context   *VulkanContext
	lifetime  *scheduler.Lifetime
	scheduler *scheduler.Scheduler
}

var _ renderer.RendererBackend = (*VulkanRenderer)(nil)

func New(p *platform.Platform, shaders ShaderLoader, cfg config.Renderer) *VulkanRenderer {
	return &VulkanRenderer{
		platform: p,
		shaders:  shaders,
		config:   cfg,
		lifetime: scheduler.NewLifetime(),
	}
}

// Initialize creates every object from the instance up to the command pool and hands them
// to a new frame scheduler. On error whatever was created is released again.
func (vr *VulkanRenderer) Initialize(width, height uint32) error {
	vr.context = newContext(width, height)
	if err := vr.initialize(); err != nil {
		if rerr := vr.lifetime.Release(); rerr != nil {
			core.LogError("cleanup after failed initialization: %s", rerr)
		}
		var frameErr *core.FrameError
		if errors.As(err, &frameErr) {
			return err
		}
		return core.NewFrameError(core.KindSetup, "Initialize", 0, err)
	}
	core.LogInfo("Vulkan renderer initialized successfully.")
	return nil
}

func (vr *VulkanRenderer) initialize() error {
	ctx := vr.context

	procAddr := platform.InstanceProcAddr()
	if procAddr == nil {
		return setupError("vkGetInstanceProcAddr", errors.New("GetInstanceProcAddress is nil"))
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		return setupError("vkInit", err)
	}

	if err := vr.createInstance(); err != nil {
		return err
	}
	vr.lifetime.Acquired("instance", func() error {
		vk.DestroyInstance(ctx.Instance, ctx.Allocator)
		ctx.Instance = nil
		return nil
	})

	if vr.config.Validation {
		if err := vr.createDebugCallback(); err != nil {
			return err
		}
		vr.lifetime.Acquired("debug report callback", func() error {
			vk.DestroyDebugReportCallback(ctx.Instance, ctx.debugCallback, ctx.Allocator)
			ctx.debugCallback = vk.NullDebugReportCallback
			return nil
		})
	}

	// Surface
	core.LogDebug("Creating Vulkan surface...")
	surface, err := vr.platform.CreateSurface(ctx.Instance)
	if err != nil {
		return setupError("CreateWindowSurface", err)
	}
	ctx.Surface = vk.SurfaceFromPointer(surface)
	vr.lifetime.Acquired("surface", func() error {
		vk.DestroySurface(ctx.Instance, ctx.Surface, ctx.Allocator)
		ctx.Surface = vk.NullSurface
		return nil
	})
	core.LogDebug("Vulkan surface created.")

	device, err := DeviceCreate(ctx)
	if err != nil {
		return setupError("CreateDevice", err)
	}
	ctx.Device = device
	vr.lifetime.Acquired("device", func() error {
		ctx.Device.Destroy()
		return nil
	})

	swapchain, err := SwapchainCreate(ctx, ctx.FramebufferWidth, ctx.FramebufferHeight)
	if err != nil {
		return setupError("CreateSwapchain", err)
	}
	ctx.Swapchain = swapchain
	vr.lifetime.Acquired("swapchain", func() error {
		ctx.Swapchain.SwapchainDestroy()
		return nil
	})

	renderpass, err := RenderpassCreate(ctx, swapchain.ImageFormat.Format, vr.config.ClearColor)
	if err != nil {
		return setupError("CreateRenderPass", err)
	}
	ctx.MainRenderpass = renderpass
	vr.lifetime.Acquired("render pass", func() error {
		ctx.MainRenderpass.RenderpassDestroy()
		return nil
	})

	framebuffers, err := FramebuffersCreate(ctx, renderpass, swapchain)
	if err != nil {
		return setupError("CreateFramebuffers", err)
	}
	ctx.Framebuffers = framebuffers
	vr.lifetime.Acquired("framebuffers", func() error {
		for _, fb := range ctx.Framebuffers {
			fb.Destroy()
		}
		ctx.Framebuffers = nil
		return nil
	})

	pipeline, err := vr.buildPipeline()
	if err != nil {
		return setupError("CreateGraphicsPipeline", err)
	}
	ctx.Pipeline = pipeline
	// Destroys whichever pipeline is current when the lifetime ends.
	vr.lifetime.Acquired("pipeline", func() error {
		if ctx.Pipeline != nil {
			ctx.Pipeline.Destroy()
			ctx.Pipeline = nil
		}
		return nil
	})

	pool, err := CommandPoolCreate(ctx)
	if err != nil {
		return setupError("CreateCommandPool", err)
	}
	ctx.CommandPool = pool
	vr.lifetime.Acquired("command pool", func() error {
		ctx.CommandPool.Destroy()
		return nil
	})

	s, err := scheduler.New(vr.config.FramesInFlight, scheduler.Collaborators{
		Device:        device,
		GraphicsQueue: device.GraphicsQueue,
		PresentQueue:  device.PresentQueue,
		Swapchain:     swapchain,
		CommandPool:   pool,
		Recipe:        vr.recipe(pipeline),
		Lifetime:      vr.lifetime,
	},
		scheduler.WithFenceTimeout(vr.config.FenceTimeout()),
		scheduler.WithAcquireTimeout(vr.config.AcquireTimeout()),
	)
	if err != nil {
		return err
	}
	vr.scheduler = s
	return nil
}

func (vr *VulkanRenderer) createInstance() error {
	ctx := vr.context

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 1, 0)),
		EngineVersion:      uint32(vk.MakeVersion(1, 1, 0)),
		PApplicationName:   VulkanSafeString(applicationName),
		PEngineName:        VulkanSafeString(engineName),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
		Flags:            instancePortabilityFlags(),
	}

	// Obtain a list of required extensions
	requiredExtensions := vr.platform.RequiredInstanceExtensions()
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
	}
	if vr.config.Validation {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
	}
	core.LogDebug("Required extensions: %v", requiredExtensions)
	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)

	// Validation layers.
	var layers []string
	if vr.config.Validation {
		core.LogInfo("Validation layers enabled. Enumerating...")
		available, err := instanceLayers()
		if err != nil {
			return setupError("vkEnumerateInstanceLayerProperties", err)
		}
		if missing := missingNames(vr.config.ValidationLayers, available); len(missing) > 0 {
			return setupError("CheckValidationLayers", errors.Newf("required validation layer is missing: %s", missing[0]))
		}
		core.LogInfo("All required validation layers are present.")
		layers = vr.config.ValidationLayers
	}
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if err := check("vkCreateInstance", vk.CreateInstance(&createInfo, ctx.Allocator, &ctx.Instance)); err != nil {
		return setupError("vkCreateInstance", err)
	}
	if err := vk.InitInstance(ctx.Instance); err != nil {
		vk.DestroyInstance(ctx.Instance, ctx.Allocator)
		return setupError("vkInitInstance", err)
	}
	core.LogInfo("Vulkan Instance created.")
	return nil
}

func (vr *VulkanRenderer) createDebugCallback() error {
	core.LogDebug("Creating Vulkan debugger...")
	debugCreateInfo := vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: dbgCallbackFunc,
	}
	var dbg vk.DebugReportCallback
	if err := check("vkCreateDebugReportCallbackEXT", vk.CreateDebugReportCallback(vr.context.Instance, &debugCreateInfo, vr.context.Allocator, &dbg)); err != nil {
		return setupError("vkCreateDebugReportCallbackEXT", err)
	}
	vr.context.debugCallback = dbg
	core.LogDebug("Vulkan debugger created.")
	return nil
}

func instanceLayers() ([]string, error) {
	var count uint32
	if err := check("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, nil)); err != nil {
		return nil, err
	}
	layers := make([]vk.LayerProperties, count)
	if count > 0 {
		if err := check("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, layers)); err != nil {
			return nil, err
		}
	}
	names := make([]string, 0, count)
	for i := range layers[:count] {
		layers[i].Deref()
		names = append(names, byteString(layers[i].LayerName[:]))
	}
	return names, nil
}

func (vr *VulkanRenderer) buildPipeline() (*VulkanPipeline, error) {
	vert, err := vr.shaders.LoadShader(vertexShaderName)
	if err != nil {
		return nil, err
	}
	defer vr.shaders.UnloadAsset(vert)
	frag, err := vr.shaders.LoadShader(fragmentShaderName)
	if err != nil {
		return nil, err
	}
	defer vr.shaders.UnloadAsset(frag)

	return PipelineCreateFromShaders(vr.context, vert.Data, frag.Data, vr.context.MainRenderpass)
}

func (vr *VulkanRenderer) recipe(pipeline *VulkanPipeline) scheduler.DrawRecipe {
	return scheduler.DrawRecipe{
		RenderPass:    vr.context.MainRenderpass,
		Pipeline:      pipeline,
		Framebuffers:  framebufferHandles(vr.context.Framebuffers),
		Extent:        vr.context.Swapchain.Extent(),
		VertexCount:   triangleVertexCount,
		InstanceCount: 1,
	}
}

// RenderFrame draws and presents one frame.
func (vr *VulkanRenderer) RenderFrame() error {
	if vr.scheduler == nil {
		return core.NewFrameError(core.KindSetup, "RenderFrame", 0, errors.New("renderer not initialized"))
	}
	return vr.scheduler.RenderFrame()
}

// ReloadShaders rebuilds the pipeline from the current shader binaries. A shader that
// fails to build leaves the running pipeline in place.
func (vr *VulkanRenderer) ReloadShaders() error {
	if vr.scheduler == nil {
		return errors.New("renderer not initialized")
	}
	pipeline, err := vr.buildPipeline()
	if err != nil {
		core.LogWarn("Keeping the current pipeline, shader reload failed: %s", err)
		return err
	}
	if err := vr.scheduler.ReplaceRecipe(vr.recipe(pipeline)); err != nil {
		pipeline.Destroy()
		return err
	}
	vr.context.Pipeline.Destroy()
	vr.context.Pipeline = pipeline
	core.LogInfo("Shaders reloaded.")
	return nil
}

func (vr *VulkanRenderer) FrameNumber() uint64 {
	if vr.scheduler == nil {
		return 0
	}
	return vr.scheduler.FrameNumber()
}

// Shutdown idles the device and destroys everything in reverse creation order.
func (vr *VulkanRenderer) Shutdown() error {
	if vr.scheduler != nil {
		return vr.scheduler.Shutdown()
	}
	return vr.lifetime.Release()
}

func setupError(op string, err error) error {
	return core.NewFrameError(core.KindSetup, op, 0, err)
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
		core.LogDebug("DEBUG: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
