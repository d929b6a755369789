package vulkan

import (
	"runtime"
	"time"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/triangle/engine/core"
	"github.com/spaghettifunk/triangle/engine/renderer/scheduler"
)

const portabilitySubsetExtension = "VK_KHR_portability_subset"

type VulkanDevice struct {
	PhysicalDevice     vk.PhysicalDevice
	LogicalDevice      vk.Device
	SwapchainSupport   VulkanSwapchainSupportInfo
	GraphicsQueueIndex int32
	PresentQueueIndex  int32

	GraphicsQueue *VulkanQueue
	PresentQueue  *VulkanQueue

	Properties vk.PhysicalDeviceProperties

	allocator *vk.AllocationCallbacks
	locks     *VulkanLockPool
}

type VulkanPhysicalDeviceRequirements struct {
	Graphics             bool
	Present              bool
	DeviceExtensionNames []string
}

type VulkanPhysicalDeviceQueueFamilyInfo struct {
	GraphicsFamilyIndex int32
	PresentFamilyIndex  int32
}

// queueFamily is the part of a queue family the selection looks at.
type queueFamily struct {
	Flags      vk.QueueFlags
	QueueCount uint32
	Present    bool
}

// DeviceCreate selects a physical device able to draw to and present on the context
// surface, then creates the logical device and fetches its queues.
func DeviceCreate(context *VulkanContext) (*VulkanDevice, error) {
	device := &VulkanDevice{
		GraphicsQueueIndex: -1,
		PresentQueueIndex:  -1,
		allocator:          context.Allocator,
		locks:              context.locks,
	}
	if err := selectPhysicalDevice(context, device); err != nil {
		return nil, err
	}

	core.LogInfo("Creating logical device...")

	// NOTE: Do not create additional queues for shared indices.
	indices := []uint32{uint32(device.GraphicsQueueIndex)}
	if device.PresentQueueIndex != device.GraphicsQueueIndex {
		indices = append(indices, uint32(device.PresentQueueIndex))
	}

	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: indices[i],
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	available, err := deviceExtensions(device.PhysicalDevice)
	if err != nil {
		return nil, err
	}
	extensionNames := []string{vk.KhrSwapchainExtensionName}
	if len(missingNames([]string{portabilitySubsetExtension}, available)) == 0 {
		core.LogInfo("Adding required extension '%s'.", portabilitySubsetExtension)
		extensionNames = append(extensionNames, portabilitySubsetExtension)
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{{}},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
		// Deprecated and ignored, so pass nothing.
		EnabledLayerCount:   0,
		PpEnabledLayerNames: nil,
	}

	var logical vk.Device
	if err := check("vkCreateDevice", vk.CreateDevice(device.PhysicalDevice, &deviceCreateInfo, device.allocator, &logical)); err != nil {
		return nil, err
	}
	device.LogicalDevice = logical
	core.LogInfo("Logical device created.")

	device.GraphicsQueue = device.queue(uint32(device.GraphicsQueueIndex))
	device.PresentQueue = device.queue(uint32(device.PresentQueueIndex))
	core.LogInfo("Queues obtained.")

	return device, nil
}

func (vd *VulkanDevice) queue(family uint32) *VulkanQueue {
	var handle vk.Queue
	vk.GetDeviceQueue(vd.LogicalDevice, family, 0, &handle)
	return &VulkanQueue{Handle: handle, FamilyIndex: family, locks: vd.locks}
}

func (vd *VulkanDevice) Destroy() {
	vd.GraphicsQueue = nil
	vd.PresentQueue = nil

	core.LogDebug("Destroying logical device...")
	if vd.LogicalDevice != nil {
		vk.DestroyDevice(vd.LogicalDevice, vd.allocator)
		vd.LogicalDevice = nil
	}

	// Physical devices are not destroyed.
	vd.PhysicalDevice = nil
	vd.SwapchainSupport = VulkanSwapchainSupportInfo{}
	vd.GraphicsQueueIndex = -1
	vd.PresentQueueIndex = -1
}

func (vd *VulkanDevice) CreateSemaphore() (scheduler.Semaphore, error) {
	info := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if err := check("vkCreateSemaphore", vk.CreateSemaphore(vd.LogicalDevice, &info, vd.allocator, &semaphore)); err != nil {
		return nil, err
	}
	return semaphore, nil
}

func (vd *VulkanDevice) DestroySemaphore(semaphore scheduler.Semaphore) {
	if s, ok := semaphore.(vk.Semaphore); ok && s != vk.NullSemaphore {
		vk.DestroySemaphore(vd.LogicalDevice, s, vd.allocator)
	}
}

func (vd *VulkanDevice) CreateFence(signaled bool) (scheduler.Fence, error) {
	return NewFence(vd, signaled)
}

func (vd *VulkanDevice) DestroyFence(fence scheduler.Fence) {
	if f, err := asFence(fence); err == nil {
		f.FenceDestroy(vd)
	}
}

func (vd *VulkanDevice) WaitForFence(fence scheduler.Fence, timeout time.Duration) error {
	f, err := asFence(fence)
	if err != nil {
		return err
	}
	return f.FenceWait(vd, timeout)
}

func (vd *VulkanDevice) ResetFence(fence scheduler.Fence) error {
	f, err := asFence(fence)
	if err != nil {
		return err
	}
	return f.FenceReset(vd)
}

func (vd *VulkanDevice) WaitIdle() error {
	return check("vkDeviceWaitIdle", vk.DeviceWaitIdle(vd.LogicalDevice))
}

func selectPhysicalDevice(context *VulkanContext, device *VulkanDevice) error {
	var physicalDeviceCount uint32
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, nil)); err != nil {
		return err
	}
	if physicalDeviceCount == 0 {
		err := errors.New("no devices which support Vulkan were found")
		core.LogError(err.Error())
		return err
	}
	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, physicalDevices)); err != nil {
		return err
	}

	requirements := VulkanPhysicalDeviceRequirements{
		Graphics:             true,
		Present:              true,
		DeviceExtensionNames: []string{vk.KhrSwapchainExtensionName},
	}

	bestScore := -1
	for _, candidate := range physicalDevices[:physicalDeviceCount] {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(candidate, &properties)
		properties.Deref()

		queueInfo, support, ok := physicalDeviceMeetsRequirements(candidate, context.Surface, &properties, &requirements)
		if !ok {
			continue
		}
		if score := deviceTypeScore(properties.DeviceType); score > bestScore {
			bestScore = score
			device.PhysicalDevice = candidate
			device.Properties = properties
			device.SwapchainSupport = support
			device.GraphicsQueueIndex = queueInfo.GraphicsFamilyIndex
			device.PresentQueueIndex = queueInfo.PresentFamilyIndex
		}
	}

	if device.PhysicalDevice == nil {
		err := errors.New("no physical devices were found which meet the requirements")
		core.LogError(err.Error())
		return err
	}

	properties := device.Properties
	core.LogInfo("Selected device: '%s'.", byteString(properties.DeviceName[:]))
	core.LogInfo("GPU type is %s.", deviceTypeName(properties.DeviceType))
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		properties.ApiVersion>>22,
		(properties.ApiVersion>>12)&0x3ff,
		properties.ApiVersion&0xfff,
	)
	core.LogDebug("Graphics Family Index: %d", device.GraphicsQueueIndex)
	core.LogDebug("Present Family Index:  %d", device.PresentQueueIndex)
	return nil
}

func physicalDeviceMeetsRequirements(device vk.PhysicalDevice, surface vk.Surface, properties *vk.PhysicalDeviceProperties, requirements *VulkanPhysicalDeviceRequirements) (VulkanPhysicalDeviceQueueFamilyInfo, VulkanSwapchainSupportInfo, bool) {
	name := byteString(properties.DeviceName[:])

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	familyProperties := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, familyProperties)

	families := make([]queueFamily, queueFamilyCount)
	for i := range families {
		familyProperties[i].Deref()
		var supportsPresent vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), surface, &supportsPresent); res != vk.Success {
			core.LogWarn("Cannot query present support of '%s': %s", name, VulkanResultString(res, false))
			return VulkanPhysicalDeviceQueueFamilyInfo{}, VulkanSwapchainSupportInfo{}, false
		}
		families[i] = queueFamily{
			Flags:      familyProperties[i].QueueFlags,
			QueueCount: familyProperties[i].QueueCount,
			Present:    supportsPresent == vk.True,
		}
	}

	queueInfo := selectQueueFamilies(families)
	if (requirements.Graphics && queueInfo.GraphicsFamilyIndex < 0) || (requirements.Present && queueInfo.PresentFamilyIndex < 0) {
		core.LogInfo("Device '%s' lacks a graphics or present queue, skipping.", name)
		return queueInfo, VulkanSwapchainSupportInfo{}, false
	}

	if len(requirements.DeviceExtensionNames) > 0 {
		available, err := deviceExtensions(device)
		if err != nil {
			return queueInfo, VulkanSwapchainSupportInfo{}, false
		}
		if missing := missingNames(requirements.DeviceExtensionNames, available); len(missing) > 0 {
			core.LogInfo("Required extension not found: '%s', skipping device.", missing[0])
			return queueInfo, VulkanSwapchainSupportInfo{}, false
		}
	}

	support, err := DeviceQuerySwapchainSupport(device, surface)
	if err != nil || len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		core.LogInfo("Required swapchain support not present, skipping device.")
		return queueInfo, support, false
	}
	return queueInfo, support, true
}

// selectQueueFamilies prefers one family that does both graphics and present.
func selectQueueFamilies(families []queueFamily) VulkanPhysicalDeviceQueueFamilyInfo {
	info := VulkanPhysicalDeviceQueueFamilyInfo{GraphicsFamilyIndex: -1, PresentFamilyIndex: -1}
	for i, f := range families {
		if f.QueueCount == 0 {
			continue
		}
		graphics := f.Flags&vk.QueueFlags(vk.QueueGraphicsBit) != 0
		if graphics && f.Present {
			info.GraphicsFamilyIndex = int32(i)
			info.PresentFamilyIndex = int32(i)
			return info
		}
		if graphics && info.GraphicsFamilyIndex < 0 {
			info.GraphicsFamilyIndex = int32(i)
		}
		if f.Present && info.PresentFamilyIndex < 0 {
			info.PresentFamilyIndex = int32(i)
		}
	}
	return info
}

func deviceTypeScore(deviceType vk.PhysicalDeviceType) int {
	switch deviceType {
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return 3
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return 2
	case vk.PhysicalDeviceTypeVirtualGpu:
		return 1
	default:
		return 0
	}
}

func deviceTypeName(deviceType vk.PhysicalDeviceType) string {
	switch deviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return "Integrated"
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return "Discrete"
	case vk.PhysicalDeviceTypeVirtualGpu:
		return "Virtual"
	case vk.PhysicalDeviceTypeCpu:
		return "CPU"
	default:
		return "Unknown"
	}
}

func deviceExtensions(device vk.PhysicalDevice) ([]string, error) {
	var count uint32
	if err := check("vkEnumerateDeviceExtensionProperties", vk.EnumerateDeviceExtensionProperties(device, "", &count, nil)); err != nil {
		return nil, err
	}
	properties := make([]vk.ExtensionProperties, count)
	if count > 0 {
		if err := check("vkEnumerateDeviceExtensionProperties", vk.EnumerateDeviceExtensionProperties(device, "", &count, properties)); err != nil {
			return nil, err
		}
	}
	names := make([]string, 0, count)
	for i := range properties[:count] {
		properties[i].Deref()
		names = append(names, byteString(properties[i].ExtensionName[:]))
	}
	return names, nil
}

func DeviceQuerySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface) (VulkanSwapchainSupportInfo, error) {
	var supportInfo VulkanSwapchainSupportInfo

	if err := check("vkGetPhysicalDeviceSurfaceCapabilitiesKHR", vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &supportInfo.Capabilities)); err != nil {
		return supportInfo, err
	}
	supportInfo.Capabilities.Deref()
	supportInfo.Capabilities.CurrentExtent.Deref()
	supportInfo.Capabilities.MinImageExtent.Deref()
	supportInfo.Capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	if err := check("vkGetPhysicalDeviceSurfaceFormatsKHR", vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, nil)); err != nil {
		return supportInfo, err
	}
	if formatCount != 0 {
		supportInfo.Formats = make([]vk.SurfaceFormat, formatCount)
		if err := check("vkGetPhysicalDeviceSurfaceFormatsKHR", vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, supportInfo.Formats)); err != nil {
			return supportInfo, err
		}
		for i := range supportInfo.Formats {
			supportInfo.Formats[i].Deref()
		}
	}

	var presentModeCount uint32
	if err := check("vkGetPhysicalDeviceSurfacePresentModesKHR", vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &presentModeCount, nil)); err != nil {
		return supportInfo, err
	}
	if presentModeCount != 0 {
		supportInfo.PresentModes = make([]vk.PresentMode, presentModeCount)
		if err := check("vkGetPhysicalDeviceSurfacePresentModesKHR", vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &presentModeCount, supportInfo.PresentModes)); err != nil {
			return supportInfo, err
		}
	}
	return supportInfo, nil
}

// instancePortabilityFlags is set on darwin where MoltenVK is a portability driver.
func instancePortabilityFlags() vk.InstanceCreateFlags {
	if runtime.GOOS == "darwin" {
		return vk.InstanceCreateFlags(0x00000001) // VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
	}
	return 0
}
