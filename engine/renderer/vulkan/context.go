package vulkan

import (
	vk "github.com/goki/vulkan"
)

// VulkanContext holds every object the backend creates. Teardown runs through the
// backend lifetime, never through the context itself.
type VulkanContext struct {
	// The framebuffer's current width.
	FramebufferWidth uint32
	// The framebuffer's current height.
	FramebufferHeight uint32

	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	debugCallback vk.DebugReportCallback

	Device *VulkanDevice

	Swapchain      *VulkanSwapchain
	MainRenderpass *VulkanRenderpass
	Framebuffers   []*VulkanFramebuffer
	Pipeline       *VulkanPipeline
	CommandPool    *VulkanCommandPool

	locks *VulkanLockPool
}

func newContext(width, height uint32) *VulkanContext {
	return &VulkanContext{
		FramebufferWidth:  width,
		FramebufferHeight: height,
		locks:             NewVulkanLockPool(),
	}
}
