package vulkan

import (
	stdmath "math"
	"time"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/triangle/engine/core"
	"github.com/spaghettifunk/triangle/engine/math"
	"github.com/spaghettifunk/triangle/engine/renderer/scheduler"
)

type VulkanSwapchain struct {
	ImageFormat vk.SurfaceFormat
	PresentMode vk.PresentMode
	Handle      vk.Swapchain
	Extent2D    vk.Extent2D
	Images      []vk.Image
	Views       []vk.ImageView

	device *VulkanDevice
}

type VulkanSwapchainSupportInfo struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

// SwapchainCreate builds the swapchain and one color view per image. On error nothing
// created so far is left behind.
func SwapchainCreate(context *VulkanContext, width, height uint32) (*VulkanSwapchain, error) {
	device := context.Device
	support := device.SwapchainSupport
	if len(support.Formats) == 0 {
		return nil, errors.New("surface reports no formats")
	}

	swapchain := &VulkanSwapchain{
		ImageFormat: chooseSurfaceFormat(support.Formats),
		PresentMode: choosePresentMode(support.PresentModes),
		Extent2D:    chooseExtent(support.Capabilities, width, height),
		device:      device,
	}
	imageCount := chooseImageCount(support.Capabilities)

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      swapchain.ImageFormat.Format,
		ImageColorSpace:  swapchain.ImageFormat.ColorSpace,
		ImageExtent:      swapchain.Extent2D,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     support.Capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      swapchain.PresentMode,
		Clipped:          vk.True,
		OldSwapchain:     vk.NullSwapchain,
	}

	// Setup the queue family indices
	if device.GraphicsQueueIndex != device.PresentQueueIndex {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{
			uint32(device.GraphicsQueueIndex),
			uint32(device.PresentQueueIndex),
		}
	} else {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	var swapchainHandle vk.Swapchain
	if err := check("vkCreateSwapchainKHR", vk.CreateSwapchain(device.LogicalDevice, &swapchainCreateInfo, context.Allocator, &swapchainHandle)); err != nil {
		return nil, err
	}
	swapchain.Handle = swapchainHandle

	var count uint32
	if err := check("vkGetSwapchainImagesKHR", vk.GetSwapchainImages(device.LogicalDevice, swapchain.Handle, &count, nil)); err != nil {
		swapchain.SwapchainDestroy()
		return nil, err
	}
	swapchain.Images = make([]vk.Image, count)
	if err := check("vkGetSwapchainImagesKHR", vk.GetSwapchainImages(device.LogicalDevice, swapchain.Handle, &count, swapchain.Images)); err != nil {
		swapchain.SwapchainDestroy()
		return nil, err
	}

	// Views
	for i := range swapchain.Images {
		viewInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    swapchain.Images[i],
			ViewType: vk.ImageViewType2d,
			Format:   swapchain.ImageFormat.Format,
			Components: vk.ComponentMapping{
				R: vk.ComponentSwizzleIdentity,
				G: vk.ComponentSwizzleIdentity,
				B: vk.ComponentSwizzleIdentity,
				A: vk.ComponentSwizzleIdentity,
			},
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		}
		var view vk.ImageView
		if err := check("vkCreateImageView", vk.CreateImageView(device.LogicalDevice, &viewInfo, context.Allocator, &view)); err != nil {
			swapchain.SwapchainDestroy()
			return nil, err
		}
		swapchain.Views = append(swapchain.Views, view)
	}

	core.LogInfo("Swapchain created: %d images, %dx%d.", len(swapchain.Images), swapchain.Extent2D.Width, swapchain.Extent2D.Height)
	return swapchain, nil
}

// SwapchainDestroy releases the views and the swapchain. The images belong to the
// swapchain and go with it.
func (vs *VulkanSwapchain) SwapchainDestroy() {
	for _, view := range vs.Views {
		vk.DestroyImageView(vs.device.LogicalDevice, view, vs.device.allocator)
	}
	vs.Views = nil
	vs.Images = nil
	if vs.Handle != vk.NullSwapchain {
		vk.DestroySwapchain(vs.device.LogicalDevice, vs.Handle, vs.device.allocator)
		vs.Handle = vk.NullSwapchain
	}
}

func (vs *VulkanSwapchain) Extent() scheduler.Extent {
	return scheduler.Extent{Width: vs.Extent2D.Width, Height: vs.Extent2D.Height}
}

func (vs *VulkanSwapchain) ImageCount() int {
	return len(vs.Images)
}

func (vs *VulkanSwapchain) AcquireNextImage(timeout time.Duration, signal scheduler.Semaphore) (uint32, error) {
	semaphore, ok := signal.(vk.Semaphore)
	if !ok {
		return 0, errors.Newf("unexpected semaphore handle %T", signal)
	}
	var imageIndex uint32
	result := vk.AcquireNextImage(vs.device.LogicalDevice, vs.Handle, timeoutNanos(timeout), semaphore, vk.NullFence, &imageIndex)
	switch result {
	case vk.Success:
		return imageIndex, nil
	case vk.Suboptimal:
		// The image is still usable.
		core.LogWarn("vkAcquireNextImageKHR returned %s", VulkanResultString(result, false))
		return imageIndex, nil
	}
	return 0, resultError("vkAcquireNextImageKHR", result)
}

func (vs *VulkanSwapchain) Present(queue scheduler.Queue, wait scheduler.Semaphore, imageIndex uint32) error {
	presentQueue, ok := queue.(*VulkanQueue)
	if !ok {
		return errors.Newf("unexpected queue %T", queue)
	}
	semaphore, ok := wait.(vk.Semaphore)
	if !ok {
		return errors.Newf("unexpected semaphore handle %T", wait)
	}

	// Return the image to the swapchain for presentation.
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{semaphore},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{vs.Handle},
		PImageIndices:      []uint32{imageIndex},
	}

	return presentQueue.call(func() error {
		result := vk.QueuePresent(presentQueue.Handle, &presentInfo)
		if result == vk.Suboptimal {
			core.LogWarn("vkQueuePresentKHR returned %s", VulkanResultString(result, false))
			return nil
		}
		return check("vkQueuePresentKHR", result)
	})
}

// chooseSurfaceFormat prefers 8 bit BGRA in the sRGB color space.
func chooseSurfaceFormat(formats []vk.SurfaceFormat) vk.SurfaceFormat {
	for _, format := range formats {
		if format.Format == vk.FormatB8g8r8a8Unorm && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return format
		}
	}
	return formats[0]
}

// choosePresentMode prefers mailbox. FIFO is always available.
func choosePresentMode(modes []vk.PresentMode) vk.PresentMode {
	for _, mode := range modes {
		if mode == vk.PresentModeMailbox {
			return mode
		}
	}
	return vk.PresentModeFifo
}

// chooseExtent uses the surface extent unless the surface lets the swapchain decide, in
// which case the window size is clamped to what the GPU allows.
func chooseExtent(capabilities vk.SurfaceCapabilities, width, height uint32) vk.Extent2D {
	if capabilities.CurrentExtent.Width != stdmath.MaxUint32 {
		return capabilities.CurrentExtent
	}
	min := capabilities.MinImageExtent
	max := capabilities.MaxImageExtent
	return vk.Extent2D{
		Width:  math.Clamp(width, min.Width, max.Width),
		Height: math.Clamp(height, min.Height, max.Height),
	}
}

func chooseImageCount(capabilities vk.SurfaceCapabilities) uint32 {
	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && imageCount > capabilities.MaxImageCount {
		imageCount = capabilities.MaxImageCount
	}
	return imageCount
}
