package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/triangle/engine/renderer/scheduler"
)

type VulkanFramebuffer struct {
	Handle      vk.Framebuffer
	Attachments []vk.ImageView
	Renderpass  *VulkanRenderpass

	device *VulkanDevice
}

func FramebufferCreate(context *VulkanContext, renderpass *VulkanRenderpass, width, height uint32, attachments []vk.ImageView) (*VulkanFramebuffer, error) {
	outFramebuffer := &VulkanFramebuffer{
		// Take a copy of the attachments.
		Attachments: append([]vk.ImageView(nil), attachments...),
		Renderpass:  renderpass,
		device:      context.Device,
	}

	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderpass.Handle,
		AttachmentCount: uint32(len(outFramebuffer.Attachments)),
		PAttachments:    outFramebuffer.Attachments,
		Width:           width,
		Height:          height,
		Layers:          1,
	}

	var pFramebuffer vk.Framebuffer
	if err := check("vkCreateFramebuffer", vk.CreateFramebuffer(context.Device.LogicalDevice, &framebufferCreateInfo, context.Allocator, &pFramebuffer)); err != nil {
		return nil, err
	}
	outFramebuffer.Handle = pFramebuffer
	return outFramebuffer, nil
}

// FramebuffersCreate makes one framebuffer per swapchain view, in image index order.
func FramebuffersCreate(context *VulkanContext, renderpass *VulkanRenderpass, swapchain *VulkanSwapchain) ([]*VulkanFramebuffer, error) {
	framebuffers := make([]*VulkanFramebuffer, 0, len(swapchain.Views))
	for _, view := range swapchain.Views {
		fb, err := FramebufferCreate(context, renderpass, swapchain.Extent2D.Width, swapchain.Extent2D.Height, []vk.ImageView{view})
		if err != nil {
			for _, created := range framebuffers {
				created.Destroy()
			}
			return nil, err
		}
		framebuffers = append(framebuffers, fb)
	}
	return framebuffers, nil
}

func (vfb *VulkanFramebuffer) Destroy() {
	if vfb.Handle != vk.NullFramebuffer {
		vk.DestroyFramebuffer(vfb.device.LogicalDevice, vfb.Handle, vfb.device.allocator)
	}
	vfb.Attachments = nil
	vfb.Handle = vk.NullFramebuffer
	vfb.Renderpass = nil
}

func framebufferHandles(framebuffers []*VulkanFramebuffer) []scheduler.Framebuffer {
	out := make([]scheduler.Framebuffer, len(framebuffers))
	for i, fb := range framebuffers {
		out[i] = fb
	}
	return out
}
