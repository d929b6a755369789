package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/triangle/engine/core"
	"github.com/spaghettifunk/triangle/engine/renderer/scheduler"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

// VulkanCommandPool hands out resettable primary command buffers of the graphics family.
type VulkanCommandPool struct {
	Handle vk.CommandPool
	device *VulkanDevice
}

func CommandPoolCreate(context *VulkanContext) (*VulkanCommandPool, error) {
	device := context.Device
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(device.GraphicsQueueIndex),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var handle vk.CommandPool
	err := context.locks.SafeCall(CommandPoolManagement, func() error {
		return check("vkCreateCommandPool", vk.CreateCommandPool(device.LogicalDevice, &poolCreateInfo, context.Allocator, &handle))
	})
	if err != nil {
		return nil, err
	}
	core.LogInfo("Graphics command pool created.")
	return &VulkanCommandPool{Handle: handle, device: device}, nil
}

// Destroy frees the pool and with it every buffer allocated from it.
func (vp *VulkanCommandPool) Destroy() {
	if vp.Handle == vk.NullCommandPool {
		return
	}
	_ = vp.device.locks.SafeCall(CommandPoolManagement, func() error {
		vk.DestroyCommandPool(vp.device.LogicalDevice, vp.Handle, vp.device.allocator)
		return nil
	})
	vp.Handle = vk.NullCommandPool
}

func (vp *VulkanCommandPool) Allocate(count int) ([]scheduler.CommandBuffer, error) {
	if count <= 0 {
		return nil, errors.Newf("cannot allocate %d command buffers", count)
	}
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        vp.Handle,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(count),
	}
	handles := make([]vk.CommandBuffer, count)
	err := vp.device.locks.SafeCall(CommandPoolManagement, func() error {
		return check("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(vp.device.LogicalDevice, &allocateInfo, handles))
	})
	if err != nil {
		return nil, err
	}

	buffers := make([]scheduler.CommandBuffer, count)
	for i, h := range handles {
		buffers[i] = &VulkanCommandBuffer{Handle: h, State: COMMAND_BUFFER_STATE_READY}
	}
	return buffers, nil
}

type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
	// Command buffer state.
	State VulkanCommandBufferState
	// First recording error since Begin, returned by End.
	err error
}

func (v *VulkanCommandBuffer) Reset() error {
	if err := check("vkResetCommandBuffer", vk.ResetCommandBuffer(v.Handle, 0)); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_READY
	v.err = nil
	return nil
}

func (v *VulkanCommandBuffer) Begin() error {
	if v.State != COMMAND_BUFFER_STATE_READY {
		return errors.Newf("command buffer begun in state %d", v.State)
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := check("vkBeginCommandBuffer", vk.BeginCommandBuffer(v.Handle, &beginInfo)); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (v *VulkanCommandBuffer) BeginRenderPass(pass scheduler.RenderPass, framebuffer scheduler.Framebuffer, area scheduler.Extent) {
	renderpass, ok := pass.(*VulkanRenderpass)
	if !ok {
		v.recordError(errors.Newf("unexpected render pass %T", pass))
		return
	}
	fb, ok := framebuffer.(*VulkanFramebuffer)
	if !ok {
		v.recordError(errors.Newf("unexpected framebuffer %T", framebuffer))
		return
	}
	renderpass.RenderpassBegin(v, fb.Handle, area)
}

func (v *VulkanCommandBuffer) BindPipeline(pipeline scheduler.Pipeline) {
	p, ok := pipeline.(*VulkanPipeline)
	if !ok {
		v.recordError(errors.Newf("unexpected pipeline %T", pipeline))
		return
	}
	p.PipelineBind(v, vk.PipelineBindPointGraphics)
}

func (v *VulkanCommandBuffer) SetViewport(extent scheduler.Extent) {
	viewport := vk.Viewport{
		X:        0,
		Y:        0,
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}
	vk.CmdSetViewport(v.Handle, 0, 1, []vk.Viewport{viewport})
}

func (v *VulkanCommandBuffer) SetScissor(extent scheduler.Extent) {
	scissor := vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: vk.Extent2D{Width: extent.Width, Height: extent.Height},
	}
	vk.CmdSetScissor(v.Handle, 0, 1, []vk.Rect2D{scissor})
}

func (v *VulkanCommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(v.Handle, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (v *VulkanCommandBuffer) EndRenderPass() {
	vk.CmdEndRenderPass(v.Handle)
	v.State = COMMAND_BUFFER_STATE_RECORDING
}

// End finishes recording. It fails with the first error hit while recording, and the buffer
// must then be reset before it is begun again.
func (v *VulkanCommandBuffer) End() error {
	if v.err != nil {
		return v.err
	}
	if err := check("vkEndCommandBuffer", vk.EndCommandBuffer(v.Handle)); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (v *VulkanCommandBuffer) recordError(err error) {
	core.LogError(err.Error())
	if v.err == nil {
		v.err = err
	}
}

func (v *VulkanCommandBuffer) UpdateSubmitted() {
	v.State = COMMAND_BUFFER_STATE_SUBMITTED
}
