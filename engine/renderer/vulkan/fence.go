package vulkan

import (
	"math"
	"time"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/triangle/engine/core"
	"github.com/spaghettifunk/triangle/engine/renderer/scheduler"
)

type VulkanFence struct {
	Handle     vk.Fence
	IsSignaled bool
}

func NewFence(device *VulkanDevice, createSignaled bool) (*VulkanFence, error) {
	fence := &VulkanFence{
		// Make sure to signal the fence if required.
		IsSignaled: createSignaled,
	}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if fence.IsSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var pFence vk.Fence
	if err := check("vkCreateFence", vk.CreateFence(device.LogicalDevice, &fenceCreateInfo, device.allocator, &pFence)); err != nil {
		return nil, err
	}
	fence.Handle = pFence
	return fence, nil
}

func (vf *VulkanFence) FenceDestroy(device *VulkanDevice) {
	if vf.Handle != vk.NullFence {
		vk.DestroyFence(device.LogicalDevice, vf.Handle, device.allocator)
		vf.Handle = vk.NullFence
	}
	vf.IsSignaled = false
}

// FenceWait blocks up to timeout for the fence. A fence known to be signaled returns at once.
func (vf *VulkanFence) FenceWait(device *VulkanDevice, timeout time.Duration) error {
	if vf.IsSignaled {
		return nil
	}
	result := vk.WaitForFences(device.LogicalDevice, 1, []vk.Fence{vf.Handle}, vk.True, timeoutNanos(timeout))
	switch result {
	case vk.Success:
		vf.IsSignaled = true
		return nil
	case vk.Timeout:
		core.LogWarn("vk_fence_wait - Timed out after %s", timeout)
	}
	return resultError("vkWaitForFences", result)
}

func (vf *VulkanFence) FenceReset(device *VulkanDevice) error {
	if !vf.IsSignaled {
		return nil
	}
	if err := check("vkResetFences", vk.ResetFences(device.LogicalDevice, 1, []vk.Fence{vf.Handle})); err != nil {
		return err
	}
	vf.IsSignaled = false
	return nil
}

// UpdateSubmitted records that a queue submission will signal the fence.
func (vf *VulkanFence) UpdateSubmitted() {
	vf.IsSignaled = false
}

func timeoutNanos(timeout time.Duration) uint64 {
	if timeout <= 0 {
		return 0
	}
	if timeout == time.Duration(math.MaxInt64) {
		return math.MaxUint64
	}
	return uint64(timeout.Nanoseconds())
}

func asFence(f scheduler.Fence) (*VulkanFence, error) {
	fence, ok := f.(*VulkanFence)
	if !ok || fence == nil {
		return nil, errors.Newf("unexpected fence handle %T", f)
	}
	return fence, nil
}
