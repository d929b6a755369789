package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/triangle/engine/renderer/scheduler"
)

// VulkanQueue is a device queue. Calls on it are serialized per family.
type VulkanQueue struct {
	Handle      vk.Queue
	FamilyIndex uint32

	locks *VulkanLockPool
}

func (vq *VulkanQueue) call(fn func() error) error {
	return vq.locks.SafeQueueCall(vq.FamilyIndex, fn)
}

func (vq *VulkanQueue) Submit(info scheduler.SubmitInfo) error {
	cb, ok := info.CommandBuffer.(*VulkanCommandBuffer)
	if !ok {
		return errors.Newf("unexpected command buffer %T", info.CommandBuffer)
	}
	wait, ok := info.Wait.(vk.Semaphore)
	if !ok {
		return errors.Newf("unexpected wait semaphore %T", info.Wait)
	}
	signal, ok := info.Signal.(vk.Semaphore)
	if !ok {
		return errors.Newf("unexpected signal semaphore %T", info.Signal)
	}
	fence, err := asFence(info.Fence)
	if err != nil {
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{wait},
		PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(info.WaitStage)},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cb.Handle},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{signal},
	}

	return vq.call(func() error {
		if err := check("vkQueueSubmit", vk.QueueSubmit(vq.Handle, 1, []vk.SubmitInfo{submitInfo}, fence.Handle)); err != nil {
			return err
		}
		fence.UpdateSubmitted()
		cb.UpdateSubmitted()
		return nil
	})
}
