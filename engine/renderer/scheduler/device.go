package scheduler

import "time"

// Handles are opaque to the scheduler. It only hands them back to the collaborator that
// created them.
type (
	Semaphore   interface{}
	Fence       interface{}
	RenderPass  interface{}
	Pipeline    interface{}
	Framebuffer interface{}
)

type Extent struct {
	Width  uint32
	Height uint32
}

type PipelineStage uint32

// Same bit value as VK_PIPELINE_STAGE_COLOR_ATTACHMENT_OUTPUT_BIT.
const StageColorAttachmentOutput PipelineStage = 0x00000400

// Device creates and waits on synchronization primitives.
type Device interface {
	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(semaphore Semaphore)
	// CreateFence creates a host waitable fence, already signaled if requested.
	CreateFence(signaled bool) (Fence, error)
	DestroyFence(fence Fence)
	// WaitForFence blocks until the fence signals. It returns core.ErrTimeout on expiry.
	WaitForFence(fence Fence, timeout time.Duration) error
	ResetFence(fence Fence) error
	// WaitIdle blocks until every queue of the device has finished its work.
	WaitIdle() error
}

type SubmitInfo struct {
	CommandBuffer CommandBuffer
	// Wait is waited on at WaitStage before the command buffer may write color output.
	Wait      Semaphore
	WaitStage PipelineStage
	// Signal and Fence are signaled once the command buffer completes.
	Signal Semaphore
	Fence  Fence
}

type Queue interface {
	Submit(info SubmitInfo) error
}

type Swapchain interface {
	Extent() Extent
	ImageCount() int
	// AcquireNextImage returns the index of the next presentable image. The image is not
	// writable until signal is signaled. Errors are core.ErrOutOfDate or core.ErrTimeout.
	AcquireNextImage(timeout time.Duration, signal Semaphore) (uint32, error)
	// Present queues imageIndex for display once wait is signaled.
	Present(queue Queue, wait Semaphore, imageIndex uint32) error
}

// CommandBuffer is the recording surface of one frame slot.
type CommandBuffer interface {
	Reset() error
	Begin() error
	BeginRenderPass(pass RenderPass, framebuffer Framebuffer, area Extent)
	BindPipeline(pipeline Pipeline)
	SetViewport(extent Extent)
	SetScissor(extent Extent)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	EndRenderPass()
	End() error
}

type CommandPool interface {
	// Allocate returns count resettable primary command buffers.
	Allocate(count int) ([]CommandBuffer, error)
}

// DrawRecipe is what gets bound and drawn every frame. Framebuffers are indexed by
// swapchain image index.
type DrawRecipe struct {
	RenderPass    RenderPass
	Pipeline      Pipeline
	Framebuffers  []Framebuffer
	Extent        Extent
	VertexCount   uint32
	InstanceCount uint32
}

// Collaborators bundles everything the scheduler drives but does not construct.
type Collaborators struct {
	Device        Device
	GraphicsQueue Queue
	// PresentQueue may be the same queue as GraphicsQueue.
	PresentQueue Queue
	Swapchain    Swapchain
	CommandPool  CommandPool
	Recipe       DrawRecipe
	// Lifetime holds the release steps of the collaborators. Shutdown runs it after the
	// frame slots are destroyed.
	Lifetime *Lifetime
}
