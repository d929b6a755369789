package scheduler

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/triangle/engine/core"
)

const (
	DefaultFenceTimeout   = time.Second
	DefaultAcquireTimeout = time.Second
)

var ErrShutdown = errors.New("scheduler is shut down")

type SlotState uint8

const (
	// The fence was waited on (or never used) and the command buffer may be recorded.
	SlotIdle SlotState = iota
	// Work referencing the slot semaphores and fence was enqueued on the GPU.
	SlotSubmitted
)

func (s SlotState) String() string {
	if s == SlotSubmitted {
		return "submitted"
	}
	return "idle"
}

// FrameSlot is one of the N reusable sets of synchronization objects and command buffer.
type FrameSlot struct {
	// Signaled when the acquired swapchain image may be written.
	ImageAvailable Semaphore
	// Signaled when rendering is done. Presentation waits on it.
	RenderFinished Semaphore
	// Signaled when the GPU is done with the last submission of this slot.
	InFlight      Fence
	CommandBuffer CommandBuffer

	State SlotState
	// LastFrame is the frame number of the last submission made from this slot.
	LastFrame uint64
}

type Option func(*Scheduler)

func WithFenceTimeout(timeout time.Duration) Option {
	return func(s *Scheduler) {
		s.fenceTimeout = timeout
	}
}

func WithAcquireTimeout(timeout time.Duration) Option {
	return func(s *Scheduler) {
		s.acquireTimeout = timeout
	}
}

// Scheduler drives the acquire, record, submit, present loop over a fixed set of frame
// slots. It must only be used from the thread that renders.
type Scheduler struct {
	device        Device
	graphicsQueue Queue
	presentQueue  Queue
	swapchain     Swapchain
	recipe        DrawRecipe
	lifetime      *Lifetime

	slots        []FrameSlot
	currentFrame int
	frameNumber  uint64

	fenceTimeout   time.Duration
	acquireTimeout time.Duration

	// failure is the fatal error that stopped the loop, returned by every later frame.
	failure  error
	shutdown bool
}

// New creates the synchronization objects of frames slots and takes one command buffer
// per slot from the pool. Fences start signaled so that the first wait of every slot
// returns immediately.
func New(frames int, c Collaborators, opts ...Option) (*Scheduler, error) {
	if err := validate(frames, c); err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	s := &Scheduler{
		device:         c.Device,
		graphicsQueue:  c.GraphicsQueue,
		presentQueue:   c.PresentQueue,
		swapchain:      c.Swapchain,
		recipe:         c.Recipe,
		lifetime:       c.Lifetime,
		slots:          make([]FrameSlot, frames),
		fenceTimeout:   DefaultFenceTimeout,
		acquireTimeout: DefaultAcquireTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.fenceTimeout <= 0 || s.acquireTimeout <= 0 {
		err := core.NewFrameError(core.KindSetup, "New", 0, errors.New("timeouts must be positive"))
		core.LogError(err.Error())
		return nil, err
	}

	buffers, err := c.CommandPool.Allocate(frames)
	if err != nil {
		err := core.NewFrameError(core.KindSetup, "AllocateCommandBuffers", 0, err)
		core.LogError(err.Error())
		return nil, err
	}
	if len(buffers) != frames {
		err := core.NewFrameError(core.KindSetup, "AllocateCommandBuffers", 0,
			errors.Newf("command pool returned %d buffers, %d requested", len(buffers), frames))
		core.LogError(err.Error())
		return nil, err
	}

	for i := range s.slots {
		slot := &s.slots[i]
		slot.CommandBuffer = buffers[i]
		if err := s.createSyncObjects(slot); err != nil {
			s.destroySyncObjects()
			err := core.NewFrameError(core.KindSetup, "CreateSyncObjects", 0, err)
			core.LogError(err.Error())
			return nil, err
		}
	}

	core.LogDebug("Frame scheduler created with %d frames in flight over %d swapchain images.", frames, c.Swapchain.ImageCount())
	return s, nil
}

func validate(frames int, c Collaborators) error {
	fail := func(format string, args ...interface{}) error {
		return core.NewFrameError(core.KindSetup, "New", 0, errors.Newf(format, args...))
	}
	switch {
	case frames < 1:
		return fail("frames in flight must be at least 1, got %d", frames)
	case c.Device == nil:
		return fail("missing device")
	case c.GraphicsQueue == nil || c.PresentQueue == nil:
		return fail("missing graphics or present queue")
	case c.Swapchain == nil:
		return fail("missing swapchain")
	case c.CommandPool == nil:
		return fail("missing command pool")
	}
	return validateRecipe(c.Recipe, c.Swapchain)
}

func validateRecipe(r DrawRecipe, swapchain Swapchain) error {
	fail := func(format string, args ...interface{}) error {
		return core.NewFrameError(core.KindSetup, "DrawRecipe", 0, errors.Newf(format, args...))
	}
	switch {
	case r.RenderPass == nil || r.Pipeline == nil:
		return fail("draw recipe needs a render pass and a pipeline")
	case swapchain.ImageCount() < 1:
		return fail("swapchain has no images")
	case len(r.Framebuffers) != swapchain.ImageCount():
		return fail("%d framebuffers for %d swapchain images", len(r.Framebuffers), swapchain.ImageCount())
	case r.VertexCount == 0 || r.InstanceCount == 0:
		return fail("draw recipe has no vertices or instances")
	}
	return nil
}

func (s *Scheduler) createSyncObjects(slot *FrameSlot) error {
	var err error
	if slot.ImageAvailable, err = s.device.CreateSemaphore(); err != nil {
		return errors.Wrap(err, "image available semaphore")
	}
	if slot.RenderFinished, err = s.device.CreateSemaphore(); err != nil {
		return errors.Wrap(err, "render finished semaphore")
	}
	if slot.InFlight, err = s.device.CreateFence(true); err != nil {
		return errors.Wrap(err, "in flight fence")
	}
	return nil
}

// destroySyncObjects releases the semaphores and fences of every slot, last slot first.
// The caller guarantees no GPU work references them.
func (s *Scheduler) destroySyncObjects() {
	for i := len(s.slots) - 1; i >= 0; i-- {
		slot := &s.slots[i]
		if slot.InFlight != nil {
			s.device.DestroyFence(slot.InFlight)
			slot.InFlight = nil
		}
		if slot.RenderFinished != nil {
			s.device.DestroySemaphore(slot.RenderFinished)
			slot.RenderFinished = nil
		}
		if slot.ImageAvailable != nil {
			s.device.DestroySemaphore(slot.ImageAvailable)
			slot.ImageAvailable = nil
		}
		slot.CommandBuffer = nil
		slot.State = SlotIdle
	}
}

// RenderFrame renders and presents one frame from the current slot and advances to the
// next slot. Any error is fatal: it is a *core.FrameError and is returned again by every
// later call without touching the device.
func (s *Scheduler) RenderFrame() error {
	if s.shutdown {
		return core.NewFrameError(core.KindSetup, "RenderFrame", s.frameNumber, ErrShutdown)
	}
	if s.failure != nil {
		return s.failure
	}

	slot := &s.slots[s.currentFrame]

	// Wait for the GPU to finish the previous submission of this slot.
	if err := s.device.WaitForFence(slot.InFlight, s.fenceTimeout); err != nil {
		return s.fail(core.KindWait, "WaitForFence", err)
	}
	slot.State = SlotIdle

	if err := s.device.ResetFence(slot.InFlight); err != nil {
		return s.fail(core.KindWait, "ResetFence", err)
	}

	imageIndex, err := s.swapchain.AcquireNextImage(s.acquireTimeout, slot.ImageAvailable)
	if err != nil {
		return s.fail(core.KindAcquire, "AcquireNextImage", err)
	}
	if int(imageIndex) >= len(s.recipe.Framebuffers) {
		return s.fail(core.KindAcquire, "AcquireNextImage",
			errors.Newf("image index %d out of range for %d framebuffers", imageIndex, len(s.recipe.Framebuffers)))
	}

	if err := s.record(slot.CommandBuffer, imageIndex); err != nil {
		return s.fail(core.KindRecord, "RecordCommandBuffer", err)
	}

	// Color output waits for the image, earlier stages may start right away.
	if err := s.graphicsQueue.Submit(SubmitInfo{
		CommandBuffer: slot.CommandBuffer,
		Wait:          slot.ImageAvailable,
		WaitStage:     StageColorAttachmentOutput,
		Signal:        slot.RenderFinished,
		Fence:         slot.InFlight,
	}); err != nil {
		return s.fail(core.KindSubmit, "QueueSubmit", err)
	}
	slot.State = SlotSubmitted
	slot.LastFrame = s.frameNumber

	if err := s.swapchain.Present(s.presentQueue, slot.RenderFinished, imageIndex); err != nil {
		return s.fail(core.KindPresent, "QueuePresent", err)
	}

	s.currentFrame = (s.currentFrame + 1) % len(s.slots)
	s.frameNumber++
	return nil
}

// record re-records cb against the framebuffer of the acquired image.
func (s *Scheduler) record(cb CommandBuffer, imageIndex uint32) error {
	if err := cb.Reset(); err != nil {
		return errors.Wrap(err, "reset")
	}
	if err := cb.Begin(); err != nil {
		return errors.Wrap(err, "begin")
	}
	r := s.recipe
	cb.BeginRenderPass(r.RenderPass, r.Framebuffers[imageIndex], r.Extent)
	cb.BindPipeline(r.Pipeline)
	cb.SetViewport(r.Extent)
	cb.SetScissor(r.Extent)
	cb.Draw(r.VertexCount, r.InstanceCount, 0, 0)
	cb.EndRenderPass()
	if err := cb.End(); err != nil {
		return errors.Wrap(err, "end")
	}
	return nil
}

func (s *Scheduler) fail(kind core.ErrorKind, op string, err error) error {
	fe := core.NewFrameError(kind, op, s.frameNumber, err)
	core.LogError(fe.Error())
	s.failure = fe
	return fe
}

// ReplaceRecipe swaps the draw recipe between two frames. The device is idled first so no
// submission still references the old pipeline when the caller destroys it.
func (s *Scheduler) ReplaceRecipe(recipe DrawRecipe) error {
	if s.shutdown {
		return core.NewFrameError(core.KindSetup, "ReplaceRecipe", s.frameNumber, ErrShutdown)
	}
	if err := validateRecipe(recipe, s.swapchain); err != nil {
		return err
	}
	if err := s.device.WaitIdle(); err != nil {
		return core.NewFrameError(core.KindSetup, "WaitIdle", s.frameNumber, err)
	}
	for i := range s.slots {
		s.slots[i].State = SlotIdle
	}
	s.recipe = recipe
	core.LogDebug("Draw recipe replaced at frame %d.", s.frameNumber)
	return nil
}

// Shutdown waits for the device to go idle, destroys the frame slots and then runs the
// collaborators lifetime. It runs after a fatal frame error too. Later calls do nothing.
func (s *Scheduler) Shutdown() error {
	if s.shutdown {
		return nil
	}
	s.shutdown = true

	var errs []error
	if err := s.device.WaitIdle(); err != nil {
		core.LogError("failed to wait for device idle before teardown: %s", err)
		errs = append(errs, errors.Wrap(err, "wait idle"))
	}

	s.destroySyncObjects()
	core.LogDebug("Frame sync objects destroyed.")

	if s.lifetime != nil {
		if err := s.lifetime.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CurrentFrame is the index of the slot the next RenderFrame uses.
func (s *Scheduler) CurrentFrame() int {
	return s.currentFrame
}

// FrameNumber counts the frames rendered so far.
func (s *Scheduler) FrameNumber() uint64 {
	return s.frameNumber
}

func (s *Scheduler) FramesInFlight() int {
	return len(s.slots)
}

func (s *Scheduler) SlotState(i int) SlotState {
	return s.slots[i].State
}

func (s *Scheduler) Recipe() DrawRecipe {
	return s.recipe
}
