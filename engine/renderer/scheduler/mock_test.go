package scheduler

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/triangle/engine/core"
)

// mockGPU implements every collaborator and records the calls made on it. Submitted work
// completes only when its fence is waited on or the device is idled, so the number of
// outstanding submissions is always as high as the scheduler allows.
type mockGPU struct {
	imageCount int

	fences     []*mockFence
	semaphores []*mockSemaphore
	buffers    []*mockCommandBuffer

	calls      []string
	violations []string
	destroyed  []string

	waits    []*mockFence
	submits  []SubmitInfo
	presents []mockPresent
	acquired []uint32

	outstanding    int
	maxOutstanding int

	nextImage    int
	acquireCalls int
	// acquireErrors maps an acquire call number, starting at 1, to the error it returns.
	acquireErrors map[int]error
	waitErr       error
	resetFenceErr error
	resetErr      error
	submitErr     error
	endErr        error
	presentErr    error
	allocateShort bool
	fenceFailAt   int
	idleCalls     int
}

type mockFence struct {
	id        int
	signaled  bool
	pending   bool
	destroyed bool
	resets    int
	waited    int
}

type mockSemaphore struct {
	id        int
	destroyed bool
}

type mockPresent struct {
	queue      Queue
	wait       Semaphore
	imageIndex uint32
}

type mockQueue struct {
	name string
	gpu  *mockGPU
}

type mockCommandBuffer struct {
	id  int
	gpu *mockGPU
	// inFlight is the fence of the last submission that used this buffer.
	inFlight *mockFence
	commands []string
}

func newMockGPU(imageCount int) *mockGPU {
	return &mockGPU{imageCount: imageCount, acquireErrors: map[int]error{}}
}

func (g *mockGPU) violate(format string, args ...interface{}) {
	g.violations = append(g.violations, fmt.Sprintf(format, args...))
}

func (g *mockGPU) complete(f *mockFence) {
	if f.pending {
		f.pending = false
		f.signaled = true
		g.outstanding--
	}
}

func (g *mockGPU) CreateSemaphore() (Semaphore, error) {
	s := &mockSemaphore{id: len(g.semaphores)}
	g.semaphores = append(g.semaphores, s)
	return s, nil
}

func (g *mockGPU) DestroySemaphore(semaphore Semaphore) {
	s := semaphore.(*mockSemaphore)
	if g.outstanding > 0 {
		g.violate("semaphore %d destroyed with %d submissions in flight", s.id, g.outstanding)
	}
	s.destroyed = true
	g.destroyed = append(g.destroyed, fmt.Sprintf("semaphore%d", s.id))
}

func (g *mockGPU) CreateFence(signaled bool) (Fence, error) {
	if g.fenceFailAt > 0 && len(g.fences)+1 == g.fenceFailAt {
		return nil, errors.New("out of host memory")
	}
	f := &mockFence{id: len(g.fences), signaled: signaled}
	g.fences = append(g.fences, f)
	return f, nil
}

func (g *mockGPU) DestroyFence(fence Fence) {
	f := fence.(*mockFence)
	if f.pending {
		g.violate("fence %d destroyed while unsignaled work is pending", f.id)
	}
	f.destroyed = true
	g.destroyed = append(g.destroyed, fmt.Sprintf("fence%d", f.id))
}

func (g *mockGPU) WaitForFence(fence Fence, timeout time.Duration) error {
	f := fence.(*mockFence)
	g.calls = append(g.calls, fmt.Sprintf("wait fence%d", f.id))
	g.waits = append(g.waits, f)
	if timeout <= 0 {
		g.violate("fence %d waited without a finite timeout", f.id)
	}
	if g.waitErr != nil {
		return g.waitErr
	}
	g.complete(f)
	if !f.signaled {
		// Nothing will ever signal it.
		return core.ErrTimeout
	}
	f.waited++
	return nil
}

func (g *mockGPU) ResetFence(fence Fence) error {
	f := fence.(*mockFence)
	g.calls = append(g.calls, fmt.Sprintf("reset fence%d", f.id))
	if f.pending {
		g.violate("fence %d reset while in use", f.id)
	}
	if g.resetFenceErr != nil {
		return g.resetFenceErr
	}
	f.signaled = false
	f.resets++
	return nil
}

func (g *mockGPU) WaitIdle() error {
	g.calls = append(g.calls, "wait idle")
	g.idleCalls++
	for _, f := range g.fences {
		g.complete(f)
	}
	return nil
}

func (g *mockGPU) Extent() Extent {
	return Extent{Width: 800, Height: 600}
}

func (g *mockGPU) ImageCount() int {
	return g.imageCount
}

func (g *mockGPU) AcquireNextImage(timeout time.Duration, signal Semaphore) (uint32, error) {
	g.acquireCalls++
	g.calls = append(g.calls, fmt.Sprintf("acquire semaphore%d", signal.(*mockSemaphore).id))
	if err, ok := g.acquireErrors[g.acquireCalls]; ok {
		return 0, err
	}
	index := uint32(g.nextImage % g.imageCount)
	g.nextImage++
	g.acquired = append(g.acquired, index)
	return index, nil
}

func (g *mockGPU) Present(queue Queue, wait Semaphore, imageIndex uint32) error {
	g.calls = append(g.calls, fmt.Sprintf("present image%d", imageIndex))
	if g.presentErr != nil {
		return g.presentErr
	}
	g.presents = append(g.presents, mockPresent{queue: queue, wait: wait, imageIndex: imageIndex})
	return nil
}

func (g *mockGPU) Allocate(count int) ([]CommandBuffer, error) {
	if g.allocateShort {
		count--
	}
	out := make([]CommandBuffer, count)
	for i := range out {
		cb := &mockCommandBuffer{id: len(g.buffers), gpu: g}
		g.buffers = append(g.buffers, cb)
		out[i] = cb
	}
	return out, nil
}

func (q *mockQueue) Submit(info SubmitInfo) error {
	g := q.gpu
	g.calls = append(g.calls, "submit "+q.name)
	if g.submitErr != nil {
		return g.submitErr
	}
	f := info.Fence.(*mockFence)
	if f.signaled || f.pending {
		g.violate("submitted with fence %d that was not reset", f.id)
	}
	f.pending = true
	g.outstanding++
	if g.outstanding > g.maxOutstanding {
		g.maxOutstanding = g.outstanding
	}
	info.CommandBuffer.(*mockCommandBuffer).inFlight = f
	g.submits = append(g.submits, info)
	return nil
}

func (cb *mockCommandBuffer) record(cmd string) {
	cb.commands = append(cb.commands, cmd)
}

func (cb *mockCommandBuffer) Reset() error {
	if cb.inFlight != nil && cb.inFlight.pending {
		cb.gpu.violate("command buffer %d reset while its submission is in flight", cb.id)
	}
	cb.commands = nil
	cb.record("reset")
	return cb.gpu.resetErr
}

func (cb *mockCommandBuffer) Begin() error {
	cb.record("begin")
	return nil
}

func (cb *mockCommandBuffer) BeginRenderPass(pass RenderPass, framebuffer Framebuffer, area Extent) {
	cb.record(fmt.Sprintf("begin render pass %v %v %dx%d", pass, framebuffer, area.Width, area.Height))
}

func (cb *mockCommandBuffer) BindPipeline(pipeline Pipeline) {
	cb.record(fmt.Sprintf("bind %v", pipeline))
}

func (cb *mockCommandBuffer) SetViewport(extent Extent) {
	cb.record(fmt.Sprintf("viewport %dx%d", extent.Width, extent.Height))
}

func (cb *mockCommandBuffer) SetScissor(extent Extent) {
	cb.record(fmt.Sprintf("scissor %dx%d", extent.Width, extent.Height))
}

func (cb *mockCommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	cb.record(fmt.Sprintf("draw %d %d %d %d", vertexCount, instanceCount, firstVertex, firstInstance))
}

func (cb *mockCommandBuffer) EndRenderPass() {
	cb.record("end render pass")
}

func (cb *mockCommandBuffer) End() error {
	cb.record("end")
	return cb.gpu.endErr
}

func framebuffers(n int) []Framebuffer {
	out := make([]Framebuffer, n)
	for i := range out {
		out[i] = fmt.Sprintf("framebuffer%d", i)
	}
	return out
}

func collaborators(g *mockGPU, lifetime *Lifetime) Collaborators {
	queue := &mockQueue{name: "graphics", gpu: g}
	return Collaborators{
		Device:        g,
		GraphicsQueue: queue,
		PresentQueue:  queue,
		Swapchain:     g,
		CommandPool:   g,
		Recipe: DrawRecipe{
			RenderPass:    "renderpass",
			Pipeline:      "pipeline",
			Framebuffers:  framebuffers(g.imageCount),
			Extent:        g.Extent(),
			VertexCount:   3,
			InstanceCount: 1,
		},
		Lifetime: lifetime,
	}
}
