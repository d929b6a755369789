package scheduler

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/triangle/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScheduler(t *testing.T, frames, images int) (*Scheduler, *mockGPU) {
	t.Helper()
	g := newMockGPU(images)
	s, err := New(frames, collaborators(g, NewLifetime()))
	require.NoError(t, err)
	return s, g
}

func TestFiveFramesTwoSlotsThreeImages(t *testing.T) {
	s, g := newScheduler(t, 2, 3)

	var frames []int
	for i := 0; i < 5; i++ {
		frames = append(frames, s.CurrentFrame())
		require.NoError(t, s.RenderFrame())
	}

	assert.Equal(t, []int{0, 1, 0, 1, 0}, frames)
	assert.Equal(t, 1, s.CurrentFrame())
	assert.Equal(t, uint64(5), s.FrameNumber())
	assert.Equal(t, 5, g.acquireCalls)
	require.Len(t, g.submits, 5)
	require.Len(t, g.presents, 5)
	assert.Equal(t, []uint32{0, 1, 2, 0, 1}, g.acquired)

	// Frame k waits on the fence signaled by frame k-2.
	require.Len(t, g.waits, 5)
	for k := 2; k < 5; k++ {
		assert.Same(t, g.submits[k-2].Fence, Fence(g.waits[k]), "frame %d", k)
	}
	assert.Same(t, g.submits[0].Fence, Fence(g.waits[2]))
	assert.NotSame(t, g.submits[1].Fence, Fence(g.waits[2]))

	for k, sub := range g.submits {
		slot := &s.slots[k%2]
		assert.Same(t, slot.ImageAvailable, sub.Wait)
		assert.Equal(t, StageColorAttachmentOutput, sub.WaitStage)
		assert.Same(t, slot.RenderFinished, sub.Signal)
		assert.Same(t, slot.InFlight, sub.Fence)
		assert.Same(t, slot.RenderFinished, g.presents[k].wait)
		assert.Equal(t, g.acquired[k], g.presents[k].imageIndex)
	}
	assert.Equal(t, uint64(4), s.slots[0].LastFrame)
	assert.Equal(t, uint64(3), s.slots[1].LastFrame)

	assert.LessOrEqual(t, g.maxOutstanding, 2)
	assert.Empty(t, g.violations)
	require.NoError(t, s.Shutdown())
	assert.Empty(t, g.violations)
}

func TestFramebufferFollowsImageIndex(t *testing.T) {
	s, g := newScheduler(t, 2, 3)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.RenderFrame())
	}

	// Slot 0 recorded frames 0 and 2. Frame 2 got image 2, so it must bind framebuffer 2.
	cb := g.buffers[0]
	assert.Equal(t, []string{
		"reset",
		"begin",
		"begin render pass renderpass framebuffer2 800x600",
		"bind pipeline",
		"viewport 800x600",
		"scissor 800x600",
		"draw 3 1 0 0",
		"end render pass",
		"end",
	}, cb.commands)
	assert.Contains(t, g.buffers[1].commands, "begin render pass renderpass framebuffer1 800x600")
}

func TestFrameProtocolOrder(t *testing.T) {
	s, g := newScheduler(t, 1, 2)

	require.NoError(t, s.RenderFrame())

	assert.Equal(t, []string{
		"wait fence0",
		"reset fence0",
		"acquire semaphore0",
		"submit graphics",
		"present image0",
	}, g.calls)
}

func TestSingleSlotSingleFrame(t *testing.T) {
	s, g := newScheduler(t, 1, 1)

	require.NoError(t, s.RenderFrame())

	assert.Equal(t, 0, s.CurrentFrame())
	assert.Len(t, g.presents, 1)
	require.Len(t, g.fences, 1)
	assert.Equal(t, 1, g.fences[0].waited)
	assert.Equal(t, 1, g.fences[0].resets)
	assert.Equal(t, SlotSubmitted, s.SlotState(0))
	assert.Empty(t, g.violations)
}

func TestCurrentFrameCycles(t *testing.T) {
	for frames := 1; frames <= 4; frames++ {
		s, g := newScheduler(t, frames, 3)
		for i := 0; i < 3*frames+1; i++ {
			require.Equal(t, i%frames, s.CurrentFrame())
			require.NoError(t, s.RenderFrame())
			require.LessOrEqual(t, g.outstanding, frames)
		}
		assert.Equal(t, frames, g.maxOutstanding, "every slot ends up in flight")
		assert.Empty(t, g.violations)
		require.NoError(t, s.Shutdown())
	}
}

func TestOutOfDateStopsTheLoop(t *testing.T) {
	s, g := newScheduler(t, 2, 3)
	g.acquireErrors[3] = core.ErrOutOfDate

	var err error
	calls := 0
	for i := 0; i < 5 && err == nil; i++ {
		calls++
		err = s.RenderFrame()
	}

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, core.IsKind(err, core.KindAcquire))
	assert.True(t, errors.Is(err, core.ErrOutOfDate))
	assert.Equal(t, 0, s.CurrentFrame(), "a failed frame does not advance")
	assert.Len(t, g.submits, 2)
	assert.Len(t, g.presents, 2)

	// The loop stays stopped even if the caller keeps going.
	assert.Equal(t, err, s.RenderFrame())
	assert.Equal(t, 3, g.acquireCalls)

	require.NoError(t, s.Shutdown())
	assert.Empty(t, g.violations)
	assert.Len(t, g.destroyed, 6)
}

func TestFatalErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		inject func(g *mockGPU)
		kind   core.ErrorKind
		cause  error
	}{
		{"fence timeout", func(g *mockGPU) { g.waitErr = core.ErrTimeout }, core.KindWait, core.ErrTimeout},
		{"fence reset", func(g *mockGPU) { g.resetFenceErr = core.ErrDeviceLost }, core.KindWait, core.ErrDeviceLost},
		{"acquire timeout", func(g *mockGPU) { g.acquireErrors[1] = core.ErrTimeout }, core.KindAcquire, core.ErrTimeout},
		{"command buffer reset", func(g *mockGPU) { g.resetErr = core.ErrUnknown }, core.KindRecord, core.ErrUnknown},
		{"record", func(g *mockGPU) { g.endErr = core.ErrUnknown }, core.KindRecord, core.ErrUnknown},
		{"submit", func(g *mockGPU) { g.submitErr = core.ErrDeviceLost }, core.KindSubmit, core.ErrDeviceLost},
		{"present out of date", func(g *mockGPU) { g.presentErr = core.ErrOutOfDate }, core.KindPresent, core.ErrOutOfDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, g := newScheduler(t, 2, 3)
			tt.inject(g)

			err := s.RenderFrame()
			require.Error(t, err)
			assert.True(t, core.IsKind(err, tt.kind), err.Error())
			assert.True(t, errors.Is(err, tt.cause))
			assert.Equal(t, 0, s.CurrentFrame())
			assert.Equal(t, uint64(0), s.FrameNumber())
			assert.Empty(t, g.presents)
			assert.Equal(t, err, s.RenderFrame())

			require.NoError(t, s.Shutdown())
			assert.Empty(t, g.violations)
		})
	}
}

func TestCommandBufferNeverReusedInFlight(t *testing.T) {
	s, g := newScheduler(t, 2, 2)

	for i := 0; i < 6; i++ {
		require.NoError(t, s.RenderFrame())
		// Both buffers are referenced by in flight work right after the second frame.
		if i >= 1 {
			assert.Equal(t, 2, g.outstanding)
		}
	}
	assert.Empty(t, g.violations)
}

func TestShutdownWaitsIdleBeforeDestroying(t *testing.T) {
	lifetime := NewLifetime()
	g := newMockGPU(3)
	var order []string
	for _, name := range []string{"instance", "surface", "device", "swapchain", "render pass", "pipeline", "command pool"} {
		name := name
		lifetime.Acquired(name, func() error {
			order = append(order, name)
			return nil
		})
	}
	s, err := New(2, collaborators(g, lifetime))
	require.NoError(t, err)
	require.NoError(t, s.RenderFrame())
	require.NoError(t, s.RenderFrame())

	require.NoError(t, s.Shutdown())

	assert.Empty(t, g.violations)
	assert.Equal(t, "wait idle", g.calls[len(g.calls)-1])
	assert.Equal(t, []string{"fence1", "semaphore3", "semaphore2", "fence0", "semaphore1", "semaphore0"}, g.destroyed)
	assert.Equal(t, []string{"command pool", "pipeline", "render pass", "swapchain", "device", "surface", "instance"}, order)

	require.NoError(t, s.Shutdown(), "second shutdown is a no-op")
	assert.Equal(t, 1, g.idleCalls)
	assert.ErrorIs(t, s.RenderFrame(), ErrShutdown)
}

func TestDestroyWithoutIdleIsFlagged(t *testing.T) {
	s, g := newScheduler(t, 2, 3)
	require.NoError(t, s.RenderFrame())

	// Skipping the idle barrier destroys a fence that still guards pending work.
	s.destroySyncObjects()

	assert.NotEmpty(t, g.violations)
	assert.Contains(t, g.violations[0], "in flight")
}

func TestReplaceRecipeIdlesFirst(t *testing.T) {
	s, g := newScheduler(t, 2, 3)
	require.NoError(t, s.RenderFrame())
	require.NoError(t, s.RenderFrame())

	recipe := s.Recipe()
	recipe.Pipeline = "pipeline-reloaded"
	require.NoError(t, s.ReplaceRecipe(recipe))
	assert.Zero(t, g.outstanding)
	assert.Equal(t, SlotIdle, s.SlotState(0))
	assert.Equal(t, SlotIdle, s.SlotState(1))

	require.NoError(t, s.RenderFrame())
	assert.Contains(t, g.buffers[0].commands, "bind pipeline-reloaded")

	bad := recipe
	bad.Framebuffers = framebuffers(2)
	err := s.ReplaceRecipe(bad)
	assert.True(t, core.IsKind(err, core.KindSetup))
	assert.Empty(t, g.violations)
}

func TestNewValidatesCollaborators(t *testing.T) {
	tests := []struct {
		name   string
		frames int
		mutate func(c *Collaborators, g *mockGPU)
	}{
		{"zero frames", 0, func(*Collaborators, *mockGPU) {}},
		{"missing device", 2, func(c *Collaborators, _ *mockGPU) { c.Device = nil }},
		{"missing present queue", 2, func(c *Collaborators, _ *mockGPU) { c.PresentQueue = nil }},
		{"missing swapchain", 2, func(c *Collaborators, _ *mockGPU) { c.Swapchain = nil }},
		{"missing pool", 2, func(c *Collaborators, _ *mockGPU) { c.CommandPool = nil }},
		{"missing pipeline", 2, func(c *Collaborators, _ *mockGPU) { c.Recipe.Pipeline = nil }},
		{"framebuffer mismatch", 2, func(c *Collaborators, _ *mockGPU) { c.Recipe.Framebuffers = framebuffers(1) }},
		{"no vertices", 2, func(c *Collaborators, _ *mockGPU) { c.Recipe.VertexCount = 0 }},
		{"short pool", 2, func(_ *Collaborators, g *mockGPU) { g.allocateShort = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newMockGPU(3)
			c := collaborators(g, nil)
			tt.mutate(&c, g)

			s, err := New(tt.frames, c)
			assert.Nil(t, s)
			require.Error(t, err)
			assert.True(t, core.IsKind(err, core.KindSetup), err.Error())
		})
	}
}

func TestNewRejectsNonPositiveTimeout(t *testing.T) {
	g := newMockGPU(2)
	_, err := New(2, collaborators(g, nil), WithFenceTimeout(0))
	assert.True(t, core.IsKind(err, core.KindSetup))

	s, err := New(2, collaborators(g, nil), WithFenceTimeout(5*time.Millisecond), WithAcquireTimeout(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Millisecond, s.fenceTimeout)
	assert.Equal(t, time.Millisecond, s.acquireTimeout)
}

func TestNewCleansUpPartialSyncObjects(t *testing.T) {
	g := newMockGPU(2)
	g.fenceFailAt = 2

	_, err := New(2, collaborators(g, nil))

	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindSetup))
	assert.Equal(t, []string{"semaphore3", "semaphore2", "fence0", "semaphore1", "semaphore0"}, g.destroyed)
}
