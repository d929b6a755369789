package vulkan

import (
	"math"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/triangle/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultErrorClassification(t *testing.T) {
	tests := []struct {
		result vk.Result
		want   error
	}{
		{vk.ErrorOutOfDate, core.ErrOutOfDate},
		{vk.Suboptimal, core.ErrSuboptimal},
		{vk.Timeout, core.ErrTimeout},
		{vk.NotReady, core.ErrTimeout},
		{vk.ErrorDeviceLost, core.ErrDeviceLost},
		{vk.ErrorOutOfHostMemory, core.ErrUnknown},
	}
	for _, tt := range tests {
		t.Run(VulkanResultString(tt.result, false), func(t *testing.T) {
			err := resultError("vkTest", tt.result)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want))
			assert.Contains(t, err.Error(), "vkTest returned "+VulkanResultString(tt.result, false))
		})
	}
}

func TestCheck(t *testing.T) {
	assert.NoError(t, check("vkTest", vk.Success))
	assert.ErrorIs(t, check("vkTest", vk.ErrorDeviceLost), core.ErrDeviceLost)
}

func TestVulkanResultString(t *testing.T) {
	assert.Equal(t, "VK_ERROR_OUT_OF_DATE_KHR", VulkanResultString(vk.ErrorOutOfDate, false))
	assert.Contains(t, VulkanResultString(vk.Timeout, true), "specified time")
	assert.Equal(t, "VK_ERROR_UNKNOWN", VulkanResultString(vk.Result(-12345), false))
}

func TestVulkanSafeString(t *testing.T) {
	assert.Equal(t, "\x00", VulkanSafeString(""))
	assert.Equal(t, "main\x00", VulkanSafeString("main"))
	assert.Equal(t, "main\x00", VulkanSafeString("main\x00"))

	in := []string{"a", "b\x00"}
	out := VulkanSafeStrings(in)
	assert.Equal(t, []string{"a\x00", "b\x00"}, out)
	assert.Equal(t, "a", in[0])
}

func TestByteString(t *testing.T) {
	var name [16]byte
	copy(name[:], "VK_LAYER_X")
	assert.Equal(t, "VK_LAYER_X", byteString(name[:]))
	assert.Equal(t, "full", byteString([]byte("full")))
	assert.Equal(t, "", byteString(nil))
}

func TestMissingNames(t *testing.T) {
	available := []string{"VK_KHR_swapchain", "VK_KHR_portability_subset"}
	assert.Empty(t, missingNames([]string{"VK_KHR_swapchain"}, available))
	assert.Equal(t, []string{"VK_LAYER_KHRONOS_validation"},
		missingNames([]string{"VK_KHR_swapchain", "VK_LAYER_KHRONOS_validation"}, available))
	assert.Empty(t, missingNames(nil, nil))
}

func TestTimeoutNanos(t *testing.T) {
	assert.Equal(t, uint64(0), timeoutNanos(0))
	assert.Equal(t, uint64(0), timeoutNanos(-time.Second))
	assert.Equal(t, uint64(1_000_000_000), timeoutNanos(time.Second))
	assert.Equal(t, uint64(math.MaxUint64), timeoutNanos(time.Duration(math.MaxInt64)))
}

func TestAsFence(t *testing.T) {
	f := &VulkanFence{IsSignaled: true}
	got, err := asFence(f)
	require.NoError(t, err)
	assert.Same(t, f, got)

	_, err = asFence("fence")
	assert.Error(t, err)
	_, err = asFence((*VulkanFence)(nil))
	assert.Error(t, err)
}

func TestLockPoolSerializesPerQueueFamily(t *testing.T) {
	pool := NewVulkanLockPool()
	// Nested calls on different families do not deadlock.
	err := pool.SafeQueueCall(0, func() error {
		return pool.SafeQueueCall(1, func() error {
			return pool.SafeCall(PipelineManagement, func() error { return nil })
		})
	})
	assert.NoError(t, err)

	want := errors.New("boom")
	assert.Equal(t, want, pool.SafeCall(ShaderManagement, func() error { return want }))
}
