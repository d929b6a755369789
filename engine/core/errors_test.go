package core

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameErrorUnwrap(t *testing.T) {
	err := NewFrameError(KindAcquire, "vkAcquireNextImageKHR", 3, ErrOutOfDate)

	assert.True(t, errors.Is(err, ErrOutOfDate))
	assert.True(t, IsKind(err, KindAcquire))
	assert.False(t, IsKind(err, KindSubmit))
	assert.Equal(t, "acquire error: vkAcquireNextImageKHR failed on frame 3: swapchain out of date", err.Error())
}

func TestIsKindThroughWrap(t *testing.T) {
	err := errors.Wrap(NewFrameError(KindRecord, "vkEndCommandBuffer", 0, ErrUnknown), "render")

	var fe *FrameError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindRecord, fe.Kind)
	assert.True(t, IsKind(err, KindRecord))
	assert.False(t, IsKind(errors.New("plain"), KindRecord))
}

func TestErrorKindString(t *testing.T) {
	assert.Equal(t, "setup", KindSetup.String())
	assert.Equal(t, "wait", KindWait.String())
	assert.Equal(t, "present", KindPresent.String())
	assert.Equal(t, "unknown", ErrorKind(0).String())
}
