package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetEvents(t *testing.T) {
	t.Helper()
	require.NoError(t, EventShutdown())
	require.True(t, EventSystemInitialize())
	t.Cleanup(func() { _ = EventShutdown() })
}

func TestEventFireStopsAtHandler(t *testing.T) {
	resetEvents(t)

	var calls []string
	first, second := "first", "second"
	require.True(t, EventRegister(EVENT_CODE_KEY_PRESSED, first, func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		calls = append(calls, listener.(string))
		return data.Data.I32[0] == 256
	}))
	require.True(t, EventRegister(EVENT_CODE_KEY_PRESSED, second, func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		calls = append(calls, listener.(string))
		return true
	}))
	assert.False(t, EventRegister(EVENT_CODE_KEY_PRESSED, first, nil), "duplicate listener")

	ctx := EventContext{}
	ctx.Data.I32[0] = 256
	assert.True(t, EventFire(EVENT_CODE_KEY_PRESSED, nil, ctx))
	assert.Equal(t, []string{"first"}, calls)

	ctx.Data.I32[0] = 65
	assert.True(t, EventFire(EVENT_CODE_KEY_PRESSED, nil, ctx))
	assert.Equal(t, []string{"first", "first", "second"}, calls)

	assert.True(t, EventUnregister(EVENT_CODE_KEY_PRESSED, second))
	assert.False(t, EventUnregister(EVENT_CODE_KEY_PRESSED, second))
	assert.False(t, EventFire(EVENT_CODE_KEY_PRESSED, nil, ctx))
}

func TestEventPostDispatchesOnCaller(t *testing.T) {
	resetEvents(t)

	quits := 0
	require.True(t, EventRegister(EVENT_CODE_APPLICATION_QUIT, "engine", func(SystemEventCode, interface{}, interface{}, EventContext) bool {
		quits++
		return true
	}))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, EventPost(EVENT_CODE_APPLICATION_QUIT, nil, EventContext{}))
		}()
	}
	wg.Wait()

	assert.Zero(t, quits, "posted events wait for dispatch")
	assert.Equal(t, 4, EventDispatch())
	assert.Equal(t, 4, quits)
	assert.Zero(t, EventDispatch())
}

func TestEventsBeforeInitialize(t *testing.T) {
	require.NoError(t, EventShutdown())

	assert.False(t, EventRegister(EVENT_CODE_RESIZED, nil, nil))
	assert.False(t, EventFire(EVENT_CODE_RESIZED, nil, EventContext{}))
	assert.Error(t, EventPost(EVENT_CODE_RESIZED, nil, EventContext{}))
	assert.Zero(t, EventDispatch())
}
