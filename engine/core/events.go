package core

import (
	"sync"

	"github.com/spaghettifunk/triangle/engine/containers"
)

type EventContext struct {
	Data struct {
		U32 [4]uint32
		I32 [4]int32
		U16 [8]uint16
		C   [4]string
	}
}

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// Keyboard key pressed.
	/* Context usage:
	 * i32 key = data.I32[0];
	 */
	EVENT_CODE_KEY_PRESSED SystemEventCode = 0x02

	// Keyboard key released.
	/* Context usage:
	 * i32 key = data.I32[0];
	 */
	EVENT_CODE_KEY_RELEASED SystemEventCode = 0x03

	// Resized/resolution changed from the OS.
	/* Context usage:
	 * u32 width = data.U32[0];
	 * u32 height = data.U32[1];
	 */
	EVENT_CODE_RESIZED SystemEventCode = 0x08

	// A watched shader binary changed on disk.
	/* Context usage:
	 * string path = data.C[0];
	 */
	EVENT_CODE_SHADERS_CHANGED SystemEventCode = 0x09

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

// Events posted from other goroutines wait here until the render thread dispatches them.
const MAX_POSTED_EVENTS = 64

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

type postedEvent struct {
	code    SystemEventCode
	sender  interface{}
	context EventContext
}

type eventSystemState struct {
	registered [MAX_EVENT_CODE + 1][]*registeredEvent

	postedMu sync.Mutex
	posted   *containers.RingQueue[postedEvent]
}

var eventState *eventSystemState = nil

// Should return true if handled.
type FnOnEvent func(code SystemEventCode, sender interface{}, listenerInst interface{}, data EventContext) bool

func EventSystemInitialize() bool {
	if eventState != nil {
		return false
	}
	eventState = &eventSystemState{
		posted: containers.NewRingQueue[postedEvent](MAX_POSTED_EVENTS),
	}
	return true
}

func EventShutdown() error {
	eventState = nil
	return nil
}

/**
 * Register to listen for when events are sent with the provided code. Events with duplicate
 * listener combos will not be registered again and will cause this to return false.
 */
func EventRegister(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	if eventState == nil || code > MAX_EVENT_CODE {
		return false
	}
	for _, e := range eventState.registered[code] {
		if e.listener == listener {
			LogWarn("listener already registered for event code %d", code)
			return false
		}
	}
	eventState.registered[code] = append(eventState.registered[code], &registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

// Unregister from listening for when events are sent with the provided code.
// Returns false when no matching registration exists.
func EventUnregister(code SystemEventCode, listener interface{}) bool {
	if eventState == nil || code > MAX_EVENT_CODE {
		return false
	}
	events := eventState.registered[code]
	for i, e := range events {
		if e.listener == listener {
			eventState.registered[code] = append(events[:i], events[i+1:]...)
			return true
		}
	}
	return false
}

/**
 * Fires an event to listeners of the given code. If an event handler returns
 * true, the event is considered handled and is not passed on to any more listeners.
 * Must be called from the render thread.
 */
func EventFire(code SystemEventCode, sender interface{}, context EventContext) bool {
	if eventState == nil || code > MAX_EVENT_CODE {
		return false
	}
	for _, e := range eventState.registered[code] {
		if e.callback(code, sender, e.listener, context) {
			// Message has been handled, do not send to other listeners.
			return true
		}
	}
	return false
}

// EventPost queues an event from any goroutine. It is fired by the next EventDispatch.
func EventPost(code SystemEventCode, sender interface{}, context EventContext) error {
	if eventState == nil {
		return ErrUnknown
	}
	eventState.postedMu.Lock()
	defer eventState.postedMu.Unlock()
	return eventState.posted.Enqueue(postedEvent{code: code, sender: sender, context: context})
}

// EventDispatch fires every posted event in order and returns how many were fired.
func EventDispatch() int {
	if eventState == nil {
		return 0
	}
	eventState.postedMu.Lock()
	pending := make([]postedEvent, 0, eventState.posted.Len())
	for !eventState.posted.IsEmpty() {
		e, _ := eventState.posted.Dequeue()
		pending = append(pending, e)
	}
	eventState.postedMu.Unlock()

	for _, e := range pending {
		EventFire(e.code, e.sender, e.context)
	}
	return len(pending)
}
