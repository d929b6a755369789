package core

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrOutOfDate reports that the surface changed and the swapchain can no longer present to it.
	ErrOutOfDate = errors.New("swapchain out of date")
	// ErrSuboptimal reports a swapchain that still presents but no longer matches the surface.
	ErrSuboptimal = errors.New("swapchain suboptimal")
	// ErrTimeout reports a fence wait or image acquisition that did not complete in time.
	ErrTimeout = errors.New("timed out")
	// ErrDeviceLost reports that the logical device is gone and nothing submitted will complete.
	ErrDeviceLost = errors.New("device lost")
	ErrUnknown    = errors.New("unknown")
)

// ErrorKind classifies the failures of the frame loop and its setup. Every kind is fatal.
type ErrorKind uint8

const (
	// Missing capability, extension or layer, or an invalid collaborator at construction.
	KindSetup ErrorKind = iota + 1
	// The in-flight fence of a frame slot did not signal.
	KindWait
	// Swapchain image acquisition failed, including out of date and timeout.
	KindAcquire
	// Command buffer recording failed.
	KindRecord
	// Queue submission was rejected.
	KindSubmit
	// Presentation was rejected.
	KindPresent
)

func (k ErrorKind) String() string {
	switch k {
	case KindSetup:
		return "setup"
	case KindWait:
		return "wait"
	case KindAcquire:
		return "acquire"
	case KindRecord:
		return "record"
	case KindSubmit:
		return "submit"
	case KindPresent:
		return "present"
	default:
		return "unknown"
	}
}

// FrameError is the tagged error returned by the frame scheduler.
type FrameError struct {
	Kind ErrorKind
	// Op names the operation that failed, e.g. "vkQueueSubmit".
	Op string
	// Frame is the number of the frame being rendered when the failure happened.
	Frame uint64
	Err   error
}

func NewFrameError(kind ErrorKind, op string, frame uint64, err error) *FrameError {
	return &FrameError{Kind: kind, Op: op, Frame: frame, Err: err}
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("%s error: %s failed on frame %d: %v", e.Kind, e.Op, e.Frame, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsKind reports whether any error in err's chain is a FrameError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var fe *FrameError
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}
