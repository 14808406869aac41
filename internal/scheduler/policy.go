package scheduler

import "github.com/RZJZWD/MCU-boot/internal/frame"

// Action is the closed set of outcomes a ResponsePolicy may return.
type Action int

const (
	// Continue accepts the reply and moves to the next item.
	Continue Action = iota
	// Retry re-enqueues a copy of this item (if its schedule-retry budget
	// allows) and moves to the next item.
	Retry
	// Stop halts the run, clearing the remaining queue.
	Stop
	// Skip moves on without recording the reply.
	Skip
)

// ResponsePolicy is a pure function from a received frame to an Action.
type ResponsePolicy func(*frame.Frame) Action

// ContinueAlways is the default policy when an item does not specify one.
func ContinueAlways(*frame.Frame) Action { return Continue }

// EnterBootPolicy accepts a matching EnterBoot reply and stops on anything
// else.
func EnterBootPolicy(f *frame.Frame) Action {
	if f.Cmd == frame.EnterBoot {
		return Continue
	}
	return Stop
}

// UploadPolicy continues on Ack, retries the fragment on a device error, and
// stops on anything else.
func UploadPolicy(f *frame.Frame) Action {
	switch f.Cmd {
	case frame.Ack:
		return Continue
	case frame.ErrorResponse:
		return Retry
	default:
		return Stop
	}
}

// RunAppPolicy continues on Ack and stops on anything else.
func RunAppPolicy(f *frame.Frame) Action {
	if f.Cmd == frame.Ack {
		return Continue
	}
	return Stop
}
