// Package device provides byte-oriented access to a motion controller.
package device

import "time"

// A Channel is a line-oriented connection to a single controller.
//
// Implementations must be safe for use by one writer at a time; callers
// serialize access themselves.
type Channel interface {
	// Write sends p to the device as-is.
	Write(p []byte) error

	// ReadLine returns the next complete line without its line ending,
	// or nil if none arrived before timeout.
	ReadLine(timeout time.Duration) []byte

	// InWaiting reports the number of received bytes not yet read.
	InWaiting() int

	// ResetBuffers discards all pending input and output.
	ResetBuffers() error

	Close() error
}

// An Opener opens a Channel by path (or port name).
type Opener func(path string) (Channel, error)
