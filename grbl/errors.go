package grbl

import "errors"

var (
	// ErrNotConnected is returned when no device is open.
	ErrNotConnected = errors.New("not connected")

	// ErrConnected is returned by Connect when a device is already open.
	ErrConnected = errors.New("already connected")

	// ErrAborted is returned from waits interrupted by an abort, reset or disconnect.
	ErrAborted = errors.New("aborted")
)

// IoError is a transport failure. It is never retried.
type IoError struct {
	Op  string
	Err error
}

func (e *IoError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *IoError) Unwrap() error { return e.Err }

// ProtocolError is returned when the device answers with an error line.
type ProtocolError struct {
	Command string
	Line    string
}

func (e *ProtocolError) Error() string {
	return "device error for '" + e.Command + "': " + e.Line
}

// RejectedCommandError describes a command that was dropped without
// being written to the device.
type RejectedCommandError struct {
	Command string
	Reason  string
}

func (e *RejectedCommandError) Error() string {
	return "rejected '" + e.Command + "': " + e.Reason
}
