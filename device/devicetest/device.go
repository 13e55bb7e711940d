// Package devicetest provides an in-memory device.Channel that answers
// writes like a Grbl controller would.
package devicetest

import (
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mastercactapus/grblhc/device"
)

// Banner is the startup message sent after a reset.
const Banner = "Grbl 1.1h ['$' for help]"

// IdleStatus is the default answer to '?'.
const IdleStatus = "<Idle|MPos:0.000,0.000,0.000|FS:0,0|WCO:0.000,0.000,0.000>"

// A Handler returns the lines a device sends back after data was written.
type Handler func(written string) []string

// Grbl answers the way an idle Grbl 1.1 controller does.
func Grbl(written string) []string {
	switch written {
	case "\r\n\r\n", "\x18":
		return []string{"", Banner}
	case "?":
		return []string{IdleStatus}
	case "!", "~":
		return nil
	case "$$\n":
		return []string{"$0=10", "$1=25", "$2=0", "ok"}
	case "$I\n":
		return []string{"[VER:1.1h.20190825:]", "[OPT:V,15,128]", "ok"}
	case "$G\n":
		return []string{"[GC:G0 G54 G17 G21 G90 G94 M5 M9 T0 F0 S0]", "ok"}
	}
	if strings.HasSuffix(written, "\n") {
		return []string{"ok"}
	}
	return nil
}

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("device closed")

// Device records writes and feeds back lines from its Handler.
type Device struct {
	Handler Handler

	in *device.LineBuffer

	mx      sync.Mutex
	writes  []string
	closed  bool
	flushes int
	failErr error
}

var _ device.Channel = &Device{}

// New creates a Device using h, or Grbl if h is nil.
func New(h Handler) *Device {
	if h == nil {
		h = Grbl
	}
	return &Device{Handler: h, in: device.NewLineBuffer()}
}

// Opener returns a device.Opener that always hands out d.
func (d *Device) Opener() device.Opener {
	return func(string) (device.Channel, error) { return d, nil }
}

// FailWrites makes every following write return err.
func (d *Device) FailWrites(err error) {
	d.mx.Lock()
	d.failErr = err
	d.mx.Unlock()
}

// Push queues lines as if the device sent them.
func (d *Device) Push(lines ...string) {
	for _, l := range lines {
		d.in.Write([]byte(l + "\r\n"))
	}
}

func (d *Device) Write(p []byte) error {
	s := string(p)
	d.mx.Lock()
	if d.closed {
		d.mx.Unlock()
		return ErrClosed
	}
	if d.failErr != nil {
		err := d.failErr
		d.mx.Unlock()
		return err
	}
	d.writes = append(d.writes, s)
	h := d.Handler
	d.mx.Unlock()

	d.Push(h(s)...)
	return nil
}

func (d *Device) ReadLine(timeout time.Duration) []byte { return d.in.ReadLine(timeout) }
func (d *Device) InWaiting() int                       { return d.in.Len() }

func (d *Device) ResetBuffers() error {
	d.mx.Lock()
	d.flushes++
	d.mx.Unlock()
	d.in.Reset()
	return nil
}

func (d *Device) Close() error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.closed = true
	d.in.CloseWithError(io.ErrClosedPipe)
	return nil
}

// Writes returns everything written so far, in order.
func (d *Device) Writes() []string {
	d.mx.Lock()
	defer d.mx.Unlock()
	return append([]string(nil), d.writes...)
}

// Count returns how many times s was written.
func (d *Device) Count(s string) (n int) {
	for _, w := range d.Writes() {
		if w == s {
			n++
		}
	}
	return n
}

// Closed reports whether Close was called.
func (d *Device) Closed() bool {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.closed
}

// Flushes returns how many times ResetBuffers was called.
func (d *Device) Flushes() int {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.flushes
}
