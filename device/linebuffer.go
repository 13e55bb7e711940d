package device

import (
	"bytes"
	"io"
	"sync"
	"time"
)

// LineBuffer collects raw bytes from a device and hands them out
// one line at a time.
//
// Blank lines are dropped.
type LineBuffer struct {
	mx     sync.Mutex
	buf    []byte
	notify chan struct{}
	err    error
}

var _ io.Writer = &LineBuffer{}

func NewLineBuffer() *LineBuffer {
	return &LineBuffer{notify: make(chan struct{})}
}

// Write appends received data.
func (b *LineBuffer) Write(p []byte) (int, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	if b.err != nil {
		return 0, b.err
	}
	b.buf = append(b.buf, p...)
	b.wakeLocked()
	return len(p), nil
}

func (b *LineBuffer) wakeLocked() {
	close(b.notify)
	b.notify = make(chan struct{})
}

// CloseWithError stops accepting data. Buffered lines can still be read.
func (b *LineBuffer) CloseWithError(err error) {
	if err == nil {
		err = io.EOF
	}
	b.mx.Lock()
	defer b.mx.Unlock()
	if b.err != nil {
		return
	}
	b.err = err
	b.wakeLocked()
}

// Err returns the error passed to CloseWithError, if any.
func (b *LineBuffer) Err() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.err
}

// Len returns the number of buffered bytes, including partial lines.
func (b *LineBuffer) Len() int {
	b.mx.Lock()
	defer b.mx.Unlock()
	return len(b.buf)
}

// Reset discards everything buffered.
func (b *LineBuffer) Reset() {
	b.mx.Lock()
	b.buf = nil
	b.mx.Unlock()
}

func (b *LineBuffer) nextLocked() []byte {
	for {
		i := bytes.IndexByte(b.buf, '\n')
		if i < 0 {
			return nil
		}
		line := bytes.TrimRight(b.buf[:i], "\r")
		b.buf = b.buf[i+1:]
		if len(line) == 0 {
			continue
		}
		out := make([]byte, len(line))
		copy(out, line)
		return out
	}
}

// ReadLine waits up to timeout for a complete line.
func (b *LineBuffer) ReadLine(timeout time.Duration) []byte {
	t := time.NewTimer(timeout)
	defer t.Stop()
	for {
		b.mx.Lock()
		line := b.nextLocked()
		if line != nil || b.err != nil {
			b.mx.Unlock()
			return line
		}
		ch := b.notify
		b.mx.Unlock()

		select {
		case <-ch:
		case <-t.C:
			return nil
		}
	}
}
