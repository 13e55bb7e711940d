package grbl

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mastercactapus/grblhc/gcode"
)

// A Streamer runs one job's program against the device.
type Streamer interface {
	// Stream blocks until the program was sent in full, the device
	// reported an error, or ctx was cancelled.
	Stream(ctx context.Context, program []byte) error
	IsRunning() bool
	Abort()
}

// A Validator can reject a program before it is queued.
type Validator interface {
	Validate(program []byte) error
}

// LineStreamer sends a program one block at a time and waits for each
// `ok` before sending the next. It holds the streaming slot only for a
// single exchange, so immediate commands interleave between blocks.
type LineStreamer struct {
	link *link

	running int32

	mx     sync.Mutex
	cancel context.CancelFunc
}

var (
	_ Streamer  = &LineStreamer{}
	_ Validator = &LineStreamer{}
)

func (s *LineStreamer) Validate(program []byte) error {
	_, err := gcode.Lines(program)
	return err
}

func (s *LineStreamer) IsRunning() bool { return atomic.LoadInt32(&s.running) == 1 }

// Abort cancels the running stream, if any.
func (s *LineStreamer) Abort() {
	s.mx.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mx.Unlock()
}

func (s *LineStreamer) Stream(ctx context.Context, program []byte) error {
	lines, err := gcode.Lines(program)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	s.mx.Lock()
	s.cancel = cancel
	s.mx.Unlock()
	atomic.StoreInt32(&s.running, 1)
	defer func() {
		atomic.StoreInt32(&s.running, 0)
		s.mx.Lock()
		s.cancel = nil
		s.mx.Unlock()
		cancel()
	}()

	for _, line := range lines {
		err = s.waitForResume(ctx)
		if err != nil {
			return err
		}
		err = s.send(ctx, line)
		if err != nil {
			return err
		}
	}
	return nil
}

// waitForResume blocks while the device is in feed hold.
func (s *LineStreamer) waitForResume(ctx context.Context) error {
	for s.link.state.Paused() {
		select {
		case <-ctx.Done():
			return ErrAborted
		case <-time.After(s.link.cfg.PollInterval):
		}
	}
	return nil
}

func (s *LineStreamer) send(ctx context.Context, line string) error {
	cancelled := func() bool { return ctx.Err() != nil }

	s.link.mx.Lock()
	defer s.link.mx.Unlock()
	if cancelled() {
		return ErrAborted
	}

	err := s.link.write([]byte(line + "\n"))
	if err != nil {
		return err
	}
	return s.link.waitResponse(line, isOK, cancelled)
}

func isOK(line string) bool { return line == "ok" }
