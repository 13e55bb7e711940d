package grbl

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mastercactapus/grblhc/device/devicetest"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func newTestController(dev *devicetest.Device, s Streamer) (*Controller, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	c := NewController(Config{
		Open:           dev.Opener(),
		Logger:         logger,
		Streamer:       s,
		TickInterval:   5 * time.Millisecond,
		PollInterval:   time.Millisecond,
		StallThreshold: 20 * time.Millisecond,
		ReadTimeout:    5 * time.Millisecond,
	})
	return c, hook
}

// newConnected returns a controller that finished connecting and sending
// its boot commands.
func newConnected(t *testing.T, h devicetest.Handler, s Streamer) (*Controller, *devicetest.Device, *test.Hook) {
	t.Helper()
	dev := devicetest.New(h)
	c, hook := newTestController(dev, s)
	require.NoError(t, c.Connect("/dev/ttyUSB0"))
	c.sched.Tick()
	require.Equal(t, 0, c.imm.Len())
	return c, dev, hook
}

// messages returns logged messages starting with prefix, in order.
func messages(hook *test.Hook, prefix string) []string {
	var res []string
	for _, e := range hook.AllEntries() {
		if strings.HasPrefix(e.Message, prefix) {
			res = append(res, e.Message)
		}
	}
	return res
}

// fakeStreamer blocks each job until released or cancelled.
type fakeStreamer struct {
	started chan string
	release chan struct{}

	running int32
	aborts  int32
}

func newFakeStreamer() *fakeStreamer {
	return &fakeStreamer{
		started: make(chan string, 10),
		release: make(chan struct{}),
	}
}

func (f *fakeStreamer) Stream(ctx context.Context, program []byte) error {
	atomic.StoreInt32(&f.running, 1)
	defer atomic.StoreInt32(&f.running, 0)
	f.started <- string(program)
	select {
	case <-f.release:
		return nil
	case <-ctx.Done():
		return ErrAborted
	}
}

func (f *fakeStreamer) IsRunning() bool { return atomic.LoadInt32(&f.running) == 1 }
func (f *fakeStreamer) Abort()          { atomic.AddInt32(&f.aborts, 1) }

func (f *fakeStreamer) next(t *testing.T) string {
	t.Helper()
	select {
	case p := <-f.started:
		return p
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for job to start")
		return ""
	}
}
