package grbl

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mastercactapus/grblhc/device/devicetest"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_OneJobAtATime(t *testing.T) {
	f := newFakeStreamer()
	c, _, _ := newConnected(t, nil, f)

	require.NoError(t, c.Stream([]byte("A"), "jobA"))
	require.NoError(t, c.Stream([]byte("B"), "jobB"))
	assert.Equal(t, []JobEntry{{1, "jobA"}, {2, "jobB"}}, c.Jobs())

	c.sched.Tick()
	assert.Equal(t, "A", f.next(t))
	assert.Equal(t, []JobEntry{{1, "jobB"}}, c.Jobs())
	name, ok := c.Current()
	assert.True(t, ok)
	assert.Equal(t, "jobA", name)
	assert.Equal(t, Streaming, c.State())

	c.sched.Tick()
	c.sched.Tick()
	assert.Len(t, f.started, 0, "second job started early")

	f.release <- struct{}{}
	assert.Eventually(t, func() bool { return !c.state.Streaming() }, time.Second, time.Millisecond)
	assert.Equal(t, Idle, c.State())

	c.sched.Tick()
	assert.Equal(t, "B", f.next(t))
	assert.Empty(t, c.Jobs())

	f.release <- struct{}{}
	c.sched.Wait()
	_, ok = c.Current()
	assert.False(t, ok)
}

func TestScheduler_StatusWhileStreaming(t *testing.T) {
	f := newFakeStreamer()
	c, dev, hook := newConnected(t, nil, f)

	require.NoError(t, c.Stream([]byte("A"), "jobA"))
	require.NoError(t, c.Stream([]byte("B"), "jobB"))
	require.NoError(t, c.Stream([]byte("C"), "jobC"))
	c.sched.Tick()
	f.next(t)

	require.NoError(t, c.Status())
	require.NoError(t, c.Home())
	c.sched.Tick()

	assert.Equal(t, devicetest.IdleStatus, c.LastStatus().Raw)
	assert.Equal(t, []JobEntry{{1, "jobB"}, {2, "jobC"}}, c.Jobs())
	name, _ := c.Current()
	assert.Equal(t, "jobA", name)

	// $H is dropped while streaming
	assert.Equal(t, 0, dev.Count("$H\n"))
	assert.Equal(t, []string{"[ $H ] job is streaming"}, messages(hook, "[ $H ]"))

	f.release <- struct{}{}
	c.sched.Wait()
}

func TestScheduler_ProtocolErrorAborts(t *testing.T) {
	h := func(w string) []string {
		if w == "G99\n" {
			return []string{"error:20"}
		}
		return devicetest.Grbl(w)
	}
	f := newFakeStreamer()
	c, dev, hook := newConnected(t, h, f)

	require.NoError(t, c.Stream([]byte("A"), "jobA"))
	require.NoError(t, c.Stream([]byte("B"), "jobB"))
	c.sched.Tick()
	f.next(t)

	require.NoError(t, c.Command("G99"))
	require.NoError(t, c.Status())
	c.sched.Tick()

	assert.Equal(t, 0, c.imm.Len())
	assert.Equal(t, 0, c.jobs.Len())
	assert.Equal(t, 0, dev.Count("?"))
	assert.True(t, atomic.LoadInt32(&f.aborts) >= 1)
	assert.True(t, dev.Flushes() >= 1)

	c.sched.Wait()
	assert.False(t, c.state.Streaming())
	assert.Equal(t, Idle, c.State())

	var logged bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Message == "[ hc ] device error for 'G99': error:20" {
			logged = true
		}
	}
	assert.True(t, logged, "protocol error not logged")

	// aborting again changes nothing
	c.Abort()
	assert.Equal(t, 0, c.imm.Len())
	assert.Equal(t, 0, c.jobs.Len())
	assert.Equal(t, Idle, c.State())
	assert.False(t, c.state.Paused())
}

func TestScheduler_WriteErrorAborts(t *testing.T) {
	c, dev, _ := newConnected(t, nil, newFakeStreamer())

	require.NoError(t, c.Stream([]byte("A"), "jobA"))
	require.NoError(t, c.Unlock())
	dev.FailWrites(assert.AnError)
	c.sched.Tick()

	assert.Equal(t, 0, c.imm.Len())
	assert.Equal(t, 0, c.jobs.Len())
	assert.Equal(t, Idle, c.State())
}

func TestScheduler_Run(t *testing.T) {
	f := newFakeStreamer()
	c, _, _ := newConnected(t, nil, f)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	require.NoError(t, c.Stream([]byte("A"), "jobA"))
	assert.Equal(t, "A", f.next(t))

	cancel()
	select {
	case err := <-errCh:
		assert.Equal(t, context.Canceled, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}

	f.release <- struct{}{}
	c.sched.Wait()
}

func TestController_StatusPoller(t *testing.T) {
	c, dev, _ := newConnected(t, nil, nil)
	c.cfg.StatusInterval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	assert.Eventually(t, func() bool { return dev.Count("?") >= 2 }, time.Second, time.Millisecond)
	assert.Equal(t, "Idle", c.LastStatus().State)
}
