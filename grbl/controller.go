package grbl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mastercactapus/grblhc/device"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	wakeSequence   = "\r\n\r\n"
	maxBannerLines = 32
)

// bootCommands are queued after every connect to dump the device parameters.
var bootCommands = []string{"$$", "$I", "$G"}

// Controller drives a single Grbl device. It owns the device channel and
// both queues.
type Controller struct {
	cfg Config
	log logrus.FieldLogger

	state    *State
	link     *link
	imm      *ImmediateQueue
	jobs     *JobQueue
	sched    *Scheduler
	streamer Streamer

	mx              sync.Mutex
	dev             device.Channel
	lifecycle       ControllerState
	closing         bool
	disconnectTimer *time.Timer
	jobSeq          int

	statusMx sync.Mutex
	last     Status
	states   chan Status
}

// NewController creates a disconnected Controller.
func NewController(cfg Config) *Controller {
	cfg.setDefaults()
	c := &Controller{
		cfg:    cfg,
		log:    cfg.Logger,
		state:  &State{},
		jobs:   &JobQueue{},
		states: make(chan Status, 1),
	}
	c.link = &link{state: c.state, cfg: &c.cfg, log: c.log}
	c.imm = &ImmediateQueue{link: c.link, onStatus: c.handleStatus}

	c.streamer = cfg.Streamer
	if c.streamer == nil {
		c.streamer = &LineStreamer{link: c.link}
	}

	c.sched = &Scheduler{
		interval: cfg.TickInterval,
		imm:      c.imm,
		jobs:     c.jobs,
		state:    c.state,
		streamer: c.streamer,
		log:      c.log,
		onError:  func(error) { c.Abort() },
	}
	return c
}

// Run runs the scheduler (and the status poller, if configured) until ctx
// is done.
func (c *Controller) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.sched.Run(ctx) })
	if c.cfg.StatusInterval > 0 {
		g.Go(func() error { return c.pollStatus(ctx) })
	}
	return g.Wait()
}

func (c *Controller) pollStatus(ctx context.Context) error {
	t := time.NewTicker(c.cfg.StatusInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		if c.imm.Len() > 0 {
			continue
		}
		err := c.Status()
		if err != nil && !errors.Is(err, ErrNotConnected) {
			return err
		}
	}
}

func (c *Controller) setLifecycle(s ControllerState) {
	c.mx.Lock()
	c.lifecycle = s
	c.mx.Unlock()
}

func (c *Controller) connected() bool {
	c.mx.Lock()
	defer c.mx.Unlock()
	return !c.closing && (c.lifecycle == Idle || c.lifecycle == Aborting)
}

// State returns the lifecycle state.
func (c *Controller) State() ControllerState {
	c.mx.Lock()
	lc := c.lifecycle
	c.mx.Unlock()
	if lc != Idle {
		return lc
	}
	if c.state.Paused() {
		return Paused
	}
	if c.state.Streaming() {
		return Streaming
	}
	return Idle
}

// Connect opens the device at path, wakes it and queues a parameter dump.
func (c *Controller) Connect(path string) error {
	c.mx.Lock()
	if c.lifecycle != Disconnected {
		c.mx.Unlock()
		return ErrConnected
	}
	c.lifecycle = Connecting
	c.mx.Unlock()

	ch, err := c.cfg.Open(path)
	if err != nil {
		c.setLifecycle(Disconnected)
		return &IoError{Op: "open " + path, Err: err}
	}

	c.imm.Clear()

	c.link.mx.Lock()
	c.link.ch = ch
	err = c.link.write([]byte(wakeSequence))
	var banner bool
	if err == nil {
		time.Sleep(c.cfg.SettleDelay)
		banner = c.link.readLines(maxBannerLines)
	} else {
		ch.Close()
		c.link.ch = nil
	}
	c.link.mx.Unlock()
	if err != nil {
		c.setLifecycle(Disconnected)
		return err
	}

	if !banner {
		c.log.Warnf("[ hc ] no startup banner from %s", path)
	}
	c.mx.Lock()
	c.dev = ch
	c.lifecycle = Idle
	c.mx.Unlock()
	c.log.Infof("[ hc ] connected to %s", path)

	for _, cmd := range bootCommands {
		c.imm.Enqueue(ParseCommand(cmd))
	}
	return nil
}

// abortQueues empties both queues and cancels the running job. The queues
// are emptied before the epoch changes so nothing queued earlier can be sent
// under the new one.
func (c *Controller) abortQueues() {
	c.imm.Clear()
	n := c.jobs.Clear()
	c.state.cancel()
	if n > 0 {
		c.log.Infof("[ hc ] dropped %d queued jobs", n)
	}
	c.sched.Abort()
}

// Disconnect clears both queues, soft-resets the device and schedules it to
// be closed. Calling it again before or after the close is a no-op.
func (c *Controller) Disconnect() error {
	c.mx.Lock()
	if c.lifecycle == Disconnected || c.lifecycle == Connecting || c.closing {
		c.mx.Unlock()
		c.imm.Clear()
		c.jobs.Clear()
		return nil
	}
	c.closing = true
	c.mx.Unlock()

	c.abortQueues()

	c.link.mx.Lock()
	err := c.link.write([]byte(CmdSoftReset))
	c.link.mx.Unlock()
	time.Sleep(c.cfg.ResetDelay)

	c.mx.Lock()
	if c.closing {
		c.disconnectTimer = time.AfterFunc(c.cfg.DisconnectDelay, c.finishDisconnect)
	}
	c.mx.Unlock()

	return err
}

func (c *Controller) finishDisconnect() {
	c.mx.Lock()
	if !c.closing {
		// cancelled by Reset
		c.mx.Unlock()
		return
	}
	c.closing = false
	c.disconnectTimer = nil
	ch := c.dev
	c.dev = nil
	c.mx.Unlock()

	// Close without the streaming slot: a job stuck in a device exchange
	// only returns once the channel fails.
	if ch != nil {
		err := ch.ResetBuffers()
		if err != nil {
			c.log.WithError(err).Error("flush device buffers")
		}
		err = ch.Close()
		if err != nil {
			c.log.WithError(err).Error("close device")
		}
	}

	c.sched.Wait()

	c.link.mx.Lock()
	c.link.ch = nil
	c.link.mx.Unlock()

	c.setLifecycle(Disconnected)
	c.log.Info("[ hc ] disconnected")
	if c.cfg.Exit != nil {
		c.cfg.Exit()
	}
}

// Reset clears both queues and any pending disconnect, then soft-resets the
// device. The device stays open.
func (c *Controller) Reset() error {
	c.mx.Lock()
	if c.lifecycle == Disconnected || c.lifecycle == Connecting {
		c.mx.Unlock()
		return ErrNotConnected
	}
	if c.disconnectTimer != nil {
		c.disconnectTimer.Stop()
		c.disconnectTimer = nil
	}
	c.closing = false
	c.mx.Unlock()

	c.abortQueues()

	c.link.mx.Lock()
	defer c.link.mx.Unlock()
	err := c.link.write([]byte(CmdSoftReset))
	if err != nil {
		return err
	}
	time.Sleep(c.cfg.ResetDelay)
	if !c.link.readLines(maxBannerLines) {
		c.log.Warn("[ hc ] no startup banner after reset")
	}
	c.setLifecycle(Idle)
	return nil
}

// Abort empties both queues, cancels the running job and flushes the
// device buffers. It is safe to call repeatedly.
func (c *Controller) Abort() {
	c.mx.Lock()
	if c.lifecycle != Idle {
		c.mx.Unlock()
		c.abortQueues()
		return
	}
	c.lifecycle = Aborting
	c.mx.Unlock()

	c.abortQueues()

	err := c.Cleanup()
	if err == nil {
		c.setLifecycle(Idle)
		return
	}

	c.log.WithError(err).Error("[ hc ] cleanup failed, closing device")
	c.link.mx.Lock()
	if c.link.ch != nil {
		c.link.ch.Close()
		c.link.ch = nil
	}
	c.link.mx.Unlock()
	c.mx.Lock()
	c.dev = nil
	c.lifecycle = Disconnected
	c.mx.Unlock()
}

// Cleanup discards pending device input and output without closing it.
func (c *Controller) Cleanup() error {
	c.link.mx.Lock()
	defer c.link.mx.Unlock()
	if c.link.ch == nil {
		return ErrNotConnected
	}
	err := c.link.ch.ResetBuffers()
	if err != nil {
		return &IoError{Op: "reset buffers", Err: err}
	}
	return nil
}

func (c *Controller) enqueue(text string) error {
	if !c.connected() {
		return ErrNotConnected
	}
	c.imm.Enqueue(ParseCommand(text))
	return nil
}

// Status queues a status query.
func (c *Controller) Status() error { return c.enqueue(CmdStatus) }

// Unlock queues a kill-alarm-lock command.
func (c *Controller) Unlock() error { return c.enqueue("$X") }

// Stop queues a feed hold.
func (c *Controller) Stop() error { return c.enqueue(CmdFeedHold) }

// Resume queues a cycle start, releasing a feed hold.
func (c *Controller) Resume() error { return c.enqueue(CmdResume) }

// Home queues a homing cycle.
func (c *Controller) Home() error { return c.enqueue("$H") }

// Command queues a single arbitrary line ahead of any job.
func (c *Controller) Command(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("empty command")
	}
	if strings.ContainsAny(text, "\r\n") {
		return errors.New("command must be a single line")
	}
	return c.enqueue(text)
}

// Jobs lists queued jobs. The running job is not included; see Current.
func (c *Controller) Jobs() []JobEntry { return c.jobs.PeekAll() }

// Current returns the name of the running job.
func (c *Controller) Current() (string, bool) { return c.sched.Current() }

// Stream queues program under name. The program is copied.
func (c *Controller) Stream(program []byte, name string) error {
	if !c.connected() {
		return ErrNotConnected
	}
	if v, ok := c.streamer.(Validator); ok {
		err := v.Validate(program)
		if err != nil {
			return err
		}
	}

	c.mx.Lock()
	c.jobSeq++
	if name == "" {
		name = fmt.Sprintf("job-%d", c.jobSeq)
	}
	c.mx.Unlock()

	depth := c.jobs.Enqueue(name, program)
	c.log.Infof("[ hc ] queued %s (%d waiting)", name, depth)
	return nil
}

func (c *Controller) handleStatus(line string) {
	c.statusMx.Lock()
	stat, err := parseStatus(c.last, line)
	if err != nil {
		c.statusMx.Unlock()
		c.log.WithError(err).Warn("parse status")
		return
	}
	c.last = *stat
	c.statusMx.Unlock()

	select {
	case c.states <- *stat:
	default:
	}
}

// LastActivity returns when data was last exchanged with the device.
func (c *Controller) LastActivity() time.Time { return c.state.LastActivity() }

// LastStatus returns the most recent status report.
func (c *Controller) LastStatus() Status {
	c.statusMx.Lock()
	defer c.statusMx.Unlock()
	return c.last
}

// States delivers status reports as they arrive. Reports are dropped if
// nobody is receiving.
func (c *Controller) States() <-chan Status { return c.states }
