package grbl

import (
	"errors"
	"sync"
	"time"
)

// ImmediateQueue holds control commands that preempt streaming jobs.
type ImmediateQueue struct {
	mx   sync.Mutex
	cmds []Command

	link *link

	// onStatus receives every answer to a status query.
	onStatus func(line string)
}

// Enqueue appends cmd.
func (q *ImmediateQueue) Enqueue(cmd Command) {
	q.mx.Lock()
	q.cmds = append(q.cmds, cmd)
	q.mx.Unlock()
}

func (q *ImmediateQueue) Len() int {
	q.mx.Lock()
	defer q.mx.Unlock()
	return len(q.cmds)
}

// Clear drops all pending commands.
func (q *ImmediateQueue) Clear() {
	q.mx.Lock()
	q.cmds = nil
	q.mx.Unlock()
}

func (q *ImmediateQueue) pop() (Command, bool) {
	q.mx.Lock()
	defer q.mx.Unlock()
	if len(q.cmds) == 0 {
		return Command{}, false
	}
	cmd := q.cmds[0]
	q.cmds = q.cmds[1:]
	return cmd, true
}

// Drain sends queued commands one at a time, waiting for each response.
//
// It keeps running while the device is in feed hold, even with nothing
// queued, so that a later resume is picked up. Rejected commands are logged
// and skipped; any other error stops the drain.
func (q *ImmediateQueue) Drain() (err error) {
	st := q.link.state
	defer func() {
		if err != nil {
			st.SetPaused(false)
			st.resetNudge()
		}
	}()

	for q.Len() > 0 || st.Paused() {
		// read before pop: a command popped ahead of an abort must not be
		// sent under the new epoch
		epoch := st.Epoch()
		cmd, ok := q.pop()
		if !ok {
			time.Sleep(q.link.cfg.PollInterval)
			continue
		}

		err = q.send(cmd, epoch)
		var rej *RejectedCommandError
		if errors.As(err, &rej) {
			q.link.log.Warnf("[ %s ] %s", cmd, rej.Reason)
			err = nil
			continue
		}
		if err != nil {
			return err
		}
	}

	return nil
}

func (q *ImmediateQueue) send(cmd Command, epoch uint64) error {
	l := q.link
	st := l.state
	if cmd.IsSystem() {
		if st.Paused() {
			return &RejectedCommandError{Command: cmd.Text, Reason: "device is paused"}
		}
		if st.Streaming() {
			return &RejectedCommandError{Command: cmd.Text, Reason: "job is streaming"}
		}
	}

	cancelled := func() bool { return st.Epoch() != epoch }

	l.mx.Lock()
	defer l.mx.Unlock()
	if cancelled() {
		return ErrAborted
	}

	switch cmd.Text {
	case CmdFeedHold:
		err := l.write(cmd.payload())
		if err != nil {
			return err
		}
		st.SetPaused(true)
		l.log.Infof("[ %s ] ok", cmd)
		return nil
	case CmdStatus:
		err := l.write(cmd.payload())
		if err != nil {
			return err
		}
		line := l.ch.ReadLine(l.cfg.ReadTimeout)
		if line == nil {
			l.log.Warnf("[ %s ] no response", cmd)
			return nil
		}
		l.log.Infof("[ %s ] %s", cmd, line)
		if q.onStatus != nil {
			q.onStatus(string(line))
		}
		return nil
	}

	err := l.write(cmd.payload())
	if err != nil {
		return err
	}
	err = l.waitResponse(cmd.Text, nil, cancelled)
	if err != nil {
		return err
	}
	if cmd.Text == CmdResume {
		st.SetPaused(false)
	}
	return nil
}
