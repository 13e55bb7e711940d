package grbl

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Scheduler ticks the immediate queue and starts jobs, one at a time.
type Scheduler struct {
	interval time.Duration

	imm      *ImmediateQueue
	jobs     *JobQueue
	state    *State
	streamer Streamer
	log      logrus.FieldLogger

	// onError is called after a drain or a job fails.
	onError func(error)

	mx      sync.Mutex
	current *Job
	cancel  context.CancelFunc

	wg sync.WaitGroup
}

// Run calls Tick every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.Tick()
		}
	}
}

// Tick performs one scheduling step. Immediate commands (and feed hold)
// always go first; a job only starts when nothing else is pending and no
// other job is streaming.
func (s *Scheduler) Tick() {
	if s.imm.Len() > 0 || s.state.Paused() {
		err := s.imm.Drain()
		if err != nil && !errors.Is(err, ErrAborted) {
			s.fail(err)
		}
		return
	}

	if s.state.Streaming() {
		return
	}
	s.startNext()
}

func (s *Scheduler) fail(err error) {
	s.log.Errorf("[ hc ] %v", err)
	if s.onError != nil {
		s.onError(err)
	}
}

func (s *Scheduler) startNext() {
	s.mx.Lock()
	defer s.mx.Unlock()

	job := s.jobs.Pop()
	if job == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	job.Status = JobRunning
	s.current = job
	s.cancel = cancel
	s.state.SetStreaming(true)

	s.wg.Add(1)
	go s.run(ctx, job)
}

func (s *Scheduler) run(ctx context.Context, job *Job) {
	defer s.wg.Done()
	s.log.Infof("[ hc ] streaming %s", job.Name)

	err := s.streamer.Stream(ctx, job.Program)

	s.mx.Lock()
	aborted := ctx.Err() != nil
	s.cancel()
	s.cancel = nil
	s.current = nil
	if err == nil {
		job.Status = JobDone
	} else {
		job.Status = JobAborted
	}
	s.state.SetStreaming(false)
	s.mx.Unlock()

	switch {
	case err == nil:
		s.log.Infof("[ hc ] finished %s", job.Name)
	case aborted || errors.Is(err, ErrAborted):
		s.log.Warnf("[ hc ] aborted %s", job.Name)
	default:
		s.fail(err)
	}
}

// Current returns the name of the running job.
func (s *Scheduler) Current() (string, bool) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.current == nil {
		return "", false
	}
	return s.current.Name, true
}

// Abort cancels the running job, if any. It does not wait for it to stop.
func (s *Scheduler) Abort() {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.streamer.Abort()
}

// Wait blocks until the streaming goroutine, if any, has returned.
func (s *Scheduler) Wait() { s.wg.Wait() }
