package grbl

import (
	"sync"
	"time"
)

// State is the scheduler state shared by the queues, the streamer and the
// controller.
type State struct {
	mx sync.Mutex

	paused       bool
	streaming    bool
	nudgeCount   uint32
	lastActivity time.Time

	// epoch is bumped by every abort so in-flight waits can notice.
	epoch uint64
}

func (s *State) Paused() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.paused
}

func (s *State) SetPaused(v bool) {
	s.mx.Lock()
	s.paused = v
	s.mx.Unlock()
}

func (s *State) Streaming() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.streaming
}

func (s *State) SetStreaming(v bool) {
	s.mx.Lock()
	s.streaming = v
	s.mx.Unlock()
}

// NudgeCount returns the number of keepalive nudges sent since the
// last received line.
func (s *State) NudgeCount() uint32 {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.nudgeCount
}

func (s *State) nudge() uint32 {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.nudgeCount++
	return s.nudgeCount
}

func (s *State) resetNudge() {
	s.mx.Lock()
	s.nudgeCount = 0
	s.mx.Unlock()
}

// LastActivity returns when data was last written or received.
func (s *State) LastActivity() time.Time {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.lastActivity
}

func (s *State) touch() {
	s.mx.Lock()
	s.lastActivity = time.Now()
	s.mx.Unlock()
}

func (s *State) Epoch() uint64 {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.epoch
}

// cancel starts a new epoch and clears pause and watchdog state.
func (s *State) cancel() {
	s.mx.Lock()
	s.epoch++
	s.paused = false
	s.nudgeCount = 0
	s.mx.Unlock()
}

// ControllerState is the lifecycle state of a Controller.
type ControllerState int

const (
	Disconnected ControllerState = iota
	Connecting
	Idle
	Streaming
	Paused
	Aborting
)

func (s ControllerState) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Idle:
		return "Idle"
	case Streaming:
		return "Streaming"
	case Paused:
		return "Paused"
	case Aborting:
		return "Aborting"
	}
	return "Unknown"
}

func (s ControllerState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
