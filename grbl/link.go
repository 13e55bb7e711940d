package grbl

import (
	"strings"
	"sync"
	"time"

	"github.com/mastercactapus/grblhc/device"
	"github.com/sirupsen/logrus"
)

// nudge is written to a device that stopped answering; Grbl replies to an
// empty line with `ok`.
var nudge = []byte("\n")

// link owns the device channel. mx is the streaming slot: every exchange
// with the device happens while holding it.
type link struct {
	mx sync.Mutex
	ch device.Channel

	state *State
	cfg   *Config
	log   logrus.FieldLogger
}

func (l *link) write(p []byte) error {
	if l.ch == nil {
		return ErrNotConnected
	}
	err := l.ch.Write(p)
	if err != nil {
		return &IoError{Op: "write", Err: err}
	}
	l.state.touch()
	return nil
}

// readLines logs every line that arrives until nothing shows up within the
// read timeout. It returns true if one of them was a Grbl startup banner.
func (l *link) readLines(max int) (banner bool) {
	for i := 0; i < max; i++ {
		line := l.ch.ReadLine(l.cfg.ReadTimeout)
		if line == nil {
			break
		}
		l.state.touch()
		s := string(line)
		if strings.HasPrefix(s, "Grbl") {
			banner = true
		}
		l.log.Infof("[ hc ] %s", s)
	}
	return banner
}

// waitResponse reads and logs response lines for tag.
//
// If until is nil the response is complete once at least one line was read
// and no more data arrived for a poll interval. Otherwise it is complete
// when until returns true for a line.
//
// While nothing arrives for StallThreshold a nudge is written, once per
// threshold interval. A line containing "error" ends the wait with a
// *ProtocolError.
func (l *link) waitResponse(tag string, until func(line string) bool, cancelled func() bool) error {
	lastData := time.Now()
	var consumed int
	for {
		if cancelled() {
			return ErrAborted
		}

		if l.ch.InWaiting() > 0 {
			line := l.ch.ReadLine(l.cfg.PollInterval)
			if line != nil {
				consumed++
				lastData = time.Now()
				l.state.touch()
				l.state.resetNudge()

				s := string(line)
				l.log.Infof("[ %s ] %s", tag, s)
				if strings.Contains(s, "error") {
					return &ProtocolError{Command: tag, Line: s}
				}
				if until != nil && until(s) {
					return nil
				}
				continue
			}
		} else if until == nil && consumed > 0 && time.Since(lastData) >= l.cfg.PollInterval {
			return nil
		}

		if time.Since(lastData) >= l.cfg.StallThreshold {
			err := l.write(nudge)
			if err != nil {
				return err
			}
			n := l.state.nudge()
			l.log.Debugf("[ hc ] nudge %d", n)
			lastData = time.Now()
		}

		time.Sleep(l.cfg.PollInterval)
	}
}
