package device

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tarm/serial"
)

// DefaultBaud is the rate Grbl 1.1 ships with.
const DefaultBaud = 115200

// Serial is a Channel backed by a local serial port.
type Serial struct {
	port *serial.Port
	in   *LineBuffer
}

var _ Channel = &Serial{}

// SerialOpener returns an Opener for local ports at the given baud rate.
func SerialOpener(baud int) Opener {
	return func(path string) (Channel, error) {
		return OpenSerial(path, baud)
	}
}

// OpenSerial opens the port at path and starts reading from it.
func OpenSerial(path string, baud int) (*Serial, error) {
	if baud == 0 {
		baud = DefaultBaud
	}
	port, err := serial.OpenPort(&serial.Config{Name: path, Baud: baud})
	if err != nil {
		return nil, err
	}
	s := &Serial{port: port, in: NewLineBuffer()}
	go s.readLoop()
	return s, nil
}

func (s *Serial) readLoop() {
	buf := make([]byte, 256)
	for {
		n, err := s.port.Read(buf)
		if n > 0 {
			s.in.Write(buf[:n])
		}
		if err == io.EOF && n > 0 {
			continue
		}
		if err != nil {
			logrus.WithError(err).Debug("serial read loop stopped")
			s.in.CloseWithError(err)
			return
		}
	}
}

func (s *Serial) Write(p []byte) error {
	if err := s.in.Err(); err != nil {
		return err
	}
	_, err := s.port.Write(p)
	return err
}

func (s *Serial) ReadLine(timeout time.Duration) []byte { return s.in.ReadLine(timeout) }
func (s *Serial) InWaiting() int                       { return s.in.Len() }

func (s *Serial) ResetBuffers() error {
	s.in.Reset()
	return s.port.Flush()
}

// Close closes the port, which also ends the read loop.
func (s *Serial) Close() error {
	err := s.port.Close()
	s.in.CloseWithError(io.ErrClosedPipe)
	return err
}
