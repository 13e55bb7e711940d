package spjs

import (
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/mastercactapus/grblhc/device"
)

// Port is a serial port opened through SPJS.
type Port struct {
	c    *Client
	name string
	in   *device.LineBuffer

	done      chan struct{}
	closeOnce sync.Once
}

var _ device.Channel = &Port{}

// Opener returns a device.Opener that opens ports through c with the grbl
// buffer algorithm.
func Opener(c *Client, baud int) device.Opener {
	return func(path string) (device.Channel, error) {
		return Open(c, path, baud)
	}
}

// Open asks SPJS to open the named port. Only one Port per Client should be
// open at a time, since it consumes the client's messages.
func Open(c *Client, name string, baud int) (*Port, error) {
	p := &Port{
		c:    c,
		name: name,
		in:   device.NewLineBuffer(),
		done: make(chan struct{}),
	}
	go p.readLoop()

	err := c.WriteString("open " + name + " " + strconv.Itoa(baud) + " grbl")
	if err != nil {
		p.stop(err)
		return nil, err
	}
	return p, nil
}

func (p *Port) readLoop() {
	for {
		select {
		case <-p.done:
			return
		case msg := <-p.c.Messages():
			switch m := msg.(type) {
			case *DataFrame:
				if m.Port == p.name {
					p.in.Write([]byte(m.Data))
				}
			case *ErrorMessage:
				p.c.log.Warnf("[ spjs ] %s", m.Error)
			case *CmdStatus:
				p.c.log.Debugf("[ spjs ] %s %s", m.Cmd, m.ID)
			case *SerialPortList:
				for _, sp := range m.SerialPorts {
					if sp.Name == p.name && !sp.IsOpen {
						p.c.log.Warnf("[ spjs ] %s is not open", p.name)
					}
				}
			}
		}
	}
}

func (p *Port) Write(b []byte) error {
	return p.c.SendJSON(JSON{
		Port: p.name,
		Data: []Data{{Data: string(b), ID: nextID()}},
	})
}

func (p *Port) ReadLine(timeout time.Duration) []byte { return p.in.ReadLine(timeout) }
func (p *Port) InWaiting() int                       { return p.in.Len() }

// ResetBuffers drops unread input. SPJS wipes its own queue on a soft reset.
func (p *Port) ResetBuffers() error {
	p.in.Reset()
	return nil
}

func (p *Port) stop(err error) {
	p.closeOnce.Do(func() {
		close(p.done)
		p.in.CloseWithError(err)
	})
}

func (p *Port) Close() error {
	p.stop(io.ErrClosedPipe)
	return p.c.WriteString("close " + p.name)
}
