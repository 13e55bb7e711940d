// Package spjs talks to a Serial Port JSON Server over its websocket API.
package spjs

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ErrClosed is returned by sends after Close.
var ErrClosed = errors.New("spjs client closed")

const reconnectDelay = 3 * time.Second

// Client keeps a websocket connection to SPJS open, reconnecting as needed.
type Client struct {
	url string
	log logrus.FieldLogger

	outgoing chan message
	incoming chan interface{}

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type message struct {
	done    chan error
	payload []byte
}

type DataFrame struct {
	Port string `json:"P"`
	Data string `json:"D"`
}
type CmdStatus struct {
	Cmd        string
	QueueCount int `json:"QCnt"`
	Type       []string
	Data       []string `json:"D"`
	ID         string   `json:"Id"`
}

type ErrorMessage struct {
	Error string
}
type SerialPortList struct {
	SerialPorts []SerialPort
}
type SerialPort struct {
	Name                      string
	Friendly                  string
	SerialNumber              string
	DeviceClass               string
	IsOpen                    bool
	IsPrimary                 bool
	RelatedNames              []string
	Baud                      int
	BufferAlgorithm           string
	AvailableBufferAlgorithms []string
	Ver                       float64
	USBVID                    string
	USBPID                    string
	FeedRateOverride          float64
}

// NewClient starts connecting to url (e.g. ws://localhost:8989/ws).
func NewClient(url string, logger logrus.FieldLogger) *Client {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	c := &Client{
		url:      url,
		log:      logger.WithField("spjs", url),
		outgoing: make(chan message, 1000),
		incoming: make(chan interface{}, 1000),
		closed:   make(chan struct{}),
	}

	c.wg.Add(1)
	go c.loop()

	return c
}

// Messages delivers every parsed message from the server: *DataFrame,
// *CmdStatus, *SerialPortList or *ErrorMessage.
func (c *Client) Messages() <-chan interface{} {
	return c.incoming
}

// Close drops the connection and stops reconnecting.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	c.wg.Wait()
	return nil
}

func parseMessage(data []byte, msg map[string]json.RawMessage) (val interface{}, err error) {
	check := func(fieldName string, v interface{}) bool {
		if msg[fieldName] == nil {
			return false
		}
		val = v
		err = json.Unmarshal(data, val)
		return true
	}
	if check("Error", &ErrorMessage{}) {
		return
	}
	if check("SerialPorts", &SerialPortList{}) {
		return
	}
	if check("Cmd", &CmdStatus{}) {
		return
	}
	if check("D", &DataFrame{}) {
		return
	}

	return nil, errors.New("unknown message: " + string(data))
}

func (c *Client) readLoop(ws *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.log.WithError(err).Warn("read")
			return
		}
		if !bytes.HasPrefix(data, []byte("{")) {
			// ignore echo messages
			continue
		}
		var msg map[string]json.RawMessage
		err = json.Unmarshal(data, &msg)
		if err != nil {
			c.log.WithError(err).Error("read")
			continue
		}
		val, err := parseMessage(data, msg)
		if err != nil {
			c.log.WithError(err).Debug("parse")
			continue
		}
		select {
		case c.incoming <- val:
		case <-c.closed:
			return
		}
	}
}

func (c *Client) loop() {
	defer c.wg.Done()
	var nextUp message

reconnect:
	for {
		select {
		case <-c.closed:
			return
		default:
		}

		c.log.Info("connecting")
		ws, _, err := websocket.DefaultDialer.Dial(c.url, nil)
		if err != nil {
			c.log.WithError(err).Error("connect")
			select {
			case <-c.closed:
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}
		c.log.Info("connected")
		done := make(chan struct{})
		go c.readLoop(ws, done)
		go c.WriteString("list") // refresh list on reconnect

		for {
			if nextUp.done != nil {
				err = ws.WriteMessage(websocket.TextMessage, nextUp.payload)
				if err != nil {
					c.log.WithError(err).Error("send")
					ws.Close()
					<-done
					continue reconnect
				}
				nextUp.done <- nil
				nextUp.done = nil
			}

			select {
			case <-done:
				ws.Close()
				continue reconnect
			case <-c.closed:
				ws.Close()
				<-done
				return
			case nextUp = <-c.outgoing:
			}
		}
	}
}

// JSON is the payload of a `sendjson` command.
type JSON struct {
	Port string `json:"P"`
	Data []Data
}
type Data struct {
	Data string `json:"D"`
	ID   string `json:"Id"`
}

var lastID int64

func nextID() string {
	id := atomic.AddInt64(&lastID, 1)
	return "hc_" + strconv.FormatInt(id, 36)
}

// SendJSON queues data for a port. It returns once the command was written
// to the websocket.
func (c *Client) SendJSON(v JSON) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.send(append([]byte("sendjson "), data...))
}

// WriteString sends a raw SPJS command, like `list`.
func (c *Client) WriteString(data string) error {
	return c.send([]byte(data))
}

func (c *Client) send(payload []byte) error {
	done := make(chan error, 1)
	select {
	case c.outgoing <- message{done: done, payload: payload}:
	case <-c.closed:
		return ErrClosed
	}
	select {
	case err := <-done:
		return err
	case <-c.closed:
		return ErrClosed
	}
}
