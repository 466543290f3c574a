// Package wsclient adapts a websocket to a subscription connection. Each client owns a bounded
// queue drained by a single writer goroutine, so events reach the socket in the order they
// were queued and a slow socket never blocks the sender.
package wsclient

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"bidding-live/internal/events"
	"bidding-live/utils"

	"github.com/gorilla/websocket"
)

var (
	// ErrClosed is returned by Send after the client shut down
	ErrClosed = errors.New("wsclient: connection closed")
	// ErrSlowConsumer is returned by Send when the queue is full
	ErrSlowConsumer = errors.New("wsclient: send queue full")
)

var lastID atomic.Int64

// Options tune a client
type Options struct {
	SendBuffer   int
	PingInterval time.Duration
	WriteTimeout time.Duration
}

// DefaultOptions match the server defaults
var DefaultOptions = Options{SendBuffer: 32, PingInterval: 30 * time.Second, WriteTimeout: 10 * time.Second}

// Client is a live websocket connection
type Client struct {
	id   int64
	ws   *websocket.Conn
	opts Options

	send      chan events.Envelope
	done      chan struct{}
	closeOnce sync.Once
}

// New wraps an upgraded websocket
func New(ws *websocket.Conn, opts Options) *Client {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultOptions.SendBuffer
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultOptions.PingInterval
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultOptions.WriteTimeout
	}
	return &Client{
		id:   lastID.Add(1),
		ws:   ws,
		opts: opts,
		send: make(chan events.Envelope, opts.SendBuffer),
		done: make(chan struct{}),
	}
}

func (c *Client) ID() int64 { return c.id }

// Send queues env without blocking
func (c *Client) Send(env events.Envelope) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- env:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrSlowConsumer
	}
}

// Close stops the writer, which sends a close frame and ends Serve. It is safe to call more
// than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed once the client shuts down
func (c *Client) Done() <-chan struct{} { return c.done }

// Serve runs the read loop on the calling goroutine and the write loop on another one.
// It returns when the peer goes away or a write fails.
func (c *Client) Serve() error {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop()
	}()

	err := c.readLoop()
	c.Close()
	<-writerDone
	_ = c.ws.Close()
	return err
}

// clientFrame is what clients may send; only pings are understood
type clientFrame struct {
	Type string `json:"type"`
}

func (c *Client) readLoop() error {
	for {
		op, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				// the writer closed the socket under us
				return nil
			default:
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return err
			}
			return nil
		}
		if op != websocket.TextMessage {
			continue
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			utils.Debug("wsclient: ignoring malformed frame", map[string]any{"conn_id": c.id, "error": err.Error()})
			continue
		}
		if frame.Type == "ping" {
			if err := c.Send(events.New(events.TypePong, "", nil, time.Now())); err != nil {
				return err
			}
		}
	}
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case env := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.ws.WriteJSON(env); err != nil {
				c.fail(err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.fail(err)
				return
			}
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			// a peer that never answers the close frame must not pin the reader
			_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.WriteTimeout))
			return
		}
	}
}

// fail shuts the client down after a write error and unblocks the reader
func (c *Client) fail(err error) {
	utils.Debug("wsclient: write failed", map[string]any{"conn_id": c.id, "error": err.Error()})
	c.Close()
	_ = c.ws.Close()
}
