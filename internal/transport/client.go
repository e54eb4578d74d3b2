// internal/transport/client.go

// Package transport connects a session controller to the game server over
// a websocket. It owns the dial/read/write goroutines and translates wire
// activity into session events.
package transport

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"beccaccino/internal/protocol"
	"beccaccino/internal/session"
)

const (
	// Subprotocol must match the one the server accepts.
	Subprotocol = "beccaccino"

	writeTimeout = 5 * time.Second
	dialTimeout  = 10 * time.Second

	// redialDelay spaces out dial attempts so a dead server is not
	// hammered in a tight loop.
	redialDelay = 2 * time.Second
)

// Client implements session.Transport over one websocket connection at a
// time. Connect may be called again after a loss; Send fails into a
// SendFailed event when no connection is up.
type Client struct {
	url  string
	post func(session.Event)
	log  *logrus.Entry

	ctx context.Context

	mu      sync.Mutex
	conn    *websocket.Conn
	out     chan protocol.Message
	dialing bool
	lastTry time.Time
}

// NewClient prepares a transport for url. Post is the controller's event
// sink; nothing is dialed until Connect.
func NewClient(ctx context.Context, url string, post func(session.Event), logger *logrus.Logger) *Client {
	return &Client{
		url:  url,
		post: post,
		log:  logger.WithField("component", "transport"),
		ctx:  ctx,
	}
}

// Connect starts a dial attempt in the background. A Connected,
// ConnectionFailed or ConnectionLost event follows. Redundant calls while
// a dial is already in flight are ignored.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.dialing || c.conn != nil {
		c.mu.Unlock()
		return
	}
	c.dialing = true
	wait := time.Until(c.lastTry.Add(redialDelay))
	c.lastTry = time.Now()
	c.mu.Unlock()

	go c.dial(wait)
}

func (c *Client) dial(wait time.Duration) {
	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-c.ctx.Done():
			return
		}
	}

	dialCtx, cancel := context.WithTimeout(c.ctx, dialTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, c.url, &websocket.DialOptions{
		Subprotocols: []string{Subprotocol},
	})
	if err != nil {
		c.log.WithError(err).Warn("dial failed")
		c.mu.Lock()
		c.dialing = false
		c.mu.Unlock()
		c.post(session.ConnectionFailed{})
		return
	}

	out := make(chan protocol.Message, 32)
	c.mu.Lock()
	c.conn = conn
	c.out = out
	c.dialing = false
	c.mu.Unlock()

	go c.writePump(conn, out)
	go c.readPump(conn)

	c.post(session.Connected{})
}

// Send queues msg for the write pump. With no connection up, or a full
// queue, the failure is reported as a SendFailed event instead of
// blocking the caller.
func (c *Client) Send(msg protocol.Message) {
	// The enqueue happens under the lock so teardown cannot close the
	// channel between the nil check and the send.
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		c.post(session.SendFailed{Msg: msg})
		return
	}
	select {
	case c.out <- msg:
		c.mu.Unlock()
	default:
		c.mu.Unlock()
		c.log.Warn("write queue full")
		c.post(session.SendFailed{Msg: msg})
	}
}

func (c *Client) writePump(conn *websocket.Conn, out chan protocol.Message) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-out:
			if !ok {
				return
			}
			data, err := protocol.Encode(msg)
			if err != nil {
				c.log.WithError(err).Error("encode failed")
				c.post(session.SendFailed{Msg: msg})
				continue
			}
			wctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
			err = conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				c.post(session.SendFailed{Msg: msg})
				return
			}
		}
	}
}

func (c *Client) readPump(conn *websocket.Conn) {
	defer c.teardown(conn)
	for {
		typ, data, err := conn.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() == nil {
				c.log.WithError(err).Info("connection closed")
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			c.log.WithError(err).Warn("undecodable frame")
			continue
		}
		c.post(session.ServerMessage{Msg: msg})
	}
}

// teardown clears the connection state exactly once per connection and
// lets the controller decide whether to redial.
func (c *Client) teardown(conn *websocket.Conn) {
	conn.Close(websocket.StatusNormalClosure, "")
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	close(c.out)
	c.out = nil
	c.mu.Unlock()
	if c.ctx.Err() == nil {
		c.post(session.ConnectionLost{})
	}
}

// Close tears the active connection down without posting a loss event.
func (c *Client) Close() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	if c.out != nil {
		close(c.out)
		c.out = nil
	}
	c.mu.Unlock()
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "client shutdown")
	}
}
