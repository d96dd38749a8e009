package ws

import (
	"sync"

	"github.com/avvvet/whodidichoose/internal/comm"
	"github.com/avvvet/whodidichoose/internal/session"
	log "github.com/sirupsen/logrus"
)

const outboxSize = 64

// Client is one browser socket. Messages for it are queued on send and
// written by the socket's write pump.
type Client struct {
	id string

	sendMu sync.Mutex
	send   chan *comm.WSMessage
	closed bool

	mu       sync.Mutex
	playerID string
	view     *session.View
	subs     map[string]Subscription
	pending  map[string]func() // request id -> rollback of an optimistic flip
}

func newClient(id string) *Client {
	return &Client{
		id:      id,
		send:    make(chan *comm.WSMessage, outboxSize),
		subs:    make(map[string]Subscription),
		pending: make(map[string]func()),
	}
}

func (c *Client) ID() string {
	return c.id
}

// Outbox is drained by the write pump. It is closed when the client goes away
// or falls too far behind.
func (c *Client) Outbox() <-chan *comm.WSMessage {
	return c.send
}

func (c *Client) push(m *comm.WSMessage) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return
	}
	select {
	case c.send <- m:
	default:
		log.Warnf("socket %s is not reading, dropping it", c.id)
		c.closed = true
		close(c.send)
	}
}

func (c *Client) close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// bound returns the view of the player the socket subscribed as.
func (c *Client) bound() (string, *session.View) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID, c.view
}

func (c *Client) takePending(requestID string) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	rollback := c.pending[requestID]
	delete(c.pending, requestID)
	return rollback
}
