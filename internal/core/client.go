package core

import (
	"sync"

	"github.com/google/uuid"
)

const clientEventBuffer = 16

// Client is one live realtime connection as seen by the core layer. The
// handle ID distinguishes successive connections of the same user so that a
// stale disconnect cannot evict a newer connection.
type Client struct {
	UserID   int64
	HandleID string

	events    chan *Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a client with initialized channels.
func NewClient(userID int64) *Client {
	return &Client{
		UserID:   userID,
		HandleID: uuid.NewString(),
		events:   make(chan *Event, clientEventBuffer),
		done:     make(chan struct{}),
	}
}

// Events is the stream the transport write loop drains.
func (c *Client) Events() <-chan *Event {
	return c.events
}

// Done is closed when the client has been displaced or shut down. The
// transport layer owns the physical connection and tears it down on this
// signal.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close signals the transport to drop the connection. Safe to call more
// than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// send enqueues an event without blocking. Returns false when the client is
// closed or its buffer is full; slow consumers lose events rather than
// stall senders.
func (c *Client) send(event *Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.events <- event:
		return true
	default:
		return false
	}
}
