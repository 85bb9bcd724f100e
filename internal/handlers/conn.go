// internal/handlers/conn.go
package handlers

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/parley/internal/payload"
	"github.com/sirupsen/logrus"
)

// Conn is the chat.Transport for one websocket client. Send only enqueues onto
// the outbox; writePump owns the socket.
type Conn struct {
	ID  uuid.UUID
	out chan payload.Payload
	log logrus.FieldLogger

	mu       sync.Mutex
	closed   bool
	overflow bool
	done     chan struct{}
}

func newConn(outboxSize int, logger logrus.FieldLogger) *Conn {
	if outboxSize < 1 {
		outboxSize = 1
	}
	return &Conn{
		ID:   uuid.New(),
		out:  make(chan payload.Payload, outboxSize),
		log:  logger,
		done: make(chan struct{}),
	}
}

// Send queues p for delivery without blocking. It returns false once the
// connection is closed or its outbox is full.
func (c *Conn) Send(p payload.Payload) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.out <- p:
		return true
	default:
		c.log.Warnf("outbox full, dropping %s payload and marking connection dead", p.Kind())
		c.overflow = true
		return false
	}
}

// Close stops accepting payloads. writePump flushes what is already queued and
// then closes the socket. Safe to call more than once.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

// Done is closed once Close has been called.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) overflowed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overflow
}
