// File: internal/session/conn.go
// Package session
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Connection handle with diagnostic metadata and a pending-write outbox.

package session

import (
	"fmt"
	"net"
	"time"

	"github.com/eapache/queue"
	"github.com/google/uuid"
)

// WriteFunc performs one non-blocking write and reports how much was taken.
type WriteFunc func(p []byte) (int, error)

// chunk is an outbox entry; off advances as the head is partially written.
type chunk struct {
	b   []byte
	off int
}

// Conn is the handle of one accepted client socket. Only the event loop
// goroutine touches the outbox.
type Conn struct {
	ID       uuid.UUID
	Host     string
	Port     string
	Accepted time.Time

	fd      int
	outbox  *queue.Queue
	pending int
}

// NewConn wraps an accepted descriptor. host and port may be empty when the
// peer name could not be resolved.
func NewConn(fd int, host, port string) *Conn {
	return &Conn{
		ID:       uuid.New(),
		Host:     host,
		Port:     port,
		Accepted: time.Now(),
		fd:       fd,
		outbox:   queue.New(),
	}
}

// Fd returns the socket descriptor.
func (c *Conn) Fd() int {
	return c.fd
}

// Peer returns host:port, or "unknown" when the name was not resolved.
func (c *Conn) Peer() string {
	if c.Host == "" {
		return "unknown"
	}
	return net.JoinHostPort(c.Host, c.Port)
}

func (c *Conn) String() string {
	return fmt.Sprintf("client fd=%d peer=%s", c.fd, c.Peer())
}

// Pending returns the number of bytes waiting in the outbox.
func (c *Conn) Pending() int {
	return c.pending
}

// HasPending reports whether the outbox holds unsent bytes.
func (c *Conn) HasPending() bool {
	return c.outbox.Length() > 0
}

// Enqueue appends a private copy of p to the outbox.
func (c *Conn) Enqueue(p []byte) {
	if len(p) == 0 {
		return
	}
	b := make([]byte, len(p))
	copy(b, p)
	c.outbox.Add(&chunk{b: b})
	c.pending += len(b)
}

// Flush writes queued chunks in order until the outbox is empty, the socket
// stops taking bytes, or write fails. It returns the first write error
// unchanged so the caller can tell would-block from a broken peer.
func (c *Conn) Flush(write WriteFunc) (int, error) {
	total := 0
	for c.outbox.Length() > 0 {
		head := c.outbox.Peek().(*chunk)
		n, err := write(head.b[head.off:])
		if n > 0 {
			head.off += n
			c.pending -= n
			total += n
		}
		if head.off == len(head.b) {
			c.outbox.Remove()
		}
		if err != nil {
			return total, err
		}
		if head.off < len(head.b) {
			// short write: kernel buffer is full
			return total, nil
		}
	}
	return total, nil
}

// Discard drops everything in the outbox.
func (c *Conn) Discard() {
	for c.outbox.Length() > 0 {
		c.outbox.Remove()
	}
	c.pending = 0
}
