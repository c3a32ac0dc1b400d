// File: internal/session/registry.go
// Package session
// Author: momentics <momentics@gmail.com>
//
// Ordered connection registry used for fan-out.

package session

import "sync"

// Registry is the ordered set of open client connections. Insertion order is
// accept order. Mutations come from the event loop only; the lock exists so
// stats and debug probes can read from other goroutines.
type Registry struct {
	mu    sync.RWMutex
	conns []*Conn
	byFd  map[int]*Conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byFd: make(map[int]*Conn),
	}
}

// Add appends c.
func (r *Registry) Add(c *Conn) {
	r.mu.Lock()
	r.conns = append(r.conns, c)
	r.byFd[c.fd] = c
	r.mu.Unlock()
}

// Remove drops c and reports whether it was present.
func (r *Registry) Remove(c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, cc := range r.conns {
		if cc != c {
			continue
		}
		copy(r.conns[i:], r.conns[i+1:])
		r.conns[len(r.conns)-1] = nil
		r.conns = r.conns[:len(r.conns)-1]
		if r.byFd[c.fd] == c {
			delete(r.byFd, c.fd)
		}
		return true
	}
	return false
}

// Lookup finds the connection registered for fd.
func (r *Registry) Lookup(fd int) (*Conn, bool) {
	r.mu.RLock()
	c, ok := r.byFd[fd]
	r.mu.RUnlock()
	return c, ok
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Snapshot returns the connections in registration order.
func (r *Registry) Snapshot() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, len(r.conns))
	copy(out, r.conns)
	return out
}

// Failure pairs a connection with the error its send returned.
type Failure struct {
	Conn *Conn
	Err  error
}

// Broadcast calls send for every connection except from, in registration
// order. A failing send does not stop the iteration; the failures are
// returned so the caller can drop those connections afterwards. send must not
// mutate the registry.
func (r *Registry) Broadcast(from *Conn, send func(*Conn) error) (delivered int, failed []Failure) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.conns {
		if c == from {
			continue
		}
		if err := send(c); err != nil {
			failed = append(failed, Failure{Conn: c, Err: err})
			continue
		}
		delivered++
	}
	return delivered, failed
}
