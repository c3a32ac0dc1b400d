// File: fake/fakereactor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Scripted reactor for driving the event loop without epoll.

package fake

import (
	"fmt"
	"sync"
	"time"

	"github.com/momentics/hioload-relay/api"
	"github.com/momentics/hioload-relay/reactor"
)

var _ reactor.EventReactor = (*Reactor)(nil)

// Reactor records interest changes and hands out queued event batches.
// An empty queue makes Wait sleep for its timeout and report zero events.
type Reactor struct {
	mu       sync.Mutex
	interest map[int]reactor.EventFlags
	batches  [][]reactor.Event
	waitErr  error
	regErr   error
	waits    int
	closed   bool
}

// NewReactor returns an empty scripted reactor.
func NewReactor() *Reactor {
	return &Reactor{interest: make(map[int]reactor.EventFlags)}
}

// Push queues one batch to be returned by a future Wait.
func (r *Reactor) Push(events ...reactor.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, events)
}

// FailWait makes every following Wait return err.
func (r *Reactor) FailWait(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waitErr = err
}

// FailRegister makes every following Register return err. nil restores
// normal registration.
func (r *Reactor) FailRegister(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.regErr = err
}

// Interest returns the flags fd is registered with.
func (r *Reactor) Interest(fd int) (reactor.EventFlags, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.interest[fd]
	return f, ok
}

// Waits counts completed Wait calls.
func (r *Reactor) Waits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waits
}

// Closed reports whether Close was called.
func (r *Reactor) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Reactor) Register(fd int, flags reactor.EventFlags) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return api.ErrClosed
	}
	if r.regErr != nil {
		return r.regErr
	}
	if _, ok := r.interest[fd]; ok {
		return fmt.Errorf("fake: fd %d already registered", fd)
	}
	r.interest[fd] = flags
	return nil
}

func (r *Reactor) Modify(fd int, flags reactor.EventFlags) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.interest[fd]; !ok || r.closed {
		return fmt.Errorf("fake: fd %d not registered", fd)
	}
	r.interest[fd] = flags
	return nil
}

func (r *Reactor) Unregister(fd int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.interest[fd]; !ok {
		return fmt.Errorf("fake: fd %d not registered", fd)
	}
	delete(r.interest, fd)
	return nil
}

func (r *Reactor) Wait(events []reactor.Event, timeout time.Duration) (int, error) {
	r.mu.Lock()
	switch {
	case r.closed:
		r.mu.Unlock()
		return 0, api.ErrClosed
	case r.waitErr != nil:
		r.waits++
		err := r.waitErr
		r.mu.Unlock()
		return 0, err
	case len(r.batches) > 0:
		batch := r.batches[0]
		r.batches = r.batches[1:]
		r.waits++
		r.mu.Unlock()
		return copy(events, batch), nil
	}
	r.mu.Unlock()

	if timeout > 0 {
		time.Sleep(timeout)
	}
	r.mu.Lock()
	r.waits++
	r.mu.Unlock()
	return 0, nil
}

func (r *Reactor) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return api.ErrClosed
	}
	r.closed = true
	return nil
}
