// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral readiness reactor interface.

package reactor

import (
	"strings"
	"time"
)

// EventFlags is a bitset of readiness conditions reported for a descriptor.
type EventFlags uint32

const (
	// EventRead reports readable data or a pending connection.
	EventRead EventFlags = 1 << iota
	// EventWrite reports room in the send buffer.
	EventWrite
	// EventPeerClosed reports that the peer shut down its writing half.
	EventPeerClosed
	// EventHangup reports a hangup on the descriptor.
	EventHangup
	// EventError reports an error condition on the descriptor.
	EventError
)

// Has reports whether any of the bits in x are set in f.
func (f EventFlags) Has(x EventFlags) bool {
	return f&x != 0
}

// Failed reports an error or hangup condition.
func (f EventFlags) Failed() bool {
	return f.Has(EventError | EventHangup)
}

func (f EventFlags) String() string {
	if f == 0 {
		return "none"
	}
	names := []struct {
		bit  EventFlags
		name string
	}{
		{EventRead, "read"},
		{EventWrite, "write"},
		{EventPeerClosed, "rdhup"},
		{EventHangup, "hup"},
		{EventError, "err"},
	}
	var parts []string
	for _, n := range names {
		if f&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Event is one readiness notification. It is only valid until the next Wait.
type Event struct {
	Fd    int
	Flags EventFlags
}

// EventReactor defines the readiness operations the event loop relies on.
type EventReactor interface {
	// Register adds fd to the interest set with the given flags.
	Register(fd int, flags EventFlags) error

	// Modify replaces the interest flags of an already registered fd.
	Modify(fd int, flags EventFlags) error

	// Unregister removes fd from the interest set.
	Unregister(fd int) error

	// Wait blocks for at most timeout (negative = forever) and fills events.
	// A wait interrupted by a signal reports zero events and no error.
	Wait(events []Event, timeout time.Duration) (int, error)

	// Close releases the reactor handle.
	Close() error
}
