//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7)-based reactor implementation and factory.

package reactor

import (
	"fmt"
	"time"

	"github.com/momentics/hioload-relay/api"
	"golang.org/x/sys/unix"
)

// linuxReactor is a level-triggered epoll reactor. It is not safe for
// concurrent use; the event loop owns it.
type linuxReactor struct {
	epfd   int
	raw    []unix.EpollEvent
	closed bool
}

// NewReactor constructs a new platform-specific EventReactor for Linux.
func NewReactor() (EventReactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	return &linuxReactor{epfd: epfd}, nil
}

func toEpoll(flags EventFlags) uint32 {
	var ev uint32
	if flags.Has(EventRead) {
		ev |= unix.EPOLLIN
	}
	if flags.Has(EventWrite) {
		ev |= unix.EPOLLOUT
	}
	if flags.Has(EventPeerClosed) {
		ev |= unix.EPOLLRDHUP
	}
	// EPOLLERR and EPOLLHUP are always reported; setting them is harmless.
	if flags.Has(EventHangup) {
		ev |= unix.EPOLLHUP
	}
	if flags.Has(EventError) {
		ev |= unix.EPOLLERR
	}
	return ev
}

func fromEpoll(ev uint32) EventFlags {
	var flags EventFlags
	if ev&unix.EPOLLIN != 0 {
		flags |= EventRead
	}
	if ev&unix.EPOLLOUT != 0 {
		flags |= EventWrite
	}
	if ev&unix.EPOLLRDHUP != 0 {
		flags |= EventPeerClosed
	}
	if ev&unix.EPOLLHUP != 0 {
		flags |= EventHangup
	}
	if ev&unix.EPOLLERR != 0 {
		flags |= EventError
	}
	return flags
}

// Register adds file descriptor to epoll.
func (r *linuxReactor) Register(fd int, flags EventFlags) error {
	if r.closed {
		return api.ErrClosed
	}
	ev := unix.EpollEvent{Events: toEpoll(flags), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add fd=%d: %w", fd, err)
	}
	return nil
}

// Modify changes the interest set of a registered descriptor.
func (r *linuxReactor) Modify(fd int, flags EventFlags) error {
	if r.closed {
		return api.ErrClosed
	}
	ev := unix.EpollEvent{Events: toEpoll(flags), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl mod fd=%d: %w", fd, err)
	}
	return nil
}

// Unregister removes a file descriptor from the epoll watch list.
func (r *linuxReactor) Unregister(fd int) error {
	if r.closed {
		return api.ErrClosed
	}
	// Kernels before 2.6.9 require a non-nil event for DEL.
	var ev unix.EpollEvent
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl del fd=%d: %w", fd, err)
	}
	return nil
}

// Wait waits for epoll events and fills the result into events slice.
func (r *linuxReactor) Wait(events []Event, timeout time.Duration) (int, error) {
	if r.closed {
		return 0, api.ErrClosed
	}
	if len(events) == 0 {
		return 0, fmt.Errorf("epoll wait: empty event buffer: %w", api.ErrInvalidArgument)
	}
	if cap(r.raw) < len(events) {
		r.raw = make([]unix.EpollEvent, len(events))
	}
	raw := r.raw[:len(events)]

	msec := -1
	if timeout >= 0 {
		msec = int(timeout / time.Millisecond)
	}
	n, err := unix.EpollWait(r.epfd, raw, msec)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}
	for i := 0; i < n; i++ {
		events[i] = Event{Fd: int(raw[i].Fd), Flags: fromEpoll(raw[i].Events)}
	}
	return n, nil
}

// Close closes the epoll instance.
func (r *linuxReactor) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return unix.Close(r.epfd)
}
