// internal/transport/transport_linux.go
//go:build linux
// +build linux

//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux socket layer on raw descriptors via golang.org/x/sys/unix.

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/momentics/hioload-relay/api"
	"golang.org/x/sys/unix"
)

// DefaultBacklog is the kernel's maximum accept queue length.
const DefaultBacklog = unix.SOMAXCONN

// Listen creates a non-blocking IPv4 TCP socket with SO_REUSEADDR, binds it to
// host:port and starts listening. backlog <= 0 selects DefaultBacklog.
func Listen(ctx context.Context, host string, port uint16, backlog int) (*Listener, error) {
	ip, err := ResolveIPv4(ctx, host)
	if err != nil {
		return nil, err
	}
	if backlog <= 0 {
		backlog = DefaultBacklog
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", api.ErrSocket, err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("%w: setsockopt SO_REUSEADDR: %v", api.ErrSocket, err)
	}

	sa := &unix.SockaddrInet4{Port: int(port)}
	copy(sa.Addr[:], ip)
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("%w: %s:%d: %v", api.ErrBind, ip, port, err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("%w: %v", api.ErrListen, err)
	}

	addr := &net.TCPAddr{IP: ip, Port: int(port)}
	if local, err := unix.Getsockname(fd); err == nil {
		if in4, ok := local.(*unix.SockaddrInet4); ok {
			addr = &net.TCPAddr{IP: net.IP(append([]byte(nil), in4.Addr[:]...)), Port: in4.Port}
		}
	}
	return &Listener{fd: fd, addr: addr}, nil
}

// Accept takes one pending connection off the backlog. The returned
// descriptor is still in blocking mode; see SetNonblock.
// When nothing is pending the error satisfies IsWouldBlock.
func (l *Listener) Accept() (Accepted, error) {
	if l.closed {
		return Accepted{Fd: -1}, api.ErrClosed
	}
	fd, sa, err := unix.Accept4(l.fd, unix.SOCK_CLOEXEC)
	if err != nil {
		return Accepted{Fd: -1}, err
	}
	acc := Accepted{Fd: fd}
	acc.Host, acc.Port, acc.Named = peerName(sa)
	return acc, nil
}

// Close closes the listening socket. Subsequent calls are no-ops.
func (l *Listener) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	return unix.Close(l.fd)
}

func peerName(sa unix.Sockaddr) (host, port string, ok bool) {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port), true
	case *unix.SockaddrInet6:
		return net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port), true
	}
	return "", "", false
}

// SetNonblock switches fd to non-blocking mode.
func SetNonblock(fd int) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return fmt.Errorf("set nonblock fd=%d: %w", fd, err)
	}
	return nil
}

// Read performs a single read(2), retrying only on EINTR.
func Read(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Read(fd, p)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

// Write performs a single non-blocking send(2) with MSG_NOSIGNAL, so a
// vanished peer yields EPIPE instead of a signal. It may write fewer bytes
// than len(p).
func Write(fd int, p []byte) (int, error) {
	for {
		n, err := unix.SendmsgN(fd, p, nil, nil, unix.MSG_NOSIGNAL|unix.MSG_DONTWAIT)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

// Close closes a connection descriptor.
func Close(fd int) error {
	return unix.Close(fd)
}

// SocketError reads and clears the pending error on fd (SO_ERROR).
func SocketError(fd int) error {
	v, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return fmt.Errorf("getsockopt SO_ERROR fd=%d: %w", fd, err)
	}
	if v != 0 {
		return unix.Errno(v)
	}
	return nil
}

// IsWouldBlock reports the "no data / no pending connection" condition.
func IsWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

// IsTransientAccept reports accept errors that only affect the one pending
// connection and leave the backlog usable.
func IsTransientAccept(err error) bool {
	return errors.Is(err, unix.ECONNABORTED) || errors.Is(err, unix.EINTR) || errors.Is(err, unix.EPROTO)
}
