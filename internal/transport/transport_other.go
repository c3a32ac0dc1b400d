//go:build !linux
// +build !linux

// File: internal/transport/transport_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stubs for platforms without epoll.

package transport

import (
	"context"
	"fmt"

	"github.com/momentics/hioload-relay/api"
)

// DefaultBacklog mirrors the Linux default.
const DefaultBacklog = 4096

var errUnsupported = fmt.Errorf("transport: raw sockets unavailable on this platform: %w", api.ErrNotSupported)

func Listen(ctx context.Context, host string, port uint16, backlog int) (*Listener, error) {
	return nil, errUnsupported
}

func (l *Listener) Accept() (Accepted, error) { return Accepted{Fd: -1}, errUnsupported }
func (l *Listener) Close() error             { return nil }

func SetNonblock(fd int) error                { return errUnsupported }
func Read(fd int, p []byte) (int, error)      { return 0, errUnsupported }
func Write(fd int, p []byte) (int, error)     { return 0, errUnsupported }
func Close(fd int) error                      { return errUnsupported }
func SocketError(fd int) error                { return errUnsupported }
func IsWouldBlock(err error) bool             { return false }
func IsTransientAccept(err error) bool        { return false }
