// Package transport
// Author: momentics <momentics@gmail.com>
//
// Platform-independent part of the socket layer: host resolution and the
// Listener handle shared by the platform implementations.

package transport

import (
	"context"
	"fmt"
	"net"

	"github.com/momentics/hioload-relay/api"
)

// WildcardHost is the sentinel accepted in place of 0.0.0.0.
const WildcardHost = "INADDR_ANY"

// Listener is a bound, passively listening, non-blocking socket.
type Listener struct {
	fd     int
	addr   *net.TCPAddr
	closed bool
}

// Fd returns the listening descriptor.
func (l *Listener) Fd() int {
	return l.fd
}

// Addr returns the bound local address, with the kernel-assigned port
// filled in when port 0 was requested.
func (l *Listener) Addr() *net.TCPAddr {
	return l.addr
}

// Accepted describes one connection taken off the backlog.
type Accepted struct {
	Fd int
	// Host and Port are numeric peer coordinates, set only when Named is true.
	Host  string
	Port  string
	Named bool
}

// IsWildcard reports whether host selects every local interface.
func IsWildcard(host string) bool {
	switch host {
	case "", "0.0.0.0", "*", WildcardHost:
		return true
	}
	return false
}

// ResolveIPv4 turns host into the IPv4 address to bind. Wildcard hosts map to
// 0.0.0.0, literals are parsed directly, anything else goes through the
// resolver and the first IPv4 answer wins.
func ResolveIPv4(ctx context.Context, host string) (net.IP, error) {
	if IsWildcard(host) {
		return net.IPv4zero.To4(), nil
	}
	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
		return nil, fmt.Errorf("%w: %q is not an IPv4 address", api.ErrResolve, host)
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", api.ErrResolve, host, err)
	}
	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			return v4, nil
		}
	}
	return nil, fmt.Errorf("%w: %q has no IPv4 address", api.ErrResolve, host)
}
