//go:build linux

package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/hioload-relay/control"
	"github.com/momentics/hioload-relay/internal/transport"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

const (
	gateOpen int32 = iota
	gateFull       // peer receive window is full
	gateBroken     // peer is gone
)

// gatedServer starts a server whose relay writes are steered by the returned
// gate instead of always reaching the socket.
func gatedServer(t *testing.T, maxPending int) (*Server, *atomic.Int32) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.PollTimeout = 20 * time.Millisecond
	cfg.MaxPendingBytes = maxPending

	srv, err := New(context.Background(), cfg, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	gate := new(atomic.Int32)
	srv.write = func(fd int, p []byte) (int, error) {
		switch gate.Load() {
		case gateFull:
			return 0, unix.EAGAIN
		case gateBroken:
			return 0, unix.EPIPE
		}
		return transport.Write(fd, p)
	}
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Stop() })
	<-srv.Ready()
	return srv, gate
}

func dialN(t *testing.T, srv *Server, want int) net.Conn {
	t.Helper()
	c, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	require.Eventually(t, func() bool { return srv.Connections() == want }, 2*time.Second, 5*time.Millisecond)
	return c
}

func TestBackloggedBytesKeepOrder(t *testing.T) {
	srv, gate := gatedServer(t, 0)
	a := dialN(t, srv, 1)
	b := dialN(t, srv, 2)

	gate.Store(gateFull)
	_, err := a.Write([]byte("first"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(srv.Metrics().Backlogged) >= 1
	}, 2*time.Second, 5*time.Millisecond)

	_, err = a.Write([]byte("-second"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(srv.Metrics().Messages) == 2
	}, 2*time.Second, 5*time.Millisecond)

	gate.Store(gateOpen)
	require.NoError(t, b.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, len("first-second"))
	_, err = io.ReadFull(b, buf)
	require.NoError(t, err)
	require.Equal(t, "first-second", string(buf))
	require.Equal(t, 2, srv.Connections())
}

func TestSlowPeerIsDroppedOnOverflow(t *testing.T) {
	srv, gate := gatedServer(t, 1000)
	a := dialN(t, srv, 1)
	b := dialN(t, srv, 2)

	gate.Store(gateFull)
	_, err := a.Write([]byte(strings.Repeat("x", 1200)))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return srv.Connections() == 1 }, 2*time.Second, 5*time.Millisecond)
	overflow := srv.Metrics().Closed.WithLabelValues(control.ReasonOverflow)
	require.Eventually(t, func() bool { return testutil.ToFloat64(overflow) == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, b.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, err := b.Read(make([]byte, 16))
	require.Zero(t, n)
	require.Error(t, err)

	// the sender is the one left
	remaining := srv.registry.Snapshot()
	require.Len(t, remaining, 1)
	require.Equal(t, a.LocalAddr().(*net.TCPAddr).Port, mustAtoi(t, remaining[0].Port))
}

func TestHardWriteErrorDropsPeer(t *testing.T) {
	srv, gate := gatedServer(t, 0)
	a := dialN(t, srv, 1)
	b := dialN(t, srv, 2)
	c := dialN(t, srv, 3)

	gate.Store(gateBroken)
	_, err := a.Write([]byte("boom"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return srv.Connections() == 1 }, 2*time.Second, 5*time.Millisecond)
	m := srv.Metrics()
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.Closed.WithLabelValues(control.ReasonWriteError)) == 2
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 2.0, testutil.ToFloat64(m.WriteFailures))

	for _, peer := range []net.Conn{b, c} {
		require.NoError(t, peer.SetReadDeadline(time.Now().Add(2*time.Second)))
		n, err := peer.Read(make([]byte, 16))
		require.Zero(t, n)
		require.Error(t, err)
	}
}

func mustAtoi(t *testing.T, s string) int {
	t.Helper()
	n, err := strconv.Atoi(s)
	require.NoError(t, err)
	return n
}
