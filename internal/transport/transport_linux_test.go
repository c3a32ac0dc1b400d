//go:build linux

package transport_test

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/momentics/hioload-relay/api"
	"github.com/momentics/hioload-relay/internal/transport"
	"github.com/stretchr/testify/require"
)

func listenLoopback(t *testing.T) *transport.Listener {
	t.Helper()
	ln, err := transport.Listen(context.Background(), "127.0.0.1", 0, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	return ln
}

// acceptEventually polls the non-blocking listener until a connection shows up.
func acceptEventually(t *testing.T, ln *transport.Listener) transport.Accepted {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		acc, err := ln.Accept()
		if err == nil {
			return acc
		}
		require.True(t, transport.IsWouldBlock(err), "accept: %v", err)
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no connection accepted")
	return transport.Accepted{}
}

func TestListenAssignsPort(t *testing.T) {
	ln := listenLoopback(t)
	require.NotZero(t, ln.Addr().Port)
	require.Equal(t, "127.0.0.1", ln.Addr().IP.String())
	require.Greater(t, ln.Fd(), 0)
}

func TestListenRejectsUnresolvableHost(t *testing.T) {
	_, err := transport.Listen(context.Background(), "no-such-host.invalid", 0, 0)
	require.True(t, errors.Is(err, api.ErrResolve))
}

func TestListenBusyPort(t *testing.T) {
	ln := listenLoopback(t)
	_, err := transport.Listen(context.Background(), "127.0.0.1", uint16(ln.Addr().Port), 0)
	require.True(t, errors.Is(err, api.ErrBind), "got %v", err)
}

func TestSocketErrorOnHealthyListener(t *testing.T) {
	ln := listenLoopback(t)
	require.NoError(t, transport.SocketError(ln.Fd()))
	require.Error(t, transport.SocketError(-1))
}

func TestAcceptWouldBlockWhenIdle(t *testing.T) {
	ln := listenLoopback(t)
	_, err := ln.Accept()
	require.True(t, transport.IsWouldBlock(err))
}

func TestAcceptReadWrite(t *testing.T) {
	ln := listenLoopback(t)

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	acc := acceptEventually(t, ln)
	defer transport.Close(acc.Fd)
	require.True(t, acc.Named)
	require.Equal(t, "127.0.0.1", acc.Host)
	clientPort := client.LocalAddr().(*net.TCPAddr).Port
	require.Equal(t, strconv.Itoa(clientPort), acc.Port)

	require.NoError(t, transport.SetNonblock(acc.Fd))

	n, err := transport.Write(acc.Fd, []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	buf := make([]byte, 16)
	require.NoError(t, client.SetReadDeadline(time.Now().Add(time.Second)))
	n, err = client.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:n]))

	_, err = transport.Read(acc.Fd, buf)
	require.True(t, transport.IsWouldBlock(err))

	_, err = client.Write([]byte("back"))
	require.NoError(t, err)
	deadline := time.Now().Add(time.Second)
	for {
		n, err = transport.Read(acc.Fd, buf)
		if !transport.IsWouldBlock(err) || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.NoError(t, err)
	require.Equal(t, "back", string(buf[:n]))
}

func TestListenerCloseIsIdempotent(t *testing.T) {
	ln, err := transport.Listen(context.Background(), "127.0.0.1", 0, 0)
	require.NoError(t, err)
	require.NoError(t, ln.Close())
	require.NoError(t, ln.Close())
	_, err = ln.Accept()
	require.ErrorIs(t, err, api.ErrClosed)
}
