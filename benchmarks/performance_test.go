//go:build linux

// Package benchmarks
// Author: momentics <momentics@gmail.com>
//
// Performance benchmarks for relay components.

package benchmarks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/momentics/hioload-relay/internal/session"
	"github.com/momentics/hioload-relay/server"
)

// BenchmarkRegistryBroadcast measures fan-out iteration over a full registry.
func BenchmarkRegistryBroadcast(b *testing.B) {
	for _, size := range []int{8, 128, 1024} {
		b.Run(fmt.Sprintf("peers=%d", size), func(b *testing.B) {
			reg := session.NewRegistry()
			conns := make([]*session.Conn, size)
			for i := range conns {
				conns[i] = session.NewConn(1000+i, "127.0.0.1", "0")
				reg.Add(conns[i])
			}
			send := func(*session.Conn) error { return nil }

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				reg.Broadcast(conns[i%size], send)
			}
		})
	}
}

// BenchmarkOutboxEnqueueFlush measures the slow-peer path.
func BenchmarkOutboxEnqueueFlush(b *testing.B) {
	c := session.NewConn(1, "", "")
	chunk := make([]byte, 1024)
	sink := func(p []byte) (int, error) { return len(p), nil }

	b.SetBytes(int64(len(chunk)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Enqueue(chunk)
		if _, err := c.Flush(sink); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkQuitCommand measures the per-chunk command check.
func BenchmarkQuitCommand(b *testing.B) {
	msg := []byte("hello\n")
	for i := 0; i < b.N; i++ {
		server.IsQuitCommand(msg)
	}
}

// BenchmarkLoopbackFanOut measures end-to-end relay of one chunk from a
// sender to every other client over loopback.
func BenchmarkLoopbackFanOut(b *testing.B) {
	for _, peers := range []int{1, 8, 32} {
		b.Run(fmt.Sprintf("peers=%d", peers), func(b *testing.B) {
			benchmarkFanOut(b, peers)
		})
	}
}

func benchmarkFanOut(b *testing.B, peers int) {
	cfg := server.DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.MaxPendingBytes = 0
	srv, err := server.New(context.Background(), cfg,
		server.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		b.Fatal(err)
	}
	defer srv.Stop()
	if err := srv.Start(context.Background()); err != nil {
		b.Fatal(err)
	}
	<-srv.Ready()

	dial := func() net.Conn {
		c, err := net.Dial("tcp", srv.Addr().String())
		if err != nil {
			b.Fatal(err)
		}
		return c
	}
	sender := dial()
	defer sender.Close()
	receivers := make([]net.Conn, peers)
	for i := range receivers {
		receivers[i] = dial()
		defer receivers[i].Close()
	}
	deadline := time.Now().Add(5 * time.Second)
	for srv.Connections() != peers+1 {
		if time.Now().After(deadline) {
			b.Fatalf("registered %d of %d clients", srv.Connections(), peers+1)
		}
		time.Sleep(time.Millisecond)
	}

	msg := []byte("0123456789abcdef0123456789abcdef")
	buf := make([]byte, len(msg))
	b.SetBytes(int64(len(msg) * peers))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := sender.Write(msg); err != nil {
			b.Fatal(err)
		}
		for _, r := range receivers {
			if _, err := io.ReadFull(r, buf); err != nil {
				b.Fatal(err)
			}
		}
	}
}
