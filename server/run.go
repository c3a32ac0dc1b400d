// File: server/run.go
// Package server implements the event loop: readiness wait, accept path,
// read/relay path, outbox flushing and teardown.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/momentics/hioload-relay/affinity"
	"github.com/momentics/hioload-relay/control"
	"github.com/momentics/hioload-relay/internal/session"
	"github.com/momentics/hioload-relay/internal/transport"
	"github.com/momentics/hioload-relay/reactor"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var errOutboxOverflow = errors.New("outbox limit exceeded")

// run is the event loop goroutine.
func (s *Server) run(ctx context.Context) {
	defer close(s.done)
	defer s.teardown()

	if !s.state.CompareAndSwap(int32(StateStarting), int32(StateRunning)) {
		s.log.Warn("stop requested before the loop started")
		return
	}
	if cpu := s.cfg.LoopCPU; cpu >= 0 {
		if err := affinity.Pin(cpu); err != nil {
			s.log.Warn("loop thread pinning failed, running unpinned", slog.Int("cpu", cpu), slog.Any("error", err))
		} else {
			s.log.Info("loop thread pinned", slog.Int("cpu", cpu))
		}
	}
	s.runSince.Store(time.Now().UnixNano())
	close(s.ready)
	s.log.Info("event loop running",
		slog.String("addr", s.ln.Addr().String()),
		slog.Int("max_events", s.cfg.MaxEvents),
		slog.Duration("poll_timeout", s.cfg.PollTimeout))

	for ctx.Err() == nil {
		n, err := s.reactor.Wait(s.events, s.cfg.PollTimeout)
		if err != nil {
			s.log.Error("readiness wait failed, stopping loop", slog.Any("error", err))
			return
		}
		for i := 0; i < n; i++ {
			s.dispatch(ctx, s.events[i])
		}
		s.releaseClosed()
	}
}

// teardown closes every client, the listener and the reactor, then marks the
// server stopped.
func (s *Server) teardown() {
	s.state.Store(int32(StateStopping))
	s.log.Info("event loop shutting down", slog.Int("clients", s.registry.Len()))
	for _, c := range s.registry.Snapshot() {
		s.closeConn(c, control.ReasonShutdown)
	}
	s.releaseClosed()
	if err := s.ln.Close(); err != nil {
		s.log.Warn("listener close failed", slog.Any("error", err))
	}
	if err := s.reactor.Close(); err != nil {
		s.log.Warn("reactor close failed", slog.Any("error", err))
	}
	s.state.Store(int32(StateStopped))
}

// dispatch handles one readiness event.
func (s *Server) dispatch(ctx context.Context, ev reactor.Event) {
	s.metrics.Events.Inc()
	s.log.Debug("readiness event", slog.Int("fd", ev.Fd), slog.String("flags", ev.Flags.String()))

	if ev.Fd == s.ln.Fd() {
		if ev.Flags.Failed() {
			// reading SO_ERROR clears a pending socket error
			err := transport.SocketError(s.ln.Fd())
			if ok, suppressed := s.listenerWarn.allow(time.Now()); ok {
				s.log.Error("listener reported an error condition",
					slog.String("flags", ev.Flags.String()), slog.Any("error", err), slog.Int("suppressed", suppressed))
			}
			return
		}
		s.acceptAll()
		return
	}

	c, ok := s.registry.Lookup(ev.Fd)
	if !ok {
		// closed earlier in this batch
		return
	}
	switch {
	case ev.Flags.Failed():
		s.log.Warn("peer error or hangup", slog.Int("fd", c.Fd()), slog.String("flags", ev.Flags.String()))
		s.closeConn(c, control.ReasonHangup)
		return
	case !ev.Flags.Has(reactor.EventRead | reactor.EventWrite):
		s.log.Warn("readiness without data", slog.Int("fd", c.Fd()), slog.String("flags", ev.Flags.String()))
		s.closeConn(c, control.ReasonHangup)
		return
	}
	if ev.Flags.Has(reactor.EventWrite) && !s.flush(c) {
		return
	}
	if ev.Flags.Has(reactor.EventRead) {
		s.readFrom(ctx, c)
	}
}

// acceptAll drains the backlog.
func (s *Server) acceptAll() {
	for {
		acc, err := s.ln.Accept()
		if err != nil {
			switch {
			case transport.IsWouldBlock(err):
			case transport.IsTransientAccept(err):
				continue
			default:
				if ok, suppressed := s.acceptWarn.allow(time.Now()); ok {
					s.log.Error("accept failed", slog.Any("error", err), slog.Int("suppressed", suppressed))
				}
			}
			return
		}
		s.admit(acc)
	}
}

// admit registers one accepted socket or discards it.
func (s *Server) admit(acc transport.Accepted) {
	discard := func(msg string, err error) {
		attrs := []any{slog.Int("fd", acc.Fd)}
		if acc.Named {
			attrs = append(attrs, slog.String("host", acc.Host), slog.String("port", acc.Port))
		}
		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
		}
		s.log.Warn(msg, attrs...)
		_ = transport.Close(acc.Fd)
		s.metrics.Rejected.Inc()
	}

	if limit := s.cfg.MaxConnections; limit > 0 && s.registry.Len() >= limit {
		discard("connection limit reached, dropping client", nil)
		return
	}
	if err := transport.SetNonblock(acc.Fd); err != nil {
		discard("non-blocking mode failed, dropping client", err)
		return
	}
	if err := s.reactor.Register(acc.Fd, clientInterest); err != nil {
		discard("reactor registration failed, dropping client", err)
		return
	}

	c := session.NewConn(acc.Fd, acc.Host, acc.Port)
	s.metrics.Accepted.Inc()
	s.metrics.Active.Inc()
	s.registry.Add(c)
	if acc.Named {
		s.log.Info("accepted connection",
			slog.Int("fd", acc.Fd), slog.String("host", acc.Host), slog.String("port", acc.Port))
	}
	s.log.Debug("client registered", slog.Int("fd", c.Fd()), slog.String("id", c.ID.String()),
		slog.Int("clients", s.registry.Len()))
}

// readFrom reads one chunk from c and acts on it.
func (s *Server) readFrom(ctx context.Context, c *session.Conn) {
	n, err := transport.Read(c.Fd(), s.buf)
	switch {
	case err != nil && transport.IsWouldBlock(err):
		return
	case err != nil:
		s.log.Warn("read failed", slog.Int("fd", c.Fd()), slog.Any("error", err))
		s.closeConn(c, control.ReasonReadError)
		return
	case n <= 0:
		s.closeConn(c, control.ReasonEOF)
		return
	}

	chunk := s.buf[:n]
	s.log.Debug("received message", slog.Int("fd", c.Fd()), slog.Int("bytes", n))
	if IsQuitCommand(chunk) {
		s.log.Info("client sent quit", slog.Int("fd", c.Fd()), slog.String("peer", c.Peer()))
		s.closeConn(c, control.ReasonQuit)
		return
	}
	s.relay(ctx, c, chunk)
}

// relay writes chunk to every registered client except from. Peers whose
// write failed are dropped after the iteration.
func (s *Server) relay(ctx context.Context, from *session.Conn, chunk []byte) {
	_, span := s.tracer.Start(ctx, "relay.broadcast",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.Int("relay.sender_fd", from.Fd()),
			attribute.Int("relay.bytes", len(chunk)),
		))
	defer span.End()

	delivered, failed := s.registry.Broadcast(from, func(peer *session.Conn) error {
		return s.send(peer, chunk)
	})
	s.metrics.Messages.Inc()
	span.SetAttributes(attribute.Int("relay.delivered", delivered), attribute.Int("relay.failed", len(failed)))
	if len(failed) > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d peers dropped", len(failed)))
	}

	for _, f := range failed {
		reason := control.ReasonWriteError
		if errors.Is(f.Err, errOutboxOverflow) {
			reason = control.ReasonOverflow
		}
		s.log.Warn("relay to peer failed, dropping it",
			slog.Int("fd", f.Conn.Fd()), slog.String("peer", f.Conn.Peer()), slog.Any("error", f.Err))
		s.closeConn(f.Conn, reason)
	}
}

// send makes one non-blocking write attempt to peer. Whatever the socket
// does not take goes to the peer's outbox, and the peer is armed for write
// readiness. Bytes already queued keep their place ahead of p.
func (s *Server) send(peer *session.Conn, p []byte) error {
	if peer.HasPending() {
		return s.backlog(peer, p)
	}

	n, err := s.write(peer.Fd(), p)
	if n < 0 {
		n = 0
	}
	s.metrics.RelayedBytes.Add(float64(n))
	if err != nil && !transport.IsWouldBlock(err) {
		s.metrics.WriteFailures.Inc()
		return fmt.Errorf("write fd=%d: %w", peer.Fd(), err)
	}
	if n == len(p) {
		return nil
	}
	if err := s.backlog(peer, p[n:]); err != nil {
		return err
	}
	return s.reactor.Modify(peer.Fd(), clientInterest|reactor.EventWrite)
}

func (s *Server) backlog(peer *session.Conn, p []byte) error {
	peer.Enqueue(p)
	s.metrics.Backlogged.Inc()
	if limit := s.cfg.MaxPendingBytes; limit > 0 && peer.Pending() > limit {
		return fmt.Errorf("fd=%d pending=%d: %w", peer.Fd(), peer.Pending(), errOutboxOverflow)
	}
	return nil
}

// flush drains c's outbox as far as the socket allows. It returns false if
// c was closed.
func (s *Server) flush(c *session.Conn) bool {
	if !c.HasPending() {
		// stale write interest
		return s.rearm(c)
	}
	n, err := c.Flush(func(p []byte) (int, error) {
		return s.write(c.Fd(), p)
	})
	s.metrics.RelayedBytes.Add(float64(n))
	if err != nil && !transport.IsWouldBlock(err) {
		s.metrics.WriteFailures.Inc()
		s.log.Warn("outbox flush failed", slog.Int("fd", c.Fd()), slog.Any("error", err))
		s.closeConn(c, control.ReasonWriteError)
		return false
	}
	if c.HasPending() {
		return true
	}
	return s.rearm(c)
}

// rearm drops write interest once the outbox is empty.
func (s *Server) rearm(c *session.Conn) bool {
	if err := s.reactor.Modify(c.Fd(), clientInterest); err != nil {
		s.log.Warn("reactor modify failed", slog.Int("fd", c.Fd()), slog.Any("error", err))
		s.closeConn(c, control.ReasonHangup)
		return false
	}
	return true
}

// closeConn is the single close path: the handle leaves the registry and the
// reactor at once, the descriptor is closed by releaseClosed at the end of the
// current batch.
func (s *Server) closeConn(c *session.Conn, reason string) {
	if !s.registry.Remove(c) {
		return
	}
	if err := s.reactor.Unregister(c.Fd()); err != nil {
		s.log.Debug("reactor unregister failed", slog.Int("fd", c.Fd()), slog.Any("error", err))
	}
	c.Discard()
	s.closing = append(s.closing, c.Fd())
	s.metrics.ConnClosed(reason)
	s.log.Info("connection closed",
		slog.Int("fd", c.Fd()),
		slog.String("peer", c.Peer()),
		slog.String("reason", reason),
		slog.Int("clients", s.registry.Len()))
}

// releaseClosed closes the descriptors retired during the last batch. While
// they stay open the kernel cannot reuse their numbers for a new accept, so a
// stale event later in the same batch cannot reach a fresh client.
func (s *Server) releaseClosed() {
	for _, fd := range s.closing {
		if err := transport.Close(fd); err != nil {
			s.log.Warn("close failed", slog.Int("fd", fd), slog.Any("error", err))
		}
	}
	s.closing = s.closing[:0]
}

// logThrottle lets one log line through per interval and counts the rest.
// Level-triggered readiness repeats a persistent condition on every wait.
type logThrottle struct {
	every      time.Duration
	last       time.Time
	suppressed int
}

func (t *logThrottle) allow(now time.Time) (bool, int) {
	if !t.last.IsZero() && now.Sub(t.last) < t.every {
		t.suppressed++
		return false, 0
	}
	n := t.suppressed
	t.last, t.suppressed = now, 0
	return true, n
}
