// File: server/server.go
// Package server implements the epoll fan-out relay: one listening socket,
// one readiness reactor, and a single event loop goroutine that accepts
// clients and forwards every chunk a client sends to all other clients.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-relay/adapters"
	"github.com/momentics/hioload-relay/api"
	"github.com/momentics/hioload-relay/control"
	"github.com/momentics/hioload-relay/internal/session"
	"github.com/momentics/hioload-relay/internal/transport"
	"github.com/momentics/hioload-relay/reactor"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/momentics/hioload-relay/server"

// Interest sets. Error and hangup are reported by epoll regardless; they are
// listed so the intent is visible.
const (
	listenerInterest = reactor.EventRead | reactor.EventPeerClosed | reactor.EventHangup | reactor.EventError
	clientInterest   = reactor.EventRead | reactor.EventPeerClosed | reactor.EventHangup | reactor.EventError
)

var _ api.Service = (*Server)(nil)

// Server is the relay. Socket, reactor and registry mutations happen on the
// event loop goroutine only; the exported query methods are safe from any
// goroutine.
type Server struct {
	cfg            *Config
	log            *slog.Logger
	metrics        *control.Metrics
	probes         *control.DebugProbes
	ctrl           *adapters.ControlAdapter
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer

	ln       *transport.Listener
	reactor  reactor.EventReactor
	registry *session.Registry

	// write performs one non-blocking relay write; replaced in tests.
	write func(fd int, p []byte) (int, error)

	mu       sync.Mutex // guards launched, stopped and cancel
	launched bool
	stopped  bool
	cancel   context.CancelFunc
	state    atomic.Int32
	ready    chan struct{}
	done     chan struct{}
	runSince atomic.Int64

	events  []reactor.Event
	buf     []byte
	closing []int // descriptors retired in the current batch

	listenerWarn logThrottle
	acceptWarn   logThrottle
}

// New binds and listens on cfg.Host:cfg.Port and registers the listener with
// a fresh reactor. The loop is not running until Start. Any failure releases
// what was already opened and returns an error wrapping one of the api
// startup errors.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		log:      slog.Default(),
		registry: session.NewRegistry(),
		write:    transport.Write,
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
		events:   make([]reactor.Event, cfg.MaxEvents),
		buf:      make([]byte, cfg.ReadBufferSize),

		listenerWarn: logThrottle{every: time.Second},
		acceptWarn:   logThrottle{every: time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(slog.String("component", "relay"))
	if s.tracerProvider == nil {
		s.tracerProvider = otel.GetTracerProvider()
	}
	s.tracer = s.tracerProvider.Tracer(tracerName)
	s.ctrl = adapters.NewControlAdapter(s.metrics, s.probes)
	s.metrics, s.probes = s.ctrl.Metrics(), s.ctrl.Debug()

	s.log.Info("setting up listener", slog.String("host", cfg.Host), slog.Int("port", int(cfg.Port)))
	ln, err := transport.Listen(ctx, cfg.Host, cfg.Port, cfg.Backlog)
	if err != nil {
		s.log.Error("listener setup failed", slog.Any("error", err))
		return nil, err
	}

	r, err := reactor.NewReactor()
	if err != nil {
		_ = ln.Close()
		s.log.Error("reactor setup failed", slog.Any("error", err))
		return nil, fmt.Errorf("%w: %w", api.ErrReactor, err)
	}
	if err := r.Register(ln.Fd(), listenerInterest); err != nil {
		_ = r.Close()
		_ = ln.Close()
		s.log.Error("listener registration failed", slog.Any("error", err))
		return nil, fmt.Errorf("%w: %w", api.ErrRegister, err)
	}
	s.ln, s.reactor = ln, r

	s.registerProbes()
	return s, nil
}

func (s *Server) registerProbes() {
	s.probes.RegisterProbe("relay.connections", func() any { return s.registry.Len() })
	s.probes.RegisterProbe("relay.state", func() any { return s.State().String() })
	s.probes.RegisterProbe("relay.listen", func() any { return s.Addr().String() })
	s.probes.RegisterProbe("relay.uptime_seconds", func() any {
		since := s.runSince.Load()
		if since == 0 || !s.IsAlive() {
			return 0.0
		}
		return time.Since(time.Unix(0, since)).Seconds()
	})
}

// Start launches the event loop goroutine. Cancelling ctx stops the loop just
// like Stop does. Start may be called once per Server.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.stopped:
		return api.ErrClosed
	case s.launched:
		return api.ErrAlreadyStarted
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.launched, s.cancel = true, cancel
	s.state.Store(int32(StateStarting))
	s.log.Info("starting event loop")
	go s.run(loopCtx)
	return nil
}

// Stop requests the loop to stop and waits for it to tear down. The loop
// notices within one poll timeout. On a server that was never started, Stop
// just releases the listener and reactor. Stop is idempotent.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		<-s.done
		return nil
	}
	s.stopped = true
	if !s.launched {
		// no loop owns the descriptors
		s.teardown()
		close(s.done)
		s.mu.Unlock()
		return nil
	}
	s.log.Info("shutting down event loop")
	if !s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		s.state.CompareAndSwap(int32(StateStarting), int32(StateStopping))
	}
	s.cancel()
	s.mu.Unlock()

	<-s.done
	s.log.Info("event loop shutdown complete")
	return nil
}

// Shutdown implements api.GracefulShutdown.
func (s *Server) Shutdown() error {
	return s.Stop()
}

// Ready is closed once the loop has entered the running state. If startup is
// interrupted before that, it stays open and Done closes instead.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Done is closed when the loop has torn down all descriptors.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// IsAlive reports whether the loop is in the running state.
func (s *Server) IsAlive() bool {
	return s.State() == StateRunning
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	return State(s.state.Load())
}

// Addr returns the bound listening address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Connections returns the number of registered clients.
func (s *Server) Connections() int {
	return s.registry.Len()
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *control.Metrics {
	return s.metrics
}

// Probes returns the debug probe registry.
func (s *Server) Probes() *control.DebugProbes {
	return s.probes
}

// Control exposes stats and debug probes.
func (s *Server) Control() api.Control {
	return s.ctrl
}

// Stats returns a flattened snapshot of metrics and probes.
func (s *Server) Stats() map[string]any {
	return s.ctrl.Stats()
}
