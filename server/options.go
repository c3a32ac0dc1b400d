// File: server/options.go
// Package server defines functional options for the relay Server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"log/slog"

	"github.com/momentics/hioload-relay/control"
	"go.opentelemetry.io/otel/trace"
)

// Option customizes server initialization.
type Option func(*Server)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics shares a metrics set, e.g. one already mounted on an admin router.
func WithMetrics(m *control.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithDebugProbes shares a probe registry.
func WithDebugProbes(dp *control.DebugProbes) Option {
	return func(s *Server) {
		s.probes = dp
	}
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) {
		s.tracerProvider = tp
	}
}
