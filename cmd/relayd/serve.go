// File: cmd/relayd/serve.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/momentics/hioload-relay/control"
	"github.com/momentics/hioload-relay/server"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	cfg       *server.Config
	admin     string
	logLevel  string
	logFormat string
}

func defaultServeOptions() *serveOptions {
	return &serveOptions{
		cfg:       server.DefaultConfig(),
		logLevel:  "info",
		logFormat: "text",
	}
}

func (o *serveOptions) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&o.cfg.Host, "host", "H", o.cfg.Host, "Host or IPv4 address to bind")
	f.Uint16VarP(&o.cfg.Port, "port", "p", o.cfg.Port, "TCP port to listen on")
	f.IntVar(&o.cfg.Backlog, "backlog", o.cfg.Backlog, "Listen backlog (0 = SOMAXCONN)")
	f.IntVar(&o.cfg.MaxEvents, "max-events", o.cfg.MaxEvents, "Readiness events handled per wait")
	f.DurationVar(&o.cfg.PollTimeout, "poll-timeout", o.cfg.PollTimeout, "Upper bound of one readiness wait")
	f.IntVar(&o.cfg.ReadBufferSize, "read-buffer", o.cfg.ReadBufferSize, "Bytes read per chunk")
	f.IntVar(&o.cfg.MaxPendingBytes, "max-pending", o.cfg.MaxPendingBytes, "Per-peer outbox limit in bytes (0 = unbounded)")
	f.IntVar(&o.cfg.MaxConnections, "max-conns", o.cfg.MaxConnections, "Client limit (0 = unlimited)")
	f.IntVar(&o.cfg.LoopCPU, "loop-cpu", o.cfg.LoopCPU, "Pin the event loop thread to this CPU (-1 = off)")
	f.StringVar(&o.admin, "admin", "", "Admin HTTP address for /metrics, /healthz and /debug/probes (empty = off)")
	f.StringVar(&o.logLevel, "log-level", o.logLevel, "Log level: debug, info, warn, error")
	f.StringVar(&o.logFormat, "log-format", o.logFormat, "Log format: text or json")
}

// newLogger builds the process logger from the level and format flags.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	hopts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(w, hopts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	}
	return nil, fmt.Errorf("log format %q: want text or json", format)
}

func runServe(parent context.Context, o *serveOptions, logw io.Writer) error {
	log, err := newLogger(logw, o.logLevel, o.logFormat)
	if err != nil {
		return err
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, o.cfg, server.WithLogger(log))
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		_ = srv.Stop()
		return err
	}

	select {
	case <-srv.Ready():
	case <-srv.Done():
		return errors.New("event loop exited before it was ready")
	}
	log.Info("relay ready", slog.String("addr", srv.Addr().String()), slog.String("version", version))

	adminDone := make(chan error, 1)
	if o.admin != "" {
		admin, err := control.ListenAdmin(o.admin,
			control.NewAdminRouter(srv.Metrics(), srv.Probes(), srv.IsAlive), log)
		if err != nil {
			_ = srv.Stop()
			return fmt.Errorf("admin listen: %w", err)
		}
		go func() { adminDone <- admin.Serve(ctx) }()
	} else {
		close(adminDone)
	}

	select {
	case <-ctx.Done():
		log.Info("signal received, stopping")
	case <-srv.Done():
		log.Warn("event loop exited on its own")
	}
	stop()

	if err := srv.Stop(); err != nil {
		return err
	}
	select {
	case err := <-adminDone:
		if err != nil {
			log.Warn("admin server error", slog.Any("error", err))
		}
	case <-time.After(5 * time.Second):
		log.Warn("admin server did not stop in time")
	}
	return nil
}
