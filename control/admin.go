// control/admin.go
// Author: momentics <momentics@gmail.com>
//
// Admin HTTP surface: metrics, liveness and debug probes.

package control

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// NewAdminRouter builds the admin routes. alive backs /healthz.
func NewAdminRouter(m *Metrics, probes *DebugProbes, alive func() bool) http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", m.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if alive == nil || !alive() {
			http.Error(w, "not running", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/debug/probes", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, probes.DumpState())
	})
	r.Get("/debug/probes/{name}", func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "name")
		v, ok := probes.Probe(name)
		if !ok {
			http.Error(w, "unknown probe "+name, http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{name: v})
	})
	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// AdminServer serves the admin router until its context is cancelled.
type AdminServer struct {
	srv *http.Server
	ln  net.Listener
	log *slog.Logger
}

// ListenAdmin binds addr for the admin router.
func ListenAdmin(addr string, h http.Handler, log *slog.Logger) (*AdminServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &AdminServer{
		srv: &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
		log: log.With(slog.String("component", "admin")),
	}, nil
}

// Addr returns the bound address.
func (a *AdminServer) Addr() net.Addr {
	return a.ln.Addr()
}

// Serve blocks until ctx is cancelled, then shuts the HTTP server down.
func (a *AdminServer) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("admin listening", slog.String("addr", a.ln.Addr().String()))
		errCh <- a.srv.Serve(a.ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	return nil
}
