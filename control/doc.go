// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics, debug introspection and the admin HTTP surface of the
// relay server.
//
// Provides:
//   - Prometheus counters and gauges for the event loop (Metrics)
//   - Named debug probes evaluated on demand (DebugProbes)
//   - A chi router exposing /metrics, /healthz and /debug/probes
package control
