// Package adapters
// Author: momentics <momentics@gmail.com>
//
// Control adapter implementing api.Control on top of the control package:
// Prometheus collectors plus debug probes behind one Stats snapshot.

package adapters

import (
	"github.com/momentics/hioload-relay/api"
	"github.com/momentics/hioload-relay/control"
	dto "github.com/prometheus/client_model/go"
)

type ControlAdapter struct {
	metrics *control.Metrics
	debug   *control.DebugProbes
}

var _ api.Control = (*ControlAdapter)(nil)

// NewControlAdapter wires metrics and debug probes, registering the
// platform probes on the way.
func NewControlAdapter(metrics *control.Metrics, debug *control.DebugProbes) *ControlAdapter {
	if metrics == nil {
		metrics = control.NewMetrics()
	}
	if debug == nil {
		debug = control.NewDebugProbes()
	}
	control.RegisterPlatformProbes(debug)
	return &ControlAdapter{metrics: metrics, debug: debug}
}

// Metrics returns the collectors.
func (c *ControlAdapter) Metrics() *control.Metrics {
	return c.metrics
}

// Debug returns the probe registry.
func (c *ControlAdapter) Debug() *control.DebugProbes {
	return c.debug
}

// Stats flattens gathered counters and gauges (labelled series as
// name{label=value}) and merges probe output under "debug.".
func (c *ControlAdapter) Stats() map[string]any {
	combined := make(map[string]any)
	if families, err := c.metrics.Registry().Gather(); err == nil {
		for _, mf := range families {
			for _, m := range mf.GetMetric() {
				combined[seriesName(mf.GetName(), m)] = metricValue(m)
			}
		}
	}
	for k, v := range c.debug.DumpState() {
		combined["debug."+k] = v
	}
	return combined
}

func (c *ControlAdapter) RegisterDebugProbe(name string, fn func() any) {
	c.debug.RegisterProbe(name, fn)
}

func seriesName(name string, m *dto.Metric) string {
	for _, lp := range m.GetLabel() {
		name += "{" + lp.GetName() + "=" + lp.GetValue() + "}"
	}
	return name
}

func metricValue(m *dto.Metric) float64 {
	switch {
	case m.Counter != nil:
		return m.GetCounter().GetValue()
	case m.Gauge != nil:
		return m.GetGauge().GetValue()
	case m.Untyped != nil:
		return m.GetUntyped().GetValue()
	}
	return 0
}
