package adapters_test

import (
	"testing"

	"github.com/momentics/hioload-relay/adapters"
	"github.com/momentics/hioload-relay/control"
	"github.com/stretchr/testify/require"
)

func TestControlAdapterStats(t *testing.T) {
	ctrl := adapters.NewControlAdapter(nil, nil)
	m := ctrl.Metrics()
	m.Accepted.Add(2)
	m.Active.Set(1)
	m.ConnClosed(control.ReasonEOF)

	ctrl.RegisterDebugProbe("relay.state", func() any { return "running" })

	stats := ctrl.Stats()
	require.Equal(t, 2.0, stats["relay_connections_accepted_total"])
	require.Equal(t, 0.0, stats["relay_connections_active"])
	require.Equal(t, 1.0, stats["relay_connections_closed_total{reason=eof}"])
	require.Equal(t, "running", stats["debug.relay.state"])
	require.Contains(t, stats, "debug.platform.cpus")
}
