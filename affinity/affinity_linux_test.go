//go:build linux

package affinity

import (
	"testing"

	"github.com/momentics/hioload-relay/api"
	"github.com/stretchr/testify/require"
)

func TestPinRestrictsThread(t *testing.T) {
	allowed, err := Current()
	require.NoError(t, err)
	require.NotEmpty(t, allowed)

	type result struct {
		pinErr error
		cpus   []int
		err    error
	}
	out := make(chan result, 1)
	go func() {
		// the thread stays locked and is discarded when this goroutine exits
		if err := Pin(allowed[0]); err != nil {
			out <- result{pinErr: err}
			return
		}
		cpus, err := Current()
		out <- result{cpus: cpus, err: err}
	}()

	r := <-out
	if r.pinErr != nil {
		t.Skipf("pin not permitted here: %v", r.pinErr)
	}
	require.NoError(t, r.err)
	require.Equal(t, []int{allowed[0]}, r.cpus)
}

func TestPinRejectsOutOfRange(t *testing.T) {
	err := Pin(-1)
	require.ErrorIs(t, err, api.ErrInvalidArgument)
	err = Pin(maxCPUs)
	require.ErrorIs(t, err, api.ErrInvalidArgument)
}
