package fake

import (
	"errors"
	"testing"
	"time"

	"github.com/momentics/hioload-relay/api"
	"github.com/momentics/hioload-relay/reactor"
	"github.com/stretchr/testify/require"
)

func TestReactorScript(t *testing.T) {
	r := NewReactor()
	require.NoError(t, r.Register(3, reactor.EventRead))
	require.Error(t, r.Register(3, reactor.EventRead))
	require.NoError(t, r.Modify(3, reactor.EventRead|reactor.EventWrite))
	f, ok := r.Interest(3)
	require.True(t, ok)
	require.Equal(t, reactor.EventRead|reactor.EventWrite, f)

	r.Push(reactor.Event{Fd: 3, Flags: reactor.EventRead}, reactor.Event{Fd: 4, Flags: reactor.EventHangup})
	events := make([]reactor.Event, 1)
	n, err := r.Wait(events, time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 1, n, "batch is truncated to the buffer")
	require.Equal(t, 3, events[0].Fd)

	n, err = r.Wait(events, time.Millisecond)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, 2, r.Waits())

	boom := errors.New("boom")
	r.FailWait(boom)
	_, err = r.Wait(events, time.Millisecond)
	require.ErrorIs(t, err, boom)

	full := errors.New("no space")
	r.FailRegister(full)
	require.ErrorIs(t, r.Register(5, reactor.EventRead), full)
	_, ok = r.Interest(5)
	require.False(t, ok)
	r.FailRegister(nil)
	require.NoError(t, r.Register(5, reactor.EventRead))

	require.NoError(t, r.Unregister(3))
	require.Error(t, r.Unregister(3))
	require.NoError(t, r.Close())
	require.True(t, r.Closed())
	require.ErrorIs(t, r.Close(), api.ErrClosed)
}
