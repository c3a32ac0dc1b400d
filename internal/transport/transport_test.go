package transport_test

import (
	"context"
	"errors"
	"testing"

	"github.com/momentics/hioload-relay/api"
	"github.com/momentics/hioload-relay/internal/transport"
	"github.com/stretchr/testify/require"
)

func TestIsWildcard(t *testing.T) {
	for _, h := range []string{"", "0.0.0.0", "*", "INADDR_ANY"} {
		require.True(t, transport.IsWildcard(h), h)
	}
	for _, h := range []string{"127.0.0.1", "localhost", "::"} {
		require.False(t, transport.IsWildcard(h), h)
	}
}

func TestResolveIPv4(t *testing.T) {
	ctx := context.Background()

	ip, err := transport.ResolveIPv4(ctx, "INADDR_ANY")
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0", ip.String())
	require.Len(t, ip, 4)

	ip, err = transport.ResolveIPv4(ctx, "127.0.0.1")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", ip.String())

	ip, err = transport.ResolveIPv4(ctx, "localhost")
	require.NoError(t, err)
	require.True(t, ip.IsLoopback())
}

func TestResolveIPv4Failures(t *testing.T) {
	ctx := context.Background()

	_, err := transport.ResolveIPv4(ctx, "::1")
	require.True(t, errors.Is(err, api.ErrResolve))

	_, err = transport.ResolveIPv4(ctx, "no-such-host.invalid")
	require.True(t, errors.Is(err, api.ErrResolve))
}
