package http2

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientPoolForDefaultsPort(t *testing.T) {
	cl := NewClient(ClientConfig{})

	u, err := url.Parse("https://example.com/path")
	require.NoError(t, err)

	p, err := cl.poolFor(u)
	require.NoError(t, err)
	require.Equal(t, "example.com:443", p.origin.host)

	// a second call for the same origin must reuse the pool.
	p2, err := cl.poolFor(u)
	require.NoError(t, err)
	require.Same(t, p, p2)
}

func TestClientPoolForKeepsExplicitPort(t *testing.T) {
	cl := NewClient(ClientConfig{})

	u, err := url.Parse("http://example.com:8080/")
	require.NoError(t, err)

	p, err := cl.poolFor(u)
	require.NoError(t, err)
	require.Equal(t, "example.com:8080", p.origin.host)
}

func TestClientRequestAfterCloseFails(t *testing.T) {
	cl := NewClient(ClientConfig{})
	require.NoError(t, cl.Close())

	_, err := cl.Request("GET", "https://example.com/", nil, nil)
	require.ErrorIs(t, err, ErrConnectionClosed)
}
