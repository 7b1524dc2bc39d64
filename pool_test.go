package http2

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPooledConnScoreDegradesWithErrors(t *testing.T) {
	fresh := &pooledConn{lastUsed: time.Now()}
	for i := 0; i < 10; i++ {
		fresh.recordRequest(nil)
	}

	flaky := &pooledConn{lastUsed: time.Now()}
	for i := 0; i < 10; i++ {
		if i < 5 {
			flaky.recordRequest(ErrConnectionClosed)
		} else {
			flaky.recordRequest(nil)
		}
	}

	require.Greater(t, fresh.score(), flaky.score())
}

func TestPooledConnScoreDegradesWithLatency(t *testing.T) {
	fast := &pooledConn{lastUsed: time.Now()}
	fast.recordRequest(nil)
	fast.recordRTT(5 * time.Millisecond)

	slow := &pooledConn{lastUsed: time.Now()}
	slow.recordRequest(nil)
	slow.recordRTT(500 * time.Millisecond)

	require.Greater(t, fast.score(), slow.score())
}

func TestPooledConnScoreIdleBonus(t *testing.T) {
	idle := &pooledConn{lastUsed: time.Now()}
	stale := &pooledConn{lastUsed: time.Now().Add(-time.Minute)}

	require.GreaterOrEqual(t, idle.score(), stale.score())
}

func TestOriginPoolALPNCache(t *testing.T) {
	p := newOriginPool(origin{scheme: "https", host: "example.com:443"}, PoolConfig{})

	_, ok := p.cachedALPN("example.com:443")
	require.False(t, ok)

	p.cacheALPN("example.com:443", "http/1.1")

	proto, ok := p.cachedALPN("example.com:443")
	require.True(t, ok)
	require.Equal(t, "http/1.1", proto)
}

func TestOriginPoolALPNCacheExpires(t *testing.T) {
	p := newOriginPool(origin{scheme: "https", host: "example.com:443"}, PoolConfig{ALPNCacheTTL: time.Millisecond})

	p.cacheALPN("example.com:443", "h2")
	time.Sleep(5 * time.Millisecond)

	_, ok := p.cachedALPN("example.com:443")
	require.False(t, ok)
}

func TestOriginPoolDefaults(t *testing.T) {
	p := newOriginPool(origin{scheme: "https", host: "example.com:443"}, PoolConfig{})
	require.Equal(t, 4, p.cfg.MaxConns)
	require.Equal(t, time.Hour, p.cfg.ALPNCacheTTL)
}

func TestOriginString(t *testing.T) {
	o := origin{scheme: "https", host: "example.com:443"}
	require.Equal(t, "https://example.com:443", o.String())
}
