package http2

import (
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fastrand"
)

// origin identifies the (scheme, host) a pool of connections serves.
// Port is whatever net.SplitHostPort leaves in host, matching the
// "host:port" shape fasthttp.HostClient.Addr already uses.
type origin struct {
	scheme, host string
}

func (o origin) String() string {
	return fmt.Sprintf("%s://%s", o.scheme, o.host)
}

// PoolConfig configures an originPool.
type PoolConfig struct {
	// MaxConns bounds how many live HTTP/2 connections this pool keeps
	// open to its origin. Zero uses a default of 4.
	MaxConns int
	// PingInterval forwarded to every Conn this pool dials.
	PingInterval time.Duration
	// OnRTT forwarded to every Conn this pool dials.
	OnRTT func(time.Duration)
	// Dialer, if set, is reused for every dial instead of building a
	// fresh one per connection (keeps a single TLSConfig/ALPN result).
	Dialer *Dialer
	// ALPNCacheTTL bounds how long a negotiated protocol is trusted
	// before the pool re-probes ALPN on the next acquire. Zero uses a
	// default of one hour.
	ALPNCacheTTL time.Duration
}

// pooledConn is one scored entry in an originPool.
type pooledConn struct {
	conn *Conn

	mu        sync.Mutex
	requests  int64
	errors    int64
	totalRTT  time.Duration
	rttSample int64
	lastUsed  time.Time
	createdAt time.Time
}

// score implements the pool eviction/selection heuristic: start at 100,
// subtract for error rate and latency, add a small bonus when the
// connection was last used less than two seconds ago.
func (pc *pooledConn) score() int {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	s := 100.0

	if pc.requests > 0 {
		errRate := float64(pc.errors) / float64(pc.requests)
		s -= errRate * 60

		if pc.rttSample > 0 {
			avgMs := float64(pc.totalRTT/time.Millisecond) / float64(pc.rttSample)
			s -= avgMs / 10
		}
	}

	idleFor := time.Since(pc.lastUsed)
	if idleFor < 2*time.Second {
		s += 5
	}

	// a small random jitter (0-2 points) breaks exact ties across
	// concurrent acquire calls.
	s += float64(fastrand.Uint32n(3))

	if s < 0 {
		s = 0
	}

	return int(s)
}

func (pc *pooledConn) recordRequest(err error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	pc.requests++
	if err != nil {
		pc.errors++
	}
	pc.lastUsed = time.Now()
}

func (pc *pooledConn) recordRTT(d time.Duration) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	pc.totalRTT += d
	pc.rttSample++
}

type alpnCacheEntry struct {
	proto string
	until time.Time
}

// originPool owns every HTTP/2 connection (and, on ALPN fallback, the
// HTTP/1.1 client) this process keeps open to one origin.
type originPool struct {
	origin origin
	cfg    PoolConfig

	mu    sync.Mutex
	conns []*pooledConn

	alpnMu    sync.Mutex
	alpn      map[string]alpnCacheEntry
	h1Clients map[string]*fasthttp.HostClient
}

func newOriginPool(o origin, cfg PoolConfig) *originPool {
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 4
	}
	if cfg.ALPNCacheTTL <= 0 {
		cfg.ALPNCacheTTL = time.Hour
	}

	return &originPool{
		origin:    o,
		cfg:       cfg,
		alpn:      make(map[string]alpnCacheEntry),
		h1Clients: make(map[string]*fasthttp.HostClient),
	}
}

// adopt registers an already-dialed Conn (e.g. one ConfigureClient just
// used to probe ALPN) as a pool member instead of dialing a second one.
func (p *originPool) adopt(c *Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.conns = append(p.conns, &pooledConn{conn: c, createdAt: time.Now(), lastUsed: time.Now()})
	p.cacheALPN(p.origin.host, "h2")
}

func (p *originPool) cacheALPN(addr, proto string) {
	p.alpnMu.Lock()
	p.alpn[addr] = alpnCacheEntry{proto: proto, until: time.Now().Add(p.cfg.ALPNCacheTTL)}
	p.alpnMu.Unlock()
}

func (p *originPool) cachedALPN(addr string) (string, bool) {
	p.alpnMu.Lock()
	defer p.alpnMu.Unlock()

	e, ok := p.alpn[addr]
	if !ok || time.Now().After(e.until) {
		return "", false
	}
	return e.proto, true
}

// acquire returns the highest-scoring live connection, dialing a new one
// if under MaxConns and none are idle-cheap enough, or evicting the
// lowest scorer to make room.
func (p *originPool) acquire() (*pooledConn, error) {
	if proto, ok := p.cachedALPN(p.origin.host); ok && proto != "h2" {
		return nil, ErrServerSupport
	}

	p.mu.Lock()
	if len(p.conns) > 0 {
		best := p.conns[0]
		bestScore := best.score()

		for _, pc := range p.conns[1:] {
			if pc.conn.Closed() {
				continue
			}
			if s := pc.score(); s > bestScore {
				best, bestScore = pc, s
			}
		}

		if !best.conn.Closed() && (len(p.conns) >= p.cfg.MaxConns || bestScore >= 80) {
			p.mu.Unlock()
			return best, nil
		}
	}
	p.mu.Unlock()

	pc, err := p.dial()
	if err != nil {
		if err == ErrServerSupport {
			p.cacheALPN(p.origin.host, "http/1.1")
		}
		return nil, err
	}

	p.mu.Lock()
	if len(p.conns) >= p.cfg.MaxConns {
		p.evictLowest()
	}
	p.conns = append(p.conns, pc)
	p.mu.Unlock()

	p.cacheALPN(p.origin.host, "h2")

	return pc, nil
}

// evictLowest must be called with p.mu held.
func (p *originPool) evictLowest() {
	if len(p.conns) == 0 {
		return
	}

	worst := 0
	worstScore := p.conns[0].score()
	for i, pc := range p.conns[1:] {
		if s := pc.score(); s < worstScore {
			worst, worstScore = i+1, s
		}
	}

	_ = p.conns[worst].conn.Close()
	p.conns = append(p.conns[:worst], p.conns[worst+1:]...)
}

func (p *originPool) dial() (*pooledConn, error) {
	d := p.cfg.Dialer
	if d == nil {
		d = &Dialer{Addr: p.origin.host, TLSConfig: &tls.Config{}}
	}

	c, err := d.Dial(ConnOpts{PingInterval: p.cfg.PingInterval, OnRTT: p.cfg.OnRTT})
	if err != nil {
		return nil, err
	}

	return &pooledConn{conn: c, createdAt: time.Now(), lastUsed: time.Now()}, nil
}

// fallbackClient returns (building on first use) the pooled HTTP/1.1
// fasthttp.HostClient this origin falls back to when ALPN doesn't
// negotiate h2.
func (p *originPool) fallbackClient() *fasthttp.HostClient {
	p.alpnMu.Lock()
	defer p.alpnMu.Unlock()

	hc, ok := p.h1Clients[p.origin.host]
	if !ok {
		hc = &fasthttp.HostClient{
			Addr:  p.origin.host,
			IsTLS: p.origin.scheme == "https",
		}
		p.h1Clients[p.origin.host] = hc
	}
	return hc
}

// Do sends req over this pool's best HTTP/2 connection, or falls back to
// HTTP/1.1 transparently once ALPN has ruled HTTP/2 out.
func (p *originPool) Do(req *fasthttp.Request, res *fasthttp.Response) error {
	pc, err := p.acquire()
	if err != nil {
		if err == ErrServerSupport {
			return p.fallbackClient().Do(req, res)
		}
		return err
	}

	ctx := AcquireCtx(req, res)

	if pc.conn.Closed() {
		return ErrConnectionClosed
	}
	pc.conn.Write(ctx)

	err = <-ctx.Err
	pc.recordRequest(err)

	return err
}

// doFastHTTP adapts Do to fasthttp.HostClient's Transport signature
// (func(*Request, *Response) error), used by ConfigureClient.
func (p *originPool) doFastHTTP(req *fasthttp.Request, res *fasthttp.Response) error {
	return p.Do(req, res)
}

// ConnSnapshot summarizes one pooled connection's health for callers
// that want to export their own metrics.
type ConnSnapshot struct {
	Score        int
	Requests     int64
	Errors       int64
	CreatedAt    time.Time
	LastUsed     time.Time
}

// ScoreSnapshot returns a point-in-time view of every connection this
// pool currently holds open.
func (p *originPool) ScoreSnapshot() []ConnSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]ConnSnapshot, 0, len(p.conns))
	for _, pc := range p.conns {
		score := pc.score()
		pc.mu.Lock()
		out = append(out, ConnSnapshot{
			Score:     score,
			Requests:  pc.requests,
			Errors:    pc.errors,
			CreatedAt: pc.createdAt,
			LastUsed:  pc.lastUsed,
		})
		pc.mu.Unlock()
	}
	return out
}

// Close closes every connection this pool holds.
func (p *originPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for _, pc := range p.conns {
		if err := pc.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.conns = nil
	return firstErr
}
