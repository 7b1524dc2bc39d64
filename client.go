package http2

import (
	"crypto/tls"
	"net/url"
	"sync"
	"time"

	"github.com/corehttp/h2c/h2clog"
	"github.com/valyala/fasthttp"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// TLSConfig is cloned per-origin and given "h2" ALPN support.
	TLSConfig *tls.Config
	// PoolConfig configures every per-origin pool the client creates.
	PoolConfig PoolConfig
	// Logger receives diagnostic output; defaults to h2clog.Default() if nil.
	Logger h2clog.Logger
}

// Client is the embeddable HTTP/2 client: a set of per-origin connection
// pools, each independently negotiating ALPN and falling back to
// HTTP/1.1 when the origin doesn't speak HTTP/2.
type Client struct {
	cfg ClientConfig
	log h2clog.Logger

	mu     sync.Mutex
	pools  map[string]*originPool
	closed bool
}

// NewClient builds a Client. The zero ClientConfig is a valid default.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Logger == nil {
		cfg.Logger = h2clog.Default()
	}

	return &Client{
		cfg:   cfg,
		log:   cfg.Logger,
		pools: make(map[string]*originPool),
	}
}

func (cl *Client) poolFor(u *url.URL) (*originPool, error) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.closed {
		return nil, ErrConnectionClosed
	}

	key := u.Scheme + "://" + u.Host
	if p, ok := cl.pools[key]; ok {
		return p, nil
	}

	tlsCfg := cl.cfg.TLSConfig
	if tlsCfg == nil {
		tlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	} else {
		tlsCfg = tlsCfg.Clone()
	}

	host := u.Host
	if u.Port() == "" {
		if u.Scheme == "https" {
			host += ":443"
		} else {
			host += ":80"
		}
	}

	pcfg := cl.cfg.PoolConfig
	pcfg.Dialer = &Dialer{Addr: host, TLSConfig: tlsCfg, PingInterval: pcfg.PingInterval}

	p := newOriginPool(origin{scheme: u.Scheme, host: host}, pcfg)
	cl.pools[key] = p

	return p, nil
}

// Request performs a generic HTTP/2 (or HTTP/1.1-fallback) request.
func (cl *Client) Request(method, rawURL string, headers map[string]string, body []byte) (*fasthttp.Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	pool, err := cl.poolFor(u)
	if err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	res := fasthttp.AcquireResponse()

	req.SetRequestURI(rawURL)
	req.Header.SetMethod(method)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if len(body) > 0 {
		req.SetBody(body)
	}

	if err := pool.Do(req, res); err != nil {
		fasthttp.ReleaseResponse(res)
		cl.log.Printf("h2c: %s %s: %s", method, rawURL, err)
		return nil, err
	}

	return res, nil
}

// Get issues a GET request.
func (cl *Client) Get(rawURL string, headers map[string]string) (*fasthttp.Response, error) {
	return cl.Request(fasthttp.MethodGet, rawURL, headers, nil)
}

// Post issues a POST request with body.
func (cl *Client) Post(rawURL string, headers map[string]string, body []byte) (*fasthttp.Response, error) {
	return cl.Request(fasthttp.MethodPost, rawURL, headers, body)
}

// Put issues a PUT request with body.
func (cl *Client) Put(rawURL string, headers map[string]string, body []byte) (*fasthttp.Response, error) {
	return cl.Request(fasthttp.MethodPut, rawURL, headers, body)
}

// Delete issues a DELETE request.
func (cl *Client) Delete(rawURL string, headers map[string]string) (*fasthttp.Response, error) {
	return cl.Request(fasthttp.MethodDelete, rawURL, headers, nil)
}

// Head issues a HEAD request.
func (cl *Client) Head(rawURL string, headers map[string]string) (*fasthttp.Response, error) {
	return cl.Request(fasthttp.MethodHead, rawURL, headers, nil)
}

// Options issues an OPTIONS request.
func (cl *Client) Options(rawURL string, headers map[string]string) (*fasthttp.Response, error) {
	return cl.Request(fasthttp.MethodOptions, rawURL, headers, nil)
}

// Patch issues a PATCH request with body.
func (cl *Client) Patch(rawURL string, headers map[string]string, body []byte) (*fasthttp.Response, error) {
	return cl.Request(fasthttp.MethodPatch, rawURL, headers, body)
}

// Ping measures round-trip time to origin by acquiring a connection (if
// needed) and waiting for its next keepalive PING to be acknowledged.
func (cl *Client) Ping(rawURL string, timeout time.Duration) (time.Duration, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, err
	}

	pool, err := cl.poolFor(u)
	if err != nil {
		return 0, err
	}

	pc, err := pool.acquire()
	if err != nil {
		return 0, err
	}

	var (
		mu  sync.Mutex
		rtt time.Duration
		got = make(chan struct{}, 1)
	)

	prevOnRTT := pc.conn.onRTT
	pc.conn.onRTT = func(d time.Duration) {
		mu.Lock()
		rtt = d
		mu.Unlock()
		select {
		case got <- struct{}{}:
		default:
		}
		if prevOnRTT != nil {
			prevOnRTT(d)
		}
	}

	select {
	case <-got:
		mu.Lock()
		defer mu.Unlock()
		return rtt, nil
	case <-time.After(timeout):
		return 0, ErrRequestTimeout
	}
}

// Close closes every pool this client opened.
func (cl *Client) Close() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	cl.closed = true

	var firstErr error
	for _, p := range cl.pools {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
