package http2

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/valyala/fasthttp"
)

// ClientOpts configures a *Client built by ConfigureClient.
type ClientOpts struct {
	// OnRTT, if set, is called after every acknowledged PING with the
	// measured round-trip time for every connection this client opens.
	OnRTT func(time.Duration)
	// PingInterval overrides DefaultPingInterval for connections opened
	// by this client.
	PingInterval time.Duration
}

func configureDialer(d *Dialer) {
	if d.TLSConfig == nil {
		d.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			MaxVersion: tls.VersionTLS13,
		}
	}

	tlsConfig := d.TLSConfig

	emptyServerName := len(tlsConfig.ServerName) == 0
	if emptyServerName {
		host, _, err := net.SplitHostPort(d.Addr)
		if err != nil {
			host = d.Addr
		}
		tlsConfig.ServerName = host
	}

	tlsConfig.NextProtos = append(tlsConfig.NextProtos, "h2")
}

// ConfigureClient probes host for HTTP/2 support and, if it's there,
// rewires c's Transport to run HTTP/2 requests over a pooled *Conn
// instead of fasthttp's own HTTP/1.1 transport. On ErrServerSupport, c
// is left untouched and the caller should keep using it as plain
// HTTP/1.1.
func ConfigureClient(c *fasthttp.HostClient, opts ClientOpts) error {
	emptyServerName := c.TLSConfig != nil && len(c.TLSConfig.ServerName) == 0

	d := &Dialer{
		Addr:         c.Addr,
		TLSConfig:    c.TLSConfig,
		PingInterval: opts.PingInterval,
	}

	probe, err := d.Dial(ConnOpts{PingInterval: opts.PingInterval, OnRTT: opts.OnRTT})
	if err != nil {
		if err == ErrServerSupport && c.TLSConfig != nil {
			for i := range c.TLSConfig.NextProtos {
				if c.TLSConfig.NextProtos[i] == "h2" {
					c.TLSConfig.NextProtos = append(c.TLSConfig.NextProtos[:i], c.TLSConfig.NextProtos[i+1:]...)
					break
				}
			}
			if emptyServerName {
				c.TLSConfig.ServerName = ""
			}
		}
		return err
	}

	c.IsTLS = true
	c.TLSConfig = d.TLSConfig

	pool := newOriginPool(origin{scheme: "https", host: c.Addr}, PoolConfig{
		PingInterval: opts.PingInterval,
		OnRTT:        opts.OnRTT,
		Dialer:       d,
	})
	pool.adopt(probe)

	c.Transport = pool.doFastHTTP

	return nil
}
