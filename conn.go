package http2

import (
	"bufio"
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/bytebufferpool"
	"github.com/valyala/fasthttp"
)

// ConnOpts configures a single Conn.
type ConnOpts struct {
	// PingInterval is how often the connection pings an otherwise-idle
	// peer. Zero uses DefaultPingInterval; ping intervals can't be
	// disabled outright, since they're this client's only dead-peer
	// detector.
	PingInterval time.Duration
	// DisablePingChecking turns off the unacknowledged-ping timeout,
	// leaving PINGs purely informational (used by OnRTT).
	DisablePingChecking bool
	// OnDisconnect is called once, from whichever goroutine notices the
	// connection died, when the Conn closes.
	OnDisconnect func(c *Conn)
	// OnRTT, if set, is called after every acknowledged PING with the
	// measured round-trip time.
	OnRTT func(time.Duration)
	// RapidResetResetsPerMinute bounds how many RST_STREAM frames this
	// connection accepts from the peer in a trailing one-minute window;
	// past it, the connection sends GOAWAY(ENHANCE_YOUR_CALM) and closes
	// (CVE-2023-44487). Zero uses a default of 1000.
	RapidResetResetsPerMinute int
	// RapidResetStreamsPerSecond bounds how many streams this connection
	// will open in a trailing one-second window. Zero uses a default of
	// 100. Matched against spec.md's client-side rapid-reset self-throttle:
	// a well-behaved client has no reason to open streams faster than this.
	RapidResetStreamsPerSecond int
}

// Handshake writes the connection preface (if preface is true), an
// initial SETTINGS frame, and a connection-level WINDOW_UPDATE sized to
// advertise maxWin beyond the RFC's 64KiB default.
func Handshake(preface bool, bw *bufio.Writer, st *Settings, maxWin int32) error {
	if preface {
		if err := WritePreface(bw); err != nil {
			return err
		}
	}

	frh := AcquireFrameHeader()
	defer ReleaseFrameHeader(frh)

	st2 := &Settings{}
	st.CopyTo(st2)
	frh.SetBody(st2)

	if _, err := frh.WriteTo(bw); err != nil {
		return err
	}

	if maxWin > 0 {
		frh2 := AcquireFrameHeader()
		defer ReleaseFrameHeader(frh2)

		wu := AcquireFrame(FrameWindowUpdate).(*WindowUpdate)
		wu.SetIncrement(maxWin)
		frh2.SetBody(wu)

		if _, err := frh2.WriteTo(bw); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// WritePreface writes the 24-byte client connection preface.
//
// https://httpwg.org/specs/rfc7540.html#ConnectionHeader
func WritePreface(bw *bufio.Writer) error {
	_, err := bw.Write(http2Preface)
	return err
}

// Conn is one raw HTTP/2 connection, already past ALPN/TLS, speaking
// framing+HPACK directly over c.
type Conn struct {
	c net.Conn

	br *bufio.Reader
	bw *bufio.Writer

	enc *HPACK
	dec *HPACK

	nextID uint32

	serverWindow *flowWindow
	connWindow   *flowWindow
	maxWindow    int32

	streams *streamTable

	// headerBuf accumulates a HEADERS frame's fragment across however
	// many CONTINUATION frames follow it, since HPACK requires the whole
	// header block be decoded as one contiguous byte stream even though
	// it may arrive split across several frames.
	headerBuf *bytebufferpool.ByteBuffer
	// continuationBytes counts the bytes contributed by CONTINUATION
	// frames (not the initiating HEADERS frame) to the block currently
	// accumulating in headerBuf, reset alongside it.
	continuationBytes int

	openStreams int32

	// peerLastStreamID and goingAway implement GOAWAY partial-completion:
	// once goingAway is set, streams at or below peerLastStreamID are
	// left to finish from frames already in flight, every other stream is
	// failed as a retryable REFUSED_STREAM, and no new stream may open.
	peerLastStreamID uint32
	goingAway        uint64

	current Settings
	serverS Settings

	reqQueued sync.Map

	in  chan *Ctx
	out chan *FrameHeader

	pingInterval time.Duration
	pingSentAt   time.Time
	onRTT        func(time.Duration)

	unacks      int
	disableAcks bool

	lastErr      error
	onDisconnect func(*Conn)

	closed uint64
}

// NewConn wraps c (already connected, past the TLS/ALPN handshake) as an
// HTTP/2 connection. Call Handshake before using it.
func NewConn(c net.Conn, opts ConnOpts) *Conn {
	const initialWindow = 1 << 20

	nc := &Conn{
		c:            c,
		br:           bufio.NewReaderSize(c, 4096),
		bw:           bufio.NewWriterSize(c, maxFrameSize),
		enc:          AcquireHPACK(),
		dec:          AcquireHPACK(),
		nextID:       1,
		serverWindow: newFlowWindow(1 << 16),
		connWindow:   newFlowWindow(initialWindow),
		maxWindow:    initialWindow,
		streams:      newStreamTable(opts.RapidResetResetsPerMinute, opts.RapidResetStreamsPerSecond),
		headerBuf:    new(bytebufferpool.ByteBuffer),
		in:           make(chan *Ctx, 128),
		out:          make(chan *FrameHeader, 128),
		pingInterval: opts.PingInterval,
		onRTT:        opts.OnRTT,
		disableAcks:  opts.DisablePingChecking,
		onDisconnect: opts.OnDisconnect,
	}

	nc.current.SetMaxWindowSize(initialWindow)
	nc.current.SetPush(false)
	nc.current.SetMaxConcurrentStreams(defaultConcurrentStreams)

	nc.serverS.SetMaxConcurrentStreams(defaultConcurrentStreams)
	nc.serverS.SetMaxWindowSize(1 << 16)

	return nc
}

// Dialer dials a TCP+TLS connection and negotiates HTTP/2 via ALPN.
type Dialer struct {
	// Addr is the server's address in "host:port" form.
	Addr string
	// TLSConfig is the TLS configuration to dial with. If nil, a default
	// one advertising "h2" via ALPN is built on the first Dial call.
	TLSConfig *tls.Config
	// PingInterval is forwarded to ConnOpts on Dial.
	PingInterval time.Duration
}

func (d *Dialer) tryDial() (net.Conn, error) {
	if d.TLSConfig == nil || !hasALPN(d.TLSConfig, "h2") {
		configureDialer(d)
	}

	tcpAddr, err := net.ResolveTCPAddr("tcp", d.Addr)
	if err != nil {
		return nil, err
	}

	c, err := net.DialTCP("tcp", nil, tcpAddr)
	if err != nil {
		return nil, err
	}

	tlsConn := tls.Client(c, d.TLSConfig)
	if err := tlsConn.Handshake(); err != nil {
		_ = c.Close()
		return nil, err
	}

	if tlsConn.ConnectionState().NegotiatedProtocol != "h2" {
		_ = c.Close()
		return nil, ErrServerSupport
	}

	return tlsConn, nil
}

func hasALPN(cfg *tls.Config, proto string) bool {
	for _, p := range cfg.NextProtos {
		if p == proto {
			return true
		}
	}
	return false
}

// Dial establishes the TCP+TLS connection and performs the HTTP/2
// handshake. The only expected error from ALPN rejection is
// ErrServerSupport.
func (d *Dialer) Dial(opts ConnOpts) (*Conn, error) {
	c, err := d.tryDial()
	if err != nil {
		return nil, err
	}

	if opts.PingInterval == 0 {
		opts.PingInterval = d.PingInterval
	}

	nc := NewConn(c, opts)
	if err := nc.Handshake(); err != nil {
		return nil, err
	}

	return nc, nil
}

// SetOnDisconnect sets the callback fired when the connection closes.
func (c *Conn) SetOnDisconnect(cb func(*Conn)) {
	c.onDisconnect = cb
}

// LastErr returns the error that caused the connection to close, if any.
func (c *Conn) LastErr() error {
	return c.lastErr
}

// Handshake performs the client-side HTTP/2 handshake: preface,
// SETTINGS, and the peer's SETTINGS reply. On error the TCP connection
// has already been closed.
func (c *Conn) Handshake() error {
	if err := Handshake(true, c.bw, &c.current, c.maxWindow-65535); err != nil {
		_ = c.c.Close()
		return err
	}

	frh, err := ReadFrameFrom(c.br)
	if err != nil {
		_ = c.c.Close()
		return err
	}
	defer ReleaseFrameHeader(frh)

	if frh.Type() != FrameSettings {
		_ = c.c.Close()
		return fmt.Errorf("h2c: expected SETTINGS as first frame, got %s", frh.Type())
	}

	st := frh.Body().(*Settings)
	if !st.Ack() {
		c.applyServerSettings(st)

		ackFrh := AcquireFrameHeader()
		defer ReleaseFrameHeader(ackFrh)

		stRes := AcquireFrame(FrameSettings).(*Settings)
		stRes.SetAck(true)
		ackFrh.SetBody(stRes)

		if _, err := ackFrh.WriteTo(c.bw); err != nil {
			_ = c.Close()
			return err
		}
		if err := c.bw.Flush(); err != nil {
			_ = c.Close()
			return err
		}
	}

	go c.writeLoop()
	go c.readLoop()

	return nil
}

func (c *Conn) applyServerSettings(st *Settings) {
	st.CopyTo(&c.serverS)

	if st.MaxWindowSize() > 0 {
		c.serverWindow = newFlowWindow(int32(st.MaxWindowSize()))
	}
	if st.HeaderTableSize() > 0 && st.HeaderTableSize() <= defaultHeaderTableSize {
		c.enc.SetMaxTableSize(int(st.HeaderTableSize()))
	}
	// the peer's SETTINGS_MAX_HEADER_LIST_SIZE, when advertised, tightens
	// our own decode-side bomb defense — it never loosens it beyond the
	// package default.
	if st.MaxHeaderListSize() > 0 && int(st.MaxHeaderListSize()) < c.dec.MaxDecodedHeaderListSize {
		c.dec.MaxDecodedHeaderListSize = int(st.MaxHeaderListSize())
	}
}

// CanOpenStream reports whether another stream can be opened without
// exceeding the peer's SETTINGS_MAX_CONCURRENT_STREAMS.
func (c *Conn) CanOpenStream() bool {
	if atomic.LoadUint64(&c.goingAway) == 1 {
		return false
	}

	max := c.serverS.MaxConcurrentStreams()
	if max == 0 {
		max = defaultConcurrentStreams
	}
	return atomic.LoadInt32(&c.openStreams) < int32(max)
}

// Closed reports whether the connection has been closed.
func (c *Conn) Closed() bool {
	return atomic.LoadUint64(&c.closed) == 1
}

// Close sends a GOAWAY(NO_ERROR) and closes the underlying connection.
// Safe to call more than once.
func (c *Conn) Close() error {
	return c.closeWithCode(NoError)
}

// closeWithCode sends a GOAWAY carrying code and closes the underlying
// connection. Safe to call more than once; only the first call's code is
// actually sent.
func (c *Conn) closeWithCode(code ErrorCode) error {
	if !atomic.CompareAndSwapUint64(&c.closed, 0, 1) {
		return nil
	}

	close(c.in)

	frh := AcquireFrameHeader()
	defer ReleaseFrameHeader(frh)

	ga := AcquireFrame(FrameGoAway).(*GoAway)
	ga.SetLastStream(0)
	ga.SetCode(code)
	frh.SetBody(ga)

	_, err := frh.WriteTo(c.bw)
	if err == nil {
		err = c.bw.Flush()
	}

	_ = c.c.Close()

	if c.onDisconnect != nil {
		c.onDisconnect(c)
	}

	return err
}

// Write queues req to be sent. Callers must check Closed before calling
// this, since writing to a closed connection's channel panics.
func (c *Conn) Write(r *Ctx) {
	c.in <- r
}

// WriteError wraps a write-loop failure so callers can still unwrap/Is
// against the underlying cause.
type WriteError struct {
	err error
}

func (we WriteError) Error() string { return fmt.Sprintf("h2c: write error: %s", we.err) }
func (we WriteError) Unwrap() error { return we.err }
func (we WriteError) Is(target error) bool {
	return errors.Is(we.err, target)
}
func (we WriteError) As(target interface{}) bool {
	return errors.As(we.err, target)
}

func (c *Conn) writeLoop() {
	defer func() { _ = c.Close() }()

	if c.pingInterval <= 0 {
		c.pingInterval = DefaultPingInterval
	}

	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	var lastErr error

loop:
	for {
		select {
		case r, ok := <-c.in:
			if !ok {
				break loop
			}

			uid, err := c.writeRequest(r.Request)
			if err != nil {
				r.Err <- err

				if errors.Is(err, ErrNotAvailableStreams) {
					continue
				}

				lastErr = WriteError{err}
				break loop
			}

			r.streamID = uid
			c.reqQueued.Store(uid, r)

		case frh := <-c.out:
			if _, err := frh.WriteTo(c.bw); err != nil {
				lastErr = WriteError{err}
				break loop
			}
			if err := c.bw.Flush(); err != nil {
				lastErr = WriteError{err}
				break loop
			}
			ReleaseFrameHeader(frh)

		case <-ticker.C:
			if err := c.writePing(); err != nil {
				lastErr = WriteError{err}
				break loop
			}
		}

		if !c.disableAcks && c.unacks >= 3 {
			lastErr = ErrRequestTimeout
			break loop
		}
	}

	if lastErr == nil {
		lastErr = ErrConnectionClosed
	}

	c.reqQueued.Range(func(_, v interface{}) bool {
		r := v.(*Ctx)
		r.Err <- lastErr
		return true
	})
}

func (c *Conn) finish(r *Ctx, stream uint32, err error) {
	atomic.AddInt32(&c.openStreams, -1)
	c.streams.close(stream)

	r.Err <- err
	c.reqQueued.Delete(stream)
	close(r.Err)

	// once the peer has said it's going away, the connection has nothing
	// left to do once every stream it promised to finish has finished.
	if atomic.LoadUint64(&c.goingAway) == 1 && atomic.LoadInt32(&c.openStreams) <= 0 {
		_ = c.Close()
	}
}

// failStreamsAbove fails every in-flight request whose stream id is
// greater than lastStreamID with err — the retryable half of GOAWAY
// partial-completion (spec.md §4.5): streams at or below lastStreamID
// are left alone to finish from frames already in flight.
func (c *Conn) failStreamsAbove(lastStreamID uint32, err error) {
	c.reqQueued.Range(func(k, v interface{}) bool {
		id := k.(uint32)
		if id > lastStreamID {
			r := v.(*Ctx)
			c.finish(r, id, err)
		}
		return true
	})
}

func (c *Conn) readLoop() {
	defer func() { _ = c.Close() }()

	for {
		frh, err := c.readNext()
		if err != nil {
			c.lastErr = err
			return
		}

		if ri, ok := c.reqQueued.Load(frh.Stream()); ok {
			r := ri.(*Ctx)
			s, _ := c.streams.get(frh.Stream())

			if err := c.readStream(frh, r.Response, s); err != nil {
				c.finish(r, frh.Stream(), err)

				ReleaseFrameHeader(frh)

				if errors.Is(err, ErrFlowControl) {
					return
				}
				continue
			}

			if frh.Flags().Has(FlagEndStream) {
				if s != nil {
					s.recvEndStream()
				}
				c.finish(r, frh.Stream(), nil)
			}
		}

		ReleaseFrameHeader(frh)
	}
}

func (c *Conn) writeRequest(req *fasthttp.Request) (uint32, error) {
	if !c.CanOpenStream() {
		return 0, ErrNotAvailableStreams
	}

	hasBody := len(req.Body()) != 0

	id := atomic.AddUint32(&c.nextID, 2) - 2
	s, tooFast := c.streams.open(id, int32(c.serverS.MaxWindowSize()), time.Now())
	if tooFast {
		_ = c.closeWithCode(EnhanceYourCalm)
		return 0, ErrEnhanceYourCalm
	}

	frh := AcquireFrameHeader()
	defer ReleaseFrameHeader(frh)
	frh.SetStream(id)

	h := AcquireFrame(FrameHeaders).(*Headers)
	frh.SetBody(h)

	hf := AcquireHeaderField()
	defer ReleaseHeaderField(hf)

	hf.SetBytes(StringAuthority, req.URI().Host())
	h.AppendHeaderField(c.enc, hf, true)

	hf.SetBytes(StringMethod, req.Header.Method())
	h.AppendHeaderField(c.enc, hf, true)

	hf.SetBytes(StringPath, req.URI().RequestURI())
	h.AppendHeaderField(c.enc, hf, true)

	hf.SetBytes(StringScheme, req.URI().Scheme())
	h.AppendHeaderField(c.enc, hf, true)

	hf.SetBytes(StringUserAgent, req.Header.UserAgent())
	h.AppendHeaderField(c.enc, hf, true)

	req.Header.VisitAll(func(k, v []byte) {
		if bytes.EqualFold(k, StringUserAgent) {
			return
		}
		hf.SetBytes(ToLower(append([]byte(nil), k...)), v)
		h.AppendHeaderField(c.enc, hf, false)
	})

	h.SetPadding(false)
	h.SetEndStream(!hasBody)
	h.SetEndHeaders(true)

	_, err := frh.WriteTo(c.bw)
	if err == nil && hasBody {
		ReleaseFrame(h)
		err = writeData(c.bw, frh, req.Body())
	}

	if err == nil {
		if err = c.bw.Flush(); err == nil {
			atomic.AddInt32(&c.openStreams, 1)
			// the request, including any body, is now fully written.
			s.openLocal(true)
		}
	}

	if err != nil {
		c.lastErr = err
	}

	return id, err
}

func writeData(bw *bufio.Writer, frh *FrameHeader, body []byte) error {
	const step = 1 << 14

	data := AcquireFrame(FrameData).(*Data)
	frh.SetBody(data)

	var err error
	for i := 0; err == nil && i < len(body); i += step {
		end := i + step
		if end > len(body) {
			end = len(body)
		}

		data.SetEndStream(end == len(body))
		data.SetPadding(false)
		data.SetData(body[i:end])

		_, err = frh.WriteTo(bw)
	}

	if len(body) == 0 {
		data.SetEndStream(true)
		data.SetData(nil)
		_, err = frh.WriteTo(bw)
	}

	return err
}

func (c *Conn) readNext() (*FrameHeader, error) {
	for {
		frh, err := ReadFrameFrom(c.br)
		if err != nil {
			return nil, err
		}

		if frh.Stream() != 0 {
			return frh, nil
		}

		switch frh.Type() {
		case FrameSettings:
			st := frh.Body().(*Settings)
			if !st.Ack() {
				c.handleSettings(st)
			}
		case FrameWindowUpdate:
			wu := frh.Body().(*WindowUpdate)
			if err := c.serverWindow.Grant(wu.Increment()); err != nil {
				ReleaseFrameHeader(frh)
				return nil, err
			}
		case FramePing:
			ping := frh.Body().(*Ping)
			if !ping.Ack() {
				c.handlePing(ping)
			} else {
				c.unacks--
				if c.onRTT != nil && !c.pingSentAt.IsZero() {
					c.onRTT(time.Since(ping.SentAt()))
				}
			}
		case FrameGoAway:
			// partial completion per spec.md §4.5: streams at or below
			// last_stream_id are left to finish from frames already in
			// flight; only streams above it are failed here, as a
			// retryable REFUSED_STREAM. The connection itself doesn't
			// tear down until those surviving streams finish (see
			// finish's goingAway check) or the peer closes the socket.
			ga := frh.Body().(*GoAway)
			atomic.StoreUint32(&c.peerLastStreamID, ga.LastStream())
			atomic.StoreUint64(&c.goingAway, 1)
			c.failStreamsAbove(ga.LastStream(), NewGoAwayError(RefusedStreamError, true))

			if atomic.LoadInt32(&c.openStreams) <= 0 {
				_ = c.Close()
			}
		}

		ReleaseFrameHeader(frh)
	}
}

func (c *Conn) writePing() error {
	frh := AcquireFrameHeader()
	defer ReleaseFrameHeader(frh)

	ping := AcquireFrame(FramePing).(*Ping)
	ping.SetCurrentTime()
	c.pingSentAt = ping.SentAt()

	frh.SetBody(ping)

	_, err := frh.WriteTo(c.bw)
	if err == nil {
		if err = c.bw.Flush(); err == nil {
			c.unacks++
		}
	}

	return err
}

func (c *Conn) handleSettings(st *Settings) {
	c.applyServerSettings(st)

	frh := AcquireFrameHeader()
	stRes := AcquireFrame(FrameSettings).(*Settings)
	stRes.SetAck(true)
	frh.SetBody(stRes)

	c.out <- frh
}

func (c *Conn) handlePing(ping *Ping) {
	frh := AcquireFrameHeader()
	ping.SetAck(true)
	frh.SetBody(ping)

	c.out <- frh
}

func (c *Conn) readStream(frh *FrameHeader, res *fasthttp.Response, s *stream) error {
	switch frh.Type() {
	case FrameHeaders, FrameContinuation:
		h := frh.Body().(FrameWithHeaders)

		if frh.Type() == FrameContinuation {
			c.dec.continuationFrames++
			if c.dec.continuationFrames > maxContinuationFrames {
				return ErrEnhanceYourCalm
			}

			c.continuationBytes += len(h.Headers())
			if c.continuationBytes > maxContinuationBytes {
				return ErrEnhanceYourCalm
			}
		} else {
			if hdrs, ok := h.(*Headers); ok && hdrs.StreamDep() == frh.Stream() && frh.Stream() != 0 {
				return ErrProtocol
			}
			if s != nil && !s.canRecvHeaders() {
				return ErrStreamClosed
			}

			c.dec.resetDecodeAccounting()
			c.continuationBytes = 0
		}

		c.headerBuf.Write(h.Headers())

		if !h.EndHeaders() {
			return nil
		}

		b := c.headerBuf.Bytes()
		c.headerBuf.Reset()
		rawLen := len(b)

		if err := c.readHeader(b, res); err != nil {
			return err
		}

		return c.dec.checkCompressionRatio(rawLen)

	case FrameData:
		if s != nil && !s.canRecvData() {
			return ErrStreamClosed
		}

		c.connWindow.Consume(int32(frh.Len()))
		c.serverWindow.Consume(int32(frh.Len()))

		data := frh.Body().(*Data)
		if data.Len() != 0 {
			res.AppendBody(data.Data())
			c.updateWindow(frh.Stream(), int32(frh.Len()))
		}

		if inc, ok := c.connWindow.NeedsRefill(c.maxWindow); ok {
			c.connWindow.Grant(inc)
			c.updateWindow(0, inc)
		}

	case FramePushPromise:
		// SETTINGS_ENABLE_PUSH is always sent as 0, so a promise is refused.
		return ErrProtocol

	case FramePriority:
		pr := frh.Body().(*Priority)
		if pr.Stream() == frh.Stream() && frh.Stream() != 0 {
			return ErrProtocol
		}

	case FrameResetStream:
		if s != nil {
			s.reset()
		}

		if c.streams.recordReset(frh.Stream(), time.Now()) {
			_ = c.closeWithCode(EnhanceYourCalm)
			return ErrEnhanceYourCalm
		}

		rst := frh.Body().(*RstStream)
		return rst.Error()
	}

	return nil
}

func (c *Conn) updateWindow(streamID uint32, size int32) {
	frh := AcquireFrameHeader()
	frh.SetStream(streamID)

	wu := AcquireFrame(FrameWindowUpdate).(*WindowUpdate)
	wu.SetIncrement(size)
	frh.SetBody(wu)

	c.out <- frh
}

func (c *Conn) readHeader(b []byte, res *fasthttp.Response) error {
	hf := AcquireHeaderField()
	defer ReleaseHeaderField(hf)

	dec := c.dec

	var err error
	for len(b) > 0 {
		b, err = dec.Next(hf, b)
		if err != nil {
			return err
		}

		if hf.IsPseudo() {
			if len(hf.KeyBytes()) > 1 && hf.KeyBytes()[1] == 's' { // :status
				n, err := strconv.ParseInt(hf.Value(), 10, 64)
				if err != nil {
					return err
				}
				res.SetStatusCode(int(n))
			}
			continue
		}

		if bytes.Equal(hf.KeyBytes(), StringContentLength) {
			n, _ := strconv.Atoi(hf.Value())
			res.Header.SetContentLength(n)
		} else {
			res.Header.AddBytesKV(hf.KeyBytes(), hf.ValueBytes())
		}
	}

	return nil
}
