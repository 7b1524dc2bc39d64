package http2

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

// fakeConn is a net.Conn whose Write never blocks, backed by an
// in-memory buffer — good enough for exercising readStream's write-side
// effects (GOAWAY on rapid reset) without a real socket or a peer to
// drain a net.Pipe.
type fakeConn struct {
	bytes.Buffer
}

func (f *fakeConn) Read(p []byte) (int, error)       { return 0, io.EOF }
func (f *fakeConn) Close() error                      { return nil }
func (f *fakeConn) LocalAddr() net.Addr               { return fakeAddr{} }
func (f *fakeConn) RemoteAddr() net.Addr              { return fakeAddr{} }
func (f *fakeConn) SetDeadline(time.Time) error       { return nil }
func (f *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error  { return nil }

type fakeAddr struct{}

func (fakeAddr) Network() string { return "fake" }
func (fakeAddr) String() string  { return "fake" }

func newTestConn(t *testing.T) *Conn {
	t.Helper()
	return NewConn(&fakeConn{}, ConnOpts{})
}

func TestReadStreamRejectsSelfDependentPriority(t *testing.T) {
	c := newTestConn(t)

	frh := AcquireFrameHeader()
	defer ReleaseFrameHeader(frh)
	frh.SetStream(5)

	pr := AcquireFrame(FramePriority).(*Priority)
	pr.SetStream(5)
	frh.SetBody(pr)

	err := c.readStream(frh, &fasthttp.Response{}, nil)
	require.ErrorIs(t, err, ErrProtocol)
}

func TestReadStreamRejectsSelfDependentHeaders(t *testing.T) {
	c := newTestConn(t)

	frh := AcquireFrameHeader()
	defer ReleaseFrameHeader(frh)
	frh.SetStream(3)

	h := AcquireFrame(FrameHeaders).(*Headers)
	h.SetStreamDep(3)
	h.SetEndHeaders(true)
	frh.SetBody(h)

	err := c.readStream(frh, &fasthttp.Response{}, nil)
	require.ErrorIs(t, err, ErrProtocol)
}

func TestReadStreamRejectsDataOnClosedStream(t *testing.T) {
	c := newTestConn(t)

	s := newStream(7, 1<<16)
	s.reset()

	frh := AcquireFrameHeader()
	defer ReleaseFrameHeader(frh)
	frh.SetStream(7)

	data := AcquireFrame(FrameData).(*Data)
	data.SetData([]byte("x"))
	frh.SetBody(data)

	err := c.readStream(frh, &fasthttp.Response{}, s)
	require.ErrorIs(t, err, ErrStreamClosed)
}

func TestReadStreamRapidResetTripsGoAway(t *testing.T) {
	c := newTestConn(t)
	c.streams = newStreamTable(2, 0)

	now := time.Now()
	ids := []uint32{1, 3, 5}

	for _, id := range ids {
		s, _ := c.streams.open(id, 1<<16, now)

		frh := AcquireFrameHeader()
		frh.SetStream(id)
		rst := AcquireFrame(FrameResetStream).(*RstStream)
		rst.SetCode(CancelError)
		frh.SetBody(rst)

		err := c.readStream(frh, &fasthttp.Response{}, s)
		ReleaseFrameHeader(frh)

		if id == ids[len(ids)-1] {
			require.ErrorIs(t, err, ErrEnhanceYourCalm, "a third reset over a limit of 2/minute should trip GOAWAY")
			require.True(t, c.Closed())
		} else {
			require.Error(t, err)
			require.False(t, c.Closed())
		}
	}
}

func TestFailStreamsAboveOnlyFailsLaterStreams(t *testing.T) {
	c := newTestConn(t)

	early := AcquireCtx(nil, nil)
	late := AcquireCtx(nil, nil)
	c.reqQueued.Store(uint32(1), early)
	c.reqQueued.Store(uint32(5), late)
	c.openStreams = 2

	c.failStreamsAbove(3, NewGoAwayError(RefusedStreamError, true))

	select {
	case err := <-late.Err:
		require.ErrorIs(t, err, NewGoAwayError(RefusedStreamError, true))
	default:
		t.Fatal("expected stream 5 to be failed")
	}

	_, stillQueued := c.reqQueued.Load(uint32(1))
	require.True(t, stillQueued, "stream 1 is at or below last_stream_id and must be left alone")
}
