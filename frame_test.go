package http2

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, fr Frame) *FrameHeader {
	t.Helper()

	frh := AcquireFrameHeader()
	frh.SetStream(1)
	frh.SetBody(fr)

	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)

	_, err := frh.WriteTo(bw)
	require.NoError(t, err)
	require.NoError(t, bw.Flush())

	out, err := ReadFrameFrom(bufio.NewReader(&buf))
	require.NoError(t, err)

	return out
}

func TestDataFrameRoundTrip(t *testing.T) {
	data := AcquireFrame(FrameData).(*Data)
	data.SetData([]byte("hello world"))
	data.SetEndStream(true)

	out := roundTrip(t, data)
	defer ReleaseFrameHeader(out)

	got := out.Body().(*Data)
	require.Equal(t, []byte("hello world"), got.Data())
	require.True(t, got.EndStream())
}

func TestDataFramePadding(t *testing.T) {
	data := AcquireFrame(FrameData).(*Data)
	data.SetData([]byte("padded"))
	data.SetPadding(true)

	out := roundTrip(t, data)
	defer ReleaseFrameHeader(out)

	got := out.Body().(*Data)
	require.Equal(t, []byte("padded"), got.Data())
}

func TestHeadersFramePriority(t *testing.T) {
	h := AcquireFrame(FrameHeaders).(*Headers)
	h.SetHeaders([]byte("raw-header-block"))
	h.SetStreamDep(3)
	h.SetWeight(42)
	h.SetExclusive(true)
	h.SetEndHeaders(true)

	out := roundTrip(t, h)
	defer ReleaseFrameHeader(out)

	got := out.Body().(*Headers)
	require.Equal(t, []byte("raw-header-block"), got.Headers())
	require.EqualValues(t, 3, got.StreamDep())
	require.EqualValues(t, 42, got.Weight())
	require.True(t, got.Exclusive())
	require.True(t, got.EndHeaders())
}

func TestRstStreamRoundTrip(t *testing.T) {
	rst := AcquireFrame(FrameResetStream).(*RstStream)
	rst.SetCode(CancelError)

	out := roundTrip(t, rst)
	defer ReleaseFrameHeader(out)

	require.Equal(t, CancelError, out.Body().(*RstStream).Code())
}

func TestSettingsRoundTrip(t *testing.T) {
	st := AcquireFrame(FrameSettings).(*Settings)
	st.SetHeaderTableSize(8192)
	st.SetMaxConcurrentStreams(100)
	st.SetMaxWindowSize(1 << 20)

	out := roundTrip(t, st)
	defer ReleaseFrameHeader(out)

	got := out.Body().(*Settings)
	require.EqualValues(t, 8192, got.HeaderTableSize())
	require.EqualValues(t, 100, got.MaxConcurrentStreams())
	require.EqualValues(t, 1<<20, got.MaxWindowSize())
	require.False(t, got.Ack())
}

func TestSettingsAckHasNoPayload(t *testing.T) {
	st := AcquireFrame(FrameSettings).(*Settings)
	st.SetAck(true)

	out := roundTrip(t, st)
	defer ReleaseFrameHeader(out)

	require.True(t, out.Body().(*Settings).Ack())
	require.Zero(t, out.Len())
}

func TestWindowUpdateRoundTrip(t *testing.T) {
	wu := AcquireFrame(FrameWindowUpdate).(*WindowUpdate)
	wu.SetIncrement(65535)

	out := roundTrip(t, wu)
	defer ReleaseFrameHeader(out)

	require.EqualValues(t, 65535, out.Body().(*WindowUpdate).Increment())
}

func TestPingRoundTrip(t *testing.T) {
	ping := AcquireFrame(FramePing).(*Ping)
	ping.SetData([]byte("12345678"))

	out := roundTrip(t, ping)
	defer ReleaseFrameHeader(out)

	require.Equal(t, []byte("12345678"), out.Body().(*Ping).Data())
}

func TestGoAwayRoundTrip(t *testing.T) {
	ga := AcquireFrame(FrameGoAway).(*GoAway)
	ga.SetLastStream(7)
	ga.SetCode(EnhanceYourCalm)
	ga.SetData([]byte("slow down"))

	out := roundTrip(t, ga)
	defer ReleaseFrameHeader(out)

	got := out.Body().(*GoAway)
	require.EqualValues(t, 7, got.LastStream())
	require.Equal(t, EnhanceYourCalm, got.Code())
	require.Equal(t, []byte("slow down"), got.Data())
}

func TestUnknownFrameTypeIsRejected(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)

	// fabricate a header announcing an out-of-range frame type (0xff).
	var raw [9]byte
	raw[3] = 0xff
	_, err := bw.Write(raw[:])
	require.NoError(t, err)
	require.NoError(t, bw.Flush())

	_, err = ReadFrameFrom(bufio.NewReader(&buf))
	require.ErrorIs(t, err, ErrUnknownFrameType)
}

func TestFrameHeaderRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)

	var raw [9]byte
	raw[0], raw[1], raw[2] = 0xff, 0xff, 0xff // 24-bit length = 2^24-1
	_, err := bw.Write(raw[:])
	require.NoError(t, err)
	require.NoError(t, bw.Flush())

	_, err = ReadFrameFromWithSize(bufio.NewReader(&buf), defaultMaxLen)
	require.ErrorIs(t, err, ErrPayloadExceeds)
}
