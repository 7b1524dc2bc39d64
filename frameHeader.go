package http2

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/corehttp/h2c/http2utils"
)

const (
	// DefaultFrameSize is the 9-byte on-the-wire frame header size.
	//
	// http://httpwg.org/specs/rfc7540.html#FrameHeader
	DefaultFrameSize = 9
	// defaultMaxLen is SETTINGS_MAX_FRAME_SIZE's RFC default.
	//
	// https://httpwg.org/specs/rfc7540.html#SETTINGS_MAX_FRAME_SIZE
	defaultMaxLen = 1 << 14

	// Frame flags. Bits not used by any frame type this client sends or
	// interprets are left out.
	FlagAck        FrameFlags = 0x1
	FlagEndStream  FrameFlags = 0x1
	FlagEndHeaders FrameFlags = 0x4
	FlagPadded     FrameFlags = 0x8
	FlagPriority   FrameFlags = 0x20
)

var frameHeaderPool = sync.Pool{
	New: func() interface{} {
		return &FrameHeader{}
	},
}

// FrameHeader is the 9-byte frame header plus the pooled Frame payload it
// dispatches to.
//
// Use AcquireFrameHeader instead of creating a FrameHeader directly, and
// ReleaseFrameHeader to return it (and its Frame body) to their pools.
//
// A FrameHeader must not be used from more than one goroutine at a time.
//
// https://tools.ietf.org/html/rfc7540#section-4.1
type FrameHeader struct {
	length int        // 24 bits
	kind   FrameType  // 8 bits
	flags  FrameFlags // 8 bits
	stream uint32     // 31 bits

	maxLen uint32

	rawHeader [DefaultFrameSize]byte
	payload   []byte

	fr Frame
}

// AcquireFrameHeader gets a FrameHeader from the pool.
func AcquireFrameHeader() *FrameHeader {
	frh := frameHeaderPool.Get().(*FrameHeader)
	frh.Reset()
	return frh
}

// ReleaseFrameHeader releases frh's body back to its frame-type pool and
// puts frh back in the pool.
func ReleaseFrameHeader(frh *FrameHeader) {
	ReleaseFrame(frh.Body())
	frameHeaderPool.Put(frh)
}

// Reset clears frh for reuse.
func (frh *FrameHeader) Reset() {
	frh.kind = 0
	frh.flags = 0
	frh.stream = 0
	frh.length = 0
	frh.maxLen = defaultMaxLen
	frh.fr = nil
	frh.payload = frh.payload[:0]
}

// Type returns the frame type.
//
// https://httpwg.org/specs/rfc7540.html#FrameTypes
func (frh *FrameHeader) Type() FrameType {
	return frh.kind
}

// Flags returns the frame's flag bitset.
func (frh *FrameHeader) Flags() FrameFlags {
	return frh.flags
}

// SetFlags replaces the frame's flag bitset.
func (frh *FrameHeader) SetFlags(flags FrameFlags) {
	frh.flags = flags
}

// Stream returns the stream id of the current frame.
func (frh *FrameHeader) Stream() uint32 {
	return frh.stream
}

// SetStream sets the stream id on the current frame.
//
// This does not clear the reserved top bit, so a caller that deliberately
// wants it set (e.g. for interop testing) is not stopped from doing so.
func (frh *FrameHeader) SetStream(stream uint32) {
	frh.stream = stream
}

// Len returns the payload length.
func (frh *FrameHeader) Len() int {
	return frh.length
}

// MaxLen returns the negotiated max payload length.
func (frh *FrameHeader) MaxLen() uint32 {
	return frh.maxLen
}

func (frh *FrameHeader) parseValues(header []byte) {
	frh.length = int(http2utils.Uint24(header[:3]))
	frh.kind = FrameType(header[3])
	frh.flags = FrameFlags(header[4])
	frh.stream = http2utils.Uint32(header[5:]) & (1<<31 - 1)
}

func (frh *FrameHeader) buildHeader(header []byte) {
	http2utils.PutUint24(header[:3], uint32(frh.length))
	header[3] = byte(frh.kind)
	header[4] = byte(frh.flags)
	http2utils.PutUint32(header[5:], frh.stream)
}

// ReadFrameFrom reads a complete frame (header + dispatched payload) from br.
func ReadFrameFrom(br *bufio.Reader) (*FrameHeader, error) {
	return ReadFrameFromWithSize(br, defaultMaxLen)
}

// ReadFrameFromWithSize is ReadFrameFrom with an explicit negotiated
// SETTINGS_MAX_FRAME_SIZE; pass 0 to disable the check.
func ReadFrameFromWithSize(br *bufio.Reader, max uint32) (*FrameHeader, error) {
	frh := AcquireFrameHeader()
	frh.maxLen = max

	_, err := frh.readFrom(br)
	if err != nil {
		if frh.Body() != nil {
			ReleaseFrameHeader(frh)
		} else {
			frameHeaderPool.Put(frh)
		}
		return nil, err
	}

	return frh, nil
}

// ReadFrom reads a frame from br.
//
// Unlike io.ReaderFrom this does not read until io.EOF.
func (frh *FrameHeader) ReadFrom(br *bufio.Reader) (int64, error) {
	return frh.readFrom(br)
}

func (frh *FrameHeader) readFrom(br *bufio.Reader) (int64, error) {
	header, err := br.Peek(DefaultFrameSize)
	if err != nil {
		return -1, err
	}
	br.Discard(DefaultFrameSize)

	rn := int64(DefaultFrameSize)

	frh.parseValues(header)
	if err := frh.checkLen(); err != nil {
		return 0, err
	}

	if frh.kind > maxFrameType {
		br.Discard(frh.length)
		return rn, ErrUnknownFrameType
	}
	frh.fr = AcquireFrame(frh.kind)

	if frh.length > 0 {
		n := frh.length
		if n < 0 {
			panic(fmt.Sprintf("negative frame length %d", frh.length))
		}

		frh.payload = http2utils.Resize(frh.payload, n)

		n, err = io.ReadFull(br, frh.payload[:n])
		rn += int64(n)
		if err != nil {
			return rn, err
		}
	}

	return rn, frh.fr.Deserialize(frh)
}

// WriteTo serializes frh's body and writes header+payload to w.
func (frh *FrameHeader) WriteTo(w *bufio.Writer) (wb int64, err error) {
	frh.fr.Serialize(frh)

	frh.length = len(frh.payload)
	frh.buildHeader(frh.rawHeader[:])

	n, err := w.Write(frh.rawHeader[:])
	if err != nil {
		return int64(n), err
	}
	wb += int64(n)

	n, err = w.Write(frh.payload)
	wb += int64(n)

	return wb, err
}

// Body returns the dispatched Frame payload.
func (frh *FrameHeader) Body() Frame {
	return frh.fr
}

// SetBody attaches fr as frh's payload and adopts its type.
func (frh *FrameHeader) SetBody(fr Frame) {
	if fr == nil {
		panic("h2c: FrameHeader body cannot be nil")
	}
	frh.kind = fr.Type()
	frh.fr = fr
}

func (frh *FrameHeader) setPayload(payload []byte) {
	frh.payload = append(frh.payload[:0], payload...)
}

func (frh *FrameHeader) checkLen() error {
	if frh.maxLen != 0 && frh.length > int(frh.maxLen) {
		return ErrPayloadExceeds
	}
	return nil
}

func (frh *FrameHeader) appendCheckingLen(dst, src []byte) (n int, err error) {
	n = len(src)
	if frh.maxLen > 0 && uint32(n+len(dst)) > frh.maxLen {
		return 0, ErrPayloadExceeds
	}
	frh.payload = append(dst, src...)
	frh.length = len(frh.payload)
	return n, nil
}
