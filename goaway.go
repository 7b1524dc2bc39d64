package http2

import (
	"fmt"

	"github.com/corehttp/h2c/http2utils"
)

// FrameGoAway identifies a GOAWAY frame.
const FrameGoAway FrameType = 0x7

var _ Frame = &GoAway{}

// GoAway tells the peer to stop opening new streams on this connection.
//
// https://tools.ietf.org/html/rfc7540#section-6.8
type GoAway struct {
	lastStream uint32
	code       ErrorCode
	data       []byte
}

func (ga *GoAway) Error() string {
	return fmt.Sprintf("h2c: GOAWAY lastStream=%d code=%s data=%q", ga.lastStream, ga.code, ga.data)
}

func (ga *GoAway) Type() FrameType {
	return FrameGoAway
}

func (ga *GoAway) Reset() {
	ga.lastStream = 0
	ga.code = 0
	ga.data = ga.data[:0]
}

// CopyTo copies ga into other.
func (ga *GoAway) CopyTo(other *GoAway) {
	other.lastStream = ga.lastStream
	other.code = ga.code
	other.data = append(other.data[:0], ga.data...)
}

// Code returns the error code the peer is going away with.
func (ga *GoAway) Code() ErrorCode {
	return ga.code
}

// SetCode sets the GOAWAY error code.
func (ga *GoAway) SetCode(code ErrorCode) {
	ga.code = code
}

// LastStream returns the highest stream id the peer processed.
func (ga *GoAway) LastStream() uint32 {
	return ga.lastStream
}

// SetLastStream sets the last processed stream id.
func (ga *GoAway) SetLastStream(stream uint32) {
	ga.lastStream = stream & (1<<31 - 1)
}

// Data returns the additional debug data, if any.
func (ga *GoAway) Data() []byte {
	return ga.data
}

// SetData sets the additional debug data.
func (ga *GoAway) SetData(b []byte) {
	ga.data = append(ga.data[:0], b...)
}

func (ga *GoAway) Deserialize(frh *FrameHeader) error {
	if len(frh.payload) < 8 {
		return ErrMissingBytes
	}

	ga.lastStream = http2utils.Uint32(frh.payload) & (1<<31 - 1)
	ga.code = ErrorCode(http2utils.Uint32(frh.payload[4:]))

	if len(frh.payload) > 8 {
		ga.data = append(ga.data[:0], frh.payload[8:]...)
	}

	return nil
}

func (ga *GoAway) Serialize(frh *FrameHeader) {
	frh.payload = http2utils.AppendUint32(frh.payload[:0], ga.lastStream&(1<<31-1))
	frh.payload = http2utils.AppendUint32(frh.payload, uint32(ga.code))
	frh.payload = append(frh.payload, ga.data...)
}
