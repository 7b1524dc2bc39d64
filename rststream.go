package http2

import (
	"github.com/corehttp/h2c/http2utils"
)

// FrameResetStream identifies an RST_STREAM frame.
const FrameResetStream FrameType = 0x3

var _ Frame = &RstStream{}

// RstStream immediately terminates a stream.
//
// https://tools.ietf.org/html/rfc7540#section-6.4
type RstStream struct {
	code ErrorCode
}

func (rst *RstStream) Type() FrameType {
	return FrameResetStream
}

// Code returns the error code the peer (or we) reset the stream with.
func (rst *RstStream) Code() ErrorCode {
	return rst.code
}

// SetCode sets the reset error code.
func (rst *RstStream) SetCode(code ErrorCode) {
	rst.code = code
}

func (rst *RstStream) Reset() {
	rst.code = 0
}

func (rst *RstStream) CopyTo(r *RstStream) {
	r.code = rst.code
}

// Error returns rst as an *Error, for surfacing to the stream's caller.
func (rst *RstStream) Error() *Error {
	return newError(KindStream, rst.code, rst.code == RefusedStreamError, "stream reset by peer")
}

func (rst *RstStream) Deserialize(frh *FrameHeader) error {
	if len(frh.payload) < 4 {
		return ErrMissingBytes
	}

	rst.code = ErrorCode(http2utils.Uint32(frh.payload))

	return nil
}

func (rst *RstStream) Serialize(frh *FrameHeader) {
	frh.payload = http2utils.AppendUint32(frh.payload[:0], uint32(rst.code))
}
