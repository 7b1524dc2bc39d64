package http2

import (
	"github.com/corehttp/h2c/http2utils"
)

// FrameWindowUpdate identifies a WINDOW_UPDATE frame.
const FrameWindowUpdate FrameType = 0x8

var _ Frame = &WindowUpdate{}

// WindowUpdate grants additional flow-control credit to a stream, or to
// the whole connection when its FrameHeader carries stream id 0.
//
// https://tools.ietf.org/html/rfc7540#section-6.9
type WindowUpdate struct {
	increment int32
}

func (wu *WindowUpdate) Type() FrameType {
	return FrameWindowUpdate
}

func (wu *WindowUpdate) Reset() {
	wu.increment = 0
}

func (wu *WindowUpdate) CopyTo(w *WindowUpdate) {
	w.increment = wu.increment
}

// Increment returns the window size increment.
func (wu *WindowUpdate) Increment() int32 {
	return wu.increment
}

// SetIncrement sets the window size increment.
func (wu *WindowUpdate) SetIncrement(increment int32) {
	wu.increment = increment
}

func (wu *WindowUpdate) Deserialize(frh *FrameHeader) error {
	if len(frh.payload) < 4 {
		return ErrMissingBytes
	}

	wu.increment = int32(http2utils.Uint32(frh.payload) & (1<<31 - 1))
	if wu.increment == 0 {
		return ErrProtocol
	}

	return nil
}

func (wu *WindowUpdate) Serialize(frh *FrameHeader) {
	frh.payload = http2utils.AppendUint32(frh.payload[:0], uint32(wu.increment)&(1<<31-1))
}
