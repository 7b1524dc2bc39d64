package http2

import (
	"github.com/corehttp/h2c/http2utils"
)

// FramePushPromise identifies a PUSH_PROMISE frame.
const FramePushPromise FrameType = 0x5

var (
	_ Frame            = &PushPromise{}
	_ FrameWithHeaders = &PushPromise{}
)

// PushPromise announces a server-initiated stream.
//
// This client always sends SETTINGS_ENABLE_PUSH=0, so it only ever
// receives and must reject these, per spec.md's server-push Non-goal.
//
// https://tools.ietf.org/html/rfc7540#section-6.6
type PushPromise struct {
	hasPadding bool
	endHeaders bool
	stream     uint32
	rawHeaders []byte
}

func (pp *PushPromise) Type() FrameType {
	return FramePushPromise
}

func (pp *PushPromise) Reset() {
	pp.hasPadding = false
	pp.endHeaders = false
	pp.stream = 0
	pp.rawHeaders = pp.rawHeaders[:0]
}

// Stream returns the id of the stream the server intends to push.
func (pp *PushPromise) Stream() uint32 {
	return pp.stream
}

// SetStream sets the promised stream id.
func (pp *PushPromise) SetStream(stream uint32) {
	pp.stream = stream & (1<<31 - 1)
}

// Headers returns the raw (HPACK-encoded) header block fragment.
func (pp *PushPromise) Headers() []byte {
	return pp.rawHeaders
}

// SetHeaders replaces the raw header block fragment.
func (pp *PushPromise) SetHeaders(b []byte) {
	pp.rawHeaders = append(pp.rawHeaders[:0], b...)
}

// EndHeaders reports whether this frame ends the header block.
func (pp *PushPromise) EndHeaders() bool {
	return pp.endHeaders
}

// Write implements io.Writer, appending to the raw header block.
func (pp *PushPromise) Write(b []byte) (int, error) {
	pp.rawHeaders = append(pp.rawHeaders, b...)
	return len(b), nil
}

func (pp *PushPromise) Deserialize(frh *FrameHeader) error {
	payload := frh.payload

	if frh.Flags().Has(FlagPadded) {
		var err error
		payload, err = http2utils.CutPadding(payload, frh.Len())
		if err != nil {
			return err
		}
	}

	if len(payload) < 4 {
		return ErrMissingBytes
	}

	pp.stream = http2utils.Uint32(payload) & (1<<31 - 1)
	pp.rawHeaders = append(pp.rawHeaders[:0], payload[4:]...)
	pp.endHeaders = frh.Flags().Has(FlagEndHeaders)

	return nil
}

func (pp *PushPromise) Serialize(frh *FrameHeader) {
	if pp.endHeaders {
		frh.SetFlags(frh.Flags().Add(FlagEndHeaders))
	}

	frh.payload = http2utils.AppendUint32(frh.payload[:0], pp.stream&(1<<31-1))
	frh.payload = append(frh.payload, pp.rawHeaders...)
}
