package http2

import (
	"github.com/corehttp/h2c/http2utils"
)

// FrameHeaders identifies a HEADERS frame.
const FrameHeaders FrameType = 0x1

var (
	_ Frame            = &Headers{}
	_ FrameWithHeaders = &Headers{}
)

// Headers opens a stream and/or carries its HPACK-encoded header block.
//
// https://tools.ietf.org/html/rfc7540#section-6.2
type Headers struct {
	hasPadding bool
	exclusive  bool
	streamDep  uint32
	weight     uint8
	endStream  bool
	endHeaders bool
	rawHeaders []byte // raw HPACK-encoded header block fragment
}

func (h *Headers) Reset() {
	h.hasPadding = false
	h.exclusive = false
	h.streamDep = 0
	h.weight = 0
	h.endStream = false
	h.endHeaders = false
	h.rawHeaders = h.rawHeaders[:0]
}

// CopyTo copies h into h2.
func (h *Headers) CopyTo(h2 *Headers) {
	h2.hasPadding = h.hasPadding
	h2.exclusive = h.exclusive
	h2.streamDep = h.streamDep
	h2.weight = h.weight
	h2.endStream = h.endStream
	h2.endHeaders = h.endHeaders
	h2.rawHeaders = append(h2.rawHeaders[:0], h.rawHeaders...)
}

func (h *Headers) Type() FrameType {
	return FrameHeaders
}

// Headers returns the raw (HPACK-encoded) header block fragment.
func (h *Headers) Headers() []byte {
	return h.rawHeaders
}

// SetHeaders replaces the raw header block fragment.
func (h *Headers) SetHeaders(b []byte) {
	h.rawHeaders = append(h.rawHeaders[:0], b...)
}

// AppendRawHeaders appends b to the raw header block.
func (h *Headers) AppendRawHeaders(b []byte) {
	h.rawHeaders = append(h.rawHeaders, b...)
}

// AppendHeaderField HPACK-encodes hf and appends it to the raw header
// block, optionally inserting it into hp's dynamic table.
func (h *Headers) AppendHeaderField(hp *HPACK, hf *HeaderField, store bool) {
	h.rawHeaders = hp.AppendHeader(h.rawHeaders, hf, store)
}

// EndStream reports whether the HEADERS frame closes the stream's send side.
func (h *Headers) EndStream() bool {
	return h.endStream
}

// SetEndStream toggles END_STREAM for serialization.
func (h *Headers) SetEndStream(value bool) {
	h.endStream = value
}

// EndHeaders reports whether this frame ends the header block (no CONTINUATION follows).
func (h *Headers) EndHeaders() bool {
	return h.endHeaders
}

// SetEndHeaders toggles END_HEADERS for serialization.
func (h *Headers) SetEndHeaders(value bool) {
	h.endHeaders = value
}

// StreamDep returns the id of the stream this one depends on, or 0.
func (h *Headers) StreamDep() uint32 {
	return h.streamDep
}

// SetStreamDep sets the priority dependency stream id.
func (h *Headers) SetStreamDep(stream uint32) {
	h.streamDep = stream & (1<<31 - 1)
}

// Weight returns the priority weight carried alongside the dependency.
func (h *Headers) Weight() byte {
	return h.weight
}

// SetWeight sets the priority weight.
func (h *Headers) SetWeight(w byte) {
	h.weight = w
}

// Exclusive reports whether the priority dependency is exclusive.
func (h *Headers) Exclusive() bool {
	return h.exclusive
}

// SetExclusive sets the exclusive dependency bit.
func (h *Headers) SetExclusive(exclusive bool) {
	h.exclusive = exclusive
}

// Padding reports whether the frame will be/was sent with padding.
func (h *Headers) Padding() bool {
	return h.hasPadding
}

// SetPadding toggles padding on serialization.
func (h *Headers) SetPadding(value bool) {
	h.hasPadding = value
}

func (h *Headers) Deserialize(frh *FrameHeader) error {
	flags := frh.Flags()
	payload := frh.payload

	if flags.Has(FlagPadded) {
		var err error
		payload, err = http2utils.CutPadding(payload, frh.Len())
		if err != nil {
			return err
		}
	}

	if flags.Has(FlagPriority) {
		if len(payload) < 5 {
			return ErrMissingBytes
		}
		raw := http2utils.Uint32(payload)
		h.exclusive = raw&(1<<31) != 0
		h.streamDep = raw & (1<<31 - 1)
		h.weight = payload[4]
		payload = payload[5:]
	}

	h.endStream = flags.Has(FlagEndStream)
	h.endHeaders = flags.Has(FlagEndHeaders)
	h.rawHeaders = append(h.rawHeaders[:0], payload...)

	return nil
}

func (h *Headers) Serialize(frh *FrameHeader) {
	if h.endStream {
		frh.SetFlags(frh.Flags().Add(FlagEndStream))
	}
	if h.endHeaders {
		frh.SetFlags(frh.Flags().Add(FlagEndHeaders))
	}

	payload := h.rawHeaders

	if h.weight > 0 {
		frh.SetFlags(frh.Flags().Add(FlagPriority))

		dep := h.streamDep & (1<<31 - 1)
		if h.exclusive {
			dep |= 1 << 31
		}

		prefixed := make([]byte, 5, 5+len(payload))
		http2utils.PutUint32(prefixed[:4], dep)
		prefixed[4] = h.weight
		payload = append(prefixed, payload...)
	}

	if h.hasPadding {
		frh.SetFlags(frh.Flags().Add(FlagPadded))
		payload = http2utils.AddPadding(payload)
	}

	frh.payload = append(frh.payload[:0], payload...)
}
