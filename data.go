package http2

import (
	"github.com/corehttp/h2c/http2utils"
)

// FrameData identifies a DATA frame.
const FrameData FrameType = 0x0

var _ Frame = &Data{}

// Data carries a request or response body chunk.
//
// Flags: END_STREAM, PADDED.
//
// https://tools.ietf.org/html/rfc7540#section-6.1
type Data struct {
	endStream  bool
	hasPadding bool
	b          []byte
}

func (data *Data) Type() FrameType {
	return FrameData
}

func (data *Data) Reset() {
	data.endStream = false
	data.hasPadding = false
	data.b = data.b[:0]
}

// CopyTo copies data into d.
func (data *Data) CopyTo(d *Data) {
	d.hasPadding = data.hasPadding
	d.endStream = data.endStream
	d.b = append(d.b[:0], data.b...)
}

func (data *Data) SetEndStream(value bool) {
	data.endStream = value
}

func (data *Data) EndStream() bool {
	return data.endStream
}

// Data returns the frame's body bytes.
func (data *Data) Data() []byte {
	return data.b
}

// SetData replaces the frame's body bytes with b.
func (data *Data) SetData(b []byte) {
	data.b = append(data.b[:0], b...)
}

// Padding reports whether the frame will be/was sent with padding.
func (data *Data) Padding() bool {
	return data.hasPadding
}

// SetPadding toggles padding on serialization.
func (data *Data) SetPadding(value bool) {
	data.hasPadding = value
}

// Append appends b to the frame's body.
func (data *Data) Append(b []byte) {
	data.b = append(data.b, b...)
}

func (data *Data) Len() int {
	return len(data.b)
}

// Write implements io.Writer, appending b to the frame's body.
func (data *Data) Write(b []byte) (int, error) {
	data.Append(b)
	return len(b), nil
}

func (data *Data) Deserialize(frh *FrameHeader) error {
	payload := frh.payload

	if frh.Flags().Has(FlagPadded) {
		var err error
		payload, err = http2utils.CutPadding(payload, frh.Len())
		if err != nil {
			return err
		}
	}

	data.endStream = frh.Flags().Has(FlagEndStream)
	data.b = append(data.b[:0], payload...)

	return nil
}

func (data *Data) Serialize(frh *FrameHeader) {
	if data.endStream {
		frh.SetFlags(frh.Flags().Add(FlagEndStream))
	}

	if data.hasPadding {
		frh.SetFlags(frh.Flags().Add(FlagPadded))
		data.b = http2utils.AddPadding(data.b)
	}

	frh.setPayload(data.b)
}
