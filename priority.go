package http2

import (
	"github.com/corehttp/h2c/http2utils"
)

// FramePriority identifies a PRIORITY frame.
const FramePriority FrameType = 0x2

var _ Frame = &Priority{}

// Priority carries a stream's dependency and weight.
//
// https://tools.ietf.org/html/rfc7540#section-6.3
type Priority struct {
	stream    uint32
	weight    byte
	exclusive bool
}

func (pry *Priority) Type() FrameType {
	return FramePriority
}

func (pry *Priority) Reset() {
	pry.stream = 0
	pry.weight = 0
	pry.exclusive = false
}

func (pry *Priority) CopyTo(p *Priority) {
	p.stream = pry.stream
	p.weight = pry.weight
	p.exclusive = pry.exclusive
}

// Stream returns the id of the stream this frame depends on.
func (pry *Priority) Stream() uint32 {
	return pry.stream
}

// SetStream sets the dependency stream id.
func (pry *Priority) SetStream(stream uint32) {
	pry.stream = stream & (1<<31 - 1)
}

// Weight returns the raw wire weight byte (0-255), which encodes a
// priority weight of Weight()+1.
func (pry *Priority) Weight() byte {
	return pry.weight
}

// SetWeight sets the priority weight.
func (pry *Priority) SetWeight(w byte) {
	pry.weight = w
}

// Exclusive reports whether the dependency is exclusive.
func (pry *Priority) Exclusive() bool {
	return pry.exclusive
}

// SetExclusive sets the exclusive dependency bit.
func (pry *Priority) SetExclusive(exclusive bool) {
	pry.exclusive = exclusive
}

func (pry *Priority) Deserialize(frh *FrameHeader) error {
	if len(frh.payload) < 5 {
		return ErrMissingBytes
	}

	raw := http2utils.Uint32(frh.payload)
	pry.exclusive = raw&(1<<31) != 0
	pry.stream = raw & (1<<31 - 1)
	pry.weight = frh.payload[4]

	return nil
}

func (pry *Priority) Serialize(frh *FrameHeader) {
	raw := pry.stream & (1<<31 - 1)
	if pry.exclusive {
		raw |= 1 << 31
	}

	frh.payload = http2utils.AppendUint32(frh.payload[:0], raw)
	frh.payload = append(frh.payload, pry.weight)
}
