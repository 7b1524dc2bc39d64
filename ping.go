package http2

import (
	"time"

	"github.com/corehttp/h2c/http2utils"
)

// FramePing identifies a PING frame.
const FramePing FrameType = 0x6

var _ Frame = &Ping{}

// Ping is a connection-level keepalive/RTT probe.
//
// https://tools.ietf.org/html/rfc7540#section-6.7
type Ping struct {
	ack  bool
	data [8]byte
}

func (ping *Ping) Type() FrameType {
	return FramePing
}

func (ping *Ping) Reset() {
	ping.ack = false
	ping.data = [8]byte{}
}

func (ping *Ping) CopyTo(p *Ping) {
	p.ack = ping.ack
	p.data = ping.data
}

// Ack reports whether this is a PING acknowledgement.
func (ping *Ping) Ack() bool {
	return ping.ack
}

// SetAck toggles the ACK flag for serialization.
func (ping *Ping) SetAck(ack bool) {
	ping.ack = ack
}

// Write implements io.Writer, copying up to 8 bytes of b into the opaque data.
func (ping *Ping) Write(b []byte) (int, error) {
	copy(ping.data[:], b)
	return len(b), nil
}

// SetData copies b into the opaque 8-byte payload.
func (ping *Ping) SetData(b []byte) {
	copy(ping.data[:], b)
}

// Data returns the opaque 8-byte payload.
func (ping *Ping) Data() []byte {
	return ping.data[:]
}

// SetCurrentTime stamps the opaque payload with time.Now(), so that once
// the peer's ACK comes back its round-trip time can be measured.
func (ping *Ping) SetCurrentTime() {
	http2utils.PutUint32(ping.data[:4], uint32(time.Now().Unix()))
	http2utils.PutUint32(ping.data[4:], uint32(time.Now().Nanosecond()))
}

// SentAt recovers the timestamp written by SetCurrentTime.
func (ping *Ping) SentAt() time.Time {
	sec := http2utils.Uint32(ping.data[:4])
	nsec := http2utils.Uint32(ping.data[4:])
	return time.Unix(int64(sec), int64(nsec))
}

func (ping *Ping) Deserialize(frh *FrameHeader) error {
	ping.ack = frh.Flags().Has(FlagAck)
	ping.SetData(frh.payload)
	return nil
}

func (ping *Ping) Serialize(frh *FrameHeader) {
	if ping.ack {
		frh.SetFlags(frh.Flags().Add(FlagAck))
	}
	frh.setPayload(ping.data[:])
}
