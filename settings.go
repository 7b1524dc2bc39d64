package http2

import (
	"github.com/corehttp/h2c/http2utils"
)

// FrameSettings identifies a SETTINGS frame.
const FrameSettings FrameType = 0x4

var _ Frame = &Settings{}

// Settings parameter identifiers.
//
// https://tools.ietf.org/html/rfc7540#section-6.5.2
const (
	settingHeaderTableSize      uint16 = 0x1
	settingEnablePush           uint16 = 0x2
	settingMaxConcurrentStreams uint16 = 0x3
	settingMaxWindowSize        uint16 = 0x4
	settingMaxFrameSize         uint16 = 0x5
	settingMaxHeaderListSize    uint16 = 0x6
)

const (
	defaultHeaderTableSize   = 4096
	defaultConcurrentStreams = 250
	maxFrameSize             = defaultMaxLen
)

// Settings is the set of connection-wide parameters negotiated by a
// SETTINGS frame.
//
// https://tools.ietf.org/html/rfc7540#section-6.5
type Settings struct {
	ack bool

	headerTableSize   uint32
	enablePush        bool
	maxStreams        uint32
	maxWindowSize     uint32
	maxFrameSize      uint32
	maxHeaderListSize uint32
}

func (st *Settings) Type() FrameType {
	return FrameSettings
}

func (st *Settings) Reset() {
	st.ack = false
	st.headerTableSize = 0
	st.enablePush = false
	st.maxStreams = 0
	st.maxWindowSize = 0
	st.maxFrameSize = 0
	st.maxHeaderListSize = 0
}

// CopyTo copies st into st2.
func (st *Settings) CopyTo(st2 *Settings) {
	st2.ack = st.ack
	st2.headerTableSize = st.headerTableSize
	st2.enablePush = st.enablePush
	st2.maxStreams = st.maxStreams
	st2.maxWindowSize = st.maxWindowSize
	st2.maxFrameSize = st.maxFrameSize
	st2.maxHeaderListSize = st.maxHeaderListSize
}

// Ack reports whether this SETTINGS frame acknowledges the peer's.
func (st *Settings) Ack() bool {
	return st.ack
}

// SetAck marks this SETTINGS frame as an acknowledgement; an ACK carries
// no parameters.
func (st *Settings) SetAck(ack bool) {
	st.ack = ack
}

// HeaderTableSize returns SETTINGS_HEADER_TABLE_SIZE, or 0 if unset.
func (st *Settings) HeaderTableSize() uint32 {
	return st.headerTableSize
}

// SetHeaderTableSize sets SETTINGS_HEADER_TABLE_SIZE.
func (st *Settings) SetHeaderTableSize(size uint32) {
	st.headerTableSize = size
}

// Push reports the negotiated SETTINGS_ENABLE_PUSH value.
func (st *Settings) Push() bool {
	return st.enablePush
}

// SetPush sets SETTINGS_ENABLE_PUSH. This client always sends false,
// since server push is out of scope.
func (st *Settings) SetPush(enable bool) {
	st.enablePush = enable
}

// MaxConcurrentStreams returns SETTINGS_MAX_CONCURRENT_STREAMS.
func (st *Settings) MaxConcurrentStreams() uint32 {
	return st.maxStreams
}

// SetMaxConcurrentStreams sets SETTINGS_MAX_CONCURRENT_STREAMS.
func (st *Settings) SetMaxConcurrentStreams(n uint32) {
	st.maxStreams = n
}

// MaxWindowSize returns SETTINGS_INITIAL_WINDOW_SIZE.
func (st *Settings) MaxWindowSize() uint32 {
	return st.maxWindowSize
}

// SetMaxWindowSize sets SETTINGS_INITIAL_WINDOW_SIZE.
func (st *Settings) SetMaxWindowSize(size uint32) {
	st.maxWindowSize = size
}

// MaxFrameSize returns SETTINGS_MAX_FRAME_SIZE.
func (st *Settings) MaxFrameSize() uint32 {
	return st.maxFrameSize
}

// SetMaxFrameSize sets SETTINGS_MAX_FRAME_SIZE.
func (st *Settings) SetMaxFrameSize(size uint32) {
	st.maxFrameSize = size
}

// MaxHeaderListSize returns SETTINGS_MAX_HEADER_LIST_SIZE.
func (st *Settings) MaxHeaderListSize() uint32 {
	return st.maxHeaderListSize
}

// SetMaxHeaderListSize sets SETTINGS_MAX_HEADER_LIST_SIZE.
func (st *Settings) SetMaxHeaderListSize(size uint32) {
	st.maxHeaderListSize = size
}

func (st *Settings) Deserialize(frh *FrameHeader) error {
	st.ack = frh.Flags().Has(FlagAck)
	if st.ack {
		return nil
	}

	payload := frh.payload
	if len(payload)%6 != 0 {
		return ErrFrameSize
	}

	for len(payload) > 0 {
		id := uint16(payload[0])<<8 | uint16(payload[1])
		val := http2utils.Uint32(payload[2:6])

		switch id {
		case settingHeaderTableSize:
			st.headerTableSize = val
		case settingEnablePush:
			st.enablePush = val == 1
		case settingMaxConcurrentStreams:
			st.maxStreams = val
		case settingMaxWindowSize:
			if val > 1<<31-1 {
				return ErrFlowControl
			}
			st.maxWindowSize = val
		case settingMaxFrameSize:
			if val < defaultMaxLen || val > 1<<24-1 {
				return ErrFrameSize
			}
			st.maxFrameSize = val
		case settingMaxHeaderListSize:
			st.maxHeaderListSize = val
		}

		payload = payload[6:]
	}

	return nil
}

func (st *Settings) Serialize(frh *FrameHeader) {
	if st.ack {
		frh.SetFlags(frh.Flags().Add(FlagAck))
		frh.payload = frh.payload[:0]
		return
	}

	payload := frh.payload[:0]
	payload = appendSetting(payload, settingHeaderTableSize, st.headerTableSize)
	payload = appendSetting(payload, settingMaxConcurrentStreams, st.maxStreams)
	payload = appendSetting(payload, settingMaxWindowSize, st.maxWindowSize)

	if st.enablePush {
		payload = appendSetting(payload, settingEnablePush, 1)
	} else {
		payload = appendSetting(payload, settingEnablePush, 0)
	}
	if st.maxFrameSize != 0 {
		payload = appendSetting(payload, settingMaxFrameSize, st.maxFrameSize)
	}
	if st.maxHeaderListSize != 0 {
		payload = appendSetting(payload, settingMaxHeaderListSize, st.maxHeaderListSize)
	}

	frh.payload = payload
}

func appendSetting(dst []byte, id uint16, val uint32) []byte {
	dst = append(dst, byte(id>>8), byte(id))
	return http2utils.AppendUint32(dst, val)
}
