package http2

import "time"

// StreamState is a node in the HTTP/2 stream state machine.
//
// https://tools.ietf.org/html/rfc7540#section-5.1
type StreamState uint8

const (
	StreamStateIdle StreamState = iota
	StreamStateReservedLocal
	StreamStateReservedRemote
	StreamStateOpen
	StreamStateHalfClosedLocal
	StreamStateHalfClosedRemote
	StreamStateClosed
)

func (s StreamState) String() string {
	switch s {
	case StreamStateIdle:
		return "idle"
	case StreamStateReservedLocal:
		return "reserved(local)"
	case StreamStateReservedRemote:
		return "reserved(remote)"
	case StreamStateOpen:
		return "open"
	case StreamStateHalfClosedLocal:
		return "half-closed(local)"
	case StreamStateHalfClosedRemote:
		return "half-closed(remote)"
	case StreamStateClosed:
		return "closed"
	}
	return "unknown"
}

// stream tracks one client-initiated HTTP/2 stream's state and window.
type stream struct {
	id        uint32
	state     StreamState
	window    *flowWindow
	createdAt time.Time
}

func newStream(id uint32, initialWindow int32) *stream {
	return &stream{id: id, state: StreamStateIdle, window: newFlowWindow(initialWindow)}
}

// openLocal transitions idle -> open on sending HEADERS.
func (s *stream) openLocal(endStream bool) {
	s.state = StreamStateOpen
	if endStream {
		s.state = StreamStateHalfClosedLocal
	}
}

// recvEndStream transitions on receiving a frame with END_STREAM set.
func (s *stream) recvEndStream() {
	switch s.state {
	case StreamStateOpen:
		s.state = StreamStateHalfClosedRemote
	case StreamStateHalfClosedLocal:
		s.state = StreamStateClosed
	}
}

// reset transitions to closed, locally or on receipt of RST_STREAM.
func (s *stream) reset() {
	s.state = StreamStateClosed
}

// canSendData reports whether DATA frames may still be sent on s.
func (s *stream) canSendData() bool {
	return s.state == StreamStateOpen || s.state == StreamStateHalfClosedRemote
}

// canRecvData reports whether DATA frames may still be received on s.
func (s *stream) canRecvData() bool {
	return s.state == StreamStateOpen || s.state == StreamStateHalfClosedLocal
}

// canRecvHeaders reports whether a HEADERS frame (a response, or
// trailers) may still be received on s.
func (s *stream) canRecvHeaders() bool {
	return s.state == StreamStateOpen || s.state == StreamStateHalfClosedLocal
}
