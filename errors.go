package http2

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode is an HTTP/2 error code as carried by RST_STREAM and GOAWAY.
//
// https://httpwg.org/specs/rfc7540.html#ErrorCodes
type ErrorCode uint32

const (
	NoError            ErrorCode = 0x0
	ProtocolError      ErrorCode = 0x1
	InternalError      ErrorCode = 0x2
	FlowControlError   ErrorCode = 0x3
	SettingsTimeout    ErrorCode = 0x4
	StreamClosedError  ErrorCode = 0x5
	FrameSizeError     ErrorCode = 0x6
	RefusedStreamError ErrorCode = 0x7
	CancelError        ErrorCode = 0x8
	CompressionError   ErrorCode = 0x9
	ConnectError       ErrorCode = 0xa
	EnhanceYourCalm    ErrorCode = 0xb
	InadequateSecurity ErrorCode = 0xc
	HTTP11Required     ErrorCode = 0xd
)

func (c ErrorCode) String() string {
	switch c {
	case NoError:
		return "NO_ERROR"
	case ProtocolError:
		return "PROTOCOL_ERROR"
	case InternalError:
		return "INTERNAL_ERROR"
	case FlowControlError:
		return "FLOW_CONTROL_ERROR"
	case SettingsTimeout:
		return "SETTINGS_TIMEOUT"
	case StreamClosedError:
		return "STREAM_CLOSED"
	case FrameSizeError:
		return "FRAME_SIZE_ERROR"
	case RefusedStreamError:
		return "REFUSED_STREAM"
	case CancelError:
		return "CANCEL"
	case CompressionError:
		return "COMPRESSION_ERROR"
	case ConnectError:
		return "CONNECT_ERROR"
	case EnhanceYourCalm:
		return "ENHANCE_YOUR_CALM"
	case InadequateSecurity:
		return "INADEQUATE_SECURITY"
	case HTTP11Required:
		return "HTTP_1_1_REQUIRED"
	}
	return fmt.Sprintf("ERROR_CODE(%d)", uint32(c))
}

// ErrorKind classifies an Error by remediation, per spec.md §7.
type ErrorKind uint8

const (
	KindTransport ErrorKind = iota
	KindProtocol
	KindStream
	KindFlowControl
	KindTimeout
	KindCancellation
	KindPeerGoAway
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindStream:
		return "stream"
	case KindFlowControl:
		return "flow-control"
	case KindTimeout:
		return "timeout"
	case KindCancellation:
		return "cancellation"
	case KindPeerGoAway:
		return "peer-goaway"
	}
	return "unknown"
}

// Error is the single error type surfaced to callers of this module. It
// carries the taxonomy from spec.md §7 plus the protocol error code when
// one applies, and reports whether the originating operation may be
// safely retried.
type Error struct {
	Kind      ErrorKind
	Code      ErrorCode
	Retryable bool
	Reason    string
	err       error // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("h2c: %s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("h2c: %s: %s", e.Kind, e.Code)
}

func (e *Error) Unwrap() error {
	return e.err
}

// Is makes errors.Is(err, SomeKindError) match on Kind+Code rather than
// identity, so callers can check `errors.Is(err, h2c.ErrFlowControl)`
// against a sentinel built with the same kind/code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

func newError(kind ErrorKind, code ErrorCode, retryable bool, reason string) *Error {
	return &Error{Kind: kind, Code: code, Retryable: retryable, Reason: reason}
}

func wrapError(kind ErrorKind, code ErrorCode, retryable bool, cause error) *Error {
	return &Error{Kind: kind, Code: code, Retryable: retryable, err: cause}
}

// Sentinel errors matched via errors.Is throughout the framing, HPACK,
// flow-control and stream layers.
var (
	ErrProtocol          = newError(KindProtocol, ProtocolError, false, "protocol violation")
	ErrFrameSize         = newError(KindProtocol, FrameSizeError, false, "frame size violation")
	ErrCompression       = newError(KindProtocol, CompressionError, false, "HPACK compression error")
	ErrFlowControl       = newError(KindFlowControl, FlowControlError, false, "flow control window violated")
	ErrEnhanceYourCalm   = newError(KindProtocol, EnhanceYourCalm, false, "peer exceeded abuse thresholds")
	ErrStreamClosed      = newError(KindStream, StreamClosedError, false, "stream is closed")
	ErrRefusedStream     = newError(KindStream, RefusedStreamError, true, "stream refused by peer")
	ErrCancelled         = &Error{Kind: KindCancellation, Code: CancelError, Retryable: false, Reason: "request cancelled"}
	ErrHandshakeTimeout  = &Error{Kind: KindTimeout, Code: SettingsTimeout, Retryable: false, Reason: "SETTINGS handshake timed out"}
	ErrRequestTimeout    = &Error{Kind: KindTimeout, Code: NoError, Retryable: true, Reason: "request timed out"}
	ErrConnectionClosed  = &Error{Kind: KindTransport, Code: NoError, Retryable: true, Reason: "connection closed"}
	ErrServerSupport     = errors.New("h2c: server does not support HTTP/2 (ALPN did not negotiate h2)")
	ErrMissingBytes      = errors.New("h2c: frame payload shorter than its type requires")
	ErrPayloadExceeds    = errors.New("h2c: frame payload exceeds the negotiated MAX_FRAME_SIZE")
	ErrUnknownFrameType  = errors.New("h2c: unknown frame type")
	ErrBitOverflow       = errors.New("h2c: HPACK integer overflowed 31 bits")
	ErrNotAvailableStreams = errors.New("h2c: no stream ids available on this connection, dial a new one")
)

// NewGoAwayError builds the *Error a received GOAWAY frame (or a locally
// detected connection-level violation) surfaces to in-flight requests.
func NewGoAwayError(code ErrorCode, refused bool) *Error {
	return &Error{Kind: KindPeerGoAway, Code: code, Retryable: refused, Reason: "connection is going away"}
}

// DefaultPingInterval is how often an idle connection pings its peer to
// detect a dead path, matching the teacher's keep-alive cadence.
const DefaultPingInterval = 5 * time.Second

// http2Preface is the 24-byte connection preface every client must send
// before its first SETTINGS frame.
//
// https://httpwg.org/specs/rfc7540.html#ConnectionHeader
var http2Preface = []byte("PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n")
