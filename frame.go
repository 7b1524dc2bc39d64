package http2

import "sync"

// FrameType identifies the kind of payload carried by a FrameHeader.
//
// https://httpwg.org/specs/rfc7540.html#FrameTypes
type FrameType uint8

func (ft FrameType) String() string {
	switch ft {
	case FrameData:
		return "Data"
	case FrameHeaders:
		return "Headers"
	case FramePriority:
		return "Priority"
	case FrameResetStream:
		return "RstStream"
	case FrameSettings:
		return "Settings"
	case FramePushPromise:
		return "PushPromise"
	case FramePing:
		return "Ping"
	case FrameGoAway:
		return "GoAway"
	case FrameWindowUpdate:
		return "WindowUpdate"
	case FrameContinuation:
		return "Continuation"
	}
	return "Unknown"
}

const minFrameType, maxFrameType = FrameData, FrameContinuation

// FrameFlags is the bitset of flags carried by a frame header.
type FrameFlags uint8

// Has returns whether f contains all the bits in flag.
func (f FrameFlags) Has(flag FrameFlags) bool {
	return f&flag == flag
}

// Add returns f with flag set.
func (f FrameFlags) Add(flag FrameFlags) FrameFlags {
	return f | flag
}

// Delete returns f with flag cleared.
func (f FrameFlags) Delete(flag FrameFlags) FrameFlags {
	return f &^ flag
}

// Frame is implemented by every frame payload variant (Data, Headers,
// Priority, RstStream, Settings, PushPromise, Ping, GoAway, WindowUpdate,
// Continuation). A Frame only knows how to (de)serialize its own payload;
// the 9-byte frame header lives in FrameHeader.
type Frame interface {
	Type() FrameType
	Reset()
	// Deserialize populates the frame from the FrameHeader's raw payload
	// and flags. It MUST NOT retain frh beyond the call.
	Deserialize(frh *FrameHeader) error
	// Serialize writes the frame's payload (and any flags it implies)
	// into frh.
	Serialize(frh *FrameHeader)
}

var framePools = map[FrameType]*sync.Pool{
	FrameData:         {New: func() interface{} { return new(Data) }},
	FrameHeaders:      {New: func() interface{} { return new(Headers) }},
	FramePriority:     {New: func() interface{} { return new(Priority) }},
	FrameResetStream:  {New: func() interface{} { return new(RstStream) }},
	FrameSettings:     {New: func() interface{} { return new(Settings) }},
	FramePushPromise:  {New: func() interface{} { return new(PushPromise) }},
	FramePing:         {New: func() interface{} { return new(Ping) }},
	FrameGoAway:       {New: func() interface{} { return new(GoAway) }},
	FrameWindowUpdate: {New: func() interface{} { return new(WindowUpdate) }},
	FrameContinuation: {New: func() interface{} { return new(Continuation) }},
}

// AcquireFrame returns a pooled Frame of kind t. Unknown types (kind >
// FrameContinuation) return nil; callers must discard those payloads per
// RFC 7540's forward-compatibility rule.
func AcquireFrame(t FrameType) Frame {
	p, ok := framePools[t]
	if !ok {
		return nil
	}
	return p.Get().(Frame)
}

// ReleaseFrame resets fr and returns it to its type's pool.
func ReleaseFrame(fr Frame) {
	if fr == nil {
		return
	}
	fr.Reset()
	if p, ok := framePools[fr.Type()]; ok {
		p.Put(fr)
	}
}

// FrameWithHeaders is implemented by the frame variants that carry a
// header-block fragment (Headers, PushPromise, Continuation).
type FrameWithHeaders interface {
	Frame
	Headers() []byte
	EndHeaders() bool
}
