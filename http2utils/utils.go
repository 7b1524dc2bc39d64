// Package http2utils holds the small byte-level helpers
// shared by the frame and HPACK codecs: big-endian packing for the
// 24-bit length field every frame header carries, the 32-bit fields
// frame payloads carry, and the padding helpers DATA/HEADERS/PUSH_PROMISE
// frames use.
package http2utils

import (
	"crypto/rand"
	"fmt"

	"github.com/valyala/fastrand"
)

// PutUint24 writes the low 24 bits of n into b (big-endian). b must have
// length >= 3.
func PutUint24(b []byte, n uint32) {
	_ = b[2]
	b[0] = byte(n >> 16)
	b[1] = byte(n >> 8)
	b[2] = byte(n)
}

// Uint24 reads a big-endian 24-bit unsigned integer from b.
func Uint24(b []byte) uint32 {
	_ = b[2]
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// PutUint32 writes n into b (big-endian). b must have length >= 4.
func PutUint32(b []byte, n uint32) {
	_ = b[3]
	b[0] = byte(n >> 24)
	b[1] = byte(n >> 16)
	b[2] = byte(n >> 8)
	b[3] = byte(n)
}

// Uint32 reads a big-endian uint32 from b.
func Uint32(b []byte) uint32 {
	_ = b[3]
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// AppendUint32 appends the big-endian encoding of n to dst.
func AppendUint32(dst []byte, n uint32) []byte {
	return append(dst, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
}

// EqualFold reports whether a and b are equal ASCII byte strings,
// ignoring case. Header names in HTTP/2 are required to already be
// lowercase on the wire; this is for matching caller-supplied names
// (e.g. "Content-Type") against lowercase constants before encoding.
func EqualFold(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// Resize grows b (reusing its backing array when there's room) so that
// len(b) == n, without scrubbing the newly exposed bytes.
func Resize(b []byte, n int) []byte {
	if cap(b) >= n {
		return b[:n]
	}
	grown := make([]byte, n)
	copy(grown, b)
	return grown
}

// CutPadding strips the PADDED-flag prefix (1 pad-length byte plus that
// many trailing bytes) from payload, where length is the frame's
// declared total payload length. A pad length that would consume the
// whole frame or more is a protocol error, not a panic.
func CutPadding(payload []byte, length int) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("h2c: padded frame has empty payload")
	}
	pad := int(payload[0])
	if pad >= length {
		return nil, fmt.Errorf("h2c: pad length %d >= frame length %d", pad, length)
	}
	return payload[1 : length-pad], nil
}

// AddPadding prepends a random pad-length byte and appends that many
// random bytes to b, returning the padded frame payload.
func AddPadding(b []byte) []byte {
	padLen := int(fastrand.Uint32n(247)) + 9
	out := Resize(nil, 1+len(b)+padLen)
	out[0] = byte(padLen)
	copy(out[1:], b)
	rand.Read(out[1+len(b):])
	return out
}
