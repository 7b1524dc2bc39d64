package http2

// Pseudo-header and well-known field names used when building request
// header blocks. Kept as []byte so HeaderField.SetBytes can use them
// without an allocation.
//
// https://tools.ietf.org/html/rfc7540#section-8.1.2.3
var (
	StringAuthority     = []byte(":authority")
	StringMethod        = []byte(":method")
	StringPath          = []byte(":path")
	StringScheme        = []byte(":scheme")
	StringStatus        = []byte(":status")
	StringUserAgent     = []byte("user-agent")
	StringContentLength = []byte("content-length")
	StringContentType   = []byte("content-type")
)

// ToLower returns b lowercased, reusing b's backing array. HTTP/2 requires
// header field names to be ASCII-lowercase on the wire (RFC 7540 §8.1.2).
func ToLower(b []byte) []byte {
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return b
}
