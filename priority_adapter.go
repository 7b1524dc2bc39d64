package http2

// RequestPriority is the explicit priority a caller can attach to a
// request: a dependency stream, a wire weight byte (0-255, meaning a
// weight of 1-256), and whether the
// dependency is exclusive. It mirrors the wire fields of a HEADERS or
// PRIORITY frame (priority.go, headers.go) one-to-one.
type RequestPriority struct {
	DependsOn uint32
	Weight    byte
	Exclusive bool
}

// ContentTypeHint builds a func(contentType string) RequestPriority that
// applies a simple, opinionated heuristic: documents and API payloads
// (HTML/JSON) get the highest weight, stylesheets/scripts a middling
// one, images and fonts a low one, and any other content type the
// lowest — so a page's markup and data finish before its images do,
// without the core protocol engine knowing anything about content types.
//
// Nothing in this package calls it or consumes its result: requests
// carry no priority field, and HEADERS frames are sent without priority
// information.
func ContentTypeHint() func(contentType string) RequestPriority {
	return func(contentType string) RequestPriority {
		ct := lowerASCII(contentType)

		switch {
		case contains(ct, "html"), contains(ct, "json"):
			return RequestPriority{Weight: 255}
		case contains(ct, "css"), contains(ct, "javascript"):
			return RequestPriority{Weight: 183}
		case contains(ct, "image"), contains(ct, "font"):
			return RequestPriority{Weight: 40}
		default:
			return RequestPriority{Weight: 16}
		}
	}
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
