package http2

import "sync/atomic"

// flowWindow is a single flow-control window (either the connection-wide
// one or a single stream's), guarded by atomic ops so a Conn's reader and
// writer goroutines can both touch it without a mutex.
//
// https://tools.ietf.org/html/rfc7540#section-6.9
type flowWindow struct {
	size int32
}

func newFlowWindow(initial int32) *flowWindow {
	return &flowWindow{size: initial}
}

// Size returns the current window size, which may be negative: a SETTINGS
// change that shrinks the initial window can drive an open stream's
// window below zero until enough WINDOW_UPDATEs arrive to recover it.
func (w *flowWindow) Size() int32 {
	return atomic.LoadInt32(&w.size)
}

// Consume deducts n (a sent/received DATA frame's length) from the window.
func (w *flowWindow) Consume(n int32) {
	atomic.AddInt32(&w.size, -n)
}

// Grant adds n (a received WINDOW_UPDATE increment) to the window. It
// reports ErrFlowControl if doing so would overflow the 31-bit window.
func (w *flowWindow) Grant(n int32) error {
	for {
		cur := atomic.LoadInt32(&w.size)
		next := int64(cur) + int64(n)
		if next > 1<<31-1 {
			return ErrFlowControl
		}
		if atomic.CompareAndSwapInt32(&w.size, cur, int32(next)) {
			return nil
		}
	}
}

// NeedsRefill reports whether the window has dropped below half of max,
// the point at which the teacher's connection issues a WINDOW_UPDATE to
// keep the peer from stalling.
func (w *flowWindow) NeedsRefill(max int32) (int32, bool) {
	cur := w.Size()
	if cur >= max/2 {
		return 0, false
	}
	return max - cur, true
}
