package http2

import (
	"sync"
	"time"
)

// rapidResetWindow is how far back the reset ring buffer looks when
// deciding whether the peer is resetting this connection's streams
// abusively fast (the CVE-2023-44487 rapid-reset pattern).
const rapidResetWindow = time.Minute

// creationWindow is how far back the creation-rate ring buffer looks.
const creationWindow = time.Second

// rapidResetAge is how soon after creation a stream's close counts as a
// "rapid reset" rather than an ordinary, unremarkable cancellation.
const rapidResetAge = 100 * time.Millisecond

// streamTable owns every stream this Conn has opened, plus the
// bookkeeping needed to notice a rapid-reset pattern in the RST_STREAM
// frames the peer sends, and a stream-creation rate above the
// configured limit.
type streamTable struct {
	mu      sync.Mutex
	streams map[uint32]*stream

	resets    []time.Time
	creations []time.Time
	rapid     int // streams closed under rapidResetAge after creation

	resetsPerMinute int
	creationsPerSec int
}

func newStreamTable(resetsPerMinute, creationsPerSec int) *streamTable {
	if resetsPerMinute <= 0 {
		resetsPerMinute = 1000
	}
	if creationsPerSec <= 0 {
		creationsPerSec = 100
	}
	return &streamTable{
		streams:         make(map[uint32]*stream),
		resetsPerMinute: resetsPerMinute,
		creationsPerSec: creationsPerSec,
	}
}

// open creates and tracks a new stream, reporting whether this
// connection has now opened more streams than creationsPerSec allows in
// the trailing creationWindow.
func (st *streamTable) open(id uint32, initialWindow int32, now time.Time) (*stream, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	cutoff := now.Add(-creationWindow)
	kept := st.creations[:0]
	for _, t := range st.creations {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	st.creations = kept

	s := newStream(id, initialWindow)
	s.createdAt = now
	st.streams[id] = s

	return s, len(st.creations) > st.creationsPerSec
}

func (st *streamTable) get(id uint32) (*stream, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.streams[id]
	return s, ok
}

func (st *streamTable) close(id uint32) {
	st.mu.Lock()
	defer st.mu.Unlock()

	delete(st.streams, id)
}

func (st *streamTable) len() int {
	st.mu.Lock()
	defer st.mu.Unlock()

	return len(st.streams)
}

// recordReset appends now to the reset ring buffer and reports whether
// more streams than resetsPerMinute allows have been reset in the
// trailing rapidResetWindow — a signal the caller should close this
// connection. If id names a stream reset within rapidResetAge of its
// own creation, it's additionally counted as a rapid reset.
func (st *streamTable) recordReset(id uint32, now time.Time) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	if s, ok := st.streams[id]; ok && !s.createdAt.IsZero() && now.Sub(s.createdAt) < rapidResetAge {
		st.rapid++
	}

	cutoff := now.Add(-rapidResetWindow)
	kept := st.resets[:0]
	for _, t := range st.resets {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	st.resets = kept

	return len(st.resets) > st.resetsPerMinute
}

// rapidResets returns the running count of streams reset (as passed to
// recordReset) within rapidResetAge of being opened.
func (st *streamTable) rapidResets() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.rapid
}
