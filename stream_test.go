package http2

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFlowWindowConsumeAndGrant(t *testing.T) {
	w := newFlowWindow(100)
	w.Consume(40)
	require.EqualValues(t, 60, w.Size())

	require.NoError(t, w.Grant(10))
	require.EqualValues(t, 70, w.Size())
}

func TestFlowWindowGrantOverflow(t *testing.T) {
	w := newFlowWindow(1<<31 - 10)
	err := w.Grant(100)
	require.ErrorIs(t, err, ErrFlowControl)
}

func TestFlowWindowNeedsRefill(t *testing.T) {
	w := newFlowWindow(100)
	_, need := w.NeedsRefill(100)
	require.False(t, need)

	w.Consume(60)
	inc, need := w.NeedsRefill(100)
	require.True(t, need)
	require.EqualValues(t, 60, inc)
}

func TestStreamStateTransitions(t *testing.T) {
	s := newStream(1, 65535)
	require.Equal(t, StreamStateIdle, s.state)

	s.openLocal(false)
	require.Equal(t, StreamStateOpen, s.state)
	require.True(t, s.canSendData())
	require.True(t, s.canRecvData())

	s.recvEndStream()
	require.Equal(t, StreamStateHalfClosedRemote, s.state)
	require.True(t, s.canSendData())
	require.False(t, s.canRecvData())
}

func TestStreamOpenLocalWithEndStream(t *testing.T) {
	s := newStream(3, 65535)
	s.openLocal(true)
	require.Equal(t, StreamStateHalfClosedLocal, s.state)
	require.False(t, s.canSendData())
	require.True(t, s.canRecvData())

	s.recvEndStream()
	require.Equal(t, StreamStateClosed, s.state)
}

func TestStreamReset(t *testing.T) {
	s := newStream(5, 65535)
	s.openLocal(false)
	s.reset()
	require.Equal(t, StreamStateClosed, s.state)
}

func TestStreamTableOpenGetClose(t *testing.T) {
	st := newStreamTable(0, 0)

	s, tooFast := st.open(1, 65535, time.Now())
	require.NotNil(t, s)
	require.False(t, tooFast)
	require.Equal(t, 1, st.len())

	got, ok := st.get(1)
	require.True(t, ok)
	require.Same(t, s, got)

	st.close(1)
	require.Equal(t, 0, st.len())

	_, ok = st.get(1)
	require.False(t, ok)
}

func TestStreamTableOpenTripsCreationRate(t *testing.T) {
	st := newStreamTable(0, 2)

	now := time.Now()
	_, tooFast := st.open(1, 65535, now)
	require.False(t, tooFast)
	_, tooFast = st.open(3, 65535, now)
	require.False(t, tooFast)
	_, tooFast = st.open(5, 65535, now)
	require.True(t, tooFast, "a third stream within the same second should trip a limit of 2/s")
}

func TestStreamTableRapidResetThreshold(t *testing.T) {
	st := newStreamTable(3, 0)

	now := time.Now()
	require.False(t, st.recordReset(1, now))
	require.False(t, st.recordReset(3, now))
	require.False(t, st.recordReset(5, now))
	require.True(t, st.recordReset(7, now), "a fourth reset within the window should trip the threshold")
}

func TestStreamTableRapidResetWindowExpires(t *testing.T) {
	st := newStreamTable(1, 0)

	base := time.Now()
	require.False(t, st.recordReset(1, base))

	later := base.Add(2 * time.Minute)
	require.False(t, st.recordReset(3, later), "a reset outside the rolling window should not count toward the old ones")
}

func TestStreamTableRecordResetFlagsRapidClose(t *testing.T) {
	st := newStreamTable(1000, 0)

	now := time.Now()
	s, _ := st.open(9, 65535, now)
	require.NotNil(t, s)

	st.recordReset(9, now.Add(10*time.Millisecond))
	require.Equal(t, 1, st.rapidResets())

	s2, _ := st.open(11, 65535, now)
	require.NotNil(t, s2)
	st.recordReset(11, now.Add(time.Second))
	require.Equal(t, 1, st.rapidResets(), "a reset well after creation is not a rapid reset")
}
