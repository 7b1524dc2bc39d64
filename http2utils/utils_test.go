package http2utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUint24RoundTrip(t *testing.T) {
	b := make([]byte, 3)
	PutUint24(b, 0xabcdef)
	require.EqualValues(t, 0xabcdef, Uint24(b))
}

func TestUint32RoundTrip(t *testing.T) {
	b := make([]byte, 4)
	PutUint32(b, 0xdeadbeef)
	require.EqualValues(t, 0xdeadbeef, Uint32(b))
}

func TestAppendUint32(t *testing.T) {
	dst := AppendUint32([]byte("x"), 1)
	require.Equal(t, []byte{'x', 0, 0, 0, 1}, dst)
}

func TestEqualFold(t *testing.T) {
	require.True(t, EqualFold([]byte("Content-Type"), []byte("content-type")))
	require.False(t, EqualFold([]byte("Content-Type"), []byte("content-length")))
	require.False(t, EqualFold([]byte("a"), []byte("ab")))
}

func TestResizeGrowsAndReuses(t *testing.T) {
	b := make([]byte, 2, 10)
	out := Resize(b, 5)
	require.Len(t, out, 5)
	require.Same(t, &b[0], &out[0])

	b2 := make([]byte, 2, 2)
	out2 := Resize(b2, 5)
	require.Len(t, out2, 5)
}

func TestCutPaddingRoundTrip(t *testing.T) {
	padded := AddPadding([]byte("payload-data"))
	unpadded, err := CutPadding(padded, len(padded))
	require.NoError(t, err)
	require.Equal(t, []byte("payload-data"), unpadded)
}

func TestCutPaddingRejectsOversizedPadLength(t *testing.T) {
	payload := []byte{10, 'a', 'b'} // pad length 10 >= frame length 3
	_, err := CutPadding(payload, len(payload))
	require.Error(t, err)
}

func TestCutPaddingRejectsEmptyPayload(t *testing.T) {
	_, err := CutPadding(nil, 0)
	require.Error(t, err)
}
