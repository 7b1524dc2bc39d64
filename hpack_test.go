package http2

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHPACKStaticIndexedField(t *testing.T) {
	hp := AcquireHPACK()
	defer ReleaseHPACK(hp)

	hf := AcquireHeaderField()
	defer ReleaseHeaderField(hf)
	hf.SetKey(":method")
	hf.SetValue("GET")

	dst := hp.AppendHeader(nil, hf, true)

	// ":method: GET" is static-table entry #2 — a single indexed byte.
	require.Len(t, dst, 1)
	require.Equal(t, byte(0x80|2), dst[0])

	dec := AcquireHPACK()
	defer ReleaseHPACK(dec)

	out := AcquireHeaderField()
	defer ReleaseHeaderField(out)

	rest, err := dec.Next(out, dst)
	require.NoError(t, err)
	require.Empty(t, rest)
	require.Equal(t, ":method", string(out.KeyBytes()))
	require.Equal(t, "GET", string(out.ValueBytes()))
}

func TestHPACKLiteralRoundTripAndDynamicTable(t *testing.T) {
	enc := AcquireHPACK()
	defer ReleaseHPACK(enc)
	dec := AcquireHPACK()
	defer ReleaseHPACK(dec)

	hf := AcquireHeaderField()
	defer ReleaseHeaderField(hf)
	hf.SetKey("x-custom-header")
	hf.SetValue("some-value-that-is-not-in-the-static-table")

	dst := enc.AppendHeader(nil, hf, true)
	require.NotEmpty(t, dst)
	require.Equal(t, 1, len(enc.dynamic))

	out := AcquireHeaderField()
	defer ReleaseHeaderField(out)
	rest, err := dec.Next(out, dst)
	require.NoError(t, err)
	require.Empty(t, rest)
	require.Equal(t, "x-custom-header", string(out.KeyBytes()))
	require.Equal(t, "some-value-that-is-not-in-the-static-table", string(out.ValueBytes()))
	require.Equal(t, 1, len(dec.dynamic))

	// a second call should now find the name in the dynamic table (a
	// shorter, name-only-indexed literal) and insert a second entry, since
	// incremental indexing always appends rather than deduplicating.
	dst2 := enc.AppendHeader(nil, hf, true)
	require.Equal(t, 2, len(enc.dynamic))

	out2 := AcquireHeaderField()
	defer ReleaseHeaderField(out2)
	_, err = dec.Next(out2, dst2)
	require.NoError(t, err)
	require.Equal(t, "x-custom-header", string(out2.KeyBytes()))
	require.Equal(t, "some-value-that-is-not-in-the-static-table", string(out2.ValueBytes()))
}

func TestHPACKSensitiveFieldNeverIndexed(t *testing.T) {
	enc := AcquireHPACK()
	defer ReleaseHPACK(enc)

	hf := AcquireHeaderField()
	defer ReleaseHeaderField(hf)
	hf.SetKey("authorization")
	hf.SetValue("Bearer secret-token")
	hf.sensible = true

	dst := enc.AppendHeader(nil, hf, true)
	require.Empty(t, enc.dynamic, "a sensitive field must never be inserted into the dynamic table")

	// top nibble 0001 marks literal-never-indexed.
	require.Equal(t, byte(0x10), dst[0]&0xf0)
}

func TestHPACKDynamicTableEviction(t *testing.T) {
	hp := AcquireHPACK()
	defer ReleaseHPACK(hp)
	hp.SetMaxTableSize(64)

	for i := 0; i < 10; i++ {
		hf := AcquireHeaderField()
		hf.SetKey("x-header")
		hf.SetValue("01234567890123456789")
		hp.AppendHeader(nil, hf, true)
		ReleaseHeaderField(hf)
	}

	require.LessOrEqual(t, hp.size, 64)
}

func TestHPACKDynamicTableSizeUpdate(t *testing.T) {
	dec := AcquireHPACK()
	defer ReleaseHPACK(dec)

	// dynamic table size update to 0: prefix 001, 5-bit value.
	src := []byte{0x20}
	out := AcquireHeaderField()
	defer ReleaseHeaderField(out)

	rest, err := dec.Next(out, src)
	require.NoError(t, err)
	require.Empty(t, rest)
	require.Equal(t, 0, dec.tableSize)
}

func TestHPACKRejectsOversizedHeaderList(t *testing.T) {
	hp := AcquireHPACK()
	defer ReleaseHPACK(hp)
	hp.decodedSize = maxDecodedHeaderListSize

	hf := AcquireHeaderField()
	defer ReleaseHeaderField(hf)
	hf.SetKey("k")
	hf.SetValue("v")

	_, err := hp.checkSize(hf, nil)
	require.ErrorIs(t, err, ErrEnhanceYourCalm)
}

func TestHuffmanEncodeDecodeRoundTrip(t *testing.T) {
	cases := []string{
		"www.example.com",
		"no-cache",
		"custom-key",
		"custom-value",
		"",
		"a",
	}

	for _, c := range cases {
		enc := appendHuffman(nil, []byte(c))
		dec, err := appendHuffmanDecode(nil, enc)
		require.NoError(t, err)
		require.Equal(t, c, string(dec))
	}
}

func TestAppendIntDecodeIntRoundTrip(t *testing.T) {
	values := []int{0, 10, 31, 127, 128, 1337, 65535, 1 << 20}

	for _, v := range values {
		for _, prefix := range []uint8{4, 5, 7} {
			dst := appendInt(nil, prefix, v, 0)
			got, n, err := decodeInt(dst, prefix)
			require.NoError(t, err)
			require.Equal(t, v, got)
			require.Equal(t, len(dst), n)
		}
	}
}
