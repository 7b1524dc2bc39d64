package http2

import (
	"sync"

	"golang.org/x/net/http/httpguts"
)

// dynamicEntry is one row of an HPACK dynamic table.
type dynamicEntry struct {
	name, value string
}

// size is the RFC 7541 §4.1 accounting size of the entry: name length +
// value length + 32 bytes of overhead.
func (e dynamicEntry) size() int {
	return len(e.name) + len(e.value) + 32
}

// Flood/bomb defense defaults, consulted per decoded header block.
//
// https://tools.ietf.org/html/rfc7541#section-5.2 and common CVE-2023-*
// HPACK bomb mitigations (oversized dynamic table growth, excessive
// field counts, excessive CONTINUATION fragmentation). The header-list
// size, field count and compression ratio are configurable per HPACK
// instance through its exported fields, which AcquireHPACK defaults to
// these values; the header-list size is further lowered from the peer's
// SETTINGS_MAX_HEADER_LIST_SIZE where one is advertised. The other
// limits are fixed.
const (
	maxDecodedHeaderListSize = 256 << 10 // 256 KiB of decoded header data per block
	maxHeaderFieldCount      = 100       // fields per header block
	maxHeaderNameLength      = 8 << 10   // single field name
	maxHeaderValueLength     = 32 << 10  // single field value
	maxCompressionRatio      = 10        // decoded/encoded on any single block
	maxContinuationFrames    = 10        // CONTINUATION frames per header block
	maxContinuationBytes     = 16 << 10  // accumulated CONTINUATION payload per block
)

// HPACK is an encoder/decoder pair bound to one direction of one
// connection: each side of a Conn owns its own encoder instance (for the
// headers it sends) and decoder instance (for the headers it receives),
// since the dynamic table state is direction-specific.
//
// https://tools.ietf.org/html/rfc7541
type HPACK struct {
	dynamic []dynamicEntry

	tableSize    int // current size limit, mutated by dynamic size updates
	maxTableSize int // ceiling negotiated via SETTINGS_HEADER_TABLE_SIZE
	size         int // bytes currently used by the dynamic table

	DisableCompression bool // when true, string literals are never Huffman-encoded

	// Bomb/flood thresholds for the decode side, consulted by checkSize,
	// Next and checkCompressionRatio. Defaulted by AcquireHPACK to the package constants;
	// MaxDecodedHeaderListSize is further tightened by applyServerSettings
	// when the peer advertises a smaller SETTINGS_MAX_HEADER_LIST_SIZE.
	MaxDecodedHeaderListSize int
	MaxHeaderFieldCount      int
	MaxCompressionRatio      int

	// decode-side accounting, reset at the start of every header block
	decodedSize        int
	fieldCount         int
	continuationFrames int
}

var hpackPool = sync.Pool{
	New: func() interface{} {
		return &HPACK{
			tableSize:                defaultHeaderTableSize,
			maxTableSize:             defaultHeaderTableSize,
			MaxDecodedHeaderListSize: maxDecodedHeaderListSize,
			MaxHeaderFieldCount:      maxHeaderFieldCount,
			MaxCompressionRatio:      maxCompressionRatio,
		}
	},
}

// AcquireHPACK gets an HPACK codec from the pool.
func AcquireHPACK() *HPACK {
	return hpackPool.Get().(*HPACK)
}

// ReleaseHPACK resets hp and returns it to the pool.
func ReleaseHPACK(hp *HPACK) {
	hp.Reset()
	hpackPool.Put(hp)
}

// Reset clears the dynamic table and decode-side counters, keeping the
// negotiated table size ceiling.
func (hp *HPACK) Reset() {
	hp.dynamic = hp.dynamic[:0]
	hp.size = 0
	hp.tableSize = hp.maxTableSize
	hp.DisableCompression = false
	hp.resetDecodeAccounting()
}

func (hp *HPACK) resetDecodeAccounting() {
	hp.decodedSize = 0
	hp.fieldCount = 0
	hp.continuationFrames = 0
}

// SetMaxTableSize sets the maximum dynamic table size this codec will
// honor, evicting entries if the new size is smaller than what's in use.
func (hp *HPACK) SetMaxTableSize(size int) {
	hp.maxTableSize = size
	if hp.tableSize > size {
		hp.tableSize = size
	}
	hp.evictToFit()
}

func (hp *HPACK) evictToFit() {
	for hp.size > hp.tableSize && len(hp.dynamic) > 0 {
		last := hp.dynamic[len(hp.dynamic)-1]
		hp.size -= last.size()
		hp.dynamic = hp.dynamic[:len(hp.dynamic)-1]
	}
}

func (hp *HPACK) insert(name, value string) {
	e := dynamicEntry{name: name, value: value}
	hp.dynamic = append([]dynamicEntry{e}, hp.dynamic...)
	hp.size += e.size()
	hp.evictToFit()
}

// lookup resolves a 1-based combined index into the static table
// (1..61) followed by the dynamic table (62..).
func (hp *HPACK) lookup(index int) (name, value string, ok bool) {
	if index < 1 {
		return "", "", false
	}
	if index <= len(staticTable) {
		e := staticTable[index-1]
		return e.name, e.value, true
	}
	di := index - len(staticTable) - 1
	if di < 0 || di >= len(hp.dynamic) {
		return "", "", false
	}
	e := hp.dynamic[di]
	return e.name, e.value, true
}

// AppendHeader HPACK-encodes hf into dst, consulting the static table,
// then this codec's dynamic table, falling back to a literal. When store
// is true and hf isn't a pseudo-header sensitive field, the field is
// also inserted into the dynamic table as "literal with incremental
// indexing".
func (hp *HPACK) AppendHeader(dst []byte, hf *HeaderField, store bool) []byte {
	name, value := hf.Key(), hf.Value()

	if idx, ok := staticFullIndex[name+"\x00"+value]; ok {
		return appendInt(dst, 7, idx, 0x80)
	}

	if hf.IsSensible() {
		dst = appendInt(dst, 4, 0, 0x10)
		dst = hp.appendLiteralName(dst, name)
		return hp.appendLiteralValue(dst, value)
	}

	nameIdx, nameOK := hp.dynamicNameIndex(name)
	if !nameOK {
		nameIdx, nameOK = staticNameIndex[name]
	}

	if store && !hf.IsPseudo() {
		if nameOK {
			dst = appendInt(dst, 6, nameIdx, 0x40)
		} else {
			dst = appendInt(dst, 6, 0, 0x40)
			dst = hp.appendLiteralName(dst, name)
		}
		dst = hp.appendLiteralValue(dst, value)
		hp.insert(name, value)
		return dst
	}

	if nameOK {
		dst = appendInt(dst, 4, nameIdx, 0x00)
	} else {
		dst = appendInt(dst, 4, 0, 0x00)
		dst = hp.appendLiteralName(dst, name)
	}
	return hp.appendLiteralValue(dst, value)
}

func (hp *HPACK) dynamicNameIndex(name string) (int, bool) {
	for i, e := range hp.dynamic {
		if e.name == name {
			return len(staticTable) + i + 1, true
		}
	}
	return 0, false
}

func (hp *HPACK) appendLiteralName(dst []byte, s string) []byte {
	return hp.appendLiteralValue(dst, s)
}

func (hp *HPACK) appendLiteralValue(dst []byte, s string) []byte {
	if hp.DisableCompression {
		dst = appendInt(dst, 7, len(s), 0x00)
		return append(dst, s...)
	}

	encLen := huffmanEncodedLen([]byte(s))
	if encLen >= len(s) {
		dst = appendInt(dst, 7, len(s), 0x00)
		return append(dst, s...)
	}

	dst = appendInt(dst, 7, encLen, 0x80)
	return appendHuffman(dst, []byte(s))
}

// Next decodes one header field representation from src into hf,
// returning the remaining bytes. A dynamic table size update is applied
// and consumed without filling hf; call Next again to get the next field.
func (hp *HPACK) Next(hf *HeaderField, src []byte) ([]byte, error) {
	if len(src) == 0 {
		return src, ErrMissingBytes
	}

	hp.fieldCount++
	if hp.fieldCount > hp.MaxHeaderFieldCount {
		return src, ErrEnhanceYourCalm
	}

	b := src[0]

	switch {
	case b&0x80 != 0: // indexed header field
		idx, n, err := decodeInt(src, 7)
		if err != nil {
			return src, err
		}
		name, value, ok := hp.lookup(idx)
		if !ok {
			return src, ErrCompression
		}
		hf.SetKey(name)
		hf.SetValue(value)
		return hp.checkSize(hf, src[n:])

	case b&0xc0 == 0x40: // literal with incremental indexing
		return hp.decodeLiteral(hf, src, 6, true)

	case b&0xf0 == 0x00: // literal without indexing
		return hp.decodeLiteral(hf, src, 4, false)

	case b&0xf0 == 0x10: // literal never indexed
		n, err := hp.decodeLiteralInto(hf, src, 4)
		if err != nil {
			return src, err
		}
		hf.sensible = true
		return hp.checkSize(hf, src[n:])

	case b&0xe0 == 0x20: // dynamic table size update
		size, n, err := decodeInt(src, 5)
		if err != nil {
			return src, err
		}
		if size > hp.maxTableSize {
			return src, ErrCompression
		}
		hp.tableSize = size
		hp.evictToFit()
		return src[n:], nil
	}

	return src, ErrCompression
}

func (hp *HPACK) decodeLiteral(hf *HeaderField, src []byte, prefixBits uint8, store bool) ([]byte, error) {
	n, err := hp.decodeLiteralInto(hf, src, prefixBits)
	if err != nil {
		return src, err
	}

	if store {
		hp.insert(hf.Key(), hf.Value())
	}

	return hp.checkSize(hf, src[n:])
}

// decodeLiteralInto parses a literal representation's name+value starting
// at src, returning the number of bytes consumed.
func (hp *HPACK) decodeLiteralInto(hf *HeaderField, src []byte, prefixBits uint8) (int, error) {
	idx, n, err := decodeInt(src, prefixBits)
	if err != nil {
		return 0, err
	}

	if idx == 0 {
		name, nn, err := hp.decodeString(src[n:])
		if err != nil {
			return 0, err
		}
		hf.SetKeyBytes(name)
		n += nn
	} else {
		name, _, ok := hp.lookup(idx)
		if !ok {
			return 0, ErrCompression
		}
		hf.SetKey(name)
	}

	value, nn, err := hp.decodeString(src[n:])
	if err != nil {
		return 0, err
	}
	hf.SetValueBytes(value)
	n += nn

	return n, nil
}

func (hp *HPACK) decodeString(src []byte) ([]byte, int, error) {
	if len(src) == 0 {
		return nil, 0, ErrMissingBytes
	}

	huff := src[0]&0x80 != 0
	strLen, n, err := decodeInt(src, 7)
	if err != nil {
		return nil, 0, err
	}
	if n+strLen > len(src) {
		return nil, 0, ErrMissingBytes
	}

	raw := src[n : n+strLen]
	n += strLen

	if !huff {
		return raw, n, nil
	}

	out, err := appendHuffmanDecode(nil, raw)
	return out, n, err
}

func (hp *HPACK) checkSize(hf *HeaderField, rest []byte) ([]byte, error) {
	if len(hf.KeyBytes()) > maxHeaderNameLength || len(hf.ValueBytes()) > maxHeaderValueLength {
		return rest, ErrEnhanceYourCalm
	}

	hp.decodedSize += hf.Size()
	if hp.decodedSize > hp.MaxDecodedHeaderListSize {
		return rest, ErrEnhanceYourCalm
	}

	if !httpguts.ValidHeaderFieldName(hf.Key()) && !hf.IsPseudo() {
		return rest, ErrProtocol
	}
	if !httpguts.ValidHeaderFieldValue(hf.Value()) {
		return rest, ErrProtocol
	}

	return rest, nil
}

// checkCompressionRatio guards against a header block whose decoded size
// vastly exceeds the bytes it took on the wire — the hallmark of an
// HPACK bomb built from repeated dynamic-table self-references.
// encodedLen is the size of the reassembled header block fed to the
// decoder, across every HEADERS/CONTINUATION frame that made it up.
func (hp *HPACK) checkCompressionRatio(encodedLen int) error {
	if encodedLen == 0 {
		return nil
	}
	if hp.decodedSize > encodedLen*hp.MaxCompressionRatio {
		return ErrEnhanceYourCalm
	}
	return nil
}

// appendInt HPACK-encodes n with an N-bit prefix (RFC 7541 §5.1), OR-ing
// firstByteFlags into the leading byte.
func appendInt(dst []byte, prefixBits uint8, n int, firstByteFlags byte) []byte {
	max := (1 << prefixBits) - 1

	if n < max {
		return append(dst, firstByteFlags|byte(n))
	}

	dst = append(dst, firstByteFlags|byte(max))
	n -= max

	for n >= 128 {
		dst = append(dst, byte(n%128+128))
		n /= 128
	}

	return append(dst, byte(n))
}

// decodeInt decodes an N-bit-prefixed integer from src, returning the
// value and the number of bytes consumed.
func decodeInt(src []byte, prefixBits uint8) (int, int, error) {
	if len(src) == 0 {
		return 0, 0, ErrMissingBytes
	}

	max := (1 << prefixBits) - 1
	n := int(src[0]) & max

	if n < max {
		return n, 1, nil
	}

	var m uint
	for i := 1; i < len(src); i++ {
		b := src[i]
		n += int(b&0x7f) << m
		if n > 1<<31-1 {
			return 0, 0, ErrBitOverflow
		}
		m += 7

		if b&0x80 == 0 {
			return n, i + 1, nil
		}
	}

	return 0, 0, ErrMissingBytes
}
