// Package codec implements the canonical binary encoding of section
// 4.1: fixed-width big-endian integers, length-prefixed strings/bytes,
// sorted-key maps, tagged sum types, and 0x00/0x01 optionals. It is the
// single encoding used for everything written to disk, hashed, or
// compared for equality across platforms (P1, P2).
package codec

import (
	"encoding/binary"
	"sort"

	"github.com/cathedral-fabric/fabric/pkg/core"
)

// Writer accumulates a canonical byte sequence. It never fails: all bound
// checks happen on the Reader side, where malformed input is possible.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Finish returns the accumulated encoding.
func (w *Writer) Finish() []byte { return w.buf }

// Bool writes a single 0x00/0x01 byte.
func (w *Writer) Bool(v bool) {
	if v {
		w.buf = append(w.buf, 0x01)
	} else {
		w.buf = append(w.buf, 0x00)
	}
}

// U32 writes a fixed-width big-endian uint32.
func (w *Writer) U32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

// U64 writes a fixed-width big-endian uint64.
func (w *Writer) U64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

// Raw appends bytes verbatim with no length prefix; used for fixed-size
// fields (hashes, 16-byte ids) whose length is implied by the type.
func (w *Writer) Raw(b []byte) { w.buf = append(w.buf, b...) }

// Hash writes a fixed 32-byte field (a core.Hash).
func (w *Writer) Hash(h core.Hash) { w.buf = append(w.buf, h[:]...) }

// ID16 writes a fixed 16-byte id.
func (w *Writer) ID16(b [16]byte) { w.buf = append(w.buf, b[:]...) }

// Bytes writes a (u32 length, bytes) field.
func (w *Writer) Bytes(b []byte) {
	w.U32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// String writes a (u32 length, UTF-8 bytes) field.
func (w *Writer) String(s string) { w.Bytes([]byte(s)) }

// Discriminant writes a sum-type tag.
func (w *Writer) Discriminant(tag uint32) { w.U32(tag) }

// OptionalHash writes the 0x00/0x01-tagged optional-hash encoding.
func (w *Writer) OptionalHash(h *core.Hash) {
	if h == nil {
		w.Bool(false)
		return
	}
	w.Bool(true)
	w.Hash(*h)
}

// OptionalID writes a 0x00/0x01-tagged optional 16-byte id.
func (w *Writer) OptionalID(b *[16]byte) {
	if b == nil {
		w.Bool(false)
		return
	}
	w.Bool(true)
	w.ID16(*b)
}

// OptionalString writes a 0x00/0x01-tagged optional string.
func (w *Writer) OptionalString(s *string) {
	if s == nil {
		w.Bool(false)
		return
	}
	w.Bool(true)
	w.String(*s)
}

// SortedMapKeys sorts keys by their canonical-encoded byte representation
// (here, simply lexicographic byte order on the UTF-8 key, which is what
// section 4.1 calls for: "ordered by canonical-encoded key bytes,
// lexicographic").
func SortedMapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Reader consumes a canonical byte sequence produced by Writer, failing
// closed with InvalidEncoding/EncodingOverflow on any malformed input.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps b for sequential canonical decoding.
func NewReader(b []byte) *Reader { return &Reader{buf: b} }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, core.NewError(core.CodeEncodingOverflow, "unexpected end of canonical buffer")
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Bool reads a single 0x00/0x01 byte.
func (r *Reader) Bool() (bool, error) {
	b, err := r.take(1)
	if err != nil {
		return false, err
	}
	switch b[0] {
	case 0x00:
		return false, nil
	case 0x01:
		return true, nil
	default:
		return false, core.NewError(core.CodeInvalidEncoding, "invalid boolean tag")
	}
}

// U32 reads a fixed-width big-endian uint32.
func (r *Reader) U32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// U64 reads a fixed-width big-endian uint64.
func (r *Reader) U64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// Raw reads exactly n bytes verbatim.
func (r *Reader) Raw(n int) ([]byte, error) { return r.take(n) }

// Hash reads a fixed 32-byte hash field.
func (r *Reader) Hash() (core.Hash, error) {
	b, err := r.take(core.HashLen)
	if err != nil {
		return core.Hash{}, err
	}
	var h core.Hash
	copy(h[:], b)
	return h, nil
}

// ID16 reads a fixed 16-byte id field.
func (r *Reader) ID16() ([16]byte, error) {
	b, err := r.take(16)
	if err != nil {
		return [16]byte{}, err
	}
	var id [16]byte
	copy(id[:], b)
	return id, nil
}

// maxFieldLen bounds length-prefixed fields against a pathological length
// prefix triggering a huge allocation from malformed/truncated input.
const maxFieldLen = 256 << 20 // 256MiB

// Bytes reads a (u32 length, bytes) field.
func (r *Reader) Bytes() ([]byte, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	if n > maxFieldLen {
		return nil, core.NewError(core.CodeEncodingOverflow, "length-prefixed field exceeds bound")
	}
	return r.take(int(n))
}

// String reads a (u32 length, UTF-8 bytes) field.
func (r *Reader) String() (string, error) {
	b, err := r.Bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Discriminant reads a sum-type tag.
func (r *Reader) Discriminant() (uint32, error) { return r.U32() }

// OptionalHash reads a 0x00/0x01-tagged optional hash.
func (r *Reader) OptionalHash() (*core.Hash, error) {
	present, err := r.Bool()
	if err != nil || !present {
		return nil, err
	}
	h, err := r.Hash()
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// OptionalID reads a 0x00/0x01-tagged optional 16-byte id.
func (r *Reader) OptionalID() (*[16]byte, error) {
	present, err := r.Bool()
	if err != nil || !present {
		return nil, err
	}
	id, err := r.ID16()
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// OptionalString reads a 0x00/0x01-tagged optional string.
func (r *Reader) OptionalString() (*string, error) {
	present, err := r.Bool()
	if err != nil || !present {
		return nil, err
	}
	s, err := r.String()
	if err != nil {
		return nil, err
	}
	return &s, nil
}
