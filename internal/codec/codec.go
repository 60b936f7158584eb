// Package codec implements the fixed binary wire format shared by the sync
// protocol and the on-disk database file. The format is not self-describing
// and not versioned: both ends must agree on the schema out of band.
package codec

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// Discriminator bytes for Option encoding.
const (
	optionPresent byte = 0x3A
	optionAbsent  byte = 0xCC
)

// Writer appends values to an in-memory buffer using the wire format.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the accumulated encoding.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Byte appends a single raw byte (used for tag/discriminator bytes).
func (w *Writer) Byte(b byte) {
	w.buf = append(w.buf, b)
}

// Raw appends raw bytes with no length prefix.
func (w *Writer) Raw(b []byte) {
	w.buf = append(w.buf, b...)
}

// U64 appends a big-endian uint64.
func (w *Writer) U64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// U32 appends a big-endian uint32.
func (w *Writer) U32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// I64 appends a big-endian int64.
func (w *Writer) I64(v int64) {
	w.U64(uint64(v))
}

// F64 appends a big-endian IEEE-754 float64.
func (w *Writer) F64(v float64) {
	w.U64(math.Float64bits(v))
}

// Bool appends a single byte: 1 for true, 0 for false.
func (w *Writer) Bool(v bool) {
	if v {
		w.Byte(1)
	} else {
		w.Byte(0)
	}
}

// Usize appends a length/size/id value, always encoded as 64-bit big-endian.
func (w *Writer) Usize(v uint64) {
	w.U64(v)
}

// String appends a length-prefixed UTF-8 string.
func (w *Writer) String(s string) {
	w.Usize(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

// StringSeq appends a length-prefixed sequence of strings.
func (w *Writer) StringSeq(seq []string) {
	w.Usize(uint64(len(seq)))
	for _, s := range seq {
		w.String(s)
	}
}

// OptionPresent writes the present discriminator; the caller then encodes
// the payload.
func (w *Writer) OptionPresent() {
	w.Byte(optionPresent)
}

// OptionAbsent writes the absent discriminator.
func (w *Writer) OptionAbsent() {
	w.Byte(optionAbsent)
}

// OptU64 appends an Option<u64>.
func (w *Writer) OptU64(v *uint64) {
	if v == nil {
		w.OptionAbsent()
		return
	}
	w.OptionPresent()
	w.U64(*v)
}

// OptString appends an Option<String>.
func (w *Writer) OptString(v *string) {
	if v == nil {
		w.OptionAbsent()
		return
	}
	w.OptionPresent()
	w.String(*v)
}

// U64Seq appends a length-prefixed sequence of uint64 ids.
func (w *Writer) U64Seq(seq []uint64) {
	w.Usize(uint64(len(seq)))
	for _, v := range seq {
		w.U64(v)
	}
}

// BytesField appends a length-prefixed raw byte slice.
func (w *Writer) BytesField(b []byte) {
	w.Usize(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteTo flushes the accumulated buffer to an io.Writer.
func (w *Writer) WriteTo(dst io.Writer) error {
	_, err := dst.Write(w.buf)
	return errors.Wrap(err, "codec: write encoded bytes")
}

// Reader consumes values from a byte slice using the wire format. It never
// panics on malformed input; every accessor returns an error instead.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential decoding.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

// Pos returns the number of bytes consumed so far, for callers that decode
// incrementally off a stream and need to know how much of their
// accumulation buffer a successful decode used.
func (r *Reader) Pos() int {
	return r.pos
}

// ErrShortBuffer is returned when a read runs past the end of the buffer.
var ErrShortBuffer = errors.New("codec: unexpected end of buffer")

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, ErrShortBuffer
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Byte reads a single raw byte.
func (r *Reader) Byte() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// PeekByte reads the next byte without advancing the cursor.
func (r *Reader) PeekByte() (byte, error) {
	if r.Remaining() < 1 {
		return 0, ErrShortBuffer
	}
	return r.buf[r.pos], nil
}

// U64 reads a big-endian uint64.
func (r *Reader) U64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// U32 reads a big-endian uint32.
func (r *Reader) U32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// I64 reads a big-endian int64.
func (r *Reader) I64() (int64, error) {
	v, err := r.U64()
	return int64(v), err
}

// F64 reads a big-endian IEEE-754 float64.
func (r *Reader) F64() (float64, error) {
	v, err := r.U64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// Bool reads a single boolean byte.
func (r *Reader) Bool() (bool, error) {
	b, err := r.Byte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

// Usize reads a length/size/id value (always 64-bit on the wire).
func (r *Reader) Usize() (uint64, error) {
	return r.U64()
}

// maxReasonableLen guards against a corrupt length prefix causing an
// attempted multi-exabyte allocation; it is far larger than any real
// library payload.
const maxReasonableLen = 1 << 34

// String reads a length-prefixed UTF-8 string.
func (r *Reader) String() (string, error) {
	n, err := r.Usize()
	if err != nil {
		return "", err
	}
	if n > maxReasonableLen {
		return "", errors.Wrap(ErrShortBuffer, "codec: implausible string length")
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// StringSeq reads a length-prefixed sequence of strings.
func (r *Reader) StringSeq() ([]string, error) {
	n, err := r.Usize()
	if err != nil {
		return nil, err
	}
	if n > maxReasonableLen {
		return nil, errors.Wrap(ErrShortBuffer, "codec: implausible sequence length")
	}
	out := make([]string, 0, n)
	for i := uint64(0); i < n; i++ {
		s, err := r.String()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// optionTag reads the discriminator byte and reports whether a payload
// follows. An unrecognized discriminator is treated as absent, matching the
// codec's "degrade to a safe default" posture for malformed input.
func (r *Reader) optionTag() (bool, error) {
	b, err := r.Byte()
	if err != nil {
		return false, err
	}
	return b == optionPresent, nil
}

// OptU64 reads an Option<u64>.
func (r *Reader) OptU64() (*uint64, error) {
	present, err := r.optionTag()
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	v, err := r.U64()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// OptString reads an Option<String>.
func (r *Reader) OptString() (*string, error) {
	present, err := r.optionTag()
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	v, err := r.String()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// OptU64Seq reads an Option<Vec<u64>>, returning (nil, nil) when absent.
func (r *Reader) OptU64Seq() ([]uint64, error) {
	present, err := r.optionTag()
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	return r.U64Seq()
}

// U64Seq reads a length-prefixed sequence of uint64 ids.
func (r *Reader) U64Seq() ([]uint64, error) {
	n, err := r.Usize()
	if err != nil {
		return nil, err
	}
	if n > maxReasonableLen {
		return nil, errors.Wrap(ErrShortBuffer, "codec: implausible sequence length")
	}
	out := make([]uint64, 0, n)
	for i := uint64(0); i < n; i++ {
		v, err := r.U64()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// BytesField reads a length-prefixed raw byte slice, copying it out of the
// underlying buffer so callers may retain it past the Reader's lifetime.
func (r *Reader) BytesField() ([]byte, error) {
	n, err := r.Usize()
	if err != nil {
		return nil, err
	}
	if n > maxReasonableLen {
		return nil, errors.Wrap(ErrShortBuffer, "codec: implausible byte field length")
	}
	b, err := r.take(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}
