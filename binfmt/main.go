// Package binfmt reads and writes the positional little-endian save format.
// Records carry no tags; field order is the contract.
package binfmt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// ErrDecode is wrapped by every error returned from Reader.
var ErrDecode = errors.New("binfmt: malformed record")

// Writer appends fields to an io.Writer. The first error sticks; later writes are no-ops.
type Writer struct {
	w   io.Writer
	buf [binary.MaxVarintLen64]byte
	err error
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) Err() error {
	return w.err
}

func (w *Writer) write(p []byte) {
	if w.err != nil {
		return
	}
	_, w.err = w.w.Write(p)
}

func (w *Writer) Int32(v int32) {
	binary.LittleEndian.PutUint32(w.buf[:4], uint32(v))
	w.write(w.buf[:4])
}

// Int writes v as an int32, failing if it does not fit.
func (w *Writer) Int(v int) {
	if v < math.MinInt32 || v > math.MaxInt32 {
		if w.err == nil {
			w.err = fmt.Errorf("binfmt: %d overflows int32", v)
		}
		return
	}
	w.Int32(int32(v))
}

func (w *Writer) Int64(v int64) {
	binary.LittleEndian.PutUint64(w.buf[:8], uint64(v))
	w.write(w.buf[:8])
}

func (w *Writer) Uint32(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[:4], v)
	w.write(w.buf[:4])
}

func (w *Writer) Float32(v float32) {
	w.Uint32(math.Float32bits(v))
}

func (w *Writer) Bool(v bool) {
	if v {
		w.buf[0] = 1
	} else {
		w.buf[0] = 0
	}
	w.write(w.buf[:1])
}

// Text writes a 7-bit encoded byte length followed by the UTF-8 bytes.
func (w *Writer) Text(s string) {
	n := binary.PutUvarint(w.buf[:], uint64(len(s)))
	w.write(w.buf[:n])
	w.write([]byte(s))
}

// Reader consumes fields from a byte slice. The first error sticks.
type Reader struct {
	data []byte
	off  int
	err  error
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// ReadAll reads r fully and returns a Reader over its contents.
func ReadAll(r io.Reader) (*Reader, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return NewReader(data), nil
}

func (r *Reader) Err() error {
	return r.err
}

// Remaining is the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}

func (r *Reader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: offset %d: %s", ErrDecode, r.off, fmt.Sprintf(format, args...))
	}
}

func (r *Reader) take(n int, what string) []byte {
	if r.err != nil {
		return nil
	}
	if n > r.Remaining() {
		r.fail("%s needs %d bytes, %d available", what, n, r.Remaining())
		return nil
	}
	p := r.data[r.off : r.off+n]
	r.off += n
	return p
}

func (r *Reader) Int32() int32 {
	p := r.take(4, "int32")
	if p == nil {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(p))
}

func (r *Reader) Int() int {
	return int(r.Int32())
}

func (r *Reader) Int64() int64 {
	p := r.take(8, "int64")
	if p == nil {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(p))
}

func (r *Reader) Uint32() uint32 {
	p := r.take(4, "uint32")
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(p)
}

func (r *Reader) Float32() float32 {
	return math.Float32frombits(r.Uint32())
}

func (r *Reader) Bool() bool {
	p := r.take(1, "bool")
	if p == nil {
		return false
	}
	switch p[0] {
	case 0:
		return false
	case 1:
		return true
	default:
		r.off--
		r.fail("bool byte %d", p[0])
		return false
	}
}

// Count reads an int32 element count and rejects negative values.
func (r *Reader) Count(what string) int {
	n := r.Int32()
	if r.err != nil {
		return 0
	}
	if n < 0 {
		r.fail("negative %s count %d", what, n)
		return 0
	}
	return int(n)
}

func (r *Reader) Text() string {
	if r.err != nil {
		return ""
	}
	n, size := binary.Uvarint(r.data[r.off:])
	if size <= 0 {
		r.fail("string length prefix")
		return ""
	}
	r.off += size
	if n > uint64(r.Remaining()) {
		r.fail("string of %d bytes overruns %d available", n, r.Remaining())
		return ""
	}
	return string(r.take(int(n), "string"))
}

// Done fails unless every byte was consumed.
func (r *Reader) Done() error {
	if r.err != nil {
		return r.err
	}
	if r.Remaining() != 0 {
		r.fail("%d trailing bytes", r.Remaining())
	}
	return r.err
}
