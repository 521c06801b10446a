// Package proxy implements the small proxy value object and a
// two-pass marshaller: a size pass computes the exact aligned body
// size (so App.CreateMessage can allocate it up front), and a write
// pass streams the same sequence of field writes into that buffer,
// zeroing any padding introduced by alignment.
package proxy

import (
	"encoding/binary"
	"math"
)

// Sizer accumulates the aligned size a sequence of field writes will
// need, without touching any buffer. Call the same sequence of
// Sizer/Writer methods to keep the two passes in lockstep.
type Sizer struct {
	off int
}

func (s *Sizer) align(a int) {
	if a <= 1 {
		return
	}
	if r := s.off % a; r != 0 {
		s.off += a - r
	}
}

func (s *Sizer) U8() { s.off += 1 }
func (s *Sizer) U16() { s.align(2); s.off += 2 }
func (s *Sizer) U32() { s.align(4); s.off += 4 }
func (s *Sizer) U64() { s.align(8); s.off += 8 }
func (s *Sizer) FD() { s.align(4); s.off += 4 }
func (s *Sizer) String(v string) {
	s.align(4)
	s.off += 4
	if v != "" {
		s.off += len(v) + 1
	}
}
func (s *Sizer) Bytes(n int, elemAlign int) {
	s.align(max(4, elemAlign))
	s.off += 4 // element count prefix only; the elements are sized by the caller
}
func (s *Sizer) StructAlign(a int) { s.align(a) }

// Size returns the size accumulated so far, with no trailing padding
// added (callers needing a struct's end padding or an 8-byte body
// alignment call Pad explicitly).
func (s *Sizer) Size() int { return s.off }

// Pad rounds the accumulated size up to alignment a.
func (s *Sizer) Pad(a int) { s.align(a) }

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Writer streams field writes into a pre-sized buffer (typically the
// Body of a Message returned by App.CreateMessage), zeroing padding as
// it advances, mirroring message.MessageHeader.EncodeTo(buf).
type Writer struct {
	buf []byte
	off int
}

// NewWriter wraps buf, which must already be sized by a matching
// Sizer pass (and zero-initialized, as make([]byte, n) guarantees).
func NewWriter(buf []byte) *Writer { return &Writer{buf: buf} }

func (w *Writer) align(a int) {
	if a <= 1 {
		return
	}
	if r := w.off % a; r != 0 {
		w.off += a - r // buf bytes here are already zero
	}
}

func (w *Writer) PutU8(v uint8) {
	w.buf[w.off] = v
	w.off++
}
func (w *Writer) PutU16(v uint16) {
	w.align(2)
	binary.LittleEndian.PutUint16(w.buf[w.off:], v)
	w.off += 2
}
func (w *Writer) PutI16(v int16) { w.PutU16(uint16(v)) }
func (w *Writer) PutU32(v uint32) {
	w.align(4)
	binary.LittleEndian.PutUint32(w.buf[w.off:], v)
	w.off += 4
}
func (w *Writer) PutI32(v int32) { w.PutU32(uint32(v)) }
func (w *Writer) PutF32(v float32) { w.PutU32(math.Float32bits(v)) }
func (w *Writer) PutU64(v uint64) {
	w.align(8)
	binary.LittleEndian.PutUint64(w.buf[w.off:], v)
	w.off += 8
}
func (w *Writer) PutI64(v int64) { w.PutU64(uint64(v)) }
func (w *Writer) PutF64(v float64) { w.PutU64(math.Float64bits(v)) }

// PutFD writes the fd sentinel placeholder and returns the body offset at which the real fd value
// must later be written.
func (w *Writer) PutFD() (offset int) {
	w.align(4)
	offset = w.off
	binary.LittleEndian.PutUint32(w.buf[w.off:], 0xFFFFFFFF)
	w.off += 4
	return offset
}

// PutString writes the length-prefixed, zero-terminated string
// encoding: a 32-bit count including the trailing NUL (0 for the
// empty string, with no terminator byte at all).
func (w *Writer) PutString(v string) {
	w.align(4)
	if v == "" {
		binary.LittleEndian.PutUint32(w.buf[w.off:], 0)
		w.off += 4
		return
	}
	n := len(v) + 1
	binary.LittleEndian.PutUint32(w.buf[w.off:], uint32(n))
	w.off += 4
	copy(w.buf[w.off:], v)
	w.off += len(v)
	w.buf[w.off] = 0
	w.off++
}

// Align pads to alignment a (struct end-padding / message body
// padding); the underlying buffer is already zeroed.
func (w *Writer) Align(a int) { w.align(a) }

// Off returns the number of bytes written so far.
func (w *Writer) Off() int { return w.off }

// Commit asserts the writer consumed exactly the buffer's declared
// length. It panics on mismatch: a mismatch means the Sizer and
// Writer passes fell out of lockstep, a programming error in the
// generated marshaller, not a runtime condition callers can recover
// from.
func (w *Writer) Commit() {
	if w.off != len(w.buf) {
		panic("proxy: marshalled length does not match pre-computed size")
	}
}
