package wire

import (
	"encoding/binary"
	"math"
)

// reader is a bounds-checked big-endian cursor over one payload. The
// first out-of-range read latches an error; callers check Err once after
// decoding every field.
type reader struct {
	b   []byte
	off int
	err *Error
}

func newReader(b []byte) *reader { return &reader{b: b} }

func (r *reader) fail() {
	if r.err == nil {
		r.err = werr(PAYLOAD_TOO_SMALL, "truncated payload")
	}
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.b) {
		r.fail()
		return nil
	}
	out := r.b[r.off : r.off+n]
	r.off += n
	return out
}

func (r *reader) U8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) U16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) U32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *reader) U64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *reader) I64() int64 { return int64(r.U64()) }

func (r *reader) F32() float32 { return math.Float32frombits(r.U32()) }

func (r *reader) F64() float64 { return math.Float64frombits(r.U64()) }

// Bytes copies n raw bytes out of the payload.
func (r *reader) Bytes(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// String reads a fixed-width NUL-right-padded UTF-8 field.
func (r *reader) String(width int) string {
	b := r.take(width)
	if b == nil {
		return ""
	}
	return trimPadding(b)
}

// Remaining reports unread bytes; a payload with trailing garbage decodes
// but the id-specific decoder rejects it.
func (r *reader) Remaining() int { return len(r.b) - r.off }

func (r *reader) Err() *Error { return r.err }

func trimPadding(b []byte) string {
	end := len(b)
	for i, c := range b {
		if c == 0 {
			end = i
			break
		}
	}
	return string(b[:end])
}

// writer is the encode-side counterpart; it never fails, fixed-width
// strings are truncated and NUL-padded to their declared width.
type writer struct {
	b []byte
}

func newWriter(capacity int) *writer { return &writer{b: make([]byte, 0, capacity)} }

func (w *writer) U8(v uint8) { w.b = append(w.b, v) }

func (w *writer) U16(v uint16) {
	w.b = binary.BigEndian.AppendUint16(w.b, v)
}

func (w *writer) U32(v uint32) {
	w.b = binary.BigEndian.AppendUint32(w.b, v)
}

func (w *writer) U64(v uint64) {
	w.b = binary.BigEndian.AppendUint64(w.b, v)
}

func (w *writer) I64(v int64) { w.U64(uint64(v)) }

func (w *writer) F32(v float32) { w.U32(math.Float32bits(v)) }

func (w *writer) F64(v float64) { w.U64(math.Float64bits(v)) }

func (w *writer) Bytes(b []byte) { w.b = append(w.b, b...) }

func (w *writer) String(s string, width int) {
	if len(s) > width {
		s = s[:width]
	}
	w.b = append(w.b, s...)
	for i := len(s); i < width; i++ {
		w.b = append(w.b, 0)
	}
}

func (w *writer) Finish() []byte { return w.b }
