package wire

import (
	"encoding/binary"
	"fmt"
)

// writer and reader implement the deterministic length-prefixed binary
// encoding spec'd as bincode-compatible: fixed-width little-endian
// integers, a uint32 length prefix ahead of every variable-length byte
// slice, one leading discriminant byte per sum type.
type writer struct {
	buf []byte
}

func (w *writer) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *writer) u16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *writer) u32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }

func (w *writer) bytes(b []byte) {
	w.u32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

type reader struct {
	buf []byte
	pos int
}

// allowTrailingBytes is implicit: Decode functions never check that the
// reader is fully consumed; trailing bytes past the known fields are
// tolerated.
func newReader(b []byte) *reader { return &reader{buf: b} }

func (r *reader) need(n int) {
	if r.pos+n > len(r.buf) {
		panic(fmt.Sprintf("wire: short buffer, need %d bytes at offset %d of %d", n, r.pos, len(r.buf)))
	}
}

func (r *reader) u8() uint8 {
	r.need(1)
	v := r.buf[r.pos]
	r.pos++
	return v
}

func (r *reader) u16() uint16 {
	r.need(2)
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v
}

func (r *reader) u32() uint32 {
	r.need(4)
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v
}

func (r *reader) bytes() []byte {
	n := int(r.u32())
	r.need(n)
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}
