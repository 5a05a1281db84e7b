package codec

// Little-endian primitives shared by the CPF, CIP and encapsulation codecs.

import (
	"encoding/binary"

	"github.com/tturner/eipcore/internal/errors"
)

// AppendUint16 appends a little-endian uint16 to dst.
func AppendUint16(dst []byte, value uint16) []byte {
	return binary.LittleEndian.AppendUint16(dst, value)
}

// AppendUint32 appends a little-endian uint32 to dst.
func AppendUint32(dst []byte, value uint32) []byte {
	return binary.LittleEndian.AppendUint32(dst, value)
}

// PutUint16 writes a little-endian uint16 into dst[0:2].
func PutUint16(dst []byte, value uint16) {
	binary.LittleEndian.PutUint16(dst, value)
}

// PutUint32 writes a little-endian uint32 into dst[0:4].
func PutUint32(dst []byte, value uint32) {
	binary.LittleEndian.PutUint32(dst, value)
}

// PutUint64 writes a little-endian uint64 into dst[0:8].
func PutUint64(dst []byte, value uint64) {
	binary.LittleEndian.PutUint64(dst, value)
}

// Reader is a forward-only cursor over a borrowed buffer. Every read is
// bounds checked; slices returned by Bytes alias the buffer.
type Reader struct {
	buf []byte
	off int
}

// NewReader returns a Reader positioned at the start of buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	return len(r.buf) - r.off
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int {
	return r.off
}

// Uint8 reads one byte.
func (r *Reader) Uint8(field string) (uint8, error) {
	if r.Len() < 1 {
		return 0, r.short(field, 1)
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

// Uint16 reads a little-endian uint16.
func (r *Reader) Uint16(field string) (uint16, error) {
	if r.Len() < 2 {
		return 0, r.short(field, 2)
	}
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

// Uint32 reads a little-endian uint32.
func (r *Reader) Uint32(field string) (uint32, error) {
	if r.Len() < 4 {
		return 0, r.short(field, 4)
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

// Bytes returns the next n bytes without copying.
func (r *Reader) Bytes(field string, n int) ([]byte, error) {
	if n < 0 || r.Len() < n {
		return nil, r.short(field, n)
	}
	v := r.buf[r.off : r.off+n : r.off+n]
	r.off += n
	return v, nil
}

// Rest returns every unread byte without copying and exhausts the reader.
func (r *Reader) Rest() []byte {
	v := r.buf[r.off:len(r.buf):len(r.buf)]
	r.off = len(r.buf)
	return v
}

func (r *Reader) short(field string, need int) error {
	return errors.DataFormat("%s: need %d bytes at offset %d, have %d", field, need, r.off, r.Len())
}
