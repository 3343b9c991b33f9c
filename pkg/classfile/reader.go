package classfile

import (
	"encoding/binary"
	"fmt"
)

// The readers below take a buffer and an offset and return the value
// together with the offset just past it. They are the only code that
// indexes into raw class bytes.

func need(buf []byte, pos, n int) error {
	if pos < 0 || n < 0 || pos > len(buf) || len(buf)-pos < n {
		return &FormatError{Offset: pos, Err: fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, pos, max(len(buf)-pos, 0))}
	}
	return nil
}

// ReadU8 reads one byte.
func ReadU8(buf []byte, pos int) (uint8, int, error) {
	if err := need(buf, pos, 1); err != nil {
		return 0, pos, err
	}
	return buf[pos], pos + 1, nil
}

// ReadU16 reads a big-endian uint16.
func ReadU16(buf []byte, pos int) (uint16, int, error) {
	if err := need(buf, pos, 2); err != nil {
		return 0, pos, err
	}
	return binary.BigEndian.Uint16(buf[pos:]), pos + 2, nil
}

// ReadU32 reads a big-endian uint32.
func ReadU32(buf []byte, pos int) (uint32, int, error) {
	if err := need(buf, pos, 4); err != nil {
		return 0, pos, err
	}
	return binary.BigEndian.Uint32(buf[pos:]), pos + 4, nil
}

// ReadU64 reads a big-endian uint64.
func ReadU64(buf []byte, pos int) (uint64, int, error) {
	if err := need(buf, pos, 8); err != nil {
		return 0, pos, err
	}
	return binary.BigEndian.Uint64(buf[pos:]), pos + 8, nil
}

// ReadBytes returns a copy of the n bytes at pos.
func ReadBytes(buf []byte, pos, n int) ([]byte, int, error) {
	if err := need(buf, pos, n); err != nil {
		return nil, pos, err
	}
	out := make([]byte, n)
	copy(out, buf[pos:pos+n])
	return out, pos + n, nil
}

// Writer accumulates big-endian class file data.
type Writer struct {
	buf []byte
}

func (w *Writer) U8(v uint8) { w.buf = append(w.buf, v) }

func (w *Writer) U16(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }

func (w *Writer) U32(v uint32) { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }

func (w *Writer) U64(v uint64) { w.buf = binary.BigEndian.AppendUint64(w.buf, v) }

func (w *Writer) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// Bytes returns the data written so far.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }
