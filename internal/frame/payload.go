package frame

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Writer builds a frame payload. All integers are big-endian (spec
// §6: "Integer widths fixed... all big-endian").
type Writer struct {
	buf bytes.Buffer
}

func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

func (w *Writer) PutByte(b byte) { w.buf.WriteByte(b) }

func (w *Writer) PutU32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) PutU64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) PutI64(v int64) { w.PutU64(uint64(v)) }

// PutString writes a u32 length prefix followed by the raw bytes.
func (w *Writer) PutString(s string) {
	w.PutU32(uint32(len(s)))
	w.buf.WriteString(s)
}

func (w *Writer) PutBytes(p []byte) {
	w.PutU32(uint32(len(p)))
	w.buf.Write(p)
}

// Reader parses a frame payload written by Writer.
type Reader struct {
	buf []byte
	off int
}

func NewReader(payload []byte) *Reader {
	return &Reader{buf: payload}
}

func (r *Reader) need(n int) error {
	if r.off+n > len(r.buf) {
		return fmt.Errorf("frame payload truncated: need %d bytes at offset %d, have %d", n, r.off, len(r.buf))
	}
	return nil
}

func (r *Reader) Byte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

func (r *Reader) U32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *Reader) U64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v, nil
}

func (r *Reader) I64() (int64, error) {
	v, err := r.U64()
	return int64(v), err
}

func (r *Reader) String() (string, error) {
	n, err := r.U32()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.buf[r.off : r.off+int(n)])
	r.off += int(n)
	return s, nil
}

func (r *Reader) Bytes() ([]byte, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	b := r.buf[r.off : r.off+int(n)]
	r.off += int(n)
	return b, nil
}

// Remaining returns the unconsumed tail of the payload.
func (r *Reader) Remaining() []byte {
	return r.buf[r.off:]
}
