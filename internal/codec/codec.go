// Package codec provides the small set of fixed-width, big-endian
// primitives every canonical encoder in this module builds on. Keeping them
// in one place guarantees every package's "canonical encoding" means the
// same bytes for the same integers.
package codec

import (
	"encoding/binary"
	"errors"
	"io"
)

// ErrTruncated is returned when an input ends before a value is fully read.
var ErrTruncated = errors.New("codec: truncated encoding")

// WriteUint16 writes v as 2 big-endian bytes.
func WriteUint16(w io.Writer, v uint16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// WriteUint32 writes v as 4 big-endian bytes.
func WriteUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// WriteUint64 writes v as 8 big-endian bytes.
func WriteUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// WriteBytes writes a structural length (4 bytes) followed by data, the
// vector encoding every variable-length field in this module uses.
func WriteBytes(w io.Writer, data []byte) error {
	if err := WriteUint32(w, uint32(len(data))); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// ReadUint16 reads 2 big-endian bytes.
func ReadUint16(r io.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, ErrTruncated
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

// ReadUint32 reads 4 big-endian bytes.
func ReadUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, ErrTruncated
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// ReadUint64 reads 8 big-endian bytes.
func ReadUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, ErrTruncated
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// ReadBytes reads a vector previously written by WriteBytes.
func ReadBytes(r io.Reader) ([]byte, error) {
	n, err := ReadUint32(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, ErrTruncated
	}
	return buf, nil
}
