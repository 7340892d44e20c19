// Package stream provides the sequential byte streams used by the app
// persistence codec and by slot value encoding.
//
// All multi-byte values are written in network byte order (most significant
// byte first). Strings are ASCII, null terminated and bounded by a caller
// supplied maximum that includes the terminator.
package stream

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// ErrStrTooLong is returned by ReadStr when no terminator is found within
// the allowed length.
var ErrStrTooLong = errors.New("string exceeds maximum length")

// InStream reads primitive values from an underlying reader.
type InStream struct {
	r   *bufio.Reader
	pos int64
}

// NewInStream wraps r. The reader is buffered internally.
func NewInStream(r io.Reader) *InStream {
	if br, ok := r.(*bufio.Reader); ok {
		return &InStream{r: br}
	}
	return &InStream{r: bufio.NewReader(r)}
}

// Pos returns the number of bytes consumed so far.
func (in *InStream) Pos() int64 {
	return in.pos
}

// Read returns the next byte, or -1 at end of stream.
func (in *InStream) Read() int {
	b, err := in.r.ReadByte()
	if err != nil {
		return -1
	}
	in.pos++
	return int(b)
}

// ReadFull reads exactly n bytes. A short read returns io.ErrUnexpectedEOF.
func (in *InStream) ReadFull(n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := io.ReadFull(in.r, buf)
	in.pos += int64(read)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}

// ReadU1 reads an unsigned byte.
func (in *InStream) ReadU1() (uint8, error) {
	b := in.Read()
	if b < 0 {
		return 0, io.ErrUnexpectedEOF
	}
	return uint8(b), nil
}

// ReadU2 reads an unsigned 16-bit value.
func (in *InStream) ReadU2() (uint16, error) {
	buf, err := in.ReadFull(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf), nil
}

// ReadS4 reads a signed 32-bit value.
func (in *InStream) ReadS4() (int32, error) {
	buf, err := in.ReadFull(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(buf)), nil
}

// ReadU4 reads an unsigned 32-bit value.
func (in *InStream) ReadU4() (uint32, error) {
	v, err := in.ReadS4()
	return uint32(v), err
}

// ReadS8 reads a signed 64-bit value.
func (in *InStream) ReadS8() (int64, error) {
	buf, err := in.ReadFull(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(buf)), nil
}

// ReadF4 reads an IEEE 754 single from its raw bits.
func (in *InStream) ReadF4() (float32, error) {
	v, err := in.ReadS4()
	return math.Float32frombits(uint32(v)), err
}

// ReadF8 reads an IEEE 754 double from its raw bits.
func (in *InStream) ReadF8() (float64, error) {
	v, err := in.ReadS8()
	return math.Float64frombits(uint64(v)), err
}

// ReadStr reads a null terminated string of at most max bytes including
// the terminator. On overflow the remaining bytes up to the next terminator
// are still consumed so the stream stays aligned, and ErrStrTooLong is returned.
func (in *InStream) ReadStr(max int) (string, error) {
	buf := make([]byte, 0, max)
	for {
		b := in.Read()
		if b < 0 {
			return "", io.ErrUnexpectedEOF
		}
		if b == 0 {
			break
		}
		buf = append(buf, byte(b))
	}
	if len(buf)+1 > max {
		return string(buf), fmt.Errorf("%w: %d > %d", ErrStrTooLong, len(buf)+1, max)
	}
	return string(buf), nil
}

// Skip discards n bytes.
func (in *InStream) Skip(n int) error {
	discarded, err := in.r.Discard(n)
	in.pos += int64(discarded)
	if err != nil {
		return io.ErrUnexpectedEOF
	}
	return nil
}

// OutStream writes primitive values to an underlying writer. The first write
// error is sticky: later writes are dropped and Err reports it.
type OutStream struct {
	w   *bufio.Writer
	n   int64
	err error
}

// NewOutStream wraps w. Callers must Flush when done.
func NewOutStream(w io.Writer) *OutStream {
	return &OutStream{w: bufio.NewWriter(w)}
}

// Write writes a single byte.
func (out *OutStream) Write(b byte) bool {
	if out.err != nil {
		return false
	}
	if err := out.w.WriteByte(b); err != nil {
		out.err = err
		return false
	}
	out.n++
	return true
}

// WriteBytes writes b in full.
func (out *OutStream) WriteBytes(b []byte) bool {
	if out.err != nil {
		return false
	}
	n, err := out.w.Write(b)
	out.n += int64(n)
	if err != nil {
		out.err = err
		return false
	}
	return true
}

// WriteBool writes 1 for true and 0 for false.
func (out *OutStream) WriteBool(v bool) bool {
	if v {
		return out.Write(1)
	}
	return out.Write(0)
}

// WriteI2 writes the low 16 bits of v.
func (out *OutStream) WriteI2(v int) bool {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], uint16(v))
	return out.WriteBytes(buf[:])
}

// WriteI4 writes a 32-bit value.
func (out *OutStream) WriteI4(v int32) bool {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	return out.WriteBytes(buf[:])
}

// WriteU4 writes an unsigned 32-bit value.
func (out *OutStream) WriteU4(v uint32) bool {
	return out.WriteI4(int32(v))
}

// WriteI8 writes a 64-bit value.
func (out *OutStream) WriteI8(v int64) bool {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	return out.WriteBytes(buf[:])
}

// WriteF4 writes the raw bits of a float32.
func (out *OutStream) WriteF4(v float32) bool {
	return out.WriteI4(int32(math.Float32bits(v)))
}

// WriteF8 writes the raw bits of a float64.
func (out *OutStream) WriteF8(v float64) bool {
	return out.WriteI8(int64(math.Float64bits(v)))
}

// WriteStr writes s followed by a null terminator.
func (out *OutStream) WriteStr(s string) bool {
	if !out.WriteBytes([]byte(s)) {
		return false
	}
	return out.Write(0)
}

// Len returns the number of bytes accepted so far.
func (out *OutStream) Len() int64 {
	return out.n
}

// Err returns the first write error, if any.
func (out *OutStream) Err() error {
	return out.err
}

// Flush flushes buffered bytes and returns the first error seen.
func (out *OutStream) Flush() error {
	if out.err != nil {
		return out.err
	}
	if err := out.w.Flush(); err != nil {
		out.err = err
	}
	return out.err
}
