package stream

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutStream_NetworkByteOrder(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutStream(&buf)

	out.WriteI4(0x73617070)
	out.WriteI2(0xFFFF)
	out.Write('.')
	require.NoError(t, out.Flush())

	assert.Equal(t, []byte{'s', 'a', 'p', 'p', 0xFF, 0xFF, '.'}, buf.Bytes())
	assert.Equal(t, int64(7), out.Len())
}

func TestInStream_ReadsWhatOutStreamWrote(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutStream(&buf)
	out.WriteBool(true)
	out.WriteI2(513)
	out.WriteI4(-7)
	out.WriteI8(1 << 40)
	out.WriteF4(1.5)
	out.WriteF8(-2.25)
	out.WriteStr("add1")
	require.NoError(t, out.Flush())

	in := NewInStream(&buf)
	assert.Equal(t, 1, in.Read())

	u2, err := in.ReadU2()
	require.NoError(t, err)
	assert.Equal(t, uint16(513), u2)

	s4, err := in.ReadS4()
	require.NoError(t, err)
	assert.Equal(t, int32(-7), s4)

	s8, err := in.ReadS8()
	require.NoError(t, err)
	assert.Equal(t, int64(1<<40), s8)

	f4, err := in.ReadF4()
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), f4)

	f8, err := in.ReadF8()
	require.NoError(t, err)
	assert.Equal(t, -2.25, f8)

	s, err := in.ReadStr(8)
	require.NoError(t, err)
	assert.Equal(t, "add1", s)

	assert.Equal(t, -1, in.Read())
	assert.Equal(t, int64(32), in.Pos())
}

func TestInStream_Truncated(t *testing.T) {
	in := NewInStream(bytes.NewReader([]byte{0x01}))

	_, err := in.ReadU2()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	in = NewInStream(bytes.NewReader([]byte{'a', 'b'}))
	_, err = in.ReadStr(8)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestInStream_ReadStrTooLong(t *testing.T) {
	in := NewInStream(bytes.NewReader([]byte("toolongname\x00X")))

	s, err := in.ReadStr(8)
	assert.True(t, errors.Is(err, ErrStrTooLong))
	assert.Equal(t, "toolongname", s)

	// stream stays aligned on the byte after the terminator
	assert.Equal(t, int('X'), in.Read())
}

func TestInStream_ReadStrBoundary(t *testing.T) {
	// seven characters plus terminator fits in eight bytes
	in := NewInStream(bytes.NewReader([]byte("abcdefg\x00")))
	s, err := in.ReadStr(8)
	require.NoError(t, err)
	assert.Equal(t, "abcdefg", s)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestOutStream_StickyError(t *testing.T) {
	out := NewOutStream(failingWriter{})
	out.WriteBytes(make([]byte, 8192))

	assert.Error(t, out.Err())
	assert.False(t, out.Write(1))
	assert.Error(t, out.Flush())
}
