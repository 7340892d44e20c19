package slot

import (
	"fmt"

	"github.com/roach88/svm/internal/stream"
)

// Encode writes v in the binary format for kind k:
//
//	bool    u1 0 or 1
//	byte    u1
//	short   u2
//	int     s4
//	long    s8
//	float   f4
//	double  f8
//	Buf     u2 length, bytes
func Encode(out *stream.OutStream, k Kind, v Value) error {
	cv, err := Coerce(v, k)
	if err != nil {
		return err
	}
	switch k {
	case Bool:
		out.WriteBool(bool(cv.(BoolValue)))
	case Byte:
		out.Write(byte(cv.(IntValue)))
	case Short:
		out.WriteI2(int(cv.(IntValue)))
	case Int:
		out.WriteI4(int32(cv.(IntValue)))
	case Long:
		out.WriteI8(int64(cv.(LongValue)))
	case Float:
		out.WriteF4(float32(cv.(FloatValue)))
	case Double:
		out.WriteF8(float64(cv.(DoubleValue)))
	case Buf:
		b := cv.(BufValue)
		if len(b) > 0xFFFF {
			return fmt.Errorf("Buf too large to encode: %d bytes", len(b))
		}
		out.WriteI2(len(b))
		out.WriteBytes(b)
	default:
		return fmt.Errorf("cannot encode %s", k)
	}
	return out.Err()
}

// Decode reads a value of kind k written by Encode.
func Decode(in *stream.InStream, k Kind) (Value, error) {
	switch k {
	case Bool:
		b, err := in.ReadU1()
		return BoolValue(b != 0), err
	case Byte:
		b, err := in.ReadU1()
		return IntValue(b), err
	case Short:
		s, err := in.ReadU2()
		return IntValue(s), err
	case Int:
		i, err := in.ReadS4()
		return IntValue(i), err
	case Long:
		l, err := in.ReadS8()
		return LongValue(l), err
	case Float:
		f, err := in.ReadF4()
		return FloatValue(f), err
	case Double:
		d, err := in.ReadF8()
		return DoubleValue(d), err
	case Buf:
		n, err := in.ReadU2()
		if err != nil {
			return nil, err
		}
		b, err := in.ReadFull(int(n))
		if err != nil {
			return nil, err
		}
		return BufValue(b), nil
	}
	return nil, fmt.Errorf("cannot decode %s", k)
}
