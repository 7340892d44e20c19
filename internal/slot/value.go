// Package slot describes component properties and actions and the small,
// closed set of primitive values they carry.
//
// The runtime never inspects a value beyond its Kind: links copy values
// between slots with Coerce, persistence uses Encode/Decode, and components
// read and write their own slots through typed accessors.
//
// Key constraints:
//   - Value is sealed; only Bool, Int, Long, Float, Double and Buf implement it
//   - Byte and Short slots hold Int values masked to their width
//   - Buf values are copied on every set so callers can't alias slot storage
package slot

import (
	"bytes"
	"fmt"
)

// Kind is the primitive type of a slot. The numeric values match the
// type ids used by the binary app format.
type Kind uint8

const (
	Void   Kind = 0
	Bool   Kind = 1
	Byte   Kind = 2
	Short  Kind = 3
	Int    Kind = 4
	Long   Kind = 5
	Float  Kind = 6
	Double Kind = 7
	Buf    Kind = 8
)

var kindNames = [...]string{"void", "bool", "byte", "short", "int", "long", "float", "double", "Buf"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind maps a type name (as used in app descriptions) to a Kind.
func ParseKind(name string) (Kind, error) {
	for i, n := range kindNames {
		if n == name {
			return Kind(i), nil
		}
	}
	if name == "buf" || name == "Str" || name == "str" {
		return Buf, nil
	}
	return Void, fmt.Errorf("unknown slot kind %q", name)
}

// IsNumeric reports whether values of the kind convert arithmetically.
func (k Kind) IsNumeric() bool {
	return k >= Byte && k <= Double
}

// Value is a sealed interface over the primitive slot values.
type Value interface {
	// Kind returns the widest kind the value represents. Byte and Short
	// slots report Int.
	Kind() Kind
	String() string
	slotValue()
}

// BoolValue is a bool slot value.
type BoolValue bool

// IntValue carries byte, short and int slot values.
type IntValue int32

// LongValue is a 64-bit integer slot value.
type LongValue int64

// FloatValue is a 32-bit float slot value.
type FloatValue float32

// DoubleValue is a 64-bit float slot value.
type DoubleValue float64

// BufValue is a byte buffer slot value. Buffers flagged AsStr hold
// a string without terminator.
type BufValue []byte

func (BoolValue) Kind() Kind   { return Bool }
func (IntValue) Kind() Kind    { return Int }
func (LongValue) Kind() Kind   { return Long }
func (FloatValue) Kind() Kind  { return Float }
func (DoubleValue) Kind() Kind { return Double }
func (BufValue) Kind() Kind    { return Buf }

func (BoolValue) slotValue()   {}
func (IntValue) slotValue()    {}
func (LongValue) slotValue()   {}
func (FloatValue) slotValue()  {}
func (DoubleValue) slotValue() {}
func (BufValue) slotValue()    {}

func (v BoolValue) String() string   { return fmt.Sprintf("%t", bool(v)) }
func (v IntValue) String() string    { return fmt.Sprintf("%d", int32(v)) }
func (v LongValue) String() string   { return fmt.Sprintf("%dL", int64(v)) }
func (v FloatValue) String() string  { return fmt.Sprintf("%gF", float32(v)) }
func (v DoubleValue) String() string { return fmt.Sprintf("%gD", float64(v)) }
func (v BufValue) String() string    { return fmt.Sprintf("%q", []byte(v)) }

// Zero returns the zero value for a kind, or nil for Void.
func Zero(k Kind) Value {
	switch k {
	case Bool:
		return BoolValue(false)
	case Byte, Short, Int:
		return IntValue(0)
	case Long:
		return LongValue(0)
	case Float:
		return FloatValue(0)
	case Double:
		return DoubleValue(0)
	case Buf:
		return BufValue(nil)
	}
	return nil
}

// Equal compares two values of any kind. Values of different kinds are
// never equal.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	if ab, ok := a.(BufValue); ok {
		return bytes.Equal(ab, b.(BufValue))
	}
	return a == b
}

// Clone returns a copy that shares no storage with v.
func Clone(v Value) Value {
	if b, ok := v.(BufValue); ok {
		if b == nil {
			return BufValue(nil)
		}
		return BufValue(bytes.Clone(b))
	}
	return v
}

// Str builds a Buf value from a string.
func Str(s string) BufValue {
	return BufValue(s)
}
