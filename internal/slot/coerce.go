package slot

import (
	"fmt"
	"math"
)

// Coerce converts v to a value suitable for a slot of kind k.
//
// Numeric kinds convert with the usual widening rules; narrowing truncates
// toward zero and saturates at the target range. Bool converts to 0/1 and
// any non-zero number converts to true. Byte and Short results are masked
// to their unsigned width. Buf only accepts Buf.
func Coerce(v Value, k Kind) (Value, error) {
	if v == nil {
		return nil, fmt.Errorf("coerce nil to %s", k)
	}
	switch k {
	case Bool:
		return BoolValue(truthy(v)), nil
	case Byte:
		i, err := toInt64(v)
		return IntValue(int32(i) & 0xFF), err
	case Short:
		i, err := toInt64(v)
		return IntValue(int32(i) & 0xFFFF), err
	case Int:
		i, err := toInt64(v)
		return IntValue(clampInt32(i)), err
	case Long:
		i, err := toInt64(v)
		return LongValue(i), err
	case Float:
		f, err := toFloat64(v)
		return FloatValue(float32(f)), err
	case Double:
		f, err := toFloat64(v)
		return DoubleValue(f), err
	case Buf:
		if b, ok := v.(BufValue); ok {
			return Clone(b), nil
		}
		return nil, fmt.Errorf("cannot coerce %s to Buf", v.Kind())
	}
	return nil, fmt.Errorf("cannot coerce to %s", k)
}

func truthy(v Value) bool {
	switch x := v.(type) {
	case BoolValue:
		return bool(x)
	case IntValue:
		return x != 0
	case LongValue:
		return x != 0
	case FloatValue:
		return x != 0
	case DoubleValue:
		return x != 0
	case BufValue:
		return len(x) > 0
	}
	return false
}

func toInt64(v Value) (int64, error) {
	switch x := v.(type) {
	case BoolValue:
		if x {
			return 1, nil
		}
		return 0, nil
	case IntValue:
		return int64(x), nil
	case LongValue:
		return int64(x), nil
	case FloatValue:
		return floatToInt64(float64(x)), nil
	case DoubleValue:
		return floatToInt64(float64(x)), nil
	}
	return 0, fmt.Errorf("cannot coerce %s to integer", v.Kind())
}

func toFloat64(v Value) (float64, error) {
	switch x := v.(type) {
	case BoolValue:
		if x {
			return 1, nil
		}
		return 0, nil
	case IntValue:
		return float64(x), nil
	case LongValue:
		return float64(x), nil
	case FloatValue:
		return float64(x), nil
	case DoubleValue:
		return float64(x), nil
	}
	return 0, fmt.Errorf("cannot coerce %s to float", v.Kind())
}

func floatToInt64(f float64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(f)
}

func clampInt32(i int64) int32 {
	switch {
	case i > math.MaxInt32:
		return math.MaxInt32
	case i < math.MinInt32:
		return math.MinInt32
	}
	return int32(i)
}
