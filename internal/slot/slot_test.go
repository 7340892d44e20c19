package slot

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/svm/internal/stream"
)

func TestDef_Flags(t *testing.T) {
	cfg := Config("scanPer", Int, IntValue(50))
	rt := Prop("out", Float, nil)
	act := Action("reset", Void)
	op := Config("setpt", Float, nil).WithFlags(FlagOperator)

	assert.True(t, cfg.IsProperty())
	assert.True(t, cfg.IsConfig())
	assert.False(t, rt.IsConfig())
	assert.True(t, act.IsAction())
	assert.False(t, act.IsProperty())
	assert.True(t, op.IsOperator())

	assert.True(t, cfg.MatchProp('c'))
	assert.False(t, cfg.MatchProp('r'))
	assert.True(t, rt.MatchProp('r'))
	assert.True(t, rt.MatchProp('*'))
	assert.False(t, act.MatchProp('*'))
	assert.True(t, op.MatchProp('C'))
	assert.False(t, cfg.MatchProp('C'))

	assert.Equal(t, EventConfig, cfg.WatchEvent())
	assert.Equal(t, EventRuntime, rt.WatchEvent())
}

func TestDef_DefaultValue(t *testing.T) {
	assert.Equal(t, IntValue(50), Config("p", Int, IntValue(50)).DefaultValue())
	assert.Equal(t, FloatValue(0), Prop("p", Float, nil).DefaultValue())
	assert.Equal(t, BoolValue(false), Prop("p", Bool, nil).DefaultValue())
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name string
		in   Value
		kind Kind
		want Value
	}{
		{"int to float", IntValue(7), Float, FloatValue(7)},
		{"int to long", IntValue(-3), Long, LongValue(-3)},
		{"long to double", LongValue(1 << 40), Double, DoubleValue(1 << 40)},
		{"float to int truncates", FloatValue(2.9), Int, IntValue(2)},
		{"negative float to int truncates", DoubleValue(-2.9), Int, IntValue(-2)},
		{"bool to int", BoolValue(true), Int, IntValue(1)},
		{"zero to bool", IntValue(0), Bool, BoolValue(false)},
		{"float to bool", FloatValue(0.5), Bool, BoolValue(true)},
		{"int to byte masks", IntValue(0x1FF), Byte, IntValue(0xFF)},
		{"int to short masks", IntValue(0x12345), Short, IntValue(0x2345)},
		{"long saturates int", LongValue(math.MaxInt64), Int, IntValue(math.MaxInt32)},
		{"nan to long", DoubleValue(math.NaN()), Long, LongValue(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.in, tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerce_Buf(t *testing.T) {
	src := Str("abc")
	got, err := Coerce(src, Buf)
	require.NoError(t, err)
	assert.True(t, Equal(src, got))

	// copies are independent
	src[0] = 'x'
	assert.Equal(t, BufValue("abc"), got)

	_, err = Coerce(IntValue(1), Buf)
	assert.Error(t, err)
	_, err = Coerce(Str("1"), Int)
	assert.Error(t, err)
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(IntValue(1), IntValue(1)))
	assert.False(t, Equal(IntValue(1), LongValue(1)))
	assert.True(t, Equal(Str("a"), BufValue("a")))
	assert.False(t, Equal(nil, IntValue(0)))
	assert.True(t, Equal(nil, nil))
}

func TestEncodeDecode_Kinds(t *testing.T) {
	values := []struct {
		kind Kind
		v    Value
	}{
		{Bool, BoolValue(true)},
		{Byte, IntValue(200)},
		{Short, IntValue(60000)},
		{Int, IntValue(-123456)},
		{Long, LongValue(-1 << 50)},
		{Float, FloatValue(3.25)},
		{Double, DoubleValue(-0.125)},
		{Buf, Str("hello")},
	}

	var buf bytes.Buffer
	out := stream.NewOutStream(&buf)
	for _, tv := range values {
		require.NoError(t, Encode(out, tv.kind, tv.v))
	}
	require.NoError(t, out.Flush())

	in := stream.NewInStream(&buf)
	for _, tv := range values {
		got, err := Decode(in, tv.kind)
		require.NoError(t, err, tv.kind.String())
		assert.True(t, Equal(tv.v, got), "%s: want %v got %v", tv.kind, tv.v, got)
	}
	assert.Equal(t, -1, in.Read())
}

func TestEncode_CoercesToSlotKind(t *testing.T) {
	var buf bytes.Buffer
	out := stream.NewOutStream(&buf)
	require.NoError(t, Encode(out, Int, FloatValue(9.7)))
	require.NoError(t, out.Flush())
	assert.Equal(t, []byte{0, 0, 0, 9}, buf.Bytes())
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("float")
	require.NoError(t, err)
	assert.Equal(t, Float, k)

	k, err = ParseKind("str")
	require.NoError(t, err)
	assert.Equal(t, Buf, k)

	_, err = ParseKind("complex")
	assert.Error(t, err)
}
