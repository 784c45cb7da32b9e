package vm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNumberToString(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{math.Copysign(0, -1), "0"},
		{1, "1"},
		{-1.5, "-1.5"},
		{0.1, "0.1"},
		{1e21, "1e+21"},
		{1e20, "100000000000000000000"},
		{1.5e-7, "1.5e-7"},
		{0.000001, "0.000001"},
		{123456789, "123456789"},
		{math.NaN(), "NaN"},
		{math.Inf(1), "Infinity"},
		{math.Inf(-1), "-Infinity"},
	}
	for _, tt := range tests {
		if got := NumberToString(tt.in); got != tt.want {
			t.Errorf("NumberToString(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStringToNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"", 0},
		{"  42  ", 42},
		{"0x1f", 31},
		{"1e3", 1000},
		{".5", 0.5},
		{"-Infinity", math.Inf(-1)},
		{"12px", math.NaN()},
		{"\u00a0\uFEFF7", 7},
	}
	for _, tt := range tests {
		got := StringToNumber(tt.in)
		if math.IsNaN(tt.want) {
			if !math.IsNaN(got) {
				t.Errorf("StringToNumber(%q) = %v, want NaN", tt.in, got)
			}
			continue
		}
		if got != tt.want {
			t.Errorf("StringToNumber(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIsInt32(t *testing.T) {
	assert.True(t, IntegerValue(5).IsInt32())
	assert.True(t, NumberValue(10000000).IsInt32())
	assert.False(t, NumberValue(0.5).IsInt32())
	assert.False(t, NumberValue(math.Copysign(0, -1)).IsInt32())
	assert.False(t, NumberValue(1<<31).IsInt32())
	assert.False(t, NewString("1").IsInt32())
}

func TestTruthiness(t *testing.T) {
	tests := []struct {
		v    Value
		want bool
	}{
		{Undefined, false},
		{Null, false},
		{False, false},
		{IntegerValue(0), false},
		{NaN, false},
		{NewString(""), false},
		{NewString("0"), true},
		{IntegerValue(-1), true},
		{ObjectValue(NewObject(nil)), true},
	}
	for _, tt := range tests {
		if got := tt.v.IsTruthy(); got != tt.want {
			t.Errorf("%s.IsTruthy() = %v, want %v", tt.v.Inspect(), got, tt.want)
		}
	}
}

func TestStrictEqualityAndSameValue(t *testing.T) {
	negZero := NumberValue(math.Copysign(0, -1))

	assert.True(t, IntegerValue(3).StrictlyEquals(NumberValue(3)))
	assert.True(t, NewString("ab").StrictlyEquals(NewString("ab")))
	assert.False(t, NaN.StrictlyEquals(NaN))
	assert.True(t, negZero.StrictlyEquals(IntegerValue(0)))

	assert.True(t, NaN.Is(NaN))
	assert.False(t, negZero.Is(IntegerValue(0)))

	o := NewObject(nil)
	assert.True(t, ObjectValue(o).StrictlyEquals(ObjectValue(o)))
	assert.False(t, ObjectValue(o).StrictlyEquals(ObjectValue(NewObject(nil))))
}

func TestTypeofString(t *testing.T) {
	r := NewRealm(NewVM())
	fn := r.NewNativeFunction("f", 0, func(*VM, Value, []Value) (Value, error) { return Undefined, nil })
	tests := []struct {
		v    Value
		want string
	}{
		{Undefined, "undefined"},
		{Null, "object"},
		{True, "boolean"},
		{IntegerValue(1), "number"},
		{NewString("x"), "string"},
		{ObjectValue(r.NewObject()), "object"},
		{ObjectValue(fn), "function"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.v.TypeofString())
	}
}

func TestUTF16Helpers(t *testing.T) {
	s := "a\U0001F600b"
	assert.Equal(t, 4, StringLength(s))
	cu, ok := CodeUnitAt(s, 1)
	assert.True(t, ok)
	assert.Equal(t, uint16(0xD83D), cu)
	assert.Equal(t, "b", Substring(s, 3, 4))
	_, ok = CodeUnitAt(s, 4)
	assert.False(t, ok)
}

func TestToInt32(t *testing.T) {
	assert.Equal(t, int32(-1), ToInt32(4294967295))
	assert.Equal(t, int32(0), ToInt32(math.NaN()))
	assert.Equal(t, int32(-2147483648), ToInt32(2147483648))
	assert.Equal(t, uint32(4294967295), ToUint32(-1))
}
