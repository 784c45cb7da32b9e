package vm

import (
	"math"
	"strings"
)

// intArith computes an int32 operation when the result is an int32. ok is
// false when the operation must be redone in floating point.
func intArith(op OpCode, a, b int32) (Value, bool) {
	x, y := int64(a), int64(b)
	var r int64
	switch op {
	case OpSubtract:
		r = x - y
	case OpMultiply:
		r = x * y
		if r == 0 && (x < 0 || y < 0) {
			return Value{}, false // -0
		}
	case OpDivide:
		if y == 0 || x%y != 0 || (x == 0 && y < 0) {
			return Value{}, false
		}
		r = x / y
	case OpRemainder:
		if y == 0 || (x < 0 && x%y == 0) {
			return Value{}, false
		}
		r = x % y
	default:
		return Value{}, false
	}
	if r < math.MinInt32 || r > math.MaxInt32 {
		return Value{}, false
	}
	return IntegerValue(int32(r)), true
}

func floatArith(op OpCode, x, y float64) float64 {
	switch op {
	case OpSubtract:
		return x - y
	case OpMultiply:
		return x * y
	case OpDivide:
		return x / y
	case OpRemainder:
		return math.Mod(x, y)
	}
	return math.NaN()
}

func intCompare(op OpCode, a, b int32) bool {
	switch op {
	case OpLess:
		return a < b
	case OpLessEqual:
		return a <= b
	case OpGreater:
		return a > b
	}
	return a >= b
}

// add implements the + operator for operands that missed the int path.
func (vm *VM) add(a, b Value) (Value, error) {
	if a.IsNumber() && b.IsNumber() {
		return NumberValue(a.ToFloat() + b.ToFloat()), nil
	}
	if a.IsString() && b.IsString() {
		return NewString(a.AsString() + b.AsString()), nil
	}
	pa, err := vm.ToPrimitive(a, HintDefault)
	if err != nil {
		return Undefined, err
	}
	pb, err := vm.ToPrimitive(b, HintDefault)
	if err != nil {
		return Undefined, err
	}
	if pa.IsString() || pb.IsString() {
		return NewString(pa.ToString() + pb.ToString()), nil
	}
	return NumberOrInteger(pa.ToFloat() + pb.ToFloat()), nil
}

func (vm *VM) bitwise(op OpCode, a, b Value) (Value, error) {
	x, err := vm.ToNumber(a)
	if err != nil {
		return Undefined, err
	}
	y, err := vm.ToNumber(b)
	if err != nil {
		return Undefined, err
	}
	l, r := ToInt32(x), ToUint32(y)
	switch op {
	case OpBitwiseAnd:
		return IntegerValue(l & int32(r)), nil
	case OpBitwiseOr:
		return IntegerValue(l | int32(r)), nil
	case OpBitwiseXor:
		return IntegerValue(l ^ int32(r)), nil
	case OpShiftLeft:
		return IntegerValue(l << (r & 31)), nil
	case OpShiftRight:
		return IntegerValue(l >> (r & 31)), nil
	}
	return NumberOrInteger(float64(ToUint32(x) >> (r & 31))), nil
}

// compare implements the relational operators.
func (vm *VM) compare(op OpCode, a, b Value) (Value, error) {
	pa, err := vm.ToPrimitive(a, HintNumber)
	if err != nil {
		return Undefined, err
	}
	pb, err := vm.ToPrimitive(b, HintNumber)
	if err != nil {
		return Undefined, err
	}
	if pa.IsString() && pb.IsString() {
		c := strings.Compare(pa.AsString(), pb.AsString())
		switch op {
		case OpLess:
			return BooleanValue(c < 0), nil
		case OpLessEqual:
			return BooleanValue(c <= 0), nil
		case OpGreater:
			return BooleanValue(c > 0), nil
		}
		return BooleanValue(c >= 0), nil
	}
	x, y := pa.ToFloat(), pb.ToFloat()
	if math.IsNaN(x) || math.IsNaN(y) {
		return False, nil
	}
	switch op {
	case OpLess:
		return BooleanValue(x < y), nil
	case OpLessEqual:
		return BooleanValue(x <= y), nil
	case OpGreater:
		return BooleanValue(x > y), nil
	}
	return BooleanValue(x >= y), nil
}

