package vm

import "strconv"

// Conversion hints for ToPrimitive.
const (
	HintDefault = iota
	HintNumber
	HintString
)

// ToPrimitive converts v to a primitive, calling valueOf and toString on
// objects in the order the hint asks for.
func (vm *VM) ToPrimitive(v Value, hint int) (Value, error) {
	if !v.IsObject() {
		return v, nil
	}
	methods := [2]string{"valueOf", "toString"}
	if hint == HintString {
		methods = [2]string{"toString", "valueOf"}
	}
	for _, name := range methods {
		m, err := vm.GetProperty(v, name)
		if err != nil {
			return Undefined, err
		}
		if !m.IsCallable() {
			continue
		}
		res, err := vm.Call(m, v, nil)
		if err != nil {
			return Undefined, err
		}
		if !res.IsObject() {
			return res, nil
		}
	}
	return Undefined, vm.NewTypeError("Cannot convert object to primitive value")
}

// ToString converts v to a Go string, invoking toString on objects.
func (vm *VM) ToString(v Value) (string, error) {
	if !v.IsObject() {
		return v.ToString(), nil
	}
	p, err := vm.ToPrimitive(v, HintString)
	if err != nil {
		return "", err
	}
	return p.ToString(), nil
}

// ToNumber converts v to a number, invoking valueOf on objects.
func (vm *VM) ToNumber(v Value) (float64, error) {
	if !v.IsObject() {
		return v.ToFloat(), nil
	}
	p, err := vm.ToPrimitive(v, HintNumber)
	if err != nil {
		return 0, err
	}
	return p.ToFloat(), nil
}

// ToObject boxes primitives. undefined and null throw a TypeError.
func (vm *VM) ToObject(v Value) (*Object, error) {
	r := vm.Realm()
	switch v.Type() {
	case TypeObject:
		return v.AsObject(), nil
	case TypeUndefined, TypeNull:
		return nil, vm.NewTypeError("Cannot convert undefined or null to object")
	case TypeString:
		o := NewObjectOfClass(ClassString, r.StringPrototype)
		o.primitive = v
		return o, nil
	case TypeBoolean:
		o := NewObjectOfClass(ClassBoolean, r.BooleanPrototype)
		o.primitive = v
		return o, nil
	default:
		o := NewObjectOfClass(ClassNumber, r.NumberPrototype)
		o.primitive = v
		return o, nil
	}
}

// ToPropertyKey converts a computed member key to a property name.
func (vm *VM) ToPropertyKey(v Value) (string, error) {
	switch v.Type() {
	case TypeString:
		return v.AsString(), nil
	case TypeIntegerNumber:
		return strconv.Itoa(int(v.AsInteger())), nil
	}
	return vm.ToString(v)
}
