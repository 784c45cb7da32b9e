package builtins

import (
	"strconv"

	"github.com/qtproject/qtjsbackend/pkg/vm"
)

// stringArg converts args[i] to a string; a missing argument is "undefined".
func stringArg(m *vm.VM, args []vm.Value, i int) (string, error) {
	return m.ToString(vm.Arg(args, i))
}

// numberArg converts args[i] to a number; a missing argument is NaN.
func numberArg(m *vm.VM, args []vm.Value, i int) (float64, error) {
	return m.ToNumber(vm.Arg(args, i))
}

// integerArg returns ToInteger(args[i]), or def when the argument is
// missing or undefined.
func integerArg(m *vm.VM, args []vm.Value, i int, def float64) (float64, error) {
	v := vm.Arg(args, i)
	if v.IsUndefined() {
		return def, nil
	}
	f, err := m.ToNumber(v)
	if err != nil {
		return 0, err
	}
	return vm.ToInteger(f), nil
}

// relativeIndex clamps a position to [0, length], counting negative
// positions from the end.
func relativeIndex(pos float64, length int) int {
	if pos < 0 {
		pos += float64(length)
		if pos < 0 {
			return 0
		}
		return int(pos)
	}
	if pos > float64(length) {
		return length
	}
	return int(pos)
}

// lengthOf reads the length property of an array-like value.
func lengthOf(m *vm.VM, v vm.Value) (int, error) {
	if v.IsObject() && v.AsObject().Class() == vm.ClassArray {
		return v.AsObject().ArrayLength(), nil
	}
	l, err := m.GetProperty(v, "length")
	if err != nil {
		return 0, err
	}
	f, err := m.ToNumber(l)
	if err != nil {
		return 0, err
	}
	return int(vm.ToUint32(f)), nil
}

// listFromArrayLike copies the elements of an array-like value.
func listFromArrayLike(m *vm.VM, v vm.Value) ([]vm.Value, error) {
	if v.IsNullish() {
		return nil, nil
	}
	if !v.IsObject() {
		return nil, m.NewTypeError("CreateListFromArrayLike called on non-object")
	}
	o := v.AsObject()
	if o.Class() == vm.ClassArray || o.Class() == vm.ClassArguments {
		return append([]vm.Value(nil), o.Elements()...), nil
	}
	n, err := lengthOf(m, v)
	if err != nil {
		return nil, err
	}
	out := make([]vm.Value, n)
	for i := range out {
		if out[i], err = m.GetProperty(v, strconv.Itoa(i)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// callbackArg returns args[i] when it is callable.
func callbackArg(m *vm.VM, args []vm.Value, i int) (vm.Value, error) {
	fn := vm.Arg(args, i)
	if !fn.IsCallable() {
		return vm.Undefined, m.NewTypeError("%s is not a function", fn.ToString())
	}
	return fn, nil
}

// thisObject applies ToObject to the receiver of a prototype method.
func thisObject(m *vm.VM, this vm.Value, method string) (*vm.Object, error) {
	if this.IsNullish() {
		return nil, m.NewTypeError("%s called on null or undefined", method)
	}
	return m.ToObject(this)
}
