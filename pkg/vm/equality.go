package vm

import "math"

// LooseEquals implements ==. When both operands are objects and at least
// one is flagged for user comparison, the installed callback decides,
// and it is called exactly once. Identical operands are not special
// cased for flagged objects. A flagged object never equals a
// non-object, and is not converted with ToPrimitive.
func (vm *VM) LooseEquals(a, b Value) (bool, error) {
	aObj, bObj := a.typ == TypeObject, b.typ == TypeObject
	switch {
	case aObj && bObj:
		ao, bo := a.AsObject(), b.AsObject()
		if cb := vm.userObjectComparison; cb != nil && (ao.useUserComparison || bo.useUserComparison) {
			return cb(ao, bo), nil
		}
		return ao == bo, nil
	case aObj && a.AsObject().useUserComparison, bObj && b.AsObject().useUserComparison:
		return false, nil
	}
	return vm.looseEqualsPrimitive(a, b)
}

func (vm *VM) looseEqualsPrimitive(a, b Value) (bool, error) {
	for {
		switch {
		case a.IsNumber() && b.IsNumber():
			x, y := a.ToFloat(), b.ToFloat()
			return x == y && !math.IsNaN(x), nil
		case a.typ == b.typ && a.typ != TypeObject:
			return a.StrictlyEquals(b), nil
		case a.IsNullish() && b.IsNullish():
			return true, nil
		case a.IsNullish() || b.IsNullish():
			return false, nil
		case a.IsString() && b.IsNumber():
			a = NumberValue(a.ToFloat())
		case a.IsNumber() && b.IsString():
			b = NumberValue(b.ToFloat())
		case a.IsBoolean():
			a = NumberValue(a.ToFloat())
		case b.IsBoolean():
			b = NumberValue(b.ToFloat())
		case a.IsObject() && !b.IsObject():
			p, err := vm.ToPrimitive(a, HintDefault)
			if err != nil {
				return false, err
			}
			a = p
		case b.IsObject() && !a.IsObject():
			p, err := vm.ToPrimitive(b, HintDefault)
			if err != nil {
				return false, err
			}
			b = p
		default:
			return false, nil
		}
	}
}
