package vm

// Property access with getters, setters and primitive receivers.

func (vm *VM) callGetter(p property, this Value) (Value, error) {
	if !p.getter.IsCallable() {
		return Undefined, nil
	}
	return vm.Call(p.getter, this, nil)
}

// protoFor returns the object property lookups on a primitive start from.
func (vm *VM) protoFor(v Value) *Object {
	r := vm.Realm()
	switch v.Type() {
	case TypeString:
		return r.StringPrototype
	case TypeBoolean:
		return r.BooleanPrototype
	case TypeIntegerNumber, TypeFloatNumber:
		return r.NumberPrototype
	}
	return nil
}

// GetProperty implements v[name] with getters and primitive receivers.
func (vm *VM) GetProperty(v Value, name string) (Value, error) {
	var start *Object
	switch v.Type() {
	case TypeObject:
		start = v.AsObject()
	case TypeUndefined, TypeNull:
		return Undefined, vm.NewTypeError("Cannot read property '%s' of %s", name, v.ToString())
	case TypeString:
		s := v.AsString()
		if name == "length" {
			return IntegerValue(int32(StringLength(s))), nil
		}
		if i, ok := arrayIndex(name); ok {
			if cu, ok := CodeUnitAt(s, i); ok {
				return NewString(FromUTF16([]uint16{cu})), nil
			}
			return Undefined, nil
		}
		start = vm.protoFor(v)
	default:
		start = vm.protoFor(v)
	}
	p, ok := start.lookup(name)
	if !ok {
		return Undefined, nil
	}
	if p.accessor {
		return vm.callGetter(p, v)
	}
	return p.value, nil
}

// SetProperty implements v[name] = val. Writes that cannot happen are
// ignored, as in sloppy mode code.
func (vm *VM) SetProperty(v Value, name string, val Value) error {
	switch v.Type() {
	case TypeObject:
	case TypeUndefined, TypeNull:
		return vm.NewTypeError("Cannot set property '%s' of %s", name, v.ToString())
	default:
		if p, ok := vm.protoFor(v).lookup(name); ok && p.accessor && p.setter.IsCallable() {
			_, err := vm.Call(p.setter, v, []Value{val})
			return err
		}
		return nil
	}
	o := v.AsObject()
	if p, ok := o.lookup(name); ok {
		if p.accessor {
			if !p.setter.IsCallable() {
				return nil
			}
			_, err := vm.Call(p.setter, v, []Value{val})
			return err
		}
		if p.attrs&Writable == 0 {
			return nil
		}
	}
	if o.class == ClassArray && name == "length" {
		if _, ok := arrayLengthValue(val); !ok {
			return vm.NewRangeError("Invalid array length")
		}
	}
	o.Set(name, val)
	return nil
}

// GetIndex implements obj[key] for a computed key.
func (vm *VM) GetIndex(obj, key Value) (Value, error) {
	if key.typ == TypeIntegerNumber && obj.typ == TypeObject {
		o := obj.AsObject()
		if i := int(key.AsInteger()); o.hasElements() && i >= 0 && i < len(o.elements) {
			return o.elements[i], nil
		}
	}
	if obj.IsNullish() {
		k, _ := vm.ToPropertyKey(key)
		return Undefined, vm.NewTypeError("Cannot read property '%s' of %s", k, obj.ToString())
	}
	name, err := vm.ToPropertyKey(key)
	if err != nil {
		return Undefined, err
	}
	return vm.GetProperty(obj, name)
}

// SetIndex implements obj[key] = val for a computed key.
func (vm *VM) SetIndex(obj, key, val Value) error {
	if key.typ == TypeIntegerNumber && obj.typ == TypeObject {
		o := obj.AsObject()
		if i := int(key.AsInteger()); o.class == ClassArray && i >= 0 && i < len(o.elements) {
			o.elements[i] = val
			return nil
		}
	}
	if obj.IsNullish() {
		k, _ := vm.ToPropertyKey(key)
		return vm.NewTypeError("Cannot set property '%s' of %s", k, obj.ToString())
	}
	name, err := vm.ToPropertyKey(key)
	if err != nil {
		return err
	}
	return vm.SetProperty(obj, name, val)
}

// DeleteProperty implements delete obj[key].
func (vm *VM) DeleteProperty(obj, key Value) (bool, error) {
	if obj.IsNullish() {
		return false, vm.NewTypeError("Cannot convert undefined or null to object")
	}
	name, err := vm.ToPropertyKey(key)
	if err != nil {
		return false, err
	}
	if !obj.IsObject() {
		return true, nil
	}
	return obj.AsObject().Delete(name), nil
}

// in implements the `in` operator.
func (vm *VM) in(key, obj Value) (Value, error) {
	name, err := vm.ToPropertyKey(key)
	if err != nil {
		return Undefined, err
	}
	if !obj.IsObject() {
		return Undefined, vm.NewTypeError("Cannot use 'in' operator to search for '%s' in %s", name, obj.ToString())
	}
	return BooleanValue(obj.AsObject().HasProperty(name)), nil
}

// InstanceOf implements the instanceof operator.
func (vm *VM) InstanceOf(v, ctor Value) (bool, error) {
	if !ctor.IsCallable() {
		return false, vm.NewTypeError("Right-hand side of 'instanceof' is not callable")
	}
	c := ctor.AsObject()
	for c.bound != nil {
		c = c.bound.Target
	}
	if !v.IsObject() {
		return false, nil
	}
	proto, err := vm.GetProperty(ObjectValue(c), "prototype")
	if err != nil {
		return false, err
	}
	if !proto.IsObject() {
		return false, vm.NewTypeError("Function has non-object prototype '%s' in instanceof check", proto.ToString())
	}
	target := proto.AsObject()
	for o := v.AsObject().proto; o != nil; o = o.proto {
		if o == target {
			return true, nil
		}
	}
	return false, nil
}
