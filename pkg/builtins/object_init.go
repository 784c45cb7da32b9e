package builtins

import (
	"github.com/qtproject/qtjsbackend/pkg/vm"
)

type ObjectInitializer struct{}

func (o *ObjectInitializer) Name() string {
	return "Object"
}

func (o *ObjectInitializer) Priority() int {
	return PriorityObject
}

func (o *ObjectInitializer) InitRuntime(ctx *RuntimeContext) error {
	proto := ctx.ObjectPrototype

	ctx.defineMethod(proto, "hasOwnProperty", 1, objectProtoHasOwnProperty)
	ctx.defineMethod(proto, "isPrototypeOf", 1, objectProtoIsPrototypeOf)
	ctx.defineMethod(proto, "propertyIsEnumerable", 1, objectProtoPropertyIsEnumerable)
	ctx.defineMethod(proto, "toString", 0, objectProtoToString)
	ctx.defineMethod(proto, "toLocaleString", 0, func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		fn, err := m.GetProperty(this, "toString")
		if err != nil {
			return vm.Undefined, err
		}
		return m.Call(fn, this, nil)
	})
	ctx.defineMethod(proto, "valueOf", 0, func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		obj, err := thisObject(m, this, "Object.prototype.valueOf")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.ObjectValue(obj), nil
	})

	ctor := ctx.Realm.NewNativeConstructor("Object", 1, proto, objectCall,
		func(m *vm.VM, callee *vm.Object, args []vm.Value) (vm.Value, error) {
			return objectCall(m, vm.Undefined, args)
		})

	ctx.defineMethod(ctor, "getPrototypeOf", 1, func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		obj, err := objectArg(m, args, "Object.getPrototypeOf")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.ObjectValue(obj.Prototype()), nil
	})
	ctx.defineMethod(ctor, "keys", 1, func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		obj, err := objectArg(m, args, "Object.keys")
		if err != nil {
			return vm.Undefined, err
		}
		return stringArray(m, obj.OwnKeys(true)), nil
	})
	ctx.defineMethod(ctor, "getOwnPropertyNames", 1, func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		obj, err := objectArg(m, args, "Object.getOwnPropertyNames")
		if err != nil {
			return vm.Undefined, err
		}
		return stringArray(m, obj.OwnKeys(false)), nil
	})
	ctx.defineMethod(ctor, "create", 2, objectCreate)
	ctx.defineMethod(ctor, "defineProperty", 3, func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		obj, err := objectArg(m, args, "Object.defineProperty")
		if err != nil {
			return vm.Undefined, err
		}
		name, err := m.ToPropertyKey(vm.Arg(args, 1))
		if err != nil {
			return vm.Undefined, err
		}
		if err := defineFromDescriptor(m, obj, name, vm.Arg(args, 2)); err != nil {
			return vm.Undefined, err
		}
		return args[0], nil
	})
	ctx.defineMethod(ctor, "defineProperties", 2, func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		obj, err := objectArg(m, args, "Object.defineProperties")
		if err != nil {
			return vm.Undefined, err
		}
		if err := defineProperties(m, obj, vm.Arg(args, 1)); err != nil {
			return vm.Undefined, err
		}
		return args[0], nil
	})
	ctx.defineMethod(ctor, "getOwnPropertyDescriptor", 2, objectGetOwnPropertyDescriptor)
	ctx.defineMethod(ctor, "freeze", 1, func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		if v := vm.Arg(args, 0); v.IsObject() {
			v.AsObject().Freeze()
		}
		return vm.Arg(args, 0), nil
	})
	ctx.defineMethod(ctor, "isFrozen", 1, func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		v := vm.Arg(args, 0)
		if !v.IsObject() {
			return vm.True, nil
		}
		obj := v.AsObject()
		if obj.Extensible() {
			return vm.False, nil
		}
		for _, k := range obj.OwnKeys(false) {
			attrs, _ := obj.OwnPropertyAttrs(k)
			if attrs&vm.Configurable != 0 || (attrs&vm.Writable != 0 && !obj.IsAccessor(k)) {
				return vm.False, nil
			}
		}
		return vm.True, nil
	})
	ctx.defineMethod(ctor, "preventExtensions", 1, func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		if v := vm.Arg(args, 0); v.IsObject() {
			v.AsObject().PreventExtensions()
		}
		return vm.Arg(args, 0), nil
	})
	ctx.defineMethod(ctor, "isExtensible", 1, func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		v := vm.Arg(args, 0)
		return vm.BooleanValue(v.IsObject() && v.AsObject().Extensible()), nil
	})

	return ctx.DefineGlobal("Object", vm.ObjectValue(ctor))
}

func objectCall(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	v := vm.Arg(args, 0)
	if v.IsNullish() {
		return vm.ObjectValue(m.Realm().NewObject()), nil
	}
	obj, err := m.ToObject(v)
	if err != nil {
		return vm.Undefined, err
	}
	return vm.ObjectValue(obj), nil
}

// objectArg returns args[0] when it is an object.
func objectArg(m *vm.VM, args []vm.Value, fn string) (*vm.Object, error) {
	v := vm.Arg(args, 0)
	if !v.IsObject() {
		return nil, m.NewTypeError("%s called on non-object", fn)
	}
	return v.AsObject(), nil
}

func stringArray(m *vm.VM, names []string) vm.Value {
	elems := make([]vm.Value, len(names))
	for i, n := range names {
		elems[i] = vm.NewString(n)
	}
	return vm.ObjectValue(m.Realm().NewArray(elems))
}

func objectCreate(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	protoArg := vm.Arg(args, 0)
	var proto *vm.Object
	switch {
	case protoArg.IsObject():
		proto = protoArg.AsObject()
	case protoArg.IsNull():
	default:
		return vm.Undefined, m.NewTypeError("Object prototype may only be an Object or null: %s", protoArg.ToString())
	}
	obj := vm.NewObject(proto)
	if props := vm.Arg(args, 1); !props.IsUndefined() {
		if err := defineProperties(m, obj, props); err != nil {
			return vm.Undefined, err
		}
	}
	return vm.ObjectValue(obj), nil
}

func defineProperties(m *vm.VM, obj *vm.Object, props vm.Value) error {
	src, err := m.ToObject(props)
	if err != nil {
		return err
	}
	for _, k := range src.OwnKeys(true) {
		desc, err := m.GetProperty(vm.ObjectValue(src), k)
		if err != nil {
			return err
		}
		if err := defineFromDescriptor(m, obj, k, desc); err != nil {
			return err
		}
	}
	return nil
}

// defineFromDescriptor applies a property descriptor object to obj.name.
// Fields the descriptor leaves out keep their current state, or default
// to false and undefined for a new property.
func defineFromDescriptor(m *vm.VM, obj *vm.Object, name string, desc vm.Value) error {
	if !desc.IsObject() {
		return m.NewTypeError("Property description must be an object: %s", desc.ToString())
	}
	d := desc.AsObject()
	field := func(key string) (vm.Value, bool, error) {
		if !d.HasProperty(key) {
			return vm.Undefined, false, nil
		}
		v, err := m.GetProperty(desc, key)
		return v, true, err
	}

	attrs, exists := obj.OwnPropertyAttrs(name)
	if exists {
		if attrs&vm.Configurable == 0 {
			return m.NewTypeError("Cannot redefine property: %s", name)
		}
	} else if !obj.Extensible() {
		return m.NewTypeError("Cannot define property %s, object is not extensible", name)
	}
	flag := func(key string, bit vm.PropertyAttr) error {
		v, ok, err := field(key)
		if err != nil || !ok {
			return err
		}
		if v.IsTruthy() {
			attrs |= bit
		} else {
			attrs &^= bit
		}
		return nil
	}
	if err := flag("enumerable", vm.Enumerable); err != nil {
		return err
	}
	if err := flag("configurable", vm.Configurable); err != nil {
		return err
	}

	getter, hasGet, err := field("get")
	if err != nil {
		return err
	}
	setter, hasSet, err := field("set")
	if err != nil {
		return err
	}
	if hasGet || hasSet {
		if d.HasProperty("value") || d.HasProperty("writable") {
			return m.NewTypeError("Invalid property descriptor. Cannot both specify accessors and a value or writable attribute")
		}
		for _, fn := range []vm.Value{getter, setter} {
			if !fn.IsUndefined() && !fn.IsCallable() {
				return m.NewTypeError("Getter and setter must be functions: %s", fn.ToString())
			}
		}
		obj.DefineAccessor(name, getter, setter, attrs)
		return nil
	}

	if err := flag("writable", vm.Writable); err != nil {
		return err
	}
	value, hasValue, err := field("value")
	if err != nil {
		return err
	}
	if !hasValue && exists && !obj.IsAccessor(name) {
		value, _ = obj.GetOwn(name)
	}
	obj.DefineOwnProperty(name, value, attrs)
	return nil
}

func objectGetOwnPropertyDescriptor(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	obj, err := objectArg(m, args, "Object.getOwnPropertyDescriptor")
	if err != nil {
		return vm.Undefined, err
	}
	name, err := m.ToPropertyKey(vm.Arg(args, 1))
	if err != nil {
		return vm.Undefined, err
	}
	attrs, ok := obj.OwnPropertyAttrs(name)
	if !ok {
		return vm.Undefined, nil
	}
	desc := m.Realm().NewObject()
	if getter, setter, isAccessor := obj.OwnAccessor(name); isAccessor {
		desc.Set("get", getter)
		desc.Set("set", setter)
	} else {
		v, _ := obj.GetOwn(name)
		desc.Set("value", v)
		desc.Set("writable", vm.BooleanValue(attrs&vm.Writable != 0))
	}
	desc.Set("enumerable", vm.BooleanValue(attrs&vm.Enumerable != 0))
	desc.Set("configurable", vm.BooleanValue(attrs&vm.Configurable != 0))
	return vm.ObjectValue(desc), nil
}

func objectProtoHasOwnProperty(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	name, err := m.ToPropertyKey(vm.Arg(args, 0))
	if err != nil {
		return vm.Undefined, err
	}
	obj, err := thisObject(m, this, "Object.prototype.hasOwnProperty")
	if err != nil {
		return vm.Undefined, err
	}
	return vm.BooleanValue(obj.HasOwnProperty(name)), nil
}

func objectProtoIsPrototypeOf(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	v := vm.Arg(args, 0)
	if !v.IsObject() {
		return vm.False, nil
	}
	obj, err := thisObject(m, this, "Object.prototype.isPrototypeOf")
	if err != nil {
		return vm.Undefined, err
	}
	for p := v.AsObject().Prototype(); p != nil; p = p.Prototype() {
		if p == obj {
			return vm.True, nil
		}
	}
	return vm.False, nil
}

func objectProtoPropertyIsEnumerable(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	name, err := m.ToPropertyKey(vm.Arg(args, 0))
	if err != nil {
		return vm.Undefined, err
	}
	obj, err := thisObject(m, this, "Object.prototype.propertyIsEnumerable")
	if err != nil {
		return vm.Undefined, err
	}
	attrs, ok := obj.OwnPropertyAttrs(name)
	return vm.BooleanValue(ok && attrs&vm.Enumerable != 0), nil
}

func objectProtoToString(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	switch {
	case this.IsUndefined():
		return vm.NewString("[object Undefined]"), nil
	case this.IsNull():
		return vm.NewString("[object Null]"), nil
	}
	obj, err := m.ToObject(this)
	if err != nil {
		return vm.Undefined, err
	}
	return vm.NewString("[object " + obj.Class() + "]"), nil
}
