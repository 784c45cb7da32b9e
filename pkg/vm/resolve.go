package vm

// Identifier resolution for names the compiler could not bind statically.
// The order is: the scope chain (with objects, environment slots, eval
// vars), the primary global object of the running function's realm, then
// the QML global bound to the invocation.

// getGlobal resolves a free name that no enclosing scope can shadow.
func (vm *VM) getGlobal(frame *CallFrame, name string) (Value, error) {
	global := frame.realm.GlobalObject
	if p, ok := global.lookup(name); ok {
		if p.accessor {
			return vm.callGetter(p, ObjectValue(global))
		}
		return p.value, nil
	}
	if qml := frame.qmlGlobal; qml != nil {
		if p, ok := qml.lookup(name); ok {
			if p.accessor {
				return vm.callGetter(p, ObjectValue(qml))
			}
			return p.value, nil
		}
	}
	return Undefined, vm.NewReferenceError("%s is not defined", name)
}

// setGlobal assigns a free name. An existing global wins; otherwise an
// own property of the QML global is updated; otherwise a new global
// property is created.
func (vm *VM) setGlobal(frame *CallFrame, name string, v Value) error {
	global := frame.realm.GlobalObject
	if !global.HasProperty(name) && frame.qmlGlobal != nil && frame.qmlGlobal.HasOwnProperty(name) {
		return vm.SetProperty(ObjectValue(frame.qmlGlobal), name, v)
	}
	return vm.SetProperty(ObjectValue(global), name, v)
}

func (vm *VM) getName(frame *CallFrame, name string) (Value, error) {
	b := frame.scope.lookupScope(name)
	switch {
	case b.env != nil:
		return b.env.slots[b.slot], nil
	case b.obj != nil:
		return vm.GetProperty(ObjectValue(b.obj), name)
	}
	return vm.getGlobal(frame, name)
}

func (vm *VM) setName(frame *CallFrame, name string, v Value) error {
	b := frame.scope.lookupScope(name)
	switch {
	case b.env != nil:
		b.env.slots[b.slot] = v
		return nil
	case b.obj != nil:
		return vm.SetProperty(ObjectValue(b.obj), name, v)
	}
	return vm.setGlobal(frame, name, v)
}

// typeofName evaluates `typeof name`, which yields "undefined" instead of
// throwing for unresolvable names.
func (vm *VM) typeofName(frame *CallFrame, name string, dynamic bool) (Value, error) {
	if dynamic {
		b := frame.scope.lookupScope(name)
		switch {
		case b.env != nil:
			return NewString(b.env.slots[b.slot].TypeofString()), nil
		case b.obj != nil:
			v, err := vm.GetProperty(ObjectValue(b.obj), name)
			if err != nil {
				return Undefined, err
			}
			return NewString(v.TypeofString()), nil
		}
	}
	global := frame.realm.GlobalObject
	holder := global
	if !global.HasProperty(name) {
		holder = nil
		if qml := frame.qmlGlobal; qml != nil && qml.HasProperty(name) {
			holder = qml
		}
	}
	if holder == nil {
		return NewString("undefined"), nil
	}
	v, err := vm.GetProperty(ObjectValue(holder), name)
	if err != nil {
		return Undefined, err
	}
	return NewString(v.TypeofString()), nil
}

// declareVar creates a var binding introduced by eval code in the
// nearest function scope, or on the global object.
func (vm *VM) declareVar(frame *CallFrame, name string) {
	env := frame.scope.varScope()
	if env == nil {
		global := frame.realm.GlobalObject
		if !global.HasOwnProperty(name) {
			global.DefineOwnProperty(name, Undefined, DefaultAttrs)
		}
		return
	}
	if env.slotIndex(name) >= 0 {
		return
	}
	if env.vars == nil {
		env.vars = NewObject(nil)
	}
	if !env.vars.HasOwnProperty(name) {
		env.vars.DefineOwnProperty(name, Undefined, DefaultAttrs)
	}
}

// deleteName implements `delete name`. Declared bindings cannot be
// deleted; eval vars, with object properties and globals can.
func (vm *VM) deleteName(frame *CallFrame, name string) bool {
	b := frame.scope.lookupScope(name)
	switch {
	case b.env != nil:
		return false
	case b.obj != nil:
		return b.obj.Delete(name)
	}
	global := frame.realm.GlobalObject
	if global.HasOwnProperty(name) {
		return global.Delete(name)
	}
	if qml := frame.qmlGlobal; qml != nil && qml.HasOwnProperty(name) {
		return qml.Delete(name)
	}
	return true
}
