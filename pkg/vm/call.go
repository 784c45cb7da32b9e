package vm

// callFromScript performs a call made by bytecode. Closures get a new
// frame on the running loop and pushed is true; natives run immediately
// and store their result in the caller's destReg.
func (vm *VM) callFromScript(callee Value, this Value, args []Value, destReg int) (pushed bool, err error) {
	if !callee.IsObject() || !callee.AsObject().IsCallable() {
		return false, vm.NewTypeError("%s is not a function", describeCallee(callee))
	}
	fnObj := callee.AsObject()
	for fnObj.bound != nil {
		b := fnObj.bound
		this = b.This
		args = append(append([]Value(nil), b.Args...), args...)
		fnObj = b.Target
	}
	if c := fnObj.closure; c != nil {
		_, err := vm.pushFrame(fnObj, c, this, args, destReg, false)
		return err == nil, err
	}
	caller := vm.frames[len(vm.frames)-1]
	result, err := vm.callNative(fnObj, this, args)
	if err != nil {
		return false, err
	}
	caller.registers[destReg] = result
	return false, nil
}

// constructFromScript performs a `new` expression made by bytecode.
func (vm *VM) constructFromScript(callee Value, args []Value, destReg int) (pushed bool, err error) {
	if !callee.IsObject() || !callee.AsObject().IsConstructor() {
		return false, vm.NewTypeError("%s is not a constructor", describeCallee(callee))
	}
	fnObj := callee.AsObject()
	for fnObj.bound != nil {
		args = append(append([]Value(nil), fnObj.bound.Args...), args...)
		fnObj = fnObj.bound.Target
	}
	if c := fnObj.closure; c != nil {
		obj, err := vm.newInstance(fnObj)
		if err != nil {
			return false, err
		}
		f, err := vm.pushFrame(fnObj, c, ObjectValue(obj), args, destReg, false)
		if err != nil {
			return false, err
		}
		f.isConstructor = true
		f.newObj = obj
		return true, nil
	}
	caller := vm.frames[len(vm.frames)-1]
	result, err := vm.constructNative(fnObj, args)
	if err != nil {
		return false, err
	}
	caller.registers[destReg] = result
	return false, nil
}

// newInstance creates the receiver of a constructor call, inheriting
// from the constructor's prototype property.
func (vm *VM) newInstance(ctor *Object) (*Object, error) {
	proto, err := vm.GetProperty(ObjectValue(ctor), "prototype")
	if err != nil {
		return nil, err
	}
	r := vm.Realm()
	if proto.IsObject() {
		return NewObject(proto.AsObject()), nil
	}
	return r.NewObject(), nil
}

func (vm *VM) callNative(fnObj *Object, this Value, args []Value) (Value, error) {
	nf := fnObj.native
	// natives may keep their arguments, registers get reused
	args = append([]Value(nil), args...)
	result, err := nf.Fn(vm, this, args)
	if err != nil {
		return Undefined, err
	}
	return result, nil
}

func (vm *VM) constructNative(fnObj *Object, args []Value) (Value, error) {
	nf := fnObj.native
	args = append([]Value(nil), args...)
	if nf.Construct != nil {
		return nf.Construct(vm, fnObj, args)
	}
	obj, err := vm.newInstance(fnObj)
	if err != nil {
		return Undefined, err
	}
	result, err := nf.Fn(vm, ObjectValue(obj), args)
	if err != nil {
		return Undefined, err
	}
	if result.IsObject() {
		return result, nil
	}
	return ObjectValue(obj), nil
}

// Call calls fn with the given receiver and arguments. It may be used
// from host code and from native functions.
func (vm *VM) Call(fn Value, this Value, args []Value) (Value, error) {
	if !fn.IsObject() || !fn.AsObject().IsCallable() {
		return Undefined, vm.NewTypeError("%s is not a function", describeCallee(fn))
	}
	fnObj := fn.AsObject()
	for fnObj.bound != nil {
		this = fnObj.bound.This
		args = append(append([]Value(nil), fnObj.bound.Args...), args...)
		fnObj = fnObj.bound.Target
	}
	if c := fnObj.closure; c != nil {
		if _, err := vm.pushFrame(fnObj, c, this, args, 0, true); err != nil {
			return Undefined, err
		}
		return vm.run()
	}
	return vm.callNative(fnObj, this, args)
}

// Construct applies `new` to fn.
func (vm *VM) Construct(fn Value, args []Value) (Value, error) {
	if !fn.IsObject() || !fn.AsObject().IsConstructor() {
		return Undefined, vm.NewTypeError("%s is not a constructor", describeCallee(fn))
	}
	fnObj := fn.AsObject()
	for fnObj.bound != nil {
		args = append(append([]Value(nil), fnObj.bound.Args...), args...)
		fnObj = fnObj.bound.Target
	}
	if c := fnObj.closure; c != nil {
		obj, err := vm.newInstance(fnObj)
		if err != nil {
			return Undefined, err
		}
		f, err := vm.pushFrame(fnObj, c, ObjectValue(obj), args, 0, true)
		if err != nil {
			return Undefined, err
		}
		f.isConstructor = true
		f.newObj = obj
		return vm.run()
	}
	return vm.constructNative(fnObj, args)
}

// directEval runs eval(args) as a direct eval in the scope of frame. When
// the global eval binding has been replaced, the replacement is called
// as an ordinary function instead. Bindings named eval on with objects
// or on the QML global are never consulted.
func (vm *VM) directEval(frame *CallFrame, args []Value, destReg int) (pushed bool, err error) {
	global := frame.realm.GlobalObject
	if v, ok := global.Get("eval"); ok && !(v.IsObject() && v.AsObject() == frame.realm.EvalFunction) {
		if p, _ := global.lookup("eval"); p.accessor {
			if v, err = vm.GetProperty(ObjectValue(global), "eval"); err != nil {
				return false, err
			}
		}
		return vm.callFromScript(v, Undefined, args, destReg)
	}

	src := Arg(args, 0)
	if !src.IsString() {
		frame.registers[destReg] = src
		return false, nil
	}
	fn, err := vm.compileEval(src.AsString())
	if err != nil {
		return false, err
	}
	c := &Closure{Fn: fn, Scope: frame.scope, QmlGlobal: frame.qmlGlobal, Realm: frame.realm}
	if _, err := vm.pushFrame(nil, c, frame.this, nil, destReg, false); err != nil {
		return false, err
	}
	return true, nil
}

// IndirectEval evaluates source as global code, as a call of the global
// eval function through any other reference does.
func (vm *VM) IndirectEval(source string) (Value, error) {
	fn, err := vm.compileEval(source)
	if err != nil {
		return Undefined, err
	}
	r := vm.Realm()
	c := &Closure{Fn: fn, QmlGlobal: vm.CallingQmlGlobal(), Realm: r}
	if _, err := vm.pushFrame(nil, c, ObjectValue(r.GlobalObject), nil, 0, true); err != nil {
		return Undefined, err
	}
	return vm.run()
}

func (vm *VM) compileEval(source string) (*Function, error) {
	if vm.evalCompiler == nil {
		return nil, vm.NewEvalError("eval is not available")
	}
	fn, err := vm.evalCompiler(source)
	if err != nil {
		// syntax and compile errors carry a bare message
		if m, ok := err.(interface{ Message() string }); ok {
			return nil, vm.NewSyntaxError("%s", m.Message())
		}
		return nil, vm.NewSyntaxError("%s", err.Error())
	}
	return fn, nil
}

// NewEvalError returns an error throwing an EvalError.
func (vm *VM) NewEvalError(format string, args ...interface{}) error {
	return vm.errorOf(func(r *Realm) *Object { return r.EvalErrorPrototype }, format, args...)
}

func describeCallee(v Value) string {
	switch v.Type() {
	case TypeString:
		return `"` + v.AsString() + `"`
	case TypeObject:
		if v.AsObject().IsCallable() {
			return v.ToString()
		}
		return "object"
	}
	return v.ToString()
}
