package builtins

import (
	"github.com/qtproject/qtjsbackend/pkg/vm"
)

type ErrorInitializer struct{}

func (e *ErrorInitializer) Name() string {
	return "Error"
}

func (e *ErrorInitializer) Priority() int {
	return PriorityError
}

func (e *ErrorInitializer) InitRuntime(ctx *RuntimeContext) error {
	r := ctx.Realm
	ctx.defineMethod(r.ErrorPrototype, "toString", 0, errorProtoToString)

	kinds := []struct {
		name  string
		proto *vm.Object
	}{
		{"Error", r.ErrorPrototype},
		{"TypeError", r.TypeErrorPrototype},
		{"ReferenceError", r.ReferenceErrorPrototype},
		{"SyntaxError", r.SyntaxErrorPrototype},
		{"RangeError", r.RangeErrorPrototype},
		{"URIError", r.URIErrorPrototype},
		{"EvalError", r.EvalErrorPrototype},
	}
	for _, k := range kinds {
		k.proto.DefineOwnProperty("name", vm.NewString(k.name), vm.HiddenAttrs)
		k.proto.DefineOwnProperty("message", vm.NewString(""), vm.HiddenAttrs)

		var ctor *vm.Object
		construct := func(m *vm.VM, callee *vm.Object, args []vm.Value) (vm.Value, error) {
			return newErrorInstance(m, callee, vm.Arg(args, 0))
		}
		ctor = r.NewNativeConstructor(k.name, 1, k.proto, func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			return newErrorInstance(m, ctor, vm.Arg(args, 0))
		}, construct)
		if err := ctx.DefineGlobal(k.name, vm.ObjectValue(ctor)); err != nil {
			return err
		}
	}
	return nil
}

// newErrorInstance creates an error inheriting from ctor.prototype. The
// message becomes an own property only when one is given.
func newErrorInstance(m *vm.VM, ctor *vm.Object, message vm.Value) (vm.Value, error) {
	proto := m.Realm().ErrorPrototype
	if p, ok := ctor.GetOwn("prototype"); ok && p.IsObject() {
		proto = p.AsObject()
	}
	o := vm.NewObjectOfClass(vm.ClassError, proto)
	if !message.IsUndefined() {
		msg, err := m.ToString(message)
		if err != nil {
			return vm.Undefined, err
		}
		o.DefineOwnProperty("message", vm.NewString(msg), vm.HiddenAttrs)
	}
	return vm.ObjectValue(o), nil
}

func errorProtoToString(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	if !this.IsObject() {
		return vm.Undefined, m.NewTypeError("Error.prototype.toString called on non-object")
	}
	part := func(key, def string) (string, error) {
		v, err := m.GetProperty(this, key)
		if err != nil || v.IsUndefined() {
			return def, err
		}
		return m.ToString(v)
	}
	name, err := part("name", "Error")
	if err != nil {
		return vm.Undefined, err
	}
	msg, err := part("message", "")
	if err != nil {
		return vm.Undefined, err
	}
	switch {
	case name == "":
		return vm.NewString(msg), nil
	case msg == "":
		return vm.NewString(name), nil
	}
	return vm.NewString(name + ": " + msg), nil
}
