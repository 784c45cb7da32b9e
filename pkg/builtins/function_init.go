package builtins

import (
	"strings"

	"github.com/qtproject/qtjsbackend/pkg/vm"
)

type FunctionInitializer struct{}

func (f *FunctionInitializer) Name() string {
	return "Function"
}

func (f *FunctionInitializer) Priority() int {
	return PriorityFunction
}

func (f *FunctionInitializer) InitRuntime(ctx *RuntimeContext) error {
	proto := ctx.FunctionPrototype
	proto.DefineOwnProperty("length", vm.IntegerValue(0), 0)
	proto.DefineOwnProperty("name", vm.NewString(""), 0)

	ctx.defineMethod(proto, "call", 1, func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		if !this.IsCallable() {
			return vm.Undefined, m.NewTypeError("Function.prototype.call called on non-function")
		}
		var rest []vm.Value
		if len(args) > 1 {
			rest = args[1:]
		}
		return m.Call(this, vm.Arg(args, 0), rest)
	})
	ctx.defineMethod(proto, "apply", 2, func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		if !this.IsCallable() {
			return vm.Undefined, m.NewTypeError("Function.prototype.apply called on non-function")
		}
		list, err := listFromArrayLike(m, vm.Arg(args, 1))
		if err != nil {
			return vm.Undefined, err
		}
		return m.Call(this, vm.Arg(args, 0), list)
	})
	ctx.defineMethod(proto, "bind", 1, func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		if !this.IsCallable() {
			return vm.Undefined, m.NewTypeError("Bind must be called on a function")
		}
		var bound []vm.Value
		if len(args) > 1 {
			bound = args[1:]
		}
		return vm.ObjectValue(m.Realm().NewBoundFunction(this.AsObject(), vm.Arg(args, 0), bound)), nil
	})
	ctx.defineMethod(proto, "toString", 0, func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		if !this.IsCallable() {
			return vm.Undefined, m.NewTypeError("Function.prototype.toString requires that 'this' be a Function")
		}
		return vm.NewString(this.ToString()), nil
	})

	ctor := ctx.Realm.NewNativeConstructor("Function", 1, proto, functionCall,
		func(m *vm.VM, callee *vm.Object, args []vm.Value) (vm.Value, error) {
			return functionCall(m, vm.Undefined, args)
		})
	return ctx.DefineGlobal("Function", vm.ObjectValue(ctor))
}

// functionCall implements Function(p1, ..., body) by compiling a
// function expression as global code.
func functionCall(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	params := make([]string, 0, len(args))
	body := ""
	for i, a := range args {
		s, err := m.ToString(a)
		if err != nil {
			return vm.Undefined, err
		}
		if i == len(args)-1 {
			body = s
		} else {
			params = append(params, s)
		}
	}
	src := "(function anonymous(" + strings.Join(params, ",") + "\n) {\n" + body + "\n})"
	return m.IndirectEval(src)
}
