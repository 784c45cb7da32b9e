package builtins

import (
	"github.com/qtproject/qtjsbackend/pkg/vm"
)

type BooleanInitializer struct{}

func (b *BooleanInitializer) Name() string {
	return "Boolean"
}

func (b *BooleanInitializer) Priority() int {
	return PriorityBoolean
}

func (b *BooleanInitializer) InitRuntime(ctx *RuntimeContext) error {
	proto := ctx.Realm.BooleanPrototype

	ctx.defineMethod(proto, "valueOf", 0, func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		v, err := thisBoolean(m, this, "valueOf")
		return vm.BooleanValue(v), err
	})
	ctx.defineMethod(proto, "toString", 0, func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		v, err := thisBoolean(m, this, "toString")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.NewString(vm.BooleanValue(v).ToString()), nil
	})

	ctor := ctx.Realm.NewNativeConstructor("Boolean", 1, proto,
		func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			return vm.BooleanValue(vm.Arg(args, 0).IsTruthy()), nil
		},
		func(m *vm.VM, callee *vm.Object, args []vm.Value) (vm.Value, error) {
			return wrapPrimitive(m, vm.BooleanValue(vm.Arg(args, 0).IsTruthy()))
		})
	return ctx.DefineGlobal("Boolean", vm.ObjectValue(ctor))
}

func thisBoolean(m *vm.VM, this vm.Value, method string) (bool, error) {
	if this.IsBoolean() {
		return this.AsBoolean(), nil
	}
	if this.IsObject() && this.AsObject().Class() == vm.ClassBoolean {
		return this.AsObject().PrimitiveValue().AsBoolean(), nil
	}
	return false, m.NewTypeError("Boolean.prototype.%s requires that 'this' be a Boolean", method)
}
