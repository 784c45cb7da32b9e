package builtins

import (
	"github.com/qtproject/qtjsbackend/pkg/vm"
)

// BuiltinInitializer is implemented by each builtin module
type BuiltinInitializer interface {
	// Name returns the module name (e.g., "Array", "String", "Math")
	Name() string

	// Priority returns initialization order (lower = earlier)
	Priority() int

	// InitRuntime creates runtime values in the realm
	InitRuntime(ctx *RuntimeContext) error
}

// RuntimeContext provides everything needed for runtime initialization
type RuntimeContext struct {
	// The VM instance
	VM *vm.VM

	// The realm being populated
	Realm *vm.Realm

	// Define a global value
	DefineGlobal func(name string, value vm.Value) error

	// Built-in prototypes, created with the realm
	ObjectPrototype   *vm.Object
	FunctionPrototype *vm.Object
	ArrayPrototype    *vm.Object
}

// Priority constants for initialization order
const (
	PriorityObject   = 0   // Object must be first (base prototype)
	PriorityFunction = 1   // Function second (inherits from Object)
	PriorityArray    = 3   // Array third
	PriorityError    = 5   // Error family, before anything that throws
	PriorityGlobals  = 6   // eval, parseInt and the global constants
	PriorityString   = 10  // String primitives
	PriorityNumber   = 11  // Number primitives
	PriorityBoolean  = 12  // Boolean primitives
	PriorityRegExp   = 13  // RegExp constructor
	PriorityMath     = 100 // Math object
	PriorityJSON     = 101 // JSON object
	PriorityConsole  = 102 // Console object
)

// defineMethod installs a non-enumerable native method on obj.
func (ctx *RuntimeContext) defineMethod(obj *vm.Object, name string, arity int, fn vm.NativeFunc) *vm.Object {
	f := ctx.Realm.NewNativeFunction(name, arity, fn)
	obj.DefineOwnProperty(name, vm.ObjectValue(f), vm.HiddenAttrs)
	return f
}

// defineConstant installs a read-only, non-enumerable value on obj.
func defineConstant(obj *vm.Object, name string, v vm.Value) {
	obj.DefineOwnProperty(name, v, 0)
}
