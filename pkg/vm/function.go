package vm

// FunctionKind distinguishes the top-level code units from ordinary functions.
type FunctionKind uint8

const (
	KindFunction FunctionKind = iota
	KindScript                // global code of a script
	KindEval                  // code passed to eval
)

// Function is the compiled form of a function body, script or eval code.
type Function struct {
	Name         string
	Kind         FunctionKind
	Arity        int
	RegisterSize int
	Chunk        *Chunk

	// NeedsEnv is set when the locals live in a heap Environment rather
	// than in registers. SlotNames names each environment slot.
	NeedsEnv  bool
	SlotNames []string

	// ParamSlots maps each parameter to its slot (NeedsEnv) or register.
	ParamSlots []int

	IsArrow bool
	QmlMode bool
	Source  string
}

// Closure is a Function bound to the scope it was created in.
type Closure struct {
	Fn        *Function
	Scope     *Environment
	QmlGlobal *Object // QML global of the creating invocation, may be nil
	This      Value   // lexical this of arrow functions
	Realm     *Realm
}

// NativeFunc is the signature of functions implemented in Go.
type NativeFunc func(vm *VM, this Value, args []Value) (Value, error)

// NativeFunction is a function implemented in Go. Construct, when set,
// handles `new` calls; otherwise Constructor permits `new` with a fresh
// ordinary object as this.
type NativeFunction struct {
	Name        string
	Arity       int
	Fn          NativeFunc
	Construct   func(vm *VM, callee *Object, args []Value) (Value, error)
	Constructor bool
	Realm       *Realm
}

// BoundFunction is the result of Function.prototype.bind.
type BoundFunction struct {
	Target *Object
	This   Value
	Args   []Value
}

// Arg returns args[i], or undefined when absent.
func Arg(args []Value, i int) Value {
	if i < len(args) {
		return args[i]
	}
	return Undefined
}

// NewNativeFunction creates a function object for fn in realm r.
func (r *Realm) NewNativeFunction(name string, arity int, fn NativeFunc) *Object {
	o := NewObjectOfClass(ClassFunction, r.FunctionPrototype)
	o.native = &NativeFunction{Name: name, Arity: arity, Fn: fn, Realm: r}
	o.DefineOwnProperty("length", IntegerValue(int32(arity)), 0)
	o.DefineOwnProperty("name", NewString(name), 0)
	return o
}

// NewNativeConstructor creates a constructor function with a prototype
// object whose constructor property points back at it.
func (r *Realm) NewNativeConstructor(name string, arity int, proto *Object, fn NativeFunc,
	construct func(vm *VM, callee *Object, args []Value) (Value, error)) *Object {
	o := r.NewNativeFunction(name, arity, fn)
	o.native.Construct = construct
	o.native.Constructor = true
	if proto != nil {
		o.DefineOwnProperty("prototype", ObjectValue(proto), 0)
		proto.DefineOwnProperty("constructor", ObjectValue(o), HiddenAttrs)
	}
	return o
}

// newClosureObject creates the function object for a closure, with a
// fresh prototype object for non-arrow functions.
func (r *Realm) newClosureObject(c *Closure) *Object {
	o := NewObjectOfClass(ClassFunction, r.FunctionPrototype)
	o.closure = c
	o.DefineOwnProperty("length", IntegerValue(int32(c.Fn.Arity)), 0)
	o.DefineOwnProperty("name", NewString(c.Fn.Name), 0)
	if !c.Fn.IsArrow {
		proto := NewObject(r.ObjectPrototype)
		proto.DefineOwnProperty("constructor", ObjectValue(o), HiddenAttrs)
		o.DefineOwnProperty("prototype", ObjectValue(proto), Writable)
	}
	return o
}

// NewBoundFunction creates a bound function object.
func (r *Realm) NewBoundFunction(target *Object, this Value, args []Value) *Object {
	o := NewObjectOfClass(ClassFunction, r.FunctionPrototype)
	o.bound = &BoundFunction{Target: target, This: this, Args: args}
	length := 0
	if l, ok := target.GetOwn("length"); ok && l.IsNumber() {
		length = int(l.ToFloat()) - len(args)
	}
	if length < 0 {
		length = 0
	}
	o.DefineOwnProperty("length", IntegerValue(int32(length)), 0)
	o.DefineOwnProperty("name", NewString(o.FunctionName()), 0)
	return o
}
