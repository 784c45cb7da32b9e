package vm

// Realm represents an isolated JavaScript execution environment.
// Each realm has its own global object, built-in prototypes, and intrinsics.
// An embedding Context owns exactly one realm.
type Realm struct {
	id int

	// Global environment
	GlobalObject *Object

	// Built-in prototypes
	ObjectPrototype         *Object
	FunctionPrototype       *Object
	ArrayPrototype          *Object
	StringPrototype         *Object
	NumberPrototype         *Object
	BooleanPrototype        *Object
	RegExpPrototype         *Object
	ErrorPrototype          *Object
	TypeErrorPrototype      *Object
	ReferenceErrorPrototype *Object
	SyntaxErrorPrototype    *Object
	RangeErrorPrototype     *Object
	URIErrorPrototype       *Object
	EvalErrorPrototype      *Object

	// Intrinsic functions
	EvalFunction *Object // the real eval, direct calls compare against it

	// Parent VM reference
	vm *VM
}

// NewRealm creates a realm with empty prototypes and a fresh global
// object. The builtins package populates it.
func NewRealm(vm *VM) *Realm {
	vm.realmCount++
	r := &Realm{id: vm.realmCount, vm: vm}
	r.InitializePrototypes()
	return r
}

// ID returns the unique identifier for this realm.
func (r *Realm) ID() int {
	return r.id
}

// VM returns the parent VM for this realm.
func (r *Realm) VM() *VM {
	return r.vm
}

// InitializePrototypes creates the prototype chain for this realm.
func (r *Realm) InitializePrototypes() {
	// Object.prototype is the root (inherits from null)
	r.ObjectPrototype = NewObject(nil)

	r.FunctionPrototype = NewObjectOfClass(ClassFunction, r.ObjectPrototype)
	r.FunctionPrototype.native = &NativeFunction{
		Name: "",
		Fn:   func(*VM, Value, []Value) (Value, error) { return Undefined, nil },
	}
	r.ArrayPrototype = NewArrayObject(r.ObjectPrototype, nil)
	r.StringPrototype = NewObjectOfClass(ClassString, r.ObjectPrototype)
	r.StringPrototype.primitive = NewString("")
	r.NumberPrototype = NewObjectOfClass(ClassNumber, r.ObjectPrototype)
	r.NumberPrototype.primitive = IntegerValue(0)
	r.BooleanPrototype = NewObjectOfClass(ClassBoolean, r.ObjectPrototype)
	r.BooleanPrototype.primitive = False
	r.RegExpPrototype = NewObject(r.ObjectPrototype)

	// Error prototypes
	r.ErrorPrototype = NewObject(r.ObjectPrototype)
	r.TypeErrorPrototype = NewObject(r.ErrorPrototype)
	r.ReferenceErrorPrototype = NewObject(r.ErrorPrototype)
	r.SyntaxErrorPrototype = NewObject(r.ErrorPrototype)
	r.RangeErrorPrototype = NewObject(r.ErrorPrototype)
	r.URIErrorPrototype = NewObject(r.ErrorPrototype)
	r.EvalErrorPrototype = NewObject(r.ErrorPrototype)

	r.GlobalObject = NewObjectOfClass(ClassGlobal, r.ObjectPrototype)
}

// NewObject creates an ordinary object inheriting from Object.prototype.
func (r *Realm) NewObject() *Object {
	return NewObject(r.ObjectPrototype)
}

// NewArray creates an array of elems.
func (r *Realm) NewArray(elems []Value) *Object {
	return NewArrayObject(r.ArrayPrototype, elems)
}

// NewError creates an error object with the given prototype and message.
func (r *Realm) NewError(proto *Object, message string) *Object {
	o := NewObjectOfClass(ClassError, proto)
	o.DefineOwnProperty("message", NewString(message), HiddenAttrs)
	return o
}

// DefineGlobal defines a non-enumerable global binding, as builtins are.
func (r *Realm) DefineGlobal(name string, v Value) {
	r.GlobalObject.DefineOwnProperty(name, v, HiddenAttrs)
}
