package driver

import (
	"fmt"
	"sync"

	"github.com/qtproject/qtjsbackend/pkg/vm"
)

// ObjectTemplate describes objects to create: their properties and the
// flags every instance carries for its lifetime.
type ObjectTemplate struct {
	props             []templateProp
	hasExternal       bool
	useUserComparison bool
}

type templateProp struct {
	name  string
	value any
}

// NewObjectTemplate creates an empty template.
func NewObjectTemplate() *ObjectTemplate { return &ObjectTemplate{} }

// Set adds a property to every instance. value may be a Value, an
// *Object, a *FunctionTemplate (instantiated per context) or Go data
// accepted by Context.ToValue. Setting a name again replaces it.
func (t *ObjectTemplate) Set(name string, value any) {
	for i := range t.props {
		if t.props[i].name == name {
			t.props[i].value = value
			return
		}
	}
	t.props = append(t.props, templateProp{name: name, value: value})
}

// SetHasExternalResource reserves an external resource slot on instances.
func (t *ObjectTemplate) SetHasExternalResource(b bool) { t.hasExternal = b }

// HasExternalResource reports whether instances get a resource slot.
func (t *ObjectTemplate) HasExternalResource() bool { return t.hasExternal }

// MarkAsUseUserObjectComparison routes == and != on instances through
// the isolate's comparison callback.
func (t *ObjectTemplate) MarkAsUseUserObjectComparison() { t.useUserComparison = true }

// UseUserObjectComparison reports whether instances use the callback.
func (t *ObjectTemplate) UseUserObjectComparison() bool { return t.useUserComparison }

// NewInstance creates an instance in ctx.
func (t *ObjectTemplate) NewInstance(ctx *Context) (*Object, error) {
	if err := ctx.check(); err != nil {
		return nil, err
	}
	obj := ctx.realm.NewObject()
	if err := t.apply(ctx, obj); err != nil {
		return nil, err
	}
	return ctx.wrapObject(obj), nil
}

func (t *ObjectTemplate) apply(ctx *Context, obj *vm.Object) error {
	if t == nil {
		return nil
	}
	for _, p := range t.props {
		var v vm.Value
		if ft, ok := p.value.(*FunctionTemplate); ok {
			fn, err := ft.GetFunction(ctx)
			if err != nil {
				return fmt.Errorf("template property %q: %w", p.name, err)
			}
			v = vm.ObjectValue(fn.o)
		} else {
			v = ctx.ToValue(p.value).v
		}
		obj.DefineOwnProperty(p.name, v, vm.DefaultAttrs)
	}
	obj.SetUseUserComparison(t.useUserComparison)
	obj.SetExternalResourceSlot(t.hasExternal)
	return nil
}

// FunctionCallback implements a function created from a FunctionTemplate.
// Returning an error throws it: a *vm.ExceptionError throws its value,
// other errors throw an Error with the same message.
type FunctionCallback func(info *FunctionCallbackInfo) (Value, error)

// FunctionCallbackInfo carries the arguments of a native call.
type FunctionCallbackInfo struct {
	ctx       *Context
	this      Value
	args      []Value
	construct bool
}

// Args returns the call arguments.
func (info *FunctionCallbackInfo) Args() []Value { return info.args }

// Arg returns argument i, or undefined.
func (info *FunctionCallbackInfo) Arg(i int) Value {
	if i < 0 || i >= len(info.args) {
		return Value{ctx: info.ctx}
	}
	return info.args[i]
}

// Length returns the number of arguments.
func (info *FunctionCallbackInfo) Length() int { return len(info.args) }

// This returns the receiver. For construct calls it is the new instance.
func (info *FunctionCallbackInfo) This() Value { return info.this }

// Context returns the context the function was created in.
func (info *FunctionCallbackInfo) Context() *Context { return info.ctx }

// Isolate returns the owning isolate.
func (info *FunctionCallbackInfo) Isolate() *Isolate { return info.ctx.iso }

// IsConstructCall reports whether the function was called with new.
func (info *FunctionCallbackInfo) IsConstructCall() bool { return info.construct }

// FunctionTemplate describes a native function and the objects it
// constructs. One function object is created per context.
type FunctionTemplate struct {
	cb        FunctionCallback
	name      string
	length    int
	instance  *ObjectTemplate
	prototype *ObjectTemplate

	mu  sync.Mutex
	fns map[*Context]*Object
}

// NewFunctionTemplate creates a template calling cb. A nil cb creates a
// function returning undefined, which is still usable as a constructor.
func NewFunctionTemplate(cb FunctionCallback) *FunctionTemplate {
	return &FunctionTemplate{
		cb:        cb,
		instance:  NewObjectTemplate(),
		prototype: NewObjectTemplate(),
		fns:       make(map[*Context]*Object),
	}
}

// SetClassName sets the function name.
func (ft *FunctionTemplate) SetClassName(name string) { ft.name = name }

// SetLength sets the function's length property.
func (ft *FunctionTemplate) SetLength(n int) { ft.length = n }

// InstanceTemplate returns the template applied to objects the function
// constructs.
func (ft *FunctionTemplate) InstanceTemplate() *ObjectTemplate { return ft.instance }

// PrototypeTemplate returns the template applied to the function's
// prototype object.
func (ft *FunctionTemplate) PrototypeTemplate() *ObjectTemplate { return ft.prototype }

// GetFunction returns the function for ctx, creating it on first use.
func (ft *FunctionTemplate) GetFunction(ctx *Context) (*Object, error) {
	if err := ctx.check(); err != nil {
		return nil, err
	}
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if fn, ok := ft.fns[ctx]; ok {
		return fn, nil
	}
	for c := range ft.fns {
		if c.disposed {
			delete(ft.fns, c)
		}
	}

	r := ctx.realm
	proto := r.NewObject()
	if err := ft.prototype.apply(ctx, proto); err != nil {
		return nil, err
	}
	call := func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		return ft.invoke(ctx, this, args, false)
	}
	construct := func(m *vm.VM, callee *vm.Object, args []vm.Value) (vm.Value, error) {
		p := r.ObjectPrototype
		if pv, err := m.GetProperty(vm.ObjectValue(callee), "prototype"); err != nil {
			return vm.Undefined, err
		} else if pv.IsObject() {
			p = pv.AsObject()
		}
		inst := vm.NewObject(p)
		if err := ft.instance.apply(ctx, inst); err != nil {
			return vm.Undefined, err
		}
		res, err := ft.invoke(ctx, vm.ObjectValue(inst), args, true)
		if err != nil {
			return vm.Undefined, err
		}
		if res.IsObject() {
			return res, nil
		}
		return vm.ObjectValue(inst), nil
	}
	fnObj := r.NewNativeConstructor(ft.name, ft.length, proto, call, construct)
	fn := ctx.wrapObject(fnObj)
	ft.fns[ctx] = fn
	return fn, nil
}

func (ft *FunctionTemplate) invoke(ctx *Context, this vm.Value, args []vm.Value, construct bool) (vm.Value, error) {
	if ft.cb == nil {
		return vm.Undefined, nil
	}
	info := &FunctionCallbackInfo{
		ctx:       ctx,
		this:      ctx.wrap(this),
		args:      make([]Value, len(args)),
		construct: construct,
	}
	for i, a := range args {
		info.args[i] = ctx.wrap(a)
	}
	res, err := ft.cb(info)
	if err != nil {
		return vm.Undefined, err
	}
	return res.v, nil
}
