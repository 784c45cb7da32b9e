package driver

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/qtproject/qtjsbackend/pkg/vm"
)

// Value is a script value seen from the host. The zero Value is
// undefined.
type Value struct {
	ctx *Context
	v   vm.Value
}

// Undefined returns the undefined value.
func Undefined() Value { return Value{} }

// Raw returns the underlying VM value.
func (v Value) Raw() vm.Value { return v.v }

func (v Value) IsUndefined() bool { return v.v.IsUndefined() }
func (v Value) IsNull() bool      { return v.v.IsNull() }
func (v Value) IsString() bool    { return v.v.IsString() }
func (v Value) IsNumber() bool    { return v.v.IsNumber() }
func (v Value) IsBoolean() bool   { return v.v.IsBoolean() }
func (v Value) IsObject() bool    { return v.v.IsObject() }
func (v Value) IsArray() bool     { return v.v.IsArray() }
func (v Value) IsFunction() bool  { return v.v.IsCallable() }

// IsInt32 reports whether v is a number with an int32 value.
func (v Value) IsInt32() bool { return v.v.IsInt32() }

// IsTrue reports whether v is the boolean true.
func (v Value) IsTrue() bool { return v.v.IsBoolean() && v.v.AsBoolean() }

// IsError reports whether v is an Error object.
func (v Value) IsError() bool {
	return v.v.IsObject() && v.v.AsObject().Class() == vm.ClassError
}

// BooleanValue converts v to a boolean.
func (v Value) BooleanValue() bool { return v.v.IsTruthy() }

// Int32Value converts v with ToInt32. Objects are converted through
// their valueOf when v belongs to a live context.
func (v Value) Int32Value() int32 {
	if v.v.IsObject() && v.ctx != nil {
		f, err := v.ctx.iso.vm.ToNumber(v.v)
		if err != nil {
			return 0
		}
		return vm.ToInt32(f)
	}
	return v.v.ToInt32()
}

// NumberValue converts v with ToNumber.
func (v Value) NumberValue() float64 {
	if v.v.IsObject() && v.ctx != nil {
		f, err := v.ctx.iso.vm.ToNumber(v.v)
		if err != nil {
			return 0
		}
		return f
	}
	return v.v.ToFloat()
}

// ToString converts v the way String(v) does. Errors render as
// "<name>: <message>".
func (v Value) ToString() string {
	if v.v.IsObject() && v.ctx != nil {
		s, err := v.ctx.iso.vm.ToString(v.v)
		if err == nil {
			return s
		}
	}
	return v.v.ToString()
}

// String implements fmt.Stringer with the REPL rendering of v.
func (v Value) String() string { return v.v.Inspect() }

// Length returns the length of an array or string, and 0 otherwise.
func (v Value) Length() int {
	switch {
	case v.v.IsArray():
		return v.v.AsObject().ArrayLength()
	case v.v.IsString():
		return vm.StringLength(v.v.AsString())
	}
	return 0
}

// Get returns property key of an object or array value. It returns
// undefined for primitives and when the getter throws.
func (v Value) Get(key any) Value {
	o := v.AsObject()
	if o == nil {
		return Value{ctx: v.ctx}
	}
	r, err := o.Get(key)
	if err != nil {
		return Value{ctx: v.ctx}
	}
	return r
}

// AsObject returns the object v refers to, or nil.
func (v Value) AsObject() *Object {
	if !v.v.IsObject() {
		return nil
	}
	return v.ctx.wrapObject(v.v.AsObject())
}

// Export converts v to plain Go data.
func (v Value) Export() any { return v.v.Export() }

// StrictEquals compares v and other with ===.
func (v Value) StrictEquals(other Value) bool { return v.v.StrictlyEquals(other.v) }

// Object is a handle to a script object within a context.
type Object struct {
	ctx *Context
	o   *vm.Object
}

// Raw returns the underlying VM object.
func (o *Object) Raw() *vm.Object { return o.o }

// Context returns the context o was obtained from, which may be nil for
// objects reached outside any context.
func (o *Object) Context() *Context { return o.ctx }

// Value returns o as a Value.
func (o *Object) Value() Value { return Value{ctx: o.ctx, v: vm.ObjectValue(o.o)} }

// StrictEquals reports whether o and other are the same object.
func (o *Object) StrictEquals(other *Object) bool {
	if o == nil || other == nil {
		return o == other
	}
	return o.o == other.o
}

// GetIdentityHash returns a stable non-zero hash of the object.
func (o *Object) GetIdentityHash() int32 { return o.o.IdentityHash() }

func (o *Object) machine() (*vm.VM, error) {
	if o.ctx == nil {
		return nil, ErrNotEntered
	}
	if err := o.ctx.check(); err != nil {
		return nil, err
	}
	return o.ctx.iso.vm, nil
}

// propertyKey converts a host-side key: strings pass through, Values
// are converted with ToString, anything else is formatted.
func propertyKey(key any) string {
	switch k := key.(type) {
	case string:
		return k
	case Value:
		return k.ToString()
	case int:
		return strconv.Itoa(k)
	}
	return fmt.Sprint(key)
}

// Get reads property key, running getters. key is a string, an integer
// index or a Value.
func (o *Object) Get(key any) (Value, error) {
	m, err := o.machine()
	if err != nil {
		return Value{}, err
	}
	defer o.ctx.activate()()
	v, err := m.GetProperty(vm.ObjectValue(o.o), propertyKey(key))
	if err != nil {
		return Value{}, o.ctx.uncaught(err)
	}
	return o.ctx.wrap(v), nil
}

// Set writes property key. value is converted with Context.ToValue.
func (o *Object) Set(key any, value any) error {
	m, err := o.machine()
	if err != nil {
		return err
	}
	defer o.ctx.activate()()
	if err := m.SetProperty(vm.ObjectValue(o.o), propertyKey(key), o.ctx.ToValue(value).v); err != nil {
		return o.ctx.uncaught(err)
	}
	return nil
}

// Has reports whether o or its prototype chain has property key.
func (o *Object) Has(key any) bool { return o.o.HasProperty(propertyKey(key)) }

// Keys returns the own enumerable property names of o.
func (o *Object) Keys() []string {
	if o.o.Class() == vm.ClassArray {
		keys := make([]string, o.o.ArrayLength())
		for i := range keys {
			keys[i] = strconv.Itoa(i)
		}
		return append(keys, o.o.OwnKeys(true)...)
	}
	return o.o.OwnKeys(true)
}

// IsCallable reports whether o is a function.
func (o *Object) IsCallable() bool { return o.o.IsCallable() }

// Call calls o with receiver this and arguments converted with
// Context.ToValue. A nil this passes undefined.
func (o *Object) Call(this any, args ...any) (Value, error) {
	m, err := o.machine()
	if err != nil {
		return Value{}, err
	}
	recv := vm.Undefined
	if this != nil {
		recv = o.ctx.ToValue(this).v
	}
	defer o.ctx.activate()()
	v, err := m.Call(vm.ObjectValue(o.o), recv, o.ctx.values(args))
	if err != nil {
		return Value{}, o.ctx.uncaught(err)
	}
	return o.ctx.wrap(v), nil
}

// NewInstance applies new to o.
func (o *Object) NewInstance(args ...any) (*Object, error) {
	m, err := o.machine()
	if err != nil {
		return nil, err
	}
	defer o.ctx.activate()()
	v, err := m.Construct(vm.ObjectValue(o.o), o.ctx.values(args))
	if err != nil {
		return nil, o.ctx.uncaught(err)
	}
	return o.ctx.wrapObject(v.AsObject()), nil
}

// SetExternalResource attaches res to o. o must come from a template
// marked SetHasExternalResource(true). An earlier resource is disposed.
func (o *Object) SetExternalResource(res ExternalResource) error {
	m, err := o.machine()
	if err != nil {
		return err
	}
	defer o.ctx.activate()()
	if err := m.SetExternalResourceIn(o.ctx.realm, o.o, res); err != nil {
		if errors.Is(err, vm.ErrNoExternalResourceSlot) {
			o.ctx.logger.Warn().Msg("external resource set on object without a resource slot")
		}
		return err
	}
	return nil
}

// GetExternalResource returns the attached resource, or nil.
func (o *Object) GetExternalResource() ExternalResource { return o.o.ExternalResource() }

func (ctx *Context) values(args []any) []vm.Value {
	out := make([]vm.Value, len(args))
	for i, a := range args {
		out[i] = ctx.ToValue(a).v
	}
	return out
}
