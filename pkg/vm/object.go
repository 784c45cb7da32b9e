package vm

import (
	"strconv"
	"sync/atomic"
)

// Object classes, as reported by Object.prototype.toString.
const (
	ClassObject    = "Object"
	ClassArray     = "Array"
	ClassFunction  = "Function"
	ClassError     = "Error"
	ClassRegExp    = "RegExp"
	ClassString    = "String"
	ClassNumber    = "Number"
	ClassBoolean   = "Boolean"
	ClassArguments = "Arguments"
	ClassMath      = "Math"
	ClassJSON      = "JSON"
	ClassGlobal    = "global"
)

// PropertyAttr holds the attribute bits of a property.
type PropertyAttr uint8

const (
	Writable PropertyAttr = 1 << iota
	Enumerable
	Configurable

	DefaultAttrs PropertyAttr = Writable | Enumerable | Configurable
	HiddenAttrs  PropertyAttr = Writable | Configurable // builtin methods
)

// maxFastProperties is the number of named properties an object keeps in
// linear storage before it switches to a hashed index.
const maxFastProperties = 16

type property struct {
	value    Value
	getter   Value
	setter   Value
	attrs    PropertyAttr
	accessor bool
}

// Object is the single heap representation of every script object. Kind
// specific state lives in the optional payload fields.
type Object struct {
	class      string
	proto      *Object
	extensible bool

	// Named properties in insertion order. index is built once the object
	// holds more than maxFastProperties names.
	keys  []string
	props []property
	index map[string]int

	elements  []Value // Array and Arguments
	closure   *Closure
	native    *NativeFunction
	bound     *BoundFunction
	regexp    *RegExpData
	primitive Value // String, Number and Boolean wrappers
	forIn     *forInIterator

	// Embedding flags
	useUserComparison bool
	externalSlot      bool
	external          ExternalResource
	identityHash      int32
}

// NewObject creates an extensible ordinary object with the given prototype.
func NewObject(proto *Object) *Object {
	return &Object{class: ClassObject, proto: proto, extensible: true}
}

// NewObjectOfClass creates an object with the given class tag.
func NewObjectOfClass(class string, proto *Object) *Object {
	return &Object{class: class, proto: proto, extensible: true}
}

// NewArrayObject creates an array holding elems.
func NewArrayObject(proto *Object, elems []Value) *Object {
	if elems == nil {
		elems = []Value{}
	}
	return &Object{class: ClassArray, proto: proto, extensible: true, elements: elems}
}

func (o *Object) Class() string             { return o.class }
func (o *Object) SetClass(c string)         { o.class = c }
func (o *Object) Prototype() *Object        { return o.proto }
func (o *Object) SetPrototype(p *Object)    { o.proto = p }
func (o *Object) Extensible() bool          { return o.extensible }
func (o *Object) PreventExtensions()        { o.extensible = false }
func (o *Object) PrimitiveValue() Value     { return o.primitive }
func (o *Object) SetPrimitiveValue(v Value) { o.primitive = v }

// IsCallable reports whether the object can be called.
func (o *Object) IsCallable() bool {
	return o.closure != nil || o.native != nil || o.bound != nil
}

// IsConstructor reports whether `new` may be applied to the object.
func (o *Object) IsConstructor() bool {
	switch {
	case o.closure != nil:
		return !o.closure.Fn.IsArrow
	case o.native != nil:
		return o.native.Construct != nil || o.native.Constructor
	case o.bound != nil:
		return o.bound.Target.IsConstructor()
	}
	return false
}

// FunctionName returns the name of a function object, or "".
func (o *Object) FunctionName() string {
	switch {
	case o.closure != nil:
		return o.closure.Fn.Name
	case o.native != nil:
		return o.native.Name
	case o.bound != nil:
		return "bound " + o.bound.Target.FunctionName()
	}
	return ""
}

func (o *Object) Closure() *Closure              { return o.closure }
func (o *Object) Native() *NativeFunction        { return o.native }
func (o *Object) RegExp() *RegExpData            { return o.regexp }
func (o *Object) UseUserComparison() bool        { return o.useUserComparison }
func (o *Object) SetUseUserComparison(b bool)    { o.useUserComparison = b }
func (o *Object) HasExternalResourceSlot() bool  { return o.externalSlot }
func (o *Object) SetExternalResourceSlot(b bool) { o.externalSlot = b }

var identityHashSeed atomic.Uint32

// IdentityHash returns a stable non-zero hash for the object.
func (o *Object) IdentityHash() int32 {
	if o.identityHash == 0 {
		// splitmix-style scramble of a counter, masked to a positive int32
		x := identityHashSeed.Add(0x9e3779b9)
		x ^= x >> 16
		x *= 0x85ebca6b
		x ^= x >> 13
		h := int32(x & 0x3fffffff)
		if h == 0 {
			h = 1
		}
		o.identityHash = h
	}
	return o.identityHash
}

// --- Elements ---

func (o *Object) hasElements() bool {
	return o.class == ClassArray || o.class == ClassArguments
}

// Elements returns the indexed storage of an array-like object.
func (o *Object) Elements() []Value { return o.elements }

// SetElements replaces the indexed storage.
func (o *Object) SetElements(elems []Value) { o.elements = elems }

// ArrayLength returns the length of an Array object.
func (o *Object) ArrayLength() int { return len(o.elements) }

// SetArrayLength truncates or extends the elements.
func (o *Object) SetArrayLength(n int) {
	switch {
	case n < len(o.elements):
		clear(o.elements[n:])
		o.elements = o.elements[:n]
	case n > len(o.elements):
		for len(o.elements) < n {
			o.elements = append(o.elements, Undefined)
		}
	}
}

// maxArrayGap bounds how far past the end an index store may grow an array.
const maxArrayGap = 1 << 20

// arrayIndex parses a canonical array index.
func arrayIndex(name string) (int, bool) {
	if name == "" || len(name) > 10 || (len(name) > 1 && name[0] == '0') {
		return 0, false
	}
	n := 0
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	if n >= 1<<32-1 {
		return 0, false
	}
	return n, true
}

// --- Named properties ---

func (o *Object) find(name string) int {
	if o.index != nil {
		if i, ok := o.index[name]; ok {
			return i
		}
		return -1
	}
	for i, k := range o.keys {
		if k == name {
			return i
		}
	}
	return -1
}

// IsDictionaryMode reports whether the object switched to hashed storage.
func (o *Object) IsDictionaryMode() bool { return o.index != nil }

// PropertyCount returns the number of named own properties.
func (o *Object) PropertyCount() int { return len(o.keys) }

func (o *Object) addProperty(name string, p property) {
	o.keys = append(o.keys, name)
	o.props = append(o.props, p)
	switch {
	case o.index != nil:
		o.index[name] = len(o.keys) - 1
	case len(o.keys) > maxFastProperties:
		o.index = make(map[string]int, len(o.keys)*2)
		for i, k := range o.keys {
			o.index[k] = i
		}
	}
}

// getOwn returns the own property called name, synthesizing the virtual
// properties of arrays and string wrappers.
func (o *Object) getOwn(name string) (property, bool) {
	if o.hasElements() {
		if i, ok := arrayIndex(name); ok && i < len(o.elements) {
			return property{value: o.elements[i], attrs: DefaultAttrs}, true
		}
		if name == "length" && o.class == ClassArray {
			return property{value: IntegerValue(int32(len(o.elements))), attrs: Writable}, true
		}
	}
	if o.class == ClassString && o.primitive.IsString() {
		s := o.primitive.AsString()
		if name == "length" {
			return property{value: IntegerValue(int32(StringLength(s)))}, true
		}
		if i, ok := arrayIndex(name); ok {
			if cu, ok := CodeUnitAt(s, i); ok {
				return property{value: NewString(FromUTF16([]uint16{cu})), attrs: Enumerable}, true
			}
		}
	}
	if i := o.find(name); i >= 0 {
		return o.props[i], true
	}
	return property{}, false
}

// lookup walks the prototype chain for name.
func (o *Object) lookup(name string) (property, bool) {
	for obj := o; obj != nil; obj = obj.proto {
		if p, ok := obj.getOwn(name); ok {
			return p, true
		}
	}
	return property{}, false
}

// HasOwnProperty reports whether name is an own property.
func (o *Object) HasOwnProperty(name string) bool {
	_, ok := o.getOwn(name)
	return ok
}

// HasProperty reports whether name is found on o or its prototypes.
func (o *Object) HasProperty(name string) bool {
	_, ok := o.lookup(name)
	return ok
}

// GetOwn returns the value of an own data property.
func (o *Object) GetOwn(name string) (Value, bool) {
	p, ok := o.getOwn(name)
	if !ok || p.accessor {
		return Undefined, ok
	}
	return p.value, true
}

// Get returns a data property from o or its prototypes without invoking
// accessors. Host code that needs getters goes through VM.GetProperty.
func (o *Object) Get(name string) (Value, bool) {
	p, ok := o.lookup(name)
	if !ok || p.accessor {
		return Undefined, ok
	}
	return p.value, true
}

// OwnPropertyAttrs returns the attributes of an own property.
func (o *Object) OwnPropertyAttrs(name string) (PropertyAttr, bool) {
	p, ok := o.getOwn(name)
	return p.attrs, ok
}

// IsAccessor reports whether the own property name is a getter/setter.
func (o *Object) IsAccessor(name string) bool {
	p, ok := o.getOwn(name)
	return ok && p.accessor
}

// OwnAccessor returns the getter and setter of an own accessor property.
func (o *Object) OwnAccessor(name string) (getter, setter Value, ok bool) {
	p, found := o.getOwn(name)
	if !found || !p.accessor {
		return Undefined, Undefined, false
	}
	return p.getter, p.setter, true
}

// DefineOwnProperty creates or replaces a data property.
func (o *Object) DefineOwnProperty(name string, v Value, attrs PropertyAttr) {
	if o.hasElements() {
		if i, ok := arrayIndex(name); ok && i < len(o.elements)+maxArrayGap {
			o.setElement(i, v)
			return
		}
		if name == "length" && o.class == ClassArray {
			if n, ok := arrayLengthValue(v); ok {
				o.SetArrayLength(n)
			}
			return
		}
	}
	if i := o.find(name); i >= 0 {
		o.props[i] = property{value: v, attrs: attrs}
		return
	}
	o.addProperty(name, property{value: v, attrs: attrs})
}

// DefineAccessor creates or merges an accessor property.
func (o *Object) DefineAccessor(name string, getter, setter Value, attrs PropertyAttr) {
	if i := o.find(name); i >= 0 {
		p := &o.props[i]
		if p.accessor {
			if !getter.IsUndefined() {
				p.getter = getter
			}
			if !setter.IsUndefined() {
				p.setter = setter
			}
			p.attrs = attrs &^ Writable
			return
		}
		o.props[i] = property{getter: getter, setter: setter, attrs: attrs &^ Writable, accessor: true}
		return
	}
	o.addProperty(name, property{getter: getter, setter: setter, attrs: attrs &^ Writable, accessor: true})
}

// Set stores a data property on o itself, creating it when absent.
// Non-writable own properties are left untouched and false is returned.
func (o *Object) Set(name string, v Value) bool {
	if o.hasElements() {
		if i, ok := arrayIndex(name); ok && i < len(o.elements)+maxArrayGap {
			o.setElement(i, v)
			return true
		}
		if name == "length" && o.class == ClassArray {
			n, ok := arrayLengthValue(v)
			if ok {
				o.SetArrayLength(n)
			}
			return ok
		}
	}
	if o.class == ClassString && o.primitive.IsString() {
		if _, ok := o.getOwn(name); ok && o.find(name) < 0 {
			return false
		}
	}
	if i := o.find(name); i >= 0 {
		p := &o.props[i]
		if p.accessor || p.attrs&Writable == 0 {
			return false
		}
		p.value = v
		return true
	}
	if !o.extensible {
		return false
	}
	o.addProperty(name, property{value: v, attrs: DefaultAttrs})
	return true
}

func (o *Object) setElement(i int, v Value) {
	if i < len(o.elements) {
		o.elements[i] = v
		return
	}
	for len(o.elements) < i {
		o.elements = append(o.elements, Undefined)
	}
	o.elements = append(o.elements, v)
}

func arrayLengthValue(v Value) (int, bool) {
	f := v.ToFloat()
	if f < 0 || f != float64(uint32(f)) {
		return 0, false
	}
	return int(f), true
}

// Delete removes an own property. It returns false for non-configurable
// properties.
func (o *Object) Delete(name string) bool {
	if o.hasElements() {
		if i, ok := arrayIndex(name); ok && i < len(o.elements) {
			if i == len(o.elements)-1 && o.class == ClassArguments {
				o.elements = o.elements[:i]
			} else {
				o.elements[i] = Undefined
			}
			return true
		}
		if name == "length" && o.class == ClassArray {
			return false
		}
	}
	i := o.find(name)
	if i < 0 {
		return true
	}
	if o.props[i].attrs&Configurable == 0 {
		return false
	}
	o.keys = append(o.keys[:i], o.keys[i+1:]...)
	o.props = append(o.props[:i], o.props[i+1:]...)
	if o.index != nil {
		delete(o.index, name)
		for j := i; j < len(o.keys); j++ {
			o.index[o.keys[j]] = j
		}
	}
	return true
}

// OwnKeys returns the own property names: indices first, then named
// properties in insertion order.
func (o *Object) OwnKeys(enumerableOnly bool) []string {
	var out []string
	if o.hasElements() {
		for i := range o.elements {
			out = append(out, strconv.Itoa(i))
		}
	}
	if o.class == ClassString && o.primitive.IsString() {
		for i := 0; i < StringLength(o.primitive.AsString()); i++ {
			out = append(out, strconv.Itoa(i))
		}
	}
	for i, k := range o.keys {
		if enumerableOnly && o.props[i].attrs&Enumerable == 0 {
			continue
		}
		out = append(out, k)
	}
	if !enumerableOnly && o.class == ClassArray {
		out = append(out, "length")
	}
	return out
}

// Freeze makes every own property read-only and the object non-extensible.
func (o *Object) Freeze() {
	for i := range o.props {
		o.props[i].attrs &^= Configurable
		if !o.props[i].accessor {
			o.props[i].attrs &^= Writable
		}
	}
	o.extensible = false
}
