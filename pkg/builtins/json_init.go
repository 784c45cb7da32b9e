package builtins

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/qtproject/qtjsbackend/pkg/vm"
)

type JSONInitializer struct{}

func (j *JSONInitializer) Name() string {
	return "JSON"
}

func (j *JSONInitializer) Priority() int {
	return PriorityJSON
}

func (j *JSONInitializer) InitRuntime(ctx *RuntimeContext) error {
	jsonObj := vm.NewObjectOfClass(vm.ClassJSON, ctx.ObjectPrototype)
	ctx.defineMethod(jsonObj, "parse", 2, jsonParse)
	ctx.defineMethod(jsonObj, "stringify", 3, jsonStringify)
	return ctx.DefineGlobal("JSON", vm.ObjectValue(jsonObj))
}

// --- parse ---

func jsonParse(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	text, err := stringArg(m, args, 0)
	if err != nil {
		return vm.Undefined, err
	}
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	p := &jsonParser{m: m, dec: dec}
	v, err := p.value()
	if err != nil {
		return vm.Undefined, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return vm.Undefined, m.NewSyntaxError("Unexpected non-whitespace character after JSON at position %d", dec.InputOffset())
	}

	reviver := vm.Arg(args, 1)
	if !reviver.IsCallable() {
		return v, nil
	}
	root := m.Realm().NewObject()
	root.Set("", v)
	return internalize(m, reviver, root, "")
}

// jsonParser builds script values from the decoder's token stream, which
// keeps object keys in document order.
type jsonParser struct {
	m   *vm.VM
	dec *json.Decoder
}

func (p *jsonParser) syntaxError(err error) error {
	if errors.Is(err, io.EOF) {
		return p.m.NewSyntaxError("Unexpected end of JSON input")
	}
	var se *json.SyntaxError
	if errors.As(err, &se) {
		return p.m.NewSyntaxError("Unexpected token in JSON at position %d", se.Offset)
	}
	return p.m.NewSyntaxError("%s", err.Error())
}

func (p *jsonParser) value() (vm.Value, error) {
	tok, err := p.dec.Token()
	if err != nil {
		return vm.Undefined, p.syntaxError(err)
	}
	return p.fromToken(tok)
}

func (p *jsonParser) fromToken(tok json.Token) (vm.Value, error) {
	r := p.m.Realm()
	switch t := tok.(type) {
	case nil:
		return vm.Null, nil
	case bool:
		return vm.BooleanValue(t), nil
	case string:
		return vm.NewString(t), nil
	case json.Number:
		return vm.NumberOrInteger(vm.StringToNumber(string(t))), nil
	case json.Delim:
		switch t {
		case '[':
			var elems []vm.Value
			for p.dec.More() {
				v, err := p.value()
				if err != nil {
					return vm.Undefined, err
				}
				elems = append(elems, v)
			}
			if _, err := p.dec.Token(); err != nil {
				return vm.Undefined, p.syntaxError(err)
			}
			return vm.ObjectValue(r.NewArray(elems)), nil
		case '{':
			obj := r.NewObject()
			for p.dec.More() {
				key, err := p.dec.Token()
				if err != nil {
					return vm.Undefined, p.syntaxError(err)
				}
				v, err := p.value()
				if err != nil {
					return vm.Undefined, err
				}
				obj.DefineOwnProperty(key.(string), v, vm.DefaultAttrs)
			}
			if _, err := p.dec.Token(); err != nil {
				return vm.Undefined, p.syntaxError(err)
			}
			return vm.ObjectValue(obj), nil
		}
	}
	return vm.Undefined, p.m.NewSyntaxError("Unexpected token %v in JSON", tok)
}

// internalize applies the reviver bottom-up, deleting properties it maps
// to undefined.
func internalize(m *vm.VM, reviver vm.Value, holder *vm.Object, name string) (vm.Value, error) {
	val, err := m.GetProperty(vm.ObjectValue(holder), name)
	if err != nil {
		return vm.Undefined, err
	}
	if val.IsObject() {
		obj := val.AsObject()
		var keys []string
		if obj.Class() == vm.ClassArray {
			for i := 0; i < obj.ArrayLength(); i++ {
				keys = append(keys, strconv.Itoa(i))
			}
		} else {
			keys = obj.OwnKeys(true)
		}
		for _, k := range keys {
			nv, err := internalize(m, reviver, obj, k)
			if err != nil {
				return vm.Undefined, err
			}
			if nv.IsUndefined() && obj.Class() != vm.ClassArray {
				obj.Delete(k)
			} else {
				obj.Set(k, nv)
			}
		}
	}
	return m.Call(reviver, vm.ObjectValue(holder), []vm.Value{vm.NewString(name), val})
}

// --- stringify ---

type jsonStringifier struct {
	m        *vm.VM
	replacer vm.Value
	propList []string
	gap      string
	stack    []*vm.Object
}

func jsonStringify(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	st := &jsonStringifier{m: m}
	if r := vm.Arg(args, 1); r.IsCallable() {
		st.replacer = r
	} else if r.IsArray() {
		seen := map[string]bool{}
		for _, e := range r.AsObject().Elements() {
			if e.IsObject() && (e.AsObject().Class() == vm.ClassString || e.AsObject().Class() == vm.ClassNumber) {
				e = e.AsObject().PrimitiveValue()
			}
			if !e.IsString() && !e.IsNumber() {
				continue
			}
			if k := e.ToString(); !seen[k] {
				seen[k] = true
				st.propList = append(st.propList, k)
			}
		}
		if st.propList == nil {
			st.propList = []string{}
		}
	}

	space := vm.Arg(args, 2)
	if space.IsObject() && (space.AsObject().Class() == vm.ClassString || space.AsObject().Class() == vm.ClassNumber) {
		space = space.AsObject().PrimitiveValue()
	}
	switch {
	case space.IsNumber():
		n := int(math.Min(10, math.Max(0, vm.ToInteger(space.ToFloat()))))
		st.gap = strings.Repeat(" ", n)
	case space.IsString():
		st.gap = vm.Substring(space.AsString(), 0, min(10, vm.StringLength(space.AsString())))
	}

	wrapper := m.Realm().NewObject()
	wrapper.Set("", vm.Arg(args, 0))
	s, ok, err := st.str("", wrapper, "")
	if err != nil || !ok {
		return vm.Undefined, err
	}
	return vm.NewString(s), nil
}

// str serializes holder[key]. ok is false when the value has no JSON
// form (undefined, functions).
func (st *jsonStringifier) str(key string, holder *vm.Object, indent string) (string, bool, error) {
	m := st.m
	value, err := m.GetProperty(vm.ObjectValue(holder), key)
	if err != nil {
		return "", false, err
	}
	if value.IsObject() {
		toJSON, err := m.GetProperty(value, "toJSON")
		if err != nil {
			return "", false, err
		}
		if toJSON.IsCallable() {
			if value, err = m.Call(toJSON, value, []vm.Value{vm.NewString(key)}); err != nil {
				return "", false, err
			}
		}
	}
	if st.replacer.IsCallable() {
		if value, err = m.Call(st.replacer, vm.ObjectValue(holder), []vm.Value{vm.NewString(key), value}); err != nil {
			return "", false, err
		}
	}
	if value.IsObject() {
		switch value.AsObject().Class() {
		case vm.ClassNumber:
			f, err := m.ToNumber(value)
			if err != nil {
				return "", false, err
			}
			value = vm.NumberValue(f)
		case vm.ClassString:
			s, err := m.ToString(value)
			if err != nil {
				return "", false, err
			}
			value = vm.NewString(s)
		case vm.ClassBoolean:
			value = value.AsObject().PrimitiveValue()
		}
	}

	switch value.Type() {
	case vm.TypeNull:
		return "null", true, nil
	case vm.TypeBoolean:
		return value.ToString(), true, nil
	case vm.TypeString:
		return quoteJSON(value.AsString()), true, nil
	case vm.TypeIntegerNumber, vm.TypeFloatNumber:
		f := value.ToFloat()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "null", true, nil
		}
		return value.ToString(), true, nil
	case vm.TypeObject:
		if value.IsCallable() {
			return "", false, nil
		}
		obj := value.AsObject()
		for _, o := range st.stack {
			if o == obj {
				return "", false, m.NewTypeError("Converting circular structure to JSON")
			}
		}
		st.stack = append(st.stack, obj)
		defer func() { st.stack = st.stack[:len(st.stack)-1] }()
		if obj.Class() == vm.ClassArray {
			s, err := st.array(obj, indent)
			return s, true, err
		}
		s, err := st.object(obj, indent)
		return s, true, err
	}
	return "", false, nil
}

func (st *jsonStringifier) join(parts []string, open, close, indent, inner string) string {
	if len(parts) == 0 {
		return open + close
	}
	if st.gap == "" {
		return open + strings.Join(parts, ",") + close
	}
	sep := ",\n" + inner
	return open + "\n" + inner + strings.Join(parts, sep) + "\n" + indent + close
}

func (st *jsonStringifier) array(obj *vm.Object, indent string) (string, error) {
	inner := indent + st.gap
	n := obj.ArrayLength()
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		s, ok, err := st.str(strconv.Itoa(i), obj, inner)
		if err != nil {
			return "", err
		}
		if !ok {
			s = "null"
		}
		parts = append(parts, s)
	}
	return st.join(parts, "[", "]", indent, inner), nil
}

func (st *jsonStringifier) object(obj *vm.Object, indent string) (string, error) {
	inner := indent + st.gap
	keys := st.propList
	if keys == nil {
		keys = obj.OwnKeys(true)
	}
	colon := ":"
	if st.gap != "" {
		colon = ": "
	}
	var parts []string
	for _, k := range keys {
		s, ok, err := st.str(k, obj, inner)
		if err != nil {
			return "", err
		}
		if ok {
			parts = append(parts, quoteJSON(k)+colon+s)
		}
	}
	return st.join(parts, "{", "}", indent, inner), nil
}

// quoteJSON quotes s the way JSON.stringify does: only quotes, backslashes
// and control characters are escaped.
func quoteJSON(s string) string {
	const hex = "0123456789abcdef"
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				b.WriteString(`\u00`)
				b.WriteByte(hex[r>>4])
				b.WriteByte(hex[r&15])
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
