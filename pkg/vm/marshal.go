package vm

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// MarshalJSON implements json.Marshaler for vm.Value, so host code can
// serialize script results directly. Accessors are not invoked.
func (v Value) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	if err := marshalValue(&b, v, make(map[*Object]bool)); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

func marshalValue(b *strings.Builder, v Value, seen map[*Object]bool) error {
	switch v.Type() {
	case TypeNull, TypeUndefined:
		b.WriteString("null")
	case TypeBoolean:
		b.WriteString(strconv.FormatBool(v.AsBoolean()))
	case TypeIntegerNumber:
		b.WriteString(strconv.Itoa(int(v.AsInteger())))
	case TypeFloatNumber:
		f := v.AsFloat()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			b.WriteString("null")
		} else {
			b.WriteString(NumberToString(f))
		}
	case TypeString:
		s, err := json.Marshal(v.AsString())
		if err != nil {
			return err
		}
		b.Write(s)
	case TypeObject:
		o := v.AsObject()
		if seen[o] {
			return fmt.Errorf("cannot marshal circular structure")
		}
		seen[o] = true
		defer delete(seen, o)
		switch {
		case o.IsCallable():
			b.WriteString("null")
		case o.class == ClassArray:
			b.WriteByte('[')
			for i, e := range o.elements {
				if i > 0 {
					b.WriteByte(',')
				}
				if err := marshalValue(b, e, seen); err != nil {
					return err
				}
			}
			b.WriteByte(']')
		case o.class == ClassString || o.class == ClassNumber || o.class == ClassBoolean:
			return marshalValue(b, o.primitive, seen)
		default:
			b.WriteByte('{')
			first := true
			for _, key := range o.OwnKeys(true) {
				prop, _ := o.GetOwn(key)
				if prop.IsUndefined() || prop.IsCallable() {
					continue
				}
				if !first {
					b.WriteByte(',')
				}
				first = false
				k, _ := json.Marshal(key)
				b.Write(k)
				b.WriteByte(':')
				if err := marshalValue(b, prop, seen); err != nil {
					return err
				}
			}
			b.WriteByte('}')
		}
	}
	return nil
}

// ToValue converts a Go value to a script value in realm r. Maps become
// objects with sorted keys, slices and arrays become arrays, and Values
// and *Objects pass through.
func (r *Realm) ToValue(x any) Value {
	switch v := x.(type) {
	case nil:
		return Null
	case Value:
		return v
	case *Object:
		return ObjectValue(v)
	case bool:
		return BooleanValue(v)
	case string:
		return NewString(v)
	case int:
		return NumberOrInteger(float64(v))
	case int32:
		return IntegerValue(v)
	case int64:
		return NumberOrInteger(float64(v))
	case float64:
		return NumberValue(v)
	case []any:
		elems := make([]Value, len(v))
		for i, e := range v {
			elems[i] = r.ToValue(e)
		}
		return ObjectValue(r.NewArray(elems))
	case map[string]any:
		obj := r.NewObject()
		for _, k := range sortedKeys(v) {
			obj.Set(k, r.ToValue(v[k]))
		}
		return ObjectValue(obj)
	}
	return r.reflectValue(reflect.ValueOf(x))
}

func (r *Realm) reflectValue(rv reflect.Value) Value {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return NumberOrInteger(float64(rv.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return NumberOrInteger(float64(rv.Uint()))
	case reflect.Float32, reflect.Float64:
		return NumberValue(rv.Float())
	case reflect.Bool:
		return BooleanValue(rv.Bool())
	case reflect.String:
		return NewString(rv.String())
	case reflect.Slice, reflect.Array:
		elems := make([]Value, rv.Len())
		for i := range elems {
			elems[i] = r.ToValue(rv.Index(i).Interface())
		}
		return ObjectValue(r.NewArray(elems))
	case reflect.Map:
		obj := r.NewObject()
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return fmt.Sprint(keys[i]) < fmt.Sprint(keys[j]) })
		for _, k := range keys {
			obj.Set(fmt.Sprint(k.Interface()), r.ToValue(rv.MapIndex(k).Interface()))
		}
		return ObjectValue(obj)
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null
		}
		return r.reflectValue(rv.Elem())
	}
	return Undefined
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Export converts a script value to plain Go data: nil, bool, int64 for
// integral numbers, float64, string, []any and map[string]any. Functions
// export as nil.
func (v Value) Export() any {
	return export(v, make(map[*Object]bool))
}

func export(v Value, seen map[*Object]bool) any {
	switch v.Type() {
	case TypeUndefined, TypeNull:
		return nil
	case TypeBoolean:
		return v.AsBoolean()
	case TypeIntegerNumber:
		return int64(v.AsInteger())
	case TypeFloatNumber:
		f := v.AsFloat()
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 && !(f == 0 && math.Signbit(f)) {
			return int64(f)
		}
		return f
	case TypeString:
		return v.AsString()
	}
	o := v.AsObject()
	if seen[o] || o.IsCallable() {
		return nil
	}
	seen[o] = true
	defer delete(seen, o)
	if o.class == ClassArray {
		out := make([]any, len(o.elements))
		for i, e := range o.elements {
			out[i] = export(e, seen)
		}
		return out
	}
	if o.class == ClassString || o.class == ClassNumber || o.class == ClassBoolean {
		return export(o.primitive, seen)
	}
	out := make(map[string]any)
	for _, k := range o.OwnKeys(true) {
		p, _ := o.GetOwn(k)
		out[k] = export(p, seen)
	}
	return out
}
