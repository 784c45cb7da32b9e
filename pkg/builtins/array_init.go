package builtins

import (
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/qtproject/qtjsbackend/pkg/vm"
)

// maxArrayConstructorLength bounds new Array(n); elements are stored densely.
const maxArrayConstructorLength = 1 << 24

type ArrayInitializer struct{}

func (a *ArrayInitializer) Name() string {
	return "Array"
}

func (a *ArrayInitializer) Priority() int {
	return PriorityArray
}

func (a *ArrayInitializer) InitRuntime(ctx *RuntimeContext) error {
	proto := ctx.ArrayPrototype

	ctx.defineMethod(proto, "toString", 0, arrayProtoToString)
	ctx.defineMethod(proto, "toLocaleString", 0, arrayProtoToString)
	ctx.defineMethod(proto, "join", 1, arrayProtoJoin)
	ctx.defineMethod(proto, "push", 1, arrayProtoPush)
	ctx.defineMethod(proto, "pop", 0, arrayProtoPop)
	ctx.defineMethod(proto, "shift", 0, arrayProtoShift)
	ctx.defineMethod(proto, "unshift", 1, arrayProtoUnshift)
	ctx.defineMethod(proto, "slice", 2, arrayProtoSlice)
	ctx.defineMethod(proto, "splice", 2, arrayProtoSplice)
	ctx.defineMethod(proto, "concat", 1, arrayProtoConcat)
	ctx.defineMethod(proto, "reverse", 0, arrayProtoReverse)
	ctx.defineMethod(proto, "indexOf", 1, arrayProtoIndexOf)
	ctx.defineMethod(proto, "lastIndexOf", 1, arrayProtoLastIndexOf)
	ctx.defineMethod(proto, "sort", 1, arrayProtoSort)
	ctx.defineMethod(proto, "forEach", 1, iterationMethod(iterForEach, "forEach"))
	ctx.defineMethod(proto, "map", 1, iterationMethod(iterMap, "map"))
	ctx.defineMethod(proto, "filter", 1, iterationMethod(iterFilter, "filter"))
	ctx.defineMethod(proto, "some", 1, iterationMethod(iterSome, "some"))
	ctx.defineMethod(proto, "every", 1, iterationMethod(iterEvery, "every"))
	ctx.defineMethod(proto, "reduce", 1, reduceMethod(false))
	ctx.defineMethod(proto, "reduceRight", 1, reduceMethod(true))

	ctor := ctx.Realm.NewNativeConstructor("Array", 1, proto, arrayCall,
		func(m *vm.VM, callee *vm.Object, args []vm.Value) (vm.Value, error) {
			return arrayCall(m, vm.Undefined, args)
		})
	ctx.defineMethod(ctor, "isArray", 1, func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		return vm.BooleanValue(vm.Arg(args, 0).IsArray()), nil
	})

	return ctx.DefineGlobal("Array", vm.ObjectValue(ctor))
}

func arrayCall(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	r := m.Realm()
	if len(args) == 1 && args[0].IsNumber() {
		f := args[0].ToFloat()
		if f < 0 || f != float64(uint32(f)) || f > maxArrayConstructorLength {
			return vm.Undefined, m.NewRangeError("Invalid array length")
		}
		return vm.ObjectValue(r.NewArray(make([]vm.Value, int(f)))), nil
	}
	return vm.ObjectValue(r.NewArray(append([]vm.Value(nil), args...))), nil
}

// thisArray returns the receiver of a mutating method, which must be an Array.
func thisArray(m *vm.VM, this vm.Value, method string) (*vm.Object, error) {
	if this.IsObject() && this.AsObject().Class() == vm.ClassArray {
		return this.AsObject(), nil
	}
	return nil, m.NewTypeError("Array.prototype.%s called on non-array", method)
}

// thisElements snapshots the elements of an array-like receiver.
func thisElements(m *vm.VM, this vm.Value, method string) (*vm.Object, []vm.Value, error) {
	obj, err := thisObject(m, this, "Array.prototype."+method)
	if err != nil {
		return nil, nil, err
	}
	elems, err := listFromArrayLike(m, vm.ObjectValue(obj))
	return obj, elems, err
}

func arrayProtoToString(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	join, err := m.GetProperty(this, "join")
	if err != nil {
		return vm.Undefined, err
	}
	if !join.IsCallable() {
		return objectProtoToString(m, this, nil)
	}
	return m.Call(join, this, nil)
}

// joining holds the arrays whose join is in progress; a cycle joins as "".
var joining sync.Map

func arrayProtoJoin(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	obj, elems, err := thisElements(m, this, "join")
	if err != nil {
		return vm.Undefined, err
	}
	sep := ","
	if s := vm.Arg(args, 0); !s.IsUndefined() {
		if sep, err = m.ToString(s); err != nil {
			return vm.Undefined, err
		}
	}
	if _, busy := joining.LoadOrStore(obj, true); busy {
		return vm.NewString(""), nil
	}
	defer joining.Delete(obj)

	var b strings.Builder
	for i, e := range elems {
		if i > 0 {
			b.WriteString(sep)
		}
		if e.IsNullish() {
			continue
		}
		s, err := m.ToString(e)
		if err != nil {
			return vm.Undefined, err
		}
		b.WriteString(s)
	}
	return vm.NewString(b.String()), nil
}

func arrayProtoPush(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	arr, err := thisArray(m, this, "push")
	if err != nil {
		return vm.Undefined, err
	}
	arr.SetElements(append(arr.Elements(), args...))
	return vm.IntegerValue(int32(arr.ArrayLength())), nil
}

func arrayProtoPop(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	arr, err := thisArray(m, this, "pop")
	if err != nil {
		return vm.Undefined, err
	}
	n := arr.ArrayLength()
	if n == 0 {
		return vm.Undefined, nil
	}
	last := arr.Elements()[n-1]
	arr.SetArrayLength(n - 1)
	return last, nil
}

func arrayProtoShift(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	arr, err := thisArray(m, this, "shift")
	if err != nil {
		return vm.Undefined, err
	}
	elems := arr.Elements()
	if len(elems) == 0 {
		return vm.Undefined, nil
	}
	first := elems[0]
	arr.SetElements(slices.Delete(elems, 0, 1))
	return first, nil
}

func arrayProtoUnshift(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	arr, err := thisArray(m, this, "unshift")
	if err != nil {
		return vm.Undefined, err
	}
	arr.SetElements(slices.Insert(arr.Elements(), 0, args...))
	return vm.IntegerValue(int32(arr.ArrayLength())), nil
}

func arrayProtoSlice(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	_, elems, err := thisElements(m, this, "slice")
	if err != nil {
		return vm.Undefined, err
	}
	start, err := integerArg(m, args, 0, 0)
	if err != nil {
		return vm.Undefined, err
	}
	end, err := integerArg(m, args, 1, float64(len(elems)))
	if err != nil {
		return vm.Undefined, err
	}
	from, to := relativeIndex(start, len(elems)), relativeIndex(end, len(elems))
	if to < from {
		to = from
	}
	return vm.ObjectValue(m.Realm().NewArray(slices.Clone(elems[from:to]))), nil
}

func arrayProtoSplice(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	arr, err := thisArray(m, this, "splice")
	if err != nil {
		return vm.Undefined, err
	}
	elems := arr.Elements()
	start, err := integerArg(m, args, 0, 0)
	if err != nil {
		return vm.Undefined, err
	}
	from := relativeIndex(start, len(elems))
	count := len(elems) - from
	if len(args) > 1 {
		dc, err := integerArg(m, args, 1, 0)
		if err != nil {
			return vm.Undefined, err
		}
		count = int(math.Min(math.Max(dc, 0), float64(len(elems)-from)))
	} else if len(args) == 0 {
		count = 0
	}
	removed := slices.Clone(elems[from : from+count])
	var items []vm.Value
	if len(args) > 2 {
		items = args[2:]
	}
	arr.SetElements(slices.Replace(elems, from, from+count, items...))
	return vm.ObjectValue(m.Realm().NewArray(removed)), nil
}

func arrayProtoConcat(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	obj, err := thisObject(m, this, "Array.prototype.concat")
	if err != nil {
		return vm.Undefined, err
	}
	var out []vm.Value
	for _, item := range append([]vm.Value{vm.ObjectValue(obj)}, args...) {
		if item.IsArray() {
			out = append(out, item.AsObject().Elements()...)
			continue
		}
		out = append(out, item)
	}
	return vm.ObjectValue(m.Realm().NewArray(out)), nil
}

func arrayProtoReverse(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	arr, err := thisArray(m, this, "reverse")
	if err != nil {
		return vm.Undefined, err
	}
	slices.Reverse(arr.Elements())
	return this, nil
}

func arrayProtoIndexOf(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	_, elems, err := thisElements(m, this, "indexOf")
	if err != nil {
		return vm.Undefined, err
	}
	from, err := integerArg(m, args, 1, 0)
	if err != nil {
		return vm.Undefined, err
	}
	target := vm.Arg(args, 0)
	for i := relativeIndex(from, len(elems)); i < len(elems); i++ {
		if elems[i].StrictlyEquals(target) {
			return vm.IntegerValue(int32(i)), nil
		}
	}
	return vm.IntegerValue(-1), nil
}

func arrayProtoLastIndexOf(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	_, elems, err := thisElements(m, this, "lastIndexOf")
	if err != nil {
		return vm.Undefined, err
	}
	from, err := integerArg(m, args, 1, float64(len(elems)-1))
	if err != nil {
		return vm.Undefined, err
	}
	if from < 0 {
		from += float64(len(elems))
	}
	target := vm.Arg(args, 0)
	for i := int(math.Min(from, float64(len(elems)-1))); i >= 0; i-- {
		if elems[i].StrictlyEquals(target) {
			return vm.IntegerValue(int32(i)), nil
		}
	}
	return vm.IntegerValue(-1), nil
}

// arrayProtoSort sorts stably, with undefined elements last. The first
// error thrown by the comparator aborts the sort.
func arrayProtoSort(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	arr, err := thisArray(m, this, "sort")
	if err != nil {
		return vm.Undefined, err
	}
	compareFn := vm.Arg(args, 0)
	if !compareFn.IsUndefined() && !compareFn.IsCallable() {
		return vm.Undefined, m.NewTypeError("The comparison function must be either a function or undefined")
	}
	elems := slices.Clone(arr.Elements())
	var sortErr error
	slices.SortStableFunc(elems, func(a, b vm.Value) int {
		if sortErr != nil {
			return 0
		}
		switch {
		case a.IsUndefined() && b.IsUndefined():
			return 0
		case a.IsUndefined():
			return 1
		case b.IsUndefined():
			return -1
		}
		if compareFn.IsCallable() {
			res, err := m.Call(compareFn, vm.Undefined, []vm.Value{a, b})
			if err != nil {
				sortErr = err
				return 0
			}
			f, err := m.ToNumber(res)
			if err != nil {
				sortErr = err
				return 0
			}
			switch {
			case f < 0:
				return -1
			case f > 0:
				return 1
			}
			return 0
		}
		as, err := m.ToString(a)
		if err != nil {
			sortErr = err
			return 0
		}
		bs, err := m.ToString(b)
		if err != nil {
			sortErr = err
			return 0
		}
		return slices.Compare(vm.UTF16(as), vm.UTF16(bs))
	})
	if sortErr != nil {
		return vm.Undefined, sortErr
	}
	arr.SetElements(elems)
	return this, nil
}

type iterKind int

const (
	iterForEach iterKind = iota
	iterMap
	iterFilter
	iterSome
	iterEvery
)

// iterationMethod builds forEach, map, filter, some and every.
func iterationMethod(kind iterKind, name string) vm.NativeFunc {
	return func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		obj, elems, err := thisElements(m, this, name)
		if err != nil {
			return vm.Undefined, err
		}
		fn, err := callbackArg(m, args, 0)
		if err != nil {
			return vm.Undefined, err
		}
		thisArg := vm.Arg(args, 1)
		var out []vm.Value
		if kind == iterMap {
			out = make([]vm.Value, len(elems))
		}
		for i, v := range elems {
			res, err := m.Call(fn, thisArg, []vm.Value{v, vm.IntegerValue(int32(i)), vm.ObjectValue(obj)})
			if err != nil {
				return vm.Undefined, err
			}
			switch kind {
			case iterMap:
				out[i] = res
			case iterFilter:
				if res.IsTruthy() {
					out = append(out, v)
				}
			case iterSome:
				if res.IsTruthy() {
					return vm.True, nil
				}
			case iterEvery:
				if !res.IsTruthy() {
					return vm.False, nil
				}
			}
		}
		switch kind {
		case iterMap, iterFilter:
			return vm.ObjectValue(m.Realm().NewArray(out)), nil
		case iterSome:
			return vm.False, nil
		case iterEvery:
			return vm.True, nil
		}
		return vm.Undefined, nil
	}
}

func reduceMethod(right bool) vm.NativeFunc {
	return func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		obj, elems, err := thisElements(m, this, "reduce")
		if err != nil {
			return vm.Undefined, err
		}
		fn, err := callbackArg(m, args, 0)
		if err != nil {
			return vm.Undefined, err
		}
		order := make([]int, len(elems))
		for i := range order {
			order[i] = i
		}
		if right {
			slices.Reverse(order)
		}
		var acc vm.Value
		if len(args) > 1 {
			acc = args[1]
		} else {
			if len(order) == 0 {
				return vm.Undefined, m.NewTypeError("Reduce of empty array with no initial value")
			}
			acc = elems[order[0]]
			order = order[1:]
		}
		for _, i := range order {
			acc, err = m.Call(fn, vm.Undefined, []vm.Value{acc, elems[i], vm.IntegerValue(int32(i)), vm.ObjectValue(obj)})
			if err != nil {
				return vm.Undefined, err
			}
		}
		return acc, nil
	}
}
