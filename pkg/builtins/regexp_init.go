package builtins

import (
	"github.com/qtproject/qtjsbackend/pkg/vm"
)

type RegExpInitializer struct{}

func (r *RegExpInitializer) Name() string {
	return "RegExp"
}

func (r *RegExpInitializer) Priority() int {
	return PriorityRegExp
}

func (r *RegExpInitializer) InitRuntime(ctx *RuntimeContext) error {
	proto := ctx.Realm.RegExpPrototype

	ctx.defineMethod(proto, "exec", 1, func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		re, err := thisRegExp(m, this, "exec")
		if err != nil {
			return vm.Undefined, err
		}
		s, err := stringArg(m, args, 0)
		if err != nil {
			return vm.Undefined, err
		}
		return regexpExec(m, re, s)
	})
	ctx.defineMethod(proto, "test", 1, func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		re, err := thisRegExp(m, this, "test")
		if err != nil {
			return vm.Undefined, err
		}
		s, err := stringArg(m, args, 0)
		if err != nil {
			return vm.Undefined, err
		}
		res, err := regexpExec(m, re, s)
		if err != nil {
			return vm.Undefined, err
		}
		return vm.BooleanValue(!res.IsNull()), nil
	})
	ctx.defineMethod(proto, "toString", 0, func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		re, err := thisRegExp(m, this, "toString")
		if err != nil {
			return vm.Undefined, err
		}
		d := re.RegExp()
		return vm.NewString("/" + d.Source + "/" + canonicalFlags(d)), nil
	})

	flags := []struct {
		name string
		get  func(d *vm.RegExpData) vm.Value
	}{
		{"source", func(d *vm.RegExpData) vm.Value { return vm.NewString(d.Source) }},
		{"global", func(d *vm.RegExpData) vm.Value { return vm.BooleanValue(d.Global) }},
		{"ignoreCase", func(d *vm.RegExpData) vm.Value { return vm.BooleanValue(d.IgnoreCase) }},
		{"multiline", func(d *vm.RegExpData) vm.Value { return vm.BooleanValue(d.Multiline) }},
	}
	for _, f := range flags {
		getter := ctx.Realm.NewNativeFunction("get "+f.name, 0, func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			re, err := thisRegExp(m, this, f.name)
			if err != nil {
				return vm.Undefined, err
			}
			return f.get(re.RegExp()), nil
		})
		proto.DefineAccessor(f.name, vm.ObjectValue(getter), vm.Undefined, vm.Configurable)
	}

	ctor := ctx.Realm.NewNativeConstructor("RegExp", 2, proto,
		func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			pattern, flags := vm.Arg(args, 0), vm.Arg(args, 1)
			if pattern.IsObject() && pattern.AsObject().RegExp() != nil && flags.IsUndefined() {
				return pattern, nil
			}
			return newRegExp(m, pattern, flags)
		},
		func(m *vm.VM, callee *vm.Object, args []vm.Value) (vm.Value, error) {
			return newRegExp(m, vm.Arg(args, 0), vm.Arg(args, 1))
		})
	return ctx.DefineGlobal("RegExp", vm.ObjectValue(ctor))
}

func thisRegExp(m *vm.VM, this vm.Value, method string) (*vm.Object, error) {
	if this.IsObject() && this.AsObject().RegExp() != nil {
		return this.AsObject(), nil
	}
	return nil, m.NewTypeError("RegExp.prototype.%s called on incompatible receiver %s", method, this.ToString())
}

func canonicalFlags(d *vm.RegExpData) string {
	s := ""
	if d.Global {
		s += "g"
	}
	if d.IgnoreCase {
		s += "i"
	}
	if d.Multiline {
		s += "m"
	}
	return s
}

func newRegExp(m *vm.VM, pattern, flags vm.Value) (vm.Value, error) {
	var src, fl string
	if pattern.IsObject() && pattern.AsObject().RegExp() != nil {
		if !flags.IsUndefined() {
			return vm.Undefined, m.NewTypeError("Cannot supply flags when constructing one RegExp from another")
		}
		d := pattern.AsObject().RegExp()
		src, fl = d.Source, d.Flags
	} else {
		var err error
		if !pattern.IsUndefined() {
			if src, err = m.ToString(pattern); err != nil {
				return vm.Undefined, err
			}
		}
		if !flags.IsUndefined() {
			if fl, err = m.ToString(flags); err != nil {
				return vm.Undefined, err
			}
		}
	}
	if src == "" {
		src = "(?:)"
	}
	re, err := m.NewRegExp(src, fl)
	if err != nil {
		return vm.Undefined, err
	}
	return vm.ObjectValue(re), nil
}

// toRegExp returns v when it is a RegExp, or compiles its string form.
func toRegExp(m *vm.VM, v vm.Value) (*vm.Object, error) {
	if v.IsObject() && v.AsObject().RegExp() != nil {
		return v.AsObject(), nil
	}
	re, err := newRegExp(m, v, vm.Undefined)
	if err != nil {
		return nil, err
	}
	return re.AsObject(), nil
}

// regexpExec runs one match of re against s. Global expressions start at
// and update lastIndex.
func regexpExec(m *vm.VM, re *vm.Object, s string) (vm.Value, error) {
	d := re.RegExp()
	start := 0
	if d.Global {
		li, err := m.GetProperty(vm.ObjectValue(re), "lastIndex")
		if err != nil {
			return vm.Undefined, err
		}
		f, err := m.ToNumber(li)
		if err != nil {
			return vm.Undefined, err
		}
		start = int(vm.ToInteger(f))
	}
	match, err := d.Exec(s, start)
	if err != nil {
		return vm.Undefined, m.NewError("%s", err.Error())
	}
	if match == nil {
		if d.Global {
			re.Set("lastIndex", vm.IntegerValue(0))
		}
		return vm.Null, nil
	}
	if d.Global {
		re.Set("lastIndex", vm.IntegerValue(int32(match.End)))
	}
	return vm.ObjectValue(execResult(m, match, s)), nil
}

// execResult builds the array exec returns: the match, its groups, and
// the index and input properties.
func execResult(m *vm.VM, match *vm.RegExpMatch, s string) *vm.Object {
	arr := m.Realm().NewArray(groupValues(match))
	arr.Set("index", vm.IntegerValue(int32(match.Index)))
	arr.Set("input", vm.NewString(s))
	return arr
}

func groupValues(match *vm.RegExpMatch) []vm.Value {
	elems := make([]vm.Value, len(match.Groups))
	for i, g := range match.Groups {
		if g.Matched {
			elems[i] = vm.NewString(g.Text)
		}
	}
	return elems
}
