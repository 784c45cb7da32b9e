package builtins

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/qtproject/qtjsbackend/pkg/vm"
)

type StringInitializer struct{}

func (s *StringInitializer) Name() string {
	return "String"
}

func (s *StringInitializer) Priority() int {
	return PriorityString
}

func (s *StringInitializer) InitRuntime(ctx *RuntimeContext) error {
	proto := ctx.Realm.StringPrototype

	ctx.defineMethod(proto, "toString", 0, stringProtoValueOf)
	ctx.defineMethod(proto, "valueOf", 0, stringProtoValueOf)
	ctx.defineMethod(proto, "charAt", 1, stringProtoCharAt)
	ctx.defineMethod(proto, "charCodeAt", 1, stringProtoCharCodeAt)
	ctx.defineMethod(proto, "indexOf", 1, stringProtoIndexOf)
	ctx.defineMethod(proto, "lastIndexOf", 1, stringProtoLastIndexOf)
	ctx.defineMethod(proto, "substring", 2, stringProtoSubstring)
	ctx.defineMethod(proto, "substr", 2, stringProtoSubstr)
	ctx.defineMethod(proto, "slice", 2, stringProtoSlice)
	ctx.defineMethod(proto, "concat", 1, stringProtoConcat)
	ctx.defineMethod(proto, "toUpperCase", 0, stringMapper("toUpperCase", strings.ToUpper))
	ctx.defineMethod(proto, "toLowerCase", 0, stringMapper("toLowerCase", strings.ToLower))
	ctx.defineMethod(proto, "toLocaleUpperCase", 0, stringMapper("toLocaleUpperCase", strings.ToUpper))
	ctx.defineMethod(proto, "toLocaleLowerCase", 0, stringMapper("toLocaleLowerCase", strings.ToLower))
	ctx.defineMethod(proto, "trim", 0, stringMapper("trim", func(s string) string {
		return strings.TrimFunc(s, isJSSpace)
	}))
	ctx.defineMethod(proto, "split", 2, stringProtoSplit)
	ctx.defineMethod(proto, "match", 1, stringProtoMatch)
	ctx.defineMethod(proto, "replace", 2, stringProtoReplace)
	ctx.defineMethod(proto, "search", 1, stringProtoSearch)
	ctx.defineMethod(proto, "localeCompare", 1, stringProtoLocaleCompare)
	ctx.defineMethod(proto, "normalize", 0, stringProtoNormalize)

	ctor := ctx.Realm.NewNativeConstructor("String", 1, proto,
		func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			if len(args) == 0 {
				return vm.NewString(""), nil
			}
			s, err := m.ToString(args[0])
			return vm.NewString(s), err
		},
		func(m *vm.VM, callee *vm.Object, args []vm.Value) (vm.Value, error) {
			s := ""
			if len(args) > 0 {
				var err error
				if s, err = m.ToString(args[0]); err != nil {
					return vm.Undefined, err
				}
			}
			return wrapPrimitive(m, vm.NewString(s))
		})
	ctx.defineMethod(ctor, "fromCharCode", 1, func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		units := make([]uint16, len(args))
		for i := range args {
			f, err := m.ToNumber(args[i])
			if err != nil {
				return vm.Undefined, err
			}
			units[i] = uint16(vm.ToUint32(f))
		}
		return vm.NewString(vm.FromUTF16(units)), nil
	})

	return ctx.DefineGlobal("String", vm.ObjectValue(ctor))
}

// wrapPrimitive boxes a primitive for a constructor call.
func wrapPrimitive(m *vm.VM, v vm.Value) (vm.Value, error) {
	o, err := m.ToObject(v)
	if err != nil {
		return vm.Undefined, err
	}
	return vm.ObjectValue(o), nil
}

// thisString coerces the receiver of a String.prototype method.
func thisString(m *vm.VM, this vm.Value, method string) (string, error) {
	if this.IsString() {
		return this.AsString(), nil
	}
	if this.IsNullish() {
		return "", m.NewTypeError("String.prototype.%s called on null or undefined", method)
	}
	return m.ToString(this)
}

func stringProtoValueOf(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	if this.IsString() {
		return this, nil
	}
	if this.IsObject() && this.AsObject().Class() == vm.ClassString {
		return this.AsObject().PrimitiveValue(), nil
	}
	return vm.Undefined, m.NewTypeError("String.prototype.valueOf requires that 'this' be a String")
}

func stringMapper(name string, fn func(string) string) vm.NativeFunc {
	return func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		s, err := thisString(m, this, name)
		if err != nil {
			return vm.Undefined, err
		}
		return vm.NewString(fn(s)), nil
	}
}

func stringProtoCharAt(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	s, err := thisString(m, this, "charAt")
	if err != nil {
		return vm.Undefined, err
	}
	pos, err := integerArg(m, args, 0, 0)
	if err != nil {
		return vm.Undefined, err
	}
	if pos < 0 || pos > math.MaxInt32 {
		return vm.NewString(""), nil
	}
	cu, ok := vm.CodeUnitAt(s, int(pos))
	if !ok {
		return vm.NewString(""), nil
	}
	return vm.NewString(vm.FromUTF16([]uint16{cu})), nil
}

func stringProtoCharCodeAt(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	s, err := thisString(m, this, "charCodeAt")
	if err != nil {
		return vm.Undefined, err
	}
	pos, err := integerArg(m, args, 0, 0)
	if err != nil {
		return vm.Undefined, err
	}
	if pos < 0 || pos > math.MaxInt32 {
		return vm.NaN, nil
	}
	cu, ok := vm.CodeUnitAt(s, int(pos))
	if !ok {
		return vm.NaN, nil
	}
	return vm.IntegerValue(int32(cu)), nil
}

// indexUnits finds needle in hay at or after from, in code units.
func indexUnits(hay, needle []uint16, from int) int {
	for i := from; i+len(needle) <= len(hay); i++ {
		if slices.Equal(hay[i:i+len(needle)], needle) {
			return i
		}
	}
	return -1
}

func stringProtoIndexOf(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	s, err := thisString(m, this, "indexOf")
	if err != nil {
		return vm.Undefined, err
	}
	search, err := stringArg(m, args, 0)
	if err != nil {
		return vm.Undefined, err
	}
	pos, err := integerArg(m, args, 1, 0)
	if err != nil {
		return vm.Undefined, err
	}
	hay := vm.UTF16(s)
	from := relativeIndex(math.Max(pos, 0), len(hay))
	return vm.IntegerValue(int32(indexUnits(hay, vm.UTF16(search), from))), nil
}

func stringProtoLastIndexOf(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	s, err := thisString(m, this, "lastIndexOf")
	if err != nil {
		return vm.Undefined, err
	}
	search, err := stringArg(m, args, 0)
	if err != nil {
		return vm.Undefined, err
	}
	hay, needle := vm.UTF16(s), vm.UTF16(search)
	pos := math.Inf(1)
	if p, err := numberArg(m, args, 1); err != nil {
		return vm.Undefined, err
	} else if !math.IsNaN(p) {
		pos = vm.ToInteger(p)
	}
	start := int(math.Min(math.Max(pos, 0), float64(len(hay)-len(needle))))
	for i := start; i >= 0; i-- {
		if slices.Equal(hay[i:i+len(needle)], needle) {
			return vm.IntegerValue(int32(i)), nil
		}
	}
	return vm.IntegerValue(-1), nil
}

func stringProtoSubstring(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	s, err := thisString(m, this, "substring")
	if err != nil {
		return vm.Undefined, err
	}
	n := vm.StringLength(s)
	start, err := integerArg(m, args, 0, 0)
	if err != nil {
		return vm.Undefined, err
	}
	end, err := integerArg(m, args, 1, float64(n))
	if err != nil {
		return vm.Undefined, err
	}
	from := int(math.Min(math.Max(start, 0), float64(n)))
	to := int(math.Min(math.Max(end, 0), float64(n)))
	if from > to {
		from, to = to, from
	}
	return vm.NewString(vm.Substring(s, from, to)), nil
}

func stringProtoSubstr(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	s, err := thisString(m, this, "substr")
	if err != nil {
		return vm.Undefined, err
	}
	n := vm.StringLength(s)
	start, err := integerArg(m, args, 0, 0)
	if err != nil {
		return vm.Undefined, err
	}
	length, err := integerArg(m, args, 1, math.Inf(1))
	if err != nil {
		return vm.Undefined, err
	}
	from := relativeIndex(start, n)
	count := int(math.Min(math.Max(length, 0), float64(n-from)))
	return vm.NewString(vm.Substring(s, from, from+count)), nil
}

func stringProtoSlice(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	s, err := thisString(m, this, "slice")
	if err != nil {
		return vm.Undefined, err
	}
	n := vm.StringLength(s)
	start, err := integerArg(m, args, 0, 0)
	if err != nil {
		return vm.Undefined, err
	}
	end, err := integerArg(m, args, 1, float64(n))
	if err != nil {
		return vm.Undefined, err
	}
	from, to := relativeIndex(start, n), relativeIndex(end, n)
	if to < from {
		return vm.NewString(""), nil
	}
	return vm.NewString(vm.Substring(s, from, to)), nil
}

func stringProtoConcat(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	s, err := thisString(m, this, "concat")
	if err != nil {
		return vm.Undefined, err
	}
	var b strings.Builder
	b.WriteString(s)
	for _, a := range args {
		part, err := m.ToString(a)
		if err != nil {
			return vm.Undefined, err
		}
		b.WriteString(part)
	}
	return vm.NewString(b.String()), nil
}

func stringProtoSplit(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	s, err := thisString(m, this, "split")
	if err != nil {
		return vm.Undefined, err
	}
	limit := uint32(math.MaxUint32)
	if l := vm.Arg(args, 1); !l.IsUndefined() {
		f, err := m.ToNumber(l)
		if err != nil {
			return vm.Undefined, err
		}
		limit = vm.ToUint32(f)
	}
	var parts []vm.Value
	push := func(v vm.Value) bool {
		if uint32(len(parts)) >= limit {
			return false
		}
		parts = append(parts, v)
		return true
	}
	result := func() (vm.Value, error) {
		return vm.ObjectValue(m.Realm().NewArray(parts)), nil
	}
	if limit == 0 {
		return result()
	}

	sep := vm.Arg(args, 0)
	if sep.IsObject() && sep.AsObject().RegExp() != nil {
		splitRegExp(s, sep.AsObject().RegExp(), push)
		return result()
	}
	if sep.IsUndefined() {
		push(vm.NewString(s))
		return result()
	}
	sepStr, err := m.ToString(sep)
	if err != nil {
		return vm.Undefined, err
	}
	if sepStr == "" {
		for _, cu := range vm.UTF16(s) {
			if !push(vm.NewString(vm.FromUTF16([]uint16{cu}))) {
				break
			}
		}
		return result()
	}
	for _, p := range strings.Split(s, sepStr) {
		if !push(vm.NewString(p)) {
			break
		}
	}
	return result()
}

// splitRegExp splits s around the matches of d, including captures. An
// empty match at the current split point is skipped.
func splitRegExp(s string, d *vm.RegExpData, push func(vm.Value) bool) {
	rs := []rune(s)
	if len(rs) == 0 {
		if match, _ := d.Exec(s, 0); match == nil {
			push(vm.NewString(s))
		}
		return
	}
	p, q := 0, 0
	for q < len(rs) {
		match, _ := d.Exec(s, q)
		if match == nil || match.Index >= len(rs) {
			break
		}
		if match.End == p {
			q = match.Index + 1
			continue
		}
		if !push(vm.NewString(string(rs[p:match.Index]))) {
			return
		}
		for _, g := range groupValues(match)[1:] {
			if !push(g) {
				return
			}
		}
		p = match.End
		q = p
	}
	push(vm.NewString(string(rs[p:])))
}

func stringProtoMatch(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	s, err := thisString(m, this, "match")
	if err != nil {
		return vm.Undefined, err
	}
	re, err := toRegExp(m, vm.Arg(args, 0))
	if err != nil {
		return vm.Undefined, err
	}
	d := re.RegExp()
	if !d.Global {
		return regexpExec(m, re, s)
	}
	var found []vm.Value
	for pos := 0; ; {
		match, err := d.Exec(s, pos)
		if err != nil {
			return vm.Undefined, m.NewError("%s", err.Error())
		}
		if match == nil {
			break
		}
		found = append(found, vm.NewString(match.Groups[0].Text))
		pos = match.End
		if match.End == match.Index {
			pos++
		}
	}
	re.Set("lastIndex", vm.IntegerValue(0))
	if len(found) == 0 {
		return vm.Null, nil
	}
	return vm.ObjectValue(m.Realm().NewArray(found)), nil
}

func stringProtoSearch(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	s, err := thisString(m, this, "search")
	if err != nil {
		return vm.Undefined, err
	}
	re, err := toRegExp(m, vm.Arg(args, 0))
	if err != nil {
		return vm.Undefined, err
	}
	match, err := re.RegExp().Exec(s, 0)
	if err != nil {
		return vm.Undefined, m.NewError("%s", err.Error())
	}
	if match == nil {
		return vm.IntegerValue(-1), nil
	}
	return vm.IntegerValue(int32(match.Index)), nil
}

func stringProtoReplace(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	s, err := thisString(m, this, "replace")
	if err != nil {
		return vm.Undefined, err
	}
	pattern, replacement := vm.Arg(args, 0), vm.Arg(args, 1)
	var replaceStr string
	if !replacement.IsCallable() {
		if replaceStr, err = m.ToString(replacement); err != nil {
			return vm.Undefined, err
		}
	}
	rs := []rune(s)

	// substitute computes the replacement text of one match.
	substitute := func(match *vm.RegExpMatch) (string, error) {
		if replacement.IsCallable() {
			callArgs := groupValues(match)
			callArgs = append(callArgs, vm.IntegerValue(int32(match.Index)), vm.NewString(s))
			res, err := m.Call(replacement, vm.Undefined, callArgs)
			if err != nil {
				return "", err
			}
			return m.ToString(res)
		}
		return expandReplacement(replaceStr, match, rs), nil
	}

	var matches []*vm.RegExpMatch
	if pattern.IsObject() && pattern.AsObject().RegExp() != nil {
		re := pattern.AsObject()
		d := re.RegExp()
		for pos := 0; ; {
			match, err := d.Exec(s, pos)
			if err != nil {
				return vm.Undefined, m.NewError("%s", err.Error())
			}
			if match == nil {
				break
			}
			matches = append(matches, match)
			if !d.Global {
				break
			}
			pos = match.End
			if match.End == match.Index {
				pos++
			}
		}
		if d.Global {
			re.Set("lastIndex", vm.IntegerValue(0))
		}
	} else {
		search, err := m.ToString(pattern)
		if err != nil {
			return vm.Undefined, err
		}
		sr := []rune(search)
		if i := strings.Index(s, search); i >= 0 {
			at := len([]rune(s[:i]))
			matches = append(matches, &vm.RegExpMatch{
				Index:  at,
				End:    at + len(sr),
				Groups: []vm.RegExpGroup{{Text: search, Matched: true}},
			})
		}
	}

	var b strings.Builder
	last := 0
	for _, match := range matches {
		b.WriteString(string(rs[last:match.Index]))
		text, err := substitute(match)
		if err != nil {
			return vm.Undefined, err
		}
		b.WriteString(text)
		last = match.End
	}
	b.WriteString(string(rs[last:]))
	return vm.NewString(b.String()), nil
}

// expandReplacement expands the $ patterns of a replacement string.
func expandReplacement(repl string, match *vm.RegExpMatch, rs []rune) string {
	if !strings.Contains(repl, "$") {
		return repl
	}
	var b strings.Builder
	for i := 0; i < len(repl); i++ {
		c := repl[i]
		if c != '$' || i+1 == len(repl) {
			b.WriteByte(c)
			continue
		}
		next := repl[i+1]
		switch {
		case next == '$':
			b.WriteByte('$')
			i++
		case next == '&':
			b.WriteString(match.Groups[0].Text)
			i++
		case next == '`':
			b.WriteString(string(rs[:match.Index]))
			i++
		case next == '\'':
			b.WriteString(string(rs[match.End:]))
			i++
		case next >= '0' && next <= '9':
			n, width := int(next-'0'), 1
			if i+2 < len(repl) && repl[i+2] >= '0' && repl[i+2] <= '9' {
				if nn, _ := strconv.Atoi(repl[i+1 : i+3]); nn > 0 && nn < len(match.Groups) {
					n, width = nn, 2
				}
			}
			if n == 0 || n >= len(match.Groups) {
				b.WriteByte(c)
				continue
			}
			b.WriteString(match.Groups[n].Text)
			i += width
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func stringProtoLocaleCompare(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	s, err := thisString(m, this, "localeCompare")
	if err != nil {
		return vm.Undefined, err
	}
	that, err := stringArg(m, args, 0)
	if err != nil {
		return vm.Undefined, err
	}
	c := collate.New(language.Und)
	return vm.IntegerValue(int32(c.CompareString(s, that))), nil
}

func stringProtoNormalize(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	s, err := thisString(m, this, "normalize")
	if err != nil {
		return vm.Undefined, err
	}
	form := "NFC"
	if f := vm.Arg(args, 0); !f.IsUndefined() {
		if form, err = m.ToString(f); err != nil {
			return vm.Undefined, err
		}
	}
	forms := map[string]norm.Form{"NFC": norm.NFC, "NFD": norm.NFD, "NFKC": norm.NFKC, "NFKD": norm.NFKD}
	nf, ok := forms[form]
	if !ok {
		return vm.Undefined, m.NewRangeError("The normalization form should be one of NFC, NFD, NFKC, NFKD.")
	}
	return vm.NewString(nf.String(s)), nil
}
