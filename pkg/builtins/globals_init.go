package builtins

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/qtproject/qtjsbackend/pkg/vm"
)

type GlobalsInitializer struct{}

func (g *GlobalsInitializer) Name() string {
	return "Globals"
}

func (g *GlobalsInitializer) Priority() int {
	return PriorityGlobals
}

func (g *GlobalsInitializer) InitRuntime(ctx *RuntimeContext) error {
	global := ctx.Realm.GlobalObject
	defineConstant(global, "undefined", vm.Undefined)
	defineConstant(global, "NaN", vm.NaN)
	defineConstant(global, "Infinity", vm.NumberValue(math.Inf(1)))

	// Direct calls compare the global binding against this object, so
	// eval reached any other way runs as global code.
	eval := ctx.Realm.NewNativeFunction("eval", 1, func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		src := vm.Arg(args, 0)
		if !src.IsString() {
			return src, nil
		}
		return m.IndirectEval(src.AsString())
	})
	ctx.Realm.EvalFunction = eval

	r := ctx.Realm
	globals := []struct {
		name string
		fn   *vm.Object
	}{
		{"eval", eval},
		{"parseInt", r.NewNativeFunction("parseInt", 2, globalParseInt)},
		{"parseFloat", r.NewNativeFunction("parseFloat", 1, globalParseFloat)},
		{"isNaN", r.NewNativeFunction("isNaN", 1, globalIsNaN)},
		{"isFinite", r.NewNativeFunction("isFinite", 1, globalIsFinite)},
		{"encodeURIComponent", r.NewNativeFunction("encodeURIComponent", 1, uriEncoder(uriUnreserved))},
		{"encodeURI", r.NewNativeFunction("encodeURI", 1, uriEncoder(uriUnreserved+uriReserved))},
		{"decodeURIComponent", r.NewNativeFunction("decodeURIComponent", 1, uriDecoder(""))},
		{"decodeURI", r.NewNativeFunction("decodeURI", 1, uriDecoder(uriReserved))},
	}
	for _, g := range globals {
		if err := ctx.DefineGlobal(g.name, vm.ObjectValue(g.fn)); err != nil {
			return err
		}
	}
	return nil
}

func isJSSpace(r rune) bool {
	return unicode.IsSpace(r) || r == '\uFEFF'
}

func globalParseInt(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	s, err := stringArg(m, args, 0)
	if err != nil {
		return vm.Undefined, err
	}
	radixF, err := integerArg(m, args, 1, 0)
	if err != nil {
		return vm.Undefined, err
	}
	radix := int(vm.ToInt32(radixF))

	s = strings.TrimLeftFunc(s, isJSSpace)
	sign := 1.0
	if s != "" && (s[0] == '-' || s[0] == '+') {
		if s[0] == '-' {
			sign = -1
		}
		s = s[1:]
	}
	hexPrefix := len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
	switch {
	case radix == 0:
		radix = 10
		if hexPrefix {
			radix = 16
			s = s[2:]
		}
	case radix < 2 || radix > 36:
		return vm.NaN, nil
	case radix == 16 && hexPrefix:
		s = s[2:]
	}

	value, digits := 0.0, 0
	for _, c := range s {
		d := digitOf(c)
		if d < 0 || d >= radix {
			break
		}
		value = value*float64(radix) + float64(d)
		digits++
	}
	if digits == 0 {
		return vm.NaN, nil
	}
	return vm.NumberOrInteger(sign * value), nil
}

func digitOf(c rune) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10
	}
	return -1
}

// globalParseFloat parses the longest prefix that is a decimal literal.
func globalParseFloat(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	s, err := stringArg(m, args, 0)
	if err != nil {
		return vm.Undefined, err
	}
	s = strings.TrimLeftFunc(s, isJSSpace)

	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	if strings.HasPrefix(s[i:], "Infinity") {
		if s[0] == '-' {
			return vm.NumberValue(math.Inf(-1)), nil
		}
		return vm.NumberValue(math.Inf(1)), nil
	}
	digits := func() int {
		n := 0
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
			n++
		}
		return n
	}
	n := digits()
	if i < len(s) && s[i] == '.' {
		i++
		n += digits()
	}
	if n == 0 {
		return vm.NaN, nil
	}
	end := i
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		if digits() > 0 {
			end = i
		}
	}
	return vm.NumberOrInteger(vm.StringToNumber(s[:end])), nil
}

func globalIsNaN(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	f, err := numberArg(m, args, 0)
	if err != nil {
		return vm.Undefined, err
	}
	return vm.BooleanValue(math.IsNaN(f)), nil
}

func globalIsFinite(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	f, err := numberArg(m, args, 0)
	if err != nil {
		return vm.Undefined, err
	}
	return vm.BooleanValue(!math.IsNaN(f) && !math.IsInf(f, 0)), nil
}

const (
	uriUnreserved = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_.!~*'()"
	uriReserved   = ";/?:@&=+$,#"
)

func uriEncoder(keep string) vm.NativeFunc {
	return func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		s, err := stringArg(m, args, 0)
		if err != nil {
			return vm.Undefined, err
		}
		const hex = "0123456789ABCDEF"
		var b strings.Builder
		for _, r := range s {
			if r < utf8.RuneSelf && strings.ContainsRune(keep, r) {
				b.WriteRune(r)
				continue
			}
			if r == utf8.RuneError {
				return vm.Undefined, uriError(m)
			}
			var buf [utf8.UTFMax]byte
			for _, c := range buf[:utf8.EncodeRune(buf[:], r)] {
				b.WriteByte('%')
				b.WriteByte(hex[c>>4])
				b.WriteByte(hex[c&15])
			}
		}
		return vm.NewString(b.String()), nil
	}
}

// uriDecoder decodes escapes, leaving those that decode to a character
// in preserve as they are.
func uriDecoder(preserve string) vm.NativeFunc {
	return func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		s, err := stringArg(m, args, 0)
		if err != nil {
			return vm.Undefined, err
		}
		var b strings.Builder
		for i := 0; i < len(s); {
			if s[i] != '%' {
				b.WriteByte(s[i])
				i++
				continue
			}
			start := i
			var raw []byte
			for {
				c, ok := hexByte(s, i)
				if !ok {
					return vm.Undefined, uriError(m)
				}
				raw = append(raw, c)
				i += 3
				if utf8.FullRune(raw) || i >= len(s) || s[i] != '%' {
					break
				}
			}
			r, size := utf8.DecodeRune(raw)
			if r == utf8.RuneError || size != len(raw) {
				return vm.Undefined, uriError(m)
			}
			if r < utf8.RuneSelf && strings.ContainsRune(preserve, r) {
				b.WriteString(s[start:i])
				continue
			}
			b.WriteRune(r)
		}
		return vm.NewString(b.String()), nil
	}
}

func hexByte(s string, i int) (byte, bool) {
	if i+2 >= len(s) || s[i] != '%' {
		return 0, false
	}
	hi, lo := digitOf(rune(s[i+1])), digitOf(rune(s[i+2]))
	if hi < 0 || hi > 15 || lo < 0 || lo > 15 {
		return 0, false
	}
	return byte(hi<<4 | lo), true
}

func uriError(m *vm.VM) error {
	r := m.Realm()
	return vm.Throw(vm.ObjectValue(r.NewError(r.URIErrorPrototype, "URI malformed")))
}
