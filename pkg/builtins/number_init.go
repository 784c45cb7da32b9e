package builtins

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/qtproject/qtjsbackend/pkg/vm"
)

type NumberInitializer struct{}

func (n *NumberInitializer) Name() string {
	return "Number"
}

func (n *NumberInitializer) Priority() int {
	return PriorityNumber
}

func (n *NumberInitializer) InitRuntime(ctx *RuntimeContext) error {
	proto := ctx.Realm.NumberPrototype

	ctx.defineMethod(proto, "valueOf", 0, func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		f, err := thisNumber(m, this, "valueOf")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.NumberOrInteger(f), nil
	})
	ctx.defineMethod(proto, "toString", 1, numberProtoToString)
	ctx.defineMethod(proto, "toLocaleString", 0, numberProtoToLocaleString)
	ctx.defineMethod(proto, "toFixed", 1, numberProtoToFixed)
	ctx.defineMethod(proto, "toExponential", 1, numberProtoToExponential)
	ctx.defineMethod(proto, "toPrecision", 1, numberProtoToPrecision)

	ctor := ctx.Realm.NewNativeConstructor("Number", 1, proto,
		func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			if len(args) == 0 {
				return vm.IntegerValue(0), nil
			}
			f, err := m.ToNumber(args[0])
			return vm.NumberOrInteger(f), err
		},
		func(m *vm.VM, callee *vm.Object, args []vm.Value) (vm.Value, error) {
			f := 0.0
			if len(args) > 0 {
				var err error
				if f, err = m.ToNumber(args[0]); err != nil {
					return vm.Undefined, err
				}
			}
			return wrapPrimitive(m, vm.NumberOrInteger(f))
		})
	defineConstant(ctor, "MAX_VALUE", vm.NumberValue(math.MaxFloat64))
	defineConstant(ctor, "MIN_VALUE", vm.NumberValue(math.SmallestNonzeroFloat64))
	defineConstant(ctor, "NaN", vm.NaN)
	defineConstant(ctor, "POSITIVE_INFINITY", vm.NumberValue(math.Inf(1)))
	defineConstant(ctor, "NEGATIVE_INFINITY", vm.NumberValue(math.Inf(-1)))

	return ctx.DefineGlobal("Number", vm.ObjectValue(ctor))
}

func thisNumber(m *vm.VM, this vm.Value, method string) (float64, error) {
	if this.IsNumber() {
		return this.ToFloat(), nil
	}
	if this.IsObject() && this.AsObject().Class() == vm.ClassNumber {
		return this.AsObject().PrimitiveValue().ToFloat(), nil
	}
	return 0, m.NewTypeError("Number.prototype.%s requires that 'this' be a Number", method)
}

func numberProtoToString(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	f, err := thisNumber(m, this, "toString")
	if err != nil {
		return vm.Undefined, err
	}
	radix, err := integerArg(m, args, 0, 10)
	if err != nil {
		return vm.Undefined, err
	}
	if radix < 2 || radix > 36 {
		return vm.Undefined, m.NewRangeError("toString() radix must be between 2 and 36")
	}
	if radix == 10 || math.IsNaN(f) || math.IsInf(f, 0) {
		return vm.NewString(vm.NumberToString(f)), nil
	}
	return vm.NewString(formatRadix(f, int(radix))), nil
}

// formatRadix renders f in the given base, with up to 52 fraction digits.
func formatRadix(f float64, radix int) string {
	neg := f < 0
	f = math.Abs(f)
	ip, fp := math.Modf(f)

	var s string
	if ip < 1<<53 {
		s = strconv.FormatInt(int64(ip), radix)
	} else {
		var digits []byte
		for ip >= 1 {
			d := math.Mod(ip, float64(radix))
			digits = append(digits, strconv.FormatInt(int64(d), radix)[0])
			ip = math.Floor(ip / float64(radix))
		}
		for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
			digits[i], digits[j] = digits[j], digits[i]
		}
		s = string(digits)
	}
	if fp > 0 {
		var b strings.Builder
		b.WriteByte('.')
		for i := 0; i < 52 && fp > 0; i++ {
			fp *= float64(radix)
			d := int64(fp)
			b.WriteByte(strconv.FormatInt(d, radix)[0])
			fp -= float64(d)
		}
		s += b.String()
	}
	if neg {
		s = "-" + s
	}
	return s
}

func numberProtoToLocaleString(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	f, err := thisNumber(m, this, "toLocaleString")
	if err != nil {
		return vm.Undefined, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return vm.NewString(vm.NumberToString(f)), nil
	}
	p := message.NewPrinter(language.AmericanEnglish)
	return vm.NewString(p.Sprint(number.Decimal(f, number.MaxFractionDigits(3)))), nil
}

func numberProtoToFixed(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	f, err := thisNumber(m, this, "toFixed")
	if err != nil {
		return vm.Undefined, err
	}
	digits, err := integerArg(m, args, 0, 0)
	if err != nil {
		return vm.Undefined, err
	}
	if digits < 0 || digits > 20 {
		return vm.Undefined, m.NewRangeError("toFixed() digits argument must be between 0 and 20")
	}
	if math.IsNaN(f) || math.Abs(f) >= 1e21 {
		return vm.NewString(vm.NumberToString(f)), nil
	}
	return vm.NewString(strconv.FormatFloat(f, 'f', int(digits), 64)), nil
}

// jsExponent rewrites Go's e+07 exponent form as e+7.
func jsExponent(s string) string {
	i := strings.IndexByte(s, 'e')
	if i < 0 {
		return s
	}
	mant, exp := s[:i], s[i+1:]
	sign := exp[:1]
	exp = strings.TrimLeft(exp[1:], "0")
	if exp == "" {
		exp = "0"
	}
	return mant + "e" + sign + exp
}

func numberProtoToExponential(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	f, err := thisNumber(m, this, "toExponential")
	if err != nil {
		return vm.Undefined, err
	}
	digits := -1
	if d := vm.Arg(args, 0); !d.IsUndefined() {
		df, err := integerArg(m, args, 0, 0)
		if err != nil {
			return vm.Undefined, err
		}
		if df < 0 || df > 20 {
			return vm.Undefined, m.NewRangeError("toExponential() argument must be between 0 and 20")
		}
		digits = int(df)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return vm.NewString(vm.NumberToString(f)), nil
	}
	return vm.NewString(jsExponent(strconv.FormatFloat(f, 'e', digits, 64))), nil
}

func numberProtoToPrecision(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	f, err := thisNumber(m, this, "toPrecision")
	if err != nil {
		return vm.Undefined, err
	}
	if vm.Arg(args, 0).IsUndefined() || math.IsNaN(f) || math.IsInf(f, 0) {
		return vm.NewString(vm.NumberToString(f)), nil
	}
	p, err := integerArg(m, args, 0, 0)
	if err != nil {
		return vm.Undefined, err
	}
	if p < 1 || p > 21 {
		return vm.Undefined, m.NewRangeError("toPrecision() argument must be between 1 and 21")
	}
	prec := int(p)
	exp := strconv.FormatFloat(f, 'e', prec-1, 64)
	e, _ := strconv.Atoi(exp[strings.IndexByte(exp, 'e')+1:])
	if e < -6 || e >= prec {
		return vm.NewString(jsExponent(exp)), nil
	}
	return vm.NewString(strconv.FormatFloat(f, 'f', prec-1-e, 64)), nil
}
