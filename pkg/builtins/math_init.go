package builtins

import (
	"math"
	"math/rand/v2"

	"github.com/qtproject/qtjsbackend/pkg/vm"
)

type MathInitializer struct{}

func (mi *MathInitializer) Name() string {
	return "Math"
}

func (mi *MathInitializer) Priority() int {
	return PriorityMath
}

func (mi *MathInitializer) InitRuntime(ctx *RuntimeContext) error {
	// Create Math object
	mathObj := vm.NewObjectOfClass(vm.ClassMath, ctx.ObjectPrototype)

	// Add constants
	defineConstant(mathObj, "E", vm.NumberValue(math.E))
	defineConstant(mathObj, "LN10", vm.NumberValue(math.Ln10))
	defineConstant(mathObj, "LN2", vm.NumberValue(math.Ln2))
	defineConstant(mathObj, "LOG10E", vm.NumberValue(math.Log10E))
	defineConstant(mathObj, "LOG2E", vm.NumberValue(math.Log2E))
	defineConstant(mathObj, "PI", vm.NumberValue(math.Pi))
	defineConstant(mathObj, "SQRT1_2", vm.NumberValue(math.Sqrt2/2))
	defineConstant(mathObj, "SQRT2", vm.NumberValue(math.Sqrt2))

	// Single-argument functions
	unary := []struct {
		name string
		fn   func(float64) float64
	}{
		{"abs", math.Abs},
		{"acos", math.Acos},
		{"asin", math.Asin},
		{"atan", math.Atan},
		{"ceil", math.Ceil},
		{"cos", math.Cos},
		{"exp", math.Exp},
		{"floor", math.Floor},
		{"log", math.Log},
		{"round", mathRound},
		{"sin", math.Sin},
		{"sqrt", math.Sqrt},
		{"tan", math.Tan},
	}
	for _, u := range unary {
		ctx.defineMethod(mathObj, u.name, 1, func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			x, err := numberArg(m, args, 0)
			if err != nil {
				return vm.Undefined, err
			}
			return vm.NumberOrInteger(u.fn(x)), nil
		})
	}

	ctx.defineMethod(mathObj, "atan2", 2, func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		y, err := numberArg(m, args, 0)
		if err != nil {
			return vm.Undefined, err
		}
		x, err := numberArg(m, args, 1)
		if err != nil {
			return vm.Undefined, err
		}
		return vm.NumberOrInteger(math.Atan2(y, x)), nil
	})
	ctx.defineMethod(mathObj, "pow", 2, func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		x, err := numberArg(m, args, 0)
		if err != nil {
			return vm.Undefined, err
		}
		y, err := numberArg(m, args, 1)
		if err != nil {
			return vm.Undefined, err
		}
		// 1 ** NaN and (-1) ** ±Infinity are NaN in script, 1 in Go
		if math.IsNaN(y) || (math.Abs(x) == 1 && math.IsInf(y, 0)) {
			return vm.NaN, nil
		}
		return vm.NumberOrInteger(math.Pow(x, y)), nil
	})
	ctx.defineMethod(mathObj, "max", 2, mathExtremum(math.Inf(-1), func(a, b float64) bool { return a > b }))
	ctx.defineMethod(mathObj, "min", 2, mathExtremum(math.Inf(1), func(a, b float64) bool { return a < b }))
	ctx.defineMethod(mathObj, "random", 0, func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		return vm.NumberValue(rand.Float64()), nil
	})

	return ctx.DefineGlobal("Math", vm.ObjectValue(mathObj))
}

// mathRound rounds half up, keeping the sign of zero results.
func mathRound(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	r := math.Floor(x + 0.5)
	if r == 0 && (x < 0 || math.Signbit(x)) {
		return math.Copysign(0, -1)
	}
	// x + 0.5 rounds up for the largest double below 0.5
	if r-x > 0.5 {
		r--
	}
	return r
}

// mathExtremum implements max and min. Any NaN argument wins, and +0 is
// preferred over -0 in max (the reverse in min).
func mathExtremum(init float64, better func(a, b float64) bool) vm.NativeFunc {
	return func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		result := init
		nan := false
		for i := range args {
			x, err := m.ToNumber(args[i])
			if err != nil {
				return vm.Undefined, err
			}
			switch {
			case math.IsNaN(x):
				nan = true
			case better(x, result):
				result = x
			case x == 0 && result == 0 && math.Signbit(result) != math.Signbit(x):
				if better(math.Copysign(1, x), math.Copysign(1, result)) {
					result = x
				}
			}
		}
		if nan {
			return vm.NaN, nil
		}
		return vm.NumberOrInteger(result), nil
	}
}
