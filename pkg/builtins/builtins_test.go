package builtins_test

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qtproject/qtjsbackend/pkg/builtins"
	"github.com/qtproject/qtjsbackend/pkg/compiler"
	"github.com/qtproject/qtjsbackend/pkg/source"
	"github.com/qtproject/qtjsbackend/pkg/vm"
)

func newRealm(t *testing.T, opts ...vm.Option) (*vm.VM, *vm.Realm) {
	t.Helper()
	machine := vm.NewVM(opts...)
	machine.SetEvalCompiler(compiler.CompileEval)
	realm := vm.NewRealm(machine)
	machine.SetRealm(realm)
	require.NoError(t, builtins.InitializeRealm(realm))
	return machine, realm
}

func run(t *testing.T, src string) (vm.Value, error) {
	t.Helper()
	machine, realm := newRealm(t)
	fn, errs := compiler.Compile(source.NewSourceFile("builtins_test.js", "", src), false)
	require.Empty(t, errs, "compile errors")
	return machine.RunScript(fn, realm, nil)
}

type scriptCase struct {
	name string
	src  string
	want any
}

func runCases(t *testing.T, tests []scriptCase) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := run(t, tt.src)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, v.Export()); diff != "" {
				t.Errorf("result mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestInitializerOrder(t *testing.T) {
	inits := builtins.GetStandardInitializers()
	require.NotEmpty(t, inits)
	assert.Equal(t, "Object", inits[0].Name())
	for i := 1; i < len(inits); i++ {
		assert.LessOrEqual(t, inits[i-1].Priority(), inits[i].Priority(), "%s before %s", inits[i-1].Name(), inits[i].Name())
	}
}

func TestInitializeRealmTwice(t *testing.T) {
	_, realm := newRealm(t)
	err := builtins.InitializeRealm(realm)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already defined")
}

func TestObject(t *testing.T) {
	runCases(t, []scriptCase{
		{"keys order", "Object.keys({b: 1, a: 2, c: 3})", []any{"b", "a", "c"}},
		{"hasOwnProperty", "var o = {x: 1}; [o.hasOwnProperty('x'), o.hasOwnProperty('toString')]", []any{true, false}},
		{"toString tag", "[Object.prototype.toString.call([]), Object.prototype.toString.call(null)]", []any{"[object Array]", "[object Null]"}},
		{"create", "var p = {greet: 'hi'}; var o = Object.create(p); [o.greet, Object.getPrototypeOf(o) === p]", []any{"hi", true}},
		{"defineProperty readonly", "var o = {}; Object.defineProperty(o, 'x', {value: 1}); o.x = 2; [o.x, Object.keys(o).length]", []any{int64(1), int64(0)}},
		{"defineProperty getter", "var o = {}; Object.defineProperty(o, 'v', {get: function() { return 42; }}); o.v", int64(42)},
		{"descriptor", "var d = Object.getOwnPropertyDescriptor({a: 1}, 'a'); [d.value, d.writable, d.enumerable, d.configurable]", []any{int64(1), true, true, true}},
		{"freeze", "var o = Object.freeze({a: 1}); o.a = 2; [o.a, Object.isFrozen(o), Object.isExtensible(o)]", []any{int64(1), true, false}},
		{"isPrototypeOf", "Object.prototype.isPrototypeOf({})", true},
		{"propertyIsEnumerable", "[].propertyIsEnumerable('length')", false},
	})
}

func TestDefinePropertyNonConfigurable(t *testing.T) {
	_, err := run(t, "var o = {}; Object.defineProperty(o, 'x', {value: 1}); Object.defineProperty(o, 'x', {value: 2});")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TypeError")
}

func TestFunction(t *testing.T) {
	runCases(t, []scriptCase{
		{"call", "function f(a) { return this.v + a; } f.call({v: 1}, 2)", int64(3)},
		{"apply", "Math.max.apply(null, [3, 9, 4])", int64(9)},
		{"bind partial", "function add(a, b) { return a + b; } var inc = add.bind(null, 1); inc(41)", int64(42)},
		{"constructor", "new Function('a', 'b', 'return a * b')(6, 7)", int64(42)},
		{"toString source", "(function foo() { return 1; }).toString()", "function foo() { return 1; }"},
		{"length", "(function(a, b, c) {}).length", int64(3)},
	})
}

func TestArray(t *testing.T) {
	runCases(t, []scriptCase{
		{"push pop", "var a = [1]; a.push(2, 3); var p = a.pop(); [a.length, p]", []any{int64(2), int64(3)}},
		{"join nested", "[1, [2, 3], null, undefined].join('-')", "1-2,3--"},
		{"join cycle", "var a = [1]; a.push(a); a.join()", "1,"},
		{"slice negative", "[1, 2, 3, 4].slice(-2)", []any{int64(3), int64(4)}},
		{"splice", "var a = [1, 2, 3, 4]; var r = a.splice(1, 2, 'x'); [a, r]", []any{[]any{int64(1), "x", int64(4)}, []any{int64(2), int64(3)}}},
		{"concat", "[1].concat([2, 3], 4)", []any{int64(1), int64(2), int64(3), int64(4)}},
		{"reverse", "[1, 2, 3].reverse()", []any{int64(3), int64(2), int64(1)}},
		{"indexOf", "[1, 2, 3, 2].indexOf(2) + [1, 2, 3, 2].lastIndexOf(2)", int64(4)},
		{"sort default", "[10, 9, 1, undefined, 100].sort()", []any{int64(1), int64(10), int64(100), int64(9), nil}},
		{"sort comparator", "[3, 1, 2].sort(function(a, b) { return b - a; })", []any{int64(3), int64(2), int64(1)}},
		{"map filter", "[1, 2, 3, 4].map(function(x) { return x * x; }).filter(function(x) { return x % 2 == 0; })", []any{int64(4), int64(16)}},
		{"some every", "[[1, 2].some(function(x) { return x > 1; }), [1, 2].every(function(x) { return x > 1; })]", []any{true, false}},
		{"reduce", "[1, 2, 3].reduce(function(a, b) { return a + b; })", int64(6)},
		{"reduceRight", "['a', 'b', 'c'].reduceRight(function(a, b) { return a + b; }, '')", "cba"},
		{"shift unshift", "var a = [2, 3]; a.unshift(1); a.shift(); a", []any{int64(2), int64(3)}},
		{"constructor length", "new Array(3).length", int64(3)},
		{"isArray", "[Array.isArray([]), Array.isArray({length: 0})]", []any{true, false}},
		{"forEach this", "var o = {n: 0}; [1, 2].forEach(function(x) { this.n += x; }, o); o.n", int64(3)},
	})
}

func TestArrayInvalidLength(t *testing.T) {
	_, err := run(t, "new Array(-1)")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RangeError: Invalid array length")
}

func TestErrors(t *testing.T) {
	runCases(t, []scriptCase{
		{"toString", "new TypeError('bad').toString()", "TypeError: bad"},
		{"empty message", "String(new Error())", "Error"},
		{"instanceof", "var e = new RangeError('r'); [e instanceof RangeError, e instanceof Error]", []any{true, true}},
		{"call without new", "Error('x').message", "x"},
		{"caught reference error", "var r; try { missing; } catch (e) { r = e.name + ': ' + e.message; } r", "ReferenceError: missing is not defined"},
	})
}

func TestGlobals(t *testing.T) {
	runCases(t, []scriptCase{
		{"parseInt", "[parseInt('42px'), parseInt('0x1f'), parseInt('11', 2), parseInt('  -7')]", []any{int64(42), int64(31), int64(3), int64(-7)}},
		{"parseInt NaN", "isNaN(parseInt('abc'))", true},
		{"parseFloat", "parseFloat('3.5e2xyz')", int64(350)},
		{"isFinite", "[isFinite(1), isFinite(Infinity), isFinite('12')]", []any{true, false, true}},
		{"encodeURIComponent", "encodeURIComponent('a b&c/ü')", "a%20b%26c%2F%C3%BC"},
		{"encodeURI keeps reserved", "encodeURI('http://x.org/a b?q=1')", "http://x.org/a%20b?q=1"},
		{"decodeURIComponent", "decodeURIComponent('a%20b%26c%2F%C3%BC')", "a b&c/ü"},
		{"decodeURI keeps reserved", "decodeURI('%2F%20')", "%2F "},
		{"indirect eval is global", "var x = 'global'; (function() { var x = 'local'; var e = eval; return e('x'); })()", "global"},
		{"eval non-string", "eval(5)", int64(5)},
	})
}

func TestMalformedURI(t *testing.T) {
	_, err := run(t, "decodeURIComponent('%E0%A4%A')")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "URIError: URI malformed")
}

func TestString(t *testing.T) {
	runCases(t, []scriptCase{
		{"charAt", "'hello'.charAt(1) + 'hello'.charCodeAt(0)", "e104"},
		{"indexOf", "['banana'.indexOf('an'), 'banana'.lastIndexOf('an'), 'banana'.indexOf('x')]", []any{int64(1), int64(3), int64(-1)}},
		{"substring swaps", "'abcdef'.substring(4, 1)", "bcd"},
		{"substr", "'abcdef'.substr(-3, 2)", "de"},
		{"slice", "'abcdef'.slice(1, -1)", "bcde"},
		{"case", "'MiXeD'.toUpperCase() + 'MiXeD'.toLowerCase()", "MIXEDmixed"},
		{"trim", "'  \\t pad \\n'.trim()", "pad"},
		{"split string", "'a,b,,c'.split(',')", []any{"a", "b", "", "c"}},
		{"split limit", "'a,b,c'.split(',', 2)", []any{"a", "b"}},
		{"split regexp", "'a1b22c'.split(/\\d+/)", []any{"a", "b", "c"}},
		{"split empty", "'abc'.split('')", []any{"a", "b", "c"}},
		{"replace string", "'aaa'.replace('a', 'b')", "baa"},
		{"replace global", "'a-b-c'.replace(/-/g, '+')", "a+b+c"},
		{"replace groups", "'John Smith'.replace(/(\\w+)\\s(\\w+)/, '$2, $1')", "Smith, John"},
		{"replace function", "'abc'.replace(/b/, function(m, i) { return m.toUpperCase() + i; })", "aB1c"},
		{"match global", "'a1b2c3'.match(/\\d/g)", []any{"1", "2", "3"}},
		{"match groups", "'key=value'.match(/(\\w+)=(\\w+)/).slice(1)", []any{"key", "value"}},
		{"search", "'hello world'.search(/o\\sw/)", int64(4)},
		{"fromCharCode", "String.fromCharCode(72, 105)", "Hi"},
		{"utf16 length", "'😀'.length", int64(2)},
		{"localeCompare", "['a'.localeCompare('b'), 'b'.localeCompare('a'), 'a'.localeCompare('a')]", []any{int64(-1), int64(1), int64(0)}},
		{"normalize", "'\\u0041\\u030a'.normalize('NFC') === '\\u00c5'", true},
		{"wrapper", "typeof new String('x')", "object"},
		{"concat", "'a'.concat(1, null)", "a1null"},
	})
}

func TestNormalizeBadForm(t *testing.T) {
	_, err := run(t, "'a'.normalize('NFX')")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RangeError")
}

func TestNumber(t *testing.T) {
	runCases(t, []scriptCase{
		{"toString radix", "[(255).toString(16), (255).toString(2), (-8).toString(8)]", []any{"ff", "11111111", "-10"}},
		{"fraction radix", "(0.5).toString(2)", "0.1"},
		{"toFixed", "[(1.005).toFixed(2), (3).toFixed(2), (1e21).toFixed(2)]", []any{"1.00", "3.00", "1e+21"}},
		{"toExponential", "[(123456).toExponential(2), (0.00015).toExponential()]", []any{"1.23e+5", "1.5e-4"}},
		{"toPrecision", "[(123.456).toPrecision(4), (0.000123).toPrecision(2), (123456).toPrecision(2)]", []any{"123.5", "0.00012", "1.2e+5"}},
		{"toLocaleString", "(1234567.891).toLocaleString()", "1,234,567.891"},
		{"constants", "[Number.MAX_VALUE > 1e308, isNaN(Number.NaN), Number.NEGATIVE_INFINITY < 0]", []any{true, true, true}},
		{"call converts", "Number('  12  ') + Number(true)", int64(13)},
		{"boolean", "[Boolean(''), Boolean('0'), new Boolean(false).valueOf(), true.toString()]", []any{false, true, false, "true"}},
	})
}

func TestNumberRangeErrors(t *testing.T) {
	for _, src := range []string{"(1).toString(1)", "(1).toFixed(21)", "(1).toPrecision(0)", "(1).toExponential(-1)"} {
		t.Run(src, func(t *testing.T) {
			_, err := run(t, src)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "RangeError")
		})
	}
}

func TestMath(t *testing.T) {
	runCases(t, []scriptCase{
		{"round", "[Math.round(2.5), Math.round(-2.5), Math.round(0.49999999999999994)]", []any{int64(3), int64(-2), int64(0)}},
		{"negative zero round", "1 / Math.round(-0.2)", math.Inf(-1)},
		{"max min", "[Math.max(1, 3, 2), Math.min(1, 3, 2), Math.max()]", []any{int64(3), int64(1), math.Inf(-1)}},
		{"max NaN", "isNaN(Math.max(1, NaN, 3))", true},
		{"pow", "[Math.pow(2, 10), isNaN(Math.pow(1, Infinity))]", []any{int64(1024), true}},
		{"floor ceil", "[Math.floor(-1.5), Math.ceil(-1.5)]", []any{int64(-2), int64(-1)}},
		{"random range", "var r = Math.random(); r >= 0 && r < 1", true},
		{"constants readonly", "Math.PI = 3; Math.PI > 3.14", true},
	})
}

func TestJSON(t *testing.T) {
	runCases(t, []scriptCase{
		{"parse order", "Object.keys(JSON.parse('{\"b\": 1, \"a\": [true, null, 2.5]}'))", []any{"b", "a"}},
		{"parse nested", "JSON.parse('{\"a\": [true, null, 2.5]}').a", []any{true, nil, 2.5}},
		{"reviver", "JSON.parse('{\"a\": 1, \"b\": 2}', function(k, v) { return k === 'a' ? undefined : v; })", map[string]any{"b": int64(2)}},
		{"stringify", "JSON.stringify({a: [1, 'x', null], b: undefined, c: function() {}})", `{"a":[1,"x",null]}`},
		{"stringify indent", "JSON.stringify({a: [1]}, null, 2)", "{\n  \"a\": [\n    1\n  ]\n}"},
		{"stringify replacer list", "JSON.stringify({a: 1, b: 2, c: 3}, ['c', 'a'])", `{"c":3,"a":1}`},
		{"stringify replacer fn", "JSON.stringify({a: 1, b: 'x'}, function(k, v) { return typeof v === 'number' ? v * 10 : v; })", `{"a":10,"b":"x"}`},
		{"toJSON", "JSON.stringify({d: {toJSON: function() { return 'D'; }}})", `{"d":"D"}`},
		{"non finite", "JSON.stringify([NaN, Infinity])", "[null,null]"},
		{"escapes", "JSON.stringify('a\"b\\n\\u0001')", `"a\"b\n\u0001"`},
		{"wrappers", "JSON.stringify([new Number(1), new String('s'), new Boolean(true)])", `[1,"s",true]`},
		{"undefined top level", "typeof JSON.stringify(undefined)", "undefined"},
	})
}

func TestJSONErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"JSON.parse('{')", "SyntaxError"},
		{"JSON.parse('[1,]')", "SyntaxError"},
		{"JSON.parse('1 2')", "SyntaxError"},
		{"var a = []; a.push(a); JSON.stringify(a)", "TypeError: Converting circular structure to JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, err := run(t, tt.src)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRegExp(t *testing.T) {
	runCases(t, []scriptCase{
		{"test", "/ab+c/i.test('xABBCx')", true},
		{"exec index", "var m = /(\\d+)-(\\d+)/.exec('tel 12-34'); [m.index, m[1], m[2]]", []any{int64(4), "12", "34"}},
		{"global lastIndex", "var r = /a/g; r.exec('aa'); r.exec('aa'); r.lastIndex", int64(2)},
		{"exec miss resets", "var r = /a/g; r.lastIndex = 5; [r.exec('aa'), r.lastIndex]", []any{nil, int64(0)}},
		{"flags", "var r = new RegExp('x', 'gim'); [r.source, r.global, r.ignoreCase, r.multiline]", []any{"x", true, true, true}},
		{"toString", "String(new RegExp('a.b', 'g'))", "/a.b/g"},
		{"empty pattern", "new RegExp('').source", "(?:)"},
		{"unmatched group", "/(a)|(b)/.exec('b')[1]", nil},
	})
}

func TestRegExpBadFlags(t *testing.T) {
	_, err := run(t, "new RegExp('a', 'gg')")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SyntaxError")
}

func TestConsole(t *testing.T) {
	var out bytes.Buffer
	machine, realm := newRealm(t, vm.WithOutput(&out))
	src := "console.log('plain', 1, [1, 'a'], {k: null}); console.warn('w'); console.timeEnd('none');"
	fn, errs := compiler.Compile(source.NewSourceFile("console.js", "", src), false)
	require.Empty(t, errs)
	_, err := machine.RunScript(fn, realm, nil)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	want := []string{
		`plain 1 [1, "a"] { k: null }`,
		"w",
		"Warning: No such label 'none' for console.timeEnd()",
	}
	if diff := cmp.Diff(want, lines); diff != "" {
		t.Errorf("console output mismatch (-want +got):\n%s", diff)
	}
}
