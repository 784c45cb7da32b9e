package compiler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qtproject/qtjsbackend/pkg/source"
	"github.com/qtproject/qtjsbackend/pkg/vm"
)

type testEngine struct {
	vm    *vm.VM
	realm *vm.Realm
}

func newTestEngine() *testEngine {
	machine := vm.NewVM()
	machine.SetEvalCompiler(CompileEval)
	realm := vm.NewRealm(machine)
	machine.SetRealm(realm)
	return &testEngine{vm: machine, realm: realm}
}

func (e *testEngine) run(t *testing.T, src string, qml *vm.Object) (vm.Value, error) {
	t.Helper()
	fn, errs := Compile(source.NewSourceFile("test.js", "", src), qml != nil)
	require.Empty(t, errs, "compile errors")
	return e.vm.RunScript(fn, e.realm, qml)
}

func (e *testEngine) qmlGlobal(props map[string]any) *vm.Object {
	o := e.realm.NewObject()
	for k, v := range props {
		o.Set(k, e.realm.ToValue(v))
	}
	return o
}

func TestScripts(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want any
	}{
		{"arithmetic", "1 + 2 * 3", int64(7)},
		{"compound assignment", "var x = 10; x -= 3; x", int64(7)},
		{"string concat", "'a' + 1", "a1"},
		{"object literal", "var o = {a: 1, b: 'x'}; o.a + o.b", "1x"},
		{"continue", "var s = 0; for (var i = 0; i < 10; i++) { if (i % 2) continue; s += i; } s", int64(20)},
		{"labeled loops", "var n = 0; outer: for (var i = 0; i < 5; i++) { for (var j = 0; j < 5; j++) { if (j == 2) continue outer; if (i == 3) break outer; n++; } } n", int64(6)},
		{"function call", "function f(a, b) { return a * b; } f(6, 7)", int64(42)},
		{"closure counter", "function mk() { var c = 0; return function() { return ++c; }; } var g = mk(); g(); g(); g()", int64(3)},
		{"switch fallthrough", "var r = ''; switch (2) { case 1: r += 'a'; case 2: r += 'b'; case 3: r += 'c'; break; default: r += 'd'; } r", "bc"},
		{"switch default", "var r = ''; switch (9) { case 1: r = 'a'; break; default: r = 'd'; } r", "d"},
		{"for in", "var k = []; var o = {x: 1, y: 2}; for (var p in o) k[k.length] = p; k", []any{"x", "y"}},
		{"try catch finally", "var t = 0; try { throw 5; } catch (e) { t = e; } finally { t += 1; } t", int64(6)},
		{"finally after return", "function f() { try { return 1; } finally { x = 2; } } var x = 0; f() + x", int64(3)},
		{"continue through finally", "var c = 0; for (var i = 0; i < 3; i++) { try { if (i == 1) continue; c += 10; } finally { c += 1; } } c", int64(23)},
		{"return from finally", "function f() { for (;;) { try { break; } finally { return 'fin'; } } } f()", "fin"},
		{"nested catch", "var log = ''; try { try { throw 'in'; } finally { log += 'f'; } } catch (e) { log += e; } log", "fin"},
		{"do while", "var i = 0; do { i++; } while (i < 5); i", int64(5)},
		{"array index", "var a = [1, 2, 3]; a[1] = 9; a[0] + a[1] + a[2]", int64(13)},
		{"array holes", "[1, , 3].length", int64(3)},
		{"typeof unresolvable", "typeof undefinedName", "undefined"},
		{"arguments", "(function() { return arguments.length; })(1, 2, 3)", int64(3)},
		{"named function expression", "(function f(n) { return n <= 1 ? 1 : n * f(n - 1); })(5)", int64(120)},
		{"getter", "var o = { get v() { return 7; } }; o.v", int64(7)},
		{"block let", "var x = 1; { let x = 2; } x", int64(1)},
		{"with assignment", "var o = {a: 1}; with (o) { a = 5; } o.a", int64(5)},
		{"logical operators", "1 < 2 && 'yes' || 'no'", "yes"},
		{"string length", "var s = 'abc'; s.length", int64(3)},
		{"unsigned shift", "-5 >>> 28", int64(15)},
		{"postfix value", "var i = '4'; var j = i++; j + i", int64(9)},
		{"direct eval sees locals", "(function() { var e = 1; return eval('e + 1'); })()", int64(2)},
		{"eval declares var", "(function() { eval('var z = 3'); return z; })()", int64(3)},
		{"this at top level", "var f = function() { return this; }; f() === this", true},
		{"new", "function P(v) { this.v = v; } var p = new P(4); p.v", int64(4)},
		{"method call", "var o = { n: 2, twice: function() { return this.n * 2; } }; o.twice()", int64(4)},
		{"empty script", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine()
			got, err := e.run(t, tt.src, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Export())
		})
	}
}

func TestQmlGlobalEval(t *testing.T) {
	e := newTestEngine()
	qml := e.qmlGlobal(map[string]any{"a": 1922})
	got, err := e.run(t, `eval("a")`, qml)
	require.NoError(t, err)
	assert.Equal(t, int64(1922), got.Export())
}

func TestEvalWithinWith(t *testing.T) {
	e := newTestEngine()
	qml := e.qmlGlobal(map[string]any{"a": 1922, "eval": 1922})
	fn, err := e.run(t, `(function() { var b = { c: 10 }; with (b) { return eval("a"); } })`, qml)
	require.NoError(t, err)
	require.True(t, fn.IsCallable())

	got, err := e.vm.Call(fn, vm.ObjectValue(e.realm.GlobalObject), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1922), got.Export())
}

func TestTypeofWithQmlGlobal(t *testing.T) {
	e := newTestEngine()
	qml := e.qmlGlobal(map[string]any{"a": 1})
	got, err := e.run(t, `[typeof a === 'number', typeof b === 'undefined', (function() { return typeof c === 'undefined'; })()]`, qml)
	require.NoError(t, err)
	assert.Equal(t, []any{true, true, true}, got.Export())
}

func TestReferenceError(t *testing.T) {
	e := newTestEngine()
	_, err := e.run(t, "a", e.realm.NewObject())
	require.Error(t, err)

	var exc *vm.ExceptionError
	require.ErrorAs(t, err, &exc)
	obj := exc.Value.AsObject()
	assert.Same(t, e.realm.ReferenceErrorPrototype, obj.Prototype())
	msg, _ := obj.Get("message")
	assert.Equal(t, "a is not defined", msg.ToString())
	assert.Equal(t, 1, exc.Line)
}

func TestUncaughtThrowLine(t *testing.T) {
	e := newTestEngine()
	_, err := e.run(t, "var x = 1;\n\nthrow 'boom';", nil)
	var exc *vm.ExceptionError
	require.ErrorAs(t, err, &exc)
	assert.Equal(t, "boom", exc.Value.ToString())
	assert.Equal(t, 3, exc.Line)
}

func TestManyGlobalVariables(t *testing.T) {
	e := newTestEngine()
	src := `var a1, a2, a3, a4, a5, a6, a7, a8;
var b1, b2, b3, b4, b5, b6, b7, b8;
var c1, c2, c3, c4, c5, c6, c7, c8;
var d1, d2, d3, d4, d5, d6, d7, d8;
function index(a) { return a + 1; }
function init() {
  for (var i = 0; i < 300; ++i)
    index(i);
}
init();`
	got, err := e.run(t, src, e.realm.NewObject())
	require.NoError(t, err)
	assert.True(t, got.IsUndefined())
	assert.True(t, e.realm.GlobalObject.HasOwnProperty("d8"))
}

func TestGlobalCallLoopStaysInt32(t *testing.T) {
	e := newTestEngine()
	src := `function func1() { return 1; }
function func2() {
  var sum = 0;
  for (var ii = 0; ii < 100000; ++ii) {
    sum += func1();
  }
  return sum;
}
func2();`
	got, err := e.run(t, src, nil)
	require.NoError(t, err)
	assert.True(t, got.IsInt32())
	assert.Equal(t, int32(100000), got.AsInteger())
}

func TestCompileErrors(t *testing.T) {
	_, errs := Compile(source.NewSourceFile("bad.js", "", "var = ;"), false)
	require.NotEmpty(t, errs)
	assert.Equal(t, "Syntax", errs[0].Kind())

	_, err := CompileEval("break;")
	require.Error(t, err)
}

func TestDirectEvalDetection(t *testing.T) {
	fn, errs := Compile(source.NewSourceFile("t.js", "", `eval("1"); (function() { var eval = 1; eval("x"); })`), false)
	require.Empty(t, errs)

	top := fn.Chunk.DisassembleChunk("top")
	assert.Contains(t, top, "OpDirectEval")

	require.Len(t, fn.Chunk.Functions, 1)
	inner := fn.Chunk.Functions[0].Chunk.DisassembleChunk("inner")
	assert.NotContains(t, inner, "OpDirectEval")
	assert.Contains(t, inner, "OpCall")
}

func TestEnvironmentDecision(t *testing.T) {
	src := `function plain(x) { return x; }
function captured(x) { return function() { return x; }; }
function evaluating() { eval(""); }`
	fn, errs := Compile(source.NewSourceFile("t.js", "", src), false)
	require.Empty(t, errs)
	require.Len(t, fn.Chunk.Functions, 3)

	plain, captured, evaluating := fn.Chunk.Functions[0], fn.Chunk.Functions[1], fn.Chunk.Functions[2]
	assert.False(t, plain.NeedsEnv)
	assert.Equal(t, []int{0}, plain.ParamSlots)
	assert.True(t, captured.NeedsEnv)
	assert.Equal(t, []string{"x"}, captured.SlotNames)
	assert.True(t, evaluating.NeedsEnv)
	assert.Equal(t, "captured", captured.Name)
}

func TestGlobalAccessInLoops(t *testing.T) {
	fn, errs := Compile(source.NewSourceFile("t.js", "", "for (var i = 0; i < 3; i++) {}"), true)
	require.Empty(t, errs)
	assert.True(t, fn.QmlMode)
	dis := fn.Chunk.DisassembleChunk("loop")
	assert.Contains(t, dis, "OpDeclareVar")
	assert.Contains(t, dis, "OpSetGlobal")
	assert.False(t, strings.Contains(dis, "OpGetName"), "no dynamic lookups expected:\n%s", dis)
}
