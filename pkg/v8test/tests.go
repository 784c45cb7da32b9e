package v8test

import (
	"sync/atomic"

	"github.com/qtproject/qtjsbackend/pkg/driver"
)

type stringResource struct{ destroyed *atomic.Bool }

func (r *stringResource) Data() string { return "v8test" }
func (r *stringResource) Dispose()     { r.destroyed.Store(true) }

type objectResource struct{ destroyed *atomic.Bool }

func (r *objectResource) Dispose() { r.destroyed.Store(true) }

// compileQml compiles src in QML mode for ctx.
func compileQml(t *T, ctx *driver.Context, src string) (*driver.Script, bool) {
	s, err := driver.Compile(ctx, src, driver.ScriptOptions{Name: t.Name(), QmlMode: true})
	if !t.verifyCaller(err == nil, "compile: "+errString(err)) {
		return nil, false
	}
	return s, true
}

// testExternalTeardown checks that disposing an isolate disposes every
// object resource. String resources are only reported: their disposal
// follows the garbage collector.
func testExternalTeardown(t *T) {
	var stringDestroyed, objectDestroyed atomic.Bool

	iso := driver.NewIsolate(t.IsolateOptions()...)
	if !t.Verify(iso.Enter() == nil, "iso.Enter() == nil") {
		return
	}

	func() {
		ctx, err := iso.NewContext(nil)
		if !t.Verify(err == nil, "iso.NewContext(nil)") {
			return
		}
		defer ctx.Dispose()
		if !t.Verify(ctx.Enter() == nil, "ctx.Enter() == nil") {
			return
		}

		iso.NewExternalString(&stringResource{destroyed: &stringDestroyed})

		ft := driver.NewFunctionTemplate(nil)
		ft.InstanceTemplate().SetHasExternalResource(true)
		fn, err := ft.GetFunction(ctx)
		if !t.Verify(err == nil, "ft.GetFunction(ctx)") {
			return
		}
		obj, err := fn.NewInstance()
		if !t.Verify(err == nil, "fn.NewInstance()") {
			return
		}
		t.Verify(obj.SetExternalResource(&objectResource{destroyed: &objectDestroyed}) == nil,
			"obj.SetExternalResource(new MyResource)")
	}()

	if !t.Verify(iso.Exit() == nil, "iso.Exit() == nil") ||
		!t.Verify(iso.Dispose() == nil, "iso.Dispose() == nil") {
		return
	}

	t.Logger().Debug().Bool("string_destroyed", stringDestroyed.Load()).Msg("external string after teardown")
	t.Verify(objectDestroyed.Load(), "MyResource::wasDestroyed")
}

func testEval(t *T) {
	ctx, ok := t.NewContext(nil)
	if !ok {
		return
	}
	qmlglobal := ctx.NewObject()
	if !t.Verify(qmlglobal.Set("a", 1922) == nil, `qmlglobal.Set("a", 1922)`) {
		return
	}
	script, ok := compileQml(t, ctx, `eval("a")`)
	if !ok {
		return
	}

	tc := driver.NewTryCatch(t.Isolate())
	defer tc.Close()
	result, _ := script.Run(qmlglobal)

	if !t.Verify(!tc.HasCaught(), "!tc.HasCaught()") {
		return
	}
	t.Verify(result.Int32Value() == 1922, "result->Int32Value() == 1922")
}

func testGlobalCall(t *T) {
	ctx, ok := t.NewContext(nil)
	if !ok {
		return
	}
	qmlglobal := ctx.NewObject()

	const source = "function func1() { return 1; }\n" +
		"function func2() { var sum = 0; for (var ii = 0; ii < 10000000; ++ii) { sum += func1(); } return sum; }\n" +
		"func2();"
	script, ok := compileQml(t, ctx, source)
	if !ok {
		return
	}
	result, err := script.Run(qmlglobal)
	if !t.Verify(err == nil, "!result.IsEmpty()") {
		return
	}
	if !t.Verify(result.IsInt32(), "result->IsInt32()") {
		return
	}
	t.Verify(result.Int32Value() == 10000000, "result->Int32Value() == 10000000")
}

func testEvalWithinWith(t *T) {
	ctx, ok := t.NewContext(nil)
	if !ok {
		return
	}
	qmlglobal := ctx.NewObject()
	// an "eval" property on the QML global must not capture eval calls
	if !t.Verify(qmlglobal.Set("a", 1922) == nil, `qmlglobal.Set("a", 1922)`) ||
		!t.Verify(qmlglobal.Set("eval", 1922) == nil, `qmlglobal.Set("eval", 1922)`) {
		return
	}

	const source = "(function() { " +
		"    var b = { c: 10 }; " +
		"    with (b) { " +
		"        return eval(\"a\"); " +
		"    } " +
		"})"
	script, ok := compileQml(t, ctx, source)
	if !ok {
		return
	}

	tc := driver.NewTryCatch(t.Isolate())
	defer tc.Close()
	result, _ := script.Run(qmlglobal)

	if !t.Verify(!tc.HasCaught(), "!tc.HasCaught()") {
		return
	}
	if !t.Verify(result.IsFunction(), "result->IsFunction()") {
		return
	}
	fresult, _ := result.AsObject().Call(ctx.Global())
	if !t.Verify(!tc.HasCaught(), "!tc.HasCaught()") {
		return
	}
	t.Verify(fresult.Int32Value() == 1922, "fresult->Int32Value() == 1922")
}

func testUserObjectCompare(t *T) {
	ctx, ok := t.NewContext(nil)
	if !ok {
		return
	}
	iso := t.Isolate()

	var (
		called       int
		verdict      bool
		expectedLhs  *driver.Object
		expectedRhs  *driver.Object
		expectedSeen bool
	)
	iso.SetUserObjectComparisonCallback(func(lhs, rhs *driver.Object) bool {
		called++
		expectedSeen = lhs.StrictEquals(expectedLhs) && rhs.StrictEquals(expectedRhs)
		return verdict
	})
	t.Cleanup(func() { iso.SetUserObjectComparisonCallback(nil) })
	expect := func(lhs, rhs *driver.Object) {
		expectedSeen = false
		expectedLhs, expectedRhs = lhs, rhs
	}

	ot := driver.NewObjectTemplate()
	ot.MarkAsUseUserObjectComparison()
	uoc1, err := ot.NewInstance(ctx)
	if !t.Verify(err == nil, "ot->NewInstance()") {
		return
	}
	uoc2, err := ot.NewInstance(ctx)
	if !t.Verify(err == nil, "ot->NewInstance()") {
		return
	}
	obj1 := ctx.NewObject()
	global := ctx.Global()
	for name, v := range map[string]any{
		"uoc1a":    uoc1,
		"uoc1b":    uoc1,
		"uoc2":     uoc2,
		"obj1a":    obj1,
		"obj1b":    obj1,
		"obj2":     ctx.NewObject(),
		"string1a": "Hello World",
		"string1b": "Hello World",
		"string2":  "Goodbye World",
	} {
		if !t.Verify(global.Set(name, v) == nil, "context->Global()->Set("+name+")") {
			return
		}
	}

	runscript := func(src string) bool {
		v, err := ctx.RunString(src)
		return err == nil && v.BooleanValue()
	}

	// Comparing two uoc objects invokes uoc
	called, verdict = 0, false
	if !t.Verify(false == runscript("uoc1a == uoc2"), `false == runscript("uoc1a == uoc2")`) ||
		!t.Verify(called == 1, "userObjectComparisonCalled == 1") ||
		!t.Verify(false == runscript("uoc2 == uoc1a"), `false == runscript("uoc2 == uoc1a")`) ||
		!t.Verify(called == 2, "userObjectComparisonCalled == 2") {
		return
	}
	verdict = true
	if !t.Verify(true == runscript("uoc1a == uoc2"), `true == runscript("uoc1a == uoc2")`) ||
		!t.Verify(called == 3, "userObjectComparisonCalled == 3") ||
		!t.Verify(true == runscript("uoc2 == uoc1a"), `true == runscript("uoc2 == uoc1a")`) ||
		!t.Verify(called == 4, "userObjectComparisonCalled == 4") {
		return
	}

	// != on two uoc object invokes uoc
	called, verdict = 0, false
	if !t.Verify(true == runscript("uoc1a != uoc2"), `true == runscript("uoc1a != uoc2")`) ||
		!t.Verify(called == 1, "userObjectComparisonCalled == 1") ||
		!t.Verify(true == runscript("uoc2 != uoc1a"), `true == runscript("uoc2 != uoc1a")`) ||
		!t.Verify(called == 2, "userObjectComparisonCalled == 2") {
		return
	}
	verdict = true
	if !t.Verify(false == runscript("uoc1a != uoc2"), `false == runscript("uoc1a != uoc2")`) ||
		!t.Verify(called == 3, "userObjectComparisonCalled == 3") ||
		!t.Verify(false == runscript("uoc2 != uoc1a"), `false == runscript("uoc2 != uoc1a")`) ||
		!t.Verify(called == 4, "userObjectComparisonCalled == 4") {
		return
	}

	// Comparison against a non-object doesn't invoke uoc
	called, verdict = 0, false
	for _, c := range []struct {
		src  string
		want bool
	}{
		{"uoc1a == string1a", false},
		{"string1a == uoc1a", false},
		{"2 == uoc1a", false},
		{"uoc1a != string1a", true},
		{"string1a != uoc1a", true},
		{"2 != uoc1a", true},
	} {
		if !t.Verify(c.want == runscript(c.src), "runscript(\""+c.src+"\")") ||
			!t.Verify(called == 0, "userObjectComparisonCalled == 0") {
			return
		}
	}

	// Comparison against a non-uoc-object still invokes uoc
	called, verdict = 0, false
	if !t.Verify(false == runscript("uoc1a == obj1a"), `false == runscript("uoc1a == obj1a")`) ||
		!t.Verify(called == 1, "userObjectComparisonCalled == 1") ||
		!t.Verify(false == runscript("obj1a == uoc1a"), `false == runscript("obj1a == uoc1a")`) ||
		!t.Verify(called == 2, "userObjectComparisonCalled == 2") {
		return
	}
	verdict = true
	if !t.Verify(true == runscript("uoc1a == obj1a"), `true == runscript("uoc1a == obj1a")`) ||
		!t.Verify(called == 3, "userObjectComparisonCalled == 3") ||
		!t.Verify(true == runscript("obj1a == uoc1a"), `true == runscript("obj1a == uoc1a")`) ||
		!t.Verify(called == 4, "userObjectComparisonCalled == 4") {
		return
	}

	// != comparison against a non-uoc-object still invokes uoc
	called, verdict = 0, false
	if !t.Verify(true == runscript("uoc1a != obj1a"), `true == runscript("uoc1a != obj1a")`) ||
		!t.Verify(called == 1, "userObjectComparisonCalled == 1") ||
		!t.Verify(true == runscript("obj1a != uoc1a"), `true == runscript("obj1a != uoc1a")`) ||
		!t.Verify(called == 2, "userObjectComparisonCalled == 2") {
		return
	}
	verdict = true
	if !t.Verify(false == runscript("uoc1a != obj1a"), `false == runscript("uoc1a != obj1a")`) ||
		!t.Verify(called == 3, "userObjectComparisonCalled == 3") ||
		!t.Verify(false == runscript("obj1a != uoc1a"), `false == runscript("obj1a != uoc1a")`) ||
		!t.Verify(called == 4, "userObjectComparisonCalled == 4") {
		return
	}

	// Comparing two non-uoc objects does not invoke uoc
	called, verdict = 0, false
	for _, c := range []struct {
		src  string
		want bool
	}{
		{"obj1a == obj1a", true},
		{"obj1a == obj1b", true},
		{"obj1a == obj2", false},
		{"obj1a == string1a", false},
		{"string1a == string1a", true},
		{"string1a == string1b", true},
		{"string1a == string2", false},
	} {
		if !t.Verify(c.want == runscript(c.src), "runscript(\""+c.src+"\")") {
			return
		}
	}
	if !t.Verify(called == 0, "userObjectComparisonCalled == 0") {
		return
	}

	// Correct lhs and rhs passed to uoc
	called, verdict = 0, false
	for _, c := range []struct {
		lhs, rhs *driver.Object
		src      string
		want     bool
	}{
		{uoc1, uoc2, "uoc1a == uoc2", false},
		{uoc2, uoc1, "uoc2 == uoc1a", false},
		{uoc1, uoc2, "uoc1a != uoc2", true},
		{uoc2, uoc1, "uoc2 != uoc1a", true},
		{uoc1, obj1, "uoc1a == obj1a", false},
		{obj1, uoc1, "obj1a == uoc1a", false},
	} {
		expect(c.lhs, c.rhs)
		if !t.Verify(c.want == runscript(c.src), "runscript(\""+c.src+"\")") ||
			!t.Verify(expectedSeen, "true == expectedObjectsCompared") {
			return
		}
	}
}

const (
	qmlVarName  = "tipli"
	qmlVarValue = 28
)

// checkQMLGlobal returns the identity hash of the calling QML global plus
// its tipli property, or 0 without a QML global.
func checkQMLGlobal(info *driver.FunctionCallbackInfo) (driver.Value, error) {
	ctx := info.Context()
	qmlglobal := ctx.GetCallingQmlGlobal()
	if qmlglobal == nil {
		return ctx.ToValue(0), nil
	}
	hash := qmlglobal.GetIdentityHash()
	v, err := qmlglobal.Get(qmlVarName)
	if err != nil {
		return driver.Undefined(), err
	}
	return ctx.ToValue(hash + v.Int32Value()), nil
}

func testGetCallingQmlGlobal(t *T) {
	global := driver.NewObjectTemplate()
	global.Set("checkQMLGlobal", driver.NewFunctionTemplate(checkQMLGlobal))

	ctx, ok := t.NewContext(global)
	if !ok {
		return
	}
	qmlglobal := ctx.NewObject()
	if !t.Verify(qmlglobal.Set(qmlVarName, qmlVarValue) == nil, "qmlglobal->Set(VARNAME, VARVALUE)") {
		return
	}
	hash1 := qmlglobal.GetIdentityHash()

	script, ok := compileQml(t, ctx, "(function test() { return checkQMLGlobal(); })")
	if !ok {
		return
	}
	result, err := script.Run(qmlglobal)
	if !t.Verify(err == nil && result.IsFunction(), "result->IsFunction()") {
		return
	}
	fn := result.AsObject()
	ret, err := fn.Call(fn)
	if !t.Verify(err == nil, "v8function->Call(v8function, 0, 0)") {
		return
	}
	hash2 := ret.Int32Value()
	if !t.Verify(hash2 != 0, "hash2") ||
		!t.Verify(hash1 == hash2-qmlVarValue, "hash1 == (hash2 - VARVALUE)") {
		return
	}

	t.Verify(ctx.GetCallingQmlGlobal() == nil, "qmlglobal.IsEmpty()")
}

func testTypeof(t *T) {
	ctx, ok := t.NewContext(nil)
	if !ok {
		return
	}
	qmlglobal := ctx.NewObject()
	if !t.Verify(qmlglobal.Set("a", 123) == nil, `qmlglobal->Set("a", 123)`) {
		return
	}

	script, ok := compileQml(t, ctx, "["+
		"typeof a === 'number', "+
		"typeof b === 'undefined', "+
		"(function() { return typeof c === 'undefined'; })()"+
		"]")
	if !ok {
		return
	}

	tc := driver.NewTryCatch(t.Isolate())
	defer tc.Close()
	result, _ := script.Run(qmlglobal)

	if !t.Verify(!tc.HasCaught(), "!tc.HasCaught()") ||
		!t.Verify(result.IsArray(), "result->IsArray()") ||
		!t.Verify(result.Length() == 3, "v8::Array::Cast(*result)->Length() == 3") ||
		!t.Verify(result.Get(0).IsTrue(), "v8::Array::Cast(*result)->Get(0)->IsTrue()") ||
		!t.Verify(result.Get(1).IsTrue(), "v8::Array::Cast(*result)->Get(1)->IsTrue()") {
		return
	}
	t.Verify(result.Get(2).IsTrue(), "v8::Array::Cast(*result)->Get(2)->IsTrue()")
}

func testReferenceError(t *T) {
	ctx, ok := t.NewContext(nil)
	if !ok {
		return
	}
	qmlglobal := ctx.NewObject()

	script, ok := compileQml(t, ctx, "a")
	if !ok {
		return
	}

	tc := driver.NewTryCatch(t.Isolate())
	defer tc.Close()
	_, err := script.Run(qmlglobal)

	if !t.Verify(tc.HasCaught(), "tc.HasCaught()") ||
		!t.Verify(err != nil, "result.IsEmpty()") ||
		!t.Verify(tc.Exception().IsError(), "tc.Exception()->IsError()") {
		return
	}
	t.Verify(tc.Exception().ToString() == "ReferenceError: a is not defined",
		`tc.Exception()->ToString()->Equals(v8::String::New("ReferenceError: a is not defined"))`)
}

// testQtbug24871 declares more globals than fit in fast properties and
// then runs a loop calling a global function.
func testQtbug24871(t *T) {
	ctx, ok := t.NewContext(nil)
	if !ok {
		return
	}
	qmlglobal := ctx.NewObject()

	script, ok := compileQml(t, ctx, ""+
		"var a1, a2, a3, a4, a5, a6, a7, a8;\n"+
		"var b1, b2, b3, b4, b5, b6, b7, b8;\n"+
		"var c1, c2, c3, c4, c5, c6, c7, c8;\n"+
		"var d1, d2, d3, d4, d5, d6, d7, d8;\n"+
		"function index(a) { return a + 1; }\n"+
		"function init() {\n"+
		"  for (var i = 0; i < 300; ++i)\n"+
		"    index(i);\n"+
		"}\n"+
		"init();")
	if !ok {
		return
	}

	tc := driver.NewTryCatch(t.Isolate())
	defer tc.Close()
	result, _ := script.Run(qmlglobal)

	if !t.Verify(!tc.HasCaught(), "!tc.HasCaught()") {
		return
	}
	t.Verify(result.IsUndefined(), "result->IsUndefined()")
}
