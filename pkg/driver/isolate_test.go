package driver_test

import (
	"bytes"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qtproject/qtjsbackend/pkg/driver"
)

const (
	timeout = 5 * time.Second
	tick    = 10 * time.Millisecond
)

func newSession(t *testing.T, opts ...driver.Option) *driver.Session {
	t.Helper()
	s, err := driver.NewSession(append([]driver.Option{driver.WithOutput(io.Discard)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func run(t *testing.T, ctx *driver.Context, src string) driver.Value {
	t.Helper()
	v, err := ctx.RunString(src)
	require.NoError(t, err)
	return v
}

type countingResource struct {
	disposed *atomic.Int32
	data     string
}

func (r *countingResource) Data() string { return r.data }
func (r *countingResource) Dispose()     { r.disposed.Add(1) }

func TestIsolateLifecycle(t *testing.T) {
	iso := driver.NewIsolate(driver.WithOutput(io.Discard))

	_, err := iso.NewContext(nil)
	require.ErrorIs(t, err, driver.ErrNotEntered)
	require.ErrorIs(t, iso.Exit(), driver.ErrNotEntered)

	require.NoError(t, iso.Enter())
	require.NoError(t, iso.Enter())
	require.NoError(t, iso.Exit())

	ctx, err := iso.NewContext(nil)
	require.NoError(t, err)
	assert.Nil(t, iso.GetCurrentContext())

	_, err = driver.Compile(ctx, "1", driver.ScriptOptions{})
	require.NoError(t, err)
	_, err = ctx.RunString("1")
	require.ErrorIs(t, err, driver.ErrNotEntered, "scripts run only in an entered context")

	require.NoError(t, ctx.Enter())
	assert.Same(t, ctx, iso.GetCurrentContext())
	assert.Equal(t, int64(3), run(t, ctx, "1 + 2").Export())
	require.NoError(t, ctx.Exit())
	require.ErrorIs(t, ctx.Exit(), driver.ErrNotEntered)

	require.NoError(t, ctx.Dispose())
	require.ErrorIs(t, ctx.Dispose(), driver.ErrDisposed)
	require.ErrorIs(t, ctx.Enter(), driver.ErrDisposed)

	require.NoError(t, iso.Exit())
	require.NoError(t, iso.Dispose())
	require.ErrorIs(t, iso.Enter(), driver.ErrDisposed)
	require.ErrorIs(t, iso.Dispose(), driver.ErrDisposed)
}

func TestIsolateWrongGoroutine(t *testing.T) {
	iso := driver.NewIsolate(driver.WithOutput(io.Discard))
	require.NoError(t, iso.Enter())
	defer func() {
		iso.Exit()
		iso.Dispose()
	}()

	errs := make(chan error, 3)
	go func() {
		errs <- iso.Enter()
		_, err := iso.NewContext(nil)
		errs <- err
		errs <- iso.Dispose()
	}()
	for range 3 {
		assert.ErrorIs(t, <-errs, driver.ErrWrongGoroutine)
	}
}

func TestIsolateIDs(t *testing.T) {
	s1 := newSession(t)
	s2 := newSession(t)
	assert.NotEqual(t, s1.Isolate.ID(), s2.Isolate.ID())
	assert.NotEqual(t, s1.Context.ID(), s2.Context.ID())
	assert.Len(t, s1.Isolate.ID(), 36)
}

func TestNotQmlMode(t *testing.T) {
	s := newSession(t)
	script, err := driver.Compile(s.Context, "1", driver.ScriptOptions{Name: "plain"})
	require.NoError(t, err)
	_, err = script.Run(s.Context.NewObject())
	require.ErrorIs(t, err, driver.ErrNotQmlMode)

	v, err := script.Run(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.Export())
}

func TestQmlGlobalFallback(t *testing.T) {
	s := newSession(t)
	qml := s.Context.NewObject()
	require.NoError(t, qml.Set("a", 1922))
	require.NoError(t, qml.Set("b", "qml"))

	script, err := driver.Compile(s.Context, `var b = "global"; [a, b, typeof a, typeof missing]`, driver.ScriptOptions{QmlMode: true})
	require.NoError(t, err)
	v, err := script.Run(qml)
	require.NoError(t, err)
	if diff := cmp.Diff([]any{int64(1922), "global", "number", "undefined"}, v.Export()); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}

	// without a QML global the same lookup fails
	script, err = driver.Compile(s.Context, "a", driver.ScriptOptions{QmlMode: true})
	require.NoError(t, err)
	_, err = script.Run(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ReferenceError: a is not defined")
}

func TestGetCallingQmlGlobal(t *testing.T) {
	var seen []*driver.Object
	probe := driver.NewFunctionTemplate(func(info *driver.FunctionCallbackInfo) (driver.Value, error) {
		seen = append(seen, info.Context().GetCallingQmlGlobal())
		return driver.Undefined(), nil
	})
	global := driver.NewObjectTemplate()
	global.Set("probe", probe)

	iso := driver.NewIsolate(driver.WithOutput(io.Discard))
	require.NoError(t, iso.Enter())
	defer func() {
		iso.Exit()
		iso.Dispose()
	}()
	ctx, err := iso.NewContext(global)
	require.NoError(t, err)
	require.NoError(t, ctx.Enter())
	defer ctx.Exit()

	assert.Nil(t, ctx.GetCallingQmlGlobal())

	qml := ctx.NewObject()
	script, err := driver.Compile(ctx, "probe()", driver.ScriptOptions{QmlMode: true})
	require.NoError(t, err)
	_, err = script.Run(qml)
	require.NoError(t, err)
	_, err = script.Run(nil)
	require.NoError(t, err)
	run(t, ctx, "probe()")

	require.Len(t, seen, 3)
	assert.True(t, qml.StrictEquals(seen[0]))
	assert.Nil(t, seen[1])
	assert.Nil(t, seen[2])
	assert.Nil(t, ctx.GetCallingQmlGlobal())
}

func TestNestedCallingQmlGlobal(t *testing.T) {
	iso := driver.NewIsolate(driver.WithOutput(io.Discard))
	require.NoError(t, iso.Enter())
	defer func() {
		iso.Exit()
		iso.Dispose()
	}()

	var inner *driver.Script
	var outerQml, innerQml *driver.Object
	var seen []string
	name := func(o *driver.Object) string {
		switch {
		case o == nil:
			return "nil"
		case o.StrictEquals(outerQml):
			return "outer"
		case o.StrictEquals(innerQml):
			return "inner"
		}
		return "other"
	}

	record := driver.NewFunctionTemplate(func(info *driver.FunctionCallbackInfo) (driver.Value, error) {
		seen = append(seen, info.Arg(0).ToString()+":"+name(info.Context().GetCallingQmlGlobal()))
		return driver.Undefined(), nil
	})
	nest := driver.NewFunctionTemplate(func(info *driver.FunctionCallbackInfo) (driver.Value, error) {
		c := info.Context()
		seen = append(seen, "before:"+name(c.GetCallingQmlGlobal()))
		if _, err := inner.Run(innerQml); err != nil {
			return driver.Undefined(), err
		}
		seen = append(seen, "after:"+name(c.GetCallingQmlGlobal()))
		return driver.Undefined(), nil
	})
	global := driver.NewObjectTemplate()
	global.Set("record", record)
	global.Set("nest", nest)

	ctx, err := iso.NewContext(global)
	require.NoError(t, err)
	require.NoError(t, ctx.Enter())
	defer ctx.Exit()

	outerQml = ctx.NewObject()
	innerQml = ctx.NewObject()
	inner, err = driver.Compile(ctx, `record("nested")`, driver.ScriptOptions{QmlMode: true})
	require.NoError(t, err)
	outer, err := driver.Compile(ctx, `nest(); record("end")`, driver.ScriptOptions{QmlMode: true})
	require.NoError(t, err)

	_, err = outer.Run(outerQml)
	require.NoError(t, err)
	seen = append(seen, "host:"+name(ctx.GetCallingQmlGlobal()))

	want := []string{"before:outer", "nested:inner", "after:outer", "end:outer", "host:nil"}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Errorf("calling QML globals (-want +got):\n%s", diff)
	}
}

func TestUserObjectComparison(t *testing.T) {
	s := newSession(t)
	ctx := s.Context

	tmpl := driver.NewObjectTemplate()
	tmpl.MarkAsUseUserObjectComparison()
	a, err := tmpl.NewInstance(ctx)
	require.NoError(t, err)
	b, err := tmpl.NewInstance(ctx)
	require.NoError(t, err)
	require.NoError(t, ctx.Global().Set("a", a))
	require.NoError(t, ctx.Global().Set("b", b))

	type call struct{ lhs, rhs *driver.Object }
	var calls []call
	equal := true
	s.Isolate.SetUserObjectComparisonCallback(func(lhs, rhs *driver.Object) bool {
		calls = append(calls, call{lhs, rhs})
		return equal
	})

	v := run(t, ctx, "[a == b, a != b, b == a, ({}) == ({}), a === b]")
	if diff := cmp.Diff([]any{true, false, true, false, false}, v.Export()); diff != "" {
		t.Errorf("comparison results (-want +got):\n%s", diff)
	}
	require.Len(t, calls, 3)
	assert.True(t, calls[0].lhs.StrictEquals(a))
	assert.True(t, calls[0].rhs.StrictEquals(b))
	assert.True(t, calls[2].lhs.StrictEquals(b))
	assert.Same(t, ctx, calls[0].lhs.Context())

	// the callback decides even for identical operands
	equal = false
	calls = nil
	assert.False(t, run(t, ctx, "a == a").BooleanValue())
	assert.Len(t, calls, 1)

	s.Isolate.SetUserObjectComparisonCallback(nil)
	calls = nil
	assert.True(t, run(t, ctx, "a == a && a != b").BooleanValue())
	assert.Empty(t, calls)
}

func TestUserObjectComparisonWithPrimitives(t *testing.T) {
	s := newSession(t)
	ctx := s.Context

	tmpl := driver.NewObjectTemplate()
	tmpl.MarkAsUseUserObjectComparison()
	u, err := tmpl.NewInstance(ctx)
	require.NoError(t, err)
	require.NoError(t, ctx.Global().Set("u", u))

	calls := 0
	s.Isolate.SetUserObjectComparisonCallback(func(lhs, rhs *driver.Object) bool {
		calls++
		return true
	})

	tests := []struct {
		name string
		src  string
	}{
		{"string", `u == "[object Object]"`},
		{"string lhs", `"[object Object]" == u`},
		{"valueOf", `u.valueOf = function() { return 5 }; u == 5`},
		{"valueOf lhs", `5 == u`},
		{"toString", `u.toString = function() { return "x" }; u == "x"`},
		{"null", `u == null`},
		{"undefined", `undefined == u`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, run(t, ctx, tt.src).BooleanValue())
		})
	}
	assert.True(t, run(t, ctx, `u != 5`).BooleanValue())
	assert.Zero(t, calls)

	// plain objects keep standard loose equality
	assert.True(t, run(t, ctx, `({ valueOf: function() { return 5 } }) == 5`).BooleanValue())
}

func TestObjectExternalResources(t *testing.T) {
	iso := driver.NewIsolate(driver.WithOutput(io.Discard))
	require.NoError(t, iso.Enter())
	ctx1, err := iso.NewContext(nil)
	require.NoError(t, err)
	ctx2, err := iso.NewContext(nil)
	require.NoError(t, err)

	var disposed atomic.Int32
	tmpl := driver.NewObjectTemplate()
	tmpl.SetHasExternalResource(true)
	assert.True(t, tmpl.HasExternalResource())

	o1, err := tmpl.NewInstance(ctx1)
	require.NoError(t, err)
	first := &countingResource{disposed: &disposed}
	require.NoError(t, o1.SetExternalResource(first))
	assert.Same(t, first, o1.GetExternalResource())

	// replacing a resource disposes the old one
	require.NoError(t, o1.SetExternalResource(&countingResource{disposed: &disposed}))
	assert.Equal(t, int32(1), disposed.Load())

	o2, err := tmpl.NewInstance(ctx2)
	require.NoError(t, err)
	require.NoError(t, o2.SetExternalResource(&countingResource{disposed: &disposed}))

	plain := ctx1.NewObject()
	require.ErrorIs(t, plain.SetExternalResource(&countingResource{disposed: &disposed}), driver.ErrNoExternalResourceSlot)

	require.NoError(t, ctx1.Dispose())
	assert.Equal(t, int32(2), disposed.Load())
	assert.Nil(t, o1.GetExternalResource())
	assert.NotNil(t, o2.GetExternalResource())

	require.NoError(t, iso.Exit())
	require.NoError(t, iso.Dispose())
	assert.Equal(t, int32(3), disposed.Load())
}

func TestExternalStrings(t *testing.T) {
	s := newSession(t)
	var disposed atomic.Int32

	v := s.Isolate.NewExternalString(&countingResource{disposed: &disposed, data: "external"})
	assert.True(t, v.IsString())
	assert.Equal(t, "external", v.ToString())
	assert.Equal(t, 8, v.Length())

	const n = 50
	for range n {
		s.Isolate.NewExternalString(&countingResource{disposed: &disposed, data: "x"})
	}

	require.Eventually(t, s.Isolate.IdleNotification, timeout, tick)
	assert.Equal(t, int32(n+1), disposed.Load())
}

func TestTryCatch(t *testing.T) {
	s := newSession(t)
	ctx := s.Context

	outer := driver.NewTryCatch(s.Isolate)
	defer outer.Close()
	_, err := ctx.RunString("\nthrow new TypeError('bad')")
	require.Error(t, err)
	assert.True(t, outer.HasCaught())
	assert.Equal(t, "TypeError: bad", outer.Message())
	assert.Equal(t, 2, outer.Line())
	assert.True(t, outer.Exception().IsError())

	outer.Reset()
	assert.False(t, outer.HasCaught())
	assert.Empty(t, outer.Message())

	inner := driver.NewTryCatch(s.Isolate)
	_, err = ctx.RunString("throw 'inner'")
	require.Error(t, err)
	assert.True(t, inner.HasCaught())
	assert.False(t, outer.HasCaught())
	assert.Equal(t, "inner", inner.Exception().Export())
	inner.Close()

	// caught inside the script never reaches the host
	assert.Equal(t, "x", run(t, ctx, "try { throw 'x' } catch (e) { var r = e } r").Export())
	assert.False(t, outer.HasCaught())

	// host calls into script report too
	fn := run(t, ctx, "(function () { throw new RangeError('deep') })").AsObject()
	_, err = fn.Call(nil)
	require.Error(t, err)
	assert.True(t, outer.HasCaught())
	assert.Equal(t, "RangeError: deep", outer.Message())
}

func TestFunctionTemplate(t *testing.T) {
	greet := driver.NewFunctionTemplate(func(info *driver.FunctionCallbackInfo) (driver.Value, error) {
		return info.Context().NewString("hi"), nil
	})
	widget := driver.NewFunctionTemplate(func(info *driver.FunctionCallbackInfo) (driver.Value, error) {
		if info.IsConstructCall() {
			return driver.Undefined(), info.This().AsObject().Set("n", info.Arg(0))
		}
		return info.Context().NewString("called"), nil
	})
	widget.SetClassName("Widget")
	widget.SetLength(1)
	widget.InstanceTemplate().Set("kind", "widget")
	widget.PrototypeTemplate().Set("greet", greet)

	fail := driver.NewFunctionTemplate(func(info *driver.FunctionCallbackInfo) (driver.Value, error) {
		return driver.Undefined(), errors.New("nope")
	})
	sum := driver.NewFunctionTemplate(func(info *driver.FunctionCallbackInfo) (driver.Value, error) {
		total := 0.0
		for _, a := range info.Args() {
			total += a.NumberValue()
		}
		return info.Context().ToValue(total), nil
	})

	global := driver.NewObjectTemplate()
	global.Set("Widget", widget)
	global.Set("fail", fail)
	global.Set("sum", sum)
	global.Set("version", "1.0")

	iso := driver.NewIsolate(driver.WithOutput(io.Discard))
	require.NoError(t, iso.Enter())
	defer func() {
		iso.Exit()
		iso.Dispose()
	}()
	ctx, err := iso.NewContext(global)
	require.NoError(t, err)
	require.NoError(t, ctx.Enter())
	defer ctx.Exit()

	v := run(t, ctx, `
		var w = new Widget(3);
		[w.n, w.kind, w.greet(), Widget(), w instanceof Widget, Widget.length, version]
	`)
	if diff := cmp.Diff([]any{int64(3), "widget", "hi", "called", true, int64(1), "1.0"}, v.Export()); diff != "" {
		t.Errorf("widget (-want +got):\n%s", diff)
	}

	assert.Equal(t, "nope", run(t, ctx, "try { fail() } catch (e) { var m = e.message } m").Export())
	assert.Equal(t, int64(6), run(t, ctx, "sum(1, 2, '3')").Export())

	fn, err := widget.GetFunction(ctx)
	require.NoError(t, err)
	again, err := widget.GetFunction(ctx)
	require.NoError(t, err)
	assert.True(t, fn.StrictEquals(again), "one function per context")

	obj, err := fn.NewInstance(7)
	require.NoError(t, err)
	n, err := obj.Get("n")
	require.NoError(t, err)
	assert.Equal(t, int32(7), n.Int32Value())
}

func TestValuesAndObjects(t *testing.T) {
	s := newSession(t)
	ctx := s.Context

	in := map[string]any{"list": []any{1, "two", true, nil}, "nested": map[string]any{"x": 1.5}}
	v := ctx.ToValue(in)
	require.True(t, v.IsObject())
	want := map[string]any{"list": []any{int64(1), "two", true, nil}, "nested": map[string]any{"x": 1.5}}
	if diff := cmp.Diff(want, v.Export()); diff != "" {
		t.Errorf("export (-want +got):\n%s", diff)
	}
	assert.True(t, v.Get("list").IsArray())
	assert.Equal(t, 4, v.Get("list").Length())
	assert.Equal(t, "two", v.Get("list").Get(1).ToString())

	obj := v.AsObject()
	assert.ElementsMatch(t, []string{"list", "nested"}, obj.Keys())
	assert.True(t, obj.Has("nested"))
	assert.True(t, obj.Has("toString"), "inherited")
	assert.False(t, obj.Has("missing"))
	assert.NotZero(t, obj.GetIdentityHash())
	assert.Equal(t, obj.GetIdentityHash(), obj.GetIdentityHash())

	withValueOf := run(t, ctx, "({ valueOf: function () { return 41 } })")
	assert.Equal(t, int32(41), withValueOf.Int32Value())
	assert.Equal(t, 41.0, withValueOf.NumberValue())

	assert.Equal(t, "[object Object]", run(t, ctx, "({})").ToString())
	assert.True(t, run(t, ctx, "2147483647").IsInt32())
	assert.False(t, run(t, ctx, "2147483648").IsInt32())
	assert.True(t, run(t, ctx, "true").IsTrue())
	assert.True(t, run(t, ctx, "(function () {})").IsFunction())

	add := run(t, ctx, "(function (a, b) { return this.base + a + b })").AsObject()
	res, err := add.Call(map[string]any{"base": 10}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(13), res.Export())
}

func TestIsolateLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	s, err := driver.NewSession(driver.WithOutput(io.Discard), driver.WithLogger(logger))
	require.NoError(t, err)
	_, err = s.Context.RunString("throw 'logged'")
	require.Error(t, err)
	require.NoError(t, s.Close())

	out := buf.String()
	assert.Contains(t, out, `"isolate":"`+s.Isolate.ID()+`"`)
	assert.Contains(t, out, "context created")
	assert.Contains(t, out, `"exception":"logged"`)
	assert.Contains(t, out, "isolate disposed")
}

func TestConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	s, err := driver.NewSession(driver.WithOutput(&buf))
	require.NoError(t, err)
	defer s.Close()
	run(t, s.Context, "console.log('hello', 1, [2])")
	assert.Equal(t, "hello 1 [2]\n", buf.String())
}

func TestStackDepthOption(t *testing.T) {
	s := newSession(t, driver.WithMaxCallDepth(16))
	v := run(t, s.Context, `
		function depth(n) { try { return depth(n + 1) } catch (e) { return n } }
		depth(0)
	`)
	assert.Less(t, v.Int32Value(), int32(16))
	assert.Greater(t, v.Int32Value(), int32(0))
}
