// Package v8test is the embedding conformance suite. Each test drives the
// driver API the way an embedder does and reports a structured Result
// naming the first failed check.
package v8test

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/qtproject/qtjsbackend/pkg/driver"
)

const debugSuite = false

func debugPrintf(format string, args ...interface{}) {
	if debugSuite {
		fmt.Printf(format, args...)
	}
}

// Result is the outcome of one test. For a failed test File, Line and
// Expr locate the check that failed.
type Result struct {
	Name     string
	Passed   bool
	File     string
	Line     int
	Expr     string
	Duration time.Duration
}

// String renders a failure the way the suite reports it.
func (r Result) String() string {
	if r.Passed {
		return "PASS: " + r.Name
	}
	return fmt.Sprintf("FAIL: %s:%d %s", r.File, r.Line, r.Expr)
}

// Func is the body of a test.
type Func func(t *T)

// Test is a registered test.
type Test struct {
	Name string
	Fn   Func
}

var registry = []Test{
	{"externalteardown", testExternalTeardown},
	{"eval", testEval},
	{"globalcall", testGlobalCall},
	{"evalwithinwith", testEvalWithinWith},
	{"userobjectcompare", testUserObjectCompare},
	{"getcallingqmlglobal", testGetCallingQmlGlobal},
	{"typeof", testTypeof},
	{"referenceerror", testReferenceError},
	{"qtbug_24871", testQtbug24871},
}

// Tests returns the registered tests in run order.
func Tests() []Test { return slices.Clone(registry) }

// Lookup finds a test by name.
func Lookup(name string) (Test, bool) {
	for _, t := range registry {
		if t.Name == name {
			return t, true
		}
	}
	return Test{}, false
}

// T is handed to a test body. A failed Verify marks the test failed; the
// body returns right after, and the registered cleanups still run.
type T struct {
	name     string
	failed   bool
	file     string
	line     int
	expr     string
	iso      *driver.Isolate
	opts     []driver.Option
	logger   zerolog.Logger
	cleanups []func()
}

// Name returns the test name.
func (t *T) Name() string { return t.name }

// Isolate returns the entered isolate the runner created for the test.
func (t *T) Isolate() *driver.Isolate { return t.iso }

// IsolateOptions returns the options the suite creates isolates with,
// for tests that need an isolate of their own.
func (t *T) IsolateOptions() []driver.Option { return t.opts }

// Logger returns the suite logger tagged with the test name.
func (t *T) Logger() *zerolog.Logger { return &t.logger }

// Verify records a failure at the caller when ok is false. Only the first
// failure is kept. It returns ok.
func (t *T) Verify(ok bool, expr string) bool {
	if ok || t.failed {
		return ok
	}
	t.failed = true
	t.expr = expr
	if _, file, line, found := runtime.Caller(1); found {
		t.file = filepath.Base(file)
		t.line = line
	}
	t.logger.Debug().Str("file", t.file).Int("line", t.line).Str("expr", expr).Msg("check failed")
	return false
}

// Failed reports whether a check has failed.
func (t *T) Failed() bool { return t.failed }

// Cleanup registers fn to run when the test returns, in reverse order of
// registration, whether it passed or not.
func (t *T) Cleanup(fn func()) { t.cleanups = append(t.cleanups, fn) }

func (t *T) runCleanups() {
	for len(t.cleanups) > 0 {
		fn := t.cleanups[len(t.cleanups)-1]
		t.cleanups = t.cleanups[:len(t.cleanups)-1]
		fn()
	}
}

// NewContext creates a context in the test isolate, enters it and
// registers its disposal.
func (t *T) NewContext(global *driver.ObjectTemplate) (*driver.Context, bool) {
	ctx, err := t.iso.NewContext(global)
	if !t.verifyCaller(err == nil, "context creation: "+errString(err)) {
		return nil, false
	}
	t.Cleanup(func() { ctx.Dispose() })
	if !t.verifyCaller(ctx.Enter() == nil, "context.Enter() == nil") {
		return nil, false
	}
	t.Cleanup(func() { ctx.Exit() })
	return ctx, true
}

// verifyCaller is Verify attributed to the caller's caller.
func (t *T) verifyCaller(ok bool, expr string) bool {
	if ok || t.failed {
		return ok
	}
	t.failed = true
	t.expr = expr
	if _, file, line, found := runtime.Caller(2); found {
		t.file = filepath.Base(file)
		t.line = line
	}
	return false
}

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}

// Suite runs registered tests.
type Suite struct {
	// Logger receives per-test events. The zero value discards them.
	Logger zerolog.Logger
	// Isolate holds the options every test isolate is created with.
	Isolate []driver.Option
	// Include, when non-empty, selects tests by name. Exclude drops
	// tests after Include applied.
	Include []string
	Exclude []string
	// Timeout bounds a single test. Zero means no limit.
	Timeout time.Duration
}

// Selected returns the tests the suite will run.
func (s *Suite) Selected() []Test {
	var out []Test
	for _, test := range registry {
		if len(s.Include) > 0 && !slices.Contains(s.Include, test.Name) {
			continue
		}
		if slices.Contains(s.Exclude, test.Name) {
			continue
		}
		out = append(out, test)
	}
	return out
}

// Run runs the selected tests in order.
func (s *Suite) Run() []Result {
	tests := s.Selected()
	results := make([]Result, 0, len(tests))
	for _, test := range tests {
		results = append(results, s.RunTest(test))
	}
	return results
}

// RunTest runs a single test in a fresh isolate. A test that panics or
// exceeds the timeout fails with the reason in Expr.
func (s *Suite) RunTest(test Test) Result {
	start := time.Now()
	logger := s.Logger.With().Str("test", test.Name).Logger()

	ctx := context.Background()
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	// An isolate is confined to the goroutine that entered it, so the
	// whole test runs on its own goroutine. It leaks on timeout: script
	// execution cannot be interrupted.
	done := make(chan Result, 1)
	go func() {
		done <- s.runBody(test, logger)
	}()

	var res Result
	select {
	case res = <-done:
	case <-ctx.Done():
		res = Result{Name: test.Name, Expr: fmt.Sprintf("timed out after %v", s.Timeout)}
	}
	res.Duration = time.Since(start)
	logger.Debug().Bool("passed", res.Passed).Dur("duration", res.Duration).Msg("test finished")
	debugPrintf("// [v8test] %s\n", res)
	return res
}

func (s *Suite) runBody(test Test, logger zerolog.Logger) (res Result) {
	t := &T{
		name:   test.Name,
		opts:   s.isolateOptions(logger),
		logger: logger,
	}
	defer func() {
		if r := recover(); r != nil {
			t.runCleanupsSafely()
			if !t.failed {
				t.failed = true
				t.file = "<panic>"
				t.expr = fmt.Sprint(r)
			}
		}
		res = Result{Name: t.name, Passed: !t.failed, File: t.file, Line: t.line, Expr: t.expr}
	}()
	defer t.runCleanups()

	t.iso = driver.NewIsolate(t.opts...)
	if !t.Verify(t.iso.Enter() == nil, "isolate.Enter() == nil") {
		return
	}
	t.Cleanup(func() {
		t.iso.Exit()
		t.iso.Dispose()
	})
	test.Fn(t)
	return
}

// runCleanupsSafely runs what is left after a panic, ignoring further
// panics from the cleanups themselves.
func (t *T) runCleanupsSafely() {
	for len(t.cleanups) > 0 {
		fn := t.cleanups[len(t.cleanups)-1]
		t.cleanups = t.cleanups[:len(t.cleanups)-1]
		func() {
			defer func() { recover() }()
			fn()
		}()
	}
}

func (s *Suite) isolateOptions(logger zerolog.Logger) []driver.Option {
	opts := []driver.Option{driver.WithOutput(io.Discard), driver.WithLogger(logger)}
	return append(opts, s.Isolate...)
}

// Failed returns the failed results.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
