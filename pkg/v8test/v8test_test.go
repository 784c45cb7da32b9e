package v8test

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qtproject/qtjsbackend/pkg/driver"
)

func TestSuite(t *testing.T) {
	s := &Suite{}
	if testing.Short() {
		s.Exclude = []string{"globalcall"}
	}
	for _, test := range s.Selected() {
		t.Run(test.Name, func(t *testing.T) {
			res := s.RunTest(test)
			assert.Equal(t, test.Name, res.Name)
			assert.True(t, res.Passed, "%s", res)
		})
	}
}

func TestRegistry(t *testing.T) {
	var names []string
	for _, test := range Tests() {
		names = append(names, test.Name)
	}
	assert.Equal(t, []string{
		"externalteardown", "eval", "globalcall", "evalwithinwith", "userobjectcompare",
		"getcallingqmlglobal", "typeof", "referenceerror", "qtbug_24871",
	}, names)

	_, ok := Lookup("typeof")
	assert.True(t, ok)
	_, ok = Lookup("missing")
	assert.False(t, ok)
}

func TestSelection(t *testing.T) {
	s := &Suite{Include: []string{"eval", "typeof", "referenceerror"}, Exclude: []string{"typeof"}}
	var names []string
	for _, test := range s.Selected() {
		names = append(names, test.Name)
	}
	assert.Equal(t, []string{"eval", "referenceerror"}, names)
}

func TestFailureLocation(t *testing.T) {
	s := &Suite{}
	res := s.RunTest(Test{Name: "failing", Fn: func(t *T) {
		t.Verify(true, "fine")
		if !t.Verify(1+1 == 3, "1 + 1 == 3") {
			return
		}
		t.Verify(false, "never reached")
	}})
	assert.False(t, res.Passed)
	assert.Equal(t, "v8test_test.go", res.File)
	assert.NotZero(t, res.Line)
	assert.Equal(t, "1 + 1 == 3", res.Expr)
	assert.Regexp(t, `^FAIL: v8test_test\.go:\d+ 1 \+ 1 == 3$`, res.String())
}

func TestCleanupOrder(t *testing.T) {
	var order []string
	var ctxDisposed *driver.Context
	s := &Suite{}
	res := s.RunTest(Test{Name: "cleanup", Fn: func(t *T) {
		t.Cleanup(func() { order = append(order, "first") })
		t.Cleanup(func() { order = append(order, "second") })
		ctx, ok := t.NewContext(nil)
		if !ok {
			return
		}
		ctxDisposed = ctx
		t.Verify(false, "stop")
	}})
	assert.False(t, res.Passed)
	assert.Equal(t, []string{"second", "first"}, order)
	require.NotNil(t, ctxDisposed)
	assert.ErrorIs(t, ctxDisposed.Dispose(), driver.ErrDisposed)
}

func TestPanicFailsTest(t *testing.T) {
	cleaned := false
	s := &Suite{}
	res := s.RunTest(Test{Name: "panics", Fn: func(t *T) {
		t.Cleanup(func() { cleaned = true })
		panic("boom")
	}})
	assert.False(t, res.Passed)
	assert.Equal(t, "boom", res.Expr)
	assert.True(t, cleaned)
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	s := &Suite{Timeout: 20 * time.Millisecond}
	res := s.RunTest(Test{Name: "slow", Fn: func(t *T) { <-release }})
	assert.False(t, res.Passed)
	assert.Contains(t, res.Expr, "timed out")
}

func TestSuiteLogging(t *testing.T) {
	var buf bytes.Buffer
	s := &Suite{Logger: zerolog.New(&buf).Level(zerolog.DebugLevel), Include: []string{"referenceerror"}}
	results := s.Run()
	require.Len(t, results, 1)
	assert.True(t, results[0].Passed)
	assert.Empty(t, Failed(results))
	assert.Contains(t, buf.String(), `"test":"referenceerror"`)
	assert.Contains(t, buf.String(), "test finished")
	assert.Contains(t, buf.String(), "uncaught exception")
}
