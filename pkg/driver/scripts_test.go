package driver_test

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/qtproject/qtjsbackend/pkg/driver"
)

// Expectation is the expected outcome of a fixture script.
type Expectation struct {
	ResultType string // "value", "runtime_error", "compile_error"
	Value      string // expected value or error message substring
	QmlGlobal  map[string]any
}

var (
	expectRegex = regexp.MustCompile(`^//\s*(expect(?:_runtime_error|_compile_error)?):\s*(.*)`)
	qmlRegex    = regexp.MustCompile(`^//\s*qml:\s*(.*)`)
)

// parseExpectation reads the header comments of a fixture:
//
//	// qml: {a: 1}
//	// expect: value
//	// expect_runtime_error: message
//	// expect_compile_error: message
//
// The qml line is optional; when present the script runs in QML mode
// with a QML global holding the YAML mapping.
func parseExpectation(content string) (*Expectation, error) {
	var exp Expectation
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		if m := qmlRegex.FindStringSubmatch(line); m != nil {
			exp.QmlGlobal = map[string]any{}
			if err := yaml.Unmarshal([]byte(m[1]), &exp.QmlGlobal); err != nil {
				return nil, fmt.Errorf("bad qml line %q: %w", m[1], err)
			}
			continue
		}
		m := expectRegex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		switch m[1] {
		case "expect":
			exp.ResultType = "value"
		case "expect_runtime_error":
			exp.ResultType = "runtime_error"
		case "expect_compile_error":
			exp.ResultType = "compile_error"
		}
		exp.Value = strings.TrimSpace(m[2])
		return &exp, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading script content: %w", err)
	}
	return nil, fmt.Errorf("no expectation comment found (e.g., // expect: value)")
}

func TestScripts(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "*.js"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, path := range files {
		t.Run(filepath.Base(path), func(t *testing.T) {
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			exp, err := parseExpectation(string(data))
			require.NoError(t, err)

			s, err := driver.NewSession(driver.WithOutput(io.Discard))
			require.NoError(t, err)
			defer s.Close()

			v, err := s.RunCode(string(data), driver.RunOptions{Name: path, QmlGlobal: exp.QmlGlobal})

			switch exp.ResultType {
			case "value":
				require.NoError(t, err)
				assert.Equal(t, exp.Value, v.String())
			case "runtime_error":
				require.Error(t, err)
				var cf *driver.CompileFailure
				require.NotErrorAs(t, err, &cf, "expected a runtime error")
				assert.Contains(t, err.Error(), exp.Value)
			case "compile_error":
				var cf *driver.CompileFailure
				require.ErrorAs(t, err, &cf)
				assert.Contains(t, err.Error(), exp.Value)
			}
		})
	}
}

func TestParseExpectation(t *testing.T) {
	exp, err := parseExpectation("// qml: {a: 1922, name: x}\n// expect: 1922\na")
	require.NoError(t, err)
	assert.Equal(t, "value", exp.ResultType)
	assert.Equal(t, "1922", exp.Value)
	assert.Equal(t, map[string]any{"a": 1922, "name": "x"}, exp.QmlGlobal)

	exp, err = parseExpectation("// expect_runtime_error: boom\nthrow 'boom'")
	require.NoError(t, err)
	assert.Equal(t, "runtime_error", exp.ResultType)
	assert.Nil(t, exp.QmlGlobal)

	_, err = parseExpectation("1 + 1")
	assert.Error(t, err)
}
