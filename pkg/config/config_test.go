package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFull(t *testing.T) {
	doc := `
log_level: debug
color: never
max_call_depth: 500
qml_global:
  a: 1922
  name: widget
  ratio: 0.5
  tags: [x, y]
  nested:
    enabled: true
suite:
  include: [eval, typeof]
  exclude: [globalcall]
  timeout: 30s
`
	cfg, err := Parse([]byte(doc), "test.yaml")
	require.NoError(t, err)

	assert.Equal(t, zerolog.DebugLevel, cfg.Level())
	assert.Equal(t, ColorNever, cfg.Color)
	assert.Equal(t, 500, cfg.MaxCallDepth)
	assert.Equal(t, map[string]any{
		"a":      1922,
		"name":   "widget",
		"ratio":  0.5,
		"tags":   []any{"x", "y"},
		"nested": map[string]any{"enabled": true},
	}, cfg.QmlGlobal)
	assert.Equal(t, []string{"eval", "typeof"}, cfg.Suite.Include)
	assert.Equal(t, []string{"globalcall"}, cfg.Suite.Exclude)
	assert.Equal(t, 30*time.Second, cfg.SuiteTimeout())
}

func TestDefaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"), "empty.yaml")
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, cfg.Level())
	assert.Equal(t, ColorAuto, cfg.Color)
	assert.Zero(t, cfg.MaxCallDepth)
	assert.Zero(t, cfg.SuiteTimeout())
	assert.Nil(t, cfg.QmlGlobal)

	assert.Equal(t, cfg, Default())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"bad yaml", "log_level: [", "parsing bad.yaml"},
		{"bad level", "log_level: loud", "log_level"},
		{"bad color", "color: sometimes", "color must be"},
		{"negative depth", "max_call_depth: -1", "max_call_depth"},
		{"bad timeout", "suite: {timeout: soon}", "suite.timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), "bad.yaml")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "qmljs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: info\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, cfg.Level())

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config")
}

func TestLoadQmlGlobal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "global.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\nlist: [1, two]\n"), 0o644))

	props, err := LoadQmlGlobal(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1, "list": []any{1, "two"}}, props)

	require.NoError(t, os.WriteFile(path, []byte("- not\n- a mapping\n"), 0o644))
	_, err = LoadQmlGlobal(path)
	assert.Error(t, err)
}

func TestColor(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()

	cfg := Default()
	assert.False(t, cfg.UseColor(f), "a regular file is not a terminal")
	cfg.Color = ColorAlways
	assert.True(t, cfg.UseColor(f))
	cfg.Color = ColorNever
	assert.False(t, cfg.UseColor(f))
}

func TestConsoleLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Default()
	logger := cfg.consoleLogger(&buf, true)
	logger.Info().Msg("hidden")
	logger.Warn().Str("k", "v").Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "k=v")
}
