// Package config loads the YAML configuration shared by the qmljs and
// v8test commands.
//
// A configuration file looks like:
//
//	log_level: debug
//	color: auto
//	max_call_depth: 5000
//	qml_global:
//	  a: 1922
//	  name: widget
//	suite:
//	  include: [eval, typeof]
//	  exclude: [globalcall]
//	  timeout: 30s
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Color modes.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Config is the top-level configuration document.
type Config struct {
	// LogLevel is a zerolog level name. Defaults to "warn".
	LogLevel string `yaml:"log_level,omitempty"`

	// Color is "auto", "always" or "never". In auto mode log output is
	// coloured only when it goes to a terminal.
	Color string `yaml:"color,omitempty"`

	// MaxCallDepth bounds the script call stack. Zero keeps the engine
	// default.
	MaxCallDepth int `yaml:"max_call_depth,omitempty"`

	// QmlGlobal holds the properties of the QML global object scripts
	// run with. Nested mappings and sequences become objects and arrays.
	QmlGlobal map[string]any `yaml:"qml_global,omitempty"`

	Suite Suite `yaml:"suite,omitempty"`
}

// Suite selects the conformance tests to run.
type Suite struct {
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`

	// Timeout bounds each test, e.g. "30s". Empty means no limit.
	Timeout string `yaml:"timeout,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse parses configuration content. path is used only in error
// messages.
func Parse(data []byte, path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.setDefaults()
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadQmlGlobal reads a YAML mapping to use as a QML global.
func LoadQmlGlobal(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading QML global %s: %w", path, err)
	}
	props := map[string]any{}
	if err := yaml.Unmarshal(data, &props); err != nil {
		return nil, fmt.Errorf("parsing QML global %s: %w", path, err)
	}
	return props, nil
}

func (c *Config) setDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = zerolog.WarnLevel.String()
	}
	if c.Color == "" {
		c.Color = ColorAuto
	}
}

func (c *Config) validate(path string) error {
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%s: log_level: %w", path, err)
	}
	switch c.Color {
	case ColorAuto, ColorAlways, ColorNever:
	default:
		return fmt.Errorf("%s: color must be %q, %q or %q, got %q", path, ColorAuto, ColorAlways, ColorNever, c.Color)
	}
	if c.MaxCallDepth < 0 {
		return fmt.Errorf("%s: max_call_depth must not be negative", path)
	}
	if c.Suite.Timeout != "" {
		if _, err := time.ParseDuration(c.Suite.Timeout); err != nil {
			return fmt.Errorf("%s: suite.timeout: %w", path, err)
		}
	}
	return nil
}

// Level returns the configured log level.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.WarnLevel
	}
	return lvl
}

// SuiteTimeout returns the per-test timeout, zero when unset.
func (c *Config) SuiteTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Suite.Timeout)
	return d
}

// UseColor decides whether output to f is coloured.
func (c *Config) UseColor(f *os.File) bool {
	switch c.Color {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Logger returns a console logger writing to f at the configured level.
func (c *Config) Logger(f *os.File) zerolog.Logger {
	return c.consoleLogger(f, !c.UseColor(f))
}

func (c *Config) consoleLogger(w io.Writer, noColor bool) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: w, NoColor: noColor, TimeFormat: time.TimeOnly}
	return zerolog.New(out).Level(c.Level()).With().Timestamp().Logger()
}
