package driver

import (
	"errors"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/petermattis/goid"
	"github.com/rs/zerolog"

	"github.com/qtproject/qtjsbackend/pkg/compiler"
	"github.com/qtproject/qtjsbackend/pkg/vm"
)

// Host API errors.
var (
	ErrDisposed       = errors.New("isolate or context has been disposed")
	ErrNotEntered     = errors.New("isolate or context is not entered")
	ErrWrongGoroutine = errors.New("isolate is entered by another goroutine")
	ErrNotQmlMode     = errors.New("script was not compiled in QML mode")

	// ErrNoExternalResourceSlot is returned by Object.SetExternalResource
	// for objects whose template did not call SetHasExternalResource.
	ErrNoExternalResourceSlot = vm.ErrNoExternalResourceSlot
)

// ExternalStringResource supplies the characters of an external string.
type ExternalStringResource = vm.ExternalStringResource

// ExternalResource is host state attached to an object.
type ExternalResource = vm.ExternalResource

// UserObjectComparison decides lhs == rhs for objects flagged with
// MarkAsUseUserObjectComparison. lhs and rhs are fresh handles on every
// call; compare them with StrictEquals, not ==.
type UserObjectComparison func(lhs, rhs *Object) bool

// Option configures an Isolate.
type Option func(*isolateConfig)

type isolateConfig struct {
	logger       zerolog.Logger
	output       io.Writer
	maxCallDepth int
}

// WithLogger sets the logger lifecycle and exception events go to.
func WithLogger(l zerolog.Logger) Option {
	return func(c *isolateConfig) { c.logger = l }
}

// WithOutput sets the writer console.log writes to.
func WithOutput(w io.Writer) Option {
	return func(c *isolateConfig) { c.output = w }
}

// WithMaxCallDepth bounds the script call stack.
func WithMaxCallDepth(n int) Option {
	return func(c *isolateConfig) { c.maxCallDepth = n }
}

// Isolate is an engine instance. It owns a VM, the comparison callback
// slot and the external resources attached while it runs. An entered
// Isolate may only be used from the goroutine that entered it.
type Isolate struct {
	id     uuid.UUID
	vm     *vm.VM
	logger zerolog.Logger

	mu       sync.Mutex
	owner    int64 // goroutine that entered, valid while depth > 0
	depth    int
	disposed bool

	contexts   []*Context
	byRealm    map[*vm.Realm]*Context
	entered    []*Context
	tryCatches []*TryCatch
	comparison UserObjectComparison
}

// NewIsolate creates an engine instance.
func NewIsolate(opts ...Option) *Isolate {
	cfg := isolateConfig{
		logger:       zerolog.Nop(),
		output:       os.Stdout,
		maxCallDepth: vm.DefaultMaxCallDepth,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	id := uuid.New()
	iso := &Isolate{
		id:      id,
		logger:  cfg.logger.With().Str("isolate", id.String()).Logger(),
		byRealm: make(map[*vm.Realm]*Context),
	}
	iso.vm = vm.NewVM(vm.WithOutput(cfg.output), vm.WithMaxCallDepth(cfg.maxCallDepth))
	iso.vm.SetEvalCompiler(compiler.EvalCompiler())
	iso.logger.Debug().Msg("isolate created")
	return iso
}

// ID returns the isolate's unique identifier.
func (iso *Isolate) ID() string { return iso.id.String() }

// Logger returns the isolate logger.
func (iso *Isolate) Logger() *zerolog.Logger { return &iso.logger }

// VM exposes the underlying machine.
func (iso *Isolate) VM() *vm.VM { return iso.vm }

// Enter binds the isolate to the calling goroutine. Enter nests; each
// call must be matched by Exit.
func (iso *Isolate) Enter() error {
	iso.mu.Lock()
	defer iso.mu.Unlock()
	if iso.disposed {
		return ErrDisposed
	}
	g := goid.Get()
	if iso.depth > 0 && iso.owner != g {
		return ErrWrongGoroutine
	}
	iso.owner = g
	iso.depth++
	return nil
}

// Exit undoes one Enter.
func (iso *Isolate) Exit() error {
	iso.mu.Lock()
	defer iso.mu.Unlock()
	if iso.disposed {
		return ErrDisposed
	}
	if iso.depth == 0 {
		return ErrNotEntered
	}
	if iso.owner != goid.Get() {
		return ErrWrongGoroutine
	}
	iso.depth--
	return nil
}

// check reports whether the isolate may be used by the calling goroutine.
func (iso *Isolate) check() error {
	iso.mu.Lock()
	defer iso.mu.Unlock()
	switch {
	case iso.disposed:
		return ErrDisposed
	case iso.depth == 0:
		return ErrNotEntered
	case iso.owner != goid.Get():
		return ErrWrongGoroutine
	}
	return nil
}

// Dispose disposes every live context, then every remaining object
// resource in attachment order. The isolate must not be entered by
// another goroutine.
func (iso *Isolate) Dispose() error {
	iso.mu.Lock()
	if iso.disposed {
		iso.mu.Unlock()
		return ErrDisposed
	}
	if iso.depth > 0 && iso.owner != goid.Get() {
		iso.mu.Unlock()
		return ErrWrongGoroutine
	}
	contexts := append([]*Context(nil), iso.contexts...)
	iso.mu.Unlock()

	for _, ctx := range contexts {
		ctx.dispose()
	}
	n := iso.vm.DisposeResources(nil)

	iso.mu.Lock()
	iso.disposed = true
	iso.depth = 0
	iso.mu.Unlock()
	iso.vm.SetUserObjectComparison(nil)
	iso.logger.Debug().Int("resources", n).Msg("isolate disposed")
	return nil
}

// SetUserObjectComparisonCallback installs cb as the isolate's
// comparison callback, replacing any earlier one. nil disables it.
func (iso *Isolate) SetUserObjectComparisonCallback(cb UserObjectComparison) {
	iso.comparison = cb
	if cb == nil {
		iso.vm.SetUserObjectComparison(nil)
		return
	}
	iso.vm.SetUserObjectComparison(func(lhs, rhs *vm.Object) bool {
		ctx := iso.contextOf(iso.vm.Realm())
		return cb(ctx.wrapObject(lhs), ctx.wrapObject(rhs))
	})
}

// NewExternalString creates a string backed by res. res is disposed some
// time after the string becomes unreachable; IdleNotification forces
// the collector.
func (iso *Isolate) NewExternalString(res ExternalStringResource) Value {
	return Value{v: iso.vm.NewExternalString(res)}
}

// IdleNotification runs the garbage collector and reports whether every
// external string created by this isolate has been finalized.
func (iso *Isolate) IdleNotification() bool {
	done := iso.vm.CollectGarbage()
	iso.logger.Debug().
		Bool("settled", done).
		Int64("live_strings", iso.vm.LiveExternalStrings()).
		Msg("idle notification")
	return done
}

// GetCurrentContext returns the innermost entered context, or nil.
func (iso *Isolate) GetCurrentContext() *Context {
	iso.mu.Lock()
	defer iso.mu.Unlock()
	if n := len(iso.entered); n > 0 {
		return iso.entered[n-1]
	}
	return nil
}

// contextOf returns the context owning realm r. Objects seen before any
// context exists are wrapped without one.
func (iso *Isolate) contextOf(r *vm.Realm) *Context {
	iso.mu.Lock()
	defer iso.mu.Unlock()
	return iso.byRealm[r]
}

// recordException hands exc to the innermost active TryCatch.
func (iso *Isolate) recordException(ctx *Context, exc *vm.ExceptionError) {
	iso.mu.Lock()
	var tc *TryCatch
	if n := len(iso.tryCatches); n > 0 {
		tc = iso.tryCatches[n-1]
	}
	iso.mu.Unlock()
	if tc != nil {
		tc.record(ctx, exc)
	}
}
