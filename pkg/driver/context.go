package driver

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/qtproject/qtjsbackend/pkg/builtins"
	"github.com/qtproject/qtjsbackend/pkg/vm"
)

// Context is an execution context: one realm with its own global object
// and builtins. QML globals are not part of a context; they are bound
// per invocation by Script.Run.
type Context struct {
	id       uuid.UUID
	iso      *Isolate
	realm    *vm.Realm
	logger   zerolog.Logger
	entered  int
	disposed bool
}

// NewContext creates a context in iso. When global is non-nil its
// properties are installed on the new global object.
func (iso *Isolate) NewContext(global *ObjectTemplate) (*Context, error) {
	if err := iso.check(); err != nil {
		return nil, err
	}
	id := uuid.New()
	ctx := &Context{
		id:     id,
		iso:    iso,
		realm:  vm.NewRealm(iso.vm),
		logger: iso.logger.With().Str("context", id.String()).Logger(),
	}
	if err := builtins.InitializeRealm(ctx.realm); err != nil {
		return nil, fmt.Errorf("new context: %w", err)
	}

	iso.mu.Lock()
	iso.contexts = append(iso.contexts, ctx)
	iso.byRealm[ctx.realm] = ctx
	iso.mu.Unlock()

	if global != nil {
		if err := global.apply(ctx, ctx.realm.GlobalObject); err != nil {
			ctx.dispose()
			return nil, fmt.Errorf("new context: %w", err)
		}
	}
	ctx.logger.Debug().Msg("context created")
	return ctx, nil
}

// ID returns the context's unique identifier.
func (ctx *Context) ID() string { return ctx.id.String() }

// Isolate returns the owning isolate.
func (ctx *Context) Isolate() *Isolate { return ctx.iso }

// Global returns the primary global object.
func (ctx *Context) Global() *Object { return ctx.wrapObject(ctx.realm.GlobalObject) }

// Realm exposes the underlying realm.
func (ctx *Context) Realm() *vm.Realm { return ctx.realm }

// Enter makes ctx the current context of its isolate. Enter nests.
func (ctx *Context) Enter() error {
	if err := ctx.check(); err != nil {
		return err
	}
	iso := ctx.iso
	iso.mu.Lock()
	iso.entered = append(iso.entered, ctx)
	iso.mu.Unlock()
	ctx.entered++
	iso.vm.SetRealm(ctx.realm)
	return nil
}

// Exit undoes one Enter and restores the previously current context.
func (ctx *Context) Exit() error {
	if ctx.disposed {
		return ErrDisposed
	}
	if ctx.entered == 0 {
		return ErrNotEntered
	}
	if err := ctx.iso.check(); err != nil {
		return err
	}
	iso := ctx.iso
	iso.mu.Lock()
	for i := len(iso.entered) - 1; i >= 0; i-- {
		if iso.entered[i] == ctx {
			iso.entered = append(iso.entered[:i], iso.entered[i+1:]...)
			break
		}
	}
	var prev *Context
	if n := len(iso.entered); n > 0 {
		prev = iso.entered[n-1]
	}
	iso.mu.Unlock()
	ctx.entered--
	if prev != nil {
		iso.vm.SetRealm(prev.realm)
	} else {
		iso.vm.SetRealm(nil)
	}
	return nil
}

// Dispose disposes the external resources of objects created while ctx
// was current and detaches ctx from its isolate.
func (ctx *Context) Dispose() error {
	if ctx.disposed {
		return ErrDisposed
	}
	if err := ctx.iso.check(); err != nil {
		return err
	}
	ctx.dispose()
	return nil
}

func (ctx *Context) dispose() {
	if ctx.disposed {
		return
	}
	iso := ctx.iso
	n := iso.vm.DisposeResources(ctx.realm)

	iso.mu.Lock()
	for i, c := range iso.contexts {
		if c == ctx {
			iso.contexts = append(iso.contexts[:i], iso.contexts[i+1:]...)
			break
		}
	}
	kept := iso.entered[:0]
	for _, c := range iso.entered {
		if c != ctx {
			kept = append(kept, c)
		}
	}
	iso.entered = kept
	delete(iso.byRealm, ctx.realm)
	iso.mu.Unlock()

	if iso.vm.Realm() == ctx.realm {
		iso.vm.SetRealm(nil)
	}
	ctx.disposed = true
	ctx.entered = 0
	ctx.logger.Debug().Int("resources", n).Msg("context disposed")
}

// check reports whether ctx may be used from the calling goroutine.
func (ctx *Context) check() error {
	if ctx.disposed {
		return ErrDisposed
	}
	return ctx.iso.check()
}

// checkEntered is check plus the requirement that ctx is entered.
func (ctx *Context) checkEntered() error {
	if err := ctx.check(); err != nil {
		return err
	}
	if ctx.entered == 0 {
		return ErrNotEntered
	}
	return nil
}

// GetCallingQmlGlobal returns the QML global bound to the innermost
// running invocation. It returns nil outside any invocation and for
// invocations started without one.
func (ctx *Context) GetCallingQmlGlobal() *Object {
	return ctx.wrapObject(ctx.iso.vm.CallingQmlGlobal())
}

// NewObject creates an empty plain object.
func (ctx *Context) NewObject() *Object {
	return ctx.wrapObject(ctx.realm.NewObject())
}

// NewString creates a string value.
func (ctx *Context) NewString(s string) Value {
	return Value{ctx: ctx, v: vm.NewString(s)}
}

// ToValue converts Go data to a script value. Maps become objects,
// slices become arrays, and Values and Objects pass through.
func (ctx *Context) ToValue(x any) Value {
	switch v := x.(type) {
	case Value:
		return Value{ctx: ctx, v: v.v}
	case *Object:
		if v == nil {
			return Value{ctx: ctx, v: vm.Null}
		}
		return v.Value()
	}
	return Value{ctx: ctx, v: ctx.realm.ToValue(x)}
}

func (ctx *Context) wrap(v vm.Value) Value { return Value{ctx: ctx, v: v} }

// wrapObject may be called on a nil Context for objects that belong to
// no live context.
func (ctx *Context) wrapObject(o *vm.Object) *Object {
	if o == nil {
		return nil
	}
	return &Object{ctx: ctx, o: o}
}
