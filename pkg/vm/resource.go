package vm

import (
	"errors"
	"runtime"
	"sync"
	"time"
	"unsafe"
)

// ExternalStringResource supplies the characters of an external string.
// Dispose is called once, after the string has become unreachable.
type ExternalStringResource interface {
	Data() string
	Dispose()
}

// ExternalResource is host state attached to an object.
type ExternalResource interface {
	Dispose()
}

// ErrNoExternalResourceSlot is returned when attaching a resource to an
// object whose template did not reserve a resource slot.
var ErrNoExternalResourceSlot = errors.New("object has no external resource slot")

type attachment struct {
	obj   *Object
	res   ExternalResource
	realm *Realm
}

type stringCleanup struct {
	once sync.Once
	res  ExternalStringResource
	vm   *VM
}

func (c *stringCleanup) run() {
	c.once.Do(func() {
		c.res.Dispose()
		c.vm.liveStrings.Add(-1)
	})
}

// NewExternalString creates a string backed by res. The characters are
// fetched on first use, and res is disposed once the garbage collector
// finds the string unreachable.
func (vm *VM) NewExternalString(res ExternalStringResource) Value {
	so := &StringObject{ext: res}
	vm.liveStrings.Add(1)
	runtime.AddCleanup(so, (*stringCleanup).run, &stringCleanup{res: res, vm: vm})
	return Value{typ: TypeString, obj: unsafe.Pointer(so)}
}

// LiveExternalStrings reports how many external strings await disposal.
func (vm *VM) LiveExternalStrings() int64 { return vm.liveStrings.Load() }

// CollectGarbage runs the collector until every external string has been
// disposed or the attempts run out. It reports whether none are left.
func (vm *VM) CollectGarbage() bool {
	for i := 0; i < 10; i++ {
		runtime.GC()
		if vm.liveStrings.Load() == 0 {
			return true
		}
		// cleanups run on their own goroutine
		time.Sleep(time.Millisecond)
	}
	return vm.liveStrings.Load() == 0
}

// SetExternalResource attaches res to o, disposing a resource attached
// earlier. Resources are disposed in attachment order by DisposeResources.
func (vm *VM) SetExternalResource(o *Object, res ExternalResource) error {
	return vm.SetExternalResourceIn(vm.Realm(), o, res)
}

// SetExternalResourceIn is SetExternalResource with the attachment
// recorded against realm r.
func (vm *VM) SetExternalResourceIn(r *Realm, o *Object, res ExternalResource) error {
	if !o.externalSlot {
		return ErrNoExternalResourceSlot
	}
	vm.resMu.Lock()
	old := o.external
	o.external = res
	found := false
	for i := range vm.attachments {
		if vm.attachments[i].obj == o {
			vm.attachments[i].res = res
			found = true
			break
		}
	}
	if !found && res != nil {
		vm.attachments = append(vm.attachments, attachment{obj: o, res: res, realm: r})
	}
	vm.resMu.Unlock()
	if old != nil && old != res {
		old.Dispose()
	}
	return nil
}

// ExternalResource returns the resource attached to o, or nil.
func (o *Object) ExternalResource() ExternalResource { return o.external }

// DisposeResources disposes the object resources attached while realm r
// was active, or every resource when r is nil. It returns the number of
// resources disposed.
func (vm *VM) DisposeResources(r *Realm) int {
	vm.resMu.Lock()
	var todo []attachment
	kept := vm.attachments[:0]
	for _, a := range vm.attachments {
		if r == nil || a.realm == r {
			todo = append(todo, a)
			continue
		}
		kept = append(kept, a)
	}
	clear(vm.attachments[len(kept):])
	vm.attachments = kept
	vm.resMu.Unlock()

	n := 0
	for _, a := range todo {
		if a.res == nil {
			continue
		}
		a.obj.external = nil
		a.res.Dispose()
		n++
	}
	return n
}
