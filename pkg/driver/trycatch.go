package driver

import "github.com/qtproject/qtjsbackend/pkg/vm"

// TryCatch records the exceptions that escape to the host while it is
// the innermost open TryCatch of its isolate.
//
//	tc := driver.NewTryCatch(iso)
//	defer tc.Close()
type TryCatch struct {
	iso       *Isolate
	caught    bool
	exception Value
	line      int
}

// NewTryCatch opens a TryCatch on iso.
func NewTryCatch(iso *Isolate) *TryCatch {
	tc := &TryCatch{iso: iso}
	iso.mu.Lock()
	iso.tryCatches = append(iso.tryCatches, tc)
	iso.mu.Unlock()
	return tc
}

// Close removes tc from its isolate.
func (tc *TryCatch) Close() {
	iso := tc.iso
	iso.mu.Lock()
	defer iso.mu.Unlock()
	for i := len(iso.tryCatches) - 1; i >= 0; i-- {
		if iso.tryCatches[i] == tc {
			iso.tryCatches = append(iso.tryCatches[:i], iso.tryCatches[i+1:]...)
			return
		}
	}
}

func (tc *TryCatch) record(ctx *Context, exc *vm.ExceptionError) {
	tc.caught = true
	tc.exception = ctx.wrap(exc.Value)
	tc.line = exc.Line
}

// HasCaught reports whether an exception was recorded since the last Reset.
func (tc *TryCatch) HasCaught() bool { return tc.caught }

// Exception returns the thrown value, or undefined.
func (tc *TryCatch) Exception() Value { return tc.exception }

// Message returns the thrown value converted to a string.
func (tc *TryCatch) Message() string {
	if !tc.caught {
		return ""
	}
	return tc.exception.ToString()
}

// Line returns the source line of the throw, 0 when unknown.
func (tc *TryCatch) Line() int { return tc.line }

// Reset forgets the recorded exception.
func (tc *TryCatch) Reset() {
	tc.caught = false
	tc.exception = Value{}
	tc.line = 0
}
