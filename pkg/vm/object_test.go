package vm

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainObjectBasic(t *testing.T) {
	o := NewObject(nil)
	if o.HasOwnProperty("foo") {
		t.Errorf("expected HasOwnProperty(\"foo\") to be false on new object")
	}
	if v, ok := o.GetOwn("foo"); ok {
		t.Errorf("expected GetOwn(\"foo\") ok=false, got ok=true, v=%v", v.Inspect())
	}
	o.Set("foo", IntegerValue(42))
	v, ok := o.GetOwn("foo")
	if !ok || v.AsInteger() != 42 {
		t.Fatalf("expected GetOwn to return 42, got %s (ok=%v)", v.Inspect(), ok)
	}
	o.Set("foo", IntegerValue(7))
	v, _ = o.GetOwn("foo")
	if v.AsInteger() != 7 {
		t.Errorf("expected overwritten value 7, got %d", v.AsInteger())
	}
}

func TestPrototypeLookup(t *testing.T) {
	proto := NewObject(nil)
	proto.Set("inherited", NewString("yes"))
	o := NewObject(proto)

	v, ok := o.Get("inherited")
	require.True(t, ok)
	assert.Equal(t, "yes", v.AsString())
	assert.False(t, o.HasOwnProperty("inherited"))
	assert.True(t, o.HasProperty("inherited"))
}

func TestDictionaryModeKeepsOrder(t *testing.T) {
	o := NewObject(nil)
	var want []string
	for i := 0; i < 40; i++ {
		name := fmt.Sprintf("p%d", i)
		o.Set(name, IntegerValue(int32(i)))
		want = append(want, name)
		if i < maxFastProperties {
			assert.False(t, o.IsDictionaryMode(), "switched too early at %d", i)
		}
	}
	require.True(t, o.IsDictionaryMode())
	if diff := cmp.Diff(want, o.OwnKeys(true)); diff != "" {
		t.Errorf("key order mismatch (-want +got):\n%s", diff)
	}

	require.True(t, o.Delete("p3"))
	v, ok := o.GetOwn("p30")
	require.True(t, ok)
	assert.Equal(t, int32(30), v.AsInteger())
	assert.False(t, o.HasOwnProperty("p3"))
	assert.Equal(t, 39, o.PropertyCount())
}

func TestReadOnlyAndFrozen(t *testing.T) {
	o := NewObject(nil)
	o.DefineOwnProperty("fixed", IntegerValue(1), Enumerable)
	assert.False(t, o.Set("fixed", IntegerValue(2)))
	v, _ := o.GetOwn("fixed")
	assert.Equal(t, int32(1), v.AsInteger())
	assert.False(t, o.Delete("fixed"))

	o.Set("x", True)
	o.Freeze()
	assert.False(t, o.Set("x", False))
	assert.False(t, o.Set("y", False))
	assert.False(t, o.HasOwnProperty("y"))
}

func TestArrayElements(t *testing.T) {
	a := NewArrayObject(nil, []Value{IntegerValue(1), IntegerValue(2)})
	v, ok := a.GetOwn("length")
	require.True(t, ok)
	assert.Equal(t, int32(2), v.AsInteger())

	a.Set("4", NewString("e"))
	assert.Equal(t, 5, a.ArrayLength())
	v, _ = a.GetOwn("3")
	assert.True(t, v.IsUndefined())

	a.Set("length", IntegerValue(1))
	assert.Equal(t, 1, a.ArrayLength())
	assert.Equal(t, []string{"0"}, a.OwnKeys(true))
	assert.Equal(t, []string{"0", "length"}, a.OwnKeys(false))
}

func TestIdentityHash(t *testing.T) {
	a, b := NewObject(nil), NewObject(nil)
	ha := a.IdentityHash()
	assert.NotZero(t, ha)
	assert.Positive(t, ha)
	assert.Equal(t, ha, a.IdentityHash())
	assert.NotEqual(t, ha, b.IdentityHash())
}

func TestAccessorMerge(t *testing.T) {
	r := NewRealm(NewVM())
	get := ObjectValue(r.NewNativeFunction("get", 0, func(*VM, Value, []Value) (Value, error) { return True, nil }))
	set := ObjectValue(r.NewNativeFunction("set", 1, func(*VM, Value, []Value) (Value, error) { return Undefined, nil }))
	o := r.NewObject()
	o.DefineAccessor("p", get, Undefined, DefaultAttrs)
	o.DefineAccessor("p", Undefined, set, DefaultAttrs)

	g, s, ok := o.OwnAccessor("p")
	require.True(t, ok)
	assert.True(t, g.StrictlyEquals(get))
	assert.True(t, s.StrictlyEquals(set))
	assert.False(t, o.Set("p", Null), "Set does not run setters")
}
