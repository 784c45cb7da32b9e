package vm

// forInIterator walks the enumerable keys of an object and its
// prototypes. Keys are collected up front; keys deleted before they are
// reached are skipped.
type forInIterator struct {
	obj  *Object
	keys []string
	pos  int
}

func (vm *VM) forInPrepare(v Value) (Value, error) {
	it := &forInIterator{}
	if !v.IsNullish() {
		obj, err := vm.ToObject(v)
		if err != nil {
			return Undefined, err
		}
		it.obj = obj
		seen := make(map[string]bool)
		for o := obj; o != nil; o = o.proto {
			for _, k := range o.OwnKeys(false) {
				if seen[k] {
					continue
				}
				seen[k] = true
				if attrs, ok := o.OwnPropertyAttrs(k); ok && attrs&Enumerable != 0 {
					it.keys = append(it.keys, k)
				}
			}
		}
	}
	holder := NewObjectOfClass("ForInIterator", nil)
	holder.forIn = it
	return ObjectValue(holder), nil
}

func (it *forInIterator) next() (string, bool) {
	for it.pos < len(it.keys) {
		k := it.keys[it.pos]
		it.pos++
		if it.obj.HasProperty(k) {
			return k, true
		}
	}
	return "", false
}
