package driver_test

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// numbersAsFloats compares integers and floats by value: the engines
// disagree on which integral results they keep as floats.
var numbersAsFloats = cmp.FilterValues(func(x, y any) bool {
	_, xok := asFloat(x)
	_, yok := asFloat(y)
	return xok && yok
}, cmp.Comparer(func(x, y any) bool {
	a, _ := asFloat(x)
	b, _ := asFloat(y)
	return a == b
}))

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// TestAgainstGoja runs plain ECMAScript 5 snippets through both engines
// and compares the exported results.
func TestAgainstGoja(t *testing.T) {
	snippets := map[string]string{
		"arithmetic":  "[1 + 2 * 3, 7 % 3, 2 - 5, 10 / 4, -(3)]",
		"coercion":    "['5' * 2, '5' + 2, true + 1, null + 1, [] + {}, 1 == '1', null == undefined, 0 == '']",
		"bitwise":     "[5 & 3, 5 | 3, 5 ^ 3, ~5, 1 << 4, -16 >> 2, -16 >>> 28]",
		"typeof":      "[typeof 1, typeof 'a', typeof null, typeof undefined, typeof {}, typeof function () {}, typeof nope]",
		"closures":    "var fs = []; for (var i = 0; i < 3; i++) { fs.push((function (j) { return function () { return j * j; }; })(i)); } fs.map(function (f) { return f(); })",
		"arguments":   "(function () { return [arguments.length, arguments[1]]; })(1, 'two', 3)",
		"this":        "var o = { n: 4, get: function () { return this.n; } }; [o.get(), o.get.call({ n: 9 })]",
		"prototype":   "function P(x) { this.x = x; } P.prototype.double = function () { return this.x * 2; }; var p = new P(21); [p.double(), p instanceof P, p.constructor === P]",
		"strings":     "['abc'.charAt(1), 'abc'.indexOf('c'), 'a,b'.split(','), ' x '.trim(), 'abc'.substring(1), 'AbC'.toLowerCase(), 'ab'.concat('cd')]",
		"arrays":      "var a = [5, 1, 4]; a.sort(); [a, a.join('-'), a.slice(1), a.indexOf(4), a.reverse(), [1, [2]].concat([3])]",
		"reduce":      "[1, 2, 3, 4].filter(function (x) { return x % 2 == 0; }).reduce(function (s, x) { return s + x; }, 0)",
		"objects":     "var o = { a: 1 }; o.b = 'two'; delete o.a; [Object.keys(o), 'b' in o, o.hasOwnProperty('a')]",
		"json":        "[JSON.stringify({ a: [1, 'x', null, true] }), JSON.parse('[1, {\"k\": \"v\"}]')]",
		"numbers":     "[(255).toString(16), (3.14159).toFixed(2), parseInt('42px'), parseFloat('2.5e1'), Math.max(1, 9, 3), Math.floor(-1.5)]",
		"exceptions":  "var r = []; try { null.x; } catch (e) { r.push(e instanceof TypeError); } try { throw new RangeError('r'); } catch (e) { r.push(e.name, e.message); } finally { r.push('f'); } r",
		"switch":      "function s(x) { switch (x) { case 1: return 'one'; case 'a': return 'letter'; default: return 'other'; } } [s(1), s('a'), s(2)]",
		"loops":       "var out = []; var o = { x: 1, y: 2 }; for (var k in o) { out.push(k); } var n = 0; do { n++; } while (n < 5); while (n < 10) { if (n == 7) break; n++; } out.push(n); out",
		"regexp":      "var m = /(\\d+)-(\\d+)/.exec('call 555-1234 now'); [m[1], m[2], m.index, 'a1b2'.replace(/\\d/g, '#'), /^x/i.test('Xy')]",
		"with":        "var o = { v: 'inner' }; var v = 'outer'; var r; with (o) { r = v; } r",
		"labels":      "var c = 0; outer: for (var i = 0; i < 3; i++) { for (var j = 0; j < 3; j++) { if (j == 1) continue outer; if (i == 2) break outer; c++; } } c",
		"ternary":     "[1 ? 'a' : 'b', 0 || 'fallback', 1 && 2, !'', void 0]",
		"eval":        "var x = 10; [eval('x + 1'), (function () { var x = 20; return eval('x'); })()]",
		"accessors":   "var o = {}; Object.defineProperty(o, 'v', { get: function () { return 7; } }); o.v",
		"string_code": "[String.fromCharCode(72, 105), 'Hi'.charCodeAt(1)]",
	}

	for name, src := range snippets {
		t.Run(name, func(t *testing.T) {
			want, err := goja.New().RunString(src)
			require.NoError(t, err)

			s := newSession(t)
			got := run(t, s.Context, src)

			if diff := cmp.Diff(want.Export(), got.Export(), numbersAsFloats); diff != "" {
				t.Errorf("%s (-goja +ours):\n%s", src, diff)
			}
		})
	}
}
