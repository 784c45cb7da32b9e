package vm

import (
	"strings"

	"github.com/dlclark/regexp2"
)

// RegExpData is the compiled state of a RegExp object. Matching uses
// regexp2 in ECMAScript mode; indices are in code points.
type RegExpData struct {
	Source     string
	Flags      string
	Global     bool
	IgnoreCase bool
	Multiline  bool
	re         *regexp2.Regexp
}

// CompileRegExp compiles a pattern with JavaScript flags.
func CompileRegExp(pattern, flags string) (*RegExpData, error) {
	d := &RegExpData{Source: pattern, Flags: flags}
	opts := regexp2.RegexOptions(regexp2.ECMAScript)
	for _, f := range flags {
		switch f {
		case 'g':
			d.Global = true
		case 'i':
			d.IgnoreCase = true
			opts |= regexp2.IgnoreCase
		case 'm':
			d.Multiline = true
			opts |= regexp2.Multiline
		default:
			return nil, &invalidFlagsError{flags}
		}
		if strings.Count(flags, string(f)) > 1 {
			return nil, &invalidFlagsError{flags}
		}
	}
	re, err := regexp2.Compile(pattern, opts)
	if err != nil {
		return nil, err
	}
	d.re = re
	return d, nil
}

type invalidFlagsError struct{ flags string }

func (e *invalidFlagsError) Error() string {
	return "Invalid flags supplied to RegExp constructor '" + e.flags + "'"
}

// RegExpMatch is one match: Groups[0] is the whole match, unmatched
// groups are reported with Matched false.
type RegExpMatch struct {
	Index  int // code point offset of the match
	End    int
	Groups []RegExpGroup
}

type RegExpGroup struct {
	Text    string
	Matched bool
}

// Exec finds the first match at or after code point offset start.
func (d *RegExpData) Exec(s string, start int) (*RegExpMatch, error) {
	if start < 0 || start > len([]rune(s)) {
		return nil, nil
	}
	m, err := d.re.FindStringMatchStartingAt(s, start)
	if err != nil || m == nil {
		return nil, err
	}
	out := &RegExpMatch{Index: m.Index, End: m.Index + m.Length}
	for _, g := range m.Groups() {
		out.Groups = append(out.Groups, RegExpGroup{Text: g.String(), Matched: len(g.Captures) > 0})
	}
	return out, nil
}

// NewRegExp creates a RegExp object in the running realm.
func (vm *VM) NewRegExp(pattern, flags string) (*Object, error) {
	d, err := CompileRegExp(pattern, flags)
	if err != nil {
		return nil, vm.NewSyntaxError("Invalid regular expression: /%s/: %s", pattern, err.Error())
	}
	return vm.Realm().NewRegExpObject(d), nil
}

// NewRegExpObject wraps compiled regexp data in an object.
func (r *Realm) NewRegExpObject(d *RegExpData) *Object {
	o := NewObjectOfClass(ClassRegExp, r.RegExpPrototype)
	o.regexp = d
	o.DefineOwnProperty("lastIndex", IntegerValue(0), Writable)
	return o
}
