package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"
	"unsafe"
)

type ValueType uint8

const (
	TypeUndefined ValueType = iota
	TypeNull
	TypeBoolean
	TypeIntegerNumber
	TypeFloatNumber
	TypeString
	TypeObject // plain objects, arrays, functions, errors, regexps, wrappers
)

// String returns a human-readable string representation of the ValueType
func (vt ValueType) String() string {
	switch vt {
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "null"
	case TypeBoolean:
		return "boolean"
	case TypeIntegerNumber, TypeFloatNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeObject:
		return "object"
	default:
		return fmt.Sprintf("<unknown type: %d>", vt)
	}
}

// Value is a script value. Numbers live in payload, strings and objects
// behind obj.
type Value struct {
	typ     ValueType
	payload uint64
	obj     unsafe.Pointer
}

var (
	Undefined = Value{typ: TypeUndefined}
	Null      = Value{typ: TypeNull}
	True      = Value{typ: TypeBoolean, payload: 1}
	False     = Value{typ: TypeBoolean, payload: 0}
	NaN       = Value{typ: TypeFloatNumber, payload: math.Float64bits(math.NaN())}
)

func NumberValue(value float64) Value {
	return Value{typ: TypeFloatNumber, payload: math.Float64bits(value)}
}

func IntegerValue(value int32) Value {
	return Value{typ: TypeIntegerNumber, payload: uint64(int64(value))}
}

// NumberOrInteger returns an int32 value when f is an exact int32 (and
// not -0), otherwise a float value.
func NumberOrInteger(f float64) Value {
	if i := int32(f); float64(i) == f && (i != 0 || !math.Signbit(f)) {
		return IntegerValue(i)
	}
	return NumberValue(f)
}

func BooleanValue(value bool) Value {
	if value {
		return True
	}
	return False
}

func NewString(value string) Value {
	return Value{typ: TypeString, obj: unsafe.Pointer(&StringObject{value: value, ready: true})}
}

// ObjectValue wraps o. A nil object yields null.
func ObjectValue(o *Object) Value {
	if o == nil {
		return Null
	}
	return Value{typ: TypeObject, obj: unsafe.Pointer(o)}
}

func (v Value) Type() ValueType { return v.typ }

func (v Value) IsUndefined() bool { return v.typ == TypeUndefined }
func (v Value) IsNull() bool      { return v.typ == TypeNull }
func (v Value) IsNullish() bool   { return v.typ == TypeUndefined || v.typ == TypeNull }
func (v Value) IsBoolean() bool   { return v.typ == TypeBoolean }
func (v Value) IsString() bool    { return v.typ == TypeString }
func (v Value) IsObject() bool    { return v.typ == TypeObject }

func (v Value) IsNumber() bool {
	return v.typ == TypeFloatNumber || v.typ == TypeIntegerNumber
}

func (v Value) IsIntegerNumber() bool {
	return v.typ == TypeIntegerNumber
}

// IsInt32 reports whether v is a number holding an int32 value.
func (v Value) IsInt32() bool {
	switch v.typ {
	case TypeIntegerNumber:
		return true
	case TypeFloatNumber:
		f := v.AsFloat()
		return float64(int32(f)) == f && !(f == 0 && math.Signbit(f))
	}
	return false
}

func (v Value) IsCallable() bool {
	return v.typ == TypeObject && v.AsObject().IsCallable()
}

func (v Value) IsArray() bool {
	return v.typ == TypeObject && v.AsObject().class == ClassArray
}

func (v Value) AsFloat() float64 {
	if v.typ != TypeFloatNumber {
		panic("value is not a float")
	}
	return math.Float64frombits(v.payload)
}

func (v Value) AsInteger() int32 {
	if v.typ != TypeIntegerNumber {
		panic("value is not an integer")
	}
	return int32(v.payload)
}

func (v Value) AsBoolean() bool {
	if v.typ != TypeBoolean {
		panic("value is not a boolean")
	}
	return v.payload != 0
}

func (v Value) AsString() string {
	if v.typ != TypeString {
		panic("value is not a string")
	}
	return (*StringObject)(v.obj).String()
}

func (v Value) AsObject() *Object {
	if v.typ != TypeObject {
		panic("value is not an object")
	}
	return (*Object)(v.obj)
}

// TypeofString returns the result of the typeof operator.
func (v Value) TypeofString() string {
	switch v.typ {
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "object"
	case TypeBoolean:
		return "boolean"
	case TypeIntegerNumber, TypeFloatNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeObject:
		if v.AsObject().IsCallable() {
			return "function"
		}
		return "object"
	}
	return "undefined"
}

// --- Conversions that need no interpreter ---

// ToFloat converts a primitive to a number. Objects convert to NaN here;
// the VM applies ToPrimitive first.
func (v Value) ToFloat() float64 {
	switch v.typ {
	case TypeIntegerNumber:
		return float64(v.AsInteger())
	case TypeFloatNumber:
		return v.AsFloat()
	case TypeBoolean:
		if v.AsBoolean() {
			return 1
		}
		return 0
	case TypeNull:
		return 0
	case TypeString:
		return StringToNumber(v.AsString())
	}
	return math.NaN()
}

// ToInt32 implements the ECMAScript ToInt32 conversion on a primitive.
func (v Value) ToInt32() int32 {
	if v.typ == TypeIntegerNumber {
		return v.AsInteger()
	}
	return ToInt32(v.ToFloat())
}

func ToInt32(f float64) int32 {
	return int32(ToUint32(f))
}

func ToUint32(f float64) uint32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	if f >= 0 && f < 1<<32 {
		return uint32(f)
	}
	m := math.Mod(math.Trunc(f), 1<<32)
	if m < 0 {
		m += 1 << 32
	}
	return uint32(m)
}

// ToInteger truncates toward zero, mapping NaN to 0.
func ToInteger(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	return math.Trunc(f)
}

// IsTruthy reports the ToBoolean conversion of v.
func (v Value) IsTruthy() bool {
	switch v.typ {
	case TypeUndefined, TypeNull:
		return false
	case TypeBoolean:
		return v.AsBoolean()
	case TypeIntegerNumber:
		return v.AsInteger() != 0
	case TypeFloatNumber:
		f := v.AsFloat()
		return f != 0 && !math.IsNaN(f)
	case TypeString:
		return (*StringObject)(v.obj).Len() > 0
	}
	return true
}

// ToString converts a primitive to its string form. Objects get a
// generic description; the VM calls toString/valueOf for them.
func (v Value) ToString() string {
	switch v.typ {
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "null"
	case TypeBoolean:
		if v.AsBoolean() {
			return "true"
		}
		return "false"
	case TypeIntegerNumber:
		return strconv.FormatInt(int64(v.AsInteger()), 10)
	case TypeFloatNumber:
		return NumberToString(v.AsFloat())
	case TypeString:
		return v.AsString()
	case TypeObject:
		o := v.AsObject()
		switch {
		case o.closure != nil:
			return o.closure.Fn.Source
		case o.IsCallable():
			return "function " + o.FunctionName() + "() { [native code] }"
		case o.class == ClassError:
			return errorToString(o)
		}
		return "[object " + o.class + "]"
	}
	return fmt.Sprintf("<unknown type %d>", v.typ)
}

func errorToString(o *Object) string {
	name, msg := "Error", ""
	if p, ok := o.lookup("name"); ok && !p.accessor {
		name = p.value.ToString()
	}
	if p, ok := o.lookup("message"); ok && !p.accessor {
		msg = p.value.ToString()
	}
	switch {
	case msg == "":
		return name
	case name == "":
		return msg
	}
	return name + ": " + msg
}

// NumberToString formats f the way Number.prototype.toString does.
func NumberToString(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case f == 0:
		return "0"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}

	sign := ""
	if f < 0 {
		sign = "-"
		f = -f
	}
	s := strconv.FormatFloat(f, 'e', -1, 64)
	mant, exp, _ := strings.Cut(s, "e")
	digits := strings.Replace(mant, ".", "", 1)
	e, _ := strconv.Atoi(exp)
	n := e + 1
	k := len(digits)

	switch {
	case k <= n && n <= 21:
		return sign + digits + strings.Repeat("0", n-k)
	case 0 < n && n <= 21:
		return sign + digits[:n] + "." + digits[n:]
	case -6 < n && n <= 0:
		return sign + "0." + strings.Repeat("0", -n) + digits
	}
	expSign := "+"
	if n-1 < 0 {
		expSign = "-"
	}
	expAbs := n - 1
	if expAbs < 0 {
		expAbs = -expAbs
	}
	if k == 1 {
		return sign + digits + "e" + expSign + strconv.Itoa(expAbs)
	}
	return sign + digits[:1] + "." + digits[1:] + "e" + expSign + strconv.Itoa(expAbs)
}

func isJSSpace(r rune) bool {
	return unicode.IsSpace(r) || r == '\uFEFF'
}

// StringToNumber converts s following the ToNumber rules for strings.
func StringToNumber(s string) float64 {
	str := strings.TrimFunc(s, isJSSpace)
	if str == "" {
		return 0
	}
	if len(str) > 2 && str[0] == '0' {
		base := 0
		switch str[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			var n float64
			for _, c := range str[2:] {
				d := digitValue(c)
				if d < 0 || d >= base {
					return math.NaN()
				}
				n = n*float64(base) + float64(d)
			}
			return n
		}
	}
	switch str {
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	if !isDecimalLiteral(str) {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil {
		// Out of range values still parse to ±Inf.
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return f
		}
		return math.NaN()
	}
	return f
}

func digitValue(c rune) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10
	}
	return -1
}

// isDecimalLiteral accepts [+-] digits [. digits] [e [+-] digits].
func isDecimalLiteral(s string) bool {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
			digits++
		}
	}
	if digits == 0 {
		return false
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		exp := 0
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
			exp++
		}
		if exp == 0 {
			return false
		}
	}
	return i == len(s)
}

// --- Equality without conversions ---

// StrictlyEquals implements ===.
func (v Value) StrictlyEquals(other Value) bool {
	if v.IsNumber() && other.IsNumber() {
		if v.typ == TypeIntegerNumber && other.typ == TypeIntegerNumber {
			return v.payload == other.payload
		}
		return v.ToFloat() == other.ToFloat()
	}
	if v.typ != other.typ {
		return false
	}
	switch v.typ {
	case TypeUndefined, TypeNull:
		return true
	case TypeBoolean:
		return v.payload == other.payload
	case TypeString:
		return v.obj == other.obj || v.AsString() == other.AsString()
	case TypeObject:
		return v.obj == other.obj
	}
	return false
}

// Is implements SameValue: like === but NaN equals NaN and +0 differs from -0.
func (v Value) Is(other Value) bool {
	if v.IsNumber() && other.IsNumber() {
		a, b := v.ToFloat(), other.ToFloat()
		if math.IsNaN(a) && math.IsNaN(b) {
			return true
		}
		return a == b && math.Signbit(a) == math.Signbit(b)
	}
	return v.StrictlyEquals(other)
}

// --- Strings ---

// StringObject backs a string value. External strings fetch their
// characters from the resource on first use.
type StringObject struct {
	value string
	ready bool
	ext   ExternalStringResource
}

func (s *StringObject) String() string {
	if !s.ready {
		s.value = s.ext.Data()
		s.ready = true
	}
	return s.value
}

// Len returns the length in UTF-16 code units.
func (s *StringObject) Len() int {
	return StringLength(s.String())
}

// StringLength returns the number of UTF-16 code units of s.
func StringLength(s string) int {
	n := 0
	for i := 0; i < len(s); {
		if s[i] < utf8.RuneSelf {
			n++
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// UTF16 returns the code units of s.
func UTF16(s string) []uint16 {
	return utf16.Encode([]rune(s))
}

// FromUTF16 converts code units back to a Go string. Lone surrogates
// become U+FFFD.
func FromUTF16(units []uint16) string {
	return string(utf16.Decode(units))
}

// CodeUnitAt returns the UTF-16 code unit at index i, or false when out
// of range.
func CodeUnitAt(s string, i int) (uint16, bool) {
	if i < 0 {
		return 0, false
	}
	if isASCII(s) {
		if i >= len(s) {
			return 0, false
		}
		return uint16(s[i]), true
	}
	units := UTF16(s)
	if i >= len(units) {
		return 0, false
	}
	return units[i], true
}

// Substring returns code units [start, end) of s.
func Substring(s string, start, end int) string {
	if isASCII(s) {
		return s[start:end]
	}
	return FromUTF16(UTF16(s)[start:end])
}

// --- Display ---

// Inspect returns a developer-facing rendering of v, used by the REPL
// and console.log.
func (v Value) Inspect() string {
	return v.inspect(0, map[*Object]bool{})
}

func (v Value) inspect(depth int, seen map[*Object]bool) string {
	switch v.typ {
	case TypeString:
		if depth > 0 {
			return strconv.Quote(v.AsString())
		}
		return v.AsString()
	case TypeObject:
	default:
		return v.ToString()
	}

	o := v.AsObject()
	if seen[o] {
		return "[Circular]"
	}
	switch {
	case o.IsCallable():
		name := o.FunctionName()
		if name == "" {
			return "[Function (anonymous)]"
		}
		return "[Function: " + name + "]"
	case o.class == ClassError, o.class == ClassRegExp:
		return v.ToString()
	case o.class == ClassString || o.class == ClassNumber || o.class == ClassBoolean:
		return "[" + o.class + ": " + o.primitive.inspect(1, seen) + "]"
	}
	if depth > 2 {
		if o.class == ClassArray {
			return "[Array]"
		}
		return "[Object]"
	}

	seen[o] = true
	defer delete(seen, o)

	var parts []string
	if o.hasElements() {
		for _, e := range o.elements {
			parts = append(parts, e.inspect(depth+1, seen))
		}
	}
	for i, k := range o.keys {
		p := &o.props[i]
		if p.attrs&Enumerable == 0 {
			continue
		}
		key := k
		if !isIdentifierName(k) {
			key = strconv.Quote(k)
		}
		if p.accessor {
			parts = append(parts, key+": [Getter/Setter]")
			continue
		}
		parts = append(parts, key+": "+p.value.inspect(depth+1, seen))
	}
	if o.class == ClassArray {
		return "[" + strings.Join(parts, ", ") + "]"
	}
	if len(parts) == 0 {
		return "{}"
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}

func isIdentifierName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || r == '$' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}
