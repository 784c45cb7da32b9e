package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qtproject/qtjsbackend/pkg/source"
)

func parse(t *testing.T, input string) *Program {
	t.Helper()
	prog, errs := ParseSource(source.NewEvalSource(input))
	for _, err := range errs {
		t.Errorf("parser error: %s", err)
	}
	if len(errs) > 0 {
		t.FailNow()
	}
	return prog
}

func TestOperatorPrecedenceParsing(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"-a * b", "((-a) * b)"},
		{"!-a", "(!(-a))"},
		{"a + b + c", "((a + b) + c)"},
		{"a + b * c", "(a + (b * c))"},
		{"a < b == c > d", "((a < b) == (c > d))"},
		{"a = b = c", "(a = (b = c))"},
		{"a || b && c", "(a || (b && c))"},
		{"a | b ^ c & d", "(a | (b ^ (c & d)))"},
		{"a << 1 + 2", "(a << (1 + 2))"},
		{"typeof a === 'number'", "((typeof a) === \"number\")"},
		{"a ? b : c ? d : e", "(a ? b : (c ? d : e))"},
		{"a.b.c(d)[e]", "a.b.c(d)[e]"},
		{"new Foo(1).bar", "new Foo(1).bar"},
		{"new a.b.C", "new a.b.C()"},
		{"x in y instanceof Z", "((x in y) instanceof Z)"},
		{"a = 1, b = 2", "((a = 1), (b = 2))"},
		{"i++ + ++j", "((i++) + (++j))"},
	}

	for _, tt := range tests {
		prog := parse(t, tt.input)
		require.Len(t, prog.Statements, 1, tt.input)
		stmt, ok := prog.Statements[0].(*ExpressionStatement)
		require.True(t, ok, "%s: not an expression statement", tt.input)
		assert.Equal(t, tt.expected, stmt.Expression.String(), tt.input)
	}
}

func TestAutomaticSemicolonInsertion(t *testing.T) {
	prog := parse(t, "var a = 1\nvar b = a\na\n++b\nfunction f() { return\n42 }")
	require.Len(t, prog.Statements, 5)

	// `a\n++b` splits into two statements.
	first := prog.Statements[2].(*ExpressionStatement)
	assert.Equal(t, "a", first.Expression.String())
	second := prog.Statements[3].(*ExpressionStatement)
	assert.Equal(t, "(++b)", second.Expression.String())

	fn := prog.Statements[4].(*FunctionDeclaration).Function
	require.Len(t, fn.Body.Statements, 2)
	ret := fn.Body.Statements[0].(*ReturnStatement)
	assert.Nil(t, ret.ReturnValue)
}

func TestWithAndEval(t *testing.T) {
	prog := parse(t, `(function(){ var b={c:10}; with(b){ return eval("a"); } })`)
	stmt := prog.Statements[0].(*ExpressionStatement)
	fn, ok := stmt.Expression.(*FunctionLiteral)
	require.True(t, ok)
	assert.Nil(t, fn.Name)
	require.Len(t, fn.Body.Statements, 2)

	with, ok := fn.Body.Statements[1].(*WithStatement)
	require.True(t, ok)
	assert.Equal(t, "b", with.Object.String())
	body := with.Body.(*BlockStatement)
	ret := body.Statements[0].(*ReturnStatement)
	call := ret.ReturnValue.(*CallExpression)
	assert.Equal(t, "eval", call.Function.String())
	assert.Equal(t, `function(){ var b={c:10}; with(b){ return eval("a"); } }`, fn.Source)
}

func TestForStatements(t *testing.T) {
	prog := parse(t, `
for (var i = 0; i < 10; ++i) {}
for (;;) { break; }
for (var k in obj) continue;
for (x.y in obj) ;
for (var j = ("a" in o); j;) break;
`)
	require.Len(t, prog.Statements, 5)

	loop := prog.Statements[0].(*ForStatement)
	assert.IsType(t, &VarStatement{}, loop.Init)
	assert.Equal(t, "(i < 10)", loop.Condition.String())

	empty := prog.Statements[1].(*ForStatement)
	assert.Nil(t, empty.Init)
	assert.Nil(t, empty.Condition)
	assert.Nil(t, empty.Update)

	forIn := prog.Statements[2].(*ForInStatement)
	assert.IsType(t, &VarStatement{}, forIn.Left)
	assert.Equal(t, "obj", forIn.Object.String())

	member := prog.Statements[3].(*ForInStatement)
	assert.IsType(t, &MemberExpression{}, member.Left)

	// `in` inside parentheses is an operator again.
	assert.IsType(t, &ForStatement{}, prog.Statements[4])
}

func TestObjectLiterals(t *testing.T) {
	prog := parse(t, `x = { a: 1, "b c": 2, 3: 4, if: 5, get d() { return 1 }, set d(v) {}, m() {}, e }`)
	assign := prog.Statements[0].(*ExpressionStatement).Expression.(*AssignmentExpression)
	obj := assign.Value.(*ObjectLiteral)

	var keys, kinds []string
	for _, p := range obj.Properties {
		keys = append(keys, p.Key)
		kinds = append(kinds, p.Kind)
	}
	assert.Equal(t, []string{"a", "b c", "3", "if", "d", "d", "m", "e"}, keys)
	assert.Equal(t, []string{"init", "init", "init", "init", "get", "set", "init", "init"}, kinds)
	assert.IsType(t, &FunctionLiteral{}, obj.Properties[6].Value)
	assert.IsType(t, &Identifier{}, obj.Properties[7].Value)
}

func TestArrowFunctions(t *testing.T) {
	prog := parse(t, "f = (a, b) => a + b; g = x => { return x }; h = () => 1")
	require.Len(t, prog.Statements, 3)

	for i, params := range []int{2, 1, 0} {
		assign := prog.Statements[i].(*ExpressionStatement).Expression.(*AssignmentExpression)
		fn, ok := assign.Value.(*FunctionLiteral)
		require.True(t, ok, "statement %d", i)
		assert.True(t, fn.IsArrow)
		assert.Len(t, fn.Parameters, params)
		assert.IsType(t, &ReturnStatement{}, fn.Body.Statements[0])
	}
}

func TestTryAndSwitch(t *testing.T) {
	prog := parse(t, `
try { a } catch (e) { b } finally { c }
switch (x) { case 1: y; case 2: break; default: z }
out: for (;;) { for (;;) { continue out; } }
`)
	try := prog.Statements[0].(*TryStatement)
	assert.Equal(t, "e", try.CatchParam.Value)
	assert.NotNil(t, try.FinallyBlock)

	sw := prog.Statements[1].(*SwitchStatement)
	require.Len(t, sw.Cases, 3)
	assert.Nil(t, sw.Cases[2].Test)

	labeled := prog.Statements[2].(*LabeledStatement)
	assert.Equal(t, "out", labeled.Label.Value)
}

func TestRegexLiteralParsing(t *testing.T) {
	prog := parse(t, `var r = /a+b/gi`)
	decl := prog.Statements[0].(*VarStatement).Declarations[0]
	re := decl.Value.(*RegexLiteral)
	assert.Equal(t, "a+b", re.Pattern)
	assert.Equal(t, "gi", re.Flags)
}

func TestSyntaxErrors(t *testing.T) {
	tests := []struct {
		input string
		msg   string
	}{
		{"var = 1", "expected next token to be IDENT, got = instead"},
		{"return 1", "Illegal return statement"},
		{"a b", "Unexpected token b"},
		{"break;", "Illegal break statement"},
		{"1 = 2", "Invalid left-hand side in assignment"},
		{"try {}", "Missing catch or finally after try"},
		{"throw\n1", "Illegal newline after throw"},
		{"(1 + ", "Unexpected end of input"},
		{"x = /a/gg", "Invalid regular expression flags"},
		{"const c;", "Missing initializer in const declaration"},
	}

	for _, tt := range tests {
		_, errs := ParseSource(source.NewEvalSource(tt.input))
		if assert.NotEmpty(t, errs, tt.input) {
			assert.Equal(t, tt.msg, errs[0].Message(), tt.input)
			assert.Equal(t, "Syntax", errs[0].Kind())
		}
	}
}
