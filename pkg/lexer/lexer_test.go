package lexer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

type tokPair struct {
	Type    TokenType
	Literal string
}

func scanAll(input string) []tokPair {
	l := NewLexer(input)
	var out []tokPair
	for {
		tok := l.NextToken()
		out = append(out, tokPair{tok.Type, tok.Literal})
		if tok.Type == EOF || tok.Type == ILLEGAL {
			return out
		}
	}
}

func TestNextToken(t *testing.T) {
	input := `var five = 5;
let ten = 10.5;

var add = function(x, y) {
  return x + y;
};

with (obj) { eval("a"); }
typeof c === 'undefined';
a >>>= 2; b !== c; ++i;
// a comment
/* another
   comment */ null`

	want := []tokPair{
		{VAR, "var"}, {IDENT, "five"}, {ASSIGN, "="}, {NUMBER, "5"}, {SEMICOLON, ";"},
		{LET, "let"}, {IDENT, "ten"}, {ASSIGN, "="}, {NUMBER, "10.5"}, {SEMICOLON, ";"},
		{VAR, "var"}, {IDENT, "add"}, {ASSIGN, "="}, {FUNCTION, "function"}, {LPAREN, "("},
		{IDENT, "x"}, {COMMA, ","}, {IDENT, "y"}, {RPAREN, ")"}, {LBRACE, "{"},
		{RETURN, "return"}, {IDENT, "x"}, {PLUS, "+"}, {IDENT, "y"}, {SEMICOLON, ";"},
		{RBRACE, "}"}, {SEMICOLON, ";"},
		{WITH, "with"}, {LPAREN, "("}, {IDENT, "obj"}, {RPAREN, ")"}, {LBRACE, "{"},
		{IDENT, "eval"}, {LPAREN, "("}, {STRING, "a"}, {RPAREN, ")"}, {SEMICOLON, ";"}, {RBRACE, "}"},
		{TYPEOF, "typeof"}, {IDENT, "c"}, {STRICT_EQ, "==="}, {STRING, "undefined"}, {SEMICOLON, ";"},
		{IDENT, "a"}, {UNSIGNED_RS_ASSIGN, ">>>="}, {NUMBER, "2"}, {SEMICOLON, ";"},
		{IDENT, "b"}, {STRICT_NOT_EQ, "!=="}, {IDENT, "c"}, {SEMICOLON, ";"},
		{INC, "++"}, {IDENT, "i"}, {SEMICOLON, ";"},
		{NULL, "null"},
		{EOF, ""},
	}

	if diff := cmp.Diff(want, scanAll(input)); diff != "" {
		t.Fatalf("token stream mismatch (-want +got):\n%s", diff)
	}
}

func TestTokenPositions(t *testing.T) {
	l := NewLexer("a\n  bb")
	a := l.NextToken()
	b := l.NextToken()

	if a.Line != 1 || a.Column != 1 || a.StartPos != 0 || a.EndPos != 1 {
		t.Errorf("token a at %d:%d [%d,%d)", a.Line, a.Column, a.StartPos, a.EndPos)
	}
	if b.Line != 2 || b.Column != 3 || b.StartPos != 4 || b.EndPos != 6 {
		t.Errorf("token bb at %d:%d [%d,%d)", b.Line, b.Column, b.StartPos, b.EndPos)
	}
	if a.NewlineBefore || !b.NewlineBefore {
		t.Errorf("NewlineBefore: a=%v b=%v", a.NewlineBefore, b.NewlineBefore)
	}
}

func TestStringEscapes(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{`"a\nb"`, "a\nb"},
		{`'it\'s'`, "it's"},
		{`"\x41B\u{43}"`, "ABC"},
		{`"😀"`, "\U0001F600"},
		{"\"line\\\ncontinued\"", "linecontinued"},
	}

	for _, tt := range tests {
		tok := NewLexer(tt.input).NextToken()
		if tok.Type != STRING {
			t.Errorf("%s: expected STRING, got %s (%q)", tt.input, tok.Type, tok.Literal)
			continue
		}
		if tok.Literal != tt.expected {
			t.Errorf("%s: expected %q, got %q", tt.input, tt.expected, tok.Literal)
		}
	}
}

func TestIllegalTokens(t *testing.T) {
	tests := []string{
		`"unterminated`,
		"/* never closed",
		"1e+",
		"0x",
		"`template`",
		"#",
	}

	for _, input := range tests {
		toks := scanAll(input)
		last := toks[len(toks)-1]
		if last.Type != ILLEGAL {
			t.Errorf("%q: expected ILLEGAL, got %v", input, toks)
		}
	}
}

func TestRegexVersusDivision(t *testing.T) {
	tests := []struct {
		input string
		want  []tokPair
	}{
		{"a / b / c", []tokPair{{IDENT, "a"}, {SLASH, "/"}, {IDENT, "b"}, {SLASH, "/"}, {IDENT, "c"}, {EOF, ""}}},
		{"x = /a[/]b/gi;", []tokPair{{IDENT, "x"}, {ASSIGN, "="}, {REGEX_LITERAL, "/a[/]b/gi"}, {SEMICOLON, ";"}, {EOF, ""}}},
		{"(1) / 2", []tokPair{{LPAREN, "("}, {NUMBER, "1"}, {RPAREN, ")"}, {SLASH, "/"}, {NUMBER, "2"}, {EOF, ""}}},
		{"return /\\d+/.test(s)", []tokPair{{RETURN, "return"}, {REGEX_LITERAL, "/\\d+/"}, {DOT, "."}, {IDENT, "test"}, {LPAREN, "("}, {IDENT, "s"}, {RPAREN, ")"}, {EOF, ""}}},
	}

	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, scanAll(tt.input)); diff != "" {
			t.Errorf("%q (-want +got):\n%s", tt.input, diff)
		}
	}

	pattern, flags := SplitRegexLiteral("/a[/]b/gi")
	if pattern != "a[/]b" || flags != "gi" {
		t.Errorf("SplitRegexLiteral = %q, %q", pattern, flags)
	}
}

func TestParseNumber(t *testing.T) {
	tests := map[string]float64{
		"42":     42,
		"3.25":   3.25,
		".5":     0.5,
		"1e3":    1000,
		"0xff":   255,
		"0b101":  5,
		"0o17":   15,
		"2.5E-1": 0.25,
	}
	for lit, want := range tests {
		got, err := ParseNumber(lit)
		if err != nil || got != want {
			t.Errorf("ParseNumber(%q) = %v, %v; want %v", lit, got, err, want)
		}
	}
}
