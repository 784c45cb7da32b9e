package lexer

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenType represents the type of a token.
type TokenType string

// Token represents a lexical token.
type Token struct {
	Type     TokenType
	Literal  string // The token text; for STRING the unescaped value
	Line     int    // 1-based line number where the token starts
	Column   int    // 1-based column number where the token starts
	StartPos int    // 0-based byte offset where the token starts
	EndPos   int    // 0-based byte offset after the token ends
	// NewlineBefore is set when at least one line terminator separates
	// this token from the previous one. The parser uses it for ASI.
	NewlineBefore bool
}

// --- Token Types ---
const (
	// Special
	ILLEGAL TokenType = "ILLEGAL" // Unknown token/character
	EOF     TokenType = "EOF"     // End Of File

	// Identifiers + Literals
	IDENT          TokenType = "IDENT"  // functionName, variableName
	NUMBER         TokenType = "NUMBER" // 123, 45.67, 0xff
	STRING         TokenType = "STRING" // "hello world"
	REGEX_LITERAL  TokenType = "REGEX"  // /ab+c/gi
	TEMPLATE_START TokenType = "`"      // reserved, reported as ILLEGAL

	// Operators
	ASSIGN   TokenType = "="
	PLUS     TokenType = "+"
	MINUS    TokenType = "-"
	BANG     TokenType = "!"
	ASTERISK TokenType = "*"
	SLASH    TokenType = "/"
	PERCENT  TokenType = "%"
	LT       TokenType = "<"
	GT       TokenType = ">"
	EQ       TokenType = "=="
	NOT_EQ   TokenType = "!="
	LE       TokenType = "<="
	GE       TokenType = ">="
	DOT      TokenType = "."

	STRICT_EQ     TokenType = "==="
	STRICT_NOT_EQ TokenType = "!=="

	// Bitwise
	BITWISE_AND TokenType = "&"
	BITWISE_OR  TokenType = "|"
	BITWISE_XOR TokenType = "^"
	BITWISE_NOT TokenType = "~"
	LEFT_SHIFT  TokenType = "<<"
	RIGHT_SHIFT TokenType = ">>"
	UNSIGNED_RS TokenType = ">>>"

	// Logical
	LOGICAL_AND TokenType = "&&"
	LOGICAL_OR  TokenType = "||"

	// Compound Assignment
	PLUS_ASSIGN        TokenType = "+="
	MINUS_ASSIGN       TokenType = "-="
	ASTERISK_ASSIGN    TokenType = "*="
	SLASH_ASSIGN       TokenType = "/="
	PERCENT_ASSIGN     TokenType = "%="
	BITWISE_AND_ASSIGN TokenType = "&="
	BITWISE_OR_ASSIGN  TokenType = "|="
	BITWISE_XOR_ASSIGN TokenType = "^="
	LEFT_SHIFT_ASSIGN  TokenType = "<<="
	RIGHT_SHIFT_ASSIGN TokenType = ">>="
	UNSIGNED_RS_ASSIGN TokenType = ">>>="

	// Increment/Decrement
	INC TokenType = "++"
	DEC TokenType = "--"

	// Delimiters
	COMMA     TokenType = ","
	SEMICOLON TokenType = ";"
	COLON     TokenType = ":"
	QUESTION  TokenType = "?"
	LPAREN    TokenType = "("
	RPAREN    TokenType = ")"
	LBRACE    TokenType = "{"
	RBRACE    TokenType = "}"
	LBRACKET  TokenType = "["
	RBRACKET  TokenType = "]"
	ARROW     TokenType = "=>"

	// Keywords
	VAR        TokenType = "VAR"
	LET        TokenType = "LET"
	CONST      TokenType = "CONST"
	FUNCTION   TokenType = "FUNCTION"
	RETURN     TokenType = "RETURN"
	IF         TokenType = "IF"
	ELSE       TokenType = "ELSE"
	WHILE      TokenType = "WHILE"
	DO         TokenType = "DO"
	FOR        TokenType = "FOR"
	IN         TokenType = "IN"
	BREAK      TokenType = "BREAK"
	CONTINUE   TokenType = "CONTINUE"
	SWITCH     TokenType = "SWITCH"
	CASE       TokenType = "CASE"
	DEFAULT    TokenType = "DEFAULT"
	THROW      TokenType = "THROW"
	TRY        TokenType = "TRY"
	CATCH      TokenType = "CATCH"
	FINALLY    TokenType = "FINALLY"
	NEW        TokenType = "NEW"
	DELETE     TokenType = "DELETE"
	TYPEOF     TokenType = "TYPEOF"
	VOID       TokenType = "VOID"
	INSTANCEOF TokenType = "INSTANCEOF"
	THIS       TokenType = "THIS"
	WITH       TokenType = "WITH"
	TRUE       TokenType = "TRUE"
	FALSE      TokenType = "FALSE"
	NULL       TokenType = "NULL"
	DEBUGGER   TokenType = "DEBUGGER"
)

var keywords = map[string]TokenType{
	"var":        VAR,
	"let":        LET,
	"const":      CONST,
	"function":   FUNCTION,
	"return":     RETURN,
	"if":         IF,
	"else":       ELSE,
	"while":      WHILE,
	"do":         DO,
	"for":        FOR,
	"in":         IN,
	"break":      BREAK,
	"continue":   CONTINUE,
	"switch":     SWITCH,
	"case":       CASE,
	"default":    DEFAULT,
	"throw":      THROW,
	"try":        TRY,
	"catch":      CATCH,
	"finally":    FINALLY,
	"new":        NEW,
	"delete":     DELETE,
	"typeof":     TYPEOF,
	"void":       VOID,
	"instanceof": INSTANCEOF,
	"this":       THIS,
	"with":       WITH,
	"true":       TRUE,
	"false":      FALSE,
	"null":       NULL,
	"debugger":   DEBUGGER,
}

// LookupIdent checks the keywords table for an identifier.
func LookupIdent(ident string) TokenType {
	if tokType, ok := keywords[ident]; ok {
		return tokType
	}
	return IDENT
}

// IsKeyword reports whether t is a reserved word token.
func IsKeyword(t TokenType) bool {
	for _, k := range keywords {
		if k == t {
			return true
		}
	}
	return false
}

// punctuators ordered longest first so the scanner takes the longest match.
var punctuators = []TokenType{
	UNSIGNED_RS_ASSIGN,
	STRICT_EQ, STRICT_NOT_EQ, UNSIGNED_RS, LEFT_SHIFT_ASSIGN, RIGHT_SHIFT_ASSIGN,
	EQ, NOT_EQ, LE, GE, LOGICAL_AND, LOGICAL_OR, INC, DEC, ARROW,
	PLUS_ASSIGN, MINUS_ASSIGN, ASTERISK_ASSIGN, SLASH_ASSIGN, PERCENT_ASSIGN,
	BITWISE_AND_ASSIGN, BITWISE_OR_ASSIGN, BITWISE_XOR_ASSIGN, LEFT_SHIFT, RIGHT_SHIFT,
	ASSIGN, PLUS, MINUS, BANG, ASTERISK, SLASH, PERCENT, LT, GT, DOT,
	BITWISE_AND, BITWISE_OR, BITWISE_XOR, BITWISE_NOT,
	COMMA, SEMICOLON, COLON, QUESTION, LPAREN, RPAREN, LBRACE, RBRACE, LBRACKET, RBRACKET,
}

// Lexer holds the state of the scanner.
type Lexer struct {
	input        string
	position     int  // current position in input (byte offset of ch)
	readPosition int  // byte offset after ch
	ch           byte // current char under examination
	line         int  // current 1-based line number
	column       int  // current 1-based column number

	prevType TokenType // type of the last emitted token, for regex detection
	sawLine  bool      // a line terminator was skipped before the current token
}

// NewLexer creates a new Lexer.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input, line: 1, column: 0}
	l.readChar()
	return l
}

// readChar advances to the next byte, keeping line and column current.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.column = 0
	}

	if l.readPosition >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
	l.column++
}

// peekChar looks ahead in the input without consuming the character.
func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

func (l *Lexer) atEOF() bool {
	return l.position >= len(l.input)
}

// skipWhitespace consumes whitespace and comments. Comments containing a
// line terminator count as a newline for ASI purposes.
func (l *Lexer) skipWhitespace() (ok bool, errTok Token) {
	for {
		switch {
		case l.ch == '\n':
			l.sawLine = true
			l.readChar()
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\r' || l.ch == '\v' || l.ch == '\f':
			l.readChar()
		case l.ch == 0xC2 && l.peekChar() == 0xA0: // NBSP
			l.readChar()
			l.readChar()
		case l.ch == 0xEF && l.peekChar() == 0xBB: // BOM
			l.readChar()
			l.readChar()
			l.readChar()
		case l.ch == '/' && l.peekChar() == '/':
			l.skipComment()
		case l.ch == '/' && l.peekChar() == '*':
			startLine, startCol, startPos := l.line, l.column, l.position
			if !l.skipMultilineComment() {
				return false, Token{Type: ILLEGAL, Literal: "Unterminated multiline comment",
					Line: startLine, Column: startCol, StartPos: startPos, EndPos: l.position}
			}
		default:
			return true, Token{}
		}
	}
}

// NextToken scans the input and returns the next token.
func (l *Lexer) NextToken() Token {
	l.sawLine = false
	if ok, errTok := l.skipWhitespace(); !ok {
		errTok.NewlineBefore = l.sawLine
		l.prevType = ILLEGAL
		return errTok
	}

	startLine := l.line
	startCol := l.column
	startPos := l.position

	tok := l.scan(startLine, startCol, startPos)
	tok.NewlineBefore = l.sawLine
	l.prevType = tok.Type
	return tok
}

func (l *Lexer) scan(startLine, startCol, startPos int) Token {
	mk := func(t TokenType, lit string) Token {
		return Token{Type: t, Literal: lit, Line: startLine, Column: startCol, StartPos: startPos, EndPos: l.position}
	}

	if l.atEOF() {
		return mk(EOF, "")
	}

	switch {
	case isLetter(l.ch) || l.ch >= utf8.RuneSelf || l.ch == '\\':
		ident, ok := l.readIdentifier()
		if !ok {
			return mk(ILLEGAL, "Invalid identifier escape")
		}
		if l.input[startPos] != '\\' {
			return mk(LookupIdent(ident), ident)
		}
		return mk(IDENT, ident)

	case isDigit(l.ch) || (l.ch == '.' && isDigit(l.peekChar())):
		lit, ok := l.readNumber()
		if !ok {
			return mk(ILLEGAL, lit)
		}
		return mk(NUMBER, lit)

	case l.ch == '"' || l.ch == '\'':
		str, err := l.readString(l.ch)
		if err != "" {
			return mk(ILLEGAL, err)
		}
		return mk(STRING, str)

	case l.ch == '`':
		l.readChar()
		return mk(ILLEGAL, "Template literals are not supported")

	case l.ch == '/' && l.regexAllowed():
		lit, ok := l.readRegex()
		if !ok {
			return mk(ILLEGAL, "Unterminated regular expression literal")
		}
		return mk(REGEX_LITERAL, lit)
	}

	rest := l.input[l.position:]
	for _, p := range punctuators {
		if strings.HasPrefix(rest, string(p)) {
			for range len(p) {
				l.readChar()
			}
			return mk(p, string(p))
		}
	}

	ch := l.ch
	l.readChar()
	return mk(ILLEGAL, fmt.Sprintf("Unexpected character %q", ch))
}

// regexAllowed reports whether a '/' at this point begins a regular
// expression literal rather than a division operator.
func (l *Lexer) regexAllowed() bool {
	switch l.prevType {
	case IDENT, NUMBER, STRING, REGEX_LITERAL, RPAREN, RBRACKET, RBRACE,
		THIS, TRUE, FALSE, NULL, INC, DEC:
		return false
	}
	return true
}

// readIdentifier reads an identifier, resolving \uXXXX escapes.
func (l *Lexer) readIdentifier() (string, bool) {
	var b strings.Builder
	for {
		switch {
		case l.ch == '\\':
			if l.peekChar() != 'u' {
				return "", false
			}
			l.readChar()
			l.readChar()
			r, ok := l.readUnicodeEscape()
			if !ok {
				return "", false
			}
			b.WriteRune(r)
		case isLetter(l.ch) || isDigit(l.ch):
			b.WriteByte(l.ch)
			l.readChar()
		case l.ch >= utf8.RuneSelf:
			r, size := utf8.DecodeRuneInString(l.input[l.position:])
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\u200c' && r != '\u200d' {
				return b.String(), b.Len() > 0
			}
			b.WriteString(l.input[l.position : l.position+size])
			for range size {
				l.readChar()
			}
		default:
			return b.String(), true
		}
	}
}

// readNumber reads a decimal, hex, octal or binary numeric literal and
// returns its source text.
func (l *Lexer) readNumber() (string, bool) {
	start := l.position

	if l.ch == '0' {
		switch p := l.peekChar(); p {
		case 'x', 'X', 'o', 'O', 'b', 'B':
			base := 16
			if p == 'o' || p == 'O' {
				base = 8
			} else if p == 'b' || p == 'B' {
				base = 2
			}
			l.readChar()
			l.readChar()
			digits := 0
			for isDigitForBase(l.ch, base) {
				l.readChar()
				digits++
			}
			if digits == 0 {
				return "Invalid numeric literal", false
			}
			return l.input[start:l.position], true
		}
	}

	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		l.readChar()
		if l.ch == '+' || l.ch == '-' {
			l.readChar()
		}
		if !isDigit(l.ch) {
			return "Invalid exponent in numeric literal", false
		}
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if isLetter(l.ch) {
		return "Identifier starts immediately after numeric literal", false
	}
	return l.input[start:l.position], true
}

// ParseNumber converts numeric literal text into its value.
func ParseNumber(lit string) (float64, error) {
	if len(lit) > 2 && lit[0] == '0' {
		base := 0
		switch lit[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			u, err := strconv.ParseUint(lit[2:], base, 64)
			if err != nil {
				// Too large for uint64: accumulate as float.
				f := 0.0
				for i := 2; i < len(lit); i++ {
					f = f*float64(base) + float64(digitVal(lit[i]))
				}
				return f, nil
			}
			return float64(u), nil
		}
	}
	return strconv.ParseFloat(lit, 64)
}

// readString reads a string literal enclosed in the given quote character.
// It returns the unescaped value, or a non-empty error message.
func (l *Lexer) readString(quote byte) (string, string) {
	var builder strings.Builder
	l.readChar() // opening quote

	for {
		switch l.ch {
		case quote:
			l.readChar()
			return builder.String(), ""
		case 0:
			if l.atEOF() {
				return "", "Unterminated string literal"
			}
			builder.WriteByte(0)
			l.readChar()
			continue
		case '\n', '\r':
			return "", "Unterminated string literal"
		case '\\':
			l.readChar()
			switch l.ch {
			case 'n':
				builder.WriteByte('\n')
			case 't':
				builder.WriteByte('\t')
			case 'r':
				builder.WriteByte('\r')
			case 'b':
				builder.WriteByte('\b')
			case 'f':
				builder.WriteByte('\f')
			case 'v':
				builder.WriteByte('\v')
			case '0':
				if isDigit(l.peekChar()) {
					return "", "Octal escape sequences are not allowed"
				}
				builder.WriteByte(0)
			case 'x':
				hi, lo := l.peekChar(), byte(0)
				if l.readPosition+1 < len(l.input) {
					lo = l.input[l.readPosition+1]
				}
				if !isHexDigit(hi) || !isHexDigit(lo) {
					return "", "Invalid hexadecimal escape sequence"
				}
				l.readChar()
				l.readChar()
				builder.WriteRune(rune(digitVal(hi)<<4 | digitVal(lo)))
			case 'u':
				l.readChar()
				r, ok := l.readUnicodeEscape()
				if !ok {
					return "", "Invalid Unicode escape sequence"
				}
				builder.WriteRune(r)
				continue
			case '\r':
				if l.peekChar() == '\n' {
					l.readChar()
				}
			case '\n':
				// line continuation
			case 0:
				if l.atEOF() {
					return "", "Unterminated string literal"
				}
				builder.WriteByte(0)
			default:
				builder.WriteByte(l.ch)
			}
			l.readChar()
		default:
			builder.WriteByte(l.ch)
			l.readChar()
		}
	}
}

// readUnicodeEscape reads XXXX or {X...} after "\u" and leaves the lexer on
// the character following the escape.
func (l *Lexer) readUnicodeEscape() (rune, bool) {
	var r rune
	if l.ch == '{' {
		l.readChar()
		digits := 0
		for isHexDigit(l.ch) {
			r = r<<4 | rune(digitVal(l.ch))
			l.readChar()
			digits++
		}
		if l.ch != '}' || digits == 0 || r > unicode.MaxRune {
			return 0, false
		}
		l.readChar()
		return r, true
	}
	for range 4 {
		if !isHexDigit(l.ch) {
			return 0, false
		}
		r = r<<4 | rune(digitVal(l.ch))
		l.readChar()
	}
	// Combine a surrogate pair written as two escapes.
	if r >= 0xD800 && r <= 0xDBFF && l.ch == '\\' && l.peekChar() == 'u' {
		save, saveRead, saveCh, saveLine, saveCol := l.position, l.readPosition, l.ch, l.line, l.column
		l.readChar()
		l.readChar()
		lo, ok := l.readUnicodeEscape()
		if ok && lo >= 0xDC00 && lo <= 0xDFFF {
			return (r-0xD800)<<10 + (lo - 0xDC00) + 0x10000, true
		}
		l.position, l.readPosition, l.ch, l.line, l.column = save, saveRead, saveCh, saveLine, saveCol
	}
	return r, true
}

// readRegex reads /body/flags and returns the literal including slashes.
func (l *Lexer) readRegex() (string, bool) {
	start := l.position
	l.readChar() // opening '/'
	inClass := false
	for {
		switch l.ch {
		case 0, '\n', '\r':
			if l.ch != 0 || l.atEOF() {
				return "", false
			}
		case '\\':
			l.readChar()
			if l.ch == '\n' || l.atEOF() {
				return "", false
			}
		case '[':
			inClass = true
		case ']':
			inClass = false
		case '/':
			if !inClass {
				l.readChar()
				for isLetter(l.ch) {
					l.readChar()
				}
				return l.input[start:l.position], true
			}
		}
		l.readChar()
	}
}

// SplitRegexLiteral splits "/body/flags" into its pattern and flags.
func SplitRegexLiteral(lit string) (pattern, flags string) {
	end := strings.LastIndexByte(lit, '/')
	if end <= 0 {
		return lit, ""
	}
	return lit[1:end], lit[end+1:]
}

// skipComment reads until the end of the line.
func (l *Lexer) skipComment() {
	for l.ch != '\n' && !l.atEOF() {
		l.readChar()
	}
}

// skipMultilineComment consumes "/* ... */". It returns false when the
// comment is not terminated.
func (l *Lexer) skipMultilineComment() bool {
	l.readChar() // '/'
	l.readChar() // '*'
	for !l.atEOF() {
		if l.ch == '*' && l.peekChar() == '/' {
			l.readChar()
			l.readChar()
			return true
		}
		if l.ch == '\n' {
			l.sawLine = true
		}
		l.readChar()
	}
	return false
}

func isLetter(ch byte) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_' || ch == '$'
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || 'a' <= ch && ch <= 'f' || 'A' <= ch && ch <= 'F'
}

func isDigitForBase(ch byte, base int) bool {
	switch base {
	case 2:
		return ch == '0' || ch == '1'
	case 8:
		return '0' <= ch && ch <= '7'
	case 16:
		return isHexDigit(ch)
	}
	return isDigit(ch)
}

func digitVal(ch byte) int {
	switch {
	case isDigit(ch):
		return int(ch - '0')
	case 'a' <= ch && ch <= 'f':
		return int(ch-'a') + 10
	case 'A' <= ch && ch <= 'F':
		return int(ch-'A') + 10
	}
	return 0
}
