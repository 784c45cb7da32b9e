package parser

import (
	"fmt"

	"github.com/qtproject/qtjsbackend/pkg/errors"
	"github.com/qtproject/qtjsbackend/pkg/lexer"
	"github.com/qtproject/qtjsbackend/pkg/source"
)

const debugParser = false

func debugPrint(format string, args ...interface{}) {
	if debugParser {
		fmt.Printf("[Parser] "+format+"\n", args...)
	}
}

// Precedence levels for operators
const (
	_ int = iota
	LOWEST
	COMMA       // ,
	ASSIGNMENT  // = += -= ...
	TERNARY     // ?:
	LOGICAL_OR  // ||
	LOGICAL_AND // &&
	BITWISE_OR  // |
	BITWISE_XOR // ^
	BITWISE_AND // &
	EQUALS      // == != === !==
	LESSGREATER // < > <= >= in instanceof
	SHIFT       // << >> >>>
	SUM         // + -
	PRODUCT     // * / %
	PREFIX      // -X !X typeof X
	POSTFIX     // X++ X--
	CALL        // myFunction(X)
	MEMBER      // obj.prop obj[prop]
)

var precedences = map[lexer.TokenType]int{
	lexer.COMMA:              COMMA,
	lexer.ASSIGN:             ASSIGNMENT,
	lexer.PLUS_ASSIGN:        ASSIGNMENT,
	lexer.MINUS_ASSIGN:       ASSIGNMENT,
	lexer.ASTERISK_ASSIGN:    ASSIGNMENT,
	lexer.SLASH_ASSIGN:       ASSIGNMENT,
	lexer.PERCENT_ASSIGN:     ASSIGNMENT,
	lexer.BITWISE_AND_ASSIGN: ASSIGNMENT,
	lexer.BITWISE_OR_ASSIGN:  ASSIGNMENT,
	lexer.BITWISE_XOR_ASSIGN: ASSIGNMENT,
	lexer.LEFT_SHIFT_ASSIGN:  ASSIGNMENT,
	lexer.RIGHT_SHIFT_ASSIGN: ASSIGNMENT,
	lexer.UNSIGNED_RS_ASSIGN: ASSIGNMENT,
	lexer.QUESTION:           TERNARY,
	lexer.LOGICAL_OR:         LOGICAL_OR,
	lexer.LOGICAL_AND:        LOGICAL_AND,
	lexer.BITWISE_OR:         BITWISE_OR,
	lexer.BITWISE_XOR:        BITWISE_XOR,
	lexer.BITWISE_AND:        BITWISE_AND,
	lexer.EQ:                 EQUALS,
	lexer.NOT_EQ:             EQUALS,
	lexer.STRICT_EQ:          EQUALS,
	lexer.STRICT_NOT_EQ:      EQUALS,
	lexer.LT:                 LESSGREATER,
	lexer.GT:                 LESSGREATER,
	lexer.LE:                 LESSGREATER,
	lexer.GE:                 LESSGREATER,
	lexer.IN:                 LESSGREATER,
	lexer.INSTANCEOF:         LESSGREATER,
	lexer.LEFT_SHIFT:         SHIFT,
	lexer.RIGHT_SHIFT:        SHIFT,
	lexer.UNSIGNED_RS:        SHIFT,
	lexer.PLUS:               SUM,
	lexer.MINUS:              SUM,
	lexer.ASTERISK:           PRODUCT,
	lexer.SLASH:              PRODUCT,
	lexer.PERCENT:            PRODUCT,
	lexer.INC:                POSTFIX,
	lexer.DEC:                POSTFIX,
	lexer.LPAREN:             CALL,
	lexer.DOT:                MEMBER,
	lexer.LBRACKET:           MEMBER,
}

type (
	prefixParseFn func() Expression
	infixParseFn  func(Expression) Expression
)

// Parser builds an AST from a token stream. The whole input is scanned up
// front so arrow functions can be recognised with plain lookahead.
type Parser struct {
	src    *source.SourceFile
	tokens []lexer.Token
	pos    int

	curToken  lexer.Token
	peekToken lexer.Token

	errors []errors.ScriptError

	prefixParseFns map[lexer.TokenType]prefixParseFn
	infixParseFns  map[lexer.TokenType]infixParseFn

	noIn       bool // inside a for-init clause, `in` is not an operator
	funcDepth  int
	labels     []string
	breakable  int
	continuity int
}

// NewParser creates a parser for sf.
func NewParser(sf *source.SourceFile) *Parser {
	p := &Parser{src: sf}

	l := lexer.NewLexer(sf.Content)
	for {
		tok := l.NextToken()
		p.tokens = append(p.tokens, tok)
		if tok.Type == lexer.EOF || tok.Type == lexer.ILLEGAL {
			break
		}
	}
	if last := p.tokens[len(p.tokens)-1]; last.Type == lexer.ILLEGAL {
		p.tokens = append(p.tokens, lexer.Token{Type: lexer.EOF, Line: last.Line, Column: last.Column, StartPos: last.EndPos, EndPos: last.EndPos})
	}

	p.prefixParseFns = make(map[lexer.TokenType]prefixParseFn)
	p.registerPrefix(lexer.IDENT, p.parseIdentifierOrArrow)
	p.registerPrefix(lexer.NUMBER, p.parseNumberLiteral)
	p.registerPrefix(lexer.STRING, p.parseStringLiteral)
	p.registerPrefix(lexer.REGEX_LITERAL, p.parseRegexLiteral)
	p.registerPrefix(lexer.TRUE, p.parseBooleanLiteral)
	p.registerPrefix(lexer.FALSE, p.parseBooleanLiteral)
	p.registerPrefix(lexer.NULL, p.parseNullLiteral)
	p.registerPrefix(lexer.THIS, p.parseThisExpression)
	p.registerPrefix(lexer.FUNCTION, p.parseFunctionExpression)
	p.registerPrefix(lexer.LPAREN, p.parseGroupedOrArrow)
	p.registerPrefix(lexer.LBRACKET, p.parseArrayLiteral)
	p.registerPrefix(lexer.LBRACE, p.parseObjectLiteral)
	p.registerPrefix(lexer.NEW, p.parseNewExpression)
	for _, t := range []lexer.TokenType{lexer.BANG, lexer.MINUS, lexer.PLUS, lexer.BITWISE_NOT, lexer.TYPEOF, lexer.VOID, lexer.DELETE} {
		p.registerPrefix(t, p.parsePrefixExpression)
	}
	p.registerPrefix(lexer.INC, p.parsePrefixUpdate)
	p.registerPrefix(lexer.DEC, p.parsePrefixUpdate)

	p.infixParseFns = make(map[lexer.TokenType]infixParseFn)
	for t, prec := range precedences {
		switch prec {
		case ASSIGNMENT:
			p.registerInfix(t, p.parseAssignmentExpression)
		default:
			p.registerInfix(t, p.parseInfixExpression)
		}
	}
	p.registerInfix(lexer.COMMA, p.parseSequenceExpression)
	p.registerInfix(lexer.QUESTION, p.parseConditionalExpression)
	p.registerInfix(lexer.INC, p.parsePostfixUpdate)
	p.registerInfix(lexer.DEC, p.parsePostfixUpdate)
	p.registerInfix(lexer.LPAREN, p.parseCallExpression)
	p.registerInfix(lexer.DOT, p.parseMemberExpression)
	p.registerInfix(lexer.LBRACKET, p.parseIndexExpression)

	// Read two tokens, so curToken and peekToken are both set
	p.pos = -2
	p.nextToken()
	p.nextToken()
	return p
}

// ParseSource is a convenience wrapper parsing sf into a Program.
func ParseSource(sf *source.SourceFile) (*Program, []errors.ScriptError) {
	p := NewParser(sf)
	prog := p.ParseProgram()
	return prog, p.Errors()
}

// Errors returns the errors collected while parsing.
func (p *Parser) Errors() []errors.ScriptError {
	return p.errors
}

func (p *Parser) registerPrefix(tokenType lexer.TokenType, fn prefixParseFn) {
	p.prefixParseFns[tokenType] = fn
}

func (p *Parser) registerInfix(tokenType lexer.TokenType, fn infixParseFn) {
	p.infixParseFns[tokenType] = fn
}

func (p *Parser) tokenAt(i int) lexer.Token {
	if i < 0 {
		return lexer.Token{}
	}
	if i >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[i]
}

func (p *Parser) nextToken() {
	p.pos++
	p.curToken = p.tokenAt(p.pos)
	p.peekToken = p.tokenAt(p.pos + 1)
	debugPrint("nextToken(): cur='%s' (%s), peek='%s' (%s)", p.curToken.Literal, p.curToken.Type, p.peekToken.Literal, p.peekToken.Type)
}

func (p *Parser) curTokenIs(t lexer.TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) peekTokenIs(t lexer.TokenType) bool {
	return p.peekToken.Type == t
}

func (p *Parser) expectPeek(t lexer.TokenType) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.peekError(t)
	return false
}

func (p *Parser) peekPrecedence() int {
	if p.noIn && p.peekToken.Type == lexer.IN {
		return LOWEST
	}
	if prec, ok := precedences[p.peekToken.Type]; ok {
		return prec
	}
	return LOWEST
}

func (p *Parser) addError(tok lexer.Token, format string, args ...interface{}) {
	p.errors = append(p.errors, &errors.SyntaxError{
		Position: errors.Position{
			Line:     tok.Line,
			Column:   tok.Column,
			StartPos: tok.StartPos,
			EndPos:   tok.EndPos,
			Source:   p.src,
		},
		Msg: fmt.Sprintf(format, args...),
	})
}

func (p *Parser) unexpected(tok lexer.Token) {
	switch tok.Type {
	case lexer.ILLEGAL:
		p.addError(tok, "%s", tok.Literal)
	case lexer.EOF:
		p.addError(tok, "Unexpected end of input")
	default:
		p.addError(tok, "Unexpected token %s", tok.Literal)
	}
}

func (p *Parser) peekError(t lexer.TokenType) {
	if p.peekToken.Type == lexer.ILLEGAL || p.peekToken.Type == lexer.EOF {
		p.unexpected(p.peekToken)
		return
	}
	p.addError(p.peekToken, "expected next token to be %s, got %s instead", t, p.peekToken.Literal)
}

func (p *Parser) failed() bool {
	return len(p.errors) > 0
}

// consumeSemicolon applies automatic semicolon insertion after a statement
// whose last token is curToken.
func (p *Parser) consumeSemicolon() bool {
	switch {
	case p.peekTokenIs(lexer.SEMICOLON):
		p.nextToken()
		return true
	case p.peekTokenIs(lexer.RBRACE), p.peekTokenIs(lexer.EOF), p.peekToken.NewlineBefore:
		return true
	}
	p.unexpected(p.peekToken)
	return false
}

// ParseProgram parses the whole input.
func (p *Parser) ParseProgram() *Program {
	program := &Program{}

	for !p.curTokenIs(lexer.EOF) && !p.failed() {
		stmt := p.parseStatement()
		if stmt != nil {
			program.Statements = append(program.Statements, stmt)
		}
		p.nextToken()
	}
	return program
}

// --- Statement Parsing ---

func (p *Parser) parseStatement() Statement {
	debugPrint("parseStatement(): cur='%s' (%s)", p.curToken.Literal, p.curToken.Type)
	switch p.curToken.Type {
	case lexer.VAR, lexer.LET, lexer.CONST:
		stmt := p.parseVarStatement()
		if stmt == nil || !p.consumeSemicolon() {
			return nil
		}
		return stmt
	case lexer.FUNCTION:
		return p.parseFunctionDeclaration()
	case lexer.RETURN:
		return p.parseReturnStatement()
	case lexer.IF:
		return p.parseIfStatement()
	case lexer.WHILE:
		return p.parseWhileStatement()
	case lexer.DO:
		return p.parseDoWhileStatement()
	case lexer.FOR:
		return p.parseForStatement()
	case lexer.BREAK:
		return p.parseBreakStatement()
	case lexer.CONTINUE:
		return p.parseContinueStatement()
	case lexer.THROW:
		return p.parseThrowStatement()
	case lexer.TRY:
		return p.parseTryStatement()
	case lexer.SWITCH:
		return p.parseSwitchStatement()
	case lexer.WITH:
		return p.parseWithStatement()
	case lexer.LBRACE:
		return p.parseBlockStatement()
	case lexer.SEMICOLON:
		return &EmptyStatement{Token: p.curToken}
	case lexer.DEBUGGER:
		tok := p.curToken
		if !p.consumeSemicolon() {
			return nil
		}
		return &EmptyStatement{Token: tok}
	case lexer.IDENT:
		if p.peekTokenIs(lexer.COLON) {
			return p.parseLabeledStatement()
		}
	case lexer.ILLEGAL:
		p.unexpected(p.curToken)
		return nil
	}
	return p.parseExpressionStatement()
}

func (p *Parser) parseVarStatement() *VarStatement {
	stmt := &VarStatement{Token: p.curToken}

	for {
		if !p.expectPeek(lexer.IDENT) {
			return nil
		}
		decl := &VarDeclarator{Name: &Identifier{Token: p.curToken, Value: p.curToken.Literal}}
		if p.peekTokenIs(lexer.ASSIGN) {
			p.nextToken()
			p.nextToken()
			decl.Value = p.parseExpression(COMMA)
			if decl.Value == nil {
				return nil
			}
		} else if stmt.Token.Type == lexer.CONST && !p.peekTokenIs(lexer.IN) {
			p.addError(decl.Name.Token, "Missing initializer in const declaration")
			return nil
		}
		stmt.Declarations = append(stmt.Declarations, decl)
		if !p.peekTokenIs(lexer.COMMA) {
			return stmt
		}
		p.nextToken()
	}
}

func (p *Parser) parseExpressionStatement() Statement {
	stmt := &ExpressionStatement{Token: p.curToken}
	stmt.Expression = p.parseExpression(LOWEST)
	if stmt.Expression == nil || !p.consumeSemicolon() {
		return nil
	}
	return stmt
}

func (p *Parser) parseBlockStatement() *BlockStatement {
	block := &BlockStatement{Token: p.curToken}
	p.nextToken()

	for !p.curTokenIs(lexer.RBRACE) {
		if p.curTokenIs(lexer.EOF) {
			p.unexpected(p.curToken)
			return nil
		}
		stmt := p.parseStatement()
		if stmt == nil {
			return nil
		}
		block.Statements = append(block.Statements, stmt)
		p.nextToken()
	}
	return block
}

// parseBody parses the statement following a control keyword's header.
func (p *Parser) parseBody() Statement {
	p.nextToken()
	if p.curTokenIs(lexer.LET) || p.curTokenIs(lexer.CONST) {
		p.addError(p.curToken, "Lexical declaration cannot appear in a single-statement context")
		return nil
	}
	return p.parseStatement()
}

func (p *Parser) parseReturnStatement() Statement {
	stmt := &ReturnStatement{Token: p.curToken}
	if p.funcDepth == 0 {
		p.addError(p.curToken, "Illegal return statement")
		return nil
	}
	if p.peekTokenIs(lexer.SEMICOLON) || p.peekTokenIs(lexer.RBRACE) || p.peekTokenIs(lexer.EOF) || p.peekToken.NewlineBefore {
		p.consumeSemicolon()
		return stmt
	}
	p.nextToken()
	stmt.ReturnValue = p.parseExpression(LOWEST)
	if stmt.ReturnValue == nil || !p.consumeSemicolon() {
		return nil
	}
	return stmt
}

func (p *Parser) parseIfStatement() Statement {
	stmt := &IfStatement{Token: p.curToken}
	if !p.expectPeek(lexer.LPAREN) {
		return nil
	}
	p.nextToken()
	stmt.Condition = p.parseExpression(LOWEST)
	if stmt.Condition == nil || !p.expectPeek(lexer.RPAREN) {
		return nil
	}
	if stmt.Consequence = p.parseBody(); stmt.Consequence == nil {
		return nil
	}
	if p.peekTokenIs(lexer.ELSE) {
		p.nextToken()
		if stmt.Alternative = p.parseBody(); stmt.Alternative == nil {
			return nil
		}
	}
	return stmt
}

func (p *Parser) parseLoopBody() Statement {
	p.breakable++
	p.continuity++
	defer func() {
		p.breakable--
		p.continuity--
	}()
	return p.parseBody()
}

func (p *Parser) parseWhileStatement() Statement {
	stmt := &WhileStatement{Token: p.curToken}
	if !p.expectPeek(lexer.LPAREN) {
		return nil
	}
	p.nextToken()
	stmt.Condition = p.parseExpression(LOWEST)
	if stmt.Condition == nil || !p.expectPeek(lexer.RPAREN) {
		return nil
	}
	if stmt.Body = p.parseLoopBody(); stmt.Body == nil {
		return nil
	}
	return stmt
}

func (p *Parser) parseDoWhileStatement() Statement {
	stmt := &DoWhileStatement{Token: p.curToken}
	if stmt.Body = p.parseLoopBody(); stmt.Body == nil {
		return nil
	}
	if !p.expectPeek(lexer.WHILE) || !p.expectPeek(lexer.LPAREN) {
		return nil
	}
	p.nextToken()
	stmt.Condition = p.parseExpression(LOWEST)
	if stmt.Condition == nil || !p.expectPeek(lexer.RPAREN) {
		return nil
	}
	if p.peekTokenIs(lexer.SEMICOLON) {
		p.nextToken()
	}
	return stmt
}

func (p *Parser) parseForStatement() Statement {
	tok := p.curToken
	if !p.expectPeek(lexer.LPAREN) {
		return nil
	}
	p.nextToken()

	var init Statement
	switch {
	case p.curTokenIs(lexer.SEMICOLON):
	case p.curTokenIs(lexer.VAR) || p.curTokenIs(lexer.LET) || p.curTokenIs(lexer.CONST):
		p.noIn = true
		decl := p.parseVarStatement()
		p.noIn = false
		if decl == nil {
			return nil
		}
		if p.peekTokenIs(lexer.IN) {
			if len(decl.Declarations) != 1 {
				p.addError(decl.Token, "Invalid left-hand side in for-in loop: Must have a single binding.")
				return nil
			}
			return p.parseForInRest(tok, decl)
		}
		init = decl
		if !p.expectPeek(lexer.SEMICOLON) {
			return nil
		}
	default:
		exprTok := p.curToken
		p.noIn = true
		expr := p.parseExpression(LOWEST)
		p.noIn = false
		if expr == nil {
			return nil
		}
		if p.peekTokenIs(lexer.IN) {
			if !isAssignable(expr) {
				p.addError(exprTok, "Invalid left-hand side in for-in loop")
				return nil
			}
			return p.parseForInRest(tok, expr)
		}
		init = &ExpressionStatement{Token: exprTok, Expression: expr}
		if !p.expectPeek(lexer.SEMICOLON) {
			return nil
		}
	}

	stmt := &ForStatement{Token: tok, Init: init}
	if !p.peekTokenIs(lexer.SEMICOLON) {
		p.nextToken()
		if stmt.Condition = p.parseExpression(LOWEST); stmt.Condition == nil {
			return nil
		}
	}
	if !p.expectPeek(lexer.SEMICOLON) {
		return nil
	}
	if !p.peekTokenIs(lexer.RPAREN) {
		p.nextToken()
		if stmt.Update = p.parseExpression(LOWEST); stmt.Update == nil {
			return nil
		}
	}
	if !p.expectPeek(lexer.RPAREN) {
		return nil
	}
	if stmt.Body = p.parseLoopBody(); stmt.Body == nil {
		return nil
	}
	return stmt
}

func (p *Parser) parseForInRest(tok lexer.Token, left Node) Statement {
	p.nextToken() // 'in'
	p.nextToken()
	stmt := &ForInStatement{Token: tok, Left: left}
	if stmt.Object = p.parseExpression(LOWEST); stmt.Object == nil {
		return nil
	}
	if !p.expectPeek(lexer.RPAREN) {
		return nil
	}
	if stmt.Body = p.parseLoopBody(); stmt.Body == nil {
		return nil
	}
	return stmt
}

func (p *Parser) parseJumpLabel() (*Identifier, bool) {
	if !p.peekTokenIs(lexer.IDENT) || p.peekToken.NewlineBefore {
		return nil, true
	}
	p.nextToken()
	label := &Identifier{Token: p.curToken, Value: p.curToken.Literal}
	for _, l := range p.labels {
		if l == label.Value {
			return label, true
		}
	}
	p.addError(label.Token, "Undefined label '%s'", label.Value)
	return nil, false
}

func (p *Parser) parseBreakStatement() Statement {
	stmt := &BreakStatement{Token: p.curToken}
	label, ok := p.parseJumpLabel()
	if !ok {
		return nil
	}
	stmt.Label = label
	if label == nil && p.breakable == 0 {
		p.addError(stmt.Token, "Illegal break statement")
		return nil
	}
	if !p.consumeSemicolon() {
		return nil
	}
	return stmt
}

func (p *Parser) parseContinueStatement() Statement {
	stmt := &ContinueStatement{Token: p.curToken}
	label, ok := p.parseJumpLabel()
	if !ok {
		return nil
	}
	stmt.Label = label
	if p.continuity == 0 {
		p.addError(stmt.Token, "Illegal continue statement: no surrounding iteration statement")
		return nil
	}
	if !p.consumeSemicolon() {
		return nil
	}
	return stmt
}

func (p *Parser) parseThrowStatement() Statement {
	stmt := &ThrowStatement{Token: p.curToken}
	if p.peekToken.NewlineBefore {
		p.addError(p.peekToken, "Illegal newline after throw")
		return nil
	}
	p.nextToken()
	stmt.Value = p.parseExpression(LOWEST)
	if stmt.Value == nil || !p.consumeSemicolon() {
		return nil
	}
	return stmt
}

func (p *Parser) parseTryStatement() Statement {
	stmt := &TryStatement{Token: p.curToken}
	if !p.expectPeek(lexer.LBRACE) {
		return nil
	}
	if stmt.Block = p.parseBlockStatement(); stmt.Block == nil {
		return nil
	}

	if p.peekTokenIs(lexer.CATCH) {
		p.nextToken()
		if p.peekTokenIs(lexer.LPAREN) {
			p.nextToken()
			if !p.expectPeek(lexer.IDENT) {
				return nil
			}
			stmt.CatchParam = &Identifier{Token: p.curToken, Value: p.curToken.Literal}
			if !p.expectPeek(lexer.RPAREN) {
				return nil
			}
		}
		if !p.expectPeek(lexer.LBRACE) {
			return nil
		}
		if stmt.CatchBlock = p.parseBlockStatement(); stmt.CatchBlock == nil {
			return nil
		}
	}

	if p.peekTokenIs(lexer.FINALLY) {
		p.nextToken()
		if !p.expectPeek(lexer.LBRACE) {
			return nil
		}
		if stmt.FinallyBlock = p.parseBlockStatement(); stmt.FinallyBlock == nil {
			return nil
		}
	}

	if stmt.CatchBlock == nil && stmt.FinallyBlock == nil {
		p.addError(stmt.Token, "Missing catch or finally after try")
		return nil
	}
	return stmt
}

func (p *Parser) parseSwitchStatement() Statement {
	stmt := &SwitchStatement{Token: p.curToken}
	if !p.expectPeek(lexer.LPAREN) {
		return nil
	}
	p.nextToken()
	if stmt.Discriminant = p.parseExpression(LOWEST); stmt.Discriminant == nil {
		return nil
	}
	if !p.expectPeek(lexer.RPAREN) || !p.expectPeek(lexer.LBRACE) {
		return nil
	}
	p.nextToken()

	p.breakable++
	defer func() { p.breakable-- }()

	sawDefault := false
	for !p.curTokenIs(lexer.RBRACE) {
		c := &SwitchCase{Token: p.curToken}
		switch p.curToken.Type {
		case lexer.CASE:
			p.nextToken()
			if c.Test = p.parseExpression(LOWEST); c.Test == nil {
				return nil
			}
		case lexer.DEFAULT:
			if sawDefault {
				p.addError(p.curToken, "More than one default clause in switch statement")
				return nil
			}
			sawDefault = true
		default:
			p.unexpected(p.curToken)
			return nil
		}
		if !p.expectPeek(lexer.COLON) {
			return nil
		}
		p.nextToken()
		for !p.curTokenIs(lexer.CASE) && !p.curTokenIs(lexer.DEFAULT) && !p.curTokenIs(lexer.RBRACE) {
			if p.curTokenIs(lexer.EOF) {
				p.unexpected(p.curToken)
				return nil
			}
			s := p.parseStatement()
			if s == nil {
				return nil
			}
			c.Body = append(c.Body, s)
			p.nextToken()
		}
		stmt.Cases = append(stmt.Cases, c)
	}
	return stmt
}

func (p *Parser) parseWithStatement() Statement {
	stmt := &WithStatement{Token: p.curToken}
	if !p.expectPeek(lexer.LPAREN) {
		return nil
	}
	p.nextToken()
	if stmt.Object = p.parseExpression(LOWEST); stmt.Object == nil {
		return nil
	}
	if !p.expectPeek(lexer.RPAREN) {
		return nil
	}
	if stmt.Body = p.parseBody(); stmt.Body == nil {
		return nil
	}
	return stmt
}

func (p *Parser) parseLabeledStatement() Statement {
	stmt := &LabeledStatement{Token: p.curToken, Label: &Identifier{Token: p.curToken, Value: p.curToken.Literal}}
	p.nextToken() // ':'
	p.labels = append(p.labels, stmt.Label.Value)
	defer func() { p.labels = p.labels[:len(p.labels)-1] }()

	// A labelled block accepts `break label` even outside loops.
	p.breakable++
	defer func() { p.breakable-- }()

	if stmt.Body = p.parseBody(); stmt.Body == nil {
		return nil
	}
	return stmt
}

func (p *Parser) parseFunctionDeclaration() Statement {
	tok := p.curToken
	if !p.peekTokenIs(lexer.IDENT) {
		p.peekError(lexer.IDENT)
		return nil
	}
	fn := p.parseFunctionLiteral()
	if fn == nil {
		return nil
	}
	return &FunctionDeclaration{Token: tok, Function: fn}
}

// --- Expression Parsing (Pratt Parser) ---

func (p *Parser) parseExpression(precedence int) Expression {
	debugPrint("parseExpression(prec=%d): cur='%s' (%s)", precedence, p.curToken.Literal, p.curToken.Type)
	prefix := p.prefixParseFns[p.curToken.Type]
	if prefix == nil {
		p.unexpected(p.curToken)
		return nil
	}
	leftExp := prefix()
	if leftExp == nil {
		return nil
	}

	for precedence < p.peekPrecedence() {
		// Restricted production: no line terminator before postfix ++/--.
		if (p.peekTokenIs(lexer.INC) || p.peekTokenIs(lexer.DEC)) && p.peekToken.NewlineBefore {
			return leftExp
		}
		infix := p.infixParseFns[p.peekToken.Type]
		if infix == nil {
			return leftExp
		}
		p.nextToken()
		leftExp = infix(leftExp)
		if leftExp == nil {
			return nil
		}
	}
	return leftExp
}

func (p *Parser) parseIdentifier() Expression {
	return &Identifier{Token: p.curToken, Value: p.curToken.Literal}
}

func (p *Parser) parseIdentifierOrArrow() Expression {
	ident := &Identifier{Token: p.curToken, Value: p.curToken.Literal}
	if p.peekTokenIs(lexer.ARROW) && !p.peekToken.NewlineBefore {
		p.nextToken()
		return p.parseArrowBody(ident.Token, []*Identifier{ident})
	}
	return ident
}

func (p *Parser) parseNumberLiteral() Expression {
	v, err := lexer.ParseNumber(p.curToken.Literal)
	if err != nil {
		p.addError(p.curToken, "could not parse %q as number", p.curToken.Literal)
		return nil
	}
	return &NumberLiteral{Token: p.curToken, Value: v}
}

func (p *Parser) parseStringLiteral() Expression {
	return &StringLiteral{Token: p.curToken, Value: p.curToken.Literal}
}

func (p *Parser) parseRegexLiteral() Expression {
	pattern, flags := lexer.SplitRegexLiteral(p.curToken.Literal)
	for i, f := range flags {
		if !containsRune("gimsuy", f) || containsRune(flags[:i], f) {
			p.addError(p.curToken, "Invalid regular expression flags")
			return nil
		}
	}
	return &RegexLiteral{Token: p.curToken, Pattern: pattern, Flags: flags}
}

func containsRune(s string, r rune) bool {
	for _, c := range s {
		if c == r {
			return true
		}
	}
	return false
}

func (p *Parser) parseBooleanLiteral() Expression {
	return &BooleanLiteral{Token: p.curToken, Value: p.curTokenIs(lexer.TRUE)}
}

func (p *Parser) parseNullLiteral() Expression {
	return &NullLiteral{Token: p.curToken}
}

func (p *Parser) parseThisExpression() Expression {
	return &ThisExpression{Token: p.curToken}
}

func (p *Parser) parsePrefixExpression() Expression {
	expr := &PrefixExpression{Token: p.curToken, Operator: p.curToken.Literal}
	p.nextToken()
	expr.Right = p.parseExpression(PREFIX)
	if expr.Right == nil {
		return nil
	}
	return expr
}

func (p *Parser) parsePrefixUpdate() Expression {
	expr := &UpdateExpression{Token: p.curToken, Operator: p.curToken.Literal, Prefix: true}
	p.nextToken()
	argTok := p.curToken
	expr.Argument = p.parseExpression(PREFIX)
	if expr.Argument == nil {
		return nil
	}
	if !isAssignable(expr.Argument) {
		p.addError(argTok, "Invalid left-hand side expression in prefix operation")
		return nil
	}
	return expr
}

func (p *Parser) parsePostfixUpdate(left Expression) Expression {
	if !isAssignable(left) {
		p.addError(p.curToken, "Invalid left-hand side expression in postfix operation")
		return nil
	}
	return &UpdateExpression{Token: p.curToken, Operator: p.curToken.Literal, Argument: left}
}

func (p *Parser) parseInfixExpression(left Expression) Expression {
	expr := &InfixExpression{Token: p.curToken, Operator: p.curToken.Literal, Left: left}
	precedence := precedences[p.curToken.Type]
	p.nextToken()
	expr.Right = p.parseExpression(precedence)
	if expr.Right == nil {
		return nil
	}
	return expr
}

func (p *Parser) parseAssignmentExpression(left Expression) Expression {
	if !isAssignable(left) {
		p.addError(p.curToken, "Invalid left-hand side in assignment")
		return nil
	}
	expr := &AssignmentExpression{Token: p.curToken, Operator: p.curToken.Literal, Target: left}
	p.nextToken()
	// Right associative: a = b = c
	expr.Value = p.parseExpression(COMMA)
	if expr.Value == nil {
		return nil
	}
	return expr
}

func (p *Parser) parseSequenceExpression(left Expression) Expression {
	seq := &SequenceExpression{Token: p.curToken, Expressions: []Expression{left}}
	if inner, ok := left.(*SequenceExpression); ok {
		seq.Expressions = inner.Expressions
	}
	p.nextToken()
	right := p.parseExpression(COMMA)
	if right == nil {
		return nil
	}
	seq.Expressions = append(seq.Expressions, right)
	return seq
}

func (p *Parser) parseConditionalExpression(condition Expression) Expression {
	expr := &ConditionalExpression{Token: p.curToken, Condition: condition}
	p.nextToken()
	saveNoIn := p.noIn
	p.noIn = false
	expr.Consequence = p.parseExpression(COMMA)
	p.noIn = saveNoIn
	if expr.Consequence == nil || !p.expectPeek(lexer.COLON) {
		return nil
	}
	p.nextToken()
	expr.Alternative = p.parseExpression(COMMA)
	if expr.Alternative == nil {
		return nil
	}
	return expr
}

func (p *Parser) parseCallExpression(function Expression) Expression {
	expr := &CallExpression{Token: p.curToken, Function: function}
	args, ok := p.parseExpressionList(lexer.RPAREN)
	if !ok {
		return nil
	}
	expr.Arguments = args
	return expr
}

// parseExpressionList parses comma separated expressions up to end.
// curToken is the opening delimiter.
func (p *Parser) parseExpressionList(end lexer.TokenType) ([]Expression, bool) {
	var list []Expression
	saveNoIn := p.noIn
	p.noIn = false
	defer func() { p.noIn = saveNoIn }()

	if p.peekTokenIs(end) {
		p.nextToken()
		return list, true
	}
	for {
		p.nextToken()
		e := p.parseExpression(COMMA)
		if e == nil {
			return nil, false
		}
		list = append(list, e)
		if p.peekTokenIs(lexer.COMMA) {
			p.nextToken()
			if p.peekTokenIs(end) {
				p.nextToken()
				return list, true
			}
			continue
		}
		if !p.expectPeek(end) {
			return nil, false
		}
		return list, true
	}
}

// parsePropertyName accepts identifiers and reserved words after '.'
// and as object literal keys.
func (p *Parser) parsePropertyName() (*Identifier, bool) {
	tok := p.curToken
	switch {
	case tok.Type == lexer.IDENT, lexer.IsKeyword(tok.Type):
		return &Identifier{Token: tok, Value: tok.Literal}, true
	}
	p.unexpected(tok)
	return nil, false
}

func (p *Parser) parseMemberExpression(object Expression) Expression {
	expr := &MemberExpression{Token: p.curToken, Object: object}
	p.nextToken()
	prop, ok := p.parsePropertyName()
	if !ok {
		return nil
	}
	expr.Property = prop
	return expr
}

func (p *Parser) parseIndexExpression(left Expression) Expression {
	expr := &IndexExpression{Token: p.curToken, Left: left}
	saveNoIn := p.noIn
	p.noIn = false
	p.nextToken()
	expr.Index = p.parseExpression(LOWEST)
	p.noIn = saveNoIn
	if expr.Index == nil || !p.expectPeek(lexer.RBRACKET) {
		return nil
	}
	return expr
}

func (p *Parser) parseNewExpression() Expression {
	expr := &NewExpression{Token: p.curToken}
	p.nextToken()
	if p.curTokenIs(lexer.NEW) {
		expr.Constructor = p.parseNewExpression()
	} else {
		prefix := p.prefixParseFns[p.curToken.Type]
		if prefix == nil {
			p.unexpected(p.curToken)
			return nil
		}
		expr.Constructor = prefix()
		// Member accesses bind tighter than the argument list.
		for expr.Constructor != nil && (p.peekTokenIs(lexer.DOT) || p.peekTokenIs(lexer.LBRACKET)) {
			p.nextToken()
			expr.Constructor = p.infixParseFns[p.curToken.Type](expr.Constructor)
		}
	}
	if expr.Constructor == nil {
		return nil
	}
	if p.peekTokenIs(lexer.LPAREN) {
		p.nextToken()
		args, ok := p.parseExpressionList(lexer.RPAREN)
		if !ok {
			return nil
		}
		expr.Arguments = args
	}
	return expr
}

func (p *Parser) parseArrayLiteral() Expression {
	array := &ArrayLiteral{Token: p.curToken}
	saveNoIn := p.noIn
	p.noIn = false
	defer func() { p.noIn = saveNoIn }()

	for {
		p.nextToken()
		switch {
		case p.curTokenIs(lexer.RBRACKET):
			return array
		case p.curTokenIs(lexer.COMMA):
			array.Elements = append(array.Elements, nil)
			continue
		}
		e := p.parseExpression(COMMA)
		if e == nil {
			return nil
		}
		array.Elements = append(array.Elements, e)
		if p.peekTokenIs(lexer.COMMA) {
			p.nextToken()
			continue
		}
		if !p.expectPeek(lexer.RBRACKET) {
			return nil
		}
		return array
	}
}

func (p *Parser) parseObjectLiteral() Expression {
	obj := &ObjectLiteral{Token: p.curToken}
	saveNoIn := p.noIn
	p.noIn = false
	defer func() { p.noIn = saveNoIn }()

	for !p.peekTokenIs(lexer.RBRACE) {
		p.nextToken()
		prop := &ObjectProperty{Kind: "init"}

		if (p.curToken.Literal == "get" || p.curToken.Literal == "set") && p.curTokenIs(lexer.IDENT) &&
			!p.peekTokenIs(lexer.COLON) && !p.peekTokenIs(lexer.COMMA) && !p.peekTokenIs(lexer.RBRACE) && !p.peekTokenIs(lexer.LPAREN) {
			prop.Kind = p.curToken.Literal
			p.nextToken()
		}

		key, ok := p.parseObjectKey()
		if !ok {
			return nil
		}
		prop.Key = key

		switch {
		case prop.Kind != "init" || p.peekTokenIs(lexer.LPAREN):
			// Method shorthand and accessors: key(params) { body }
			fn := p.parseFunctionRest(p.curToken, &Identifier{Token: p.curToken, Value: key})
			if fn == nil {
				return nil
			}
			prop.Value = fn
		case p.peekTokenIs(lexer.COLON):
			p.nextToken()
			p.nextToken()
			if prop.Value = p.parseExpression(COMMA); prop.Value == nil {
				return nil
			}
		case p.curTokenIs(lexer.IDENT) && (p.peekTokenIs(lexer.COMMA) || p.peekTokenIs(lexer.RBRACE)):
			prop.Value = &Identifier{Token: p.curToken, Value: key}
		default:
			p.peekError(lexer.COLON)
			return nil
		}
		obj.Properties = append(obj.Properties, prop)

		if !p.peekTokenIs(lexer.RBRACE) && !p.expectPeek(lexer.COMMA) {
			return nil
		}
	}
	p.nextToken()
	return obj
}

func (p *Parser) parseObjectKey() (string, bool) {
	switch p.curToken.Type {
	case lexer.STRING:
		return p.curToken.Literal, true
	case lexer.NUMBER:
		v, err := lexer.ParseNumber(p.curToken.Literal)
		if err != nil {
			p.unexpected(p.curToken)
			return "", false
		}
		return (&NumberLiteral{Value: v}).String(), true
	}
	ident, ok := p.parsePropertyName()
	if !ok {
		return "", false
	}
	return ident.Value, true
}

func (p *Parser) parseFunctionExpression() Expression {
	fn := p.parseFunctionLiteral()
	if fn == nil {
		return nil
	}
	return fn
}

// parseFunctionLiteral parses `function [name](params) { body }` with
// curToken on FUNCTION.
func (p *Parser) parseFunctionLiteral() *FunctionLiteral {
	tok := p.curToken
	var name *Identifier
	if p.peekTokenIs(lexer.IDENT) {
		p.nextToken()
		name = &Identifier{Token: p.curToken, Value: p.curToken.Literal}
	}
	return p.parseFunctionRest(tok, name)
}

// parseFunctionRest parses `(params) { body }` following curToken.
func (p *Parser) parseFunctionRest(tok lexer.Token, name *Identifier) *FunctionLiteral {
	fn := &FunctionLiteral{Token: tok, Name: name}
	if !p.expectPeek(lexer.LPAREN) {
		return nil
	}
	params, ok := p.parseFunctionParameters()
	if !ok {
		return nil
	}
	fn.Parameters = params
	if !p.expectPeek(lexer.LBRACE) {
		return nil
	}
	if fn.Body = p.parseFunctionBody(); fn.Body == nil {
		return nil
	}
	fn.Source = p.sourceText(tok, p.curToken)
	return fn
}

func (p *Parser) sourceText(from, to lexer.Token) string {
	if p.src == nil || from.StartPos > to.EndPos || to.EndPos > len(p.src.Content) {
		return ""
	}
	return p.src.Content[from.StartPos:to.EndPos]
}

// parseFunctionBody parses a block in a fresh function context.
func (p *Parser) parseFunctionBody() *BlockStatement {
	saveLabels, saveBreak, saveCont, saveNoIn := p.labels, p.breakable, p.continuity, p.noIn
	p.labels, p.breakable, p.continuity, p.noIn = nil, 0, 0, false
	p.funcDepth++
	defer func() {
		p.labels, p.breakable, p.continuity, p.noIn = saveLabels, saveBreak, saveCont, saveNoIn
		p.funcDepth--
	}()
	return p.parseBlockStatement()
}

// parseFunctionParameters parses `(a, b, c)` with curToken on '('.
func (p *Parser) parseFunctionParameters() ([]*Identifier, bool) {
	var params []*Identifier
	if p.peekTokenIs(lexer.RPAREN) {
		p.nextToken()
		return params, true
	}
	for {
		if !p.expectPeek(lexer.IDENT) {
			return nil, false
		}
		params = append(params, &Identifier{Token: p.curToken, Value: p.curToken.Literal})
		if p.peekTokenIs(lexer.COMMA) {
			p.nextToken()
			continue
		}
		if !p.expectPeek(lexer.RPAREN) {
			return nil, false
		}
		return params, true
	}
}

// parseGroupedOrArrow handles `( expr )` and `(a, b) => body`.
func (p *Parser) parseGroupedOrArrow() Expression {
	if p.isArrowAhead() {
		tok := p.curToken
		params, ok := p.parseFunctionParameters()
		if !ok {
			return nil
		}
		if !p.expectPeek(lexer.ARROW) {
			return nil
		}
		return p.parseArrowBody(tok, params)
	}

	saveNoIn := p.noIn
	p.noIn = false
	p.nextToken()
	expr := p.parseExpression(LOWEST)
	p.noIn = saveNoIn
	if expr == nil || !p.expectPeek(lexer.RPAREN) {
		return nil
	}
	return expr
}

// isArrowAhead reports whether the '(' at curToken opens an arrow
// function parameter list.
func (p *Parser) isArrowAhead() bool {
	depth := 0
	for i := p.pos; i < len(p.tokens); i++ {
		switch p.tokens[i].Type {
		case lexer.LPAREN:
			depth++
		case lexer.RPAREN:
			depth--
			if depth == 0 {
				next := p.tokenAt(i + 1)
				return next.Type == lexer.ARROW && !next.NewlineBefore
			}
		case lexer.EOF, lexer.ILLEGAL:
			return false
		}
	}
	return false
}

// parseArrowBody parses the body after '=>' (curToken). A concise body
// becomes a block with a single return.
func (p *Parser) parseArrowBody(tok lexer.Token, params []*Identifier) Expression {
	fn := &FunctionLiteral{Token: tok, Parameters: params, IsArrow: true}
	if p.peekTokenIs(lexer.LBRACE) {
		p.nextToken()
		if fn.Body = p.parseFunctionBody(); fn.Body == nil {
			return nil
		}
		fn.Source = p.sourceText(tok, p.curToken)
		return fn
	}
	p.nextToken()
	bodyTok := p.curToken
	p.funcDepth++
	value := p.parseExpression(COMMA)
	p.funcDepth--
	if value == nil {
		return nil
	}
	fn.Body = &BlockStatement{Token: bodyTok, Statements: []Statement{&ReturnStatement{Token: bodyTok, ReturnValue: value}}}
	fn.Source = p.sourceText(tok, p.curToken)
	return fn
}

func isAssignable(e Expression) bool {
	switch e.(type) {
	case *Identifier, *MemberExpression, *IndexExpression:
		return true
	}
	return false
}
