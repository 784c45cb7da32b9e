package parser

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/qtproject/qtjsbackend/pkg/lexer"
)

// --- Interfaces ---

// Node is the base interface for all AST nodes.
type Node interface {
	TokenLiteral() string // Returns the literal value of the token associated with the node
	String() string       // Returns a string representation of the node (for debugging)
}

// Statement represents a statement node in the AST.
type Statement interface {
	Node
	statementNode()
}

// Expression represents an expression node in the AST.
type Expression interface {
	Node
	expressionNode()
}

// Pos returns the token of n for error reporting.
func Pos(n Node) lexer.Token {
	switch n := n.(type) {
	case interface{ tok() lexer.Token }:
		return n.tok()
	}
	return lexer.Token{}
}

// --- Program Node ---

// Program is the root node of the AST.
type Program struct {
	Statements []Statement
}

func (p *Program) TokenLiteral() string {
	if len(p.Statements) > 0 {
		return p.Statements[0].TokenLiteral()
	}
	return ""
}

func (p *Program) String() string {
	var out bytes.Buffer
	for _, s := range p.Statements {
		out.WriteString(s.String())
	}
	return out.String()
}

// --- Statement Nodes ---

// VarStatement is a var, let or const declaration list.
type VarStatement struct {
	Token        lexer.Token // VAR, LET or CONST
	Declarations []*VarDeclarator
}

// VarDeclarator is a single `name = value` inside a declaration list.
type VarDeclarator struct {
	Name  *Identifier
	Value Expression // may be nil
}

func (vs *VarStatement) statementNode()       {}
func (vs *VarStatement) TokenLiteral() string { return vs.Token.Literal }
func (vs *VarStatement) tok() lexer.Token     { return vs.Token }
func (vs *VarStatement) String() string {
	parts := make([]string, len(vs.Declarations))
	for i, d := range vs.Declarations {
		parts[i] = d.Name.Value
		if d.Value != nil {
			parts[i] += " = " + d.Value.String()
		}
	}
	return vs.Token.Literal + " " + strings.Join(parts, ", ") + ";"
}

// IsLexical reports whether the declaration is let or const.
func (vs *VarStatement) IsLexical() bool {
	return vs.Token.Type == lexer.LET || vs.Token.Type == lexer.CONST
}

// ExpressionStatement wraps an expression used as a statement.
type ExpressionStatement struct {
	Token      lexer.Token
	Expression Expression
}

func (es *ExpressionStatement) statementNode()       {}
func (es *ExpressionStatement) TokenLiteral() string { return es.Token.Literal }
func (es *ExpressionStatement) tok() lexer.Token     { return es.Token }
func (es *ExpressionStatement) String() string {
	if es.Expression != nil {
		return es.Expression.String() + ";"
	}
	return ";"
}

// BlockStatement represents a `{ ... }` block.
type BlockStatement struct {
	Token      lexer.Token
	Statements []Statement
}

func (bs *BlockStatement) statementNode()       {}
func (bs *BlockStatement) TokenLiteral() string { return bs.Token.Literal }
func (bs *BlockStatement) tok() lexer.Token     { return bs.Token }
func (bs *BlockStatement) String() string {
	var out bytes.Buffer
	out.WriteString("{")
	for _, s := range bs.Statements {
		out.WriteString(" ")
		out.WriteString(s.String())
	}
	out.WriteString(" }")
	return out.String()
}

// EmptyStatement is a lone `;` (or a `debugger;`).
type EmptyStatement struct {
	Token lexer.Token
}

func (es *EmptyStatement) statementNode()       {}
func (es *EmptyStatement) TokenLiteral() string { return es.Token.Literal }
func (es *EmptyStatement) tok() lexer.Token     { return es.Token }
func (es *EmptyStatement) String() string       { return ";" }

type IfStatement struct {
	Token       lexer.Token
	Condition   Expression
	Consequence Statement
	Alternative Statement // may be nil
}

func (is *IfStatement) statementNode()       {}
func (is *IfStatement) TokenLiteral() string { return is.Token.Literal }
func (is *IfStatement) tok() lexer.Token     { return is.Token }
func (is *IfStatement) String() string {
	s := "if (" + is.Condition.String() + ") " + is.Consequence.String()
	if is.Alternative != nil {
		s += " else " + is.Alternative.String()
	}
	return s
}

type WhileStatement struct {
	Token     lexer.Token
	Condition Expression
	Body      Statement
}

func (ws *WhileStatement) statementNode()       {}
func (ws *WhileStatement) TokenLiteral() string { return ws.Token.Literal }
func (ws *WhileStatement) tok() lexer.Token     { return ws.Token }
func (ws *WhileStatement) String() string {
	return "while (" + ws.Condition.String() + ") " + ws.Body.String()
}

type DoWhileStatement struct {
	Token     lexer.Token
	Body      Statement
	Condition Expression
}

func (ds *DoWhileStatement) statementNode()       {}
func (ds *DoWhileStatement) TokenLiteral() string { return ds.Token.Literal }
func (ds *DoWhileStatement) tok() lexer.Token     { return ds.Token }
func (ds *DoWhileStatement) String() string {
	return "do " + ds.Body.String() + " while (" + ds.Condition.String() + ");"
}

// ForStatement is the classic three-clause loop. Init is a *VarStatement,
// an *ExpressionStatement or nil.
type ForStatement struct {
	Token     lexer.Token
	Init      Statement
	Condition Expression
	Update    Expression
	Body      Statement
}

func (fs *ForStatement) statementNode()       {}
func (fs *ForStatement) TokenLiteral() string { return fs.Token.Literal }
func (fs *ForStatement) tok() lexer.Token     { return fs.Token }
func (fs *ForStatement) String() string {
	str := func(n Node) string {
		if n == nil {
			return ""
		}
		return strings.TrimSuffix(n.String(), ";")
	}
	var init, cond, update string
	if fs.Init != nil {
		init = str(fs.Init)
	}
	if fs.Condition != nil {
		cond = str(fs.Condition)
	}
	if fs.Update != nil {
		update = str(fs.Update)
	}
	return fmt.Sprintf("for (%s; %s; %s) %s", init, cond, update, fs.Body.String())
}

// ForInStatement is `for (left in object) body`. Left is either a
// *VarStatement with one declarator or an assignable Expression.
type ForInStatement struct {
	Token  lexer.Token
	Left   Node
	Object Expression
	Body   Statement
}

func (fs *ForInStatement) statementNode()       {}
func (fs *ForInStatement) TokenLiteral() string { return fs.Token.Literal }
func (fs *ForInStatement) tok() lexer.Token     { return fs.Token }
func (fs *ForInStatement) String() string {
	return "for (" + strings.TrimSuffix(fs.Left.String(), ";") + " in " + fs.Object.String() + ") " + fs.Body.String()
}

type ReturnStatement struct {
	Token       lexer.Token
	ReturnValue Expression // may be nil
}

func (rs *ReturnStatement) statementNode()       {}
func (rs *ReturnStatement) TokenLiteral() string { return rs.Token.Literal }
func (rs *ReturnStatement) tok() lexer.Token     { return rs.Token }
func (rs *ReturnStatement) String() string {
	if rs.ReturnValue == nil {
		return "return;"
	}
	return "return " + rs.ReturnValue.String() + ";"
}

type BreakStatement struct {
	Token lexer.Token
	Label *Identifier // may be nil
}

func (bs *BreakStatement) statementNode()       {}
func (bs *BreakStatement) TokenLiteral() string { return bs.Token.Literal }
func (bs *BreakStatement) tok() lexer.Token     { return bs.Token }
func (bs *BreakStatement) String() string {
	if bs.Label != nil {
		return "break " + bs.Label.Value + ";"
	}
	return "break;"
}

type ContinueStatement struct {
	Token lexer.Token
	Label *Identifier
}

func (cs *ContinueStatement) statementNode()       {}
func (cs *ContinueStatement) TokenLiteral() string { return cs.Token.Literal }
func (cs *ContinueStatement) tok() lexer.Token     { return cs.Token }
func (cs *ContinueStatement) String() string {
	if cs.Label != nil {
		return "continue " + cs.Label.Value + ";"
	}
	return "continue;"
}

type ThrowStatement struct {
	Token lexer.Token
	Value Expression
}

func (ts *ThrowStatement) statementNode()       {}
func (ts *ThrowStatement) TokenLiteral() string { return ts.Token.Literal }
func (ts *ThrowStatement) tok() lexer.Token     { return ts.Token }
func (ts *ThrowStatement) String() string       { return "throw " + ts.Value.String() + ";" }

// TryStatement holds try/catch/finally. Either CatchBlock or FinallyBlock
// is non-nil.
type TryStatement struct {
	Token        lexer.Token
	Block        *BlockStatement
	CatchParam   *Identifier // may be nil with a CatchBlock (optional binding)
	CatchBlock   *BlockStatement
	FinallyBlock *BlockStatement
}

func (ts *TryStatement) statementNode()       {}
func (ts *TryStatement) TokenLiteral() string { return ts.Token.Literal }
func (ts *TryStatement) tok() lexer.Token     { return ts.Token }
func (ts *TryStatement) String() string {
	s := "try " + ts.Block.String()
	if ts.CatchBlock != nil {
		s += " catch"
		if ts.CatchParam != nil {
			s += " (" + ts.CatchParam.Value + ")"
		}
		s += " " + ts.CatchBlock.String()
	}
	if ts.FinallyBlock != nil {
		s += " finally " + ts.FinallyBlock.String()
	}
	return s
}

type SwitchStatement struct {
	Token        lexer.Token
	Discriminant Expression
	Cases        []*SwitchCase
}

// SwitchCase is one `case X:` or `default:` clause. Test is nil for default.
type SwitchCase struct {
	Token lexer.Token
	Test  Expression
	Body  []Statement
}

func (ss *SwitchStatement) statementNode()       {}
func (ss *SwitchStatement) TokenLiteral() string { return ss.Token.Literal }
func (ss *SwitchStatement) tok() lexer.Token     { return ss.Token }
func (ss *SwitchStatement) String() string {
	var out bytes.Buffer
	out.WriteString("switch (" + ss.Discriminant.String() + ") {")
	for _, c := range ss.Cases {
		if c.Test == nil {
			out.WriteString(" default:")
		} else {
			out.WriteString(" case " + c.Test.String() + ":")
		}
		for _, s := range c.Body {
			out.WriteString(" " + s.String())
		}
	}
	out.WriteString(" }")
	return out.String()
}

// WithStatement is `with (object) body`.
type WithStatement struct {
	Token  lexer.Token
	Object Expression
	Body   Statement
}

func (ws *WithStatement) statementNode()       {}
func (ws *WithStatement) TokenLiteral() string { return ws.Token.Literal }
func (ws *WithStatement) tok() lexer.Token     { return ws.Token }
func (ws *WithStatement) String() string {
	return "with (" + ws.Object.String() + ") " + ws.Body.String()
}

type LabeledStatement struct {
	Token lexer.Token
	Label *Identifier
	Body  Statement
}

func (ls *LabeledStatement) statementNode()       {}
func (ls *LabeledStatement) TokenLiteral() string { return ls.Token.Literal }
func (ls *LabeledStatement) tok() lexer.Token     { return ls.Token }
func (ls *LabeledStatement) String() string       { return ls.Label.Value + ": " + ls.Body.String() }

// FunctionDeclaration is a hoisted `function name() {}` statement.
type FunctionDeclaration struct {
	Token    lexer.Token
	Function *FunctionLiteral
}

func (fd *FunctionDeclaration) statementNode()       {}
func (fd *FunctionDeclaration) TokenLiteral() string { return fd.Token.Literal }
func (fd *FunctionDeclaration) tok() lexer.Token     { return fd.Token }
func (fd *FunctionDeclaration) String() string       { return fd.Function.String() }

// --- Expression Nodes ---

type Identifier struct {
	Token lexer.Token
	Value string
}

func (i *Identifier) expressionNode()      {}
func (i *Identifier) TokenLiteral() string { return i.Token.Literal }
func (i *Identifier) tok() lexer.Token     { return i.Token }
func (i *Identifier) String() string       { return i.Value }

type NumberLiteral struct {
	Token lexer.Token
	Value float64
}

func (nl *NumberLiteral) expressionNode()      {}
func (nl *NumberLiteral) TokenLiteral() string { return nl.Token.Literal }
func (nl *NumberLiteral) tok() lexer.Token     { return nl.Token }
func (nl *NumberLiteral) String() string       { return strconv.FormatFloat(nl.Value, 'g', -1, 64) }

type StringLiteral struct {
	Token lexer.Token
	Value string
}

func (sl *StringLiteral) expressionNode()      {}
func (sl *StringLiteral) TokenLiteral() string { return sl.Token.Literal }
func (sl *StringLiteral) tok() lexer.Token     { return sl.Token }
func (sl *StringLiteral) String() string       { return strconv.Quote(sl.Value) }

type BooleanLiteral struct {
	Token lexer.Token
	Value bool
}

func (bl *BooleanLiteral) expressionNode()      {}
func (bl *BooleanLiteral) TokenLiteral() string { return bl.Token.Literal }
func (bl *BooleanLiteral) tok() lexer.Token     { return bl.Token }
func (bl *BooleanLiteral) String() string       { return bl.Token.Literal }

type NullLiteral struct {
	Token lexer.Token
}

func (nl *NullLiteral) expressionNode()      {}
func (nl *NullLiteral) TokenLiteral() string { return nl.Token.Literal }
func (nl *NullLiteral) tok() lexer.Token     { return nl.Token }
func (nl *NullLiteral) String() string       { return "null" }

type RegexLiteral struct {
	Token   lexer.Token
	Pattern string
	Flags   string
}

func (rl *RegexLiteral) expressionNode()      {}
func (rl *RegexLiteral) TokenLiteral() string { return rl.Token.Literal }
func (rl *RegexLiteral) tok() lexer.Token     { return rl.Token }
func (rl *RegexLiteral) String() string       { return "/" + rl.Pattern + "/" + rl.Flags }

type ThisExpression struct {
	Token lexer.Token
}

func (te *ThisExpression) expressionNode()      {}
func (te *ThisExpression) TokenLiteral() string { return te.Token.Literal }
func (te *ThisExpression) tok() lexer.Token     { return te.Token }
func (te *ThisExpression) String() string       { return "this" }

// ArrayLiteral holds its elements; a nil element is a hole.
type ArrayLiteral struct {
	Token    lexer.Token
	Elements []Expression
}

func (al *ArrayLiteral) expressionNode()      {}
func (al *ArrayLiteral) TokenLiteral() string { return al.Token.Literal }
func (al *ArrayLiteral) tok() lexer.Token     { return al.Token }
func (al *ArrayLiteral) String() string {
	parts := make([]string, len(al.Elements))
	for i, e := range al.Elements {
		if e != nil {
			parts[i] = e.String()
		}
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

type ObjectLiteral struct {
	Token      lexer.Token
	Properties []*ObjectProperty
}

// ObjectProperty is a `key: value` entry. Getter and setter entries set
// Kind to "get" or "set" with a FunctionLiteral value.
type ObjectProperty struct {
	Key   string
	Kind  string // "init", "get", "set"
	Value Expression
}

func (ol *ObjectLiteral) expressionNode()      {}
func (ol *ObjectLiteral) TokenLiteral() string { return ol.Token.Literal }
func (ol *ObjectLiteral) tok() lexer.Token     { return ol.Token }
func (ol *ObjectLiteral) String() string {
	parts := make([]string, len(ol.Properties))
	for i, p := range ol.Properties {
		prefix := ""
		if p.Kind != "init" {
			prefix = p.Kind + " "
		}
		parts[i] = prefix + strconv.Quote(p.Key) + ": " + p.Value.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// FunctionLiteral is a function expression, declaration body or arrow.
type FunctionLiteral struct {
	Token      lexer.Token
	Name       *Identifier // nil for anonymous functions
	Parameters []*Identifier
	Body       *BlockStatement
	IsArrow    bool
	Source     string // source text, for Function.prototype.toString
}

func (fl *FunctionLiteral) expressionNode()      {}
func (fl *FunctionLiteral) TokenLiteral() string { return fl.Token.Literal }
func (fl *FunctionLiteral) tok() lexer.Token     { return fl.Token }
func (fl *FunctionLiteral) String() string {
	params := make([]string, len(fl.Parameters))
	for i, p := range fl.Parameters {
		params[i] = p.Value
	}
	if fl.IsArrow {
		return "(" + strings.Join(params, ", ") + ") => " + fl.Body.String()
	}
	name := ""
	if fl.Name != nil {
		name = " " + fl.Name.Value
	}
	return "function" + name + "(" + strings.Join(params, ", ") + ") " + fl.Body.String()
}

// PrefixExpression covers -x, +x, !x, ~x, typeof x, void x, delete x.
type PrefixExpression struct {
	Token    lexer.Token
	Operator string
	Right    Expression
}

func (pe *PrefixExpression) expressionNode()      {}
func (pe *PrefixExpression) TokenLiteral() string { return pe.Token.Literal }
func (pe *PrefixExpression) tok() lexer.Token     { return pe.Token }
func (pe *PrefixExpression) String() string {
	sep := ""
	if len(pe.Operator) > 1 {
		sep = " "
	}
	return "(" + pe.Operator + sep + pe.Right.String() + ")"
}

// UpdateExpression is ++x, x++, --x or x--.
type UpdateExpression struct {
	Token    lexer.Token
	Operator string
	Prefix   bool
	Argument Expression
}

func (ue *UpdateExpression) expressionNode()      {}
func (ue *UpdateExpression) TokenLiteral() string { return ue.Token.Literal }
func (ue *UpdateExpression) tok() lexer.Token     { return ue.Token }
func (ue *UpdateExpression) String() string {
	if ue.Prefix {
		return "(" + ue.Operator + ue.Argument.String() + ")"
	}
	return "(" + ue.Argument.String() + ue.Operator + ")"
}

// InfixExpression is any binary operator, including && and ||.
type InfixExpression struct {
	Token    lexer.Token
	Left     Expression
	Operator string
	Right    Expression
}

func (ie *InfixExpression) expressionNode()      {}
func (ie *InfixExpression) TokenLiteral() string { return ie.Token.Literal }
func (ie *InfixExpression) tok() lexer.Token     { return ie.Token }
func (ie *InfixExpression) String() string {
	return "(" + ie.Left.String() + " " + ie.Operator + " " + ie.Right.String() + ")"
}

type AssignmentExpression struct {
	Token    lexer.Token
	Operator string // "=", "+=", ...
	Target   Expression
	Value    Expression
}

func (ae *AssignmentExpression) expressionNode()      {}
func (ae *AssignmentExpression) TokenLiteral() string { return ae.Token.Literal }
func (ae *AssignmentExpression) tok() lexer.Token     { return ae.Token }
func (ae *AssignmentExpression) String() string {
	return "(" + ae.Target.String() + " " + ae.Operator + " " + ae.Value.String() + ")"
}

type ConditionalExpression struct {
	Token       lexer.Token
	Condition   Expression
	Consequence Expression
	Alternative Expression
}

func (ce *ConditionalExpression) expressionNode()      {}
func (ce *ConditionalExpression) TokenLiteral() string { return ce.Token.Literal }
func (ce *ConditionalExpression) tok() lexer.Token     { return ce.Token }
func (ce *ConditionalExpression) String() string {
	return "(" + ce.Condition.String() + " ? " + ce.Consequence.String() + " : " + ce.Alternative.String() + ")"
}

type CallExpression struct {
	Token     lexer.Token // '('
	Function  Expression
	Arguments []Expression
}

func (ce *CallExpression) expressionNode()      {}
func (ce *CallExpression) TokenLiteral() string { return ce.Token.Literal }
func (ce *CallExpression) tok() lexer.Token     { return ce.Token }
func (ce *CallExpression) String() string {
	return ce.Function.String() + "(" + joinExprs(ce.Arguments) + ")"
}

type NewExpression struct {
	Token       lexer.Token
	Constructor Expression
	Arguments   []Expression
}

func (ne *NewExpression) expressionNode()      {}
func (ne *NewExpression) TokenLiteral() string { return ne.Token.Literal }
func (ne *NewExpression) tok() lexer.Token     { return ne.Token }
func (ne *NewExpression) String() string {
	return "new " + ne.Constructor.String() + "(" + joinExprs(ne.Arguments) + ")"
}

// MemberExpression is `object.property`.
type MemberExpression struct {
	Token    lexer.Token // '.'
	Object   Expression
	Property *Identifier
}

func (me *MemberExpression) expressionNode()      {}
func (me *MemberExpression) TokenLiteral() string { return me.Token.Literal }
func (me *MemberExpression) tok() lexer.Token     { return me.Token }
func (me *MemberExpression) String() string {
	return me.Object.String() + "." + me.Property.Value
}

// IndexExpression is `left[index]`.
type IndexExpression struct {
	Token lexer.Token // '['
	Left  Expression
	Index Expression
}

func (ie *IndexExpression) expressionNode()      {}
func (ie *IndexExpression) TokenLiteral() string { return ie.Token.Literal }
func (ie *IndexExpression) tok() lexer.Token     { return ie.Token }
func (ie *IndexExpression) String() string {
	return ie.Left.String() + "[" + ie.Index.String() + "]"
}

// SequenceExpression is `a, b, c`.
type SequenceExpression struct {
	Token       lexer.Token
	Expressions []Expression
}

func (se *SequenceExpression) expressionNode()      {}
func (se *SequenceExpression) TokenLiteral() string { return se.Token.Literal }
func (se *SequenceExpression) tok() lexer.Token     { return se.Token }
func (se *SequenceExpression) String() string       { return "(" + joinExprs(se.Expressions) + ")" }

func joinExprs(exprs []Expression) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}
