package compiler

import "github.com/qtproject/qtjsbackend/pkg/parser"

// funcInfo is what a function body declares and uses, gathered before its
// code is generated. Nested functions are not descended into.
type funcInfo struct {
	varNames []string // var and function declarations, in source order
	varSet   map[string]bool

	hasEval       bool // contains a direct call to eval
	hasWith       bool
	hasInner      bool // creates closures
	hasLexical    bool // declares let, const or a catch parameter
	usesArguments bool
}

func (fi *funcInfo) addVar(name string) {
	if fi.varSet[name] {
		return
	}
	fi.varSet[name] = true
	fi.varNames = append(fi.varNames, name)
}

type scanner struct {
	info *funcInfo
	// top-level let and const of a script become global properties
	lexicalAsVar bool
}

func scanFunction(body []parser.Statement, kind codeKind) *funcInfo {
	s := &scanner{
		info:         &funcInfo{varSet: make(map[string]bool)},
		lexicalAsVar: kind == kindScriptCode,
	}
	for _, stmt := range body {
		s.statement(stmt, true)
	}
	return s.info
}

func (s *scanner) statement(stmt parser.Statement, top bool) {
	switch n := stmt.(type) {
	case *parser.VarStatement:
		if n.IsLexical() && !(top && s.lexicalAsVar) {
			s.info.hasLexical = true
		} else {
			for _, d := range n.Declarations {
				s.info.addVar(d.Name.Value)
			}
		}
		for _, d := range n.Declarations {
			s.expression(d.Value)
		}
	case *parser.FunctionDeclaration:
		s.info.hasInner = true
		if n.Function.Name != nil {
			s.info.addVar(n.Function.Name.Value)
		}
	case *parser.ExpressionStatement:
		s.expression(n.Expression)
	case *parser.BlockStatement:
		for _, st := range n.Statements {
			s.statement(st, false)
		}
	case *parser.IfStatement:
		s.expression(n.Condition)
		s.statement(n.Consequence, false)
		if n.Alternative != nil {
			s.statement(n.Alternative, false)
		}
	case *parser.WhileStatement:
		s.expression(n.Condition)
		s.statement(n.Body, false)
	case *parser.DoWhileStatement:
		s.statement(n.Body, false)
		s.expression(n.Condition)
	case *parser.ForStatement:
		if n.Init != nil {
			s.statement(n.Init, false)
		}
		s.expression(n.Condition)
		s.expression(n.Update)
		s.statement(n.Body, false)
	case *parser.ForInStatement:
		switch left := n.Left.(type) {
		case *parser.VarStatement:
			s.statement(left, false)
		case parser.Expression:
			s.expression(left)
		}
		s.expression(n.Object)
		s.statement(n.Body, false)
	case *parser.ReturnStatement:
		s.expression(n.ReturnValue)
	case *parser.ThrowStatement:
		s.expression(n.Value)
	case *parser.TryStatement:
		s.statement(n.Block, false)
		if n.CatchBlock != nil {
			if n.CatchParam != nil {
				s.info.hasLexical = true
			}
			s.statement(n.CatchBlock, false)
		}
		if n.FinallyBlock != nil {
			s.statement(n.FinallyBlock, false)
		}
	case *parser.SwitchStatement:
		s.expression(n.Discriminant)
		for _, cs := range n.Cases {
			s.expression(cs.Test)
			for _, st := range cs.Body {
				s.statement(st, false)
			}
		}
	case *parser.WithStatement:
		s.info.hasWith = true
		s.expression(n.Object)
		s.statement(n.Body, false)
	case *parser.LabeledStatement:
		s.statement(n.Body, top)
	}
}

func (s *scanner) expression(expr parser.Expression) {
	switch n := expr.(type) {
	case nil:
	case *parser.Identifier:
		if n.Value == "arguments" {
			s.info.usesArguments = true
		}
	case *parser.FunctionLiteral:
		s.info.hasInner = true
	case *parser.ArrayLiteral:
		for _, el := range n.Elements {
			s.expression(el)
		}
	case *parser.ObjectLiteral:
		for _, p := range n.Properties {
			s.expression(p.Value)
		}
	case *parser.PrefixExpression:
		s.expression(n.Right)
	case *parser.UpdateExpression:
		s.expression(n.Argument)
	case *parser.InfixExpression:
		s.expression(n.Left)
		s.expression(n.Right)
	case *parser.AssignmentExpression:
		s.expression(n.Target)
		s.expression(n.Value)
	case *parser.ConditionalExpression:
		s.expression(n.Condition)
		s.expression(n.Consequence)
		s.expression(n.Alternative)
	case *parser.CallExpression:
		if id, ok := n.Function.(*parser.Identifier); ok && id.Value == "eval" {
			s.info.hasEval = true
		}
		s.expression(n.Function)
		for _, a := range n.Arguments {
			s.expression(a)
		}
	case *parser.NewExpression:
		s.expression(n.Constructor)
		for _, a := range n.Arguments {
			s.expression(a)
		}
	case *parser.MemberExpression:
		s.expression(n.Object)
	case *parser.IndexExpression:
		s.expression(n.Left)
		s.expression(n.Index)
	case *parser.SequenceExpression:
		for _, e := range n.Expressions {
			s.expression(e)
		}
	}
}

// lexicalNames returns the let and const names declared directly in stmts.
func lexicalNames(stmts []parser.Statement) []string {
	var names []string
	for _, stmt := range stmts {
		if ls, ok := stmt.(*parser.LabeledStatement); ok {
			stmt = ls.Body
		}
		if vs, ok := stmt.(*parser.VarStatement); ok && vs.IsLexical() {
			for _, d := range vs.Declarations {
				names = append(names, d.Name.Value)
			}
		}
	}
	return names
}

// functionDeclarations returns the functions declared directly in stmts.
func functionDeclarations(stmts []parser.Statement) []*parser.FunctionDeclaration {
	var decls []*parser.FunctionDeclaration
	for _, stmt := range stmts {
		if fd, ok := stmt.(*parser.FunctionDeclaration); ok {
			decls = append(decls, fd)
		}
	}
	return decls
}

// isSimple reports whether evaluating expr has no side effects.
func isSimple(expr parser.Expression) bool {
	switch expr.(type) {
	case *parser.Identifier, *parser.NumberLiteral, *parser.StringLiteral,
		*parser.BooleanLiteral, *parser.NullLiteral, *parser.ThisExpression:
		return true
	}
	return false
}
