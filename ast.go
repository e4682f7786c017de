package quill

import (
	"strconv"
	"strings"
)

// Node is implemented by every AST node. The set of implementations is closed:
// only this package can add node kinds.
type Node interface {
	Position() Position
	node()
}

// Statement is a node that can appear in a Program or BlockStatement.
type Statement interface {
	Node
	statementNode()
}

// Expression is a node that produces a value.
type Expression interface {
	Node
	expressionNode()
}

// Program is the root node. Statement order is emission order.
type Program struct {
	Pos        Position
	Statements []Statement
}

// LetStatement binds Name to the value of Value: let name = value
type LetStatement struct {
	Pos   Position
	Name  *Identifier
	Value Expression
}

// ReturnStatement: return value
type ReturnStatement struct {
	Pos   Position
	Value Expression
}

// ExpressionStatement wraps an expression used as a statement.
type ExpressionStatement struct {
	Pos        Position
	Expression Expression
}

// BlockStatement is a brace-delimited statement list.
type BlockStatement struct {
	Pos        Position
	Statements []Statement
}

// TypeAnnotation is a type name written after ':'.
type TypeAnnotation struct {
	Pos  Position
	Name string
}

// Parameter is one entry in a function's parameter list. Type is nil when the
// parameter has no annotation.
type Parameter struct {
	Name *Identifier
	Type *TypeAnnotation
}

// FunctionDeclaration: fn name(a: int, b) : int { ... }
// ReturnType is nil when no return annotation is written.
type FunctionDeclaration struct {
	Pos        Position
	Name       *Identifier
	Parameters []Parameter
	ReturnType *TypeAnnotation
	Body       *BlockStatement
}

// Identifier is a reference to a name.
type Identifier struct {
	Pos  Position
	Name string
}

// NumericLiteral holds the value exactly as parsed; narrowing to the target
// integer type happens during code generation.
type NumericLiteral struct {
	Pos   Position
	Value float64
}

// StringLiteral holds the raw text between the quotes.
type StringLiteral struct {
	Pos   Position
	Value string
}

// BinaryExpression: left operator right
type BinaryExpression struct {
	Pos      Position
	Operator string
	Left     Expression
	Right    Expression
}

// PrefixExpression: operator right
type PrefixExpression struct {
	Pos      Position
	Operator string
	Right    Expression
}

// ArrayLiteral: [a, b, c]
type ArrayLiteral struct {
	Pos      Position
	Elements []Expression
}

// CallExpression: function(arguments...)
type CallExpression struct {
	Pos       Position
	Function  Expression
	Arguments []Expression
}

// IndexExpression: left[index]
type IndexExpression struct {
	Pos   Position
	Left  Expression
	Index Expression
}

func (n *Program) Position() Position             { return n.Pos }
func (n *LetStatement) Position() Position        { return n.Pos }
func (n *ReturnStatement) Position() Position     { return n.Pos }
func (n *ExpressionStatement) Position() Position { return n.Pos }
func (n *BlockStatement) Position() Position      { return n.Pos }
func (n *FunctionDeclaration) Position() Position { return n.Pos }
func (n *Identifier) Position() Position          { return n.Pos }
func (n *NumericLiteral) Position() Position      { return n.Pos }
func (n *StringLiteral) Position() Position       { return n.Pos }
func (n *BinaryExpression) Position() Position    { return n.Pos }
func (n *PrefixExpression) Position() Position    { return n.Pos }
func (n *ArrayLiteral) Position() Position        { return n.Pos }
func (n *CallExpression) Position() Position      { return n.Pos }
func (n *IndexExpression) Position() Position     { return n.Pos }

func (*Program) node()             {}
func (*LetStatement) node()        {}
func (*ReturnStatement) node()     {}
func (*ExpressionStatement) node() {}
func (*BlockStatement) node()      {}
func (*FunctionDeclaration) node() {}
func (*Identifier) node()          {}
func (*NumericLiteral) node()      {}
func (*StringLiteral) node()       {}
func (*BinaryExpression) node()    {}
func (*PrefixExpression) node()    {}
func (*ArrayLiteral) node()        {}
func (*CallExpression) node()      {}
func (*IndexExpression) node()     {}

func (*LetStatement) statementNode()        {}
func (*ReturnStatement) statementNode()     {}
func (*ExpressionStatement) statementNode() {}
func (*BlockStatement) statementNode()      {}
func (*FunctionDeclaration) statementNode() {}

func (*Identifier) expressionNode()       {}
func (*NumericLiteral) expressionNode()   {}
func (*StringLiteral) expressionNode()    {}
func (*BinaryExpression) expressionNode() {}
func (*PrefixExpression) expressionNode() {}
func (*ArrayLiteral) expressionNode()     {}
func (*CallExpression) expressionNode()   {}
func (*IndexExpression) expressionNode()  {}

// ToSExpr converts an AST node to s-expression string representation.
// Expression statements render as their expression.
func ToSExpr(node Node) string {
	switch n := node.(type) {
	case *Program:
		return list("program", statementsSExpr(n.Statements)...)
	case *LetStatement:
		return list("let", quote(n.Name.Name), ToSExpr(n.Value))
	case *ReturnStatement:
		return list("return", ToSExpr(n.Value))
	case *ExpressionStatement:
		return ToSExpr(n.Expression)
	case *BlockStatement:
		return list("block", statementsSExpr(n.Statements)...)
	case *FunctionDeclaration:
		var params []string
		for _, param := range n.Parameters {
			if param.Type != nil {
				params = append(params, list("param", quote(param.Name.Name), quote(param.Type.Name)))
			} else {
				params = append(params, list("param", quote(param.Name.Name)))
			}
		}
		parts := []string{quote(n.Name.Name), "[" + strings.Join(params, " ") + "]"}
		if n.ReturnType != nil {
			parts = append(parts, list("returns", quote(n.ReturnType.Name)))
		}
		parts = append(parts, ToSExpr(n.Body))
		return list("fn", parts...)
	case *Identifier:
		return list("ident", quote(n.Name))
	case *NumericLiteral:
		return list("number", strconv.FormatFloat(n.Value, 'f', -1, 64))
	case *StringLiteral:
		return list("string", quote(n.Value))
	case *BinaryExpression:
		return list("binary", quote(n.Operator), ToSExpr(n.Left), ToSExpr(n.Right))
	case *PrefixExpression:
		return list("prefix", quote(n.Operator), ToSExpr(n.Right))
	case *ArrayLiteral:
		return list("array", expressionsSExpr(n.Elements)...)
	case *CallExpression:
		return list("call", append([]string{ToSExpr(n.Function)}, expressionsSExpr(n.Arguments)...)...)
	case *IndexExpression:
		return list("index", ToSExpr(n.Left), ToSExpr(n.Index))
	default:
		return ""
	}
}

func statementsSExpr(stmts []Statement) []string {
	parts := make([]string, 0, len(stmts))
	for _, stmt := range stmts {
		parts = append(parts, ToSExpr(stmt))
	}
	return parts
}

func expressionsSExpr(exprs []Expression) []string {
	parts := make([]string, 0, len(exprs))
	for _, expr := range exprs {
		parts = append(parts, ToSExpr(expr))
	}
	return parts
}

func list(head string, items ...string) string {
	if len(items) == 0 {
		return "(" + head + ")"
	}
	return "(" + head + " " + strings.Join(items, " ") + ")"
}

// quote matches the escaping rules of the sexy reader: only '\' and '"'.
func quote(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	return "\"" + s + "\""
}
