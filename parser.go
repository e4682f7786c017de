package quill

import "strconv"

// precedence is the binding strength of an operator. Higher binds tighter.
type precedence int

const (
	precLowest precedence = iota + 1
	precEquality
	precRelational
	precAdditive
	precMultiplicative
	precPrefix
	precCall
	precIndex
)

var precedences = map[TokenType]precedence{
	EQUALS:     precEquality,
	NOT_EQUALS: precEquality,
	LESS:       precRelational,
	GREATER:    precRelational,
	PLUS:       precAdditive,
	MINUS:      precAdditive,
	MULTIPLY:   precMultiplicative,
	DIVIDE:     precMultiplicative,
	LPAREN:     precCall,
	LBRACKET:   precIndex,
}

type (
	prefixParseFn func(p *Parser) Expression
	infixParseFn  func(p *Parser, left Expression) Expression
)

// Parse tables. Filled in once by init and never modified afterwards.
var (
	prefixParseFns map[TokenType]prefixParseFn
	infixParseFns  map[TokenType]infixParseFn
)

func init() {
	prefixParseFns = map[TokenType]prefixParseFn{
		IDENTIFIER: (*Parser).parseIdentifier,
		NUMBER:     (*Parser).parseNumericLiteral,
		STRING:     (*Parser).parseStringLiteral,
		MINUS:      (*Parser).parsePrefixExpression,
		LPAREN:     (*Parser).parseGroupedExpression,
		LBRACKET:   (*Parser).parseArrayLiteral,
	}
	infixParseFns = map[TokenType]infixParseFn{
		PLUS:       (*Parser).parseInfixExpression,
		MINUS:      (*Parser).parseInfixExpression,
		MULTIPLY:   (*Parser).parseInfixExpression,
		DIVIDE:     (*Parser).parseInfixExpression,
		EQUALS:     (*Parser).parseInfixExpression,
		NOT_EQUALS: (*Parser).parseInfixExpression,
		LESS:       (*Parser).parseInfixExpression,
		GREATER:    (*Parser).parseInfixExpression,
		LPAREN:     (*Parser).parseCallExpression,
		LBRACKET:   (*Parser).parseIndexExpression,
	}
}

// Parser builds an AST from a token stream with one token of lookahead.
//
// Syntax errors are recorded in Errors and the enclosing statement is
// dropped; parsing continues with the next statement. A Program returned
// alongside a non-empty Errors must not be compiled.
type Parser struct {
	lexer *Lexer
	cur   Token
	peek  Token

	Errors *ErrorCollection
}

// NewParser creates a parser and reads the first two tokens.
func NewParser(l *Lexer) *Parser {
	p := &Parser{lexer: l, Errors: &ErrorCollection{}}
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses source as a complete program.
func Parse(source string) (*Program, *ErrorCollection) {
	p := NewParser(NewLexer(source))
	program := p.ParseProgram()
	return program, p.Errors
}

func (p *Parser) nextToken() {
	p.cur = p.peek
	p.peek = p.lexer.NextToken()
}

// expectPeek advances if the next token has type t and records an error
// otherwise.
func (p *Parser) expectPeek(t TokenType) bool {
	if p.peek.Type == t {
		p.nextToken()
		return true
	}
	p.Errors.Add(p.peek.Pos, "expected next token to be %s, got %s instead", t, p.peek.Type)
	return false
}

// peekPrecedence returns the binding strength of the next token. A '(' or
// '[' at the start of a new line begins a new statement rather than a call or
// index on the previous line's expression.
func (p *Parser) peekPrecedence() precedence {
	if (p.peek.Type == LPAREN || p.peek.Type == LBRACKET) && p.peek.Pos.Line != p.cur.Pos.Line {
		return precLowest
	}
	if prec, ok := precedences[p.peek.Type]; ok {
		return prec
	}
	return precLowest
}

func (p *Parser) curPrecedence() precedence {
	if prec, ok := precedences[p.cur.Type]; ok {
		return prec
	}
	return precLowest
}

// ParseProgram parses statements until EOF.
func (p *Parser) ParseProgram() *Program {
	program := &Program{Pos: p.cur.Pos}

	for p.cur.Type != EOF {
		if p.cur.Type == SEMICOLON {
			p.nextToken()
			continue
		}
		stmt := p.parseStatement()
		if stmt != nil {
			program.Statements = append(program.Statements, stmt)
		}
		p.nextToken()
	}

	return program
}

// parseStatement parses one statement, leaving cur on its last token.
// Returns nil if the statement could not be parsed.
func (p *Parser) parseStatement() Statement {
	var stmt Statement
	switch p.cur.Type {
	case LET:
		stmt = p.parseLetStatement()
	case RETURN:
		stmt = p.parseReturnStatement()
	case FN:
		stmt = p.parseFunctionDeclaration()
	default:
		stmt = p.parseExpressionStatement()
	}

	if stmt != nil && p.peek.Type == SEMICOLON {
		p.nextToken()
	}
	return stmt
}

func (p *Parser) parseLetStatement() Statement {
	pos := p.cur.Pos

	if !p.expectPeek(IDENTIFIER) {
		return nil
	}
	name := &Identifier{Pos: p.cur.Pos, Name: p.cur.Literal}

	if !p.expectPeek(ASSIGN) {
		return nil
	}
	p.nextToken()

	value := p.parseExpression(precLowest)
	if value == nil {
		return nil
	}

	return &LetStatement{Pos: pos, Name: name, Value: value}
}

func (p *Parser) parseReturnStatement() Statement {
	pos := p.cur.Pos
	p.nextToken()

	value := p.parseExpression(precLowest)
	if value == nil {
		return nil
	}

	return &ReturnStatement{Pos: pos, Value: value}
}

func (p *Parser) parseFunctionDeclaration() Statement {
	pos := p.cur.Pos

	if !p.expectPeek(IDENTIFIER) {
		return nil
	}
	name := &Identifier{Pos: p.cur.Pos, Name: p.cur.Literal}

	if !p.expectPeek(LPAREN) {
		return nil
	}
	params, ok := p.parseFunctionParameters()
	if !ok {
		return nil
	}

	var returnType *TypeAnnotation
	if p.peek.Type == COLON {
		p.nextToken()
		if !p.expectPeek(IDENTIFIER) {
			return nil
		}
		returnType = &TypeAnnotation{Pos: p.cur.Pos, Name: p.cur.Literal}
	}

	if !p.expectPeek(LBRACE) {
		return nil
	}
	body := p.parseBlockStatement()
	if body == nil {
		return nil
	}

	return &FunctionDeclaration{
		Pos:        pos,
		Name:       name,
		Parameters: params,
		ReturnType: returnType,
		Body:       body,
	}
}

// parseFunctionParameters parses "(a: int, b)" starting on the '(' and
// leaving cur on the ')'.
func (p *Parser) parseFunctionParameters() ([]Parameter, bool) {
	params := []Parameter{}

	if p.peek.Type == RPAREN {
		p.nextToken()
		return params, true
	}

	p.nextToken()
	param, ok := p.parseFunctionParameter()
	if !ok {
		return nil, false
	}
	params = append(params, param)

	for p.peek.Type == COMMA {
		p.nextToken() // consume ','
		p.nextToken()
		param, ok := p.parseFunctionParameter()
		if !ok {
			return nil, false
		}
		params = append(params, param)
	}

	if !p.expectPeek(RPAREN) {
		return nil, false
	}
	return params, true
}

func (p *Parser) parseFunctionParameter() (Parameter, bool) {
	if p.cur.Type != IDENTIFIER {
		p.Errors.Add(p.cur.Pos, "expected parameter name, got %s instead", p.cur.Type)
		return Parameter{}, false
	}
	param := Parameter{Name: &Identifier{Pos: p.cur.Pos, Name: p.cur.Literal}}

	if p.peek.Type == COLON {
		p.nextToken() // consume ':'
		if !p.expectPeek(IDENTIFIER) {
			return Parameter{}, false
		}
		param.Type = &TypeAnnotation{Pos: p.cur.Pos, Name: p.cur.Literal}
	}
	return param, true
}

// parseBlockStatement parses "{ ... }" starting on the '{' and leaving cur on
// the '}'.
func (p *Parser) parseBlockStatement() *BlockStatement {
	block := &BlockStatement{Pos: p.cur.Pos, Statements: []Statement{}}
	p.nextToken()

	for p.cur.Type != RBRACE && p.cur.Type != EOF {
		if p.cur.Type == SEMICOLON {
			p.nextToken()
			continue
		}
		stmt := p.parseStatement()
		if stmt != nil {
			block.Statements = append(block.Statements, stmt)
		}
		p.nextToken()
	}

	if p.cur.Type != RBRACE {
		p.Errors.Add(p.cur.Pos, "expected } to close block opened at %d:%d", block.Pos.Line, block.Pos.Column)
		return nil
	}
	return block
}

func (p *Parser) parseExpressionStatement() Statement {
	pos := p.cur.Pos

	expr := p.parseExpression(precLowest)
	if expr == nil {
		return nil
	}

	return &ExpressionStatement{Pos: pos, Expression: expr}
}

// ParseExpression parses a single expression starting at the current token.
func (p *Parser) ParseExpression() Expression {
	return p.parseExpression(precLowest)
}

// parseExpression implements precedence climbing. Operators bind only while
// their precedence is strictly greater than minPrec, which makes operators of
// equal precedence left-associative.
func (p *Parser) parseExpression(minPrec precedence) Expression {
	prefix := prefixParseFns[p.cur.Type]
	if prefix == nil {
		p.Errors.Add(p.cur.Pos, "no prefix parse function for %s found", p.cur.Type)
		return nil
	}

	left := prefix(p)
	if left == nil {
		return nil
	}

	for minPrec < p.peekPrecedence() {
		infix := infixParseFns[p.peek.Type]
		if infix == nil {
			return left
		}

		p.nextToken()
		left = infix(p, left)
		if left == nil {
			return nil
		}
	}

	return left
}

func (p *Parser) parseIdentifier() Expression {
	return &Identifier{Pos: p.cur.Pos, Name: p.cur.Literal}
}

func (p *Parser) parseNumericLiteral() Expression {
	value, err := strconv.ParseFloat(p.cur.Literal, 64)
	if err != nil {
		p.Errors.Add(p.cur.Pos, "could not parse %q as number", p.cur.Literal)
		return nil
	}
	return &NumericLiteral{Pos: p.cur.Pos, Value: value}
}

func (p *Parser) parseStringLiteral() Expression {
	return &StringLiteral{Pos: p.cur.Pos, Value: p.cur.Literal}
}

func (p *Parser) parsePrefixExpression() Expression {
	pos := p.cur.Pos
	operator := p.cur.Literal
	p.nextToken()

	right := p.parseExpression(precPrefix)
	if right == nil {
		return nil
	}

	return &PrefixExpression{Pos: pos, Operator: operator, Right: right}
}

// parseInfixExpression is entered with cur on the operator.
func (p *Parser) parseInfixExpression(left Expression) Expression {
	pos := p.cur.Pos
	operator := p.cur.Literal
	prec := p.curPrecedence()
	p.nextToken()

	right := p.parseExpression(prec)
	if right == nil {
		return nil
	}

	return &BinaryExpression{Pos: pos, Operator: operator, Left: left, Right: right}
}

// parseGroupedExpression handles "( expr )". Grouping leaves no trace in the
// AST beyond the nesting it produces.
func (p *Parser) parseGroupedExpression() Expression {
	p.nextToken()

	expr := p.parseExpression(precLowest)
	if expr == nil {
		return nil
	}

	if !p.expectPeek(RPAREN) {
		return nil
	}
	return expr
}

func (p *Parser) parseArrayLiteral() Expression {
	pos := p.cur.Pos
	elements, ok := p.parseExpressionList(RBRACKET)
	if !ok {
		return nil
	}
	return &ArrayLiteral{Pos: pos, Elements: elements}
}

func (p *Parser) parseCallExpression(function Expression) Expression {
	pos := p.cur.Pos
	args, ok := p.parseExpressionList(RPAREN)
	if !ok {
		return nil
	}
	return &CallExpression{Pos: pos, Function: function, Arguments: args}
}

func (p *Parser) parseIndexExpression(left Expression) Expression {
	pos := p.cur.Pos
	p.nextToken()

	index := p.parseExpression(precLowest)
	if index == nil {
		return nil
	}

	if !p.expectPeek(RBRACKET) {
		return nil
	}
	return &IndexExpression{Pos: pos, Left: left, Index: index}
}

// parseExpressionList parses comma-separated expressions up to end, starting
// on the opening delimiter and leaving cur on end.
func (p *Parser) parseExpressionList(end TokenType) ([]Expression, bool) {
	list := []Expression{}

	if p.peek.Type == end {
		p.nextToken()
		return list, true
	}

	p.nextToken()
	expr := p.parseExpression(precLowest)
	if expr == nil {
		return nil, false
	}
	list = append(list, expr)

	for p.peek.Type == COMMA {
		p.nextToken()
		p.nextToken()
		expr := p.parseExpression(precLowest)
		if expr == nil {
			return nil, false
		}
		list = append(list, expr)
	}

	if !p.expectPeek(end) {
		return nil, false
	}
	return list, true
}
