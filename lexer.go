package quill

import "unicode/utf8"

// TokenType is the type of token (identifier, operator, literal, etc.).
type TokenType string

// Definition of token types
const (
	// Special tokens
	ILLEGAL = TokenType("ILLEGAL")
	EOF     = TokenType("EOF")

	// Identifiers + literals
	IDENTIFIER = TokenType("IDENTIFIER") // main, foo, _bar
	NUMBER     = TokenType("NUMBER")     // 12345, 3.14
	STRING     = TokenType("STRING")     // "hello", 'hello'

	// Operators
	PLUS       = TokenType("+")
	MINUS      = TokenType("-")
	MULTIPLY   = TokenType("*")
	DIVIDE     = TokenType("/")
	ASSIGN     = TokenType("=")
	EQUALS     = TokenType("==")
	NOT_EQUALS = TokenType("!=")
	LESS       = TokenType("<")
	GREATER    = TokenType(">")

	// Delimiters
	LPAREN    = TokenType("(")
	RPAREN    = TokenType(")")
	LBRACE    = TokenType("{")
	RBRACE    = TokenType("}")
	LBRACKET  = TokenType("[")
	RBRACKET  = TokenType("]")
	COMMA     = TokenType(",")
	DOT       = TokenType(".")
	COLON     = TokenType(":")
	SEMICOLON = TokenType(";")
	ARROW     = TokenType("=>")

	// Keywords
	FN        = TokenType("FN")
	LET       = TokenType("LET")
	CONST     = TokenType("CONST")
	IF        = TokenType("IF")
	ELSE      = TokenType("ELSE")
	RETURN    = TokenType("RETURN")
	WHILE     = TokenType("WHILE")
	FOR       = TokenType("FOR")
	IN        = TokenType("IN")
	COMPONENT = TokenType("COMPONENT")
	PROPS     = TokenType("PROPS")
	STATE     = TokenType("STATE")
	RENDER    = TokenType("RENDER")
	ASYNC     = TokenType("ASYNC")
	AWAIT     = TokenType("AWAIT")
	TRY       = TokenType("TRY")
	CATCH     = TokenType("CATCH")
)

var keywords = map[string]TokenType{
	"fn":        FN,
	"let":       LET,
	"const":     CONST,
	"if":        IF,
	"else":      ELSE,
	"return":    RETURN,
	"while":     WHILE,
	"for":       FOR,
	"in":        IN,
	"component": COMPONENT,
	"props":     PROPS,
	"state":     STATE,
	"render":    RENDER,
	"async":     ASYNC,
	"await":     AWAIT,
	"try":       TRY,
	"catch":     CATCH,
}

var singleCharTokens = map[byte]TokenType{
	'+': PLUS,
	'-': MINUS,
	'*': MULTIPLY,
	'/': DIVIDE,
	'(': LPAREN,
	')': RPAREN,
	'{': LBRACE,
	'}': RBRACE,
	'[': LBRACKET,
	']': RBRACKET,
	',': COMMA,
	'.': DOT,
	':': COLON,
	';': SEMICOLON,
	'<': LESS,
	'>': GREATER,
}

// LookupIdent returns the keyword token type for word, or IDENTIFIER.
func LookupIdent(word string) TokenType {
	if typ, ok := keywords[word]; ok {
		return typ
	}
	return IDENTIFIER
}

// Position is a 1-based line and 0-based column in the source text.
type Position struct {
	Line   int
	Column int
}

// Token is a single lexeme together with the position of its first character.
type Token struct {
	Type    TokenType
	Literal string
	Pos     Position
}

// Lexer turns source text into tokens on demand.
//
// Invalid input never stops the lexer: unknown characters become ILLEGAL tokens
// and the parser reports them.
type Lexer struct {
	input  string
	pos    int
	line   int
	column int
}

// NewLexer creates a lexer positioned at the start of input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input, line: 1}
}

// NextToken scans and returns the next token.
// Call repeatedly until a token of type EOF is returned; after that every call
// returns EOF again.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	start := Position{Line: l.line, Column: l.column}
	if l.pos >= len(l.input) {
		return Token{Type: EOF, Literal: "", Pos: start}
	}
	c := l.input[l.pos]

	if c == '=' {
		if l.peek() == '=' {
			l.advance()
			l.advance()
			return Token{Type: EQUALS, Literal: "==", Pos: start}
		} else if l.peek() == '>' {
			l.advance()
			l.advance()
			return Token{Type: ARROW, Literal: "=>", Pos: start}
		}
		l.advance()
		return Token{Type: ASSIGN, Literal: "=", Pos: start}

	} else if c == '!' && l.peek() == '=' {
		l.advance()
		l.advance()
		return Token{Type: NOT_EQUALS, Literal: "!=", Pos: start}

	} else if typ, ok := singleCharTokens[c]; ok {
		l.advance()
		return Token{Type: typ, Literal: string(c), Pos: start}

	} else if isLetter(c) {
		lit := l.readIdentifier()
		return Token{Type: LookupIdent(lit), Literal: lit, Pos: start}

	} else if isDigit(c) {
		return Token{Type: NUMBER, Literal: l.readNumber(), Pos: start}

	} else if c == '"' || c == '\'' {
		return Token{Type: STRING, Literal: l.readString(c), Pos: start}
	}

	// Keep multi-byte characters whole so diagnostics can quote them.
	_, size := utf8.DecodeRuneInString(l.input[l.pos:])
	lit := l.input[l.pos : l.pos+size]
	for i := 0; i < size; i++ {
		l.advance()
	}
	return Token{Type: ILLEGAL, Literal: lit, Pos: start}
}

// Tokenize scans the whole input, including the trailing EOF token.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens
		}
	}
}

func (l *Lexer) peek() byte {
	if l.pos+1 >= len(l.input) {
		return 0
	}
	return l.input[l.pos+1]
}

// advance consumes one byte, keeping line and column in sync. Columns count
// characters, so UTF-8 continuation bytes do not move the column.
func (l *Lexer) advance() {
	if l.pos >= len(l.input) {
		return
	}
	if c := l.input[l.pos]; c == '\n' {
		l.line++
		l.column = 0
	} else if utf8.RuneStart(c) {
		l.column++
	}
	l.pos++
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if c != ' ' && c != '\t' && c != '\n' && c != '\r' {
			return
		}
		l.advance()
	}
}

func isLetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || c == '_'
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

func (l *Lexer) readIdentifier() string {
	start := l.pos
	for l.pos < len(l.input) && (isLetter(l.input[l.pos]) || isDigit(l.input[l.pos])) {
		l.advance()
	}
	return l.input[start:l.pos]
}

// readNumber reads digits with at most one decimal point. A second '.' ends
// the number.
func (l *Lexer) readNumber() string {
	start := l.pos
	hasDot := false
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if c == '.' && !hasDot {
			hasDot = true
		} else if !isDigit(c) {
			break
		}
		l.advance()
	}
	return l.input[start:l.pos]
}

// readString reads a string delimited by quote. There are no escape
// sequences. An unterminated string runs to the end of input.
func (l *Lexer) readString(quote byte) string {
	l.advance() // skip opening quote
	start := l.pos
	for l.pos < len(l.input) && l.input[l.pos] != quote {
		l.advance()
	}
	lit := l.input[start:l.pos]
	l.advance() // skip closing quote
	return lit
}
