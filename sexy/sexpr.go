// Package sexy reads the s-expression patterns used by Quill's Markdown test
// suites and extracts test cases from those suites.
package sexy

import (
	"fmt"
	"strings"
	"unicode"
)

// NodeType represents the type of a Node
type NodeType int

const (
	NodeSymbol NodeType = iota + 1
	NodeString
	NodeInteger
	NodeEllipsis
	NodeList
	NodeArray
)

func (t NodeType) String() string {
	switch t {
	case NodeSymbol:
		return "symbol"
	case NodeString:
		return "string"
	case NodeInteger:
		return "integer"
	case NodeEllipsis:
		return "ellipsis"
	case NodeList:
		return "list"
	case NodeArray:
		return "array"
	default:
		return fmt.Sprintf("NodeType(%d)", int(t))
	}
}

// Node is a parsed s-expression datum.
type Node struct {
	Type NodeType

	Text  string  // NodeSymbol, NodeString, NodeInteger
	Items []*Node // NodeList, NodeArray
}

func (n *Node) String() string {
	switch n.Type {
	case NodeSymbol, NodeInteger:
		return n.Text
	case NodeString:
		escaped := strings.ReplaceAll(n.Text, "\\", "\\\\")
		escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
		return "\"" + escaped + "\""
	case NodeEllipsis:
		return "..."
	case NodeList:
		return "(" + joinItems(n.Items) + ")"
	case NodeArray:
		return "[" + joinItems(n.Items) + "]"
	default:
		return fmt.Sprintf("UNKNOWN_NODE_TYPE_%d", n.Type)
	}
}

func joinItems(items []*Node) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, item.String())
	}
	return strings.Join(parts, " ")
}

// Match reports whether actual matches pattern. An ellipsis as the last item
// of a pattern list or array matches any number of remaining items; anywhere
// else it matches exactly one datum. On mismatch, the returned path locates
// the first difference.
func Match(pattern, actual *Node) (bool, string) {
	return match(pattern, actual, "root")
}

func match(pattern, actual *Node, path string) (bool, string) {
	if pattern.Type == NodeEllipsis {
		return true, ""
	}
	if pattern.Type != actual.Type {
		return false, fmt.Sprintf("%s: expected %s %s, got %s %s", path, pattern.Type, pattern, actual.Type, actual)
	}
	switch pattern.Type {
	case NodeList, NodeArray:
		for i, item := range pattern.Items {
			if item.Type == NodeEllipsis && i == len(pattern.Items)-1 {
				return true, ""
			}
			if i >= len(actual.Items) {
				return false, fmt.Sprintf("%s: expected %s, got %s (too few items)", path, pattern, actual)
			}
			if ok, where := match(item, actual.Items[i], fmt.Sprintf("%s[%d]", path, i)); !ok {
				return false, where
			}
		}
		if len(actual.Items) > len(pattern.Items) {
			return false, fmt.Sprintf("%s: expected %s, got %s (too many items)", path, pattern, actual)
		}
		return true, ""
	default:
		if pattern.Text != actual.Text {
			return false, fmt.Sprintf("%s: expected %s, got %s", path, pattern, actual)
		}
		return true, ""
	}
}

type parser struct {
	lexer        *lexer
	currentToken token
}

// Parse parses the entire input and returns the top-level datum
func Parse(input string) (*Node, error) {
	p := &parser{lexer: newLexer(input)}
	p.nextToken()

	result, err := p.parseDatum()
	if len(p.lexer.errors) > 0 {
		// Lexer errors take priority because they might cause confusing parser errors.
		return nil, fmt.Errorf("%s", p.lexer.errors[0])
	}
	if err != nil {
		return nil, err
	}

	if p.currentToken.Type != tokenEOF {
		return nil, fmt.Errorf("expected EOF but got %s", p.currentToken.Type)
	}

	return result, nil
}

func (p *parser) nextToken() {
	p.currentToken = p.lexer.nextToken()
}

func (p *parser) parseDatum() (*Node, error) {
	tok := p.currentToken
	switch tok.Type {
	case tokenSymbol:
		p.nextToken()
		return &Node{Type: NodeSymbol, Text: tok.Value}, nil
	case tokenString:
		p.nextToken()
		return &Node{Type: NodeString, Text: tok.Value}, nil
	case tokenInteger:
		p.nextToken()
		return &Node{Type: NodeInteger, Text: tok.Value}, nil
	case tokenEllipsis:
		p.nextToken()
		return &Node{Type: NodeEllipsis}, nil
	case tokenLParen:
		items, err := p.parseItems(tokenRParen)
		if err != nil {
			return nil, err
		}
		return &Node{Type: NodeList, Items: items}, nil
	case tokenLBracket:
		items, err := p.parseItems(tokenRBracket)
		if err != nil {
			return nil, err
		}
		return &Node{Type: NodeArray, Items: items}, nil
	default:
		return nil, fmt.Errorf("unexpected token: %s", tok.Type)
	}
}

// parseItems parses data up to the closing token, consuming both delimiters.
func (p *parser) parseItems(closing tokenType) ([]*Node, error) {
	p.nextToken() // consume opening delimiter

	items := []*Node{}
	for p.currentToken.Type != closing && p.currentToken.Type != tokenEOF {
		item, err := p.parseDatum()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if p.currentToken.Type != closing {
		return nil, fmt.Errorf("expected %s but got %s", closing, p.currentToken.Type)
	}
	p.nextToken()
	return items, nil
}

type tokenType int

const (
	tokenEOF tokenType = iota
	tokenSymbol
	tokenString
	tokenInteger
	tokenEllipsis
	tokenLParen
	tokenRParen
	tokenLBracket
	tokenRBracket
)

func (t tokenType) String() string {
	switch t {
	case tokenEOF:
		return "EOF"
	case tokenSymbol:
		return "symbol"
	case tokenString:
		return "string"
	case tokenInteger:
		return "integer"
	case tokenEllipsis:
		return "ellipsis"
	case tokenLParen:
		return "'('"
	case tokenRParen:
		return "')'"
	case tokenLBracket:
		return "'['"
	case tokenRBracket:
		return "']'"
	default:
		return fmt.Sprintf("unknown token %d", int(t))
	}
}

type token struct {
	Type  tokenType
	Value string
}

type lexer struct {
	input    string
	position int
	current  rune
	errors   []string
}

func newLexer(input string) *lexer {
	l := &lexer{input: input}
	l.readChar()
	return l
}

func (l *lexer) readChar() {
	if l.position >= len(l.input) {
		l.current = 0
	} else {
		l.current = rune(l.input[l.position])
	}
	l.position++
}

func (l *lexer) peekChar() rune {
	if l.position >= len(l.input) {
		return 0
	}
	return rune(l.input[l.position])
}

func (l *lexer) skipWhitespace() {
	for unicode.IsSpace(l.current) {
		l.readChar()
	}
}

// skipComment skips a ';' comment up to the end of the line.
func (l *lexer) skipComment() {
	for l.current != '\n' && l.current != '\r' && l.current != 0 {
		l.readChar()
	}
}

func (l *lexer) readWhile(pred func(rune) bool) string {
	start := l.position - 1
	for l.current != 0 && pred(l.current) {
		l.readChar()
	}
	return l.input[start : l.position-1]
}

func (l *lexer) readString() (string, error) {
	var result strings.Builder
	l.readChar() // skip opening quote

	for l.current != '"' && l.current != 0 {
		if l.current == '\\' {
			l.readChar()
			switch l.current {
			case '"':
				result.WriteByte('"')
			case '\\':
				result.WriteByte('\\')
			default:
				return "", fmt.Errorf("invalid escape sequence: \\%c", l.current)
			}
		} else {
			result.WriteRune(l.current)
		}
		l.readChar()
	}

	if l.current != '"' {
		return "", fmt.Errorf("unterminated string")
	}
	l.readChar() // skip closing quote

	return result.String(), nil
}

func (l *lexer) nextToken() token {
	for {
		l.skipWhitespace()

		switch l.current {
		case 0:
			return token{Type: tokenEOF}
		case ';':
			l.skipComment()
			continue
		case '(':
			l.readChar()
			return token{Type: tokenLParen, Value: "("}
		case ')':
			l.readChar()
			return token{Type: tokenRParen, Value: ")"}
		case '[':
			l.readChar()
			return token{Type: tokenLBracket, Value: "["}
		case ']':
			l.readChar()
			return token{Type: tokenRBracket, Value: "]"}
		case '"':
			str, err := l.readString()
			if err != nil {
				l.errors = append(l.errors, err.Error())
				return token{Type: tokenEOF}
			}
			return token{Type: tokenString, Value: str}
		case '.':
			if strings.HasPrefix(l.input[l.position-1:], "...") {
				l.readChar()
				l.readChar()
				l.readChar()
				return token{Type: tokenEllipsis, Value: "..."}
			}
			l.errors = append(l.errors, "unexpected character '.'")
			return token{Type: tokenEOF}
		default:
			if unicode.IsDigit(l.current) || ((l.current == '-' || l.current == '+') && unicode.IsDigit(l.peekChar())) {
				l.readChar()
				rest := l.readWhile(unicode.IsDigit)
				return token{Type: tokenInteger, Value: l.input[l.position-2-len(rest) : l.position-1]}
			}
			if isSymbolChar(l.current) {
				return token{Type: tokenSymbol, Value: l.readWhile(isSymbolChar)}
			}
			l.errors = append(l.errors, fmt.Sprintf("unexpected character '%c'", l.current))
			return token{Type: tokenEOF}
		}
	}
}

func isSymbolChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '+' || r == '*' || r == '/'
}
