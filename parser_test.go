package quill

import (
	"testing"

	"github.com/nalgeon/be"
)

func parseExpr(t *testing.T, input string) Expression {
	t.Helper()
	p := NewParser(NewLexer(input))
	expr := p.ParseExpression()
	if p.Errors.HasErrors() {
		t.Fatalf("unexpected parse errors for %q:\n%s", input, p.Errors)
	}
	return expr
}

func parseProgram(t *testing.T, input string) *Program {
	t.Helper()
	program, errs := Parse(input)
	if errs.HasErrors() {
		t.Fatalf("unexpected parse errors for %q:\n%s", input, errs)
	}
	return program
}

func TestParseExpressionPrecedence(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"1", `(number 1)`},
		{"x", `(ident "x")`},
		{"2 + 3 * 4", `(binary "+" (number 2) (binary "*" (number 3) (number 4)))`},
		{"2 * 3 + 4", `(binary "+" (binary "*" (number 2) (number 3)) (number 4))`},
		{"(2 + 3) * 4", `(binary "*" (binary "+" (number 2) (number 3)) (number 4))`},
		{"10 - 5 - 3", `(binary "-" (binary "-" (number 10) (number 5)) (number 3))`},
		{"8 / 4 / 2", `(binary "/" (binary "/" (number 8) (number 4)) (number 2))`},
		{"a == b != c", `(binary "!=" (binary "==" (ident "a") (ident "b")) (ident "c"))`},
		{"a < b == c > d", `(binary "==" (binary "<" (ident "a") (ident "b")) (binary ">" (ident "c") (ident "d")))`},
		{"a + b < c * d", `(binary "<" (binary "+" (ident "a") (ident "b")) (binary "*" (ident "c") (ident "d")))`},
		{"-a * b", `(binary "*" (prefix "-" (ident "a")) (ident "b"))`},
		{"-(a * b)", `(prefix "-" (binary "*" (ident "a") (ident "b")))`},
		{"a - -b", `(binary "-" (ident "a") (prefix "-" (ident "b")))`},
		{"f(a)(b)", `(call (call (ident "f") (ident "a")) (ident "b"))`},
		{"a[0][1]", `(index (index (ident "a") (number 0)) (number 1))`},
		{"a + f(b) * c[d]", `(binary "+" (ident "a") (binary "*" (call (ident "f") (ident "b")) (index (ident "c") (ident "d"))))`},
		{"[1 + 2, [3]]", `(array (binary "+" (number 1) (number 2)) (array (number 3)))`},
		{"3.25", `(number 3.25)`},
		{`"s"`, `(string "s")`},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			be.Equal(t, ToSExpr(parseExpr(t, test.input)), test.expected)
		})
	}
}

func TestParseExpressionStopsAtLowerPrecedence(t *testing.T) {
	p := NewParser(NewLexer("1 + 2 ) 3"))
	expr := p.ParseExpression()
	be.Equal(t, ToSExpr(expr), `(binary "+" (number 1) (number 2))`)
	be.Equal(t, p.peek.Type, RPAREN)
}

func TestParseLetStatement(t *testing.T) {
	program := parseProgram(t, "let answer = 6 * 7")
	be.Equal(t, len(program.Statements), 1)

	let, ok := program.Statements[0].(*LetStatement)
	be.True(t, ok)
	be.Equal(t, let.Name.Name, "answer")
	be.Equal(t, let.Pos, Position{Line: 1, Column: 0})
	be.Equal(t, let.Name.Pos, Position{Line: 1, Column: 4})

	value, ok := let.Value.(*BinaryExpression)
	be.True(t, ok)
	be.Equal(t, value.Operator, "*")
	be.Equal(t, value.Pos, Position{Line: 1, Column: 15})
}

func TestParseReturnStatement(t *testing.T) {
	program := parseProgram(t, "return 1 + 2;")
	be.Equal(t, ToSExpr(program), `(program (return (binary "+" (number 1) (number 2))))`)
}

func TestParseFunctionDeclaration(t *testing.T) {
	program := parseProgram(t, "fn add(a: int, b: int): int {\n  return a + b\n}")
	be.Equal(t, len(program.Statements), 1)

	fn, ok := program.Statements[0].(*FunctionDeclaration)
	be.True(t, ok)
	be.Equal(t, fn.Name.Name, "add")
	be.Equal(t, len(fn.Parameters), 2)
	be.Equal(t, fn.Parameters[0].Name.Name, "a")
	be.Equal(t, fn.Parameters[0].Type.Name, "int")
	be.Equal(t, fn.Parameters[1].Name.Name, "b")
	be.Equal(t, fn.ReturnType.Name, "int")
	be.Equal(t, len(fn.Body.Statements), 1)
	be.Equal(t, fn.Body.Pos, Position{Line: 1, Column: 28})

	ret, ok := fn.Body.Statements[0].(*ReturnStatement)
	be.True(t, ok)
	be.Equal(t, ret.Pos, Position{Line: 2, Column: 2})
}

func TestParseFunctionDeclarationWithoutTypes(t *testing.T) {
	program := parseProgram(t, "fn pair(a, b) { a; b }")
	be.Equal(t, ToSExpr(program), `(program (fn "pair" [(param "a") (param "b")] (block (ident "a") (ident "b"))))`)

	fn := program.Statements[0].(*FunctionDeclaration)
	be.True(t, fn.ReturnType == nil)
	be.True(t, fn.Parameters[0].Type == nil)
}

func TestParseNestedBlocks(t *testing.T) {
	program := parseProgram(t, "fn outer() { fn inner() { 1 } inner }")
	be.Equal(t, ToSExpr(program), `(program (fn "outer" [] (block (fn "inner" [] (block (number 1))) (ident "inner"))))`)
}

func TestParseProgramNewlines(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"a\n(b)", `(program (ident "a") (ident "b"))`},
		{"a(\nb\n)", `(program (call (ident "a") (ident "b")))`},
		{"a\n[b]", `(program (ident "a") (array (ident "b")))`},
		{"a[\nb]", `(program (index (ident "a") (ident "b")))`},
		{"1 +\n2", `(program (binary "+" (number 1) (number 2)))`},
		{"1\n+ 2", `(program (binary "+" (number 1) (number 2)))`},
		{"1\n-2", `(program (binary "-" (number 1) (number 2)))`},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			be.Equal(t, ToSExpr(parseProgram(t, test.input)), test.expected)
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"let = 5", []string{
			"1:4: expected next token to be IDENTIFIER, got = instead",
			"1:4: no prefix parse function for = found",
		}},
		{"let x 5", []string{"1:6: expected next token to be =, got NUMBER instead"}},
		{"(1 + 2", []string{"1:6: expected next token to be ), got EOF instead"}},
		{"1 +", []string{"1:3: no prefix parse function for EOF found"}},
		{"1 + * 2", []string{"1:4: no prefix parse function for * found"}},
		{"return", []string{"1:6: no prefix parse function for EOF found"}},
		{"f(1, 2", []string{"1:6: expected next token to be ), got EOF instead"}},
		{"a[1", []string{"1:3: expected next token to be ], got EOF instead"}},
		{"fn (a) {}", []string{
			"1:3: expected next token to be IDENTIFIER, got ( instead",
			"1:7: no prefix parse function for { found",
			"1:8: no prefix parse function for } found",
		}},
		{"fn f(a:) {}", []string{
			"1:7: expected next token to be IDENTIFIER, got ) instead",
			"1:7: no prefix parse function for ) found",
			"1:9: no prefix parse function for { found",
			"1:10: no prefix parse function for } found",
		}},
		{"fn f() 1", []string{"1:7: expected next token to be {, got NUMBER instead"}},
		{"fn f() {\n  1", []string{"2:3: expected } to close block opened at 1:7"}},
		{"1 @ 2", []string{"1:2: no prefix parse function for ILLEGAL found"}},
		{"1.2.3", []string{"1:3: no prefix parse function for . found"}},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			_, errs := Parse(test.input)
			var got []string
			for _, err := range errs.Errors() {
				got = append(got, err.Error())
			}
			be.Equal(t, got, test.expected)
		})
	}
}

func TestParseRecoversAfterError(t *testing.T) {
	program, errs := Parse("let = 1\nlet y = 2\ny")
	be.True(t, errs.HasErrors())
	be.Equal(t, ToSExpr(program), `(program (number 1) (let "y" (number 2)) (ident "y"))`)
}

func TestParseErrorMessages(t *testing.T) {
	_, errs := Parse("let = 1\nlet = 2")
	be.Equal(t, errs.Len(), 4)
	be.Equal(t, errs.Messages()[0], "expected next token to be IDENTIFIER, got = instead")
	be.Equal(t, errs.String(), "1:4: expected next token to be IDENTIFIER, got = instead\n"+
		"1:4: no prefix parse function for = found\n"+
		"2:4: expected next token to be IDENTIFIER, got = instead\n"+
		"2:4: no prefix parse function for = found")
}

func TestParseEmptyProgram(t *testing.T) {
	for _, input := range []string{"", "   \n\t", ";;;"} {
		program := parseProgram(t, input)
		be.Equal(t, len(program.Statements), 0)
		be.Equal(t, ToSExpr(program), "(program)")
	}
}

func TestToSExprQuoting(t *testing.T) {
	program := parseProgram(t, `let s = 'a "quoted" \ string'`)
	be.Equal(t, ToSExpr(program), `(program (let "s" (string "a \"quoted\" \\ string")))`)
}
