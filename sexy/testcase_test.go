package sexy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

func TestExtractTestCases_BasicTest(t *testing.T) {
	markdown := `# Binary expressions

## Test: +
` + "```quill-expr" + `
1 + 2
` + "```" + `
` + "```ast" + `
(binary "+" (number 1) (number 2))
` + "```" + `

## Test: -
` + "```quill-expr" + `
1 - 2
` + "```" + `
` + "```execute" + `
-1
` + "```"

	testCases, err := ExtractTestCases(markdown)
	be.Err(t, err, nil)
	be.Equal(t, len(testCases), 2)

	tc1 := testCases[0]
	be.Equal(t, tc1.Name, "+")
	be.Equal(t, tc1.Input, "1 + 2")
	be.Equal(t, tc1.InputType, InputTypeQuillExpr)
	be.Equal(t, len(tc1.Assertions), 1)
	be.Equal(t, tc1.Assertions[0].Type, AssertionTypeAST)
	be.Equal(t, tc1.Assertions[0].Content, `(binary "+" (number 1) (number 2))`)
	be.Equal(t, tc1.Assertions[0].ParsedSexy.String(), `(binary "+" (number 1) (number 2))`)

	tc2 := testCases[1]
	be.Equal(t, tc2.Name, "-")
	be.Equal(t, tc2.Input, "1 - 2")
	be.Equal(t, len(tc2.Assertions), 1)
	be.Equal(t, tc2.Assertions[0].Type, AssertionTypeExecute)
	be.Equal(t, tc2.Assertions[0].Content, "-1")
	be.True(t, tc2.Assertions[0].ParsedSexy == nil)
}

func TestExtractTestCases_AllAssertionTypes(t *testing.T) {
	markdown := `## Test: everything
` + "```quill-program" + `
let x = 10
x + 1
` + "```" + `
` + "```ast" + `
(program ...)
` + "```" + `
` + "```execute" + `
11
` + "```" + `
` + "```wasm-locals" + `
1
` + "```" + `
` + "```tokens" + `
LET IDENTIFIER = NUMBER
IDENTIFIER + NUMBER EOF
` + "```" + `
` + "```compile-error" + `
not really an error
` + "```"

	testCases, err := ExtractTestCases(markdown)
	be.Err(t, err, nil)
	be.Equal(t, len(testCases), 1)

	tc := testCases[0]
	be.Equal(t, tc.InputType, InputTypeQuillProgram)
	be.Equal(t, tc.Input, "let x = 10\nx + 1")

	var types []AssertionType
	for _, a := range tc.Assertions {
		types = append(types, a.Type)
	}
	be.Equal(t, types, []AssertionType{
		AssertionTypeAST,
		AssertionTypeExecute,
		AssertionTypeWasmLocals,
		AssertionTypeTokens,
		AssertionTypeCompileError,
	})
	be.Equal(t, tc.Assertions[3].Content, "LET IDENTIFIER = NUMBER\nIDENTIFIER + NUMBER EOF")
}

func TestExtractTestCases_EmptyInput(t *testing.T) {
	markdown := "## Test: empty program\n```quill-program\n```\n```execute\n0\n```\n"

	testCases, err := ExtractTestCases(markdown)
	be.Err(t, err, nil)
	be.Equal(t, len(testCases), 1)
	be.Equal(t, testCases[0].Input, "")
	be.Equal(t, testCases[0].InputType, InputTypeQuillProgram)
}

func TestExtractTestCases_NoTestCases(t *testing.T) {
	tests := []string{
		"",
		"# Some document\n\nThis is just regular markdown content.\n\n## Regular heading\n\nNo test cases here.",
	}

	for _, markdown := range tests {
		testCases, err := ExtractTestCases(markdown)
		be.Err(t, err, nil)
		be.Equal(t, len(testCases), 0)
	}
}

func TestExtractTestCases_LineNumbers(t *testing.T) {
	markdown := "## Test: first\n```quill-expr\n1\n```\n```execute\n1\n```\n\n## Test: second\n```quill-expr\n2\n```\n```execute\n2\n```\n"

	testCases, err := ExtractTestCases(markdown)
	be.Err(t, err, nil)
	be.Equal(t, len(testCases), 2)
	be.Equal(t, testCases[0].Line, 1)
	be.Equal(t, testCases[0].Assertions[0].Line, 6)
	be.Equal(t, testCases[1].Line, 9)
}

func TestExtractTestCases_Errors(t *testing.T) {
	tests := []struct {
		name     string
		markdown string
		expected string
	}{
		{
			"input fence outside test",
			"# Title\nLine 2\nLine 3\n\n```quill-expr\n1 + 2\n```\n",
			"line 6: quill-expr fence found outside of test case",
		},
		{
			"assertion fence outside test",
			"# Document\n\n```ast\n(binary \"+\" 1 2)\n```\n",
			"ast fence found outside of test case",
		},
		{
			"unknown fence outside test",
			"# Document\n\n```go\nfunc main() {}\n```\n",
			"unknown fence language 'go' found outside of test case",
		},
		{
			"unknown fence in test",
			"## Test: shell\n```quill-expr\n1\n```\n```execute\n1\n```\n```shell\necho hi\n```\n",
			"unknown fence language 'shell' in test 'shell'",
		},
		{
			"unknown assertion fence",
			"## Test: old\n```quill-expr\n1\n```\n```types\n{x: I64}\n```\n",
			"unknown fence language 'types'",
		},
		{
			"invalid sexy",
			"## Test: invalid sexy\n```quill-expr\n1 + 2\n```\n```ast\n(unclosed list\n```\n",
			"failed to parse Sexy assertion in test 'invalid sexy'",
		},
		{
			"missing input",
			"## Test: no input\n```ast\n(number 1)\n```\n",
			"test 'no input' has no input fence",
		},
		{
			"missing assertion",
			"## Test: no assertions\n```quill-expr\n1 + 2\n```\n",
			"test 'no assertions' has no assertion fences",
		},
		{
			"multiple inputs",
			"## Test: twice\n```quill-expr\n1\n```\n```quill-program\n2\n```\n```execute\n1\n```\n",
			"multiple input fences found in test 'twice'",
		},
		{
			"error in second test",
			"## Test: first\n```quill-expr\n1\n```\n```execute\n1\n```\n\n## Test: second\n```execute\n2\n```\n",
			"test 'second' has no input fence",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := ExtractTestCases(test.markdown)
			be.Err(t, err)
			be.True(t, strings.Contains(err.Error(), test.expected))
		})
	}
}

func TestExtractTestCases_AllowFencesWithoutLanguage(t *testing.T) {
	markdown := "# Notes\n\n```\nsome code without language\n```\n\n## Test: valid test\n```quill-expr\n1 + 2\n```\n```execute\n3\n```\n\n```\nmore notes\n```\n"

	testCases, err := ExtractTestCases(markdown)
	be.Err(t, err, nil)
	be.Equal(t, len(testCases), 1)
	be.Equal(t, testCases[0].Name, "valid test")
	be.Equal(t, len(testCases[0].Assertions), 1)
}

func TestExtractTestCases_MultiLineSexy(t *testing.T) {
	markdown := `## Test: complex expression
` + "```quill-expr" + `
x + yyy * 2
` + "```" + `
` + "```ast" + `
(binary "+"
 (ident "x")
 (binary "*"
  (ident "yyy")
  (number 2)))
` + "```"

	testCases, err := ExtractTestCases(markdown)
	be.Err(t, err, nil)
	be.Equal(t, len(testCases), 1)

	parsed := testCases[0].Assertions[0].ParsedSexy
	be.Equal(t, parsed.Type, NodeList)
	be.Equal(t, len(parsed.Items), 4)
	be.Equal(t, parsed.Items[0].Text, "binary")
	be.Equal(t, parsed.Items[1].Type, NodeString)
	be.Equal(t, parsed.Items[1].Text, "+")
	be.Equal(t, parsed.String(), `(binary "+" (ident "x") (binary "*" (ident "yyy") (number 2)))`)
}

// The repository's own suites must always extract cleanly.
func TestExtractTestCases_RepositorySuites(t *testing.T) {
	files, err := filepath.Glob("../test/*_test.md")
	be.Err(t, err, nil)
	be.True(t, len(files) > 0)

	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			content, err := os.ReadFile(file)
			be.Err(t, err, nil)
			testCases, err := ExtractTestCases(string(content))
			be.Err(t, err, nil)
			be.True(t, len(testCases) > 0)
		})
	}
}
