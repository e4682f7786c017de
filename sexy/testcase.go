package sexy

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// InputType is the language of the fence holding a test's Quill source.
type InputType string

const (
	InputTypeQuillExpr    InputType = "quill-expr"
	InputTypeQuillProgram InputType = "quill-program"
)

// AssertionType is the language of a fence holding an expectation.
type AssertionType string

const (
	// AssertionTypeAST holds an s-expression pattern for the parsed tree.
	AssertionTypeAST AssertionType = "ast"
	// AssertionTypeExecute holds the decimal i32 returned by main.
	AssertionTypeExecute AssertionType = "execute"
	// AssertionTypeCompileError holds a substring of the expected diagnostics.
	AssertionTypeCompileError AssertionType = "compile-error"
	// AssertionTypeWasmLocals holds the number of i32 locals main declares.
	AssertionTypeWasmLocals AssertionType = "wasm-locals"
	// AssertionTypeTokens holds whitespace-separated token types, EOF included.
	AssertionTypeTokens AssertionType = "tokens"
)

var inputTypes = map[string]InputType{
	string(InputTypeQuillExpr):    InputTypeQuillExpr,
	string(InputTypeQuillProgram): InputTypeQuillProgram,
}

var assertionTypes = map[string]AssertionType{
	string(AssertionTypeAST):          AssertionTypeAST,
	string(AssertionTypeExecute):      AssertionTypeExecute,
	string(AssertionTypeCompileError): AssertionTypeCompileError,
	string(AssertionTypeWasmLocals):   AssertionTypeWasmLocals,
	string(AssertionTypeTokens):       AssertionTypeTokens,
}

type Assertion struct {
	Type       AssertionType
	Content    string // raw fence content without the trailing newline
	ParsedSexy *Node  // set for AssertionTypeAST only
	Line       int
}

// TestCase is one "Test: name" section of a Markdown suite.
type TestCase struct {
	Name       string
	Line       int // line of the heading
	Input      string
	InputType  InputType
	Assertions []Assertion
}

// ExtractTestCases parses a Markdown document and extracts its test cases.
//
// A test starts at any heading whose text begins with "Test: " and owns every
// fence up to the next such heading. Each test needs exactly one input fence
// and at least one assertion fence. Fences without a language are ignored.
func ExtractTestCases(markdownContent string) ([]TestCase, error) {
	source := []byte(markdownContent)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var testCases []TestCase
	var current *TestCase

	flush := func() error {
		if current == nil {
			return nil
		}
		if err := validateTestCase(current); err != nil {
			return err
		}
		testCases = append(testCases, *current)
		return nil
	}

	err := ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch n := node.(type) {
		case *ast.Heading:
			headingText := extractTextFromNode(n, source)
			name, ok := strings.CutPrefix(headingText, "Test: ")
			if !ok {
				return ast.WalkContinue, nil
			}
			if err := flush(); err != nil {
				return ast.WalkStop, err
			}
			current = &TestCase{
				Name:       strings.TrimSpace(name),
				Line:       getLineNumber(n, source),
				Assertions: []Assertion{},
			}

		case *ast.FencedCodeBlock:
			language := string(n.Language(source))
			if language == "" {
				return ast.WalkContinue, nil
			}
			lineNum := getLineNumber(n, source)
			content := strings.TrimRight(extractCodeBlockContent(n, source), "\n")

			inputType, isInput := inputTypes[language]
			assertionType, isAssertion := assertionTypes[language]

			if current == nil {
				if isInput || isAssertion {
					return ast.WalkStop, fmt.Errorf("line %d: %s fence found outside of test case", lineNum, language)
				}
				return ast.WalkStop, fmt.Errorf("line %d: unknown fence language '%s' found outside of test case", lineNum, language)
			}

			switch {
			case isInput:
				if current.InputType != "" {
					return ast.WalkStop, fmt.Errorf("line %d: multiple input fences found in test '%s'", lineNum, current.Name)
				}
				current.Input = content
				current.InputType = inputType
			case isAssertion:
				assertion := Assertion{Type: assertionType, Content: content, Line: lineNum}
				if assertionType == AssertionTypeAST {
					parsed, parseErr := Parse(content)
					if parseErr != nil {
						return ast.WalkStop, fmt.Errorf("line %d: failed to parse Sexy assertion in test '%s': %w", lineNum, current.Name, parseErr)
					}
					assertion.ParsedSexy = parsed
				}
				current.Assertions = append(current.Assertions, assertion)
			default:
				return ast.WalkStop, fmt.Errorf("line %d: unknown fence language '%s' in test '%s'", lineNum, language, current.Name)
			}
		}

		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking markdown AST: %w", err)
	}

	if err := flush(); err != nil {
		return nil, err
	}
	return testCases, nil
}

func extractTextFromNode(node ast.Node, source []byte) string {
	var buf bytes.Buffer
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			if t, ok := n.(*ast.Text); ok {
				buf.Write(t.Segment.Value(source))
			}
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

func extractCodeBlockContent(codeBlock *ast.FencedCodeBlock, source []byte) string {
	var buf bytes.Buffer
	lines := codeBlock.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.Write(line.Value(source))
	}
	return buf.String()
}

// validateTestCase ensures a test case has an input and at least one assertion.
// An empty input fence is allowed; it compiles the empty program.
func validateTestCase(testCase *TestCase) error {
	if testCase.InputType == "" {
		return fmt.Errorf("test '%s' has no input fence", testCase.Name)
	}
	if len(testCase.Assertions) == 0 {
		return fmt.Errorf("test '%s' has no assertion fences", testCase.Name)
	}
	return nil
}

// getLineNumber returns the 1-based source line a block node starts on.
// Headings have no lines in goldmark, so their first text segment is used.
func getLineNumber(node ast.Node, source []byte) int {
	start := -1
	if node.Lines().Len() > 0 {
		start = node.Lines().At(0).Start
	} else if t, ok := node.FirstChild().(*ast.Text); ok {
		start = t.Segment.Start
	}
	if start < 0 {
		return 1
	}
	return 1 + bytes.Count(source[:min(start, len(source))], []byte{'\n'})
}
