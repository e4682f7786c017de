package quill

import (
	"fmt"
	"strings"
)

// CompileError is a single diagnostic with the position it refers to.
type CompileError struct {
	Pos     Position
	Message string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

// ErrorCollection accumulates diagnostics in the order they were reported.
type ErrorCollection struct {
	errors []*CompileError
}

// Add records a diagnostic at pos.
func (ec *ErrorCollection) Add(pos Position, format string, args ...any) {
	ec.errors = append(ec.errors, &CompileError{Pos: pos, Message: fmt.Sprintf(format, args...)})
}

func (ec *ErrorCollection) HasErrors() bool {
	return len(ec.errors) > 0
}

func (ec *ErrorCollection) Len() int {
	return len(ec.errors)
}

// Errors returns the recorded diagnostics. The slice must not be modified.
func (ec *ErrorCollection) Errors() []*CompileError {
	return ec.errors
}

// Messages returns the diagnostic messages without positions.
func (ec *ErrorCollection) Messages() []string {
	messages := make([]string, 0, len(ec.errors))
	for _, err := range ec.errors {
		messages = append(messages, err.Message)
	}
	return messages
}

// String formats one "line:column: message" entry per line.
func (ec *ErrorCollection) String() string {
	lines := make([]string, 0, len(ec.errors))
	for _, err := range ec.errors {
		lines = append(lines, err.Error())
	}
	return strings.Join(lines, "\n")
}

// ParseError is returned by Compile when the parser reported diagnostics.
type ParseError struct {
	Errors *ErrorCollection
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing errors:\n%s", e.Errors.String())
}

// GenerationError aborts code generation. No partial module is produced.
type GenerationError struct {
	Pos     Position
	Message string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

func generationErrorf(pos Position, format string, args ...any) *GenerationError {
	return &GenerationError{Pos: pos, Message: fmt.Sprintf(format, args...)}
}
