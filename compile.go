// Package quill compiles Quill source text to a WebAssembly module.
//
// The pipeline is Lexer -> Parser -> CompileToWASM. Every stage keeps its
// state in values owned by a single compilation, so independent compilations
// may run concurrently.
package quill

// Compile parses source and generates a WASM module exporting main.
//
// Syntax errors are returned as *ParseError, code generation failures as
// *GenerationError. No module is returned with an error.
func Compile(source string) ([]byte, error) {
	program, errs := Parse(source)
	if errs.HasErrors() {
		return nil, &ParseError{Errors: errs}
	}
	return CompileToWASM(program)
}
