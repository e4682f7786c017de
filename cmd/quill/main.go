package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/strager/quill"
	"github.com/strager/quill/llvmir"
	"github.com/strager/quill/server"
	"github.com/strager/quill/wasmrun"
	"golang.org/x/sync/errgroup"
)

const usage = `Quill - a small language that compiles to WebAssembly

Usage:
    quill <command> [arguments]

Commands:
    run <file>          Compile a .ql file and print the result of main
    build <files...>    Compile .ql files to WebAssembly or LLVM IR
    eval <code>         Evaluate inline Quill code
    check <file>        Parse a .ql file and validate the generated module
    serve               Serve compile requests over a websocket
    help                Show this help message

Examples:
    quill run examples/answer.ql
    quill build -o program.wasm hello.ql
    quill build -emit llvm a.ql b.ql
    quill eval '6 * 7'
    quill serve -addr :9000

Use "quill <command> -h" for more information about a command.
`

// cli carries the output streams so commands can be exercised in tests.
type cli struct {
	stdout io.Writer
	stderr io.Writer

	// color enables ANSI colors in diagnostics.
	color bool
}

func main() {
	fd := os.Stderr.Fd()
	c := &cli{
		stdout: os.Stdout,
		stderr: os.Stderr,
		color:  isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := c.main(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// main dispatches to a subcommand and returns the process exit code.
func (c *cli) main(ctx context.Context, args []string) int {
	if len(args) < 1 {
		fmt.Fprint(c.stderr, usage)
		return 1
	}

	command, args := args[0], args[1:]
	switch command {
	case "run":
		return c.runCommand(ctx, args)
	case "build":
		return c.buildCommand(ctx, args)
	case "eval":
		return c.evalCommand(ctx, args)
	case "check":
		return c.checkCommand(ctx, args)
	case "serve":
		return c.serveCommand(ctx, args)
	case "help", "-h", "--help":
		fmt.Fprint(c.stdout, usage)
		return 0
	default:
		c.errorf("unknown command: %s\n", command)
		fmt.Fprint(c.stderr, usage)
		return 1
	}
}

// flagSet creates a subcommand FlagSet whose usage text starts with synopsis.
func (c *cli) flagSet(name, synopsis, description string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.Usage = func() {
		fmt.Fprintf(c.stderr, "Usage: quill %s\n", synopsis)
		fmt.Fprintf(c.stderr, "%s\n\n", description)
		fmt.Fprintf(c.stderr, "Flags:\n")
		fs.PrintDefaults()
	}
	return fs
}

func (c *cli) runCommand(ctx context.Context, args []string) int {
	fs := c.flagSet("run", "run [-v] <file>", "Compile a .ql file and print the result of main")
	verbose := fs.Bool("v", false, "Show verbose compilation details")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		c.errorf("expected exactly one file argument\n")
		fs.Usage()
		return 1
	}

	filename := fs.Arg(0)
	source, err := os.ReadFile(filename)
	if err != nil {
		c.errorf("reading %s: %v\n", filename, err)
		return 1
	}
	if *verbose {
		fmt.Fprintf(c.stderr, "Compiling %s...\n", filename)
	}
	return c.compileAndRun(ctx, string(source), *verbose)
}

// trace returns the writer for verbose output, or nil when verbose is off.
func (c *cli) trace(verbose bool) io.Writer {
	if verbose {
		return c.stderr
	}
	return nil
}

func (c *cli) evalCommand(ctx context.Context, args []string) int {
	fs := c.flagSet("eval", "eval [-v] <code>", "Evaluate inline Quill code")
	verbose := fs.Bool("v", false, "Show verbose compilation details")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		c.errorf("expected exactly one code argument\n")
		fs.Usage()
		return 1
	}

	code := fs.Arg(0)
	if *verbose {
		fmt.Fprintf(c.stderr, "Evaluating: %s\n", code)
	}
	return c.compileAndRun(ctx, code, *verbose)
}

func (c *cli) compileAndRun(ctx context.Context, source string, verbose bool) int {
	wasm, err := compile(source, c.trace(verbose))
	if err != nil {
		c.errorf("compilation failed: %v\n", err)
		return 1
	}
	if verbose {
		fmt.Fprintf(c.stderr, "Executing...\n")
	}

	result, err := wasmrun.Run(ctx, wasm)
	if err != nil {
		c.errorf("execution failed: %v\n", err)
		return 1
	}
	fmt.Fprintln(c.stdout, result)
	return 0
}

func (c *cli) buildCommand(ctx context.Context, args []string) int {
	fs := c.flagSet("build", "build [-o output] [-v] [-emit wasm|llvm] <files...>",
		"Compile .ql files to WebAssembly or LLVM IR")
	output := fs.String("o", "", "Output file path, only with a single input (default: <file>.wasm or <file>.ll)")
	verbose := fs.Bool("v", false, "Show verbose compilation details")
	emit := fs.String("emit", "wasm", "Output format: wasm or llvm")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		c.errorf("expected at least one file argument\n")
		fs.Usage()
		return 1
	}
	if *output != "" && fs.NArg() != 1 {
		c.errorf("-o requires exactly one file argument\n")
		return 1
	}

	var extension string
	switch *emit {
	case "wasm":
		extension = ".wasm"
	case "llvm":
		extension = ".ll"
	default:
		c.errorf("unknown -emit format %q (want wasm or llvm)\n", *emit)
		return 1
	}

	files := fs.Args()
	reports := make([]string, len(files))
	// Each file traces into its own buffer; they are printed in argument
	// order once every build has finished.
	traces := make([]bytes.Buffer, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, filename := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			outputFile := *output
			if outputFile == "" {
				outputFile = strings.TrimSuffix(filename, ".ql") + extension
			}

			var trace io.Writer
			if *verbose {
				trace = &traces[i]
				fmt.Fprintf(trace, "Compiling %s to %s...\n", filename, outputFile)
			}

			source, err := os.ReadFile(filename)
			if err != nil {
				return fmt.Errorf("reading %s: %w", filename, err)
			}
			out, err := build(string(source), *emit, trace)
			if err != nil {
				return fmt.Errorf("%s: %w", filename, err)
			}
			if err := os.WriteFile(outputFile, out, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", outputFile, err)
			}
			reports[i] = fmt.Sprintf("Generated %s (%s)", outputFile, humanize.Bytes(uint64(len(out))))
			return nil
		})
	}
	err := g.Wait()

	for i := range traces {
		c.stderr.Write(traces[i].Bytes())
	}
	for _, report := range reports {
		if report != "" {
			fmt.Fprintln(c.stdout, report)
		}
	}
	if err != nil {
		c.errorf("build failed: %v\n", err)
		return 1
	}
	return 0
}

// build compiles source to the requested output format.
func build(source, emit string, trace io.Writer) ([]byte, error) {
	if emit == "wasm" {
		return compile(source, trace)
	}

	program, err := parse(source, trace)
	if err != nil {
		return nil, err
	}
	ir, err := llvmir.Emit(program)
	if err != nil {
		return nil, err
	}
	return []byte(ir), nil
}

func (c *cli) checkCommand(ctx context.Context, args []string) int {
	fs := c.flagSet("check", "check [-v] <file>", "Parse a .ql file and validate the generated module")
	verbose := fs.Bool("v", false, "Show verbose checking details")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		c.errorf("expected exactly one file argument\n")
		fs.Usage()
		return 1
	}

	filename := fs.Arg(0)
	if *verbose {
		fmt.Fprintf(c.stderr, "Checking %s...\n", filename)
	}
	source, err := os.ReadFile(filename)
	if err != nil {
		c.errorf("reading %s: %v\n", filename, err)
		return 1
	}

	wasm, err := compile(string(source), c.trace(*verbose))
	if err != nil {
		c.errorf("%s: %v\n", filename, err)
		return 1
	}
	if err := wasmrun.Validate(ctx, wasm); err != nil {
		c.errorf("%s: %v\n", filename, err)
		return 1
	}

	fmt.Fprintf(c.stdout, "%s: no errors found\n", filename)
	return 0
}

func (c *cli) serveCommand(ctx context.Context, args []string) int {
	config := server.DefaultConfig()
	fs := c.flagSet("serve", "serve [-addr :8080] [-max-source N] [-exec]",
		"Serve compile requests over a websocket at /compile")
	fs.StringVar(&config.Addr, "addr", config.Addr, "Address to listen on")
	fs.Int64Var(&config.MaxSourceBytes, "max-source", config.MaxSourceBytes, "Maximum source size per request in bytes")
	fs.BoolVar(&config.Execute, "exec", config.Execute, "Allow clients to execute compiled programs")
	fs.DurationVar(&config.RunTimeout, "timeout", config.RunTimeout, "Maximum time to run a single program")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 0 {
		c.errorf("serve takes no arguments\n")
		fs.Usage()
		return 1
	}

	if err := server.New(config, nil).ListenAndServe(ctx); err != nil {
		c.errorf("serve: %v\n", err)
		return 1
	}
	return 0
}

// compile runs the whole pipeline. A non-nil trace receives the AST and the
// module size.
func compile(source string, trace io.Writer) ([]byte, error) {
	program, err := parse(source, trace)
	if err != nil {
		return nil, err
	}
	wasm, err := quill.CompileToWASM(program)
	if err != nil {
		return nil, err
	}
	if trace != nil {
		fmt.Fprintf(trace, "Generated %s of WASM\n", humanize.Bytes(uint64(len(wasm))))
	}
	return wasm, nil
}

func parse(source string, trace io.Writer) (*quill.Program, error) {
	program, errs := quill.Parse(source)
	if errs.HasErrors() {
		return nil, &quill.ParseError{Errors: errs}
	}
	if trace != nil {
		fmt.Fprintf(trace, "AST: %s\n", quill.ToSExpr(program))
	}
	return program, nil
}

// errorf prints an "Error:" diagnostic to stderr.
func (c *cli) errorf(format string, args ...any) {
	prefix := "Error: "
	if c.color {
		prefix = "\x1b[1;31mError:\x1b[0m "
	}
	fmt.Fprintf(c.stderr, prefix+format, args...)
}
