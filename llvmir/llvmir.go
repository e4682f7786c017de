// Package llvmir lowers the compilable subset of a Quill program to textual
// LLVM IR. The generated module defines `i32 @main()` with the same result
// semantics as the WASM backend.
package llvmir

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"github.com/strager/quill"
)

var zero = constant.NewInt(types.I32, 0)

var comparisons = map[string]enum.IPred{
	"==": enum.IPredEQ,
	"!=": enum.IPredNE,
	"<":  enum.IPredSLT,
	">":  enum.IPredSGT,
}

// generator holds the state of one Emit call.
type generator struct {
	fn    *ir.Func
	entry *ir.Block
	block *ir.Block
	slots map[string]*ir.InstAlloca

	// last is the value of the most recent expression statement, or nil once
	// another kind of statement follows it.
	last value.Value
}

// Emit generates an LLVM module for program and returns its textual form.
func Emit(program *quill.Program) (string, error) {
	m := ir.NewModule()
	fn := m.NewFunc("main", types.I32)
	entry := fn.NewBlock("entry")

	g := &generator{
		fn:    fn,
		entry: entry,
		block: entry,
		slots: make(map[string]*ir.InstAlloca),
	}
	for _, stmt := range program.Statements {
		if err := g.statement(stmt); err != nil {
			return "", err
		}
	}

	result := g.last
	if result == nil {
		result = zero
	}
	g.block.NewRet(result)
	return m.String(), nil
}

func (g *generator) statement(stmt quill.Statement) error {
	switch s := stmt.(type) {
	case *quill.LetStatement:
		v, err := g.expression(s.Value)
		if err != nil {
			return err
		}
		g.store(s.Name.Name, v)
		g.last = nil

	case *quill.ReturnStatement:
		v, err := g.expression(s.Value)
		if err != nil {
			return err
		}
		g.block.NewRet(v)
		// Anything after a return lands in an unreachable block.
		g.block = g.fn.NewBlock("")
		g.last = nil

	case *quill.ExpressionStatement:
		v, err := g.expression(s.Expression)
		if err != nil {
			return err
		}
		g.last = v

	case *quill.BlockStatement:
		for _, inner := range s.Statements {
			if err := g.statement(inner); err != nil {
				return err
			}
		}

	case *quill.FunctionDeclaration:
		return errorf(s.Pos, "function declaration %q is not supported by the code generator", s.Name.Name)

	default:
		return errorf(stmt.Position(), "unsupported statement type %T", stmt)
	}
	return nil
}

// store writes v to the stack slot for name. Slots are allocated in the
// entry block the first time a name is bound.
func (g *generator) store(name string, v value.Value) {
	slot, ok := g.slots[name]
	if !ok {
		slot = g.entry.NewAlloca(types.I32)
		// Labels share the local namespace; the suffix keeps a variable
		// named "entry" apart from the entry block.
		slot.SetName(name + ".addr")
		g.slots[name] = slot
	}
	g.block.NewStore(v, slot)
}

func (g *generator) expression(expr quill.Expression) (value.Value, error) {
	switch e := expr.(type) {
	case *quill.NumericLiteral:
		n, err := quill.LiteralToI32(e)
		if err != nil {
			return nil, err
		}
		return constant.NewInt(types.I32, int64(n)), nil

	case *quill.Identifier:
		slot, ok := g.slots[e.Name]
		if !ok {
			return nil, errorf(e.Pos, "undefined variable: %s", e.Name)
		}
		return g.block.NewLoad(types.I32, slot), nil

	case *quill.BinaryExpression:
		left, err := g.expression(e.Left)
		if err != nil {
			return nil, err
		}
		right, err := g.expression(e.Right)
		if err != nil {
			return nil, err
		}
		return g.binary(e, left, right)

	case *quill.PrefixExpression:
		if e.Operator != "-" {
			return nil, errorf(e.Pos, "unsupported prefix operator: %s", e.Operator)
		}
		right, err := g.expression(e.Right)
		if err != nil {
			return nil, err
		}
		return g.block.NewSub(zero, right), nil

	case *quill.StringLiteral:
		return nil, errorf(e.Pos, "string literals are not supported by the code generator")

	case *quill.ArrayLiteral:
		return nil, errorf(e.Pos, "array literals are not supported by the code generator")

	case *quill.CallExpression:
		return nil, errorf(e.Pos, "function calls are not supported by the code generator")

	case *quill.IndexExpression:
		return nil, errorf(e.Pos, "index expressions are not supported by the code generator")

	default:
		return nil, errorf(expr.Position(), "unsupported expression type %T", expr)
	}
}

func (g *generator) binary(e *quill.BinaryExpression, left, right value.Value) (value.Value, error) {
	switch e.Operator {
	case "+":
		return g.block.NewAdd(left, right), nil
	case "-":
		return g.block.NewSub(left, right), nil
	case "*":
		return g.block.NewMul(left, right), nil
	case "/":
		return g.block.NewSDiv(left, right), nil
	}
	if pred, ok := comparisons[e.Operator]; ok {
		// icmp yields i1; widen to the 0/1 i32 the WASM backend produces.
		cmp := g.block.NewICmp(pred, left, right)
		return g.block.NewZExt(cmp, types.I32), nil
	}
	return nil, errorf(e.Pos, "unsupported binary operator: %s", e.Operator)
}

func errorf(pos quill.Position, format string, args ...any) *quill.GenerationError {
	return &quill.GenerationError{Pos: pos, Message: fmt.Sprintf(format, args...)}
}
