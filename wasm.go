package quill

import (
	"bytes"
	"errors"
	"fmt"
	"math"
)

// WASM Binary Encoding Utilities
func writeByte(buf *bytes.Buffer, b byte) {
	buf.WriteByte(b)
}

func writeBytes(buf *bytes.Buffer, data []byte) {
	buf.Write(data)
}

// writeLEB128 writes val as an unsigned LEB128 varint.
func writeLEB128(buf *bytes.Buffer, val uint32) {
	for val >= 0x80 {
		buf.WriteByte(byte(val&0x7F) | 0x80)
		val >>= 7
	}
	buf.WriteByte(byte(val & 0x7F))
}

// writeLEB128Signed writes val as a signed LEB128 varint. Encoding stops once
// the remaining bits are all copies of the sign bit (bit 6) of the last byte.
func writeLEB128Signed(buf *bytes.Buffer, val int64) {
	for {
		b := byte(val & 0x7F)
		val >>= 7

		if (val == 0 && (b&0x40) == 0) || (val == -1 && (b&0x40) != 0) {
			buf.WriteByte(b)
			break
		}

		buf.WriteByte(b | 0x80)
	}
}

var errLEB128Truncated = errors.New("truncated LEB128 value")

// readLEB128 decodes an unsigned varint and returns the number of bytes read.
func readLEB128(data []byte) (uint32, int, error) {
	var result uint32
	var shift uint
	for i, b := range data {
		if shift >= 35 {
			return 0, 0, fmt.Errorf("LEB128 value overflows 32 bits")
		}
		result |= uint32(b&0x7F) << shift
		shift += 7
		if b&0x80 == 0 {
			return result, i + 1, nil
		}
	}
	return 0, 0, errLEB128Truncated
}

// readLEB128Signed decodes a signed varint, sign-extending from bit 6 of the
// final byte.
func readLEB128Signed(data []byte) (int64, int, error) {
	var result int64
	var shift uint
	for i, b := range data {
		if shift >= 70 {
			return 0, 0, fmt.Errorf("LEB128 value overflows 64 bits")
		}
		result |= int64(b&0x7F) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && (b&0x40) != 0 {
				result |= -1 << shift
			}
			return result, i + 1, nil
		}
	}
	return 0, 0, errLEB128Truncated
}

// WASM Opcode Constants
const (
	I32_CONST = 0x41
	I32_ADD   = 0x6A
	I32_SUB   = 0x6B
	I32_MUL   = 0x6C
	I32_DIV_S = 0x6D
	I32_EQ    = 0x46
	I32_NE    = 0x47
	I32_LT_S  = 0x48
	I32_GT_S  = 0x4A
	LOCAL_GET = 0x20
	LOCAL_SET = 0x21
	DROP      = 0x1A
	RETURN_OP = 0x0F
	END       = 0x0B
)

// WASM section ids and type encodings
const (
	SECTION_TYPE     = 0x01
	SECTION_FUNCTION = 0x03
	SECTION_EXPORT   = 0x07
	SECTION_CODE     = 0x0A

	FUNC_TYPE        = 0x60
	VALTYPE_I32      = 0x7F
	EXPORT_KIND_FUNC = 0x00
)

var (
	wasmMagic   = []byte{0x00, 0x61, 0x73, 0x6D}
	wasmVersion = []byte{0x01, 0x00, 0x00, 0x00}
)

// MainExportName is the name under which the compiled function is exported.
const MainExportName = "main"

// WASM Section Emitters
func EmitWASMHeader(buf *bytes.Buffer) {
	writeBytes(buf, wasmMagic)
	writeBytes(buf, wasmVersion)
}

// writeSection writes the section id, the byte size of content, then content.
func writeSection(buf *bytes.Buffer, id byte, content *bytes.Buffer) {
	writeByte(buf, id)
	writeLEB128(buf, uint32(content.Len()))
	writeBytes(buf, content.Bytes())
}

func EmitTypeSection(buf *bytes.Buffer) {
	var sectionBuf bytes.Buffer
	writeLEB128(&sectionBuf, 1) // 1 function type

	// Type 0: main function () -> i32
	writeByte(&sectionBuf, FUNC_TYPE)
	writeLEB128(&sectionBuf, 0) // 0 params
	writeLEB128(&sectionBuf, 1) // 1 result
	writeByte(&sectionBuf, VALTYPE_I32)

	writeSection(buf, SECTION_TYPE, &sectionBuf)
}

func EmitFunctionSection(buf *bytes.Buffer) {
	var sectionBuf bytes.Buffer
	writeLEB128(&sectionBuf, 1) // 1 function
	writeLEB128(&sectionBuf, 0) // function 0 uses type index 0

	writeSection(buf, SECTION_FUNCTION, &sectionBuf)
}

func EmitExportSection(buf *bytes.Buffer) {
	var sectionBuf bytes.Buffer
	writeLEB128(&sectionBuf, 1) // 1 export

	writeLEB128(&sectionBuf, uint32(len(MainExportName)))
	writeBytes(&sectionBuf, []byte(MainExportName))
	writeByte(&sectionBuf, EXPORT_KIND_FUNC)
	writeLEB128(&sectionBuf, 0) // function index 0

	writeSection(buf, SECTION_EXPORT, &sectionBuf)
}

// EmitCodeSection writes the single function body: its locals declaration,
// the instructions in body, and the end marker.
func EmitCodeSection(buf *bytes.Buffer, localCount uint32, body []byte) {
	var bodyBuf bytes.Buffer

	if localCount > 0 {
		writeLEB128(&bodyBuf, 1) // 1 local type group
		writeLEB128(&bodyBuf, localCount)
		writeByte(&bodyBuf, VALTYPE_I32)
	} else {
		writeLEB128(&bodyBuf, 0)
	}

	writeBytes(&bodyBuf, body)
	writeByte(&bodyBuf, END)

	var sectionBuf bytes.Buffer
	writeLEB128(&sectionBuf, 1) // 1 function
	writeLEB128(&sectionBuf, uint32(bodyBuf.Len()))
	writeBytes(&sectionBuf, bodyBuf.Bytes())

	writeSection(buf, SECTION_CODE, &sectionBuf)
}

// LocalContext is the per-compilation code generation state. Each call to
// CompileToWASM creates its own.
type LocalContext struct {
	slots map[string]uint32
	count uint32

	// valueOnStack is true while the last emitted statement left its value on
	// the operand stack.
	valueOnStack bool
}

func NewLocalContext() *LocalContext {
	return &LocalContext{slots: make(map[string]uint32)}
}

// bind returns the slot for name, allocating the next free slot the first
// time name is seen.
func (ctx *LocalContext) bind(name string) uint32 {
	if slot, ok := ctx.slots[name]; ok {
		return slot
	}
	slot := ctx.count
	ctx.slots[name] = slot
	ctx.count++
	return slot
}

// Lookup returns the slot bound to name.
func (ctx *LocalContext) Lookup(name string) (uint32, bool) {
	slot, ok := ctx.slots[name]
	return slot, ok
}

// LocalCount returns the number of slots allocated so far.
func (ctx *LocalContext) LocalCount() uint32 {
	return ctx.count
}

// CompileToWASM generates a complete module whose exported main function
// evaluates program and returns the value of its last expression statement,
// or 0 if there is none.
func CompileToWASM(program *Program) ([]byte, error) {
	ctx := NewLocalContext()

	var body bytes.Buffer
	for _, stmt := range program.Statements {
		if err := EmitStatement(&body, stmt, ctx); err != nil {
			return nil, err
		}
	}
	if !ctx.valueOnStack {
		writeByte(&body, I32_CONST)
		writeLEB128Signed(&body, 0)
	}

	var buf bytes.Buffer
	EmitWASMHeader(&buf)
	EmitTypeSection(&buf)
	EmitFunctionSection(&buf)
	EmitExportSection(&buf)
	EmitCodeSection(&buf, ctx.count, body.Bytes())
	return buf.Bytes(), nil
}

// EmitStatement generates WASM bytecode for a statement.
func EmitStatement(buf *bytes.Buffer, stmt Statement, ctx *LocalContext) error {
	if ctx.valueOnStack {
		// Only the final statement's value is the function result.
		writeByte(buf, DROP)
		ctx.valueOnStack = false
	}

	switch s := stmt.(type) {
	case *LetStatement:
		if err := EmitExpression(buf, s.Value, ctx); err != nil {
			return err
		}
		// Bind after the value so "let x = x" cannot read its own slot.
		slot := ctx.bind(s.Name.Name)
		writeByte(buf, LOCAL_SET)
		writeLEB128(buf, slot)

	case *ReturnStatement:
		if err := EmitExpression(buf, s.Value, ctx); err != nil {
			return err
		}
		writeByte(buf, RETURN_OP)

	case *ExpressionStatement:
		if err := EmitExpression(buf, s.Expression, ctx); err != nil {
			return err
		}
		ctx.valueOnStack = true

	case *BlockStatement:
		for _, inner := range s.Statements {
			if err := EmitStatement(buf, inner, ctx); err != nil {
				return err
			}
		}

	case *FunctionDeclaration:
		return generationErrorf(s.Pos, "function declaration %q is not supported by the code generator", s.Name.Name)

	default:
		return generationErrorf(stmt.Position(), "unsupported statement type %T", stmt)
	}
	return nil
}

// EmitExpression generates WASM bytecode that leaves the value of expr on
// the operand stack.
func EmitExpression(buf *bytes.Buffer, expr Expression, ctx *LocalContext) error {
	switch e := expr.(type) {
	case *NumericLiteral:
		value, err := LiteralToI32(e)
		if err != nil {
			return err
		}
		writeByte(buf, I32_CONST)
		writeLEB128Signed(buf, int64(value))

	case *Identifier:
		slot, ok := ctx.Lookup(e.Name)
		if !ok {
			return generationErrorf(e.Pos, "undefined variable: %s", e.Name)
		}
		writeByte(buf, LOCAL_GET)
		writeLEB128(buf, slot)

	case *BinaryExpression:
		if err := EmitExpression(buf, e.Left, ctx); err != nil {
			return err
		}
		if err := EmitExpression(buf, e.Right, ctx); err != nil {
			return err
		}
		opcode, ok := binaryOpcodes[e.Operator]
		if !ok {
			return generationErrorf(e.Pos, "unsupported binary operator: %s", e.Operator)
		}
		writeByte(buf, opcode)

	case *PrefixExpression:
		if e.Operator != "-" {
			return generationErrorf(e.Pos, "unsupported prefix operator: %s", e.Operator)
		}
		// -x is lowered to 0 - x.
		writeByte(buf, I32_CONST)
		writeLEB128Signed(buf, 0)
		if err := EmitExpression(buf, e.Right, ctx); err != nil {
			return err
		}
		writeByte(buf, I32_SUB)

	case *StringLiteral:
		return generationErrorf(e.Pos, "string literals are not supported by the code generator")

	case *ArrayLiteral:
		return generationErrorf(e.Pos, "array literals are not supported by the code generator")

	case *CallExpression:
		return generationErrorf(e.Pos, "function calls are not supported by the code generator")

	case *IndexExpression:
		return generationErrorf(e.Pos, "index expressions are not supported by the code generator")

	default:
		return generationErrorf(expr.Position(), "unsupported expression type %T", expr)
	}
	return nil
}

var binaryOpcodes = map[string]byte{
	"+":  I32_ADD,
	"-":  I32_SUB,
	"*":  I32_MUL,
	"/":  I32_DIV_S,
	"==": I32_EQ,
	"!=": I32_NE,
	"<":  I32_LT_S,
	">":  I32_GT_S,
}

// LiteralToI32 narrows a parsed literal to the i32 value type. Integral
// values wrap modulo 2^32; fractional values are rejected.
func LiteralToI32(lit *NumericLiteral) (int32, error) {
	v := lit.Value
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, generationErrorf(lit.Pos, "numeric literal %v is not a finite number", v)
	}
	if v != math.Trunc(v) {
		return 0, generationErrorf(lit.Pos, "fractional literal %v is not supported; values are 32-bit integers", v)
	}
	m := math.Mod(v, 1<<32)
	if m < 0 {
		m += 1 << 32
	}
	return int32(uint32(m)), nil
}

// CountLocals reads a module produced by CompileToWASM and returns the
// number of locals declared by its function body.
func CountLocals(module []byte) (uint32, error) {
	if len(module) < 8 || !bytes.Equal(module[:4], wasmMagic) {
		return 0, fmt.Errorf("not a WASM module")
	}

	pos := 8
	for pos < len(module) {
		id := module[pos]
		size, n, err := readLEB128(module[pos+1:])
		if err != nil {
			return 0, fmt.Errorf("section at offset %d: %w", pos, err)
		}
		start := pos + 1 + n
		end := start + int(size)
		if end > len(module) {
			return 0, fmt.Errorf("section at offset %d: size %d exceeds module", pos, size)
		}
		if id == SECTION_CODE {
			return countBodyLocals(module[start:end])
		}
		pos = end
	}
	return 0, fmt.Errorf("module has no code section")
}

func countBodyLocals(section []byte) (uint32, error) {
	pos := 0
	functionCount, n, err := readLEB128(section[pos:])
	if err != nil {
		return 0, err
	}
	if functionCount == 0 {
		return 0, fmt.Errorf("code section has no function bodies")
	}
	pos += n

	_, n, err = readLEB128(section[pos:]) // body size
	if err != nil {
		return 0, err
	}
	pos += n

	groups, n, err := readLEB128(section[pos:])
	if err != nil {
		return 0, err
	}
	pos += n

	var total uint32
	for i := uint32(0); i < groups; i++ {
		count, n, err := readLEB128(section[pos:])
		if err != nil {
			return 0, err
		}
		pos += n + 1 // count, then value type
		total += count
	}
	return total, nil
}
