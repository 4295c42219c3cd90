// Package pycode models the compiled form of a Python module as seen by the dependency scanner: a
// [Code] object holding a flat instruction stream, a name table, and a constant pool whose entries
// may be nested [Code] objects (function, lambda, and class bodies).
//
// The instruction set is deliberately small.  It covers exactly what import analysis needs: the
// import operations themselves, name binding (to answer `from module import *`), and enough
// control-flow scaffolding (jumps and try-region markers) to classify how an import site is
// reached.  It is not executable.
//
// [Marshal] and [Unmarshal] convert a [Code] to and from a compact binary form.  That form is the
// payload of `.pyc` entries inside search-path archives and the cache format used by packaging
// pipelines that persist graph state between runs.
package pycode

import (
	"fmt"
)

// An Opcode identifies one instruction in a [Code] object's stream.
type Opcode uint8

const (
	OpNop Opcode = iota

	// OpLoadConst pushes Consts[Arg].
	OpLoadConst
	// OpStoreName binds Names[Arg] in the enclosing namespace.  At module level this defines a
	// global attribute of the module.
	OpStoreName
	// OpMakeFunction turns the most recently pushed code constant into a function.
	OpMakeFunction

	// OpImportName imports the module Names[Arg].  Like CPython's IMPORT_NAME, it consumes two
	// constants pushed by the two immediately preceding OpLoadConst instructions: first the
	// relative-import level (an int), then the fromlist (a tuple, possibly empty).
	OpImportName
	// OpImportFrom binds Names[Arg] out of the module imported by the preceding OpImportName.
	OpImportFrom
	// OpImportStar binds every public attribute of the module imported by the preceding
	// OpImportName.
	OpImportStar

	// OpJumpForward jumps unconditionally to instruction index Arg (always forward).
	OpJumpForward
	// OpJumpIfFalse jumps to instruction index Arg if the branch condition is false.  Everything
	// between this instruction and its target executes conditionally.
	OpJumpIfFalse
	// OpJumpBackward is a loop back-edge to instruction index Arg.
	OpJumpBackward

	// OpSetupExcept opens a try/except region that extends to instruction index Arg.
	OpSetupExcept
	// OpSetupFinally opens a try/finally region that extends to instruction index Arg.
	OpSetupFinally
	// OpPopBlock closes the body of the innermost open setup region.
	OpPopBlock

	// OpReturn ends the code object.
	OpReturn
)

var opcodeNames = map[Opcode]string{
	OpNop:          "NOP",
	OpLoadConst:    "LOAD_CONST",
	OpStoreName:    "STORE_NAME",
	OpMakeFunction: "MAKE_FUNCTION",
	OpImportName:   "IMPORT_NAME",
	OpImportFrom:   "IMPORT_FROM",
	OpImportStar:   "IMPORT_STAR",
	OpJumpForward:  "JUMP_FORWARD",
	OpJumpIfFalse:  "JUMP_IF_FALSE",
	OpJumpBackward: "JUMP_BACKWARD",
	OpSetupExcept:  "SETUP_EXCEPT",
	OpSetupFinally: "SETUP_FINALLY",
	OpPopBlock:     "POP_BLOCK",
	OpReturn:       "RETURN",
}

func (op Opcode) String() string {
	if s, ok := opcodeNames[op]; ok {
		return s
	}
	return fmt.Sprintf("Opcode(%d)", uint8(op))
}

// An Instr is one instruction.  The meaning of Arg depends on Op: an index into
// [Code.Names] for name operations, an index into [Code.Consts] for OpLoadConst, an instruction
// index for jumps and setup regions, and unused otherwise.
type Instr struct {
	Op  Opcode
	Arg int
}

// A ConstKind tags the variant held by a [Const].
type ConstKind uint8

const (
	ConstNone ConstKind = iota
	ConstInt
	ConstStr
	ConstTuple
	ConstCode
)

// A Const is one entry in a [Code] object's constant pool.  Only the field selected by Kind is
// meaningful.
type Const struct {
	Kind  ConstKind
	Int   int
	Str   string
	Tuple []string
	Code  *Code
}

func None() Const                 { return Const{Kind: ConstNone} }
func IntConst(i int) Const        { return Const{Kind: ConstInt, Int: i} }
func StrConst(s string) Const     { return Const{Kind: ConstStr, Str: s} }
func TupleConst(ss ...string) Const {
	if ss == nil {
		ss = []string{}
	}
	return Const{Kind: ConstTuple, Tuple: ss}
}
func CodeConst(co *Code) Const { return Const{Kind: ConstCode, Code: co} }

// A Code is the compiled form of one Python scope: the module body, or a nested function, lambda,
// or class body.  Nested scopes appear as [ConstCode] entries in Consts.
type Code struct {
	// Name is the scope's qualified name ("<module>" for a module body).
	Name string
	// Filename is the source file this scope was compiled from.
	Filename string
	Names    []string
	Consts   []Const
	Instrs   []Instr
}

// Check asserts that every instruction operand is in range: name and constant indices must index
// their tables, jump and setup targets must be valid instruction indices, and forward jumps must
// actually point forward.  Nested code constants are checked recursively.
func (co *Code) Check() error {
	for i, in := range co.Instrs {
		switch in.Op {
		case OpLoadConst:
			if in.Arg < 0 || in.Arg >= len(co.Consts) {
				return fmt.Errorf("%s: instr %d: const index %d out of range", co.Name, i, in.Arg)
			}
		case OpStoreName, OpImportName, OpImportFrom:
			if in.Arg < 0 || in.Arg >= len(co.Names) {
				return fmt.Errorf("%s: instr %d: name index %d out of range", co.Name, i, in.Arg)
			}
		case OpJumpForward, OpJumpIfFalse, OpSetupExcept, OpSetupFinally:
			if in.Arg <= i || in.Arg > len(co.Instrs) {
				return fmt.Errorf("%s: instr %d: forward target %d out of range", co.Name, i, in.Arg)
			}
		case OpJumpBackward:
			if in.Arg < 0 || in.Arg >= i {
				return fmt.Errorf("%s: instr %d: backward target %d out of range", co.Name, i, in.Arg)
			}
		}
	}
	for i, c := range co.Consts {
		if c.Kind == ConstCode {
			if c.Code == nil {
				return fmt.Errorf("%s: const %d: nil nested code object", co.Name, i)
			}
			if err := c.Code.Check(); err != nil {
				return err
			}
		}
	}
	return nil
}

// NestedCode yields every nested code object in the constant pool, in pool order.
func (co *Code) NestedCode(yield func(*Code) bool) {
	for _, c := range co.Consts {
		if c.Kind == ConstCode {
			if !yield(c.Code) {
				return
			}
		}
	}
}

func (co *Code) String() string {
	return fmt.Sprintf("<code %s %s>", co.Name, co.Filename)
}
