package pycode

// A Builder incrementally assembles a [Code] object.  The compiler front end and test fixtures
// use it so that the OpImportName operand protocol (level and fromlist constants pushed before the
// import) is encoded in one place.
type Builder struct {
	co      *Code
	nameIdx map[string]int
}

func NewBuilder(name, filename string) *Builder {
	return &Builder{
		co:      &Code{Name: name, Filename: filename},
		nameIdx: map[string]int{},
	}
}

// NameIndex interns s in the name table and returns its index.
func (b *Builder) NameIndex(s string) int {
	if i, ok := b.nameIdx[s]; ok {
		return i
	}
	i := len(b.co.Names)
	b.co.Names = append(b.co.Names, s)
	b.nameIdx[s] = i
	return i
}

// ConstIndex appends c to the constant pool and returns its index.  Constants are not interned;
// nested code objects must remain distinct.
func (b *Builder) ConstIndex(c Const) int {
	b.co.Consts = append(b.co.Consts, c)
	return len(b.co.Consts) - 1
}

// Emit appends an instruction and returns its index.
func (b *Builder) Emit(op Opcode, arg int) int {
	b.co.Instrs = append(b.co.Instrs, Instr{Op: op, Arg: arg})
	return len(b.co.Instrs) - 1
}

// Patch rewrites the operand of a previously emitted instruction, typically to resolve a forward
// jump target.
func (b *Builder) Patch(i, arg int) {
	b.co.Instrs[i].Arg = arg
}

// Here returns the index the next emitted instruction will have.  Used as the target when patching
// forward jumps.
func (b *Builder) Here() int {
	return len(b.co.Instrs)
}

// EmitImport emits the full OpImportName sequence: the relative-import level constant, the
// fromlist constant, then the import itself.
func (b *Builder) EmitImport(name string, fromlist []string, level int) {
	b.Emit(OpLoadConst, b.ConstIndex(IntConst(level)))
	b.Emit(OpLoadConst, b.ConstIndex(TupleConst(fromlist...)))
	b.Emit(OpImportName, b.NameIndex(name))
}

// EmitStore emits an OpStoreName binding of the given name.
func (b *Builder) EmitStore(name string) {
	b.Emit(OpStoreName, b.NameIndex(name))
}

// Code finalizes the assembly, appending a trailing OpReturn if one is missing.
func (b *Builder) Code() *Code {
	if n := len(b.co.Instrs); n == 0 || b.co.Instrs[n-1].Op != OpReturn {
		b.Emit(OpReturn, 0)
	}
	return b.co
}
