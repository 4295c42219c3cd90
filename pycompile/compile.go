// Package pycompile lowers Python source files into [pycode.Code] objects for the dependency
// scanner.  It parses with tree-sitter's Python grammar and emits only what import analysis
// consumes: import operations (with fromlist and relative level), name bindings, nested code
// objects for function bodies, and the jump/try scaffolding that classifies how an import site is
// reached.
package pycompile

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/observeroftime01/pymodgraph/pycode"
)

// Tree-sitter node types, as named by the tree-sitter-python grammar.
const (
	nodeImportStatement     = "import_statement"
	nodeImportFromStatement = "import_from_statement"
	nodeDottedName          = "dotted_name"
	nodeAliasedImport       = "aliased_import"
	nodeRelativeImport      = "relative_import"
	nodeImportPrefix        = "import_prefix"
	nodeWildcardImport      = "wildcard_import"
	nodeFunctionDefinition  = "function_definition"
	nodeClassDefinition     = "class_definition"
	nodeDecoratedDefinition = "decorated_definition"
	nodeIfStatement         = "if_statement"
	nodeElifClause          = "elif_clause"
	nodeElseClause          = "else_clause"
	nodeWhileStatement      = "while_statement"
	nodeForStatement        = "for_statement"
	nodeTryStatement        = "try_statement"
	nodeExceptClause        = "except_clause"
	nodeFinallyClause       = "finally_clause"
	nodeWithStatement       = "with_statement"
	nodeExpressionStatement = "expression_statement"
	nodeAssignment          = "assignment"
	nodeIdentifier          = "identifier"
	nodeBlock               = "block"
)

// Compile parses the given Python source and lowers it to a module-body [pycode.Code].  Parse
// errors inside the source do not fail the compilation; the recognizable statements are still
// lowered, since a freezer wants a best-effort dependency scan of whatever it can read.
func Compile(ctx context.Context, filename string, src []byte) (*pycode.Code, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %v: %w", filename, err)
	}
	defer tree.Close()
	c := &compiler{src: src, filename: filename}
	b := pycode.NewBuilder("<module>", filename)
	c.block(b, tree.RootNode())
	return b.Code(), nil
}

type compiler struct {
	src      []byte
	filename string
}

func (c *compiler) content(n *sitter.Node) string {
	return n.Content(c.src)
}

// block lowers every named child statement of n in order.
func (c *compiler) block(b *pycode.Builder, n *sitter.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c.statement(b, n.NamedChild(i))
	}
}

func (c *compiler) statement(b *pycode.Builder, stmt *sitter.Node) {
	switch stmt.Type() {
	case nodeImportStatement:
		c.importStatement(b, stmt)
	case nodeImportFromStatement:
		c.importFromStatement(b, stmt)
	case nodeFunctionDefinition:
		c.functionDefinition(b, stmt)
	case nodeDecoratedDefinition:
		if def := stmt.ChildByFieldName("definition"); def != nil {
			c.statement(b, def)
		}
	case nodeClassDefinition:
		// A class body executes unconditionally at import time, so it is lowered inline rather
		// than as a nested code object.
		if name := stmt.ChildByFieldName("name"); name != nil {
			b.EmitStore(c.content(name))
		}
		if body := stmt.ChildByFieldName("body"); body != nil {
			c.block(b, body)
		}
	case nodeIfStatement:
		c.ifStatement(b, stmt)
	case nodeWhileStatement, nodeForStatement:
		c.loopStatement(b, stmt)
	case nodeTryStatement:
		c.tryStatement(b, stmt)
	case nodeWithStatement:
		if body := stmt.ChildByFieldName("body"); body != nil {
			c.block(b, body)
		}
	case nodeExpressionStatement:
		c.expressionStatement(b, stmt)
	default:
		// Unmodeled compound statements (e.g. match) still get their nested blocks scanned, in
		// the same context as the statement itself.
		for i := 0; i < int(stmt.NamedChildCount()); i++ {
			if child := stmt.NamedChild(i); child.Type() == nodeBlock {
				c.block(b, child)
			}
		}
	}
}

// importStatement lowers `import a.b, c as d`.
func (c *compiler) importStatement(b *pycode.Builder, stmt *sitter.Node) {
	for i := 0; i < int(stmt.NamedChildCount()); i++ {
		child := stmt.NamedChild(i)
		switch child.Type() {
		case nodeDottedName:
			name := c.content(child)
			b.EmitImport(name, nil, 0)
			// `import a.b` binds the head package `a`.
			b.EmitStore(strings.SplitN(name, ".", 2)[0])
		case nodeAliasedImport:
			nameNode := child.ChildByFieldName("name")
			if nameNode == nil {
				continue
			}
			b.EmitImport(c.content(nameNode), nil, 0)
			if alias := child.ChildByFieldName("alias"); alias != nil {
				b.EmitStore(c.content(alias))
			}
		}
	}
}

// importFromStatement lowers `from X import a, b as c` and `from X import *`, including relative
// forms (`from ..X import a`).
func (c *compiler) importFromStatement(b *pycode.Builder, stmt *sitter.Node) {
	modNode := stmt.ChildByFieldName("module_name")
	if modNode == nil {
		return
	}
	name, level := "", 0
	switch modNode.Type() {
	case nodeDottedName:
		name = c.content(modNode)
	case nodeRelativeImport:
		for i := 0; i < int(modNode.NamedChildCount()); i++ {
			child := modNode.NamedChild(i)
			switch child.Type() {
			case nodeImportPrefix:
				level = strings.Count(c.content(child), ".")
			case nodeDottedName:
				name = c.content(child)
			}
		}
	}
	var fromlist []string
	var aliases []string
	star := false
	for i := 0; i < int(stmt.NamedChildCount()); i++ {
		child := stmt.NamedChild(i)
		if child.Equal(modNode) {
			continue
		}
		switch child.Type() {
		case nodeWildcardImport:
			star = true
		case nodeDottedName, nodeIdentifier:
			fromlist = append(fromlist, c.content(child))
			aliases = append(aliases, c.content(child))
		case nodeAliasedImport:
			if nameNode := child.ChildByFieldName("name"); nameNode != nil {
				fromlist = append(fromlist, c.content(nameNode))
				alias := c.content(nameNode)
				if aliasNode := child.ChildByFieldName("alias"); aliasNode != nil {
					alias = c.content(aliasNode)
				}
				aliases = append(aliases, alias)
			}
		}
	}
	if star {
		b.EmitImport(name, []string{"*"}, level)
		b.Emit(pycode.OpImportStar, 0)
		return
	}
	b.EmitImport(name, fromlist, level)
	for i, n := range fromlist {
		b.Emit(pycode.OpImportFrom, b.NameIndex(n))
		b.EmitStore(aliases[i])
	}
}

// functionDefinition lowers a def body into a nested code object referenced from the constant
// pool, mirroring how CPython represents closures.
func (c *compiler) functionDefinition(b *pycode.Builder, stmt *sitter.Node) {
	body := stmt.ChildByFieldName("body")
	if body == nil {
		return
	}
	fname := "<lambda>"
	if name := stmt.ChildByFieldName("name"); name != nil {
		fname = c.content(name)
	}
	nested := pycode.NewBuilder(fname, c.filename)
	c.block(nested, body)
	b.Emit(pycode.OpLoadConst, b.ConstIndex(pycode.CodeConst(nested.Code())))
	b.Emit(pycode.OpMakeFunction, 0)
	if fname != "<lambda>" {
		b.EmitStore(fname)
	}
}

func (c *compiler) ifStatement(b *pycode.Builder, stmt *sitter.Node) {
	branch := b.Emit(pycode.OpJumpIfFalse, b.Here()+1)
	if cons := stmt.ChildByFieldName("consequence"); cons != nil {
		c.block(b, cons)
	}
	var endJumps []int
	for i := 0; i < int(stmt.NamedChildCount()); i++ {
		child := stmt.NamedChild(i)
		switch child.Type() {
		case nodeElifClause:
			endJumps = append(endJumps, b.Emit(pycode.OpJumpForward, b.Here()+1))
			b.Patch(branch, b.Here())
			branch = b.Emit(pycode.OpJumpIfFalse, b.Here()+1)
			if cons := child.ChildByFieldName("consequence"); cons != nil {
				c.block(b, cons)
			}
		case nodeElseClause:
			endJumps = append(endJumps, b.Emit(pycode.OpJumpForward, b.Here()+1))
			b.Patch(branch, b.Here())
			branch = -1
			if body := child.ChildByFieldName("body"); body != nil {
				c.block(b, body)
			}
		}
	}
	if branch >= 0 {
		b.Patch(branch, b.Here())
	}
	for _, j := range endJumps {
		b.Patch(j, b.Here())
	}
}

// loopStatement lowers while and for bodies.  A loop body may execute zero times, so it sits
// behind a conditional jump like an if body.
func (c *compiler) loopStatement(b *pycode.Builder, stmt *sitter.Node) {
	start := b.Here()
	branch := b.Emit(pycode.OpJumpIfFalse, b.Here()+1)
	if body := stmt.ChildByFieldName("body"); body != nil {
		c.block(b, body)
	}
	b.Emit(pycode.OpJumpBackward, start)
	b.Patch(branch, b.Here())
	for i := 0; i < int(stmt.NamedChildCount()); i++ {
		if child := stmt.NamedChild(i); child.Type() == nodeElseClause {
			if body := child.ChildByFieldName("body"); body != nil {
				c.block(b, body)
			}
		}
	}
}

func (c *compiler) tryStatement(b *pycode.Builder, stmt *sitter.Node) {
	op := pycode.OpSetupFinally
	for i := 0; i < int(stmt.NamedChildCount()); i++ {
		if stmt.NamedChild(i).Type() == nodeExceptClause {
			op = pycode.OpSetupExcept
			break
		}
	}
	setup := b.Emit(op, b.Here()+1)
	if body := stmt.ChildByFieldName("body"); body != nil {
		c.block(b, body)
	}
	b.Emit(pycode.OpPopBlock, 0)
	for i := 0; i < int(stmt.NamedChildCount()); i++ {
		child := stmt.NamedChild(i)
		switch child.Type() {
		case nodeExceptClause, nodeFinallyClause, nodeElseClause:
			for j := 0; j < int(child.NamedChildCount()); j++ {
				if blk := child.NamedChild(j); blk.Type() == nodeBlock {
					c.block(b, blk)
				}
			}
		}
	}
	b.Patch(setup, b.Here())
}

// expressionStatement records top-level name bindings so the scanner can answer
// `from module import *`.
func (c *compiler) expressionStatement(b *pycode.Builder, stmt *sitter.Node) {
	for i := 0; i < int(stmt.NamedChildCount()); i++ {
		child := stmt.NamedChild(i)
		if child.Type() != nodeAssignment {
			continue
		}
		left := child.ChildByFieldName("left")
		if left == nil {
			continue
		}
		if left.Type() == nodeIdentifier {
			b.EmitStore(c.content(left))
			continue
		}
		// Tuple/list unpacking binds each identifier on the left.
		for j := 0; j < int(left.NamedChildCount()); j++ {
			if id := left.NamedChild(j); id.Type() == nodeIdentifier {
				b.EmitStore(c.content(id))
			}
		}
	}
}
