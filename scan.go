package pymodgraph

import (
	"log/slog"

	"github.com/observeroftime01/pymodgraph/pycode"
)

// An importRequest is one import site discovered by scanning a code object, waiting to be
// resolved against the search path.
type importRequest struct {
	name     string
	fromlist []string
	level    int
	info     DependencyInfo
}

// scanCode walks a code object, appending every import site to the node's deferred-import queue
// and recording module-level name bindings as global attributes.  function marks scanning inside
// a nested code object (function or lambda body); it propagates into the recorded
// [DependencyInfo].
//
// Conditional and try/except classification is a span heuristic over the instruction stream, not
// a control-flow proof: an import is conditional if any forward jump's span covers it, and
// guarded if any open setup region covers it.  False negatives are acceptable; the flags only
// weaken packaging warnings.
func scanCode(n *Node, co *pycode.Code, function bool) {
	condUntil, tryUntil := 0, 0
	for i, in := range co.Instrs {
		switch in.Op {
		case pycode.OpJumpForward, pycode.OpJumpIfFalse:
			condUntil = max(condUntil, in.Arg)
		case pycode.OpSetupExcept, pycode.OpSetupFinally:
			tryUntil = max(tryUntil, in.Arg)
		case pycode.OpStoreName:
			if !function {
				n.AddGlobalAttr(co.Names[in.Arg])
			}
		case pycode.OpImportName:
			level, fromlist, ok := importOperands(co, i)
			if !ok {
				slog.Warn("import with malformed operands, skipping",
					"node", n, "code", co, "instr", i)
				continue
			}
			n.deferredImports = append(n.deferredImports, &importRequest{
				name:     co.Names[in.Arg],
				fromlist: fromlist,
				level:    level,
				info: DependencyInfo{
					Conditional: i < condUntil,
					Function:    function,
					TryExcept:   i < tryUntil,
					FromList:    len(fromlist) > 0,
				},
			})
		}
	}
	co.NestedCode(func(nested *pycode.Code) bool {
		scanCode(n, nested, true)
		return true
	})
}

// importOperands decodes the two constants an [pycode.OpImportName] consumes: the relative-import
// level and the fromlist, pushed by the two immediately preceding loads.
func importOperands(co *pycode.Code, i int) (level int, fromlist []string, ok bool) {
	if i < 2 || co.Instrs[i-2].Op != pycode.OpLoadConst || co.Instrs[i-1].Op != pycode.OpLoadConst {
		return 0, nil, false
	}
	levelConst := co.Consts[co.Instrs[i-2].Arg]
	fromConst := co.Consts[co.Instrs[i-1].Arg]
	if levelConst.Kind != pycode.ConstInt || fromConst.Kind != pycode.ConstTuple {
		return 0, nil, false
	}
	return levelConst.Int, fromConst.Tuple, true
}
