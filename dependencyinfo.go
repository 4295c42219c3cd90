package pymodgraph

import (
	"fmt"
	"strings"
)

// A DependencyInfo records how an import reference was discovered by the bytecode scanner.  It is
// a comparable value type: equality is structural, and it may be used as a map key.
type DependencyInfo struct {
	// Conditional is true if the reference is reachable only through a branch that is not
	// guaranteed to execute.  Detection is a best-effort bytecode heuristic, not a control-flow
	// proof; false negatives are acceptable.
	Conditional bool
	// Function is true if the reference occurs inside a nested code object (function or lambda
	// body) rather than at module top level.
	Function bool
	// TryExcept is true if the reference sits inside exception-handling scaffolding.
	TryExcept bool
	// FromList is true if the reference is a `from X import ...` rather than a plain `import X`.
	FromList bool
}

// Merged combines two DependencyInfo values describing the same edge discovered via different
// code paths.  Each flag is the logical AND of the inputs: an edge is only as conditional (or
// function-local, or guarded) as its least conditional discovery path.  Merged is commutative and
// idempotent.
func (di DependencyInfo) Merged(o DependencyInfo) DependencyInfo {
	return DependencyInfo{
		Conditional: di.Conditional && o.Conditional,
		Function:    di.Function && o.Function,
		TryExcept:   di.TryExcept && o.TryExcept,
		FromList:    di.FromList && o.FromList,
	}
}

const (
	depInfoConditional = 1 << iota
	depInfoFunction
	depInfoTryExcept
	depInfoFromList
)

// MarshalBinary encodes the flags as a single byte.  Together with [DependencyInfo.UnmarshalBinary]
// it satisfies the round-trip property required of persisted graph state.
func (di DependencyInfo) MarshalBinary() ([]byte, error) {
	var b byte
	for _, f := range []struct {
		set bool
		bit byte
	}{
		{di.Conditional, depInfoConditional},
		{di.Function, depInfoFunction},
		{di.TryExcept, depInfoTryExcept},
		{di.FromList, depInfoFromList},
	} {
		if f.set {
			b |= f.bit
		}
	}
	return []byte{b}, nil
}

// UnmarshalBinary decodes the form produced by [DependencyInfo.MarshalBinary].
func (di *DependencyInfo) UnmarshalBinary(data []byte) error {
	if len(data) != 1 {
		return fmt.Errorf("dependency info must be exactly 1 byte, got %d", len(data))
	}
	if data[0]&^(depInfoConditional|depInfoFunction|depInfoTryExcept|depInfoFromList) != 0 {
		return fmt.Errorf("unknown dependency info flags in byte %#x", data[0])
	}
	di.Conditional = data[0]&depInfoConditional != 0
	di.Function = data[0]&depInfoFunction != 0
	di.TryExcept = data[0]&depInfoTryExcept != 0
	di.FromList = data[0]&depInfoFromList != 0
	return nil
}

func (di DependencyInfo) String() string {
	flags := []string{}
	if di.Conditional {
		flags = append(flags, "conditional")
	}
	if di.Function {
		flags = append(flags, "function")
	}
	if di.TryExcept {
		flags = append(flags, "tryexcept")
	}
	if di.FromList {
		flags = append(flags, "fromlist")
	}
	if len(flags) == 0 {
		return "unconditional"
	}
	return strings.Join(flags, ",")
}
