package pymodgraph

import (
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/observeroftime01/pymodgraph/pycode"
)

// A NodeKind classifies how a [Node] was found and resolved.  The packaging pipeline uses the
// kind to decide what to copy, compile, or archive; [ModuleGraph.Report] prints it in the Class
// column.
type NodeKind int

const (
	// KindNode is a plain graph entry with no resolution semantics (used for synthetic roots and
	// pre-declared lazy leaves).
	KindNode NodeKind = iota
	// KindAliasNode is a node whose graph key differs from the module it stands for.
	KindAliasNode
	// KindScript is an entry-point script (its identifier is the script path).
	KindScript
	// KindBadModule is a module that could not be resolved, without further detail.
	KindBadModule
	// KindExcludedModule is a module deliberately not tracked (excluded by configuration).
	KindExcludedModule
	// KindMissingModule is a module whose lookup failed in every search-path entry.
	KindMissingModule
	// KindBaseModule is a resolved module of unspecified flavor.
	KindBaseModule
	// KindBuiltinModule is a module compiled into the interpreter; it has no file.
	KindBuiltinModule
	// KindSourceModule is a module backed by a .py source file.
	KindSourceModule
	// KindCompiledModule is a module backed by compiled code with no source (a bare .pyc,
	// typically from an archive).
	KindCompiledModule
	// KindPackage is a package; it always has a non-nil package path.
	KindPackage
	// KindExtension is a native extension module (.so/.pyd).
	KindExtension
)

var nodeKindNames = [...]string{
	KindNode:           "Node",
	KindAliasNode:      "AliasNode",
	KindScript:         "Script",
	KindBadModule:      "BadModule",
	KindExcludedModule: "ExcludedModule",
	KindMissingModule:  "MissingModule",
	KindBaseModule:     "BaseModule",
	KindBuiltinModule:  "BuiltinModule",
	KindSourceModule:   "SourceModule",
	KindCompiledModule: "CompiledModule",
	KindPackage:        "Package",
	KindExtension:      "Extension",
}

func (k NodeKind) String() string {
	if k >= 0 && int(k) < len(nodeKindNames) {
		return nodeKindNames[k]
	}
	return fmt.Sprintf("NodeKind(%d)", int(k))
}

// Bad reports whether the kind marks a resolution failure ([KindBadModule] and its refinements).
func (k NodeKind) Bad() bool {
	return k == KindBadModule || k == KindExcludedModule || k == KindMissingModule
}

// A Node is one entry in a [ModuleGraph].  All variants share this record; the [NodeKind]
// discriminates them, and kind-specific constraints (a package always has a PackagePath, a script
// never does) are maintained by the graph's resolution methods.
type Node struct {
	Kind NodeKind
	// GraphIdent is the key under which the node is stored in the graph.  It equals Identifier
	// except for alias nodes.
	GraphIdent string
	// Identifier is the canonical dotted module name, or the script path for [KindScript].
	Identifier string
	// Filename is the absolute path to the node's source or binary.  Empty for builtins and bad
	// modules.
	Filename string
	// PackagePath is the ordered list of directories searched for this package's submodules.
	// Nil for non-package nodes.
	PackagePath []string
	// Code is the node's compiled code object.  Non-nil for any node requiring bytecode
	// scanning: scripts, source modules, compiled modules, and packages.
	Code *pycode.Code

	// deferredImports holds import requests discovered by scanning but not yet resolved.  Nil
	// once fully processed.
	deferredImports []*importRequest

	// globalAttrNames, starImportIgnored, and submodules are shared by reference between an alias
	// node and its target: the alias borrows them, it never owns copies.
	globalAttrNames   mapset.Set[string]
	starImportIgnored mapset.Set[string]
	submodules        map[string]*Node
}

func newNode(kind NodeKind, graphident, identifier string) *Node {
	return &Node{
		Kind:              kind,
		GraphIdent:        graphident,
		Identifier:        identifier,
		globalAttrNames:   mapset.NewThreadUnsafeSet[string](),
		starImportIgnored: mapset.NewThreadUnsafeSet[string](),
		submodules:        map[string]*Node{},
	}
}

// IsGlobalAttr reports whether name is bound at the module's top level.
func (n *Node) IsGlobalAttr(name string) bool {
	return n.globalAttrNames.Contains(name)
}

// AddGlobalAttr records that name is bound at the module's top level.
func (n *Node) AddGlobalAttr(name string) {
	n.globalAttrNames.Add(name)
}

// RemoveGlobalAttrIfFound removes name from the module's top-level bindings.  Removing a name
// that was never added is not an error.
func (n *Node) RemoveGlobalAttrIfFound(name string) {
	n.globalAttrNames.Remove(name)
}

// GlobalAttrs returns the set of names bound at the module's top level.  The returned set is the
// node's own (shared with any alias of this node); callers must not mutate it.
func (n *Node) GlobalAttrs() mapset.Set[string] {
	return n.globalAttrNames
}

// IgnoreStarImportName records that this module star-imported name (a module whose exports could
// not be determined statically), so its own global-attribute set is incomplete.
func (n *Node) IgnoreStarImportName(name string) {
	n.starImportIgnored.Add(name)
}

// IsStarImportIgnored reports whether name was recorded by [Node.IgnoreStarImportName].
func (n *Node) IsStarImportIgnored(name string) bool {
	return n.starImportIgnored.Contains(name)
}

// AddSubmodule registers child under its bare basename.
func (n *Node) AddSubmodule(basename string, child *Node) {
	n.submodules[basename] = child
}

// IsSubmodule reports whether a submodule with the given bare basename is registered.
func (n *Node) IsSubmodule(basename string) bool {
	_, ok := n.submodules[basename]
	return ok
}

// Submodule returns the registered submodule with the given bare basename, or an error if none is
// registered.
func (n *Node) Submodule(basename string) (*Node, error) {
	child, ok := n.submodules[basename]
	if !ok {
		return nil, fmt.Errorf("%v has no submodule %q", n, basename)
	}
	return child, nil
}

// SubmoduleOrNone is like [Node.Submodule] except it returns nil when no submodule is registered.
func (n *Node) SubmoduleOrNone(basename string) *Node {
	return n.submodules[basename]
}

// InfoTuple returns the node's identifying fields for diagnostic rendering: the graph identifier,
// then — where they differ or exist — the identifier, filename, and package path.
func (n *Node) InfoTuple() []string {
	switch n.Kind {
	case KindAliasNode:
		return []string{n.GraphIdent, n.Identifier}
	case KindScript:
		return []string{n.Filename}
	}
	info := []string{n.Identifier}
	if n.Filename != "" {
		info = append(info, n.Filename)
	}
	if len(n.PackagePath) > 0 {
		info = append(info, strings.Join(n.PackagePath, ":"))
	}
	return info
}

func (n *Node) String() string {
	return fmt.Sprintf("%v(%q)", n.Kind, n.GraphIdent)
}

// NodeCompare is used to sort a collection of [Node] objects by graph identifier.
func NodeCompare(a, b *Node) int {
	return strings.Compare(a.GraphIdent, b.GraphIdent)
}
